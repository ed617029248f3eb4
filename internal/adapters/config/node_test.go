package config_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.trai.ch/kiln/internal/adapters/config"
	"go.trai.ch/kiln/internal/core/domain"
	"go.trai.ch/kiln/internal/core/ports/mocks"
	"go.uber.org/mock/gomock"
)

func TestLoadSettings(t *testing.T) {
	ctrl := gomock.NewController(t)
	loader := mocks.NewMockConfigLoader(ctrl)

	want := domain.DefaultSettings("/cache/kiln")
	loader.EXPECT().Load("/work/project").Return(want, nil)

	got, err := config.LoadSettings(loader, func() (string, error) { return "/work/project", nil })
	require.NoError(t, err)
	assert.Same(t, want, got)
}

func TestLoadSettings_GetwdFails(t *testing.T) {
	ctrl := gomock.NewController(t)
	loader := mocks.NewMockConfigLoader(ctrl)

	_, err := config.LoadSettings(loader, func() (string, error) { return "", errors.New("removed") })
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to get working directory")
}

func TestLoadSettings_LoadFails(t *testing.T) {
	ctrl := gomock.NewController(t)
	loader := mocks.NewMockConfigLoader(ctrl)
	loader.EXPECT().Load("/work").Return(nil, domain.ErrConfigParseFailed)

	_, err := config.LoadSettings(loader, func() (string, error) { return "/work", nil })
	require.ErrorIs(t, err, domain.ErrConfigParseFailed)
}
