package ports

import "go.trai.ch/kiln/internal/core/domain"

// ConfigLoader defines the interface for loading kiln settings.
//
//go:generate go run go.uber.org/mock/mockgen -source=config_loader.go -destination=mocks/mock_config_loader.go -package=mocks
type ConfigLoader interface {
	// Load discovers the configuration starting at cwd and returns the
	// resolved settings. A missing configuration file yields the defaults.
	Load(cwd string) (*domain.Settings, error)
}
