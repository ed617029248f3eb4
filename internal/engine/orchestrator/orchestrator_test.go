package orchestrator_test

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.trai.ch/kiln/internal/adapters/telemetry"
	"go.trai.ch/kiln/internal/core/domain"
	"go.trai.ch/kiln/internal/core/ports"
	"go.trai.ch/kiln/internal/core/ports/mocks"
	"go.trai.ch/kiln/internal/engine/orchestrator"
	"go.trai.ch/zerr"
	"go.uber.org/mock/gomock"
)

type fixture struct {
	settings  *domain.Settings
	store     *mocks.MockCacheStore
	fetcher   *mocks.MockFetcher
	extractor *mocks.MockExtractor
	executor  *mocks.MockExecutor
	patcher   *mocks.MockPatcher
	logger    *mocks.MockLogger
	orch      *orchestrator.Orchestrator
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	ctrl := gomock.NewController(t)
	f := &fixture{
		settings:  domain.DefaultSettings(t.TempDir()),
		store:     mocks.NewMockCacheStore(ctrl),
		fetcher:   mocks.NewMockFetcher(ctrl),
		extractor: mocks.NewMockExtractor(ctrl),
		executor:  mocks.NewMockExecutor(ctrl),
		patcher:   mocks.NewMockPatcher(ctrl),
		logger:    mocks.NewMockLogger(ctrl),
	}
	f.settings.InstallRoot = filepath.Join(t.TempDir(), "bin")
	f.logger.EXPECT().Info(gomock.Any()).AnyTimes()

	f.orch = orchestrator.New(
		f.settings, f.store, f.fetcher, f.extractor, f.executor, f.patcher,
		telemetry.NewNoOpTracer(), f.logger,
	)
	return f
}

func newRequest(t *testing.T, os string, workaround bool) domain.BuildRequest {
	t.Helper()

	req, err := domain.NewBuildRequest("make", "4.4.1", os, workaround)
	require.NoError(t, err)
	return req
}

// expectMiss makes the lookup miss.
func (f *fixture) expectMiss() {
	f.store.EXPECT().Get(gomock.Any(), domain.CacheKey("v1-linux-make-4.4.1")).Return(nil, domain.ErrCacheMiss)
}

// expectDownload serves a non-empty archive.
func (f *fixture) expectDownload() {
	f.fetcher.EXPECT().
		Fetch(gomock.Any(), "https://ftp.gnu.org/gnu/make/make-4.4.1.tar.gz", gomock.Any()).
		DoAndReturn(func(_ context.Context, _ string, dst io.Writer) (int64, error) {
			n, err := io.WriteString(dst, "archive")
			return int64(n), err
		})
}

// expectExtract creates the source directory.
func (f *fixture) expectExtract() {
	f.extractor.EXPECT().
		Extract(gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, archivePath, dst string) error {
			if filepath.Base(archivePath) != "make-4.4.1.tar.gz" {
				return errors.New("unexpected archive " + archivePath)
			}
			return os.MkdirAll(filepath.Join(dst, "make-4.4.1"), 0o755)
		})
}

func (f *fixture) expectConfigure(err error) {
	f.executor.EXPECT().Execute(gomock.Any(), gomock.Any(), []string{"./configure"}).Return(err)
}

// expectMake produces the binary unless err is set.
func (f *fixture) expectMake(err error) {
	f.executor.EXPECT().
		Execute(gomock.Any(), gomock.Any(), []string{"make", "-j", "4"}).
		DoAndReturn(func(_ context.Context, dir string, _ []string) error {
			if err != nil {
				return err
			}
			return os.WriteFile(filepath.Join(dir, "make"), []byte("#!/bin/sh\n"), 0o755)
		})
}

func TestResolve_WindowsIsNoop(t *testing.T) {
	for _, runner := range []string{"windows-latest", "windows-2022", "Windows"} {
		t.Run(runner, func(t *testing.T) {
			f := newFixture(t)

			result, err := f.orch.Resolve(context.Background(), newRequest(t, runner, true))
			require.NoError(t, err)
			assert.Equal(t, domain.BuildResult{}, result)

			_, statErr := os.Stat(f.settings.InstallRoot)
			assert.True(t, os.IsNotExist(statErr), "no filesystem action on Windows")
		})
	}
}

func TestResolve_CacheHit(t *testing.T) {
	f := newFixture(t)
	f.store.EXPECT().
		Get(gomock.Any(), domain.CacheKey("v1-linux-make-4.4.1")).
		Return(io.NopCloser(strings.NewReader("cached binary")), nil)

	result, err := f.orch.Resolve(context.Background(), newRequest(t, "linux", true))
	require.NoError(t, err)

	dest := filepath.Join(f.settings.InstallRoot, "make-4.4.1")
	assert.Equal(t, domain.BuildResult{BinaryPath: dest, FromCache: true}, result)

	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, "cached binary", string(data))

	info, err := os.Stat(dest)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o755), info.Mode().Perm())
}

func TestResolve_MissBuildsAndStores(t *testing.T) {
	f := newFixture(t)
	f.expectMiss()
	f.expectDownload()
	f.expectExtract()
	f.expectConfigure(nil)
	f.expectMake(nil)
	f.store.EXPECT().
		Put(gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, entry domain.CacheEntry, blob io.Reader) error {
			assert.Equal(t, domain.CacheKey("v1-linux-make-4.4.1"), entry.Key)
			assert.Equal(t, "make", entry.ToolName)
			assert.Equal(t, "4.4.1", entry.Version)
			assert.Equal(t, "linux", entry.OS)
			data, err := io.ReadAll(blob)
			require.NoError(t, err)
			assert.Equal(t, "#!/bin/sh\n", string(data))
			return nil
		})

	result, err := f.orch.Resolve(context.Background(), newRequest(t, "linux", false))
	require.NoError(t, err)

	dest := filepath.Join(f.settings.InstallRoot, "make-4.4.1")
	assert.Equal(t, domain.BuildResult{BinaryPath: dest, FromCache: false}, result)

	info, err := os.Stat(dest)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o755), info.Mode().Perm())
}

func TestResolve_WorkaroundPatchesAfterConfigure(t *testing.T) {
	f := newFixture(t)
	f.expectMiss()
	f.expectDownload()
	f.expectExtract()

	workaround, ok := domain.LookupWorkaround("make")
	require.True(t, ok)

	gomock.InOrder(
		f.executor.EXPECT().Execute(gomock.Any(), gomock.Any(), []string{"./configure"}).Return(nil),
		f.patcher.EXPECT().
			Apply(gomock.Any(), workaround.Substitutions, true).
			DoAndReturn(func(path string, _ []domain.Substitution, _ bool) error {
				assert.True(t, strings.HasSuffix(path, filepath.Join("make-4.4.1", "glob", "glob.c")), path)
				return nil
			}),
		f.executor.EXPECT().
			Execute(gomock.Any(), gomock.Any(), []string{"make", "-j", "4"}).
			DoAndReturn(func(_ context.Context, dir string, _ []string) error {
				return os.WriteFile(filepath.Join(dir, "make"), []byte("bin"), 0o755)
			}),
	)
	f.store.EXPECT().Put(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil)

	_, err := f.orch.Resolve(context.Background(), newRequest(t, "linux", true))
	require.NoError(t, err)
}

func TestResolve_LenientPatchSetting(t *testing.T) {
	f := newFixture(t)
	f.settings.StrictPatch = false
	f.expectMiss()
	f.expectDownload()
	f.expectExtract()
	f.expectConfigure(nil)
	f.patcher.EXPECT().Apply(gomock.Any(), gomock.Any(), false).Return(nil)
	f.expectMake(nil)
	f.store.EXPECT().Put(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil)

	_, err := f.orch.Resolve(context.Background(), newRequest(t, "linux", true))
	require.NoError(t, err)
}

func TestResolve_StepFailures(t *testing.T) {
	commandErr := zerr.With(zerr.New("command failed"), "exit_code", 2)

	tests := []struct {
		name    string
		setup   func(f *fixture)
		want    error
		message string
	}{
		{
			name: "download transport",
			setup: func(f *fixture) {
				f.fetcher.EXPECT().Fetch(gomock.Any(), gomock.Any(), gomock.Any()).
					Return(int64(0), errors.New("connection refused"))
			},
			want: domain.ErrDownloadFailed,
		},
		{
			name: "download empty",
			setup: func(f *fixture) {
				f.fetcher.EXPECT().Fetch(gomock.Any(), gomock.Any(), gomock.Any()).Return(int64(0), nil)
			},
			want:    domain.ErrDownloadFailed,
			message: domain.ErrEmptyPayload.Error(),
		},
		{
			name: "extraction",
			setup: func(f *fixture) {
				f.expectDownload()
				f.extractor.EXPECT().Extract(gomock.Any(), gomock.Any(), gomock.Any()).
					Return(errors.New("unexpected EOF"))
			},
			want: domain.ErrExtractionFailed,
		},
		{
			name: "source directory missing",
			setup: func(f *fixture) {
				f.expectDownload()
				f.extractor.EXPECT().Extract(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil)
			},
			want:    domain.ErrExtractionFailed,
			message: domain.ErrSourceDirMissing.Error(),
		},
		{
			name: "configure",
			setup: func(f *fixture) {
				f.expectDownload()
				f.expectExtract()
				f.expectConfigure(commandErr)
			},
			want: domain.ErrConfigureFailed,
		},
		{
			name: "patch",
			setup: func(f *fixture) {
				f.expectDownload()
				f.expectExtract()
				f.expectConfigure(nil)
				f.patcher.EXPECT().Apply(gomock.Any(), gomock.Any(), true).
					Return(domain.ErrPatchPatternMissing)
			},
			want: domain.ErrPatchFailed,
		},
		{
			name: "build",
			setup: func(f *fixture) {
				f.expectDownload()
				f.expectExtract()
				f.expectConfigure(nil)
				f.patcher.EXPECT().Apply(gomock.Any(), gomock.Any(), true).Return(nil)
				f.expectMake(commandErr)
			},
			want: domain.ErrBuildFailed,
		},
		{
			name: "binary missing",
			setup: func(f *fixture) {
				f.expectDownload()
				f.expectExtract()
				f.expectConfigure(nil)
				f.patcher.EXPECT().Apply(gomock.Any(), gomock.Any(), true).Return(nil)
				f.executor.EXPECT().Execute(gomock.Any(), gomock.Any(), []string{"make", "-j", "4"}).Return(nil)
			},
			want:    domain.ErrCopyFailed,
			message: domain.ErrBinaryMissing.Error(),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.expectMiss()
			tt.setup(f)
			// A failed build never reaches the store: Put has no expectation.

			result, err := f.orch.Resolve(context.Background(), newRequest(t, "linux", true))
			require.Error(t, err)
			require.ErrorIs(t, err, tt.want)
			if tt.message != "" {
				assert.Contains(t, err.Error(), tt.message)
			}
			assert.Equal(t, domain.BuildResult{}, result)

			_, statErr := os.Stat(filepath.Join(f.settings.InstallRoot, "make-4.4.1"))
			assert.True(t, os.IsNotExist(statErr), "nothing may be installed on failure")
		})
	}
}

func TestResolve_WorkaroundForUnknownTool(t *testing.T) {
	f := newFixture(t)

	req, err := domain.NewBuildRequest("m4", "1.4.19", "linux", true)
	require.NoError(t, err)

	f.store.EXPECT().Get(gomock.Any(), domain.CacheKey("v1-linux-m4-1.4.19")).Return(nil, domain.ErrCacheMiss)
	f.fetcher.EXPECT().Fetch(gomock.Any(), "https://ftp.gnu.org/gnu/m4/m4-1.4.19.tar.gz", gomock.Any()).Return(int64(1), nil)
	f.extractor.EXPECT().Extract(gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, _, dst string) error {
			return os.MkdirAll(filepath.Join(dst, "m4-1.4.19"), 0o755)
		})
	f.expectConfigure(nil)

	_, err = f.orch.Resolve(context.Background(), req)
	require.ErrorIs(t, err, domain.ErrPatchFailed)
	assert.Contains(t, err.Error(), domain.ErrNoWorkaround.Error())
}

func TestResolve_StoreFailureIsNotFatal(t *testing.T) {
	f := newFixture(t)
	f.expectMiss()
	f.expectDownload()
	f.expectExtract()
	f.expectConfigure(nil)
	f.expectMake(nil)
	f.store.EXPECT().Put(gomock.Any(), gomock.Any(), gomock.Any()).Return(errors.New("disk full"))
	f.logger.EXPECT().Warn(gomock.Any()).Do(func(msg string) {
		assert.Contains(t, msg, domain.ErrCacheStoreFailed.Error())
		assert.Contains(t, msg, "disk full")
	})

	result, err := f.orch.Resolve(context.Background(), newRequest(t, "linux", false))
	require.NoError(t, err)
	assert.False(t, result.FromCache)
	assert.Equal(t, filepath.Join(f.settings.InstallRoot, "make-4.4.1"), result.BinaryPath)
}

func TestResolve_LookupErrorFallsBackToBuild(t *testing.T) {
	f := newFixture(t)
	f.store.EXPECT().Get(gomock.Any(), gomock.Any()).Return(nil, errors.New("permission denied"))
	f.logger.EXPECT().Warn(gomock.Any())
	f.expectDownload()
	f.expectExtract()
	f.expectConfigure(nil)
	f.expectMake(nil)
	f.store.EXPECT().Put(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil)

	result, err := f.orch.Resolve(context.Background(), newRequest(t, "linux", false))
	require.NoError(t, err)
	assert.False(t, result.FromCache)
}

func TestResolve_ConfiguredWorkDirIsFresh(t *testing.T) {
	f := newFixture(t)
	f.settings.WorkDir = t.TempDir()

	stale := filepath.Join(f.settings.WorkDir, "make-4.4.1", "stale.o")
	require.NoError(t, os.MkdirAll(filepath.Dir(stale), 0o755))
	require.NoError(t, os.WriteFile(stale, []byte("old"), 0o644))

	f.expectMiss()
	f.expectDownload()
	f.expectExtract()
	f.expectConfigure(nil)
	f.expectMake(nil)
	f.store.EXPECT().Put(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil)

	_, err := f.orch.Resolve(context.Background(), newRequest(t, "linux", false))
	require.NoError(t, err)

	_, statErr := os.Stat(stale)
	assert.True(t, os.IsNotExist(statErr), "previous build output must be removed")
}

func TestResolve_Canceled(t *testing.T) {
	f := newFixture(t)
	f.store.EXPECT().Get(gomock.Any(), gomock.Any()).Return(nil, context.Canceled)
	f.logger.EXPECT().Warn(gomock.Any()).AnyTimes()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.orch.Resolve(ctx, newRequest(t, "linux", false))
	require.ErrorIs(t, err, context.Canceled)
}

func TestResolve_RecordsFailedStepOnSpan(t *testing.T) {
	f := newFixture(t)
	ctrl := gomock.NewController(t)
	tracer := mocks.NewMockTracer(ctrl)
	resolveSpan := mocks.NewMockSpan(ctrl)
	downloadSpan := mocks.NewMockSpan(ctrl)

	spanFor := func(span ports.Span) func(context.Context, string) (context.Context, ports.Span) {
		return func(ctx context.Context, _ string) (context.Context, ports.Span) { return ctx, span }
	}

	tracer.EXPECT().Start(gomock.Any(), "resolve make-4.4.1").DoAndReturn(spanFor(resolveSpan))
	resolveSpan.EXPECT().SetAttribute("kiln.key", "v1-linux-make-4.4.1")
	resolveSpan.EXPECT().SetAttribute("kiln.workaround", false)
	resolveSpan.EXPECT().SetAttribute("kiln.cache_hit", false)
	resolveSpan.EXPECT().RecordError(gomock.Any())
	resolveSpan.EXPECT().End()

	tracer.EXPECT().Start(gomock.Any(), "download").DoAndReturn(spanFor(downloadSpan))
	downloadSpan.EXPECT().RecordError(gomock.Any()).Do(func(err error) {
		assert.ErrorIs(t, err, domain.ErrDownloadFailed)
	})
	downloadSpan.EXPECT().End()

	f.expectMiss()
	f.fetcher.EXPECT().Fetch(gomock.Any(), gomock.Any(), gomock.Any()).
		Return(int64(0), errors.New("connection reset"))

	orch := orchestrator.New(f.settings, f.store, f.fetcher, f.extractor, f.executor, f.patcher, tracer, f.logger)

	_, err := orch.Resolve(context.Background(), newRequest(t, "linux", false))
	require.ErrorIs(t, err, domain.ErrDownloadFailed)
}
