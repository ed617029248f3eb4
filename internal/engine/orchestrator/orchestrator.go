// Package orchestrator resolves a build request to an installed binary,
// restoring it from the cache or building it from source.
package orchestrator

import (
	"context"
	"errors"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"go.trai.ch/kiln/internal/core/domain"
	"go.trai.ch/kiln/internal/core/ports"
	"go.trai.ch/zerr"
	"golang.org/x/sync/singleflight"
)

// Orchestrator runs the cache-or-build pipeline.
type Orchestrator struct {
	settings  *domain.Settings
	store     ports.CacheStore
	fetcher   ports.Fetcher
	extractor ports.Extractor
	executor  ports.Executor
	patcher   ports.Patcher
	tracer    ports.Tracer
	logger    ports.Logger

	group singleflight.Group
}

// New creates an Orchestrator.
func New(
	settings *domain.Settings,
	store ports.CacheStore,
	fetcher ports.Fetcher,
	extractor ports.Extractor,
	executor ports.Executor,
	patcher ports.Patcher,
	tracer ports.Tracer,
	logger ports.Logger,
) *Orchestrator {
	return &Orchestrator{
		settings:  settings,
		store:     store,
		fetcher:   fetcher,
		extractor: extractor,
		executor:  executor,
		patcher:   patcher,
		tracer:    tracer,
		logger:    logger,
	}
}

// Resolve returns the installed binary for req.
//
// Windows requests succeed without doing anything and yield an empty path.
// Concurrent calls for the same cache key share one execution.
func (o *Orchestrator) Resolve(ctx context.Context, req domain.BuildRequest) (domain.BuildResult, error) {
	if req.Platform.IsWindows() {
		o.logger.Info("skipping " + req.ArtifactName() + " on Windows runner " + req.OS)
		return domain.BuildResult{}, nil
	}

	key := o.settings.CacheKey(req)
	v, err, _ := o.group.Do(key.String(), func() (any, error) {
		return o.resolve(ctx, req, key)
	})
	if err != nil {
		return domain.BuildResult{}, err
	}
	result, _ := v.(domain.BuildResult)
	return result, nil
}

func (o *Orchestrator) resolve(ctx context.Context, req domain.BuildRequest, key domain.CacheKey) (domain.BuildResult, error) {
	ctx, span := o.tracer.Start(ctx, "resolve "+req.ArtifactName())
	defer span.End()

	span.SetAttribute("kiln.key", key.String())
	span.SetAttribute("kiln.workaround", req.Workaround)

	dest := o.settings.BinaryPath(req)

	hit, err := o.restore(ctx, key, dest)
	if err != nil {
		span.RecordError(err)
		return domain.BuildResult{}, err
	}
	span.SetAttribute("kiln.cache_hit", hit)
	if hit {
		o.logger.Info("restored " + dest + " from cache " + key.String())
		return domain.BuildResult{BinaryPath: dest, FromCache: true}, nil
	}

	o.logger.Info("cache miss for " + key.String() + ", building from source")
	if err := o.build(ctx, req, dest); err != nil {
		span.RecordError(err)
		return domain.BuildResult{}, err
	}

	o.save(ctx, req, key, dest)

	return domain.BuildResult{BinaryPath: dest, FromCache: false}, nil
}

// restore installs the cached binary for key at dest. A lookup failure other
// than a miss is reported and treated as a miss.
func (o *Orchestrator) restore(ctx context.Context, key domain.CacheKey, dest string) (bool, error) {
	blob, err := o.store.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, domain.ErrCacheMiss) {
			o.logger.Warn("cache lookup for " + key.String() + " failed, rebuilding: " + err.Error())
		}
		return false, nil
	}
	defer func() {
		_ = blob.Close()
	}()

	if err := installBinary(blob, dest, domain.ExecPerm); err != nil {
		return false, errors.Join(domain.ErrCopyFailed, zerr.With(err, "path", dest))
	}
	return true, nil
}

func (o *Orchestrator) build(ctx context.Context, req domain.BuildRequest, dest string) error {
	workRoot, cleanup, err := o.workspace(req)
	if err != nil {
		return err
	}
	defer cleanup()

	srcDir := filepath.Join(workRoot, req.ArtifactName())
	url := o.settings.SourceURL(req.ToolName, req.Version)
	archivePath := filepath.Join(workRoot, archiveName(url, req))

	steps := []struct {
		name string
		run  func(context.Context) error
	}{
		{"download", func(ctx context.Context) error { return o.download(ctx, url, archivePath) }},
		{"extract", func(ctx context.Context) error { return o.extract(ctx, archivePath, workRoot, srcDir) }},
		{"configure", func(ctx context.Context) error { return o.configure(ctx, srcDir) }},
		{"patch", func(_ context.Context) error { return o.patch(req, srcDir) }},
		{"build", func(ctx context.Context) error { return o.compile(ctx, srcDir) }},
		{"copy", func(_ context.Context) error { return o.copyBinary(req, srcDir, dest) }},
	}

	for _, step := range steps {
		if err := o.step(ctx, step.name, step.run); err != nil {
			return err
		}
	}
	return nil
}

func (o *Orchestrator) step(ctx context.Context, name string, run func(context.Context) error) error {
	ctx, span := o.tracer.Start(ctx, name)
	defer span.End()

	if err := ctx.Err(); err != nil {
		span.RecordError(err)
		return err
	}
	if err := run(ctx); err != nil {
		span.RecordError(err)
		return err
	}
	return nil
}

// workspace returns the directory the archive is downloaded and extracted
// into. Without a configured work_dir a temporary directory is used and
// removed afterwards.
func (o *Orchestrator) workspace(req domain.BuildRequest) (string, func(), error) {
	if o.settings.WorkDir == "" {
		dir, err := os.MkdirTemp("", "kiln-"+req.ArtifactName()+"-*")
		if err != nil {
			return "", nil, zerr.Wrap(err, "failed to create work directory")
		}
		return dir, func() { _ = os.RemoveAll(dir) }, nil
	}

	dir := o.settings.WorkDir
	if err := os.MkdirAll(dir, domain.DirPerm); err != nil {
		return "", nil, zerr.With(zerr.Wrap(err, "failed to create work directory"), "path", dir)
	}
	srcDir := filepath.Join(dir, req.ArtifactName())
	if err := os.RemoveAll(srcDir); err != nil {
		return "", nil, zerr.With(zerr.Wrap(err, "failed to clear work directory"), "path", srcDir)
	}
	return dir, func() {}, nil
}

func (o *Orchestrator) download(ctx context.Context, url, archivePath string) error {
	o.logger.Info("downloading " + url)

	//nolint:gosec // archivePath is inside kiln's work directory
	f, err := os.Create(archivePath)
	if err != nil {
		return errors.Join(domain.ErrDownloadFailed, zerr.With(zerr.Wrap(err, "failed to create archive file"), "path", archivePath))
	}

	n, err := o.fetcher.Fetch(ctx, url, f)
	closeErr := f.Close()
	if err == nil && n == 0 {
		err = zerr.With(domain.ErrEmptyPayload, "url", url)
	}
	if err == nil && closeErr != nil {
		err = zerr.Wrap(closeErr, "failed to write archive file")
	}
	if err != nil {
		return errors.Join(domain.ErrDownloadFailed, err)
	}
	return nil
}

func (o *Orchestrator) extract(ctx context.Context, archivePath, workRoot, srcDir string) error {
	o.logger.Info("extracting " + filepath.Base(archivePath))

	if err := o.extractor.Extract(ctx, archivePath, workRoot); err != nil {
		return errors.Join(domain.ErrExtractionFailed, err)
	}

	info, err := os.Stat(srcDir)
	if err != nil || !info.IsDir() {
		return errors.Join(domain.ErrExtractionFailed, zerr.With(domain.ErrSourceDirMissing, "path", srcDir))
	}
	return nil
}

func (o *Orchestrator) configure(ctx context.Context, srcDir string) error {
	o.logger.Info("configuring " + filepath.Base(srcDir))

	if err := o.executor.Execute(ctx, srcDir, o.settings.ConfigureArgs()); err != nil {
		return errors.Join(domain.ErrConfigureFailed, err)
	}
	return nil
}

func (o *Orchestrator) patch(req domain.BuildRequest, srcDir string) error {
	if !req.Workaround {
		return nil
	}

	workaround, ok := domain.LookupWorkaround(req.ToolName)
	if !ok {
		return errors.Join(domain.ErrPatchFailed, zerr.With(domain.ErrNoWorkaround, "tool", req.ToolName))
	}

	o.logger.Info("applying workaround to " + workaround.File)
	target := filepath.Join(srcDir, filepath.FromSlash(workaround.File))
	if err := o.patcher.Apply(target, workaround.Substitutions, o.settings.StrictPatch); err != nil {
		return errors.Join(domain.ErrPatchFailed, err)
	}
	return nil
}

func (o *Orchestrator) compile(ctx context.Context, srcDir string) error {
	argv := o.settings.BuildArgs()
	o.logger.Info("building " + filepath.Base(srcDir) + " with " + strings.Join(argv, " "))

	if err := o.executor.Execute(ctx, srcDir, argv); err != nil {
		return errors.Join(domain.ErrBuildFailed, err)
	}
	return nil
}

func (o *Orchestrator) copyBinary(req domain.BuildRequest, srcDir, dest string) error {
	built := filepath.Join(srcDir, req.ToolName)

	info, err := os.Stat(built)
	if err != nil || !info.Mode().IsRegular() {
		return errors.Join(domain.ErrCopyFailed, zerr.With(domain.ErrBinaryMissing, "path", built))
	}

	//nolint:gosec // built is inside kiln's work directory
	f, err := os.Open(built)
	if err != nil {
		return errors.Join(domain.ErrCopyFailed, zerr.With(zerr.Wrap(err, "failed to open built binary"), "path", built))
	}
	defer func() {
		_ = f.Close()
	}()

	if err := installBinary(f, dest, info.Mode().Perm()); err != nil {
		return errors.Join(domain.ErrCopyFailed, zerr.With(err, "path", dest))
	}

	o.logger.Info("installed " + dest)
	return nil
}

// save stores the installed binary. Failures are reported and never fatal.
func (o *Orchestrator) save(ctx context.Context, req domain.BuildRequest, key domain.CacheKey, dest string) {
	err := o.step(ctx, "store", func(ctx context.Context) error {
		//nolint:gosec // dest was just written by kiln
		f, err := os.Open(dest)
		if err != nil {
			return err
		}
		defer func() {
			_ = f.Close()
		}()

		return o.store.Put(ctx, domain.CacheEntry{
			Key:      key,
			ToolName: req.ToolName,
			Version:  req.Version,
			OS:       req.OS,
		}, f)
	})
	if err != nil {
		o.logger.Warn(domain.ErrCacheStoreFailed.Error() + ": " + err.Error())
		return
	}

	o.logger.Info("cached " + dest + " as " + key.String())
}

// installBinary writes r to dest through a temporary file in the same
// directory so that dest is never observed half written.
func installBinary(r io.Reader, dest string, mode os.FileMode) error {
	dir := filepath.Dir(dest)
	if err := os.MkdirAll(dir, domain.DirPerm); err != nil {
		return zerr.Wrap(err, "failed to create install directory")
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(dest)+".tmp-*")
	if err != nil {
		return zerr.Wrap(err, "failed to create temporary file")
	}
	tmpName := tmp.Name()
	defer func() {
		_ = os.Remove(tmpName)
	}()

	if _, err := io.Copy(tmp, r); err != nil {
		_ = tmp.Close()
		return zerr.Wrap(err, "failed to write binary")
	}
	if err := tmp.Close(); err != nil {
		return zerr.Wrap(err, "failed to write binary")
	}
	if err := os.Chmod(tmpName, mode); err != nil {
		return zerr.Wrap(err, "failed to set binary mode")
	}
	if err := os.Rename(tmpName, dest); err != nil {
		return zerr.Wrap(err, "failed to move binary into place")
	}
	return nil
}

// archiveName is the local file name of the downloaded archive.
func archiveName(url string, req domain.BuildRequest) string {
	name := path.Base(strings.TrimRight(strings.SplitN(url, "?", 2)[0], "/"))
	if name == "" || name == "." || name == "/" || name == req.ArtifactName() {
		return req.ArtifactName() + ".archive"
	}
	return name
}
