// Package app implements the application layer for kiln.
package app

import (
	"context"
	"os"
	"strconv"

	"go.trai.ch/kiln/internal/core/domain"
	"go.trai.ch/kiln/internal/core/ports"
	"go.trai.ch/zerr"
)

// GitHubOutputEnvVar names the file GitHub Actions collects step outputs from.
const GitHubOutputEnvVar = "GITHUB_OUTPUT"

// App represents the main application logic.
type App struct {
	settings *domain.Settings
	resolver ports.Resolver
	store    ports.CacheStore
	logger   ports.Logger
	getenv   func(string) string
}

// ResolveOptions carries the invocation flags.
type ResolveOptions struct {
	Tool       string
	Version    string
	OS         string
	Workaround bool
}

// New creates a new App instance.
func New(settings *domain.Settings, resolver ports.Resolver, store ports.CacheStore, logger ports.Logger) *App {
	return &App{
		settings: settings,
		resolver: resolver,
		store:    store,
		logger:   logger,
		getenv:   os.Getenv,
	}
}

// WithGetenv replaces the environment lookup.
func (a *App) WithGetenv(getenv func(string) string) *App {
	a.getenv = getenv
	return a
}

// Resolve restores or builds the requested tool and publishes the result as
// step outputs when running under GitHub Actions.
func (a *App) Resolve(ctx context.Context, opts ResolveOptions) (domain.BuildResult, error) {
	req, err := domain.NewBuildRequest(opts.Tool, opts.Version, opts.OS, opts.Workaround)
	if err != nil {
		return domain.BuildResult{}, err
	}

	result, err := a.resolver.Resolve(ctx, req)
	if err != nil {
		return domain.BuildResult{}, err
	}

	if err := a.writeOutputs(result); err != nil {
		return result, err
	}
	return result, nil
}

// Key returns the cache key a resolve with opts would use.
func (a *App) Key(opts ResolveOptions) (domain.CacheKey, error) {
	req, err := domain.NewBuildRequest(opts.Tool, opts.Version, opts.OS, opts.Workaround)
	if err != nil {
		return "", err
	}
	return a.settings.CacheKey(req), nil
}

// Clean removes every cache entry and reports what was removed.
func (a *App) Clean(ctx context.Context) (domain.CacheStats, error) {
	stats, err := a.store.Stats(ctx)
	if err != nil {
		return domain.CacheStats{}, zerr.Wrap(err, "failed to inspect cache")
	}

	if err := a.store.Clear(ctx); err != nil {
		return domain.CacheStats{}, zerr.Wrap(err, "failed to clear cache")
	}

	a.logger.Info("removed " + strconv.Itoa(stats.Entries) + " cache entries from " + a.settings.CacheDir)
	return stats, nil
}

func (a *App) writeOutputs(result domain.BuildResult) error {
	path := a.getenv(GitHubOutputEnvVar)
	if path == "" {
		return nil
	}

	//nolint:gosec // the path is provided by the CI runner
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, domain.FilePerm)
	if err != nil {
		return zerr.With(zerr.Wrap(err, "failed to open step outputs"), "path", path)
	}

	_, err = f.WriteString(formatOutputs(result))
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return zerr.With(zerr.Wrap(err, "failed to write step outputs"), "path", path)
	}
	return nil
}

func formatOutputs(result domain.BuildResult) string {
	return "binary-path=" + result.BinaryPath + "\n" +
		"cache-hit=" + strconv.FormatBool(result.FromCache) + "\n"
}
