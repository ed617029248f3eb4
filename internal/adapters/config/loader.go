// Package config provides the configuration loader for kiln.
package config

import (
	"bytes"
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"go.trai.ch/kiln/internal/core/domain"
	"go.trai.ch/kiln/internal/core/ports"
	"go.trai.ch/zerr"
	"gopkg.in/yaml.v3"
)

// Environment overrides applied after the configuration file.
const (
	CacheDirEnvVar    = "KILN_CACHE_DIR"
	InstallRootEnvVar = "KILN_INSTALL_ROOT"
)

// Loader implements ports.ConfigLoader using an optional YAML file.
type Loader struct {
	Logger ports.Logger

	getenv       func(string) string
	userCacheDir func() (string, error)
}

// NewLoader creates a new Loader with the given logger.
func NewLoader(logger ports.Logger) *Loader {
	return &Loader{
		Logger:       logger,
		getenv:       os.Getenv,
		userCacheDir: os.UserCacheDir,
	}
}

// Load resolves settings for cwd. The file named by $KILN_CONFIG wins;
// otherwise the nearest kiln.yaml in cwd or a parent directory is used. With
// no file the built-in defaults apply.
func (l *Loader) Load(cwd string) (*domain.Settings, error) {
	cacheDir, err := l.defaultCacheDir()
	if err != nil {
		return nil, err
	}
	settings := domain.DefaultSettings(cacheDir)

	configPath, err := l.findConfiguration(cwd)
	if err != nil {
		return nil, err
	}

	if configPath != "" {
		if l.Logger != nil {
			l.Logger.Info("using configuration " + configPath)
		}
		var kilnfile Kilnfile
		if err := readAndUnmarshalYAML(configPath, &kilnfile); err != nil {
			return nil, zerr.With(err, "path", configPath)
		}
		applyKilnfile(settings, &kilnfile, filepath.Dir(configPath))
	}

	if dir := l.getenv(CacheDirEnvVar); dir != "" {
		settings.CacheDir = filepath.Clean(dir)
	}
	if dir := l.getenv(InstallRootEnvVar); dir != "" {
		settings.InstallRoot = filepath.Clean(dir)
	}

	if err := validate(settings); err != nil {
		if configPath != "" {
			return nil, zerr.With(err, "path", configPath)
		}
		return nil, err
	}

	return settings, nil
}

func (l *Loader) defaultCacheDir() (string, error) {
	base, err := l.userCacheDir()
	if err != nil {
		home, homeErr := os.UserHomeDir()
		if homeErr != nil {
			return "", zerr.Wrap(errors.Join(err, homeErr), "failed to resolve cache directory")
		}
		base = filepath.Join(home, ".cache")
	}
	return filepath.Join(base, domain.CacheDirName), nil
}

func (l *Loader) findConfiguration(cwd string) (string, error) {
	if explicit := l.getenv(domain.ConfigEnvVar); explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", zerr.With(zerr.Wrap(err, domain.ErrConfigReadFailed.Error()), "path", explicit)
		}
		return explicit, nil
	}

	currentDir := cwd
	for {
		candidate := filepath.Join(currentDir, domain.ConfigFileName)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		} else if !errors.Is(err, fs.ErrNotExist) {
			return "", zerr.With(zerr.Wrap(err, domain.ErrConfigReadFailed.Error()), "path", candidate)
		}

		parentDir := filepath.Dir(currentDir)
		if parentDir == currentDir {
			// Reached root
			return "", nil
		}
		currentDir = parentDir
	}
}

func applyKilnfile(s *domain.Settings, k *Kilnfile, configDir string) {
	if k.CacheDir != "" {
		s.CacheDir = resolvePath(configDir, k.CacheDir)
	}
	if k.InstallRoot != "" {
		s.InstallRoot = resolvePath(configDir, k.InstallRoot)
	}
	if k.WorkDir != "" {
		s.WorkDir = resolvePath(configDir, k.WorkDir)
	}
	if k.SchemaVersion != "" {
		s.SchemaVersion = k.SchemaVersion
	}
	if k.Jobs != nil {
		s.Jobs = *k.Jobs
	}
	if k.Patch.Strict != nil {
		s.StrictPatch = *k.Patch.Strict
	}
	for name, tool := range k.Tools {
		s.Tools[name] = domain.ToolSettings{URL: tool.URL}
	}
}

func validate(s *domain.Settings) error {
	if s.Jobs < 1 {
		return zerr.With(domain.ErrInvalidConfig, "jobs", s.Jobs)
	}
	if strings.TrimSpace(s.SchemaVersion) == "" || strings.ContainsAny(s.SchemaVersion, " \t/") {
		return zerr.With(domain.ErrInvalidConfig, "schema_version", s.SchemaVersion)
	}
	for name, tool := range s.Tools {
		if tool.URL != "" && !strings.Contains(tool.URL, "{version}") {
			invalid := zerr.With(domain.ErrInvalidConfig, "tool", name)
			return zerr.With(invalid, "url", tool.URL)
		}
	}
	return nil
}

// resolvePath makes configured paths relative to the configuration file.
func resolvePath(configDir, p string) string {
	if filepath.IsAbs(p) {
		return filepath.Clean(p)
	}
	return filepath.Clean(filepath.Join(configDir, p))
}

// readAndUnmarshalYAML reads a YAML file and unmarshals it into the target struct.
func readAndUnmarshalYAML[T any](configPath string, target *T) error {
	// #nosec G304 -- configPath is discovered by the loader or set by the user
	configFile, err := os.ReadFile(configPath)
	if err != nil {
		return zerr.Wrap(err, domain.ErrConfigReadFailed.Error())
	}

	decoder := yaml.NewDecoder(bytes.NewReader(configFile))
	decoder.KnownFields(true)
	if parseErr := decoder.Decode(target); parseErr != nil && !errors.Is(parseErr, io.EOF) {
		return zerr.Wrap(parseErr, domain.ErrConfigParseFailed.Error())
	}

	return nil
}
