package domain

import (
	"path/filepath"
	"strconv"
	"strings"
)

// ToolSettings overrides per-tool behavior.
type ToolSettings struct {
	// URL is a source tarball template with {tool} and {version} placeholders.
	URL string
}

// Settings is the resolved kiln configuration.
type Settings struct {
	CacheDir      string
	InstallRoot   string
	WorkDir       string
	SchemaVersion string
	Jobs          int
	StrictPatch   bool
	Tools         map[string]ToolSettings
}

// DefaultSettings returns the built-in configuration rooted at cacheDir.
func DefaultSettings(cacheDir string) *Settings {
	return &Settings{
		CacheDir:      cacheDir,
		InstallRoot:   DefaultInstallRoot,
		SchemaVersion: DefaultSchemaVersion,
		Jobs:          DefaultJobs,
		StrictPatch:   true,
		Tools:         map[string]ToolSettings{},
	}
}

// SourceURL expands the download URL for a tool version.
func (s *Settings) SourceURL(toolName, version string) string {
	tmpl := DefaultURLTemplate
	if t, ok := s.Tools[toolName]; ok && t.URL != "" {
		tmpl = t.URL
	}
	return strings.NewReplacer("{tool}", toolName, "{version}", version).Replace(tmpl)
}

// BinaryPath is the install destination of a request.
func (s *Settings) BinaryPath(req BuildRequest) string {
	return filepath.Join(s.InstallRoot, req.ArtifactName())
}

// CacheKey derives the cache key of a request.
func (s *Settings) CacheKey(req BuildRequest) CacheKey {
	return NewCacheKey(s.SchemaVersion, req.OS, req.ToolName, req.Version)
}

// BuildArgs is the native build command line.
func (s *Settings) BuildArgs() []string {
	return []string{"make", "-j", strconv.Itoa(s.Jobs)}
}

// ConfigureArgs is the configure command line.
func (s *Settings) ConfigureArgs() []string {
	return []string{"./configure"}
}
