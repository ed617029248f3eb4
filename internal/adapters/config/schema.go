package config

// Kilnfile represents the structure of the kiln.yaml configuration file.
// Pointer fields distinguish an omitted key from its zero value.
type Kilnfile struct {
	CacheDir      string             `yaml:"cache_dir"`
	InstallRoot   string             `yaml:"install_root"`
	WorkDir       string             `yaml:"work_dir"`
	SchemaVersion string             `yaml:"schema_version"`
	Jobs          *int               `yaml:"jobs"`
	Patch         PatchDTO           `yaml:"patch"`
	Tools         map[string]ToolDTO `yaml:"tools"`
}

// PatchDTO configures the source workaround step.
type PatchDTO struct {
	Strict *bool `yaml:"strict"`
}

// ToolDTO overrides per-tool behavior.
type ToolDTO struct {
	URL string `yaml:"url"`
}
