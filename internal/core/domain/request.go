package domain

import (
	"strings"

	"go.trai.ch/zerr"
)

// BuildRequest describes one tool build. It is constructed once per invocation
// and never modified.
type BuildRequest struct {
	// ToolName is the upstream tool to build, e.g. "make".
	ToolName string
	// Version is passed through to the download URL unvalidated.
	Version string
	// Workaround applies the tool's hardcoded source patch before building.
	Workaround bool
	// OS is the raw runner identifier supplied by the caller. It is part of the cache key.
	OS string
	// Platform is OS resolved to its family.
	Platform Platform
}

// NewBuildRequest validates the inputs and resolves the platform once.
func NewBuildRequest(toolName, version, os string, workaround bool) (BuildRequest, error) {
	fields := map[string]string{
		"tool":    toolName,
		"version": version,
		"os":      os,
	}
	for _, name := range []string{"tool", "version", "os"} {
		if strings.TrimSpace(fields[name]) == "" {
			return BuildRequest{}, zerr.With(zerr.Wrap(ErrInvalidRequest, "missing "+name), "missing", name)
		}
	}

	return BuildRequest{
		ToolName:   toolName,
		Version:    version,
		Workaround: workaround,
		OS:         os,
		Platform:   ParsePlatform(os),
	}, nil
}

// ArtifactName returns "<tool>-<version>", used for the working directory and
// the installed binary.
func (r BuildRequest) ArtifactName() string {
	return r.ToolName + "-" + r.Version
}

// BuildResult is the outcome of a resolve.
type BuildResult struct {
	// BinaryPath is where the binary is installed. Empty on the Windows no-op.
	BinaryPath string
	// FromCache reports whether the binary was restored instead of built.
	FromCache bool
}
