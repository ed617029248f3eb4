package domain

import "strings"

// Platform is the operating system family a build request targets.
type Platform string

const (
	// PlatformLinux covers Linux runners (linux, ubuntu-*).
	PlatformLinux Platform = "linux"
	// PlatformMacOS covers macOS runners (macos-*, darwin, osx).
	PlatformMacOS Platform = "macos"
	// PlatformWindows covers Windows runners (windows-*, win32, win64).
	PlatformWindows Platform = "windows"
	// PlatformOther is any identifier kiln does not recognize.
	PlatformOther Platform = "other"
)

// ParsePlatform resolves a runner or OS identifier to its Platform family.
// Matching is case-insensitive and prefix based so that CI runner labels such
// as "ubuntu-22.04" or "windows-latest" resolve without a lookup table.
func ParsePlatform(os string) Platform {
	id := strings.ToLower(strings.TrimSpace(os))

	switch {
	case id == "":
		return PlatformOther
	case strings.HasPrefix(id, "windows"), strings.HasPrefix(id, "win32"), strings.HasPrefix(id, "win64"):
		return PlatformWindows
	case strings.HasPrefix(id, "macos"), strings.HasPrefix(id, "darwin"), strings.HasPrefix(id, "osx"):
		return PlatformMacOS
	case strings.HasPrefix(id, "linux"), strings.HasPrefix(id, "ubuntu"):
		return PlatformLinux
	default:
		return PlatformOther
	}
}

// IsWindows reports whether p is the Windows family, on which kiln does nothing.
func (p Platform) IsWindows() bool {
	return p == PlatformWindows
}

// String returns the platform name.
func (p Platform) String() string {
	return string(p)
}
