package domain

// Substitution replaces every occurrence of Old with New in a file.
type Substitution struct {
	Old string
	New string
}

// Workaround is a hardcoded source patch compensating for a known upstream bug.
type Workaround struct {
	// File is relative to the extracted source directory.
	File          string
	Substitutions []Substitution
}

// GNU make's bundled glob.c only declares its own alloca and stat helpers when
// it is not built against glibc, but glibc 2.27 stopped exporting the
// interface version that the check relies on. Flipping both guards makes the
// fallback declarations apply on glibc.
var makeGlobWorkaround = Workaround{
	File: "glob/glob.c",
	Substitutions: []Substitution{
		{
			Old: "#if !defined __alloca && !defined __GNU_LIBRARY__",
			New: "#if !defined __alloca && defined __GNU_LIBRARY__",
		},
		{
			Old: "#ifndef __GNU_LIBRARY__",
			New: "#ifdef __GNU_LIBRARY__",
		},
	},
}

var workarounds = map[string]Workaround{
	"make": makeGlobWorkaround,
}

// LookupWorkaround returns the source patch registered for a tool.
func LookupWorkaround(toolName string) (Workaround, bool) {
	w, ok := workarounds[toolName]
	return w, ok
}
