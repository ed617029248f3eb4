package logger

import (
	"io"
	"os"

	"github.com/muesli/termenv"
	"golang.org/x/term"
)

// ColorProfile picks the colour profile for w. NO_COLOR disables colour.
// Terminals and CI log viewers render ANSI; plain files get Ascii.
func ColorProfile(w io.Writer) termenv.Profile {
	if os.Getenv("NO_COLOR") != "" {
		return termenv.Ascii
	}
	if isTerminal(w) || isCI() {
		return termenv.ANSI
	}
	return termenv.Ascii
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(interface{ Fd() uintptr })
	if !ok {
		return false
	}
	return term.IsTerminal(int(f.Fd())) //nolint:gosec // file descriptors fit in int
}

func isCI() bool {
	ci := os.Getenv("CI")
	return ci == "true" || ci == "1"
}

// newOutput creates a termenv.Output for w using ColorProfile.
func newOutput(w io.Writer) *termenv.Output {
	if w == nil {
		w = os.Stderr
	}
	return termenv.NewOutput(w,
		termenv.WithProfile(ColorProfile(w)),
		termenv.WithTTY(true),
	)
}
