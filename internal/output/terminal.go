package output

import (
	"io"
	"os"

	"github.com/mattn/go-isatty"
)

// IsTerminal reports whether w is a terminal.
func IsTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// SupportsColors checks if the terminal supports colors. NO_COLOR and
// FORCE_COLOR take precedence over TERM.
func SupportsColors() bool {
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	if os.Getenv("FORCE_COLOR") != "" {
		return true
	}
	term := os.Getenv("TERM")
	return term != "" && term != "dumb"
}

// ColorFor decides whether output to w should be coloured.
func ColorFor(w io.Writer) bool {
	if os.Getenv("FORCE_COLOR") != "" {
		return true
	}
	return IsTerminal(w) && SupportsColors()
}
