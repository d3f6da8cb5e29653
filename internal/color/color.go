// Package color decides whether styled output is appropriate and forces the
// matching terminal color profile. Since stdout carries the MCP transport,
// human-facing output goes to stderr, so detection checks stderr.
package color

import (
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
)

// Enabled reports whether colors should be used for the given mode
// (auto, always, never).
func Enabled(mode string) bool {
	switch mode {
	case "always":
		return true
	case "never":
		return false
	case "auto":
		if info, _ := os.Stderr.Stat(); (info.Mode() & os.ModeCharDevice) != 0 {
			if os.Getenv("NO_COLOR") != "" {
				return false
			}
			return true
		}
		return false
	default:
		return true
	}
}

// ConfigureProfile forces the global lipgloss color profile for the given
// mode. Must run before any lipgloss or glamour rendering.
//
// "always" forces TrueColor so styling survives piped output; "never" forces
// Ascii; "auto" leaves lipgloss to its own TTY detection.
func ConfigureProfile(mode string) {
	switch mode {
	case "always":
		lipgloss.SetColorProfile(termenv.TrueColor)
	case "never":
		lipgloss.SetColorProfile(termenv.Ascii)
	}
}
