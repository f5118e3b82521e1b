// Package output renders branchscope results as styled terminal text.
package output

import (
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
)

// Palette shared by every renderer.
var (
	ColorPrimary = lipgloss.Color("#7c5cfc")
	ColorSuccess = lipgloss.Color("#66bb6a")
	ColorWarning = lipgloss.Color("#fff59d")
	ColorError   = lipgloss.Color("#ef5350")
	ColorMuted   = lipgloss.Color("#888888")
)

// Styles reused across renderers.
var (
	// StyleHeader is used for section headers and table headings.
	StyleHeader = lipgloss.NewStyle().
			Foreground(ColorPrimary).
			Bold(true)
	StyleSuccess = lipgloss.NewStyle().Foreground(ColorSuccess)
	StyleWarning = lipgloss.NewStyle().Foreground(ColorWarning)
	StyleError   = lipgloss.NewStyle().Foreground(ColorError)
	StyleMuted   = lipgloss.NewStyle().Foreground(ColorMuted)
	StyleBold    = lipgloss.NewStyle().Bold(true)
)

var noColor bool

// SetNoColor swaps every style for an unstyled renderer when disabled is true.
func SetNoColor(disabled bool) {
	noColor = disabled
	if !disabled {
		return
	}
	plain := lipgloss.NewStyle()
	StyleHeader = plain
	StyleSuccess = plain
	StyleWarning = plain
	StyleError = plain
	StyleMuted = plain
	StyleBold = plain
}

// IsNoColor reports whether color output is disabled.
func IsNoColor() bool {
	return noColor
}

// AutoColor disables color when forced or when f is not a terminal.
func AutoColor(forceOff bool, f *os.File) {
	if forceOff || f == nil || !(isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())) {
		SetNoColor(true)
	}
}

// HealthStyle picks the style for a health score band.
func HealthStyle(score int) lipgloss.Style {
	switch {
	case score >= 70:
		return StyleSuccess
	case score >= 40:
		return StyleWarning
	default:
		return StyleError
	}
}
