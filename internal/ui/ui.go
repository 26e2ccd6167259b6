// Package ui holds terminal rendering helpers for the drift CLI.
package ui

import (
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"golang.org/x/term"
)

var (
	passStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	failStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	warnStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	accentStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("12"))
	faintStyle  = lipgloss.NewStyle().Faint(true)
	boldStyle   = lipgloss.NewStyle().Bold(true)
)

// colorEnabled reports whether styled output makes sense: stdout is a
// terminal and it advertises color support.
func colorEnabled() bool {
	if !term.IsTerminal(int(os.Stdout.Fd())) {
		return false
	}
	return termenv.ColorProfile() != termenv.Ascii
}

func render(style lipgloss.Style, s string) string {
	if !colorEnabled() {
		return s
	}
	return style.Render(s)
}

// RenderPass renders s as a success marker.
func RenderPass(s string) string { return render(passStyle, s) }

// RenderFail renders s as a failure marker.
func RenderFail(s string) string { return render(failStyle, s) }

// RenderWarn renders s as a warning marker.
func RenderWarn(s string) string { return render(warnStyle, s) }

// RenderAccent renders s with the accent color.
func RenderAccent(s string) string { return render(accentStyle, s) }

// RenderFaint renders s de-emphasized.
func RenderFaint(s string) string { return render(faintStyle, s) }

// RenderBold renders s emphasized.
func RenderBold(s string) string { return render(boldStyle, s) }
