// Package ui renders tend's terminal output: the styled list and
// status lines for one-shot commands, the sign-in form, and the
// interactive board. Presentation glue only; every rule about data
// lives behind the cache and the remote client.
package ui

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
)

// Glyphs for the two completion states.
const (
	GlyphOpen = "☐"
	GlyphDone = "☑"
)

var (
	accentColor lipgloss.Color
	passColor   lipgloss.Color
	failColor   lipgloss.Color
	dimColor    lipgloss.Color

	accentStyle lipgloss.Style
	passStyle   lipgloss.Style
	failStyle   lipgloss.Style
	dimStyle    lipgloss.Style
	titleStyle  lipgloss.Style
	doneStyle   lipgloss.Style
)

func init() {
	if termenv.HasDarkBackground() {
		accentColor = lipgloss.Color("81")  // light cyan
		passColor = lipgloss.Color("78")    // green
		failColor = lipgloss.Color("203")   // red
		dimColor = lipgloss.Color("243")    // grey
	} else {
		accentColor = lipgloss.Color("25")
		passColor = lipgloss.Color("28")
		failColor = lipgloss.Color("124")
		dimColor = lipgloss.Color("245")
	}

	accentStyle = lipgloss.NewStyle().Foreground(accentColor)
	passStyle = lipgloss.NewStyle().Foreground(passColor)
	failStyle = lipgloss.NewStyle().Foreground(failColor)
	dimStyle = lipgloss.NewStyle().Foreground(dimColor)
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(accentColor)
	doneStyle = lipgloss.NewStyle().Strikethrough(true).Foreground(dimColor)
}

// RenderAccent styles s in the accent color.
func RenderAccent(s string) string { return accentStyle.Render(s) }

// RenderPass styles s as a success marker.
func RenderPass(s string) string { return passStyle.Render(s) }

// RenderFail styles s as a failure marker.
func RenderFail(s string) string { return failStyle.Render(s) }

// RenderDim styles s as secondary text.
func RenderDim(s string) string { return dimStyle.Render(s) }

// RenderTitle styles s as a heading.
func RenderTitle(s string) string { return titleStyle.Render(s) }
