package tui

import "github.com/charmbracelet/lipgloss"

// Standard ANSI colors so the palette follows the terminal theme.
var (
	colorBorder  = lipgloss.ANSIColor(8)  // bright black
	colorTitle   = lipgloss.ANSIColor(14) // bright cyan
	colorText    = lipgloss.ANSIColor(7)  // white
	colorDim     = lipgloss.ANSIColor(8)  // bright black
	colorAccent  = lipgloss.ANSIColor(11) // bright yellow
	colorPlaying = lipgloss.ANSIColor(10) // bright green
)

var (
	frameStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorBorder).
			Padding(1, 2).
			Width(panelWidth + 4)

	titleStyle  = lipgloss.NewStyle().Foreground(colorTitle).Bold(true)
	trackStyle  = lipgloss.NewStyle().Foreground(colorAccent)
	timeStyle   = lipgloss.NewStyle().Foreground(colorText)
	statusStyle = lipgloss.NewStyle().Foreground(colorPlaying).Bold(true)
	labelStyle  = lipgloss.NewStyle().Foreground(colorText).Bold(true)
	activeStyle = lipgloss.NewStyle().Foreground(colorAccent).Bold(true)
	dimStyle    = lipgloss.NewStyle().Foreground(colorDim)
	helpStyle   = lipgloss.NewStyle().Foreground(colorDim)
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.ANSIColor(9))

	seekFillStyle = lipgloss.NewStyle().Foreground(colorAccent)
	seekDimStyle  = lipgloss.NewStyle().Foreground(colorDim)
)
