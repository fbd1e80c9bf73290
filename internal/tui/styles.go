package tui

import "github.com/charmbracelet/lipgloss"

var (
	colorMuted  = lipgloss.Color("#636B78")
	colorAccent = lipgloss.Color("#D19A66")
	colorRed    = lipgloss.Color("#E06C75")
	colorBorder = lipgloss.Color("#3F4451")
)

var (
	titleStyle = lipgloss.NewStyle().
			Foreground(colorAccent).
			Bold(true)

	dimStyle = lipgloss.NewStyle().
			Foreground(colorMuted)

	cursorStyle = lipgloss.NewStyle().
			Foreground(colorAccent).
			Bold(true)

	currentStyle = lipgloss.NewStyle().
			Bold(true)

	errStyle = lipgloss.NewStyle().
			Foreground(colorRed)

	panelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorBorder).
			Padding(0, 1)
)
