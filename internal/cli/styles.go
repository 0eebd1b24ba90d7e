package cli

import "github.com/charmbracelet/lipgloss"

const (
	colorText   = lipgloss.Color("#E8E3D9")
	colorDim    = lipgloss.Color("#8A8478")
	colorAccent = lipgloss.Color("#3097C6")
	colorBar    = lipgloss.Color("#A6A75D")
	colorTrack  = lipgloss.Color("#5C4F4B")
	colorWarn   = lipgloss.Color("#CC8B3F")
	colorError  = lipgloss.Color("#AC3835")
)

var (
	titleStyle = lipgloss.NewStyle().
			Foreground(colorAccent).
			Bold(true)

	textStyle = lipgloss.NewStyle().
			Foreground(colorText)

	dimStyle = lipgloss.NewStyle().
			Foreground(colorDim)

	barStyle = lipgloss.NewStyle().
			Foreground(colorBar)

	trackStyle = lipgloss.NewStyle().
			Foreground(colorTrack)

	warnStyle = lipgloss.NewStyle().
			Foreground(colorWarn)

	errorStyle = lipgloss.NewStyle().
			Foreground(colorError).
			Bold(true)

	okStyle = lipgloss.NewStyle().
		Foreground(colorBar).
		Bold(true)

	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorTrack).
			Padding(0, 1)
)
