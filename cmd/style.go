package cmd

import (
	"fmt"

	"charm.land/lipgloss/v2"
)

var (
	colorPass = lipgloss.Color("#22C55E")
	colorWarn = lipgloss.Color("#F97316")
	colorFail = lipgloss.Color("#F43F5E")
	colorDim  = lipgloss.Color("#94A3B8")
	colorHead = lipgloss.Color("#8B5CF6")
)

var (
	headingStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(colorHead)

	dimStyle = lipgloss.NewStyle().
			Foreground(colorDim)

	cardStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorDim).
			Padding(0, 1)
)

// statusBadge renders a pass/warn/fail status in its color.
func statusBadge(status string) string {
	style := lipgloss.NewStyle().Bold(true)
	switch status {
	case "pass", "compatible":
		style = style.Foreground(colorPass)
	case "warn":
		style = style.Foreground(colorWarn)
	default:
		style = style.Foreground(colorFail)
	}
	return style.Render(status)
}

func heading(s string) {
	fmt.Println(headingStyle.Render(s))
}

func card(s string) {
	fmt.Println(cardStyle.Render(s))
}
