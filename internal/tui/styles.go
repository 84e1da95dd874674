package tui

import "github.com/charmbracelet/lipgloss"

var (
	headerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("205")).
			Bold(true)

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("243"))

	successStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("42")).
			Bold(true)

	failStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")).
			Bold(true)

	warnStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("214"))
)

// statusMarker returns the styled glyph for a subtask status.
func statusMarker(status string) string {
	switch status {
	case statusDone:
		return successStyle.Render("✓")
	case statusFailed:
		return failStyle.Render("✗")
	case statusReplanning:
		return warnStyle.Render("↻")
	case statusSkipped:
		return dimStyle.Render("-")
	default:
		return dimStyle.Render("·")
	}
}

// levelStyle returns the style for a log level tag.
func levelStyle(level string) lipgloss.Style {
	switch level {
	case "ERROR":
		return failStyle
	case "WARN":
		return warnStyle
	default:
		return dimStyle
	}
}
