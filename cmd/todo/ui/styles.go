package ui

import "github.com/charmbracelet/lipgloss"

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("63")).
			MarginBottom(1)

	successStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("42"))

	subtleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241"))

	errorStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("196"))

	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("63")).
			Padding(0, 1)

	cellStyle = lipgloss.NewStyle().Padding(0, 1)

	doneStyle = cellStyle.
			Foreground(lipgloss.Color("241")).
			Strikethrough(true)

	overdueStyle = cellStyle.Foreground(lipgloss.Color("196"))

	priorityColors = map[string]lipgloss.Color{
		"high":   lipgloss.Color("203"),
		"medium": lipgloss.Color("214"),
		"low":    lipgloss.Color("109"),
	}
)
