package ui

import "charm.land/lipgloss/v2"

// Palette.
var (
	Primary   = lipgloss.Color("#2563EB") // Blue
	Secondary = lipgloss.Color("#0EA5E9") // Sky
	Success   = lipgloss.Color("#16A34A") // Green
	Error     = lipgloss.Color("#DC2626") // Red
	Text      = lipgloss.Color("#F1F5F9") // Off-white
	TextDim   = lipgloss.Color("#94A3B8") // Slate
	Border    = lipgloss.Color("#334155") // Dark slate
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(Primary)

	chapterStyle = lipgloss.NewStyle().
			Foreground(Secondary).
			Bold(true)

	dimStyle = lipgloss.NewStyle().
			Foreground(TextDim)

	correctStyle = lipgloss.NewStyle().
			Foreground(Success).
			Bold(true)

	wrongStyle = lipgloss.NewStyle().
			Foreground(Error).
			Bold(true)

	cardStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(Border).
			Padding(1, 2)
)
