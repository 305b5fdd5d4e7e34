package cmd

import "github.com/charmbracelet/lipgloss"

var (
	successColor = lipgloss.Color("#10B981") // Green
	warningColor = lipgloss.Color("#F59E0B") // Amber
	errorColor   = lipgloss.Color("#F87171") // Red
	mutedColor   = lipgloss.Color("#9CA3AF") // Gray
	accentColor  = lipgloss.Color("#A78BFA") // Purple

	successStyle = lipgloss.NewStyle().Foreground(successColor)
	warningStyle = lipgloss.NewStyle().Foreground(warningColor)
	errorStyle   = lipgloss.NewStyle().Foreground(errorColor)
	mutedStyle   = lipgloss.NewStyle().Foreground(mutedColor)
	tagStyle     = lipgloss.NewStyle().Foreground(accentColor).Bold(true)

	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(accentColor)
)
