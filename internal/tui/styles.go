package tui

import "github.com/charmbracelet/lipgloss"

var (
	frost  = lipgloss.AdaptiveColor{Light: "#0B5394", Dark: "#4FA3E0"}
	ice    = lipgloss.AdaptiveColor{Light: "#1F2937", Dark: "#E5F2FB"}
	seeded = lipgloss.AdaptiveColor{Light: "#15803D", Dark: "#4ADE80"}
	busy   = lipgloss.AdaptiveColor{Light: "#B45309", Dark: "#FBBF24"}
	dim    = lipgloss.AdaptiveColor{Light: "#6B7280", Dark: "#8B95A5"}
	shade  = lipgloss.AdaptiveColor{Light: "#E5E7EB", Dark: "#1E2A38"}

	// padded is the base for anything drawn as a horizontal block.
	padded = lipgloss.NewStyle().Padding(0, 1)

	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(frost)
	queryStyle = lipgloss.NewStyle().Italic(true).Foreground(ice)

	normalStyle   = padded
	selectedStyle = padded.Background(shade).Foreground(frost).Bold(true)

	fileStyle  = lipgloss.NewStyle().Foreground(ice)
	seedsStyle = lipgloss.NewStyle().Foreground(seeded).Width(7).Align(lipgloss.Right)
	sizeStyle  = lipgloss.NewStyle().Foreground(dim).Width(10).Align(lipgloss.Right)

	tabActiveStyle   = padded.Background(frost).Foreground(lipgloss.Color("#FFFFFF")).Bold(true)
	tabInactiveStyle = padded.Background(shade).Foreground(dim)
	statusBarStyle   = padded.Background(shade).Foreground(dim)

	helpStyle    = lipgloss.NewStyle().Foreground(dim)
	workingStyle = lipgloss.NewStyle().Foreground(busy).Bold(true)
)
