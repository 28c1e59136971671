package style

import (
	"github.com/charmbracelet/lipgloss"
)

// Palette. Every color adapts to the terminal background.
var (
	SecondaryColor = lipgloss.AdaptiveColor{Light: "#5C6370", Dark: "#ABB2BF"}
	HeadingColor   = lipgloss.AdaptiveColor{Light: "#1E1E2E", Dark: "#F5E0DC"}
	TextColor      = lipgloss.AdaptiveColor{Light: "#4C4F69", Dark: "#CDD6F4"}
	MutedColor     = lipgloss.AdaptiveColor{Light: "#8C8FA1", Dark: "#7F849C"}

	SuccessColor = lipgloss.AdaptiveColor{Light: "#40A02B", Dark: "#A6E3A1"}
	ErrorColor   = lipgloss.AdaptiveColor{Light: "#D20F39", Dark: "#F38BA8"}
	WarningColor = lipgloss.AdaptiveColor{Light: "#DF8E1D", Dark: "#F9E2AF"}
	InfoColor    = lipgloss.AdaptiveColor{Light: "#209FB5", Dark: "#74C7EC"}
)

// Per-action colors used for transaction outcomes.
var (
	WrittenColor  = lipgloss.AdaptiveColor{Light: "#1E66F5", Dark: "#89B4FA"}
	RestoredColor = lipgloss.AdaptiveColor{Light: "#8839EF", Dark: "#CBA6F7"}
	StoredColor   = lipgloss.AdaptiveColor{Light: "#179299", Dark: "#94E2D5"}
)
