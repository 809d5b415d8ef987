package ui

import (
	"os"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"
)

// Color palette
var (
	PrimaryColor = lipgloss.Color("#7D56F4") // Purple - headers, borders
	SuccessColor = lipgloss.Color("#43BF6D") // Green - on, ok
	ErrorColor   = lipgloss.Color("#FF5555") // Red - errors
	WarningColor = lipgloss.Color("#FFA500") // Orange - busy, unknown
	MutedColor   = lipgloss.Color("#626262") // Gray - secondary info
	TextColor    = lipgloss.Color("#FFFFFF") // White - main content
)

// Layout constants
const (
	MinTerminalWidth = 60  // Minimum supported terminal width
	MaxContentWidth  = 100 // Maximum content width before capping
)

var (
	// TitleStyle is for the dashboard and box titles
	TitleStyle = lipgloss.NewStyle().
			Foreground(TextColor).
			Bold(true)

	// SubtitleStyle is for the device address line
	SubtitleStyle = lipgloss.NewStyle().
			Foreground(MutedColor)

	// ColumnHeaderStyle is for socket table headers
	ColumnHeaderStyle = lipgloss.NewStyle().
				Foreground(MutedColor).
				Bold(true)

	// PowerOnStyle renders an outlet that is on
	PowerOnStyle = lipgloss.NewStyle().
			Foreground(SuccessColor).
			Bold(true)

	// PowerOffStyle renders an outlet that is off
	PowerOffStyle = lipgloss.NewStyle().
			Foreground(MutedColor)

	// PowerUnsetStyle renders an outlet whose state is not known yet
	PowerUnsetStyle = lipgloss.NewStyle().
			Foreground(WarningColor)

	// SelectedRowStyle highlights the row under the cursor
	SelectedRowStyle = lipgloss.NewStyle().
				Foreground(PrimaryColor).
				Bold(true)

	// SuccessTitleStyle is for the success result title
	SuccessTitleStyle = lipgloss.NewStyle().
				Foreground(SuccessColor).
				Bold(true)

	// ErrorTitleStyle is for the error result title
	ErrorTitleStyle = lipgloss.NewStyle().
			Foreground(ErrorColor).
			Bold(true)

	// ErrorMessageStyle is for error message text
	ErrorMessageStyle = lipgloss.NewStyle().
				Foreground(ErrorColor)

	// HintStyle is for troubleshooting text
	HintStyle = lipgloss.NewStyle().
			Foreground(MutedColor)

	// ResultKeyStyle is for result detail keys
	ResultKeyStyle = lipgloss.NewStyle().
			Foreground(MutedColor).
			Width(12)

	// ResultValueStyle is for result detail values
	ResultValueStyle = lipgloss.NewStyle().
				Foreground(TextColor)

	// SpinnerStyle is for the busy indicator
	SpinnerStyle = lipgloss.NewStyle().
			Foreground(PrimaryColor)
)

// Markers
const (
	SuccessMarker = "✓"
	FailureMarker = "✗"
	CursorMarker  = "›"
)

// GetTerminalWidth returns the current terminal width, with fallback
func GetTerminalWidth() int {
	width, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil || width < MinTerminalWidth {
		return MinTerminalWidth
	}
	if width > MaxContentWidth {
		return MaxContentWidth
	}
	return width
}

// BoxStyle returns the border style for dashboards and result boxes
func BoxStyle(width int, color lipgloss.Color) lipgloss.Style {
	return lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(color).
		Width(width-2). // Account for border characters
		Padding(0, 1)
}
