// Package tui provides the terminal chat panel for aceorbit.
package tui

import "github.com/charmbracelet/lipgloss"

// Palette
var (
	colorBorder    = lipgloss.Color("#3b4261")
	colorPrimary   = lipgloss.Color("#7aa2f7")
	colorSecondary = lipgloss.Color("#9ece6a")
	colorAccent    = lipgloss.Color("#bb9af7")
	colorError     = lipgloss.Color("#f7768e")
	colorText      = lipgloss.Color("#c0caf5")
	colorTextDim   = lipgloss.Color("#a9b1d6")
	colorTextMute  = lipgloss.Color("#565f89")
)

var (
	headerStyle          lipgloss.Style
	titleStyle           lipgloss.Style
	subtitleStyle        lipgloss.Style
	hintStyle            lipgloss.Style
	messagesAreaStyle    lipgloss.Style
	userLabelStyle       lipgloss.Style
	userBubbleStyle      lipgloss.Style
	assistantLabelStyle  lipgloss.Style
	assistantBubbleStyle lipgloss.Style
	timeStyle            lipgloss.Style
	inputPanelStyle      lipgloss.Style
	typingStyle          lipgloss.Style
	listeningStyle       lipgloss.Style
	errorStyle           lipgloss.Style
	noticeStyle          lipgloss.Style
	statusBarStyle       lipgloss.Style
	statusKeyStyle       lipgloss.Style
	statusDescStyle      lipgloss.Style
)

func init() {
	buildStyles()
}

func buildStyles() {
	headerStyle = lipgloss.NewStyle().
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(colorBorder).
		Padding(0, 2)

	titleStyle = lipgloss.NewStyle().
		Foreground(colorPrimary).
		Bold(true)

	subtitleStyle = lipgloss.NewStyle().
		Foreground(colorTextDim)

	hintStyle = lipgloss.NewStyle().
		Foreground(colorTextMute).
		Italic(true)

	messagesAreaStyle = lipgloss.NewStyle().
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(colorBorder).
		Padding(0, 1)

	userLabelStyle = lipgloss.NewStyle().
		Foreground(colorSecondary).
		Bold(true).
		MarginLeft(4)

	userBubbleStyle = lipgloss.NewStyle().
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(colorSecondary).
		Foreground(colorText).
		Padding(0, 1).
		MarginLeft(4)

	assistantLabelStyle = lipgloss.NewStyle().
		Foreground(colorPrimary).
		Bold(true)

	assistantBubbleStyle = lipgloss.NewStyle().
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(colorPrimary).
		Foreground(colorText).
		Padding(0, 1).
		MarginRight(4)

	timeStyle = lipgloss.NewStyle().
		Foreground(colorTextMute)

	inputPanelStyle = lipgloss.NewStyle().
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(colorBorder).
		Padding(0, 1)

	typingStyle = lipgloss.NewStyle().
		Foreground(colorAccent).
		Italic(true)

	listeningStyle = lipgloss.NewStyle().
		Foreground(colorError).
		Bold(true)

	errorStyle = lipgloss.NewStyle().
		Foreground(colorError).
		Bold(true)

	noticeStyle = lipgloss.NewStyle().
		Foreground(colorSecondary)

	statusBarStyle = lipgloss.NewStyle().
		Foreground(colorTextMute)

	statusKeyStyle = lipgloss.NewStyle().
		Foreground(colorTextDim).
		Bold(true)

	statusDescStyle = lipgloss.NewStyle().
		Foreground(colorTextMute)
}
