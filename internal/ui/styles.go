package ui

import "github.com/charmbracelet/lipgloss"

// Colors used in the application.
var (
	colorPrimary   = lipgloss.Color("62")  // Purple
	colorSecondary = lipgloss.Color("241") // Gray
	colorMuted     = lipgloss.Color("240") // Darker gray
	colorHighlight = lipgloss.Color("212") // Pink
	colorSuccess   = lipgloss.Color("78")  // Green
	colorWarning   = lipgloss.Color("214") // Orange
	colorError     = lipgloss.Color("196") // Red
)

// TitleStyle for the application header.
var TitleStyle = lipgloss.NewStyle().
	Bold(true).
	Foreground(lipgloss.Color("255")).
	Background(colorPrimary).
	Padding(0, 1)

// SectionHeader style for panel headings ("Paper", "References", "Log").
var SectionHeader = lipgloss.NewStyle().
	Bold(true).
	Foreground(colorHighlight).
	MarginTop(1).
	Padding(0, 1)

// LabelStyle for field labels in the metadata panel.
var LabelStyle = lipgloss.NewStyle().
	Foreground(colorSecondary)

// ValueStyle for field values.
var ValueStyle = lipgloss.NewStyle().
	Foreground(lipgloss.Color("255"))

// PlaceholderStyle for "N/A" values.
var PlaceholderStyle = lipgloss.NewStyle().
	Foreground(colorMuted).
	Italic(true)

// SummaryCard style for the total/verified/unverified counters.
var SummaryCard = lipgloss.NewStyle().
	Border(lipgloss.RoundedBorder()).
	BorderForeground(colorPrimary).
	Padding(0, 2).
	MarginRight(1).
	Align(lipgloss.Center)

// SummaryCardValue style for the number inside a card.
var SummaryCardValue = lipgloss.NewStyle().
	Bold(true).
	Foreground(lipgloss.Color("255"))

// VerifiedBadge style for verified references.
var VerifiedBadge = lipgloss.NewStyle().
	Foreground(colorSuccess).
	Bold(true)

// UnverifiedBadge style for references that failed verification.
var UnverifiedBadge = lipgloss.NewStyle().
	Foreground(colorWarning).
	Bold(true)

// LinkStyle for DOI and source links.
var LinkStyle = lipgloss.NewStyle().
	Foreground(colorPrimary).
	Underline(true)

// SuggestionStyle for format suggestions.
var SuggestionStyle = lipgloss.NewStyle().
	Foreground(colorSecondary).
	Italic(true)

// LogLine style for status log entries.
var LogLine = lipgloss.NewStyle().
	Foreground(colorSecondary).
	Padding(0, 1)

// ModelBadge style for the selected model.
var ModelBadge = lipgloss.NewStyle().
	Foreground(colorPrimary).
	Background(lipgloss.Color("236")).
	Padding(0, 1).
	MarginRight(1)

// StatusBar style for the bottom status bar.
var StatusBar = lipgloss.NewStyle().
	Foreground(lipgloss.Color("255")).
	Background(lipgloss.Color("236")).
	Padding(0, 1)

// StatusBarKey style for key hints in status bar.
var StatusBarKey = lipgloss.NewStyle().
	Foreground(colorHighlight).
	Bold(true)

// StatusBarText style for descriptive text in status bar.
var StatusBarText = lipgloss.NewStyle().
	Foreground(colorSecondary)

// ErrorStyle for the error banner.
var ErrorStyle = lipgloss.NewStyle().
	Foreground(colorError).
	Bold(true).
	Padding(0, 1)

// HelpStyle for help text.
var HelpStyle = lipgloss.NewStyle().
	Foreground(colorMuted).
	Padding(1, 2)

// InputBar style for the file path input.
var InputBar = lipgloss.NewStyle().
	Foreground(lipgloss.Color("255")).
	Background(lipgloss.Color("240")).
	Padding(0, 1)

// InputBarPrompt style for the input prompt.
var InputBarPrompt = lipgloss.NewStyle().
	Foreground(colorHighlight).
	Bold(true)

// DebugPanel style for the debug overlay.
var DebugPanel = lipgloss.NewStyle().
	Border(lipgloss.RoundedBorder()).
	BorderForeground(colorPrimary).
	Padding(1, 2)

// DebugHeaderStyle for section headers inside the debug overlay.
var DebugHeaderStyle = lipgloss.NewStyle().
	Bold(true).
	Foreground(colorHighlight)
