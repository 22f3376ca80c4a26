package style

import (
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/lipgloss"
)

// --- Reusable Colors ---
var (
	colorPink      = lipgloss.Color("205")
	colorDarkGray  = lipgloss.Color("240")
	colorLightGray = lipgloss.Color("229")
	colorBlue      = lipgloss.Color("57")
	colorCyan      = lipgloss.Color("212")
	colorGreen     = lipgloss.Color("42")
	colorYellow    = lipgloss.Color("214")
	colorRed       = lipgloss.Color("196")
)

// --- General Purpose Styles ---
var (
	ErrorStyle = lipgloss.NewStyle().Foreground(colorRed)
	HelpStyle  = lipgloss.NewStyle().Faint(true)
	TitleStyle = lipgloss.NewStyle().Bold(true).Foreground(colorPink)
)

// --- Session Styles ---
var (
	BaseStyle          = lipgloss.NewStyle().BorderStyle(lipgloss.NormalBorder()).BorderForeground(colorDarkGray)
	HighlightFontStyle = lipgloss.NewStyle().Foreground(colorCyan)
	LabelStyle         = lipgloss.NewStyle().Foreground(colorDarkGray).Width(12)
	ValueStyle         = lipgloss.NewStyle().Foreground(colorLightGray)
	ConnectedStyle     = lipgloss.NewStyle().Foreground(colorGreen).Bold(true)
	PendingStyle       = lipgloss.NewStyle().Foreground(colorYellow)
	MutedStyle         = lipgloss.NewStyle().Foreground(colorDarkGray).Strikethrough(true)
)

// --- Chat Styles ---
var (
	UsernameStyle = lipgloss.NewStyle().Foreground(colorCyan).Bold(true)
	ChatTimeStyle = lipgloss.NewStyle().Foreground(colorDarkGray)
)

// --- Common Components ---

// NewSpinner creates a spinner with a consistent style.
func NewSpinner() spinner.Model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(colorPink)
	return s
}

// NewTableStyles returns the default table styles with our selection colours.
func NewTableStyles() table.Styles {
	styles := table.DefaultStyles()
	styles.Selected = styles.Selected.Foreground(colorLightGray).Background(colorBlue).Bold(false)
	return styles
}
