package ui

import "github.com/charmbracelet/lipgloss"

const (
	colorAccent = lipgloss.Color("39")
	colorMuted  = lipgloss.Color("241")
	colorAlert  = lipgloss.Color("196")
	colorGreen  = lipgloss.Color("46")
	colorGold   = lipgloss.Color("220")
	colorFelt   = lipgloss.Color("28")
)

var (
	titleStyle  = lipgloss.NewStyle().Foreground(colorAccent).Bold(true).MarginLeft(2)
	helpStyle   = lipgloss.NewStyle().Foreground(colorMuted).Margin(1, 0)
	mutedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	actionStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("205")).Bold(true)
	errorStyle  = lipgloss.NewStyle().Foreground(colorAlert)
	phaseStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("214")).Bold(true)

	cardStyle = lipgloss.NewStyle().
			Background(lipgloss.Color("255")).
			Foreground(lipgloss.Color("0")).
			Border(lipgloss.RoundedBorder()).
			Padding(0, 1).
			Margin(0, 1)
	redCardStyle = cardStyle.Foreground(colorAlert)

	potStyle = lipgloss.NewStyle().
			Border(lipgloss.ThickBorder()).
			BorderForeground(colorGreen).
			Foreground(colorGreen).
			Bold(true).
			Align(lipgloss.Center).
			Padding(0, 2)

	tableStyle = lipgloss.NewStyle().
			Border(lipgloss.DoubleBorder()).
			BorderForeground(colorFelt).
			Padding(1, 2).
			Margin(1)
)

// Seat boxes share padding; the border tells the seat's situation.
var (
	seatStyle     = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 2).Margin(0, 1)
	toActStyle    = seatStyle.Border(lipgloss.ThickBorder()).BorderForeground(colorGreen)
	followedStyle = seatStyle.Border(lipgloss.DoubleBorder()).BorderForeground(colorAccent)
	foldedStyle   = seatStyle.BorderForeground(colorMuted).Foreground(colorMuted)
	winnerStyle   = seatStyle.Border(lipgloss.ThickBorder()).BorderForeground(colorGold)
)
