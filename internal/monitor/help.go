package monitor

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// HelpBinding represents a single keyboard shortcut entry.
type HelpBinding struct {
	Key  string
	Desc string
}

var helpBindings = []HelpBinding{
	{Key: "1 - 6", Desc: "Select range 5M .. 7D"},
	{Key: "Tab", Desc: "Next range"},
	{Key: "Shift+Tab", Desc: "Previous range"},
	{Key: "n / p", Desc: "Next / previous node"},
	{Key: "r", Desc: "Reconnect after a failure"},
	{Key: "?", Desc: "Toggle this help"},
	{Key: "Esc", Desc: "Close help"},
	{Key: "q / Ctrl+C", Desc: "Quit"},
}

var (
	helpBoxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(ColorAccent).
			Background(ColorSurfaceBg).
			Padding(1, 2)

	helpTitleStyle = lipgloss.NewStyle().
			Foreground(ColorAccent).
			Bold(true).
			MarginBottom(1)

	helpKeyStyle = lipgloss.NewStyle().
			Foreground(ColorTextPrimary).
			Bold(true).
			Width(14)

	helpDescStyle = lipgloss.NewStyle().
			Foreground(ColorTextSecondary)
)

// renderHelpOverlay renders the shortcut box centered on the screen.
func (m Model) renderHelpOverlay() string {
	lines := []string{helpTitleStyle.Render("Keyboard Shortcuts"), ""}
	for _, b := range helpBindings {
		lines = append(lines, helpKeyStyle.Render(b.Key)+helpDescStyle.Render(b.Desc))
	}
	lines = append(lines, "", LabelStyle.Render("Press ? to close"))

	return lipgloss.Place(
		m.width,
		m.height,
		lipgloss.Center,
		lipgloss.Center,
		helpBoxStyle.Render(strings.Join(lines, "\n")),
		lipgloss.WithWhitespaceChars(" "),
		lipgloss.WithWhitespaceForeground(ColorDarkBg),
	)
}
