package monitor

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/vpspilot/pilot/internal/stream"
)

// Dashboard color palette
const (
	ColorDarkBg    = lipgloss.Color("#0A0A0F")
	ColorSurfaceBg = lipgloss.Color("#12121A")
	ColorBorder    = lipgloss.Color("#2A2A4A")

	ColorHealthy  = lipgloss.Color("#39FF14")
	ColorWarning  = lipgloss.Color("#FFAA00")
	ColorCritical = lipgloss.Color("#FF0055")

	ColorTextPrimary   = lipgloss.Color("#FFFFFF")
	ColorTextSecondary = lipgloss.Color("#B4B4D0")
	ColorTextMuted     = lipgloss.Color("#6B6B8D")

	ColorAccent = lipgloss.Color("#FF2E97") // neon pink
	ColorGraph  = lipgloss.Color("#00FFFF") // neon cyan

	// Network direction colors.
	ColorReceived = ColorGraph
	ColorSent     = ColorAccent
)

// Thresholds for metric severity levels
const (
	WarningThreshold  = 70.0
	CriticalThreshold = 90.0
)

var (
	HeaderStyle = lipgloss.NewStyle().
			Foreground(ColorTextPrimary).
			Bold(true).
			Padding(0, 1)

	FooterStyle = lipgloss.NewStyle().
			Foreground(ColorTextMuted).
			Padding(0, 1)

	NodeNameStyle = lipgloss.NewStyle().
			Foreground(ColorAccent).
			Bold(true)

	LabelStyle = lipgloss.NewStyle().
			Foreground(ColorTextSecondary)

	ValueStyle = lipgloss.NewStyle().
			Foreground(ColorTextPrimary)

	RangeActiveStyle = lipgloss.NewStyle().
				Foreground(ColorDarkBg).
				Background(ColorGraph).
				Bold(true).
				Padding(0, 1)

	RangeInactiveStyle = lipgloss.NewStyle().
				Foreground(ColorTextMuted).
				Padding(0, 1)

	ErrorTextStyle = lipgloss.NewStyle().
			Foreground(ColorCritical)
)

// State glyphs for the header dot.
const (
	StateDotConnecting = "◐"
	StateDotOpen       = "●"
	StateDotClosed     = "○"
	StateDotFailed     = "◌"
)

// ConnectingSpinnerFrames animate the dot while a session connects.
var ConnectingSpinnerFrames = []string{"◐", "◓", "◑", "◒"}

// StateDot returns the glyph and style for a session state. frame advances
// the connecting animation.
func StateDot(s stream.State, frame int) (string, lipgloss.Style) {
	switch s {
	case stream.StateOpen:
		return StateDotOpen, lipgloss.NewStyle().Foreground(ColorHealthy)
	case stream.StateClosed:
		return StateDotClosed, lipgloss.NewStyle().Foreground(ColorTextMuted)
	case stream.StateFailed:
		return StateDotFailed, lipgloss.NewStyle().Foreground(ColorCritical)
	default:
		return ConnectingSpinnerFrames[frame%len(ConnectingSpinnerFrames)],
			lipgloss.NewStyle().Foreground(ColorWarning)
	}
}

// MetricColor returns the color for a percentage: green < 70%, amber < 90%,
// red above.
func MetricColor(percent float64) lipgloss.Color {
	switch {
	case percent >= CriticalThreshold:
		return ColorCritical
	case percent >= WarningThreshold:
		return ColorWarning
	default:
		return ColorHealthy
	}
}

// MetricStyle returns a style colored for the metric.
func MetricStyle(percent float64) lipgloss.Style {
	return lipgloss.NewStyle().Foreground(MetricColor(percent))
}

// ThinProgressBar renders ━ for the filled part and ─ for the rest.
func ThinProgressBar(width int, percent float64) string {
	if width < 1 {
		width = 1
	}
	percent = clampFloat(percent, 0, 100)
	filled := min(int(percent/100.0*float64(width)), width)

	bar := strings.Repeat("━", filled) + strings.Repeat("─", width-filled)
	return MetricStyle(percent).Render(bar)
}

// SectionHeader renders ╭─ Title ──────── Value ╮ at the given width.
func SectionHeader(title, value string, width int) string {
	if width < 10 {
		width = 10
	}

	leftWidth := 3 + lipgloss.Width(title) + 1
	rightWidth := 1 + lipgloss.Width(value) + 2
	fillWidth := max(width-leftWidth-rightWidth, 1)

	borderStyle := lipgloss.NewStyle().Foreground(ColorBorder)
	titleStyle := lipgloss.NewStyle().Foreground(ColorAccent).Bold(true)
	valueStyle := lipgloss.NewStyle().Foreground(ColorGraph).Bold(true)

	return borderStyle.Render("╭─ ") +
		titleStyle.Render(title) +
		borderStyle.Render(" "+strings.Repeat("─", fillWidth)+" ") +
		valueStyle.Render(value) +
		borderStyle.Render(" ╮")
}

// SectionFooter renders the bottom border of a section.
func SectionFooter(width int) string {
	if width < 2 {
		width = 2
	}
	return lipgloss.NewStyle().Foreground(ColorBorder).Render("╰" + strings.Repeat("─", width-2) + "╯")
}

// SectionContentLine renders │ content │ padded to width.
func SectionContentLine(content string, width int) string {
	if width < 4 {
		width = 4
	}
	border := lipgloss.NewStyle().Foreground(ColorBorder).Render("│")
	padding := max(width-4-lipgloss.Width(content), 0)
	return border + " " + content + strings.Repeat(" ", padding) + " " + border
}

func clampFloat(v, lo, hi float64) float64 {
	return max(lo, min(hi, v))
}
