package ui

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// HeaderInfo contains information to display in the header.
type HeaderInfo struct {
	Version string // e.g. "v0.3.0"
	Tagline string
	Server  string // backend URL, shown muted
}

// HeaderWidth is the default width of the header divider
const HeaderWidth = 50

// RenderHeader renders the branded "pilot vX" header with a divider.
func RenderHeader(info HeaderInfo) string {
	titleStyle := lipgloss.NewStyle().Foreground(ColorNeonPink).Bold(true)
	versionStyle := lipgloss.NewStyle().Foreground(ColorNeonCyan)
	dividerStyle := lipgloss.NewStyle().Foreground(ColorGlassBorder)

	var out strings.Builder
	out.WriteString(titleStyle.Render("pilot"))
	if info.Version != "" {
		out.WriteString(" ")
		out.WriteString(versionStyle.Render(info.Version))
	}
	out.WriteString("\n")

	if info.Tagline != "" {
		out.WriteString(lipgloss.NewStyle().Foreground(ColorSecondary).Render(info.Tagline))
		out.WriteString("\n")
	}
	if info.Server != "" {
		out.WriteString(MutedStyle().Render(info.Server))
		out.WriteString("\n")
	}

	out.WriteString(dividerStyle.Render(strings.Repeat("━", HeaderWidth)))
	out.WriteString("\n")
	return out.String()
}

// PrintHeader writes the header to w.
func PrintHeader(w io.Writer, info HeaderInfo) {
	fmt.Fprint(w, RenderHeader(info))
}
