package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/lipgloss"
)

// TableColumn defines a table column with name and width.
type TableColumn struct {
	Title string
	Width int
}

// NewTable creates a non-focused Bubbles table with the pilot styling.
func NewTable(columns []TableColumn, rows []table.Row) table.Model {
	cols := make([]table.Column, len(columns))
	for i, c := range columns {
		cols[i] = table.Column{Title: c.Title, Width: c.Width}
	}

	t := table.New(
		table.WithColumns(cols),
		table.WithRows(rows),
		table.WithFocused(false),
		table.WithHeight(len(rows)+1), // +1 for header
	)

	s := table.DefaultStyles()
	s.Header = s.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(ColorGlassBorder).
		BorderBottom(true).
		Bold(true).
		Foreground(ColorNeonCyan)
	s.Cell = s.Cell.Foreground(ColorPrimary)
	// Nothing is selectable in CLI output; render the cursor row like the rest.
	s.Selected = s.Cell

	t.SetStyles(s)
	return t
}

// RenderSimpleTable renders a non-interactive table string.
func RenderSimpleTable(columns []TableColumn, rows [][]string) string {
	if len(rows) == 0 {
		return ""
	}

	tableRows := make([]table.Row, len(rows))
	for i, row := range rows {
		tableRows[i] = table.Row(row)
	}
	return NewTable(columns, tableRows).View()
}

// NodeRow is one line of the node listing.
type NodeRow struct {
	ID       int
	Name     string
	IP       string
	OS       string
	CPUs     int
	MemoryGB float64
}

var nodeColumns = []TableColumn{
	{Title: "ID", Width: 6},
	{Title: "NAME", Width: 22},
	{Title: "IP", Width: 16},
	{Title: "OS", Width: 18},
	{Title: "CPUS", Width: 5},
	{Title: "MEMORY", Width: 9},
}

// RenderNodesTable renders the node listing, or a muted placeholder when
// there is nothing to show.
func RenderNodesTable(rows []NodeRow) string {
	if len(rows) == 0 {
		return MutedStyle().Render("No nodes found") + "\n"
	}

	cells := make([][]string, len(rows))
	for i, r := range rows {
		cells[i] = []string{
			fmt.Sprintf("%d", r.ID),
			truncate(r.Name, nodeColumns[1].Width),
			r.IP,
			truncate(r.OS, nodeColumns[3].Width),
			fmt.Sprintf("%d", r.CPUs),
			formatGB(r.MemoryGB),
		}
	}
	return RenderSimpleTable(nodeColumns, cells) + "\n"
}

// KeyValue is a label/value pair for RenderDetails.
type KeyValue struct {
	Key   string
	Value string
}

// RenderDetails renders aligned "key  value" lines, skipping empty values.
func RenderDetails(pairs []KeyValue) string {
	width := 0
	for _, p := range pairs {
		if p.Value != "" && len(p.Key) > width {
			width = len(p.Key)
		}
	}

	keyStyle := MutedStyle()
	var out strings.Builder
	for _, p := range pairs {
		if p.Value == "" {
			continue
		}
		out.WriteString("  ")
		out.WriteString(keyStyle.Render(padRight(p.Key, width)))
		out.WriteString("  ")
		out.WriteString(p.Value)
		out.WriteString("\n")
	}
	return out.String()
}

func formatGB(gb float64) string {
	if gb <= 0 {
		return "-"
	}
	return fmt.Sprintf("%.1f GB", gb)
}

func truncate(s string, width int) string {
	r := []rune(s)
	if len(r) <= width || width < 2 {
		return s
	}
	return string(r[:width-1]) + "…"
}

// padRight pads a string to the specified visible width.
func padRight(s string, width int) string {
	visibleLen := lipgloss.Width(s)
	if visibleLen >= width {
		return s
	}
	return s + strings.Repeat(" ", width-visibleLen)
}
