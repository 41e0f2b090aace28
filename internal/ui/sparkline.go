package ui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Sparkline block characters representing 8 vertical levels (lowest to highest).
var sparklineBlocks = []rune("▁▂▃▄▅▆▇█")

// Scale selects how sparkline values map onto the eight block levels.
type Scale int

const (
	// ScalePercent maps 0..100 onto the levels and colors by threshold.
	ScalePercent Scale = iota
	// ScaleAuto stretches min..max of the visible window.
	ScaleAuto
)

// RenderSparkline renders the most recent width values of data. Percent
// sparklines are colored by the last value; auto-scaled ones are cyan.
func RenderSparkline(data []float64, width int, scale Scale) string {
	if len(data) == 0 || width <= 0 {
		return ""
	}
	if len(data) > width {
		data = data[len(data)-width:]
	}

	lo, hi := 0.0, 100.0
	if scale == ScaleAuto {
		lo, hi = data[0], data[0]
		for _, v := range data {
			lo = min(lo, v)
			hi = max(hi, v)
		}
	}

	levels := len(sparklineBlocks)
	var sb strings.Builder
	sb.Grow(len(data) * 3)
	for _, v := range data {
		level := levels / 2
		if hi > lo {
			level = int((v - lo) / (hi - lo) * float64(levels-1))
			level = max(0, min(levels-1, level))
		}
		sb.WriteRune(sparklineBlocks[level])
	}

	color := ColorNeonCyan
	if scale == ScalePercent {
		color = ThresholdColor(data[len(data)-1])
	}
	return lipgloss.NewStyle().Foreground(color).Render(sb.String())
}

// ThresholdColor returns green below 60%, amber below 80%, red above.
func ThresholdColor(percent float64) lipgloss.Color {
	switch {
	case percent >= 80:
		return ColorError
	case percent >= 60:
		return ColorWarning
	default:
		return ColorSuccess
	}
}
