package monitor

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Braille patterns use a 2x4 dot matrix per character:
//
//	        Col 0  Col 1
//	Row 0:   ⠁      ⠈     (dots 1, 4)
//	Row 1:   ⠂      ⠐     (dots 2, 5)
//	Row 2:   ⠄      ⠠     (dots 3, 6)
//	Row 3:   ⡀      ⢀     (dots 7, 8)
//
// U+2800 is the empty pattern; dot n sets bit n-1.
const brailleBase = '\u2800'

var sparklineBlocks = []rune{'▁', '▂', '▃', '▄', '▅', '▆', '▇', '█'}

// brailleDots maps [row][col] to the bit for that dot.
var brailleDots = [4][2]uint8{
	{0, 3},
	{1, 4},
	{2, 5},
	{6, 7},
}

// RenderBrailleSparkline plots data on a width x height braille grid scaled
// from 0 to maxVal, two points per character. With an empty color every
// column is colored by its peak as a percentage; otherwise the whole graph
// uses color. Short data is right-aligned so the newest sample sits at the
// right edge.
func RenderBrailleSparkline(data []float64, width, height int, maxVal float64, color lipgloss.Color) string {
	if len(data) == 0 || width <= 0 || height <= 0 {
		return ""
	}
	if maxVal <= 0 {
		maxVal = 1
	}

	totalDots := height * 4
	targetPoints := width * 2
	resampled := data
	if len(data) > targetPoints {
		resampled = resampleData(data, targetPoints)
	}

	grid := make([][]rune, height)
	for i := range grid {
		grid[i] = []rune(strings.Repeat(string(brailleBase), width))
	}
	colMax := make([]float64, width)
	offset := max(targetPoints-len(resampled), 0)

	for i, val := range resampled {
		dotHeight := clampInt(int(normalizeValue(val, 0, maxVal)*float64(totalDots)), totalDots)
		charCol := (i + offset) / 2
		if charCol >= width {
			continue
		}
		colMax[charCol] = max(colMax[charCol], val)
		subCol := (i + offset) % 2

		for dot := 0; dot < dotHeight; dot++ {
			row := height - 1 - dot/4
			subRow := 3 - dot%4
			grid[row][charCol] |= rune(1 << brailleDots[subRow][subCol])
		}
	}

	lines := make([]string, 0, height)
	for _, row := range grid {
		var line strings.Builder
		if color != "" {
			line.WriteString(lipgloss.NewStyle().Foreground(color).Render(string(row)))
		} else {
			for col, ch := range row {
				line.WriteString(lipgloss.NewStyle().Foreground(MetricColor(colMax[col])).Render(string(ch)))
			}
		}
		lines = append(lines, line.String())
	}
	return strings.Join(lines, "\n")
}

// RenderMiniSparkline renders one row of block characters scaled 0..maxVal.
func RenderMiniSparkline(data []float64, width int, maxVal float64) string {
	if len(data) == 0 || width <= 0 {
		return ""
	}
	if maxVal <= 0 {
		maxVal = 1
	}
	top := len(sparklineBlocks) - 1

	var out strings.Builder
	for _, val := range resampleData(data, width) {
		idx := clampInt(int(normalizeValue(val, 0, maxVal)*float64(top)), top)
		out.WriteRune(sparklineBlocks[idx])
	}
	return out.String()
}

// RenderColoredMiniSparkline renders a percentage sparkline colored by the
// newest value.
func RenderColoredMiniSparkline(data []float64, width int) string {
	line := RenderMiniSparkline(data, width, 100)
	if line == "" {
		return ""
	}
	return MetricStyle(data[len(data)-1]).Render(line)
}

// peak returns the largest value across all series, at least 1.
func peak(series ...[]float64) float64 {
	m := 1.0
	for _, s := range series {
		for _, v := range s {
			m = max(m, v)
		}
	}
	return m
}

func normalizeValue(val, minVal, maxVal float64) float64 {
	if maxVal > minVal {
		return (val - minVal) / (maxVal - minVal)
	}
	return 0.5
}

func clampInt(val, maxVal int) int {
	return max(0, min(maxVal, val))
}

// resampleData fits data to targetSize points. Downsampling keeps the max
// of each bucket so spikes survive; upsampling interpolates linearly.
func resampleData(data []float64, targetSize int) []float64 {
	if len(data) == 0 || targetSize <= 0 {
		return nil
	}
	if len(data) == targetSize {
		return data
	}

	result := make([]float64, targetSize)
	if len(data) == 1 {
		for i := range result {
			result[i] = data[0]
		}
		return result
	}

	if len(data) > targetSize {
		bucket := float64(len(data)) / float64(targetSize)
		for i := range result {
			start := int(float64(i) * bucket)
			end := min(int(float64(i+1)*bucket), len(data))
			if start >= end {
				start = end - 1
			}
			m := data[start]
			for _, v := range data[start+1 : end] {
				m = max(m, v)
			}
			result[i] = m
		}
		return result
	}

	scale := float64(len(data)-1) / float64(targetSize-1)
	for i := range result {
		pos := float64(i) * scale
		idx := int(pos)
		if idx >= len(data)-1 {
			result[i] = data[len(data)-1]
			continue
		}
		frac := pos - float64(idx)
		result[i] = data[idx]*(1-frac) + data[idx+1]*frac
	}
	return result
}
