package monitor

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/vpspilot/pilot/internal/chart"
	"github.com/vpspilot/pilot/internal/metrics"
	"github.com/vpspilot/pilot/internal/stream"
)

const (
	cpuLabelWidth = 8
	valueWidth    = 10
)

// renderDashboard renders the complete dashboard view.
func (m Model) renderDashboard() string {
	if m.width == 0 {
		return "Initializing..."
	}
	if m.showHelp {
		return m.renderHelpOverlay()
	}

	parts := []string{m.renderHeader(), m.renderBody()}
	if m.ShowFooter() || m.LayoutMode() != LayoutMinimal {
		parts = append(parts, m.renderFooter())
	}
	return strings.Join(parts, "\n")
}

// renderHeader renders the node name, address, session state and range bar.
func (m Model) renderHeader() string {
	title := NodeNameStyle.Render("pilot") + LabelStyle.Render(" › ") + ValueStyle.Bold(true).Render(m.nodeName())
	if m.node != nil && m.node.IP != "" && m.node.IP != m.nodeName() {
		title += LabelStyle.Render("  " + m.node.IP)
	}
	dot, dotStyle := StateDot(m.state, m.frame)
	title += "  " + dotStyle.Render(dot+" "+m.state.String())

	bar := m.renderRangeBar()
	gap := m.width - 2 - lipgloss.Width(title) - lipgloss.Width(bar)
	if gap < 1 {
		return HeaderStyle.Render(title) + "\n" + " " + bar
	}
	return HeaderStyle.Render(title + strings.Repeat(" ", gap) + bar)
}

func (m Model) renderRangeBar() string {
	var b strings.Builder
	for _, r := range metrics.Ranges() {
		if r == m.rng {
			b.WriteString(RangeActiveStyle.Render(string(r)))
		} else {
			b.WriteString(RangeInactiveStyle.Render(string(r)))
		}
	}
	return b.String()
}

func (m Model) nodeName() string {
	if m.node != nil {
		return m.node.DisplayName()
	}
	return fmt.Sprintf("node %d", m.NodeID())
}

// renderBody lays out the metric sections for the current terminal size.
func (m Model) renderBody() string {
	if msg := m.statusMessage(); msg != "" && m.store.Updated().IsZero() && len(m.cpuConfig()) == 0 {
		return "\n  " + msg + "\n"
	}

	h := m.graphHeight()
	switch m.LayoutMode() {
	case LayoutMinimal:
		return m.renderMinimal()
	case LayoutWide:
		left := m.width / 2
		right := m.width - left
		cpuRows := m.cpuRowBudget(h, m.bodyHeight()-2)
		return lipgloss.JoinHorizontal(lipgloss.Top,
			m.renderCPUSection(left, h, cpuRows),
			lipgloss.JoinVertical(lipgloss.Left,
				m.renderMemorySection(right, h),
				m.renderNetworkSection(right, h),
			),
		)
	default:
		// memory: header + graph + bar + footer, network: header + 2 graphs + footer
		rest := (h + 3) + (2*h + 2) + 2
		cpuRows := m.cpuRowBudget(h, m.bodyHeight()-rest)
		return lipgloss.JoinVertical(lipgloss.Left,
			m.renderCPUSection(m.width, h, cpuRows),
			m.renderMemorySection(m.width, h),
			m.renderNetworkSection(m.width, h),
		)
	}
}

func (m Model) graphHeight() int {
	if m.LayoutMode() >= LayoutStandard && m.height >= HeightStandard {
		return 2
	}
	return 1
}

// bodyHeight is the rows left for sections, or 0 when unknown.
func (m Model) bodyHeight() int {
	if m.height == 0 {
		return 0
	}
	return max(m.height-4, 0)
}

// cpuRowBudget returns how many core rows fit in avail lines, 0 for no limit.
func (m Model) cpuRowBudget(graphHeight, avail int) int {
	if m.height == 0 {
		return 0
	}
	return max(avail/graphHeight, 1)
}

// statusMessage explains why there is nothing to draw, if anything.
func (m Model) statusMessage() string {
	switch m.state {
	case stream.StateFailed:
		msg := "stream failed"
		if m.err != nil {
			msg += ": " + firstLine(m.err.Error())
		}
		return ErrorTextStyle.Render(msg) + LabelStyle.Render("  press r to reconnect")
	case stream.StateClosed:
		return LabelStyle.Render("stream closed, press r to reconnect")
	case stream.StateConnecting:
		return LabelStyle.Render("connecting...")
	default:
		if m.store.Updated().IsZero() {
			return LabelStyle.Render("waiting for first frame...")
		}
	}
	return ""
}

func (m Model) renderCPUSection(width, graphHeight, maxRows int) string {
	configs := m.cpuConfig()
	inner := width - 4
	graphWidth := max(inner-cpuLabelWidth-valueWidth, 4)

	summary := "no data"
	if avg, ok := m.cpuAverage(); ok {
		summary = fmt.Sprintf("avg %.1f%%", avg)
	}
	title := "CPU"
	if len(configs) > 0 {
		title = fmt.Sprintf("CPU · %d cores", len(configs))
	}

	lines := []string{SectionHeader(title, summary, width)}

	shown := configs
	hidden := 0
	if maxRows > 0 && len(configs) > maxRows {
		keep := max(maxRows-1, 1)
		shown, hidden = configs[:keep], len(configs)-keep
	}

	for _, cfg := range shown {
		color := lipgloss.Color(cfg.Color)
		values := m.seriesValues(cfg.Key)

		label := lipgloss.NewStyle().Foreground(color).Width(cpuLabelWidth).Render(cfg.Label)
		graph := RenderBrailleSparkline(values, graphWidth, graphHeight, 100, color)
		if graph == "" {
			graph = LabelStyle.Render(strings.Repeat("·", graphWidth))
		}
		value := lipgloss.NewStyle().Width(valueWidth).Align(lipgloss.Right).Render(m.latestPercent(values))

		row := lipgloss.JoinHorizontal(lipgloss.Top, label, graph, value)
		for _, l := range strings.Split(row, "\n") {
			lines = append(lines, SectionContentLine(l, width))
		}
	}
	if hidden > 0 {
		lines = append(lines, SectionContentLine(LabelStyle.Render(fmt.Sprintf("+%d more cores", hidden)), width))
	}
	if len(configs) == 0 {
		lines = append(lines, SectionContentLine(m.statusMessage(), width))
	}

	lines = append(lines, SectionFooter(width))
	return strings.Join(lines, "\n")
}

func (m Model) renderMemorySection(width, graphHeight int) string {
	values := m.seriesValues(metrics.MemoryKey.String())
	inner := width - 4

	summary := "no data"
	latest, ok := m.store.Latest(metrics.MemoryKey)
	if ok {
		summary = fmt.Sprintf("%.1f%%", latest.Value)
		if m.node != nil && m.node.MemoryGB() > 0 {
			summary += fmt.Sprintf(" of %.1f GB", m.node.MemoryGB())
		}
	}

	lines := []string{SectionHeader("Memory", summary, width)}
	if len(values) == 0 {
		lines = append(lines, SectionContentLine(LabelStyle.Render("waiting for samples"), width))
	} else {
		for _, l := range strings.Split(RenderBrailleSparkline(values, inner, graphHeight, 100, ""), "\n") {
			lines = append(lines, SectionContentLine(l, width))
		}
		lines = append(lines, SectionContentLine(ThinProgressBar(inner, latest.Value), width))
	}
	lines = append(lines, SectionFooter(width))
	return strings.Join(lines, "\n")
}

func (m Model) renderNetworkSection(width, graphHeight int) string {
	recv := m.seriesValues(metrics.NetworkReceivedKey.String())
	sent := m.seriesValues(metrics.NetworkSentKey.String())
	inner := width - 4
	graphWidth := max(inner-cpuLabelWidth-valueWidth, 4)
	scale := peak(recv, sent)

	summary := "no data"
	if len(recv) > 0 || len(sent) > 0 {
		summary = "↓ " + FormatRate(last(recv)) + "  ↑ " + FormatRate(last(sent))
	}

	lines := []string{SectionHeader("Network", summary, width)}
	if len(recv) == 0 && len(sent) == 0 {
		lines = append(lines, SectionContentLine(LabelStyle.Render("waiting for samples"), width))
	} else {
		for _, dir := range []struct {
			label  string
			values []float64
			color  lipgloss.Color
		}{
			{"recv", recv, ColorReceived},
			{"sent", sent, ColorSent},
		} {
			label := lipgloss.NewStyle().Foreground(dir.color).Width(cpuLabelWidth).Render(dir.label)
			graph := RenderBrailleSparkline(dir.values, graphWidth, graphHeight, scale, dir.color)
			if graph == "" {
				graph = LabelStyle.Render(strings.Repeat("·", graphWidth))
			}
			value := lipgloss.NewStyle().Width(valueWidth).Align(lipgloss.Right).Render(FormatRate(last(dir.values)))
			row := lipgloss.JoinHorizontal(lipgloss.Top, label, graph, value)
			for _, l := range strings.Split(row, "\n") {
				lines = append(lines, SectionContentLine(l, width))
			}
		}
	}
	lines = append(lines, SectionFooter(width))
	return strings.Join(lines, "\n")
}

// renderMinimal shows one line per metric for narrow terminals.
func (m Model) renderMinimal() string {
	sparkWidth := max(m.width-24, 4)

	cpu := LabelStyle.Render("CPU ") + "  no data"
	if avg, ok := m.cpuAverage(); ok {
		cpu = LabelStyle.Render("CPU ") + MetricStyle(avg).Render(fmt.Sprintf("%6.1f%%", avg)) +
			" " + RenderColoredMiniSparkline(cpuAverageSeries(m.charts.CPU), sparkWidth)
	}

	mem := LabelStyle.Render("MEM ") + "  no data"
	if latest, ok := m.store.Latest(metrics.MemoryKey); ok {
		values := m.seriesValues(metrics.MemoryKey.String())
		mem = LabelStyle.Render("MEM ") + MetricStyle(latest.Value).Render(fmt.Sprintf("%6.1f%%", latest.Value)) +
			" " + RenderColoredMiniSparkline(values, sparkWidth)
	}

	recv := m.seriesValues(metrics.NetworkReceivedKey.String())
	sent := m.seriesValues(metrics.NetworkSentKey.String())
	net := LabelStyle.Render("NET ") + lipgloss.NewStyle().Foreground(ColorReceived).Render("↓ "+FormatRate(last(recv))) +
		"  " + lipgloss.NewStyle().Foreground(ColorSent).Render("↑ "+FormatRate(last(sent)))

	lines := []string{"", " " + cpu, " " + mem, " " + net}
	if msg := m.statusMessage(); msg != "" {
		lines = append(lines, "", " "+msg)
	}
	return strings.Join(lines, "\n")
}

// renderFooter renders key hints and the age of the last frame.
func (m Model) renderFooter() string {
	hints := []string{"1-6 range", "tab cycle"}
	if len(m.opts.NodeIDs) > 1 {
		hints = append(hints, "n/p node")
	}
	if m.state.Terminal() {
		hints = append(hints, "r reconnect")
	}
	hints = append(hints, "? help", "q quit")

	var age string
	switch s := m.SecondsSinceUpdate(); {
	case s < 0:
		age = "no frames yet"
	case s == 0:
		age = "updated just now"
	default:
		age = fmt.Sprintf("updated %ds ago", s)
	}
	stats := m.Stats()
	right := fmt.Sprintf("%s · %d frames", age, stats.FramesReceived)
	if stats.FramesDropped > 0 {
		right += fmt.Sprintf(" · %d dropped", stats.FramesDropped)
	}

	left := strings.Join(hints, " | ")
	gap := m.width - 2 - lipgloss.Width(left) - lipgloss.Width(right)
	if gap < 1 {
		return FooterStyle.Render(left)
	}
	return FooterStyle.Render(left + strings.Repeat(" ", gap) + right)
}

// seriesValues returns the buffered values of the series named key.
func (m Model) seriesValues(key string) []float64 {
	for _, k := range m.store.Keys() {
		if k.String() == key {
			return m.store.Values(k)
		}
	}
	return nil
}

// cpuAverage is the mean of every core's newest sample.
func (m Model) cpuAverage() (float64, bool) {
	var sum float64
	n := 0
	for _, k := range m.store.Keys() {
		if k.Kind != metrics.KindCPU {
			continue
		}
		if s, ok := m.store.Latest(k); ok {
			sum += s.Value
			n++
		}
	}
	if n == 0 {
		return 0, false
	}
	return sum / float64(n), true
}

func (m Model) latestPercent(values []float64) string {
	if len(values) == 0 {
		return LabelStyle.Render("--")
	}
	v := values[len(values)-1]
	return MetricStyle(v).Render(fmt.Sprintf("%.1f%%", v))
}

// cpuAverageSeries averages the cores of each aligned row.
func cpuAverageSeries(t chart.Table) []float64 {
	out := make([]float64, 0, len(t.Rows))
	for _, r := range t.Rows {
		if len(r.Values) == 0 {
			continue
		}
		var sum float64
		for _, v := range r.Values {
			sum += v
		}
		out = append(out, sum/float64(len(r.Values)))
	}
	return out
}

func last(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	return values[len(values)-1]
}

func firstLine(s string) string {
	s = strings.TrimLeft(s, "✗ \n")
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

// formatBytes formats a byte count as a human-readable string.
func formatBytes(bytes float64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%.0f B", bytes)
	}
	units := []string{"KB", "MB", "GB", "TB", "PB"}
	exp := 0
	v := bytes / unit
	for v >= unit && exp < len(units)-1 {
		v /= unit
		exp++
	}
	return fmt.Sprintf("%.1f %s", v, units[exp])
}

// FormatRate formats a bytes-per-second rate as a human-readable string.
func FormatRate(bytesPerSecond float64) string {
	return formatBytes(bytesPerSecond) + "/s"
}
