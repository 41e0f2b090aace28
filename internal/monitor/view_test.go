package monitor

import (
	"fmt"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vpspilot/pilot/internal/chart"
	"github.com/vpspilot/pilot/internal/metrics"
	"github.com/vpspilot/pilot/internal/nodeapi"
	"github.com/vpspilot/pilot/internal/stream"
)

var t0 = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

// viewModel builds an open model holding one decoded frame, without a
// session behind it.
func viewModel(t *testing.T, width, height, cores int) Model {
	t.Helper()
	m, err := NewModel(Options{NodeIDs: []int{7}, Open: newHarness(t).open})
	require.NoError(t, err)

	var cpu strings.Builder
	for c := 1; c <= cores; c++ {
		if c > 1 {
			cpu.WriteString(",")
		}
		fmt.Fprintf(&cpu, `"%d": [{"time": "2024-03-01T12:00:00Z", "value": %d}]`, c, c*10)
	}
	payload := fmt.Sprintf(`{"cpu": {%s},
		"mem": [{"time": "2024-03-01T12:00:00Z", "value": 63.5}],
		"net": [{"time": "2024-03-01T12:00:00Z", "recv": 1572864, "sent": 2048}]}`, cpu.String())
	f, err := metrics.NewDecoder(metrics.DefaultNetworkFields()).Decode([]byte(payload))
	require.NoError(t, err)

	m.applyFrame(f)
	m.state = stream.StateOpen
	m.node = &nodeapi.Node{ID: 7, Name: "edge-fra", IP: "10.0.0.7", CPUs: cores, TotalMemory: 8}
	m, _ = update(t, m, tea.WindowSizeMsg{Width: width, Height: height})
	return m
}

func TestView_Initializing(t *testing.T) {
	m, err := NewModel(Options{NodeIDs: []int{1}, Open: newHarness(t).open})
	require.NoError(t, err)
	assert.Equal(t, "Initializing...", m.View())
}

func TestView_Layouts(t *testing.T) {
	tests := []struct {
		name    string
		width   int
		height  int
		want    []string
		notWant []string
	}{
		{
			name: "minimal", width: 60, height: 20,
			want:    []string{"CPU ", "MEM ", "63.5%", "↓ 1.5 MB/s", "↑ 2.0 KB/s"},
			notWant: []string{"╭─"},
		},
		{
			name: "compact", width: 100, height: 30,
			want: []string{"pilot › edge-fra", "10.0.0.7", "● open", "CPU · 2 cores", "avg 15.0%",
				"Memory", "63.5% of 8.0 GB", "Network", "recv", "sent", "1-6 range"},
		},
		{
			name: "standard", width: 140, height: 45,
			want: []string{"CPU · 2 cores", "Memory", "Network", "updated just now · 0 frames"},
		},
		{
			name: "wide", width: 180, height: 45,
			want: []string{"CPU · 2 cores", "Memory", "Network"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			view := viewModel(t, tt.width, tt.height, 2).View()
			for _, w := range tt.want {
				assert.Contains(t, view, w)
			}
			for _, w := range tt.notWant {
				assert.NotContains(t, view, w)
			}
			for i, line := range strings.Split(view, "\n") {
				assert.LessOrEqual(t, lipgloss.Width(line), tt.width, "line %d overflows", i)
			}
		})
	}
}

func TestView_WideSideBySide(t *testing.T) {
	view := viewModel(t, 180, 45, 2).View()
	for _, line := range strings.Split(view, "\n") {
		if strings.Contains(line, "CPU · 2 cores") {
			assert.Contains(t, line, "Memory", "memory header sits beside the CPU header")
			return
		}
	}
	t.Fatal("no CPU header")
}

func TestView_CoreOverflow(t *testing.T) {
	view := viewModel(t, 100, 26, 16).View()
	assert.Contains(t, view, "CPU · 16 cores")
	assert.Regexp(t, `\+\d+ more cores`, view)
}

func TestView_RangeBarHighlightsSelection(t *testing.T) {
	m := viewModel(t, 140, 30, 1)
	m, _ = update(t, m, keyRunes("4"))
	assert.Equal(t, metrics.Range1D, m.TimeRange())
	bar := m.renderRangeBar()
	for _, r := range metrics.Ranges() {
		assert.Contains(t, bar, string(r))
	}
}

func TestView_StatusMessages(t *testing.T) {
	tests := []struct {
		state stream.State
		want  string
	}{
		{stream.StateConnecting, "connecting..."},
		{stream.StateOpen, "waiting for first frame..."},
		{stream.StateClosed, "stream closed, press r to reconnect"},
		{stream.StateFailed, "stream failed"},
	}
	for _, tt := range tests {
		t.Run(tt.state.String(), func(t *testing.T) {
			m, err := NewModel(Options{NodeIDs: []int{1}, Open: newHarness(t).open})
			require.NoError(t, err)
			m.state = tt.state
			m, _ = update(t, m, tea.WindowSizeMsg{Width: 100, Height: 30})
			assert.Contains(t, m.View(), tt.want)
			assert.Contains(t, m.View(), "node 1")
		})
	}
}

func TestView_PlaceholderCores(t *testing.T) {
	m, err := NewModel(Options{NodeIDs: []int{1}, Open: newHarness(t).open})
	require.NoError(t, err)
	m.placeholderCPU = chart.PlaceholderCPUConfig(4)
	m, _ = update(t, m, tea.WindowSizeMsg{Width: 100, Height: 40})

	view := m.View()
	assert.Contains(t, view, "CPU · 4 cores")
	assert.Contains(t, view, "no data")
	assert.Contains(t, view, "--")
}

func TestFormatRate(t *testing.T) {
	tests := []struct {
		in   float64
		want string
	}{
		{0, "0 B/s"},
		{512, "512 B/s"},
		{2048, "2.0 KB/s"},
		{1572864, "1.5 MB/s"},
		{3 * 1024 * 1024 * 1024, "3.0 GB/s"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatRate(tt.in))
	}
}

func TestFirstLine(t *testing.T) {
	assert.Equal(t, "Stream dial failed", firstLine("✗ Stream dial failed\n\n  dial tcp: refused\n"))
	assert.Equal(t, "plain", firstLine("plain"))
}

func TestCPUAverageSeries(t *testing.T) {
	f := &metrics.Frame{CPU: &metrics.CPUFrame{Cores: map[int][]metrics.Sample{
		1: {{Time: t0, Value: 10}},
		2: {{Time: t0, Value: 30}},
	}}}
	assert.Equal(t, []float64{20}, cpuAverageSeries(chart.Project(f).CPU))
}
