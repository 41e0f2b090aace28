package ui

import (
	"bytes"
	"errors"
	"os"
	"strings"
	"testing"

	"github.com/charmbracelet/lipgloss"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	DisableColors()
	os.Exit(m.Run())
}

func TestPaletteIsHex(t *testing.T) {
	colors := []lipgloss.Color{
		ColorNeonPink, ColorNeonCyan, ColorNeonPurple, ColorNeonGreen,
		ColorNeonOrange, ColorNeonAmber, ColorDeepVoid, ColorDarkSurface,
		ColorGlassBorder, ColorSuccess, ColorError, ColorWarning, ColorInfo,
		ColorPrimary, ColorSecondary, ColorMuted,
	}
	for _, c := range colors {
		s := string(c)
		require.Len(t, s, 7, s)
		assert.Equal(t, byte('#'), s[0], s)
	}
	assert.Len(t, GradientColors, 4)
}

func TestStyles(t *testing.T) {
	for name, style := range map[string]lipgloss.Style{
		"success": SuccessStyle(),
		"error":   ErrorStyle(),
		"warning": WarningStyle(),
		"info":    InfoStyle(),
		"muted":   MutedStyle(),
	} {
		assert.Equal(t, name, style.Render(name), "ascii profile renders plain text")
	}
}

func TestPrintWarning(t *testing.T) {
	oldStderr := os.Stderr
	r, w, err := os.Pipe()
	require.NoError(t, err)
	os.Stderr = w

	PrintWarning("tunnel dropped")

	w.Close()
	os.Stderr = oldStderr

	var buf bytes.Buffer
	_, _ = buf.ReadFrom(r)
	assert.Equal(t, SymbolWarning+" tunnel dropped\n", buf.String())
}

func TestRenderHeader(t *testing.T) {
	out := RenderHeader(HeaderInfo{Version: "v1.2.0", Server: "http://vps:8000"})
	lines := strings.Split(strings.TrimSuffix(out, "\n"), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "pilot v1.2.0", lines[0])
	assert.Equal(t, "http://vps:8000", lines[1])
	assert.Equal(t, strings.Repeat("━", HeaderWidth), lines[2])

	var buf bytes.Buffer
	PrintHeader(&buf, HeaderInfo{})
	assert.True(t, strings.HasPrefix(buf.String(), "pilot\n"))
}

func TestRenderSparkline(t *testing.T) {
	tests := []struct {
		name  string
		data  []float64
		width int
		scale Scale
		want  string
	}{
		{"empty", nil, 10, ScalePercent, ""},
		{"zero width", []float64{1}, 0, ScalePercent, ""},
		{"percent extremes", []float64{0, 100}, 10, ScalePercent, "▁█"},
		{"percent low values stay low", []float64{1, 2, 3}, 10, ScalePercent, "▁▁▁"},
		{"auto stretches", []float64{10, 20, 30}, 10, ScaleAuto, "▁▄█"},
		{"auto flat is mid", []float64{5, 5}, 10, ScaleAuto, "▅▅"},
		{"keeps most recent", []float64{0, 0, 0, 100}, 2, ScalePercent, "▁█"},
		{"clamps out of range", []float64{-20, 150}, 10, ScalePercent, "▁█"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, RenderSparkline(tt.data, tt.width, tt.scale))
		})
	}
}

func TestThresholdColor(t *testing.T) {
	assert.Equal(t, ColorSuccess, ThresholdColor(59.9))
	assert.Equal(t, ColorWarning, ThresholdColor(60))
	assert.Equal(t, ColorError, ThresholdColor(80))
}

func TestRenderNodesTable(t *testing.T) {
	assert.Contains(t, RenderNodesTable(nil), "No nodes found")

	out := RenderNodesTable([]NodeRow{
		{ID: 1, Name: "edge-fra-1", IP: "10.0.0.5", OS: "ubuntu 24.04", CPUs: 4, MemoryGB: 7.75},
		{ID: 12, Name: "", IP: "10.0.0.6", CPUs: 2},
	})
	for _, want := range []string{"ID", "NAME", "MEMORY", "edge-fra-1", "10.0.0.5", "7.8 GB", "12", "-"} {
		assert.Contains(t, out, want)
	}
}

func TestRenderSimpleTable_Empty(t *testing.T) {
	assert.Empty(t, RenderSimpleTable([]TableColumn{{Title: "A", Width: 3}}, nil))
}

func TestRenderDetails(t *testing.T) {
	out := RenderDetails([]KeyValue{
		{"name", "edge"},
		{"kernel", ""},
		{"ip", "10.0.0.5"},
	})
	assert.Equal(t, "  name  edge\n  ip    10.0.0.5\n", out)
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "abcd…", truncate("abcdefgh", 5))
}

func TestSpinner(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		var buf bytes.Buffer
		err := RunWithSpinner(&buf, "Waiting for first frame", func() error { return nil })
		require.NoError(t, err)
		out := buf.String()
		assert.Contains(t, out, "Waiting for first frame...")
		assert.Contains(t, out, SymbolComplete+" Waiting for first frame ")
		assert.True(t, strings.HasSuffix(out, "s\n"))
	})

	t.Run("failure", func(t *testing.T) {
		var buf bytes.Buffer
		boom := errors.New("boom")
		err := RunWithSpinner(&buf, "Fetching node", func() error { return boom })
		assert.ErrorIs(t, err, boom)
		assert.Contains(t, buf.String(), SymbolFail+" Fetching node")
	})

	t.Run("state and idempotence", func(t *testing.T) {
		var buf bytes.Buffer
		s := NewSpinner("x")
		s.SetOutput(&buf)
		assert.Equal(t, SpinnerPending, s.State())
		s.Start()
		s.Start()
		assert.Equal(t, SpinnerInProgress, s.State())
		s.SetLabel("y")
		assert.Equal(t, "y", s.Label())
		s.Fail()
		s.Success()
		assert.Equal(t, SpinnerFailed, s.State())
		assert.Equal(t, 1, strings.Count(buf.String(), "\n"))
	})
}

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "0.05s", formatDuration(50_000_000))
	assert.Equal(t, "1.5s", formatDuration(1_500_000_000))
}
