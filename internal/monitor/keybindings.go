package monitor

import (
	tea "github.com/charmbracelet/bubbletea"
	"github.com/vpspilot/pilot/internal/metrics"
)

// Key bindings as constants for consistency.
const (
	KeyQuit       = "q"
	KeyQuitAlt    = "ctrl+c"
	KeyReconnect  = "r"
	KeyNextRange  = "tab"
	KeyPrevRange  = "shift+tab"
	KeyNextNode   = "n"
	KeyPrevNode   = "p"
	KeyCloseHelp  = "esc"
	KeyToggleHelp = "?"
)

// HandleKeyMsg processes keyboard input. It reports whether the key was
// handled.
func (m *Model) HandleKeyMsg(msg tea.KeyMsg) (bool, tea.Cmd) {
	key := msg.String()

	if key == KeyToggleHelp {
		m.showHelp = !m.showHelp
		return true, nil
	}
	if m.showHelp && key == KeyCloseHelp {
		m.showHelp = false
		return true, nil
	}

	if r, ok := rangeForKey(key); ok {
		m.setRange(r)
		return true, nil
	}

	switch key {
	case KeyQuit, KeyQuitAlt:
		m.teardown()
		m.quitting = true
		return true, tea.Quit

	case KeyNextRange:
		m.setRange(m.rng.Next())
		return true, nil

	case KeyPrevRange:
		m.setRange(m.rng.Prev())
		return true, nil

	case KeyNextNode:
		return true, m.cycleNode(1)

	case KeyPrevNode:
		return true, m.cycleNode(-1)

	case KeyReconnect:
		if !m.state.Terminal() {
			return true, nil
		}
		return true, m.connect()
	}

	return false, nil
}

// rangeForKey maps "1".."6" onto the range vocabulary, smallest first.
func rangeForKey(key string) (metrics.TimeRange, bool) {
	if len(key) != 1 || key[0] < '1' || key[0] > '9' {
		return "", false
	}
	ranges := metrics.Ranges()
	i := int(key[0] - '1')
	if i >= len(ranges) {
		return "", false
	}
	return ranges[i], true
}
