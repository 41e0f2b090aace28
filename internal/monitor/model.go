package monitor

import (
	"context"
	"fmt"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/vpspilot/pilot/internal/chart"
	"github.com/vpspilot/pilot/internal/errors"
	"github.com/vpspilot/pilot/internal/logger"
	"github.com/vpspilot/pilot/internal/metrics"
	"github.com/vpspilot/pilot/internal/nodeapi"
	"github.com/vpspilot/pilot/internal/stream"
)

// LayoutMode represents the responsive layout mode based on terminal size.
type LayoutMode int

const (
	// LayoutMinimal is for terminals < 80 columns: numbers and one-row sparklines
	LayoutMinimal LayoutMode = iota
	// LayoutCompact is for 80-120 columns: stacked sections, one-row core graphs
	LayoutCompact
	// LayoutStandard is for 120-160 columns: stacked sections, taller graphs
	LayoutStandard
	// LayoutWide is for 160+ columns: CPU beside memory and network
	LayoutWide
)

// Width breakpoints for layout modes
const (
	BreakpointCompact  = 80
	BreakpointStandard = 120
	BreakpointWide     = 160
)

// Height breakpoints for layout adjustments
const (
	HeightMinimal  = 24
	HeightStandard = 40
)

const (
	tickInterval    = time.Second
	describeTimeout = 10 * time.Second
	eventBuffer     = 64
)

// OpenFunc opens a stream session. The dashboard appends its own frame and
// state handlers to opts.
type OpenFunc func(nodeID int, r metrics.TimeRange, opts ...stream.Option) (*stream.Session, error)

// DescribeFunc fetches a node descriptor for the header.
type DescribeFunc func(ctx context.Context, nodeID int) (*nodeapi.Node, error)

// Options configures the dashboard.
type Options struct {
	// NodeIDs are the nodes n/p cycle through; the first is shown at start.
	NodeIDs []int
	Range   metrics.TimeRange
	// HistoryWindow caps how much of each series is kept, 0 keeps the full
	// range.
	HistoryWindow time.Duration
	Open          OpenFunc
	Describe      DescribeFunc
	Logger        logger.Logger
}

// connection is the live session for one generation. Handlers of an old
// session may still fire after teardown; stop unblocks them and the
// generation tag on their messages gets them discarded.
type connection struct {
	gen       int
	session   *stream.Session
	stop      chan struct{}
	closeOnce sync.Once
}

func (c *connection) close() {
	c.closeOnce.Do(func() {
		close(c.stop)
		_ = c.session.Close()
	})
}

// Model is the Bubble Tea model for the node dashboard.
type Model struct {
	opts   Options
	log    logger.Logger
	index  int
	rng    metrics.TimeRange
	store  *metrics.Store
	charts chart.Charts

	// placeholderCPU sizes the CPU section from the descriptor until the
	// first frame carries real cores.
	placeholderCPU []chart.SeriesConfig
	node           *nodeapi.Node

	gen    int
	conn   *connection
	events chan tea.Msg
	state  stream.State
	err    error

	lastFrame time.Time
	now       time.Time
	frame     int

	width    int
	height   int
	showHelp bool
	quitting bool
}

type frameMsg struct {
	gen   int
	frame *metrics.Frame
}

type stateMsg struct {
	gen   int
	state stream.State
}

type nodeMsg struct {
	gen  int
	node *nodeapi.Node
	err  error
}

type connectMsg struct{}

type tickMsg time.Time

// NewModel validates opts and builds a model. Nothing connects until Init.
func NewModel(opts Options) (Model, error) {
	if len(opts.NodeIDs) == 0 {
		return Model{}, fmt.Errorf("no node to watch")
	}
	if opts.Open == nil {
		return Model{}, fmt.Errorf("no stream opener")
	}
	switch {
	case opts.Range == "":
		opts.Range = metrics.Range5M
	case !opts.Range.Valid():
		return Model{}, errors.NewInvalidRange(string(opts.Range), metrics.RangeLabels())
	}
	log := opts.Logger
	if log == nil {
		log = logger.Noop()
	}

	m := Model{
		opts:   opts,
		log:    log,
		rng:    opts.Range,
		events: make(chan tea.Msg, eventBuffer),
		state:  stream.StateConnecting,
		now:    time.Now(),
	}
	m.store = metrics.NewStore(m.window(opts.Range))
	return m, nil
}

// Init connects to the first node and starts the clock.
func (m Model) Init() tea.Cmd {
	return tea.Batch(
		func() tea.Msg { return connectMsg{} },
		m.pollCmd(),
		tickCmd(),
	)
}

// Update handles messages and updates the model state.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		handled, cmd := m.HandleKeyMsg(msg)
		if handled {
			return m, cmd
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case connectMsg:
		return m, m.connect()

	case tickMsg:
		m.now = time.Time(msg)
		m.frame++
		return m, tickCmd()

	case frameMsg:
		if msg.gen == m.gen {
			m.applyFrame(msg.frame)
		}
		return m, m.pollCmd()

	case stateMsg:
		if msg.gen == m.gen {
			m.state = msg.state
			m.log.Debug("node %d stream %s", m.NodeID(), msg.state)
		}
		return m, m.pollCmd()

	case nodeMsg:
		if msg.gen != m.gen {
			return m, nil
		}
		if msg.err != nil {
			m.log.Warn("describe node %d: %v", m.NodeID(), msg.err)
			return m, nil
		}
		m.node = msg.node
		if len(m.charts.CPU.Config) == 0 && msg.node != nil {
			m.placeholderCPU = chart.PlaceholderCPUConfig(msg.node.CPUs)
		}
	}

	return m, nil
}

// View renders the dashboard.
func (m Model) View() string {
	if m.quitting {
		return ""
	}
	return m.renderDashboard()
}

// Close tears down the current session. The final model returned by
// tea.Program.Run should be closed by the caller.
func (m Model) Close() {
	if m.conn != nil {
		m.conn.close()
	}
}

func tickCmd() tea.Cmd {
	return tea.Tick(tickInterval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// pollCmd waits for the next session event. Exactly one poll is outstanding
// at a time; each handled event schedules the next.
func (m Model) pollCmd() tea.Cmd {
	events := m.events
	return func() tea.Msg {
		return <-events
	}
}

// connect tears down the current session, then opens one for the selected
// node under a new generation.
func (m *Model) connect() tea.Cmd {
	m.teardown()

	m.gen++
	gen := m.gen
	m.store.Clear()
	m.charts = chart.Charts{}
	m.placeholderCPU = nil
	m.node = nil
	m.err = nil
	m.state = stream.StateConnecting
	m.lastFrame = time.Time{}

	events := m.events
	stop := make(chan struct{})
	send := func(msg tea.Msg) {
		select {
		case events <- msg:
		case <-stop:
		}
	}

	id := m.NodeID()
	session, err := m.opts.Open(id, m.rng,
		stream.WithFrameHandler(func(f *metrics.Frame) { send(frameMsg{gen: gen, frame: f}) }),
		stream.WithStateHandler(func(s stream.State) { send(stateMsg{gen: gen, state: s}) }),
	)
	if err != nil {
		close(stop)
		m.state = stream.StateFailed
		m.err = err
		m.log.Error("open stream for node %d: %v", id, err)
		return nil
	}
	m.conn = &connection{gen: gen, session: session, stop: stop}
	return m.describeCmd(gen, id)
}

func (m *Model) teardown() {
	if m.conn == nil {
		return
	}
	m.conn.close()
	m.conn = nil
}

func (m Model) describeCmd(gen, id int) tea.Cmd {
	describe := m.opts.Describe
	if describe == nil {
		return nil
	}
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), describeTimeout)
		defer cancel()
		node, err := describe(ctx, id)
		return nodeMsg{gen: gen, node: node, err: err}
	}
}

func (m *Model) applyFrame(f *metrics.Frame) {
	if f == nil {
		return
	}
	m.store.Apply(f)
	m.charts = chart.Project(f)
	m.lastFrame = time.Now()
	m.now = m.lastFrame
}

// setRange switches the range on the live session without reconnecting.
func (m *Model) setRange(r metrics.TimeRange) {
	if r == m.rng || !r.Valid() {
		return
	}
	m.rng = r
	m.store.SetWindow(m.window(r))
	if m.conn == nil {
		return
	}
	if err := m.conn.session.SetTimeRange(r); err != nil {
		m.err = err
	}
}

// cycleNode moves by delta through the node list, wrapping, and reconnects.
func (m *Model) cycleNode(delta int) tea.Cmd {
	n := len(m.opts.NodeIDs)
	if n < 2 {
		return nil
	}
	m.index = ((m.index+delta)%n + n) % n
	return m.connect()
}

func (m Model) window(r metrics.TimeRange) time.Duration {
	w := r.Duration()
	if m.opts.HistoryWindow > 0 && m.opts.HistoryWindow < w {
		w = m.opts.HistoryWindow
	}
	return w
}

// NodeID returns the node currently shown.
func (m Model) NodeID() int {
	return m.opts.NodeIDs[m.index]
}

// TimeRange returns the selected range.
func (m Model) TimeRange() metrics.TimeRange {
	return m.rng
}

// State returns the state of the current session.
func (m Model) State() stream.State {
	return m.state
}

// Generation counts connects; messages from older generations are dropped.
func (m Model) Generation() int {
	return m.gen
}

// Stats returns the current session's counters.
func (m Model) Stats() stream.Stats {
	if m.conn == nil {
		return stream.Stats{}
	}
	return m.conn.session.Stats()
}

// SecondsSinceUpdate returns the age of the last frame, or -1 before any.
func (m Model) SecondsSinceUpdate() int {
	if m.lastFrame.IsZero() {
		return -1
	}
	return max(int(m.now.Sub(m.lastFrame).Seconds()), 0)
}

// LayoutMode returns the current layout mode based on terminal width.
func (m Model) LayoutMode() LayoutMode {
	switch {
	case m.width >= BreakpointWide:
		return LayoutWide
	case m.width >= BreakpointStandard:
		return LayoutStandard
	case m.width >= BreakpointCompact:
		return LayoutCompact
	default:
		return LayoutMinimal
	}
}

// ShowFooter returns true if the terminal is tall enough to show the footer.
func (m Model) ShowFooter() bool {
	return m.height >= HeightMinimal
}

// cpuConfig is the frame's CPU config, or the descriptor placeholder.
func (m Model) cpuConfig() []chart.SeriesConfig {
	if len(m.charts.CPU.Config) > 0 {
		return m.charts.CPU.Config
	}
	return m.placeholderCPU
}
