// Package stream maintains a live subscription to a node's system-stat feed.
//
// A Session owns one connection. It sends the subscription query when the
// connection opens and again on every refresh tick, always reading the range
// from one shared cell so a range change made between ticks is what the next
// tick sends. Inbound messages are decoded into metrics.Frame values and
// handed to frame handlers in arrival order.
package stream

import (
	"context"
	stderrors "errors"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/vpspilot/pilot/internal/errors"
	"github.com/vpspilot/pilot/internal/logger"
	"github.com/vpspilot/pilot/internal/metrics"
)

// DefaultRefreshInterval is how often the query is re-sent while open.
const DefaultRefreshInterval = 10 * time.Second

const defaultDialTimeout = 15 * time.Second

// State is the lifecycle state of a Session.
type State int

const (
	StateConnecting State = iota
	StateOpen
	StateClosed
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosed:
		return "closed"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transitions can happen.
func (s State) Terminal() bool {
	return s == StateClosed || s == StateFailed
}

// FrameHandler receives decoded frames. Handlers run on the session's reader
// goroutine, one at a time.
type FrameHandler func(*metrics.Frame)

// StateHandler observes state transitions.
type StateHandler func(State)

// Stats are running counters for a session.
type Stats struct {
	FramesReceived uint64
	FramesDropped  uint64
	QueriesSent    uint64
}

type options struct {
	url           string
	dialer        Dialer
	decoder       *metrics.Decoder
	refresh       time.Duration
	ticks         <-chan time.Time
	dialTimeout   time.Duration
	log           logger.Logger
	frameHandlers []FrameHandler
	stateHandlers []StateHandler
}

// Option configures Open.
type Option func(*options)

// WithURL sets the stream endpoint. Required.
func WithURL(url string) Option {
	return func(o *options) { o.url = url }
}

// WithDialer replaces the default WebSocketDialer.
func WithDialer(d Dialer) Option {
	return func(o *options) { o.dialer = d }
}

// WithDecoder sets the frame decoder (for non-default network field names).
func WithDecoder(d *metrics.Decoder) Option {
	return func(o *options) { o.decoder = d }
}

// WithRefreshInterval sets how often the query is re-sent.
func WithRefreshInterval(d time.Duration) Option {
	return func(o *options) { o.refresh = d }
}

// WithRefreshTicks drives refreshes from ch instead of an internal ticker.
// The refresh interval is ignored.
func WithRefreshTicks(ch <-chan time.Time) Option {
	return func(o *options) { o.ticks = ch }
}

// WithDialTimeout bounds the connection attempt.
func WithDialTimeout(d time.Duration) Option {
	return func(o *options) { o.dialTimeout = d }
}

// WithLogger sets the session logger.
func WithLogger(l logger.Logger) Option {
	return func(o *options) { o.log = l }
}

// WithFrameHandler registers a frame handler before the connection starts,
// so it sees every frame including the first.
func WithFrameHandler(fn FrameHandler) Option {
	return func(o *options) { o.frameHandlers = append(o.frameHandlers, fn) }
}

// WithStateHandler registers a state observer before the connection starts.
// It is called with StateConnecting first.
func WithStateHandler(fn StateHandler) Option {
	return func(o *options) { o.stateHandlers = append(o.stateHandlers, fn) }
}

// Session is a live subscription to one node's stats.
type Session struct {
	id     string
	nodeID int
	opts   options
	log    logger.Logger

	mu            sync.Mutex
	state         State
	desired       metrics.TimeRange
	conn          Conn
	closed        bool
	lastFrame     *metrics.Frame
	frameHandlers []FrameHandler
	stateHandlers []StateHandler

	received atomic.Uint64
	dropped  atomic.Uint64
	queries  atomic.Uint64

	events    chan State
	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
	wg        sync.WaitGroup
	done      chan struct{}
}

// Open validates its arguments and starts connecting in the background.
// The returned session is in StateConnecting; a connection failure shows up
// as a transition to StateFailed, not as an error here.
func Open(nodeID int, initial metrics.TimeRange, opts ...Option) (*Session, error) {
	if nodeID <= 0 {
		return nil, errors.New(errors.ErrConfig,
			"Node id must be a positive integer",
			"List nodes with: pilot nodes")
	}
	if !initial.Valid() {
		return nil, errors.NewInvalidRange(string(initial), metrics.RangeLabels())
	}

	o := options{
		refresh:     DefaultRefreshInterval,
		dialTimeout: defaultDialTimeout,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.url == "" {
		return nil, errors.New(errors.ErrConfig,
			"No stream URL configured",
			"Set server.url in .pilot.yaml or pass --server")
	}
	if o.dialer == nil {
		o.dialer = &WebSocketDialer{}
	}
	if o.decoder == nil {
		o.decoder = metrics.NewDecoder(metrics.DefaultNetworkFields())
	}
	if o.refresh <= 0 {
		o.refresh = DefaultRefreshInterval
	}

	id := uuid.NewString()
	if o.log == nil {
		o.log = logger.NewEnvLogger("[stream " + id[:8] + "]")
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		id:            id,
		nodeID:        nodeID,
		opts:          o,
		log:           o.log,
		state:         StateConnecting,
		desired:       initial,
		frameHandlers: append([]FrameHandler(nil), o.frameHandlers...),
		stateHandlers: append([]StateHandler(nil), o.stateHandlers...),
		events:        make(chan State, 4),
		ctx:           ctx,
		cancel:        cancel,
		done:          make(chan struct{}),
	}
	s.events <- StateConnecting

	s.wg.Add(2)
	go s.dispatch()
	go s.run()
	go func() {
		s.wg.Wait()
		close(s.done)
	}()

	s.log.Debug("opening node %d range %s at %s", nodeID, initial, o.url)
	return s, nil
}

// ID returns the session's unique id.
func (s *Session) ID() string { return s.id }

// NodeID returns the node this session subscribes to.
func (s *Session) NodeID() int { return s.nodeID }

// State returns the current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// TimeRange returns the currently desired range.
func (s *Session) TimeRange() metrics.TimeRange {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.desired
}

// LastFrame returns the most recent frame, or nil before the first one.
func (s *Session) LastFrame() *metrics.Frame {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastFrame
}

// Stats returns the session counters.
func (s *Session) Stats() Stats {
	return Stats{
		FramesReceived: s.received.Load(),
		FramesDropped:  s.dropped.Load(),
		QueriesSent:    s.queries.Load(),
	}
}

// Done is closed once the session is terminal and its goroutines have exited.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// OnFrame registers a frame handler. It sees frames that arrive after it is
// registered; use WithFrameHandler to see the first frame.
func (s *Session) OnFrame(fn FrameHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frameHandlers = append(s.frameHandlers, fn)
}

// OnStateChange registers a state observer for subsequent transitions.
func (s *Session) OnStateChange(fn StateHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stateHandlers = append(s.stateHandlers, fn)
}

// SetTimeRange changes the desired range. While open, the new query goes out
// immediately on the existing connection; otherwise the change is picked up
// by the first query after the connection opens.
func (s *Session) SetTimeRange(r metrics.TimeRange) error {
	if !r.Valid() {
		return errors.NewInvalidRange(string(r), metrics.RangeLabels())
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.desired = r
	if s.state == StateOpen && !s.closed {
		s.sendLocked()
	}
	return nil
}

// Close releases the connection and stops the refresh timer. It is safe to
// call more than once and from any goroutine, including a frame handler.
func (s *Session) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		conn := s.conn
		s.conn = nil
		s.transitionLocked(StateClosed)
		s.mu.Unlock()

		s.cancel()
		if conn != nil {
			err = conn.Close()
		}
		s.log.Debug("closed")
	})
	return err
}

// run dials, then becomes the reader goroutine.
func (s *Session) run() {
	defer s.wg.Done()

	dctx, cancel := context.WithTimeout(s.ctx, s.opts.dialTimeout)
	conn, err := s.opts.dialer.Dial(dctx, s.opts.url)
	cancel()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		if conn != nil {
			_ = conn.Close()
		}
		return
	}
	if err != nil {
		s.transitionLocked(StateFailed)
		s.mu.Unlock()
		s.cancel()
		s.log.Error("connect failed: %v", err)
		return
	}
	s.conn = conn
	s.transitionLocked(StateOpen)
	s.sendLocked()
	s.mu.Unlock()

	s.log.Info("connected to node %d", s.nodeID)

	s.wg.Add(1)
	go s.refreshLoop()

	s.readLoop(conn)
}

func (s *Session) readLoop(conn Conn) {
	for {
		data, err := conn.ReadMessage()
		if err != nil {
			s.handleReadError(conn, err)
			return
		}

		frame, err := s.opts.decoder.Decode(data)
		if err != nil {
			s.dropped.Add(1)
			s.log.Warn("dropping message: %v", err)
			continue
		}
		if frame.NodeID != 0 && frame.NodeID != s.nodeID {
			s.dropped.Add(1)
			s.log.Warn("dropping frame for node %d", frame.NodeID)
			continue
		}
		frame.NodeID = s.nodeID

		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			return
		}
		s.lastFrame = frame
		handlers := append([]FrameHandler(nil), s.frameHandlers...)
		s.mu.Unlock()

		s.received.Add(1)
		for _, h := range handlers {
			h(frame)
		}
	}
}

func (s *Session) handleReadError(conn Conn, err error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.conn = nil
	if stderrors.Is(err, io.EOF) {
		s.transitionLocked(StateClosed)
		s.mu.Unlock()
		s.log.Info("server closed the stream")
	} else {
		s.transitionLocked(StateFailed)
		s.mu.Unlock()
		s.log.Error("stream failed: %v", err)
	}
	s.cancel()
	_ = conn.Close()
}

func (s *Session) refreshLoop() {
	defer s.wg.Done()
	ticks := s.opts.ticks
	if ticks == nil {
		t := time.NewTicker(s.opts.refresh)
		defer t.Stop()
		ticks = t.C
	}
	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticks:
			s.refresh()
		}
	}
}

// refresh re-sends the query with the range current at send time. It does
// nothing once the session is no longer open.
func (s *Session) refresh() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.state != StateOpen {
		return
	}
	s.sendLocked()
}

// sendLocked writes the query on the current connection. Write errors are
// logged; the reader notices a dead connection.
func (s *Session) sendLocked() {
	if s.conn == nil {
		return
	}
	data, err := EncodeQuery(s.nodeID, s.desired)
	if err != nil {
		s.log.Error("encode query: %v", err)
		return
	}
	if err := s.conn.WriteMessage(data); err != nil {
		s.log.Warn("send query: %v", err)
		return
	}
	s.queries.Add(1)
	s.log.Debug("sent %s", data)
}

// transitionLocked moves to a new state and queues the notification.
// Terminal states are final.
func (s *Session) transitionLocked(to State) {
	if s.state.Terminal() || s.state == to {
		return
	}
	s.state = to
	s.events <- to
	if to.Terminal() {
		close(s.events)
	}
}

// dispatch delivers state notifications in order, outside the session lock.
func (s *Session) dispatch() {
	defer s.wg.Done()
	for st := range s.events {
		s.mu.Lock()
		handlers := append([]StateHandler(nil), s.stateHandlers...)
		s.mu.Unlock()
		for _, h := range handlers {
			h(st)
		}
	}
}
