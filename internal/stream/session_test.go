package stream_test

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vpspilot/pilot/internal/errors"
	"github.com/vpspilot/pilot/internal/logger"
	"github.com/vpspilot/pilot/internal/metrics"
	"github.com/vpspilot/pilot/internal/stream"
	streamtesting "github.com/vpspilot/pilot/internal/stream/testing"
)

const testURL = "ws://backend.test/api/v1/nodes/ws/system-stat"

func memFrame(sec int, v float64) string {
	ts := time.Date(2024, 3, 1, 12, 0, sec, 0, time.UTC).Format(time.RFC3339)
	return fmt.Sprintf(`{"mem":[{"time":%q,"value":%v}]}`, ts, v)
}

func open(t *testing.T, conn *streamtesting.FakeConn, opts ...stream.Option) (*stream.Session, *streamtesting.FakeDialer) {
	t.Helper()
	d := streamtesting.NewFakeDialer(conn)
	base := []stream.Option{
		stream.WithURL(testURL),
		stream.WithDialer(d),
		stream.WithLogger(logger.Noop()),
		stream.WithRefreshInterval(time.Hour),
	}
	s, err := stream.Open(1, metrics.Range5M, append(base, opts...)...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s, d
}

func waitState(t *testing.T, s *stream.Session, want stream.State) {
	t.Helper()
	require.Eventually(t, func() bool { return s.State() == want },
		time.Second, 5*time.Millisecond, "state never became %s (is %s)", want, s.State())
}

func waitDone(t *testing.T, s *stream.Session) {
	t.Helper()
	select {
	case <-s.Done():
	case <-time.After(time.Second):
		t.Fatal("session goroutines did not exit")
	}
}

func ranges(qs []stream.Query) []string {
	out := make([]string, len(qs))
	for i, q := range qs {
		out[i] = q.TimeRange
	}
	return out
}

func TestOpen_Validation(t *testing.T) {
	tests := []struct {
		name   string
		nodeID int
		r      metrics.TimeRange
		opts   []stream.Option
		code   string
	}{
		{"zero node", 0, metrics.Range5M, []stream.Option{stream.WithURL(testURL)}, errors.ErrConfig},
		{"negative node", -3, metrics.Range5M, []stream.Option{stream.WithURL(testURL)}, errors.ErrConfig},
		{"bad range", 1, "1W", []stream.Option{stream.WithURL(testURL)}, errors.ErrRange},
		{"empty range", 1, "", []stream.Option{stream.WithURL(testURL)}, errors.ErrRange},
		{"no url", 1, metrics.Range5M, nil, errors.ErrConfig},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := stream.Open(tt.nodeID, tt.r, tt.opts...)
			require.Error(t, err)
			assert.Nil(t, s)
			assert.True(t, errors.IsCode(err, tt.code), "got %v", err)
		})
	}
}

func TestSession_SendsInitialQueryOnOpen(t *testing.T) {
	conn := streamtesting.NewFakeConn()
	s, d := open(t, conn)

	waitState(t, s, stream.StateOpen)
	require.Eventually(t, func() bool { return len(conn.Queries()) == 1 }, time.Second, 5*time.Millisecond)

	assert.Equal(t, []stream.Query{{ID: 1, TimeRange: "5M"}}, conn.Queries())
	assert.Equal(t, []string{testURL}, d.URLs())
	assert.Equal(t, `{"id":1,"time_range":"5M"}`, string(conn.Written()[0]))
	assert.NotEmpty(t, s.ID())
	assert.Equal(t, 1, s.NodeID())
}

func TestSession_StateHandlerSeesTransitionsInOrder(t *testing.T) {
	var mu sync.Mutex
	var seen []stream.State
	record := func(st stream.State) {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, st)
	}

	conn := streamtesting.NewFakeConn()
	s, _ := open(t, conn, stream.WithStateHandler(record))
	waitState(t, s, stream.StateOpen)

	conn.CloseRemote()
	waitDone(t, s)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []stream.State{stream.StateConnecting, stream.StateOpen, stream.StateClosed}, seen)
}

func TestSession_RefreshUsesLatestRange(t *testing.T) {
	conn := streamtesting.NewFakeConn()
	s, _ := open(t, conn, stream.WithRefreshInterval(10*time.Millisecond))
	waitState(t, s, stream.StateOpen)

	require.NoError(t, s.SetTimeRange(metrics.Range15M))
	require.NoError(t, s.SetTimeRange(metrics.Range1H))
	require.NoError(t, s.SetTimeRange(metrics.Range1D))
	assert.Equal(t, metrics.Range1D, s.TimeRange())

	mark := len(conn.Queries())
	require.Eventually(t, func() bool { return len(conn.Queries()) >= mark+3 }, time.Second, 5*time.Millisecond)

	// every tick after the last change carries the last range
	for _, r := range ranges(conn.Queries()[mark:]) {
		assert.Equal(t, "1D", r)
	}
	qs := ranges(conn.Queries())
	assert.Equal(t, "5M", qs[0])
}

func TestSession_SetTimeRangeSendsImmediately(t *testing.T) {
	conn := streamtesting.NewFakeConn()
	s, _ := open(t, conn)
	waitState(t, s, stream.StateOpen)
	require.Eventually(t, func() bool { return len(conn.Queries()) == 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, s.SetTimeRange(metrics.Range2D))

	assert.Equal(t, []string{"5M", "2D"}, ranges(conn.Queries()))
	assert.Equal(t, uint64(2), s.Stats().QueriesSent)
}

func TestSession_SetTimeRangeWhileConnecting(t *testing.T) {
	conn := streamtesting.NewFakeConn()
	d := streamtesting.NewFakeDialer(conn)
	d.Hold()

	s, err := stream.Open(4, metrics.Range5M,
		stream.WithURL(testURL), stream.WithDialer(d), stream.WithLogger(logger.Noop()))
	require.NoError(t, err)
	defer s.Close()

	assert.Equal(t, stream.StateConnecting, s.State())
	require.NoError(t, s.SetTimeRange(metrics.Range7D))
	assert.Empty(t, conn.Written())

	d.Release()
	waitState(t, s, stream.StateOpen)
	require.Eventually(t, func() bool { return len(conn.Queries()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []stream.Query{{ID: 4, TimeRange: "7D"}}, conn.Queries())
}

func TestSession_SetTimeRangeRejectsInvalid(t *testing.T) {
	conn := streamtesting.NewFakeConn()
	s, _ := open(t, conn)

	err := s.SetTimeRange("1W")
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrRange))
	assert.Equal(t, metrics.Range5M, s.TimeRange())
}

func TestSession_DeliversFramesInOrder(t *testing.T) {
	var mu sync.Mutex
	var got []float64

	conn := streamtesting.NewFakeConn()
	for i := 0; i < 20; i++ {
		conn.Push(memFrame(i, float64(i)))
	}
	s, _ := open(t, conn, stream.WithFrameHandler(func(f *metrics.Frame) {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, f.Memory.Samples[0].Value)
	}))

	require.Eventually(t, func() bool { return s.Stats().FramesReceived == 20 }, time.Second, 5*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, got, 20)
	for i, v := range got {
		assert.Equal(t, float64(i), v)
	}

	last := s.LastFrame()
	require.NotNil(t, last)
	assert.Equal(t, 19.0, last.Memory.Samples[0].Value)
	assert.Equal(t, 1, last.NodeID)
}

func TestSession_OnFrameSeesLaterFrames(t *testing.T) {
	conn := streamtesting.NewFakeConn()
	s, _ := open(t, conn)
	waitState(t, s, stream.StateOpen)

	frames := make(chan *metrics.Frame, 1)
	s.OnFrame(func(f *metrics.Frame) { frames <- f })
	conn.Push(memFrame(0, 7))

	select {
	case f := <-frames:
		assert.Equal(t, 7.0, f.Memory.Samples[0].Value)
	case <-time.After(time.Second):
		t.Fatal("no frame delivered")
	}
}

func TestSession_MalformedFrameIsDropped(t *testing.T) {
	buf := logger.NewBufferLogger()
	var count int
	var mu sync.Mutex

	conn := streamtesting.NewFakeConn()
	conn.Push(`{"cpu": "nope"}`)
	conn.Push(`not json`)
	conn.Push(`{"node_id": 99, "mem": []}`)
	conn.Push(memFrame(0, 1))

	s, _ := open(t, conn,
		stream.WithLogger(buf),
		stream.WithFrameHandler(func(*metrics.Frame) {
			mu.Lock()
			defer mu.Unlock()
			count++
		}))

	require.Eventually(t, func() bool { return s.Stats().FramesReceived == 1 }, time.Second, 5*time.Millisecond)

	assert.Equal(t, stream.StateOpen, s.State())
	assert.Equal(t, uint64(3), s.Stats().FramesDropped)
	assert.True(t, buf.HasLevel("warn"))
	mu.Lock()
	assert.Equal(t, 1, count)
	mu.Unlock()
}

func TestSession_CloseIsIdempotent(t *testing.T) {
	conn := streamtesting.NewFakeConn()
	s, _ := open(t, conn)
	waitState(t, s, stream.StateOpen)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = s.Close()
		}()
	}
	wg.Wait()

	waitDone(t, s)
	assert.Equal(t, stream.StateClosed, s.State())
	assert.Equal(t, 1, conn.CloseCount())
}

func TestSession_NoWritesAfterClose(t *testing.T) {
	conn := streamtesting.NewFakeConn()
	s, _ := open(t, conn, stream.WithRefreshInterval(5*time.Millisecond))
	waitState(t, s, stream.StateOpen)
	require.Eventually(t, func() bool { return len(conn.Written()) >= 2 }, time.Second, time.Millisecond)

	require.NoError(t, s.Close())
	waitDone(t, s)
	n := len(conn.Written())

	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, n, len(conn.Written()))

	// range changes after close are accepted but never sent
	require.NoError(t, s.SetTimeRange(metrics.Range1H))
	assert.Equal(t, n, len(conn.Written()))
}

func TestSession_TickQueuedAtCloseSendsNothing(t *testing.T) {
	conn := streamtesting.NewFakeConn()
	ticks := make(chan time.Time, 1)
	s, _ := open(t, conn, stream.WithRefreshTicks(ticks))
	waitState(t, s, stream.StateOpen)
	require.Eventually(t, func() bool { return len(conn.Written()) == 1 }, time.Second, time.Millisecond)

	ticks <- time.Now()
	require.Eventually(t, func() bool { return len(conn.Written()) == 2 }, time.Second, time.Millisecond)

	require.NoError(t, s.Close())
	// Both the tick and the cancelled context are ready; either may win.
	ticks <- time.Now()
	waitDone(t, s)

	assert.Len(t, conn.Written(), 2)
	assert.Equal(t, uint64(2), s.Stats().QueriesSent)
}

func TestSession_CloseWhileConnectingDiscardsLateConn(t *testing.T) {
	conn := streamtesting.NewFakeConn()
	d := streamtesting.NewFakeDialer(conn)
	d.Hold()

	var mu sync.Mutex
	var seen []stream.State
	s, err := stream.Open(1, metrics.Range5M,
		stream.WithURL(testURL),
		stream.WithDialer(d),
		stream.WithLogger(logger.Noop()),
		stream.WithStateHandler(func(st stream.State) {
			mu.Lock()
			defer mu.Unlock()
			seen = append(seen, st)
		}))
	require.NoError(t, err)

	require.NoError(t, s.Close())
	assert.Equal(t, stream.StateClosed, s.State())

	d.Release()
	waitDone(t, s)

	assert.Equal(t, stream.StateClosed, s.State())
	assert.True(t, conn.Closed())
	assert.Empty(t, conn.Written())
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []stream.State{stream.StateConnecting, stream.StateClosed}, seen)
}

func TestSession_DialFailure(t *testing.T) {
	d := streamtesting.NewFailingDialer(errors.New(errors.ErrTransport, "refused", ""))
	s, err := stream.Open(1, metrics.Range5M,
		stream.WithURL(testURL), stream.WithDialer(d), stream.WithLogger(logger.Noop()))
	require.NoError(t, err)

	waitDone(t, s)
	assert.Equal(t, stream.StateFailed, s.State())
	assert.NoError(t, s.Close())
	assert.Equal(t, stream.StateFailed, s.State())
}

func TestSession_TransportErrorFails(t *testing.T) {
	conn := streamtesting.NewFakeConn()
	s, _ := open(t, conn, stream.WithRefreshInterval(5*time.Millisecond))
	waitState(t, s, stream.StateOpen)

	conn.Fail(fmt.Errorf("connection reset by peer"))
	waitDone(t, s)

	assert.Equal(t, stream.StateFailed, s.State())
	assert.True(t, conn.Closed())
}

func TestSession_ServerCloseStopsTimer(t *testing.T) {
	conn := streamtesting.NewFakeConn()
	s, _ := open(t, conn, stream.WithRefreshInterval(5*time.Millisecond))
	waitState(t, s, stream.StateOpen)

	conn.CloseRemote()
	waitDone(t, s)
	assert.Equal(t, stream.StateClosed, s.State())

	n := len(conn.Written())
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, n, len(conn.Written()))
}

func TestSession_CloseFromFrameHandler(t *testing.T) {
	conn := streamtesting.NewFakeConn()
	conn.Push(memFrame(0, 1))
	conn.Push(memFrame(1, 2))

	var s *stream.Session
	ready := make(chan struct{})
	var calls int
	s, _ = open(t, conn, stream.WithFrameHandler(func(*metrics.Frame) {
		<-ready
		calls++
		_ = s.Close()
	}))
	close(ready)

	waitDone(t, s)
	assert.Equal(t, stream.StateClosed, s.State())
	assert.Equal(t, 1, calls)
}

func TestSession_WriteErrorKeepsSessionOpen(t *testing.T) {
	conn := streamtesting.NewFakeConn()
	buf := logger.NewBufferLogger()
	s, _ := open(t, conn, stream.WithLogger(buf))
	waitState(t, s, stream.StateOpen)

	conn.SetWriteError(fmt.Errorf("broken pipe"))
	require.NoError(t, s.SetTimeRange(metrics.Range1H))

	assert.Equal(t, stream.StateOpen, s.State())
	assert.True(t, buf.HasLevel("warn"))
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "connecting", stream.StateConnecting.String())
	assert.Equal(t, "open", stream.StateOpen.String())
	assert.Equal(t, "closed", stream.StateClosed.String())
	assert.Equal(t, "failed", stream.StateFailed.String())
	assert.True(t, stream.StateFailed.Terminal())
	assert.False(t, stream.StateOpen.Terminal())
}
