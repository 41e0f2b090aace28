package stream_test

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vpspilot/pilot/internal/devserver"
	"github.com/vpspilot/pilot/internal/errors"
	"github.com/vpspilot/pilot/internal/logger"
	"github.com/vpspilot/pilot/internal/metrics"
	"github.com/vpspilot/pilot/internal/stream"
)

func TestSession_AgainstDevServer(t *testing.T) {
	backend := devserver.New(devserver.Options{Logger: logger.Noop()})
	srv := httptest.NewServer(backend.Handler())
	defer srv.Close()

	url, err := stream.StreamURL(srv.URL, devserver.APIPrefix, devserver.StreamPath)
	require.NoError(t, err)

	frames := make(chan *metrics.Frame, 8)
	s, err := stream.Open(2, metrics.Range15M,
		stream.WithURL(url),
		stream.WithLogger(logger.Noop()),
		stream.WithFrameHandler(func(f *metrics.Frame) { frames <- f }))
	require.NoError(t, err)
	defer s.Close()

	select {
	case f := <-frames:
		assert.Equal(t, 2, f.NodeID)
		assert.Equal(t, metrics.Range15M, f.Range)
		assert.Len(t, f.CPU.CoreIDs(), 8)
		assert.NotEmpty(t, f.Network.Received)
	case <-time.After(5 * time.Second):
		t.Fatal("no frame from dev server")
	}

	require.NoError(t, s.SetTimeRange(metrics.Range1D))
	select {
	case f := <-frames:
		assert.Equal(t, metrics.Range1D, f.Range)
	case <-time.After(5 * time.Second):
		t.Fatal("no frame after range change")
	}

	require.NoError(t, s.Close())
	waitDone(t, s)
	assert.Equal(t, stream.StateClosed, s.State())
}

func TestWebSocketDialer_Refused(t *testing.T) {
	d := &stream.WebSocketDialer{HandshakeTimeout: time.Second}
	_, err := d.Dial(context.Background(), "ws://127.0.0.1:1/ws")
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrTransport))
}

func TestWebSocketDialer_BadHandshake(t *testing.T) {
	backend := devserver.New(devserver.Options{Logger: logger.Noop()})
	srv := httptest.NewServer(backend.Handler())
	defer srv.Close()

	url, err := stream.StreamURL(srv.URL, devserver.APIPrefix, "/does-not-exist")
	require.NoError(t, err)

	_, err = (&stream.WebSocketDialer{}).Dial(context.Background(), url)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
}
