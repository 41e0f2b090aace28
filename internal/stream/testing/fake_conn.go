// Package testing provides an in-memory transport for stream sessions.
package testing

import (
	"context"
	"errors"
	"io"
	"sync"

	"github.com/vpspilot/pilot/internal/stream"
)

// ErrClosed is returned by a FakeConn after Close.
var ErrClosed = errors.New("fake conn closed")

// FakeConn is a scripted stream.Conn. Messages pushed with Push are returned by
// ReadMessage in order; everything the session writes is recorded.
type FakeConn struct {
	mu       sync.Mutex
	inbound  chan []byte
	readErr  chan error
	closeCh  chan struct{}
	closed   bool
	closes   int
	written  [][]byte
	writeErr error
	writes   chan struct{}
}

// NewFakeConn creates an open fake connection.
func NewFakeConn() *FakeConn {
	return &FakeConn{
		inbound: make(chan []byte, 64),
		readErr: make(chan error, 1),
		closeCh: make(chan struct{}),
		writes:  make(chan struct{}, 256),
	}
}

// Push queues an inbound message.
func (c *FakeConn) Push(data string) {
	c.inbound <- []byte(data)
}

// Fail makes the next read return err once queued messages are consumed.
func (c *FakeConn) Fail(err error) {
	c.readErr <- err
}

// CloseRemote simulates a clean close from the server.
func (c *FakeConn) CloseRemote() {
	c.Fail(io.EOF)
}

// SetWriteError makes subsequent writes fail.
func (c *FakeConn) SetWriteError(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.writeErr = err
}

// ReadMessage implements stream.Conn.
func (c *FakeConn) ReadMessage() ([]byte, error) {
	select {
	case data := <-c.inbound:
		return data, nil
	default:
	}
	select {
	case data := <-c.inbound:
		return data, nil
	case err := <-c.readErr:
		return nil, err
	case <-c.closeCh:
		return nil, ErrClosed
	}
}

// WriteMessage implements stream.Conn.
func (c *FakeConn) WriteMessage(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	if c.writeErr != nil {
		return c.writeErr
	}
	c.written = append(c.written, append([]byte(nil), data...))
	select {
	case c.writes <- struct{}{}:
	default:
	}
	return nil
}

// Close implements stream.Conn.
func (c *FakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closes++
	if !c.closed {
		c.closed = true
		close(c.closeCh)
	}
	return nil
}

// Closed reports whether Close was called.
func (c *FakeConn) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// CloseCount returns how many times Close was called.
func (c *FakeConn) CloseCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closes
}

// Written returns a copy of every message written so far.
func (c *FakeConn) Written() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([][]byte, len(c.written))
	copy(out, c.written)
	return out
}

// Queries decodes every written message as a stream.Query.
func (c *FakeConn) Queries() []stream.Query {
	var out []stream.Query
	for _, data := range c.Written() {
		q, err := stream.DecodeQuery(data)
		if err != nil {
			continue
		}
		out = append(out, q)
	}
	return out
}

// Writes signals (best effort) after each successful write.
func (c *FakeConn) Writes() <-chan struct{} {
	return c.writes
}

// FakeDialer hands out a prepared FakeConn, or fails.
type FakeDialer struct {
	mu    sync.Mutex
	conn  *FakeConn
	err   error
	gate  chan struct{}
	dials int
	urls  []string
}

// NewFakeDialer returns a dialer that succeeds with conn.
func NewFakeDialer(conn *FakeConn) *FakeDialer {
	return &FakeDialer{conn: conn}
}

// NewFailingDialer returns a dialer whose Dial fails with err.
func NewFailingDialer(err error) *FakeDialer {
	return &FakeDialer{err: err}
}

// Hold makes Dial block until Release is called or the context is done.
func (d *FakeDialer) Hold() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.gate = make(chan struct{})
}

// Release unblocks a held Dial.
func (d *FakeDialer) Release() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.gate != nil {
		close(d.gate)
		d.gate = nil
	}
}

// Dial implements stream.Dialer. A held dial ignores context cancellation
// so tests can deliver a result after the session was closed.
func (d *FakeDialer) Dial(ctx context.Context, url string) (stream.Conn, error) {
	d.mu.Lock()
	d.dials++
	d.urls = append(d.urls, url)
	gate := d.gate
	d.mu.Unlock()

	if gate != nil {
		<-gate
	}
	if d.err != nil {
		return nil, d.err
	}
	return d.conn, nil
}

// Dials returns how many times Dial was called.
func (d *FakeDialer) Dials() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}

// URLs returns the dialed URLs.
func (d *FakeDialer) URLs() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.urls...)
}
