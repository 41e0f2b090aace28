package stream

import (
	"context"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/vpspilot/pilot/internal/errors"
)

// Conn is one bidirectional message channel to the backend.
// ReadMessage returns io.EOF when the remote end closed the channel cleanly;
// any other error is a transport failure.
type Conn interface {
	ReadMessage() ([]byte, error)
	WriteMessage(data []byte) error
	Close() error
}

// Dialer opens a Conn to the stream endpoint.
type Dialer interface {
	Dial(ctx context.Context, url string) (Conn, error)
}

// DialContextFunc matches net.Dialer.DialContext. An SSH tunnel client
// provides one.
type DialContextFunc func(ctx context.Context, network, addr string) (net.Conn, error)

const (
	defaultHandshakeTimeout = 10 * time.Second
	writeWait               = 10 * time.Second
)

// WebSocketDialer dials the stream endpoint with gorilla/websocket.
type WebSocketDialer struct {
	HandshakeTimeout time.Duration
	// NetDialContext, when set, carries the connection (e.g. over SSH).
	NetDialContext DialContextFunc
	Header         http.Header
}

// Dial implements Dialer.
func (d *WebSocketDialer) Dial(ctx context.Context, rawURL string) (Conn, error) {
	timeout := d.HandshakeTimeout
	if timeout <= 0 {
		timeout = defaultHandshakeTimeout
	}
	wd := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: timeout,
	}
	if d.NetDialContext != nil {
		wd.NetDialContext = d.NetDialContext
		wd.Proxy = nil
	}

	c, resp, err := wd.DialContext(ctx, rawURL, d.Header)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		if resp != nil {
			return nil, errors.WrapWithCode(err, errors.ErrTransport,
				"WebSocket handshake with "+rawURL+" failed ("+resp.Status+")",
				"Check server.url and server.stream_path in your config")
		}
		return nil, errors.WrapWithCode(err, errors.ErrTransport,
			"Couldn't connect to "+rawURL,
			"Is the backend running? Try: pilot devserver")
	}
	return &wsConn{c: c}, nil
}

// wsConn adapts *websocket.Conn to Conn. Writes are serialized since gorilla
// allows only one concurrent writer.
type wsConn struct {
	c   *websocket.Conn
	wmu sync.Mutex
}

func (w *wsConn) ReadMessage() ([]byte, error) {
	for {
		mt, data, err := w.c.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil, io.EOF
			}
			return nil, err
		}
		if mt == websocket.TextMessage || mt == websocket.BinaryMessage {
			return data, nil
		}
	}
}

func (w *wsConn) WriteMessage(data []byte) error {
	w.wmu.Lock()
	defer w.wmu.Unlock()
	_ = w.c.SetWriteDeadline(time.Now().Add(writeWait))
	return w.c.WriteMessage(websocket.TextMessage, data)
}

func (w *wsConn) Close() error {
	w.wmu.Lock()
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = w.c.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	w.wmu.Unlock()
	return w.c.Close()
}

// StreamURL builds the websocket URL from the configured server URL
// (http/https/ws/wss), API prefix and stream path.
func StreamURL(server, apiPrefix, streamPath string) (string, error) {
	u, err := url.Parse(server)
	if err != nil || u.Host == "" {
		return "", errors.New(errors.ErrConfig,
			"Invalid server URL: '"+server+"'",
			"Use something like http://localhost:8000")
	}
	switch u.Scheme {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return "", errors.New(errors.ErrConfig,
			"Unsupported server URL scheme '"+u.Scheme+"'",
			"Use http, https, ws or wss")
	}
	u.Path = joinPath(u.Path, apiPrefix, streamPath)
	u.RawQuery = ""
	u.Fragment = ""
	return u.String(), nil
}

func joinPath(parts ...string) string {
	var segs []string
	for _, p := range parts {
		p = strings.Trim(p, "/")
		if p != "" {
			segs = append(segs, p)
		}
	}
	return "/" + strings.Join(segs, "/")
}
