// Package sshutil opens SSH tunnels to VPS hosts so the client can reach a
// backend that only listens on the host's loopback interface.
package sshutil

import (
	"context"
	stderrors "errors"
	"fmt"
	"log"
	"net"
	"sync"
	"time"

	"github.com/vpspilot/pilot/internal/errors"
	"golang.org/x/crypto/ssh"
)

// Tunnel is an SSH connection used as a dialer. Every DialContext opens a
// direct-tcpip channel from the remote host to the target address.
type Tunnel struct {
	client  *ssh.Client
	host    string
	address string

	closeOnce sync.Once
	closeErr  error
}

// WarningHandler receives non-fatal warnings. If nil, warnings go to the
// standard logger.
var WarningHandler func(message string)

func emitWarning(message string) {
	if WarningHandler != nil {
		WarningHandler(message)
		return
	}
	log.Printf("Warning: %s", message)
}

// Dial connects to host, which can be an ~/.ssh/config alias, a hostname,
// user@hostname, or hostname:port.
func Dial(host string, timeout time.Duration) (*Tunnel, error) {
	return DialContext(context.Background(), host, timeout)
}

// DialContext is Dial with a context bounding the TCP connect.
func DialContext(ctx context.Context, host string, timeout time.Duration) (*Tunnel, error) {
	settings := resolveSettings(host)

	config, err := clientConfig(settings, timeout)
	if err != nil {
		var structured *errors.Error
		if stderrors.As(err, &structured) {
			return nil, err
		}
		return nil, errors.WrapWithCode(err, errors.ErrSSH,
			fmt.Sprintf("Couldn't set up SSH for '%s'", host),
			"Check your keys are loaded: ssh-add -l")
	}

	address := settings.address()
	d := net.Dialer{Timeout: timeout}
	conn, err := d.DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, errors.WrapWithCode(err, errors.ErrSSH,
			fmt.Sprintf("Can't reach '%s' at %s", host, address),
			suggestionForDialError(err))
	}

	sshConn, chans, reqs, err := ssh.NewClientConn(conn, address, config)
	if err != nil {
		conn.Close()

		var mismatch *HostKeyMismatchError
		if stderrors.As(err, &mismatch) {
			return nil, errors.New(errors.ErrSSH, mismatch.Error(), mismatch.Suggestion())
		}
		return nil, errors.WrapWithCode(err, errors.ErrSSH,
			fmt.Sprintf("SSH handshake with '%s' didn't go through", host),
			suggestionForHandshakeError(err, settings.encryptedKeys))
	}

	return &Tunnel{
		client:  ssh.NewClient(sshConn, chans, reqs),
		host:    host,
		address: address,
	}, nil
}

// Host returns the alias or host the tunnel was opened with.
func (t *Tunnel) Host() string { return t.host }

// Address returns the resolved host:port of the SSH server.
func (t *Tunnel) Address() string { return t.address }

// DialContext opens a connection to addr as seen from the remote host.
// Its signature matches net.Dialer.DialContext so it can back an
// http.Transport or a websocket dialer. Only tcp networks are supported.
func (t *Tunnel) DialContext(ctx context.Context, network, addr string) (net.Conn, error) {
	switch network {
	case "tcp", "tcp4", "tcp6":
	default:
		return nil, fmt.Errorf("ssh tunnel: unsupported network %q", network)
	}

	type result struct {
		conn net.Conn
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		c, err := t.client.Dial(network, addr)
		ch <- result{c, err}
	}()

	select {
	case r := <-ch:
		if r.err != nil {
			return nil, errors.WrapWithCode(r.err, errors.ErrSSH,
				fmt.Sprintf("Couldn't reach %s through '%s'", addr, t.host),
				"Is the backend listening on that address on the VPS?")
		}
		return r.conn, nil
	case <-ctx.Done():
		go func() {
			if r := <-ch; r.conn != nil {
				r.conn.Close()
			}
		}()
		return nil, ctx.Err()
	}
}

// Alive sends a keepalive request and reports whether the server answered.
func (t *Tunnel) Alive() bool {
	_, _, err := t.client.SendRequest("keepalive@openssh.com", true, nil)
	return err == nil
}

// KeepAlive pings the server every interval until ctx is done or a ping
// fails. It returns when the tunnel is gone.
func (t *Tunnel) KeepAlive(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if !t.Alive() {
				return errors.New(errors.ErrSSH,
					fmt.Sprintf("SSH tunnel to '%s' stopped responding", t.host),
					"Check the connection and try again")
			}
		}
	}
}

// Close closes the SSH connection and every channel opened through it.
func (t *Tunnel) Close() error {
	t.closeOnce.Do(func() {
		if t.client != nil {
			t.closeErr = t.client.Close()
		}
	})
	return t.closeErr
}
