package sshutil

import (
	"bytes"
	stderrors "errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/vpspilot/pilot/internal/errors"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/agent"
	"golang.org/x/crypto/ssh/knownhosts"
)

// StrictHostKeyChecking verifies host keys against ~/.ssh/known_hosts when
// true. Turning it off skips verification entirely.
var StrictHostKeyChecking = true

var (
	agentConn     net.Conn
	agentClient   agent.ExtendedAgent
	agentConnOnce sync.Once
)

func defaultKeyFiles() []string {
	dir := filepath.Join(homeDir(), ".ssh")
	return []string{
		filepath.Join(dir, "id_ed25519"),
		filepath.Join(dir, "id_rsa"),
		filepath.Join(dir, "id_ecdsa"),
	}
}

// clientConfig collects auth methods (agent first, then key files) and the
// host key callback. Keys that exist but need a passphrase are recorded in
// s.encryptedKeys for the error message.
func clientConfig(s *settings, timeout time.Duration) (*ssh.ClientConfig, error) {
	var methods []ssh.AuthMethod

	tryKey := func(path string) {
		auth, err := keyFileAuth(path)
		if err != nil {
			var enc *EncryptedKeyError
			if stderrors.As(err, &enc) {
				s.encryptedKeys = append(s.encryptedKeys, path)
			}
			return
		}
		methods = append(methods, auth)
	}

	if auth := agentAuth(); auth != nil {
		methods = append(methods, auth)
	}
	if k := os.Getenv(EnvSSHKey); k != "" {
		tryKey(k)
	}
	if s.identityFile != "" {
		tryKey(s.identityFile)
	}
	for _, k := range defaultKeyFiles() {
		if k != s.identityFile {
			tryKey(k)
		}
	}

	if len(methods) == 0 {
		if len(s.encryptedKeys) > 0 {
			return nil, errors.New(errors.ErrSSH,
				fmt.Sprintf("Found SSH key(s) but they're encrypted: %s", strings.Join(s.encryptedKeys, ", ")),
				addKeysHint(s.encryptedKeys))
		}
		return nil, errors.New(errors.ErrSSH,
			"No SSH auth methods available",
			"Check your keys are loaded: ssh-add -l")
	}

	var callback ssh.HostKeyCallback
	if StrictHostKeyChecking {
		var err error
		callback, err = hostKeyCallback(filepath.Join(homeDir(), ".ssh", "known_hosts"))
		if err != nil {
			return nil, fmt.Errorf("failed to load known_hosts: %w", err)
		}
	} else {
		callback = ssh.InsecureIgnoreHostKey() //nolint:gosec // explicitly disabled by the user
	}

	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &ssh.ClientConfig{
		User:            s.user,
		Auth:            methods,
		HostKeyCallback: callback,
		Timeout:         timeout,
	}, nil
}

// agentAuth uses SSH_AUTH_SOCK when the agent holds at least one key. An
// empty agent placed before key files makes servers reject the attempt.
func agentAuth() ssh.AuthMethod {
	socket := os.Getenv("SSH_AUTH_SOCK")
	if socket == "" {
		return nil
	}
	agentConnOnce.Do(func() {
		conn, err := net.Dial("unix", socket)
		if err != nil {
			return
		}
		agentConn = conn
		agentClient = agent.NewClient(conn)
	})
	if agentClient == nil {
		return nil
	}
	signers, err := agentClient.Signers()
	if err != nil || len(signers) == 0 {
		return nil
	}
	return ssh.PublicKeysCallback(agentClient.Signers)
}

// CloseAgent closes the shared agent connection, if any.
func CloseAgent() {
	if agentConn != nil {
		agentConn.Close()
	}
}

func keyFileAuth(path string) (ssh.AuthMethod, error) {
	key, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	signer, err := ssh.ParsePrivateKey(key)
	if err != nil {
		var missing *ssh.PassphraseMissingError
		if stderrors.As(err, &missing) || isEncryptedPEM(key) ||
			strings.Contains(err.Error(), "encrypted") || strings.Contains(err.Error(), "passphrase") {
			return nil, &EncryptedKeyError{Path: path}
		}
		return nil, err
	}
	return ssh.PublicKeys(signer), nil
}

func isEncryptedPEM(data []byte) bool {
	return bytes.Contains(data, []byte("ENCRYPTED"))
}

// hostKeyCallback wraps knownhosts so mismatches carry a fix-it suggestion.
// A missing known_hosts file is created empty.
func hostKeyCallback(path string) (ssh.HostKeyCallback, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
			return nil, fmt.Errorf("failed to create .ssh directory: %w", err)
		}
		if err := os.WriteFile(path, nil, 0o600); err != nil {
			return nil, fmt.Errorf("failed to create known_hosts: %w", err)
		}
	}

	cb, err := knownhosts.New(path)
	if err != nil {
		return nil, err
	}
	return func(hostname string, remote net.Addr, key ssh.PublicKey) error {
		err := cb(hostname, remote, key)
		var keyErr *knownhosts.KeyError
		if stderrors.As(err, &keyErr) && len(keyErr.Want) > 0 {
			return &HostKeyMismatchError{
				Hostname:     hostname,
				ReceivedType: key.Type(),
				KnownHosts:   path,
				Want:         keyErr.Want,
			}
		}
		return err
	}, nil
}

func addKeysHint(keys []string) string {
	var sb strings.Builder
	sb.WriteString("Add your key(s) to the agent:\n")
	for _, k := range keys {
		if runtime.GOOS == "darwin" {
			sb.WriteString(fmt.Sprintf("  ssh-add --apple-use-keychain %s\n", k))
		} else {
			sb.WriteString(fmt.Sprintf("  ssh-add %s\n", k))
		}
	}
	sb.WriteString("\nNot sure which key? Check with: ssh -v <host>")
	return sb.String()
}

func suggestionForDialError(err error) string {
	msg := err.Error()
	switch {
	case strings.Contains(msg, "connection refused"):
		return "Is SSH running on that box? Try: ssh <host>"
	case strings.Contains(msg, "no route to host"), strings.Contains(msg, "network is unreachable"):
		return "Can't route to the host. Check your network connection."
	case strings.Contains(msg, "timeout"):
		return "Connection timed out. Host might be offline or blocked by a firewall."
	default:
		return "Make sure the host is reachable: ping <host>"
	}
}

func suggestionForHandshakeError(err error, encryptedKeys []string) string {
	msg := err.Error()
	switch {
	case strings.Contains(msg, "unable to authenticate"), strings.Contains(msg, "no supported methods"):
		if len(encryptedKeys) > 0 {
			return addKeysHint(encryptedKeys)
		}
		return "Auth failed. Check your keys are loaded: ssh-add -l"
	case strings.Contains(msg, "host key"):
		return "Host key issue. Try connecting manually first: ssh <host>"
	default:
		return "Something went wrong during SSH setup. Try: ssh <host>"
	}
}

// EncryptedKeyError means a key file needs a passphrase.
type EncryptedKeyError struct {
	Path string
}

func (e *EncryptedKeyError) Error() string {
	return fmt.Sprintf("SSH key at %s is encrypted (passphrase protected)", e.Path)
}

// HostKeyMismatchError is returned when known_hosts has a different key for
// the server.
type HostKeyMismatchError struct {
	Hostname     string
	ReceivedType string
	KnownHosts   string
	Want         []knownhosts.KnownKey
}

func (e *HostKeyMismatchError) Error() string {
	return fmt.Sprintf("host key mismatch for %s: server sent %s key", e.Hostname, e.ReceivedType)
}

// Suggestion explains how to refresh known_hosts.
func (e *HostKeyMismatchError) Suggestion() string {
	host := e.Hostname
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	known := "unknown"
	if len(e.Want) > 0 {
		types := make([]string, len(e.Want))
		for i, k := range e.Want {
			types[i] = k.Key.Type()
		}
		known = strings.Join(types, ", ")
	}
	return fmt.Sprintf(
		"The server's host key doesn't match known_hosts (known: %s, sent: %s).\n"+
			"  Refresh it with:\n"+
			"    ssh-keygen -R %s && ssh-keyscan %s >> %s",
		known, e.ReceivedType, host, host, e.KnownHosts)
}
