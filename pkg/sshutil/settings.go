package sshutil

import (
	"bytes"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/kevinburke/ssh_config"
)

// Environment overrides, mostly for CI.
const (
	EnvSSHUser = "PILOT_SSH_USER"
	EnvSSHKey  = "PILOT_SSH_KEY"
)

var matchWarningOnce sync.Once

// settings are the resolved connection parameters for one host.
type settings struct {
	hostname      string
	port          string
	user          string
	identityFile  string
	encryptedKeys []string
}

func (s *settings) address() string {
	return net.JoinHostPort(s.hostname, s.port)
}

// resolveSettings parses user@host:port and fills gaps from ~/.ssh/config.
func resolveSettings(host string) *settings {
	return resolveSettingsFrom(host, filepath.Join(homeDir(), ".ssh", "config"))
}

func resolveSettingsFrom(host, configPath string) *settings {
	s := &settings{port: "22", user: currentUser()}

	explicitUser := false
	if at := strings.Index(host, "@"); at != -1 {
		s.user = host[:at]
		host = host[at+1:]
		explicitUser = true
	}
	if !explicitUser {
		if u := os.Getenv(EnvSSHUser); u != "" {
			s.user = u
		}
	}

	if colon := strings.LastIndex(host, ":"); colon != -1 && isDigits(host[colon+1:]) {
		s.port = host[colon+1:]
		host = host[:colon]
	}
	s.hostname = host

	content, matchLine, err := preprocessSSHConfig(configPath)
	if err != nil {
		return s
	}
	cfg, err := ssh_config.Decode(bytes.NewReader(content))
	if err != nil {
		return s
	}

	found := false
	if v, _ := cfg.Get(host, "HostName"); v != "" {
		s.hostname = v
		found = true
	}
	if v, _ := cfg.Get(host, "Port"); v != "" {
		s.port = v
		found = true
	}
	if v, _ := cfg.Get(host, "User"); v != "" && !explicitUser {
		s.user = v
		found = true
	}
	if v, _ := cfg.Get(host, "IdentityFile"); v != "" {
		s.identityFile = expandPath(v)
		found = true
	}

	if matchLine > 0 && !found {
		matchWarningOnce.Do(func() {
			emitWarning(fmt.Sprintf(
				"Host '%s' not found in SSH config; entries after the Match block at line %d are not read. "+
					"Move the host above line %d in ~/.ssh/config.",
				host, matchLine, matchLine))
		})
	}
	return s
}

// preprocessSSHConfig returns the config up to the first Match directive,
// which ssh_config can't parse, and the 1-based line of that directive (0 if
// there is none).
func preprocessSSHConfig(configPath string) ([]byte, int, error) {
	content, err := os.ReadFile(configPath)
	if err != nil {
		return nil, 0, err
	}

	lines := strings.Split(string(content), "\n")
	for i, line := range lines {
		if strings.HasPrefix(strings.ToLower(strings.TrimSpace(line)), "match ") {
			return []byte(strings.Join(lines[:i], "\n")), i + 1, nil
		}
	}
	return content, 0, nil
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return os.Getenv("HOME")
	}
	return home
}

func currentUser() string {
	if u := os.Getenv("USER"); u != "" {
		return u
	}
	return "root"
}

func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		return filepath.Join(homeDir(), path[2:])
	}
	return path
}
