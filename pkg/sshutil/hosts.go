package sshutil

import (
	"bytes"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/kevinburke/ssh_config"
)

// HostEntry is one concrete Host block from an SSH config.
type HostEntry struct {
	Alias        string
	Hostname     string
	User         string
	Port         string
	IdentityFile string
}

// Description is a short label for pickers, e.g. "10.0.0.5, user: root".
func (h HostEntry) Description() string {
	var parts []string
	if h.Hostname != "" && h.Hostname != h.Alias {
		parts = append(parts, h.Hostname)
	}
	if h.User != "" {
		parts = append(parts, "user: "+h.User)
	}
	if h.Port != "" && h.Port != "22" {
		parts = append(parts, "port: "+h.Port)
	}
	if len(parts) == 0 {
		return h.Alias
	}
	return strings.Join(parts, ", ")
}

// HasKey reports whether the entry's IdentityFile exists, or failing that,
// whether one of the default keys does.
func (h HostEntry) HasKey() bool {
	if h.IdentityFile != "" {
		if _, err := os.Stat(h.IdentityFile); err == nil {
			return true
		}
	}
	for _, k := range defaultKeyFiles() {
		if _, err := os.Stat(k); err == nil {
			return true
		}
	}
	return false
}

// Hosts lists the concrete aliases in ~/.ssh/config.
func Hosts() ([]HostEntry, error) {
	return HostsFromFile(filepath.Join(homeDir(), ".ssh", "config"))
}

// HostsFromFile lists concrete aliases in configPath, sorted by alias.
// Wildcard patterns are skipped. A missing file yields no hosts and no error.
func HostsFromFile(configPath string) ([]HostEntry, error) {
	content, _, err := preprocessSSHConfig(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	cfg, err := ssh_config.Decode(bytes.NewReader(content))
	if err != nil {
		return nil, err
	}

	var hosts []HostEntry
	seen := make(map[string]bool)
	for _, host := range cfg.Hosts {
		for _, pattern := range host.Patterns {
			alias := pattern.String()
			if strings.ContainsAny(alias, "*?") || seen[alias] {
				continue
			}
			seen[alias] = true

			entry := HostEntry{Alias: alias}
			entry.Hostname, _ = cfg.Get(alias, "HostName")
			entry.User, _ = cfg.Get(alias, "User")
			entry.Port, _ = cfg.Get(alias, "Port")
			if id, _ := cfg.Get(alias, "IdentityFile"); id != "" {
				entry.IdentityFile = expandPath(id)
			}
			hosts = append(hosts, entry)
		}
	}

	sort.Slice(hosts, func(i, j int) bool { return hosts[i].Alias < hosts[j].Alias })
	return hosts, nil
}

// WithKeys keeps the hosts we could plausibly authenticate to.
func WithKeys(hosts []HostEntry) []HostEntry {
	var out []HostEntry
	for _, h := range hosts {
		if h.HasKey() {
			out = append(out, h)
		}
	}
	return out
}
