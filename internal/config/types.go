package config

import (
	"time"

	"github.com/vpspilot/pilot/internal/metrics"
)

// CurrentConfigVersion is the schema version for the config file.
// Increment when making breaking changes to the config structure.
const CurrentConfigVersion = 1

// Config represents the complete .pilot.yaml configuration file.
type Config struct {
	Version   int             `yaml:"version" mapstructure:"version"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Stream    StreamConfig    `yaml:"stream" mapstructure:"stream"`
	Dashboard DashboardConfig `yaml:"dashboard" mapstructure:"dashboard"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// ServerConfig says where the VPS Pilot backend lives and how to reach it.
type ServerConfig struct {
	// URL is the backend origin, e.g. http://127.0.0.1:8000.
	URL string `yaml:"url" mapstructure:"url"`

	// APIPrefix is prepended to every REST and websocket path.
	APIPrefix string `yaml:"api_prefix" mapstructure:"api_prefix"`

	// StreamPath is the system-stat websocket path under APIPrefix.
	StreamPath string `yaml:"stream_path" mapstructure:"stream_path"`

	// Token is sent as a bearer token on REST calls.
	Token string `yaml:"token,omitempty" mapstructure:"token"`

	Timeout time.Duration `yaml:"timeout" mapstructure:"timeout"`
	Retries int           `yaml:"retries" mapstructure:"retries"`

	// SSHTunnel, when set, is an SSH host (alias, user@host, host:port) all
	// backend traffic is tunneled through. URL is then resolved on that host.
	SSHTunnel string `yaml:"ssh_tunnel,omitempty" mapstructure:"ssh_tunnel"`

	// CacheTTL is how long node descriptors are cached.
	CacheTTL time.Duration `yaml:"cache_ttl" mapstructure:"cache_ttl"`
}

// StreamConfig controls the live stat subscription.
type StreamConfig struct {
	// DefaultRange is the time-range label used when none is given.
	DefaultRange string `yaml:"default_range" mapstructure:"default_range"`

	// RefreshInterval is how often the query is resent.
	RefreshInterval time.Duration `yaml:"refresh_interval" mapstructure:"refresh_interval"`

	// NetworkFields names the received/sent fields in net samples.
	NetworkFields metrics.NetworkFields `yaml:"network_fields" mapstructure:"network_fields"`
}

// DashboardConfig controls the terminal dashboard.
type DashboardConfig struct {
	// NodeIDs is the rotation order for n/p. Empty means every node the
	// backend lists.
	NodeIDs []int `yaml:"node_ids,omitempty" mapstructure:"node_ids"`

	// HistoryWindow bounds how much of each series is kept for graphs. Zero
	// means the selected time range.
	HistoryWindow time.Duration `yaml:"history_window,omitempty" mapstructure:"history_window"`
}

// LogConfig controls diagnostic logging.
type LogConfig struct {
	// File receives log output. The dashboard always logs to a file so the
	// alternate screen stays clean.
	File  string `yaml:"file,omitempty" mapstructure:"file"`
	Debug bool   `yaml:"debug,omitempty" mapstructure:"debug"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Version: CurrentConfigVersion,
		Server: ServerConfig{
			URL:        "http://127.0.0.1:8000",
			APIPrefix:  "/api/v1",
			StreamPath: "/nodes/ws/system-stat",
			Timeout:    10 * time.Second,
			Retries:    2,
			CacheTTL:   time.Minute,
		},
		Stream: StreamConfig{
			DefaultRange:    string(metrics.Range5M),
			RefreshInterval: 10 * time.Second,
			NetworkFields:   metrics.DefaultNetworkFields(),
		},
	}
}

// Range returns the parsed default range.
func (c StreamConfig) Range() (metrics.TimeRange, error) {
	return metrics.ParseTimeRange(c.DefaultRange)
}

// APIBase returns URL joined with APIPrefix.
func (c ServerConfig) APIBase() string {
	return trimSlash(c.URL) + c.APIPrefix
}

func trimSlash(s string) string {
	for len(s) > 0 && s[len(s)-1] == '/' {
		s = s[:len(s)-1]
	}
	return s
}
