package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/vpspilot/pilot/internal/errors"
	"github.com/vpspilot/pilot/internal/metrics"
)

// MinRefreshInterval is the shortest allowed query refresh period.
const MinRefreshInterval = time.Second

// Validate checks the config for errors and returns structured error messages.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New(errors.ErrConfig,
			"Config is nil",
			"This is unexpected - try reloading the configuration.")
	}

	if cfg.Version > CurrentConfigVersion {
		return errors.New(errors.ErrConfig,
			fmt.Sprintf("This config is from the future (version %d, but pilot only knows up to %d)", cfg.Version, CurrentConfigVersion),
			"Upgrade pilot to the latest release.")
	}

	if err := validateServer(cfg.Server); err != nil {
		return errors.WrapWithCode(err, errors.ErrConfig, err.Error(), "Check the 'server' section in your .pilot.yaml.")
	}

	if err := validateStream(cfg.Stream); err != nil {
		if errors.IsCode(err, errors.ErrRange) {
			return err
		}
		return errors.WrapWithCode(err, errors.ErrConfig, err.Error(), "Check the 'stream' section in your .pilot.yaml.")
	}

	if err := validateDashboard(cfg.Dashboard); err != nil {
		return errors.WrapWithCode(err, errors.ErrConfig, err.Error(), "Check the 'dashboard' section in your .pilot.yaml.")
	}

	return nil
}

func validateServer(s ServerConfig) error {
	if strings.TrimSpace(s.URL) == "" {
		return fmt.Errorf("server.url is empty")
	}
	u, err := url.Parse(s.URL)
	if err != nil {
		return fmt.Errorf("server.url %q isn't a valid URL: %v", s.URL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("server.url must start with http:// or https://, got %q", s.URL)
	}
	if u.Host == "" {
		return fmt.Errorf("server.url %q has no host", s.URL)
	}

	if s.APIPrefix != "" && !strings.HasPrefix(s.APIPrefix, "/") {
		return fmt.Errorf("server.api_prefix must start with '/', got %q", s.APIPrefix)
	}
	if !strings.HasPrefix(s.StreamPath, "/") {
		return fmt.Errorf("server.stream_path must start with '/', got %q", s.StreamPath)
	}
	if s.Timeout < 0 {
		return fmt.Errorf("server.timeout can't be negative")
	}
	if s.Retries < 0 {
		return fmt.Errorf("server.retries can't be negative")
	}
	if s.CacheTTL < 0 {
		return fmt.Errorf("server.cache_ttl can't be negative")
	}
	if strings.ContainsAny(s.SSHTunnel, " \t") {
		return fmt.Errorf("server.ssh_tunnel %q contains whitespace", s.SSHTunnel)
	}
	return nil
}

func validateStream(s StreamConfig) error {
	if _, err := metrics.ParseTimeRange(s.DefaultRange); err != nil {
		return err
	}
	if s.RefreshInterval < MinRefreshInterval {
		return fmt.Errorf("stream.refresh_interval must be at least %s, got %s", MinRefreshInterval, s.RefreshInterval)
	}

	f := s.NetworkFields
	if strings.TrimSpace(f.Received) == "" || strings.TrimSpace(f.Sent) == "" {
		return fmt.Errorf("stream.network_fields needs both 'received' and 'sent'")
	}
	if f.Received == f.Sent {
		return fmt.Errorf("stream.network_fields.received and .sent are both %q", f.Received)
	}
	if f.Received == "time" || f.Sent == "time" {
		return fmt.Errorf("stream.network_fields can't use 'time', it's the sample timestamp")
	}
	return nil
}

func validateDashboard(d DashboardConfig) error {
	seen := make(map[int]bool, len(d.NodeIDs))
	for _, id := range d.NodeIDs {
		if id <= 0 {
			return fmt.Errorf("dashboard.node_ids has invalid id %d", id)
		}
		if seen[id] {
			return fmt.Errorf("dashboard.node_ids lists %d twice", id)
		}
		seen[id] = true
	}
	if d.HistoryWindow < 0 {
		return fmt.Errorf("dashboard.history_window can't be negative")
	}
	return nil
}
