package doctor

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/vpspilot/pilot/internal/metrics"
	"github.com/vpspilot/pilot/internal/nodeapi"
)

type fakeLister struct {
	nodes []nodeapi.Node
	err   error
}

func (f *fakeLister) ListNodes(ctx context.Context, opts nodeapi.ListOptions) ([]nodeapi.Node, error) {
	return f.nodes, f.err
}

func TestBackendCheck(t *testing.T) {
	tests := []struct {
		name      string
		lister    NodeLister
		setupErr  error
		status    CheckStatus
		wantFirst int
	}{
		{
			name:      "lists nodes",
			lister:    &fakeLister{nodes: []nodeapi.Node{{ID: 4}, {ID: 7}}},
			status:    StatusPass,
			wantFirst: 4,
		},
		{name: "empty fleet", lister: &fakeLister{}, status: StatusWarn},
		{name: "request fails", lister: &fakeLister{err: fmt.Errorf("401")}, status: StatusFail},
		{name: "setup fails", setupErr: fmt.Errorf("tunnel down"), status: StatusFail},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			c := &BackendCheck{Nodes: func() (NodeLister, error) { return tc.lister, tc.setupErr }}
			r := c.Run(context.Background())
			if r.Status != tc.status {
				t.Errorf("status = %v, want %v (%s)", r.Status, tc.status, r.Message)
			}
			if c.First != tc.wantFirst {
				t.Errorf("First = %d, want %d", c.First, tc.wantFirst)
			}
		})
	}
}

func TestStreamCheck(t *testing.T) {
	t0 := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	full := &metrics.Frame{
		NodeID: 4,
		Range:  metrics.Range5M,
		Memory: &metrics.MemoryFrame{Samples: []metrics.Sample{{Time: t0, Value: 40}}},
	}

	tests := []struct {
		name    string
		nodeID  func() (int, error)
		frame   *metrics.Frame
		err     error
		status  CheckStatus
		message string
	}{
		{
			name:    "frame arrives",
			nodeID:  func() (int, error) { return 4, nil },
			frame:   full,
			status:  StatusPass,
			message: "Node 4 pushed a 5M frame with 1 series",
		},
		{
			name:    "empty frame",
			nodeID:  func() (int, error) { return 4, nil },
			frame:   &metrics.Frame{NodeID: 4, Range: metrics.Range5M},
			status:  StatusWarn,
			message: "empty",
		},
		{
			name:   "probe fails",
			nodeID: func() (int, error) { return 4, nil },
			err:    fmt.Errorf("no frame"),
			status: StatusFail,
		},
		{
			name:    "no node to probe",
			nodeID:  func() (int, error) { return 0, fmt.Errorf("no node listed: %w", ErrSkipped) },
			status:  StatusWarn,
			message: "Skipped",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var probed int
			c := &StreamCheck{
				NodeID: tc.nodeID,
				Range:  metrics.Range5M,
				Probe: func(ctx context.Context, nodeID int, r metrics.TimeRange) (*metrics.Frame, error) {
					probed = nodeID
					return tc.frame, tc.err
				},
			}
			r := c.Run(context.Background())
			if r.Status != tc.status {
				t.Errorf("status = %v, want %v (%s)", r.Status, tc.status, r.Message)
			}
			if !strings.Contains(r.Message, tc.message) {
				t.Errorf("message %q doesn't contain %q", r.Message, tc.message)
			}
			if tc.frame != nil && probed != 4 {
				t.Errorf("probed node %d", probed)
			}
		})
	}
}

func TestConfigChecks(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "good.yaml")
	bad := filepath.Join(dir, "bad.yaml")
	if err := os.WriteFile(good, []byte("version: 1\nserver:\n  url: http://10.0.0.5:8000\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(bad, []byte("version: 1\nstream:\n  default_range: 9X\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	if r := (&ConfigFileCheck{ConfigPath: good}).Run(context.Background()); r.Status != StatusPass {
		t.Errorf("config_file: %v %s", r.Status, r.Message)
	}
	if r := (&ConfigFileCheck{ConfigPath: filepath.Join(dir, "missing.yaml")}).Run(context.Background()); r.Status != StatusFail {
		t.Errorf("missing config_file: %v", r.Status)
	}

	schema := &ConfigSchemaCheck{ConfigPath: good, Server: "http://127.0.0.1:9000"}
	if r := schema.Run(context.Background()); r.Status != StatusPass {
		t.Errorf("config_schema: %v %s", r.Status, r.Message)
	}
	if schema.Loaded == nil || schema.Loaded.Server.URL != "http://127.0.0.1:9000" {
		t.Errorf("server override not applied: %+v", schema.Loaded)
	}

	schema = &ConfigSchemaCheck{ConfigPath: bad}
	if r := schema.Run(context.Background()); r.Status != StatusFail {
		t.Errorf("bad config_schema: %v", r.Status)
	}
	if schema.Loaded != nil {
		t.Error("Loaded set for an invalid config")
	}
}

func TestTunnelCheck_NotConfigured(t *testing.T) {
	r := (&TunnelCheck{}).Run(context.Background())
	if r.Status != StatusPass {
		t.Errorf("status = %v", r.Status)
	}
}

func TestTunnelCheck_Unreachable(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	r := (&TunnelCheck{Host: "127.0.0.1:1", Timeout: 2 * time.Second}).Run(ctx)
	if r.Status != StatusFail {
		t.Errorf("status = %v", r.Status)
	}
	if r.Suggestion == "" {
		t.Error("expected a suggestion")
	}
}
