package cli

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
	"github.com/vpspilot/pilot/internal/errors"
	"github.com/vpspilot/pilot/internal/metrics"
	"github.com/vpspilot/pilot/internal/nodeapi"
)

func TestNodeCommand_Details(t *testing.T) {
	b, _ := testBackend(t, "")

	var out bytes.Buffer
	require.NoError(t, nodeCommand(context.Background(), &out, b, nodeOptions{NodeID: 2}))

	s := out.String()
	assert.Contains(t, s, "db-1")
	assert.Contains(t, s, "10.0.0.21")
	assert.Contains(t, s, "CPUs")
	assert.Contains(t, s, "32.0 GB")
	assert.NotContains(t, s, "Renamed")
}

func TestNodeCommand_Rename(t *testing.T) {
	b, _ := testBackend(t, "")
	ctx := context.Background()

	// warm the cache so the rename has something to invalidate
	_, err := b.Nodes().GetNode(ctx, 3)
	require.NoError(t, err)

	var out bytes.Buffer
	require.NoError(t, nodeCommand(ctx, &out, b, nodeOptions{NodeID: 3, Rename: "  cache-1 "}))

	s := out.String()
	assert.Contains(t, s, "Renamed node 3 to 'cache-1'")
	assert.Contains(t, s, "cache-1")

	n, err := b.Nodes().GetNode(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, "cache-1", n.Name)
}

func TestNodeCommand_UnknownNode(t *testing.T) {
	b, _ := testBackend(t, "")

	var out bytes.Buffer
	err := nodeCommand(context.Background(), &out, b, nodeOptions{NodeID: 99})
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrAPI))
}

func TestNodeCommand_Snapshot(t *testing.T) {
	b, _ := testBackend(t, "")

	var out bytes.Buffer
	require.NoError(t, nodeCommand(context.Background(), &out, b, nodeOptions{NodeID: 1, Snapshot: true, Range: "1H"}))

	s := out.String()
	assert.Contains(t, s, "web-1")
	assert.Contains(t, s, "CPU 1")
	assert.Contains(t, s, "CPU 4")
	assert.Contains(t, s, "Memory")
	assert.Contains(t, s, "Received")
	assert.Contains(t, s, "%")
}

func TestNodeCommand_SnapshotJSON(t *testing.T) {
	withMachineMode(t)
	b, _ := testBackend(t, "")

	var out bytes.Buffer
	require.NoError(t, nodeCommand(context.Background(), &out, b, nodeOptions{NodeID: 2, Snapshot: true}))

	body := out.String()
	assert.True(t, gjson.Get(body, "success").Bool())
	assert.Equal(t, int64(2), gjson.Get(body, "data.node.id").Int())
	assert.Equal(t, "5M", gjson.Get(body, "data.snapshot.range").String())
	assert.True(t, gjson.Get(body, "data.snapshot.series.memory").IsArray())
}

func TestNodeCommand_JSONWithoutSnapshot(t *testing.T) {
	withMachineMode(t)
	b, _ := testBackend(t, "")

	var out bytes.Buffer
	require.NoError(t, nodeCommand(context.Background(), &out, b, nodeOptions{NodeID: 1}))

	body := out.String()
	assert.Equal(t, "web-1", gjson.Get(body, "data.node.name").String())
	assert.False(t, gjson.Get(body, "data.snapshot").Exists())
}

func TestFirstFrame_Timeout(t *testing.T) {
	b, _ := testBackend(t, "")

	// a cancelled parent context behaves like an expired timeout
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := firstFrame(ctx, b, 1, metrics.Range5M, time.Second)
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrTransport))
}

func TestNodePairs(t *testing.T) {
	tests := []struct {
		name string
		node nodeapi.Node
		want map[string]string
	}{
		{
			name: "detail endpoint",
			node: nodeapi.Node{ID: 2, Name: "db-1", IP: "10.0.0.21", CPUs: 8, Memory: 32 * (1 << 30)},
			want: map[string]string{"ID": "2", "Name": "db-1", "CPUs": "8", "Memory": "32.0 GB", "Platform": ""},
		},
		{
			name: "list endpoint",
			node: nodeapi.Node{ID: 1, Platform: "ubuntu", PlatformVersion: "24.04", KernelVersion: "6.8.0", TotalMemory: 7.8},
			want: map[string]string{"Name": "", "Platform": "ubuntu 24.04", "Kernel": "6.8.0", "Memory": "7.8 GB", "CPUs": ""},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := map[string]string{}
			for _, p := range nodePairs(&tt.node) {
				got[p.Key] = p.Value
			}
			for k, v := range tt.want {
				assert.Equal(t, v, got[k], k)
			}
		})
	}
}

func TestRenderSnapshot(t *testing.T) {
	t0 := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	t.Run("empty frame", func(t *testing.T) {
		assert.Contains(t, renderSnapshot(&metrics.Frame{NodeID: 1, Range: metrics.Range5M}), "frame carried no samples")
	})

	t.Run("percent and rate", func(t *testing.T) {
		f := &metrics.Frame{
			NodeID:  1,
			Range:   metrics.Range5M,
			Memory:  &metrics.MemoryFrame{Samples: []metrics.Sample{{Time: t0, Value: 40}, {Time: t0.Add(time.Second), Value: 42.5}}},
			Network: &metrics.NetworkFrame{Received: []metrics.Sample{{Time: t0, Value: 2048}}},
		}
		s := renderSnapshot(f)
		assert.Contains(t, s, "Memory")
		assert.Contains(t, s, "42.5%")
		assert.Contains(t, s, "Received")
		assert.NotContains(t, s, "Sent")
	})
}
