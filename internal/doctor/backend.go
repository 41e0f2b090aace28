package doctor

import (
	"context"
	"fmt"
	"time"

	"github.com/vpspilot/pilot/internal/metrics"
	"github.com/vpspilot/pilot/internal/nodeapi"
)

// NodeLister is the part of the REST client BackendCheck needs.
type NodeLister interface {
	ListNodes(ctx context.Context, opts nodeapi.ListOptions) ([]nodeapi.Node, error)
}

// BackendCheck lists one page of nodes to prove the URL and token work.
// Nodes is called lazily so a failed connection setup shows up here.
type BackendCheck struct {
	Nodes func() (NodeLister, error)

	// First is the first listed node id, 0 when none.
	First int
}

func (c *BackendCheck) Name() string     { return "rest_api" }
func (c *BackendCheck) Category() string { return CategoryBackend }

func (c *BackendCheck) Run(ctx context.Context) CheckResult {
	lister, err := c.Nodes()
	if err != nil {
		return failure(c, err)
	}

	start := time.Now()
	nodes, err := lister.ListNodes(ctx, nodeapi.ListOptions{Limit: 10})
	if err != nil {
		return failure(c, err)
	}
	latency := time.Since(start)

	if len(nodes) == 0 {
		return CheckResult{
			Name:       c.Name(),
			Status:     StatusWarn,
			Message:    "Backend answered but lists no nodes",
			Suggestion: "Register a node with the VPS Pilot agent",
			Latency:    latency,
		}
	}
	c.First = nodes[0].ID
	return CheckResult{
		Name:    c.Name(),
		Status:  StatusPass,
		Message: fmt.Sprintf("Backend lists %d node%s", len(nodes), pluralize(len(nodes))),
		Latency: latency,
	}
}

// FrameProbe waits for the first frame of a node's stream.
type FrameProbe func(ctx context.Context, nodeID int, r metrics.TimeRange) (*metrics.Frame, error)

// StreamCheck subscribes to one node and waits for a frame. NodeID is
// called at run time so it can come from an earlier BackendCheck.
type StreamCheck struct {
	NodeID func() (int, error)
	Range  metrics.TimeRange
	Probe  FrameProbe
}

func (c *StreamCheck) Name() string     { return "system_stat" }
func (c *StreamCheck) Category() string { return CategoryStream }

func (c *StreamCheck) Run(ctx context.Context) CheckResult {
	id, err := c.NodeID()
	if err != nil {
		return failure(c, err)
	}

	start := time.Now()
	f, err := c.Probe(ctx, id, c.Range)
	if err != nil {
		return failure(c, err)
	}
	latency := time.Since(start)

	series := len(f.Keys())
	if f.Empty() {
		return CheckResult{
			Name:       c.Name(),
			Status:     StatusWarn,
			Message:    fmt.Sprintf("Node %d pushed an empty %s frame", id, c.Range.Code()),
			Suggestion: "The node may not have reported yet; check its agent",
			Latency:    latency,
		}
	}
	return CheckResult{
		Name:    c.Name(),
		Status:  StatusPass,
		Message: fmt.Sprintf("Node %d pushed a %s frame with %d series", id, c.Range.Code(), series),
		Latency: latency,
	}
}
