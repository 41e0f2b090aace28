package devserver

import (
	"fmt"
	"math"
	"time"

	"github.com/vpspilot/pilot/internal/metrics"
	"github.com/vpspilot/pilot/internal/nodeapi"
)

// CPUShape selects how the cpu series is laid out on the wire.
type CPUShape int

const (
	// CPUShapeRows sends pivoted rows [{time, timestamp, cpu_1, ...}], the
	// layout of the production backend.
	CPUShapeRows CPUShape = iota
	// CPUShapeMap sends {"1": [{time, value}], ...}.
	CPUShapeMap
)

// maxPoints bounds how many samples one window carries.
const maxPoints = 60

// Generator produces deterministic synthetic windows. The same node, range
// and clock always yield the same payload.
type Generator struct {
	Nodes  []nodeapi.Node
	Shape  CPUShape
	Fields metrics.NetworkFields
	Now    func() time.Time
}

// DefaultNodes returns the demo fleet.
func DefaultNodes() []nodeapi.Node {
	return []nodeapi.Node{
		{ID: 1, Name: "web-1", IP: "10.0.0.11", OS: "linux", Platform: "ubuntu", PlatformVersion: "24.04", KernelVersion: "6.8.0-45-generic", CPUs: 4, Memory: 8 * (1 << 30)},
		{ID: 2, Name: "db-1", IP: "10.0.0.21", OS: "linux", Platform: "debian", PlatformVersion: "12", KernelVersion: "6.1.0-25-amd64", CPUs: 8, Memory: 32 * (1 << 30)},
		{ID: 3, Name: "", IP: "10.0.0.31", OS: "linux", Platform: "alpine", PlatformVersion: "3.20", KernelVersion: "6.6.49-0-lts", CPUs: 2, Memory: 2 * (1 << 30)},
	}
}

// NewGenerator returns a generator for nodes using the production layout.
func NewGenerator(nodes []nodeapi.Node) *Generator {
	return &Generator{
		Nodes:  nodes,
		Shape:  CPUShapeRows,
		Fields: metrics.DefaultNetworkFields(),
		Now:    time.Now,
	}
}

// Node looks up a node by id.
func (g *Generator) Node(id int) (nodeapi.Node, bool) {
	for _, n := range g.Nodes {
		if n.ID == id {
			return n, true
		}
	}
	return nodeapi.Node{}, false
}

// Step returns the spacing between samples for a range.
func Step(r metrics.TimeRange) time.Duration {
	step := r.Duration() / maxPoints
	if step < time.Second {
		step = time.Second
	}
	return step.Truncate(time.Second)
}

// Window builds the full-window payload for one node and range. Unknown nodes
// get empty series, as the backend answers for a node with no stats.
func (g *Generator) Window(nodeID int, r metrics.TimeRange) map[string]any {
	node, ok := g.Node(nodeID)
	now := g.Now().UTC()
	step := Step(r)
	end := now.Truncate(step)

	var stamps []time.Time
	if ok {
		for t := end.Add(-r.Duration()).Add(step); !t.After(end); t = t.Add(step) {
			stamps = append(stamps, t)
		}
	}

	mem := make([]map[string]any, 0, len(stamps))
	net := make([]map[string]any, 0, len(stamps))
	for _, t := range stamps {
		mem = append(mem, map[string]any{
			"time":  t.Format(time.RFC3339),
			"value": round2(wave(nodeID, 100, t, 55, 20)),
		})
		net = append(net, map[string]any{
			"time":            t.Format(time.RFC3339),
			g.Fields.Received: math.Round(throughput(nodeID, 200, t)),
			g.Fields.Sent:     math.Round(throughput(nodeID, 300, t) / 3),
		})
	}

	return map[string]any{
		"node_id":    nodeID,
		"time_range": r.Interval(),
		"cpu":        g.cpu(node, stamps),
		"mem":        mem,
		"net":        net,
	}
}

func (g *Generator) cpu(node nodeapi.Node, stamps []time.Time) any {
	if g.Shape == CPUShapeMap {
		cores := make(map[string]any, node.CPUs)
		for c := 1; c <= node.CPUs; c++ {
			samples := make([]map[string]any, 0, len(stamps))
			for _, t := range stamps {
				samples = append(samples, map[string]any{
					"time":  t.Format(time.RFC3339),
					"value": round2(wave(node.ID, c, t, 35, 30)),
				})
			}
			cores[fmt.Sprint(c)] = samples
		}
		return cores
	}

	rows := make([]map[string]any, 0, len(stamps))
	for _, t := range stamps {
		row := map[string]any{
			"time":      t.Format("2006-01-02 15:04:05"),
			"timestamp": t.Unix(),
		}
		for c := 1; c <= node.CPUs; c++ {
			row[fmt.Sprintf("cpu_%d", c)] = round2(wave(node.ID, c, t, 35, 30))
		}
		rows = append(rows, row)
	}
	return rows
}

// wave is a smooth, bounded percentage that depends only on its inputs.
func wave(node, series int, t time.Time, mid, amp float64) float64 {
	x := float64(t.Unix())
	phase := float64(node)*1.7 + float64(series)*0.9
	v := mid + amp*math.Sin(x/90+phase) + amp/3*math.Sin(x/17+phase*2)
	return math.Max(0, math.Min(100, v))
}

func throughput(node, series int, t time.Time) float64 {
	x := float64(t.Unix())
	phase := float64(node)*2.3 + float64(series)*0.4
	return 250_000 * (1.6 + math.Sin(x/120+phase) + 0.5*math.Sin(x/13+phase))
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
