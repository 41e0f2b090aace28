package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/vpspilot/pilot/internal/errors"
	"github.com/vpspilot/pilot/internal/metrics"
	"github.com/vpspilot/pilot/internal/monitor"
	"github.com/vpspilot/pilot/internal/nodeapi"
	"github.com/vpspilot/pilot/internal/stream"
	"github.com/vpspilot/pilot/internal/ui"
)

const (
	snapshotWidth   = 40
	snapshotTimeout = 15 * time.Second
)

// nodeOptions holds the flags of `pilot node`.
type nodeOptions struct {
	NodeID   int
	Rename   string
	Snapshot bool
	Range    string
}

var nodeFlags nodeOptions

var nodeCmd = &cobra.Command{
	Use:   "node <node-id>",
	Short: "Show one node's details",
	Long: `Show a node's descriptor: name, address, OS, CPU count and memory.

With --snapshot, pilot also subscribes to the node's stream, waits for the
first frame and prints a sparkline per series.

Examples:
  pilot node 3
  pilot node 3 --snapshot --range 1H
  pilot node 3 --rename web-fra-2`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseNodeID(args[0])
		if err != nil {
			return err
		}
		opts := nodeFlags
		opts.NodeID = id

		b, err := loadBackend(cmd.Context())
		if err != nil {
			return err
		}
		defer b.Close()
		return nodeCommand(cmd.Context(), cmd.OutOrStdout(), b, opts)
	},
}

func init() {
	rootCmd.AddCommand(nodeCmd)
	nodeCmd.Flags().StringVar(&nodeFlags.Rename, "rename", "", "change the node's display name")
	nodeCmd.Flags().BoolVar(&nodeFlags.Snapshot, "snapshot", false, "wait for one frame and print sparklines")
	nodeCmd.Flags().StringVarP(&nodeFlags.Range, "range", "r", "", "time range for --snapshot")
}

// nodeDetail is the --json form of `pilot node`.
type nodeDetail struct {
	Node     *nodeapi.Node `json:"node"`
	Snapshot *frameLine    `json:"snapshot,omitempty"`
}

func nodeCommand(ctx context.Context, out io.Writer, b *backend, opts nodeOptions) error {
	client := b.Nodes()

	if opts.Rename != "" {
		if err := client.Rename(ctx, opts.NodeID, opts.Rename); err != nil {
			return err
		}
		if !MachineMode() {
			fmt.Fprintf(out, "%s Renamed node %d to '%s'\n\n",
				ui.SuccessStyle().Render(ui.SymbolSuccess), opts.NodeID, strings.TrimSpace(opts.Rename))
		}
	}

	node, err := client.GetNode(ctx, opts.NodeID)
	if err != nil {
		return err
	}

	var frame *metrics.Frame
	if opts.Snapshot {
		r, err := b.Range(opts.Range)
		if err != nil {
			return err
		}
		fetch := func() error {
			frame, err = firstFrame(ctx, b, opts.NodeID, r, snapshotTimeout)
			return err
		}
		if MachineMode() {
			err = fetch()
		} else {
			err = ui.RunWithSpinner(os.Stderr, fmt.Sprintf("Waiting for %s of node %d", r.Code(), opts.NodeID), fetch)
		}
		if err != nil {
			return err
		}
	}

	if MachineMode() {
		detail := nodeDetail{Node: node}
		if frame != nil {
			line := newFrameLine(frame)
			detail.Snapshot = &line
		}
		return WriteJSONSuccess(out, detail)
	}

	fmt.Fprintln(out, ui.InfoStyle().Bold(true).Render(node.DisplayName()))
	fmt.Fprint(out, ui.RenderDetails(nodePairs(node)))
	if frame != nil {
		fmt.Fprintln(out)
		fmt.Fprint(out, renderSnapshot(frame))
	}
	return nil
}

func nodePairs(n *nodeapi.Node) []ui.KeyValue {
	platform := strings.TrimSpace(n.Platform + " " + n.PlatformVersion)
	memory := ""
	if gb := n.MemoryGB(); gb > 0 {
		memory = fmt.Sprintf("%.1f GB", gb)
	}
	cpus := ""
	if n.CPUs > 0 {
		cpus = strconv.Itoa(n.CPUs)
	}
	return []ui.KeyValue{
		{Key: "ID", Value: strconv.Itoa(n.ID)},
		{Key: "Name", Value: n.Name},
		{Key: "IP", Value: n.IP},
		{Key: "OS", Value: n.OS},
		{Key: "Platform", Value: platform},
		{Key: "Kernel", Value: n.KernelVersion},
		{Key: "CPUs", Value: cpus},
		{Key: "Memory", Value: memory},
	}
}

// renderSnapshot prints one sparkline per series with its newest value.
func renderSnapshot(f *metrics.Frame) string {
	series := f.Series()
	pairs := make([]ui.KeyValue, 0, len(series))
	for _, key := range f.Keys() {
		samples := series[key]
		if len(samples) == 0 {
			continue
		}
		values := make([]float64, len(samples))
		for i, s := range samples {
			values[i] = s.Value
		}
		latest := values[len(values)-1]

		scale, value := ui.ScalePercent, fmt.Sprintf("%.1f%%", latest)
		if key.Kind == metrics.KindNetworkReceived || key.Kind == metrics.KindNetworkSent {
			scale, value = ui.ScaleAuto, monitor.FormatRate(latest)
		}
		pairs = append(pairs, ui.KeyValue{
			Key:   key.Label(),
			Value: ui.RenderSparkline(values, snapshotWidth, scale) + "  " + value,
		})
	}
	if len(pairs) == 0 {
		return ui.MutedStyle().Render("  frame carried no samples") + "\n"
	}
	return ui.RenderDetails(pairs)
}

// firstFrame opens a session, waits for its first frame and closes it.
func firstFrame(ctx context.Context, b *backend, nodeID int, r metrics.TimeRange, timeout time.Duration) (*metrics.Frame, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	got := make(chan *metrics.Frame, 1)
	ended := make(chan struct{}, 1)
	session, err := b.Open(nodeID, r,
		stream.WithFrameHandler(func(f *metrics.Frame) {
			select {
			case got <- f:
			default:
			}
		}),
		stream.WithStateHandler(func(s stream.State) {
			if s.Terminal() {
				select {
				case ended <- struct{}{}:
				default:
				}
			}
		}))
	if err != nil {
		return nil, err
	}
	defer session.Close()

	select {
	case f := <-got:
		return f, nil
	case <-ended:
		// a frame and the close can race; prefer the frame
		select {
		case f := <-got:
			return f, nil
		default:
		}
		return nil, errors.New(errors.ErrTransport,
			fmt.Sprintf("Stream for node %d ended before the first frame", nodeID),
			"Check the backend is reachable; run with --verbose for details")
	case <-ctx.Done():
		return nil, errors.WrapWithCode(ctx.Err(), errors.ErrTransport,
			fmt.Sprintf("No frame from node %d within %s", nodeID, timeout),
			"The backend answers each query with a frame; check it is running")
	}
}
