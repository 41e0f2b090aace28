package cli

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"
	"github.com/vpspilot/pilot/internal/chart"
	"github.com/vpspilot/pilot/internal/errors"
	"github.com/vpspilot/pilot/internal/metrics"
	"github.com/vpspilot/pilot/internal/stream"
)

// streamOptions holds the flags of `pilot stream`.
type streamOptions struct {
	NodeID int
	Range  string
	// Rows prints projected chart tables instead of raw series.
	Rows bool
	// Count stops after this many frames; 0 runs until interrupted.
	Count int
}

var streamFlags streamOptions

var streamCmd = &cobra.Command{
	Use:   "stream <node-id>",
	Short: "Print a node's frames as JSON lines",
	Long: `Subscribe to a node's system-stat stream and print every frame as one
line of JSON. With --rows each line holds the aligned CPU, memory and network
tables the dashboard draws instead of the raw series.

Examples:
  pilot stream 3
  pilot stream 3 --range 1H --count 1
  pilot stream 3 --rows | jq '.cpu[-1]'`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseNodeID(args[0])
		if err != nil {
			return err
		}
		opts := streamFlags
		opts.NodeID = id

		b, err := loadBackend(cmd.Context())
		if err != nil {
			return err
		}
		defer b.Close()
		return streamCommand(cmd.Context(), cmd.OutOrStdout(), b, opts)
	},
}

func init() {
	rootCmd.AddCommand(streamCmd)
	streamCmd.Flags().StringVarP(&streamFlags.Range, "range", "r", "", "time range: 5M, 15M, 1H, 1D, 2D or 7D")
	streamCmd.Flags().BoolVar(&streamFlags.Rows, "rows", false, "print aligned chart rows instead of raw series")
	streamCmd.Flags().IntVarP(&streamFlags.Count, "count", "n", 0, "exit after N frames (0 = until interrupted)")
}

// sampleLine is one sample as printed by `pilot stream`.
type sampleLine struct {
	Time  string  `json:"time"`
	Value float64 `json:"value"`
}

// frameLine is the raw form of one frame.
type frameLine struct {
	Node   int                     `json:"node"`
	Range  string                  `json:"range"`
	Series map[string][]sampleLine `json:"series"`
}

// rowsLine is the --rows form of one frame.
type rowsLine struct {
	Node    int                `json:"node"`
	Range   string             `json:"range"`
	CPU     []chart.AlignedRow `json:"cpu"`
	Memory  []chart.AlignedRow `json:"memory"`
	Network []chart.AlignedRow `json:"network"`
}

func newFrameLine(f *metrics.Frame) frameLine {
	line := frameLine{
		Node:   f.NodeID,
		Range:  f.Range.Code(),
		Series: make(map[string][]sampleLine),
	}
	for key, samples := range f.Series() {
		out := make([]sampleLine, len(samples))
		for i, s := range samples {
			out[i] = sampleLine{Time: s.Time.UTC().Format(time.RFC3339Nano), Value: s.Value}
		}
		line.Series[key.String()] = out
	}
	return line
}

func newRowsLine(f *metrics.Frame) rowsLine {
	c := chart.Project(f)
	return rowsLine{
		Node:    f.NodeID,
		Range:   f.Range.Code(),
		CPU:     c.CPU.Rows,
		Memory:  c.Memory.Rows,
		Network: c.Network.Rows,
	}
}

// streamCommand prints frames until ctx is done, the stream ends, or Count
// frames have been written.
func streamCommand(ctx context.Context, out io.Writer, b *backend, opts streamOptions) error {
	r, err := b.Range(opts.Range)
	if err != nil {
		return err
	}

	frames := make(chan *metrics.Frame, 16)
	states := make(chan stream.State, 8)
	done := make(chan struct{})
	defer close(done)

	session, err := b.Open(opts.NodeID, r,
		stream.WithFrameHandler(func(f *metrics.Frame) {
			select {
			case frames <- f:
			case <-done:
			}
		}),
		stream.WithStateHandler(func(s stream.State) {
			select {
			case states <- s:
			case <-done:
			}
		}))
	if err != nil {
		return err
	}
	defer session.Close()

	enc := json.NewEncoder(out)
	written := 0
	write := func(f *metrics.Frame) (bool, error) {
		var line any = newFrameLine(f)
		if opts.Rows {
			line = newRowsLine(f)
		}
		if err := enc.Encode(line); err != nil {
			return true, fmt.Errorf("write frame: %w", err)
		}
		written++
		return opts.Count > 0 && written >= opts.Count, nil
	}

	for {
		select {
		case <-ctx.Done():
			return nil

		case f := <-frames:
			if stop, err := write(f); stop {
				return err
			}

		case s := <-states:
			switch s {
			case stream.StateFailed:
				return errors.New(errors.ErrTransport,
					fmt.Sprintf("Stream for node %d failed", opts.NodeID),
					"Check the backend is reachable; run with --verbose for details")
			case stream.StateClosed:
				// frames queued before the close still go out
				for {
					select {
					case f := <-frames:
						if stop, err := write(f); stop {
							return err
						}
					default:
						return nil
					}
				}
			}
		}
	}
}
