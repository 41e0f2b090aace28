package cli

import (
	"context"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"github.com/vpspilot/pilot/internal/errors"
	"github.com/vpspilot/pilot/internal/logger"
	"github.com/vpspilot/pilot/internal/monitor"
	"github.com/vpspilot/pilot/internal/nodeapi"
	"github.com/vpspilot/pilot/internal/ui"
	"golang.org/x/term"
)

// watchListLimit caps how many nodes are fetched for n/p rotation when
// neither arguments nor dashboard.node_ids name any.
const watchListLimit = 100

var watchRangeFlag string

var watchCmd = &cobra.Command{
	Use:   "watch [node-id...]",
	Short: "Live dashboard for a node",
	Long: `Open a full-screen dashboard with a node's CPU, memory and network charts.

With several node ids, n and p switch between them. Without any, the
rotation comes from dashboard.node_ids or, failing that, the backend's
node list.

When stdout is not a terminal, the first node's frames are printed as
JSON lines instead (same as 'pilot stream').

Keyboard shortcuts:
  1-6          Select time range (5M 15M 1H 1D 2D 7D)
  tab/S-tab    Next / previous time range
  n / p        Next / previous node
  r            Reconnect after the stream closed or failed
  ?            Help
  q / Ctrl+C   Quit

Examples:
  pilot watch 3
  pilot watch 3 4 7 --range 1H`,
	RunE: func(cmd *cobra.Command, args []string) error {
		b, err := loadBackend(cmd.Context())
		if err != nil {
			return err
		}
		defer b.Close()

		ids, err := watchNodeIDs(cmd.Context(), b, args)
		if err != nil {
			return err
		}

		if !term.IsTerminal(int(os.Stdout.Fd())) {
			ui.PrintWarning("stdout is not a terminal, printing JSON lines instead of the dashboard")
			return streamCommand(cmd.Context(), cmd.OutOrStdout(), b, streamOptions{
				NodeID: ids[0],
				Range:  watchRangeFlag,
			})
		}
		return watchCommand(cmd.Context(), b, ids, watchRangeFlag)
	},
}

func init() {
	rootCmd.AddCommand(watchCmd)
	watchCmd.Flags().StringVarP(&watchRangeFlag, "range", "r", "", "initial time range: 5M, 15M, 1H, 1D, 2D or 7D")
}

// watchNodeIDs picks the rotation: arguments, then dashboard.node_ids,
// then whatever the backend lists.
func watchNodeIDs(ctx context.Context, b *backend, args []string) ([]int, error) {
	if len(args) > 0 {
		ids := make([]int, 0, len(args))
		for _, a := range args {
			id, err := parseNodeID(a)
			if err != nil {
				return nil, err
			}
			ids = append(ids, id)
		}
		return ids, nil
	}

	if len(b.cfg.Dashboard.NodeIDs) > 0 {
		return b.cfg.Dashboard.NodeIDs, nil
	}

	nodes, err := b.Nodes().ListNodes(ctx, nodeapi.ListOptions{Limit: watchListLimit})
	if err != nil {
		return nil, err
	}
	if len(nodes) == 0 {
		return nil, errors.New(errors.ErrConfig,
			"No nodes to watch",
			"The backend lists no nodes; pass an id: pilot watch <node-id>")
	}
	ids := make([]int, len(nodes))
	for i, n := range nodes {
		ids[i] = n.ID
	}
	return ids, nil
}

// watchCommand runs the dashboard until the user quits.
func watchCommand(ctx context.Context, b *backend, ids []int, rangeFlag string) error {
	r, err := b.Range(rangeFlag)
	if err != nil {
		return err
	}

	// Log lines would tear the alternate screen.
	logs, err := redirectLogs(b.LogFile())
	if err != nil {
		return err
	}
	defer logs.Close()

	model, err := monitor.NewModel(monitor.Options{
		NodeIDs:       ids,
		Range:         r,
		HistoryWindow: b.cfg.Dashboard.HistoryWindow,
		Open:          b.Open,
		Describe:      b.Nodes().GetNode,
		Logger:        logger.NewEnvLogger("[watch]"),
	})
	if err != nil {
		return err
	}

	p := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx))
	final, err := p.Run()
	if m, ok := final.(monitor.Model); ok {
		m.Close()
	} else {
		model.Close()
	}
	if err != nil && ctx.Err() != nil {
		// interrupted by a signal
		return nil
	}
	return err
}
