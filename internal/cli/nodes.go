package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"github.com/vpspilot/pilot/internal/nodeapi"
	"github.com/vpspilot/pilot/internal/ui"
)

// nodesOptions holds the flags of `pilot nodes`.
type nodesOptions struct {
	Search string
	Page   int
	Limit  int
}

var nodesFlags nodesOptions

var nodesCmd = &cobra.Command{
	Use:   "nodes",
	Short: "List nodes known to the backend",
	Long: `List the nodes registered with the backend, one page at a time.

Examples:
  pilot nodes
  pilot nodes --search web
  pilot nodes --page 2 --limit 20
  pilot nodes --json`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		b, err := loadBackend(cmd.Context())
		if err != nil {
			return err
		}
		defer b.Close()
		return nodesCommand(cmd.Context(), cmd.OutOrStdout(), b.Nodes(), nodesFlags)
	},
}

func init() {
	rootCmd.AddCommand(nodesCmd)
	nodesCmd.Flags().StringVarP(&nodesFlags.Search, "search", "s", "", "filter by name or IP")
	nodesCmd.Flags().IntVar(&nodesFlags.Page, "page", 1, "page number")
	nodesCmd.Flags().IntVar(&nodesFlags.Limit, "limit", 10, "nodes per page")
}

func nodesCommand(ctx context.Context, out io.Writer, client *nodeapi.Client, opts nodesOptions) error {
	nodes, err := client.ListNodes(ctx, nodeapi.ListOptions{
		Search: opts.Search,
		Page:   opts.Page,
		Limit:  opts.Limit,
	})
	if err != nil {
		return err
	}

	if MachineMode() {
		if nodes == nil {
			nodes = []nodeapi.Node{}
		}
		return WriteJSONSuccess(out, nodes)
	}

	rows := make([]ui.NodeRow, 0, len(nodes))
	for _, n := range nodes {
		rows = append(rows, ui.NodeRow{
			ID:       n.ID,
			Name:     n.DisplayName(),
			IP:       n.IP,
			OS:       n.OS,
			CPUs:     n.CPUs,
			MemoryGB: n.MemoryGB(),
		})
	}
	fmt.Fprint(out, ui.RenderNodesTable(rows))

	page := max(opts.Page, 1)
	if len(nodes) > 0 {
		fmt.Fprintln(out, ui.MutedStyle().Render(fmt.Sprintf("page %d · %d shown", page, len(nodes))))
	}
	return nil
}
