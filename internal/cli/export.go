package cli

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"github.com/vpspilot/pilot/internal/errors"
	"github.com/vpspilot/pilot/internal/exporter"
	"github.com/vpspilot/pilot/internal/metrics"
	"github.com/vpspilot/pilot/internal/stream"
)

const (
	defaultExportListen = ":9105"
	reconnectDelay      = 5 * time.Second
)

// exportOptions holds the flags of `pilot export`.
type exportOptions struct {
	NodeID int
	Range  string
	Listen string
	// Name overrides the node label; the node id is used when empty.
	Name string
}

var exportFlags exportOptions

var exportCmd = &cobra.Command{
	Use:   "export <node-id>",
	Short: "Serve a node's latest values as Prometheus metrics",
	Long: `Subscribe to a node's stream and serve the newest value of every series
on /metrics in the Prometheus text format, together with stream counters.
The stream is reopened if it closes or fails.

Examples:
  pilot export 3
  pilot export 3 --listen 127.0.0.1:9200 --name web-fra`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseNodeID(args[0])
		if err != nil {
			return err
		}
		opts := exportFlags
		opts.NodeID = id

		b, err := loadBackend(cmd.Context())
		if err != nil {
			return err
		}
		defer b.Close()
		return exportCommand(cmd.Context(), b, opts)
	},
}

func init() {
	rootCmd.AddCommand(exportCmd)
	exportCmd.Flags().StringVar(&exportFlags.Listen, "listen", defaultExportListen, "address to serve /metrics on")
	exportCmd.Flags().StringVarP(&exportFlags.Range, "range", "r", "", "time range to subscribe with")
	exportCmd.Flags().StringVar(&exportFlags.Name, "name", "", "node label value (default: node id)")
}

// exportCommand serves /metrics until ctx is done.
func exportCommand(ctx context.Context, b *backend, opts exportOptions) error {
	r, err := b.Range(opts.Range)
	if err != nil {
		return err
	}

	session, err := b.Open(opts.NodeID, r)
	if err != nil {
		return err
	}
	exp := exporter.New(session, opts.Name)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	current := make(chan *stream.Session, 1)
	go superviseExport(ctx, b, exp, session, opts.NodeID, r, current)

	mux := http.NewServeMux()
	mux.Handle("/metrics", exporter.Handler(exp))
	mux.HandleFunc("/", func(w http.ResponseWriter, req *http.Request) {
		fmt.Fprintf(w, "pilot exporter for node %d: see /metrics\n", opts.NodeID)
	})

	srv := &http.Server{
		Addr:              opts.Listen,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		b.log.Info("serving metrics for node %d on %s", opts.NodeID, opts.Listen)
		errCh <- srv.ListenAndServe()
	}()

	var serveErr error
	select {
	case <-ctx.Done():
		shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
		serveErr = srv.Shutdown(shutdownCtx)
		done()
	case err := <-errCh:
		if err != http.ErrServerClosed {
			serveErr = errors.WrapWithCode(err, errors.ErrConfig,
				"Can't serve metrics on "+opts.Listen,
				"Pick another address with --listen")
		}
	}

	cancel()
	(<-current).Close()
	return serveErr
}

// superviseExport reopens the session whenever it ends, until ctx is done.
// The live session is handed back on current when it returns.
func superviseExport(ctx context.Context, b *backend, exp *exporter.Exporter, s *stream.Session,
	nodeID int, r metrics.TimeRange, current chan<- *stream.Session) {
	defer func() { current <- s }()
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.Done():
		}
		b.log.Warn("stream for node %d ended (%s), reopening in %s", nodeID, s.State(), reconnectDelay)

		select {
		case <-ctx.Done():
			return
		case <-time.After(reconnectDelay):
		}

		next, err := b.Open(nodeID, r)
		if err != nil {
			b.log.Error("reopen node %d: %v", nodeID, err)
			continue
		}
		s = next
		exp.SetSource(s)
	}
}
