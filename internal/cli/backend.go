package cli

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/vpspilot/pilot/internal/config"
	"github.com/vpspilot/pilot/internal/errors"
	"github.com/vpspilot/pilot/internal/logger"
	"github.com/vpspilot/pilot/internal/metrics"
	"github.com/vpspilot/pilot/internal/nodeapi"
	"github.com/vpspilot/pilot/internal/stream"
	"github.com/vpspilot/pilot/internal/ui"
	"github.com/vpspilot/pilot/pkg/sshutil"
)

const tunnelKeepAlive = 30 * time.Second

// backendOptions say where to load config from and what to override.
type backendOptions struct {
	ConfigPath string
	Server     string
}

// backend is the resolved config plus everything built from it: the REST
// client, the stream options and the SSH tunnel when one is configured.
// Close it when done.
type backend struct {
	cfg    *config.Config
	path   string
	log    logger.Logger
	tunnel *sshutil.Tunnel
	nodes  *nodeapi.Client
	stream []stream.Option

	stopKeepAlive context.CancelFunc
}

// loadBackend opens a backend from the global flags.
func loadBackend(ctx context.Context) (*backend, error) {
	return openBackend(ctx, backendOptions{ConfigPath: Config(), Server: serverFlag})
}

func openBackend(ctx context.Context, opts backendOptions) (*backend, error) {
	cfg, path, err := config.LoadOrDefault(opts.ConfigPath)
	if err != nil {
		return nil, err
	}
	if opts.Server != "" {
		cfg.Server.URL = opts.Server
	}
	if err := config.Validate(cfg); err != nil {
		return nil, err
	}
	if cfg.Log.Debug {
		os.Setenv(logger.DebugEnv, "1")
	}
	return newBackend(ctx, cfg, path)
}

// newBackend builds a backend for an already validated config.
func newBackend(ctx context.Context, cfg *config.Config, path string) (*backend, error) {
	b := &backend{
		cfg:  cfg,
		path: path,
		log:  logger.NewEnvLogger("[pilot]"),
	}

	if cfg.Server.SSHTunnel != "" {
		if err := b.openTunnel(ctx); err != nil {
			return nil, err
		}
	}

	if err := b.build(); err != nil {
		b.Close()
		return nil, err
	}
	return b, nil
}

func (b *backend) openTunnel(ctx context.Context) error {
	t, err := sshutil.DialContext(ctx, b.cfg.Server.SSHTunnel, b.cfg.Server.Timeout)
	if err != nil {
		return err
	}
	b.tunnel = t
	b.log.Debug("tunnel to %s (%s) open", t.Host(), t.Address())

	kctx, cancel := context.WithCancel(context.Background())
	b.stopKeepAlive = cancel
	go func() {
		if err := t.KeepAlive(kctx, tunnelKeepAlive); err != nil {
			b.log.Warn("tunnel lost: %v", err)
			ui.PrintWarning(fmt.Sprintf("SSH tunnel to '%s' stopped responding", t.Host()))
		}
	}()
	return nil
}

func (b *backend) build() error {
	server := b.cfg.Server

	nc := nodeapi.DefaultConfig(server.APIBase())
	nc.Token = server.Token
	nc.Timeout = server.Timeout
	nc.RetryCount = server.Retries
	nc.CacheTTL = server.CacheTTL
	nc.Logger = logger.NewEnvLogger("[nodeapi]")

	url, err := stream.StreamURL(server.URL, server.APIPrefix, server.StreamPath)
	if err != nil {
		return err
	}
	dialer := &stream.WebSocketDialer{HandshakeTimeout: server.Timeout}
	if server.Token != "" {
		dialer.Header = http.Header{"Authorization": {"Bearer " + server.Token}}
	}

	if b.tunnel != nil {
		nc.DialContext = b.tunnel.DialContext
		dialer.NetDialContext = b.tunnel.DialContext
	}

	b.nodes = nodeapi.NewClient(nc)
	b.stream = []stream.Option{
		stream.WithURL(url),
		stream.WithDialer(dialer),
		stream.WithDecoder(metrics.NewDecoder(b.cfg.Stream.NetworkFields)),
		stream.WithRefreshInterval(b.cfg.Stream.RefreshInterval),
		stream.WithDialTimeout(server.Timeout),
	}
	return nil
}

// Nodes returns the REST client.
func (b *backend) Nodes() *nodeapi.Client {
	return b.nodes
}

// Open starts a stream session with the configured transport. Matches
// monitor.OpenFunc.
func (b *backend) Open(nodeID int, r metrics.TimeRange, extra ...stream.Option) (*stream.Session, error) {
	opts := make([]stream.Option, 0, len(b.stream)+len(extra))
	opts = append(opts, b.stream...)
	opts = append(opts, extra...)
	return stream.Open(nodeID, r, opts...)
}

// Range resolves a --range flag, falling back to stream.default_range.
func (b *backend) Range(flag string) (metrics.TimeRange, error) {
	if strings.TrimSpace(flag) == "" {
		return b.cfg.Stream.Range()
	}
	return metrics.ParseTimeRange(flag)
}

// LogFile is log.file, or pilot.log under the user cache dir.
func (b *backend) LogFile() string {
	if b.cfg.Log.File != "" {
		return b.cfg.Log.File
	}
	dir, err := os.UserCacheDir()
	if err != nil {
		dir = os.TempDir()
	}
	return filepath.Join(dir, "pilot", "pilot.log")
}

// Close tears down the tunnel, if any.
func (b *backend) Close() error {
	if b.stopKeepAlive != nil {
		b.stopKeepAlive()
	}
	if b.tunnel != nil {
		return b.tunnel.Close()
	}
	return nil
}

// parseNodeID parses a positional node id.
func parseNodeID(arg string) (int, error) {
	id, err := strconv.Atoi(strings.TrimSpace(arg))
	if err != nil || id <= 0 {
		return 0, errors.New(errors.ErrConfig,
			fmt.Sprintf("'%s' isn't a node id", arg),
			"Node ids are positive integers. List them with: pilot nodes")
	}
	return id, nil
}

// redirectLogs sends log output to path so it stays off the terminal. The
// closer restores stderr.
func redirectLogs(path string) (io.Closer, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, errors.WrapWithCode(err, errors.ErrConfig,
			"Can't create log directory for "+path,
			"Set log.file in .pilot.yaml to a writable path")
	}
	closer, err := logger.OpenFile(path)
	if err != nil {
		return nil, errors.WrapWithCode(err, errors.ErrConfig,
			"Can't open log file "+path,
			"Set log.file in .pilot.yaml to a writable path")
	}
	return closer, nil
}
