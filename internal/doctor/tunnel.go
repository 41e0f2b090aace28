package doctor

import (
	"context"
	"fmt"
	"time"

	"github.com/vpspilot/pilot/pkg/sshutil"
)

// TunnelCheck opens and closes an SSH connection to Host. An empty Host
// means no tunnel is configured and passes.
type TunnelCheck struct {
	Host    string
	Timeout time.Duration
}

func (c *TunnelCheck) Name() string     { return "ssh_tunnel" }
func (c *TunnelCheck) Category() string { return CategoryTunnel }

func (c *TunnelCheck) Run(ctx context.Context) CheckResult {
	if c.Host == "" {
		return CheckResult{
			Name:    c.Name(),
			Status:  StatusPass,
			Message: "No SSH tunnel configured, connecting directly",
		}
	}

	start := time.Now()
	t, err := sshutil.DialContext(ctx, c.Host, c.Timeout)
	if err != nil {
		r := failure(c, err)
		if r.Suggestion == "" {
			r.Suggestion = fmt.Sprintf("Check you can run: ssh %s", c.Host)
		}
		return r
	}
	latency := time.Since(start)
	t.Close() //nolint:errcheck // probe connection only

	return CheckResult{
		Name:    c.Name(),
		Status:  StatusPass,
		Message: fmt.Sprintf("Connected to %s (%s)", c.Host, t.Address()),
		Latency: latency,
	}
}
