package cli

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"github.com/vpspilot/pilot/internal/config"
	"github.com/vpspilot/pilot/internal/doctor"
	"github.com/vpspilot/pilot/internal/metrics"
	"github.com/vpspilot/pilot/internal/ui"
)

const doctorFrameTimeout = 10 * time.Second

var doctorNodeID int

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check the config, tunnel, backend and stream",
	Long: `Walk the path from the config file to a live frame and report what
works: config discovery and validation, the SSH tunnel if one is set, the REST
API and one system-stat subscription.

Examples:
  pilot doctor
  pilot doctor --node 3
  pilot doctor --json`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return doctorCommand(cmd.Context(), cmd.OutOrStdout(), doctorOptions{
			ConfigPath: Config(),
			Server:     serverFlag,
			NodeID:     doctorNodeID,
		})
	},
}

func init() {
	rootCmd.AddCommand(doctorCmd)
	doctorCmd.Flags().IntVar(&doctorNodeID, "node", 0, "node to subscribe to (default: first listed)")
}

type doctorOptions struct {
	ConfigPath string
	Server     string
	NodeID     int
}

// DoctorOutput is the --json form of `pilot doctor`.
type DoctorOutput struct {
	Categories []CategoryOutput `json:"categories"`
	Summary    SummaryOutput    `json:"summary"`
}

// CategoryOutput represents a category of check results.
type CategoryOutput struct {
	Name    string               `json:"name"`
	Results []doctor.CheckResult `json:"results"`
}

// SummaryOutput summarizes the check results.
type SummaryOutput struct {
	Pass     int  `json:"pass"`
	Warn     int  `json:"warn"`
	Fail     int  `json:"fail"`
	AllClear bool `json:"all_clear"`
}

func doctorCommand(ctx context.Context, out io.Writer, opts doctorOptions) error {
	schema := &doctor.ConfigSchemaCheck{ConfigPath: opts.ConfigPath, Server: opts.Server}
	results := doctor.RunAll(ctx, []doctor.Check{
		&doctor.ConfigFileCheck{ConfigPath: opts.ConfigPath},
		schema,
	})

	if schema.Loaded != nil {
		results = append(results, runConnectivityChecks(ctx, schema.Loaded, opts.NodeID)...)
	} else {
		for _, cat := range []string{doctor.CategoryTunnel, doctor.CategoryBackend, doctor.CategoryStream} {
			results = append(results, doctor.CheckResult{
				Category: cat,
				Status:   doctor.StatusWarn,
				Message:  "Skipped: the config doesn't validate",
			})
		}
	}

	if MachineMode() {
		return WriteJSONSuccess(out, doctorOutput(results))
	}
	renderDoctorText(out, results)
	return nil
}

// runConnectivityChecks runs the tunnel, REST and stream checks against a
// validated config. The backend is opened once and shared.
func runConnectivityChecks(ctx context.Context, cfg *config.Config, nodeID int) []doctor.CheckResult {
	var (
		b       *backend
		openErr error
		opened  bool
	)
	open := func() (*backend, error) {
		if !opened {
			opened = true
			b, openErr = newBackend(ctx, cfg, "")
		}
		return b, openErr
	}
	defer func() {
		if b != nil {
			b.Close()
		}
	}()

	r, _ := cfg.Stream.Range()
	rest := &doctor.BackendCheck{
		Nodes: func() (doctor.NodeLister, error) {
			b, err := open()
			if err != nil {
				return nil, err
			}
			return b.Nodes(), nil
		},
	}
	checks := []doctor.Check{
		&doctor.TunnelCheck{Host: cfg.Server.SSHTunnel, Timeout: cfg.Server.Timeout},
		rest,
		&doctor.StreamCheck{
			Range: r,
			NodeID: func() (int, error) {
				switch {
				case nodeID > 0:
					return nodeID, nil
				case rest.First > 0:
					return rest.First, nil
				}
				return 0, fmt.Errorf("no node to subscribe to, pass --node: %w", doctor.ErrSkipped)
			},
			Probe: func(ctx context.Context, id int, r metrics.TimeRange) (*metrics.Frame, error) {
				b, err := open()
				if err != nil {
					return nil, fmt.Errorf("backend unavailable: %w", doctor.ErrSkipped)
				}
				return firstFrame(ctx, b, id, r, doctorFrameTimeout)
			},
		},
	}
	return doctor.RunAll(ctx, checks)
}

func doctorOutput(results []doctor.CheckResult) DoctorOutput {
	grouped := make(map[string][]doctor.CheckResult)
	for _, r := range results {
		grouped[r.Category] = append(grouped[r.Category], r)
	}

	output := DoctorOutput{Categories: []CategoryOutput{}}
	for _, cat := range doctor.Categories() {
		if len(grouped[cat]) > 0 {
			output.Categories = append(output.Categories, CategoryOutput{Name: cat, Results: grouped[cat]})
		}
	}

	counts := doctor.CountByStatus(results)
	output.Summary = SummaryOutput{
		Pass:     counts[doctor.StatusPass],
		Warn:     counts[doctor.StatusWarn],
		Fail:     counts[doctor.StatusFail],
		AllClear: !doctor.HasIssues(results),
	}
	return output
}

func renderDoctorText(out io.Writer, results []doctor.CheckResult) {
	headerStyle := lipgloss.NewStyle().Bold(true)

	fmt.Fprintln(out)
	fmt.Fprintln(out, headerStyle.Render("pilot diagnostic report"))
	fmt.Fprintln(out)

	grouped := make(map[string][]doctor.CheckResult)
	for _, r := range results {
		grouped[r.Category] = append(grouped[r.Category], r)
	}
	for _, cat := range doctor.Categories() {
		if len(grouped[cat]) == 0 {
			continue
		}
		fmt.Fprintln(out, headerStyle.Render(cat))
		for _, r := range grouped[cat] {
			renderCheckResult(out, r)
		}
		fmt.Fprintln(out)
	}

	fmt.Fprintln(out, strings.Repeat("━", 60))
	symbol, style := ui.SymbolSuccess, ui.SuccessStyle()
	if doctor.HasIssues(results) {
		symbol, style = ui.SymbolFail, ui.ErrorStyle()
	}
	fmt.Fprintf(out, "%s %s\n", style.Render(symbol), doctor.Summary(results))
}

func renderCheckResult(out io.Writer, r doctor.CheckResult) {
	symbol, style := ui.SymbolComplete, ui.SuccessStyle()
	switch r.Status {
	case doctor.StatusWarn:
		style = ui.WarningStyle()
	case doctor.StatusFail:
		symbol, style = ui.SymbolFail, ui.ErrorStyle()
	}

	line := fmt.Sprintf("  %s %s", style.Render(symbol), r.Message)
	if r.Latency > 0 {
		line += " " + ui.MutedStyle().Render(fmt.Sprintf("(%dms)", r.Latency.Milliseconds()))
	}
	fmt.Fprintln(out, line)

	if r.Suggestion != "" && r.Status != doctor.StatusPass {
		for _, l := range strings.Split(r.Suggestion, "\n") {
			fmt.Fprintf(out, "    %s\n", ui.MutedStyle().Render(l))
		}
	}
}
