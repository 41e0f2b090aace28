package cli

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"
	"github.com/vpspilot/pilot/internal/config"
	"github.com/vpspilot/pilot/internal/errors"
	"github.com/vpspilot/pilot/internal/metrics"
	"github.com/vpspilot/pilot/internal/nodeapi"
	"github.com/vpspilot/pilot/internal/ui"
	"github.com/vpspilot/pilot/pkg/sshutil"
)

// InitOptions holds options for the init command.
type InitOptions struct {
	Server         string // backend URL, from the global --server flag
	Token          string
	Range          string // default time range label
	SSHTunnel      string // SSH host to tunnel through
	Global         bool   // write ~/.config/pilot/config.yaml instead of ./.pilot.yaml
	Path           string // explicit destination, wins over Global
	Overwrite      bool   // overwrite an existing config without asking
	NonInteractive bool   // skip prompts, use flags and defaults
	SkipCheck      bool   // don't contact the backend before saving
}

var initFlags InitOptions

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a .pilot.yaml configuration",
	Long: `Create a pilot config file with the backend URL, token, default time
range and, when the backend is only reachable on the VPS itself, an SSH
host to tunnel through.

The backend is contacted before the file is written.

Examples:
  pilot init
  pilot init --global
  pilot init --non-interactive --server http://10.0.0.5:8000 --range 1H
  pilot init --ssh-tunnel my-vps --server http://127.0.0.1:8000`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := initFlags
		opts.Server = serverFlag
		return Init(cmd.Context(), cmd.OutOrStdout(), opts)
	},
}

func init() {
	rootCmd.AddCommand(initCmd)
	initCmd.Flags().StringVar(&initFlags.Token, "token", "", "bearer token for the backend")
	initCmd.Flags().StringVar(&initFlags.Range, "range", "", "default time range")
	initCmd.Flags().StringVar(&initFlags.SSHTunnel, "ssh-tunnel", "", "SSH host to reach the backend through")
	initCmd.Flags().BoolVar(&initFlags.Global, "global", false, "write the global config instead of ./.pilot.yaml")
	initCmd.Flags().BoolVarP(&initFlags.Overwrite, "force", "f", false, "overwrite an existing config")
	initCmd.Flags().BoolVar(&initFlags.NonInteractive, "non-interactive", false, "don't prompt; use flags and defaults")
	initCmd.Flags().BoolVar(&initFlags.SkipCheck, "skip-check", false, "don't contact the backend before saving")
}

// initValues are the answers the config is built from.
type initValues struct {
	Server    string
	Token     string
	Range     string
	SSHTunnel string
}

// Init creates a new config file.
func Init(ctx context.Context, out io.Writer, opts InitOptions) error {
	path := initPath(opts)

	proceed, err := checkExistingConfig(path, opts)
	if err != nil || !proceed {
		if err == nil {
			fmt.Fprintln(out, "Cancelled.")
		}
		return err
	}

	var values initValues
	if opts.NonInteractive {
		values, err = collectNonInteractiveValues(opts)
	} else {
		values, err = collectInteractiveValues(opts)
	}
	if err != nil {
		return err
	}

	cfg := buildInitConfig(values)
	if err := config.Validate(cfg); err != nil {
		return err
	}

	if !opts.SkipCheck {
		label := "Checking backend at " + cfg.Server.URL
		if cfg.Server.SSHTunnel != "" {
			label += " via " + cfg.Server.SSHTunnel
		}
		err := ui.RunWithSpinner(os.Stderr, label, func() error {
			return checkBackend(ctx, cfg)
		})
		if err != nil {
			if opts.NonInteractive || !confirm("Save the config anyway? You can fix the connection later.") {
				return err
			}
		}
	}

	if err := config.Save(cfg, path); err != nil {
		return errors.WrapWithCode(err, errors.ErrConfig,
			fmt.Sprintf("Failed to write config file: %s", path),
			"Check directory permissions")
	}

	fmt.Fprintf(out, "%s Created %s\n\n", ui.SuccessStyle().Render(ui.SymbolSuccess), path)
	fmt.Fprintln(out, "Next steps:")
	fmt.Fprintln(out, "  pilot nodes        - List nodes")
	fmt.Fprintln(out, "  pilot watch <id>   - Open the dashboard")
	fmt.Fprintln(out, "  pilot config show  - Review the settings")
	return nil
}

func initPath(opts InitOptions) string {
	switch {
	case opts.Path != "":
		return opts.Path
	case opts.Global:
		if p := config.GlobalPath(); p != "" {
			return p
		}
	}
	return filepath.Join(".", config.ConfigFileName)
}

// checkExistingConfig reports whether init may write path.
func checkExistingConfig(path string, opts InitOptions) (bool, error) {
	if _, err := os.Stat(path); err != nil || opts.Overwrite {
		return true, nil
	}
	if opts.NonInteractive {
		return false, errors.New(errors.ErrConfig,
			fmt.Sprintf("Config file already exists: %s", path),
			"Use --force to overwrite")
	}
	return confirm(fmt.Sprintf("Config file '%s' already exists. Overwrite?", path)), nil
}

// collectNonInteractiveValues fills unset options with defaults.
func collectNonInteractiveValues(opts InitOptions) (initValues, error) {
	d := config.DefaultConfig()
	v := initValues{
		Server:    strings.TrimSpace(opts.Server),
		Token:     strings.TrimSpace(opts.Token),
		Range:     strings.TrimSpace(opts.Range),
		SSHTunnel: strings.TrimSpace(opts.SSHTunnel),
	}
	if v.Server == "" {
		v.Server = d.Server.URL
	}
	if v.Range == "" {
		v.Range = d.Stream.DefaultRange
	}
	if err := validateServerURL(v.Server); err != nil {
		return initValues{}, errors.New(errors.ErrConfig, err.Error(), "Pass --server like http://10.0.0.5:8000")
	}
	if _, err := metrics.ParseTimeRange(v.Range); err != nil {
		return initValues{}, err
	}
	return v, nil
}

func collectInteractiveValues(opts InitOptions) (initValues, error) {
	v, err := collectNonInteractiveValues(opts)
	if err != nil {
		v = initValues{Server: opts.Server, Token: opts.Token, Range: config.DefaultConfig().Stream.DefaultRange}
	}

	if v.SSHTunnel == "" && confirm("Is the backend only reachable from the VPS itself (tunnel over SSH)?") {
		tunnel, err := pickTunnelHost()
		if err != nil {
			return initValues{}, err
		}
		v.SSHTunnel = tunnel
	}

	rangeOptions := make([]huh.Option[string], 0, len(metrics.Ranges()))
	for _, r := range metrics.Ranges() {
		rangeOptions = append(rangeOptions, huh.NewOption(fmt.Sprintf("%s (%s)", r.Code(), r.Interval()), r.Code()))
	}

	serverDesc := "Origin of the VPS Pilot API"
	if v.SSHTunnel != "" {
		serverDesc = "As seen from " + v.SSHTunnel + ", e.g. http://127.0.0.1:8000"
	}

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Backend URL").
				Description(serverDesc).
				Placeholder("http://127.0.0.1:8000").
				Value(&v.Server).
				Validate(validateServerURL),
			huh.NewInput().
				Title("API token (optional)").
				Description("Sent as a bearer token on REST calls").
				EchoMode(huh.EchoModePassword).
				Value(&v.Token),
			huh.NewSelect[string]().
				Title("Default time range").
				Options(rangeOptions...).
				Value(&v.Range),
		),
	)
	if err := form.Run(); err != nil {
		return initValues{}, errors.WrapWithCode(err, errors.ErrConfig,
			"Failed to get user input",
			"Check terminal compatibility or use --non-interactive")
	}
	v.Server = strings.TrimSpace(v.Server)
	v.Token = strings.TrimSpace(v.Token)
	return v, nil
}

// pickTunnelHost lets the user choose an ~/.ssh/config alias or type one.
func pickTunnelHost() (string, error) {
	hosts, err := sshutil.Hosts()
	if err != nil {
		ui.PrintWarning("Couldn't read ~/.ssh/config: " + err.Error())
	}

	host, result, err := ui.PickSSHHost(sshutil.WithKeys(hosts), os.Stdout, os.Stdin)
	if err != nil {
		return "", err
	}

	switch result {
	case ui.PickerSelected:
		return host.Alias, nil
	case ui.PickerManual:
		var manual string
		form := huh.NewForm(huh.NewGroup(
			huh.NewInput().
				Title("SSH host").
				Description("Alias, hostname, user@host or host:port").
				Value(&manual).
				Validate(func(s string) error {
					if strings.TrimSpace(s) == "" {
						return fmt.Errorf("SSH host is required")
					}
					return nil
				}),
		))
		if err := form.Run(); err != nil {
			return "", errors.WrapWithCode(err, errors.ErrConfig, "Failed to get user input", "")
		}
		return strings.TrimSpace(manual), nil
	default:
		return "", nil
	}
}

func buildInitConfig(v initValues) *config.Config {
	cfg := config.DefaultConfig()
	cfg.Server.URL = v.Server
	cfg.Server.Token = v.Token
	cfg.Server.SSHTunnel = v.SSHTunnel
	cfg.Stream.DefaultRange = v.Range
	return cfg
}

// checkBackend lists one node to prove the URL, token and tunnel work.
func checkBackend(ctx context.Context, cfg *config.Config) error {
	b, err := newBackend(ctx, cfg, "")
	if err != nil {
		return err
	}
	defer b.Close()
	_, err = b.Nodes().ListNodes(ctx, nodeapi.ListOptions{Limit: 1})
	return err
}

func validateServerURL(s string) error {
	u, err := url.Parse(strings.TrimSpace(s))
	if err != nil || u.Host == "" {
		return fmt.Errorf("'%s' isn't a URL like http://10.0.0.5:8000", s)
	}
	switch u.Scheme {
	case "http", "https":
		return nil
	}
	return fmt.Errorf("backend URL must be http or https, got '%s'", u.Scheme)
}

// confirm asks a yes/no question, treating a failed prompt as no.
func confirm(title string) bool {
	var yes bool
	form := huh.NewForm(huh.NewGroup(huh.NewConfirm().Title(title).Value(&yes)))
	if err := form.Run(); err != nil {
		return false
	}
	return yes
}
