package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/vpspilot/pilot/internal/errors"
	"github.com/vpspilot/pilot/internal/logger"
	"github.com/vpspilot/pilot/internal/ui"
	"github.com/vpspilot/pilot/pkg/sshutil"
)

// Global flags
var (
	cfgFile    string
	serverFlag string
	verbose    bool
	noColor    bool
)

var rootCmd = &cobra.Command{
	Use:   "pilot",
	Short: "Live CPU, memory and network for your VPS Pilot nodes",
	Long: `pilot is a terminal client for a VPS Pilot backend.

It subscribes to a node's system-stat stream and draws CPU, memory and
network charts in the terminal, or prints the frames as JSON lines for
scripts and exporters.

Examples:
  pilot nodes
  pilot watch 3
  pilot stream 3 --range 1H --count 1
  pilot export 3 --listen :9105`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if noColor || os.Getenv("NO_COLOR") != "" {
			ui.DisableColors()
		}
		if verbose {
			os.Setenv(logger.DebugEnv, "1")
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: .pilot.yaml, then ~/.config/pilot/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&serverFlag, "server", "", "backend URL, overrides server.url")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")
	rootCmd.PersistentFlags().BoolVar(&machineMode, "json", false, "machine-readable JSON output where supported")

	sshutil.WarningHandler = ui.PrintWarning
}

// Config returns the --config flag value.
func Config() string {
	return cfgFile
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err == nil {
		return
	}

	if isUnknownCommandError(err) {
		if name := extractUnknownCommand(err); name != "" {
			err = errors.New(errors.ErrConfig,
				fmt.Sprintf("Unknown command '%s'", name),
				"Run 'pilot --help' to see available commands")
		}
	}

	if MachineMode() {
		_ = WriteJSONFromError(os.Stdout, err)
	} else {
		fmt.Fprintln(os.Stderr, err)
	}
	os.Exit(1)
}

// isUnknownCommandError reports whether cobra rejected the command line
// itself rather than a command failing.
func isUnknownCommandError(err error) bool {
	msg := err.Error()
	return strings.HasPrefix(msg, "unknown command") || strings.HasPrefix(msg, "unknown flag")
}

// extractUnknownCommand pulls the quoted name out of cobra's
// `unknown command "foo" for "pilot"` message.
func extractUnknownCommand(err error) string {
	msg := err.Error()
	start := strings.Index(msg, `"`)
	if start < 0 {
		return ""
	}
	end := strings.Index(msg[start+1:], `"`)
	if end < 0 {
		return ""
	}
	return msg[start+1 : start+1+end]
}
