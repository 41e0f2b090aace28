package cli

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/vpspilot/pilot/internal/config"
	"github.com/vpspilot/pilot/internal/errors"
	"github.com/vpspilot/pilot/internal/ui"
	"gopkg.in/yaml.v3"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect or edit the pilot config",
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Print the config file in use",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return configPathCommand(cmd.OutOrStdout(), Config())
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the resolved config, defaults and env overrides included",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return configShowCommand(cmd.OutOrStdout(), Config())
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set one value in the config file",
	Long: `Set a value by its dotted key, keeping the file's comments and order.
The file is left untouched if the result doesn't validate.

Examples:
  pilot config set server.url http://10.0.0.5:8000
  pilot config set stream.default_range 1H
  pilot config set server.ssh_tunnel my-vps`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return configSetCommand(cmd.OutOrStdout(), Config(), args[0], args[1])
	},
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configPathCmd, configShowCmd, configSetCmd)
}

func configPathCommand(out io.Writer, explicit string) error {
	path, err := config.Find(explicit)
	if err != nil {
		return err
	}
	if path == "" {
		fmt.Fprintln(out, ui.MutedStyle().Render("no config file, using defaults"))
		return nil
	}
	fmt.Fprintln(out, path)
	return nil
}

func configShowCommand(out io.Writer, explicit string) error {
	cfg, path, err := config.LoadOrDefault(explicit)
	if err != nil {
		return err
	}
	if cfg.Server.Token != "" {
		cfg.Server.Token = "********"
	}

	if path != "" {
		fmt.Fprintln(out, ui.MutedStyle().Render("# "+path))
	}
	enc := yaml.NewEncoder(out)
	enc.SetIndent(2)
	if err := enc.Encode(cfg); err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	return enc.Close()
}

func configSetCommand(out io.Writer, explicit, key, value string) error {
	path, err := config.Find(explicit)
	if err != nil {
		return err
	}
	if path == "" {
		return errors.New(errors.ErrConfig,
			"No config file to edit",
			"Create one with: pilot init")
	}

	original, err := os.ReadFile(path)
	if err != nil {
		return errors.WrapWithCode(err, errors.ErrConfig, "Can't read "+path, "Check file permissions")
	}

	if err := config.SetValue(path, key, value); err != nil {
		return errors.WrapWithCode(err, errors.ErrConfig,
			fmt.Sprintf("Couldn't set %s", key),
			"Keys are dotted paths like server.url or stream.default_range")
	}

	cfg, err := config.Load(path)
	if err == nil {
		err = config.Validate(cfg)
	}
	if err != nil {
		if restoreErr := os.WriteFile(path, original, 0o600); restoreErr != nil {
			return fmt.Errorf("restore %s after invalid edit: %w", path, restoreErr)
		}
		return err
	}

	shown := value
	if strings.Contains(strings.ToLower(key), "token") {
		shown = "********"
	}
	fmt.Fprintf(out, "%s %s = %s\n", ui.SuccessStyle().Render(ui.SymbolSuccess), key, shown)
	return nil
}
