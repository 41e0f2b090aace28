package cli

import (
	"context"

	"github.com/spf13/cobra"
	"github.com/vpspilot/pilot/internal/devserver"
	"github.com/vpspilot/pilot/internal/logger"
)

var (
	devserverListen string
	devserverToken  string
)

var devserverCmd = &cobra.Command{
	Use:   "devserver",
	Short: "Run a local backend that serves synthetic nodes",
	Long: `Start a stand-in for the VPS Pilot backend with a handful of synthetic
nodes. It serves the node list and detail endpoints and the system-stat
websocket, answering every query with a full window of generated samples.

Examples:
  pilot devserver
  pilot devserver --listen 127.0.0.1:9000 --token secret
  pilot watch 1 --server http://127.0.0.1:8000`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return devserverCommand(cmd.Context(), devserverListen, devserverToken)
	},
}

func init() {
	rootCmd.AddCommand(devserverCmd)
	devserverCmd.Flags().StringVar(&devserverListen, "listen", ":8000", "address to listen on")
	devserverCmd.Flags().StringVar(&devserverToken, "token", "", "require this bearer token on REST routes")
}

func devserverCommand(ctx context.Context, listen, token string) error {
	srv := devserver.New(devserver.Options{
		Token:  token,
		Logger: logger.NewEnvLogger("[devserver]"),
	})
	return srv.Run(ctx, listen)
}
