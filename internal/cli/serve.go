package cli

import (
	"context"

	"github.com/minifly/minifly/internal/serve"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the minifly control plane",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().Bool("daemon", false, "detach into the background after startup")
	serveCmd.Flags().Bool("dev", false, "enable dev mode: prefer fly.dev.toml and watch for file changes")
}

func runServe(cmd *cobra.Command, args []string) error {
	daemon, _ := cmd.Flags().GetBool("daemon")
	dev, _ := cmd.Flags().GetBool("dev")

	port := 0
	if cmd.Flags().Changed("port") {
		port = portFlag(cmd)
	}

	return serve.Run(context.Background(), serve.Options{
		Daemon: daemon,
		Port:   port,
		Dev:    dev,
	})
}
