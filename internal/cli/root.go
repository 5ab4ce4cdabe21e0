package cli

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var rootCmd = &cobra.Command{
	Use:   "minifly",
	Short: "A local, Docker-backed emulator of the Fly.io Machines API",
	Long: `minifly runs a local control plane that speaks a subset of the
Fly.io Machines API against your own Docker daemon: apps, machines,
internal DNS, LiteFS sidecars and a fly.toml deploy pipeline, all on
your laptop.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		initLogging()
	},
}

func init() {
	rootCmd.PersistentFlags().IntP("port", "p", 4280, "API port of the minifly control plane")
	_ = viper.BindPFlag("port", rootCmd.PersistentFlags().Lookup("port"))

	rootCmd.PersistentFlags().Int("log-level", 2, "set the log level (from 0 to 9, default 2)")
	_ = viper.BindPFlag("log-level", rootCmd.PersistentFlags().Lookup("log-level"))

	rootCmd.AddCommand(deployCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(stopCmd)
	rootCmd.AddCommand(secretsCmd)
	rootCmd.AddCommand(appsCmd)
	rootCmd.AddCommand(machinesCmd)
	rootCmd.AddCommand(logsCmd)
	rootCmd.AddCommand(statusCmd)
}

// Execute runs the root command, exiting the process with the
// relevant code on failure (spec §6's "0 success; 1 generic failure;
// 2 required dependency missing").
func Execute() int {
	if err := rootCmd.Execute(); err != nil {
		return exitCodeFor(err)
	}
	return 0
}

func exitCodeFor(err error) int {
	if ec, ok := err.(interface{ ExitCode() int }); ok {
		return ec.ExitCode()
	}
	return 1
}

func portFlag(cmd *cobra.Command) int {
	port, _ := cmd.Flags().GetInt("port")
	if port == 0 {
		port = viper.GetInt("port")
	}
	return port
}
