package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/minifly/minifly/internal/deploy"
	"github.com/spf13/cobra"
)

var deployCmd = &cobra.Command{
	Use:   "deploy [path]",
	Short: "Deploy the fly.toml in the given directory (default: current directory)",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runDeploy,
}

func init() {
	deployCmd.Flags().Bool("watch", false, "watch for file changes and redeploy automatically")
	deployCmd.Flags().String("litefs-config", "", "explicit path to a litefs.yml to adapt for local use")
}

func runDeploy(cmd *cobra.Command, args []string) error {
	dir := "."
	if len(args) == 1 {
		dir = args[0]
	}
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return err
	}

	watch, _ := cmd.Flags().GetBool("watch")
	liteFSConfig, _ := cmd.Flags().GetString("litefs-config")
	if liteFSConfig != "" {
		os.Setenv("LITEFS_CONFIG_PATH", liteFSConfig)
	}

	client := newAPIClient(portFlag(cmd))

	if !watch {
		result, err := requestDeploy(client, absDir)
		if err != nil {
			return err
		}
		printJSON(result)
		return nil
	}

	result, err := requestDeploy(client, absDir)
	if err != nil {
		return err
	}
	printJSON(result)

	fmt.Printf("watching %s for changes (ctrl-c to stop)\n", absDir)
	return deploy.WatchFiles(context.Background(), absDir, func(reason string) {
		fmt.Printf("change detected in %s, redeploying\n", reason)
		result, err := requestDeploy(client, absDir)
		if err != nil {
			fmt.Fprintf(os.Stderr, "deploy failed: %v\n", err)
			return
		}
		printJSON(result)
	})
}

type deployResponse struct {
	AppName   string   `json:"app_name"`
	MachineID string   `json:"machine_id"`
	URL       string   `json:"url"`
	Warnings  []string `json:"warnings"`
}

func requestDeploy(client *apiClient, dir string) (deployResponse, error) {
	var result deployResponse
	err := client.request("POST", "/admin/deploy", map[string]string{"dir": dir}, &result)
	return result, err
}
