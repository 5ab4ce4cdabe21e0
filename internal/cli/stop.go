package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
)

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop all running machines and shut down the control plane",
	RunE:  runStop,
}

func init() {
	stopCmd.Flags().Bool("force", false, "stop machines with a 1-second timeout instead of 30 seconds")
}

type appSummary struct {
	Name string `json:"name"`
}

type machineSummary struct {
	ID string `json:"id"`
}

// runStop mirrors the platform-shutdown sequence the teacher's own CLI
// used: list apps, stop every machine, then ask the server to shut
// itself down. Grounded on
// original_source/minifly-cli/src/commands/stop.rs, adapted since
// LiteFS and the API process here are supervised in-process by `serve`
// rather than as separate OS processes to pgrep/kill.
func runStop(cmd *cobra.Command, args []string) error {
	force, _ := cmd.Flags().GetBool("force")
	client := newAPIClient(portFlag(cmd))

	if _, _, err := client.do("GET", "/v1/apps", nil); err != nil {
		fmt.Println("minifly is not running")
		return nil
	}

	fmt.Println("stopping machines...")
	var apps []appSummary
	if err := client.request("GET", "/v1/apps", nil, &apps); err != nil {
		return err
	}

	timeout := 30
	if force {
		timeout = 1
	}

	for _, app := range apps {
		var machines []machineSummary
		path := "/v1/apps/" + app.Name + "/machines"
		if err := client.request("GET", path, nil, &machines); err != nil {
			fmt.Fprintf(os.Stderr, "  could not list machines for %s: %v\n", app.Name, err)
			continue
		}
		for _, m := range machines {
			stopPath := path + "/" + m.ID + "/stop"
			if err := client.request("POST", stopPath, map[string]int{"timeout": timeout}, nil); err != nil {
				fmt.Fprintf(os.Stderr, "  failed to stop %s/%s: %v\n", app.Name, m.ID, err)
				continue
			}
			fmt.Printf("  stopped %s (%s)\n", m.ID, app.Name)
		}
	}

	fmt.Println("shutting down control plane...")
	if err := client.request("POST", "/admin/shutdown", nil, nil); err != nil {
		fmt.Fprintf(os.Stderr, "shutdown request failed: %v\n", err)
		return err
	}

	for i := 0; i < 10; i++ {
		time.Sleep(time.Second)
		if _, _, err := client.do("GET", "/v1/apps", nil); err != nil {
			fmt.Println("minifly stopped")
			return nil
		}
	}

	fmt.Println("minifly did not confirm shutdown within 10s")
	return nil
}
