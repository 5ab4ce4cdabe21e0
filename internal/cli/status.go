package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show control plane health and app/machine counts",
	RunE:  runStatus,
}

type healthComprehensive struct {
	Status string                    `json:"status"`
	Checks map[string]map[string]any `json:"checks"`
}

// runStatus is a thin client over /health/comprehensive, /v1/apps and
// /v1/apps/{app}/machines, grounded on
// original_source/minifly-cli/src/commands/status.rs's service table
// and per-region resource summary, minus the colorized table rendering
// (spec §6 treats this subcommand as a thin HTTP client; no tabled/ANSI
// dependency is in the corpus's non-CLI stack to ground that on).
func runStatus(cmd *cobra.Command, args []string) error {
	client := newAPIClient(portFlag(cmd))

	var health healthComprehensive
	if err := client.request("GET", "/health/comprehensive", nil, &health); err != nil {
		fmt.Println("platform: not reachable")
		return nil
	}
	fmt.Printf("platform: %s\n", health.Status)
	for name, check := range health.Checks {
		fmt.Printf("  %-10s %v\n", name, check["status"])
	}

	var apps []appSummary
	if err := client.request("GET", "/v1/apps", nil, &apps); err != nil {
		fmt.Println("resources: unable to fetch")
		return nil
	}

	total := 0
	for _, app := range apps {
		var machines []machineSummary
		if err := client.request("GET", "/v1/apps/"+app.Name+"/machines", nil, &machines); err == nil {
			total += len(machines)
		}
	}
	fmt.Printf("resources: %d app(s), %d machine(s)\n", len(apps), total)

	return nil
}
