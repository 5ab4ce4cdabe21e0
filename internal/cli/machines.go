package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var machinesCmd = &cobra.Command{
	Use:   "machines",
	Short: "Manage machines",
}

var machinesListCmd = &cobra.Command{
	Use:   "list APP",
	Short: "List machines for an app",
	Args:  cobra.ExactArgs(1),
	RunE:  runMachinesList,
}

var machinesStartCmd = &cobra.Command{
	Use:   "start APP ID",
	Short: "Start a machine",
	Args:  cobra.ExactArgs(2),
	RunE:  runMachinesStart,
}

var machinesStopCmd = &cobra.Command{
	Use:   "stop APP ID",
	Short: "Stop a machine",
	Args:  cobra.ExactArgs(2),
	RunE:  runMachinesStop,
}

var machinesDestroyCmd = &cobra.Command{
	Use:   "destroy APP ID",
	Short: "Destroy a machine",
	Args:  cobra.ExactArgs(2),
	RunE:  runMachinesDestroy,
}

func init() {
	machinesDestroyCmd.Flags().Bool("force", false, "destroy even if running")
	machinesCmd.AddCommand(machinesListCmd, machinesStartCmd, machinesStopCmd, machinesDestroyCmd)
}

func runMachinesList(cmd *cobra.Command, args []string) error {
	client := newAPIClient(portFlag(cmd))
	var machines []map[string]any
	if err := client.request("GET", "/v1/apps/"+args[0]+"/machines", nil, &machines); err != nil {
		return err
	}
	printJSON(machines)
	return nil
}

func runMachinesStart(cmd *cobra.Command, args []string) error {
	client := newAPIClient(portFlag(cmd))
	var result map[string]any
	path := "/v1/apps/" + args[0] + "/machines/" + args[1] + "/start"
	if err := client.request("POST", path, nil, &result); err != nil {
		return err
	}
	printJSON(result)
	return nil
}

func runMachinesStop(cmd *cobra.Command, args []string) error {
	client := newAPIClient(portFlag(cmd))
	path := "/v1/apps/" + args[0] + "/machines/" + args[1] + "/stop"
	if err := client.request("POST", path, nil, nil); err != nil {
		return err
	}
	fmt.Printf("stopped %s\n", args[1])
	return nil
}

func runMachinesDestroy(cmd *cobra.Command, args []string) error {
	force, _ := cmd.Flags().GetBool("force")
	client := newAPIClient(portFlag(cmd))
	path := "/v1/apps/" + args[0] + "/machines/" + args[1]
	if force {
		path += "?force=true"
	}
	if err := client.request("DELETE", path, nil, nil); err != nil {
		return err
	}
	fmt.Printf("destroyed %s\n", args[1])
	return nil
}
