package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var appsCmd = &cobra.Command{
	Use:   "apps",
	Short: "Manage apps",
}

var appsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List apps",
	RunE:  runAppsList,
}

var appsCreateCmd = &cobra.Command{
	Use:   "create NAME",
	Short: "Create an app",
	Args:  cobra.ExactArgs(1),
	RunE:  runAppsCreate,
}

var appsDeleteCmd = &cobra.Command{
	Use:   "delete NAME",
	Short: "Delete an app",
	Args:  cobra.ExactArgs(1),
	RunE:  runAppsDelete,
}

func init() {
	appsCreateCmd.Flags().String("org", "personal", "organization slug")
	appsCmd.AddCommand(appsListCmd, appsCreateCmd, appsDeleteCmd)
}

func runAppsList(cmd *cobra.Command, args []string) error {
	client := newAPIClient(portFlag(cmd))
	var apps []map[string]any
	if err := client.request("GET", "/v1/apps", nil, &apps); err != nil {
		return err
	}
	printJSON(apps)
	return nil
}

func runAppsCreate(cmd *cobra.Command, args []string) error {
	org, _ := cmd.Flags().GetString("org")
	client := newAPIClient(portFlag(cmd))
	var result map[string]any
	err := client.request("POST", "/v1/apps", map[string]string{"app_name": args[0], "org_slug": org}, &result)
	if err != nil {
		return err
	}
	printJSON(result)
	return nil
}

func runAppsDelete(cmd *cobra.Command, args []string) error {
	client := newAPIClient(portFlag(cmd))
	if err := client.request("DELETE", "/v1/apps/"+args[0], nil, nil); err != nil {
		return err
	}
	fmt.Printf("deleted %s\n", args[0])
	return nil
}
