package cli

import (
	"bufio"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var logsCmd = &cobra.Command{
	Use:   "logs APP ID",
	Short: "Stream logs for a machine",
	Args:  cobra.ExactArgs(2),
	RunE:  runLogs,
}

func init() {
	logsCmd.Flags().Bool("follow", false, "keep streaming as new lines arrive")
	logsCmd.Flags().Int("tail", 0, "number of lines to show from the end of the logs")
}

// runLogs reads the /logs Server-Sent Events endpoint directly rather
// than going through apiClient.request, since the response body is an
// open stream rather than a single JSON document.
func runLogs(cmd *cobra.Command, args []string) error {
	follow, _ := cmd.Flags().GetBool("follow")
	tail, _ := cmd.Flags().GetInt("tail")

	client := newAPIClient(portFlag(cmd))
	url := fmt.Sprintf("%s/v1/apps/%s/machines/%s/logs?follow=%t&tail=%d", client.baseURL, args[0], args[1], follow, tail)

	resp, err := client.http.Get(url)
	if err != nil {
		return fmt.Errorf("connect to minifly serve: %w (is `minifly serve` running?)", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("request failed with status %d", resp.StatusCode)
	}

	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var event struct {
			Line string `json:"line"`
		}
		if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &event); err != nil {
			continue
		}
		fmt.Println(event.Line)
	}
	return nil
}
