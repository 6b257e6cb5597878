package cmd

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/spf13/cobra"
)

// statusCmd represents the status command
var statusCmd = &cobra.Command{
	Use:   "status [config-id]",
	Short: "Show sync status and imported catalog entries",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client := NewClient()
		resp, err := client.Get("/api/v1/repositories/" + args[0] + "/status")
		if err != nil {
			return fmt.Errorf("error fetching status: %v", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return CheckResponse(resp)
		}

		var apiResp struct {
			Data json.RawMessage `json:"data"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
			return fmt.Errorf("error decoding response: %v", err)
		}

		var status interface{}
		if err := json.Unmarshal(apiResp.Data, &status); err != nil {
			return fmt.Errorf("error decoding status: %v", err)
		}
		PrintJSON(status)
		return nil
	},
}

func init() {
	reposCmd.AddCommand(statusCmd)
}
