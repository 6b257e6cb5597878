package cmd

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/specsync/specsync/internal/api"
)

// syncCmd represents the sync command
var syncCmd = &cobra.Command{
	Use:   "sync [config-id]",
	Short: "Force sync a repository",
	Long:  `Trigger an immediate full re-import of every tracked spec path.`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client := NewClient()
		resp, err := client.Post("/api/v1/repositories/"+args[0]+"/sync", nil)
		if err != nil {
			return fmt.Errorf("error syncing repository: %v", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode == http.StatusConflict {
			return fmt.Errorf("a sync is already running for this repository")
		}
		if resp.StatusCode != http.StatusOK {
			return CheckResponse(resp)
		}

		var apiResp struct {
			Message string         `json:"message"`
			Data    api.SyncReport `json:"data"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
			return fmt.Errorf("error decoding response: %v", err)
		}

		fmt.Println(apiResp.Message)
		PrintJSON(apiResp.Data)
		return nil
	},
}

func init() {
	reposCmd.AddCommand(syncCmd)
}
