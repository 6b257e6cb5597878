package cmd

import (
	"fmt"
	"net/http"

	"github.com/spf13/cobra"
)

// activateCmd represents the activate command
var activateCmd = &cobra.Command{
	Use:   "activate [config-id]",
	Short: "Activate a repository configuration",
	Long:  `Enable scheduled syncs for a repository and start its initial import.`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client := NewClient()
		resp, err := client.Post("/api/v1/repositories/"+args[0]+"/activate", nil)
		if err != nil {
			return fmt.Errorf("error activating repository: %v", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return CheckResponse(resp)
		}

		fmt.Println("Repository activated; initial import started.")
		return nil
	},
}

// deactivateCmd represents the deactivate command
var deactivateCmd = &cobra.Command{
	Use:   "deactivate [config-id]",
	Short: "Deactivate a repository configuration",
	Long:  `Disable scheduled syncs for a repository. Sync state is kept.`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client := NewClient()
		resp, err := client.Post("/api/v1/repositories/"+args[0]+"/deactivate", nil)
		if err != nil {
			return fmt.Errorf("error deactivating repository: %v", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return CheckResponse(resp)
		}

		fmt.Println("Repository deactivated.")
		return nil
	},
}

func init() {
	reposCmd.AddCommand(activateCmd)
	reposCmd.AddCommand(deactivateCmd)
}
