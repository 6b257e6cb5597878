package cmd

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"

	"github.com/spf13/cobra"
)

// updateCmd represents the update command
var updateCmd = &cobra.Command{
	Use:   "update [config-id] [json-file]",
	Short: "Update a repository configuration",
	Long:  `Replace a repository configuration with the contents of a JSON file.`,
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		fileData, err := os.ReadFile(args[1])
		if err != nil {
			return fmt.Errorf("error reading file: %v", err)
		}
		var repoData map[string]interface{}
		if err := json.Unmarshal(fileData, &repoData); err != nil {
			return fmt.Errorf("invalid json file: %v", err)
		}

		client := NewClient()
		resp, err := client.Put("/api/v1/repositories/"+args[0], repoData)
		if err != nil {
			return fmt.Errorf("error updating repository: %v", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return CheckResponse(resp)
		}

		fmt.Println("Repository updated successfully.")
		return nil
	},
}

func init() {
	reposCmd.AddCommand(updateCmd)
}
