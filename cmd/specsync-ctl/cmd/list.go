package cmd

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/specsync/specsync/internal/api"
)

// listCmd represents the list command
var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List all repository configurations",
	RunE: func(cmd *cobra.Command, args []string) error {
		client := NewClient()
		resp, err := client.Get("/api/v1/repositories/")
		if err != nil {
			return fmt.Errorf("error fetching repositories: %v", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return CheckResponse(resp)
		}

		var apiResp struct {
			Data []api.RepositoryConfig `json:"data"`
		}

		if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
			return fmt.Errorf("error decoding response: %v", err)
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
		fmt.Fprintln(w, "ID\tNAME\tREPO\tBRANCH\tACTIVE\tREVISION\tLAST IMPORT")
		for _, cfg := range apiResp.Data {
			lastImport := "-"
			if !cfg.LastImportDate.IsZero() {
				lastImport = cfg.LastImportDate.Format(time.RFC3339)
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%t\t%s\t%s\n", cfg.ID, cfg.Name, cfg.RepoURL, cfg.Branch, cfg.Active, shortRev(cfg.LastCommitHash), lastImport)
		}
		w.Flush()

		return nil
	},
}

func shortRev(rev string) string {
	if rev == "" {
		return "-"
	}
	if len(rev) > 8 {
		return rev[:8]
	}
	return rev
}

func init() {
	reposCmd.AddCommand(listCmd)
}
