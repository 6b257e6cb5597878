package cmd

import (
	"github.com/spf13/cobra"
)

// reposCmd represents the repos command
var reposCmd = &cobra.Command{
	Use:   "repos",
	Short: "Manage repository configurations",
	Long:  `Manage tracked Git repositories (list, add, update, delete, activate, sync).`,
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

func init() {
	rootCmd.AddCommand(reposCmd)
}
