package cmd

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"

	"github.com/specsync/specsync/internal/api"
)

var (
	addName        string
	addRepoURL     string
	addBranch      string
	addSpecPaths   []string
	addCronExpr    string
	addAuthKind    string
	addSecretFile  string
	addSkipPrompts bool
)

// addCmd represents the add command
var addCmd = &cobra.Command{
	Use:   "add [file]",
	Short: "Register a new repository configuration",
	Long: `Register a new repository configuration.
You can provide a JSON file, use flags, or run interactively.

Examples:
  # From JSON file
  specsync-ctl repos add my-repo.json

  # Using flags (non-interactive)
  specsync-ctl repos add --name "MyAPIs" --repo "https://github.com/user/specs" --path apis/orders.yaml --yes

  # Interactive mode (just run add)
  specsync-ctl repos add`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var repoData = make(map[string]interface{})

		// 1. If file is provided, use it
		if len(args) > 0 {
			fileData, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("error reading file: %v", err)
			}
			if err := json.Unmarshal(fileData, &repoData); err != nil {
				return fmt.Errorf("invalid json file: %v", err)
			}
		} else {
			// 2. Otherwise, use flags or interactive mode
			if addSkipPrompts {
				if addName == "" || addRepoURL == "" {
					return fmt.Errorf("name and repo are required when using --yes")
				}
				repoData["name"] = addName
				repoData["repo_url"] = addRepoURL
				if addBranch != "" {
					repoData["branch"] = addBranch
				} else {
					repoData["branch"] = "main"
				}
			} else {
				// Interactive Mode
				if addName != "" {
					repoData["name"] = addName
				} else {
					prompt := promptui.Prompt{
						Label: "Repository Name",
						Validate: func(input string) error {
							if len(input) == 0 {
								return fmt.Errorf("repository name is required")
							}
							return nil
						},
					}
					result, err := prompt.Run()
					if err != nil {
						return err
					}
					repoData["name"] = result
				}

				if addRepoURL != "" {
					repoData["repo_url"] = addRepoURL
				} else {
					prompt := promptui.Prompt{
						Label: "Git Repository URL",
						Validate: func(input string) error {
							if len(input) == 0 {
								return fmt.Errorf("repo url is required")
							}
							return nil
						},
					}
					result, err := prompt.Run()
					if err != nil {
						return err
					}
					repoData["repo_url"] = result
				}

				if addBranch != "" {
					repoData["branch"] = addBranch
				} else {
					prompt := promptui.Prompt{
						Label:   "Branch",
						Default: "main",
					}
					result, err := prompt.Run()
					if err != nil {
						return err
					}
					repoData["branch"] = result
				}

				if len(addSpecPaths) == 0 {
					prompt := promptui.Prompt{
						Label: "Tracked spec paths (comma separated, empty for none)",
					}
					result, err := prompt.Run()
					if err != nil {
						return err
					}
					if result != "" {
						for _, p := range strings.Split(result, ",") {
							addSpecPaths = append(addSpecPaths, strings.TrimSpace(p))
						}
					}
				}
			}

			if len(addSpecPaths) > 0 {
				repoData["spec_paths"] = addSpecPaths
			}
			if addCronExpr != "" {
				repoData["cron_expr"] = addCronExpr
			}

			// Auth config (flags only)
			if addAuthKind != "" {
				repoData["auth_kind"] = addAuthKind
			} else {
				repoData["auth_kind"] = "none"
			}
			if addSecretFile != "" {
				secret, err := os.ReadFile(addSecretFile)
				if err != nil {
					return fmt.Errorf("error reading secret file: %v", err)
				}
				repoData["secret"] = string(secret)
				if addAuthKind == "" {
					repoData["auth_kind"] = "token"
				}
			}
		}

		client := NewClient()
		resp, err := client.Post("/api/v1/repositories/", repoData)
		if err != nil {
			return fmt.Errorf("error creating repository: %v", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
			return CheckResponse(resp)
		}

		var apiResp api.APIResponse
		if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
			return fmt.Errorf("error decoding response: %v", err)
		}

		fmt.Println("Repository registered successfully.")
		return nil
	},
}

func init() {
	addCmd.Flags().StringVar(&addName, "name", "", "Repository name")
	addCmd.Flags().StringVar(&addRepoURL, "repo", "", "Git repository URL")
	addCmd.Flags().StringVar(&addBranch, "branch", "", "Git branch (default: main)")
	addCmd.Flags().StringArrayVar(&addSpecPaths, "path", nil, "Tracked spec path (repeatable)")
	addCmd.Flags().StringVar(&addCronExpr, "cron", "", "Per-repository cron schedule")
	addCmd.Flags().StringVar(&addAuthKind, "auth-kind", "", "Auth kind: none, token or ssh_key")
	addCmd.Flags().StringVar(&addSecretFile, "secret-file", "", "File holding the token or SSH private key")
	addCmd.Flags().BoolVarP(&addSkipPrompts, "yes", "y", false, "Skip interactive prompts (use defaults)")

	reposCmd.AddCommand(addCmd)
}
