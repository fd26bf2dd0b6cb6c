package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// RegisterFindCommands adds the cross-account instance search command.
func RegisterFindCommands(root *cobra.Command) {
	root.AddCommand(newFindCmd())
}

func newFindCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "find <name>",
		Short: "Locate an EC2 instance by Name tag across all accounts",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer app.Close()
			app.logCommand("find", args)

			name := args[0]
			fmt.Printf("Searching for EC2 instance: %s\n", name)

			match, err := app.resolver.Find(cmd.Context(), name)
			if err != nil {
				return err
			}
			if match == nil {
				fmt.Printf("No EC2 instance found with name tag %q.\n", name)
				if len(app.accounts) == 0 {
					fmt.Println("No accounts configured; run 'ec2nav config init' first.")
					return nil
				}
				fmt.Println("Accounts checked:")
				for _, acct := range app.accounts {
					fmt.Printf("  %s (%s)\n", acct.Name, acct.ID)
				}
				return nil
			}

			if asJSON {
				out := struct {
					Account   string `json:"account"`
					AccountID string `json:"account_id"`
					Region    string `json:"region"`
					Instance  any    `json:"instance"`
				}{match.Account.Name, match.Account.ID, match.Region, match.Instance}
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(out)
			}

			fmt.Printf("Found %s (%s)\n", name, match.Instance.InstanceID)
			fmt.Printf("  Account: %s (%s)\n", match.Account.Name, match.Account.ID)
			fmt.Printf("  Region:  %s\n", match.Region)
			fmt.Printf("  State:   %s\n", match.Instance.State)
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print the match as JSON")
	return cmd
}
