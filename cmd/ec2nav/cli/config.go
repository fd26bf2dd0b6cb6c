package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/ec2nav/ec2nav/internal/config"
	"github.com/ec2nav/ec2nav/internal/logging"
)

// RegisterConfigCommands adds the configuration commands.
func RegisterConfigCommands(root *cobra.Command) {
	cfgCmd := &cobra.Command{
		Use:   "config",
		Short: "Manage the account registry and tool settings",
	}

	cfgCmd.AddCommand(newConfigShowCmd())
	cfgCmd.AddCommand(newConfigInitCmd())
	cfgCmd.AddCommand(newConfigAddAccountCmd())

	root.AddCommand(cfgCmd)
}

func newConfigShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the current configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintf(w, "Config file:\t%s\n", filepath.Join(config.Dir(), config.ConfigFileName))
			fmt.Fprintf(w, "Role name:\t%s\n", cfg.RoleName)
			fmt.Fprintf(w, "Session duration:\t%ds\n", cfg.SessionDurationSeconds)
			fmt.Fprintf(w, "Session name prefix:\t%s\n", cfg.SessionNamePrefix)
			fmt.Fprintf(w, "Session cache:\t%v\n", cfg.EnableSessionCache)
			fmt.Fprintf(w, "Discover regions:\t%v\n", cfg.DiscoverRegions)
			fmt.Fprintf(w, "Log level:\t%s\n", cfg.LogLevel)
			if cfg.ExternalID != "" {
				fmt.Fprintf(w, "External ID:\t%s\n", logging.RedactValue(cfg.ExternalID))
			}

			fmt.Fprintf(w, "Regions:\t\n")
			for _, r := range cfg.Regions {
				fmt.Fprintf(w, "  %s\t\n", r)
			}

			fmt.Fprintf(w, "Accounts:\t\n")
			if len(cfg.Accounts) == 0 {
				fmt.Fprintf(w, "  (none)\t\n")
			}
			for _, acct := range cfg.SortedAccounts() {
				fmt.Fprintf(w, "  %s\t%s\n", acct.Name, acct.ID)
			}
			return w.Flush()
		},
	}
}

func newConfigInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Write a default configuration file",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := filepath.Join(config.Dir(), config.ConfigFileName)
			if _, err := os.Stat(path); err == nil {
				return fmt.Errorf("config already exists at %s", path)
			}

			if err := config.Save(config.Default()); err != nil {
				return err
			}
			fmt.Printf("Wrote default config to %s\n", path)
			fmt.Println("Add accounts with 'ec2nav config add-account <name> <account-id>'.")
			return nil
		},
	}
}

func newConfigAddAccountCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "add-account <name> <account-id>",
		Short: "Register an account in the search registry",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}

			name, id := args[0], args[1]
			if cfg.Accounts == nil {
				cfg.Accounts = map[string]string{}
			}
			cfg.Accounts[name] = id

			if err := config.Save(cfg); err != nil {
				return err
			}
			fmt.Printf("Registered account %s (%s).\n", name, id)
			return nil
		},
	}
}
