package cli

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/ec2nav/ec2nav/internal/audit"
	"github.com/ec2nav/ec2nav/internal/config"
)

// RegisterAuditCommands adds the audit log commands.
func RegisterAuditCommands(root *cobra.Command) {
	auditCmd := &cobra.Command{
		Use:   "audit",
		Short: "Inspect the tamper-evident audit log",
	}

	auditCmd.AddCommand(&cobra.Command{
		Use:   "verify",
		Short: "Verify the audit log hash chain",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := audit.Open(filepath.Join(config.Dir(), config.AuditFileName))
			if err != nil {
				return err
			}
			defer db.Close()

			_, count, err := audit.Verify(db)
			if err != nil {
				return err
			}
			fmt.Printf("Audit chain intact: %d records verified.\n", count)
			return nil
		},
	})

	root.AddCommand(auditCmd)
}
