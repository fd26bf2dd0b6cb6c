package cli

import (
	"github.com/spf13/cobra"

	"github.com/ec2nav/ec2nav/internal/instance"
)

// RegisterStartCommands adds the instance start command.
func RegisterStartCommands(root *cobra.Command) {
	var opts instance.Options

	cmd := &cobra.Command{
		Use:   "start <name>",
		Short: "Start an EC2 instance located by Name tag",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer app.Close()
			app.logCommand("start", args)

			return app.actor().Start(cmd.Context(), args[0], opts)
		},
	}

	cmd.Flags().BoolVar(&opts.Wait, "wait", false, "block until the instance is fully running")
	cmd.Flags().BoolVar(&opts.DryRun, "dry-run", false, "report what would happen without starting anything")
	cmd.Flags().BoolVarP(&opts.AutoConfirm, "yes", "y", false, "skip confirmation prompts")

	root.AddCommand(cmd)
}
