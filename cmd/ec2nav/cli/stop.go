package cli

import (
	"github.com/spf13/cobra"

	"github.com/ec2nav/ec2nav/internal/instance"
)

// RegisterStopCommands adds the instance stop command.
func RegisterStopCommands(root *cobra.Command) {
	var opts instance.Options

	cmd := &cobra.Command{
		Use:   "stop <name>",
		Short: "Stop an EC2 instance located by Name tag",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer app.Close()
			app.logCommand("stop", args)

			return app.actor().Stop(cmd.Context(), args[0], opts)
		},
	}

	cmd.Flags().BoolVar(&opts.Wait, "wait", false, "block until the instance is fully stopped")
	cmd.Flags().BoolVar(&opts.DryRun, "dry-run", false, "report what would happen without stopping anything")
	cmd.Flags().BoolVarP(&opts.AutoConfirm, "yes", "y", false, "skip confirmation prompts")

	root.AddCommand(cmd)
}
