package cli

import (
	"github.com/spf13/cobra"
)

// RegisterInfoCommands adds the instance detail command.
func RegisterInfoCommands(root *cobra.Command) {
	root.AddCommand(&cobra.Command{
		Use:   "info <name>",
		Short: "Show details for an EC2 instance located by Name tag",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer app.Close()
			app.logCommand("info", args)

			return app.actor().Info(cmd.Context(), args[0])
		},
	})
}
