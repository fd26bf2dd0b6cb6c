// ec2nav — cross-account EC2 instance navigator.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ec2nav/ec2nav/cmd/ec2nav/cli"
)

var version = "0.1.0-dev"

func main() {
	rootCmd := &cobra.Command{
		Use:   "ec2nav",
		Short: "ec2nav — locate and manage EC2 instances across accounts",
		Long: `ec2nav finds EC2 instances by their Name tag across every configured
AWS account and region, delegating into each account with short-lived
STS credentials, and lets you inspect, start, and stop what it finds.`,
		Version:      version,
		SilenceUsage: true,
	}

	// Register command groups
	cli.RegisterFindCommands(rootCmd)
	cli.RegisterInfoCommands(rootCmd)
	cli.RegisterStartCommands(rootCmd)
	cli.RegisterStopCommands(rootCmd)
	cli.RegisterConfigCommands(rootCmd)
	cli.RegisterAuditCommands(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
