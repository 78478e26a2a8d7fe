package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// NewRootCmd creates the root command for leakbox.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "leakbox",
		Short: "Honeypot mail server that detects address leaks",
		Long: `leakbox issues a unique e-mail address for every site you register with,
receives the mail sent to those addresses and records where each address
leaks: tracking links, redirect chains and third-party requests.

Configuration is read from .leakbox in the current or home directory
(or --config), then overridden by flags.`,
		Version:       getVersion(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose logging")
	cmd.PersistentFlags().Bool("json-log", false, "Write logs as JSON")
	cmd.PersistentFlags().StringP("config", "c", "",
		"Configuration file path (default: .leakbox in current or home directory)")
	cmd.PersistentFlags().String("data-dir", "",
		"Directory holding the database (default: XDG data directory)")

	cmd.AddCommand(NewServeCmd())
	cmd.AddCommand(NewUsersCmd())
	cmd.AddCommand(NewReportCmd())
	cmd.AddCommand(NewInitCmd())
	cmd.AddCommand(NewVersionCmd())

	return cmd
}

// Execute runs the root command.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
