package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"piigate/internal/version"
)

// Execute builds the root command tree and runs the CLI.
func Execute() error {
	return newRootCmd().Execute()
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "piigate",
		Short:         "Streaming PII detection and redaction for CSV and NDJSON",
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       version.Version,
	}
	rootCmd.SetVersionTemplate("piigate {{.Version}}\n")

	rootCmd.AddCommand(
		newServeCmd(),
		newCheckCmd(),
		newRedactCmd(),
		newVersionCmd(),
	)
	return rootCmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "piigate "+version.Info())
		},
	}
}
