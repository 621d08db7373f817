package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"piigate/internal/ruleset"
)

func newCheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check <ruleset.yaml>",
		Short: "Validate a ruleset file",
		Long: `Compiles a ruleset the same way the server does on reload and prints
its version and masking strategies. The exit status is non-zero when the
ruleset would be rejected.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := ruleset.LoadFile(args[0])
			if err != nil {
				return err
			}
			snap, err := ruleset.Compile(doc)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "name:    %s\n", snap.Name())
			fmt.Fprintf(out, "version: %s\n\n", snap.Version())

			tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "CATEGORY\tSTRATEGY")
			for _, s := range snap.Strategies() {
				fmt.Fprintf(tw, "%s\t%s\n", s.Category, s.Strategy)
			}
			if err := tw.Flush(); err != nil {
				return err
			}

			if snap.DevelopmentSalt() {
				fmt.Fprintln(out, "\nwarning: HASH strategies use the development secret, set PIIGATE_HASH_SECRET")
			}
			return nil
		},
	}
}
