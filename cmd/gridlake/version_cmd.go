package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newVersionCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			_, err := fmt.Fprintf(opts.out, "gridlake version %s (built %s, commit %s)\n", version, buildTime, gitCommit)
			return err
		},
	}
}
