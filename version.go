package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

// Version is injected at build time via ldflags.
var Version = "dev"

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "conngate %s\n", Version)
			return err
		},
	}
}
