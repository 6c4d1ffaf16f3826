package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/MarkAustinGrow/marvins-memory/pkg/version"
)

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version info",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintf(cmd.OutOrStdout(), "marvin %s\n", version.String())
			return nil
		},
	}
}
