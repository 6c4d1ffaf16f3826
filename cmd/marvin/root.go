package main

import (
	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "marvin",
		Short:         "Marvin's memory service",
		Long:          "Marvin's memory service: alignment-gated memory storage, research and tweet discovery.",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newProcessTweetsCmd())
	rootCmd.AddCommand(newResearchCmd())
	rootCmd.AddCommand(newVersionCmd())

	return rootCmd
}
