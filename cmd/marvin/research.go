package main

import (
	"encoding/json"
	"errors"
	"strings"

	"github.com/spf13/cobra"

	"github.com/MarkAustinGrow/marvins-memory/internal/research"
)

func newResearchCmd() *cobra.Command {
	var autoApprove bool
	cmd := &cobra.Command{
		Use:   "research <query>",
		Short: "Research a question and print the extracted insights",
		Long: "Research a question and print the extracted insights. Without --auto-approve nothing is stored: " +
			"the pending queue lives in the serve process, so use the API to review and approve.",
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, cfg := loadRuntime()
			a, err := newApp(cmd.Context(), cfg, logger, appOptions{})
			if err != nil {
				return err
			}
			defer a.Close()

			res := a.research.Conduct(cmd.Context(), strings.Join(args, " "), &autoApprove)
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(res); err != nil {
				return err
			}
			if res.Status == research.StatusError {
				return errors.New(res.Error)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&autoApprove, "auto-approve", false, "store accepted insights immediately")
	return cmd
}
