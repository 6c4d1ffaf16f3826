package main

import (
	"encoding/json"

	"github.com/spf13/cobra"
)

func newProcessTweetsCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "process-tweets",
		Short: "Run one tweet processing batch and print the result",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, cfg := loadRuntime()
			if limit > 0 {
				cfg.TweetBatchLimit = limit
			}
			a, err := newApp(cmd.Context(), cfg, logger, appOptions{tweets: true})
			if err != nil {
				return err
			}
			defer a.Close()

			res, err := a.processor.ProcessBatch(cmd.Context())
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if encErr := enc.Encode(res); encErr != nil {
				return encErr
			}
			return err
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum tweets to process (default TWEET_BATCH_LIMIT)")
	return cmd
}
