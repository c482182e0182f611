package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show pipeline state: watermarks, table counts, recent runs",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		e, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer e.Close()

		counts, err := e.Store.SilverCounts(ctx)
		if err != nil {
			return err
		}
		fmt.Println("Silver tables:")
		for _, table := range []string{"timeseries_macro", "timeseries_micro", "news_intel_pool"} {
			fmt.Printf("  %-20s %8d rows\n", table, counts[table])
		}

		fmt.Println("Cleaning watermarks:")
		if err := printWatermarks(cmd, e.Pipeline); err != nil {
			return err
		}

		runs, err := e.Store.RecentRuns(ctx, 5)
		if err != nil {
			return err
		}
		if len(runs) > 0 {
			fmt.Println("Recent ingestion runs:")
			for _, r := range runs {
				fmt.Printf("  %s %-10s %-9s ok=%d skip=%d fail=%d\n",
					r.StartedAt.Format("2006-01-02 15:04"), r.Frequency, r.Status,
					r.Succeeded, r.Skipped, r.Failed)
			}
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
