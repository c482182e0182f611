package main

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/heimdall-intel/asis-cli/internal/scheduler"
)

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Run the pipeline continuously at the declared frequencies",
	Long: `Long-running mode: fires ingest-then-clean at minute 05 of every hour
(HOURLY), 00:05 (DAILY), day-1 00:10 (MONTHLY), and quarter-start 00:15
(QUARTERLY). Overlapping ticks for a frequency are dropped. SIGINT or
SIGTERM drains the current run, then exits.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		e, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer e.Close()

		return scheduler.New(e.Engine, e.Pipeline).Run(ctx)
	},
}

func init() {
	rootCmd.AddCommand(scheduleCmd)
}
