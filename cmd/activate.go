package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var activateCmd = &cobra.Command{
	Use:   "activate",
	Short: "Confirm and activate catalog entries",
	Long: `Probe inactive catalog entries with a limit-1 fetch. An entry becomes
active only when its upstream answers successfully with at least one
item. Active entries are the ones ingestion batches pick up.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		catalogKey, _ := cmd.Flags().GetString("catalog")

		e, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer e.Close()

		results, err := e.Engine.ConfirmActivation(ctx, catalogKey)
		if err != nil {
			return err
		}

		activated := 0
		for _, r := range results {
			switch {
			case r.Activated:
				activated++
				fmt.Printf("  %-32s activated\n", r.CatalogKey)
			case r.Err != nil:
				fmt.Printf("  %-32s failed: %v\n", r.CatalogKey, r.Err)
			default:
				fmt.Printf("  %-32s no data\n", r.CatalogKey)
			}
		}
		fmt.Printf("Activated %d of %d\n", activated, len(results))
		return nil
	},
}

func init() {
	activateCmd.Flags().String("catalog", "", "confirm a single catalog key")
	rootCmd.AddCommand(activateCmd)
}
