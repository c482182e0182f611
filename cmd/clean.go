package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/heimdall-intel/asis-cli/internal/model"
	"github.com/heimdall-intel/asis-cli/internal/pipeline"
)

var cleanCmd = &cobra.Command{
	Use:   "clean",
	Short: "Transform new Bronze records into Silver tables",
	Long: `Run the differential cleaning pipeline: for each source family, pull
raw records newer than the cleaning watermark, transform them, and
commit the Silver rows together with the advanced watermark.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		sourceStr, _ := cmd.Flags().GetString("source")
		dryRun, _ := cmd.Flags().GetBool("dry-run")
		limit, _ := cmd.Flags().GetInt("limit")
		resetKey, _ := cmd.Flags().GetString("reset-watermark")
		showMarks, _ := cmd.Flags().GetBool("show-watermarks")
		verify, _ := cmd.Flags().GetBool("verify")

		var family model.SourceFamily
		if sourceStr != "" && sourceStr != "ALL" {
			var err error
			if family, err = model.ParseFamily(sourceStr); err != nil {
				return err
			}
		}

		e, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer e.Close()

		if resetKey != "" {
			var resetFamily model.SourceFamily
			if resetKey != "ALL" {
				if resetFamily, err = model.ParseFamily(resetKey); err != nil {
					return err
				}
			}
			if err := e.Pipeline.ResetWatermark(ctx, resetFamily); err != nil {
				return err
			}
		}

		if showMarks {
			return printWatermarks(cmd, e.Pipeline)
		}

		stats, err := e.Pipeline.Run(ctx, pipeline.Options{
			Family: family,
			DryRun: dryRun,
			Limit:  limit,
		})
		if err != nil {
			return err
		}

		for _, s := range stats {
			fmt.Printf("%-14s in=%-4d rows=%-5d skipped=%-3d failed=%-3d %.2fs\n",
				s.Family, s.Input, s.Rows, s.Skipped, s.Failed, s.Duration.Seconds())
		}

		if verify {
			reports, err := e.Pipeline.Verify(ctx, family)
			if err != nil {
				return err
			}
			for _, r := range reports {
				for _, phase := range r.Phases {
					status := "OK"
					if !phase.OK {
						status = "WARNING"
					}
					fmt.Printf("%s %s: %s\n", r.Family, phase.Name, status)
				}
			}
		}

		return nil
	},
}

func printWatermarks(cmd *cobra.Command, pl *pipeline.Pipeline) error {
	marks, err := pl.Watermarks(cmd.Context())
	if err != nil {
		return err
	}
	if len(marks) == 0 {
		fmt.Println("No cleaning watermarks found")
		return nil
	}
	for _, w := range marks {
		status := "never cleaned"
		if w.LastCleanedAt != nil {
			status = w.LastCleanedAt.Format("2006-01-02 15:04:05 MST")
		}
		fmt.Printf("  %-32s %s\n", w.CatalogKey, status)
	}
	return nil
}

func init() {
	cleanCmd.Flags().String("source", "", "source family: MACRO, MICRO, NEWS, ALL")
	cleanCmd.Flags().Bool("dry-run", false, "transform without committing")
	cleanCmd.Flags().Int("limit", 0, "override the per-batch record cap")
	cleanCmd.Flags().String("reset-watermark", "", "reset a family's cleaning watermark (MACRO, MICRO, NEWS, ALL)")
	cleanCmd.Flags().Bool("show-watermarks", false, "display cleaning watermarks and exit")
	cleanCmd.Flags().Bool("verify", false, "run three-phase consistency verification after cleaning")
	rootCmd.AddCommand(cleanCmd)
}
