package main

import (
	"fmt"
	"os/signal"
	"path"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	analyzeStart string
	analyzeEnd   string
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze <descriptor-key>",
	Short: "Run a classification for a boundary descriptor in object storage",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initApp(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		run, outcome, err := executeRun(ctx, env, args[0], analyzeStart, analyzeEnd)
		if err != nil {
			if run != nil {
				zap.L().Error("run failed", zap.String("run_id", run.ID), zap.Error(err))
			}
			return err
		}

		fmt.Printf("Run %s complete (image date %s)\n\n", run.ID, outcome.ImageDate)
		fmt.Printf("  %-22s %12s %9s\n", "class", "area km2", "%")
		for _, row := range outcome.Report.Breakdown() {
			fmt.Printf("  %-22s %12.5f %8.2f%%\n", row.Name, row.AreaKm2, row.Percentage)
		}
		fmt.Printf("\n  natural forest: %.5f km2 (%.2f%% of forest)\n",
			outcome.Report.NaturalForestKm2, outcome.Report.NaturalForestPercentage)

		mapURL, err := env.Objects.PresignedDownload(ctx, outcome.MapKey, path.Base(outcome.MapKey))
		if err != nil {
			return err
		}
		statsURL, err := env.Objects.PresignedDownload(ctx, outcome.StatsKey, path.Base(outcome.StatsKey))
		if err != nil {
			return err
		}

		fmt.Printf("\n  map:   %s\n  stats: %s\n", mapURL, statsURL)
		return nil
	},
}

func init() {
	analyzeCmd.Flags().StringVar(&analyzeStart, "start", "", "imagery window start date (YYYY-MM-DD)")
	analyzeCmd.Flags().StringVar(&analyzeEnd, "end", "", "imagery window end date (YYYY-MM-DD)")
	rootCmd.AddCommand(analyzeCmd)
}
