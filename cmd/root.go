package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/terralens/forestmap/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "forestmap",
	Short: "Natural-forest classification mapping pipeline",
	Long:  "Turns an administrative boundary into a clipped land-cover map with a natural-forest overlay and per-class area statistics, using a remote classification provider and S3-compatible storage.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
