package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/terralens/forestmap/internal/store"
)

var (
	runsStatus string
	runsLimit  int
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List recorded analysis runs",
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := store.NewSQLite(cfg.Store.Path)
		if err != nil {
			return err
		}
		defer st.Close()
		if err := st.Migrate(cmd.Context()); err != nil {
			return err
		}

		runs, err := st.ListRuns(cmd.Context(), store.RunFilter{
			Status: store.RunStatus(runsStatus),
			Limit:  runsLimit,
		})
		if err != nil {
			return err
		}

		if len(runs) == 0 {
			fmt.Println("no runs recorded")
			return nil
		}

		fmt.Printf("%-36s  %-9s  %-19s  %s\n", "ID", "STATUS", "CREATED", "DESCRIPTOR")
		for _, r := range runs {
			fmt.Printf("%-36s  %-9s  %-19s  %s\n",
				r.ID, r.Status, r.CreatedAt.Format("2006-01-02 15:04:05"), r.DescriptorKey)
			if r.Error != "" {
				fmt.Printf("    error: %s\n", r.Error)
			}
		}
		return nil
	},
}

func init() {
	runsCmd.Flags().StringVar(&runsStatus, "status", "", "filter by status (queued|running|complete|failed)")
	runsCmd.Flags().IntVar(&runsLimit, "limit", 50, "maximum runs to list")
	rootCmd.AddCommand(runsCmd)
}
