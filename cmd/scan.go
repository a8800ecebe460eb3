package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/iksnae/session-sync/internal"
)

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Run one ingestion cycle across all enabled sources",
	Long: `Run a single ingestion cycle: every enabled source is scanned from its
checkpoint (bounded by the lookback window) and new or changed sessions are
upserted into the database. A failure on one source never blocks the others.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		store, cfg, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		orchestrator := internal.NewOrchestrator(store, cfg)
		report, err := orchestrator.RunCycle(context.Background())
		if err != nil {
			return fmt.Errorf("cycle failed: %w", err)
		}

		fmt.Printf("Scan complete: %d sources ok, %d failed\n", report.Succeeded, report.Failed)
		fmt.Printf("Upserted %d sessions, %d messages, %d parts\n",
			report.Counts.SessionsUpserted, report.Counts.MessagesUpserted, report.Counts.PartsUpserted)
		if report.Failed > 0 {
			fmt.Println("Run `session-sync sources` for per-source errors")
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(scanCmd)
}
