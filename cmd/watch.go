package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/iksnae/session-sync/internal"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Continuously poll sources for new transcripts",
	Long: `Run ingestion cycles on a fixed interval until interrupted. Ticks are
serialized: a cycle still running when the timer fires suppresses the next
tick. SIGINT/SIGTERM stop the loop cleanly and release the database.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		store, cfg, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		fmt.Printf("Watching every %s (ctrl-c to stop)\n", cfg.PollInterval)
		orchestrator := internal.NewOrchestrator(store, cfg)
		watcher := internal.NewWatcher(orchestrator, cfg.PollInterval)

		if err := watcher.Run(ctx); err != nil && ctx.Err() == nil {
			return err
		}
		fmt.Println("Stopped")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(watchCmd)
}
