package cmd

import (
	"fmt"
	"os"

	"github.com/iksnae/session-sync/internal"
	"github.com/spf13/cobra"
)

var (
	verbose bool
	dbPath  string
	version string = "dev"
	commit  string = "unknown"
	date    string = "unknown"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "session-sync",
	Short: "Ingest and browse AI coding tool session transcripts",
	Long: `session-sync ingests session transcripts from AI coding tools (Claude-style
JSONL event logs, OpenCode-style session stores), normalizes them into one
canonical schema and persists them idempotently into a local SQLite database.

Quick Start:
  session-sync scan                      # Run one ingestion cycle
  session-sync watch                     # Poll for new transcripts forever
  session-sync sources                   # Per-source ingestion health
  session-sync list                      # List ingested sessions
  session-sync show <session-id>         # View one session
  session-sync import --file bundle.json # Manual bundle entry
  session-sync export <id> --format md   # Export a session

Configuration is read from the environment (optionally via a .env file):
SESSION_SYNC_DB, CLAUDE_ROOT, OPENCODE_ROOT, LOOKBACK_DAYS, POLL_INTERVAL_MS.`,
	Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		internal.SetVerbose(verbose)
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "Database file (overrides SESSION_SYNC_DB)")

	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)
}

// openStore loads configuration and opens the persistent store
func openStore() (*internal.Store, *internal.Config, error) {
	cfg, err := internal.LoadConfig()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if dbPath != "" {
		cfg.DBPath = dbPath
	}
	store, err := internal.NewStore(cfg.DBPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open store: %w", err)
	}
	return store, cfg, nil
}
