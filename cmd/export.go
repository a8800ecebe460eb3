package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/iksnae/session-sync/internal"
	"github.com/iksnae/session-sync/internal/export"
)

var exportFormat string
var exportOutput string

var exportCmd = &cobra.Command{
	Use:   "export <session-id>",
	Short: "Export a stored session",
	Long:  `Export a session in jsonl, markdown, yaml or json format.`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, _, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		sess, err := store.GetSession(context.Background(), args[0])
		if err != nil {
			return err
		}

		exporter, err := export.NewExporter(exportFormat)
		if err != nil {
			return err
		}

		out := os.Stdout
		if exportOutput != "" {
			f, err := os.Create(exportOutput)
			if err != nil {
				return fmt.Errorf("failed to create output file: %w", err)
			}
			defer f.Close()
			out = f
		}

		if err := exporter.Export(sess, out); err != nil {
			return &internal.ExportError{Format: exportFormat, Path: exportOutput, Err: err}
		}
		return nil
	},
}

func init() {
	exportCmd.Flags().StringVarP(&exportFormat, "format", "f", "json", "Export format (jsonl, md, yaml, json)")
	exportCmd.Flags().StringVarP(&exportOutput, "output", "o", "", "Output file (default stdout)")
	rootCmd.AddCommand(exportCmd)
}
