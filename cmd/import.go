package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/iksnae/session-sync/internal"
)

var (
	importFile      string
	importText      string
	importTitle     string
	importWorkspace string
	importSource    string
	importTool      string
)

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Manually import a session bundle or pasted transcript",
	Long: `Import a session without going through a source adapter.

Two input modes:
  --file bundle.json    A canonical session bundle as JSON ("-" for stdin)
  --text transcript.txt Loosely-formatted pasted text, split into turns by
                        the best-effort line parser ("-" for stdin)

Validation failures are reported field by field. Deduplication applies only
when the bundle carries an external session id and --source-tool is set.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if (importFile == "") == (importText == "") {
			return fmt.Errorf("exactly one of --file or --text is required")
		}

		var bundle *internal.SessionBundle
		if importFile != "" {
			raw, err := readInput(importFile)
			if err != nil {
				return err
			}
			bundle, err = internal.ValidateBundleJSON(raw)
			if err != nil {
				return renderValidationError(err)
			}
		} else {
			raw, err := readInput(importText)
			if err != nil {
				return err
			}
			turns := internal.ParseTranscript(string(raw))
			if len(turns) == 0 {
				return fmt.Errorf("no turns recognized in transcript")
			}
			title := importTitle
			if title == "" {
				title = internal.FallbackSessionTitle(turns[0].Content, "pasted")
			}
			bundle = &internal.SessionBundle{Title: title}
			for _, turn := range turns {
				bundle.Messages = append(bundle.Messages, internal.BundleMessage{
					Role:    turn.Role,
					Content: turn.Content,
				})
			}
		}

		store, _, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		result, err := store.IngestBundle(context.Background(), internal.IngestInput{
			Bundle:       bundle,
			Workspace:    importWorkspace,
			SourceToolID: importTool,
			ImportSource: importSource,
		})
		if err != nil {
			return renderValidationError(err)
		}

		if result.Deduplicated {
			fmt.Printf("Updated existing session %s\n", result.SessionID)
		} else {
			fmt.Printf("Created session %s\n", result.SessionID)
		}
		return nil
	},
}

func readInput(path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(os.Stdin)
	}
	return os.ReadFile(path)
}

// renderValidationError prints field-level violations individually so the
// caller sees every problem at once
func renderValidationError(err error) error {
	var verr *internal.ValidationError
	if errors.As(err, &verr) {
		fmt.Fprintln(os.Stderr, "Bundle validation failed:")
		for _, field := range verr.Fields {
			fmt.Fprintf(os.Stderr, "  %s: %s\n", field.Path, field.Reason)
		}
		return fmt.Errorf("%d validation error(s)", len(verr.Fields))
	}
	return err
}

func init() {
	importCmd.Flags().StringVar(&importFile, "file", "", "Canonical bundle JSON file (- for stdin)")
	importCmd.Flags().StringVar(&importText, "text", "", "Pasted transcript text file (- for stdin)")
	importCmd.Flags().StringVar(&importTitle, "title", "", "Session title for --text imports")
	importCmd.Flags().StringVar(&importWorkspace, "workspace", "", "Target workspace name")
	importCmd.Flags().StringVar(&importTool, "source-tool", "", "Source tool id for deduplication")
	importCmd.Flags().StringVar(&importSource, "label", "manual", "Import source label")
	rootCmd.AddCommand(importCmd)
}
