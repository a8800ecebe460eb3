package cmd

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
)

var (
	// Styles
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("62")).
			Padding(0, 1)

	okStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("42")).
		Bold(true)

	errStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")).
			Bold(true)

	disabledStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240")).
			Italic(true)

	dateStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("243"))
)

var sourcesCmd = &cobra.Command{
	Use:   "sources",
	Short: "Show per-source ingestion health",
	Long: `Show every configured source with its last run, last success, last error
and current status message.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		store, _, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		sources, err := store.ListSources(context.Background())
		if err != nil {
			return fmt.Errorf("failed to list sources: %w", err)
		}
		if len(sources) == 0 {
			fmt.Println("No sources configured yet. Run `session-sync scan` first.")
			return nil
		}

		fmt.Println(headerStyle.Render("Sources"))
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "KEY\tTYPE\tSTATE\tLAST SUCCESS\tSTATUS")
		for _, source := range sources {
			state := okStyle.Render("enabled")
			if !source.Enabled {
				state = disabledStyle.Render("disabled")
			} else if source.LastErrorAt != "" && source.LastErrorAt > source.LastSuccessAt {
				state = errStyle.Render("failing")
			}
			lastSuccess := source.LastSuccessAt
			if lastSuccess == "" {
				lastSuccess = "never"
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
				source.Key, source.Type, state, dateStyle.Render(lastSuccess), source.StatusMessage)
		}
		return w.Flush()
	},
}

func init() {
	rootCmd.AddCommand(sourcesCmd)
}
