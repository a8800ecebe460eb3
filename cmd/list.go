package cmd

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
)

var listLimit int

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("212"))

	idStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("240")).
		Italic(true)

	countStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("42")).
			Bold(true)
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List ingested sessions",
	Long:  `List ingested sessions across all sources, newest first.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		store, _, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		sessions, err := store.ListSessions(context.Background(), listLimit)
		if err != nil {
			return fmt.Errorf("failed to list sessions: %w", err)
		}
		if len(sessions) == 0 {
			fmt.Println("No sessions ingested yet. Run `session-sync scan` first.")
			return nil
		}

		fmt.Println(headerStyle.Render(fmt.Sprintf("Sessions (%d)", len(sessions))))
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		for _, sess := range sessions {
			title := sess.Title
			if len(title) > 60 {
				title = title[:57] + "..."
			}
			when := sess.EndedAt
			if when == "" {
				when = sess.StartedAt
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
				idStyle.Render(shortID(sess.ID)),
				titleStyle.Render(title),
				countStyle.Render(fmt.Sprintf("%d tok", sess.TotalTokens)),
				dateStyle.Render(when))
		}
		return w.Flush()
	},
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func init() {
	listCmd.Flags().IntVar(&listLimit, "limit", 50, "Maximum number of sessions to show")
	rootCmd.AddCommand(listCmd)
}
