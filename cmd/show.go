package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var showParts bool

var showCmd = &cobra.Command{
	Use:   "show <session-id>",
	Short: "Show one session with its messages",
	Long: `Show a session by its internal or external id, including every message in
ordinal order. With --parts, message parts (reasoning, tool calls, step
markers) are listed as well.`,
	Args: cobra.ExactArgs(1),
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

		fmt.Println(titleStyle.Render(sess.Title))
		if sess.Summary != "" {
			fmt.Println(sess.Summary)
		}
		if sess.Provider != "" || sess.Model != "" {
			fmt.Println(idStyle.Render(fmt.Sprintf("%s / %s", sess.Provider, sess.Model)))
		}
		fmt.Println()

		for _, msg := range sess.Messages {
			header := msg.Role
			if msg.Timestamp != "" {
				header += " " + dateStyle.Render(msg.Timestamp)
			}
			fmt.Println(headerStyle.Render(header))
			fmt.Println(msg.Content)
			if showParts {
				for _, part := range msg.Parts {
					label := fmt.Sprintf("  [%s]", part.Type)
					if part.Text != "" && part.Type != "text" {
						label += " " + part.Text
					}
					fmt.Println(idStyle.Render(label))
				}
			}
			fmt.Println()
		}
		return nil
	},
}

func init() {
	showCmd.Flags().BoolVar(&showParts, "parts", false, "Show message parts")
	rootCmd.AddCommand(showCmd)
}
