package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"curator/internal/interrogate"
)

var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Ask a question about the collection",
	Long: `Answer a natural-language question with a reading list assembled from
the enriched articles. The list is persisted and printed as markdown.

Example:
  curator ask "what should I read to get up to speed on inference costs?"`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		query := strings.Join(args, " ")

		st, err := openStore()
		if err != nil {
			return err
		}
		defer st.Close()

		caller, err := newCaller(cmd.Context())
		if err != nil {
			return err
		}
		pipeline := interrogate.NewPipeline(st, caller)

		var userID *int64
		if id, _ := cmd.Flags().GetInt64("user"); id > 0 {
			userID = &id
		}
		resp, err := pipeline.Ask(cmd.Context(), query, userID)
		if err != nil {
			return err
		}
		if resp.ReadingListID == nil {
			fmt.Printf("%s\n%s\n", resp.Title, resp.Description)
			return nil
		}
		fmt.Print(resp.Markdown)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(askCmd)
	askCmd.Flags().Int64("user", 0, "record this user ID as the reading list's creator")
}
