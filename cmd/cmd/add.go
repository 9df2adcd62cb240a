package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"curator/internal/discovery"
)

var addCmd = &cobra.Command{
	Use:   "add [url]",
	Short: "Add a single article URL to the collection",
	Long: `Register a URL by hand. The URL is canonicalized before storing, so
tracking-parameter variants of an already-known article are rejected as
duplicates.

Example:
  curator add https://example.com/interesting-article
  curator add --title "A Better Title" https://example.com/article`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		title, _ := cmd.Flags().GetString("title")

		st, err := openStore()
		if err != nil {
			return err
		}
		defer st.Close()

		connector := discovery.NewConnector(st, nil)
		article, created, err := connector.AddArticle(cmd.Context(), args[0], title)
		if err != nil {
			return err
		}
		if !created {
			fmt.Printf("Already known as article %d: %s\n", article.ID, article.Title)
			return nil
		}
		fmt.Printf("Added article %d: %s\n", article.ID, article.Title)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(addCmd)
	addCmd.Flags().StringP("title", "t", "", "title for the article (derived from the URL when omitted)")
}
