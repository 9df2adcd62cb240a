package cmd

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"curator/internal/fetch"
)

var fetchCmd = &cobra.Command{
	Use:   "fetch [article-id]",
	Short: "Fetch and extract article content",
	Long: `Fetch one article by ID, or a batch of the oldest pending articles when
no ID is given. Paywalled and unreachable pages are recorded rather than
retried.

Example:
  curator fetch           # fetch a batch of pending articles
  curator fetch 42        # fetch article 42
  curator fetch --limit 5 # fetch at most 5 pending articles`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStore()
		if err != nil {
			return err
		}
		defer st.Close()

		fetcher := fetch.NewFetcher(st, cfg.Fetch)

		if len(args) == 1 {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid article ID %q", args[0])
			}
			ok, status, err := fetcher.FetchOne(cmd.Context(), id)
			if err != nil {
				return err
			}
			if ok {
				fmt.Printf("Fetched article %d (now %s)\n", id, status)
			} else {
				fmt.Printf("Fetch failed for article %d (now %s)\n", id, status)
			}
			return nil
		}

		limit, _ := cmd.Flags().GetInt("limit")
		stats, err := fetcher.FetchPending(cmd.Context(), limit)
		if err != nil {
			return err
		}
		fmt.Printf("Fetched %d articles: %d succeeded, %d failed\n",
			stats.Total, stats.Success, stats.Failed)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(fetchCmd)
	fetchCmd.Flags().Int("limit", 0, "batch size (default from config)")
}
