package cmd

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"curator/internal/enrich"
)

var enrichCmd = &cobra.Command{
	Use:   "enrich [article-id]",
	Short: "Run model analysis over fetched articles",
	Long: `Enrich one article by ID, or a batch of the oldest enrichable articles
when no ID is given. Articles whose fetch failed are analyzed from their
metadata alone.

Example:
  curator enrich           # enrich a batch
  curator enrich 42        # enrich article 42
  curator enrich --limit 5 # enrich at most 5 articles`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStore()
		if err != nil {
			return err
		}
		defer st.Close()

		caller, err := newCaller(cmd.Context())
		if err != nil {
			return err
		}
		engine := enrich.NewEngine(st, caller, cfg.Enrich)

		if len(args) == 1 {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid article ID %q", args[0])
			}
			ok, err := engine.EnrichOne(cmd.Context(), id)
			if err != nil {
				return err
			}
			if ok {
				fmt.Printf("Enriched article %d\n", id)
			} else {
				fmt.Printf("Enrichment failed for article %d; it is marked errored\n", id)
			}
			return nil
		}

		limit, _ := cmd.Flags().GetInt("limit")
		stats, err := engine.EnrichPending(cmd.Context(), limit)
		if err != nil {
			return err
		}
		fmt.Printf("Enriched %d articles: %d succeeded, %d failed\n",
			stats.Total, stats.Success, stats.Failed)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(enrichCmd)
	enrichCmd.Flags().Int("limit", 0, "batch size (default from config)")
}
