// Package cmd wires the curator CLI: discovery, fetching, enrichment,
// digests, and interrogation over the local article collection.
package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"curator/internal/config"
	"curator/internal/llm"
	"curator/internal/logger"
	"curator/internal/search"
	"curator/internal/store"
)

var (
	cfgFile string
	cfg     *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "curator",
	Short: "Curator discovers, fetches, enriches, and digests articles.",
	Long: `Curator maintains a local collection of articles: it discovers new URLs
through recurring search jobs, fetches and extracts their content, runs
model-based enrichment, and synthesizes digests and reading lists.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load(cfgFile)
		if err != nil {
			return err
		}
		cfg = loaded
		logger.Init(cfg.App.LogLevel)
		return nil
	},
}

// Execute runs the root command. Called once from main.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./curator.yaml)")
}

func openStore() (*store.Store, error) {
	return store.NewStore(cfg.App.DataDir)
}

func newCaller(ctx context.Context) (llm.StructuredCaller, error) {
	return llm.NewClient(ctx, cfg.LLM.APIKey, cfg.LLM.Model, cfg.LLM.MaxTokens)
}

func newSearchProvider() search.Provider {
	return search.NewSonarProvider(cfg.Search.APIKey, cfg.Search.BaseURL, cfg.Search.Model)
}
