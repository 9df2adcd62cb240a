package cmd

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"curator/internal/core"
	"curator/internal/discovery"
)

var discoverCmd = &cobra.Command{
	Use:   "discover [job-id]",
	Short: "Run search jobs and register discovered articles",
	Long: `Run one search job by ID, or every enabled job when no ID is given.
Each cited URL that is not already in the collection becomes a pending
article.

Example:
  curator discover        # run all enabled jobs
  curator discover 3      # run job 3 only`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStore()
		if err != nil {
			return err
		}
		defer st.Close()

		connector := discovery.NewConnector(st, newSearchProvider())

		if len(args) == 0 {
			summary, err := connector.RunAll(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Printf("Ran %d jobs: %d articles found, %d new\n",
				summary.JobsRun, summary.TotalFound, summary.TotalNew)
			return nil
		}

		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid job ID %q", args[0])
		}
		execution, err := connector.RunJob(cmd.Context(), id)
		if err != nil {
			return err
		}
		if execution.Status == core.ExecutionError {
			fmt.Printf("Job %d failed: %s\n", id, execution.ErrorMessage)
			return nil
		}
		fmt.Printf("Job %d: %d articles found, %d new\n",
			id, execution.ArticlesFound, execution.ArticlesNew)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(discoverCmd)
}
