package cmd

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"curator/internal/core"
)

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "Manage recurring search jobs",
	Long:  `Create, list, and toggle the named search queries that drive discovery.`,
}

var jobsAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Create a search job",
	Long: `Create a named recurring search query.

Example:
  curator jobs add --name "ml papers" --query "notable machine learning papers this week"`,
	RunE: func(cmd *cobra.Command, args []string) error {
		name, _ := cmd.Flags().GetString("name")
		query, _ := cmd.Flags().GetString("query")
		schedule, _ := cmd.Flags().GetString("schedule")
		if name == "" || query == "" {
			return fmt.Errorf("both --name and --query are required")
		}

		st, err := openStore()
		if err != nil {
			return err
		}
		defer st.Close()

		job := &core.SearchJob{Name: name, Query: query, Schedule: schedule, Enabled: true}
		if err := st.CreateSearchJob(cmd.Context(), job); err != nil {
			return err
		}
		fmt.Printf("Created search job %d: %s\n", job.ID, job.Name)
		return nil
	},
}

var jobsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List enabled search jobs",
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStore()
		if err != nil {
			return err
		}
		defer st.Close()

		jobs, err := st.ListEnabledSearchJobs(cmd.Context())
		if err != nil {
			return err
		}
		if len(jobs) == 0 {
			fmt.Println("No enabled search jobs. Create one with 'curator jobs add'.")
			return nil
		}
		for _, job := range jobs {
			fmt.Printf("%d. %s (%s)\n   %s\n", job.ID, job.Name, job.Schedule, job.Query)
		}
		return nil
	},
}

var jobsEnableCmd = &cobra.Command{
	Use:   "enable [job-id]",
	Short: "Enable a search job",
	Args:  cobra.ExactArgs(1),
	RunE:  func(cmd *cobra.Command, args []string) error { return setJobEnabled(cmd, args[0], true) },
}

var jobsDisableCmd = &cobra.Command{
	Use:   "disable [job-id]",
	Short: "Disable a search job",
	Args:  cobra.ExactArgs(1),
	RunE:  func(cmd *cobra.Command, args []string) error { return setJobEnabled(cmd, args[0], false) },
}

func setJobEnabled(cmd *cobra.Command, arg string, enabled bool) error {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid job ID %q", arg)
	}

	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	job, err := st.GetSearchJob(cmd.Context(), id)
	if err != nil {
		return err
	}
	if job == nil {
		return fmt.Errorf("search job %d not found", id)
	}
	if err := st.SetSearchJobEnabled(cmd.Context(), id, enabled); err != nil {
		return err
	}
	state := "disabled"
	if enabled {
		state = "enabled"
	}
	fmt.Printf("Search job %d (%s) %s\n", job.ID, job.Name, state)
	return nil
}

func init() {
	rootCmd.AddCommand(jobsCmd)
	jobsCmd.AddCommand(jobsAddCmd, jobsListCmd, jobsEnableCmd, jobsDisableCmd)
	jobsAddCmd.Flags().String("name", "", "job name")
	jobsAddCmd.Flags().String("query", "", "search query the job runs")
	jobsAddCmd.Flags().String("schedule", "weekly", "informal schedule label")
}
