package cmd

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"curator/internal/core"
	"curator/internal/digest"
)

var digestCmd = &cobra.Command{
	Use:   "digest",
	Short: "Generate and inspect digests",
	Long:  `Synthesize multi-article briefings over a time period.`,
}

var digestWeeklyCmd = &cobra.Command{
	Use:   "weekly",
	Short: "Generate a digest over the trailing seven days",
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
		synthesizer := digest.NewSynthesizer(st, caller, cfg.Digest)

		d, err := synthesizer.GenerateWeekly(cmd.Context())
		if err != nil {
			return err
		}
		return reportDigest(d)
	},
}

var digestRangeCmd = &cobra.Command{
	Use:   "range",
	Short: "Generate a digest over an explicit date range",
	Long: `Generate a digest over [start, end], both dates inclusive.

Example:
  curator digest range --start 2026-08-01 --end 2026-08-28`,
	RunE: func(cmd *cobra.Command, args []string) error {
		startArg, _ := cmd.Flags().GetString("start")
		endArg, _ := cmd.Flags().GetString("end")
		start, err := time.Parse("2006-01-02", startArg)
		if err != nil {
			return fmt.Errorf("invalid --start date %q (want YYYY-MM-DD)", startArg)
		}
		end, err := time.Parse("2006-01-02", endArg)
		if err != nil {
			return fmt.Errorf("invalid --end date %q (want YYYY-MM-DD)", endArg)
		}
		if end.Before(start) {
			return fmt.Errorf("--end is before --start")
		}
		// Include the whole end day.
		end = end.AddDate(0, 0, 1).Add(-time.Second)

		st, err := openStore()
		if err != nil {
			return err
		}
		defer st.Close()

		caller, err := newCaller(cmd.Context())
		if err != nil {
			return err
		}
		synthesizer := digest.NewSynthesizer(st, caller, cfg.Digest)

		d, err := synthesizer.Generate(cmd.Context(), start, end, "range")
		if err != nil {
			return err
		}
		return reportDigest(d)
	},
}

var digestShowCmd = &cobra.Command{
	Use:   "show [digest-id]",
	Short: "Print a digest's markdown",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid digest ID %q", args[0])
		}

		st, err := openStore()
		if err != nil {
			return err
		}
		defer st.Close()

		d, err := st.GetDigest(cmd.Context(), id)
		if err != nil {
			return err
		}
		if d == nil {
			return fmt.Errorf("digest %d not found", id)
		}
		if d.Status != core.DigestCompleted {
			fmt.Printf("Digest %d is %s: %s\n", d.ID, d.Status, d.ExecutiveSummary)
			return nil
		}
		fmt.Print(d.FullMarkdown)
		return nil
	},
}

func reportDigest(d *core.Digest) error {
	if d.Status != core.DigestCompleted {
		fmt.Printf("Digest %d not completed (%s): %s\n", d.ID, d.Status, d.ExecutiveSummary)
		return nil
	}
	fmt.Printf("Digest %d complete: %s (%d articles)\n", d.ID, d.Title, d.ArticleCount)
	return nil
}

func init() {
	rootCmd.AddCommand(digestCmd)
	digestCmd.AddCommand(digestWeeklyCmd, digestRangeCmd, digestShowCmd)
	digestRangeCmd.Flags().String("start", "", "period start date (YYYY-MM-DD)")
	digestRangeCmd.Flags().String("end", "", "period end date (YYYY-MM-DD)")
}
