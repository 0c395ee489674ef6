package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/praxi/ci-triage/internal/tracker"
)

var (
	statusTracker   string
	statusNeedsOnly bool
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "List tracked runs from the run-history tracker",
	Long: `status reads the tracker file apply-and-validate maintains and
prints one line per run. --needs-review narrows the list to runs currently
flagged for manual review.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		t, err := tracker.New(statusTracker)
		if err != nil {
			return fmt.Errorf("open tracker: %w", err)
		}

		var records []*tracker.RunRecord
		if statusNeedsOnly {
			records = t.NeedingReview()
		} else {
			records = t.All()
		}

		if len(records) == 0 {
			fmt.Println("no tracked runs")
			return nil
		}
		for _, r := range records {
			review := ""
			if r.NeedsManualReview {
				review = " NEEDS REVIEW"
			}
			fmt.Printf("%s  %-20s  risk=%-8s  seen=%d  last=%s%s\n",
				r.RunID, r.ErrorType, r.RiskLevel, r.SeenCount, r.LastUpdated.Format("2006-01-02T15:04:05Z"), review)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
	statusCmd.Flags().StringVar(&statusTracker, "tracker", "fix-agent/tracker.json", "Path to the run-history tracker file")
	statusCmd.Flags().BoolVar(&statusNeedsOnly, "needs-review", false, "Only list runs flagged for manual review")
}
