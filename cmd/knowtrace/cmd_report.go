package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"knowtrace/internal/prereq"
	"knowtrace/internal/report"
)

var (
	reportWidth int
	reportPlain bool
)

var reportCmd = &cobra.Command{
	Use:   "report [learner]",
	Short: "Render a learner's mastery report",
	Long: `Builds a markdown report from the learner's profile: per-concept
mastery, the current state band, and any prerequisite gaps blocking tracked
concepts. Without a learner argument, all known learners are listed.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := ensureEngine()
		if err != nil {
			return err
		}

		if len(args) == 0 {
			learners := e.Learners()
			if len(learners) == 0 {
				fmt.Println("No learners on record.")
				return nil
			}
			for _, id := range learners {
				fmt.Println(id)
			}
			return nil
		}

		learnerID := args[0]
		snap, err := e.Profile(learnerID)
		if err != nil {
			return err
		}

		var readiness []prereq.Readiness
		for _, m := range snap.Masteries {
			r, err := e.Readiness(m.ConceptID, learnerID)
			if err != nil {
				continue
			}
			readiness = append(readiness, r)
		}

		audit := len(e.Audit().ForLearner(learnerID))
		if appStore != nil {
			if entries, err := appStore.AuditForLearner(context.Background(), learnerID); err == nil {
				audit = len(entries)
			}
		}

		md := report.Markdown(report.Profile{
			Snapshot:  snap,
			State:     e.State(learnerID),
			Readiness: readiness,
			Audit:     audit,
		})
		if reportPlain {
			fmt.Print(md)
			return nil
		}
		fmt.Print(report.Render(md, reportWidth))
		return nil
	},
}

func init() {
	reportCmd.Flags().IntVar(&reportWidth, "width", 100, "render width")
	reportCmd.Flags().BoolVar(&reportPlain, "plain", false, "print raw markdown")
	rootCmd.AddCommand(reportCmd)
}
