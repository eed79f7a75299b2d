package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	pathLearner      string
	recommendLearner string
	recommendK       int
)

var pathCmd = &cobra.Command{
	Use:   "path [target-concept]",
	Short: "Show the learning path to a target concept",
	Long: `Orders the target's unmastered prerequisite closure so every concept
appears after everything it depends on, ending at the target. Concepts the
learner already holds above the readiness threshold are skipped.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := ensureEngine()
		if err != nil {
			return err
		}
		path, err := e.LearningPath(args[0], pathLearner)
		if err != nil {
			return err
		}
		if len(path) == 0 {
			fmt.Println("Nothing to learn: every prerequisite is already mastered.")
			return nil
		}
		for i, id := range path {
			fmt.Printf("%2d. %s\n", i+1, id)
		}
		return nil
	},
}

var recommendCmd = &cobra.Command{
	Use:   "recommend [concept]",
	Short: "Recommend what to study after a concept",
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := ensureEngine()
		if err != nil {
			return err
		}
		concept := args[0]

		next, err := e.RecommendNext(concept, recommendLearner, recommendK)
		if err != nil {
			return err
		}
		readiness, err := e.Readiness(concept, recommendLearner)
		if err != nil {
			return err
		}
		band, err := e.RecommendedBand(concept, recommendLearner)
		if err != nil {
			return err
		}

		fmt.Printf("Readiness for %s: %.2f (ready: %v)\n", concept, readiness.Overall, readiness.Ready)
		for _, gap := range readiness.Gaps {
			fmt.Printf("  gap: %s %.2f/%.2f\n", gap.ConceptID, gap.Current, gap.Required)
		}
		fmt.Printf("Next difficulty band: %s\n", band)
		if len(next) == 0 {
			fmt.Println("No follow-up concepts enabled by this one.")
			return nil
		}
		fmt.Println("Study next:")
		for i, id := range next {
			fmt.Printf("%2d. %s\n", i+1, id)
		}
		return nil
	},
	Args: cobra.ExactArgs(1),
}

func init() {
	pathCmd.Flags().StringVar(&pathLearner, "learner", "", "learner id (empty treats all concepts as unmastered)")
	recommendCmd.Flags().StringVar(&recommendLearner, "learner", "", "learner id")
	recommendCmd.Flags().IntVarP(&recommendK, "count", "k", 3, "max recommendations")
	rootCmd.AddCommand(pathCmd)
	rootCmd.AddCommand(recommendCmd)
}
