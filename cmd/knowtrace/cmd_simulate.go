package main

import (
	"context"
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"knowtrace/internal/report"
	"knowtrace/internal/sim"
)

var (
	simPersonas []string
	simEvents   int
	simSeed     int64
	simConcepts []string
	simTUI      bool
)

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Run simulated learners through the engine",
	Long: `Generates deterministic persona-driven interaction streams and feeds
them through the full update pipeline. One simulated learner per persona.
With --tui, progress renders as a live dashboard; otherwise a summary report
prints at the end. With a store attached, final profiles are persisted.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := ensureEngine()
		if err != nil {
			return err
		}

		concepts := simConcepts
		if len(concepts) == 0 {
			concepts = e.Catalog().Get().Concepts()
		}
		if len(concepts) == 0 {
			return fmt.Errorf("catalog has no concepts to simulate against")
		}

		specs := make([]sim.Spec, 0, len(simPersonas))
		for _, name := range simPersonas {
			p := sim.Persona(name)
			found := false
			for _, known := range sim.Personas() {
				if p == known {
					found = true
					break
				}
			}
			if !found {
				return fmt.Errorf("unknown persona %q (have %v)", name, sim.Personas())
			}
			specs = append(specs, sim.Spec{
				LearnerID: "sim-" + name,
				Persona:   p,
				Concepts:  concepts,
				Events:    simEvents,
			})
		}

		gen := sim.NewGenerator(simSeed, time.Now().Add(-time.Duration(simEvents)*90*time.Second))

		if simTUI {
			model, err := newSimModel(e, gen, specs)
			if err != nil {
				return err
			}
			if _, err := tea.NewProgram(model).Run(); err != nil {
				return err
			}
		} else {
			outcomes, err := sim.Run(context.Background(), e, gen, specs)
			if err != nil {
				return err
			}
			summaries := make([]sim.Summary, 0, len(outcomes))
			for _, out := range outcomes {
				summaries = append(summaries, sim.Summarize(out))
			}
			fmt.Print(report.Render(report.SimulationMarkdown(summaries), 100))
		}

		return persistAll(e)
	},
}

func init() {
	simulateCmd.Flags().StringSliceVar(&simPersonas, "personas",
		[]string{"steady", "struggler", "sprinter", "fatigued"}, "personas to simulate")
	simulateCmd.Flags().IntVar(&simEvents, "events", 20, "events per learner")
	simulateCmd.Flags().Int64Var(&simSeed, "seed", 42, "random seed")
	simulateCmd.Flags().StringSliceVar(&simConcepts, "concepts", nil, "concept ids to cycle through (default: whole catalog)")
	simulateCmd.Flags().BoolVar(&simTUI, "tui", false, "live dashboard")
	rootCmd.AddCommand(simulateCmd)
}
