package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"knowtrace/internal/cogload"
	"knowtrace/internal/stress"
	"knowtrace/internal/timealloc"
	"knowtrace/internal/types"
)

var (
	allocBase       int64
	allocStress     float64
	allocFatigue    float64
	allocMastery    float64
	allocDifficulty float64
	allocElapsedMin int64
	allocDevice     string

	assessSteps       int
	assessMastery     float64
	assessGap         float64
	assessPressure    float64
	assessInterface   float64
	assessDistraction float64
	assessStress      float64
	assessFatigue     float64
)

// allocateCmd, assessCmd, and stressCmd run the pure per-question models
// directly on flag inputs; no catalog or profile state is involved.
var allocateCmd = &cobra.Command{
	Use:   "allocate",
	Short: "Compute a per-question time budget",
	RunE: func(cmd *cobra.Command, args []string) error {
		alloc := timealloc.Allocate(types.TimeRequest{
			BaseTimeMs: allocBase,
			Stress:     allocStress,
			Fatigue:    allocFatigue,
			Mastery:    allocMastery,
			Difficulty: allocDifficulty,
			ElapsedMs:  allocElapsedMin * 60 * 1000,
			Device:     types.DeviceProfile{Class: types.DeviceClass(allocDevice)},
		})
		fmt.Printf("Allotted: %.1fs (factor %.2f)\n", float64(alloc.FinalTimeMs)/1000, alloc.Factor)
		for axis, f := range alloc.Breakdown {
			fmt.Printf("  %-12s %+.2f\n", axis, f)
		}
		return nil
	},
}

var assessCmd = &cobra.Command{
	Use:   "assess",
	Short: "Decompose cognitive load for a question context",
	RunE: func(cmd *cobra.Command, args []string) error {
		a := cogload.Assess(cogload.Input{
			SolutionSteps:       assessSteps,
			Mastery:             assessMastery,
			PrereqGap:           assessGap,
			TimePressure:        assessPressure,
			InterfaceComplexity: assessInterface,
			Distraction:         assessDistraction,
			Stress:              assessStress,
			Fatigue:             assessFatigue,
		})
		fmt.Printf("Intrinsic:  %.2f\n", a.Components.Intrinsic)
		fmt.Printf("Extraneous: %.2f\n", a.Components.Extraneous)
		fmt.Printf("Germane:    %.2f\n", a.Components.Germane)
		fmt.Printf("Total:      %.2f (capacity %.1f)\n", a.Total, a.WorkingCapacity)
		fmt.Printf("Overload:   %.2f\n", a.OverloadRisk)
		for _, r := range a.Recommendations {
			fmt.Printf("  -> %s\n", r)
		}
		return nil
	},
}

var stressCmd = &cobra.Command{
	Use:   "stress [sample...]",
	Short: "Fuse behavioral samples into a stress reading",
	Long: `Feeds samples through a fresh detector window and prints the final
reading. Samples are response-time:outcome pairs, e.g.

  knowtrace stress 3200:ok 4100:ok 8000:miss 9500:miss`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		detector := stress.NewDetector(cfg.Stress.Window, stress.Thresholds{
			Mild:     cfg.Stress.MildLevel,
			Moderate: cfg.Stress.ModerateLevel,
			High:     cfg.Stress.HighLevel,
		})
		var reading types.StressReading
		for _, arg := range args {
			sample, err := parseSample(arg)
			if err != nil {
				return err
			}
			reading = detector.Observe("cli", sample)
		}
		fmt.Printf("Level:      %.2f (confidence %.2f)\n", reading.Level, reading.Confidence)
		fmt.Printf("Tier:       %s\n", reading.Tier)
		for _, ind := range reading.Indicators {
			fmt.Printf("  -> %s\n", ind)
		}
		return nil
	},
}

func parseSample(arg string) (types.StressSample, error) {
	parts := strings.Split(arg, ":")
	if len(parts) != 2 || (parts[1] != "ok" && parts[1] != "miss") {
		return types.StressSample{}, fmt.Errorf("sample %q: want <response-ms>:ok|miss", arg)
	}
	rt, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil || rt < 0 {
		return types.StressSample{}, fmt.Errorf("sample %q: bad response time", arg)
	}
	return types.StressSample{ResponseTimeMs: rt, Correct: parts[1] == "ok"}, nil
}

func init() {
	allocateCmd.Flags().Int64Var(&allocBase, "base", timealloc.DefaultBaseMs, "base time in ms")
	allocateCmd.Flags().Float64Var(&allocStress, "stress", 0, "stress level [0,1]")
	allocateCmd.Flags().Float64Var(&allocFatigue, "fatigue", 0, "fatigue level [0,1]")
	allocateCmd.Flags().Float64Var(&allocMastery, "mastery", 0, "concept mastery [0,1]")
	allocateCmd.Flags().Float64Var(&allocDifficulty, "difficulty", 0.5, "question difficulty [0,1]")
	allocateCmd.Flags().Int64Var(&allocElapsedMin, "session-min", 0, "minutes into the session")
	allocateCmd.Flags().StringVar(&allocDevice, "device", "desktop", "device class: desktop, tablet, mobile")

	assessCmd.Flags().IntVar(&assessSteps, "steps", 2, "solution steps")
	assessCmd.Flags().Float64Var(&assessMastery, "mastery", 0, "concept mastery [0,1]")
	assessCmd.Flags().Float64Var(&assessGap, "prereq-gap", 0, "1 - prerequisite readiness [0,1]")
	assessCmd.Flags().Float64Var(&assessPressure, "time-pressure", 1.0, "allotted/needed ratio")
	assessCmd.Flags().Float64Var(&assessInterface, "interface", 0, "interface complexity [0,1]")
	assessCmd.Flags().Float64Var(&assessDistraction, "distraction", 0, "distraction [0,1]")
	assessCmd.Flags().Float64Var(&assessStress, "stress", 0, "stress [0,1]")
	assessCmd.Flags().Float64Var(&assessFatigue, "fatigue", 0, "fatigue [0,1]")

	rootCmd.AddCommand(allocateCmd)
	rootCmd.AddCommand(assessCmd)
	rootCmd.AddCommand(stressCmd)
}
