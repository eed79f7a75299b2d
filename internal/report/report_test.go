package report

import (
	"strings"
	"testing"
	"time"

	"knowtrace/internal/prereq"
	"knowtrace/internal/sim"
	"knowtrace/internal/types"
)

var reportNow = time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

func sampleProfile() Profile {
	return Profile{
		Snapshot: types.ProfileSnapshot{
			LearnerID:       "u1",
			StressTolerance: 0.5,
			OverallWindow:   []bool{true, true, false, true},
			Masteries: []types.MasterySnapshot{
				{ConceptID: "algebra_basics", Mastery: 0.82, PracticeCount: 14, Confidence: 0.9, LastInteraction: reportNow},
				{ConceptID: "quadratic_equations", Mastery: 0.12, PracticeCount: 2, Confidence: 0.4},
			},
			TakenAt: reportNow,
		},
		State: types.StateProgressing,
		Readiness: []prereq.Readiness{
			{ConceptID: "quadratic_equations", Ready: false, Overall: 0.4,
				Gaps: []prereq.Gap{{ConceptID: "linear_equations", Current: 0.3, Required: 0.56, Gap: 0.26, Impact: 0.21}}},
			{ConceptID: "algebra_basics", Ready: true, Overall: 1.0},
		},
		Audit: 3,
	}
}

func TestMarkdown_ContainsCoreSections(t *testing.T) {
	md := Markdown(sampleProfile())

	for _, want := range []string{
		"# Learner u1",
		"**progressing**",
		"Recent accuracy: 75% over 4 answers",
		"| algebra_basics |",
		"| quadratic_equations |",
		"## Prerequisite gaps",
		"linear_equations 0.30/0.56",
		"Transfer events: 3",
	} {
		if !strings.Contains(md, want) {
			t.Errorf("markdown missing %q:\n%s", want, md)
		}
	}
	if strings.Contains(md, "algebra_basics (readiness") {
		t.Error("ready concepts must not appear under gaps")
	}
}

func TestMarkdown_NeverSeenConcept(t *testing.T) {
	md := Markdown(sampleProfile())
	if !strings.Contains(md, "| never |") {
		t.Errorf("zero LastInteraction should read as never:\n%s", md)
	}
}

func TestSimulationMarkdown_OneRowPerLearner(t *testing.T) {
	md := SimulationMarkdown([]sim.Summary{
		{LearnerID: "sim-steady", Persona: sim.PersonaSteady, Events: 12, Accuracy: 0.75,
			FinalState: types.StateProgressing, Masteries: map[string]float64{"algebra_basics": 0.6}},
		{LearnerID: "sim-struggler", Persona: sim.PersonaStruggler, Events: 12, Accuracy: 0.25,
			FinalState: types.StateStruggling, Interventions: 2},
	})

	for _, want := range []string{
		"| sim-steady | steady | 12 | 75% |",
		"| sim-struggler | struggler | 12 | 25% |",
		"## sim-steady",
	} {
		if !strings.Contains(md, want) {
			t.Errorf("markdown missing %q:\n%s", want, md)
		}
	}
	if strings.Contains(md, "## sim-struggler") {
		t.Error("learners without masteries should not get a detail section")
	}
}

func TestMasteryBar_Bounds(t *testing.T) {
	tests := []struct {
		m    float64
		want string
	}{
		{0, "░░░░░░░░░░"},
		{1, "██████████"},
		{1.4, "██████████"},
		{-0.2, "░░░░░░░░░░"},
		{0.5, "█████░░░░░"},
	}
	for _, tt := range tests {
		if got := masteryBar(tt.m); got != tt.want {
			t.Errorf("masteryBar(%.1f) = %s, want %s", tt.m, got, tt.want)
		}
	}
}

func TestRender_FallsBackToPlainMarkdown(t *testing.T) {
	md := "# Title\n\nbody\n"
	out := Render(md, 80)
	if out == "" {
		t.Fatal("rendered output is empty")
	}
	if !strings.Contains(out, "Title") {
		t.Errorf("rendered output lost content:\n%s", out)
	}
}
