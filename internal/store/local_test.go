package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"knowtrace/internal/engine"
	"knowtrace/internal/transfer"
	"knowtrace/internal/types"
)

var _ engine.Store = (*LocalStore)(nil)

var storeNow = time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

func newTestStore(t *testing.T) *LocalStore {
	t.Helper()
	s, err := NewLocalStore(filepath.Join(t.TempDir(), "knowtrace.db"))
	if err != nil {
		t.Fatalf("NewLocalStore failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func sampleSnapshot(learnerID string, takenAt time.Time) types.ProfileSnapshot {
	return types.ProfileSnapshot{
		LearnerID:       learnerID,
		StressTolerance: 0.5,
		OverallWindow:   []bool{true, false, true},
		RecentOutcomes:  []types.OutcomeSnapshot{{Correct: true, At: takenAt}},
		AdaptiveRates:   map[string]float64{"algebra_basics": 0.36},
		Masteries: []types.MasterySnapshot{{
			ConceptID:       "algebra_basics",
			Mastery:         0.3427,
			Prior:           0.05,
			Confidence:      0.35,
			PracticeCount:   1,
			LastInteraction: takenAt,
			LearningRate:    0.40,
			SlipRate:        0.10,
			GuessRate:       0.30,
			DecayRate:       0.05,
			RecentWindow:    []bool{true},
		}},
		TakenAt: takenAt,
	}
}

func TestSnapshot_RoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	want := sampleSnapshot("u1", storeNow)
	if err := s.SaveSnapshot(ctx, want); err != nil {
		t.Fatalf("SaveSnapshot failed: %v", err)
	}
	got, err := s.LoadLatest(ctx, "u1")
	if err != nil {
		t.Fatalf("LoadLatest failed: %v", err)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("snapshot mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadLatest_NewestWins(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	old := sampleSnapshot("u1", storeNow)
	newer := sampleSnapshot("u1", storeNow.Add(time.Hour))
	newer.Masteries[0].Mastery = 0.61

	if err := s.SaveSnapshot(ctx, old); err != nil {
		t.Fatalf("SaveSnapshot failed: %v", err)
	}
	if err := s.SaveSnapshot(ctx, newer); err != nil {
		t.Fatalf("SaveSnapshot failed: %v", err)
	}

	got, err := s.LoadLatest(ctx, "u1")
	if err != nil {
		t.Fatalf("LoadLatest failed: %v", err)
	}
	if got.Masteries[0].Mastery != 0.61 {
		t.Errorf("mastery = %.2f, want the newer snapshot", got.Masteries[0].Mastery)
	}
}

func TestLoadLatest_UnknownLearner(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.LoadLatest(context.Background(), "ghost"); !errors.Is(err, types.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestSaveSnapshot_EmptyLearnerRejected(t *testing.T) {
	s := newTestStore(t)
	err := s.SaveSnapshot(context.Background(), types.ProfileSnapshot{TakenAt: storeNow})
	if !errors.Is(err, types.ErrValidation) {
		t.Errorf("err = %v, want ErrValidation", err)
	}
}

func TestSaveAudit_IdempotentFlush(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	entries := []transfer.AuditEntry{
		{ID: "a1", Kind: transfer.AuditColdStart, LearnerID: "u1", TargetID: "dynamics", Amount: 0.033, OccurredAt: storeNow},
		{ID: "a2", Kind: transfer.AuditBoost, LearnerID: "u1", SourceID: "kinematics", TargetID: "dynamics", Amount: 0.08, OccurredAt: storeNow.Add(time.Minute)},
		{ID: "a3", Kind: transfer.AuditPropagation, LearnerID: "u2", SourceID: "linear_equations", TargetID: "quadratic_equations", Amount: 0.06, OccurredAt: storeNow},
	}
	// Flushing the same ring twice must not duplicate rows.
	for i := 0; i < 2; i++ {
		if err := s.SaveAudit(ctx, entries); err != nil {
			t.Fatalf("SaveAudit pass %d failed: %v", i, err)
		}
	}

	got, err := s.AuditForLearner(ctx, "u1")
	if err != nil {
		t.Fatalf("AuditForLearner failed: %v", err)
	}
	if diff := cmp.Diff(entries[:2], got); diff != "" {
		t.Errorf("audit mismatch (-want +got):\n%s", diff)
	}
}

func TestSaveAudit_EmptyIsNoop(t *testing.T) {
	s := newTestStore(t)
	if err := s.SaveAudit(context.Background(), nil); err != nil {
		t.Errorf("SaveAudit(nil) = %v", err)
	}
}

func TestLearners_Distinct(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for _, id := range []string{"b1", "a1", "b1"} {
		if err := s.SaveSnapshot(ctx, sampleSnapshot(id, storeNow)); err != nil {
			t.Fatalf("SaveSnapshot failed: %v", err)
		}
	}
	got, err := s.Learners(ctx)
	if err != nil {
		t.Fatalf("Learners failed: %v", err)
	}
	want := []string{"a1", "b1"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("learners mismatch (-want +got):\n%s", diff)
	}
}

func TestPruneSnapshots_KeepsNewest(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		snap := sampleSnapshot("u1", storeNow.Add(time.Duration(i)*time.Hour))
		snap.Masteries[0].PracticeCount = i + 1
		if err := s.SaveSnapshot(ctx, snap); err != nil {
			t.Fatalf("SaveSnapshot failed: %v", err)
		}
	}

	deleted, err := s.PruneSnapshots(ctx, "u1", 2)
	if err != nil {
		t.Fatalf("PruneSnapshots failed: %v", err)
	}
	if deleted != 3 {
		t.Errorf("deleted = %d, want 3", deleted)
	}

	got, err := s.LoadLatest(ctx, "u1")
	if err != nil {
		t.Fatalf("LoadLatest failed: %v", err)
	}
	if got.Masteries[0].PracticeCount != 5 {
		t.Errorf("latest practice count = %d, want 5", got.Masteries[0].PracticeCount)
	}
}
