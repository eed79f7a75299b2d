package transfer

import (
	"fmt"
	"testing"
)

func TestAuditLog_RecordsAboveNoiseFloor(t *testing.T) {
	l := NewAuditLog(16, 0.05)
	l.RecordBoost("u1", "dynamics", 0.12, []Contribution{{Kind: "cross-subject", Source: "kinematics", Amount: 0.12}})
	l.RecordBoost("u1", "dynamics", 0.03, nil) // below floor

	entries := l.Entries()
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	e := entries[0]
	if e.Kind != AuditBoost || e.TargetID != "dynamics" || e.SourceID != "kinematics" {
		t.Errorf("entry = %+v", e)
	}
	if e.ID == "" {
		t.Error("entry must carry an id")
	}
}

func TestAuditLog_PropagationMagnitude(t *testing.T) {
	l := NewAuditLog(16, 0.05)
	l.RecordPropagation("u1", "a", "b", -0.08)
	l.RecordPropagation("u1", "a", "c", 0.01)

	entries := l.Entries()
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	if entries[0].Amount != 0.08 {
		t.Errorf("amount = %.3f, want 0.08", entries[0].Amount)
	}
}

func TestAuditLog_ColdStartIgnoresNoiseFloor(t *testing.T) {
	l := NewAuditLog(16, 0.05)
	l.RecordColdStart("u1", "dynamics", 0.033)
	l.RecordColdStart("u1", "statics", 0)

	entries := l.Entries()
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	if entries[0].Kind != AuditColdStart || entries[0].TargetID != "dynamics" {
		t.Errorf("entry = %+v", entries[0])
	}
}

func TestAuditLog_RingEvictsOldest(t *testing.T) {
	l := NewAuditLog(4, 0.01)
	for i := 0; i < 10; i++ {
		l.RecordBoost("u1", fmt.Sprintf("c%d", i), 0.2, nil)
	}
	entries := l.Entries()
	if len(entries) != 4 {
		t.Fatalf("expected 4 entries, got %d", len(entries))
	}
	if entries[0].TargetID != "c6" || entries[3].TargetID != "c9" {
		t.Errorf("ring order wrong: %s .. %s", entries[0].TargetID, entries[3].TargetID)
	}
}

func TestAuditLog_ForLearnerKeepsOrder(t *testing.T) {
	l := NewAuditLog(16, 0.01)
	l.RecordBoost("u1", "a", 0.1, nil)
	l.RecordBoost("u2", "b", 0.1, nil)
	l.RecordBoost("u1", "c", 0.1, nil)

	entries := l.ForLearner("u1")
	if len(entries) != 2 || entries[0].TargetID != "a" || entries[1].TargetID != "c" {
		t.Errorf("per-learner order wrong: %+v", entries)
	}
}
