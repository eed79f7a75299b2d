package transfer

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultAuditCapacity bounds the ring buffer.
const DefaultAuditCapacity = 256

// DefaultAuditMinAmount is the noise floor below which boost events are not
// recorded.
const DefaultAuditMinAmount = 0.05

// AuditKind distinguishes the two recordable transfer events.
type AuditKind string

const (
	AuditBoost       AuditKind = "boost"
	AuditPropagation AuditKind = "propagation"
	AuditColdStart   AuditKind = "cold-start"
)

// AuditEntry is one recorded transfer event.
type AuditEntry struct {
	ID         string    `json:"id"`
	Kind       AuditKind `json:"kind"`
	LearnerID  string    `json:"learner_id"`
	SourceID   string    `json:"source_id,omitempty"`
	TargetID   string    `json:"target_id"`
	Amount     float64   `json:"amount"`
	OccurredAt time.Time `json:"occurred_at"`
}

// AuditLog is a bounded ring of transfer events. Oldest entries are evicted
// on overflow; per-learner entries keep insertion order.
type AuditLog struct {
	mu        sync.Mutex
	entries   []AuditEntry
	capacity  int
	minAmount float64
	clock     func() time.Time
}

// NewAuditLog creates a ring with the given capacity and noise floor.
func NewAuditLog(capacity int, minAmount float64) *AuditLog {
	if capacity <= 0 {
		capacity = DefaultAuditCapacity
	}
	if minAmount <= 0 {
		minAmount = DefaultAuditMinAmount
	}
	return &AuditLog{
		capacity:  capacity,
		minAmount: minAmount,
		clock:     time.Now,
	}
}

// RecordBoost records a pre-update boost when it clears the noise floor.
func (l *AuditLog) RecordBoost(learnerID, targetID string, total float64, contributions []Contribution) {
	if total <= l.minAmount {
		return
	}
	source := ""
	if len(contributions) > 0 {
		// Attribute the event to the largest contributor.
		max := contributions[0]
		for _, c := range contributions[1:] {
			if c.Amount > max.Amount {
				max = c
			}
		}
		source = max.Source
	}
	l.append(AuditEntry{
		Kind:      AuditBoost,
		LearnerID: learnerID,
		SourceID:  source,
		TargetID:  targetID,
		Amount:    total,
	})
}

// RecordColdStart records the enhanced boost applied at first contact with
// a concept. Cold-start jumps are always recorded; the noise floor applies
// only to the per-event boost and propagation streams.
func (l *AuditLog) RecordColdStart(learnerID, targetID string, amount float64) {
	if amount <= 0 {
		return
	}
	l.append(AuditEntry{
		Kind:      AuditColdStart,
		LearnerID: learnerID,
		TargetID:  targetID,
		Amount:    amount,
	})
}

// RecordPropagation records a post-update related-concept change when it
// clears the noise floor.
func (l *AuditLog) RecordPropagation(learnerID, sourceID, targetID string, delta float64) {
	if delta < 0 {
		delta = -delta
	}
	if delta <= l.minAmount {
		return
	}
	l.append(AuditEntry{
		Kind:      AuditPropagation,
		LearnerID: learnerID,
		SourceID:  sourceID,
		TargetID:  targetID,
		Amount:    delta,
	})
}

func (l *AuditLog) append(e AuditEntry) {
	e.ID = uuid.NewString()
	e.OccurredAt = l.clock()

	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, e)
	if len(l.entries) > l.capacity {
		l.entries = l.entries[len(l.entries)-l.capacity:]
	}
}

// Entries returns a copy of the log, oldest first.
func (l *AuditLog) Entries() []AuditEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]AuditEntry, len(l.entries))
	copy(out, l.entries)
	return out
}

// ForLearner returns the learner's entries, oldest first.
func (l *AuditLog) ForLearner(learnerID string) []AuditEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []AuditEntry
	for _, e := range l.entries {
		if e.LearnerID == learnerID {
			out = append(out, e)
		}
	}
	return out
}

// Len returns the current entry count.
func (l *AuditLog) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}
