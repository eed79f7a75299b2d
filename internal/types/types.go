// Package types provides shared type definitions used across knowtrace packages.
// This package exists to break import cycles between the engine, profile, and
// transfer packages. Types here should be foundational data structures with no
// complex dependencies.
package types

import (
	"time"
)

// =============================================================================
// DEVICE & CONTEXT
// =============================================================================

// DeviceClass identifies the broad category of device the learner is using.
type DeviceClass string

const (
	DeviceDesktop DeviceClass = "desktop"
	DeviceTablet  DeviceClass = "tablet"
	DeviceMobile  DeviceClass = "mobile"
)

// DeviceProfile describes the device the learner answers on. It feeds the
// time allocator (small screens and slow links earn extra time) and the
// context modulation of the BKT update.
type DeviceProfile struct {
	Class        DeviceClass `json:"class"`
	SmallScreen  bool        `json:"small_screen"`
	LowBandwidth bool        `json:"low_bandwidth"`
}

// ContextFactors carries the behavioral/situational signals attached to an
// interaction. All hint values are in [0,1] unless noted.
type ContextFactors struct {
	StressHint       float64       `json:"stress_hint"`
	CognitiveLoad    float64       `json:"cognitive_load"`
	TimePressure     float64       `json:"time_pressure"` // ratio of allotted/needed; 1.0 is neutral
	Fatigue          float64       `json:"fatigue"`
	SessionElapsedMs int64         `json:"session_elapsed_ms"`
	Distraction      float64       `json:"distraction"`
	Device           DeviceProfile `json:"device"`
}

// QuestionMeta describes the question the learner answered.
type QuestionMeta struct {
	Difficulty       float64  `json:"difficulty"` // [0,1]
	SolutionSteps    int      `json:"solution_steps"`
	SchemaComplexity float64  `json:"schema_complexity"` // [0,1] interface/representation complexity
	Prerequisites    []string `json:"prerequisites,omitempty"`
	HintUsed         bool     `json:"hint_used"`
	Attempt          int      `json:"attempt"` // 1-based attempt number
}

// InteractionEvent is the input to a single mastery update. Transient; the
// engine never retains a reference past the update.
type InteractionEvent struct {
	LearnerID      string         `json:"learner_id"`
	ConceptID      string         `json:"concept_id"`
	Correct        bool           `json:"correct"`
	Timestamp      time.Time      `json:"timestamp"`
	ResponseTimeMs int64          `json:"response_time_ms"`
	Question       QuestionMeta   `json:"question"`
	Context        ContextFactors `json:"context"`
}

// =============================================================================
// COGNITIVE LOAD
// =============================================================================

// LoadComponents breaks total cognitive load into its Sweller decomposition.
type LoadComponents struct {
	Intrinsic  float64 `json:"intrinsic"`
	Extraneous float64 `json:"extraneous"`
	Germane    float64 `json:"germane"`
}

// LoadAssessment is the output of the cognitive load assessor.
type LoadAssessment struct {
	Components      LoadComponents `json:"components"`
	Total           float64        `json:"total"`
	WorkingCapacity float64        `json:"working_capacity"`
	OverloadRisk    float64        `json:"overload_risk"` // (0,1)
	Recommendations []string       `json:"recommendations,omitempty"`
}

// =============================================================================
// STRESS
// =============================================================================

// InterventionTier is the discrete severity label derived from stress and
// error patterns.
type InterventionTier int

const (
	TierNone InterventionTier = iota
	TierMild
	TierModerate
	TierHigh
)

// String returns the tier name.
func (t InterventionTier) String() string {
	switch t {
	case TierNone:
		return "none"
	case TierMild:
		return "mild"
	case TierModerate:
		return "moderate"
	case TierHigh:
		return "high"
	default:
		return "unknown"
	}
}

// StressSample is one behavioral observation fed to the stress detector.
type StressSample struct {
	ResponseTimeMs     int64   `json:"response_time_ms"`
	Correct            bool    `json:"correct"`
	HesitationMs       int64   `json:"hesitation_ms"`
	KeystrokeDeviation float64 `json:"keystroke_deviation"` // [0,1] deviation from baseline typing cadence
}

// StressReading is the fused output of the stress detector for one sample.
type StressReading struct {
	Level      float64          `json:"level"`      // [0,1]
	Confidence float64          `json:"confidence"` // [0,1]
	Indicators []string         `json:"indicators,omitempty"`
	Tier       InterventionTier `json:"tier"`
}

// =============================================================================
// TIME ALLOCATION
// =============================================================================

// TimeRequest asks for a per-question time budget.
type TimeRequest struct {
	LearnerID  string        `json:"learner_id"`
	QuestionID string        `json:"question_id"`
	BaseTimeMs int64         `json:"base_time_ms"`
	Stress     float64       `json:"stress"`
	Fatigue    float64       `json:"fatigue"`
	Mastery    float64       `json:"mastery"`
	Difficulty float64       `json:"difficulty"` // [0,1]
	ElapsedMs  int64         `json:"elapsed_ms"`
	Device     DeviceProfile `json:"device"`
}

// TimeAllocation is the computed budget plus the per-axis breakdown for
// logging.
type TimeAllocation struct {
	FinalTimeMs int64              `json:"final_time_ms"`
	Factor      float64            `json:"factor"`
	Breakdown   map[string]float64 `json:"breakdown"`
}

// =============================================================================
// UPDATE RESULT
// =============================================================================

// LearnerState is the coarse band a learner occupies, derived from
// recent-window accuracy and recovery status.
type LearnerState string

const (
	StateNew         LearnerState = "new"
	StateStruggling  LearnerState = "struggling"
	StateLearning    LearnerState = "learning"
	StateProgressing LearnerState = "progressing"
	StateMastering   LearnerState = "mastering"
	StateRecovery    LearnerState = "recovery"
)

// DifficultyBand names the four BKT parameter bands.
type DifficultyBand string

const (
	BandFoundation   DifficultyBand = "foundation"
	BandBuilding     DifficultyBand = "building"
	BandIntermediate DifficultyBand = "intermediate"
	BandAdvanced     DifficultyBand = "advanced"
)

// EffectiveParams are the context-modulated BKT parameters actually applied
// in an update, after clamping.
type EffectiveParams struct {
	Slip  float64 `json:"slip"`  // [0.02, 0.40]
	Guess float64 `json:"guess"` // [0.05, 0.40]
	Learn float64 `json:"learn"` // [0.10, 0.60]
}

// TransferUpdate records one related-concept mastery change caused by
// post-update propagation.
type TransferUpdate struct {
	ConceptID string  `json:"concept_id"`
	Before    float64 `json:"before"`
	After     float64 `json:"after"`
}

// PrereqSuggestion points at the highest-impact prerequisite gap after an
// incorrect answer.
type PrereqSuggestion struct {
	ConceptID string  `json:"concept_id"`
	Current   float64 `json:"current"`
	Required  float64 `json:"required"`
	Impact    float64 `json:"impact"`
}

// InterventionRecord is emitted when the update decides the learner needs
// help beyond the next question.
type InterventionRecord struct {
	ID              string           `json:"id"`
	Tier            InterventionTier `json:"tier"`
	Reason          string           `json:"reason"`
	Recommendations []string         `json:"recommendations,omitempty"`
}

// UpdateResult is the stable output schema of a single mastery update.
type UpdateResult struct {
	Success     bool   `json:"success"`
	ErrorKind   string `json:"error_kind,omitempty"`
	ErrorReason string `json:"error_reason,omitempty"`

	LearnerID string `json:"learner_id"`
	ConceptID string `json:"concept_id"`
	Correct   bool   `json:"correct"`

	PreviousMastery float64         `json:"previous_mastery"`
	NewMastery      float64         `json:"new_mastery"`
	PracticeCount   int             `json:"practice_count"`
	PredictedNext   float64         `json:"predicted_next"` // P(correct on next item)
	Params          EffectiveParams `json:"params"`

	Band            DifficultyBand `json:"band"`
	RecommendedBand DifficultyBand `json:"recommended_band"`
	State           LearnerState   `json:"state"`
	NeedsBreak      bool           `json:"needs_break"`

	TransferUpdates []TransferUpdate    `json:"transfer_updates,omitempty"`
	Prerequisite    *PrereqSuggestion   `json:"prerequisite,omitempty"`
	Intervention    *InterventionRecord `json:"intervention,omitempty"`

	FeedbackTag       string  `json:"feedback_tag,omitempty"` // e.g. "struggling.correct.encourage"
	ConsecutiveErrors int     `json:"consecutive_errors"`
	ReadyToLearn      bool    `json:"ready_to_learn"`
	Readiness         float64 `json:"readiness"`
}

// =============================================================================
// PROFILE SNAPSHOT
// =============================================================================

// MasterySnapshot is the serialized form of one (learner, concept) state.
// Every field that participates in an update must round-trip bit-equal.
type MasterySnapshot struct {
	ConceptID         string    `json:"concept_id"`
	Mastery           float64   `json:"mastery"`
	Prior             float64   `json:"prior"`
	Confidence        float64   `json:"confidence"`
	PracticeCount     int       `json:"practice_count"`
	LastInteraction   time.Time `json:"last_interaction"`
	LearningRate      float64   `json:"learning_rate"`
	SlipRate          float64   `json:"slip_rate"`
	GuessRate         float64   `json:"guess_rate"`
	DecayRate         float64   `json:"decay_rate"`
	ConsecutiveErrors int       `json:"consecutive_errors"`
	RecentWindow      []bool    `json:"recent_window"`
	RecoveryBoost     float64   `json:"recovery_boost"`
	EnhancedBoost     float64   `json:"enhanced_boost"`
	StruggleCount     int       `json:"struggle_count"`
}

// OutcomeSnapshot preserves one timestamped outcome for transfer momentum.
type OutcomeSnapshot struct {
	Correct bool      `json:"correct"`
	At      time.Time `json:"at"`
}

// ProfileSnapshot is the serialized form of a learner profile.
type ProfileSnapshot struct {
	LearnerID       string             `json:"learner_id"`
	StressTolerance float64            `json:"stress_tolerance"`
	OverallWindow   []bool             `json:"overall_window"`
	RecentOutcomes  []OutcomeSnapshot  `json:"recent_outcomes,omitempty"`
	AdaptiveRates   map[string]float64 `json:"adaptive_rates,omitempty"`
	Masteries       []MasterySnapshot  `json:"masteries"`
	TakenAt         time.Time          `json:"taken_at"`
}
