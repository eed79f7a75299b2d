// Package stress fuses behavioral signals into a stress estimate. Each
// learner has a private sliding window of recent samples; every observation
// returns a reading computed over the window including the new sample.
package stress

import (
	"math"
	"sync"

	"knowtrace/internal/types"
)

// DefaultWindow is W, the number of behavioral samples retained per learner.
const DefaultWindow = 10

// Indicator tags emitted when a component contributes above its threshold.
const (
	IndicatorSlowResponse   = "slow-response"
	IndicatorErrorStreak    = "error-streak"
	IndicatorHighHesitation = "high-hesitation"
	IndicatorErraticInput   = "erratic-input"
)

// hesitationScaleMs normalizes hesitation into [0,1]; 5s of hesitation is
// treated as saturated.
const hesitationScaleMs = 5000

// Fusion weights. They sum to 1 so the fused level stays in [0,1] before
// clamping.
const (
	weightResponse    = 0.35
	weightCorrectness = 0.25
	weightHesitation  = 0.20
	weightKeystroke   = 0.20
)

// Thresholds maps stress level onto intervention tiers.
type Thresholds struct {
	Mild     float64
	Moderate float64
	High     float64
}

// DefaultThresholds returns the documented tier boundaries.
func DefaultThresholds() Thresholds {
	return Thresholds{Mild: 0.35, Moderate: 0.55, High: 0.75}
}

// Detector holds per-learner windows. Safe for concurrent use; observations
// for the same learner are serialized on that learner's window.
type Detector struct {
	mu      sync.RWMutex
	windows map[string]*learnerWindow
	window  int
	tiers   Thresholds
}

type learnerWindow struct {
	mu      sync.Mutex
	samples []types.StressSample
}

// NewDetector creates a detector with the given window size (capped at 12)
// and tier thresholds.
func NewDetector(window int, tiers Thresholds) *Detector {
	if window <= 0 {
		window = DefaultWindow
	}
	if window > 12 {
		window = 12
	}
	if tiers.Mild <= 0 {
		tiers = DefaultThresholds()
	}
	return &Detector{
		windows: make(map[string]*learnerWindow),
		window:  window,
		tiers:   tiers,
	}
}

// Observe appends a sample to the learner's window and returns the reading
// for the updated window.
func (d *Detector) Observe(learnerID string, s types.StressSample) types.StressReading {
	w := d.learner(learnerID)

	w.mu.Lock()
	defer w.mu.Unlock()

	w.samples = append(w.samples, s)
	if len(w.samples) > d.window {
		w.samples = w.samples[len(w.samples)-d.window:]
	}
	return d.read(w.samples)
}

// Reset clears a learner's window.
func (d *Detector) Reset(learnerID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.windows, learnerID)
}

// WindowLen reports the current fill of a learner's window.
func (d *Detector) WindowLen(learnerID string) int {
	d.mu.RLock()
	w, ok := d.windows[learnerID]
	d.mu.RUnlock()
	if !ok {
		return 0
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.samples)
}

func (d *Detector) learner(id string) *learnerWindow {
	d.mu.RLock()
	w, ok := d.windows[id]
	d.mu.RUnlock()
	if ok {
		return w
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if w, ok = d.windows[id]; ok {
		return w
	}
	w = &learnerWindow{}
	d.windows[id] = w
	return w
}

// read fuses the window into a StressReading. Caller holds the window lock.
func (d *Detector) read(samples []types.StressSample) types.StressReading {
	n := len(samples)
	latest := samples[n-1]

	mean, std := responseStats(samples)

	// Z-scored response time of the latest sample, mapped so z=0 sits at the
	// neutral midpoint and z=+2 saturates high.
	var z float64
	if std > 0 {
		z = (float64(latest.ResponseTimeMs) - mean) / std
	}
	respComponent := clamp01(0.5 + 0.2*z)

	// Error rate over the window: failures add stress, successes subtract.
	var errs int
	for _, s := range samples {
		if !s.Correct {
			errs++
		}
	}
	errRate := float64(errs) / float64(n)

	hesitation := clamp01(float64(latest.HesitationMs) / hesitationScaleMs)
	keystroke := clamp01(latest.KeystrokeDeviation)

	level := clamp01(weightResponse*respComponent +
		weightCorrectness*errRate +
		weightHesitation*hesitation +
		weightKeystroke*keystroke)

	// Confidence grows with window fill and shrinks with response-time
	// variance.
	fill := float64(n) / float64(d.window)
	cv := 0.0
	if mean > 0 {
		cv = std / mean
	}
	confidence := clamp01(fill / (1 + cv))

	var indicators []string
	if z > 1 {
		indicators = append(indicators, IndicatorSlowResponse)
	}
	if streak := trailingErrors(samples); streak >= 3 {
		indicators = append(indicators, IndicatorErrorStreak)
	}
	if hesitation > 0.6 {
		indicators = append(indicators, IndicatorHighHesitation)
	}
	if keystroke > 0.6 {
		indicators = append(indicators, IndicatorErraticInput)
	}

	return types.StressReading{
		Level:      level,
		Confidence: confidence,
		Indicators: indicators,
		Tier:       d.tier(level),
	}
}

func (d *Detector) tier(level float64) types.InterventionTier {
	switch {
	case level >= d.tiers.High:
		return types.TierHigh
	case level >= d.tiers.Moderate:
		return types.TierModerate
	case level >= d.tiers.Mild:
		return types.TierMild
	default:
		return types.TierNone
	}
}

func responseStats(samples []types.StressSample) (mean, std float64) {
	n := float64(len(samples))
	for _, s := range samples {
		mean += float64(s.ResponseTimeMs)
	}
	mean /= n

	var variance float64
	for _, s := range samples {
		d := float64(s.ResponseTimeMs) - mean
		variance += d * d
	}
	variance /= n
	return mean, math.Sqrt(variance)
}

func trailingErrors(samples []types.StressSample) int {
	streak := 0
	for i := len(samples) - 1; i >= 0; i-- {
		if samples[i].Correct {
			break
		}
		streak++
	}
	return streak
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
