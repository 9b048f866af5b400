package signal

import (
	"time"

	"github.com/rs/zerolog"
)

// State is the per-hand classifier state.
type State string

const (
	StateIdle        State = "IDLE"
	StateAnalyzing   State = "ANALYZING"
	StateSignalReady State = "SIGNAL_READY"
	StateSuppressed  State = "SUPPRESSED"
)

// SuppressReason explains why a classified hand produced no signal.
type SuppressReason string

const (
	SuppressNone      SuppressReason = ""
	SuppressFloor     SuppressReason = "below_floor"
	SuppressMinHands  SuppressReason = "min_hands_between"
	SuppressHourlyCap SuppressReason = "hourly_cap"
)

// ClassifierConfig holds tier thresholds and emission spacing.
// Boundaries are inclusive on the lower bound of each tier.
type ClassifierConfig struct {
	HighThreshold    float64       `yaml:"high_threshold"`     // ≥ → HIGH
	MediumThreshold  float64       `yaml:"medium_threshold"`   // ≥ → MEDIUM
	SuppressFloor    float64       `yaml:"suppress_floor"`     // LOW below this emits nothing
	MaxIntervalWidth float64       `yaml:"max_interval_width"` // HIGH additionally needs width ≤ this
	MinHandsBetween  int           `yaml:"min_hands_between"`
	MaxPerHour       int           `yaml:"max_per_hour"`
	SignalTTL        time.Duration `yaml:"signal_ttl"`
}

// DefaultClassifierConfig returns the production thresholds.
func DefaultClassifierConfig() ClassifierConfig {
	return ClassifierConfig{
		HighThreshold:    0.90,
		MediumThreshold:  0.70,
		SuppressFloor:    0.50,
		MaxIntervalWidth: 0.25,
		MinHandsBetween:  7,
		MaxPerHour:       10,
		SignalTTL:        5 * time.Minute,
	}
}

// Classifier maps (probability, interval width) to a tier and decides
// whether emission is permitted. Single-session state; the pipeline
// serializes all calls.
type Classifier struct {
	cfg   ClassifierConfig
	state State
	log   zerolog.Logger

	handsSinceSignal int
	everEmitted      bool
	emitted          []time.Time // trailing emission times, pruned to one hour
}

// NewClassifier builds a classifier in the IDLE state.
func NewClassifier(cfg ClassifierConfig, log zerolog.Logger) *Classifier {
	return &Classifier{
		cfg:   cfg,
		state: StateIdle,
		log:   log.With().Str("component", "classifier").Logger(),
	}
}

// State returns the current state.
func (c *Classifier) State() State { return c.state }

// Classify is the pure tier function: HIGH needs probability at or
// above the high threshold AND an interval no wider than the configured
// max; MEDIUM needs the medium threshold; everything else is LOW. Exact
// boundary values take the higher tier.
func (c *Classifier) Classify(probability, intervalWidth float64) Tier {
	if probability >= c.cfg.HighThreshold && intervalWidth <= c.cfg.MaxIntervalWidth {
		return TierHigh
	}
	if probability >= c.cfg.MediumThreshold {
		return TierMedium
	}
	return TierLow
}

// BeginHand transitions to ANALYZING and advances the spacing counter.
// Called once per accepted OutcomeEvent before classification.
func (c *Classifier) BeginHand() {
	c.state = StateAnalyzing
	c.handsSinceSignal++
}

// Decide resolves the hand: whether a signal of the given tier and
// probability may be emitted now. The state machine lands in
// SIGNAL_READY or SUPPRESSED and the caller returns it to IDLE via
// FinishHand. Decide does not consume a rate-limit slot; the caller
// invokes Commit once the signal has actually gone out.
func (c *Classifier) Decide(now time.Time, tier Tier, probability float64) (bool, SuppressReason) {
	if tier == TierLow && probability < c.cfg.SuppressFloor {
		c.state = StateSuppressed
		return false, SuppressFloor
	}
	if c.everEmitted && c.handsSinceSignal < c.cfg.MinHandsBetween {
		c.state = StateSuppressed
		return false, SuppressMinHands
	}
	if c.countTrailingHour(now) >= c.cfg.MaxPerHour {
		c.state = StateSuppressed
		return false, SuppressHourlyCap
	}

	c.state = StateSignalReady
	return true, SuppressNone
}

// Commit records an emission that Decide approved. A positive Decide
// that is never committed, because the bet was rejected downstream,
// leaves the hourly window and hand spacing untouched.
func (c *Classifier) Commit(now time.Time) {
	c.emitted = append(c.emitted, now)
	c.everEmitted = true
	c.handsSinceSignal = 0
}

// FinishHand returns the machine to IDLE.
func (c *Classifier) FinishHand() { c.state = StateIdle }

// EmittedTrailingHour reports how many signals went out in the last 60
// minutes.
func (c *Classifier) EmittedTrailingHour(now time.Time) int {
	return c.countTrailingHour(now)
}

func (c *Classifier) countTrailingHour(now time.Time) int {
	cutoff := now.Add(-time.Hour)
	kept := c.emitted[:0]
	for _, ts := range c.emitted {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	c.emitted = kept
	return len(c.emitted)
}
