// Package signal classifies pipeline output into confidence tiers and
// enforces emission spacing.
package signal

import (
	"time"

	"github.com/google/uuid"

	"github.com/tablerun/tablerun/internal/domain"
	"github.com/tablerun/tablerun/internal/montecarlo"
)

// Tier is the discrete confidence bucket attached to a signal.
type Tier string

const (
	TierHigh   Tier = "HIGH"
	TierMedium Tier = "MEDIUM"
	TierLow    Tier = "LOW"
)

// Signal is a classified, rate-limited betting recommendation.
// Immutable once emitted.
type Signal struct {
	ID          string              `json:"id"`
	Timestamp   time.Time           `json:"timestamp"`
	Sequence    uint64              `json:"sequence"` // hand that produced it
	Recommended domain.Outcome      `json:"recommended"`
	Tier        Tier                `json:"tier"`
	Probability float64             `json:"probability"`
	Interval    montecarlo.Interval `json:"interval"`
	Agreement   float64             `json:"agreement"`
	Models      []string            `json:"models"`
	BetUnits    int                 `json:"bet_units"`
	ExpiresAt   time.Time           `json:"expires_at"`
}

// New mints a signal with a fresh id.
func New(seq uint64, now time.Time, recommended domain.Outcome, tier Tier, prob float64, interval montecarlo.Interval, ttl time.Duration) Signal {
	return Signal{
		ID:          uuid.NewString(),
		Timestamp:   now,
		Sequence:    seq,
		Recommended: recommended,
		Tier:        tier,
		Probability: prob,
		Interval:    interval,
		ExpiresAt:   now.Add(ttl),
	}
}

// Expired reports whether the signal has passed its expiry time.
func (s Signal) Expired(now time.Time) bool {
	return now.After(s.ExpiresAt)
}
