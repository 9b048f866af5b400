package model

import (
	"github.com/tablerun/tablerun/internal/domain"
	"github.com/tablerun/tablerun/internal/stats"
)

// StreakModel is the pattern member of the ensemble. It tilts the base
// probabilities by the two dominant table patterns: long same-side
// streaks (which tend to break) and choppy alternation (which tends to
// continue).
type StreakModel struct {
	prior          domain.Distribution
	breakThreshold int     // streak length at which the break tilt applies
	breakTilt      float64 // multiplicative tilt, e.g. 0.10 for ±10%
	chopThreshold  float64 // alternation rate at which the chop tilt applies
	chopTilt       float64
}

// NewStreakModel builds a streak/chop model over the given prior:
// breaks expected past 3 in a row (±10%), chop continuation past a 0.7
// alternation rate (±5%).
func NewStreakModel(prior domain.Distribution) *StreakModel {
	if prior.Sum() <= 0 {
		prior = BaseProbabilities
	}
	return &StreakModel{
		prior:          prior.Normalize(),
		breakThreshold: 3,
		breakTilt:      0.10,
		chopThreshold:  0.7,
		chopTilt:       0.05,
	}
}

func (m *StreakModel) Name() string { return "streak" }

// Predict applies the streak and chop tilts to the prior and
// renormalizes. An empty window yields the prior.
func (m *StreakModel) Predict(window []domain.OutcomeEvent) (domain.Distribution, error) {
	if len(window) == 0 {
		return m.prior, nil
	}

	d := m.prior
	last := window[len(window)-1].Outcome

	if length := currentStreak(window); length > m.breakThreshold && last != domain.OutcomeTie {
		opposite := domain.OutcomeTiger
		if last == domain.OutcomeTiger {
			opposite = domain.OutcomeDragon
		}
		d = tilt(d, opposite, 1+m.breakTilt)
		d = tilt(d, last, 1-m.breakTilt)
	}

	// The raw alternation rate catches short windows; the runs test
	// catches longer windows whose sequencing is non-random even when
	// the rate alone sits under the threshold.
	if chopRate(window) > m.chopThreshold || stats.RunsZ(window) > stats.ZCritical95 {
		d = tilt(d, domain.OutcomeDragon, 1+m.chopTilt)
		d = tilt(d, domain.OutcomeTiger, 1+m.chopTilt)
		d = tilt(d, domain.OutcomeTie, 1-2*m.chopTilt)
	}

	return d.Normalize(), nil
}

// currentStreak returns how many trailing events share the last outcome.
func currentStreak(window []domain.OutcomeEvent) int {
	last := window[len(window)-1].Outcome
	n := 0
	for i := len(window) - 1; i >= 0 && window[i].Outcome == last; i-- {
		n++
	}
	return n
}

// chopRate returns the fraction of adjacent pairs that switched outcome.
func chopRate(window []domain.OutcomeEvent) float64 {
	if len(window) < 2 {
		return 0
	}
	switches := 0
	for i := 1; i < len(window); i++ {
		if window[i].Outcome != window[i-1].Outcome {
			switches++
		}
	}
	return float64(switches) / float64(len(window)-1)
}

func tilt(d domain.Distribution, o domain.Outcome, f float64) domain.Distribution {
	switch o {
	case domain.OutcomeDragon:
		d.Dragon *= f
	case domain.OutcomeTiger:
		d.Tiger *= f
	case domain.OutcomeTie:
		d.Tie *= f
	}
	return d
}
