package model

import "github.com/tablerun/tablerun/internal/domain"

// MarkovModel estimates the next-outcome distribution from first-order
// transition counts in the window: the temporal-sequence member of the
// ensemble. Transitions are smoothed toward the prior so unseen rows
// stay well-formed.
type MarkovModel struct {
	prior    domain.Distribution
	strength float64
}

// NewMarkovModel builds a Markov model with the given smoothing prior.
// Strength <= 0 defaults to 1.
func NewMarkovModel(prior domain.Distribution, strength float64) *MarkovModel {
	if strength <= 0 {
		strength = 1
	}
	if prior.Sum() <= 0 {
		prior = BaseProbabilities
	}
	return &MarkovModel{prior: prior.Normalize(), strength: strength}
}

func (m *MarkovModel) Name() string { return "markov" }

// Predict conditions on the last observed outcome. With fewer than two
// events there is no transition evidence and the prior is returned.
func (m *MarkovModel) Predict(window []domain.OutcomeEvent) (domain.Distribution, error) {
	if len(window) < 2 {
		return m.prior, nil
	}

	last := window[len(window)-1].Outcome
	row := m.prior.Scale(m.strength)
	for i := 1; i < len(window); i++ {
		if window[i-1].Outcome != last {
			continue
		}
		switch window[i].Outcome {
		case domain.OutcomeDragon:
			row.Dragon++
		case domain.OutcomeTiger:
			row.Tiger++
		case domain.OutcomeTie:
			row.Tie++
		}
	}
	return row.Normalize(), nil
}
