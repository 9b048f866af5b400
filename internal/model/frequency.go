package model

import "github.com/tablerun/tablerun/internal/domain"

// FrequencyModel estimates the next-outcome distribution from smoothed
// outcome frequencies in the window. Laplace smoothing keeps every
// outcome reachable on short histories.
type FrequencyModel struct {
	prior    domain.Distribution
	strength float64 // pseudo-count mass given to the prior
}

// NewFrequencyModel builds a frequency model smoothed toward prior with
// the given pseudo-count strength. Strength <= 0 defaults to 3.
func NewFrequencyModel(prior domain.Distribution, strength float64) *FrequencyModel {
	if strength <= 0 {
		strength = 3
	}
	if prior.Sum() <= 0 {
		prior = BaseProbabilities
	}
	return &FrequencyModel{prior: prior.Normalize(), strength: strength}
}

func (m *FrequencyModel) Name() string { return "frequency" }

// Predict returns smoothed empirical frequencies; with an empty window
// it returns the prior.
func (m *FrequencyModel) Predict(window []domain.OutcomeEvent) (domain.Distribution, error) {
	counts := m.prior.Scale(m.strength)
	for _, ev := range window {
		switch ev.Outcome {
		case domain.OutcomeDragon:
			counts.Dragon++
		case domain.OutcomeTiger:
			counts.Tiger++
		case domain.OutcomeTie:
			counts.Tie++
		}
	}
	return counts.Normalize(), nil
}
