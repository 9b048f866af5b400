// Package model defines the capability interface the ensemble fuses
// over, plus the built-in heterogeneous models: frequency statistics,
// first-order Markov transitions, and streak/chop pattern analysis.
package model

import "github.com/tablerun/tablerun/internal/domain"

// Model produces a probability distribution over the next outcome from
// a window snapshot. Implementations must be safe for repeated calls
// but are invoked from a single pipeline goroutine.
type Model interface {
	Name() string
	Predict(window []domain.OutcomeEvent) (domain.Distribution, error)
}

// BaseProbabilities are the long-run Dragon Tiger outcome frequencies.
// Model constructors fall back to them when handed an empty prior.
var BaseProbabilities = domain.Distribution{Dragon: 0.446, Tiger: 0.446, Tie: 0.108}
