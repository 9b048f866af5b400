// Package ensemble fuses the configured prediction models into a single
// probability distribution with per-model validation and weight
// redistribution on failure.
package ensemble

import (
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/tablerun/tablerun/internal/domain"
	"github.com/tablerun/tablerun/internal/model"
)

// InvalidDistributionError reports a malformed model output: mass not
// summing to one within tolerance, or a non-finite value. Recovered
// locally by excluding the model for the hand.
type InvalidDistributionError struct {
	Model string
	Sum   float64
}

func (e *InvalidDistributionError) Error() string {
	return fmt.Sprintf("model %s produced an invalid distribution (sum=%g)", e.Model, e.Sum)
}

// ModelInferenceError reports that every model failed for a hand. The
// pipeline treats it as "skip this hand", not a session failure.
type ModelInferenceError struct {
	Failed []string
}

func (e *ModelInferenceError) Error() string {
	return fmt.Sprintf("all models failed: %s", strings.Join(e.Failed, ", "))
}

// PredictionResult is the fused output for one hand.
type PredictionResult struct {
	Distribution domain.Distribution
	Agreement    float64  // 1 − mean pairwise total-variation distance
	Models       []string // contributing model names
	Discarded    []string // models excluded this hand
	NoSignal     bool     // sentinel: nothing usable was produced
}

// Predictor fuses a fixed set of heterogeneous models by weighted
// average. Weights are keyed by model name and renormalized over the
// models that produced a valid output.
type Predictor struct {
	models  []model.Model
	weights map[string]float64
	log     zerolog.Logger
}

// NewPredictor builds a predictor over models with the given weights.
// Models missing from the weight map get weight 1.
func NewPredictor(models []model.Model, weights map[string]float64, log zerolog.Logger) *Predictor {
	w := make(map[string]float64, len(models))
	for _, m := range models {
		if v, ok := weights[m.Name()]; ok && v > 0 {
			w[m.Name()] = v
		} else {
			w[m.Name()] = 1
		}
	}
	return &Predictor{models: models, weights: w, log: log.With().Str("component", "ensemble").Logger()}
}

// SetWeight recalibrates a single model weight. Non-positive values are
// ignored.
func (p *Predictor) SetWeight(name string, weight float64) {
	if weight > 0 {
		if _, ok := p.weights[name]; ok {
			p.weights[name] = weight
		}
	}
}

// Predict runs every model over the window and fuses the valid outputs.
// Invalid outputs are discarded and their weight redistributed
// proportionally; if every model fails, the sentinel no-signal result is
// returned together with a *ModelInferenceError.
func (p *Predictor) Predict(window []domain.OutcomeEvent) (PredictionResult, error) {
	type contribution struct {
		name   string
		dist   domain.Distribution
		weight float64
	}

	var contributions []contribution
	var discarded []string

	for _, m := range p.models {
		dist, err := m.Predict(window)
		if err != nil {
			p.log.Warn().Err(err).Str("model", m.Name()).Msg("model inference failed, excluding for this hand")
			discarded = append(discarded, m.Name())
			continue
		}
		if !dist.Valid(domain.DistributionEpsilon) {
			invalid := &InvalidDistributionError{Model: m.Name(), Sum: dist.Sum()}
			p.log.Warn().Err(invalid).Msg("discarding malformed model output")
			discarded = append(discarded, m.Name())
			continue
		}
		contributions = append(contributions, contribution{name: m.Name(), dist: dist, weight: p.weights[m.Name()]})
	}

	if len(contributions) == 0 {
		return PredictionResult{NoSignal: true, Discarded: discarded},
			&ModelInferenceError{Failed: discarded}
	}

	var totalWeight float64
	for _, c := range contributions {
		totalWeight += c.weight
	}

	var fused domain.Distribution
	names := make([]string, 0, len(contributions))
	dists := make([]domain.Distribution, 0, len(contributions))
	for _, c := range contributions {
		fused = fused.Add(c.dist.Scale(c.weight / totalWeight))
		names = append(names, c.name)
		dists = append(dists, c.dist)
	}
	fused = fused.Normalize()

	return PredictionResult{
		Distribution: fused,
		Agreement:    agreement(dists),
		Models:       names,
		Discarded:    discarded,
	}, nil
}

// agreement scores how closely the contributing models agree:
// 1 minus the mean pairwise total-variation distance. A single model
// agrees with itself perfectly.
func agreement(dists []domain.Distribution) float64 {
	n := len(dists)
	if n < 2 {
		return 1
	}
	var sum float64
	var pairs int
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			sum += dists[i].TotalVariation(dists[j])
			pairs++
		}
	}
	return 1 - sum/float64(pairs)
}
