// Package stats checks the outcome stream for bias: a chi-square
// goodness-of-fit test against the configured base probabilities and a
// Wald-Wolfowitz runs test for non-random sequencing.
package stats

import (
	"math"

	"github.com/tablerun/tablerun/internal/domain"
)

const (
	minChiSquareSamples = 30
	minRunsTestSamples  = 20

	// ZCritical95 is the two-sided 95% normal critical value.
	ZCritical95 = 1.96
)

// BiasReport summarizes both randomness checks over a window.
type BiasReport struct {
	Samples        int     `json:"samples"`
	ChiSquare      float64 `json:"chi_square"`
	ChiSquareP     float64 `json:"chi_square_p"`
	DistributionOK bool    `json:"distribution_ok"`
	RunsZ          float64 `json:"runs_z"`
	SequenceOK     bool    `json:"sequence_ok"`
	Sufficient     bool    `json:"sufficient"`
}

// Evaluate runs both tests against the expected base distribution.
// With too few samples the report is marked insufficient and both
// checks pass vacuously.
func Evaluate(window []domain.OutcomeEvent, base domain.Distribution) BiasReport {
	report := BiasReport{Samples: len(window), DistributionOK: true, SequenceOK: true}
	if len(window) < minChiSquareSamples {
		return report
	}
	report.Sufficient = true

	report.ChiSquare, report.ChiSquareP = chiSquare(window, base)
	report.DistributionOK = report.ChiSquareP > 0.05

	report.RunsZ = RunsZ(window)
	report.SequenceOK = math.Abs(report.RunsZ) < ZCritical95
	return report
}

// chiSquare computes the goodness-of-fit statistic against the expected
// outcome probabilities and its p-value. With three categories there
// are two degrees of freedom, where the survival function has the
// closed form exp(-x/2).
func chiSquare(window []domain.OutcomeEvent, base domain.Distribution) (stat, p float64) {
	n := float64(len(window))
	observed := map[domain.Outcome]float64{}
	for _, ev := range window {
		observed[ev.Outcome]++
	}

	for _, o := range domain.Outcomes {
		expected := n * base.P(o)
		if expected <= 0 {
			continue
		}
		diff := observed[o] - expected
		stat += diff * diff / expected
	}
	return stat, math.Exp(-stat / 2)
}

// RunsZ computes the Wald-Wolfowitz runs statistic over the Dragon and
// Tiger subsequence; ties carry no directional information and are
// skipped. Below the minimum sample count it returns 0.
func RunsZ(window []domain.OutcomeEvent) float64 {
	var seq []domain.Outcome
	for _, ev := range window {
		if ev.Outcome == domain.OutcomeDragon || ev.Outcome == domain.OutcomeTiger {
			seq = append(seq, ev.Outcome)
		}
	}
	if len(seq) < minRunsTestSamples {
		return 0
	}

	runs := 1.0
	var n1, n2 float64
	for i, o := range seq {
		if o == domain.OutcomeDragon {
			n1++
		} else {
			n2++
		}
		if i > 0 && o != seq[i-1] {
			runs++
		}
	}
	if n1 == 0 || n2 == 0 {
		return 0
	}

	n := n1 + n2
	mean := 2*n1*n2/n + 1
	variance := 2 * n1 * n2 * (2*n1*n2 - n) / (n * n * (n - 1))
	if variance <= 0 {
		return 0
	}
	return (runs - mean) / math.Sqrt(variance)
}
