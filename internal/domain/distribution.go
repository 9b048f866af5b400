package domain

import "math"

// DistributionEpsilon is the tolerance on the sum-to-one invariant.
const DistributionEpsilon = 1e-6

// Distribution maps each outcome to a probability. A well-formed
// distribution has finite values in [0,1] summing to 1 within
// DistributionEpsilon.
type Distribution struct {
	Dragon float64 `json:"dragon"`
	Tiger  float64 `json:"tiger"`
	Tie    float64 `json:"tie"`
}

// P returns the probability assigned to o.
func (d Distribution) P(o Outcome) float64 {
	switch o {
	case OutcomeDragon:
		return d.Dragon
	case OutcomeTiger:
		return d.Tiger
	case OutcomeTie:
		return d.Tie
	}
	return 0
}

// Sum returns the probability mass total.
func (d Distribution) Sum() float64 {
	return d.Dragon + d.Tiger + d.Tie
}

// Valid reports whether every value is finite and non-negative and the
// total mass is 1 within eps.
func (d Distribution) Valid(eps float64) bool {
	for _, v := range []float64{d.Dragon, d.Tiger, d.Tie} {
		if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
			return false
		}
	}
	return math.Abs(d.Sum()-1) <= eps
}

// Normalize rescales the distribution to sum to exactly 1. A zero-mass
// distribution normalizes to uniform.
func (d Distribution) Normalize() Distribution {
	sum := d.Sum()
	if sum <= 0 || math.IsNaN(sum) || math.IsInf(sum, 0) {
		third := 1.0 / 3.0
		return Distribution{Dragon: third, Tiger: third, Tie: third}
	}
	return Distribution{Dragon: d.Dragon / sum, Tiger: d.Tiger / sum, Tie: d.Tie / sum}
}

// Scale multiplies every probability by f.
func (d Distribution) Scale(f float64) Distribution {
	return Distribution{Dragon: d.Dragon * f, Tiger: d.Tiger * f, Tie: d.Tie * f}
}

// Add returns the element-wise sum of d and o.
func (d Distribution) Add(o Distribution) Distribution {
	return Distribution{Dragon: d.Dragon + o.Dragon, Tiger: d.Tiger + o.Tiger, Tie: d.Tie + o.Tie}
}

// Best returns the most probable outcome and its probability. Ties resolve
// in canonical outcome order.
func (d Distribution) Best() (Outcome, float64) {
	best, prob := OutcomeDragon, d.Dragon
	if d.Tiger > prob {
		best, prob = OutcomeTiger, d.Tiger
	}
	if d.Tie > prob {
		best, prob = OutcomeTie, d.Tie
	}
	return best, prob
}

// TotalVariation returns the total-variation distance between d and o,
// in [0,1].
func (d Distribution) TotalVariation(o Distribution) float64 {
	sum := math.Abs(d.Dragon-o.Dragon) + math.Abs(d.Tiger-o.Tiger) + math.Abs(d.Tie-o.Tie)
	return sum / 2
}
