package bankroll

import "github.com/tablerun/tablerun/internal/domain"

// Payouts holds the net decimal odds paid per winning outcome. These
// are configuration, not a hard-coded casino table: Tie in particular
// varies by house.
type Payouts struct {
	Dragon float64 `yaml:"dragon"`
	Tiger  float64 `yaml:"tiger"`
	Tie    float64 `yaml:"tie"`
}

// DefaultPayouts returns the common Dragon Tiger table: even money on
// the sides, 11:1 on the tie.
func DefaultPayouts() Payouts {
	return Payouts{Dragon: 1.0, Tiger: 1.0, Tie: 11.0}
}

// For returns the net odds for o.
func (p Payouts) For(o domain.Outcome) float64 {
	switch o {
	case domain.OutcomeDragon:
		return p.Dragon
	case domain.OutcomeTiger:
		return p.Tiger
	case domain.OutcomeTie:
		return p.Tie
	}
	return 0
}

// kellyFraction computes the raw Kelly stake fraction
// f = (b·p − q) / b for win probability p against net odds b,
// floored at zero.
func kellyFraction(p, b float64) float64 {
	if b <= 0 || p <= 0 || p >= 1 {
		return 0
	}
	f := (b*p - (1 - p)) / b
	if f < 0 {
		return 0
	}
	return f
}

// edge returns the statistical advantage of betting at probability p
// against net odds b: expected profit per unit staked.
func edge(p, b float64) float64 {
	return p*(1+b) - 1
}
