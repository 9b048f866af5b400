// Package bayes maintains the running Dirichlet posterior over outcomes
// and blends it with the ensemble output. The posterior guards against
// the ensemble overfitting short streaks while long-run frequency
// corrects bias.
package bayes

import (
	"github.com/tablerun/tablerun/internal/domain"
)

// Updater tracks Dirichlet pseudo-counts per outcome. The posterior
// mean is the normalized pseudo-count vector; with no observations it
// falls back to the configured prior distribution. Not safe for
// concurrent use: the pipeline serializes all access.
type Updater struct {
	prior         domain.Distribution
	priorStrength float64 // pseudo-count mass carried by the prior, may be 0
	alpha         float64 // convex blend factor toward the ensemble
	resetAfter    int     // observations before counts reset, 0 disables
	counts        domain.Distribution
	observed      int
}

// NewUpdater builds an updater with blend factor alpha in [0,1].
// resetAfter bounds posterior staleness: after that many observations
// the counts reset to the neutral prior. Zero disables the reset.
func NewUpdater(prior domain.Distribution, priorStrength, alpha float64, resetAfter int) *Updater {
	u := &Updater{
		prior:         prior.Normalize(),
		priorStrength: priorStrength,
		alpha:         alpha,
		resetAfter:    resetAfter,
	}
	u.Reset()
	return u
}

// Reset restores the neutral prior, as at session start.
func (u *Updater) Reset() {
	u.counts = u.prior.Scale(u.priorStrength)
	u.observed = 0
}

// Observe applies the conjugate update for one outcome event and, when
// the staleness bound is configured, resets afterwards.
func (u *Updater) Observe(o domain.Outcome) {
	switch o {
	case domain.OutcomeDragon:
		u.counts.Dragon++
	case domain.OutcomeTiger:
		u.counts.Tiger++
	case domain.OutcomeTie:
		u.counts.Tie++
	default:
		return
	}
	u.observed++
	if u.resetAfter > 0 && u.observed >= u.resetAfter {
		u.Reset()
	}
}

// Posterior returns the current posterior mean. With neither prior mass
// nor observations it returns the prior distribution.
func (u *Updater) Posterior() domain.Distribution {
	if u.counts.Sum() <= 0 {
		return u.prior
	}
	return u.counts.Normalize()
}

// Blend mixes the ensemble distribution with the posterior:
// alpha·ensemble + (1−alpha)·posterior, renormalized.
func (u *Updater) Blend(ensemble domain.Distribution) domain.Distribution {
	post := u.Posterior()
	return ensemble.Scale(u.alpha).Add(post.Scale(1 - u.alpha)).Normalize()
}

// Observed returns the observation count since the last reset.
func (u *Updater) Observed() int { return u.observed }
