package bayes

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/tablerun/tablerun/internal/domain"
)

var prior = domain.Distribution{Dragon: 0.446, Tiger: 0.446, Tie: 0.108}

func TestUpdater_PureSingleOutcomeRun(t *testing.T) {
	u := NewUpdater(prior, 0, 0.5, 0)

	for i := 0; i < 20; i++ {
		u.Observe(domain.OutcomeDragon)
	}

	post := u.Posterior()
	assert.Equal(t, 1.0, post.Dragon, "20 straight Dragons with a weightless prior must give posterior 1.0")
	assert.Equal(t, 0.0, post.Tiger)
}

func TestUpdater_BlendShiftsTowardPosterior(t *testing.T) {
	u := NewUpdater(prior, 0, 0.5, 0)
	for i := 0; i < 20; i++ {
		u.Observe(domain.OutcomeDragon)
	}

	ensembleOnly := domain.Distribution{Dragon: 0.6, Tiger: 0.3, Tie: 0.1}
	blended := u.Blend(ensembleOnly)

	assert.Greater(t, blended.Dragon, ensembleOnly.Dragon,
		"blend with an all-Dragon posterior must shift Dragon strictly upward")
	assert.True(t, blended.Valid(domain.DistributionEpsilon))
}

func TestUpdater_NoObservationsReturnsPrior(t *testing.T) {
	u := NewUpdater(prior, 0, 0.5, 0)
	assert.InDelta(t, prior.Dragon, u.Posterior().Dragon, 1e-9)
}

func TestUpdater_PriorStrengthSmooths(t *testing.T) {
	u := NewUpdater(prior, 10, 0.5, 0)
	u.Observe(domain.OutcomeTie)

	post := u.Posterior()
	assert.Less(t, post.Tie, 0.5, "a heavy prior should absorb a single observation")
	assert.Greater(t, post.Tie, prior.Tie)
}

func TestUpdater_StalenessReset(t *testing.T) {
	u := NewUpdater(prior, 0, 0.5, 5)
	for i := 0; i < 5; i++ {
		u.Observe(domain.OutcomeTiger)
	}

	assert.Equal(t, 0, u.Observed(), "counts must reset after the configured bound")
	assert.InDelta(t, prior.Tiger, u.Posterior().Tiger, 1e-9)
}

func TestUpdater_AlphaOneIgnoresPosterior(t *testing.T) {
	u := NewUpdater(prior, 0, 1.0, 0)
	for i := 0; i < 10; i++ {
		u.Observe(domain.OutcomeTie)
	}

	ens := domain.Distribution{Dragon: 0.5, Tiger: 0.4, Tie: 0.1}
	blended := u.Blend(ens)
	assert.InDelta(t, ens.Tie, blended.Tie, 1e-9)
}
