package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tablerun/tablerun/internal/domain"
	"github.com/tablerun/tablerun/internal/stats"
)

func events(outcomes ...domain.Outcome) []domain.OutcomeEvent {
	evs := make([]domain.OutcomeEvent, len(outcomes))
	for i, o := range outcomes {
		evs[i] = domain.OutcomeEvent{Sequence: uint64(i + 1), Outcome: o}
	}
	return evs
}

func TestConstructors_EmptyPriorFallsBackToBase(t *testing.T) {
	for _, m := range []Model{
		NewFrequencyModel(domain.Distribution{}, 3),
		NewMarkovModel(domain.Distribution{}, 1),
		NewStreakModel(domain.Distribution{}),
	} {
		d, err := m.Predict(nil)
		require.NoError(t, err, m.Name())
		assert.InDelta(t, BaseProbabilities.Dragon, d.Dragon, 1e-9, m.Name())
		assert.InDelta(t, BaseProbabilities.Tie, d.Tie, 1e-9, m.Name())
	}
}

func TestFrequencyModel_TracksWindowCounts(t *testing.T) {
	m := NewFrequencyModel(BaseProbabilities, 3)

	window := events(
		domain.OutcomeDragon, domain.OutcomeDragon, domain.OutcomeDragon,
		domain.OutcomeDragon, domain.OutcomeDragon, domain.OutcomeDragon,
		domain.OutcomeTiger, domain.OutcomeTiger, domain.OutcomeTie,
	)

	d, err := m.Predict(window)
	require.NoError(t, err)
	assert.True(t, d.Valid(domain.DistributionEpsilon))
	assert.Greater(t, d.Dragon, d.Tiger, "dominant outcome should carry the most mass")
	assert.Greater(t, d.Tiger, d.Tie)
}

func TestFrequencyModel_EmptyWindowReturnsPrior(t *testing.T) {
	m := NewFrequencyModel(BaseProbabilities, 3)
	d, err := m.Predict(nil)
	require.NoError(t, err)
	assert.InDelta(t, BaseProbabilities.Dragon, d.Dragon, 1e-9)
}

func TestMarkovModel_ConditionsOnLastOutcome(t *testing.T) {
	m := NewMarkovModel(BaseProbabilities, 1)

	// After Dragon the table always flipped to Tiger.
	window := events(
		domain.OutcomeDragon, domain.OutcomeTiger,
		domain.OutcomeDragon, domain.OutcomeTiger,
		domain.OutcomeDragon, domain.OutcomeTiger,
		domain.OutcomeDragon,
	)

	d, err := m.Predict(window)
	require.NoError(t, err)
	assert.True(t, d.Valid(domain.DistributionEpsilon))
	assert.Greater(t, d.Tiger, d.Dragon, "observed transitions should dominate")
}

func TestMarkovModel_ShortWindowFallsBackToPrior(t *testing.T) {
	m := NewMarkovModel(BaseProbabilities, 1)
	d, err := m.Predict(events(domain.OutcomeTie))
	require.NoError(t, err)
	assert.InDelta(t, BaseProbabilities.Tie, d.Tie, 1e-9)
}

func TestStreakModel_LongStreakTiltsTowardBreak(t *testing.T) {
	m := NewStreakModel(BaseProbabilities)

	window := events(
		domain.OutcomeDragon, domain.OutcomeDragon, domain.OutcomeDragon,
		domain.OutcomeDragon, domain.OutcomeDragon,
	)

	d, err := m.Predict(window)
	require.NoError(t, err)
	assert.True(t, d.Valid(domain.DistributionEpsilon))
	assert.Greater(t, d.Tiger, d.Dragon, "a long Dragon streak should tilt toward Tiger")
}

func TestStreakModel_ChoppyTableDampsTie(t *testing.T) {
	m := NewStreakModel(BaseProbabilities)

	window := events(
		domain.OutcomeDragon, domain.OutcomeTiger, domain.OutcomeDragon,
		domain.OutcomeTiger, domain.OutcomeDragon, domain.OutcomeTiger,
	)

	d, err := m.Predict(window)
	require.NoError(t, err)
	assert.Less(t, d.Tie, BaseProbabilities.Tie)
}

func TestStreakModel_RunsTestCatchesSlowAlternation(t *testing.T) {
	m := NewStreakModel(BaseProbabilities)

	// 30 Dragons, 10 isolated Tigers: 21 runs against an expected 16,
	// so the Wald-Wolfowitz z exceeds the 95% critical value while the
	// raw alternation rate stays under the chop threshold.
	outcomes := make([]domain.Outcome, 0, 40)
	for i := 0; i < 10; i++ {
		outcomes = append(outcomes, domain.OutcomeDragon)
	}
	for i := 0; i < 10; i++ {
		outcomes = append(outcomes, domain.OutcomeTiger, domain.OutcomeDragon, domain.OutcomeDragon)
	}
	window := events(outcomes...)

	assert.Less(t, chopRate(window), m.chopThreshold)
	assert.Greater(t, stats.RunsZ(window), stats.ZCritical95)

	d, err := m.Predict(window)
	require.NoError(t, err)
	assert.Less(t, d.Tie, BaseProbabilities.Tie, "non-random sequencing should damp the tie")
}

func TestStreakModel_EmptyWindowReturnsPrior(t *testing.T) {
	m := NewStreakModel(BaseProbabilities)
	d, err := m.Predict(nil)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, d.Sum(), 1e-9)
}

func TestCurrentStreakAndChopRate(t *testing.T) {
	window := events(
		domain.OutcomeTiger, domain.OutcomeDragon, domain.OutcomeDragon, domain.OutcomeDragon,
	)
	assert.Equal(t, 3, currentStreak(window))
	assert.InDelta(t, 1.0/3.0, chopRate(window), 1e-9)
}
