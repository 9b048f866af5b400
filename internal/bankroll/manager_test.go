package bankroll

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tablerun/tablerun/internal/domain"
	"github.com/tablerun/tablerun/internal/montecarlo"
	"github.com/tablerun/tablerun/internal/signal"
)

func newTestManager(t *testing.T, cfg Config) *Manager {
	t.Helper()
	m, err := NewManager(context.Background(), cfg, nil, zerolog.Nop())
	require.NoError(t, err)
	m.StartSession(time.Now())
	return m
}

func testSignal(outcome domain.Outcome) signal.Signal {
	return signal.New(1, time.Now(), outcome, signal.TierHigh, 0.92, montecarlo.Interval{Lower: 0.88, Upper: 0.96}, 5*time.Minute)
}

func TestSizeBet_AlwaysWithinUnitBounds(t *testing.T) {
	m := newTestManager(t, DefaultConfig())

	probs := []float64{0.05, 0.35, 0.5, 0.7, 0.9, 0.99}
	tiers := []signal.Tier{signal.TierHigh, signal.TierMedium, signal.TierLow}
	for _, p := range probs {
		for _, tier := range tiers {
			units, err := m.SizeBet(p, domain.OutcomeDragon, tier)
			require.NoError(t, err)
			assert.GreaterOrEqual(t, units, 1, "p=%v tier=%v", p, tier)
			assert.LessOrEqual(t, units, 7, "p=%v tier=%v", p, tier)
		}
	}
}

func TestSizeBet_ScalesWithProbability(t *testing.T) {
	cfg := DefaultConfig()
	m := newTestManager(t, cfg)

	small, err := m.SizeBet(0.55, domain.OutcomeDragon, signal.TierHigh)
	require.NoError(t, err)
	large, err := m.SizeBet(0.95, domain.OutcomeDragon, signal.TierHigh)
	require.NoError(t, err)

	assert.Greater(t, large, small, "stronger edge should stake more units")
}

func TestSizeBet_RespectsConfiguredMaxUnits(t *testing.T) {
	cfg := DefaultConfig()
	cfg.InitialBalance = 100000
	cfg.Limits.MaxDailyLoss = 100000
	cfg.MaxBetUnits = 4
	m := newTestManager(t, cfg)

	units, err := m.SizeBet(0.99, domain.OutcomeDragon, signal.TierHigh)
	require.NoError(t, err)
	assert.LessOrEqual(t, units, 4)
}

func TestSizeBet_DailyBudgetCap(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Limits.MaxDailyLoss = 30 // 3 units of budget
	m := newTestManager(t, cfg)

	units, err := m.SizeBet(0.99, domain.OutcomeDragon, signal.TierHigh)
	require.NoError(t, err)
	assert.LessOrEqual(t, units, 3, "stake must not exceed remaining daily budget")
}

func TestSizeBet_BudgetExhausted(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Limits.MaxDailyLoss = 25
	m := newTestManager(t, cfg)

	// Lose two 1-unit bets: 20 of the 25 budget gone, 5 < one unit left.
	for i := 0; i < 2; i++ {
		sig := testSignal(domain.OutcomeDragon)
		require.NoError(t, m.PlaceBet(context.Background(), sig, 1))
		require.NoError(t, m.Settle(context.Background(), domain.OutcomeTiger, time.Now()))
	}

	_, err := m.SizeBet(0.95, domain.OutcomeDragon, signal.TierHigh)
	assert.ErrorIs(t, err, ErrBudgetExhausted)
}

func TestPlaceAndSettle_WinCreditsPayout(t *testing.T) {
	m := newTestManager(t, DefaultConfig())

	sig := testSignal(domain.OutcomeTie)
	require.NoError(t, m.PlaceBet(context.Background(), sig, 2))

	// 2 units * 10 = 20 staked at 11:1 -> 20*12 = 240 returned.
	require.NoError(t, m.Settle(context.Background(), domain.OutcomeTie, time.Now()))

	s := m.Snapshot()
	assert.InDelta(t, 1000-20+240, s.Balance, 1e-9)
	assert.Equal(t, 1, s.SettledBets)
	assert.Equal(t, 1, s.Wins)
}

func TestPlaceAndSettle_LossDebitsStake(t *testing.T) {
	m := newTestManager(t, DefaultConfig())

	sig := testSignal(domain.OutcomeDragon)
	require.NoError(t, m.PlaceBet(context.Background(), sig, 3))
	require.NoError(t, m.Settle(context.Background(), domain.OutcomeTiger, time.Now()))

	s := m.Snapshot()
	assert.InDelta(t, 970, s.Balance, 1e-9)
	assert.Equal(t, 0, s.Wins)
	assert.Equal(t, 2, s.LedgerLength)
}

func TestCheckLimits_DrawdownBoundary(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Limits.MaxDrawdownFraction = 0.2
	cfg.Limits.MaxDailyLoss = 1e9 // keep daily loss out of the way

	// Drop to 801: drawdown 0.199, must not trip.
	m := newTestManager(t, cfg)
	m.balance = 801
	require.NoError(t, m.CheckLimits(time.Now()))
	assert.False(t, m.Halted())

	// Drop to 799: drawdown 0.201, must trip.
	m = newTestManager(t, cfg)
	m.balance = 799
	err := m.CheckLimits(time.Now())
	var risk *RiskLimitExceeded
	require.True(t, errors.As(err, &risk))
	assert.Equal(t, "max_drawdown", risk.Reason)
	assert.True(t, m.Halted())
}

func TestCheckLimits_DailyLoss(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Limits.MaxDailyLoss = 50
	cfg.Limits.MaxDrawdownFraction = 0.9
	m := newTestManager(t, cfg)

	m.balance = 949 // 51 lost today
	err := m.CheckLimits(time.Now())
	var risk *RiskLimitExceeded
	require.True(t, errors.As(err, &risk))
	assert.Equal(t, "max_daily_loss", risk.Reason)
}

func TestCheckLimits_SessionDuration(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Limits.SessionMaxDuration = time.Hour
	m := newTestManager(t, cfg)

	require.NoError(t, m.CheckLimits(time.Now().Add(59*time.Minute)))

	err := m.CheckLimits(time.Now().Add(61 * time.Minute))
	var risk *RiskLimitExceeded
	require.True(t, errors.As(err, &risk))
	assert.Equal(t, "session_max_duration", risk.Reason)
}

func TestHaltBlocksMutations(t *testing.T) {
	cfg := DefaultConfig()
	m := newTestManager(t, cfg)
	m.balance = 700
	require.Error(t, m.CheckLimits(time.Now()))

	_, err := m.SizeBet(0.95, domain.OutcomeDragon, signal.TierHigh)
	var risk *RiskLimitExceeded
	assert.True(t, errors.As(err, &risk))

	err = m.PlaceBet(context.Background(), testSignal(domain.OutcomeDragon), 1)
	assert.True(t, errors.As(err, &risk))
}

func TestStartSession_ClearsHalt(t *testing.T) {
	m := newTestManager(t, DefaultConfig())
	m.balance = 700
	require.Error(t, m.CheckLimits(time.Now()))
	require.True(t, m.Halted())

	m.StartSession(time.Now())
	assert.False(t, m.Halted())
}

func TestKellyFraction(t *testing.T) {
	assert.InDelta(t, 0.0, kellyFraction(0.5, 1.0), 1e-9, "no edge at even odds")
	assert.InDelta(t, 0.2, kellyFraction(0.6, 1.0), 1e-9)
	assert.Equal(t, 0.0, kellyFraction(0.4, 1.0), "negative edge floors at zero")
	assert.Equal(t, 0.0, kellyFraction(0.5, 0))
}

func TestEdge(t *testing.T) {
	assert.InDelta(t, 0.2, edge(0.6, 1.0), 1e-9)
	assert.InDelta(t, 0.2, edge(0.1, 11.0), 1e-9)
}
