package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tablerun/tablerun/internal/bankroll"
	"github.com/tablerun/tablerun/internal/config"
	"github.com/tablerun/tablerun/internal/domain"
	"github.com/tablerun/tablerun/internal/history"
	"github.com/tablerun/tablerun/internal/metrics"
	"github.com/tablerun/tablerun/internal/montecarlo"
	"github.com/tablerun/tablerun/internal/notify"
	"github.com/tablerun/tablerun/internal/signal"
)

var sessionStart = time.Date(2026, 1, 5, 12, 0, 0, 0, time.UTC)

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.MonteCarlo.Simulations = 400
	cfg.Signals.MinHandsBetween = 0
	cfg.Signals.MaxIntervalWidth = 1.0
	return cfg
}

type capturedPipeline struct {
	p    *Pipeline
	bank *bankroll.Manager
}

func newTestPipeline(t *testing.T, cfg *config.Config) capturedPipeline {
	t.Helper()
	require.NoError(t, cfg.Validate())

	log := zerolog.Nop()
	bank, err := bankroll.NewManager(context.Background(), cfg.BankrollConfig(), nil, log)
	require.NoError(t, err)

	outbox := notify.NewOutbox(cfg.OutboxConfig(), notify.NewLogNotifier(log), log)
	p := New(cfg, bank, outbox, metrics.NewRegistry(), log)
	p.Start(sessionStart)
	return capturedPipeline{p: p, bank: bank}
}

func event(seq uint64, o domain.Outcome) domain.OutcomeEvent {
	return domain.OutcomeEvent{
		Sequence:  seq,
		Timestamp: sessionStart.Add(time.Duration(seq) * time.Minute),
		Outcome:   o,
	}
}

func TestProcessOutcome_BeforeStart(t *testing.T) {
	cfg := testConfig()
	log := zerolog.Nop()
	bank, err := bankroll.NewManager(context.Background(), cfg.BankrollConfig(), nil, log)
	require.NoError(t, err)
	outbox := notify.NewOutbox(cfg.OutboxConfig(), notify.NewLogNotifier(log), log)

	p := New(cfg, bank, outbox, metrics.NewRegistry(), log)
	err = p.ProcessOutcome(context.Background(), event(1, domain.OutcomeDragon))
	assert.ErrorIs(t, err, ErrSessionHalted)
}

func TestProcessOutcome_SingleRunConvergence(t *testing.T) {
	tp := newTestPipeline(t, testConfig())
	ctx := context.Background()

	for i := uint64(1); i <= 20; i++ {
		require.NoError(t, tp.p.ProcessOutcome(ctx, event(i, domain.OutcomeDragon)))
	}

	st := tp.p.Status()
	assert.Equal(t, StateRunning, st.State)
	assert.Equal(t, uint64(20), st.HandsProcessed)

	var emitted uint64
	for _, n := range st.SignalsByTier {
		emitted += n
	}
	require.NotZero(t, emitted, "a pure single-outcome run must produce signals")
	require.NotNil(t, tp.p.lastSignal)
	assert.Equal(t, domain.OutcomeDragon, tp.p.lastSignal.Recommended)
	assert.GreaterOrEqual(t, tp.p.lastSignal.Probability, 0.5)
}

func TestProcessOutcome_HourlyCap(t *testing.T) {
	cfg := testConfig()
	cfg.Signals.MaxPerHour = 8
	tp := newTestPipeline(t, cfg)
	ctx := context.Background()

	// Warm the window so every subsequent hand classifies above the
	// suppression floor.
	var seq uint64
	for seq = 1; seq <= 3; seq++ {
		require.NoError(t, tp.p.ProcessOutcome(ctx, event(seq, domain.OutcomeDragon)))
	}

	for ; seq <= 30; seq++ {
		require.NoError(t, tp.p.ProcessOutcome(ctx, event(seq, domain.OutcomeDragon)))
	}

	st := tp.p.Status()
	var after uint64
	for _, n := range st.SignalsByTier {
		after += n
	}
	assert.Equal(t, uint64(8), after, "trailing-hour cap must bound emissions")
	assert.Greater(t, st.Suppressed, uint64(0))
}

func TestProcessOutcome_DataGapHalts(t *testing.T) {
	tp := newTestPipeline(t, testConfig())
	ctx := context.Background()

	require.NoError(t, tp.p.ProcessOutcome(ctx, event(5, domain.OutcomeDragon)))

	// Duplicate sequence: history integrity is gone, session ends.
	err := tp.p.ProcessOutcome(ctx, event(5, domain.OutcomeTiger))
	var gap *history.DataGapError
	require.ErrorAs(t, err, &gap)

	st := tp.p.Status()
	assert.Equal(t, StateHalted, st.State)
	assert.Contains(t, st.HaltReason, "data gap")

	err = tp.p.ProcessOutcome(ctx, event(6, domain.OutcomeTiger))
	assert.ErrorIs(t, err, ErrSessionHalted)
}

func TestProcessOutcome_RiskHalt(t *testing.T) {
	tp := newTestPipeline(t, testConfig())
	ctx := context.Background()

	// Force a drawdown past the 20% limit through the bankroll owner.
	sig := signal.New(1, sessionStart, domain.OutcomeDragon, signal.TierHigh, 0.9, montecarlo.Interval{}, time.Minute)
	require.NoError(t, tp.bank.PlaceBet(ctx, sig, 25))
	require.NoError(t, tp.bank.Settle(ctx, domain.OutcomeTiger, sessionStart))

	err := tp.p.ProcessOutcome(ctx, event(1, domain.OutcomeTiger))
	var risk *bankroll.RiskLimitExceeded
	require.ErrorAs(t, err, &risk)

	st := tp.p.Status()
	assert.Equal(t, StateHalted, st.State)
	assert.NotEmpty(t, st.HaltReason)

	assert.ErrorIs(t, tp.p.ProcessOutcome(ctx, event(2, domain.OutcomeTiger)), ErrSessionHalted)
}

func TestHalt_Idempotent(t *testing.T) {
	tp := newTestPipeline(t, testConfig())

	tp.p.Halt("operator stop")
	tp.p.Halt("second stop")

	st := tp.p.Status()
	assert.Equal(t, StateHalted, st.State)
	assert.Equal(t, "operator stop", st.HaltReason)
}

func TestStatus_Snapshot(t *testing.T) {
	tp := newTestPipeline(t, testConfig())

	st := tp.p.Status()
	assert.Equal(t, StateRunning, st.State)
	assert.Equal(t, sessionStart, st.SessionStartedAt)
	assert.Equal(t, 1000.0, st.Bankroll.Balance)

	// Mutating the returned map must not leak back in.
	st.SignalsByTier["HIGH"] = 99
	assert.NotEqual(t, uint64(99), tp.p.Status().SignalsByTier["HIGH"])
}

func TestBias_ReportsOverWindow(t *testing.T) {
	cfg := testConfig()
	cfg.Window.Capacity = 40
	tp := newTestPipeline(t, cfg)
	ctx := context.Background()

	outcomes := []domain.Outcome{domain.OutcomeDragon, domain.OutcomeTiger, domain.OutcomeTie}
	for i := uint64(1); i <= 36; i++ {
		require.NoError(t, tp.p.ProcessOutcome(ctx, event(i, outcomes[i%3])))
	}

	report := tp.p.Bias()
	assert.Equal(t, 36, report.Samples)

	// The same report rides along on the status snapshot.
	st := tp.p.Status()
	assert.Equal(t, 36, st.Bias.Samples)
	assert.True(t, st.Bias.Sufficient)
}
