package bankroll

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tablerun/tablerun/internal/domain"
)

// memoryStore is an in-memory LedgerStore for tests.
type memoryStore struct {
	entries []LedgerEntry
}

func (s *memoryStore) Append(_ context.Context, entry LedgerEntry) error {
	s.entries = append(s.entries, entry)
	return nil
}

func (s *memoryStore) Load(_ context.Context) ([]LedgerEntry, error) {
	out := make([]LedgerEntry, len(s.entries))
	copy(out, s.entries)
	return out, nil
}

func TestReplay_EmptyLedger(t *testing.T) {
	state := Replay(nil, 1000)
	assert.Equal(t, 1000.0, state.Balance)
	assert.Equal(t, 1000.0, state.PeakBalance)
	assert.Equal(t, 0.0, state.DailyLoss)
}

func TestReplay_ReconstructsExactState(t *testing.T) {
	store := &memoryStore{}
	cfg := DefaultConfig()
	cfg.Limits.MaxDailyLoss = 1e9

	m, err := NewManager(context.Background(), cfg, store, zerolog.Nop())
	require.NoError(t, err)
	m.StartSession(time.Now())

	// Win one, lose two.
	require.NoError(t, m.PlaceBet(context.Background(), testSignal(domain.OutcomeDragon), 2))
	require.NoError(t, m.Settle(context.Background(), domain.OutcomeDragon, time.Now()))
	require.NoError(t, m.PlaceBet(context.Background(), testSignal(domain.OutcomeTiger), 3))
	require.NoError(t, m.Settle(context.Background(), domain.OutcomeDragon, time.Now()))
	require.NoError(t, m.PlaceBet(context.Background(), testSignal(domain.OutcomeTie), 1))
	require.NoError(t, m.Settle(context.Background(), domain.OutcomeDragon, time.Now()))

	want := m.Snapshot()

	// A fresh manager over the same store must reconstruct the state.
	restarted, err := NewManager(context.Background(), cfg, store, zerolog.Nop())
	require.NoError(t, err)
	got := restarted.Snapshot()

	assert.Equal(t, want.Balance, got.Balance, "replayed balance must match exactly")
	assert.Equal(t, want.PeakBalance, got.PeakBalance)
	assert.Equal(t, want.SettledBets, got.SettledBets)
	assert.Equal(t, want.LedgerLength, got.LedgerLength)
}

func TestReplay_DailyLossComputedFromFinalDay(t *testing.T) {
	base := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	yesterday := base.Add(-24 * time.Hour)

	entries := []LedgerEntry{
		{Index: 0, Type: EntryBetPlaced, Stake: 50, Profit: -50, BalanceAfter: 950, At: yesterday},
		{Index: 1, Type: EntryBetSettled, Stake: 50, Profit: -50, BalanceAfter: 950, At: yesterday},
		{Index: 2, Type: EntryBetPlaced, Stake: 30, Profit: -30, BalanceAfter: 920, At: base},
		{Index: 3, Type: EntryBetSettled, Stake: 30, Profit: -30, BalanceAfter: 920, At: base},
	}

	state := Replay(entries, 1000)
	assert.Equal(t, 920.0, state.Balance)
	assert.InDelta(t, 30.0, state.DailyLoss, 1e-9, "only the final day's loss counts as daily loss")
}

func TestNewManager_ReplayKeepsDailyLossWithinDay(t *testing.T) {
	at := time.Date(2026, 8, 30, 9, 0, 0, 0, time.UTC)
	store := &memoryStore{entries: []LedgerEntry{
		{Index: 0, Type: EntryBetPlaced, Stake: 60, Profit: -60, BalanceAfter: 940, At: at},
		{Index: 1, Type: EntryBetSettled, Stake: 60, Profit: -60, BalanceAfter: 940, At: at},
	}}

	m, err := NewManager(context.Background(), DefaultConfig(), store, zerolog.Nop())
	require.NoError(t, err)

	// Restart two hours later, same UTC day: the budget already spent
	// must still count.
	m.StartSession(at.Add(2 * time.Hour))
	assert.InDelta(t, 60.0, m.Snapshot().DailyLoss, 1e-9)

	// A restart on the next day rolls the baseline forward.
	m2, err := NewManager(context.Background(), DefaultConfig(), store, zerolog.Nop())
	require.NoError(t, err)
	m2.StartSession(at.Add(25 * time.Hour))
	assert.InDelta(t, 0.0, m2.Snapshot().DailyLoss, 1e-9)
}

func TestManager_LedgerIndicesAreOrdered(t *testing.T) {
	m := newTestManager(t, DefaultConfig())

	require.NoError(t, m.PlaceBet(context.Background(), testSignal(domain.OutcomeDragon), 1))
	require.NoError(t, m.Settle(context.Background(), domain.OutcomeTiger, time.Now()))
	require.NoError(t, m.PlaceBet(context.Background(), testSignal(domain.OutcomeDragon), 1))
	require.NoError(t, m.Settle(context.Background(), domain.OutcomeDragon, time.Now()))

	ledger := m.Ledger()
	require.Len(t, ledger, 4)
	for i, e := range ledger {
		assert.Equal(t, int64(i), e.Index)
		assert.NotEmpty(t, e.ID)
	}
}

func TestPerformance_FromSettledLedger(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Limits.MaxDailyLoss = 1e9
	m := newTestManager(t, cfg)

	// One win (+10 at even odds on 1 unit), one loss (-10).
	require.NoError(t, m.PlaceBet(context.Background(), testSignal(domain.OutcomeDragon), 1))
	require.NoError(t, m.Settle(context.Background(), domain.OutcomeDragon, time.Now()))
	require.NoError(t, m.PlaceBet(context.Background(), testSignal(domain.OutcomeDragon), 1))
	require.NoError(t, m.Settle(context.Background(), domain.OutcomeTiger, time.Now()))

	report := m.Performance()
	assert.Equal(t, 2, report.TotalBets)
	assert.InDelta(t, 0.5, report.WinRate, 1e-9)
	assert.InDelta(t, 0.0, report.TotalProfit, 1e-9)
	assert.InDelta(t, 10.0, report.AverageStake, 1e-9)
	assert.InDelta(t, 0.0, report.ROI, 1e-9)
}
