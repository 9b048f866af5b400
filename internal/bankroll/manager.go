// Package bankroll owns all session capital state: fractional-Kelly bet
// sizing, the append-only settlement ledger, drawdown tracking, and the
// risk limits that can halt the whole pipeline.
package bankroll

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/tablerun/tablerun/internal/domain"
	"github.com/tablerun/tablerun/internal/signal"
)

// ErrBudgetExhausted is returned by SizeBet when the remaining daily
// loss budget cannot cover even the minimum stake.
var ErrBudgetExhausted = errors.New("remaining daily loss budget below minimum stake")

// RiskLimitExceeded halts the session: no further signals until an
// explicit reset.
type RiskLimitExceeded struct {
	Reason string
	Value  float64
	Limit  float64
}

func (e *RiskLimitExceeded) Error() string {
	return fmt.Sprintf("risk limit exceeded: %s (%.4f >= %.4f)", e.Reason, e.Value, e.Limit)
}

// Limits is the immutable risk configuration for a session.
type Limits struct {
	MaxDailyLoss        float64       `yaml:"max_daily_loss"`
	MaxDrawdownFraction float64       `yaml:"max_drawdown_fraction"`
	SessionMaxDuration  time.Duration `yaml:"session_max_duration"`
}

// DefaultLimits returns the original system's protective defaults.
func DefaultLimits() Limits {
	return Limits{
		MaxDailyLoss:        100,
		MaxDrawdownFraction: 0.20,
		SessionMaxDuration:  2 * time.Hour,
	}
}

// Config parameterizes the manager.
type Config struct {
	InitialBalance   float64 `yaml:"initial_balance"`
	UnitSize         float64 `yaml:"unit_size"`
	MinBetUnits      int     `yaml:"min_bet_units"`
	MaxBetUnits      int     `yaml:"max_bet_units"`
	FractionalKelly  float64 `yaml:"fractional_kelly"`
	VolatilityWindow int     `yaml:"volatility_window"`
	Payouts          Payouts `yaml:"payouts"`
	Limits           Limits  `yaml:"limits"`
}

// DefaultConfig returns the conservative quarter-Kelly setup.
func DefaultConfig() Config {
	return Config{
		InitialBalance:   1000,
		UnitSize:         10,
		MinBetUnits:      1,
		MaxBetUnits:      7,
		FractionalKelly:  0.25,
		VolatilityWindow: 50,
		Payouts:          DefaultPayouts(),
		Limits:           DefaultLimits(),
	}
}

// State is a read-only snapshot of the bankroll.
type State struct {
	Balance          float64   `json:"balance"`
	PeakBalance      float64   `json:"peak_balance"`
	UnitSize         float64   `json:"unit_size"`
	DailyLoss        float64   `json:"cumulative_daily_loss"`
	Drawdown         float64   `json:"drawdown"`
	SessionStart     time.Time `json:"session_start"`
	SettledBets      int       `json:"settled_bets"`
	Wins             int       `json:"wins"`
	OpenStake        float64   `json:"open_stake"`
	Halted           bool      `json:"halted"`
	HaltReason       string    `json:"halt_reason,omitempty"`
	LedgerLength     int       `json:"ledger_length"`
	FractionalKelly  float64   `json:"fractional_kelly"`
	VolatilityAdjust float64   `json:"volatility_adjustment"`
}

type openBet struct {
	signalID  string
	predicted domain.Outcome
	stake     float64
	units     int
}

// Manager is the single owner of bankroll state. Every read and
// mutation is serialized behind its mutex, so bet sizing and drawdown
// evaluation always observe a consistent balance.
type Manager struct {
	mu  sync.Mutex
	cfg Config
	log zerolog.Logger

	balance      float64
	peak         float64
	dayStart     float64
	dayStamp     time.Time
	sessionStart time.Time

	ledger    []LedgerEntry
	nextIndex int64
	store     LedgerStore

	profits []float64 // settled P&L in units, trailing window
	open    *openBet

	settled int
	wins    int

	halted     bool
	haltReason string
}

// NewManager builds a manager, replaying the persisted ledger when a
// store is supplied so restart resumes from recorded facts.
func NewManager(ctx context.Context, cfg Config, store LedgerStore, log zerolog.Logger) (*Manager, error) {
	m := &Manager{
		cfg:      cfg,
		log:      log.With().Str("component", "bankroll").Logger(),
		balance:  cfg.InitialBalance,
		peak:     cfg.InitialBalance,
		dayStart: cfg.InitialBalance,
		store:    store,
	}

	if store != nil {
		entries, err := store.Load(ctx)
		if err != nil {
			return nil, fmt.Errorf("loading ledger: %w", err)
		}
		if len(entries) > 0 {
			replayed := Replay(entries, cfg.InitialBalance)
			m.ledger = entries
			m.nextIndex = entries[len(entries)-1].Index + 1
			m.balance = replayed.Balance
			m.peak = replayed.PeakBalance
			m.settled = replayed.SettledBets
			// An intra-day restart must not refill the daily loss
			// budget: the baseline carries over until the UTC day
			// actually rolls.
			m.dayStamp = replayed.LastEntryAt.UTC().Truncate(24 * time.Hour)
			m.dayStart = replayed.Balance + replayed.DailyLoss
			if cfg.UnitSize > 0 {
				// profits is measured in units
				for _, p := range replayed.LastSettledProfit {
					m.profits = append(m.profits, p/cfg.UnitSize)
				}
				m.profits = trailingWindow(m.profits, cfg.VolatilityWindow)
			}
			m.log.Info().
				Int("entries", len(entries)).
				Float64("balance", m.balance).
				Msg("bankroll state reconstructed from ledger replay")
		}
	}
	return m, nil
}

// StartSession stamps the session clock and daily baseline. Bankroll
// state itself persists across sessions; only the clocks reset.
func (m *Manager) StartSession(now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessionStart = now
	m.rollDayLocked(now)
	m.halted = false
	m.haltReason = ""
}

// SizeBet computes the fractional-Kelly stake for the recommended
// outcome at the blended probability, scaled down by confidence tier,
// recent volatility, and current drawdown, then clamps the unit count
// to the configured [min,max] within [1,7] and caps it against the
// remaining daily loss budget.
func (m *Manager) SizeBet(prob float64, outcome domain.Outcome, tier signal.Tier) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.halted {
		return 0, &RiskLimitExceeded{Reason: m.haltReason}
	}

	b := m.cfg.Payouts.For(outcome)
	frac := kellyFraction(prob, b) * m.adaptiveKellyLocked() * m.volatilityAdjustLocked() * tierMultiplier(tier)

	units := int(math.Round(frac * m.balance / m.cfg.UnitSize))

	lo := m.cfg.MinBetUnits
	if lo < 1 {
		lo = 1
	}
	hi := m.cfg.MaxBetUnits
	if hi > 7 || hi <= 0 {
		hi = 7
	}
	if units < lo {
		units = lo
	}
	if units > hi {
		units = hi
	}

	// Stake may never exceed what is left of the daily loss budget.
	budget := m.cfg.Limits.MaxDailyLoss - m.dailyLossLocked()
	budgetUnits := int(budget / m.cfg.UnitSize)
	if budgetUnits < lo {
		return 0, ErrBudgetExhausted
	}
	if units > budgetUnits {
		units = budgetUnits
	}

	m.log.Debug().
		Str("outcome", string(outcome)).
		Float64("probability", prob).
		Float64("edge", edge(prob, b)).
		Float64("kelly_fraction", frac).
		Int("units", units).
		Msg("bet sized")
	return units, nil
}

// PlaceBet debits the stake and appends the bet_placed ledger entry.
// Exactly one bet may be open at a time; the pipeline's one-decision-
// per-hand ordering guarantees that.
func (m *Manager) PlaceBet(ctx context.Context, sig signal.Signal, units int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.halted {
		return &RiskLimitExceeded{Reason: m.haltReason}
	}
	if m.open != nil {
		return fmt.Errorf("bet for signal %s still open", m.open.signalID)
	}

	stake := float64(units) * m.cfg.UnitSize
	m.balance -= stake
	m.open = &openBet{signalID: sig.ID, predicted: sig.Recommended, stake: stake, units: units}

	return m.appendLocked(ctx, LedgerEntry{
		Type:         EntryBetPlaced,
		SignalID:     sig.ID,
		Predicted:    sig.Recommended,
		Stake:        stake,
		Profit:       -stake,
		BalanceAfter: m.balance,
		At:           sig.Timestamp,
	})
}

// Settle resolves the open bet against the actual outcome, credits
// winnings, and appends the bet_settled entry. A no-op when no bet is
// open.
func (m *Manager) Settle(ctx context.Context, actual domain.Outcome, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.open == nil {
		return nil
	}
	bet := m.open
	m.open = nil

	var credit float64
	if actual == bet.predicted {
		credit = bet.stake * (1 + m.cfg.Payouts.For(bet.predicted))
		m.wins++
	}
	m.balance += credit
	profit := credit - bet.stake

	if m.balance > m.peak {
		m.peak = m.balance
	}
	m.settled++
	m.profits = append(m.profits, profit/m.cfg.UnitSize)
	m.profits = trailingWindow(m.profits, m.cfg.VolatilityWindow)

	m.log.Info().
		Str("signal_id", bet.signalID).
		Str("predicted", string(bet.predicted)).
		Str("actual", string(actual)).
		Float64("profit", profit).
		Float64("balance", m.balance).
		Msg("bet settled")

	return m.appendLocked(ctx, LedgerEntry{
		Type:         EntryBetSettled,
		SignalID:     bet.signalID,
		Predicted:    bet.predicted,
		Actual:       actual,
		Stake:        bet.stake,
		Profit:       profit,
		BalanceAfter: m.balance,
		At:           now,
	})
}

// CheckLimits evaluates drawdown, daily loss, and session duration,
// halting the manager and returning *RiskLimitExceeded on the first
// violation.
func (m *Manager) CheckLimits(now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.halted {
		return &RiskLimitExceeded{Reason: m.haltReason}
	}
	m.rollDayLocked(now)

	if dd := m.drawdownLocked(); dd >= m.cfg.Limits.MaxDrawdownFraction {
		return m.haltLocked("max_drawdown", dd, m.cfg.Limits.MaxDrawdownFraction)
	}
	if loss := m.dailyLossLocked(); loss >= m.cfg.Limits.MaxDailyLoss {
		return m.haltLocked("max_daily_loss", loss, m.cfg.Limits.MaxDailyLoss)
	}
	if !m.sessionStart.IsZero() {
		if elapsed := now.Sub(m.sessionStart); elapsed >= m.cfg.Limits.SessionMaxDuration {
			return m.haltLocked("session_max_duration", elapsed.Seconds(), m.cfg.Limits.SessionMaxDuration.Seconds())
		}
	}
	return nil
}

// Halted reports whether a risk limit has tripped.
func (m *Manager) Halted() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.halted
}

// Snapshot returns a consistent read-only copy of the bankroll state.
func (m *Manager) Snapshot() State {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := State{
		Balance:          m.balance,
		PeakBalance:      m.peak,
		UnitSize:         m.cfg.UnitSize,
		DailyLoss:        m.dailyLossLocked(),
		Drawdown:         m.drawdownLocked(),
		SessionStart:     m.sessionStart,
		SettledBets:      m.settled,
		Wins:             m.wins,
		Halted:           m.halted,
		HaltReason:       m.haltReason,
		LedgerLength:     len(m.ledger),
		FractionalKelly:  m.adaptiveKellyLocked(),
		VolatilityAdjust: m.volatilityAdjustLocked(),
	}
	if m.open != nil {
		s.OpenStake = m.open.stake
	}
	return s
}

// Ledger returns a copy of the in-memory ledger.
func (m *Manager) Ledger() []LedgerEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]LedgerEntry, len(m.ledger))
	copy(out, m.ledger)
	return out
}

func (m *Manager) appendLocked(ctx context.Context, entry LedgerEntry) error {
	entry.ID = uuid.NewString()
	entry.Index = m.nextIndex
	m.nextIndex++
	m.ledger = append(m.ledger, entry)

	if m.store != nil {
		if err := m.store.Append(ctx, entry); err != nil {
			// The in-memory ledger remains authoritative for the
			// session; persistence failure is surfaced, not fatal.
			m.log.Error().Err(err).Int64("index", entry.Index).Msg("ledger store append failed")
			return fmt.Errorf("persisting ledger entry %d: %w", entry.Index, err)
		}
	}
	return nil
}

func (m *Manager) haltLocked(reason string, value, limit float64) error {
	m.halted = true
	m.haltReason = reason
	m.log.Warn().Str("reason", reason).Float64("value", value).Float64("limit", limit).Msg("risk limit tripped, halting")
	return &RiskLimitExceeded{Reason: reason, Value: value, Limit: limit}
}

func (m *Manager) drawdownLocked() float64 {
	if m.peak <= 0 {
		return 0
	}
	return (m.peak - m.balance) / m.peak
}

func (m *Manager) dailyLossLocked() float64 {
	if loss := m.dayStart - m.balance; loss > 0 {
		return loss
	}
	return 0
}

func (m *Manager) rollDayLocked(now time.Time) {
	day := now.UTC().Truncate(24 * time.Hour)
	if !day.Equal(m.dayStamp) {
		m.dayStamp = day
		m.dayStart = m.balance
	}
}

// adaptiveKellyLocked tightens the Kelly fraction as drawdown grows,
// per the original manager: quarter Kelly normally, 0.2 past 10%
// drawdown, 0.1 past 20%.
func (m *Manager) adaptiveKellyLocked() float64 {
	dd := m.drawdownLocked()
	switch {
	case dd > 0.2:
		return 0.1
	case dd > 0.1:
		return 0.2
	default:
		return m.cfg.FractionalKelly
	}
}

// volatilityAdjustLocked scales stakes by the standard deviation of
// recent settled P&L measured in units.
func (m *Manager) volatilityAdjustLocked() float64 {
	if len(m.profits) < 10 {
		return 1.0
	}
	sd := stddev(m.profits)
	switch {
	case sd < 0.5:
		return 1.2
	case sd < 1.0:
		return 1.0
	case sd < 2.0:
		return 0.8
	default:
		return 0.6
	}
}

func tierMultiplier(tier signal.Tier) float64 {
	switch tier {
	case signal.TierHigh:
		return 1.0
	case signal.TierMedium:
		return 0.7
	default:
		return 0.4
	}
}

func trailingWindow(xs []float64, n int) []float64 {
	if n <= 0 || len(xs) <= n {
		return xs
	}
	return xs[len(xs)-n:]
}

func stddev(xs []float64) float64 {
	var mean float64
	for _, x := range xs {
		mean += x
	}
	mean /= float64(len(xs))
	var ss float64
	for _, x := range xs {
		ss += (x - mean) * (x - mean)
	}
	return math.Sqrt(ss / float64(len(xs)))
}
