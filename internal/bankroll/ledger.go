package bankroll

import (
	"context"
	"time"

	"github.com/tablerun/tablerun/internal/domain"
)

// EntryType discriminates ledger entries.
type EntryType string

const (
	EntryBetPlaced  EntryType = "bet_placed"
	EntryBetSettled EntryType = "bet_settled"
)

// LedgerEntry is one immutable balance mutation. The ledger is
// append-only and ordered by Index so restart can reconstruct
// BankrollState by replay instead of trusting a stored scalar.
type LedgerEntry struct {
	ID           string         `json:"id" db:"id"`
	Index        int64          `json:"index" db:"idx"`
	Type         EntryType      `json:"type" db:"entry_type"`
	SignalID     string         `json:"signal_id" db:"signal_id"`
	Predicted    domain.Outcome `json:"predicted" db:"predicted"`
	Actual       domain.Outcome `json:"actual,omitempty" db:"actual"`
	Stake        float64        `json:"stake" db:"stake"`
	Profit       float64        `json:"profit" db:"profit"`
	BalanceAfter float64        `json:"balance_after" db:"balance_after"`
	At           time.Time      `json:"at" db:"at"`
}

// LedgerStore persists ledger entries. Implementations must preserve
// append order.
type LedgerStore interface {
	Append(ctx context.Context, entry LedgerEntry) error
	Load(ctx context.Context) ([]LedgerEntry, error)
}

// ReplayedState is the bankroll state reconstructed from a ledger.
type ReplayedState struct {
	Balance           float64
	PeakBalance       float64
	DailyLoss         float64
	SettledBets       int
	LastEntryAt       time.Time
	LastSettledProfit []float64 // settled P&L trail, oldest first
}

// Replay folds an ordered ledger into bankroll state starting from the
// initial balance. Daily loss is computed over entries sharing the UTC
// day of the final entry.
func Replay(entries []LedgerEntry, initial float64) ReplayedState {
	state := ReplayedState{Balance: initial, PeakBalance: initial}
	if len(entries) == 0 {
		return state
	}

	day := func(t time.Time) time.Time { return t.UTC().Truncate(24 * time.Hour) }
	lastDay := day(entries[len(entries)-1].At)
	dayStart := initial
	dayStartSet := false

	prev := initial
	for _, e := range entries {
		if !dayStartSet && day(e.At).Equal(lastDay) {
			dayStart = prev
			dayStartSet = true
		}
		state.Balance = e.BalanceAfter
		if e.BalanceAfter > state.PeakBalance {
			state.PeakBalance = e.BalanceAfter
		}
		if e.Type == EntryBetSettled {
			state.SettledBets++
			state.LastSettledProfit = append(state.LastSettledProfit, e.Profit)
		}
		prev = e.BalanceAfter
	}
	state.LastEntryAt = entries[len(entries)-1].At

	if loss := dayStart - state.Balance; loss > 0 {
		state.DailyLoss = loss
	}
	return state
}
