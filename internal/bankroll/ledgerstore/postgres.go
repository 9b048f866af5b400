// Package ledgerstore persists the bankroll ledger so that restart can
// rebuild state by replay.
package ledgerstore

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/tablerun/tablerun/internal/bankroll"
)

const schema = `
CREATE TABLE IF NOT EXISTS bankroll_ledger (
    id            TEXT PRIMARY KEY,
    idx           BIGINT NOT NULL UNIQUE,
    entry_type    TEXT NOT NULL,
    signal_id     TEXT NOT NULL,
    predicted     TEXT NOT NULL,
    actual        TEXT NOT NULL DEFAULT '',
    stake         DOUBLE PRECISION NOT NULL,
    profit        DOUBLE PRECISION NOT NULL,
    balance_after DOUBLE PRECISION NOT NULL,
    at            TIMESTAMPTZ NOT NULL
)`

// Postgres is a LedgerStore backed by a Postgres table.
type Postgres struct {
	db *sqlx.DB
}

// Open connects to Postgres with the given DSN and ensures the ledger
// table exists.
func Open(ctx context.Context, dsn string) (*Postgres, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("connecting to ledger database: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating ledger table: %w", err)
	}
	return &Postgres{db: db}, nil
}

// Append inserts one ledger entry. The unique index constraint defends
// the append-only ordering against concurrent writers.
func (p *Postgres) Append(ctx context.Context, entry bankroll.LedgerEntry) error {
	const q = `
INSERT INTO bankroll_ledger
    (id, idx, entry_type, signal_id, predicted, actual, stake, profit, balance_after, at)
VALUES
    (:id, :idx, :entry_type, :signal_id, :predicted, :actual, :stake, :profit, :balance_after, :at)`
	if _, err := p.db.NamedExecContext(ctx, q, entry); err != nil {
		return fmt.Errorf("inserting ledger entry %d: %w", entry.Index, err)
	}
	return nil
}

// Load returns the full ledger ordered by index.
func (p *Postgres) Load(ctx context.Context) ([]bankroll.LedgerEntry, error) {
	var entries []bankroll.LedgerEntry
	const q = `SELECT id, idx, entry_type, signal_id, predicted, actual, stake, profit, balance_after, at
               FROM bankroll_ledger ORDER BY idx ASC`
	if err := p.db.SelectContext(ctx, &entries, q); err != nil {
		return nil, fmt.Errorf("loading ledger: %w", err)
	}
	return entries, nil
}

// Close releases the database handle.
func (p *Postgres) Close() error { return p.db.Close() }
