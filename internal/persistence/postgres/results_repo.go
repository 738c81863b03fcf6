package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/crypthunt/crypthunt/internal/domain"
)

const schema = `
CREATE TABLE IF NOT EXISTS hunt_results (
	id              BIGSERIAL PRIMARY KEY,
	hunt_id         TEXT NOT NULL UNIQUE,
	symbol          TEXT NOT NULL,
	strategy        TEXT NOT NULL,
	entry_price     DOUBLE PRECISION NOT NULL,
	exit_price      DOUBLE PRECISION NOT NULL,
	realized_return DOUBLE PRECISION NOT NULL,
	expected_return DOUBLE PRECISION NOT NULL,
	hold_seconds    DOUBLE PRECISION NOT NULL,
	exit_reason     TEXT NOT NULL,
	success         BOOLEAN NOT NULL,
	learning_value  DOUBLE PRECISION NOT NULL,
	closed_at       TIMESTAMPTZ NOT NULL,
	created_at      TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_hunt_results_closed_at ON hunt_results (closed_at);
CREATE INDEX IF NOT EXISTS idx_hunt_results_strategy ON hunt_results (strategy, closed_at);

CREATE TABLE IF NOT EXISTS hunt_book (
	symbol     TEXT PRIMARY KEY,
	hunt       JSONB NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);`

// Ledger is the PostgreSQL hunt ledger: an append-only results table plus a
// snapshot of the open book for crash recovery.
type Ledger struct {
	db      *sqlx.DB
	timeout time.Duration
}

// Open connects, pings, and ensures the schema exists.
func Open(ctx context.Context, dsn string, timeout time.Duration) (*Ledger, error) {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	db, err := sqlx.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}
	if _, err := db.ExecContext(pingCtx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ensure schema: %w", err)
	}

	return &Ledger{db: db, timeout: timeout}, nil
}

// SaveResult appends one closed hunt. The hunt_id unique constraint makes the
// ledger append-only: a replayed close surfaces as a duplicate error instead
// of a silent overwrite.
func (l *Ledger) SaveResult(ctx context.Context, result domain.HuntResult) error {
	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	query := `
		INSERT INTO hunt_results (hunt_id, symbol, strategy, entry_price, exit_price,
			realized_return, expected_return, hold_seconds, exit_reason, success,
			learning_value, closed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

	_, err := l.db.ExecContext(ctx, query,
		result.HuntID, result.Symbol, result.Strategy.String(),
		result.EntryPrice, result.ExitPrice,
		result.RealizedReturn, result.ExpectedReturn,
		result.HoldDuration.Seconds(), result.ExitReason, result.Success,
		result.LearningValue, result.ClosedAt)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			return fmt.Errorf("duplicate hunt result %s: %w", result.HuntID, err)
		}
		return fmt.Errorf("failed to insert hunt result: %w", err)
	}
	return nil
}

// RecentResults returns up to limit results in closed_at order, oldest first,
// ready for startup replay.
func (l *Ledger) RecentResults(ctx context.Context, limit int) ([]domain.HuntResult, error) {
	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	query := `
		SELECT hunt_id, symbol, strategy, entry_price, exit_price, realized_return,
			expected_return, hold_seconds, exit_reason, success, learning_value, closed_at
		FROM (
			SELECT * FROM hunt_results ORDER BY closed_at DESC LIMIT $1
		) recent
		ORDER BY closed_at ASC`

	rows, err := l.db.QueryxContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query hunt results: %w", err)
	}
	defer rows.Close()

	var out []domain.HuntResult
	for rows.Next() {
		var (
			r           domain.HuntResult
			strategy    string
			holdSeconds float64
		)
		if err := rows.Scan(&r.HuntID, &r.Symbol, &strategy, &r.EntryPrice, &r.ExitPrice,
			&r.RealizedReturn, &r.ExpectedReturn, &holdSeconds, &r.ExitReason,
			&r.Success, &r.LearningValue, &r.ClosedAt); err != nil {
			return nil, fmt.Errorf("failed to scan hunt result: %w", err)
		}
		r.Strategy = domain.ParseStrategy(strategy)
		r.HoldDuration = time.Duration(holdSeconds * float64(time.Second))
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating hunt results: %w", err)
	}
	return out, nil
}

// SaveBook replaces the persisted open-book snapshot in one transaction.
func (l *Ledger) SaveBook(ctx context.Context, hunts []domain.ActiveHunt) error {
	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	tx, err := l.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin book transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM hunt_book`); err != nil {
		return fmt.Errorf("failed to clear hunt book: %w", err)
	}
	if len(hunts) > 0 {
		stmt, err := tx.PrepareContext(ctx,
			`INSERT INTO hunt_book (symbol, hunt, updated_at) VALUES ($1, $2, now())`)
		if err != nil {
			return fmt.Errorf("failed to prepare book insert: %w", err)
		}
		defer stmt.Close()

		for _, hunt := range hunts {
			payload, err := json.Marshal(hunt)
			if err != nil {
				return fmt.Errorf("failed to marshal hunt %s: %w", hunt.ID, err)
			}
			if _, err := stmt.ExecContext(ctx, hunt.Opportunity.Symbol, payload); err != nil {
				return fmt.Errorf("failed to insert hunt %s: %w", hunt.ID, err)
			}
		}
	}
	return tx.Commit()
}

// Close releases the connection pool.
func (l *Ledger) Close() error {
	return l.db.Close()
}
