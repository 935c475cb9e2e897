package report

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/Adithya-Monish-Kumar-K/frequent-sentences/pkg/resilience"
)

const schema = `
CREATE TABLE IF NOT EXISTS topk_runs (
	run_id       TEXT PRIMARY KEY,
	input        TEXT NOT NULL,
	capacity     INTEGER NOT NULL,
	lines        BIGINT NOT NULL,
	observed     BIGINT NOT NULL,
	distinct_items BIGINT NOT NULL,
	partitions   INTEGER NOT NULL,
	duration_ms  BIGINT NOT NULL,
	generated_at TIMESTAMPTZ NOT NULL
);
CREATE TABLE IF NOT EXISTS topk_items (
	run_id TEXT NOT NULL REFERENCES topk_runs(run_id) ON DELETE CASCADE,
	rank   INTEGER NOT NULL,
	item   TEXT NOT NULL,
	count  BIGINT NOT NULL,
	PRIMARY KEY (run_id, rank)
);`

// TxRunner runs fn inside a database transaction. postgres.Client
// implements it.
type TxRunner interface {
	InTx(ctx context.Context, fn func(tx *sql.Tx) error) error
}

// PostgresSink records the run in topk_runs and its ranked items in
// topk_items within one transaction.
type PostgresSink struct {
	db TxRunner
}

func NewPostgresSink(db TxRunner) *PostgresSink {
	return &PostgresSink{db: db}
}

func (s *PostgresSink) Name() string { return "postgres" }

// EnsureSchema creates the report tables if they do not exist.
func (s *PostgresSink) EnsureSchema(ctx context.Context) error {
	return s.db.InTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, schema); err != nil {
			return fmt.Errorf("creating report tables: %w", err)
		}
		return nil
	})
}

func (s *PostgresSink) Publish(ctx context.Context, r Report) error {
	return s.db.InTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO topk_runs (run_id, input, capacity, lines, observed, distinct_items, partitions, duration_ms, generated_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			r.RunID, r.Input, r.Capacity, r.Stats.Lines, r.Stats.Observed, r.Stats.Distinct,
			r.Stats.Partitions, r.Stats.Duration.Milliseconds(), r.GeneratedAt,
		)
		if err != nil {
			return classify(fmt.Errorf("inserting run %s: %w", r.RunID, err))
		}
		stmt, err := tx.PrepareContext(ctx,
			`INSERT INTO topk_items (run_id, rank, item, count) VALUES ($1, $2, $3, $4)`)
		if err != nil {
			return fmt.Errorf("preparing item insert: %w", err)
		}
		defer stmt.Close()
		for i, rec := range r.Items {
			if _, err := stmt.ExecContext(ctx, r.RunID, i+1, rec.Item, rec.Count); err != nil {
				return classify(fmt.Errorf("inserting item rank %d: %w", i+1, err))
			}
		}
		return nil
	})
}

// classify marks integrity violations, such as a run ID that was already
// recorded, as permanent so they are not retried.
func classify(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code.Class() == "23" {
		return resilience.Permanent(err)
	}
	return err
}
