package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/josh-kwaku/mobile-money/internal/saga"
)

// SagaStepRepository is the Postgres saga journal.
type SagaStepRepository struct {
	db *sql.DB
}

func NewSagaStepRepository(db *sql.DB) *SagaStepRepository {
	return &SagaStepRepository{db: db}
}

func (r *SagaStepRepository) Load(ctx context.Context, operationID uuid.UUID) ([]saga.JournalEntry, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT step, account_id, delta, balance_after, created_at FROM saga_steps
		WHERE operation_id = $1 ORDER BY created_at, step`,
		operationID,
	)
	if err != nil {
		return nil, fmt.Errorf("Load: %w", err)
	}
	defer rows.Close()

	var entries []saga.JournalEntry
	for rows.Next() {
		var e saga.JournalEntry
		if err := rows.Scan(&e.Step, &e.AccountID, &e.Delta, &e.BalanceAfter, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("Load: scan: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("Load: rows: %w", err)
	}
	return entries, nil
}

func (r *SagaStepRepository) Append(ctx context.Context, operationID uuid.UUID, kind string, e saga.JournalEntry) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO saga_steps (operation_id, step, kind, account_id, delta, balance_after, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (operation_id, step) DO NOTHING`,
		operationID, e.Step, kind, e.AccountID, e.Delta, e.BalanceAfter, e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("Append: %w", err)
	}
	return nil
}

type StuckOperation struct {
	OperationID uuid.UUID
	Kind        string
	DebitedAt   time.Time
}

// ListStuck finds operations that debited before cutoff but have neither a
// credit nor a compensation journaled: money that left one account and has
// not arrived anywhere.
func (r *SagaStepRepository) ListStuck(ctx context.Context, cutoff time.Time, limit int) ([]StuckOperation, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT operation_id, kind, MIN(created_at)
		FROM saga_steps
		GROUP BY operation_id, kind
		HAVING bool_or(step LIKE 'debit%')
			AND NOT bool_or(step LIKE 'credit%')
			AND NOT bool_or(step LIKE 'compensate:%')
			AND MAX(created_at) < $1
		ORDER BY MIN(created_at)
		LIMIT $2`,
		cutoff, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("ListStuck: %w", err)
	}
	defer rows.Close()

	var out []StuckOperation
	for rows.Next() {
		var s StuckOperation
		if err := rows.Scan(&s.OperationID, &s.Kind, &s.DebitedAt); err != nil {
			return nil, fmt.Errorf("ListStuck: scan: %w", err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ListStuck: rows: %w", err)
	}
	return out, nil
}
