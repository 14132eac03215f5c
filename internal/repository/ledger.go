package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type LedgerEntry struct {
	ID           int64
	AccountID    uuid.UUID
	Delta        decimal.Decimal
	BalanceAfter decimal.Decimal
	CreatedAt    time.Time
}

type AccountBalance struct {
	AccountID uuid.UUID
	Balance   decimal.Decimal
}

// LedgerRepository is the Postgres balance ledger. Each AdjustBalance is one
// statement, so it either applies fully or not at all.
type LedgerRepository struct {
	db *sql.DB
}

func NewLedgerRepository(db *sql.DB) *LedgerRepository {
	return &LedgerRepository{db: db}
}

func (r *LedgerRepository) AdjustBalance(ctx context.Context, accountID uuid.UUID, delta decimal.Decimal) (decimal.Decimal, error) {
	if delta.IsZero() {
		return r.balance(ctx, accountID)
	}

	var balance decimal.Decimal
	err := r.db.QueryRowContext(ctx,
		`WITH upsert AS (
			INSERT INTO ledger_balances (account_id, balance, updated_at)
			VALUES ($1, $2::numeric, now())
			ON CONFLICT (account_id) DO UPDATE
				SET balance = ledger_balances.balance + EXCLUDED.balance,
				    updated_at = now()
			RETURNING balance
		), entry AS (
			INSERT INTO ledger_entries (account_id, delta, balance_after)
			SELECT $1, $2::numeric, balance FROM upsert
		)
		SELECT balance FROM upsert`,
		accountID, delta,
	).Scan(&balance)
	if err != nil {
		return decimal.Zero, fmt.Errorf("AdjustBalance: %w", err)
	}
	return balance, nil
}

func (r *LedgerRepository) balance(ctx context.Context, accountID uuid.UUID) (decimal.Decimal, error) {
	var balance decimal.Decimal
	err := r.db.QueryRowContext(ctx,
		`SELECT COALESCE((SELECT balance FROM ledger_balances WHERE account_id = $1), 0)`,
		accountID,
	).Scan(&balance)
	if err != nil {
		return decimal.Zero, fmt.Errorf("balance: %w", err)
	}
	return balance, nil
}

func (r *LedgerRepository) GetEntries(ctx context.Context, accountID uuid.UUID, limit, offset int) ([]LedgerEntry, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, account_id, delta, balance_after, created_at FROM ledger_entries
		WHERE account_id = $1 ORDER BY id DESC LIMIT $2 OFFSET $3`,
		accountID, limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("GetEntries: %w", err)
	}
	defer rows.Close()

	var entries []LedgerEntry
	for rows.Next() {
		var e LedgerEntry
		if err := rows.Scan(&e.ID, &e.AccountID, &e.Delta, &e.BalanceAfter, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("GetEntries: scan: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("GetEntries: rows: %w", err)
	}
	return entries, nil
}

// TouchedSince lists accounts with at least one ledger entry after since.
func (r *LedgerRepository) TouchedSince(ctx context.Context, since time.Time, limit int) ([]uuid.UUID, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT account_id FROM ledger_entries
		WHERE created_at > $1
		GROUP BY account_id
		ORDER BY MAX(created_at) DESC
		LIMIT $2`,
		since, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("TouchedSince: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("TouchedSince: scan: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("TouchedSince: rows: %w", err)
	}
	return ids, nil
}
