package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/josh-kwaku/mobile-money/internal/domain"
	"github.com/shopspring/decimal"
)

const accountColumns = `id, phone, display_name, country, role, balance,
	pin_hash, banned, created_at`

type AccountRepository struct {
	db *sql.DB
}

func NewAccountRepository(db *sql.DB) *AccountRepository {
	return &AccountRepository{db: db}
}

func (r *AccountRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Account, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE id = $1`, id,
	)
	a, err := scanAccount(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("GetByID: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("GetByID: %w", err)
	}
	return a, nil
}

// GetByPhone matches the normalized phone exactly.
func (r *AccountRepository) GetByPhone(ctx context.Context, phone string) (*domain.Account, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE phone = $1`, phone,
	)
	a, err := scanAccount(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("GetByPhone: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("GetByPhone: %w", err)
	}
	return a, nil
}

// ListByPhoneSuffix returns every account whose phone ends in suffix. limit
// bounds the scan; callers only need to know whether there is more than one.
func (r *AccountRepository) ListByPhoneSuffix(ctx context.Context, suffix string, limit int) ([]domain.Account, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+accountColumns+` FROM accounts
		WHERE phone_suffix = $1 ORDER BY created_at LIMIT $2`,
		suffix, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("ListByPhoneSuffix: %w", err)
	}
	defer rows.Close()

	var accounts []domain.Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("ListByPhoneSuffix: scan: %w", err)
		}
		accounts = append(accounts, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ListByPhoneSuffix: rows: %w", err)
	}
	return accounts, nil
}

// CreateIfAbsent inserts the account unless the id or phone already exists.
// It reports whether a row was written.
func (r *AccountRepository) CreateIfAbsent(ctx context.Context, a *domain.Account) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO accounts (
			id, phone, phone_suffix, display_name, country, role, balance,
			pin_hash, banned, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $10)
		ON CONFLICT DO NOTHING`,
		a.ID, a.Phone, domain.PhoneSuffix(a.Phone), a.DisplayName, a.Country, a.Role,
		a.Balance, a.PinHash, a.Banned, a.CreatedAt,
	)
	if err != nil {
		return false, fmt.Errorf("CreateIfAbsent: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("CreateIfAbsent: rows affected: %w", err)
	}
	return n == 1, nil
}

// UpdateCachedBalance stores the ledger's balance on the account row. The
// column is a display cache; the ledger stays authoritative.
func (r *AccountRepository) UpdateCachedBalance(ctx context.Context, id uuid.UUID, balance decimal.Decimal) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE accounts SET balance = $1, updated_at = now() WHERE id = $2`,
		balance, id,
	)
	if err != nil {
		return fmt.Errorf("UpdateCachedBalance: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("UpdateCachedBalance: rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("UpdateCachedBalance: %w", domain.ErrNotFound)
	}
	return nil
}

func (r *AccountRepository) SetBanned(ctx context.Context, id uuid.UUID, banned bool) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE accounts SET banned = $1, updated_at = now() WHERE id = $2`,
		banned, id,
	)
	if err != nil {
		return fmt.Errorf("SetBanned: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("SetBanned: rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("SetBanned: %w", domain.ErrNotFound)
	}
	return nil
}

func scanAccount(s scanner) (*domain.Account, error) {
	var a domain.Account
	err := s.Scan(
		&a.ID, &a.Phone, &a.DisplayName, &a.Country, &a.Role, &a.Balance,
		&a.PinHash, &a.Banned, &a.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &a, nil
}
