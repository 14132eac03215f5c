package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/josh-kwaku/mobile-money/internal/domain"
)

const transferColumns = `id, operation_id, sender_id, recipient_id, recipient_name,
	recipient_phone, recipient_country, amount, fee, currency, status,
	claim_code, deleted, created_at, updated_at`

type TransferRepository struct {
	db *sql.DB
}

func NewTransferRepository(db *sql.DB) *TransferRepository {
	return &TransferRepository{db: db}
}

func (r *TransferRepository) Create(ctx context.Context, t *domain.TransferRecord) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO transfers (
			id, operation_id, sender_id, recipient_id, recipient_name,
			recipient_phone, recipient_country, amount, fee, currency, status,
			claim_code, deleted, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
		t.ID, t.OperationID, t.SenderID, t.RecipientID, t.RecipientName,
		t.RecipientPhone, t.RecipientCountry, t.Amount, t.Fee, t.Currency, t.Status,
		t.ClaimCode, t.Deleted, t.CreatedAt, t.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			if violatedConstraint(err) == "transfers_claim_code_key" {
				return fmt.Errorf("Create: %w", domain.ErrDuplicateCode)
			}
			return fmt.Errorf("Create: %w", domain.ErrDuplicateOperation)
		}
		return fmt.Errorf("Create: %w", err)
	}
	return nil
}

func (r *TransferRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.TransferRecord, error) {
	return r.getOne(ctx, "GetByID", `id = $1`, id)
}

func (r *TransferRepository) GetByOperationID(ctx context.Context, operationID uuid.UUID) (*domain.TransferRecord, error) {
	return r.getOne(ctx, "GetByOperationID", `operation_id = $1`, operationID)
}

func (r *TransferRepository) GetByClaimCode(ctx context.Context, code string) (*domain.TransferRecord, error) {
	return r.getOne(ctx, "GetByClaimCode", `claim_code = $1`, code)
}

func (r *TransferRepository) getOne(ctx context.Context, op, where string, arg any) (*domain.TransferRecord, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+transferColumns+` FROM transfers WHERE `+where, arg,
	)
	t, err := scanTransfer(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return t, nil
}

// ListForAccount returns non-deleted transfers the account sent or received,
// newest first.
func (r *TransferRepository) ListForAccount(ctx context.Context, accountID uuid.UUID, limit, offset int) ([]domain.TransferRecord, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+transferColumns+` FROM transfers
		WHERE (sender_id = $1 OR recipient_id = $1) AND NOT deleted
		ORDER BY created_at DESC LIMIT $2 OFFSET $3`,
		accountID, limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("ListForAccount: %w", err)
	}
	return collectTransfers(rows, "ListForAccount")
}

// ListSettledSince returns transfers that moved money after since, for
// commission reporting.
func (r *TransferRepository) ListSettledSince(ctx context.Context, since time.Time) ([]domain.TransferRecord, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+transferColumns+` FROM transfers
		WHERE status IN ('completed', 'claimed') AND created_at >= $1
		ORDER BY created_at`,
		since,
	)
	if err != nil {
		return nil, fmt.Errorf("ListSettledSince: %w", err)
	}
	return collectTransfers(rows, "ListSettledSince")
}

func (r *TransferRepository) SoftDelete(ctx context.Context, id, senderID uuid.UUID) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE transfers SET deleted = true, updated_at = now()
		WHERE id = $1 AND sender_id = $2 AND NOT deleted`,
		id, senderID,
	)
	if err != nil {
		return fmt.Errorf("SoftDelete: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("SoftDelete: rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("SoftDelete: %w", domain.ErrNotFound)
	}
	return nil
}

// MarkClaimed moves a pending-claim transfer to claimed for recipientID. Only
// one caller can win; the rest get ErrAlreadyRedeemed.
func (r *TransferRepository) MarkClaimed(ctx context.Context, id, recipientID uuid.UUID, recipientName string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE transfers
		SET status = 'claimed', recipient_id = $2, recipient_name = $3, updated_at = now()
		WHERE id = $1 AND status = 'pending_claim'`,
		id, recipientID, recipientName,
	)
	if err != nil {
		return fmt.Errorf("MarkClaimed: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("MarkClaimed: rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("MarkClaimed: %w", domain.ErrAlreadyRedeemed)
	}
	return nil
}

// ReleaseClaim undoes MarkClaimed after the claim's money movement failed.
func (r *TransferRepository) ReleaseClaim(ctx context.Context, id, recipientID uuid.UUID) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE transfers
		SET status = 'pending_claim', recipient_id = NULL, updated_at = now()
		WHERE id = $1 AND status = 'claimed' AND recipient_id = $2`,
		id, recipientID,
	)
	if err != nil {
		return fmt.Errorf("ReleaseClaim: %w", err)
	}
	return nil
}

func collectTransfers(rows *sql.Rows, op string) ([]domain.TransferRecord, error) {
	defer rows.Close()

	var out []domain.TransferRecord
	for rows.Next() {
		t, err := scanTransfer(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: scan: %w", op, err)
		}
		out = append(out, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: rows: %w", op, err)
	}
	return out, nil
}

func scanTransfer(s scanner) (*domain.TransferRecord, error) {
	var t domain.TransferRecord
	var recipientID uuid.NullUUID
	var claimCode sql.NullString

	err := s.Scan(
		&t.ID, &t.OperationID, &t.SenderID, &recipientID, &t.RecipientName,
		&t.RecipientPhone, &t.RecipientCountry, &t.Amount, &t.Fee, &t.Currency, &t.Status,
		&claimCode, &t.Deleted, &t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if recipientID.Valid {
		t.RecipientID = &recipientID.UUID
	}
	if claimCode.Valid {
		t.ClaimCode = &claimCode.String
	}
	return &t, nil
}
