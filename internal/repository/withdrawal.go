package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/josh-kwaku/mobile-money/internal/domain"
	"github.com/shopspring/decimal"
)

const withdrawalColumns = `id, owner_id, initiated_by, redeemed_by, redeemer_role,
	amount, fee, destination_phone, status, verification_code,
	created_at, updated_at, completed_at`

type WithdrawalRepository struct {
	db *sql.DB
}

func NewWithdrawalRepository(db *sql.DB) *WithdrawalRepository {
	return &WithdrawalRepository{db: db}
}

// Create fails with ErrDuplicateCode when another live request holds the
// same verification code.
func (r *WithdrawalRepository) Create(ctx context.Context, w *domain.WithdrawalRequest) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO withdrawal_requests (
			id, owner_id, initiated_by, redeemed_by, redeemer_role,
			amount, fee, destination_phone, status, verification_code,
			created_at, updated_at, completed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		w.ID, w.OwnerID, w.InitiatedBy, w.RedeemedBy, w.RedeemerRole,
		w.Amount, w.Fee, w.DestinationPhone, w.Status, w.VerificationCode,
		w.CreatedAt, w.UpdatedAt, w.CompletedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("Create: %w", domain.ErrDuplicateCode)
		}
		return fmt.Errorf("Create: %w", err)
	}
	return nil
}

func (r *WithdrawalRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.WithdrawalRequest, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+withdrawalColumns+` FROM withdrawal_requests WHERE id = $1`, id,
	)
	w, err := scanWithdrawal(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("GetByID: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("GetByID: %w", err)
	}
	return w, nil
}

// GetByCode returns the live request holding code if there is one, otherwise
// the most recent request that ever used it.
func (r *WithdrawalRepository) GetByCode(ctx context.Context, code string) (*domain.WithdrawalRequest, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+withdrawalColumns+` FROM withdrawal_requests
		WHERE verification_code = $1
		ORDER BY (status IN ('pending', 'agent_pending')) DESC, created_at DESC
		LIMIT 1`,
		code,
	)
	w, err := scanWithdrawal(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("GetByCode: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("GetByCode: %w", err)
	}
	return w, nil
}

func (r *WithdrawalRepository) ListByOwner(ctx context.Context, ownerID uuid.UUID, limit, offset int) ([]domain.WithdrawalRequest, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+withdrawalColumns+` FROM withdrawal_requests
		WHERE owner_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`,
		ownerID, limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("ListByOwner: %w", err)
	}
	return collectWithdrawals(rows, "ListByOwner")
}

func (r *WithdrawalRepository) ListCompletedSince(ctx context.Context, since time.Time) ([]domain.WithdrawalRequest, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+withdrawalColumns+` FROM withdrawal_requests
		WHERE status = 'completed' AND completed_at >= $1
		ORDER BY completed_at`,
		since,
	)
	if err != nil {
		return nil, fmt.Errorf("ListCompletedSince: %w", err)
	}
	return collectWithdrawals(rows, "ListCompletedSince")
}

// ListProcessingBefore returns requests claimed by a redeemer before cutoff
// that never reached a final status.
func (r *WithdrawalRepository) ListProcessingBefore(ctx context.Context, cutoff time.Time, limit int) ([]domain.WithdrawalRequest, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+withdrawalColumns+` FROM withdrawal_requests
		WHERE status = 'processing' AND updated_at < $1
		ORDER BY updated_at LIMIT $2`,
		cutoff, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("ListProcessingBefore: %w", err)
	}
	return collectWithdrawals(rows, "ListProcessingBefore")
}

// Claim is the redemption gate: it moves a redeemable request to processing
// for exactly one redeemer. Losers get ErrAlreadyRedeemed.
func (r *WithdrawalRepository) Claim(ctx context.Context, id, redeemerID uuid.UUID, role domain.Role, fee decimal.Decimal) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE withdrawal_requests
		SET status = 'processing', redeemed_by = $2, redeemer_role = $3, fee = $4, updated_at = now()
		WHERE id = $1 AND status IN ('pending', 'agent_pending')`,
		id, redeemerID, role, fee,
	)
	if err != nil {
		return fmt.Errorf("Claim: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("Claim: rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("Claim: %w", domain.ErrAlreadyRedeemed)
	}
	return nil
}

// Finish moves a processing request to completed or failed.
func (r *WithdrawalRepository) Finish(ctx context.Context, id uuid.UUID, status domain.WithdrawalStatus, at time.Time) error {
	var completedAt *time.Time
	if status == domain.WithdrawalStatusCompleted {
		completedAt = &at
	}
	res, err := r.db.ExecContext(ctx,
		`UPDATE withdrawal_requests
		SET status = $2, completed_at = $3, updated_at = $4
		WHERE id = $1 AND status = 'processing'`,
		id, status, completedAt, at,
	)
	if err != nil {
		return fmt.Errorf("Finish: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("Finish: rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("Finish: %w", domain.ErrAlreadyRedeemed)
	}
	return nil
}

// ExpireBefore marks redeemable requests created before cutoff as expired.
func (r *WithdrawalRepository) ExpireBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE withdrawal_requests SET status = 'expired', updated_at = now()
		WHERE status IN ('pending', 'agent_pending') AND created_at < $1`,
		cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("ExpireBefore: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("ExpireBefore: rows affected: %w", err)
	}
	return n, nil
}

func collectWithdrawals(rows *sql.Rows, op string) ([]domain.WithdrawalRequest, error) {
	defer rows.Close()

	var out []domain.WithdrawalRequest
	for rows.Next() {
		w, err := scanWithdrawal(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: scan: %w", op, err)
		}
		out = append(out, *w)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: rows: %w", op, err)
	}
	return out, nil
}

func scanWithdrawal(s scanner) (*domain.WithdrawalRequest, error) {
	var w domain.WithdrawalRequest
	var initiatedBy, redeemedBy uuid.NullUUID
	var redeemerRole sql.NullString
	var completedAt sql.NullTime

	err := s.Scan(
		&w.ID, &w.OwnerID, &initiatedBy, &redeemedBy, &redeemerRole,
		&w.Amount, &w.Fee, &w.DestinationPhone, &w.Status, &w.VerificationCode,
		&w.CreatedAt, &w.UpdatedAt, &completedAt,
	)
	if err != nil {
		return nil, err
	}

	if initiatedBy.Valid {
		w.InitiatedBy = &initiatedBy.UUID
	}
	if redeemedBy.Valid {
		w.RedeemedBy = &redeemedBy.UUID
	}
	if redeemerRole.Valid {
		role := domain.Role(redeemerRole.String)
		w.RedeemerRole = &role
	}
	if completedAt.Valid {
		w.CompletedAt = &completedAt.Time
	}
	return &w, nil
}
