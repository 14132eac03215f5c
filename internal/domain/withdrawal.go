package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// WithdrawalStatus is the persisted state of a request. A self-redemption is
// rejected per attempt and has no status of its own.
type WithdrawalStatus string

const (
	WithdrawalStatusPending      WithdrawalStatus = "pending"
	WithdrawalStatusAgentPending WithdrawalStatus = "agent_pending"
	WithdrawalStatusProcessing   WithdrawalStatus = "processing"
	WithdrawalStatusCompleted    WithdrawalStatus = "completed"
	WithdrawalStatusFailed       WithdrawalStatus = "failed"
	WithdrawalStatusExpired      WithdrawalStatus = "expired"
)

// IsRedeemable reports whether the request is still waiting for a redeemer.
func (s WithdrawalStatus) IsRedeemable() bool {
	return s == WithdrawalStatusPending || s == WithdrawalStatusAgentPending
}

// DefaultCodeTTL bounds how long a verification code can be redeemed.
const DefaultCodeTTL = 5 * time.Minute

type WithdrawalRequest struct {
	ID               uuid.UUID
	OwnerID          uuid.UUID
	InitiatedBy      *uuid.UUID
	RedeemedBy       *uuid.UUID
	RedeemerRole     *Role
	Amount           decimal.Decimal
	Fee              decimal.Decimal
	DestinationPhone string
	Status           WithdrawalStatus
	VerificationCode string
	CreatedAt        time.Time
	UpdatedAt        time.Time
	CompletedAt      *time.Time
}

// Expired reports whether the code is past its redemption window at now.
func (w *WithdrawalRequest) Expired(now time.Time, ttl time.Duration) bool {
	return now.Sub(w.CreatedAt) > ttl
}

// CodeVisible mirrors the owner-facing display rule: the code is shown only
// while the request is pending and inside its window.
func (w *WithdrawalRequest) CodeVisible(now time.Time, ttl time.Duration) bool {
	return w.Status == WithdrawalStatusPending && !w.Expired(now, ttl)
}
