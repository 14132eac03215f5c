package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type TransferStatus string

const (
	TransferStatusCompleted    TransferStatus = "completed"
	TransferStatusPendingClaim TransferStatus = "pending_claim"
	TransferStatusClaimed      TransferStatus = "claimed"
)

type TransferRecord struct {
	ID               uuid.UUID
	OperationID      uuid.UUID
	SenderID         uuid.UUID
	RecipientID      *uuid.UUID
	RecipientName    string
	RecipientPhone   string
	RecipientCountry string
	Amount           decimal.Decimal
	Fee              decimal.Decimal
	Currency         string
	Status           TransferStatus
	ClaimCode        *string
	Deleted          bool
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Total is what the sender is debited.
func (t *TransferRecord) Total() decimal.Decimal {
	return t.Amount.Add(t.Fee)
}
