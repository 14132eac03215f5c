package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type CommissionSource string

const (
	CommissionSourceTransfer   CommissionSource = "transfer"
	CommissionSourceWithdrawal CommissionSource = "withdrawal"
)

// CommissionEntry is derived from transfer and withdrawal rows; it is never
// stored.
type CommissionEntry struct {
	Source             CommissionSource
	ReferenceID        uuid.UUID
	BeneficiaryID      *uuid.UUID
	Amount             decimal.Decimal
	Fee                decimal.Decimal
	ActorCommission    decimal.Decimal
	PlatformCommission decimal.Decimal
	OccurredAt         time.Time
}

type CommissionSummary struct {
	ActorTotal    decimal.Decimal
	PlatformTotal decimal.Decimal
	Entries       []CommissionEntry
}
