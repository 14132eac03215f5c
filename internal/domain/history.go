package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type RecordKind string

const (
	RecordKindTransfer     RecordKind = "transfer"
	RecordKindWithdrawal   RecordKind = "withdrawal"
	RecordKindDeposit      RecordKind = "deposit"
	RecordKindBatchDeposit RecordKind = "batch_deposit"
	RecordKindClaim        RecordKind = "claim"
)

// HistoryEntry is a free-form transaction history row. Transfer records have
// their own table; every other kind lands here.
type HistoryEntry struct {
	ID          uuid.UUID
	OperationID uuid.UUID
	Kind        RecordKind
	ActorID     uuid.UUID
	Payload     json.RawMessage
	CreatedAt   time.Time
}
