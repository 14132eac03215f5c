package recorder

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/josh-kwaku/mobile-money/internal/domain"
	"github.com/josh-kwaku/mobile-money/internal/events"
	"github.com/josh-kwaku/mobile-money/internal/logging"
)

type transferStore interface {
	Create(ctx context.Context, t *domain.TransferRecord) error
}

type historyStore interface {
	Create(ctx context.Context, e *domain.HistoryEntry) error
}

// Event is the message published for every recorded operation.
type Event struct {
	Kind        domain.RecordKind `json:"kind"`
	OperationID uuid.UUID         `json:"operation_id"`
	ActorID     uuid.UUID         `json:"actor_id"`
	OccurredAt  time.Time         `json:"occurred_at"`
	Payload     any               `json:"payload"`
}

// Recorder writes transaction history. Transfers go to their own table,
// every other kind to the generic history table. Each record is then
// published as an event; publishing never fails a Record call.
type Recorder struct {
	transfers transferStore
	history   historyStore
	publisher events.Publisher
}

func New(transfers transferStore, history historyStore, publisher events.Publisher) *Recorder {
	if publisher == nil {
		publisher = events.Noop{}
	}
	return &Recorder{transfers: transfers, history: history, publisher: publisher}
}

// Record is idempotent per (operationID, kind).
func (r *Recorder) Record(ctx context.Context, kind domain.RecordKind, operationID, actorID uuid.UUID, payload any) error {
	now := time.Now().UTC()

	if kind == domain.RecordKindTransfer {
		t, ok := payload.(*domain.TransferRecord)
		if !ok {
			return fmt.Errorf("Record: transfer payload is %T: %w", payload, domain.ErrInvalidRequest)
		}
		if err := r.transfers.Create(ctx, t); err != nil && !errors.Is(err, domain.ErrDuplicateOperation) {
			return fmt.Errorf("Record: %w", err)
		}
	} else {
		body, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("Record: marshal: %w", err)
		}
		err = r.history.Create(ctx, &domain.HistoryEntry{
			ID:          uuid.New(),
			OperationID: operationID,
			Kind:        kind,
			ActorID:     actorID,
			Payload:     body,
			CreatedAt:   now,
		})
		if err != nil {
			return fmt.Errorf("Record: %w", err)
		}
	}

	ev := Event{Kind: kind, OperationID: operationID, ActorID: actorID, OccurredAt: now, Payload: payload}
	if err := r.publisher.Publish(ctx, "transaction."+string(kind), ev); err != nil {
		logging.FromContext(ctx).Warn("transaction event publish failed",
			"operation_id", operationID,
			"kind", kind,
			"error", err,
		)
	}
	return nil
}
