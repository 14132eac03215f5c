package saga

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const compensationPrefix = "compensate:"

// JournalEntry records one ledger mutation that is known to have been applied
// for an operation.
type JournalEntry struct {
	Step         string
	AccountID    uuid.UUID
	Delta        decimal.Decimal
	BalanceAfter decimal.Decimal
	CreatedAt    time.Time
}

func (e JournalEntry) isCompensation() bool {
	return strings.HasPrefix(e.Step, compensationPrefix)
}

type Journal interface {
	Load(ctx context.Context, operationID uuid.UUID) ([]JournalEntry, error)
	Append(ctx context.Context, operationID uuid.UUID, kind string, entry JournalEntry) error
}

// MemoryJournal keeps entries in process. Used by tests and the mock ledger.
type MemoryJournal struct {
	mu      sync.Mutex
	entries map[uuid.UUID][]JournalEntry
}

func NewMemoryJournal() *MemoryJournal {
	return &MemoryJournal{entries: make(map[uuid.UUID][]JournalEntry)}
}

func (j *MemoryJournal) Load(_ context.Context, operationID uuid.UUID) ([]JournalEntry, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	out := make([]JournalEntry, len(j.entries[operationID]))
	copy(out, j.entries[operationID])
	return out, nil
}

func (j *MemoryJournal) Append(_ context.Context, operationID uuid.UUID, _ string, entry JournalEntry) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	for _, e := range j.entries[operationID] {
		if e.Step == entry.Step {
			return nil
		}
	}
	j.entries[operationID] = append(j.entries[operationID], entry)
	return nil
}
