package ledger

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Call is one AdjustBalance invocation seen by Memory, successful or not.
type Call struct {
	AccountID uuid.UUID
	Delta     decimal.Decimal
	Err       error
}

// Memory is an in-process ledger. Unknown accounts start at zero. It backs
// the mock ledger server and service tests.
type Memory struct {
	mu       sync.Mutex
	balances map[uuid.UUID]decimal.Decimal
	calls    []Call
	failWhen func(accountID uuid.UUID, delta decimal.Decimal) error
}

func NewMemory() *Memory {
	return &Memory{balances: make(map[uuid.UUID]decimal.Decimal)}
}

func (m *Memory) AdjustBalance(ctx context.Context, accountID uuid.UUID, delta decimal.Decimal) (decimal.Decimal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := ctx.Err(); err != nil {
		m.calls = append(m.calls, Call{AccountID: accountID, Delta: delta, Err: err})
		return decimal.Zero, err
	}
	if m.failWhen != nil {
		if err := m.failWhen(accountID, delta); err != nil {
			m.calls = append(m.calls, Call{AccountID: accountID, Delta: delta, Err: err})
			return decimal.Zero, err
		}
	}

	next := m.balances[accountID].Add(delta)
	m.balances[accountID] = next
	m.calls = append(m.calls, Call{AccountID: accountID, Delta: delta})
	return next, nil
}

// Set overwrites a balance without recording a call.
func (m *Memory) Set(accountID uuid.UUID, balance decimal.Decimal) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.balances[accountID] = balance
}

func (m *Memory) Balance(accountID uuid.UUID) decimal.Decimal {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.balances[accountID]
}

// FailWhen installs a fault injector; a non-nil error from fn fails the call
// with no effect. Pass nil to clear it.
func (m *Memory) FailWhen(fn func(accountID uuid.UUID, delta decimal.Decimal) error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failWhen = fn
}

func (m *Memory) Calls() []Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Call, len(m.calls))
	copy(out, m.calls)
	return out
}

// Mutations returns the successful non-zero calls.
func (m *Memory) Mutations() []Call {
	var out []Call
	for _, c := range m.Calls() {
		if c.Err == nil && !c.Delta.IsZero() {
			out = append(out, c)
		}
	}
	return out
}
