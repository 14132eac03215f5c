package recorder

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/josh-kwaku/mobile-money/internal/domain"
	"github.com/josh-kwaku/mobile-money/internal/testutil"
)

type published struct {
	key  string
	body any
}

type capturePublisher struct {
	mu   sync.Mutex
	msgs []published
	err  error
}

func (p *capturePublisher) Publish(_ context.Context, key string, body any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.msgs = append(p.msgs, published{key: key, body: body})
	return p.err
}

func (p *capturePublisher) Close() {}

func TestRecord_TransferGoesToTransferTable(t *testing.T) {
	transfers := testutil.NewTransfers()
	history := testutil.NewHistory()
	pub := &capturePublisher{}
	r := New(transfers, history, pub)

	rec := &domain.TransferRecord{
		ID:          uuid.New(),
		OperationID: uuid.New(),
		SenderID:    uuid.New(),
		Amount:      decimal.NewFromInt(10000),
		Fee:         decimal.NewFromInt(100),
		Status:      domain.TransferStatusCompleted,
		CreatedAt:   time.Now().UTC(),
	}
	require.NoError(t, r.Record(context.Background(), domain.RecordKindTransfer, rec.OperationID, rec.SenderID, rec))

	assert.Len(t, transfers.All(), 1)
	assert.Empty(t, history.All())
	require.Len(t, pub.msgs, 1)
	assert.Equal(t, "transaction.transfer", pub.msgs[0].key)

	// Replays of the same operation are not errors.
	require.NoError(t, r.Record(context.Background(), domain.RecordKindTransfer, rec.OperationID, rec.SenderID, rec))
	assert.Len(t, transfers.All(), 1)
}

func TestRecord_OtherKindsGoToHistory(t *testing.T) {
	history := testutil.NewHistory()
	r := New(testutil.NewTransfers(), history, nil)
	opID, actor := uuid.New(), uuid.New()

	payload := map[string]string{"amount": "5000.00"}
	require.NoError(t, r.Record(context.Background(), domain.RecordKindWithdrawal, opID, actor, payload))

	entries := history.All()
	require.Len(t, entries, 1)
	assert.Equal(t, domain.RecordKindWithdrawal, entries[0].Kind)
	assert.Equal(t, opID, entries[0].OperationID)
	assert.Equal(t, actor, entries[0].ActorID)

	var got map[string]string
	require.NoError(t, json.Unmarshal(entries[0].Payload, &got))
	assert.Equal(t, "5000.00", got["amount"])
}

func TestRecord_StoreFailureIsReturned(t *testing.T) {
	history := testutil.NewHistory()
	history.CreateErr = errors.New("db down")
	pub := &capturePublisher{}
	r := New(testutil.NewTransfers(), history, pub)

	err := r.Record(context.Background(), domain.RecordKindDeposit, uuid.New(), uuid.New(), struct{}{})
	require.Error(t, err)
	assert.Empty(t, pub.msgs, "nothing published for an unrecorded operation")
}

func TestRecord_PublishFailureIsSwallowed(t *testing.T) {
	pub := &capturePublisher{err: errors.New("broker gone")}
	r := New(testutil.NewTransfers(), testutil.NewHistory(), pub)

	require.NoError(t, r.Record(context.Background(), domain.RecordKindDeposit, uuid.New(), uuid.New(), struct{}{}))
}

func TestRecord_TransferPayloadType(t *testing.T) {
	r := New(testutil.NewTransfers(), testutil.NewHistory(), nil)
	err := r.Record(context.Background(), domain.RecordKindTransfer, uuid.New(), uuid.New(), "not a record")
	require.ErrorIs(t, err, domain.ErrInvalidRequest)
}
