package deposit_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/josh-kwaku/mobile-money/internal/directory"
	"github.com/josh-kwaku/mobile-money/internal/domain"
	"github.com/josh-kwaku/mobile-money/internal/fee"
	"github.com/josh-kwaku/mobile-money/internal/ledger"
	"github.com/josh-kwaku/mobile-money/internal/recorder"
	"github.com/josh-kwaku/mobile-money/internal/saga"
	"github.com/josh-kwaku/mobile-money/internal/service/deposit"
	"github.com/josh-kwaku/mobile-money/internal/testutil"
)

var platformID = uuid.MustParse("00000000-0000-0000-0000-000000000001")

type itemCounter struct {
	succeeded int
	failed    int
}

func (c *itemCounter) BatchItem(success bool) {
	if success {
		c.succeeded++
	} else {
		c.failed++
	}
}

type fixture struct {
	svc      *deposit.Service
	ledger   *ledger.Memory
	accounts *testutil.Accounts
	history  *testutil.History
	items    *itemCounter
}

func newFixture(t *testing.T, maxItems int, seed ...domain.Account) *fixture {
	t.Helper()
	f := &fixture{
		ledger:   ledger.NewMemory(),
		accounts: testutil.NewAccounts(seed...),
		history:  testutil.NewHistory(),
		items:    &itemCounter{},
	}
	f.svc = deposit.NewService(
		directory.New(f.accounts, f.ledger),
		recorder.New(testutil.NewTransfers(), f.history, nil),
		fee.NewCalculator(),
		saga.NewRunner(f.ledger, saga.NewMemoryJournal()),
		f.items,
		deposit.Config{PlatformAccount: platformID, MaxBatchItems: maxItems},
	)
	return f
}

func newAccount(phone string, role domain.Role) domain.Account {
	return domain.Account{
		ID:        uuid.New(),
		Phone:     phone,
		Country:   "Congo Brazzaville",
		Role:      role,
		CreatedAt: time.Now().UTC(),
	}
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestDeposit_ProvisionsUnknownClient(t *testing.T) {
	agent := newAccount("+242062222222", domain.RoleAgent)
	f := newFixture(t, 0, agent)
	f.ledger.Set(agent.ID, dec("10000"))
	f.ledger.Set(platformID, dec("1000"))
	ctx := context.Background()

	res, err := f.svc.Deposit(ctx, agent.Actor(), deposit.Request{
		IdempotencyKey: "dep-1",
		ClientPhone:    "+242 06 987 6543",
		Amount:         dec("5000"),
	})
	require.NoError(t, err)

	assert.True(t, res.ClientProvisioned)
	assert.True(t, res.CommissionPaid)
	assert.Equal(t, saga.StateRecorded, res.State)
	assert.Equal(t, 2, f.accounts.Len())
	assert.Equal(t, "+242069876543", res.Record.ClientPhone)

	assert.True(t, f.ledger.Balance(res.Record.ClientID).Equal(dec("5000")))
	assert.True(t, f.ledger.Balance(agent.ID).Equal(dec("5025")))
	assert.True(t, f.ledger.Balance(platformID).Equal(dec("975")))
	assert.True(t, res.Record.AgentBalance.Equal(dec("5025")))

	entries := f.history.All()
	require.Len(t, entries, 1)
	assert.Equal(t, domain.RecordKindDeposit, entries[0].Kind)

	client, err := f.accounts.GetByID(ctx, res.Record.ClientID)
	require.NoError(t, err)
	assert.Equal(t, "Congo Brazzaville", client.Country)
	assert.True(t, client.Balance.Equal(dec("5000")))
}

func TestDeposit_RetryDoesNotPayTwice(t *testing.T) {
	agent := newAccount("+242062222222", domain.RoleAgent)
	f := newFixture(t, 0, agent)
	f.ledger.Set(agent.ID, dec("10000"))
	f.ledger.Set(platformID, dec("1000"))
	ctx := context.Background()
	req := deposit.Request{IdempotencyKey: "dep-1", ClientPhone: "+242069876543", Amount: dec("5000")}

	first, err := f.svc.Deposit(ctx, agent.Actor(), req)
	require.NoError(t, err)
	mutations := len(f.ledger.Mutations())

	second, err := f.svc.Deposit(ctx, agent.Actor(), req)
	require.NoError(t, err)

	assert.Equal(t, first.Record.ClientID, second.Record.ClientID)
	assert.False(t, second.ClientProvisioned)
	assert.Len(t, f.ledger.Mutations(), mutations)
	assert.True(t, f.ledger.Balance(agent.ID).Equal(dec("5025")))
	assert.Len(t, f.history.All(), 1)
}

func TestDeposit_Rejections(t *testing.T) {
	agent := newAccount("+242062222222", domain.RoleAgent)
	user := newAccount("+242061111111", domain.RoleUser)
	bannedClient := newAccount("+242063333333", domain.RoleUser)
	bannedClient.Banned = true

	tests := []struct {
		name    string
		actor   domain.Actor
		phone   string
		amount  string
		wantErr error
	}{
		{name: "user cannot deposit", actor: user.Actor(), phone: "+242069876543", amount: "100", wantErr: domain.ErrRoleNotPermitted},
		{name: "zero amount", actor: agent.Actor(), phone: "+242069876543", amount: "0", wantErr: domain.ErrInvalidAmount},
		{name: "sub-cent amount", actor: agent.Actor(), phone: "+242069876543", amount: "1.005", wantErr: domain.ErrInvalidAmount},
		{name: "more than float", actor: agent.Actor(), phone: "+242061111111", amount: "10000.01", wantErr: domain.ErrInsufficientFunds},
		{name: "to self", actor: agent.Actor(), phone: "062222222", amount: "100", wantErr: domain.ErrSelfTransfer},
		{name: "banned client", actor: agent.Actor(), phone: "+242063333333", amount: "100", wantErr: domain.ErrAccountBanned},
		{name: "empty phone", actor: agent.Actor(), phone: " ", amount: "100", wantErr: domain.ErrInvalidRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, 0, agent, user, bannedClient)
			f.ledger.Set(agent.ID, dec("10000"))

			_, err := f.svc.Deposit(context.Background(), tt.actor, deposit.Request{ClientPhone: tt.phone, Amount: dec(tt.amount)})
			require.ErrorIs(t, err, tt.wantErr)
			assert.Empty(t, f.ledger.Mutations())
		})
	}
}

func TestDeposit_CreditFailureCompensates(t *testing.T) {
	agent := newAccount("+242062222222", domain.RoleAgent)
	client := newAccount("+242061111111", domain.RoleUser)
	f := newFixture(t, 0, agent, client)
	f.ledger.Set(agent.ID, dec("10000"))
	f.ledger.FailWhen(func(id uuid.UUID, _ decimal.Decimal) error {
		if id == client.ID {
			return errors.New("ledger timeout")
		}
		return nil
	})

	_, err := f.svc.Deposit(context.Background(), agent.Actor(), deposit.Request{ClientPhone: client.Phone, Amount: dec("5000")})
	require.ErrorIs(t, err, domain.ErrLedgerMutationFailed)

	assert.True(t, f.ledger.Balance(agent.ID).Equal(dec("10000")))
	assert.True(t, f.ledger.Balance(client.ID).IsZero())
	assert.Empty(t, f.history.All())
}

func TestDeposit_CommissionFailureKeepsDeposit(t *testing.T) {
	agent := newAccount("+242062222222", domain.RoleAgent)
	client := newAccount("+242061111111", domain.RoleUser)
	f := newFixture(t, 0, agent, client)
	f.ledger.Set(agent.ID, dec("10000"))
	f.ledger.Set(platformID, dec("1000"))
	f.ledger.FailWhen(func(id uuid.UUID, _ decimal.Decimal) error {
		if id == platformID {
			return errors.New("platform ledger unavailable")
		}
		return nil
	})

	res, err := f.svc.Deposit(context.Background(), agent.Actor(), deposit.Request{ClientPhone: client.Phone, Amount: dec("5000")})
	require.NoError(t, err)

	assert.False(t, res.CommissionPaid)
	assert.True(t, f.ledger.Balance(client.ID).Equal(dec("5000")))
	assert.True(t, f.ledger.Balance(agent.ID).Equal(dec("5000")))
	assert.True(t, f.ledger.Balance(platformID).Equal(dec("1000")))
	assert.Len(t, f.history.All(), 1)
}
