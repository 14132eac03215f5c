package repository_test

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/josh-kwaku/mobile-money/internal/domain"
	"github.com/josh-kwaku/mobile-money/internal/repository"
	"github.com/josh-kwaku/mobile-money/internal/saga"
	"github.com/josh-kwaku/mobile-money/internal/testutil"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestLedger_AdjustBalance(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ledger := repository.NewLedgerRepository(db)
	ctx := context.Background()
	acct := testutil.SeedAccount(t, db, "+242 06 100 0001", domain.RoleUser, "Congo Brazzaville")

	b, err := ledger.AdjustBalance(ctx, acct.ID, dec("100.50"))
	require.NoError(t, err)
	assert.True(t, b.Equal(dec("100.50")))

	b, err = ledger.AdjustBalance(ctx, acct.ID, dec("-40.25"))
	require.NoError(t, err)
	assert.True(t, b.Equal(dec("60.25")))

	// A zero delta reads without writing an entry.
	b, err = ledger.AdjustBalance(ctx, acct.ID, decimal.Zero)
	require.NoError(t, err)
	assert.True(t, b.Equal(dec("60.25")))
	assert.Equal(t, 2, testutil.CountLedgerEntries(t, db, acct.ID))

	entries, err := ledger.GetEntries(ctx, acct.ID, 10, 0)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.True(t, entries[0].BalanceAfter.Equal(dec("60.25")))

	touched, err := ledger.TouchedSince(ctx, time.Now().Add(-time.Minute), 10)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{acct.ID}, touched)
}

func TestLedger_ConcurrentAdjustmentsSerialize(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ledger := repository.NewLedgerRepository(db)
	ctx := context.Background()
	acct := testutil.SeedAccount(t, db, "+242 06 100 0002", domain.RoleAgent, "Congo Brazzaville")
	testutil.SeedBalance(t, db, acct.ID, dec("1000"))

	var wg sync.WaitGroup
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := ledger.AdjustBalance(ctx, acct.ID, dec("-10"))
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.True(t, testutil.LedgerBalance(t, db, acct.ID).Equal(dec("800")))
}

func TestAccount_PhoneLookups(t *testing.T) {
	db := testutil.SetupTestDB(t)
	repo := repository.NewAccountRepository(db)
	ctx := context.Background()

	a := testutil.SeedAccount(t, db, "+242 06 555 1234", domain.RoleUser, "Congo Brazzaville")
	testutil.SeedAccount(t, db, "+237 66 555 1234", domain.RoleUser, "Cameroun")

	got, err := repo.GetByPhone(ctx, a.Phone)
	require.NoError(t, err)
	assert.Equal(t, a.ID, got.ID)
	assert.NotEmpty(t, got.PinHash)

	matches, err := repo.ListByPhoneSuffix(ctx, domain.PhoneSuffix(a.Phone), 5)
	require.NoError(t, err)
	assert.Len(t, matches, 2)

	_, err = repo.GetByPhone(ctx, "+000")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	provisioned := &domain.Account{ID: uuid.New(), Phone: "+242069990000", Role: domain.RoleUser, Balance: decimal.Zero}
	created, err := repo.CreateIfAbsent(ctx, provisioned)
	require.NoError(t, err)
	assert.True(t, created)
	created, err = repo.CreateIfAbsent(ctx, provisioned)
	require.NoError(t, err)
	assert.False(t, created)

	require.NoError(t, repo.UpdateCachedBalance(ctx, a.ID, dec("42")))
	got, err = repo.GetByID(ctx, a.ID)
	require.NoError(t, err)
	assert.True(t, got.Balance.Equal(dec("42")))
}

func newWithdrawal(owner uuid.UUID, code string, createdAt time.Time) *domain.WithdrawalRequest {
	return &domain.WithdrawalRequest{
		ID:               uuid.New(),
		OwnerID:          owner,
		Amount:           dec("5000"),
		Fee:              dec("100"),
		DestinationPhone: "+242061000003",
		Status:           domain.WithdrawalStatusPending,
		VerificationCode: code,
		CreatedAt:        createdAt,
		UpdatedAt:        createdAt,
	}
}

func TestWithdrawal_ClaimHasOneWinner(t *testing.T) {
	db := testutil.SetupTestDB(t)
	repo := repository.NewWithdrawalRepository(db)
	ctx := context.Background()

	owner := testutil.SeedAccount(t, db, "+242 06 100 0003", domain.RoleUser, "Congo Brazzaville")
	w := newWithdrawal(owner.ID, "123456", time.Now().UTC())
	require.NoError(t, repo.Create(ctx, w))

	// A second live request with the same code is rejected.
	err := repo.Create(ctx, newWithdrawal(owner.ID, "123456", time.Now().UTC()))
	assert.ErrorIs(t, err, domain.ErrDuplicateCode)

	agents := make([]*domain.Account, 6)
	for i := range agents {
		agents[i] = testutil.SeedAccount(t, db, "+242 06 200 000"+string(rune('0'+i)), domain.RoleAgent, "Congo Brazzaville")
	}

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for _, a := range agents {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := repo.Claim(ctx, w.ID, a.ID, a.Role, dec("100"))
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				wins++
				return
			}
			assert.ErrorIs(t, err, domain.ErrAlreadyRedeemed)
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, wins)

	got, err := repo.GetByID(ctx, w.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.WithdrawalStatusProcessing, got.Status)
	require.NotNil(t, got.RedeemerRole)
	assert.Equal(t, domain.RoleAgent, *got.RedeemerRole)

	stuck, err := repo.ListProcessingBefore(ctx, time.Now().Add(time.Minute), 10)
	require.NoError(t, err)
	assert.Len(t, stuck, 1)

	now := time.Now().UTC()
	require.NoError(t, repo.Finish(ctx, w.ID, domain.WithdrawalStatusCompleted, now))
	assert.ErrorIs(t, repo.Finish(ctx, w.ID, domain.WithdrawalStatusFailed, now), domain.ErrAlreadyRedeemed)

	// The code is free again once the request is no longer live.
	require.NoError(t, repo.Create(ctx, newWithdrawal(owner.ID, "123456", now)))

	done, err := repo.ListCompletedSince(ctx, now.Add(-time.Minute))
	require.NoError(t, err)
	assert.Len(t, done, 1)
}

func TestWithdrawal_ExpireBefore(t *testing.T) {
	db := testutil.SetupTestDB(t)
	repo := repository.NewWithdrawalRepository(db)
	ctx := context.Background()

	owner := testutil.SeedAccount(t, db, "+242 06 100 0004", domain.RoleUser, "Congo Brazzaville")
	now := time.Now().UTC()
	old := newWithdrawal(owner.ID, "111111", now.Add(-10*time.Minute))
	fresh := newWithdrawal(owner.ID, "222222", now)
	require.NoError(t, repo.Create(ctx, old))
	require.NoError(t, repo.Create(ctx, fresh))

	n, err := repo.ExpireBefore(ctx, now.Add(-5*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	got, err := repo.GetByID(ctx, old.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.WithdrawalStatusExpired, got.Status)

	got, err = repo.GetByCode(ctx, "111111")
	require.NoError(t, err)
	assert.False(t, got.Status.IsRedeemable())
	got, err = repo.GetByCode(ctx, "222222")
	require.NoError(t, err)
	assert.Equal(t, fresh.ID, got.ID)
}

func TestTransfer_ClaimLifecycle(t *testing.T) {
	db := testutil.SetupTestDB(t)
	repo := repository.NewTransferRepository(db)
	ctx := context.Background()

	sender := testutil.SeedAccount(t, db, "+242 06 100 0005", domain.RoleUser, "Congo Brazzaville")
	claimant := testutil.SeedAccount(t, db, "+242 06 100 0006", domain.RoleUser, "Congo Brazzaville")

	code := "87654321"
	now := time.Now().UTC()
	tr := &domain.TransferRecord{
		ID:             uuid.New(),
		OperationID:    uuid.New(),
		SenderID:       sender.ID,
		RecipientPhone: claimant.Phone,
		Amount:         dec("1000"),
		Fee:            dec("10"),
		Currency:       "XAF",
		Status:         domain.TransferStatusPendingClaim,
		ClaimCode:      &code,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	require.NoError(t, repo.Create(ctx, tr))

	dup := *tr
	dup.ID = uuid.New()
	dup.ClaimCode = nil
	assert.ErrorIs(t, repo.Create(ctx, &dup), domain.ErrDuplicateOperation)

	got, err := repo.GetByClaimCode(ctx, code)
	require.NoError(t, err)
	assert.Equal(t, tr.ID, got.ID)

	settled, err := repo.ListSettledSince(ctx, now.Add(-time.Minute))
	require.NoError(t, err)
	assert.Empty(t, settled, "pending claims carry no fee yet")

	require.NoError(t, repo.MarkClaimed(ctx, tr.ID, claimant.ID, claimant.DisplayName))
	assert.ErrorIs(t, repo.MarkClaimed(ctx, tr.ID, claimant.ID, claimant.DisplayName), domain.ErrAlreadyRedeemed)

	require.NoError(t, repo.ReleaseClaim(ctx, tr.ID, claimant.ID))
	got, err = repo.GetByID(ctx, tr.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TransferStatusPendingClaim, got.Status)
	assert.Nil(t, got.RecipientID)

	list, err := repo.ListForAccount(ctx, sender.ID, 10, 0)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	require.NoError(t, repo.SoftDelete(ctx, tr.ID, sender.ID))
	assert.ErrorIs(t, repo.SoftDelete(ctx, tr.ID, sender.ID), domain.ErrNotFound)
}

func TestSagaSteps_ListStuck(t *testing.T) {
	db := testutil.SetupTestDB(t)
	repo := repository.NewSagaStepRepository(db)
	ctx := context.Background()

	old := time.Now().UTC().Add(-time.Hour)
	acct := uuid.New()

	stuck, credited, compensated := uuid.New(), uuid.New(), uuid.New()
	steps := []struct {
		op   uuid.UUID
		step string
	}{
		{stuck, "debit_sender"},
		{credited, "debit_sender"},
		{credited, "credit_recipient"},
		{compensated, "debit_owner"},
		{compensated, "compensate:debit_owner"},
	}
	for _, s := range steps {
		require.NoError(t, repo.Append(ctx, s.op, "transfer", saga.JournalEntry{
			Step:         s.step,
			AccountID:    acct,
			Delta:        dec("-10"),
			BalanceAfter: dec("90"),
			CreatedAt:    old,
		}))
	}

	// Appending the same step twice is a no-op.
	require.NoError(t, repo.Append(ctx, stuck, "transfer", saga.JournalEntry{Step: "debit_sender", AccountID: acct, Delta: dec("-10"), BalanceAfter: dec("80"), CreatedAt: old}))

	entries, err := repo.Load(ctx, stuck)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.True(t, entries[0].BalanceAfter.Equal(dec("90")))

	out, err := repo.ListStuck(ctx, time.Now().UTC().Add(-10*time.Minute), 10)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, stuck, out[0].OperationID)
	assert.Equal(t, "transfer", out[0].Kind)

	out, err = repo.ListStuck(ctx, old.Add(-time.Minute), 10)
	require.NoError(t, err)
	assert.Empty(t, out, "too recent to report")
}

func TestHistory_CreateIsIdempotent(t *testing.T) {
	db := testutil.SetupTestDB(t)
	repo := repository.NewHistoryRepository(db)
	ctx := context.Background()

	actor := uuid.New()
	payload, err := json.Marshal(map[string]string{"amount": "100.00"})
	require.NoError(t, err)

	e := &domain.HistoryEntry{ID: uuid.New(), OperationID: uuid.New(), Kind: domain.RecordKindDeposit, ActorID: actor, Payload: payload, CreatedAt: time.Now().UTC()}
	require.NoError(t, repo.Create(ctx, e))

	again := *e
	again.ID = uuid.New()
	require.NoError(t, repo.Create(ctx, &again))

	entries, err := repo.ListByActor(ctx, actor, 10, 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, e.ID, entries[0].ID)
	assert.JSONEq(t, string(payload), string(entries[0].Payload))
}

func TestIdempotency_ScopedToAccount(t *testing.T) {
	db := testutil.SetupTestDB(t)
	repo := repository.NewIdempotencyRepository(db)
	ctx := context.Background()

	owner, other := uuid.New(), uuid.New()
	now := time.Now().UTC()
	entry := &repository.IdempotencyCacheEntry{
		Key:          "key-1",
		AccountID:    owner,
		RequestHash:  "abc",
		StatusCode:   201,
		ResponseBody: []byte(`{"success":true}`),
		CreatedAt:    now,
		ExpiresAt:    now.Add(time.Hour),
	}
	require.NoError(t, repo.Set(ctx, entry))

	got, err := repo.Get(ctx, "key-1", owner)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, 201, got.StatusCode)

	got, err = repo.Get(ctx, "key-1", other)
	require.NoError(t, err)
	assert.Nil(t, got)

	expired := *entry
	expired.Key = "key-2"
	expired.ExpiresAt = now.Add(-time.Minute)
	require.NoError(t, repo.Set(ctx, &expired))

	n, err := repo.CleanExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}
