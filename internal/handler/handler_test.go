package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/josh-kwaku/mobile-money/internal/auth"
	"github.com/josh-kwaku/mobile-money/internal/domain"
	"github.com/josh-kwaku/mobile-money/internal/fee"
	"github.com/josh-kwaku/mobile-money/internal/saga"
	"github.com/josh-kwaku/mobile-money/internal/service/deposit"
	"github.com/josh-kwaku/mobile-money/internal/service/transfer"
	"github.com/josh-kwaku/mobile-money/internal/service/withdrawal"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

type testRequest struct {
	method  string
	pattern string
	target  string
	body    string
	actor   *domain.Actor
	headers map[string]string
}

func serve(t *testing.T, h http.HandlerFunc, tr testRequest) (*httptest.ResponseRecorder, APIResponse) {
	t.Helper()

	r := chi.NewRouter()
	r.MethodFunc(tr.method, tr.pattern, h)

	var body io.Reader
	if tr.body != "" {
		body = strings.NewReader(tr.body)
	}
	req := httptest.NewRequest(tr.method, tr.target, body)
	for k, v := range tr.headers {
		req.Header.Set(k, v)
	}
	if tr.actor != nil {
		req = req.WithContext(auth.ContextWithActor(req.Context(), *tr.actor))
	}

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	var resp APIResponse
	if rr.Code != http.StatusNoContent {
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	}
	return rr, resp
}

func dataAs[T any](t *testing.T, resp APIResponse) T {
	t.Helper()
	raw, err := json.Marshal(resp.Data)
	require.NoError(t, err)
	var out T
	require.NoError(t, json.Unmarshal(raw, &out))
	return out
}

func TestRespondDomainError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"compensation failure wins over ledger failure", fmt.Errorf("x: %w: %w", domain.ErrLedgerMutationFailed, domain.ErrCompensationFailed), 500, "INCONSISTENT_STATE"},
		{"ledger failure", fmt.Errorf("credit: %w", domain.ErrLedgerMutationFailed), 502, "LEDGER_MUTATION_FAILED"},
		{"bare insufficient funds", domain.ErrInsufficientFunds, 422, "INSUFFICIENT_FUNDS"},
		{"not found", domain.ErrNotFound, 404, "RESOURCE_NOT_FOUND"},
		{"banned", domain.ErrAccountBanned, 403, "ACCOUNT_BANNED"},
		{"self transfer", domain.ErrSelfTransfer, 422, "SELF_TRANSFER_NOT_ALLOWED"},
		{"ambiguous phone", domain.ErrAmbiguousPhone, 422, "AMBIGUOUS_PHONE"},
		{"unsupported country", domain.ErrUnsupportedCountry, 422, "UNSUPPORTED_COUNTRY"},
		{"expired code", domain.ErrCodeExpiredOrInvalid, 422, "CODE_EXPIRED_OR_INVALID"},
		{"self redemption", domain.ErrSelfRedemptionForbidden, 422, "SELF_REDEMPTION_FORBIDDEN"},
		{"already redeemed", domain.ErrAlreadyRedeemed, 409, "ALREADY_REDEEMED"},
		{"role", domain.ErrRoleNotPermitted, 403, "ROLE_NOT_PERMITTED"},
		{"not recipient", domain.ErrNotRecipient, 403, "NOT_RECIPIENT"},
		{"rate limited", fmt.Errorf("retry in 1m: %w", domain.ErrRateLimited), 429, "RATE_LIMITED"},
		{"batch too large", domain.ErrBatchTooLarge, 413, "BATCH_TOO_LARGE"},
		{"invalid amount", domain.ErrInvalidAmount, 400, "INVALID_AMOUNT"},
		{"unknown", errors.New("boom"), 500, "INTERNAL_ERROR"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			RespondDomainError(rr, tc.err)

			assert.Equal(t, tc.wantStatus, rr.Code)
			var resp APIResponse
			require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
			assert.False(t, resp.Success)
			require.NotNil(t, resp.Error)
			assert.Equal(t, tc.wantCode, resp.Error.Code)
		})
	}
}

func TestRespondDomainError_ShortfallDetails(t *testing.T) {
	rr := httptest.NewRecorder()
	RespondDomainError(rr, fmt.Errorf("CreateTransfer: %w", &domain.InsufficientFundsError{
		Required:  dec("10100"),
		Available: dec("4000"),
	}))

	require.Equal(t, http.StatusUnprocessableEntity, rr.Code)
	var resp struct {
		Error struct {
			Code    string           `json:"code"`
			Details shortfallDetails `json:"details"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, "INSUFFICIENT_FUNDS", resp.Error.Code)
	assert.Equal(t, shortfallDetails{Required: "10100.00", Available: "4000.00", Shortfall: "6100.00"}, resp.Error.Details)
}

type fakeAccounts struct {
	byPhone map[string]*domain.Account
	err     error
}

func (f *fakeAccounts) FindByPhone(_ context.Context, phone string) (*domain.Account, bool, error) {
	if f.err != nil {
		return nil, false, f.err
	}
	a, ok := f.byPhone[domain.NormalizePhone(phone)]
	return a, ok, nil
}

func TestAuthHandler_Login(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("4321"), bcrypt.MinCost)
	require.NoError(t, err)

	agent := &domain.Account{ID: uuid.New(), Phone: domain.NormalizePhone("+242 06 111 2233"), Role: domain.RoleAgent, PinHash: string(hash), Balance: dec("500")}
	banned := &domain.Account{ID: uuid.New(), Phone: domain.NormalizePhone("+242 06 999 0000"), Role: domain.RoleUser, PinHash: string(hash), Banned: true}
	noPin := &domain.Account{ID: uuid.New(), Phone: domain.NormalizePhone("+242 06 555 0000"), Role: domain.RoleUser}

	accounts := &fakeAccounts{byPhone: map[string]*domain.Account{agent.Phone: agent, banned.Phone: banned, noPin.Phone: noPin}}
	h := NewAuthHandler(accounts, "secret", time.Hour)

	tests := []struct {
		name       string
		body       string
		wantStatus int
		wantCode   string
	}{
		{"valid pin", `{"phone":"+242 06 111 2233","pin":"4321"}`, 200, ""},
		{"wrong pin", `{"phone":"+242 06 111 2233","pin":"0000"}`, 401, "INVALID_CREDENTIALS"},
		{"unknown phone", `{"phone":"+242 06 000 0000","pin":"4321"}`, 401, "INVALID_CREDENTIALS"},
		{"account without pin", `{"phone":"+242 06 555 0000","pin":"4321"}`, 401, "INVALID_CREDENTIALS"},
		{"banned", `{"phone":"+242 06 999 0000","pin":"4321"}`, 403, "ACCOUNT_BANNED"},
		{"missing fields", `{}`, 400, "VALIDATION_FAILED"},
		{"malformed", `{`, 400, "INVALID_REQUEST"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rr, resp := serve(t, h.Login, testRequest{method: http.MethodPost, pattern: "/login", target: "/login", body: tc.body})

			assert.Equal(t, tc.wantStatus, rr.Code)
			if tc.wantCode != "" {
				require.NotNil(t, resp.Error)
				assert.Equal(t, tc.wantCode, resp.Error.Code)
				return
			}

			out := dataAs[loginResponse](t, resp)
			claims, err := auth.ValidateToken(out.Token, "secret")
			require.NoError(t, err)
			assert.Equal(t, agent.ID, claims.AccountID)
			assert.Equal(t, domain.RoleAgent, claims.Role)
			assert.Equal(t, "500.00", out.Account.Balance)
		})
	}
}

type fakeTransfers struct {
	gotCreate transfer.CreateTransferRequest
	result    *transfer.Result
	err       error
	deleted   uuid.UUID
}

func (f *fakeTransfers) CreateTransfer(_ context.Context, _ domain.Actor, req transfer.CreateTransferRequest) (*transfer.Result, error) {
	f.gotCreate = req
	return f.result, f.err
}

func (f *fakeTransfers) ClaimPendingTransfer(context.Context, domain.Actor, string) (*transfer.Result, error) {
	return f.result, f.err
}

func (f *fakeTransfers) Quote(_ context.Context, _ domain.Actor, _, _ string, amount decimal.Decimal) (*fee.Quote, error) {
	if f.err != nil {
		return nil, f.err
	}
	return fee.NewCalculator().ComputeFee(fee.OpTransfer, amount, "Gabon", "Gabon", domain.RoleUser)
}

func (f *fakeTransfers) ListTransfers(context.Context, domain.Actor, int, int) ([]domain.TransferRecord, error) {
	if f.result == nil {
		return nil, f.err
	}
	return []domain.TransferRecord{*f.result.Transfer}, f.err
}

func (f *fakeTransfers) GetTransfer(context.Context, domain.Actor, uuid.UUID) (*domain.TransferRecord, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.result.Transfer, nil
}

func (f *fakeTransfers) DeleteTransfer(_ context.Context, _ domain.Actor, id uuid.UUID) error {
	f.deleted = id
	return f.err
}

func pendingTransfer(sender uuid.UUID) *domain.TransferRecord {
	code := "12345678"
	return &domain.TransferRecord{
		ID:             uuid.New(),
		OperationID:    uuid.New(),
		SenderID:       sender,
		RecipientPhone: "242061112233",
		Amount:         dec("1000"),
		Fee:            dec("10"),
		Currency:       "XAF",
		Status:         domain.TransferStatusPendingClaim,
		ClaimCode:      &code,
	}
}

func TestTransferHandler_Create(t *testing.T) {
	sender := domain.Actor{ID: uuid.New(), Role: domain.RoleUser}
	tr := pendingTransfer(sender.ID)
	svc := &fakeTransfers{result: &transfer.Result{
		Transfer:      tr,
		Quote:         &fee.Quote{Operation: fee.OpTransfer, Amount: dec("1000"), Fee: dec("10"), Rate: dec("0.01"), PlatformCommission: dec("10")},
		SenderBalance: dec("5000"),
		State:         saga.StatePendingClaim,
	}}
	h := NewTransferHandler(svc)

	rr, resp := serve(t, h.Create, testRequest{
		method:  http.MethodPost,
		pattern: "/transfers",
		target:  "/transfers",
		body:    `{"recipient_phone":"+242 06 111 2233","amount":"1000"}`,
		actor:   &sender,
		headers: map[string]string{"Idempotency-Key": "k-1"},
	})

	require.Equal(t, http.StatusCreated, rr.Code)
	assert.Equal(t, "/api/v1/transfers/"+tr.ID.String(), rr.Header().Get("Location"))
	assert.Equal(t, "k-1", svc.gotCreate.IdempotencyKey)
	assert.True(t, svc.gotCreate.Amount.Equal(dec("1000")))

	out := dataAs[transferResultDTO](t, resp)
	require.NotNil(t, out.Transfer.ClaimCode)
	assert.Equal(t, "12345678", *out.Transfer.ClaimCode)
	assert.Equal(t, "1010.00", out.Transfer.Total)
	assert.Equal(t, "1010.00", out.Quote.Total)
	assert.Equal(t, string(saga.StatePendingClaim), out.State)
}

func TestTransferHandler_ClaimCodeHiddenFromOthers(t *testing.T) {
	sender := uuid.New()
	other := domain.Actor{ID: uuid.New(), Role: domain.RoleUser}
	svc := &fakeTransfers{result: &transfer.Result{Transfer: pendingTransfer(sender)}}
	h := NewTransferHandler(svc)

	id := svc.result.Transfer.ID
	rr, resp := serve(t, h.Get, testRequest{method: http.MethodGet, pattern: "/transfers/{id}", target: "/transfers/" + id.String(), actor: &other})

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Nil(t, dataAs[transferDTO](t, resp).ClaimCode)
}

func TestTransferHandler_Errors(t *testing.T) {
	actor := domain.Actor{ID: uuid.New(), Role: domain.RoleUser}

	tests := []struct {
		name       string
		handler    func(h *TransferHandler) http.HandlerFunc
		req        testRequest
		err        error
		wantStatus int
		wantCode   string
	}{
		{
			name:       "missing actor",
			handler:    func(h *TransferHandler) http.HandlerFunc { return h.Create },
			req:        testRequest{method: http.MethodPost, pattern: "/transfers", target: "/transfers", body: `{}`},
			wantStatus: 401,
			wantCode:   "MISSING_TOKEN",
		},
		{
			name:       "validation",
			handler:    func(h *TransferHandler) http.HandlerFunc { return h.Create },
			req:        testRequest{method: http.MethodPost, pattern: "/transfers", target: "/transfers", body: `{"amount":"-5"}`, actor: &actor},
			wantStatus: 400,
			wantCode:   "VALIDATION_FAILED",
		},
		{
			name:       "insufficient funds",
			handler:    func(h *TransferHandler) http.HandlerFunc { return h.Create },
			req:        testRequest{method: http.MethodPost, pattern: "/transfers", target: "/transfers", body: `{"recipient_phone":"1","amount":"10"}`, actor: &actor},
			err:        &domain.InsufficientFundsError{Required: dec("10.1"), Available: dec("1")},
			wantStatus: 422,
			wantCode:   "INSUFFICIENT_FUNDS",
		},
		{
			name:       "claim by wrong account",
			handler:    func(h *TransferHandler) http.HandlerFunc { return h.Claim },
			req:        testRequest{method: http.MethodPost, pattern: "/transfers/claim", target: "/transfers/claim", body: `{"claim_code":"12345678"}`, actor: &actor},
			err:        domain.ErrNotRecipient,
			wantStatus: 403,
			wantCode:   "NOT_RECIPIENT",
		},
		{
			name:       "malformed id",
			handler:    func(h *TransferHandler) http.HandlerFunc { return h.Get },
			req:        testRequest{method: http.MethodGet, pattern: "/transfers/{id}", target: "/transfers/nope", actor: &actor},
			wantStatus: 404,
			wantCode:   "RESOURCE_NOT_FOUND",
		},
		{
			name:       "quote without amount",
			handler:    func(h *TransferHandler) http.HandlerFunc { return h.Quote },
			req:        testRequest{method: http.MethodGet, pattern: "/transfers/quote", target: "/transfers/quote?recipient_phone=1", actor: &actor},
			wantStatus: 400,
			wantCode:   "VALIDATION_FAILED",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			h := NewTransferHandler(&fakeTransfers{err: tc.err})
			rr, resp := serve(t, tc.handler(h), tc.req)

			assert.Equal(t, tc.wantStatus, rr.Code)
			require.NotNil(t, resp.Error)
			assert.Equal(t, tc.wantCode, resp.Error.Code)
		})
	}
}

func TestTransferHandler_QuoteAndDelete(t *testing.T) {
	actor := domain.Actor{ID: uuid.New(), Role: domain.RoleUser}
	svc := &fakeTransfers{}
	h := NewTransferHandler(svc)

	rr, resp := serve(t, h.Quote, testRequest{method: http.MethodGet, pattern: "/transfers/quote", target: "/transfers/quote?recipient_phone=242061112233&amount=2500", actor: &actor})
	require.Equal(t, http.StatusOK, rr.Code)
	q := dataAs[quoteDTO](t, resp)
	assert.Equal(t, "25.00", q.Fee)
	assert.Equal(t, "2525.00", q.Total)

	id := uuid.New()
	rr, _ = serve(t, h.Delete, testRequest{method: http.MethodDelete, pattern: "/transfers/{id}", target: "/transfers/" + id.String(), actor: &actor})
	assert.Equal(t, http.StatusNoContent, rr.Code)
	assert.Equal(t, id, svc.deleted)
}

type fakeWithdrawals struct {
	redeem *withdrawal.RedeemResult
	err    error
}

func (f *fakeWithdrawals) Create(_ context.Context, actor domain.Actor, req withdrawal.CreateRequest) (*domain.WithdrawalRequest, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &domain.WithdrawalRequest{ID: uuid.New(), OwnerID: actor.ID, Amount: req.Amount, Status: domain.WithdrawalStatusPending, VerificationCode: "123456"}, nil
}

func (f *fakeWithdrawals) CreateForClient(context.Context, domain.Actor, string, decimal.Decimal) (*domain.WithdrawalRequest, error) {
	return nil, f.err
}

func (f *fakeWithdrawals) Redeem(context.Context, domain.Actor, string) (*withdrawal.RedeemResult, error) {
	return f.redeem, f.err
}

func (f *fakeWithdrawals) Get(context.Context, domain.Actor, uuid.UUID) (*domain.WithdrawalRequest, error) {
	return nil, f.err
}

func (f *fakeWithdrawals) ListForOwner(context.Context, domain.Actor, int, int) ([]domain.WithdrawalRequest, error) {
	return nil, f.err
}

func TestWithdrawalHandler_CreateAndRedeem(t *testing.T) {
	owner := domain.Actor{ID: uuid.New(), Role: domain.RoleUser}
	agent := domain.Actor{ID: uuid.New(), Role: domain.RoleAgent}
	w := &domain.WithdrawalRequest{ID: uuid.New(), OwnerID: owner.ID, RedeemedBy: &agent.ID, Amount: dec("5000"), Fee: dec("100"), Status: domain.WithdrawalStatusCompleted}
	h := NewWithdrawalHandler(&fakeWithdrawals{redeem: &withdrawal.RedeemResult{
		Withdrawal:      w,
		RedeemerCredit:  dec("4975"),
		RedeemerBalance: dec("14975"),
		State:           saga.StateRecorded,
	}})

	rr, resp := serve(t, h.Create, testRequest{method: http.MethodPost, pattern: "/withdrawals", target: "/withdrawals", body: `{"amount":5000}`, actor: &owner})
	require.Equal(t, http.StatusCreated, rr.Code)
	assert.Equal(t, "123456", dataAs[withdrawalDTO](t, resp).VerificationCode)

	rr, resp = serve(t, h.Redeem, testRequest{method: http.MethodPost, pattern: "/withdrawals/redeem", target: "/withdrawals/redeem", body: `{"verification_code":"123456"}`, actor: &agent})
	require.Equal(t, http.StatusOK, rr.Code)
	out := dataAs[redeemResultDTO](t, resp)
	assert.Equal(t, "4975.00", out.RedeemerCredit)
	assert.Equal(t, "completed", out.Withdrawal.Status)
	assert.Empty(t, out.Withdrawal.VerificationCode)
}

func TestWithdrawalHandler_RedeemErrors(t *testing.T) {
	agent := domain.Actor{ID: uuid.New(), Role: domain.RoleAgent}

	tests := []struct {
		err        error
		wantStatus int
		wantCode   string
	}{
		{domain.ErrAlreadyRedeemed, 409, "ALREADY_REDEEMED"},
		{domain.ErrSelfRedemptionForbidden, 422, "SELF_REDEMPTION_FORBIDDEN"},
		{domain.ErrRateLimited, 429, "RATE_LIMITED"},
		{domain.ErrCompensationFailed, 500, "INCONSISTENT_STATE"},
	}

	for _, tc := range tests {
		t.Run(tc.wantCode, func(t *testing.T) {
			h := NewWithdrawalHandler(&fakeWithdrawals{err: fmt.Errorf("Redeem: %w", tc.err)})
			rr, resp := serve(t, h.Redeem, testRequest{method: http.MethodPost, pattern: "/withdrawals/redeem", target: "/withdrawals/redeem", body: `{"verification_code":"123456"}`, actor: &agent})

			assert.Equal(t, tc.wantStatus, rr.Code)
			require.NotNil(t, resp.Error)
			assert.Equal(t, tc.wantCode, resp.Error.Code)
		})
	}
}

type fakeDeposits struct {
	gotBatch deposit.BatchRequest
	err      error
}

func (f *fakeDeposits) Deposit(_ context.Context, agent domain.Actor, req deposit.Request) (*deposit.Result, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &deposit.Result{
		Record:         &domain.DepositRecord{OperationID: uuid.New(), AgentID: agent.ID, ClientID: uuid.New(), Amount: req.Amount, Commission: dec("25"), AgentBalance: dec("5025")},
		CommissionPaid: true,
		State:          saga.StateRecorded,
	}, nil
}

func (f *fakeDeposits) Process(_ context.Context, _ domain.Actor, req deposit.BatchRequest) (*domain.BatchDepositSummary, error) {
	f.gotBatch = req
	if f.err != nil {
		return nil, f.err
	}
	results := make([]domain.BatchDepositResult, len(req.Items))
	for i, it := range req.Items {
		results[i] = domain.BatchDepositResult{Index: i, Recipient: it.Recipient, Amount: it.Amount, Success: i == 0}
		if i > 0 {
			results[i].ErrorReason = domain.ErrAccountNotFound.Error()
		}
	}
	s := domain.Summarize(req.JobID, results)
	return &s, nil
}

func TestDepositHandler_Create(t *testing.T) {
	agent := domain.Actor{ID: uuid.New(), Role: domain.RoleAgent}
	h := NewDepositHandler(&fakeDeposits{})

	rr, resp := serve(t, h.Create, testRequest{method: http.MethodPost, pattern: "/deposits", target: "/deposits", body: `{"client_phone":"242061112233","amount":"5000"}`, actor: &agent})

	require.Equal(t, http.StatusCreated, rr.Code)
	out := dataAs[depositDTO](t, resp)
	assert.Equal(t, "25.00", out.Commission)
	assert.True(t, out.CommissionPaid)
}

func TestDepositHandler_Batch(t *testing.T) {
	admin := domain.Actor{ID: uuid.New(), Role: domain.RoleAdmin}

	t.Run("job keyed on idempotency key", func(t *testing.T) {
		svc := &fakeDeposits{}
		h := NewDepositHandler(svc)

		rr, resp := serve(t, h.Batch, testRequest{
			method:  http.MethodPost,
			pattern: "/deposits/batch",
			target:  "/deposits/batch",
			body:    `{"items":[{"recipient":"242061112233","amount":"100"},{"recipient":"nobody","amount":"50"}]}`,
			actor:   &admin,
			headers: map[string]string{"Idempotency-Key": "upload-7"},
		})

		require.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, uuid.NewSHA1(admin.ID, []byte("batch:upload-7")), svc.gotBatch.JobID)
		assert.Equal(t, "1", rr.Header().Get("X-Batch-Failed"))

		out := dataAs[batchSummaryDTO](t, resp)
		assert.Equal(t, 1, out.Succeeded)
		assert.Equal(t, "100.00", out.TotalMoved)
		require.Len(t, out.Results, 2)
		assert.Equal(t, domain.ErrAccountNotFound.Error(), out.Results[1].Error)
	})

	t.Run("explicit job id", func(t *testing.T) {
		svc := &fakeDeposits{}
		h := NewDepositHandler(svc)
		job := uuid.New()

		rr, _ := serve(t, h.Batch, testRequest{method: http.MethodPost, pattern: "/deposits/batch", target: "/deposits/batch", body: fmt.Sprintf(`{"job_id":%q,"items":[{"recipient":"1","amount":"1"}]}`, job), actor: &admin})

		require.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, job, svc.gotBatch.JobID)
	})

	t.Run("rejected batch", func(t *testing.T) {
		h := NewDepositHandler(&fakeDeposits{err: domain.ErrBatchTooLarge})
		rr, resp := serve(t, h.Batch, testRequest{method: http.MethodPost, pattern: "/deposits/batch", target: "/deposits/batch", body: `{"items":[{"recipient":"1","amount":"1"}]}`, actor: &admin})

		assert.Equal(t, http.StatusRequestEntityTooLarge, rr.Code)
		assert.Equal(t, "BATCH_TOO_LARGE", resp.Error.Code)
	})

	t.Run("empty batch", func(t *testing.T) {
		h := NewDepositHandler(&fakeDeposits{})
		rr, _ := serve(t, h.Batch, testRequest{method: http.MethodPost, pattern: "/deposits/batch", target: "/deposits/batch", body: `{"items":[]}`, actor: &admin})

		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})
}

type fakeCommissions struct {
	since time.Time
}

func (f *fakeCommissions) Report(_ context.Context, _ domain.Actor, since time.Time) (*domain.CommissionSummary, error) {
	f.since = since
	return &domain.CommissionSummary{ActorTotal: dec("85"), PlatformTotal: dec("635")}, nil
}

func TestCommissionHandler_Report(t *testing.T) {
	admin := domain.Actor{ID: uuid.New(), Role: domain.RoleAdmin}
	svc := &fakeCommissions{}
	h := NewCommissionHandler(svc)
	now := time.Date(2026, 3, 31, 0, 0, 0, 0, time.UTC)
	h.now = func() time.Time { return now }

	rr, resp := serve(t, h.Report, testRequest{method: http.MethodGet, pattern: "/commissions", target: "/commissions", actor: &admin})
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, now.Add(-defaultCommissionWindow), svc.since)
	out := dataAs[commissionSummaryDTO](t, resp)
	assert.Equal(t, "85.00", out.ActorTotal)
	assert.Equal(t, "635.00", out.PlatformTotal)

	rr, _ = serve(t, h.Report, testRequest{method: http.MethodGet, pattern: "/commissions", target: "/commissions?since=2026-03-01T00:00:00Z", actor: &admin})
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), svc.since)

	rr, _ = serve(t, h.Report, testRequest{method: http.MethodGet, pattern: "/commissions", target: "/commissions?since=yesterday", actor: &admin})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}
