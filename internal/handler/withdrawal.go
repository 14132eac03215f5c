package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/josh-kwaku/mobile-money/internal/domain"
	"github.com/josh-kwaku/mobile-money/internal/logging"
	"github.com/josh-kwaku/mobile-money/internal/service/withdrawal"
)

type withdrawalService interface {
	Create(ctx context.Context, actor domain.Actor, req withdrawal.CreateRequest) (*domain.WithdrawalRequest, error)
	CreateForClient(ctx context.Context, agent domain.Actor, clientPhone string, amount decimal.Decimal) (*domain.WithdrawalRequest, error)
	Redeem(ctx context.Context, redeemer domain.Actor, verificationCode string) (*withdrawal.RedeemResult, error)
	Get(ctx context.Context, actor domain.Actor, id uuid.UUID) (*domain.WithdrawalRequest, error)
	ListForOwner(ctx context.Context, actor domain.Actor, limit, offset int) ([]domain.WithdrawalRequest, error)
}

type WithdrawalHandler struct {
	withdrawals withdrawalService
}

func NewWithdrawalHandler(withdrawals withdrawalService) *WithdrawalHandler {
	return &WithdrawalHandler{withdrawals: withdrawals}
}

type createWithdrawalRequest struct {
	Amount           decimal.Decimal `json:"amount"`
	DestinationPhone string          `json:"destination_phone"`
}

func (r createWithdrawalRequest) Validate() []FieldError {
	if !r.Amount.IsPositive() {
		return []FieldError{{Field: "amount", Message: "must be greater than 0"}}
	}
	return nil
}

type createClientWithdrawalRequest struct {
	ClientPhone string          `json:"client_phone"`
	Amount      decimal.Decimal `json:"amount"`
}

func (r createClientWithdrawalRequest) Validate() []FieldError {
	var errs []FieldError
	if r.ClientPhone == "" {
		errs = append(errs, FieldError{Field: "client_phone", Message: "required"})
	}
	if !r.Amount.IsPositive() {
		errs = append(errs, FieldError{Field: "amount", Message: "must be greater than 0"})
	}
	return errs
}

type redeemRequest struct {
	VerificationCode string `json:"verification_code"`
}

func (r redeemRequest) Validate() []FieldError {
	if r.VerificationCode == "" {
		return []FieldError{{Field: "verification_code", Message: "required"}}
	}
	return nil
}

type withdrawalDTO struct {
	ID               uuid.UUID  `json:"id"`
	OwnerID          uuid.UUID  `json:"owner_id"`
	InitiatedBy      *uuid.UUID `json:"initiated_by,omitempty"`
	RedeemedBy       *uuid.UUID `json:"redeemed_by,omitempty"`
	Amount           string     `json:"amount"`
	Fee              string     `json:"fee"`
	DestinationPhone string     `json:"destination_phone"`
	Status           string     `json:"status"`
	VerificationCode string     `json:"verification_code,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	CompletedAt      *time.Time `json:"completed_at,omitempty"`
}

func toWithdrawalDTO(w *domain.WithdrawalRequest) withdrawalDTO {
	return withdrawalDTO{
		ID:               w.ID,
		OwnerID:          w.OwnerID,
		InitiatedBy:      w.InitiatedBy,
		RedeemedBy:       w.RedeemedBy,
		Amount:           w.Amount.StringFixed(2),
		Fee:              w.Fee.StringFixed(2),
		DestinationPhone: w.DestinationPhone,
		Status:           string(w.Status),
		VerificationCode: w.VerificationCode,
		CreatedAt:        w.CreatedAt,
		CompletedAt:      w.CompletedAt,
	}
}

type redeemResultDTO struct {
	Withdrawal      withdrawalDTO `json:"withdrawal"`
	Quote           *quoteDTO     `json:"quote"`
	RedeemerCredit  string        `json:"redeemer_credit"`
	RedeemerBalance string        `json:"redeemer_balance"`
	State           string        `json:"state"`
}

func (h *WithdrawalHandler) Create(w http.ResponseWriter, r *http.Request) {
	actor, appErr := requireActor(r)
	if appErr != nil {
		RespondAppError(w, appErr, nil)
		return
	}

	var req createWithdrawalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondAppError(w, ErrInvalidRequest, nil)
		return
	}

	if fields := req.Validate(); len(fields) > 0 {
		RespondValidationError(w, fields)
		return
	}

	wr, err := h.withdrawals.Create(r.Context(), actor, withdrawal.CreateRequest{
		Amount:           req.Amount,
		DestinationPhone: req.DestinationPhone,
	})
	if err != nil {
		logging.FromContext(r.Context()).Warn("withdrawal creation failed", "error", err)
		RespondDomainError(w, err)
		return
	}

	w.Header().Set("Location", fmt.Sprintf("/api/v1/withdrawals/%s", wr.ID))
	RespondSuccess(w, http.StatusCreated, toWithdrawalDTO(wr))
}

func (h *WithdrawalHandler) CreateForClient(w http.ResponseWriter, r *http.Request) {
	actor, appErr := requireActor(r)
	if appErr != nil {
		RespondAppError(w, appErr, nil)
		return
	}

	var req createClientWithdrawalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondAppError(w, ErrInvalidRequest, nil)
		return
	}

	if fields := req.Validate(); len(fields) > 0 {
		RespondValidationError(w, fields)
		return
	}

	wr, err := h.withdrawals.CreateForClient(r.Context(), actor, req.ClientPhone, req.Amount)
	if err != nil {
		logging.FromContext(r.Context()).Warn("agent withdrawal creation failed", "error", err)
		RespondDomainError(w, err)
		return
	}

	w.Header().Set("Location", fmt.Sprintf("/api/v1/withdrawals/%s", wr.ID))
	RespondSuccess(w, http.StatusCreated, toWithdrawalDTO(wr))
}

func (h *WithdrawalHandler) Redeem(w http.ResponseWriter, r *http.Request) {
	actor, appErr := requireActor(r)
	if appErr != nil {
		RespondAppError(w, appErr, nil)
		return
	}

	var req redeemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondAppError(w, ErrInvalidRequest, nil)
		return
	}

	if fields := req.Validate(); len(fields) > 0 {
		RespondValidationError(w, fields)
		return
	}

	res, err := h.withdrawals.Redeem(r.Context(), actor, req.VerificationCode)
	if err != nil {
		logging.FromContext(r.Context()).Warn("redeem failed", "error", err)
		RespondDomainError(w, err)
		return
	}

	RespondSuccess(w, http.StatusOK, redeemResultDTO{
		Withdrawal:      toWithdrawalDTO(res.Withdrawal),
		Quote:           toQuoteDTO(res.Quote),
		RedeemerCredit:  res.RedeemerCredit.StringFixed(2),
		RedeemerBalance: res.RedeemerBalance.StringFixed(2),
		State:           string(res.State),
	})
}

func (h *WithdrawalHandler) Get(w http.ResponseWriter, r *http.Request) {
	actor, appErr := requireActor(r)
	if appErr != nil {
		RespondAppError(w, appErr, nil)
		return
	}

	id, appErr := idFromPath(r)
	if appErr != nil {
		RespondAppError(w, appErr, nil)
		return
	}

	wr, err := h.withdrawals.Get(r.Context(), actor, id)
	if err != nil {
		RespondDomainError(w, err)
		return
	}

	RespondSuccess(w, http.StatusOK, toWithdrawalDTO(wr))
}

func (h *WithdrawalHandler) List(w http.ResponseWriter, r *http.Request) {
	actor, appErr := requireActor(r)
	if appErr != nil {
		RespondAppError(w, appErr, nil)
		return
	}

	limit, offset := pageFromQuery(r)
	out, err := h.withdrawals.ListForOwner(r.Context(), actor, limit, offset)
	if err != nil {
		logging.FromContext(r.Context()).Error("failed to list withdrawals", "error", err)
		RespondDomainError(w, err)
		return
	}

	dtos := make([]withdrawalDTO, len(out))
	for i := range out {
		dtos[i] = toWithdrawalDTO(&out[i])
	}

	RespondSuccess(w, http.StatusOK, dtos)
}
