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
	"github.com/josh-kwaku/mobile-money/internal/fee"
	"github.com/josh-kwaku/mobile-money/internal/logging"
	"github.com/josh-kwaku/mobile-money/internal/service/transfer"
)

type transferService interface {
	CreateTransfer(ctx context.Context, actor domain.Actor, req transfer.CreateTransferRequest) (*transfer.Result, error)
	ClaimPendingTransfer(ctx context.Context, actor domain.Actor, claimCode string) (*transfer.Result, error)
	Quote(ctx context.Context, actor domain.Actor, recipientPhone, recipientCountry string, amount decimal.Decimal) (*fee.Quote, error)
	ListTransfers(ctx context.Context, actor domain.Actor, limit, offset int) ([]domain.TransferRecord, error)
	GetTransfer(ctx context.Context, actor domain.Actor, id uuid.UUID) (*domain.TransferRecord, error)
	DeleteTransfer(ctx context.Context, actor domain.Actor, id uuid.UUID) error
}

type TransferHandler struct {
	transfers transferService
}

func NewTransferHandler(transfers transferService) *TransferHandler {
	return &TransferHandler{transfers: transfers}
}

type createTransferRequest struct {
	RecipientPhone   string          `json:"recipient_phone"`
	RecipientName    string          `json:"recipient_name"`
	RecipientCountry string          `json:"recipient_country"`
	Amount           decimal.Decimal `json:"amount"`
}

func (r createTransferRequest) Validate() []FieldError {
	var errs []FieldError
	if r.RecipientPhone == "" {
		errs = append(errs, FieldError{Field: "recipient_phone", Message: "required"})
	}
	if !r.Amount.IsPositive() {
		errs = append(errs, FieldError{Field: "amount", Message: "must be greater than 0"})
	}
	return errs
}

type claimTransferRequest struct {
	ClaimCode string `json:"claim_code"`
}

func (r claimTransferRequest) Validate() []FieldError {
	if r.ClaimCode == "" {
		return []FieldError{{Field: "claim_code", Message: "required"}}
	}
	return nil
}

type quoteDTO struct {
	Operation          string `json:"operation"`
	Amount             string `json:"amount"`
	Fee                string `json:"fee"`
	Rate               string `json:"rate"`
	Total              string `json:"total"`
	ActorCommission    string `json:"actor_commission"`
	PlatformCommission string `json:"platform_commission"`
}

func toQuoteDTO(q *fee.Quote) *quoteDTO {
	if q == nil {
		return nil
	}
	return &quoteDTO{
		Operation:          string(q.Operation),
		Amount:             q.Amount.StringFixed(2),
		Fee:                q.Fee.StringFixed(2),
		Rate:               q.Rate.String(),
		Total:              q.Total().StringFixed(2),
		ActorCommission:    q.ActorCommission.StringFixed(2),
		PlatformCommission: q.PlatformCommission.StringFixed(2),
	}
}

type transferDTO struct {
	ID               uuid.UUID  `json:"id"`
	OperationID      uuid.UUID  `json:"operation_id"`
	SenderID         uuid.UUID  `json:"sender_id"`
	RecipientID      *uuid.UUID `json:"recipient_id"`
	RecipientName    string     `json:"recipient_name"`
	RecipientPhone   string     `json:"recipient_phone"`
	RecipientCountry string     `json:"recipient_country"`
	Amount           string     `json:"amount"`
	Fee              string     `json:"fee"`
	Total            string     `json:"total"`
	Currency         string     `json:"currency"`
	Status           string     `json:"status"`
	ClaimCode        *string    `json:"claim_code,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
}

// toTransferDTO shows the claim code to the sender only; it is what they
// pass on to the recipient.
func toTransferDTO(t *domain.TransferRecord, viewer uuid.UUID) transferDTO {
	dto := transferDTO{
		ID:               t.ID,
		OperationID:      t.OperationID,
		SenderID:         t.SenderID,
		RecipientID:      t.RecipientID,
		RecipientName:    t.RecipientName,
		RecipientPhone:   t.RecipientPhone,
		RecipientCountry: t.RecipientCountry,
		Amount:           t.Amount.StringFixed(2),
		Fee:              t.Fee.StringFixed(2),
		Total:            t.Total().StringFixed(2),
		Currency:         t.Currency,
		Status:           string(t.Status),
		CreatedAt:        t.CreatedAt,
	}
	if viewer == t.SenderID && t.Status == domain.TransferStatusPendingClaim {
		dto.ClaimCode = t.ClaimCode
	}
	return dto
}

type transferResultDTO struct {
	Transfer      transferDTO `json:"transfer"`
	Quote         *quoteDTO   `json:"quote"`
	SenderBalance string      `json:"sender_balance,omitempty"`
	State         string      `json:"state"`
}

func (h *TransferHandler) Create(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())

	actor, appErr := requireActor(r)
	if appErr != nil {
		RespondAppError(w, appErr, nil)
		return
	}

	var req createTransferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondAppError(w, ErrInvalidRequest, nil)
		return
	}

	if fields := req.Validate(); len(fields) > 0 {
		RespondValidationError(w, fields)
		return
	}

	res, err := h.transfers.CreateTransfer(r.Context(), actor, transfer.CreateTransferRequest{
		IdempotencyKey:   r.Header.Get("Idempotency-Key"),
		RecipientPhone:   req.RecipientPhone,
		RecipientName:    req.RecipientName,
		RecipientCountry: req.RecipientCountry,
		Amount:           req.Amount,
	})
	if err != nil {
		log.Warn("transfer failed", "error", err)
		RespondDomainError(w, err)
		return
	}

	status := http.StatusCreated
	if res.Replayed {
		status = http.StatusOK
	}
	w.Header().Set("Location", fmt.Sprintf("/api/v1/transfers/%s", res.Transfer.ID))
	RespondSuccess(w, status, toTransferResultDTO(res, actor.ID))
}

func (h *TransferHandler) Claim(w http.ResponseWriter, r *http.Request) {
	actor, appErr := requireActor(r)
	if appErr != nil {
		RespondAppError(w, appErr, nil)
		return
	}

	var req claimTransferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondAppError(w, ErrInvalidRequest, nil)
		return
	}

	if fields := req.Validate(); len(fields) > 0 {
		RespondValidationError(w, fields)
		return
	}

	res, err := h.transfers.ClaimPendingTransfer(r.Context(), actor, req.ClaimCode)
	if err != nil {
		logging.FromContext(r.Context()).Warn("claim failed", "error", err)
		RespondDomainError(w, err)
		return
	}

	dto := toTransferResultDTO(res, actor.ID)
	// The sender's balance is not the claimant's business.
	dto.SenderBalance = ""
	RespondSuccess(w, http.StatusOK, dto)
}

func (h *TransferHandler) Quote(w http.ResponseWriter, r *http.Request) {
	actor, appErr := requireActor(r)
	if appErr != nil {
		RespondAppError(w, appErr, nil)
		return
	}

	q := r.URL.Query()
	var fields []FieldError
	phone := q.Get("recipient_phone")
	if phone == "" {
		fields = append(fields, FieldError{Field: "recipient_phone", Message: "required"})
	}
	amount, err := decimal.NewFromString(q.Get("amount"))
	if err != nil || !amount.IsPositive() {
		fields = append(fields, FieldError{Field: "amount", Message: "must be greater than 0"})
	}
	if len(fields) > 0 {
		RespondValidationError(w, fields)
		return
	}

	quote, err := h.transfers.Quote(r.Context(), actor, phone, q.Get("recipient_country"), amount)
	if err != nil {
		RespondDomainError(w, err)
		return
	}

	RespondSuccess(w, http.StatusOK, toQuoteDTO(quote))
}

func (h *TransferHandler) List(w http.ResponseWriter, r *http.Request) {
	actor, appErr := requireActor(r)
	if appErr != nil {
		RespondAppError(w, appErr, nil)
		return
	}

	limit, offset := pageFromQuery(r)
	records, err := h.transfers.ListTransfers(r.Context(), actor, limit, offset)
	if err != nil {
		logging.FromContext(r.Context()).Error("failed to list transfers", "error", err)
		RespondDomainError(w, err)
		return
	}

	dtos := make([]transferDTO, len(records))
	for i := range records {
		dtos[i] = toTransferDTO(&records[i], actor.ID)
	}

	RespondSuccess(w, http.StatusOK, dtos)
}

func (h *TransferHandler) Get(w http.ResponseWriter, r *http.Request) {
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

	t, err := h.transfers.GetTransfer(r.Context(), actor, id)
	if err != nil {
		RespondDomainError(w, err)
		return
	}

	RespondSuccess(w, http.StatusOK, toTransferDTO(t, actor.ID))
}

func (h *TransferHandler) Delete(w http.ResponseWriter, r *http.Request) {
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

	if err := h.transfers.DeleteTransfer(r.Context(), actor, id); err != nil {
		RespondDomainError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func toTransferResultDTO(res *transfer.Result, viewer uuid.UUID) transferResultDTO {
	return transferResultDTO{
		Transfer:      toTransferDTO(res.Transfer, viewer),
		Quote:         toQuoteDTO(res.Quote),
		SenderBalance: res.SenderBalance.StringFixed(2),
		State:         string(res.State),
	}
}
