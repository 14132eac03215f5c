package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/josh-kwaku/mobile-money/internal/domain"
	"github.com/josh-kwaku/mobile-money/internal/logging"
	"github.com/josh-kwaku/mobile-money/internal/service/deposit"
)

type depositService interface {
	Deposit(ctx context.Context, agent domain.Actor, req deposit.Request) (*deposit.Result, error)
	Process(ctx context.Context, funder domain.Actor, req deposit.BatchRequest) (*domain.BatchDepositSummary, error)
}

type DepositHandler struct {
	deposits depositService
}

func NewDepositHandler(deposits depositService) *DepositHandler {
	return &DepositHandler{deposits: deposits}
}

type createDepositRequest struct {
	ClientPhone string          `json:"client_phone"`
	Amount      decimal.Decimal `json:"amount"`
}

func (r createDepositRequest) Validate() []FieldError {
	var errs []FieldError
	if r.ClientPhone == "" {
		errs = append(errs, FieldError{Field: "client_phone", Message: "required"})
	}
	if !r.Amount.IsPositive() {
		errs = append(errs, FieldError{Field: "amount", Message: "must be greater than 0"})
	}
	return errs
}

type batchItemRequest struct {
	Recipient string          `json:"recipient"`
	Amount    decimal.Decimal `json:"amount"`
}

type batchDepositRequest struct {
	JobID *uuid.UUID         `json:"job_id"`
	Items []batchItemRequest `json:"items"`
}

// Validate only checks the envelope. Bad items fail individually in the
// batch result instead of rejecting the whole batch.
func (r batchDepositRequest) Validate() []FieldError {
	if len(r.Items) == 0 {
		return []FieldError{{Field: "items", Message: "must contain at least one item"}}
	}
	return nil
}

type depositDTO struct {
	OperationID       uuid.UUID `json:"operation_id"`
	ClientID          uuid.UUID `json:"client_id"`
	ClientPhone       string    `json:"client_phone"`
	Amount            string    `json:"amount"`
	Commission        string    `json:"commission"`
	CommissionPaid    bool      `json:"commission_paid"`
	AgentBalance      string    `json:"agent_balance"`
	ClientProvisioned bool      `json:"client_provisioned"`
	State             string    `json:"state"`
}

type batchResultDTO struct {
	Index       int        `json:"index"`
	Recipient   string     `json:"recipient"`
	RecipientID *uuid.UUID `json:"recipient_id,omitempty"`
	Amount      string     `json:"amount"`
	Success     bool       `json:"success"`
	Error       string     `json:"error,omitempty"`
}

type batchSummaryDTO struct {
	JobID      uuid.UUID        `json:"job_id"`
	Succeeded  int              `json:"succeeded"`
	Failed     int              `json:"failed"`
	TotalMoved string           `json:"total_moved"`
	Results    []batchResultDTO `json:"results"`
}

func (h *DepositHandler) Create(w http.ResponseWriter, r *http.Request) {
	actor, appErr := requireActor(r)
	if appErr != nil {
		RespondAppError(w, appErr, nil)
		return
	}

	var req createDepositRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondAppError(w, ErrInvalidRequest, nil)
		return
	}

	if fields := req.Validate(); len(fields) > 0 {
		RespondValidationError(w, fields)
		return
	}

	res, err := h.deposits.Deposit(r.Context(), actor, deposit.Request{
		IdempotencyKey: r.Header.Get("Idempotency-Key"),
		ClientPhone:    req.ClientPhone,
		Amount:         req.Amount,
	})
	if err != nil {
		logging.FromContext(r.Context()).Warn("deposit failed", "error", err)
		RespondDomainError(w, err)
		return
	}

	RespondSuccess(w, http.StatusCreated, depositDTO{
		OperationID:       res.Record.OperationID,
		ClientID:          res.Record.ClientID,
		ClientPhone:       res.Record.ClientPhone,
		Amount:            res.Record.Amount.StringFixed(2),
		Commission:        res.Record.Commission.StringFixed(2),
		CommissionPaid:    res.CommissionPaid,
		AgentBalance:      res.Record.AgentBalance.StringFixed(2),
		ClientProvisioned: res.ClientProvisioned,
		State:             string(res.State),
	})
}

// Batch funds a list of recipients. Without an explicit job id the job is
// keyed on the Idempotency-Key, so a retried upload resumes.
func (h *DepositHandler) Batch(w http.ResponseWriter, r *http.Request) {
	actor, appErr := requireActor(r)
	if appErr != nil {
		RespondAppError(w, appErr, nil)
		return
	}

	var req batchDepositRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondAppError(w, ErrInvalidRequest, nil)
		return
	}

	if fields := req.Validate(); len(fields) > 0 {
		RespondValidationError(w, fields)
		return
	}

	jobID := uuid.Nil
	if req.JobID != nil {
		jobID = *req.JobID
	} else if key := r.Header.Get("Idempotency-Key"); key != "" {
		jobID = uuid.NewSHA1(actor.ID, []byte("batch:"+key))
	}

	items := make([]domain.BatchDepositItem, len(req.Items))
	for i, it := range req.Items {
		items[i] = domain.BatchDepositItem{Recipient: it.Recipient, Amount: it.Amount}
	}

	summary, err := h.deposits.Process(r.Context(), actor, deposit.BatchRequest{JobID: jobID, Items: items})
	if err != nil {
		logging.FromContext(r.Context()).Warn("batch deposit rejected", "error", err)
		RespondDomainError(w, err)
		return
	}

	results := make([]batchResultDTO, len(summary.Results))
	for i, res := range summary.Results {
		results[i] = batchResultDTO{
			Index:       res.Index,
			Recipient:   res.Recipient,
			RecipientID: res.RecipientID,
			Amount:      res.Amount.StringFixed(2),
			Success:     res.Success,
			Error:       res.ErrorReason,
		}
	}

	w.Header().Set("X-Batch-Failed", strconv.Itoa(summary.Failed))
	RespondSuccess(w, http.StatusOK, batchSummaryDTO{
		JobID:      summary.JobID,
		Succeeded:  summary.Succeeded,
		Failed:     summary.Failed,
		TotalMoved: summary.TotalMoved.StringFixed(2),
		Results:    results,
	})
}
