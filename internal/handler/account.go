package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/josh-kwaku/mobile-money/internal/domain"
	"github.com/josh-kwaku/mobile-money/internal/logging"
)

type accountService interface {
	Get(ctx context.Context, id uuid.UUID) (*domain.Account, error)
	Balance(ctx context.Context, id uuid.UUID) (decimal.Decimal, error)
}

type historyReader interface {
	ListByActor(ctx context.Context, actorID uuid.UUID, limit, offset int) ([]domain.HistoryEntry, error)
}

type AccountHandler struct {
	accounts accountService
	history  historyReader
}

func NewAccountHandler(accounts accountService, history historyReader) *AccountHandler {
	return &AccountHandler{accounts: accounts, history: history}
}

type accountDTO struct {
	ID          uuid.UUID `json:"id"`
	Phone       string    `json:"phone"`
	DisplayName string    `json:"display_name"`
	Country     string    `json:"country"`
	Role        string    `json:"role"`
	Balance     string    `json:"balance"`
	CreatedAt   time.Time `json:"created_at"`
}

func toAccountDTO(a *domain.Account, balance decimal.Decimal) accountDTO {
	return accountDTO{
		ID:          a.ID,
		Phone:       a.Phone,
		DisplayName: a.DisplayName,
		Country:     a.Country,
		Role:        string(a.Role),
		Balance:     balance.StringFixed(2),
		CreatedAt:   a.CreatedAt,
	}
}

type historyEntryDTO struct {
	ID          uuid.UUID       `json:"id"`
	OperationID uuid.UUID       `json:"operation_id"`
	Kind        string          `json:"kind"`
	Payload     json.RawMessage `json:"payload"`
	CreatedAt   time.Time       `json:"created_at"`
}

// Me returns the caller's account with its ledger balance rather than the
// cached copy.
func (h *AccountHandler) Me(w http.ResponseWriter, r *http.Request) {
	actor, appErr := requireActor(r)
	if appErr != nil {
		RespondAppError(w, appErr, nil)
		return
	}

	account, err := h.accounts.Get(r.Context(), actor.ID)
	if err != nil {
		RespondDomainError(w, err)
		return
	}

	balance, err := h.accounts.Balance(r.Context(), actor.ID)
	if err != nil {
		logging.FromContext(r.Context()).Warn("ledger balance unavailable, serving cached", "error", err)
		balance = account.Balance
	}

	RespondSuccess(w, http.StatusOK, toAccountDTO(account, balance))
}

func (h *AccountHandler) History(w http.ResponseWriter, r *http.Request) {
	actor, appErr := requireActor(r)
	if appErr != nil {
		RespondAppError(w, appErr, nil)
		return
	}

	limit, offset := pageFromQuery(r)
	entries, err := h.history.ListByActor(r.Context(), actor.ID, limit, offset)
	if err != nil {
		logging.FromContext(r.Context()).Error("failed to list history", "error", err)
		RespondDomainError(w, err)
		return
	}

	dtos := make([]historyEntryDTO, len(entries))
	for i, e := range entries {
		dtos[i] = historyEntryDTO{
			ID:          e.ID,
			OperationID: e.OperationID,
			Kind:        string(e.Kind),
			Payload:     e.Payload,
			CreatedAt:   e.CreatedAt,
		}
	}

	RespondSuccess(w, http.StatusOK, dtos)
}
