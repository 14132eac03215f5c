package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/josh-kwaku/mobile-money/internal/domain"
)

type APIResponse struct {
	Success bool     `json:"success"`
	Data    any      `json:"data"`
	Error   *APIError `json:"error"`
}

type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func RespondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func RespondSuccess(w http.ResponseWriter, status int, data any) {
	RespondJSON(w, status, APIResponse{
		Success: true,
		Data:    data,
		Error:   nil,
	})
}

func RespondAppError(w http.ResponseWriter, appErr *AppError, details any) {
	RespondJSON(w, appErr.Status, APIResponse{
		Success: false,
		Data:    nil,
		Error: &APIError{
			Code:    appErr.Code,
			Message: appErr.Message,
			Details: details,
		},
	})
}

func RespondValidationError(w http.ResponseWriter, fields []FieldError) {
	RespondAppError(w, ErrValidationFailed, fields)
}

type shortfallDetails struct {
	Required  string `json:"required"`
	Available string `json:"available"`
	Shortfall string `json:"shortfall"`
}

// RespondDomainError maps a service error to its API error. Only errors with
// no specific cause end up as INTERNAL_ERROR.
func RespondDomainError(w http.ResponseWriter, err error) {
	var (
		appErr       *AppError
		details      any
		insufficient *domain.InsufficientFundsError
	)

	switch {
	case errors.Is(err, domain.ErrCompensationFailed):
		appErr = ErrInconsistentState
	case errors.As(err, &insufficient):
		appErr = ErrInsufficientFunds
		details = shortfallDetails{
			Required:  insufficient.Required.StringFixed(2),
			Available: insufficient.Available.StringFixed(2),
			Shortfall: insufficient.Shortfall().StringFixed(2),
		}
	case errors.Is(err, domain.ErrInsufficientFunds):
		appErr = ErrInsufficientFunds
	case errors.Is(err, domain.ErrNotFound):
		appErr = ErrResourceNotFound
	case errors.Is(err, domain.ErrAccountBanned):
		appErr = ErrAccountBanned
	case errors.Is(err, domain.ErrSelfTransfer):
		appErr = ErrSelfTransfer
	case errors.Is(err, domain.ErrAccountNotFound):
		appErr = ErrAccountNotFound
	case errors.Is(err, domain.ErrAmbiguousPhone):
		appErr = ErrAmbiguousPhone
	case errors.Is(err, domain.ErrUnsupportedCountry):
		appErr = ErrUnsupportedCountry
	case errors.Is(err, domain.ErrLedgerMutationFailed):
		appErr = ErrLedgerUnavailable
	case errors.Is(err, domain.ErrCodeExpiredOrInvalid):
		appErr = ErrCodeExpiredOrInvalid
	case errors.Is(err, domain.ErrSelfRedemptionForbidden):
		appErr = ErrSelfRedemption
	case errors.Is(err, domain.ErrAlreadyRedeemed):
		appErr = ErrAlreadyRedeemed
	case errors.Is(err, domain.ErrRoleNotPermitted):
		appErr = ErrRoleNotPermitted
	case errors.Is(err, domain.ErrNotRecipient):
		appErr = ErrNotRecipient
	case errors.Is(err, domain.ErrRateLimited):
		appErr = ErrRateLimited
	case errors.Is(err, domain.ErrBatchTooLarge):
		appErr = ErrBatchTooLarge
	case errors.Is(err, domain.ErrInvalidAmount):
		appErr = ErrInvalidAmount
	case errors.Is(err, domain.ErrInvalidRequest):
		appErr = ErrInvalidRequest
	default:
		slog.Error("unhandled domain error", "error", err)
		appErr = ErrInternalError
	}

	RespondAppError(w, appErr, details)
}
