package handler

import "net/http"

type AppError struct {
	Status  int
	Code    string
	Message string
}

func (e *AppError) Error() string { return e.Message }

var (
	ErrMissingToken       = &AppError{http.StatusUnauthorized, "MISSING_TOKEN", "Authorization header required"}
	ErrInvalidToken       = &AppError{http.StatusUnauthorized, "INVALID_TOKEN", "Token is invalid or expired"}
	ErrInvalidCredentials = &AppError{http.StatusUnauthorized, "INVALID_CREDENTIALS", "Invalid phone or PIN"}
	ErrInvalidRequest     = &AppError{http.StatusBadRequest, "INVALID_REQUEST", "Invalid request body"}
	ErrValidationFailed   = &AppError{http.StatusBadRequest, "VALIDATION_FAILED", "Validation failed"}
	ErrResourceNotFound   = &AppError{http.StatusNotFound, "RESOURCE_NOT_FOUND", "Resource not found"}
	ErrInternalError      = &AppError{http.StatusInternalServerError, "INTERNAL_ERROR", "An unexpected error occurred"}
	ErrInconsistentState  = &AppError{http.StatusInternalServerError, "INCONSISTENT_STATE", "Operation left balances inconsistent and was escalated for reconciliation"}

	ErrInsufficientFunds     = &AppError{http.StatusUnprocessableEntity, "INSUFFICIENT_FUNDS", "Insufficient funds"}
	ErrAccountBanned         = &AppError{http.StatusForbidden, "ACCOUNT_BANNED", "Account is banned"}
	ErrSelfTransfer          = &AppError{http.StatusUnprocessableEntity, "SELF_TRANSFER_NOT_ALLOWED", "Cannot transfer to the same account"}
	ErrAccountNotFound       = &AppError{http.StatusUnprocessableEntity, "ACCOUNT_NOT_FOUND", "Account not found"}
	ErrAmbiguousPhone        = &AppError{http.StatusUnprocessableEntity, "AMBIGUOUS_PHONE", "Phone number matches more than one account"}
	ErrUnsupportedCountry    = &AppError{http.StatusUnprocessableEntity, "UNSUPPORTED_COUNTRY", "Country is not supported"}
	ErrLedgerUnavailable     = &AppError{http.StatusBadGateway, "LEDGER_MUTATION_FAILED", "Balance update failed; no money was moved"}
	ErrCodeExpiredOrInvalid  = &AppError{http.StatusUnprocessableEntity, "CODE_EXPIRED_OR_INVALID", "Code is invalid or has expired"}
	ErrSelfRedemption        = &AppError{http.StatusUnprocessableEntity, "SELF_REDEMPTION_FORBIDDEN", "The owner cannot redeem their own withdrawal"}
	ErrAlreadyRedeemed       = &AppError{http.StatusConflict, "ALREADY_REDEEMED", "Already redeemed"}
	ErrRoleNotPermitted      = &AppError{http.StatusForbidden, "ROLE_NOT_PERMITTED", "Role not permitted for this operation"}
	ErrNotRecipient          = &AppError{http.StatusForbidden, "NOT_RECIPIENT", "Transfer is not addressed to this account"}
	ErrRateLimited           = &AppError{http.StatusTooManyRequests, "RATE_LIMITED", "Too many attempts, try again later"}
	ErrBatchTooLarge         = &AppError{http.StatusRequestEntityTooLarge, "BATCH_TOO_LARGE", "Batch exceeds the maximum number of items"}
	ErrMissingIdempotencyKey = &AppError{http.StatusBadRequest, "MISSING_IDEMPOTENCY_KEY", "Idempotency-Key header is required"}
	ErrIdempotencyConflict   = &AppError{http.StatusConflict, "IDEMPOTENCY_CONFLICT", "Idempotency key already used with a different request"}
	ErrInvalidAmount         = &AppError{http.StatusBadRequest, "INVALID_AMOUNT", "Amount must be greater than zero with at most two decimals"}
)
