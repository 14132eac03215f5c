package domain

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var (
	ErrNotFound                = errors.New("not found")
	ErrInvalidAmount           = errors.New("amount must be greater than zero")
	ErrInvalidRequest          = errors.New("invalid request")
	ErrInsufficientFunds       = errors.New("insufficient funds")
	ErrAccountNotFound         = errors.New("account not found")
	ErrAmbiguousPhone          = errors.New("phone number matches more than one account")
	ErrAccountBanned           = errors.New("account banned")
	ErrSelfTransfer            = errors.New("cannot transfer to the same account")
	ErrLedgerMutationFailed    = errors.New("ledger mutation failed")
	ErrCompensationFailed      = errors.New("compensation failed: inconsistent state")
	ErrCodeExpiredOrInvalid    = errors.New("verification code expired or invalid")
	ErrSelfRedemptionForbidden = errors.New("owner cannot redeem own withdrawal")
	ErrAlreadyRedeemed         = errors.New("withdrawal already redeemed")
	ErrRoleNotPermitted        = errors.New("role not permitted for this operation")
	ErrRateLimited             = errors.New("too many attempts")
	ErrUnsupportedCountry      = errors.New("unsupported country")
	ErrDuplicateCode           = errors.New("verification code already in use")
	ErrDuplicateOperation      = errors.New("operation already recorded")
	ErrNotRecipient            = errors.New("transfer is not addressed to this account")
	ErrBatchTooLarge           = errors.New("batch exceeds maximum item count")
)

// InsufficientFundsError carries the amounts behind an ErrInsufficientFunds
// rejection so callers can report the shortfall.
type InsufficientFundsError struct {
	Required  decimal.Decimal
	Available decimal.Decimal
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("insufficient funds: required %s, available %s", e.Required.StringFixed(2), e.Available.StringFixed(2))
}

func (e *InsufficientFundsError) Unwrap() error { return ErrInsufficientFunds }

func (e *InsufficientFundsError) Shortfall() decimal.Decimal {
	return e.Required.Sub(e.Available)
}
