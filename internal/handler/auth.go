package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/josh-kwaku/mobile-money/internal/auth"
	"github.com/josh-kwaku/mobile-money/internal/domain"
	"github.com/josh-kwaku/mobile-money/internal/logging"
)

type accountFinder interface {
	FindByPhone(ctx context.Context, phone string) (*domain.Account, bool, error)
}

type AuthHandler struct {
	accounts  accountFinder
	jwtSecret string
	jwtExpiry time.Duration
}

func NewAuthHandler(accounts accountFinder, jwtSecret string, jwtExpiry time.Duration) *AuthHandler {
	return &AuthHandler{
		accounts:  accounts,
		jwtSecret: jwtSecret,
		jwtExpiry: jwtExpiry,
	}
}

type loginRequest struct {
	Phone string `json:"phone"`
	PIN   string `json:"pin"`
}

func (r loginRequest) Validate() []FieldError {
	var errs []FieldError
	if r.Phone == "" {
		errs = append(errs, FieldError{Field: "phone", Message: "required"})
	}
	if r.PIN == "" {
		errs = append(errs, FieldError{Field: "pin", Message: "required"})
	}
	return errs
}

type loginResponse struct {
	Token   string     `json:"token"`
	Account accountDTO `json:"account"`
}

// Login exchanges a phone number and PIN for a bearer token. Unknown phones,
// accounts without a PIN and wrong PINs all get the same answer.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondAppError(w, ErrInvalidRequest, nil)
		return
	}

	if fields := req.Validate(); len(fields) > 0 {
		RespondValidationError(w, fields)
		return
	}

	account, found, err := h.accounts.FindByPhone(r.Context(), req.Phone)
	if err != nil {
		logging.FromContext(r.Context()).Warn("login lookup failed", "error", err)
		RespondDomainError(w, err)
		return
	}
	if !found || account.PinHash == "" {
		RespondAppError(w, ErrInvalidCredentials, nil)
		return
	}

	if err := bcrypt.CompareHashAndPassword([]byte(account.PinHash), []byte(req.PIN)); err != nil {
		RespondAppError(w, ErrInvalidCredentials, nil)
		return
	}
	if account.Banned {
		RespondAppError(w, ErrAccountBanned, nil)
		return
	}

	token, err := auth.GenerateToken(account.ID, account.Role, h.jwtSecret, h.jwtExpiry)
	if err != nil {
		RespondAppError(w, ErrInternalError, nil)
		return
	}

	RespondSuccess(w, http.StatusOK, loginResponse{
		Token:   token,
		Account: toAccountDTO(account, account.Balance),
	})
}
