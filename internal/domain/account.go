package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Role string

const (
	RoleUser     Role = "user"
	RoleAgent    Role = "agent"
	RoleSubAdmin Role = "sub_admin"
	RoleAdmin    Role = "admin"
)

func (r Role) IsValid() bool {
	switch r {
	case RoleUser, RoleAgent, RoleSubAdmin, RoleAdmin:
		return true
	}
	return false
}

// CanConfirmWithdrawal reports whether the role may redeem a withdrawal code
// and pay out cash against it.
func (r Role) CanConfirmWithdrawal() bool {
	return r == RoleAgent || r == RoleSubAdmin || r == RoleAdmin
}

// CanDepositForClient reports whether the role may credit a client from its
// own float.
func (r Role) CanDepositForClient() bool {
	return r == RoleAgent || r == RoleSubAdmin || r == RoleAdmin
}

// CanFundAgents reports whether the role may run batch deposits.
func (r Role) CanFundAgents() bool {
	return r == RoleSubAdmin || r == RoleAdmin
}

// Actor is the authenticated caller of an operation.
type Actor struct {
	ID   uuid.UUID
	Role Role
}

type Account struct {
	ID          uuid.UUID
	Phone       string
	DisplayName string
	Country     string
	Role        Role
	Balance     decimal.Decimal
	PinHash     string
	Banned      bool
	CreatedAt   time.Time
}

func (a *Account) Actor() Actor {
	return Actor{ID: a.ID, Role: a.Role}
}
