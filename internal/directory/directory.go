package directory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/josh-kwaku/mobile-money/internal/domain"
	"github.com/josh-kwaku/mobile-money/internal/logging"
	"github.com/shopspring/decimal"
)

type accountStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Account, error)
	GetByPhone(ctx context.Context, phone string) (*domain.Account, error)
	ListByPhoneSuffix(ctx context.Context, suffix string, limit int) ([]domain.Account, error)
	CreateIfAbsent(ctx context.Context, a *domain.Account) (bool, error)
	UpdateCachedBalance(ctx context.Context, id uuid.UUID, balance decimal.Decimal) error
}

type balanceLedger interface {
	AdjustBalance(ctx context.Context, accountID uuid.UUID, delta decimal.Decimal) (decimal.Decimal, error)
}

// Directory resolves accounts by id or phone. Balances it reports always
// come from the ledger, never from the cached account column.
type Directory struct {
	accounts accountStore
	ledger   balanceLedger
}

func New(accounts accountStore, ledger balanceLedger) *Directory {
	return &Directory{accounts: accounts, ledger: ledger}
}

// Get loads an account that must exist, typically the authenticated actor.
func (d *Directory) Get(ctx context.Context, id uuid.UUID) (*domain.Account, error) {
	a, err := d.accounts.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, fmt.Errorf("Get: %w", domain.ErrAccountNotFound)
		}
		return nil, fmt.Errorf("Get: %w", err)
	}
	return a, nil
}

// Resolve accepts an account id or a phone number in any common format.
func (d *Directory) Resolve(ctx context.Context, phoneOrID string) (*domain.Account, bool, error) {
	if id, err := uuid.Parse(phoneOrID); err == nil {
		a, err := d.accounts.GetByID(ctx, id)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return nil, false, nil
			}
			return nil, false, fmt.Errorf("Resolve: %w", err)
		}
		return a, true, nil
	}

	a, found, err := d.FindByPhone(ctx, phoneOrID)
	if err != nil {
		return nil, false, fmt.Errorf("Resolve: %w", err)
	}
	return a, found, nil
}

// FindByPhone tries an exact match on the normalized number first, then the
// last PhoneSuffixLen digits. A suffix shared by several accounts is an
// error, never a pick.
func (d *Directory) FindByPhone(ctx context.Context, phone string) (*domain.Account, bool, error) {
	normalized := domain.NormalizePhone(phone)
	if normalized == "" || normalized == "+" {
		return nil, false, fmt.Errorf("FindByPhone: empty phone: %w", domain.ErrInvalidRequest)
	}

	a, err := d.accounts.GetByPhone(ctx, normalized)
	if err == nil {
		return a, true, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return nil, false, fmt.Errorf("FindByPhone: %w", err)
	}

	suffix := domain.PhoneSuffix(normalized)
	if len(suffix) < domain.PhoneSuffixLen {
		return nil, false, nil
	}
	matches, err := d.accounts.ListByPhoneSuffix(ctx, suffix, 2)
	if err != nil {
		return nil, false, fmt.Errorf("FindByPhone: %w", err)
	}
	switch len(matches) {
	case 0:
		return nil, false, nil
	case 1:
		logging.FromContext(ctx).Debug("phone resolved by suffix", "suffix", suffix, "account_id", matches[0].ID)
		return &matches[0], true, nil
	default:
		return nil, false, fmt.Errorf("FindByPhone: suffix %s: %w", suffix, domain.ErrAmbiguousPhone)
	}
}

// EnsureProvisioned returns the account with id, creating it with a zero
// balance when it does not exist. Existing accounts only get their cached
// balance resynchronized from the ledger.
func (d *Directory) EnsureProvisioned(ctx context.Context, id uuid.UUID, seedPhone, seedCountry string) (*domain.Account, error) {
	log := logging.FromContext(ctx)

	phone := domain.NormalizePhone(seedPhone)
	if phone == "" {
		return nil, fmt.Errorf("EnsureProvisioned: empty phone: %w", domain.ErrInvalidRequest)
	}
	country := seedCountry
	if country == "" {
		if c, ok := domain.CountryForPhone(phone); ok {
			country = c.Name
		}
	}

	created, err := d.accounts.CreateIfAbsent(ctx, &domain.Account{
		ID:        id,
		Phone:     phone,
		Country:   country,
		Role:      domain.RoleUser,
		Balance:   decimal.Zero,
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		return nil, fmt.Errorf("EnsureProvisioned: %w", err)
	}

	a, err := d.accounts.GetByID(ctx, id)
	if errors.Is(err, domain.ErrNotFound) {
		// Lost to an existing row holding the same phone.
		a, err = d.accounts.GetByPhone(ctx, phone)
	}
	if err != nil {
		return nil, fmt.Errorf("EnsureProvisioned: reload: %w", err)
	}

	if created {
		log.Info("account provisioned", "account_id", a.ID, "country", a.Country)
		return a, nil
	}

	balance, err := d.Balance(ctx, a.ID)
	if err != nil {
		return nil, fmt.Errorf("EnsureProvisioned: %w", err)
	}
	if !balance.Equal(a.Balance) {
		if err := d.accounts.UpdateCachedBalance(ctx, a.ID, balance); err != nil {
			return nil, fmt.Errorf("EnsureProvisioned: %w", err)
		}
		log.Info("cached balance resynchronized", "account_id", a.ID, "cached", a.Balance.String(), "ledger", balance.String())
		a.Balance = balance
	}
	return a, nil
}

// Balance probes the ledger with a zero delta.
func (d *Directory) Balance(ctx context.Context, id uuid.UUID) (decimal.Decimal, error) {
	balance, err := d.ledger.AdjustBalance(ctx, id, decimal.Zero)
	if err != nil {
		return decimal.Zero, fmt.Errorf("Balance: %w: %w", domain.ErrLedgerMutationFailed, err)
	}
	return balance, nil
}

// Refresh writes the ledger balance observed after a mutation back to the
// account's cached column. Failures are logged only.
func (d *Directory) Refresh(ctx context.Context, id uuid.UUID, balance decimal.Decimal) {
	if err := d.accounts.UpdateCachedBalance(ctx, id, balance); err != nil {
		logging.FromContext(ctx).Warn("cached balance update failed", "account_id", id, "error", err)
	}
}
