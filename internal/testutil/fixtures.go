package testutil

import (
	"database/sql"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"

	"github.com/josh-kwaku/mobile-money/internal/domain"
)

// PlatformAccountID is seeded by the accounts migration.
var PlatformAccountID = uuid.MustParse("00000000-0000-0000-0000-000000000001")

const TestPIN = "4321"

func SeedAccount(t *testing.T, db *sql.DB, phone string, role domain.Role, country string) *domain.Account {
	t.Helper()

	hash, err := bcrypt.GenerateFromPassword([]byte(TestPIN), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash pin: %v", err)
	}

	a := &domain.Account{
		ID:          uuid.New(),
		Phone:       domain.NormalizePhone(phone),
		DisplayName: "Test " + string(role),
		Country:     country,
		Role:        role,
		Balance:     decimal.Zero,
		PinHash:     string(hash),
	}
	err = db.QueryRow(
		`INSERT INTO accounts (id, phone, phone_suffix, display_name, country, role, pin_hash)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING created_at`,
		a.ID, a.Phone, domain.PhoneSuffix(a.Phone), a.DisplayName, a.Country, a.Role, a.PinHash,
	).Scan(&a.CreatedAt)
	if err != nil {
		t.Fatalf("seed account %s: %v", phone, err)
	}
	return a
}

// SeedBalance sets the ledger balance directly, without a ledger entry.
func SeedBalance(t *testing.T, db *sql.DB, accountID uuid.UUID, balance decimal.Decimal) {
	t.Helper()

	_, err := db.Exec(
		`INSERT INTO ledger_balances (account_id, balance) VALUES ($1, $2::numeric)
		 ON CONFLICT (account_id) DO UPDATE SET balance = EXCLUDED.balance, updated_at = now()`,
		accountID, balance,
	)
	if err != nil {
		t.Fatalf("seed balance: %v", err)
	}
}

func LedgerBalance(t *testing.T, db *sql.DB, accountID uuid.UUID) decimal.Decimal {
	t.Helper()

	var balance decimal.Decimal
	err := db.QueryRow(
		`SELECT COALESCE((SELECT balance FROM ledger_balances WHERE account_id = $1), 0)`, accountID,
	).Scan(&balance)
	if err != nil {
		t.Fatalf("get ledger balance: %v", err)
	}
	return balance
}

func CountLedgerEntries(t *testing.T, db *sql.DB, accountID uuid.UUID) int {
	t.Helper()

	var count int
	if err := db.QueryRow(`SELECT count(*) FROM ledger_entries WHERE account_id = $1`, accountID).Scan(&count); err != nil {
		t.Fatalf("count ledger entries: %v", err)
	}
	return count
}
