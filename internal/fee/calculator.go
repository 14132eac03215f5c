package fee

import (
	"fmt"
	"strings"

	"github.com/josh-kwaku/mobile-money/internal/domain"
	"github.com/shopspring/decimal"
)

type Operation string

const (
	OpTransfer   Operation = "transfer"
	OpWithdrawal Operation = "withdrawal"
	OpDeposit    Operation = "deposit"
)

// Quote is the fee breakdown for a single operation. For deposits Fee is zero
// and ActorCommission is paid to the agent out of the platform account.
type Quote struct {
	Operation          Operation
	Amount             decimal.Decimal
	Fee                decimal.Decimal
	Rate               decimal.Decimal
	ActorCommission    decimal.Decimal
	PlatformCommission decimal.Decimal
}

// Total is what the paying account is debited.
func (q *Quote) Total() decimal.Decimal {
	return q.Amount.Add(q.Fee)
}

type split struct {
	actor    decimal.Decimal
	platform decimal.Decimal
}

type Calculator struct {
	nationalRate      decimal.Decimal
	internationalRate decimal.Decimal
	withdrawalRate    decimal.Decimal
	depositCommission decimal.Decimal
	withdrawalSplits  map[domain.Role]split
}

func NewCalculator() *Calculator {
	return &Calculator{
		nationalRate:      decimal.RequireFromString("0.01"),
		internationalRate: decimal.RequireFromString("0.06"),
		withdrawalRate:    decimal.RequireFromString("0.02"),
		depositCommission: decimal.RequireFromString("0.005"),
		withdrawalSplits: map[domain.Role]split{
			domain.RoleAgent:    {decimal.RequireFromString("0.01"), decimal.RequireFromString("0.01")},
			domain.RoleSubAdmin: {decimal.RequireFromString("0.005"), decimal.RequireFromString("0.015")},
			domain.RoleAdmin:    {decimal.Zero, decimal.RequireFromString("0.02")},
		},
	}
}

// ComputeFee is pure: identical inputs always give an identical quote.
// role is the confirming actor for withdrawals and the depositing agent for
// deposits; transfers ignore it.
func (c *Calculator) ComputeFee(op Operation, amount decimal.Decimal, senderCountry, recipientCountry string, role domain.Role) (*Quote, error) {
	if !amount.IsPositive() {
		return nil, fmt.Errorf("ComputeFee: %w", domain.ErrInvalidAmount)
	}

	q := &Quote{
		Operation:          op,
		Amount:             amount,
		Fee:                decimal.Zero,
		Rate:               decimal.Zero,
		ActorCommission:    decimal.Zero,
		PlatformCommission: decimal.Zero,
	}

	switch op {
	case OpTransfer:
		q.Rate = c.nationalRate
		if !SameCountry(senderCountry, recipientCountry) {
			q.Rate = c.internationalRate
		}
		q.Fee = percent(amount, q.Rate)
		q.PlatformCommission = q.Fee
	case OpWithdrawal:
		q.Rate = c.withdrawalRate
		q.Fee = percent(amount, q.Rate)
		s, ok := c.withdrawalSplits[role]
		if !ok {
			// Not a confirming role; quote the fee with the whole of it
			// owed to the platform.
			q.PlatformCommission = q.Fee
			break
		}
		q.ActorCommission = percent(amount, s.actor)
		q.PlatformCommission = q.Fee.Sub(q.ActorCommission)
	case OpDeposit:
		q.ActorCommission = percent(amount, c.depositCommission)
	default:
		return nil, fmt.Errorf("ComputeFee: unknown operation %q: %w", op, domain.ErrInvalidRequest)
	}

	return q, nil
}

// SameCountry compares country names loosely. An empty recipient country is
// treated as national.
func SameCountry(a, b string) bool {
	a, b = strings.TrimSpace(a), strings.TrimSpace(b)
	if b == "" {
		return true
	}
	return strings.EqualFold(a, b)
}

func percent(amount, rate decimal.Decimal) decimal.Decimal {
	return amount.Mul(rate).Round(2)
}
