package commission

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/josh-kwaku/mobile-money/internal/domain"
	"github.com/josh-kwaku/mobile-money/internal/fee"
)

type transferStore interface {
	ListSettledSince(ctx context.Context, since time.Time) ([]domain.TransferRecord, error)
}

type withdrawalStore interface {
	ListCompletedSince(ctx context.Context, since time.Time) ([]domain.WithdrawalRequest, error)
}

type feeCalculator interface {
	ComputeFee(op fee.Operation, amount decimal.Decimal, senderCountry, recipientCountry string, role domain.Role) (*fee.Quote, error)
}

// Service derives commission entries from settled transfers and completed
// withdrawals. Nothing it reports is stored.
type Service struct {
	transfers   transferStore
	withdrawals withdrawalStore
	fees        feeCalculator
}

func NewService(transfers transferStore, withdrawals withdrawalStore, fees feeCalculator) *Service {
	return &Service{transfers: transfers, withdrawals: withdrawals, fees: fees}
}

// Report lists commissions earned since the given time. Admins and
// sub-admins see every entry; agents see only withdrawals they redeemed.
func (s *Service) Report(ctx context.Context, actor domain.Actor, since time.Time) (*domain.CommissionSummary, error) {
	all := actor.Role == domain.RoleAdmin || actor.Role == domain.RoleSubAdmin
	if !all && actor.Role != domain.RoleAgent {
		return nil, fmt.Errorf("Report: %w", domain.ErrRoleNotPermitted)
	}

	var entries []domain.CommissionEntry

	if all {
		transfers, err := s.transfers.ListSettledSince(ctx, since)
		if err != nil {
			return nil, fmt.Errorf("Report: transfers: %w", err)
		}
		for _, t := range transfers {
			// The whole transfer fee is platform revenue.
			entries = append(entries, domain.CommissionEntry{
				Source:             domain.CommissionSourceTransfer,
				ReferenceID:        t.ID,
				Amount:             t.Amount,
				Fee:                t.Fee,
				ActorCommission:    decimal.Zero,
				PlatformCommission: t.Fee,
				OccurredAt:         t.CreatedAt,
			})
		}
	}

	withdrawals, err := s.withdrawals.ListCompletedSince(ctx, since)
	if err != nil {
		return nil, fmt.Errorf("Report: withdrawals: %w", err)
	}
	for _, w := range withdrawals {
		if w.RedeemedBy == nil || w.RedeemerRole == nil {
			continue
		}
		if !all && *w.RedeemedBy != actor.ID {
			continue
		}
		q, err := s.fees.ComputeFee(fee.OpWithdrawal, w.Amount, "", "", *w.RedeemerRole)
		if err != nil {
			return nil, fmt.Errorf("Report: withdrawal %s: %w", w.ID, err)
		}
		occurred := w.UpdatedAt
		if w.CompletedAt != nil {
			occurred = *w.CompletedAt
		}
		entries = append(entries, domain.CommissionEntry{
			Source:             domain.CommissionSourceWithdrawal,
			ReferenceID:        w.ID,
			BeneficiaryID:      w.RedeemedBy,
			Amount:             w.Amount,
			Fee:                q.Fee,
			ActorCommission:    q.ActorCommission,
			PlatformCommission: q.PlatformCommission,
			OccurredAt:         occurred,
		})
	}

	sort.SliceStable(entries, func(i, j int) bool { return entries[i].OccurredAt.After(entries[j].OccurredAt) })

	summary := &domain.CommissionSummary{ActorTotal: decimal.Zero, PlatformTotal: decimal.Zero, Entries: entries}
	for _, e := range entries {
		summary.ActorTotal = summary.ActorTotal.Add(e.ActorCommission)
		summary.PlatformTotal = summary.PlatformTotal.Add(e.PlatformCommission)
	}
	return summary, nil
}
