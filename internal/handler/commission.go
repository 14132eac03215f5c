package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/josh-kwaku/mobile-money/internal/domain"
)

const defaultCommissionWindow = 30 * 24 * time.Hour

type commissionService interface {
	Report(ctx context.Context, actor domain.Actor, since time.Time) (*domain.CommissionSummary, error)
}

type CommissionHandler struct {
	commissions commissionService
	now         func() time.Time
}

func NewCommissionHandler(commissions commissionService) *CommissionHandler {
	return &CommissionHandler{
		commissions: commissions,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

type commissionEntryDTO struct {
	Source             string     `json:"source"`
	ReferenceID        uuid.UUID  `json:"reference_id"`
	BeneficiaryID      *uuid.UUID `json:"beneficiary_id,omitempty"`
	Amount             string     `json:"amount"`
	Fee                string     `json:"fee"`
	ActorCommission    string     `json:"actor_commission"`
	PlatformCommission string     `json:"platform_commission"`
	OccurredAt         time.Time  `json:"occurred_at"`
}

type commissionSummaryDTO struct {
	Since         time.Time            `json:"since"`
	ActorTotal    string               `json:"actor_total"`
	PlatformTotal string               `json:"platform_total"`
	Entries       []commissionEntryDTO `json:"entries"`
}

// Report lists commissions earned since the RFC 3339 "since" query
// parameter, defaulting to the last 30 days.
func (h *CommissionHandler) Report(w http.ResponseWriter, r *http.Request) {
	actor, appErr := requireActor(r)
	if appErr != nil {
		RespondAppError(w, appErr, nil)
		return
	}

	since := h.now().Add(-defaultCommissionWindow)
	if v := r.URL.Query().Get("since"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			RespondValidationError(w, []FieldError{{Field: "since", Message: "must be an RFC 3339 timestamp"}})
			return
		}
		since = t
	}

	summary, err := h.commissions.Report(r.Context(), actor, since)
	if err != nil {
		RespondDomainError(w, err)
		return
	}

	entries := make([]commissionEntryDTO, len(summary.Entries))
	for i, e := range summary.Entries {
		entries[i] = commissionEntryDTO{
			Source:             string(e.Source),
			ReferenceID:        e.ReferenceID,
			BeneficiaryID:      e.BeneficiaryID,
			Amount:             e.Amount.StringFixed(2),
			Fee:                e.Fee.StringFixed(2),
			ActorCommission:    e.ActorCommission.StringFixed(2),
			PlatformCommission: e.PlatformCommission.StringFixed(2),
			OccurredAt:         e.OccurredAt,
		}
	}

	RespondSuccess(w, http.StatusOK, commissionSummaryDTO{
		Since:         since,
		ActorTotal:    summary.ActorTotal.StringFixed(2),
		PlatformTotal: summary.PlatformTotal.StringFixed(2),
		Entries:       entries,
	})
}
