package domain

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type BatchDepositItem struct {
	Recipient string
	Amount    decimal.Decimal
}

type BatchDepositResult struct {
	Index       int
	Recipient   string
	RecipientID *uuid.UUID
	Amount      decimal.Decimal
	Success     bool
	ErrorReason string
}

type BatchDepositSummary struct {
	JobID      uuid.UUID
	Succeeded  int
	Failed     int
	TotalMoved decimal.Decimal
	Results    []BatchDepositResult
}

// Summarize derives counts and the moved total from per-item results.
func Summarize(jobID uuid.UUID, results []BatchDepositResult) BatchDepositSummary {
	s := BatchDepositSummary{JobID: jobID, TotalMoved: decimal.Zero, Results: results}
	for _, r := range results {
		if r.Success {
			s.Succeeded++
			s.TotalMoved = s.TotalMoved.Add(r.Amount)
		} else {
			s.Failed++
		}
	}
	return s
}

type DepositRecord struct {
	OperationID  uuid.UUID
	AgentID      uuid.UUID
	ClientID     uuid.UUID
	ClientPhone  string
	Amount       decimal.Decimal
	Commission   decimal.Decimal
	AgentBalance decimal.Decimal
}
