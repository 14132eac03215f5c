package deposit

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/josh-kwaku/mobile-money/internal/domain"
	"github.com/josh-kwaku/mobile-money/internal/logging"
	"github.com/josh-kwaku/mobile-money/internal/saga"
)

const reasonCancelled = "cancelled before processing"

type BatchRequest struct {
	// JobID makes a resubmitted batch resume item by item. A zero value
	// starts a new job.
	JobID uuid.UUID
	Items []domain.BatchDepositItem
}

// batchItemRecord is the history payload of one funded item.
type batchItemRecord struct {
	JobID       uuid.UUID       `json:"job_id"`
	Index       int             `json:"index"`
	FunderID    uuid.UUID       `json:"funder_id"`
	RecipientID uuid.UUID       `json:"recipient_id"`
	Amount      decimal.Decimal `json:"amount"`
}

// ItemOperationID is the saga id of one batch item.
func ItemOperationID(jobID uuid.UUID, index int) uuid.UUID {
	return uuid.NewSHA1(jobID, []byte("item:"+strconv.Itoa(index)))
}

// Process funds each item in order, one at a time. An item that fails is
// reported and the batch moves on. The balance pre-check is advisory: a
// funder spending concurrently can still run short mid-batch, which then
// fails the affected items.
func (s *Service) Process(ctx context.Context, funder domain.Actor, req BatchRequest) (*domain.BatchDepositSummary, error) {
	if !funder.Role.CanFundAgents() {
		return nil, fmt.Errorf("Process: %w", domain.ErrRoleNotPermitted)
	}
	if len(req.Items) == 0 {
		return nil, fmt.Errorf("Process: no items: %w", domain.ErrInvalidRequest)
	}
	if len(req.Items) > s.cfg.MaxBatchItems {
		return nil, fmt.Errorf("Process: %d items, limit %d: %w", len(req.Items), s.cfg.MaxBatchItems, domain.ErrBatchTooLarge)
	}

	jobID := req.JobID
	if jobID == uuid.Nil {
		jobID = uuid.New()
	}
	log := logging.FromContext(ctx).With("job_id", jobID, "funder_id", funder.ID)

	account, err := s.directory.Get(ctx, funder.ID)
	if err != nil {
		return nil, fmt.Errorf("Process: funder: %w", err)
	}
	if account.Banned {
		return nil, fmt.Errorf("Process: %w", domain.ErrAccountBanned)
	}

	resumed, err := s.jobStarted(ctx, jobID, len(req.Items))
	if err != nil {
		return nil, fmt.Errorf("Process: %w", err)
	}
	if !resumed {
		total := decimal.Zero
		for _, item := range req.Items {
			if item.Amount.IsPositive() {
				total = total.Add(item.Amount)
			}
		}
		balance, err := s.directory.Balance(ctx, funder.ID)
		if err != nil {
			return nil, fmt.Errorf("Process: %w", err)
		}
		if balance.LessThan(total) {
			s.runner.Conclude(batchKind, saga.StateRejectedInsufficientFunds)
			return nil, fmt.Errorf("Process: %w", &domain.InsufficientFundsError{Required: total, Available: balance})
		}
	}

	results := make([]domain.BatchDepositResult, len(req.Items))
	var (
		lastBalance decimal.Decimal
		moved       bool
	)
	for i, item := range req.Items {
		results[i] = domain.BatchDepositResult{Index: i, Recipient: item.Recipient, Amount: item.Amount}
		if ctx.Err() != nil {
			results[i].ErrorReason = reasonCancelled
			s.observeItem(false)
			continue
		}

		recipientID, balance, err := s.processItem(ctx, funder, jobID, i, item)
		if recipientID != uuid.Nil {
			results[i].RecipientID = &recipientID
		}
		if err != nil {
			log.Warn("batch item failed", "index", i, "recipient", item.Recipient, "error", err)
			results[i].ErrorReason = failureReason(err)
			s.observeItem(false)
			continue
		}
		results[i].Success = true
		lastBalance, moved = balance, true
		s.observeItem(true)
	}

	if moved {
		s.directory.Refresh(context.WithoutCancel(ctx), funder.ID, lastBalance)
	}

	summary := domain.Summarize(jobID, results)
	log.Info("batch deposit processed",
		"items", len(results),
		"succeeded", summary.Succeeded,
		"failed", summary.Failed,
		"total_moved", summary.TotalMoved.String(),
	)
	return &summary, nil
}

func (s *Service) processItem(ctx context.Context, funder domain.Actor, jobID uuid.UUID, index int, item domain.BatchDepositItem) (uuid.UUID, decimal.Decimal, error) {
	if !item.Amount.IsPositive() || !item.Amount.Equal(item.Amount.Round(2)) {
		return uuid.Nil, decimal.Zero, domain.ErrInvalidAmount
	}

	recipient, found, err := s.directory.Resolve(ctx, item.Recipient)
	if err != nil {
		return uuid.Nil, decimal.Zero, err
	}
	if !found {
		return uuid.Nil, decimal.Zero, domain.ErrAccountNotFound
	}
	if recipient.ID == funder.ID {
		return recipient.ID, decimal.Zero, domain.ErrSelfTransfer
	}
	if recipient.Banned {
		return recipient.ID, decimal.Zero, domain.ErrAccountBanned
	}

	opID := ItemOperationID(jobID, index)
	outcome, err := s.runner.Run(ctx, saga.Plan{
		OperationID: opID,
		Kind:        batchKind,
		Debit:       saga.Step{Name: stepDebitFunder, AccountID: funder.ID, Delta: item.Amount.Neg()},
		Credits: []saga.Step{
			{Name: stepCreditRecipient, AccountID: recipient.ID, Delta: item.Amount},
		},
	})
	if err != nil {
		return recipient.ID, decimal.Zero, err
	}

	rec := &batchItemRecord{
		JobID:       jobID,
		Index:       index,
		FunderID:    funder.ID,
		RecipientID: recipient.ID,
		Amount:      item.Amount,
	}
	if err := s.recorder.Record(ctx, domain.RecordKindBatchDeposit, opID, funder.ID, rec); err != nil {
		logging.FromContext(ctx).Error("transaction record failed", "operation_id", opID, "error", err)
		s.runner.Report(outcome)
	} else {
		s.runner.MarkRecorded(outcome)
	}

	if b, ok := outcome.Balance(stepCreditRecipient); ok {
		s.directory.Refresh(ctx, recipient.ID, b)
	}
	balance, _ := outcome.Balance(stepDebitFunder)
	return recipient.ID, balance, nil
}

func (s *Service) jobStarted(ctx context.Context, jobID uuid.UUID, items int) (bool, error) {
	for i := 0; i < items; i++ {
		started, err := s.runner.Started(ctx, ItemOperationID(jobID, i))
		if err != nil || started {
			return started, err
		}
	}
	return false, nil
}

func (s *Service) observeItem(success bool) {
	if s.observer != nil {
		s.observer.BatchItem(success)
	}
}

var itemReasons = []error{
	domain.ErrInvalidAmount,
	domain.ErrInvalidRequest,
	domain.ErrAccountNotFound,
	domain.ErrAmbiguousPhone,
	domain.ErrSelfTransfer,
	domain.ErrAccountBanned,
	domain.ErrCompensationFailed,
	domain.ErrLedgerMutationFailed,
}

// failureReason reports the most specific known cause of an item failure.
func failureReason(err error) string {
	for _, known := range itemReasons {
		if errors.Is(err, known) {
			return known.Error()
		}
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return reasonCancelled
	}
	return err.Error()
}
