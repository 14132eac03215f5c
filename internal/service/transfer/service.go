package transfer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/josh-kwaku/mobile-money/internal/domain"
	"github.com/josh-kwaku/mobile-money/internal/fee"
	"github.com/josh-kwaku/mobile-money/internal/logging"
	"github.com/josh-kwaku/mobile-money/internal/saga"
	"github.com/josh-kwaku/mobile-money/internal/service/code"
)

const (
	sagaKind = "transfer"
	// claimKind is the saga run when a pending-claim transfer is claimed.
	claimKind = "transfer_claim"

	stepDebitSender     = "debit_sender"
	stepCreditRecipient = "credit_recipient"
	stepCommission      = "commission_platform"

	claimCodeDigits   = 8
	claimCodeAttempts = 5
)

type directory interface {
	Get(ctx context.Context, id uuid.UUID) (*domain.Account, error)
	FindByPhone(ctx context.Context, phone string) (*domain.Account, bool, error)
	Balance(ctx context.Context, id uuid.UUID) (decimal.Decimal, error)
	Refresh(ctx context.Context, id uuid.UUID, balance decimal.Decimal)
}

type transferStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.TransferRecord, error)
	GetByOperationID(ctx context.Context, operationID uuid.UUID) (*domain.TransferRecord, error)
	GetByClaimCode(ctx context.Context, code string) (*domain.TransferRecord, error)
	ListForAccount(ctx context.Context, accountID uuid.UUID, limit, offset int) ([]domain.TransferRecord, error)
	SoftDelete(ctx context.Context, id, senderID uuid.UUID) error
	MarkClaimed(ctx context.Context, id, recipientID uuid.UUID, recipientName string) error
	ReleaseClaim(ctx context.Context, id, recipientID uuid.UUID) error
}

type recorder interface {
	Record(ctx context.Context, kind domain.RecordKind, operationID, actorID uuid.UUID, payload any) error
}

type feeCalculator interface {
	ComputeFee(op fee.Operation, amount decimal.Decimal, senderCountry, recipientCountry string, role domain.Role) (*fee.Quote, error)
}

type sagaRunner interface {
	Started(ctx context.Context, operationID uuid.UUID) (bool, error)
	Run(ctx context.Context, plan saga.Plan) (*saga.Outcome, error)
	Conclude(kind string, state saga.State)
	MarkRecorded(o *saga.Outcome)
	Report(o *saga.Outcome)
}

type CreateTransferRequest struct {
	IdempotencyKey   string
	RecipientPhone   string
	RecipientName    string
	RecipientCountry string
	Amount           decimal.Decimal
}

type Result struct {
	Transfer      *domain.TransferRecord
	Quote         *fee.Quote
	SenderBalance decimal.Decimal
	State         saga.State
	Replayed      bool
}

// Service coordinates direct transfers between accounts.
type Service struct {
	directory       directory
	transfers       transferStore
	recorder        recorder
	fees            feeCalculator
	runner          sagaRunner
	platformAccount uuid.UUID
	now             func() time.Time
}

func NewService(
	dir directory,
	transfers transferStore,
	rec recorder,
	fees feeCalculator,
	runner sagaRunner,
	platformAccount uuid.UUID,
) *Service {
	return &Service{
		directory:       dir,
		transfers:       transfers,
		recorder:        rec,
		fees:            fees,
		runner:          runner,
		platformAccount: platformAccount,
		now:             func() time.Time { return time.Now().UTC() },
	}
}

// OperationID derives the saga id for a transfer. The same sender and key
// always give the same id, so a retried request resumes instead of paying
// twice.
func OperationID(senderID uuid.UUID, idempotencyKey string) uuid.UUID {
	if idempotencyKey == "" {
		return uuid.New()
	}
	return uuid.NewSHA1(senderID, []byte("transfer:"+idempotencyKey))
}

func (s *Service) CreateTransfer(ctx context.Context, actor domain.Actor, req CreateTransferRequest) (*Result, error) {
	opID := OperationID(actor.ID, req.IdempotencyKey)
	log := logging.FromContext(ctx).With("operation_id", opID, "sender_id", actor.ID)

	if !req.Amount.IsPositive() || !req.Amount.Equal(req.Amount.Round(2)) {
		return nil, fmt.Errorf("CreateTransfer: %w", domain.ErrInvalidAmount)
	}

	if existing, err := s.transfers.GetByOperationID(ctx, opID); err == nil {
		return s.replay(ctx, existing)
	} else if !errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("CreateTransfer: %w", err)
	}

	sender, err := s.directory.Get(ctx, actor.ID)
	if err != nil {
		return nil, fmt.Errorf("CreateTransfer: sender: %w", err)
	}
	if sender.Banned {
		return nil, fmt.Errorf("CreateTransfer: %w", domain.ErrAccountBanned)
	}

	recipient, found, err := s.directory.FindByPhone(ctx, req.RecipientPhone)
	if err != nil {
		return nil, fmt.Errorf("CreateTransfer: recipient: %w", err)
	}
	if found {
		if recipient.ID == sender.ID {
			return nil, fmt.Errorf("CreateTransfer: %w", domain.ErrSelfTransfer)
		}
		if recipient.Banned {
			return nil, fmt.Errorf("CreateTransfer: recipient: %w", domain.ErrAccountBanned)
		}
	}

	recipientCountry, err := resolveCountry(recipient, req)
	if err != nil {
		return nil, fmt.Errorf("CreateTransfer: %w", err)
	}

	quote, err := s.fees.ComputeFee(fee.OpTransfer, req.Amount, sender.Country, recipientCountry, actor.Role)
	if err != nil {
		return nil, fmt.Errorf("CreateTransfer: %w", err)
	}

	started, err := s.runner.Started(ctx, opID)
	if err != nil {
		return nil, fmt.Errorf("CreateTransfer: %w", err)
	}
	if !started {
		balance, err := s.directory.Balance(ctx, sender.ID)
		if err != nil {
			return nil, fmt.Errorf("CreateTransfer: %w", err)
		}
		if balance.LessThan(quote.Total()) {
			s.runner.Conclude(sagaKind, saga.StateRejectedInsufficientFunds)
			return nil, fmt.Errorf("CreateTransfer: %w", &domain.InsufficientFundsError{
				Required:  quote.Total(),
				Available: balance,
			})
		}
	}

	now := s.now()
	record := &domain.TransferRecord{
		ID:               uuid.NewSHA1(opID, []byte("record")),
		OperationID:      opID,
		SenderID:         sender.ID,
		RecipientName:    req.RecipientName,
		RecipientPhone:   domain.NormalizePhone(req.RecipientPhone),
		RecipientCountry: recipientCountry,
		Amount:           quote.Amount,
		Fee:              quote.Fee,
		Currency:         currencyFor(sender.Country),
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	if !found {
		return s.createPendingClaim(ctx, record, quote)
	}

	record.RecipientID = &recipient.ID
	record.RecipientPhone = recipient.Phone
	if record.RecipientName == "" {
		record.RecipientName = recipient.DisplayName
	}
	record.Status = domain.TransferStatusCompleted

	outcome, err := s.runner.Run(ctx, s.plan(opID, sagaKind, sender.ID, recipient.ID, quote))
	if err != nil {
		return nil, fmt.Errorf("CreateTransfer: %w", err)
	}

	s.record(ctx, outcome, domain.RecordKindTransfer, actor.ID, record)

	senderBalance, _ := outcome.Balance(stepDebitSender)
	s.directory.Refresh(ctx, sender.ID, senderBalance)
	if b, ok := outcome.Balance(stepCreditRecipient); ok {
		s.directory.Refresh(ctx, recipient.ID, b)
	}

	log.Info("transfer completed",
		"recipient_id", recipient.ID,
		"amount", quote.Amount.String(),
		"fee", quote.Fee.String(),
		"resumed", outcome.Resumed,
	)

	return &Result{
		Transfer:      record,
		Quote:         quote,
		SenderBalance: senderBalance,
		State:         outcome.State,
	}, nil
}

// createPendingClaim stores a transfer to an unregistered phone. No money
// moves until the recipient claims it.
func (s *Service) createPendingClaim(ctx context.Context, record *domain.TransferRecord, quote *fee.Quote) (*Result, error) {
	record.Status = domain.TransferStatusPendingClaim

	for attempt := 1; ; attempt++ {
		claimCode, err := code.Generate(claimCodeDigits)
		if err != nil {
			return nil, fmt.Errorf("createPendingClaim: %w", err)
		}
		record.ClaimCode = &claimCode

		err = s.recorder.Record(ctx, domain.RecordKindTransfer, record.OperationID, record.SenderID, record)
		if err == nil {
			break
		}
		if !errors.Is(err, domain.ErrDuplicateCode) || attempt == claimCodeAttempts {
			return nil, fmt.Errorf("createPendingClaim: %w", err)
		}
	}

	s.runner.Conclude(sagaKind, saga.StatePendingClaim)

	balance, err := s.directory.Balance(ctx, record.SenderID)
	if err != nil {
		balance = decimal.Zero
	}

	logging.FromContext(ctx).Info("transfer held for unregistered recipient",
		"operation_id", record.OperationID,
		"recipient_phone", record.RecipientPhone,
		"amount", record.Amount.String(),
	)

	return &Result{
		Transfer:      record,
		Quote:         quote,
		SenderBalance: balance,
		State:         saga.StatePendingClaim,
	}, nil
}

func (s *Service) replay(ctx context.Context, t *domain.TransferRecord) (*Result, error) {
	balance, err := s.directory.Balance(ctx, t.SenderID)
	if err != nil {
		return nil, fmt.Errorf("CreateTransfer: replay: %w", err)
	}
	state := saga.StateRecorded
	if t.Status == domain.TransferStatusPendingClaim {
		state = saga.StatePendingClaim
	}
	return &Result{
		Transfer:      t,
		Quote:         &fee.Quote{Operation: fee.OpTransfer, Amount: t.Amount, Fee: t.Fee, PlatformCommission: t.Fee},
		SenderBalance: balance,
		State:         state,
		Replayed:      true,
	}, nil
}

// ClaimPendingTransfer pays out a pending-claim transfer to the registered
// account whose phone it was addressed to.
func (s *Service) ClaimPendingTransfer(ctx context.Context, actor domain.Actor, claimCode string) (*Result, error) {
	t, err := s.transfers.GetByClaimCode(ctx, claimCode)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, fmt.Errorf("ClaimPendingTransfer: %w", domain.ErrCodeExpiredOrInvalid)
		}
		return nil, fmt.Errorf("ClaimPendingTransfer: %w", err)
	}
	if t.Deleted {
		return nil, fmt.Errorf("ClaimPendingTransfer: cancelled by sender: %w", domain.ErrCodeExpiredOrInvalid)
	}
	if t.Status != domain.TransferStatusPendingClaim {
		return nil, fmt.Errorf("ClaimPendingTransfer: %w", domain.ErrAlreadyRedeemed)
	}

	claimant, err := s.directory.Get(ctx, actor.ID)
	if err != nil {
		return nil, fmt.Errorf("ClaimPendingTransfer: %w", err)
	}
	if claimant.Banned {
		return nil, fmt.Errorf("ClaimPendingTransfer: %w", domain.ErrAccountBanned)
	}
	if claimant.ID == t.SenderID {
		return nil, fmt.Errorf("ClaimPendingTransfer: %w", domain.ErrSelfTransfer)
	}
	if domain.PhoneSuffix(claimant.Phone) != domain.PhoneSuffix(t.RecipientPhone) {
		return nil, fmt.Errorf("ClaimPendingTransfer: %w", domain.ErrNotRecipient)
	}

	// Each attempt is its own saga: a released claim must be able to run
	// again, and MarkClaimed already stops concurrent attempts.
	opID := uuid.New()
	log := logging.FromContext(ctx).With("operation_id", opID, "transfer_id", t.ID, "claimant_id", claimant.ID)

	if err := s.transfers.MarkClaimed(ctx, t.ID, claimant.ID, claimant.DisplayName); err != nil {
		return nil, fmt.Errorf("ClaimPendingTransfer: %w", err)
	}
	release := func() {
		if err := s.transfers.ReleaseClaim(context.WithoutCancel(ctx), t.ID, claimant.ID); err != nil {
			log.Error("release claim failed", "error", err)
		}
	}

	quote := &fee.Quote{
		Operation:          fee.OpTransfer,
		Amount:             t.Amount,
		Fee:                t.Fee,
		PlatformCommission: t.Fee,
	}

	balance, err := s.directory.Balance(ctx, t.SenderID)
	if err != nil {
		release()
		return nil, fmt.Errorf("ClaimPendingTransfer: %w", err)
	}
	if balance.LessThan(t.Total()) {
		release()
		s.runner.Conclude(claimKind, saga.StateRejectedInsufficientFunds)
		return nil, fmt.Errorf("ClaimPendingTransfer: sender: %w", &domain.InsufficientFundsError{
			Required:  t.Total(),
			Available: balance,
		})
	}

	outcome, err := s.runner.Run(ctx, s.plan(opID, claimKind, t.SenderID, claimant.ID, quote))
	if err != nil {
		// An inconsistent run keeps the claim so nobody can claim it again
		// while operators reconcile.
		if !errors.Is(err, domain.ErrCompensationFailed) {
			release()
		}
		return nil, fmt.Errorf("ClaimPendingTransfer: %w", err)
	}

	t.Status = domain.TransferStatusClaimed
	t.RecipientID = &claimant.ID
	t.RecipientName = claimant.DisplayName
	s.record(ctx, outcome, domain.RecordKindClaim, actor.ID, t)

	senderBalance, _ := outcome.Balance(stepDebitSender)
	s.directory.Refresh(ctx, t.SenderID, senderBalance)
	if b, ok := outcome.Balance(stepCreditRecipient); ok {
		s.directory.Refresh(ctx, claimant.ID, b)
	}

	log.Info("pending transfer claimed", "amount", t.Amount.String())

	return &Result{
		Transfer:      t,
		Quote:         quote,
		SenderBalance: senderBalance,
		State:         outcome.State,
	}, nil
}

// Quote prices a transfer without moving money.
func (s *Service) Quote(ctx context.Context, actor domain.Actor, recipientPhone, recipientCountry string, amount decimal.Decimal) (*fee.Quote, error) {
	sender, err := s.directory.Get(ctx, actor.ID)
	if err != nil {
		return nil, fmt.Errorf("Quote: %w", err)
	}
	recipient, _, err := s.directory.FindByPhone(ctx, recipientPhone)
	if err != nil {
		return nil, fmt.Errorf("Quote: %w", err)
	}
	country, err := resolveCountry(recipient, CreateTransferRequest{RecipientPhone: recipientPhone, RecipientCountry: recipientCountry})
	if err != nil {
		return nil, fmt.Errorf("Quote: %w", err)
	}
	q, err := s.fees.ComputeFee(fee.OpTransfer, amount, sender.Country, country, actor.Role)
	if err != nil {
		return nil, fmt.Errorf("Quote: %w", err)
	}
	return q, nil
}

func (s *Service) ListTransfers(ctx context.Context, actor domain.Actor, limit, offset int) ([]domain.TransferRecord, error) {
	out, err := s.transfers.ListForAccount(ctx, actor.ID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("ListTransfers: %w", err)
	}
	return out, nil
}

func (s *Service) GetTransfer(ctx context.Context, actor domain.Actor, id uuid.UUID) (*domain.TransferRecord, error) {
	t, err := s.transfers.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("GetTransfer: %w", err)
	}
	involved := t.SenderID == actor.ID || (t.RecipientID != nil && *t.RecipientID == actor.ID)
	if !involved || t.Deleted {
		return nil, fmt.Errorf("GetTransfer: %w", domain.ErrNotFound)
	}
	return t, nil
}

// DeleteTransfer hides a transfer from the sender's history. Deleting a
// pending-claim transfer also cancels it; no money had moved.
func (s *Service) DeleteTransfer(ctx context.Context, actor domain.Actor, id uuid.UUID) error {
	if err := s.transfers.SoftDelete(ctx, id, actor.ID); err != nil {
		return fmt.Errorf("DeleteTransfer: %w", err)
	}
	return nil
}

func (s *Service) plan(opID uuid.UUID, kind string, senderID, recipientID uuid.UUID, q *fee.Quote) saga.Plan {
	return saga.Plan{
		OperationID: opID,
		Kind:        kind,
		Debit:       saga.Step{Name: stepDebitSender, AccountID: senderID, Delta: q.Total().Neg()},
		Credits: []saga.Step{
			{Name: stepCreditRecipient, AccountID: recipientID, Delta: q.Amount},
		},
		SideEffects: []saga.Step{
			{Name: stepCommission, AccountID: s.platformAccount, Delta: q.PlatformCommission},
		},
	}
}

// record persists history for a completed saga. Failure leaves balances as
// they are; the outcome just never reaches the recorded state.
func (s *Service) record(ctx context.Context, outcome *saga.Outcome, kind domain.RecordKind, actorID uuid.UUID, payload any) {
	if err := s.recorder.Record(ctx, kind, outcome.OperationID, actorID, payload); err != nil {
		logging.FromContext(ctx).Error("transaction record failed",
			"operation_id", outcome.OperationID,
			"kind", kind,
			"error", err,
		)
		s.runner.Report(outcome)
		return
	}
	s.runner.MarkRecorded(outcome)
}

func resolveCountry(recipient *domain.Account, req CreateTransferRequest) (string, error) {
	if recipient != nil && recipient.Country != "" {
		return recipient.Country, nil
	}
	if req.RecipientCountry != "" {
		c, ok := domain.LookupCountry(req.RecipientCountry)
		if !ok {
			return "", fmt.Errorf("recipient country %q: %w", req.RecipientCountry, domain.ErrUnsupportedCountry)
		}
		return c.Name, nil
	}
	if c, ok := domain.CountryForPhone(req.RecipientPhone); ok {
		return c.Name, nil
	}
	return "", nil
}

func currencyFor(country string) string {
	if c, ok := domain.LookupCountry(country); ok {
		return c.Currency
	}
	return "XAF"
}
