package withdrawal

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/josh-kwaku/mobile-money/internal/domain"
	"github.com/josh-kwaku/mobile-money/internal/fee"
	"github.com/josh-kwaku/mobile-money/internal/limiter"
	"github.com/josh-kwaku/mobile-money/internal/logging"
	"github.com/josh-kwaku/mobile-money/internal/saga"
	"github.com/josh-kwaku/mobile-money/internal/service/code"
)

const (
	sagaKind = "withdrawal"

	stepDebitOwner     = "debit_owner"
	stepCreditRedeemer = "credit_redeemer"
	stepCreditPlatform = "credit_platform"

	codeDigits   = 6
	codeAttempts = 5

	limitScope = "withdrawal_redeem"
)

type directory interface {
	Get(ctx context.Context, id uuid.UUID) (*domain.Account, error)
	FindByPhone(ctx context.Context, phone string) (*domain.Account, bool, error)
	Balance(ctx context.Context, id uuid.UUID) (decimal.Decimal, error)
	Refresh(ctx context.Context, id uuid.UUID, balance decimal.Decimal)
}

type withdrawalStore interface {
	Create(ctx context.Context, w *domain.WithdrawalRequest) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.WithdrawalRequest, error)
	GetByCode(ctx context.Context, code string) (*domain.WithdrawalRequest, error)
	ListByOwner(ctx context.Context, ownerID uuid.UUID, limit, offset int) ([]domain.WithdrawalRequest, error)
	Claim(ctx context.Context, id, redeemerID uuid.UUID, role domain.Role, fee decimal.Decimal) error
	Finish(ctx context.Context, id uuid.UUID, status domain.WithdrawalStatus, at time.Time) error
}

type recorder interface {
	Record(ctx context.Context, kind domain.RecordKind, operationID, actorID uuid.UUID, payload any) error
}

type feeCalculator interface {
	ComputeFee(op fee.Operation, amount decimal.Decimal, senderCountry, recipientCountry string, role domain.Role) (*fee.Quote, error)
}

type sagaRunner interface {
	Run(ctx context.Context, plan saga.Plan) (*saga.Outcome, error)
	Conclude(kind string, state saga.State)
	MarkRecorded(o *saga.Outcome)
	Report(o *saga.Outcome)
}

type attemptLimiter interface {
	Allow(ctx context.Context, scope, subject string) (limiter.Decision, error)
}

type redemptionObserver interface {
	Redemption(result string)
}

type Config struct {
	PlatformAccount uuid.UUID
	CodeTTL         time.Duration
}

type Service struct {
	directory   directory
	withdrawals withdrawalStore
	recorder    recorder
	fees        feeCalculator
	runner      sagaRunner
	limiter     attemptLimiter
	observer    redemptionObserver
	cfg         Config
	now         func() time.Time
}

func NewService(
	dir directory,
	withdrawals withdrawalStore,
	rec recorder,
	fees feeCalculator,
	runner sagaRunner,
	lim attemptLimiter,
	observer redemptionObserver,
	cfg Config,
) *Service {
	if cfg.CodeTTL <= 0 {
		cfg.CodeTTL = domain.DefaultCodeTTL
	}
	return &Service{
		directory:   dir,
		withdrawals: withdrawals,
		recorder:    rec,
		fees:        fees,
		runner:      runner,
		limiter:     lim,
		observer:    observer,
		cfg:         cfg,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// WithClock replaces the time source. Tests use it to step past the code
// window.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

type CreateRequest struct {
	Amount           decimal.Decimal
	DestinationPhone string
}

// Create opens a self-service withdrawal for the caller's own account.
func (s *Service) Create(ctx context.Context, actor domain.Actor, req CreateRequest) (*domain.WithdrawalRequest, error) {
	owner, err := s.directory.Get(ctx, actor.ID)
	if err != nil {
		return nil, fmt.Errorf("Create: %w", err)
	}

	phone := domain.NormalizePhone(req.DestinationPhone)
	if phone == "" {
		phone = owner.Phone
	}

	w, err := s.open(ctx, owner, nil, req.Amount, phone, domain.WithdrawalStatusPending)
	if err != nil {
		return nil, fmt.Errorf("Create: %w", err)
	}
	return w, nil
}

// CreateForClient opens a withdrawal an agent initiates on a client's
// behalf. Only the initiating agent can redeem it.
func (s *Service) CreateForClient(ctx context.Context, agent domain.Actor, clientPhone string, amount decimal.Decimal) (*domain.WithdrawalRequest, error) {
	if !agent.Role.CanConfirmWithdrawal() {
		return nil, fmt.Errorf("CreateForClient: %w", domain.ErrRoleNotPermitted)
	}

	client, found, err := s.directory.FindByPhone(ctx, clientPhone)
	if err != nil {
		return nil, fmt.Errorf("CreateForClient: %w", err)
	}
	if !found {
		return nil, fmt.Errorf("CreateForClient: %w", domain.ErrAccountNotFound)
	}
	if client.ID == agent.ID {
		return nil, fmt.Errorf("CreateForClient: %w", domain.ErrSelfRedemptionForbidden)
	}

	w, err := s.open(ctx, client, &agent.ID, amount, client.Phone, domain.WithdrawalStatusAgentPending)
	if err != nil {
		return nil, fmt.Errorf("CreateForClient: %w", err)
	}
	return w, nil
}

func (s *Service) open(ctx context.Context, owner *domain.Account, initiatedBy *uuid.UUID, amount decimal.Decimal, phone string, status domain.WithdrawalStatus) (*domain.WithdrawalRequest, error) {
	if !amount.IsPositive() || !amount.Equal(amount.Round(2)) {
		return nil, domain.ErrInvalidAmount
	}
	if owner.Banned {
		return nil, domain.ErrAccountBanned
	}

	quote, err := s.fees.ComputeFee(fee.OpWithdrawal, amount, "", "", domain.RoleAgent)
	if err != nil {
		return nil, err
	}

	balance, err := s.directory.Balance(ctx, owner.ID)
	if err != nil {
		return nil, err
	}
	if balance.LessThan(amount) {
		s.runner.Conclude(sagaKind, saga.StateRejectedInsufficientFunds)
		return nil, &domain.InsufficientFundsError{Required: amount, Available: balance}
	}

	now := s.now()
	w := &domain.WithdrawalRequest{
		ID:               uuid.New(),
		OwnerID:          owner.ID,
		InitiatedBy:      initiatedBy,
		Amount:           amount,
		Fee:              quote.Fee,
		DestinationPhone: phone,
		Status:           status,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	for attempt := 1; ; attempt++ {
		c, err := code.Generate(codeDigits)
		if err != nil {
			return nil, err
		}
		w.VerificationCode = c
		err = s.withdrawals.Create(ctx, w)
		if err == nil {
			break
		}
		if !errors.Is(err, domain.ErrDuplicateCode) || attempt == codeAttempts {
			return nil, err
		}
	}

	logging.FromContext(ctx).Info("withdrawal requested",
		"withdrawal_id", w.ID,
		"owner_id", owner.ID,
		"status", w.Status,
		"amount", amount.String(),
	)
	return w, nil
}

type RedeemResult struct {
	Withdrawal      *domain.WithdrawalRequest
	Quote           *fee.Quote
	RedeemerCredit  decimal.Decimal
	RedeemerBalance decimal.Decimal
	State           saga.State
}

// Redeem pays out a withdrawal against its verification code. The redeemer
// hands the owner cash and is credited the amount less the actor commission;
// the platform account receives that commission.
//
// An owner redeeming their own code is rejected with
// ErrSelfRedemptionForbidden. The rejection belongs to the attempt: the
// request stays pending and another agent can still redeem it.
func (s *Service) Redeem(ctx context.Context, redeemer domain.Actor, verificationCode string) (*RedeemResult, error) {
	res, err := s.redeem(ctx, redeemer, verificationCode)
	s.observeRedemption(res, err)
	if err != nil {
		return nil, fmt.Errorf("Redeem: %w", err)
	}
	return res, nil
}

func (s *Service) redeem(ctx context.Context, redeemer domain.Actor, verificationCode string) (*RedeemResult, error) {
	log := logging.FromContext(ctx).With("redeemer_id", redeemer.ID)

	if s.limiter != nil {
		d, err := s.limiter.Allow(ctx, limitScope, redeemer.ID.String())
		if err != nil {
			log.Warn("redeem limiter unavailable, allowing attempt", "error", err)
		} else if !d.Allowed {
			return nil, fmt.Errorf("retry in %s: %w", d.RetryAfter, domain.ErrRateLimited)
		}
	}

	if !validCode(verificationCode) {
		return nil, domain.ErrCodeExpiredOrInvalid
	}

	w, err := s.withdrawals.GetByCode(ctx, verificationCode)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.ErrCodeExpiredOrInvalid
		}
		return nil, err
	}
	log = log.With("withdrawal_id", w.ID, "owner_id", w.OwnerID)

	// Rejected attempt, not a status change.
	if w.OwnerID == redeemer.ID {
		return nil, domain.ErrSelfRedemptionForbidden
	}

	resuming := w.Status == domain.WithdrawalStatusProcessing && w.RedeemedBy != nil && *w.RedeemedBy == redeemer.ID
	if !resuming {
		switch {
		case w.Status == domain.WithdrawalStatusExpired:
			return nil, domain.ErrCodeExpiredOrInvalid
		case !w.Status.IsRedeemable():
			return nil, domain.ErrAlreadyRedeemed
		case w.Expired(s.now(), s.cfg.CodeTTL):
			return nil, domain.ErrCodeExpiredOrInvalid
		}
	}

	if !redeemer.Role.CanConfirmWithdrawal() {
		return nil, domain.ErrRoleNotPermitted
	}
	if w.Status == domain.WithdrawalStatusAgentPending && (w.InitiatedBy == nil || *w.InitiatedBy != redeemer.ID) {
		return nil, domain.ErrRoleNotPermitted
	}

	account, err := s.directory.Get(ctx, redeemer.ID)
	if err != nil {
		return nil, err
	}
	if account.Banned {
		return nil, domain.ErrAccountBanned
	}

	quote, err := s.fees.ComputeFee(fee.OpWithdrawal, w.Amount, "", "", account.Role)
	if err != nil {
		return nil, err
	}

	if !resuming {
		balance, err := s.directory.Balance(ctx, w.OwnerID)
		if err != nil {
			return nil, err
		}
		if balance.LessThan(w.Amount) {
			s.runner.Conclude(sagaKind, saga.StateRejectedInsufficientFunds)
			return nil, &domain.InsufficientFundsError{Required: w.Amount, Available: balance}
		}

		if err := s.withdrawals.Claim(ctx, w.ID, redeemer.ID, account.Role, quote.Fee); err != nil {
			return nil, err
		}
		role := account.Role
		w.Status = domain.WithdrawalStatusProcessing
		w.RedeemedBy = &redeemer.ID
		w.RedeemerRole = &role
		w.Fee = quote.Fee
	} else {
		log.Info("resuming claimed withdrawal")
	}

	// Redeemer gets the amount less the actor commission, which goes to the
	// platform account.
	redeemerCredit := w.Amount.Sub(quote.ActorCommission)
	opID := OperationID(w.ID)

	outcome, err := s.runner.Run(ctx, saga.Plan{
		OperationID: opID,
		Kind:        sagaKind,
		Debit:       saga.Step{Name: stepDebitOwner, AccountID: w.OwnerID, Delta: w.Amount.Neg()},
		Credits: []saga.Step{
			{Name: stepCreditRedeemer, AccountID: redeemer.ID, Delta: redeemerCredit},
			{Name: stepCreditPlatform, AccountID: s.cfg.PlatformAccount, Delta: quote.ActorCommission},
		},
	})
	if err != nil {
		if errors.Is(err, domain.ErrCompensationFailed) {
			// Left in processing for the reconciler.
			return nil, err
		}
		if ferr := s.withdrawals.Finish(context.WithoutCancel(ctx), w.ID, domain.WithdrawalStatusFailed, s.now()); ferr != nil {
			log.Error("mark withdrawal failed", "error", ferr)
		}
		return nil, err
	}

	now := s.now()
	if err := s.withdrawals.Finish(ctx, w.ID, domain.WithdrawalStatusCompleted, now); err != nil {
		log.Error("mark withdrawal completed", "operation_id", opID, "error", err)
	}
	w.Status = domain.WithdrawalStatusCompleted
	w.CompletedAt = &now
	w.UpdatedAt = now

	if err := s.recorder.Record(ctx, domain.RecordKindWithdrawal, opID, redeemer.ID, w); err != nil {
		log.Error("transaction record failed", "operation_id", opID, "error", err)
		s.runner.Report(outcome)
	} else {
		s.runner.MarkRecorded(outcome)
	}

	if b, ok := outcome.Balance(stepDebitOwner); ok {
		s.directory.Refresh(ctx, w.OwnerID, b)
	}
	redeemerBalance, _ := outcome.Balance(stepCreditRedeemer)
	s.directory.Refresh(ctx, redeemer.ID, redeemerBalance)

	log.Info("withdrawal redeemed",
		"operation_id", opID,
		"amount", w.Amount.String(),
		"fee", quote.Fee.String(),
		"redeemer_credit", redeemerCredit.String(),
	)

	return &RedeemResult{
		Withdrawal:      w,
		Quote:           quote,
		RedeemerCredit:  redeemerCredit,
		RedeemerBalance: redeemerBalance,
		State:           outcome.State,
	}, nil
}

// OperationID is the saga id of a withdrawal's redemption. A request can
// only ever be claimed once, so one id per request is enough.
func OperationID(withdrawalID uuid.UUID) uuid.UUID {
	return uuid.NewSHA1(withdrawalID, []byte("redeem"))
}

// Get returns a withdrawal visible to actor. The verification code is only
// shown to the owner or initiating agent while it is still redeemable.
func (s *Service) Get(ctx context.Context, actor domain.Actor, id uuid.UUID) (*domain.WithdrawalRequest, error) {
	w, err := s.withdrawals.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("Get: %w", err)
	}
	if !canView(actor, w) {
		return nil, fmt.Errorf("Get: %w", domain.ErrNotFound)
	}
	s.maskCode(actor, w)
	return w, nil
}

func (s *Service) ListForOwner(ctx context.Context, actor domain.Actor, limit, offset int) ([]domain.WithdrawalRequest, error) {
	out, err := s.withdrawals.ListByOwner(ctx, actor.ID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("ListForOwner: %w", err)
	}
	for i := range out {
		s.maskCode(actor, &out[i])
	}
	return out, nil
}

func (s *Service) maskCode(actor domain.Actor, w *domain.WithdrawalRequest) {
	now := s.now()
	switch {
	case actor.ID == w.OwnerID && w.CodeVisible(now, s.cfg.CodeTTL):
	case w.InitiatedBy != nil && *w.InitiatedBy == actor.ID &&
		w.Status == domain.WithdrawalStatusAgentPending && !w.Expired(now, s.cfg.CodeTTL):
	default:
		w.VerificationCode = ""
	}
}

func canView(actor domain.Actor, w *domain.WithdrawalRequest) bool {
	switch {
	case actor.ID == w.OwnerID:
		return true
	case w.InitiatedBy != nil && *w.InitiatedBy == actor.ID:
		return true
	case w.RedeemedBy != nil && *w.RedeemedBy == actor.ID:
		return true
	}
	return actor.Role == domain.RoleAdmin
}

func (s *Service) observeRedemption(res *RedeemResult, err error) {
	if s.observer == nil {
		return
	}
	result := "completed"
	switch {
	case err == nil && res != nil:
	case errors.Is(err, domain.ErrRateLimited):
		result = "rate_limited"
	case errors.Is(err, domain.ErrCodeExpiredOrInvalid):
		result = "invalid_code"
	case errors.Is(err, domain.ErrAlreadyRedeemed):
		result = "already_redeemed"
	case errors.Is(err, domain.ErrSelfRedemptionForbidden):
		result = "self_redemption"
	case errors.Is(err, domain.ErrRoleNotPermitted):
		result = "not_permitted"
	case errors.Is(err, domain.ErrCompensationFailed):
		result = "inconsistent"
	default:
		result = "failed"
	}
	s.observer.Redemption(result)
}

func validCode(c string) bool {
	if len(c) != codeDigits {
		return false
	}
	for _, r := range c {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
