package deposit

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/josh-kwaku/mobile-money/internal/domain"
	"github.com/josh-kwaku/mobile-money/internal/fee"
	"github.com/josh-kwaku/mobile-money/internal/logging"
	"github.com/josh-kwaku/mobile-money/internal/saga"
)

const (
	depositKind    = "deposit"
	commissionKind = "deposit_commission"
	batchKind      = "batch_deposit"

	stepDebitAgent        = "debit_agent"
	stepCreditClient      = "credit_client"
	stepDebitPlatform     = "debit_platform"
	stepCreditAgentReward = "credit_agent_commission"
	stepDebitFunder       = "debit_funder"
	stepCreditRecipient   = "credit_recipient"

	DefaultMaxBatchItems = 500
)

type directory interface {
	Get(ctx context.Context, id uuid.UUID) (*domain.Account, error)
	Resolve(ctx context.Context, phoneOrID string) (*domain.Account, bool, error)
	FindByPhone(ctx context.Context, phone string) (*domain.Account, bool, error)
	EnsureProvisioned(ctx context.Context, id uuid.UUID, seedPhone, seedCountry string) (*domain.Account, error)
	Balance(ctx context.Context, id uuid.UUID) (decimal.Decimal, error)
	Refresh(ctx context.Context, id uuid.UUID, balance decimal.Decimal)
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

type batchObserver interface {
	BatchItem(success bool)
}

type Config struct {
	PlatformAccount uuid.UUID
	MaxBatchItems   int
}

// Service moves float from agents to clients and from funders to agents.
type Service struct {
	directory directory
	recorder  recorder
	fees      feeCalculator
	runner    sagaRunner
	observer  batchObserver
	cfg       Config
}

func NewService(dir directory, rec recorder, fees feeCalculator, runner sagaRunner, observer batchObserver, cfg Config) *Service {
	if cfg.MaxBatchItems <= 0 {
		cfg.MaxBatchItems = DefaultMaxBatchItems
	}
	return &Service{
		directory: dir,
		recorder:  rec,
		fees:      fees,
		runner:    runner,
		observer:  observer,
		cfg:       cfg,
	}
}

type Request struct {
	IdempotencyKey string
	ClientPhone    string
	Amount         decimal.Decimal
}

type Result struct {
	Record            *domain.DepositRecord
	Quote             *fee.Quote
	ClientProvisioned bool
	CommissionPaid    bool
	State             saga.State
}

// OperationID derives the saga id of an agent deposit.
func OperationID(agentID uuid.UUID, idempotencyKey string) uuid.UUID {
	if idempotencyKey == "" {
		return uuid.New()
	}
	return uuid.NewSHA1(agentID, []byte("deposit:"+idempotencyKey))
}

// Deposit credits a client from the agent's float. An unknown client phone
// gets an account provisioned on the spot. The agent's commission is paid by
// the platform afterwards and never unwinds the deposit.
func (s *Service) Deposit(ctx context.Context, agent domain.Actor, req Request) (*Result, error) {
	opID := OperationID(agent.ID, req.IdempotencyKey)
	log := logging.FromContext(ctx).With("operation_id", opID, "agent_id", agent.ID)

	if !agent.Role.CanDepositForClient() {
		return nil, fmt.Errorf("Deposit: %w", domain.ErrRoleNotPermitted)
	}
	if !req.Amount.IsPositive() || !req.Amount.Equal(req.Amount.Round(2)) {
		return nil, fmt.Errorf("Deposit: %w", domain.ErrInvalidAmount)
	}

	agentAccount, err := s.directory.Get(ctx, agent.ID)
	if err != nil {
		return nil, fmt.Errorf("Deposit: agent: %w", err)
	}
	if agentAccount.Banned {
		return nil, fmt.Errorf("Deposit: %w", domain.ErrAccountBanned)
	}

	client, found, err := s.directory.FindByPhone(ctx, req.ClientPhone)
	if err != nil {
		return nil, fmt.Errorf("Deposit: client: %w", err)
	}
	provisioned := false
	if !found {
		// Derived from the operation so a retried deposit provisions the
		// same account.
		client, err = s.directory.EnsureProvisioned(ctx, uuid.NewSHA1(opID, []byte("client")), req.ClientPhone, "")
		if err != nil {
			return nil, fmt.Errorf("Deposit: provision client: %w", err)
		}
		provisioned = true
	}
	if client.ID == agent.ID {
		return nil, fmt.Errorf("Deposit: %w", domain.ErrSelfTransfer)
	}
	if client.Banned {
		return nil, fmt.Errorf("Deposit: client: %w", domain.ErrAccountBanned)
	}

	quote, err := s.fees.ComputeFee(fee.OpDeposit, req.Amount, agentAccount.Country, client.Country, agentAccount.Role)
	if err != nil {
		return nil, fmt.Errorf("Deposit: %w", err)
	}

	started, err := s.runner.Started(ctx, opID)
	if err != nil {
		return nil, fmt.Errorf("Deposit: %w", err)
	}
	if !started {
		balance, err := s.directory.Balance(ctx, agent.ID)
		if err != nil {
			return nil, fmt.Errorf("Deposit: %w", err)
		}
		if balance.LessThan(req.Amount) {
			s.runner.Conclude(depositKind, saga.StateRejectedInsufficientFunds)
			return nil, fmt.Errorf("Deposit: %w", &domain.InsufficientFundsError{Required: req.Amount, Available: balance})
		}
	}

	outcome, err := s.runner.Run(ctx, saga.Plan{
		OperationID: opID,
		Kind:        depositKind,
		Debit:       saga.Step{Name: stepDebitAgent, AccountID: agent.ID, Delta: req.Amount.Neg()},
		Credits: []saga.Step{
			{Name: stepCreditClient, AccountID: client.ID, Delta: req.Amount},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("Deposit: %w", err)
	}

	agentBalance, _ := outcome.Balance(stepDebitAgent)
	commissionPaid := true
	if quote.ActorCommission.IsPositive() {
		b, err := s.payCommission(ctx, opID, agent.ID, quote.ActorCommission)
		if err != nil {
			log.Error("agent commission not paid", "commission", quote.ActorCommission.String(), "error", err)
			commissionPaid = false
		} else {
			agentBalance = b
		}
	}

	rec := &domain.DepositRecord{
		OperationID:  opID,
		AgentID:      agent.ID,
		ClientID:     client.ID,
		ClientPhone:  client.Phone,
		Amount:       req.Amount,
		Commission:   quote.ActorCommission,
		AgentBalance: agentBalance,
	}
	if err := s.recorder.Record(ctx, domain.RecordKindDeposit, opID, agent.ID, rec); err != nil {
		log.Error("transaction record failed", "error", err)
		s.runner.Report(outcome)
	} else {
		s.runner.MarkRecorded(outcome)
	}

	s.directory.Refresh(ctx, agent.ID, agentBalance)
	if b, ok := outcome.Balance(stepCreditClient); ok {
		s.directory.Refresh(ctx, client.ID, b)
	}

	log.Info("deposit completed",
		"client_id", client.ID,
		"amount", req.Amount.String(),
		"commission", quote.ActorCommission.String(),
		"provisioned", provisioned,
	)

	return &Result{
		Record:            rec,
		Quote:             quote,
		ClientProvisioned: provisioned,
		CommissionPaid:    commissionPaid,
		State:             outcome.State,
	}, nil
}

// payCommission moves the agent's commission out of the platform account as
// its own saga, so a failure here reverses only the commission.
func (s *Service) payCommission(ctx context.Context, depositID, agentID uuid.UUID, amount decimal.Decimal) (decimal.Decimal, error) {
	outcome, err := s.runner.Run(ctx, saga.Plan{
		OperationID: uuid.NewSHA1(depositID, []byte("commission")),
		Kind:        commissionKind,
		Debit:       saga.Step{Name: stepDebitPlatform, AccountID: s.cfg.PlatformAccount, Delta: amount.Neg()},
		Credits: []saga.Step{
			{Name: stepCreditAgentReward, AccountID: agentID, Delta: amount},
		},
	})
	if err != nil {
		return decimal.Zero, err
	}
	s.runner.MarkRecorded(outcome)
	b, _ := outcome.Balance(stepCreditAgentReward)
	return b, nil
}
