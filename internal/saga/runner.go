package saga

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/josh-kwaku/mobile-money/internal/domain"
	"github.com/josh-kwaku/mobile-money/internal/logging"
	"github.com/shopspring/decimal"
)

// Ledger is the single atomic primitive every money movement goes through.
type Ledger interface {
	AdjustBalance(ctx context.Context, accountID uuid.UUID, delta decimal.Decimal) (decimal.Decimal, error)
}

// Observer receives saga outcomes. Implemented by the metrics package.
type Observer interface {
	SagaFinished(kind string, state State)
	Compensated(kind string)
	SideEffectFailed(kind string)
}

type Step struct {
	Name      string
	AccountID uuid.UUID
	Delta     decimal.Decimal
}

// Plan describes one multi-account mutation. Debit is always applied first,
// Credits are compensated if any of them fails, SideEffects are applied last
// and never compensated.
type Plan struct {
	OperationID uuid.UUID
	Kind        string
	Debit       Step
	Credits     []Step
	SideEffects []Step
}

type Outcome struct {
	OperationID uuid.UUID
	Kind        string
	State       State
	Trail       []State
	Balances    map[string]decimal.Decimal
	Resumed     bool
	// SideEffectErrors holds failures of non-compensated steps.
	SideEffectErrors []error
}

// Balance returns the ledger balance observed right after the named step.
func (o *Outcome) Balance(step string) (decimal.Decimal, bool) {
	b, ok := o.Balances[step]
	return b, ok
}

type Runner struct {
	ledger              Ledger
	journal             Journal
	observer            Observer
	compensationTimeout time.Duration
}

type Option func(*Runner)

func WithObserver(o Observer) Option {
	return func(r *Runner) { r.observer = o }
}

func WithCompensationTimeout(d time.Duration) Option {
	return func(r *Runner) { r.compensationTimeout = d }
}

func NewRunner(ledger Ledger, journal Journal, opts ...Option) *Runner {
	r := &Runner{
		ledger:              ledger,
		journal:             journal,
		observer:            noopObserver{},
		compensationTimeout: 10 * time.Second,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Conclude records an operation that ended before any mutation: rejected
// for insufficient funds or parked as a pending claim.
func (r *Runner) Conclude(kind string, state State) {
	r.observer.SagaFinished(kind, state)
}

// Started reports whether any step of the operation has been journaled. A
// started operation must be resumed, not re-validated against balances it
// has already changed.
func (r *Runner) Started(ctx context.Context, operationID uuid.UUID) (bool, error) {
	entries, err := r.journal.Load(ctx, operationID)
	if err != nil {
		return false, fmt.Errorf("Started: %w", err)
	}
	return len(entries) > 0, nil
}

// Run executes plan. Steps already present in the journal for the operation
// are not applied again, so a retried operation resumes where it stopped.
func (r *Runner) Run(ctx context.Context, plan Plan) (*Outcome, error) {
	log := logging.FromContext(ctx).With("operation_id", plan.OperationID, "saga", plan.Kind)

	plan = plan.compact()
	if err := validatePlan(plan); err != nil {
		return nil, fmt.Errorf("Run: %w", err)
	}

	entries, err := r.journal.Load(ctx, plan.OperationID)
	if err != nil {
		return nil, fmt.Errorf("Run: load journal: %w", err)
	}

	run := &execution{
		runner:  r,
		plan:    plan,
		machine: newMachine(),
		done:    make(map[string]JournalEntry, len(entries)),
		outcome: &Outcome{
			OperationID: plan.OperationID,
			Kind:        plan.Kind,
			Balances:    make(map[string]decimal.Decimal),
			Resumed:     len(entries) > 0,
		},
		log: log,
	}
	compensated := false
	for _, e := range entries {
		run.done[e.Step] = e
		if e.isCompensation() {
			compensated = true
		} else {
			run.outcome.Balances[e.Step] = e.BalanceAfter
		}
	}

	if compensated {
		// A previous attempt already started unwinding; finish that instead
		// of moving money forward again.
		log.Warn("resuming compensated operation")
		return run.compensate(ctx, fmt.Errorf("operation %s was previously compensated: %w", plan.OperationID, domain.ErrLedgerMutationFailed))
	}

	if err := run.apply(ctx, plan.Debit); err != nil {
		if ferr := run.machine.to(StateFailed); ferr != nil {
			return nil, fmt.Errorf("Run: %w", ferr)
		}
		return run.finish(), fmt.Errorf("Run: debit: %w: %w", domain.ErrLedgerMutationFailed, err)
	}
	if err := run.machine.to(StateDebited); err != nil {
		return nil, fmt.Errorf("Run: %w", err)
	}

	for _, step := range plan.Credits {
		if err := run.apply(ctx, step); err != nil {
			log.Warn("saga credit failed, compensating", "step", step.Name, "account_id", step.AccountID, "error", err)
			return run.compensate(ctx, fmt.Errorf("credit %s: %w: %w", step.Name, domain.ErrLedgerMutationFailed, err))
		}
	}
	if err := run.machine.to(StateCredited); err != nil {
		return nil, fmt.Errorf("Run: %w", err)
	}

	for _, step := range plan.SideEffects {
		if err := run.apply(ctx, step); err != nil {
			log.Warn("saga side effect failed", "step", step.Name, "account_id", step.AccountID, "delta", step.Delta.String(), "error", err)
			r.observer.SideEffectFailed(plan.Kind)
			run.outcome.SideEffectErrors = append(run.outcome.SideEffectErrors, fmt.Errorf("%s: %w", step.Name, err))
		}
	}

	return run.finish(), nil
}

// MarkRecorded moves a credited outcome to its terminal success state once
// the caller has persisted history.
func (r *Runner) MarkRecorded(o *Outcome) {
	if o.State == StateCredited {
		o.State = StateRecorded
		o.Trail = append(o.Trail, StateRecorded)
	}
	r.observer.SagaFinished(o.Kind, o.State)
}

// Report publishes an outcome whose history could not be written. It stays
// in the credited state.
func (r *Runner) Report(o *Outcome) {
	r.observer.SagaFinished(o.Kind, o.State)
}

type execution struct {
	runner  *Runner
	plan    Plan
	machine *machine
	done    map[string]JournalEntry
	applied []Step
	outcome *Outcome
	log     *slog.Logger
}

func (e *execution) apply(ctx context.Context, step Step) error {
	if entry, ok := e.done[step.Name]; ok {
		e.applied = append(e.applied, step)
		e.outcome.Balances[step.Name] = entry.BalanceAfter
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	balance, err := e.runner.ledger.AdjustBalance(ctx, step.AccountID, step.Delta)
	if err != nil {
		return err
	}
	e.applied = append(e.applied, step)
	e.outcome.Balances[step.Name] = balance
	e.record(ctx, step, step.Name, balance)
	return nil
}

// record journals a step that the ledger has already applied. A journal
// failure cannot undo the mutation, so it is logged and the run continues.
func (e *execution) record(ctx context.Context, step Step, name string, balance decimal.Decimal) {
	entry := JournalEntry{
		Step:         name,
		AccountID:    step.AccountID,
		Delta:        step.Delta,
		BalanceAfter: balance,
		CreatedAt:    time.Now().UTC(),
	}
	if err := e.runner.journal.Append(context.WithoutCancel(ctx), e.plan.OperationID, e.plan.Kind, entry); err != nil {
		e.log.Error("saga journal write failed", "step", name, "account_id", step.AccountID, "error", err)
		return
	}
	e.done[name] = entry
}

// compensate reverses every applied forward step in reverse order, one
// attempt each. It runs detached from caller cancellation.
func (e *execution) compensate(ctx context.Context, cause error) (*Outcome, error) {
	if err := e.machine.to(StateCompensating); err != nil {
		return nil, fmt.Errorf("Run: %w", err)
	}

	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.runner.compensationTimeout)
	defer cancel()

	forward := e.applied
	if len(forward) == 0 {
		// Resumed from a compensated journal: rebuild from the entries.
		for _, step := range e.plan.steps() {
			if _, ok := e.done[step.Name]; ok {
				forward = append(forward, step)
			}
		}
	}

	var failures []error
	for i := len(forward) - 1; i >= 0; i-- {
		step := forward[i]
		name := compensationPrefix + step.Name
		if _, ok := e.done[name]; ok {
			continue
		}
		reverse := Step{Name: name, AccountID: step.AccountID, Delta: step.Delta.Neg()}
		balance, err := e.runner.ledger.AdjustBalance(cctx, reverse.AccountID, reverse.Delta)
		if err != nil {
			e.log.Error("fatal inconsistency: compensation failed",
				"step", step.Name,
				"account_id", step.AccountID,
				"delta", reverse.Delta.String(),
				"error", err,
			)
			failures = append(failures, fmt.Errorf("%s: %w", step.Name, err))
			continue
		}
		e.outcome.Balances[name] = balance
		e.record(cctx, reverse, name, balance)
	}

	if len(failures) > 0 {
		if err := e.machine.to(StateInconsistent); err != nil {
			return nil, fmt.Errorf("Run: %w", err)
		}
		return e.finish(), fmt.Errorf("Run: %w: %w (compensation: %w)", domain.ErrCompensationFailed, cause, errors.Join(failures...))
	}

	e.runner.observer.Compensated(e.plan.Kind)
	if err := e.machine.to(StateCompensationCredited); err != nil {
		return nil, fmt.Errorf("Run: %w", err)
	}
	if err := e.machine.to(StateFailed); err != nil {
		return nil, fmt.Errorf("Run: %w", err)
	}
	e.log.Info("saga compensated", "steps", len(forward))
	return e.finish(), fmt.Errorf("Run: %w", cause)
}

func (e *execution) finish() *Outcome {
	e.outcome.State = e.machine.current
	e.outcome.Trail = e.machine.trail
	if e.outcome.State.Terminal() {
		e.runner.observer.SagaFinished(e.plan.Kind, e.outcome.State)
	}
	return e.outcome
}

// compact drops zero-delta credits, which arise when a commission rounds to
// nothing.
func (p Plan) compact() Plan {
	keep := func(in []Step) []Step {
		var out []Step
		for _, s := range in {
			if !s.Delta.IsZero() {
				out = append(out, s)
			}
		}
		return out
	}
	p.Credits = keep(p.Credits)
	p.SideEffects = keep(p.SideEffects)
	return p
}

func (p Plan) steps() []Step {
	out := make([]Step, 0, 1+len(p.Credits))
	out = append(out, p.Debit)
	return append(out, p.Credits...)
}

func validatePlan(p Plan) error {
	if p.OperationID == uuid.Nil {
		return fmt.Errorf("validatePlan: missing operation id: %w", domain.ErrInvalidRequest)
	}
	if !p.Debit.Delta.IsNegative() {
		return fmt.Errorf("validatePlan: debit must be negative: %w", domain.ErrInvalidAmount)
	}
	seen := map[string]bool{p.Debit.Name: true}
	for _, s := range append(append([]Step{}, p.Credits...), p.SideEffects...) {
		if !s.Delta.IsPositive() {
			return fmt.Errorf("validatePlan: step %s must credit: %w", s.Name, domain.ErrInvalidAmount)
		}
		if seen[s.Name] {
			return fmt.Errorf("validatePlan: duplicate step %s: %w", s.Name, domain.ErrInvalidRequest)
		}
		seen[s.Name] = true
	}
	return nil
}

type noopObserver struct{}

func (noopObserver) SagaFinished(string, State) {}
func (noopObserver) Compensated(string)          {}
func (noopObserver) SideEffectFailed(string)     {}
