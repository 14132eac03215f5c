package reconcile

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/josh-kwaku/mobile-money/internal/domain"
	"github.com/josh-kwaku/mobile-money/internal/logging"
	"github.com/josh-kwaku/mobile-money/internal/repository"
)

const (
	CheckExpiredCodes     = "expired_codes"
	CheckStuckSagas       = "stuck_sagas"
	CheckStuckWithdrawals = "stuck_withdrawals"
	CheckNegativeBalances = "negative_balances"
)

type withdrawalStore interface {
	ExpireBefore(ctx context.Context, cutoff time.Time) (int64, error)
	ListProcessingBefore(ctx context.Context, cutoff time.Time, limit int) ([]domain.WithdrawalRequest, error)
}

type journal interface {
	ListStuck(ctx context.Context, cutoff time.Time, limit int) ([]repository.StuckOperation, error)
}

type activity interface {
	TouchedSince(ctx context.Context, since time.Time, limit int) ([]uuid.UUID, error)
}

type balanceProbe interface {
	Balance(ctx context.Context, id uuid.UUID) (decimal.Decimal, error)
}

type findingObserver interface {
	ReconcileFinding(check string, n int)
}

type Config struct {
	CodeTTL time.Duration

	// StuckAfter is how long a half-finished operation may sit before it is
	// reported.
	StuckAfter time.Duration

	// ProbeWindow bounds the first negative-balance sweep. Later sweeps
	// start where the previous one ended.
	ProbeWindow time.Duration
	Limit       int
}

// NegativeBalance is an account the ledger reports below zero.
type NegativeBalance struct {
	AccountID uuid.UUID
	Balance   decimal.Decimal
}

type Report struct {
	ExpiredCodes     int64
	StuckSagas       []repository.StuckOperation
	StuckWithdrawals []domain.WithdrawalRequest
	NegativeBalances []NegativeBalance
	Errors           []error
}

// Reconciler sweeps for state the request path leaves behind. It only
// reports money problems; the one thing it changes is the status of
// withdrawal codes past their window.
type Reconciler struct {
	withdrawals withdrawalStore
	journal     journal
	activity    activity
	probe       balanceProbe
	observer    findingObserver
	cfg         Config
	now         func() time.Time

	mu        sync.Mutex
	lastProbe time.Time
}

func New(withdrawals withdrawalStore, journal journal, activity activity, probe balanceProbe, observer findingObserver, cfg Config) *Reconciler {
	if cfg.CodeTTL <= 0 {
		cfg.CodeTTL = domain.DefaultCodeTTL
	}
	if cfg.StuckAfter <= 0 {
		cfg.StuckAfter = 10 * time.Minute
	}
	if cfg.ProbeWindow <= 0 {
		cfg.ProbeWindow = 24 * time.Hour
	}
	if cfg.Limit <= 0 {
		cfg.Limit = 200
	}
	return &Reconciler{
		withdrawals: withdrawals,
		journal:     journal,
		activity:    activity,
		probe:       probe,
		observer:    observer,
		cfg:         cfg,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

func (r *Reconciler) WithClock(now func() time.Time) *Reconciler {
	r.now = now
	return r
}

// Run executes every check once. A failing check is logged and reported;
// the others still run.
func (r *Reconciler) Run(ctx context.Context) *Report {
	r.mu.Lock()
	defer r.mu.Unlock()

	log := logging.FromContext(ctx).With("job", "reconcile")
	now := r.now()
	report := &Report{}

	n, err := r.withdrawals.ExpireBefore(ctx, now.Add(-r.cfg.CodeTTL))
	if err != nil {
		report.Errors = append(report.Errors, err)
		log.Error("expire withdrawal codes", "error", err)
	} else {
		report.ExpiredCodes = n
		r.observe(CheckExpiredCodes, int(n))
		if n > 0 {
			log.Info("withdrawal codes expired", "count", n)
		}
	}

	stuck, err := r.journal.ListStuck(ctx, now.Add(-r.cfg.StuckAfter), r.cfg.Limit)
	if err != nil {
		report.Errors = append(report.Errors, err)
		log.Error("list stuck sagas", "error", err)
	} else {
		report.StuckSagas = stuck
		r.observe(CheckStuckSagas, len(stuck))
		for _, op := range stuck {
			log.Error("saga debited without credit or compensation",
				"operation_id", op.OperationID,
				"saga", op.Kind,
				"debited_at", op.DebitedAt,
			)
		}
	}

	processing, err := r.withdrawals.ListProcessingBefore(ctx, now.Add(-r.cfg.StuckAfter), r.cfg.Limit)
	if err != nil {
		report.Errors = append(report.Errors, err)
		log.Error("list stuck withdrawals", "error", err)
	} else {
		report.StuckWithdrawals = processing
		r.observe(CheckStuckWithdrawals, len(processing))
		for _, w := range processing {
			log.Error("withdrawal stuck in processing",
				"withdrawal_id", w.ID,
				"owner_id", w.OwnerID,
				"redeemed_by", w.RedeemedBy,
				"amount", w.Amount.String(),
			)
		}
	}

	negative, err := r.probeBalances(ctx, now)
	if err != nil {
		report.Errors = append(report.Errors, err)
		log.Error("probe balances", "error", err)
	}
	report.NegativeBalances = negative
	r.observe(CheckNegativeBalances, len(negative))
	for _, nb := range negative {
		log.Error("negative balance", "account_id", nb.AccountID, "balance", nb.Balance.String())
	}

	return report
}

func (r *Reconciler) probeBalances(ctx context.Context, now time.Time) ([]NegativeBalance, error) {
	since := r.lastProbe
	if since.IsZero() {
		since = now.Add(-r.cfg.ProbeWindow)
	}

	ids, err := r.activity.TouchedSince(ctx, since, r.cfg.Limit)
	if err != nil {
		return nil, err
	}

	var (
		out  []NegativeBalance
		errs []error
	)
	for _, id := range ids {
		b, err := r.probe.Balance(ctx, id)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if b.IsNegative() {
			out = append(out, NegativeBalance{AccountID: id, Balance: b})
		}
	}
	if len(errs) > 0 {
		// Keep the window open so the next sweep probes these accounts again.
		r.lastProbe = since
		return out, errors.Join(errs...)
	}
	r.lastProbe = now
	return out, nil
}

func (r *Reconciler) observe(check string, n int) {
	if r.observer != nil {
		r.observer.ReconcileFinding(check, n)
	}
}
