package reconcile

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/josh-kwaku/mobile-money/internal/logging"
)

// Scheduler runs the reconciler on a cron schedule.
type Scheduler struct {
	cron       *cron.Cron
	reconciler *Reconciler
	logger     *slog.Logger
	schedule   string
	timeout    time.Duration
}

func NewScheduler(reconciler *Reconciler, logger *slog.Logger, schedule string) *Scheduler {
	cronLogger := cron.PrintfLogger(slog.NewLogLogger(logger.Handler(), slog.LevelInfo))
	c := cron.New(cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger)))

	return &Scheduler{
		cron:       c,
		reconciler: reconciler,
		logger:     logger,
		schedule:   schedule,
		timeout:    time.Minute,
	}
}

// Start registers the job and starts the cron scheduler. An invalid schedule
// is returned rather than silently disabling reconciliation.
func (s *Scheduler) Start() error {
	if _, err := s.cron.AddFunc(s.schedule, s.runOnce); err != nil {
		return err
	}
	s.logger.Info("scheduled reconcile job", "schedule", s.schedule)
	s.cron.Start()
	return nil
}

// AddJob schedules a housekeeping task next to the reconcile run. It must be
// called before Start.
func (s *Scheduler) AddJob(name, schedule string, fn func(ctx context.Context) (int64, error)) error {
	_, err := s.cron.AddFunc(schedule, func() {
		ctx, cancel := context.WithTimeout(logging.WithLogger(context.Background(), s.logger), s.timeout)
		defer cancel()

		n, err := fn(ctx)
		if err != nil {
			s.logger.Error("scheduled job failed", "job", name, "error", err)
			return
		}
		if n > 0 {
			s.logger.Info("scheduled job finished", "job", name, "affected", n)
		}
	})
	return err
}

// Stop stops scheduling; the returned context is done once a running job
// finishes.
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}

func (s *Scheduler) runOnce() {
	ctx, cancel := context.WithTimeout(logging.WithLogger(context.Background(), s.logger), s.timeout)
	defer cancel()

	start := time.Now()
	report := s.reconciler.Run(ctx)
	s.logger.Info("reconcile finished",
		"duration_ms", time.Since(start).Milliseconds(),
		"expired_codes", report.ExpiredCodes,
		"stuck_sagas", len(report.StuckSagas),
		"stuck_withdrawals", len(report.StuckWithdrawals),
		"negative_balances", len(report.NegativeBalances),
		"errors", len(report.Errors),
	)
}
