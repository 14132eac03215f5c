package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker"
)

var ErrUnavailable = errors.New("ledger unavailable")

type BreakerConfig struct {
	MaxRequests         uint32
	Interval            time.Duration
	Timeout             time.Duration
	ConsecutiveFailures uint32
	MinRequests         uint32
	FailureRatio        float64
}

// Breaker guards a ledger with a circuit breaker so a failing ledger is
// refused fast instead of stalling every saga step on its timeout.
type Breaker struct {
	next    adjuster
	breaker *gobreaker.CircuitBreaker
}

func NewBreaker(next adjuster, cfg BreakerConfig, logger *slog.Logger) *Breaker {
	settings := gobreaker.Settings{
		Name:        "balance-ledger",
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests == 0 {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.ConsecutiveFailures >= cfg.ConsecutiveFailures ||
				(counts.Requests >= cfg.MinRequests && failureRatio >= cfg.FailureRatio)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("ledger circuit breaker state changed", "breaker", name, "from", from.String(), "to", to.String())
		},
		// Caller cancellation says nothing about ledger health.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
	}
	return &Breaker{next: next, breaker: gobreaker.NewCircuitBreaker(settings)}
}

func (b *Breaker) AdjustBalance(ctx context.Context, accountID uuid.UUID, delta decimal.Decimal) (decimal.Decimal, error) {
	res, err := b.breaker.Execute(func() (any, error) {
		return b.next.AdjustBalance(ctx, accountID, delta)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return decimal.Zero, fmt.Errorf("AdjustBalance: %w: %w", ErrUnavailable, err)
		}
		return decimal.Zero, fmt.Errorf("AdjustBalance: %w", err)
	}
	return res.(decimal.Decimal), nil
}

func (b *Breaker) State() string {
	return b.breaker.State().String()
}
