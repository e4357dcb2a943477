package service

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/commitfi/internal/chain"
	"github.com/alanyoungcy/commitfi/internal/domain"
	"github.com/alanyoungcy/commitfi/internal/metrics"
	"github.com/alanyoungcy/commitfi/internal/platform/commitfi"
)

// AllowanceWaiter re-reads an allowance after an approval is included, until
// the node serving reads reflects it.
type AllowanceWaiter struct {
	reader   ContractReader
	token    commitfi.Token
	attempts int
	delay    time.Duration
	sleep    func(ctx context.Context, d time.Duration) error
	logger   *slog.Logger
}

// NewAllowanceWaiter creates a waiter making up to attempts reads, each
// preceded by delay.
func NewAllowanceWaiter(reader ContractReader, token common.Address, attempts int, delay time.Duration, logger *slog.Logger) *AllowanceWaiter {
	if attempts <= 0 {
		attempts = 15
	}
	if delay < 0 {
		delay = 2 * time.Second
	}
	return &AllowanceWaiter{
		reader:   reader,
		token:    commitfi.Token{Address: token},
		attempts: attempts,
		delay:    delay,
		sleep:    sleepCtx,
		logger:   logger.With(slog.String("component", "allowance")),
	}
}

// Wait returns the number of reads it took for allowance(owner, spender) to
// reach need, or domain.ErrAllowanceNotVisible once the budget is spent. A
// failed read counts as an attempt.
func (w *AllowanceWaiter) Wait(ctx context.Context, owner, spender common.Address, need *big.Int) (int, error) {
	for attempt := 1; attempt <= w.attempts; attempt++ {
		if err := w.sleep(ctx, w.delay); err != nil {
			return attempt - 1, fmt.Errorf("allowance: wait: %w", err)
		}

		have, err := readAllowance(ctx, w.reader, w.token, owner, spender)
		if err != nil {
			w.logger.DebugContext(ctx, "allowance: read failed",
				slog.Int("attempt", attempt),
				slog.String("error", err.Error()),
			)
			continue
		}
		w.logger.DebugContext(ctx, "allowance: check",
			slog.Int("attempt", attempt),
			slog.String("allowance", have.String()),
			slog.String("need", need.String()),
		)
		if have.Cmp(need) >= 0 {
			metrics.AllowanceAttempts.Observe(float64(attempt))
			return attempt, nil
		}
	}
	metrics.AllowanceAttempts.Observe(float64(w.attempts))
	return w.attempts, fmt.Errorf("allowance: %d attempts: %w", w.attempts, domain.ErrAllowanceNotVisible)
}

func readAllowance(ctx context.Context, reader ContractReader, token commitfi.Token, owner, spender common.Address) (*big.Int, error) {
	vals, err := reader.ReadOne(ctx, token.Allowance(owner, spender))
	if err != nil {
		return nil, err
	}
	v, ok := chain.Value[*big.Int](vals)
	if !ok {
		return nil, fmt.Errorf("allowance: unexpected return %v", vals)
	}
	return v, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
