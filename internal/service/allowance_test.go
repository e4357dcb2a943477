package service

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/commitfi/internal/domain"
)

func newTestWaiter(fc *fakeChain, attempts int) (*AllowanceWaiter, *[]time.Duration) {
	var slept []time.Duration
	w := NewAllowanceWaiter(fc, tokenAddr, attempts, 2*time.Second, discardLogger())
	w.sleep = func(_ context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	}
	return w, &slept
}

func TestAllowanceWaiterDefaults(t *testing.T) {
	w := NewAllowanceWaiter(newFakeChain(), tokenAddr, 0, -1, discardLogger())
	assert.Equal(t, 15, w.attempts)
	assert.Equal(t, 2*time.Second, w.delay)
}

func TestAllowanceWaiterConverges(t *testing.T) {
	fc := newFakeChain()
	n := 0
	fc.setFunc(tokenAddr, "allowance", func([]any) ([]any, error) {
		n++
		if n < 3 {
			return []any{big.NewInt(0)}, nil
		}
		return []any{big.NewInt(100)}, nil
	})
	w, slept := newTestWaiter(fc, 15)

	attempts, err := w.Wait(context.Background(), me, addr(1), big.NewInt(100))
	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
	assert.Equal(t, []time.Duration{2 * time.Second, 2 * time.Second, 2 * time.Second}, *slept)
}

func TestAllowanceWaiterFailedReadCountsAsAttempt(t *testing.T) {
	fc := newFakeChain()
	n := 0
	fc.setFunc(tokenAddr, "allowance", func([]any) ([]any, error) {
		n++
		if n == 1 {
			return nil, errors.New("header not found")
		}
		return []any{big.NewInt(100)}, nil
	})
	w, _ := newTestWaiter(fc, 15)

	attempts, err := w.Wait(context.Background(), me, addr(1), big.NewInt(100))
	require.NoError(t, err)
	assert.Equal(t, 2, attempts)
}

func TestAllowanceWaiterGivesUp(t *testing.T) {
	fc := newFakeChain()
	fc.set(tokenAddr, "allowance", big.NewInt(99))
	w, slept := newTestWaiter(fc, 4)

	attempts, err := w.Wait(context.Background(), me, addr(1), big.NewInt(100))
	assert.ErrorIs(t, err, domain.ErrAllowanceNotVisible)
	assert.Equal(t, 4, attempts)
	assert.Len(t, *slept, 4)
	assert.Equal(t, 4, fc.readCount("allowance"))
}

func TestAllowanceWaiterStopsOnCancel(t *testing.T) {
	fc := newFakeChain()
	fc.set(tokenAddr, "allowance", big.NewInt(0))
	w := NewAllowanceWaiter(fc, tokenAddr, 15, time.Hour, discardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	attempts, err := w.Wait(ctx, me, addr(1), big.NewInt(1))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, attempts)
	assert.Equal(t, 0, fc.readCount("allowance"))
}
