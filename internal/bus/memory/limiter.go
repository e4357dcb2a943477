package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/alanyoungcy/commitfi/internal/domain"
)

// RateLimiter keeps one token bucket per key. The bucket for a key is sized
// by the first Allow call that creates it.
type RateLimiter struct {
	mu      sync.Mutex
	buckets map[string]*rate.Limiter
}

func NewRateLimiter() *RateLimiter {
	return &RateLimiter{buckets: make(map[string]*rate.Limiter)}
}

func (rl *RateLimiter) bucket(key string, limit int, window time.Duration) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	b, ok := rl.buckets[key]
	if !ok {
		if limit <= 0 {
			limit = 1
		}
		if window <= 0 {
			window = time.Second
		}
		b = rate.NewLimiter(rate.Every(window/time.Duration(limit)), limit)
		rl.buckets[key] = b
	}
	return b
}

// Allow reports whether one more request for key fits in limit per window.
func (rl *RateLimiter) Allow(_ context.Context, key string, limit int, window time.Duration) (bool, error) {
	return rl.bucket(key, limit, window).Allow(), nil
}

// Wait blocks until key is allowed, at one request per second for new keys.
func (rl *RateLimiter) Wait(ctx context.Context, key string) error {
	if err := rl.bucket(key, 1, time.Second).Wait(ctx); err != nil {
		return fmt.Errorf("memory: rate limit wait %s: %w", key, err)
	}
	return nil
}

var _ domain.RateLimiter = (*RateLimiter)(nil)

// LockManager is a keyed mutex. ttl is ignored: in-process holders cannot
// crash without releasing.
type LockManager struct {
	mu    sync.Mutex
	locks map[string]chan struct{}
}

func NewLockManager() *LockManager {
	return &LockManager{locks: make(map[string]chan struct{})}
}

func (lm *LockManager) slot(key string) chan struct{} {
	lm.mu.Lock()
	defer lm.mu.Unlock()
	ch, ok := lm.locks[key]
	if !ok {
		ch = make(chan struct{}, 1)
		lm.locks[key] = ch
	}
	return ch
}

// Acquire blocks until key is free or ctx ends.
func (lm *LockManager) Acquire(ctx context.Context, key string, _ time.Duration) (func(), error) {
	ch := lm.slot(key)
	select {
	case ch <- struct{}{}:
	case <-ctx.Done():
		return nil, fmt.Errorf("memory: acquire lock %s: %w", key, ctx.Err())
	}
	var once sync.Once
	return func() { once.Do(func() { <-ch }) }, nil
}

var _ domain.LockManager = (*LockManager)(nil)
