package service

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"golang.org/x/sync/singleflight"

	"github.com/alanyoungcy/commitfi/internal/chain"
	"github.com/alanyoungcy/commitfi/internal/domain"
	"github.com/alanyoungcy/commitfi/internal/metrics"
	"github.com/alanyoungcy/commitfi/internal/platform/commitfi"
)

// AuctionConfig sets the poller cadence. Window, when positive, replaces the
// round length derived from frequency(). ReadTimeout bounds a shared refetch.
type AuctionConfig struct {
	PollInterval time.Duration
	TickInterval time.Duration
	Window       time.Duration
	ReadTimeout  time.Duration
}

// AuctionPoller derives live auction state for auction groups by combining a
// local clock, periodic reads and event-triggered refetches.
type AuctionPoller struct {
	reader ContractReader
	logs   LogWatcher
	wallet Wallet
	bus    domain.SignalBus
	cfg    AuctionConfig
	flight singleflight.Group
	now    func() time.Time
	logger *slog.Logger
}

// NewAuctionPoller creates a poller. logs, wallet and bus may be nil; without
// logs the poller relies on polling alone.
func NewAuctionPoller(reader ContractReader, logs LogWatcher, wallet Wallet, bus domain.SignalBus, cfg AuctionConfig, logger *slog.Logger) *AuctionPoller {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 5 * time.Second
	}
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = time.Second
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = 15 * time.Second
	}
	return &AuctionPoller{
		reader: reader,
		logs:   logs,
		wallet: wallet,
		bus:    bus,
		cfg:    cfg,
		now:    time.Now,
		logger: logger.With(slog.String("component", "auction_poller")),
	}
}

// Snapshot reads and derives the current state once.
func (p *AuctionPoller) Snapshot(ctx context.Context, group common.Address) (domain.AuctionState, error) {
	reading, err := p.read(ctx, group)
	if err != nil {
		return domain.AuctionState{}, err
	}
	return domain.DeriveAuctionState(group, reading, p.cfg.Window, p.now()), nil
}

func (p *AuctionPoller) read(ctx context.Context, group common.Address) (domain.AuctionReading, error) {
	var member common.Address
	if p.wallet != nil {
		if addr, ok := p.wallet.Account(); ok {
			member = addr
		}
	}
	results, err := p.reader.ReadMany(ctx, commitfi.Group{Address: group}.AuctionReads(member))
	if err != nil {
		return domain.AuctionReading{}, fmt.Errorf("auction_poller: read %s: %w: %w", group.Hex(), domain.ErrReadFailed, err)
	}

	failed := 0
	for _, r := range results {
		if !r.OK() {
			failed++
		}
	}
	if failed == len(results) {
		return domain.AuctionReading{}, fmt.Errorf("auction_poller: read %s: %w: %w", group.Hex(), domain.ErrReadFailed, results[0].Err)
	}

	var reading domain.AuctionReading
	if v, ok := chain.As[*big.Int](results[0]); ok {
		reading.HighestBid = domain.NewAmount(v)
	}
	if v, ok := chain.As[common.Address](results[1]); ok {
		reading.HighestBidder = v
	}
	if v, ok := chain.As[*big.Int](results[2]); ok {
		reading.RoundStart = v.Int64()
	}
	if v, ok := chain.As[*big.Int](results[3]); ok && v.IsUint64() {
		reading.FrequencyRaw = v.Uint64()
	} else {
		reading.FrequencyMissing = true
	}
	if v, ok := chain.As[uint8](results[4]); ok {
		reading.StatusCode = v
	}
	if v, ok := chain.As[bool](results[5]); ok {
		reading.HasReceivedPayout = v
	}
	return reading, nil
}

// Watch starts a live view of an auction group. The initial state is read
// before Watch returns. All background work stops when ctx ends or Close is
// called.
func (p *AuctionPoller) Watch(ctx context.Context, group common.Address, isAuction bool) (*AuctionWatch, error) {
	if !isAuction {
		return nil, fmt.Errorf("auction_poller: watch %s: %w", group.Hex(), domain.ErrNotAuction)
	}
	metrics.AuctionRefetchTotal.WithLabelValues("initial").Inc()
	initial, err := p.Snapshot(ctx, group)
	if err != nil {
		return nil, err
	}

	watchCtx, cancel := context.WithCancel(ctx)
	w := &AuctionWatch{
		p:       p,
		group:   group,
		state:   initial,
		updates: make(chan domain.AuctionState, 1),
		done:    make(chan struct{}),
		cancel:  cancel,
	}
	w.updates <- initial
	p.publish(watchCtx, initial)

	var logs <-chan types.Log
	if p.logs != nil {
		logs, err = p.logs.WatchLogs(watchCtx, group, commitfi.AuctionTopics())
		if err != nil {
			p.logger.WarnContext(ctx, "auction_poller: event subscription failed, polling only",
				slog.String("group", group.Hex()),
				slog.String("error", err.Error()),
			)
			logs = nil
		}
	}

	metrics.AuctionWatchesActive.Inc()
	go w.run(watchCtx, logs)
	return w, nil
}

func (p *AuctionPoller) publish(ctx context.Context, st domain.AuctionState) {
	if p.bus == nil {
		return
	}
	channel := domain.AuctionChannel(st.Group.Hex())
	payload, err := domain.NewEvent(domain.EventAuctionState, channel, st)
	if err != nil {
		return
	}
	if err := p.bus.Publish(ctx, channel, payload); err != nil {
		p.logger.DebugContext(ctx, "auction_poller: publish failed", slog.String("error", err.Error()))
	}
}

// AuctionWatch is one live auction view.
type AuctionWatch struct {
	p     *AuctionPoller
	group common.Address

	mu      sync.Mutex
	state   domain.AuctionState
	updates chan domain.AuctionState
	closed  bool

	refetches sync.WaitGroup
	done      chan struct{}
	cancel    context.CancelFunc
}

// Current returns the latest derived state.
func (w *AuctionWatch) Current() domain.AuctionState {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// Updates delivers new states, latest wins. It is closed after teardown.
func (w *AuctionWatch) Updates() <-chan domain.AuctionState { return w.updates }

// Done is closed once all background work has stopped.
func (w *AuctionWatch) Done() <-chan struct{} { return w.done }

// Close stops the watch and waits for teardown.
func (w *AuctionWatch) Close() {
	w.cancel()
	<-w.done
}

// Refresh rereads the chain now. Concurrent refreshes of the same group share
// one read.
func (w *AuctionWatch) Refresh(ctx context.Context) error {
	return w.refetch(ctx, "manual")
}

func (w *AuctionWatch) run(ctx context.Context, logs <-chan types.Log) {
	defer func() {
		w.refetches.Wait()
		w.mu.Lock()
		w.closed = true
		close(w.updates)
		w.mu.Unlock()
		metrics.AuctionWatchesActive.Dec()
		close(w.done)
	}()

	tick := time.NewTicker(w.p.cfg.TickInterval)
	defer tick.Stop()
	poll := time.NewTicker(w.p.cfg.PollInterval)
	defer poll.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-tick.C:
			w.retime()
		case <-poll.C:
			w.background(ctx, "poll")
		case l, ok := <-logs:
			if !ok {
				logs = nil
				continue
			}
			trigger := "event"
			if len(l.Topics) > 0 {
				if name := commitfi.EventName(l.Topics[0]); name != "" {
					trigger = name
				}
			}
			w.background(ctx, trigger)
		}
	}
}

// background refetches without blocking the clock.
func (w *AuctionWatch) background(ctx context.Context, trigger string) {
	w.refetches.Add(1)
	go func() {
		defer w.refetches.Done()
		if err := w.refetch(ctx, trigger); err != nil && ctx.Err() == nil {
			w.p.logger.DebugContext(ctx, "auction_poller: refetch failed",
				slog.String("group", w.group.Hex()),
				slog.String("trigger", trigger),
				slog.String("error", err.Error()),
			)
		}
	}()
}

func (w *AuctionWatch) refetch(ctx context.Context, trigger string) error {
	// The read is shared with every watch on the group, so it must not die
	// with whichever caller started it.
	ch := w.p.flight.DoChan(w.group.Hex(), func() (any, error) {
		metrics.AuctionRefetchTotal.WithLabelValues(trigger).Inc()
		readCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), w.p.cfg.ReadTimeout)
		defer cancel()
		return w.p.read(readCtx, w.group)
	})
	select {
	case <-ctx.Done():
		return ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return res.Err
		}
		now := w.p.now()
		st := domain.DeriveAuctionState(w.group, res.Val.(domain.AuctionReading), w.p.cfg.Window, now)
		if st.DurationUnknown {
			// Keep the last known round length while frequency() is unreadable.
			if prev := w.Current(); !prev.DurationUnknown && prev.RoundStart == st.RoundStart {
				st.Duration = prev.Duration
				st.DurationUnknown = false
				st = st.At(now)
			}
		}
		w.set(st)
		w.p.publish(ctx, st)
		return nil
	}
}

// retime advances the clock-derived fields; only a change is emitted. The
// recompute and store share one critical section so a concurrent refetch is
// never overwritten with older chain fields.
func (w *AuctionWatch) retime() {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	prev := w.state
	next := prev.At(w.p.now())
	changed := next.TimeLeft != prev.TimeLeft || next.Status != prev.Status
	if changed {
		w.store(next)
	}
	w.mu.Unlock()

	if changed && next.Status != prev.Status {
		w.p.publish(context.Background(), next)
	}
}

func (w *AuctionWatch) set(st domain.AuctionState) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}
	w.store(st)
}

// store replaces the state and queues it, dropping an unread update. Callers
// hold w.mu.
func (w *AuctionWatch) store(st domain.AuctionState) {
	w.state = st
	select {
	case <-w.updates:
	default:
	}
	select {
	case w.updates <- st:
	default:
	}
}
