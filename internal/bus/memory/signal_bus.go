// Package memory provides in-process implementations of the bus, rate limiter
// and lock interfaces for single-process deployments and tests.
package memory

import (
	"context"
	"path"
	"strconv"
	"sync"

	"github.com/alanyoungcy/commitfi/internal/domain"
)

const (
	subscriberBuffer = 128
	defaultStreamCap = 1000
)

type subscriber struct {
	pattern string
	ch      chan []byte
}

// SignalBus is an in-process domain.SignalBus. Slow subscribers lose
// messages rather than block publishers.
type SignalBus struct {
	mu        sync.RWMutex
	subs      map[*subscriber]struct{}
	streams   map[string][]domain.StreamMessage
	seq       uint64
	streamCap int
}

// NewSignalBus creates a bus whose streams keep at most streamCap entries.
func NewSignalBus(streamCap int) *SignalBus {
	if streamCap <= 0 {
		streamCap = defaultStreamCap
	}
	return &SignalBus{
		subs:      make(map[*subscriber]struct{}),
		streams:   make(map[string][]domain.StreamMessage),
		streamCap: streamCap,
	}
}

// Publish delivers payload to every subscriber whose channel or pattern
// matches.
func (b *SignalBus) Publish(_ context.Context, channel string, payload []byte) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for s := range b.subs {
		if !matches(s.pattern, channel) {
			continue
		}
		msg := append([]byte(nil), payload...)
		select {
		case s.ch <- msg:
		default:
		}
	}
	return nil
}

// Subscribe registers channel, which may be a glob pattern. The returned
// channel closes when ctx ends.
func (b *SignalBus) Subscribe(ctx context.Context, channel string) (<-chan []byte, error) {
	s := &subscriber{pattern: channel, ch: make(chan []byte, subscriberBuffer)}
	b.mu.Lock()
	b.subs[s] = struct{}{}
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.mu.Lock()
		delete(b.subs, s)
		b.mu.Unlock()
		close(s.ch)
	}()
	return s.ch, nil
}

func matches(pattern, channel string) bool {
	if pattern == channel {
		return true
	}
	ok, err := path.Match(pattern, channel)
	return err == nil && ok
}

// StreamAppend appends payload, dropping the oldest entries past the cap.
func (b *SignalBus) StreamAppend(_ context.Context, stream string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.seq++
	entries := append(b.streams[stream], domain.StreamMessage{
		ID:      strconv.FormatUint(b.seq, 10) + "-0",
		Payload: append([]byte(nil), payload...),
	})
	if over := len(entries) - b.streamCap; over > 0 {
		entries = append([]domain.StreamMessage(nil), entries[over:]...)
	}
	b.streams[stream] = entries
	return nil
}

// StreamRead returns up to count entries with an ID after lastID.
func (b *SignalBus) StreamRead(_ context.Context, stream string, lastID string, count int) ([]domain.StreamMessage, error) {
	after := parseSeq(lastID)
	b.mu.RLock()
	defer b.mu.RUnlock()

	var out []domain.StreamMessage
	for _, m := range b.streams[stream] {
		if parseSeq(m.ID) <= after {
			continue
		}
		out = append(out, m)
		if count > 0 && len(out) == count {
			break
		}
	}
	return out, nil
}

// StreamTail returns the newest count entries, oldest first.
func (b *SignalBus) StreamTail(_ context.Context, stream string, count int) ([]domain.StreamMessage, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	entries := b.streams[stream]
	if count > 0 && len(entries) > count {
		entries = entries[len(entries)-count:]
	}
	return append([]domain.StreamMessage(nil), entries...), nil
}

func parseSeq(id string) uint64 {
	for i := 0; i < len(id); i++ {
		if id[i] == '-' {
			id = id[:i]
			break
		}
	}
	n, _ := strconv.ParseUint(id, 10, 64)
	return n
}

var _ domain.SignalBus = (*SignalBus)(nil)
