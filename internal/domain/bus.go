package domain

import (
	"context"
	"encoding/json"
	"time"
)

// Bus channels and streams.
const (
	ChannelOperations    = "ch:operation"
	ChannelAuctionPrefix = "ch:auction:"
	ChannelGroups        = "ch:groups"
	StreamActivity       = "stream:activity"
)

// AuctionChannel is the per-group auction channel name.
func AuctionChannel(group string) string {
	return ChannelAuctionPrefix + group
}

// RateLimiter provides keyed rate limiting.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
	Wait(ctx context.Context, key string) error
}

// LockManager provides keyed mutual exclusion. Acquire blocks until the lock
// is held or ctx ends.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}

// StreamMessage is a single entry of a durable stream.
type StreamMessage struct {
	ID      string
	Payload []byte
}

// SignalBus provides pub/sub and bounded streams.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
	StreamAppend(ctx context.Context, stream string, payload []byte) error
	StreamRead(ctx context.Context, stream string, lastID string, count int) ([]StreamMessage, error)
	// StreamTail returns the newest count entries, oldest first.
	StreamTail(ctx context.Context, stream string, count int) ([]StreamMessage, error)
}

// Event is the envelope every bus payload uses.
type Event struct {
	Type    string          `json:"type"`
	Channel string          `json:"channel"`
	Payload json.RawMessage `json:"payload"`
	Time    time.Time       `json:"time"`
}

// NewEvent marshals payload into an envelope.
func NewEvent(eventType, channel string, payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Event{
		Type:    eventType,
		Channel: channel,
		Payload: raw,
		Time:    time.Now().UTC(),
	})
}

// Event types. The operation_* and group_* names double as notifier event
// filters.
const (
	EventOperationStatus    = "operation_status"
	EventOperationSucceeded = "operation_succeeded"
	EventOperationFailed    = "operation_failed"
	EventAuctionState       = "auction_state"
	EventGroupDiscovered    = "group_discovered"
	EventGroupStatusChanged = "group_status_changed"
	EventRoundAdvanced      = "round_advanced"
)
