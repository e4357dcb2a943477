package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/commitfi/internal/domain"
)

// GroupLister is the aggregation the monitor polls.
type GroupLister interface {
	ListGroups(ctx context.Context) ([]domain.Group, error)
}

// GroupChange is one difference between two aggregation passes.
type GroupChange struct {
	Event     string             `json:"event"`
	Group     common.Address     `json:"group"`
	Name      string             `json:"name"`
	Type      domain.GroupType   `json:"type"`
	Status    domain.GroupStatus `json:"status"`
	OldStatus domain.GroupStatus `json:"old_status,omitempty"`
	Round     int                `json:"round"`
	OldRound  int                `json:"old_round,omitempty"`
}

// GroupMonitor polls the aggregator and publishes group lifecycle changes:
// new groups, status changes and round advances.
type GroupMonitor struct {
	groups   GroupLister
	bus      domain.SignalBus
	notifier EventNotifier
	pollDur  time.Duration
	logger   *slog.Logger

	seen map[common.Address]domain.Group
}

// NewGroupMonitor creates a GroupMonitor. bus and notifier may be nil.
func NewGroupMonitor(groups GroupLister, bus domain.SignalBus, notifier EventNotifier, pollInterval time.Duration, logger *slog.Logger) *GroupMonitor {
	if pollInterval <= 0 {
		pollInterval = 30 * time.Second
	}
	return &GroupMonitor{
		groups:   groups,
		bus:      bus,
		notifier: notifier,
		pollDur:  pollInterval,
		logger:   logger.With(slog.String("component", "group_monitor")),
	}
}

// Run polls until ctx ends. The first pass only seeds the snapshot.
func (m *GroupMonitor) Run(ctx context.Context) error {
	if _, err := m.Check(ctx); err != nil {
		m.logger.ErrorContext(ctx, "group monitor initial pass failed", slog.String("error", err.Error()))
	}

	ticker := time.NewTicker(m.pollDur)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, err := m.Check(ctx); err != nil {
				m.logger.ErrorContext(ctx, "group monitor check failed", slog.String("error", err.Error()))
			}
		}
	}
}

// Check runs one aggregation pass and returns the changes since the previous
// one. A failed pass keeps the previous snapshot.
func (m *GroupMonitor) Check(ctx context.Context) ([]GroupChange, error) {
	groups, err := m.groups.ListGroups(ctx)
	if err != nil {
		return nil, err
	}

	next := make(map[common.Address]domain.Group, len(groups))
	for _, g := range groups {
		next[g.ID] = g
	}
	if m.seen == nil {
		m.seen = next
		m.logger.InfoContext(ctx, "group monitor seeded", slog.Int("groups", len(groups)))
		return nil, nil
	}

	changes := DiffGroups(m.seen, groups)
	m.seen = next

	for _, c := range changes {
		m.logger.InfoContext(ctx, "group changed",
			slog.String("event", c.Event),
			slog.String("group", c.Group.Hex()),
			slog.String("status", string(c.Status)),
			slog.Int("round", c.Round),
		)
		m.emit(ctx, c)
	}
	return changes, nil
}

// DiffGroups compares a previous snapshot with a new pass, in the order of
// the new pass.
func DiffGroups(prev map[common.Address]domain.Group, groups []domain.Group) []GroupChange {
	var changes []GroupChange
	for _, g := range groups {
		base := GroupChange{Group: g.ID, Name: g.Name, Type: g.Type, Status: g.Status, Round: g.CurrentCycle}
		old, ok := prev[g.ID]
		if !ok {
			base.Event = domain.EventGroupDiscovered
			changes = append(changes, base)
			continue
		}
		if old.Status != g.Status {
			c := base
			c.Event = domain.EventGroupStatusChanged
			c.OldStatus = old.Status
			changes = append(changes, c)
		}
		if g.CurrentCycle > old.CurrentCycle {
			c := base
			c.Event = domain.EventRoundAdvanced
			c.OldRound = old.CurrentCycle
			changes = append(changes, c)
		}
	}
	return changes
}

func (m *GroupMonitor) emit(ctx context.Context, c GroupChange) {
	if m.bus != nil {
		if payload, err := domain.NewEvent(c.Event, domain.ChannelGroups, c); err == nil {
			_ = m.bus.Publish(ctx, domain.ChannelGroups, payload)
		}
	}
	if m.notifier == nil {
		return
	}
	var title string
	switch c.Event {
	case domain.EventGroupDiscovered:
		title = fmt.Sprintf("New %s group: %s", c.Type, c.Name)
	case domain.EventGroupStatusChanged:
		title = fmt.Sprintf("%s: %s -> %s", c.Name, c.OldStatus, c.Status)
	case domain.EventRoundAdvanced:
		title = fmt.Sprintf("%s: round %d", c.Name, c.Round)
	}
	if err := m.notifier.Notify(ctx, c.Event, title, "group "+c.Group.Hex()); err != nil {
		m.logger.WarnContext(ctx, "group monitor notify failed", slog.String("error", err.Error()))
	}
}
