// Package notify forwards workflow and group lifecycle events to operator
// chat channels. A Notifier fans each allowed event out to every Sender.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// Message is one notification.
type Message struct {
	Event string
	Title string
	Body  string
	Time  time.Time
}

// Sender delivers a Message over one channel.
type Sender interface {
	Send(ctx context.Context, msg Message) error
	Name() string
}

// Notifier dispatches to its senders. Notify drops events outside the
// configured set; an empty set allows everything. Each sender is throttled
// independently so a burst of group changes cannot trip webhook limits.
type Notifier struct {
	senders  []Sender
	limiters map[string]*rate.Limiter
	events   map[string]bool
	now      func() time.Time
	logger   *slog.Logger
}

// NewNotifier creates a Notifier. perMinute caps deliveries per sender; zero
// disables the cap.
func NewNotifier(senders []Sender, events []string, perMinute int, logger *slog.Logger) *Notifier {
	allowed := make(map[string]bool, len(events))
	for _, e := range events {
		if e = strings.TrimSpace(e); e != "" {
			allowed[e] = true
		}
	}
	limiters := make(map[string]*rate.Limiter, len(senders))
	for _, s := range senders {
		if perMinute > 0 {
			limiters[s.Name()] = rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), perMinute)
		}
	}
	return &Notifier{
		senders:  senders,
		limiters: limiters,
		events:   allowed,
		now:      time.Now,
		logger:   logger.With(slog.String("component", "notifier")),
	}
}

// Enabled reports whether any sender is configured.
func (n *Notifier) Enabled() bool { return n != nil && len(n.senders) > 0 }

// Allows reports whether event passes the filter.
func (n *Notifier) Allows(event string) bool {
	return len(n.events) == 0 || n.events[event]
}

// Notify sends title and message to every sender when event is allowed.
func (n *Notifier) Notify(ctx context.Context, event, title, message string) error {
	if !n.Allows(event) {
		n.logger.DebugContext(ctx, "notify: event filtered", slog.String("event", event))
		return nil
	}
	return n.dispatch(ctx, Message{Event: event, Title: title, Body: message, Time: n.now().UTC()})
}

// NotifyAll bypasses the event filter.
func (n *Notifier) NotifyAll(ctx context.Context, title, message string) error {
	return n.dispatch(ctx, Message{Title: title, Body: message, Time: n.now().UTC()})
}

// dispatch delivers to every sender; one failing sender does not stop the
// rest. Throttled messages are dropped rather than queued.
func (n *Notifier) dispatch(ctx context.Context, msg Message) error {
	var errs []error
	for _, s := range n.senders {
		if lim, ok := n.limiters[s.Name()]; ok && !lim.Allow() {
			n.logger.WarnContext(ctx, "notify: sender throttled",
				slog.String("sender", s.Name()),
				slog.String("event", msg.Event),
			)
			continue
		}
		if err := s.Send(ctx, msg); err != nil {
			n.logger.ErrorContext(ctx, "notify: sender failed",
				slog.String("sender", s.Name()),
				slog.String("error", err.Error()),
			)
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
			continue
		}
		n.logger.DebugContext(ctx, "notify: sent",
			slog.String("sender", s.Name()),
			slog.String("title", msg.Title),
		)
	}
	if len(errs) > 0 {
		return fmt.Errorf("notify: %d sender(s) failed: %w", len(errs), errors.Join(errs...))
	}
	return nil
}
