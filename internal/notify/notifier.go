// Package notify pushes operational events from the trading loop to chat
// channels. The Notifier fans each event out to every configured sender and
// filters by the event list from config, so an operator can subscribe to
// rotations and claims without being paged for every rejected quote.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

// Sender delivers one rendered notification to a single channel.
type Sender interface {
	Send(ctx context.Context, title, body string) error
	Name() string
}

// Notifier fans events out to its senders. A nil *Notifier is valid and
// drops everything, which keeps call sites free of nil checks when no
// channels are configured.
type Notifier struct {
	senders []Sender
	allowed map[string]bool
	logger  *slog.Logger
}

// NewNotifier builds a Notifier delivering to senders. events lists the
// event types to forward; an empty list forwards everything.
func NewNotifier(senders []Sender, events []string, logger *slog.Logger) *Notifier {
	allowed := make(map[string]bool, len(events))
	for _, e := range events {
		if e = strings.TrimSpace(e); e != "" {
			allowed[e] = true
		}
	}
	return &Notifier{
		senders: senders,
		allowed: allowed,
		logger:  logger.With(slog.String("component", "notify")),
	}
}

// Notify delivers to every sender if the event type passes the filter.
func (n *Notifier) Notify(ctx context.Context, event, title, body string) error {
	if n == nil {
		return nil
	}
	if len(n.allowed) > 0 && !n.allowed[event] {
		n.logger.Debug("event filtered", slog.String("event", event))
		return nil
	}
	return n.dispatch(ctx, title, body)
}

// dispatch sends to every sender; one channel failing never blocks the
// others. The combined error is informational, callers only log it.
func (n *Notifier) dispatch(ctx context.Context, title, body string) error {
	var errs []error
	for _, s := range n.senders {
		if err := s.Send(ctx, title, body); err != nil {
			n.logger.Warn("notification send failed",
				slog.String("sender", s.Name()),
				slog.String("error", err.Error()))
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
		}
	}
	return errors.Join(errs...)
}
