// Package notify fans operator alerts out to Telegram and Discord, filtered
// by event type.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

// Sender is one notification channel.
type Sender interface {
	Send(ctx context.Context, title, message string) error
	Name() string
}

// Notifier dispatches to every Sender. Notify forwards only allowed event
// types; an empty allow list lets everything through.
type Notifier struct {
	senders []Sender
	events  map[string]bool
	prefix  string
	logger  *slog.Logger
}

// NewNotifier creates a Notifier. prefix, when set, is prepended to every
// title, e.g. "[AAPL maker]".
func NewNotifier(senders []Sender, events []string, prefix string, logger *slog.Logger) *Notifier {
	allowed := make(map[string]bool, len(events))
	for _, e := range events {
		if e = strings.TrimSpace(e); e != "" {
			allowed[e] = true
		}
	}
	return &Notifier{
		senders: senders,
		events:  allowed,
		prefix:  prefix,
		logger:  logger.With(slog.String("component", "notifier")),
	}
}

// Allowed reports whether event passes the filter.
func (n *Notifier) Allowed(event string) bool {
	return len(n.events) == 0 || n.events[event]
}

func (n *Notifier) Notify(ctx context.Context, event, title, message string) error {
	if !n.Allowed(event) {
		n.logger.DebugContext(ctx, "event filtered out", slog.String("event", event))
		return nil
	}
	return n.dispatch(ctx, title, message)
}

// NotifyAll bypasses the event filter.
func (n *Notifier) NotifyAll(ctx context.Context, title, message string) error {
	return n.dispatch(ctx, title, message)
}

// dispatch tries every sender; one failure does not stop the rest.
func (n *Notifier) dispatch(ctx context.Context, title, message string) error {
	if n.prefix != "" {
		title = n.prefix + " " + title
	}

	var errs []error
	for _, s := range n.senders {
		if err := s.Send(ctx, title, message); err != nil {
			n.logger.ErrorContext(ctx, "sender failed",
				slog.String("sender", s.Name()),
				slog.String("error", err.Error()),
			)
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
			continue
		}
		n.logger.DebugContext(ctx, "notification sent",
			slog.String("sender", s.Name()),
			slog.String("title", title),
		)
	}
	if len(errs) > 0 {
		return fmt.Errorf("notify: %d sender(s) failed: %w", len(errs), errors.Join(errs...))
	}
	return nil
}
