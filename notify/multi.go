package notify

import (
	"context"
	"errors"
	"log/slog"
)

// MultiNotifier delivers each event to every notifier in order. A failing
// notifier is logged and does not stop the others.
type MultiNotifier struct {
	Notifiers []Notifier
	Logger    *slog.Logger
}

func NewMultiNotifier(notifiers ...Notifier) *MultiNotifier {
	return &MultiNotifier{Notifiers: notifiers, Logger: slog.Default()}
}

// Notify implements Notifier. The returned error joins every failure.
func (n *MultiNotifier) Notify(ctx context.Context, event Event) error {
	var errs []error
	for _, notifier := range n.Notifiers {
		err := notifier.Notify(ctx, event)
		if err == nil {
			continue
		}
		errs = append(errs, err)
		if n.Logger != nil {
			n.Logger.Warn("notifier failed", "event", event.Type, "feature", event.Feature, "error", err)
		}
	}
	return errors.Join(errs...)
}

// NopNotifier discards all events.
type NopNotifier struct{}

func (NopNotifier) Notify(context.Context, Event) error { return nil }
