package notify

import (
	"context"
	"log/slog"
)

// LogNotifier writes events to a structured logger, at a level derived
// from the event severity.
type LogNotifier struct {
	Logger *slog.Logger
}

// NewLogNotifier uses slog.Default when logger is nil.
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogNotifier{Logger: logger}
}

func levelFor(severity string) slog.Level {
	switch severity {
	case SeverityWarning:
		return slog.LevelWarn
	case SeverityError, SeverityCritical:
		return slog.LevelError
	}
	return slog.LevelInfo
}

// Notify implements Notifier. Phase and task are logged only when set.
func (n *LogNotifier) Notify(ctx context.Context, event Event) error {
	attrs := []slog.Attr{
		slog.String("event", string(event.Type)),
		slog.String("feature", event.Feature),
	}
	if event.Phase > 0 {
		attrs = append(attrs, slog.Int("phase", event.Phase))
	}
	if event.TaskID != "" {
		attrs = append(attrs, slog.String("task", event.TaskID))
	}
	for k, v := range event.Metadata {
		attrs = append(attrs, slog.Any(k, v))
	}
	n.Logger.LogAttrs(ctx, levelFor(event.Severity), event.Message, attrs...)
	return nil
}
