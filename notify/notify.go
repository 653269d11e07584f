package notify

import (
	"context"
	"time"
)

// EventType represents the type of engine event.
type EventType string

// Event type constants.
const (
	EventReadyForReview EventType = "ready_for_review"
	EventDriftAlert     EventType = "drift_alert"
	EventDriftCritical  EventType = "drift_critical"
	EventPhaseHalted    EventType = "phase_halted"
	EventPhaseClosed    EventType = "phase_closed"
	EventTaskFailed     EventType = "task_failed"
	EventRunCompleted   EventType = "run_completed"
)

// Severity constants for notifications.
const (
	SeverityCritical = "critical"
	SeverityError    = "error"
	SeverityWarning  = "warning"
	SeverityInfo     = "info"
)

// Event describes an engine event for notification.
type Event struct {
	Type      EventType      `json:"type"`
	Feature   string         `json:"feature"`
	Phase     int            `json:"phase,omitempty"`
	TaskID    string         `json:"task_id,omitempty"`
	Message   string         `json:"message"`
	Severity  string         `json:"severity"` // SeverityInfo, SeverityWarning, SeverityError
	Timestamp time.Time      `json:"timestamp"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// NewEvent returns an event stamped with the current time.
func NewEvent(t EventType, feature, severity, message string) Event {
	return Event{
		Type:      t,
		Feature:   feature,
		Severity:  severity,
		Message:   message,
		Timestamp: time.Now(),
	}
}

// Notifier sends notifications about engine events.
type Notifier interface {
	// Notify sends a notification. Implementations should not block for
	// long; callers log failures and carry on.
	Notify(ctx context.Context, event Event) error
}

// OrNop returns n, or a NopNotifier when n is nil.
func OrNop(n Notifier) Notifier {
	if n == nil {
		return NopNotifier{}
	}
	return n
}
