// Package notify delivers engine events to operators and other systems.
//
// Core types:
//   - Notifier: Interface for sending notifications
//   - Event: Notification event with type, feature, phase and message
//   - EventType: ready for review, drift alert, phase halted, task failed, ...
//
// Implementations:
//   - SlackNotifier: Sends notifications to Slack webhooks
//   - WebhookNotifier: Posts events to generic webhooks
//   - NATSNotifier: Publishes events on a NATS subject per feature
//   - LogNotifier: Logs notifications
//   - MultiNotifier: Combines multiple notifiers
//   - NopNotifier: No-op notifier
//
// Example usage:
//
//	notifier := notify.NewMultiNotifier(
//	    notify.NewLogNotifier(logger),
//	    notify.NewSlackNotifier(webhookURL, notify.WithSlackChannel("#releases")),
//	)
//	err := notifier.Notify(ctx, notify.NewEvent(
//	    notify.EventReadyForReview, "003-add-caching", notify.SeverityInfo,
//	    "phase 2 is ready for review",
//	))
package notify
