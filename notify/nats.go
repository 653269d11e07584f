package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/nats-io/nats.go"
)

// DefaultSubjectPrefix is the subject prefix NATSNotifier publishes under.
const DefaultSubjectPrefix = "phaseflow"

// NATSNotifier publishes events as JSON on a NATS connection. The subject
// is <prefix>.<feature>.<type>, for example
//
//	phaseflow.003-add-caching.ready_for_review
type NATSNotifier struct {
	Conn   *nats.Conn
	Prefix string
}

// NewNATSNotifier creates a notifier publishing on nc.
func NewNATSNotifier(nc *nats.Conn, prefix string) *NATSNotifier {
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}
	return &NATSNotifier{Conn: nc, Prefix: prefix}
}

// Subject returns the subject an event is published on.
func (n *NATSNotifier) Subject(event Event) string {
	feature := event.Feature
	if feature == "" {
		feature = "_"
	}
	// Dots and wildcards are subject syntax.
	feature = strings.NewReplacer(".", "_", "*", "_", ">", "_", " ", "_").Replace(feature)
	return fmt.Sprintf("%s.%s.%s", n.Prefix, feature, event.Type)
}

// Notify implements Notifier.
func (n *NATSNotifier) Notify(ctx context.Context, event Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if err := n.Conn.Publish(n.Subject(event), data); err != nil {
		return fmt.Errorf("publish %s: %w", event.Type, err)
	}
	return nil
}
