package event

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
)

const defaultSubjectPrefix = "personaforge.pipeline"

// NATSOption is a functional option for configuring a [NATSSink].
type NATSOption func(*NATSSink)

// WithSubjectPrefix overrides the subject prefix events are published under.
// The event type is appended, e.g. "personaforge.pipeline.speaker.fallback".
func WithSubjectPrefix(prefix string) NATSOption {
	return func(s *NATSSink) {
		s.prefix = prefix
	}
}

// NATSSink publishes pipeline events to a NATS subject as JSON.
// Safe for concurrent use — nats.Conn is internally synchronised.
type NATSSink struct {
	conn   *nats.Conn
	prefix string
}

// NewNATSSink returns a sink publishing on conn.
func NewNATSSink(conn *nats.Conn, opts ...NATSOption) *NATSSink {
	s := &NATSSink{conn: conn, prefix: defaultSubjectPrefix}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Publish marshals ev and publishes it to "<prefix>.<type>". Publishing is
// fire-and-forget at the NATS level; delivery is not awaited.
func (s *NATSSink) Publish(_ context.Context, ev Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("event: marshal %s: %w", ev.Type, err)
	}
	subject := s.prefix + "." + string(ev.Type)
	if err := s.conn.Publish(subject, payload); err != nil {
		return fmt.Errorf("event: publish %s: %w", subject, err)
	}
	return nil
}

var _ Sink = (*NATSSink)(nil)
