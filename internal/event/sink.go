// Package event defines the notification boundary the pipeline publishes
// progress through.
//
// The pipeline never talks to a transport directly — it emits [Event] values
// into an injected [Sink]. Deployments that want no eventing use [NoopSink];
// deployments with a message broker use the NATS sink in nats.go. Sinks must
// be cheap and non-blocking from the pipeline's perspective: a slow or
// failing sink degrades observability, never the run.
package event

import (
	"context"
	"time"
)

// Type enumerates the pipeline lifecycle notifications.
type Type string

const (
	// TypeRunStarted fires once when a batch run begins.
	TypeRunStarted Type = "run.started"

	// TypeSpeakerStarted fires when one speaker's chain begins.
	TypeSpeakerStarted Type = "speaker.started"

	// TypeSpeakerSucceeded fires when the full chain completed for a speaker.
	TypeSpeakerSucceeded Type = "speaker.succeeded"

	// TypeSpeakerFallback fires when a speaker's chain failed and a fallback
	// persona was synthesized.
	TypeSpeakerFallback Type = "speaker.fallback"

	// TypeRunFinished fires once when the batch run completes.
	TypeRunFinished Type = "run.finished"
)

// Event is one pipeline lifecycle notification.
type Event struct {
	// Type is the lifecycle notification kind.
	Type Type `json:"type"`

	// RunID identifies the batch run the event belongs to.
	RunID string `json:"run_id"`

	// Speaker is set for speaker-scoped events.
	Speaker string `json:"speaker,omitempty"`

	// Reason carries the failure description for fallback events.
	Reason string `json:"reason,omitempty"`

	// Timestamp is when the event was emitted.
	Timestamp time.Time `json:"timestamp"`
}

// Sink receives pipeline events. Implementations must be safe for concurrent
// use and should not block; the pipeline ignores Publish errors beyond
// logging them.
type Sink interface {
	Publish(ctx context.Context, ev Event) error
}

// NoopSink discards all events. It is the default when no transport is
// configured.
type NoopSink struct{}

// Publish discards ev and returns nil.
func (NoopSink) Publish(context.Context, Event) error { return nil }

var _ Sink = NoopSink{}
