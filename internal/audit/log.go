package audit

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
)

// LogSink writes audit events to the structured log. Used when no Kafka
// brokers are configured.
type LogSink struct {
	log zerolog.Logger
}

// NewLogSink creates a sink writing to log.
func NewLogSink(log zerolog.Logger) *LogSink {
	return &LogSink{log: log}
}

// Record implements Sink.
func (s *LogSink) Record(ctx context.Context, e Event) error {
	s.log.Info().
		Str("actor_id", e.ActorID).
		Str("action", e.Action).
		Str("entity_type", e.EntityType).
		Str("entity_id", e.EntityID).
		Interface("details", e.Details).
		Time("occurred_at", e.OccurredAt).
		Msg("Audit event")
	return nil
}

// Recorder collects events in memory for tests.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

// NewRecorder creates an empty recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

// Record implements Sink.
func (r *Recorder) Record(ctx context.Context, e Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

// Events returns a snapshot of recorded events.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

var (
	_ Sink = (*LogSink)(nil)
	_ Sink = (*Recorder)(nil)
)
