// Package audit is the append-only event trail for ledger actions.
// Recording is fire-and-forget: sinks report errors, but the ledger only
// logs them and never fails a business operation over a lost audit
// event.
package audit

import (
	"context"
	"time"
)

// Event is one audit record.
type Event struct {
	ActorID    string            `json:"actor_id"`
	Action     string            `json:"action"`
	EntityType string            `json:"entity_type"`
	EntityID   string            `json:"entity_id"`
	Details    map[string]string `json:"details,omitempty"`
	OccurredAt time.Time         `json:"occurred_at"`
}

// Sink receives audit events.
type Sink interface {
	// Record delivers one event. Implementations must not block
	// indefinitely.
	Record(ctx context.Context, e Event) error
}
