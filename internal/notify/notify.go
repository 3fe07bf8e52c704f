// Package notify is the best-effort outbound messaging boundary. The
// schedule engine uses it for run outcomes and upcoming-run reminders;
// delivery failures are logged by the caller and never propagated.
package notify

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
)

// Dispatcher sends a message to an owner.
type Dispatcher interface {
	Notify(ctx context.Context, ownerID, message string) error
}

// LogDispatcher writes notifications to the structured log. Stands in
// for the chat transport in development and tests.
type LogDispatcher struct {
	log zerolog.Logger
}

// NewLogDispatcher creates a dispatcher writing to log.
func NewLogDispatcher(log zerolog.Logger) *LogDispatcher {
	return &LogDispatcher{log: log}
}

// Notify implements Dispatcher.
func (d *LogDispatcher) Notify(ctx context.Context, ownerID, message string) error {
	d.log.Info().
		Str("owner_id", ownerID).
		Str("message", message).
		Msg("Notification")
	return nil
}

// Recorder collects notifications in memory for tests.
type Recorder struct {
	mu   sync.Mutex
	sent []Sent
}

// Sent is one captured notification.
type Sent struct {
	OwnerID string
	Message string
}

// NewRecorder creates an empty recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

// Notify implements Dispatcher.
func (r *Recorder) Notify(ctx context.Context, ownerID, message string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, Sent{OwnerID: ownerID, Message: message})
	return nil
}

// Messages returns a snapshot of captured notifications.
func (r *Recorder) Messages() []Sent {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Sent, len(r.sent))
	copy(out, r.sent)
	return out
}

var (
	_ Dispatcher = (*LogDispatcher)(nil)
	_ Dispatcher = (*Recorder)(nil)
)
