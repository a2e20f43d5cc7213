// Package notification contains the announcements the bot posts to guilds.
package notification

import (
	"context"
	"errors"
	"sync"
)

var (
	// ErrChannelMissing is returned by a sink when the guild has no channel
	// for the announcement. Callers log it and move on.
	ErrChannelMissing = errors.New("notification channel not found")
)

// ══════════════════════════════════════════════════════════════════════════════
// SINK
// ══════════════════════════════════════════════════════════════════════════════

// Sink delivers notifications to the chat platform. Delivery is best effort:
// a failed delivery never affects the update that produced it.
type Sink interface {
	Deliver(ctx context.Context, n Notification) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, n Notification) error

// Deliver implements Sink.
func (f SinkFunc) Deliver(ctx context.Context, n Notification) error {
	return f(ctx, n)
}

// MultiSink fans a notification out to several sinks. It returns the joined
// errors of every failing sink.
type MultiSink []Sink

// Deliver implements Sink.
func (m MultiSink) Deliver(ctx context.Context, n Notification) error {
	var errs []error
	for _, s := range m {
		if err := s.Deliver(ctx, n); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Recorder is a Sink that keeps every delivered notification in memory.
type Recorder struct {
	mu   sync.Mutex
	sent []Notification
}

// Deliver implements Sink.
func (r *Recorder) Deliver(_ context.Context, n Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, n)
	return nil
}

// Sent returns a copy of everything delivered so far.
func (r *Recorder) Sent() []Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Notification, len(r.sent))
	copy(out, r.sent)
	return out
}
