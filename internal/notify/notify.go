// Package notify defines the narrow notifier interface the core emits
// events through; actual delivery (email, push) is out of scope and
// left to collaborators implementing Notifier, the same
// narrow-interface-plus-swappable-concrete-types shape as the teacher's
// modules.Module.
package notify

import (
	"context"

	"github.com/apex/log"

	"github.com/hollowreach/wakegate/internal/eventbus"
)

// Notifier is handed every emitted event and may forward it however it
// likes; failures are logged by the caller and never block the bus.
type Notifier interface {
	Notify(ctx context.Context, ev eventbus.Event) error
}

// NopNotifier discards every event; the default when no notifications
// block is configured.
type NopNotifier struct{}

func (NopNotifier) Notify(context.Context, eventbus.Event) error { return nil }

// LogNotifier routes events through apex/log, useful when the opaque
// notifications config names no real destination.
type LogNotifier struct{}

func (LogNotifier) Notify(_ context.Context, ev eventbus.Event) error {
	log.WithField("event", ev.Type).WithField("server_id", ev.ServerID).Info("notify")
	return nil
}

// Sink adapts a Notifier into an eventbus.Sink so it can be registered
// directly on the bus.
type Sink struct {
	Notifier Notifier
}

func (s Sink) Handle(ctx context.Context, ev eventbus.Event) {
	if err := s.Notifier.Notify(ctx, ev); err != nil {
		log.WithError(err).WithField("event", ev.Type).Warn("notifier failed")
	}
}

var _ eventbus.Sink = Sink{}
