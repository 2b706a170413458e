package modules

import (
	"context"
	"testing"

	"github.com/hollowreach/wakegate/internal/eventbus"
)

type noopSink struct{}

func (noopSink) Handle(context.Context, eventbus.Event) {}

func TestRegisterDuplicateNameFails(t *testing.T) {
	r := NewRegistry(eventbus.New(context.Background(), 4, 1))
	sub := NamedSubscriber("dup", "first", noopSink{})
	if err := r.Register(sub); err != nil {
		t.Fatalf("unexpected error on first register: %v", err)
	}
	if err := r.Register(sub); err == nil {
		t.Fatal("expected error registering duplicate name")
	}
}

func TestEnableIsIdempotentAndRequiresRegistration(t *testing.T) {
	bus := eventbus.New(context.Background(), 4, 1)
	r := NewRegistry(bus)
	if err := r.Enable("missing"); err == nil {
		t.Fatal("expected error enabling unregistered subscriber")
	}

	sub := LogSubscriber()
	if err := r.Register(sub); err != nil {
		t.Fatalf("register failed: %v", err)
	}
	if err := r.Enable("log"); err != nil {
		t.Fatalf("enable failed: %v", err)
	}
	if err := r.Enable("log"); err != nil {
		t.Fatalf("second enable should be a no-op, got: %v", err)
	}

	state := r.List()
	if !state["log"] {
		t.Fatal("expected log subscriber to be marked enabled")
	}
}
