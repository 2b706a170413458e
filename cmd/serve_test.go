package cmd

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/hollowreach/wakegate/config"
	"github.com/hollowreach/wakegate/internal/containerctl"
	"github.com/hollowreach/wakegate/internal/eventbus"
	"github.com/hollowreach/wakegate/internal/lifecycle"
	"github.com/hollowreach/wakegate/internal/probe"
)

func TestSpecsForCoversEachEdition(t *testing.T) {
	servers := []config.ServerConfig{
		{ID: "survival", Edition: config.Java},
		{ID: "creative", Edition: config.Java, Crossplay: true, BedrockPort: 19133},
		{ID: "lobby", Edition: config.Bedrock},
	}
	specs := specsFor(servers)

	keys := make(map[string]bool, len(specs))
	for _, s := range specs {
		keys[s.key] = true
	}
	for _, want := range []string{"survival:java", "creative:java", "creative:crossplay", "lobby:bedrock"} {
		if !keys[want] {
			t.Fatalf("expected listener spec %q, got %v", want, keys)
		}
	}
	if len(specs) != 4 {
		t.Fatalf("expected 4 specs, got %d", len(specs))
	}
}

func TestReconcileStartsAndStopsOnConfigChange(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bus := eventbus.New(ctx, 16, 1)
	defer bus.Close()
	manager := lifecycle.New(containerctl.NewFakeContainerCtl(), probe.New(), bus)

	var wg sync.WaitGroup
	runner := newListenerRunner(manager, bus, &wg)

	survival := config.ServerConfig{ID: "survival", Edition: config.Java, ExternalPort: 0}
	runner.reconcile(ctx, []config.ServerConfig{survival})
	waitForActiveCount(t, runner, 1)

	// Removing the server from the snapshot should cancel its listener.
	runner.reconcile(ctx, nil)
	waitForActiveCount(t, runner, 0)
}

func waitForActiveCount(t *testing.T, r *listenerRunner, want int) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		r.mu.Lock()
		got := len(r.active)
		r.mu.Unlock()
		if got == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("expected %d active listeners, timed out", want)
}
