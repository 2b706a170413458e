package containerctl

import (
	"context"
	"sync"
)

// FakeContainerCtl is an in-memory ContainerCtl for tests that exercise
// the Lifecycle Manager and Readiness Prober without a Docker daemon.
type FakeContainerCtl struct {
	mu         sync.Mutex
	states     map[string]Status
	StartCalls int
	StopCalls  int

	// StartFunc, when set, is called before Start records the container
	// as running; a non-nil error is returned from Start as-is. Tests use
	// it to simulate a slow or failing runtime call.
	StartFunc func(ctx context.Context, containerName string) error
}

func NewFakeContainerCtl() *FakeContainerCtl {
	return &FakeContainerCtl{states: make(map[string]Status)}
}

func (f *FakeContainerCtl) Start(ctx context.Context, containerName string) error {
	f.mu.Lock()
	f.StartCalls++
	f.mu.Unlock()

	if f.StartFunc != nil {
		if err := f.StartFunc(ctx, containerName); err != nil {
			return err
		}
	}

	f.mu.Lock()
	f.states[containerName] = Status{State: StateRunning}
	f.mu.Unlock()
	return nil
}

func (f *FakeContainerCtl) Stop(ctx context.Context, containerName string, graceSeconds int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.StopCalls++
	f.states[containerName] = Status{State: StateExited}
	return nil
}

func (f *FakeContainerCtl) State(ctx context.Context, containerName string) (Status, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	st, ok := f.states[containerName]
	if !ok {
		return Status{State: StateAbsent}, nil
	}
	return st, nil
}

func (f *FakeContainerCtl) Exec(ctx context.Context, containerName string, command []string) (string, error) {
	return "", nil
}

var _ ContainerCtl = (*FakeContainerCtl)(nil)
