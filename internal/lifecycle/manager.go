package lifecycle

import (
	"context"
	"sync"
	"time"

	"emperror.dev/errors"
	"github.com/apex/log"
	"github.com/go-co-op/gocron/v2"

	"github.com/hollowreach/wakegate/config"
	"github.com/hollowreach/wakegate/internal/containerctl"
	"github.com/hollowreach/wakegate/internal/eventbus"
	"github.com/hollowreach/wakegate/internal/wakeerr"
)

// Prober is the subset of internal/probe.Prober the Manager depends on,
// declared here to avoid lifecycle importing probe's own config import
// cycle and to keep the manager testable against a fake.
type Prober interface {
	WaitReady(ctx context.Context, cfg config.ServerConfig, ctl containerctl.ContainerCtl) error
}

// IdleTickInterval is how often the background ticker inspects RUNNING
// runtimes for idle shutdown eligibility.
const IdleTickInterval = 10 * time.Second

// Manager owns one Runtime per ServerConfig.ID and coordinates every
// state transition through EnsureRunning and the idle ticker.
type Manager struct {
	mu       sync.Mutex
	runtimes map[string]*Runtime

	ctl    containerctl.ContainerCtl
	prober Prober
	bus    *eventbus.Bus

	scheduler gocron.Scheduler
}

func New(ctl containerctl.ContainerCtl, prober Prober, bus *eventbus.Bus) *Manager {
	return &Manager{
		runtimes: make(map[string]*Runtime),
		ctl:      ctl,
		prober:   prober,
		bus:      bus,
	}
}

func (m *Manager) runtimeFor(id string) *Runtime {
	m.mu.Lock()
	defer m.mu.Unlock()
	rt, ok := m.runtimes[id]
	if !ok {
		rt = newRuntime()
		m.runtimes[id] = rt
	}
	return rt
}

// RuntimeFor exposes the runtime for a server id, for listeners and
// session forwarders to do accounting against.
func (m *Manager) RuntimeFor(id string) *Runtime {
	return m.runtimeFor(id)
}

// EnsureRunning implements the contract in §4.6: at most one start is
// in flight per runtime; every concurrent caller observes the same
// success/failure outcome.
func (m *Manager) EnsureRunning(ctx context.Context, cfg config.ServerConfig) error {
	rt := m.runtimeFor(cfg.ID)

	rt.mu.Lock()
	switch rt.state {
	case Running:
		rt.mu.Unlock()
		return nil
	case Starting:
		wait := rt.startingSignal
		rt.mu.Unlock()
		select {
		case <-wait:
		case <-ctx.Done():
			return ctx.Err()
		}
		return m.outcomeAfterWait(cfg.ID)
	default: // Stopped or Stopping: begin a fresh start attempt
		for rt.state == Stopping {
			wait := rt.startingSignal
			rt.mu.Unlock()
			if wait != nil {
				select {
				case <-wait:
				case <-ctx.Done():
					return ctx.Err()
				}
			}
			rt.mu.Lock()
		}
		if rt.state == Running {
			rt.mu.Unlock()
			return nil
		}
		rt.state = Starting
		signal := make(chan struct{})
		rt.startingSignal = signal
		rt.startErr = nil
		rt.mu.Unlock()

		m.emit(eventbus.TypeServerStarting, cfg.ID, nil)
		go m.runStart(cfg, rt, signal)

		select {
		case <-signal:
		case <-ctx.Done():
			return ctx.Err()
		}
		return m.outcomeAfterWait(cfg.ID)
	}
}

// runStart performs the actual container start + readiness wait outside
// the runtime lock, then records the outcome and wakes every waiter.
func (m *Manager) runStart(cfg config.ServerConfig, rt *Runtime, signal chan struct{}) {
	startCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.MaxStartupWaitS)*time.Second+30*time.Second)
	defer cancel()

	err := m.ctl.Start(startCtx, cfg.ContainerName)
	if err == nil {
		err = m.prober.WaitReady(startCtx, cfg, m.ctl)
	}

	rt.mu.Lock()
	if err != nil {
		rt.state = Stopped
		rt.startErr = errors.Wrap(wakeerr.ErrStartup, err.Error())
	} else {
		rt.state = Running
		rt.lastActivity = time.Now()
		rt.startErr = nil
	}
	rt.mu.Unlock()

	if err != nil {
		m.emit(eventbus.TypeServerStartFailed, cfg.ID, map[string]any{"error": err.Error()})
	} else {
		m.emit(eventbus.TypeServerReady, cfg.ID, nil)
	}
	close(signal)
}

func (m *Manager) outcomeAfterWait(id string) error {
	rt := m.runtimeFor(id)
	rt.mu.Lock()
	defer rt.mu.Unlock()
	if rt.state == Running {
		return nil
	}
	if rt.startErr != nil {
		return rt.startErr
	}
	return errors.Wrap(wakeerr.ErrStartup, "backend failed to start")
}

// StartIdleTicker registers the recurring idle-shutdown job against the
// given config snapshots, via gocron the way the scheduling-driven
// ambient stack prescribes.
func (m *Manager) StartIdleTicker(ctx context.Context, snapshot func() []config.ServerConfig) error {
	s, err := gocron.NewScheduler()
	if err != nil {
		return errors.Wrap(err, "creating scheduler")
	}
	m.scheduler = s

	_, err = s.NewJob(
		gocron.DurationJob(IdleTickInterval),
		gocron.NewTask(func() { m.idleTick(ctx, snapshot()) }),
	)
	if err != nil {
		return errors.Wrap(err, "scheduling idle ticker")
	}
	s.Start()

	go func() {
		<-ctx.Done()
		_ = s.Shutdown()
	}()
	return nil
}

func (m *Manager) idleTick(ctx context.Context, servers []config.ServerConfig) {
	for _, cfg := range servers {
		rt := m.runtimeFor(cfg.ID)
		d := time.Duration(cfg.IdleTimeoutS) * time.Second
		if !rt.idleSince(d) {
			continue
		}
		m.shutdown(ctx, cfg, rt)
	}
}

func (m *Manager) shutdown(ctx context.Context, cfg config.ServerConfig, rt *Runtime) {
	rt.mu.Lock()
	if rt.state != Running {
		rt.mu.Unlock()
		return
	}
	rt.state = Stopping
	signal := make(chan struct{})
	rt.startingSignal = signal
	rt.mu.Unlock()

	m.emit(eventbus.TypeServerStopping, cfg.ID, nil)
	log.WithField("server_id", cfg.ID).Info("idle timeout reached, stopping backend")

	err := m.ctl.Stop(ctx, cfg.ContainerName, cfg.StopGraceSeconds)

	rt.mu.Lock()
	rt.state = Stopped
	rt.mu.Unlock()
	close(signal)

	if err != nil {
		m.emit(eventbus.TypeProxyError, cfg.ID, map[string]any{"error": err.Error()})
		log.WithError(err).WithField("server_id", cfg.ID).Warn("stopping backend failed")
		return
	}
	m.emit(eventbus.TypeServerStopped, cfg.ID, nil)
}

func (m *Manager) emit(eventType, serverID string, fields map[string]any) {
	if m.bus == nil {
		return
	}
	m.bus.Emit(eventbus.Event{Type: eventType, ServerID: serverID, Fields: fields})
}
