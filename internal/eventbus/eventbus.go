// Package eventbus fans out lifecycle and player events to registered
// sinks without ever blocking the forwarders or listeners that emit
// them, using a bounded channel drained by a small worker pool.
package eventbus

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/apex/log"
	"github.com/gammazero/workerpool"
	"github.com/google/uuid"
)

// Event type names, stable across the wire/log boundary.
const (
	TypeServerStarting     = "server.starting"
	TypeServerReady        = "server.ready"
	TypeServerStartFailed  = "server.start_failed"
	TypeServerStopping     = "server.stopping"
	TypeServerStopped      = "server.stopped"
	TypePlayerLoginAttempt = "player.login_attempt"
	TypePlayerUnauthorized = "player.unauthorized"
	TypeProxyError         = "proxy.error"
)

// Event is one emitted occurrence.
type Event struct {
	ID       uuid.UUID
	Type     string
	ServerID string
	At       time.Time
	Fields   map[string]any
}

// Sink receives delivered events. Implementations must not block for
// long; the bus already runs them off a worker pool, but a stuck sink
// still occupies a pool slot.
type Sink interface {
	Handle(ctx context.Context, ev Event)
}

// Bus is a bounded, best-effort event fan-out.
type Bus struct {
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	queue chan Event
	pool  *workerpool.WorkerPool

	mu    sync.RWMutex
	sinks []Sink

	dropped atomic.Uint64
}

// New creates a Bus with the given queue depth and worker pool size.
func New(ctx context.Context, queueDepth, poolSize int) *Bus {
	ctx, cancel := context.WithCancel(ctx)
	b := &Bus{
		ctx:    ctx,
		cancel: cancel,
		queue:  make(chan Event, queueDepth),
		pool:   workerpool.New(poolSize),
	}
	b.wg.Add(1)
	go b.drain()
	return b
}

// Subscribe registers a sink for future events.
func (b *Bus) Subscribe(s Sink) {
	b.mu.Lock()
	b.sinks = append(b.sinks, s)
	b.mu.Unlock()
}

// Emit enqueues an event, generating an ID and timestamp if unset.
// Never blocks: when the queue is full, the oldest queued event is
// dropped to make room and the drop counter is incremented.
func (b *Bus) Emit(ev Event) {
	if ev.ID == uuid.Nil {
		ev.ID = uuid.New()
	}
	if ev.At.IsZero() {
		ev.At = time.Now()
	}
	select {
	case b.queue <- ev:
		return
	default:
	}
	select {
	case <-b.queue:
		b.dropped.Add(1)
	default:
	}
	select {
	case b.queue <- ev:
	default:
		b.dropped.Add(1)
	}
}

// Dropped returns the running count of events dropped due to overflow.
func (b *Bus) Dropped() uint64 {
	return b.dropped.Load()
}

func (b *Bus) drain() {
	defer b.wg.Done()
	for {
		select {
		case ev := <-b.queue:
			b.dispatch(ev)
		case <-b.ctx.Done():
			return
		}
	}
}

func (b *Bus) dispatch(ev Event) {
	b.mu.RLock()
	sinks := make([]Sink, len(b.sinks))
	copy(sinks, b.sinks)
	b.mu.RUnlock()

	for _, s := range sinks {
		s := s
		b.pool.Submit(func() {
			defer func() {
				if r := recover(); r != nil {
					log.WithField("panic", r).Error("eventbus sink panicked")
				}
			}()
			s.Handle(b.ctx, ev)
		})
	}
}

// Close stops accepting new dispatch work and waits for the drain loop
// and worker pool to finish in-flight deliveries.
func (b *Bus) Close() {
	b.cancel()
	b.wg.Wait()
	b.pool.StopWait()
}
