package cmd

import (
	"context"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"emperror.dev/errors"
	"github.com/apex/log"
	"github.com/go-co-op/gocron/v2"
	"github.com/spf13/cobra"
	"golang.org/x/sync/semaphore"

	"github.com/hollowreach/wakegate/config"
	"github.com/hollowreach/wakegate/internal/containerctl"
	"github.com/hollowreach/wakegate/internal/eventbus"
	bedrocklistener "github.com/hollowreach/wakegate/internal/listener/bedrock"
	javalistener "github.com/hollowreach/wakegate/internal/listener/java"
	"github.com/hollowreach/wakegate/internal/lifecycle"
	"github.com/hollowreach/wakegate/internal/notify"
	"github.com/hollowreach/wakegate/internal/probe"
	"github.com/hollowreach/wakegate/modules"
)

const (
	eventQueueDepth      = 256
	eventPoolSize        = 4
	configReloadInterval = 5 * time.Second
	maxConcurrentStarts  = 10
)

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the proxy: accept connections, wake backends on demand, idle them back down",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context(), configPath)
		},
	}
}

func serve(parentCtx context.Context, path string) error {
	ctx, stop := signal.NotifyContext(parentCtx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store := config.NewAtPath(path)
	if err := store.Load(); err != nil {
		return errors.Wrap(err, "loading initial configuration")
	}

	bus := eventbus.New(ctx, eventQueueDepth, eventPoolSize)
	defer bus.Close()

	registry := modules.NewRegistry(bus)
	if err := registry.Register(modules.LogSubscriber()); err != nil {
		return err
	}
	if err := registry.Enable("log"); err != nil {
		return err
	}
	notifySub := modules.NamedSubscriber("notify", "forwards events to the configured notifier", notify.Sink{Notifier: resolveNotifier(store)})
	if err := registry.Register(notifySub); err != nil {
		return err
	}
	if err := registry.Enable("notify"); err != nil {
		return err
	}

	if eventsAddr != "" {
		wsSink := eventbus.NewWebSocketSink()
		if err := registry.Register(modules.WebSocketSubscriber(wsSink)); err != nil {
			return err
		}
		if err := registry.Enable("websocket"); err != nil {
			return err
		}

		mux := http.NewServeMux()
		mux.Handle("/events", wsSink)
		srv := &http.Server{Addr: eventsAddr, Handler: mux}
		go func() {
			<-ctx.Done()
			srv.Close()
		}()
		go func() {
			log.WithField("addr", eventsAddr).Info("serving live event feed")
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.WithError(err).Warn("event feed server exited")
			}
		}()
	}

	ctl, err := containerctl.NewDockerContainerCtl()
	if err != nil {
		return errors.Wrap(err, "connecting to container runtime")
	}

	manager := lifecycle.New(ctl, probe.New(), bus)
	if err := manager.StartIdleTicker(ctx, store.Snapshot); err != nil {
		return errors.Wrap(err, "starting idle ticker")
	}

	if err := store.Watch(ctx, configReloadInterval); err != nil {
		return errors.Wrap(err, "starting config reload watcher")
	}

	var wg sync.WaitGroup
	runner := newListenerRunner(manager, bus, &wg)
	runner.reconcile(ctx, store.Snapshot())

	reconcileScheduler, err := gocron.NewScheduler()
	if err != nil {
		return errors.Wrap(err, "creating listener reconciliation scheduler")
	}
	if _, err := reconcileScheduler.NewJob(
		gocron.DurationJob(configReloadInterval),
		gocron.NewTask(func() { runner.reconcile(ctx, store.Snapshot()) }),
	); err != nil {
		return errors.Wrap(err, "scheduling listener reconciliation")
	}
	reconcileScheduler.Start()
	go func() {
		<-ctx.Done()
		_ = reconcileScheduler.Shutdown()
	}()

	log.Info("wakegate is serving")
	<-ctx.Done()
	log.Info("shutdown signal received, draining sessions")
	wg.Wait()
	return nil
}

// listenerSpec is one listener a ServerConfig wants running: a Java
// listener, a Bedrock listener, or a Java server's crossplay Bedrock
// listener, keyed so reconcile can diff successive snapshots.
type listenerSpec struct {
	key  string
	kind string
	cfg  config.ServerConfig
}

func specsFor(servers []config.ServerConfig) []listenerSpec {
	var specs []listenerSpec
	for _, cfg := range servers {
		switch cfg.Edition {
		case config.Java:
			specs = append(specs, listenerSpec{key: cfg.ID + ":java", kind: "java", cfg: cfg})
			if cfg.Crossplay {
				specs = append(specs, listenerSpec{key: cfg.ID + ":crossplay", kind: "crossplay", cfg: cfg})
			}
		case config.Bedrock:
			specs = append(specs, listenerSpec{key: cfg.ID + ":bedrock", kind: "bedrock", cfg: cfg})
		}
	}
	return specs
}

// activeListener tracks one running listener's cancellation, so a
// config change that drops a server can stop just that listener
// without touching the others.
type activeListener struct {
	cancel context.CancelFunc
}

// listenerRunner reconciles the set of running listeners against
// successive config snapshots, picking up additions and removals the
// way spec.md §4.1 describes ("listeners refresh periodically"). New
// listener startups are bounded by a semaphore the same way the
// teacher bounds its own concurrent per-port status checks in
// modules/alwaysmotd.go's updateServerStatus.
type listenerRunner struct {
	mu      sync.Mutex
	active  map[string]*activeListener
	wg      *sync.WaitGroup
	manager *lifecycle.Manager
	bus     *eventbus.Bus
	sem     *semaphore.Weighted
}

func newListenerRunner(manager *lifecycle.Manager, bus *eventbus.Bus, wg *sync.WaitGroup) *listenerRunner {
	return &listenerRunner{
		active:  make(map[string]*activeListener),
		wg:      wg,
		manager: manager,
		bus:     bus,
		sem:     semaphore.NewWeighted(maxConcurrentStarts),
	}
}

type listenerJob struct {
	spec  listenerSpec
	ctx   context.Context
	entry *activeListener
}

func (r *listenerRunner) reconcile(parentCtx context.Context, servers []config.ServerConfig) {
	desired := make(map[string]listenerSpec)
	for _, s := range specsFor(servers) {
		desired[s.key] = s
	}

	var jobs []listenerJob

	r.mu.Lock()
	for key, entry := range r.active {
		if _, ok := desired[key]; !ok {
			log.WithField("listener", key).Info("server removed from config, stopping listener")
			entry.cancel()
			delete(r.active, key)
		}
	}
	for key, spec := range desired {
		if _, ok := r.active[key]; ok {
			continue
		}
		lctx, cancel := context.WithCancel(parentCtx)
		entry := &activeListener{cancel: cancel}
		r.active[key] = entry
		jobs = append(jobs, listenerJob{spec: spec, ctx: lctx, entry: entry})
	}
	r.mu.Unlock()

	for _, j := range jobs {
		j := j
		r.wg.Add(1)
		go func() {
			defer r.wg.Done()
			if err := r.sem.Acquire(j.ctx, 1); err != nil {
				return
			}
			defer r.sem.Release(1)
			r.run(j.ctx, j.spec, j.entry)
		}()
	}
}

func (r *listenerRunner) run(ctx context.Context, spec listenerSpec, entry *activeListener) {
	defer func() {
		r.mu.Lock()
		if r.active[spec.key] == entry {
			delete(r.active, spec.key)
		}
		r.mu.Unlock()
	}()

	var err error
	switch spec.kind {
	case "java":
		err = javalistener.New(spec.cfg, r.manager, r.bus).Serve(ctx)
	case "bedrock":
		err = bedrocklistener.New(spec.cfg, spec.cfg.ExternalPort, spec.cfg.InternalPort, r.manager, r.bus).Serve(ctx)
	case "crossplay":
		err = bedrocklistener.New(spec.cfg, spec.cfg.BedrockPort, spec.cfg.BedrockInternalPort, r.manager, r.bus).Serve(ctx)
	}
	if err != nil && ctx.Err() == nil {
		log.WithError(err).WithField("server_id", spec.cfg.ID).WithField("kind", spec.kind).Error("listener exited")
	}
}

func resolveNotifier(store *config.Store) notify.Notifier {
	if len(store.Notifications()) == 0 {
		return notify.NopNotifier{}
	}
	return notify.LogNotifier{}
}
