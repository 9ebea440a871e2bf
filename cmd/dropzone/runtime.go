package main

import (
	"context"
	"fmt"
	"os/signal"
	"sort"
	"sync"
	"syscall"
	"time"

	"github.com/oklog/run"

	"github.com/msageha/dropzone/internal/config"
	"github.com/msageha/dropzone/internal/deps"
	"github.com/msageha/dropzone/internal/dialog"
	"github.com/msageha/dropzone/internal/events"
	"github.com/msageha/dropzone/internal/fsx"
	"github.com/msageha/dropzone/internal/log"
	"github.com/msageha/dropzone/internal/model"
	"github.com/msageha/dropzone/internal/notify"
	"github.com/msageha/dropzone/internal/plugins"
	"github.com/msageha/dropzone/internal/processor"
	"github.com/msageha/dropzone/internal/processor/builtin"
	"github.com/msageha/dropzone/internal/profile"
	"github.com/msageha/dropzone/internal/staging"
	"github.com/msageha/dropzone/internal/worker"
)

var userEvents = []events.EventType{
	events.EventStagingDone,
	events.EventDropAborted,
	events.EventOperationDropped,
	events.EventItemSkipped,
}

// runtime wires the services a command needs.
type runtime struct {
	cfg    *config.Config
	logger log.Logger

	bus        *events.Bus
	controller *staging.Controller
	registry   *plugins.Registry
	installer  *plugins.Installer
	resolver   *deps.Resolver
	pool       *worker.Pool
	dialogs    dialog.Service

	mu       sync.RWMutex
	profiles map[string]*profile.Profile
	finished []*model.Operation
	unsubs   []func()
}

func newRuntime(cc *commandContext, dialogs dialog.Service) (*runtime, error) {
	cfg := cc.cfg
	rt := &runtime{
		cfg:      cfg,
		logger:   cc.logger,
		bus:      events.NewBus(64),
		dialogs:  dialogs,
		profiles: make(map[string]*profile.Profile),
	}

	rt.unsubs = append(rt.unsubs, attachEventPrinter(rt.bus, cc.stderr))
	if cfg.Notify.Enabled {
		sink := notify.NewSink(notify.SinkConfig{
			Sender:     notify.Desktop(),
			MinVariant: events.Variant(cfg.Notify.MinVariant),
			Logger:     rt.logger,
		})
		rt.unsubs = append(rt.unsubs, sink.Attach(rt.bus, userEvents...))
	}

	var err error
	rt.controller, err = staging.NewController(staging.ControllerConfig{
		Notifier:     rt.bus,
		Presenter:    &logPresenter{w: cc.stderr},
		ErrorDisplay: staging.ErrorDisplay(cfg.Staging.ErrorDisplay),
		Logger:       rt.logger,
	})
	if err != nil {
		return nil, fmt.Errorf("could not create staging controller: %w", err)
	}

	rt.resolver, err = deps.NewResolver(deps.ResolverConfig{
		Overrides: cfg.Dependencies.Overrides,
		CacheSize: cfg.Dependencies.CacheSize,
		CacheTTL:  cfg.Dependencies.CacheTTL(),
		Logger:    rt.logger,
	})
	if err != nil {
		return nil, fmt.Errorf("could not create dependency resolver: %w", err)
	}

	rt.pool, err = worker.NewPool(worker.PoolConfig{
		Concurrency: cfg.Worker.Concurrency,
		Execute:     rt.execute,
		Logger:      rt.logger,
	})
	if err != nil {
		return nil, fmt.Errorf("could not create worker pool: %w", err)
	}

	rt.registry, err = plugins.NewRegistry(builtin.All(cfg.Processors.OutputDir)...)
	if err != nil {
		return nil, fmt.Errorf("could not register builtin processors: %w", err)
	}
	rt.installer, err = plugins.NewInstaller(plugins.InstallerConfig{
		Registry:   rt.registry,
		Controller: rt.controller,
		Worker:     rt.pool,
		Resolver:   rt.resolver,
		Logger:     rt.logger,
	})
	if err != nil {
		return nil, fmt.Errorf("could not create installer: %w", err)
	}
	return rt, nil
}

// installManifests installs the processors declared in the manifest
// directory.
func (rt *runtime) installManifests(ctx context.Context) (plugins.Report, error) {
	manifests, err := processor.LoadManifests(rt.cfg.Processors.ManifestDir)
	if err != nil {
		return plugins.Report{}, err
	}
	if len(manifests) == 0 {
		return plugins.Report{}, nil
	}
	procs, err := rt.registry.FromManifests(manifests)
	if err != nil {
		return plugins.Report{}, err
	}
	report, err := rt.installer.Install(ctx, procs)
	if err != nil {
		return report, fmt.Errorf("install processors: %w", err)
	}
	for _, id := range report.Failed {
		rt.logger.Warningf("processor %s not installed", id)
	}
	return report, nil
}

// loadProfiles builds the configured profiles whose processor is installed.
func (rt *runtime) loadProfiles() error {
	timing := profile.Timing{
		FlushFirst:      ms(rt.cfg.Pipeline.FlushFirstMs),
		FlushEvery:      ms(rt.cfg.Pipeline.FlushEveryMs),
		AdmitFirst:      ms(rt.cfg.Pipeline.AdmitFirstMs),
		AdmitEvery:      ms(rt.cfg.Pipeline.AdmitEveryMs),
		WatchdogMinItem: ms(rt.cfg.Pipeline.WatchdogMinItemMs),
		WatchdogBudget:  time.Duration(rt.cfg.Pipeline.WatchdogBudgetSec) * time.Second,
		ListConcurrency: rt.cfg.Pipeline.ListConcurrency,
	}
	paths := processor.Paths{
		Data:   rt.cfg.Processors.DataDir,
		Temp:   rt.cfg.Processors.TempDir,
		Output: rt.cfg.Processors.OutputDir,
	}
	settings := map[string]any{
		"worker_concurrency": rt.cfg.Worker.Concurrency,
		"tweak_modifiers":    rt.cfg.Pipeline.TweakModifiers,
	}

	for _, pc := range rt.cfg.Profiles {
		proc, ok := rt.registry.Get(pc.Processor)
		if !ok {
			rt.logger.Warningf("profile %s: processor %q is not installed", pc.ID, pc.Processor)
			continue
		}
		opts := proc.Options.Clone()
		if opts == nil {
			opts = model.Options{}
		}
		for k, v := range pc.Options.Clone() {
			opts[k] = v
		}

		p, err := profile.New(profile.Config{
			ID:             pc.ID,
			Title:          pc.Title,
			Processor:      proc,
			Options:        opts,
			Worker:         rt.pool,
			Dialogs:        rt.dialogs,
			Lister:         fsx.OS{},
			Notifier:       rt.bus,
			Resolver:       rt.resolver,
			Settings:       settings,
			Paths:          paths,
			TweakModifiers: rt.cfg.Pipeline.TweakModifiers,
			Timing:         timing,
			Logger:         rt.logger,
		})
		if err != nil {
			return fmt.Errorf("profile %s: %w", pc.ID, err)
		}
		rt.mu.Lock()
		rt.profiles[pc.ID] = p
		rt.mu.Unlock()
	}
	return nil
}

func (rt *runtime) profile(id string) (*profile.Profile, bool) {
	rt.mu.RLock()
	defer rt.mu.RUnlock()
	p, ok := rt.profiles[id]
	return p, ok
}

func (rt *runtime) profileIDs() []string {
	rt.mu.RLock()
	defer rt.mu.RUnlock()
	ids := make([]string, 0, len(rt.profiles))
	for id := range rt.profiles {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (rt *runtime) execute(ctx context.Context, op *model.Operation) error {
	p, ok := rt.profile(op.ProfileID)
	if !ok {
		return fmt.Errorf("operation %s: unknown profile %q", op.ID, op.ProfileID)
	}
	rt.mu.Lock()
	rt.finished = append(rt.finished, op)
	rt.mu.Unlock()
	return p.Processor().Execute(ctx, op)
}

// operations returns the operations handed to the worker so far.
func (rt *runtime) operations() []*model.Operation {
	rt.mu.RLock()
	defer rt.mu.RUnlock()
	return append([]*model.Operation(nil), rt.finished...)
}

func (rt *runtime) close() {
	rt.mu.RLock()
	for _, p := range rt.profiles {
		p.Close()
	}
	rt.mu.RUnlock()
	for _, unsub := range rt.unsubs {
		unsub()
	}
	rt.bus.Close()
}

// runGroup runs main next to the worker pool until main returns or a
// termination signal arrives.
func (rt *runtime) runGroup(ctx context.Context, main func(ctx context.Context) error) error {
	var g run.Group

	// OS signals.
	{
		signalCtx, signalCancel := signal.NotifyContext(ctx, syscall.SIGTERM, syscall.SIGINT)
		defer signalCancel()

		g.Add(
			func() error {
				<-signalCtx.Done()
				rt.logger.Debugf("Termination signal received")
				return signalCtx.Err()
			},
			func(_ error) {
				signalCancel()
			},
		)
	}

	// Worker pool.
	{
		poolCtx, poolCancel := context.WithCancel(ctx)
		defer poolCancel()

		g.Add(
			func() error {
				return rt.pool.Run(poolCtx)
			},
			func(_ error) {
				poolCancel()
			},
		)
	}

	// Command.
	{
		mainCtx, mainCancel := context.WithCancel(ctx)
		defer mainCancel()

		g.Add(
			func() error {
				return main(mainCtx)
			},
			func(_ error) {
				mainCancel()
			},
		)
	}

	return g.Run()
}

func ms(v int) time.Duration {
	return time.Duration(v) * time.Millisecond
}

func interactive(cc *commandContext) bool {
	return isTerminal(cc.stdin) && isTerminal(cc.stderr)
}
