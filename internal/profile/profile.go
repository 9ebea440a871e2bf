// Package profile turns drops onto a named profile into queued operations.
package profile

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/msageha/dropzone/internal/batch"
	"github.com/msageha/dropzone/internal/deps"
	"github.com/msageha/dropzone/internal/dialog"
	"github.com/msageha/dropzone/internal/events"
	"github.com/msageha/dropzone/internal/fsx"
	"github.com/msageha/dropzone/internal/log"
	"github.com/msageha/dropzone/internal/model"
	"github.com/msageha/dropzone/internal/processor"
	"github.com/msageha/dropzone/internal/worker"
)

// DefaultTweakModifiers is the modifier combination that opens the options
// dialog before a drop.
const DefaultTweakModifiers = "Alt"

// DependencyResolver resolves declared processor dependencies.
type DependencyResolver interface {
	ResolveAll(ctx context.Context, names []string) (map[string]string, error)
}

// Timing holds the cadences and thresholds of the pipeline.
type Timing struct {
	// FlushFirst and FlushEvery pace draining normalized items into
	// operations while a non-bulk drop is still being normalized.
	FlushFirst time.Duration
	FlushEvery time.Duration
	// AdmitFirst and AdmitEvery pace handing prepared operations to the
	// batch and the worker.
	AdmitFirst time.Duration
	AdmitEvery time.Duration
	// The watchdog asks whether to go on once a single preparation took
	// longer than WatchdogMinItem and the extrapolated rest exceeds
	// WatchdogBudget.
	WatchdogMinItem time.Duration
	WatchdogBudget  time.Duration
	// ListConcurrency bounds concurrent directory listings.
	ListConcurrency int
}

func (t *Timing) defaults() {
	if t.FlushFirst <= 0 {
		t.FlushFirst = 10 * time.Millisecond
	}
	if t.FlushEvery <= 0 {
		t.FlushEvery = 100 * time.Millisecond
	}
	if t.AdmitFirst <= 0 {
		t.AdmitFirst = 10 * time.Millisecond
	}
	if t.AdmitEvery <= 0 {
		t.AdmitEvery = 300 * time.Millisecond
	}
	if t.WatchdogMinItem <= 0 {
		t.WatchdogMinItem = 100 * time.Millisecond
	}
	if t.WatchdogBudget <= 0 {
		t.WatchdogBudget = 60 * time.Second
	}
	if t.ListConcurrency <= 0 {
		t.ListConcurrency = 4
	}
}

// Config is the configuration of a Profile.
type Config struct {
	ID        string
	Title     string
	Processor processor.Processor
	// Options are the live option values; nil takes the processor defaults.
	Options  model.Options
	Worker   worker.Queue
	Dialogs  dialog.Service
	Lister   fsx.Lister
	Notifier events.Publisher
	Resolver DependencyResolver
	// Settings is the user settings snapshot handed to preparators.
	Settings       map[string]any
	Paths          processor.Paths
	TweakModifiers string
	Timing         Timing
	Logger         log.Logger
}

func (c *Config) defaults() error {
	if c.ID == "" {
		return fmt.Errorf("profile id is required")
	}
	if err := c.Processor.Validate(); err != nil {
		return err
	}
	if c.Worker == nil {
		return fmt.Errorf("worker is required")
	}
	if c.Title == "" {
		c.Title = c.ID
	}
	if c.Options == nil {
		c.Options = c.Processor.Options.Clone()
	}
	if c.Dialogs == nil {
		c.Dialogs = &dialog.Scripted{}
	}
	if c.Lister == nil {
		c.Lister = fsx.OS{}
	}
	if c.Notifier == nil {
		c.Notifier = events.Discard
	}
	if c.TweakModifiers == "" {
		c.TweakModifiers = DefaultTweakModifiers
	}
	c.Timing.defaults()
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "profile.Profile", "profile": c.ID})
	if c.Resolver == nil {
		r, err := deps.NewResolver(deps.ResolverConfig{Logger: c.Logger})
		if err != nil {
			return err
		}
		c.Resolver = r
	}
	return nil
}

// Profile binds a processor to its options, a worker and the collaborators
// used while turning drops into operations.
type Profile struct {
	cfg    Config
	proc   *processor.Processor
	logger log.Logger
	batch  *batch.Batch

	ctx    context.Context
	cancel context.CancelFunc

	optsMu  sync.RWMutex
	options model.Options

	addMu        sync.Mutex
	adding       int
	addedTotal   int
	listeners    map[int]func(total int)
	nextListener int

	prepMu sync.Mutex
	queue  []entry
	drain  *drain
}

// New returns a Profile.
func New(cfg Config) (*Profile, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Profile{
		cfg:       cfg,
		proc:      &cfg.Processor,
		logger:    cfg.Logger,
		batch:     batch.New(),
		ctx:       ctx,
		cancel:    cancel,
		options:   cfg.Options.Clone(),
		listeners: make(map[int]func(int)),
	}, nil
}

// ID returns the profile id.
func (p *Profile) ID() string { return p.cfg.ID }

// Title returns the display title.
func (p *Profile) Title() string { return p.cfg.Title }

// Processor returns the bound processor.
func (p *Profile) Processor() *processor.Processor { return p.proc }

// Batch returns the progress bookkeeping of operations admitted by this
// profile.
func (p *Profile) Batch() *batch.Batch { return p.batch }

// Options returns a deep copy of the live options.
func (p *Profile) Options() model.Options {
	p.optsMu.RLock()
	defer p.optsMu.RUnlock()
	return p.options.Clone()
}

// SetOptions replaces the live options.
func (p *Profile) SetOptions(opts model.Options) {
	p.optsMu.Lock()
	defer p.optsMu.Unlock()
	p.options = opts.Clone()
}

// OnAdding registers fn to be called with the number of items added once
// every overlapping drop finished. It returns an unsubscribe function.
func (p *Profile) OnAdding(fn func(total int)) func() {
	p.addMu.Lock()
	defer p.addMu.Unlock()
	id := p.nextListener
	p.nextListener++
	p.listeners[id] = fn
	return func() {
		p.addMu.Lock()
		defer p.addMu.Unlock()
		delete(p.listeners, id)
	}
}

// IsAdding reports whether a drop is being processed.
func (p *Profile) IsAdding() bool {
	p.addMu.Lock()
	defer p.addMu.Unlock()
	return p.adding > 0
}

// QueueLen returns the number of entries in the preparation queue.
func (p *Profile) QueueLen() int {
	p.prepMu.Lock()
	defer p.prepMu.Unlock()
	return len(p.queue)
}

// Close cancels running drains and discards unprepared entries.
func (p *Profile) Close() {
	p.cancel()
	p.prepMu.Lock()
	defer p.prepMu.Unlock()
	if n := len(p.queue); n > 0 {
		p.logger.Infof("discarding %d queued entries", n)
	}
	p.queue = nil
}

func (p *Profile) beginAdding() {
	p.addMu.Lock()
	defer p.addMu.Unlock()
	p.adding++
}

func (p *Profile) endAdding(added int) {
	p.addMu.Lock()
	p.addedTotal += added
	p.adding--
	if p.adding > 0 {
		p.addMu.Unlock()
		return
	}
	total := p.addedTotal
	p.addedTotal = 0
	fns := make([]func(int), 0, len(p.listeners))
	for id := 0; id < p.nextListener; id++ {
		if fn, ok := p.listeners[id]; ok {
			fns = append(fns, fn)
		}
	}
	p.addMu.Unlock()

	for _, fn := range fns {
		fn(total)
	}
}

func (p *Profile) reportActions() []events.Action {
	if p.proc.IssueURL == "" {
		return nil
	}
	return []events.Action{{Title: "Report issue", URL: p.proc.IssueURL}}
}
