// Package worker runs queued operations on a fixed set of goroutines.
package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/msageha/dropzone/internal/log"
	"github.com/msageha/dropzone/internal/model"
)

// Queue is what the drop pipeline and the install flow use of a worker.
type Queue interface {
	Enqueue(op *model.Operation)
	Pause()
	Resume()
	IsPaused() bool
	RequestMoreCapacity()
	RequestRefresh()
}

// ExecuteFunc runs one operation.
type ExecuteFunc func(ctx context.Context, op *model.Operation) error

// ErrShutdown is the failure of operations still queued when the pool stops.
var ErrShutdown = errors.New("worker pool stopped")

// PoolConfig is the configuration of a Pool.
type PoolConfig struct {
	Concurrency int
	Execute     ExecuteFunc
	// OnRefresh is called on RequestRefresh.
	OnRefresh func()
	Logger    log.Logger
}

func (c *PoolConfig) defaults() error {
	if c.Execute == nil {
		return fmt.Errorf("execute func is required")
	}
	if c.Concurrency <= 0 {
		c.Concurrency = 2
	}
	if c.OnRefresh == nil {
		c.OnRefresh = func() {}
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "worker.Pool"})
	return nil
}

// Pool is an in-memory Queue. Idle workers only pull after a capacity
// request or a resume; a worker that just finished pulls the next operation
// right away.
type Pool struct {
	cfg PoolConfig

	mu      sync.Mutex
	cond    *sync.Cond
	pending []*model.Operation
	paused  bool
	demand  bool
	stopped bool
	running int
	workers []*workerState
}

var _ Queue = (*Pool)(nil)

// NewPool returns a Pool. Nothing runs until Run.
func NewPool(cfg PoolConfig) (*Pool, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	p := &Pool{cfg: cfg}
	p.cond = sync.NewCond(&p.mu)
	for i := 0; i < cfg.Concurrency; i++ {
		p.workers = append(p.workers, &workerState{id: fmt.Sprintf("worker%d", i+1)})
	}
	return p, nil
}

// Enqueue appends op. It does not wake idle workers.
func (p *Pool) Enqueue(op *model.Operation) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stopped {
		go op.Finish(ErrShutdown)
		return
	}
	p.pending = append(p.pending, op)
}

// Pause stops workers from pulling new operations. Running ones finish.
func (p *Pool) Pause() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.paused = true
	p.cfg.Logger.Infof("paused")
}

// Resume lets workers pull again.
func (p *Pool) Resume() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.paused = false
	p.demand = true
	p.cfg.Logger.Infof("resumed")
	p.cond.Broadcast()
}

// IsPaused reports whether the pool is paused.
func (p *Pool) IsPaused() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.paused
}

// RequestMoreCapacity wakes idle workers.
func (p *Pool) RequestMoreCapacity() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.demand = true
	p.cond.Broadcast()
}

// RequestRefresh asks observers to re-read the pool state.
func (p *Pool) RequestRefresh() {
	p.cfg.OnRefresh()
}

// Pending returns the number of queued operations.
func (p *Pool) Pending() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.pending)
}

// Run starts the workers and blocks until ctx is done and every running
// operation returned. Operations still queued then fail with ErrShutdown.
func (p *Pool) Run(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() {
		p.mu.Lock()
		p.stopped = true
		p.cond.Broadcast()
		p.mu.Unlock()
	})
	defer stop()

	var wg sync.WaitGroup
	for _, w := range p.workers {
		wg.Add(1)
		go func(w *workerState) {
			defer wg.Done()
			p.loop(ctx, w)
		}(w)
	}
	wg.Wait()

	p.mu.Lock()
	left := p.pending
	p.pending = nil
	p.mu.Unlock()
	for _, op := range left {
		op.Finish(ErrShutdown)
	}
	if len(left) > 0 {
		p.cfg.Logger.Warningf("%d queued operations dropped on shutdown", len(left))
	}
	return nil
}

// WaitIdle blocks until nothing is queued or running, or ctx is done.
func (p *Pool) WaitIdle(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() {
		p.mu.Lock()
		p.cond.Broadcast()
		p.mu.Unlock()
	})
	defer stop()

	p.mu.Lock()
	defer p.mu.Unlock()
	for len(p.pending) > 0 || p.running > 0 {
		if err := ctx.Err(); err != nil {
			return err
		}
		p.cond.Wait()
	}
	return nil
}

func (p *Pool) loop(ctx context.Context, w *workerState) {
	continuing := false
	for {
		op := p.next(continuing)
		if op == nil {
			return
		}
		p.run(ctx, w, op)
		continuing = true
	}
}

// next returns the next operation, or nil once the pool stopped. A worker
// coming back from an idle wait needs outstanding demand to pull.
func (p *Pool) next(continuing bool) *model.Operation {
	p.mu.Lock()
	defer p.mu.Unlock()
	for {
		if p.stopped {
			return nil
		}
		if !p.paused && len(p.pending) > 0 && (continuing || p.demand) {
			op := p.pending[0]
			p.pending = p.pending[1:]
			if len(p.pending) == 0 {
				p.demand = false
			}
			p.running++
			return op
		}
		continuing = false
		p.cond.Wait()
	}
}

func (p *Pool) run(ctx context.Context, w *workerState, op *model.Operation) {
	w.start(op)
	op.Begin()
	err := p.cfg.Execute(ctx, op)
	if err != nil {
		p.cfg.Logger.Warningf("operation %s failed: %v", op.ID, err)
	} else {
		p.cfg.Logger.Debugf("operation %s done", op.ID)
	}
	op.Finish(err)
	w.finish(err)

	p.mu.Lock()
	p.running--
	p.cond.Broadcast()
	p.mu.Unlock()
}
