package profile

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/msageha/dropzone/internal/batch"
	"github.com/msageha/dropzone/internal/events"
	"github.com/msageha/dropzone/internal/model"
	"github.com/msageha/dropzone/internal/processor"
)

// entry is one payload waiting in the preparation queue.
type entry struct {
	payload model.Payload
	meta    processor.Meta
}

// drain is the single preparation loop of a profile. done is closed once the
// loop released the queue.
type drain struct {
	done chan struct{}

	// watchdog state, owned by the drain goroutine
	asked    bool
	canceled bool
}

// CreateOperations appends payloads to the preparation queue and returns a
// channel closed when they were prepared and admitted. Calls made while a
// drain runs join it instead of starting another one.
func (p *Profile) CreateOperations(ctx context.Context, payloads []model.Payload, meta processor.Meta) <-chan struct{} {
	p.prepMu.Lock()
	for _, pl := range payloads {
		p.queue = append(p.queue, entry{payload: pl, meta: meta})
	}
	if d := p.drain; d != nil {
		p.prepMu.Unlock()
		return d.done
	}
	d := &drain{done: make(chan struct{})}
	p.drain = d
	p.prepMu.Unlock()

	p.logger.WithCtxValues(ctx).Debugf("drain started with %d entries", len(payloads))
	go p.runDrain(d)
	return d.done
}

func (p *Profile) runDrain(d *drain) {
	adm := newAdmitter(p)
	adm.start(p.cfg.Timing.AdmitFirst, p.cfg.Timing.AdmitEvery)

	for i := 0; ; i++ {
		p.prepMu.Lock()
		if i >= len(p.queue) || d.canceled || p.ctx.Err() != nil {
			p.finishDrain(d, adm, i)
			p.prepMu.Unlock()
			close(d.done)
			return
		}
		e := p.queue[i]
		remaining := len(p.queue) - i - 1
		p.prepMu.Unlock()

		op, err := model.NewOperation(p.cfg.ID, e.payload)
		if err != nil {
			p.logger.Errorf("create operation: %v", err)
			continue
		}
		op.SetTitle(defaultTitle(e.payload))

		if !p.proc.HasPreparator() {
			adm.add(op)
			continue
		}

		start := time.Now()
		ok := p.PrepareOperation(p.ctx, op, e.meta)
		elapsed := time.Since(start)
		if ok {
			adm.add(op)
		}
		p.watchdog(d, elapsed, remaining)
	}
}

// finishDrain runs with prepMu held so that nothing appended after the
// end-of-queue check is lost.
func (p *Profile) finishDrain(d *drain, adm *admitter, walked int) {
	adm.stop()
	if p.ctx.Err() != nil {
		adm.discard()
	} else {
		adm.flush()
	}
	if d.canceled {
		if left := len(p.queue) - walked; left > 0 {
			p.logger.Infof("discarding %d unprepared entries", left)
		}
	}
	p.queue = p.queue[:0]
	p.drain = nil
}

// watchdog asks once per drain whether to go on when preparation is slow
// enough that the rest of the queue would take longer than the budget.
func (p *Profile) watchdog(d *drain, elapsed time.Duration, remaining int) {
	t := p.cfg.Timing
	if d.asked || remaining <= 0 || elapsed <= t.WatchdogMinItem {
		return
	}
	total := elapsed * time.Duration(remaining)
	if total <= t.WatchdogBudget {
		return
	}
	d.asked = true

	proceed, err := p.cfg.Dialogs.Confirm(p.ctx, dialogSlowPreparation(p.cfg.Title, elapsed, total, remaining))
	if err != nil {
		p.logger.Warningf("watchdog dialog: %v", err)
		return
	}
	if !proceed {
		d.canceled = true
		p.logger.Infof("preparation canceled after %s per item, %d left", elapsed, remaining)
		p.cfg.Notifier.Publish(events.Event{
			Type:    events.EventDropAborted,
			Variant: events.VariantWarning,
			Title:   fmt.Sprintf("%s: preparation canceled", p.cfg.Title),
			Message: fmt.Sprintf("%d items were not added.", remaining),
			Data:    map[string]any{"profile": p.cfg.ID, "discarded": remaining},
		})
	}
}

func defaultTitle(pl model.Payload) string {
	switch len(pl.Inputs) {
	case 0:
		return "empty"
	case 1:
		it := pl.Inputs[0]
		if b := it.Basename(); b != "" {
			return b
		}
		return it.String()
	default:
		return fmt.Sprintf("%d items", len(pl.Inputs))
	}
}

// admitter buffers prepared operations and hands them to the batch and the
// worker on its own cadence.
type admitter struct {
	p *Profile

	mu  sync.Mutex
	buf []*model.Operation

	quit chan struct{}
	wg   sync.WaitGroup
}

func newAdmitter(p *Profile) *admitter {
	return &admitter{p: p, quit: make(chan struct{})}
}

func (a *admitter) start(first, every time.Duration) {
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		t := time.NewTimer(first)
		defer t.Stop()
		for {
			select {
			case <-a.quit:
				return
			case <-t.C:
				a.flush()
				t.Reset(every)
			}
		}
	}()
}

func (a *admitter) stop() {
	close(a.quit)
	a.wg.Wait()
}

func (a *admitter) add(op *model.Operation) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.buf = append(a.buf, op)
}

func (a *admitter) discard() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.buf = nil
}

func (a *admitter) flush() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.buf) == 0 {
		return
	}
	ops := a.buf
	a.buf = nil

	b := a.p.batch
	b.Increment(len(ops))
	for _, op := range ops {
		op.OnFinish(func(o *model.Operation) {
			outcome := batch.Completed
			if _, err := o.State(); err != nil {
				outcome = batch.Error
			}
			if err := b.Insert(outcome); err != nil {
				a.p.logger.Errorf("record outcome of %s: %v", o.ID, err)
			}
		})
		a.p.cfg.Worker.Enqueue(op)
	}
	a.p.cfg.Worker.RequestMoreCapacity()
	a.p.logger.Debugf("admitted %d operations", len(ops))
}
