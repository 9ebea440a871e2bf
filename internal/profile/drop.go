package profile

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/msageha/dropzone/internal/dialog"
	"github.com/msageha/dropzone/internal/events"
	"github.com/msageha/dropzone/internal/log"
	"github.com/msageha/dropzone/internal/model"
	"github.com/msageha/dropzone/internal/processor"
)

// DropItems turns raw dropped items into operations. It returns once every
// accepted item was handed to the preparation drain and that drain
// finished. A canceled options dialog is not an error.
func (p *Profile) DropItems(ctx context.Context, raw []model.Item, meta processor.Meta) error {
	if id, err := model.GenerateID(model.IDTypeDrop); err == nil {
		ctx = p.logger.SetValuesOnCtx(ctx, log.Kv{"drop": id})
	}
	logger := p.logger.WithCtxValues(ctx)

	opts := p.Options()
	if meta.Modifiers != "" && meta.Modifiers == p.cfg.TweakModifiers {
		res, err := p.cfg.Dialogs.EditOptions(ctx, dialog.EditRequest{
			ProfileID: p.cfg.ID,
			Title:     p.cfg.Title,
			Options:   opts,
			Modifiers: meta.Modifiers,
		})
		if err != nil {
			return fmt.Errorf("edit options: %w", err)
		}
		if res.Canceled {
			logger.Infof("drop canceled in options dialog")
			return nil
		}
		opts = res.Options.Clone()
		meta.Modifiers = res.Modifiers
	}

	items, err := p.proc.FilterDrop(ctx, raw, opts)
	if err != nil {
		return p.abortDrop(HookDropFilter, err, nil)
	}

	bulk, err := p.proc.Bulk.Decide(processor.BulkInput{Items: items, Options: opts, Meta: meta})
	if err != nil {
		return p.abortDrop(HookBulk, err, p.reportActions())
	}

	p.beginAdding()
	f := &flusher{p: p, ctx: ctx, opts: opts, meta: meta, bulk: bulk}
	defer func() { p.endAdding(f.added) }()

	if !bulk {
		f.startTimer(p.cfg.Timing.FlushFirst, p.cfg.Timing.FlushEvery)
	}
	normErr := p.NormalizeItems(ctx, items, &f.acc, opts, meta)
	f.stopTimer()
	f.flush()

	if err := f.wait(ctx); err != nil {
		return err
	}
	logger.Debugf("drop of %d items added %d (bulk=%t)", len(raw), f.added, bulk)
	return normErr
}

func (p *Profile) abortDrop(hook string, err error, actions []events.Action) error {
	cerr := &ConfigurationError{Hook: hook, Processor: p.proc.ID, Err: err}
	p.logger.Errorf("drop aborted: %v", cerr)
	p.cfg.Notifier.Publish(events.Event{
		Type:    events.EventDropAborted,
		Variant: events.VariantDanger,
		Title:   fmt.Sprintf("%s: drop aborted", p.cfg.Title),
		Message: fmt.Sprintf("The %s of %s failed.", hook, p.proc.ID),
		Details: err.Error(),
		Actions: actions,
		Data:    map[string]any{"profile": p.cfg.ID, "processor": p.proc.ID, "hook": hook},
	})
	return cerr
}

// flusher moves accumulated items into CreateOperations, either on a timer
// while normalization runs or once at the end.
type flusher struct {
	p    *Profile
	ctx  context.Context
	opts model.Options
	meta processor.Meta
	bulk bool
	acc  Accumulator

	mu      sync.Mutex
	added   int
	futures []<-chan struct{}

	stop chan struct{}
	wg   sync.WaitGroup
}

func (f *flusher) startTimer(first, every time.Duration) {
	f.stop = make(chan struct{})
	f.wg.Add(1)
	go func() {
		defer f.wg.Done()
		t := time.NewTimer(first)
		defer t.Stop()
		for {
			select {
			case <-f.stop:
				return
			case <-t.C:
				f.flush()
				t.Reset(every)
			}
		}
	}()
}

func (f *flusher) stopTimer() {
	if f.stop == nil {
		return
	}
	close(f.stop)
	f.wg.Wait()
}

func (f *flusher) flush() {
	f.mu.Lock()
	defer f.mu.Unlock()

	items := f.acc.Take()
	if len(items) == 0 {
		return
	}
	var payloads []model.Payload
	if f.bulk {
		payloads = []model.Payload{{Inputs: items, Options: f.opts.Clone()}}
	} else {
		payloads = make([]model.Payload, 0, len(items))
		for _, it := range items {
			payloads = append(payloads, model.Payload{Inputs: []model.Item{it}, Options: f.opts.Clone()})
		}
	}
	f.added += len(items)
	f.futures = append(f.futures, f.p.CreateOperations(f.ctx, payloads, f.meta))
}

func (f *flusher) wait(ctx context.Context) error {
	f.mu.Lock()
	futures := f.futures
	f.mu.Unlock()
	for _, done := range futures {
		select {
		case <-done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}
