package profile

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/msageha/dropzone/internal/events"
	"github.com/msageha/dropzone/internal/model"
	"github.com/msageha/dropzone/internal/processor"
)

// NormalizeItems pushes the accepted items into acc. Directories the
// processor wants expanded are replaced by their accepted children, level
// by level: every result of one depth precedes the next depth.
//
// Accepted items of a level reach acc only once the whole level was
// decided. An expand decider failure empties acc and aborts the whole pass.
// A directory that cannot be listed contributes nothing, and an item whose
// accept predicate fails is dropped on its own.
func (p *Profile) NormalizeItems(ctx context.Context, items []model.Item, acc *Accumulator, opts model.Options, meta processor.Meta) error {
	var expand, accepted []model.Item
	for _, it := range items {
		if it.Kind == model.KindDirectory && p.proc.Accept.WantsFiles() {
			yes, err := p.proc.ExpandDirectory.Decide(processor.ExpandInput{Item: it, Options: opts, Meta: meta})
			if err != nil {
				acc.Reset()
				return p.abortDrop(HookExpand, err, p.reportActions())
			}
			if yes {
				expand = append(expand, it)
				continue
			}
		}
		ok, err := p.proc.Accept.Check(it)
		if err != nil {
			p.skipRejected(it, err)
			continue
		}
		if ok {
			accepted = append(accepted, it)
		}
	}
	acc.Push(accepted...)
	if len(expand) == 0 {
		return nil
	}

	listings := make([][]model.Item, len(expand))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.Timing.ListConcurrency)
	for i, dir := range expand {
		g.Go(func() error {
			children, err := p.cfg.Lister.ReadDir(gctx, dir.Path)
			if err != nil {
				if ctxErr := ctx.Err(); ctxErr != nil {
					return ctxErr
				}
				p.skipDirectory(dir, err)
				return nil
			}
			listings[i] = children
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("list directories: %w", err)
	}

	var children []model.Item
	for _, l := range listings {
		children = append(children, l...)
	}
	if len(children) == 0 {
		return nil
	}
	return p.NormalizeItems(ctx, children, acc, opts, meta)
}

func (p *Profile) skipDirectory(dir model.Item, err error) {
	p.logger.Warningf("skipping %s: %v", dir.Path, err)
	p.cfg.Notifier.Publish(events.Event{
		Type:    events.EventItemSkipped,
		Variant: events.VariantWarning,
		Title:   fmt.Sprintf("%s: folder skipped", p.cfg.Title),
		Message: fmt.Sprintf("Could not read %s.", dir.Path),
		Details: err.Error(),
		Data:    map[string]any{"profile": p.cfg.ID, "path": dir.Path},
	})
}

func (p *Profile) skipRejected(it model.Item, err error) {
	p.logger.Errorf("dropping %s: %v", it, err)
	p.cfg.Notifier.Publish(events.Event{
		Type:    events.EventItemSkipped,
		Variant: events.VariantDanger,
		Title:   fmt.Sprintf("%s: item dropped", p.cfg.Title),
		Message: fmt.Sprintf("The %s of %s failed on %s.", HookAccept, p.proc.ID, it),
		Details: err.Error(),
		Actions: p.reportActions(),
		Data:    map[string]any{"profile": p.cfg.ID, "processor": p.proc.ID, "hook": HookAccept},
	})
}
