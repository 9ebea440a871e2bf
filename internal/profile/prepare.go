package profile

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/msageha/dropzone/internal/dialog"
	"github.com/msageha/dropzone/internal/events"
	"github.com/msageha/dropzone/internal/model"
	"github.com/msageha/dropzone/internal/processor"
)

// PrepareOperation runs the preparator on op and stores the returned
// payload. It returns false when the operation must not be queued: the
// preparator failed or returned no payload.
func (p *Profile) PrepareOperation(ctx context.Context, op *model.Operation, meta processor.Meta) bool {
	resolved := map[string]string{}
	if len(p.proc.Dependencies) > 0 {
		var err error
		resolved, err = p.cfg.Resolver.ResolveAll(ctx, p.proc.Dependencies)
		if err != nil {
			p.dropOperation(op, HookDependencies, err)
			return false
		}
	}

	pc := processor.PrepareContext{
		SetTitle:     op.SetTitle,
		Dependencies: resolved,
		Settings:     model.Options(p.cfg.Settings).Clone(),
		Paths:        p.cfg.Paths,
		Dialogs:      p.cfg.Dialogs,
	}
	payload, err := p.proc.Prepare(ctx, pc, op.Payload())
	if err != nil {
		p.dropOperation(op, HookPreparator, err)
		return false
	}
	if payload == nil {
		p.logger.Debugf("operation %s dropped by preparator (action=%s)", op.ID, meta.Action)
		return false
	}
	op.SetPayload(*payload)
	return true
}

func (p *Profile) dropOperation(op *model.Operation, hook string, err error) {
	cerr := &ConfigurationError{Hook: hook, Processor: p.proc.ID, Err: err}
	p.logger.Errorf("operation %s dropped: %v", op.ID, cerr)

	inputs := op.Payload().Inputs
	lines := make([]string, 0, len(inputs))
	for _, in := range inputs {
		lines = append(lines, in.String())
	}
	p.cfg.Notifier.Publish(events.Event{
		Type:    events.EventOperationDropped,
		Variant: events.VariantDanger,
		Title:   fmt.Sprintf("%s: operation dropped", p.cfg.Title),
		Message: cerr.Error(),
		Details: strings.Join(lines, "\n"),
		Actions: p.reportActions(),
		Data:    map[string]any{"profile": p.cfg.ID, "operation": op.ID, "hook": hook},
	})
}

func dialogSlowPreparation(title string, perItem, total time.Duration, remaining int) dialog.ConfirmRequest {
	return dialog.ConfirmRequest{
		Title: fmt.Sprintf("%s: preparation is slow", title),
		Message: fmt.Sprintf("Preparing one item took %s. The remaining %d items will take about %s.",
			perItem.Round(time.Millisecond), remaining, total.Round(time.Second)),
		ConfirmLabel: "Proceed",
		CancelLabel:  "Cancel",
	}
}
