// Package processor describes what a profile does with dropped items: which
// items it accepts and the hooks run while turning a drop into operations.
package processor

import (
	"context"
	"errors"
	"fmt"

	"github.com/msageha/dropzone/internal/dialog"
	"github.com/msageha/dropzone/internal/model"
)

// Meta describes how a drop happened.
type Meta struct {
	// Modifiers is the keyboard modifier combination held during the drop,
	// e.g. "Alt" or "Ctrl+Shift".
	Modifiers string
	// Action names the drop source, e.g. "drop", "paste", "watch".
	Action string
}

// BulkInput is what the bulk decider sees.
type BulkInput struct {
	Items   []model.Item
	Options model.Options
	Meta    Meta
}

// ExpandInput is what the expand-directory decider sees.
type ExpandInput struct {
	Item    model.Item
	Options model.Options
	Meta    Meta
}

// Paths are the filesystem locations exposed to processor code.
type Paths struct {
	Data   string
	Temp   string
	Output string
}

// Dialogs is the subset of the dialog service processor code may use.
type Dialogs interface {
	Confirm(ctx context.Context, req dialog.ConfirmRequest) (bool, error)
	Alert(ctx context.Context, req dialog.AlertRequest) error
}

// PrepareContext is handed to a preparator.
type PrepareContext struct {
	// SetTitle changes the display title of the operation being prepared.
	SetTitle func(title string)
	// Dependencies maps each declared dependency to its resolved payload.
	Dependencies map[string]string
	// Settings is a snapshot of the user settings relevant to processors.
	Settings map[string]any
	Paths    Paths
	Dialogs  Dialogs
}

// DropFilter narrows or rewrites the raw items of a drop.
type DropFilter func(ctx context.Context, items []model.Item, opts model.Options) ([]model.Item, error)

// Preparator transforms one payload before it is queued. Returning a nil
// payload drops the operation.
type Preparator func(ctx context.Context, pc PrepareContext, payload model.Payload) (*model.Payload, error)

// Runner executes one operation on the worker.
type Runner func(ctx context.Context, op *model.Operation) error

// Processor is a processor definition.
type Processor struct {
	ID          string
	Name        string
	Description string
	IssueURL    string

	Accept          Accept
	DropFilter      DropFilter
	Bulk            Decider[BulkInput]
	ExpandDirectory Decider[ExpandInput]
	Preparator      Preparator
	Run             Runner

	// Dependencies are resolved before each preparation.
	Dependencies []string
	// Options are the default option values of new profiles.
	Options model.Options
}

// Validate checks the definition is usable.
func (p *Processor) Validate() error {
	if p.ID == "" {
		return errors.New("processor id is required")
	}
	if p.Run == nil {
		return fmt.Errorf("processor %s: runner is required", p.ID)
	}
	if len(p.Accept.Kinds()) == 0 {
		return fmt.Errorf("processor %s: accepts nothing", p.ID)
	}
	return nil
}

// HasPreparator reports whether operations need a preparation step.
func (p *Processor) HasPreparator() bool {
	return p.Preparator != nil
}

// FilterDrop runs the drop filter, or returns items unchanged when none is
// declared.
func (p *Processor) FilterDrop(ctx context.Context, items []model.Item, opts model.Options) (out []model.Item, err error) {
	if p.DropFilter == nil {
		return items, nil
	}
	defer recoverHook("drop filter", &err)
	return p.DropFilter(ctx, items, opts)
}

// Prepare runs the preparator.
func (p *Processor) Prepare(ctx context.Context, pc PrepareContext, payload model.Payload) (out *model.Payload, err error) {
	if p.Preparator == nil {
		return &payload, nil
	}
	defer recoverHook("preparator", &err)
	return p.Preparator(ctx, pc, payload)
}

// Execute runs the runner for op.
func (p *Processor) Execute(ctx context.Context, op *model.Operation) (err error) {
	defer recoverHook("runner", &err)
	return p.Run(ctx, op)
}

func recoverHook(hook string, err *error) {
	if r := recover(); r != nil {
		*err = fmt.Errorf("%s panicked: %v", hook, r)
	}
}
