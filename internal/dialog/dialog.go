// Package dialog is the modal-dialog contract used by the drop pipeline and
// by processor code, with terminal and scripted implementations.
package dialog

import (
	"context"
	"sync"

	"github.com/msageha/dropzone/internal/model"
)

// EditRequest asks the user to tweak options before a drop proceeds.
type EditRequest struct {
	ProfileID string
	Title     string
	Options   model.Options
	Modifiers string
}

// EditResult is the outcome of an options dialog. Modifiers are the ones
// held when the user confirmed.
type EditResult struct {
	Canceled  bool
	Options   model.Options
	Modifiers string
}

// ConfirmRequest is a blocking yes/no question.
type ConfirmRequest struct {
	Title        string
	Message      string
	Details      string
	ConfirmLabel string
	CancelLabel  string
}

// AlertRequest is a blocking message.
type AlertRequest struct {
	Title   string
	Message string
	Details string
}

// Service shows modal dialogs.
type Service interface {
	EditOptions(ctx context.Context, req EditRequest) (EditResult, error)
	Confirm(ctx context.Context, req ConfirmRequest) (bool, error)
	Alert(ctx context.Context, req AlertRequest) error
}

// Scripted answers dialogs without user interaction. The zero value confirms
// everything and returns options unchanged.
type Scripted struct {
	// Edit, when set, produces the options dialog result.
	Edit func(EditRequest) EditResult
	// Deny makes Confirm answer false.
	Deny bool

	mu       sync.Mutex
	confirms []ConfirmRequest
	alerts   []AlertRequest
	edits    []EditRequest
}

// EditOptions implements Service.
func (s *Scripted) EditOptions(_ context.Context, req EditRequest) (EditResult, error) {
	s.mu.Lock()
	s.edits = append(s.edits, req)
	s.mu.Unlock()
	if s.Edit != nil {
		return s.Edit(req), nil
	}
	return EditResult{Options: req.Options, Modifiers: req.Modifiers}, nil
}

// Confirm implements Service.
func (s *Scripted) Confirm(_ context.Context, req ConfirmRequest) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.confirms = append(s.confirms, req)
	return !s.Deny, nil
}

// Alert implements Service.
func (s *Scripted) Alert(_ context.Context, req AlertRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.alerts = append(s.alerts, req)
	return nil
}

// Confirms returns the confirmation requests seen so far.
func (s *Scripted) Confirms() []ConfirmRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]ConfirmRequest(nil), s.confirms...)
}

// Edits returns the options dialog requests seen so far.
func (s *Scripted) Edits() []EditRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]EditRequest(nil), s.edits...)
}

// Alerts returns the alerts seen so far.
func (s *Scripted) Alerts() []AlertRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]AlertRequest(nil), s.alerts...)
}
