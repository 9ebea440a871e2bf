package model

import (
	"fmt"
	"sync"
	"time"
)

// Payload is what a processor receives for one operation.
type Payload struct {
	Inputs  []Item  `yaml:"inputs" json:"inputs"`
	Options Options `yaml:"options" json:"options"`
}

// OperationState is the lifecycle state of an operation.
type OperationState string

const (
	OperationQueued  OperationState = "queued"
	OperationRunning OperationState = "running"
	OperationDone    OperationState = "done"
	OperationFailed  OperationState = "failed"
)

// Operation is one unit of work handed to the worker.
type Operation struct {
	ID        string
	ProfileID string
	Created   time.Time

	mu       sync.Mutex
	title    string
	payload  Payload
	state    OperationState
	err      error
	result   string
	started  time.Time
	finished time.Time
	onFinish []func(*Operation)
}

// NewOperation returns a queued operation for payload.
func NewOperation(profileID string, payload Payload) (*Operation, error) {
	id, err := GenerateID(IDTypeOperation)
	if err != nil {
		return nil, fmt.Errorf("operation id: %w", err)
	}
	return &Operation{
		ID:        id,
		ProfileID: profileID,
		Created:   time.Now(),
		payload:   payload,
		state:     OperationQueued,
	}, nil
}

// Title returns the display title.
func (o *Operation) Title() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.title
}

// SetTitle sets the display title.
func (o *Operation) SetTitle(title string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.title = title
}

// Payload returns the current payload.
func (o *Operation) Payload() Payload {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.payload
}

// SetPayload replaces the payload.
func (o *Operation) SetPayload(p Payload) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.payload = p
}

// State returns the lifecycle state and the failure, if any.
func (o *Operation) State() (OperationState, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state, o.err
}

// Result returns the short summary recorded by the runner.
func (o *Operation) Result() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.result
}

// SetResult records a short summary of what the runner produced.
func (o *Operation) SetResult(result string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.result = result
}

// OnFinish registers fn to run once the operation finished.
func (o *Operation) OnFinish(fn func(*Operation)) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.onFinish = append(o.onFinish, fn)
}

// Begin marks the operation running.
func (o *Operation) Begin() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.state = OperationRunning
	o.started = time.Now()
}

// Finish marks the operation done (err == nil) or failed and runs the finish
// callbacks. Finishing twice is a no-op.
func (o *Operation) Finish(err error) {
	o.mu.Lock()
	if o.state == OperationDone || o.state == OperationFailed {
		o.mu.Unlock()
		return
	}
	o.state = OperationDone
	if err != nil {
		o.state = OperationFailed
		o.err = err
	}
	o.finished = time.Now()
	fns := o.onFinish
	o.onFinish = nil
	o.mu.Unlock()

	for _, fn := range fns {
		fn(o)
	}
}

// Duration returns how long the operation ran, zero when it has not finished.
func (o *Operation) Duration() time.Duration {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.finished.IsZero() || o.started.IsZero() {
		return 0
	}
	return o.finished.Sub(o.started)
}
