package staging

import (
	"fmt"
	"sync"
)

type errorSink interface {
	Error(value any) error
}

// Substage is a child scope of a Staging. It writes into the root staging
// log and stage state; its errors are counted locally and forwarded to the
// parent scope.
type Substage struct {
	root   *Staging
	parent errorSink
	frame  *frame

	mu     sync.Mutex
	errors int
	done   bool
}

// Descriptor returns the descriptor this substage pushed.
func (c *Substage) Descriptor() Descriptor {
	return c.frame.desc
}

// Errors returns how many errors were raised on this substage.
func (c *Substage) Errors() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.errors
}

// IsDone reports whether Done was called.
func (c *Substage) IsDone() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.done
}

// Log appends to the root staging log.
func (c *Substage) Log(values ...any) error {
	if c.IsDone() {
		return ErrStale
	}
	return c.root.Log(values...)
}

// Error counts the error locally and forwards it to the parent scope.
func (c *Substage) Error(value any) error {
	c.mu.Lock()
	if c.done {
		c.mu.Unlock()
		return ErrStale
	}
	c.errors++
	c.mu.Unlock()
	return c.parent.Error(value)
}

// Stage sets the root staging phase label.
func (c *Substage) Stage(name string) error {
	if c.IsDone() {
		return ErrStale
	}
	return c.root.Stage(name)
}

// SetProgress updates the root staging progress.
func (c *Substage) SetProgress(completed, total int) error {
	if c.IsDone() {
		return ErrStale
	}
	return c.root.SetProgress(completed, total)
}

// BeginSubstage opens a nested child scope whose errors propagate through c.
func (c *Substage) BeginSubstage(desc Descriptor) (*Substage, error) {
	if c.IsDone() {
		return nil, ErrStale
	}
	return c.root.beginSubstage(desc, c)
}

// Substage runs fn in a nested child scope, see Staging.Substage.
func (c *Substage) Substage(desc Descriptor, fn func(sub *Substage)) bool {
	sub, err := c.BeginSubstage(desc)
	if err != nil {
		return false
	}
	return runSubstage(c, sub, fn)
}

// Done pops the substage descriptor and clears the stage state.
func (c *Substage) Done() error {
	c.mu.Lock()
	if c.done {
		c.mu.Unlock()
		return ErrStale
	}
	c.done = true
	c.mu.Unlock()
	return c.root.endSubstage(c.frame)
}

func runSubstage(parent errorSink, sub *Substage, fn func(sub *Substage)) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("substage %q panicked: %v", sub.frame.desc.Title, r)
			if sub.IsDone() {
				_ = parent.Error(err)
			} else {
				_ = sub.Error(err)
			}
		}
		if !sub.IsDone() {
			_ = sub.Done()
			_ = parent.Error(fmt.Sprintf("Substage '%s' didn't terminate", sub.frame.desc.Title))
		}
		ok = sub.Errors() == 0
	}()
	fn(sub)
	return
}
