package profile

import (
	"sync"

	"github.com/msageha/dropzone/internal/model"
)

// Accumulator collects accepted items while a drop is normalized. It is
// drained concurrently by the flush timer.
type Accumulator struct {
	mu    sync.Mutex
	items []model.Item
}

// Push appends items.
func (a *Accumulator) Push(items ...model.Item) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.items = append(a.items, items...)
}

// Take removes and returns everything accumulated so far.
func (a *Accumulator) Take() []model.Item {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := a.items
	a.items = nil
	return out
}

// Reset discards everything accumulated so far.
func (a *Accumulator) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.items = nil
}

// Len returns the number of accumulated items.
func (a *Accumulator) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.items)
}

// Items returns a copy of the accumulated items.
func (a *Accumulator) Items() []model.Item {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]model.Item(nil), a.items...)
}
