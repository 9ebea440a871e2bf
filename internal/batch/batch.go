// Package batch tracks the outcome of a growing and shrinking sequence of
// results so aggregate progress can be rendered cheaply.
package batch

import (
	"errors"
	"fmt"
	"sync"
)

// Outcome is the state of a single batch slot.
type Outcome int

const (
	Pending Outcome = iota
	Completed
	Error
)

func (o Outcome) String() string {
	switch o {
	case Pending:
		return "pending"
	case Completed:
		return "completed"
	case Error:
		return "error"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// ErrOverflow is returned by Insert when every slot already holds an outcome.
// It signals a bookkeeping bug in the caller.
var ErrOverflow = errors.New("batch overflow")

// Snapshot is an immutable copy of a batch state.
type Snapshot struct {
	Items     []Outcome
	Index     int
	Completed int
	Errors    int
}

// Progress returns Index/len(Items), or false when the batch is empty.
func (s Snapshot) Progress() (float64, bool) {
	if len(s.Items) == 0 {
		return 0, false
	}
	return float64(s.Index) / float64(len(s.Items)), true
}

// Pending returns the number of slots still waiting for an outcome.
func (s Snapshot) Pending() int {
	return len(s.Items) - s.Index
}

// Batch is safe for concurrent use. Slots [0, index) hold terminal outcomes,
// slots [index, len) are pending.
type Batch struct {
	mu        sync.Mutex
	items     []Outcome
	index     int
	completed int
	errors    int

	subMu  sync.Mutex
	nextID int
	subs   map[int]func(Snapshot)
}

// New returns an empty batch.
func New() *Batch {
	return &Batch{subs: make(map[int]func(Snapshot))}
}

// Reset clears every slot and counter.
func (b *Batch) Reset() {
	b.mu.Lock()
	b.reset()
	snap := b.snapshot()
	b.mu.Unlock()
	b.notify(snap)
}

func (b *Batch) reset() {
	b.items = nil
	b.index = 0
	b.completed = 0
	b.errors = 0
}

// Increment appends n pending slots. A batch whose slots are all terminal is
// reset first so a new burst starts from zero progress.
func (b *Batch) Increment(n int) {
	if n <= 0 {
		return
	}
	b.mu.Lock()
	if len(b.items) > 0 && len(b.items) <= b.index {
		b.reset()
	}
	for i := 0; i < n; i++ {
		b.items = append(b.items, Pending)
	}
	snap := b.snapshot()
	b.mu.Unlock()
	b.notify(snap)
}

// Decrement removes up to n slots from the tail.
func (b *Batch) Decrement(n int) {
	if n <= 0 {
		return
	}
	b.mu.Lock()
	newLen := len(b.items) - n
	if newLen < 0 {
		newLen = 0
	}
	b.items = b.items[:newLen]
	if b.index > newLen {
		b.index = newLen
		b.recount()
	}
	snap := b.snapshot()
	b.mu.Unlock()
	b.notify(snap)
}

// Insert records outcome at the cursor and advances it.
func (b *Batch) Insert(outcome Outcome) error {
	if outcome != Completed && outcome != Error {
		return fmt.Errorf("insert %s: outcome must be terminal", outcome)
	}
	b.mu.Lock()
	if b.index >= len(b.items) {
		n, idx := len(b.items), b.index
		b.mu.Unlock()
		return fmt.Errorf("insert at %d with %d slots: %w", idx, n, ErrOverflow)
	}
	b.items[b.index] = outcome
	b.index++
	if outcome == Completed {
		b.completed++
	} else {
		b.errors++
	}
	snap := b.snapshot()
	b.mu.Unlock()
	b.notify(snap)
	return nil
}

// TrimDone drops every terminal slot from the head.
func (b *Batch) TrimDone() {
	b.mu.Lock()
	b.items = append([]Outcome(nil), b.items[b.index:]...)
	b.index = 0
	b.completed = 0
	b.errors = 0
	snap := b.snapshot()
	b.mu.Unlock()
	b.notify(snap)
}

// TrimPending drops pending slots beyond the first keep.
func (b *Batch) TrimPending(keep int) {
	if keep < 0 {
		keep = 0
	}
	b.mu.Lock()
	if limit := b.index + keep; limit < len(b.items) {
		b.items = b.items[:limit]
	}
	snap := b.snapshot()
	b.mu.Unlock()
	b.notify(snap)
}

// Progress returns the fraction of terminal slots, or false when empty.
func (b *Batch) Progress() (float64, bool) {
	return b.Snapshot().Progress()
}

// Snapshot returns a copy of the current state.
func (b *Batch) Snapshot() Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.snapshot()
}

// Subscribe registers fn to receive a snapshot after every mutation.
// Returns an unsubscribe function.
func (b *Batch) Subscribe(fn func(Snapshot)) func() {
	b.subMu.Lock()
	defer b.subMu.Unlock()
	if b.subs == nil {
		b.subs = make(map[int]func(Snapshot))
	}
	id := b.nextID
	b.nextID++
	b.subs[id] = fn
	return func() {
		b.subMu.Lock()
		defer b.subMu.Unlock()
		delete(b.subs, id)
	}
}

func (b *Batch) snapshot() Snapshot {
	return Snapshot{
		Items:     append([]Outcome(nil), b.items...),
		Index:     b.index,
		Completed: b.completed,
		Errors:    b.errors,
	}
}

// recount rebuilds the counters from [0, index) after a clamp.
func (b *Batch) recount() {
	b.completed, b.errors = 0, 0
	for _, o := range b.items[:b.index] {
		switch o {
		case Completed:
			b.completed++
		case Error:
			b.errors++
		}
	}
}

func (b *Batch) notify(snap Snapshot) {
	b.subMu.Lock()
	fns := make([]func(Snapshot), 0, len(b.subs))
	for id := 0; id < b.nextID; id++ {
		if fn, ok := b.subs[id]; ok {
			fns = append(fns, fn)
		}
	}
	b.subMu.Unlock()
	for _, fn := range fns {
		fn(snap)
	}
}
