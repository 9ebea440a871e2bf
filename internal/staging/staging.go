package staging

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/msageha/dropzone/internal/events"
)

// ErrorDisplay controls how the log view reacts to errors.
type ErrorDisplay string

const (
	ErrorDisplayExpand   ErrorDisplay = "expand"
	ErrorDisplayCollapse ErrorDisplay = "collapse"
)

// Progress is a completed/total counter for the current stage.
type Progress struct {
	Completed int
	Total     int
}

// Snapshot is an immutable copy of a staging state.
type Snapshot struct {
	ID          string
	Stack       []Descriptor
	StageName   string
	Progress    *Progress
	Log         []string
	Errors      []string
	LogExpanded bool
	Done        bool
	Created     time.Time
	Ended       time.Time
}

// frame is one entry of the descriptor stack. Frames are compared by identity
// so a substage removes exactly the entry it pushed.
type frame struct {
	desc Descriptor
}

// Staging is one tracked background process. All methods are safe for
// concurrent use; every mutator fails with ErrStale once Done was called.
type Staging struct {
	id           string
	errorDisplay ErrorDisplay

	mu          sync.Mutex
	stack       []*frame
	stageName   string
	progress    *Progress
	logLines    []string
	errorLines  []string
	logExpanded bool
	actions     []events.Action
	done        bool
	created     time.Time
	ended       time.Time

	subMu       sync.Mutex
	subscribers []*subscriber
	watchers    []*watcher
}

type subscriber struct {
	fn func(*Staging)
}

type watcher struct {
	fn func(Snapshot)
}

// New creates a standalone staging. Most callers should go through
// Controller.Start so the single-active-staging guarantee holds.
func New(desc Descriptor) *Staging {
	return newStaging(desc, ErrorDisplayCollapse)
}

func newStaging(desc Descriptor, display ErrorDisplay) *Staging {
	return &Staging{
		id:           uuid.NewString(),
		errorDisplay: display,
		stack:        []*frame{{desc: desc}},
		created:      time.Now(),
	}
}

// ID returns the staging id.
func (s *Staging) ID() string { return s.id }

// Descriptor returns the root descriptor.
func (s *Staging) Descriptor() Descriptor {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stack[0].desc
}

// Stack returns the descriptor stack, root first.
func (s *Staging) Stack() []Descriptor {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.descriptors()
}

// IsDone reports whether Done was called.
func (s *Staging) IsDone() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.done
}

// Errors returns the recorded error lines.
func (s *Staging) Errors() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.errorLines...)
}

// LogLines returns the recorded log lines.
func (s *Staging) LogLines() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.logLines...)
}

// Snapshot returns a copy of the full state.
func (s *Staging) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshot()
}

// Actions returns the post-completion actions attached so far.
func (s *Staging) Actions() []events.Action {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]events.Action(nil), s.actions...)
}

// AddAction attaches an action offered with the completion summary.
func (s *Staging) AddAction(a events.Action) error {
	return s.mutate(func() {
		s.actions = append(s.actions, a)
	})
}

// Log stringifies values, joins them with spaces and appends the result split
// on newlines.
func (s *Staging) Log(values ...any) error {
	parts := make([]string, 0, len(values))
	for _, v := range values {
		parts = append(parts, stringify(v))
	}
	lines := strings.Split(strings.Join(parts, " "), "\n")
	return s.mutate(func() {
		s.logLines = append(s.logLines, lines...)
	})
}

// Error records value as one error line and mirrors it into the log.
func (s *Staging) Error(value any) error {
	line := stringify(value)
	return s.mutate(func() {
		s.errorLines = append(s.errorLines, line)
		for _, l := range strings.Split(line, "\n") {
			s.logLines = append(s.logLines, "error: "+l)
		}
		if s.errorDisplay == ErrorDisplayExpand {
			s.logExpanded = true
		}
	})
}

// Stage sets the current phase label. An empty name clears it.
func (s *Staging) Stage(name string) error {
	return s.mutate(func() {
		s.stageName = name
		if name != "" {
			s.logLines = append(s.logLines, fmt.Sprintf("---- %s ----", name))
		}
	})
}

// SetProgress updates the current stage progress.
func (s *Staging) SetProgress(completed, total int) error {
	return s.mutate(func() {
		s.progress = &Progress{Completed: completed, Total: total}
	})
}

// ClearProgress removes the current stage progress.
func (s *Staging) ClearProgress() error {
	return s.mutate(func() {
		s.progress = nil
	})
}

// BeginSubstage pushes desc and returns the child scope. The caller must call
// Done on the returned handle; prefer Substage, which enforces it.
func (s *Staging) BeginSubstage(desc Descriptor) (*Substage, error) {
	return s.beginSubstage(desc, s)
}

// Substage runs fn inside a child scope for desc. When fn returns without
// finishing the child, the child is force-finished and the staging records a
// non-termination error. Reports whether the child saw no errors.
func (s *Staging) Substage(desc Descriptor, fn func(sub *Substage)) bool {
	sub, err := s.BeginSubstage(desc)
	if err != nil {
		return false
	}
	return runSubstage(s, sub, fn)
}

// Subscribe registers fn for the Done notification. If the staging is already
// done fn is called immediately. Returns an unsubscribe function.
func (s *Staging) Subscribe(fn func(*Staging)) func() {
	s.mu.Lock()
	done := s.done
	s.mu.Unlock()
	if done {
		fn(s)
		return func() {}
	}

	sub := &subscriber{fn: fn}
	s.subMu.Lock()
	s.subscribers = append(s.subscribers, sub)
	s.subMu.Unlock()
	return func() {
		s.subMu.Lock()
		defer s.subMu.Unlock()
		for i, x := range s.subscribers {
			if x == sub {
				s.subscribers = append(s.subscribers[:i:i], s.subscribers[i+1:]...)
				return
			}
		}
	}
}

// Watch registers fn to receive a snapshot after every mutation.
func (s *Staging) Watch(fn func(Snapshot)) func() {
	w := &watcher{fn: fn}
	s.subMu.Lock()
	s.watchers = append(s.watchers, w)
	s.subMu.Unlock()
	return func() {
		s.subMu.Lock()
		defer s.subMu.Unlock()
		for i, x := range s.watchers {
			if x == w {
				s.watchers = append(s.watchers[:i:i], s.watchers[i+1:]...)
				return
			}
		}
	}
}

// Done finishes the staging and synchronously notifies subscribers in
// registration order.
func (s *Staging) Done() error {
	s.mu.Lock()
	if s.done {
		s.mu.Unlock()
		return ErrStale
	}
	s.done = true
	s.ended = time.Now()
	snap := s.snapshot()
	s.mu.Unlock()

	s.subMu.Lock()
	subs := append([]*subscriber(nil), s.subscribers...)
	s.subscribers = nil
	s.subMu.Unlock()

	s.notifyWatchers(snap)
	for _, sub := range subs {
		sub.fn(s)
	}
	return nil
}

func (s *Staging) beginSubstage(desc Descriptor, parent errorSink) (*Substage, error) {
	f := &frame{desc: desc}
	err := s.mutate(func() {
		s.stack = append(s.stack, f)
		s.stageName = ""
		s.progress = nil
		s.logLines = append(s.logLines, fmt.Sprintf("==== substage: %s ====", desc.Title))
	})
	if err != nil {
		return nil, err
	}
	return &Substage{root: s, parent: parent, frame: f}, nil
}

// endSubstage removes f from the stack and clears the stage state.
func (s *Staging) endSubstage(f *frame) error {
	return s.mutate(func() {
		for i := len(s.stack) - 1; i > 0; i-- {
			if s.stack[i] == f {
				s.stack = append(s.stack[:i:i], s.stack[i+1:]...)
				break
			}
		}
		s.stageName = ""
		s.progress = nil
	})
}

// mutate applies fn under the lock unless the staging is done, then notifies
// watchers. The snapshot is only taken when someone watches.
func (s *Staging) mutate(fn func()) error {
	s.mu.Lock()
	if s.done {
		s.mu.Unlock()
		return ErrStale
	}
	fn()
	ws := s.currentWatchers()
	if len(ws) == 0 {
		s.mu.Unlock()
		return nil
	}
	snap := s.snapshot()
	s.mu.Unlock()
	for _, w := range ws {
		w.fn(snap)
	}
	return nil
}

func (s *Staging) currentWatchers() []*watcher {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	return append([]*watcher(nil), s.watchers...)
}

func (s *Staging) notifyWatchers(snap Snapshot) {
	for _, w := range s.currentWatchers() {
		w.fn(snap)
	}
}

func (s *Staging) descriptors() []Descriptor {
	out := make([]Descriptor, 0, len(s.stack))
	for _, f := range s.stack {
		out = append(out, f.desc)
	}
	return out
}

func (s *Staging) snapshot() Snapshot {
	snap := Snapshot{
		ID:          s.id,
		Stack:       s.descriptors(),
		StageName:   s.stageName,
		Log:         append([]string(nil), s.logLines...),
		Errors:      append([]string(nil), s.errorLines...),
		LogExpanded: s.logExpanded,
		Done:        s.done,
		Created:     s.created,
		Ended:       s.ended,
	}
	if s.progress != nil {
		p := *s.progress
		snap.Progress = &p
	}
	return snap
}

func stringify(v any) string {
	switch x := v.(type) {
	case nil:
		return "<nil>"
	case string:
		return x
	case []byte:
		return string(x)
	case error:
		return x.Error()
	case fmt.Stringer:
		return x.String()
	case bool, int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64:
		return fmt.Sprint(x)
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Sprintf("%+v", v)
	}
	return string(data)
}
