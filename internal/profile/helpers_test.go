package profile

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/msageha/dropzone/internal/dialog"
	"github.com/msageha/dropzone/internal/events"
	"github.com/msageha/dropzone/internal/model"
	"github.com/msageha/dropzone/internal/processor"
)

type fakeQueue struct {
	mu       sync.Mutex
	ops      []*model.Operation
	capacity int
}

func (q *fakeQueue) Enqueue(op *model.Operation) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.ops = append(q.ops, op)
}

func (q *fakeQueue) Pause()          {}
func (q *fakeQueue) Resume()         {}
func (q *fakeQueue) IsPaused() bool  { return false }
func (q *fakeQueue) RequestRefresh() {}

func (q *fakeQueue) RequestMoreCapacity() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.capacity++
}

func (q *fakeQueue) Capacity() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.capacity
}

func (q *fakeQueue) Ops() []*model.Operation {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]*model.Operation(nil), q.ops...)
}

type fakeLister struct {
	dirs  map[string][]model.Item
	fail  map[string]error
	block map[string]chan struct{}
}

func (l *fakeLister) ReadDir(ctx context.Context, dir string) ([]model.Item, error) {
	if ch, ok := l.block[dir]; ok {
		select {
		case <-ch:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err, ok := l.fail[dir]; ok {
		return nil, err
	}
	items, ok := l.dirs[dir]
	if !ok {
		return nil, fmt.Errorf("no such dir %s", dir)
	}
	return items, nil
}

type fakeResolver struct {
	payloads map[string]string
}

func (r *fakeResolver) ResolveAll(_ context.Context, names []string) (map[string]string, error) {
	out := map[string]string{}
	for _, n := range names {
		v, ok := r.payloads[n]
		if !ok {
			return out, errors.New("missing " + n)
		}
		out[n] = v
	}
	return out, nil
}

var zeroTime time.Time

func noopRun(context.Context, *model.Operation) error { return nil }

func fileProcessor() processor.Processor {
	return processor.Processor{
		ID:              "files",
		Run:             noopRun,
		Accept:          processor.Accept{Files: &processor.FileRule{Extensions: []string{"txt"}}},
		ExpandDirectory: processor.Always[processor.ExpandInput](),
		Options:         model.Options{"level": 1},
	}
}

type harness struct {
	profile  *Profile
	queue    *fakeQueue
	dialogs  *dialog.Scripted
	recorder *events.Recorder
}

func newHarness(t *testing.T, proc processor.Processor, mutate ...func(*Config)) *harness {
	t.Helper()
	h := &harness{
		queue:    &fakeQueue{},
		dialogs:  &dialog.Scripted{},
		recorder: &events.Recorder{},
	}
	cfg := Config{
		ID:        "p1",
		Title:     "Profile One",
		Processor: proc,
		Worker:    h.queue,
		Dialogs:   h.dialogs,
		Notifier:  h.recorder,
		Lister:    &fakeLister{},
		Resolver:  &fakeResolver{},
		Timing: Timing{
			FlushFirst: time.Millisecond,
			FlushEvery: 2 * time.Millisecond,
			AdmitFirst: time.Millisecond,
			AdmitEvery: 2 * time.Millisecond,
		},
	}
	for _, m := range mutate {
		m(&cfg)
	}
	p, err := New(cfg)
	require.NoError(t, err)
	t.Cleanup(p.Close)
	h.profile = p
	return h
}

func files(paths ...string) []model.Item {
	out := make([]model.Item, 0, len(paths))
	for _, p := range paths {
		out = append(out, model.FileItem(p, 1, time.Time{}))
	}
	return out
}

func paths(items []model.Item) []string {
	out := make([]string, 0, len(items))
	for _, it := range items {
		out = append(out, it.Path)
	}
	return out
}
