package worker

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/msageha/dropzone/internal/model"
)

func newOp(t *testing.T) *model.Operation {
	t.Helper()
	op, err := model.NewOperation("p", model.Payload{})
	require.NoError(t, err)
	return op
}

func startPool(t *testing.T, cfg PoolConfig) (*Pool, func()) {
	t.Helper()
	p, err := NewPool(cfg)
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = p.Run(ctx)
		close(done)
	}()
	return p, func() {
		cancel()
		<-done
	}
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met within %s", timeout)
}

func TestNewPool_RequiresExecute(t *testing.T) {
	_, err := NewPool(PoolConfig{})
	assert.Error(t, err)
}

func TestPool_PullsOnlyOnCapacityRequest(t *testing.T) {
	var ran atomic.Int32
	p, stop := startPool(t, PoolConfig{
		Concurrency: 2,
		Execute: func(context.Context, *model.Operation) error {
			ran.Add(1)
			return nil
		},
	})
	defer stop()

	op := newOp(t)
	p.Enqueue(op)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(0), ran.Load())
	assert.Equal(t, 1, p.Pending())

	p.RequestMoreCapacity()
	waitFor(t, time.Second, func() bool { return ran.Load() == 1 })
	state, err := op.State()
	assert.Equal(t, model.OperationDone, state)
	assert.NoError(t, err)
}

func TestPool_FailureAndFinishCallback(t *testing.T) {
	boom := errors.New("boom")
	p, stop := startPool(t, PoolConfig{
		Execute: func(context.Context, *model.Operation) error { return boom },
	})
	defer stop()

	finished := make(chan error, 1)
	op := newOp(t)
	op.OnFinish(func(o *model.Operation) {
		_, err := o.State()
		finished <- err
	})
	p.Enqueue(op)
	p.RequestMoreCapacity()

	select {
	case err := <-finished:
		assert.ErrorIs(t, err, boom)
	case <-time.After(time.Second):
		t.Fatal("operation did not finish")
	}
}

func TestPool_PauseResume(t *testing.T) {
	var ran atomic.Int32
	p, stop := startPool(t, PoolConfig{
		Execute: func(context.Context, *model.Operation) error {
			ran.Add(1)
			return nil
		},
	})
	defer stop()

	p.Pause()
	assert.True(t, p.IsPaused())
	p.Enqueue(newOp(t))
	p.RequestMoreCapacity()
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(0), ran.Load())

	p.Resume()
	assert.False(t, p.IsPaused())
	waitFor(t, time.Second, func() bool { return ran.Load() == 1 })
}

func TestPool_WaitIdleAndStandby(t *testing.T) {
	release := make(chan struct{})
	p, stop := startPool(t, PoolConfig{
		Concurrency: 3,
		Execute: func(context.Context, *model.Operation) error {
			<-release
			return nil
		},
	})
	defer stop()

	for i := 0; i < 5; i++ {
		p.Enqueue(newOp(t))
	}
	p.RequestMoreCapacity()

	waitFor(t, time.Second, func() bool {
		busy := 0
		for _, s := range p.Standby() {
			if s.Status == "busy" {
				busy++
			}
		}
		return busy == 3
	})

	idle := make(chan error, 1)
	go func() { idle <- p.WaitIdle(context.Background()) }()
	select {
	case <-idle:
		t.Fatal("pool reported idle while busy")
	case <-time.After(30 * time.Millisecond):
	}

	close(release)
	require.NoError(t, <-idle)

	total := 0
	for _, s := range p.Standby() {
		assert.Equal(t, "idle", s.Status)
		total += s.Processed
	}
	assert.Equal(t, 5, total)

	out, err := p.StandbyJSON()
	require.NoError(t, err)
	var decoded []WorkerStatus
	require.NoError(t, json.Unmarshal([]byte(out), &decoded))
	assert.Len(t, decoded, 3)
	assert.Equal(t, "worker1", decoded[0].WorkerID)
}

func TestPool_ShutdownFailsQueued(t *testing.T) {
	p, err := NewPool(PoolConfig{Execute: func(context.Context, *model.Operation) error { return nil }})
	require.NoError(t, err)
	p.Pause()

	var mu sync.Mutex
	var errs []error
	for i := 0; i < 2; i++ {
		op := newOp(t)
		op.OnFinish(func(o *model.Operation) {
			_, err := o.State()
			mu.Lock()
			errs = append(errs, err)
			mu.Unlock()
		})
		p.Enqueue(op)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, p.Run(ctx))

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, errs, 2)
	for _, err := range errs {
		assert.ErrorIs(t, err, ErrShutdown)
	}
}

func TestPool_WaitIdleCanceled(t *testing.T) {
	p, err := NewPool(PoolConfig{Execute: func(context.Context, *model.Operation) error { return nil }})
	require.NoError(t, err)
	p.Enqueue(newOp(t))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, p.WaitIdle(ctx), context.DeadlineExceeded)
}
