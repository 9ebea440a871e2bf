package staging

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStaging_LogSplitsAndStringifies(t *testing.T) {
	s := New(Descriptor{Title: "t", Target: TargetApp, Action: ActionUpdate})

	require.NoError(t, s.Log("first\nsecond"))
	require.NoError(t, s.Log("count:", 3, []byte("bytes")))
	require.NoError(t, s.Log(map[string]int{"a": 1}))
	require.NoError(t, s.Log(errors.New("boom")))

	lines := s.LogLines()
	assert.Equal(t, "first", lines[0])
	assert.Equal(t, "second", lines[1])
	assert.Equal(t, "count: 3 bytes", lines[2])
	assert.Equal(t, "{", lines[3])
	assert.Equal(t, `  "a": 1`, lines[4])
	assert.Equal(t, "}", lines[5])
	assert.Equal(t, "boom", lines[6])
}

func TestStaging_ErrorAppendsToErrorsAndLog(t *testing.T) {
	s := newStaging(Descriptor{Title: "t"}, ErrorDisplayExpand)

	require.NoError(t, s.Error(errors.New("bad thing")))

	assert.Equal(t, []string{"bad thing"}, s.Errors())
	assert.Contains(t, s.LogLines(), "error: bad thing")
	assert.True(t, s.Snapshot().LogExpanded)
}

func TestStaging_ErrorCollapsedDisplay(t *testing.T) {
	s := New(Descriptor{Title: "t"})
	require.NoError(t, s.Error("oops"))
	assert.False(t, s.Snapshot().LogExpanded)
}

func TestStaging_StageBanner(t *testing.T) {
	s := New(Descriptor{Title: "t"})

	require.NoError(t, s.Stage("downloading"))
	require.NoError(t, s.SetProgress(1, 4))
	snap := s.Snapshot()
	assert.Equal(t, "downloading", snap.StageName)
	require.NotNil(t, snap.Progress)
	assert.Equal(t, Progress{Completed: 1, Total: 4}, *snap.Progress)
	assert.Equal(t, []string{"---- downloading ----"}, snap.Log)

	require.NoError(t, s.Stage(""))
	assert.Empty(t, s.Snapshot().StageName)
	assert.Len(t, s.LogLines(), 1)
}

func TestStaging_MutatorsFailAfterDone(t *testing.T) {
	s := New(Descriptor{Title: "t"})
	require.NoError(t, s.Done())

	assert.ErrorIs(t, s.Log("x"), ErrStale)
	assert.ErrorIs(t, s.Error("x"), ErrStale)
	assert.ErrorIs(t, s.Stage("x"), ErrStale)
	assert.ErrorIs(t, s.SetProgress(1, 2), ErrStale)
	assert.ErrorIs(t, s.Done(), ErrStale)
	_, err := s.BeginSubstage(Descriptor{Title: "child"})
	assert.ErrorIs(t, err, ErrStale)
	assert.False(t, s.Snapshot().Ended.IsZero())
}

func TestStaging_SubscribeOrderAndLateSubscriber(t *testing.T) {
	s := New(Descriptor{Title: "t"})

	var calls []string
	s.Subscribe(func(*Staging) { calls = append(calls, "first") })
	unsub := s.Subscribe(func(*Staging) { calls = append(calls, "removed") })
	s.Subscribe(func(*Staging) { calls = append(calls, "second") })
	unsub()

	require.NoError(t, s.Done())
	assert.Equal(t, []string{"first", "second"}, calls)

	s.Subscribe(func(*Staging) { calls = append(calls, "late") })
	assert.Equal(t, []string{"first", "second", "late"}, calls)
}

func TestStaging_BeginSubstagePushesAndPops(t *testing.T) {
	s := New(Descriptor{Title: "outer", Target: TargetPlugins, Action: ActionInstall})
	require.NoError(t, s.Stage("prepare"))
	require.NoError(t, s.SetProgress(1, 2))

	sub, err := s.BeginSubstage(Descriptor{Title: "dep", Target: TargetDependency, Action: ActionInstall})
	require.NoError(t, err)

	snap := s.Snapshot()
	require.Len(t, snap.Stack, 2)
	assert.Equal(t, TargetDependency, snap.Stack[1].Target)
	assert.Empty(t, snap.StageName)
	assert.Nil(t, snap.Progress)
	assert.Contains(t, snap.Log, "==== substage: dep ====")

	require.NoError(t, sub.Stage("fetch"))
	require.NoError(t, sub.SetProgress(3, 5))
	assert.Equal(t, "fetch", s.Snapshot().StageName)

	require.NoError(t, sub.Done())
	snap = s.Snapshot()
	assert.Len(t, snap.Stack, 1)
	assert.Empty(t, snap.StageName)
	assert.Nil(t, snap.Progress)

	assert.ErrorIs(t, sub.Done(), ErrStale)
	assert.ErrorIs(t, sub.Log("x"), ErrStale)
}

func TestStaging_SubstageErrorsProxyToParent(t *testing.T) {
	s := New(Descriptor{Title: "outer"})

	ok := s.Substage(Descriptor{Title: "child"}, func(sub *Substage) {
		_ = sub.Error("child failed")
		_ = sub.Done()
	})

	assert.False(t, ok)
	assert.Equal(t, []string{"child failed"}, s.Errors())
}

func TestStaging_SubstageCleanReturnsTrue(t *testing.T) {
	s := New(Descriptor{Title: "outer"})

	ok := s.Substage(Descriptor{Title: "child"}, func(sub *Substage) {
		_ = sub.Log("working")
		_ = sub.Done()
	})

	assert.True(t, ok)
	assert.Empty(t, s.Errors())
	assert.Len(t, s.Stack(), 1)
}

func TestStaging_SubstageNonTermination(t *testing.T) {
	s := New(Descriptor{Title: "outer"})

	s.Substage(Descriptor{Title: "forgetful"}, func(sub *Substage) {
		_ = sub.Log("never finishes")
	})

	errs := s.Errors()
	require.Len(t, errs, 1)
	assert.Equal(t, "Substage 'forgetful' didn't terminate", errs[0])
	assert.Len(t, s.Stack(), 1)
	require.NoError(t, s.Done())
}

func TestStaging_SubstagePanicIsContained(t *testing.T) {
	s := New(Descriptor{Title: "outer"})

	ok := s.Substage(Descriptor{Title: "explodes"}, func(sub *Substage) {
		panic("kaboom")
	})

	assert.False(t, ok)
	errs := s.Errors()
	require.Len(t, errs, 2)
	assert.Contains(t, errs[0], "kaboom")
	assert.Equal(t, "Substage 'explodes' didn't terminate", errs[1])
	assert.Len(t, s.Stack(), 1)
}

func TestStaging_NestedSubstages(t *testing.T) {
	s := New(Descriptor{Title: "outer", Target: TargetPlugins})

	var depthDuringInner int
	ok := s.Substage(Descriptor{Title: "middle", Target: TargetDependency}, func(mid *Substage) {
		inner := mid.Substage(Descriptor{Title: "inner", Target: TargetNode}, func(in *Substage) {
			depthDuringInner = len(s.Stack())
			_ = in.Error("inner failed")
			_ = in.Done()
		})
		assert.False(t, inner)
		_ = mid.Done()
	})

	assert.Equal(t, 3, depthDuringInner)
	assert.False(t, ok, "inner errors propagate through the middle substage")
	assert.Equal(t, []string{"inner failed"}, s.Errors())
	assert.Len(t, s.Stack(), 1)
}

func TestStaging_Watch(t *testing.T) {
	s := New(Descriptor{Title: "t"})
	var snaps []Snapshot
	unwatch := s.Watch(func(snap Snapshot) { snaps = append(snaps, snap) })

	require.NoError(t, s.Stage("a"))
	require.NoError(t, s.Done())
	unwatch()

	require.Len(t, snaps, 2)
	assert.Equal(t, "a", snaps[0].StageName)
	assert.True(t, snaps[1].Done)
}

func TestStaging_WatchAfterUnwatchedLogging(t *testing.T) {
	s := New(Descriptor{Title: "t"})
	for range 100 {
		require.NoError(t, s.Log("line"))
	}

	var snaps []Snapshot
	unwatch := s.Watch(func(snap Snapshot) { snaps = append(snaps, snap) })
	require.NoError(t, s.Log("watched"))
	unwatch()
	require.NoError(t, s.Log("after"))

	require.Len(t, snaps, 1)
	assert.Len(t, snaps[0].Log, 101)
	assert.Equal(t, "watched", snaps[0].Log[100])
	assert.Len(t, s.LogLines(), 102)
}
