package watch

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/msageha/dropzone/internal/lock"
	"github.com/msageha/dropzone/internal/model"
	"github.com/msageha/dropzone/internal/processor"
)

type recordingDropper struct {
	mu    sync.Mutex
	drops [][]model.Item
	metas []processor.Meta
}

func (d *recordingDropper) DropItems(_ context.Context, raw []model.Item, meta processor.Meta) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.drops = append(d.drops, raw)
	d.metas = append(d.metas, meta)
	return nil
}

func (d *recordingDropper) snapshot() ([][]model.Item, []processor.Meta) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([][]model.Item(nil), d.drops...), append([]processor.Meta(nil), d.metas...)
}

func startWatcher(t *testing.T, cfg Config) (*Watcher, func() error) {
	t.Helper()
	w, err := New(cfg)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- w.Run(ctx) }()

	select {
	case <-w.Ready():
	case err := <-errc:
		cancel()
		t.Fatalf("watcher stopped early: %v", err)
	case <-time.After(2 * time.Second):
		cancel()
		t.Fatal("watcher not ready")
	}
	return w, func() error {
		cancel()
		return <-errc
	}
}

func TestNew_Validation(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err)

	_, err = New(Config{Folders: []Folder{{Path: t.TempDir()}}, Profile: func(string) (Dropper, bool) { return nil, false }})
	assert.Error(t, err)
}

func TestWatcher_DebouncesNewFilesIntoOneDrop(t *testing.T) {
	dir := t.TempDir()
	dropper := &recordingDropper{}
	_, stop := startWatcher(t, Config{
		Folders:  []Folder{{Path: dir, Profile: "inbox"}},
		Profile:  func(id string) (Dropper, bool) { return dropper, id == "inbox" },
		Debounce: 100 * time.Millisecond,
	})
	defer stop()

	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.txt"), []byte("b"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("a"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".swap"), []byte("x"), 0o644))

	require.Eventually(t, func() bool {
		drops, _ := dropper.snapshot()
		return len(drops) == 1
	}, 3*time.Second, 10*time.Millisecond)

	drops, metas := dropper.snapshot()
	require.Len(t, drops[0], 2)
	assert.Equal(t, "a.txt", drops[0][0].Basename())
	assert.Equal(t, "b.txt", drops[0][1].Basename())
	assert.Equal(t, ActionWatch, metas[0].Action)
}

func TestWatcher_SingleInstance(t *testing.T) {
	lockPath := filepath.Join(t.TempDir(), "watch.lock")
	cfg := func() Config {
		return Config{
			Folders:  []Folder{{Path: t.TempDir(), Profile: "inbox"}},
			Profile:  func(string) (Dropper, bool) { return &recordingDropper{}, true },
			LockPath: lockPath,
		}
	}
	_, stop := startWatcher(t, cfg())

	second, err := New(cfg())
	require.NoError(t, err)
	err = second.Run(context.Background())
	assert.True(t, errors.Is(err, lock.ErrLocked), "got %v", err)

	require.NoError(t, stop())
}

func TestIgnored(t *testing.T) {
	for _, name := range []string{".DS_Store", "report.docx~", "movie.mkv.part", "x.crdownload", "a.tmp"} {
		assert.True(t, ignored(name), name)
	}
	assert.False(t, ignored("photo.jpg"))
}
