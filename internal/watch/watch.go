// Package watch drops new files of watched folders onto profiles.
package watch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/msageha/dropzone/internal/fsx"
	"github.com/msageha/dropzone/internal/lock"
	"github.com/msageha/dropzone/internal/log"
	"github.com/msageha/dropzone/internal/model"
	"github.com/msageha/dropzone/internal/processor"
)

// ActionWatch is the Meta.Action of drops made by the watcher.
const ActionWatch = "watch"

// Dropper receives drops. *profile.Profile implements it.
type Dropper interface {
	DropItems(ctx context.Context, raw []model.Item, meta processor.Meta) error
}

// Folder binds a directory to the profile its new files are dropped on.
type Folder struct {
	Path    string
	Profile string
}

// Config is the configuration of a Watcher.
type Config struct {
	Folders []Folder
	// Profile looks up a dropper by profile id.
	Profile func(id string) (Dropper, bool)
	// Debounce is how long a folder must stay quiet before its new files
	// are dropped.
	Debounce time.Duration
	// LockPath, when set, makes the watcher single-instance.
	LockPath string
	Logger   log.Logger
}

func (c *Config) defaults() error {
	if len(c.Folders) == 0 {
		return fmt.Errorf("no folders to watch")
	}
	if c.Profile == nil {
		return fmt.Errorf("profile lookup is required")
	}
	for i, f := range c.Folders {
		if f.Path == "" || f.Profile == "" {
			return fmt.Errorf("folder %d: path and profile are required", i)
		}
		abs, err := filepath.Abs(f.Path)
		if err != nil {
			return fmt.Errorf("folder %s: %w", f.Path, err)
		}
		c.Folders[i].Path = abs
	}
	if c.Debounce <= 0 {
		c.Debounce = 500 * time.Millisecond
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "watch.Watcher"})
	return nil
}

// Watcher turns filesystem events into drops.
type Watcher struct {
	cfg     Config
	logger  log.Logger
	folders map[string]Folder
	drops   *lock.MutexMap
	ready   chan struct{}

	mu      sync.Mutex
	pending map[string]map[string]struct{}
	timers  map[string]*time.Timer
	wg      sync.WaitGroup
}

// New returns a Watcher. Nothing is watched until Run.
func New(cfg Config) (*Watcher, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	folders := make(map[string]Folder, len(cfg.Folders))
	for _, f := range cfg.Folders {
		folders[f.Path] = f
	}
	return &Watcher{
		cfg:     cfg,
		logger:  cfg.Logger,
		folders: folders,
		drops:   lock.NewMutexMap(),
		ready:   make(chan struct{}),
		pending: make(map[string]map[string]struct{}),
		timers:  make(map[string]*time.Timer),
	}, nil
}

// Ready is closed once every folder is watched.
func (w *Watcher) Ready() <-chan struct{} {
	return w.ready
}

// Run watches until ctx is done. Drops in flight finish before it returns.
func (w *Watcher) Run(ctx context.Context) error {
	if w.cfg.LockPath != "" {
		fl := lock.NewFileLock(w.cfg.LockPath)
		if err := fl.TryLock(); err != nil {
			return fmt.Errorf("watch lock: %w", err)
		}
		defer func() { _ = fl.Unlock() }()
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create fsnotify watcher: %w", err)
	}
	defer fw.Close()

	for dir, f := range w.folders {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("ensure dir %s: %w", dir, err)
		}
		if err := fw.Add(dir); err != nil {
			return fmt.Errorf("watch %s: %w", dir, err)
		}
		w.logger.Infof("watching %s for profile %s", dir, f.Profile)
	}
	close(w.ready)

	defer w.shutdown()
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if event.Has(fsnotify.Create) || event.Has(fsnotify.Write) {
				w.logger.Debugf("fsnotify event=%s file=%s", event.Op, event.Name)
				w.handleEvent(ctx, event.Name)
			}
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Errorf("fsnotify error=%v", err)
		}
	}
}

func (w *Watcher) handleEvent(ctx context.Context, path string) {
	dir := filepath.Dir(path)
	if _, ok := w.folders[dir]; !ok || ignored(filepath.Base(path)) {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.pending[dir] == nil {
		w.pending[dir] = make(map[string]struct{})
	}
	w.pending[dir][path] = struct{}{}

	if t := w.timers[dir]; t != nil && t.Stop() {
		w.wg.Done()
	}
	w.wg.Add(1)
	w.timers[dir] = time.AfterFunc(w.cfg.Debounce, func() {
		defer w.wg.Done()
		w.flush(ctx, dir)
	})
}

// flush drops the pending files of dir. Drops onto one profile never
// overlap.
func (w *Watcher) flush(ctx context.Context, dir string) {
	w.mu.Lock()
	set := w.pending[dir]
	delete(w.pending, dir)
	delete(w.timers, dir)
	w.mu.Unlock()
	if len(set) == 0 || ctx.Err() != nil {
		return
	}

	paths := make([]string, 0, len(set))
	for p := range set {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	items := make([]model.Item, 0, len(paths))
	for _, p := range paths {
		it, err := fsx.ItemFromPath(p)
		if err != nil {
			w.logger.Debugf("skip %s: %v", p, err)
			continue
		}
		items = append(items, it)
	}
	if len(items) == 0 {
		return
	}

	folder := w.folders[dir]
	target, ok := w.cfg.Profile(folder.Profile)
	if !ok {
		w.logger.Errorf("unknown profile %q for %s", folder.Profile, dir)
		return
	}

	if id, err := model.GenerateID(model.IDTypeWatch); err == nil {
		ctx = w.logger.SetValuesOnCtx(ctx, log.Kv{"watch": id})
	}
	logger := w.logger.WithCtxValues(ctx)

	w.drops.Lock(folder.Profile)
	defer w.drops.Unlock(folder.Profile)
	logger.Infof("dropping %d items from %s onto %s", len(items), dir, folder.Profile)
	if err := target.DropItems(ctx, items, processor.Meta{Action: ActionWatch}); err != nil {
		logger.Warningf("drop from %s: %v", dir, err)
	}
}

func (w *Watcher) shutdown() {
	w.mu.Lock()
	for dir, t := range w.timers {
		if t.Stop() {
			w.wg.Done()
		}
		delete(w.timers, dir)
	}
	w.mu.Unlock()
	w.wg.Wait()
}

// ignored filters editor swap files and partial downloads.
func ignored(name string) bool {
	return strings.HasPrefix(name, ".") ||
		strings.HasSuffix(name, "~") ||
		strings.HasSuffix(name, ".part") ||
		strings.HasSuffix(name, ".crdownload") ||
		strings.HasSuffix(name, ".tmp")
}
