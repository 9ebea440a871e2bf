// Package fsx turns filesystem paths into dropped items.
package fsx

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/msageha/dropzone/internal/model"
)

// Lister lists the immediate children of a directory.
type Lister interface {
	ReadDir(ctx context.Context, dir string) ([]model.Item, error)
}

// OS is a Lister backed by the local filesystem. Children come back sorted
// by name.
type OS struct {
	// SkipHidden omits entries whose name starts with a dot.
	SkipHidden bool
}

// ReadDir implements Lister.
func (l OS) ReadDir(ctx context.Context, dir string) ([]model.Item, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read dir %s: %w", dir, err)
	}

	items := make([]model.Item, 0, len(entries))
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if l.SkipHidden && strings.HasPrefix(e.Name(), ".") {
			continue
		}
		it, err := ItemFromPath(filepath.Join(dir, e.Name()))
		if err != nil {
			// Entries can vanish between listing and stat.
			if os.IsNotExist(err) {
				continue
			}
			return nil, err
		}
		items = append(items, it)
	}
	return items, nil
}

// ItemFromPath stats path and returns a file or directory item. Symlinks
// are followed.
func ItemFromPath(path string) (model.Item, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return model.Item{}, fmt.Errorf("abs %s: %w", path, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return model.Item{}, err
	}
	if info.IsDir() {
		return model.DirectoryItem(abs), nil
	}
	return model.FileItem(abs, info.Size(), info.ModTime()), nil
}

// ItemsFromPaths converts every path, failing on the first error.
func ItemsFromPaths(paths []string) ([]model.Item, error) {
	items := make([]model.Item, 0, len(paths))
	for _, p := range paths {
		it, err := ItemFromPath(p)
		if err != nil {
			return nil, fmt.Errorf("item from %s: %w", p, err)
		}
		items = append(items, it)
	}
	return items, nil
}
