package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/msageha/dropzone/internal/config"
	"github.com/msageha/dropzone/internal/model"
)

// lockedBuffer is written to by the logger, the staging presenter and the
// event printer concurrently.
type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

type cliResult struct {
	stdout string
	stderr string
	err    error
}

func runCLI(t *testing.T, stdin string, args ...string) cliResult {
	t.Helper()
	var stdout, stderr lockedBuffer
	err := Run(context.Background(), args, strings.NewReader(stdin), &stdout, &stderr)
	return cliResult{stdout: stdout.String(), stderr: stderr.String(), err: err}
}

// initHome runs init into a fresh home and turns desktop notifications off.
func initHome(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	res := runCLI(t, "", "--home", home, "init")
	require.NoError(t, res.err, res.stderr)
	assert.Contains(t, res.stdout, "Initialized")

	path := filepath.Join(home, config.FileName)
	cfg, err := config.Load(path)
	require.NoError(t, err)
	cfg.Notify.Enabled = false
	require.NoError(t, config.Save(path, cfg))
	return home
}

func TestInit_RefusesToOverwrite(t *testing.T) {
	home := initHome(t)

	res := runCLI(t, "", "--home", home, "init")
	assert.Error(t, res.err)

	res = runCLI(t, "", "--home", home, "init", "--force")
	assert.NoError(t, res.err)
}

func TestProcessors_ListsBuiltinsAndManifests(t *testing.T) {
	home := initHome(t)

	res := runCLI(t, "", "--home", home, "processors")
	require.NoError(t, res.err, res.stderr)

	for _, id := range []string{"checksum", "bundle", "photos"} {
		assert.Contains(t, res.stdout, id)
	}
	assert.Contains(t, res.stderr, "Installing photos")
}

func TestDrop_ChecksumsFiles(t *testing.T) {
	home := initHome(t)
	src := t.TempDir()
	a := filepath.Join(src, "a.txt")
	b := filepath.Join(src, "b.txt")
	require.NoError(t, os.WriteFile(a, []byte("alpha"), 0o644))
	require.NoError(t, os.WriteFile(b, []byte("beta"), 0o644))

	res := runCLI(t, "", "--home", home, "drop", "checksum", a, b)
	require.NoError(t, res.err, res.stderr)
	assert.Equal(t, 2, strings.Count(res.stdout, "done"))

	content, err := os.ReadFile(filepath.Join(home, "output", "checksums.txt"))
	require.NoError(t, err)
	assert.Contains(t, string(content), a)
	assert.Contains(t, string(content), b)
	// sha256("alpha")
	assert.Contains(t, string(content), "8ed3f6ad685b959ead7022518e1af76cd816f8e8ec7ccdda1ed4018e8f2223f8")
}

func TestDrop_BundleTextAndURL(t *testing.T) {
	home := initHome(t)

	res := runCLI(t, "", "--home", home, "drop", "bundle", "--text", "hello", "--url", "https://example.com")
	require.NoError(t, res.err, res.stderr)
	assert.Equal(t, 1, strings.Count(res.stdout, "done"))

	matches, err := filepath.Glob(filepath.Join(home, "output", "bundle-*.yaml"))
	require.NoError(t, err)
	assert.Len(t, matches, 1)
}

func TestDrop_Errors(t *testing.T) {
	home := initHome(t)

	res := runCLI(t, "", "--home", home, "drop", "missing", "--text", "x")
	require.Error(t, res.err)
	assert.Contains(t, res.err.Error(), "unknown profile")

	res = runCLI(t, "", "--home", home, "drop", "bundle")
	require.Error(t, res.err)
	assert.Contains(t, res.err.Error(), "nothing to drop")
}

func TestCollectItems(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "f.txt")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))

	items, err := collectItems(strings.NewReader("%PDF-1.4\n"), []string{path, "-"}, dropOptions{
		texts: []string{"note"},
		urls:  []string{"https://example.com/a"},
	})
	require.NoError(t, err)
	require.Len(t, items, 4)

	assert.Equal(t, model.KindBlob, items[0].Kind)
	assert.Equal(t, "application/pdf", items[0].MIME)
	assert.Equal(t, model.KindFile, items[1].Kind)
	assert.Equal(t, model.KindString, items[2].Kind)
	assert.Equal(t, model.KindURL, items[3].Kind)
}

func TestParseFolders(t *testing.T) {
	got, err := parseFolders([]string{"in=checksum", "/tmp/x=bundle"})
	require.NoError(t, err)
	assert.Equal(t, []config.WatchFolder{
		{Path: "in", Profile: "checksum"},
		{Path: "/tmp/x", Profile: "bundle"},
	}, got)

	for _, bad := range []string{"in", "=checksum", "in="} {
		_, err := parseFolders([]string{bad})
		assert.Error(t, err, bad)
	}
}

func TestWatch_DropsNewFiles(t *testing.T) {
	home := initHome(t)
	inbox := filepath.Join(t.TempDir(), "inbox")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var stdout, stderr lockedBuffer
	done := make(chan error, 1)
	go func() {
		done <- Run(ctx, []string{"--home", home, "watch", "--folder", inbox + "=checksum"},
			strings.NewReader(""), &stdout, &stderr)
	}()

	require.Eventually(t, func() bool {
		return strings.Contains(stderr.String(), "watching "+inbox)
	}, 5*time.Second, 10*time.Millisecond)

	dropped := filepath.Join(inbox, "new.txt")
	require.NoError(t, os.WriteFile(dropped, []byte("alpha"), 0o644))

	sums := filepath.Join(home, "output", "checksums.txt")
	require.Eventually(t, func() bool {
		content, err := os.ReadFile(sums)
		return err == nil && strings.Contains(string(content), dropped)
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		if err != nil {
			assert.ErrorIs(t, err, context.Canceled)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("watch did not stop")
	}
}
