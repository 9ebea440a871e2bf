// Package builtin holds the processors shipped with dropzone.
package builtin

import (
	"context"
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/msageha/dropzone/internal/model"
	"github.com/msageha/dropzone/internal/processor"
)

const (
	ChecksumID    = "checksum"
	checksumsFile = "checksums.txt"
)

var hashes = map[string]func() hash.Hash{
	"sha256": sha256.New,
	"sha1":   sha1.New,
	"md5":    md5.New,
}

// Checksum hashes every dropped file, one operation per file, and appends
// "<digest>  <path>" lines to checksums.txt in outDir.
func Checksum(outDir string) processor.Processor {
	c := &checksummer{outDir: outDir}
	return processor.Processor{
		ID:              ChecksumID,
		Name:            "Checksum",
		Description:     "Hashes dropped files and records the digests.",
		Accept:          processor.Accept{Files: &processor.FileRule{}},
		Bulk:            processor.Never[processor.BulkInput](),
		ExpandDirectory: processor.Always[processor.ExpandInput](),
		Preparator:      c.prepare,
		Run:             c.run,
		Options:         model.Options{"algorithm": "sha256"},
	}
}

type checksummer struct {
	outDir string
	mu     sync.Mutex
}

func (c *checksummer) prepare(_ context.Context, pc processor.PrepareContext, payload model.Payload) (*model.Payload, error) {
	algo := strings.ToLower(payload.Options.String("algorithm", "sha256"))
	if _, ok := hashes[algo]; !ok {
		return nil, fmt.Errorf("unsupported algorithm %q", algo)
	}
	opts := payload.Options.Clone()
	opts["algorithm"] = algo
	payload.Options = opts
	if pc.SetTitle != nil && len(payload.Inputs) > 0 {
		pc.SetTitle(fmt.Sprintf("%s %s", algo, payload.Inputs[0].Basename()))
	}
	return &payload, nil
}

func (c *checksummer) run(ctx context.Context, op *model.Operation) error {
	payload := op.Payload()
	algo := payload.Options.String("algorithm", "sha256")
	newHash, ok := hashes[algo]
	if !ok {
		return fmt.Errorf("unsupported algorithm %q", algo)
	}

	var lines []string
	for _, in := range payload.Inputs {
		if err := ctx.Err(); err != nil {
			return err
		}
		if in.Kind != model.KindFile {
			continue
		}
		sum, err := hashFile(in.Path, newHash())
		if err != nil {
			return err
		}
		lines = append(lines, fmt.Sprintf("%s  %s", sum, in.Path))
	}
	if len(lines) == 0 {
		return fmt.Errorf("no file inputs")
	}

	if err := c.record(lines); err != nil {
		return err
	}
	op.SetResult(strings.Fields(lines[0])[0])
	return nil
}

func (c *checksummer) record(lines []string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := os.MkdirAll(c.outDir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	f, err := os.OpenFile(filepath.Join(c.outDir, checksumsFile), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open %s: %w", checksumsFile, err)
	}
	defer f.Close()
	if _, err := f.WriteString(strings.Join(lines, "\n") + "\n"); err != nil {
		return fmt.Errorf("write %s: %w", checksumsFile, err)
	}
	return nil
}

func hashFile(path string, h hash.Hash) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("hash %s: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
