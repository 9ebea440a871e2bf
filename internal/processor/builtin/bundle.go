package builtin

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/samber/lo"
	"gopkg.in/yaml.v3"

	"github.com/msageha/dropzone/internal/model"
	"github.com/msageha/dropzone/internal/processor"
)

const BundleID = "bundle"

// BundleManifest is the file written by the bundle processor.
type BundleManifest struct {
	Operation string        `yaml:"operation"`
	Created   time.Time     `yaml:"created"`
	Label     string        `yaml:"label,omitempty"`
	Items     []model.Item  `yaml:"items"`
	Options   model.Options `yaml:"options,omitempty"`
}

// Bundle collects everything dropped at once into a single operation that
// writes bundle-<operation id>.yaml into outDir.
func Bundle(outDir string) processor.Processor {
	return processor.Processor{
		ID:          BundleID,
		Name:        "Bundle",
		Description: "Writes a manifest listing everything dropped together.",
		Accept: processor.Accept{
			Files:       &processor.FileRule{},
			Directories: &processor.DirectoryRule{},
			Blobs:       &processor.BlobRule{},
			Strings:     &processor.StringRule{},
			URLs:        &processor.URLRule{},
		},
		DropFilter:      dedupe,
		Bulk:            processor.Always[processor.BulkInput](),
		ExpandDirectory: processor.Never[processor.ExpandInput](),
		Run: func(ctx context.Context, op *model.Operation) error {
			return writeBundle(ctx, outDir, op)
		},
		Options: model.Options{"label": ""},
	}
}

// dedupe drops repeated items, keeping the first occurrence.
func dedupe(_ context.Context, items []model.Item, _ model.Options) ([]model.Item, error) {
	return lo.UniqBy(items, func(it model.Item) string {
		return string(it.Kind) + "\x00" + it.Value()
	}), nil
}

func writeBundle(ctx context.Context, outDir string, op *model.Operation) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	payload := op.Payload()
	m := BundleManifest{
		Operation: op.ID,
		Created:   op.Created,
		Label:     payload.Options.String("label", ""),
		Items:     payload.Inputs,
		Options:   payload.Options,
	}
	data, err := yaml.Marshal(&m)
	if err != nil {
		return fmt.Errorf("yaml marshal: %w", err)
	}

	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	path := filepath.Join(outDir, "bundle-"+op.ID+".yaml")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write bundle: %w", err)
	}
	op.SetResult(path)
	return nil
}

// All returns every builtin processor writing into outDir.
func All(outDir string) []processor.Processor {
	return []processor.Processor{Checksum(outDir), Bundle(outDir)}
}
