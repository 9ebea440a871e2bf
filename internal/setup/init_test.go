package setup

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/msageha/dropzone/internal/config"
	"github.com/msageha/dropzone/internal/processor"
)

func TestRun_CreatesDirectoryStructure(t *testing.T) {
	home := filepath.Join(t.TempDir(), "home")

	if err := Run(home, false); err != nil {
		t.Fatalf("Run: %v", err)
	}

	for _, d := range []string{"processors", "output", "data", "tmp", "locks", "quarantine"} {
		info, err := os.Stat(filepath.Join(home, d))
		if err != nil {
			t.Errorf("directory %s does not exist: %v", d, err)
			continue
		}
		if !info.IsDir() {
			t.Errorf("%s is not a directory", d)
		}
	}
}

func TestRun_WritesLoadableConfig(t *testing.T) {
	home := t.TempDir()

	if err := Run(home, false); err != nil {
		t.Fatalf("Run: %v", err)
	}

	cfg, err := config.Load(filepath.Join(home, config.FileName))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Worker.Concurrency != 2 {
		t.Errorf("worker.concurrency: got %d, want 2", cfg.Worker.Concurrency)
	}
	if _, ok := cfg.Profile("photos"); !ok {
		t.Error("photos profile missing")
	}
	if cfg.Processors.ManifestDir != filepath.Join(home, "processors") {
		t.Errorf("manifest_dir: got %q", cfg.Processors.ManifestDir)
	}
}

func TestRun_CopiesManifests(t *testing.T) {
	home := t.TempDir()

	if err := Run(home, false); err != nil {
		t.Fatalf("Run: %v", err)
	}

	manifests, err := processor.LoadManifests(filepath.Join(home, "processors"))
	if err != nil {
		t.Fatalf("LoadManifests: %v", err)
	}
	if len(manifests) != 1 || manifests[0].ID != "photos" || manifests[0].Base() != "checksum" {
		t.Errorf("unexpected manifests: %+v", manifests)
	}
}

func TestRun_ExistingConfig(t *testing.T) {
	home := t.TempDir()

	if err := Run(home, false); err != nil {
		t.Fatalf("first Run: %v", err)
	}
	if err := Run(home, false); err == nil {
		t.Error("expected error when config exists")
	}
	if err := Run(home, true); err != nil {
		t.Errorf("forced Run: %v", err)
	}
	if _, err := os.Stat(filepath.Join(home, config.FileName+".bak")); err != nil {
		t.Errorf("forced Run should keep a backup: %v", err)
	}
}
