package yaml

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	yamlv3 "gopkg.in/yaml.v3"
)

const photosManifest = `schema_version: 1
file_type: processor_manifest
id: photos
extends: checksum
`

type configDoc struct {
	SchemaHeader `yaml:",inline"`
	Worker       struct {
		Concurrency int `yaml:"concurrency"`
	} `yaml:"worker"`
}

func newConfigDoc(concurrency int) configDoc {
	doc := configDoc{SchemaHeader: SchemaHeader{SchemaVersion: CurrentSchemaVersion, FileType: FileTypeConfig}}
	doc.Worker.Concurrency = concurrency
	return doc
}

func readConfigDoc(t *testing.T, path string) configDoc {
	t.Helper()
	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	var doc configDoc
	if err := yamlv3.Unmarshal(content, &doc); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	return doc
}

func TestWriteDocument_Config(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	if err := WriteDocument(path, FileTypeConfig, newConfigDoc(3)); err != nil {
		t.Fatalf("WriteDocument failed: %v", err)
	}
	if err := ValidateSchemaHeader(path, FileTypeConfig); err != nil {
		t.Errorf("written header invalid: %v", err)
	}
	if got := readConfigDoc(t, path).Worker.Concurrency; got != 3 {
		t.Errorf("concurrency: got %d, want 3", got)
	}
	if _, err := os.Stat(BackupPath(path)); !os.IsNotExist(err) {
		t.Error("first write should not leave a backup")
	}
}

func TestWriteDocument_KeepsPreviousConfigAsBackup(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	if err := WriteDocument(path, FileTypeConfig, newConfigDoc(1)); err != nil {
		t.Fatalf("first write failed: %v", err)
	}
	if err := WriteDocument(path, FileTypeConfig, newConfigDoc(2)); err != nil {
		t.Fatalf("second write failed: %v", err)
	}

	if got := readConfigDoc(t, BackupPath(path)).Worker.Concurrency; got != 1 {
		t.Errorf("backup concurrency: got %d, want 1", got)
	}
	if got := readConfigDoc(t, path).Worker.Concurrency; got != 2 {
		t.Errorf("current concurrency: got %d, want 2", got)
	}
}

func TestWriteDocument_RefusesMissingHeader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	var doc configDoc
	doc.Worker.Concurrency = 4
	err := WriteDocument(path, FileTypeConfig, doc)
	if err == nil {
		t.Fatal("expected error for a config without schema header")
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("file should not exist after refused write")
	}
}

func TestWriteDocumentRaw_Manifest(t *testing.T) {
	path := filepath.Join(t.TempDir(), "processors", "photos.yaml")

	if err := WriteDocumentRaw(path, FileTypeManifest, []byte(photosManifest)); err != nil {
		t.Fatalf("WriteDocumentRaw failed: %v", err)
	}
	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if string(content) != photosManifest {
		t.Errorf("content changed on write:\n%s", content)
	}
}

func TestWriteDocumentRaw_RefusesWrongFileType(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	if err := WriteDocument(path, FileTypeConfig, newConfigDoc(5)); err != nil {
		t.Fatalf("WriteDocument failed: %v", err)
	}

	err := WriteDocumentRaw(path, FileTypeConfig, []byte(photosManifest))
	if err == nil || !strings.Contains(err.Error(), "file_type mismatch") {
		t.Fatalf("expected file_type mismatch, got %v", err)
	}
	if got := readConfigDoc(t, path).Worker.Concurrency; got != 5 {
		t.Errorf("config was modified: concurrency %d", got)
	}
	if _, err := os.Stat(BackupPath(path)); !os.IsNotExist(err) {
		t.Error("refused write should not touch the backup")
	}
}

func TestWriteDocumentRaw_BrokenManifestLeavesNoTempFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "photos.yaml")

	if err := WriteDocumentRaw(path, FileTypeManifest, []byte("id: photos\naccept: [\n")); err == nil {
		t.Fatal("expected error for broken manifest")
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir failed: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("unexpected files remaining: %v", entries)
	}
}
