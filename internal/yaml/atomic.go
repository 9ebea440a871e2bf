// Package yaml provides atomic YAML file I/O, schema headers and recovery of
// corrupted files.
package yaml

import (
	"fmt"
	"os"
	"path/filepath"

	yamlv3 "gopkg.in/yaml.v3"
)

// BackupPath is where WriteDocument keeps the previous version of path.
func BackupPath(path string) string {
	return path + ".bak"
}

// WriteDocument marshals data and stores it with WriteDocumentRaw.
func WriteDocument(path, fileType string, data any) error {
	content, err := yamlv3.Marshal(data)
	if err != nil {
		return fmt.Errorf("yaml marshal: %w", err)
	}
	return WriteDocumentRaw(path, fileType, content)
}

// WriteDocumentRaw stores content at path as a fileType document. Content
// without a valid header for fileType is refused before anything touches
// the disk. The previous file, if any, is kept at BackupPath(path).
func WriteDocumentRaw(path, fileType string, content []byte) error {
	if err := ValidateSchemaHeaderFromBytes(content, fileType); err != nil {
		return fmt.Errorf("refusing to write %s: %w", filepath.Base(path), err)
	}
	if _, err := os.Stat(path); err == nil {
		if err := backup(path); err != nil {
			return fmt.Errorf("create backup: %w", err)
		}
	}
	return replaceFile(path, content)
}

// replaceFile writes content next to path and renames it into place, so a
// reader sees either the old or the new document.
func replaceFile(path string, content []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
	}()

	if _, err := tmp.Write(content); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("rename into place: %w", err)
	}
	return nil
}

func backup(path string) error {
	content, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return replaceFile(BackupPath(path), content)
}
