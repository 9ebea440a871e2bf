package yaml

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Quarantine moves a corrupted file into quarantineDir and returns its new
// path.
func Quarantine(quarantineDir, filePath string) (string, error) {
	if err := os.MkdirAll(quarantineDir, 0o755); err != nil {
		return "", fmt.Errorf("create quarantine dir: %w", err)
	}

	name := fmt.Sprintf("%s.%s.corrupt", filepath.Base(filePath), time.Now().Format("20060102T150405"))
	dst := filepath.Join(quarantineDir, name)
	if err := os.Rename(filePath, dst); err != nil {
		return "", fmt.Errorf("move to quarantine: %w", err)
	}
	return dst, nil
}

// RestoreFromBackup replaces filePath with its backup when the backup is a
// valid fileType document.
func RestoreFromBackup(filePath, fileType string) error {
	bakPath := BackupPath(filePath)
	content, err := os.ReadFile(bakPath)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("no backup file: %s", bakPath)
		}
		return fmt.Errorf("read backup: %w", err)
	}
	if err := ValidateSchemaHeaderFromBytes(content, fileType); err != nil {
		return fmt.Errorf("backup is also corrupted: %w", err)
	}
	if err := replaceFile(filePath, content); err != nil {
		return fmt.Errorf("restore from backup: %w", err)
	}
	return nil
}

// Recovery describes what RecoverCorruptedFile did.
type Recovery struct {
	QuarantinedTo string
	FromBackup    bool
}

// RecoverCorruptedFile quarantines filePath, then restores it from its
// backup or, failing that, writes skeleton in its place.
func RecoverCorruptedFile(quarantineDir, filePath, fileType string, skeleton any) (Recovery, error) {
	var rec Recovery
	dst, err := Quarantine(quarantineDir, filePath)
	if err != nil {
		return rec, fmt.Errorf("quarantine failed: %w", err)
	}
	rec.QuarantinedTo = dst

	if err := RestoreFromBackup(filePath, fileType); err == nil {
		rec.FromBackup = true
		return rec, nil
	}

	if err := WriteDocument(filePath, fileType, skeleton); err != nil {
		return rec, fmt.Errorf("skeleton generation failed: %w", err)
	}
	return rec, nil
}
