// Package setup handles dropzone home initialization.
package setup

import (
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"

	yamlv3 "gopkg.in/yaml.v3"

	"github.com/msageha/dropzone/internal/config"
	yamlutil "github.com/msageha/dropzone/internal/yaml"
	"github.com/msageha/dropzone/templates"
)

// Run initializes the dropzone home directory: the directory layout, the
// config file and the example processor manifests. It refuses to overwrite
// an existing config unless force is set.
func Run(home string, force bool) error {
	absDir, err := filepath.Abs(home)
	if err != nil {
		return fmt.Errorf("resolve home dir: %w", err)
	}

	cfgPath := filepath.Join(absDir, config.FileName)
	if _, err := os.Stat(cfgPath); err == nil && !force {
		return fmt.Errorf("%s already exists", cfgPath)
	}

	cfg, err := generateConfig()
	if err != nil {
		return fmt.Errorf("generate config: %w", err)
	}

	dirs := []string{
		cfg.Processors.ManifestDir,
		cfg.Processors.OutputDir,
		cfg.Processors.DataDir,
		cfg.Processors.TempDir,
		filepath.Dir(cfg.Watch.LockFile),
		"quarantine",
	}
	for _, d := range dirs {
		if err := os.MkdirAll(filepath.Join(absDir, d), 0o755); err != nil {
			return fmt.Errorf("create directory %s: %w", d, err)
		}
	}

	if err := config.Save(cfgPath, cfg); err != nil {
		return fmt.Errorf("write %s: %w", config.FileName, err)
	}

	manifests, err := fs.ReadDir(templates.FS, "processors")
	if err != nil {
		return fmt.Errorf("read manifest templates: %w", err)
	}
	for _, e := range manifests {
		dst := filepath.Join(absDir, cfg.Processors.ManifestDir, e.Name())
		if _, err := os.Stat(dst); err == nil {
			continue
		}
		if err := copyTemplateFile(path.Join("processors", e.Name()), dst); err != nil {
			return err
		}
	}
	return nil
}

func copyTemplateFile(name, dst string) error {
	data, err := fs.ReadFile(templates.FS, name)
	if err != nil {
		return fmt.Errorf("read template %s: %w", name, err)
	}
	if err := yamlutil.WriteDocumentRaw(dst, yamlutil.FileTypeManifest, data); err != nil {
		return fmt.Errorf("write %s: %w", dst, err)
	}
	return nil
}

func generateConfig() (*config.Config, error) {
	data, err := fs.ReadFile(templates.FS, config.FileName)
	if err != nil {
		return nil, fmt.Errorf("read config template: %w", err)
	}

	var cfg config.Config
	if err := yamlv3.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config template: %w", err)
	}
	return &cfg, nil
}
