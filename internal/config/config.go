// Package config loads and saves the dropzone configuration file.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/samber/lo"
	yamlv3 "gopkg.in/yaml.v3"

	"github.com/msageha/dropzone/internal/model"
	yamlutil "github.com/msageha/dropzone/internal/yaml"
)

// FileName is the name of the configuration file inside the home directory.
const FileName = "config.yaml"

// ErrCorrupt is returned by Load when the file exists but cannot be decoded.
var ErrCorrupt = errors.New("corrupt config")

type Config struct {
	yamlutil.SchemaHeader `yaml:",inline"`

	Logging      LoggingConfig      `yaml:"logging"`
	Staging      StagingConfig      `yaml:"staging"`
	Pipeline     PipelineConfig     `yaml:"pipeline"`
	Worker       WorkerConfig       `yaml:"worker"`
	Dependencies DependenciesConfig `yaml:"dependencies"`
	Processors   ProcessorsConfig   `yaml:"processors"`
	Profiles     []ProfileConfig    `yaml:"profiles"`
	Watch        WatchConfig        `yaml:"watch"`
	Notify       NotifyConfig       `yaml:"notify"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // text or json
}

type StagingConfig struct {
	ErrorDisplay string `yaml:"error_display"` // expand or collapse
}

type PipelineConfig struct {
	TweakModifiers    string `yaml:"tweak_modifiers"`
	FlushFirstMs      int    `yaml:"flush_first_ms"`
	FlushEveryMs      int    `yaml:"flush_every_ms"`
	AdmitFirstMs      int    `yaml:"admit_first_ms"`
	AdmitEveryMs      int    `yaml:"admit_every_ms"`
	WatchdogMinItemMs int    `yaml:"watchdog_min_item_ms"`
	WatchdogBudgetSec int    `yaml:"watchdog_budget_sec"`
	ListConcurrency   int    `yaml:"list_concurrency"`
}

type WorkerConfig struct {
	Concurrency int `yaml:"concurrency"`
}

type DependenciesConfig struct {
	Overrides   map[string]string `yaml:"overrides,omitempty"`
	CacheSize   int               `yaml:"cache_size"`
	CacheTTLSec int               `yaml:"cache_ttl_sec"`
}

type ProcessorsConfig struct {
	ManifestDir string `yaml:"manifest_dir"`
	OutputDir   string `yaml:"output_dir"`
	DataDir     string `yaml:"data_dir"`
	TempDir     string `yaml:"temp_dir"`
}

type ProfileConfig struct {
	ID        string        `yaml:"id"`
	Title     string        `yaml:"title,omitempty"`
	Processor string        `yaml:"processor"`
	Options   model.Options `yaml:"options,omitempty"`
}

type WatchConfig struct {
	Folders     []WatchFolder `yaml:"folders,omitempty"`
	DebounceSec float64       `yaml:"debounce_sec"`
	LockFile    string        `yaml:"lock_file"`
}

type WatchFolder struct {
	Path    string `yaml:"path"`
	Profile string `yaml:"profile"`
}

type NotifyConfig struct {
	Enabled    bool   `yaml:"enabled"`
	MinVariant string `yaml:"min_variant"`
}

// Default returns the configuration written by init.
func Default() *Config {
	cfg := &Config{
		SchemaHeader: yamlutil.SchemaHeader{
			SchemaVersion: yamlutil.CurrentSchemaVersion,
			FileType:      yamlutil.FileTypeConfig,
		},
		Profiles: []ProfileConfig{
			{ID: "checksum", Title: "Checksums", Processor: "checksum"},
			{ID: "bundle", Title: "Bundle", Processor: "bundle"},
		},
		Notify: NotifyConfig{Enabled: true},
	}
	cfg.applyDefaults()
	return cfg
}

// DefaultHome returns $DROPZONE_HOME, or ~/.dropzone.
func DefaultHome() (string, error) {
	if h := os.Getenv("DROPZONE_HOME"); h != "" {
		return h, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home dir: %w", err)
	}
	return filepath.Join(home, ".dropzone"), nil
}

// Load reads path, applies defaults and validates. Relative paths in the
// file are resolved against the directory of path. A missing file yields
// Default().
func Load(path string) (*Config, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config: %w", err)
		}
		cfg := Default()
		cfg.resolvePaths(filepath.Dir(path))
		return cfg, nil
	}

	var cfg Config
	if err := yamlv3.Unmarshal(content, &cfg); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCorrupt, path, err)
	}
	if err := yamlutil.ValidateSchemaHeaderFromBytes(content, yamlutil.FileTypeConfig); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCorrupt, path, err)
	}

	cfg.applyDefaults()
	cfg.resolvePaths(filepath.Dir(path))
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return &cfg, nil
}

// LoadOrRecover is Load that, on a corrupt file, quarantines it, restores
// the backup or writes Default() and loads again.
func LoadOrRecover(path string) (*Config, *yamlutil.Recovery, error) {
	cfg, err := Load(path)
	if err == nil || !errors.Is(err, ErrCorrupt) {
		return cfg, nil, err
	}

	quarantineDir := filepath.Join(filepath.Dir(path), "quarantine")
	rec, rerr := yamlutil.RecoverCorruptedFile(quarantineDir, path, yamlutil.FileTypeConfig, Default())
	if rerr != nil {
		return nil, nil, fmt.Errorf("recover config: %w", rerr)
	}
	cfg, err = Load(path)
	if err != nil {
		return nil, &rec, err
	}
	return cfg, &rec, nil
}

// Save writes cfg atomically, keeping the previous file as a backup.
func Save(path string, cfg *Config) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	out := *cfg
	out.SchemaVersion = yamlutil.CurrentSchemaVersion
	out.FileType = yamlutil.FileTypeConfig
	return yamlutil.WriteDocument(path, yamlutil.FileTypeConfig, &out)
}

// Validate checks cross references between sections.
func (c *Config) Validate() error {
	switch c.Logging.Level {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("logging.level: unknown level %q", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("logging.format: unknown format %q", c.Logging.Format)
	}
	switch c.Staging.ErrorDisplay {
	case "expand", "collapse":
	default:
		return fmt.Errorf("staging.error_display: unknown value %q", c.Staging.ErrorDisplay)
	}
	switch c.Notify.MinVariant {
	case "info", "success", "warning", "danger":
	default:
		return fmt.Errorf("notify.min_variant: unknown variant %q", c.Notify.MinVariant)
	}

	for i, p := range c.Profiles {
		if p.ID == "" || p.Processor == "" {
			return fmt.Errorf("profiles[%d]: id and processor are required", i)
		}
	}
	ids := lo.Map(c.Profiles, func(p ProfileConfig, _ int) string { return p.ID })
	if dup := lo.FindDuplicates(ids); len(dup) > 0 {
		return fmt.Errorf("profiles: duplicate ids %v", dup)
	}
	for i, f := range c.Watch.Folders {
		if f.Path == "" {
			return fmt.Errorf("watch.folders[%d]: path is required", i)
		}
		if !lo.Contains(ids, f.Profile) {
			return fmt.Errorf("watch.folders[%d]: unknown profile %q", i, f.Profile)
		}
	}
	return nil
}

// Profile returns the profile with id.
func (c *Config) Profile(id string) (ProfileConfig, bool) {
	return lo.Find(c.Profiles, func(p ProfileConfig) bool { return p.ID == id })
}

// Debounce returns the watch debounce as a duration.
func (w WatchConfig) Debounce() time.Duration {
	return time.Duration(w.DebounceSec * float64(time.Second))
}

// CacheTTL returns the dependency cache lifetime.
func (d DependenciesConfig) CacheTTL() time.Duration {
	return time.Duration(d.CacheTTLSec) * time.Second
}

func (c *Config) applyDefaults() {
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
	if c.Staging.ErrorDisplay == "" {
		c.Staging.ErrorDisplay = "collapse"
	}

	p := &c.Pipeline
	if p.TweakModifiers == "" {
		p.TweakModifiers = "Alt"
	}
	if p.FlushFirstMs <= 0 {
		p.FlushFirstMs = 10
	}
	if p.FlushEveryMs <= 0 {
		p.FlushEveryMs = 100
	}
	if p.AdmitFirstMs <= 0 {
		p.AdmitFirstMs = 10
	}
	if p.AdmitEveryMs <= 0 {
		p.AdmitEveryMs = 300
	}
	if p.WatchdogMinItemMs <= 0 {
		p.WatchdogMinItemMs = 100
	}
	if p.WatchdogBudgetSec <= 0 {
		p.WatchdogBudgetSec = 60
	}
	if p.ListConcurrency <= 0 {
		p.ListConcurrency = 4
	}

	if c.Worker.Concurrency <= 0 {
		c.Worker.Concurrency = 2
	}
	if c.Dependencies.CacheSize <= 0 {
		c.Dependencies.CacheSize = 256
	}
	if c.Dependencies.CacheTTLSec <= 0 {
		c.Dependencies.CacheTTLSec = 300
	}

	if c.Processors.ManifestDir == "" {
		c.Processors.ManifestDir = "processors"
	}
	if c.Processors.OutputDir == "" {
		c.Processors.OutputDir = "output"
	}
	if c.Processors.DataDir == "" {
		c.Processors.DataDir = "data"
	}
	if c.Processors.TempDir == "" {
		c.Processors.TempDir = "tmp"
	}

	if c.Watch.DebounceSec <= 0 {
		c.Watch.DebounceSec = 0.5
	}
	if c.Watch.LockFile == "" {
		c.Watch.LockFile = "locks/watch.lock"
	}
	if c.Notify.MinVariant == "" {
		c.Notify.MinVariant = "warning"
	}
}

func (c *Config) resolvePaths(base string) {
	abs := func(p string) string {
		if p == "" || filepath.IsAbs(p) {
			return p
		}
		return filepath.Join(base, p)
	}
	c.Processors.ManifestDir = abs(c.Processors.ManifestDir)
	c.Processors.OutputDir = abs(c.Processors.OutputDir)
	c.Processors.DataDir = abs(c.Processors.DataDir)
	c.Processors.TempDir = abs(c.Processors.TempDir)
	c.Watch.LockFile = abs(c.Watch.LockFile)
	for i := range c.Watch.Folders {
		c.Watch.Folders[i].Path = abs(c.Watch.Folders[i].Path)
	}
}
