package processor

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/msageha/dropzone/internal/model"
	yamlutil "github.com/msageha/dropzone/internal/yaml"
)

// Manifest is the declarative, YAML-readable part of a processor. It is
// applied on top of a base processor that supplies the code hooks.
type Manifest struct {
	yamlutil.SchemaHeader `yaml:",inline"`

	ID              string           `yaml:"id"`
	Extends         string           `yaml:"extends,omitempty"`
	Name            string           `yaml:"name,omitempty"`
	Description     string           `yaml:"description,omitempty"`
	IssueURL        string           `yaml:"issue_url,omitempty"`
	Accept          *Accept          `yaml:"accept,omitempty"`
	Bulk            ConstantDecision `yaml:"bulk,omitempty"`
	ExpandDirectory ConstantDecision `yaml:"expand_directory,omitempty"`
	Dependencies    []string         `yaml:"dependencies,omitempty"`
	Options         model.Options    `yaml:"options,omitempty"`
}

// Base returns the id of the processor the manifest extends.
func (m Manifest) Base() string {
	if m.Extends != "" {
		return m.Extends
	}
	return m.ID
}

// Apply returns a copy of base with the manifest fields that are set
// overriding it. Declared options are merged over the base defaults.
func (m Manifest) Apply(base Processor) Processor {
	p := base
	p.ID = m.ID
	if m.Name != "" {
		p.Name = m.Name
	}
	if m.Description != "" {
		p.Description = m.Description
	}
	if m.IssueURL != "" {
		p.IssueURL = m.IssueURL
	}
	if m.Accept != nil {
		p.Accept = *m.Accept
	}
	if m.Bulk.Set {
		p.Bulk = Constant[BulkInput](m.Bulk.Value)
	}
	if m.ExpandDirectory.Set {
		p.ExpandDirectory = Constant[ExpandInput](m.ExpandDirectory.Value)
	}
	if len(m.Dependencies) > 0 {
		p.Dependencies = append([]string(nil), m.Dependencies...)
	}
	opts := base.Options.Clone()
	for k, v := range m.Options.Clone() {
		opts[k] = v
	}
	p.Options = opts
	return p
}

// ParseManifest decodes one manifest.
func ParseManifest(data []byte) (Manifest, error) {
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return Manifest{}, fmt.Errorf("yaml unmarshal: %w", err)
	}
	if m.ID == "" {
		return Manifest{}, fmt.Errorf("manifest id is required")
	}
	if m.FileType != "" || m.SchemaVersion != 0 {
		if err := yamlutil.ValidateSchemaHeaderFromBytes(data, yamlutil.FileTypeManifest); err != nil {
			return Manifest{}, fmt.Errorf("manifest %s: %w", m.ID, err)
		}
	}
	return m, nil
}

// LoadManifests reads every *.yaml and *.yml file of dir, sorted by name.
// A missing dir yields no manifests.
func LoadManifests(dir string) ([]Manifest, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read manifest dir: %w", err)
	}

	var names []string
	for _, e := range entries {
		ext := strings.ToLower(filepath.Ext(e.Name()))
		if e.IsDir() || (ext != ".yaml" && ext != ".yml") {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	manifests := make([]Manifest, 0, len(names))
	for _, name := range names {
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, fmt.Errorf("read manifest %s: %w", name, err)
		}
		m, err := ParseManifest(data)
		if err != nil {
			return nil, fmt.Errorf("parse manifest %s: %w", name, err)
		}
		manifests = append(manifests, m)
	}
	return manifests, nil
}
