// Package plugins keeps the set of available processors and installs new
// ones through a tracked staging.
package plugins

import (
	"fmt"
	"sort"
	"sync"

	"github.com/msageha/dropzone/internal/processor"
)

// Registry is the set of installed processors, keyed by id.
type Registry struct {
	mu    sync.RWMutex
	procs map[string]processor.Processor
}

// NewRegistry returns a registry holding procs.
func NewRegistry(procs ...processor.Processor) (*Registry, error) {
	r := &Registry{procs: make(map[string]processor.Processor)}
	for _, p := range procs {
		if err := r.Register(p); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register validates p and adds it, replacing a processor with the same id.
func (r *Registry) Register(p processor.Processor) error {
	if err := p.Validate(); err != nil {
		return fmt.Errorf("register: %w", err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.procs[p.ID] = p
	return nil
}

// Remove deletes a processor. It reports whether it was present.
func (r *Registry) Remove(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.procs[id]
	delete(r.procs, id)
	return ok
}

// Get returns the processor with id.
func (r *Registry) Get(id string) (processor.Processor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.procs[id]
	return p, ok
}

// List returns every processor sorted by id.
func (r *Registry) List() []processor.Processor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]processor.Processor, 0, len(r.procs))
	for _, p := range r.procs {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// FromManifests builds the processors declared by manifests on top of the
// registered ones. A manifest may extend a processor built by an earlier
// manifest.
func (r *Registry) FromManifests(manifests []processor.Manifest) ([]processor.Processor, error) {
	built := make(map[string]processor.Processor, len(manifests))
	out := make([]processor.Processor, 0, len(manifests))
	for _, m := range manifests {
		base, ok := built[m.Base()]
		if !ok {
			base, ok = r.Get(m.Base())
		}
		if !ok {
			return nil, fmt.Errorf("manifest %s: unknown base processor %q", m.ID, m.Base())
		}
		p := m.Apply(base)
		if err := p.Validate(); err != nil {
			return nil, fmt.Errorf("manifest %s: %w", m.ID, err)
		}
		built[p.ID] = p
		out = append(out, p)
	}
	return out, nil
}
