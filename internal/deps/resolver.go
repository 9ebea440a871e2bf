// Package deps resolves the external dependencies processors declare into
// payloads (executable paths) handed to their preparators.
package deps

import (
	"context"
	"fmt"
	"os/exec"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/msageha/dropzone/internal/log"
)

// MissingError lists the dependencies that could not be resolved.
type MissingError struct {
	Names []string
}

func (e *MissingError) Error() string {
	return "missing dependencies: " + strings.Join(e.Names, ", ")
}

// LookupFunc finds the payload of a dependency by name.
type LookupFunc func(ctx context.Context, name string) (string, error)

// ResolverConfig is the configuration of a Resolver.
type ResolverConfig struct {
	// Overrides pin a dependency to a payload without lookup.
	Overrides map[string]string
	Lookup    LookupFunc
	CacheSize int
	CacheTTL  time.Duration
	Logger    log.Logger
}

func (c *ResolverConfig) defaults() error {
	if c.Lookup == nil {
		c.Lookup = lookPath
	}
	if c.CacheSize <= 0 {
		c.CacheSize = 256
	}
	if c.CacheTTL <= 0 {
		c.CacheTTL = 5 * time.Minute
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "deps.Resolver"})
	return nil
}

// Resolver resolves dependencies, collapsing concurrent lookups of the same
// name and caching successes.
type Resolver struct {
	overrides map[string]string
	lookup    LookupFunc
	cache     *cache
	group     singleflight.Group
	logger    log.Logger
}

// NewResolver returns a Resolver.
func NewResolver(cfg ResolverConfig) (*Resolver, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	overrides := make(map[string]string, len(cfg.Overrides))
	for k, v := range cfg.Overrides {
		overrides[k] = v
	}
	return &Resolver{
		overrides: overrides,
		lookup:    cfg.Lookup,
		cache:     newCache(cfg.CacheSize, cfg.CacheTTL),
		logger:    cfg.Logger,
	}, nil
}

// Resolve resolves one dependency.
func (r *Resolver) Resolve(ctx context.Context, name string) (string, error) {
	if v, ok := r.overrides[name]; ok {
		return v, nil
	}
	if v, ok := r.cache.get(name); ok {
		return v, nil
	}

	v, err, shared := r.group.Do(name, func() (any, error) {
		payload, err := r.lookup(ctx, name)
		if err != nil {
			return "", err
		}
		r.cache.set(name, payload)
		return payload, nil
	})
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", name, err)
	}
	r.logger.Debugf("resolved %s to %s (shared=%t)", name, v, shared)
	return v.(string), nil
}

// ResolveAll resolves every name. Unresolvable names are reported together
// in a *MissingError; the resolved ones are still returned.
func (r *Resolver) ResolveAll(ctx context.Context, names []string) (map[string]string, error) {
	out := make(map[string]string, len(names))
	var missing []string
	for _, name := range names {
		v, err := r.Resolve(ctx, name)
		if err != nil {
			r.logger.Warningf("dependency %s: %v", name, err)
			missing = append(missing, name)
			continue
		}
		out[name] = v
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return out, &MissingError{Names: missing}
	}
	return out, nil
}

// Forget drops every cached resolution.
func (r *Resolver) Forget() {
	r.cache.clear()
}

func lookPath(ctx context.Context, name string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return exec.LookPath(name)
}
