package plugins

import (
	"context"
	"fmt"
	"strings"

	"github.com/msageha/dropzone/internal/log"
	"github.com/msageha/dropzone/internal/processor"
	"github.com/msageha/dropzone/internal/staging"
	"github.com/msageha/dropzone/internal/worker"
)

// Resolver resolves one processor dependency.
type Resolver interface {
	Resolve(ctx context.Context, name string) (string, error)
}

// InstallerConfig is the configuration of an Installer.
type InstallerConfig struct {
	Registry   *Registry
	Controller *staging.Controller
	Worker     worker.Queue
	Resolver   Resolver
	Logger     log.Logger
}

func (c *InstallerConfig) defaults() error {
	if c.Registry == nil {
		return fmt.Errorf("registry is required")
	}
	if c.Controller == nil {
		return fmt.Errorf("staging controller is required")
	}
	if c.Worker == nil {
		return fmt.Errorf("worker is required")
	}
	if c.Resolver == nil {
		return fmt.Errorf("resolver is required")
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "plugins.Installer"})
	return nil
}

// Report is the outcome of an install.
type Report struct {
	StagingID string
	Installed []string
	Failed    []string
	Errors    []string
}

// Installer installs processors inside a staging. The worker is paused
// while the processor set changes.
type Installer struct {
	cfg InstallerConfig
}

// NewInstaller returns an Installer.
func NewInstaller(cfg InstallerConfig) (*Installer, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &Installer{cfg: cfg}, nil
}

// Install resolves the dependencies of every processor and registers those
// whose dependencies resolved. It fails only when the staging cannot start.
func (i *Installer) Install(ctx context.Context, procs []processor.Processor) (Report, error) {
	ids := make([]string, 0, len(procs))
	for _, p := range procs {
		ids = append(ids, p.ID)
	}
	desc := staging.Descriptor{
		Title:  "Installing " + strings.Join(ids, ", "),
		Target: staging.TargetPlugins,
		Action: staging.ActionInstall,
		IDs:    ids,
	}
	s, err := i.cfg.Controller.Start(desc, func(s *staging.Staging) {
		_ = s.Stage("dependencies")
		_ = s.SetProgress(0, len(procs))
	})
	if err != nil {
		return Report{}, err
	}

	report := Report{StagingID: s.ID()}
	i.cfg.Worker.Pause()
	i.cfg.Logger.Infof("installing %d processors", len(procs))

	for n, p := range procs {
		ok := s.Substage(staging.Descriptor{
			Title:  "Dependencies of " + p.ID,
			Target: staging.TargetDependency,
			Action: staging.ActionInstall,
			IDs:    p.Dependencies,
		}, func(sub *staging.Substage) {
			defer func() { _ = sub.Done() }()
			i.resolveDependencies(ctx, sub, p)
		})

		if !ok {
			report.Failed = append(report.Failed, p.ID)
		} else if err := i.cfg.Registry.Register(p); err != nil {
			_ = s.Error(err)
			report.Failed = append(report.Failed, p.ID)
		} else {
			_ = s.Log("registered", p.ID)
			report.Installed = append(report.Installed, p.ID)
		}
		_ = s.SetProgress(n+1, len(procs))
	}

	i.cfg.Worker.Resume()
	i.cfg.Worker.RequestRefresh()
	report.Errors = s.Errors()
	if err := s.Done(); err != nil {
		i.cfg.Logger.Errorf("finish staging: %v", err)
	}
	return report, nil
}

func (i *Installer) resolveDependencies(ctx context.Context, sub *staging.Substage, p processor.Processor) {
	if len(p.Dependencies) == 0 {
		_ = sub.Log(p.ID, "has no dependencies")
		return
	}
	for n, dep := range p.Dependencies {
		_ = sub.Stage(dep)
		payload, err := i.cfg.Resolver.Resolve(ctx, dep)
		if err != nil {
			_ = sub.Error(fmt.Errorf("%s: %w", p.ID, err))
			continue
		}
		_ = sub.Log(dep, "->", payload)
		_ = sub.SetProgress(n+1, len(p.Dependencies))
	}
}
