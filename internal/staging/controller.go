package staging

import (
	"fmt"
	"strings"
	"sync"

	"github.com/msageha/dropzone/internal/events"
	"github.com/msageha/dropzone/internal/log"
)

// Presenter shows a progress surface bound to a staging. Present must not
// block; the surface follows the staging through Watch and Subscribe.
type Presenter interface {
	Present(s *Staging)
}

// ControllerConfig is the configuration of the Controller.
type ControllerConfig struct {
	// Notifier receives the completion summary of every staging.
	Notifier events.Publisher
	// Presenter is asked to show stagings not flagged SkipModal.
	Presenter    Presenter
	ErrorDisplay ErrorDisplay
	Logger       log.Logger
}

func (c *ControllerConfig) defaults() error {
	switch c.ErrorDisplay {
	case "":
		c.ErrorDisplay = ErrorDisplayCollapse
	case ErrorDisplayExpand, ErrorDisplayCollapse:
	default:
		return fmt.Errorf("unknown error display %q", c.ErrorDisplay)
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "staging.Controller"})
	return nil
}

// Controller owns the process-wide current staging slot.
type Controller struct {
	notifier     events.Publisher
	presenter    Presenter
	errorDisplay ErrorDisplay
	logger       log.Logger

	mu      sync.Mutex
	current *Staging
}

// NewController returns a controller with no active staging.
func NewController(cfg ControllerConfig) (*Controller, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &Controller{
		notifier:     cfg.Notifier,
		presenter:    cfg.Presenter,
		errorDisplay: cfg.ErrorDisplay,
		logger:       cfg.Logger,
	}, nil
}

// Start creates the active staging for desc. It fails with a
// *ConcurrentStagingError while another staging is active. onCreate, when
// set, runs before Start returns so the caller can seed stage and progress.
func (c *Controller) Start(desc Descriptor, onCreate func(*Staging)) (*Staging, error) {
	c.mu.Lock()
	if c.current != nil && !c.current.IsDone() {
		active := c.current.Descriptor()
		c.mu.Unlock()
		return nil, &ConcurrentStagingError{Active: active, Requested: desc}
	}
	s := newStaging(desc, c.errorDisplay)
	c.current = s
	c.mu.Unlock()

	c.logger.Debugf("staging %s started: %s", s.ID(), desc)

	s.Subscribe(func(s *Staging) {
		c.publishSummary(s)
		c.release(s)
	})
	if onCreate != nil {
		onCreate(s)
	}
	if !desc.SkipModal && c.presenter != nil {
		c.presenter.Present(s)
	}
	return s, nil
}

// IsStaging reports whether a staging is active.
func (c *Controller) IsStaging() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current != nil && !c.current.IsDone()
}

// Current returns the active staging, if any.
func (c *Controller) Current() (*Staging, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == nil || c.current.IsDone() {
		return nil, false
	}
	return c.current, true
}

// MatchStaging returns the first descriptor of the active staging stack, root
// first, that satisfies m.
func (c *Controller) MatchStaging(m Match) (Descriptor, bool) {
	s, ok := c.Current()
	if !ok {
		return Descriptor{}, false
	}
	for _, d := range s.Stack() {
		if m.matches(d) {
			return d, true
		}
	}
	return Descriptor{}, false
}

func (c *Controller) release(s *Staging) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == s {
		c.current = nil
	}
}

func (c *Controller) publishSummary(s *Staging) {
	snap := s.Snapshot()
	desc := snap.Stack[0]

	variant := events.VariantSuccess
	message := "Completed successfully."
	if n := len(snap.Errors); n > 0 {
		variant = events.VariantDanger
		message = fmt.Sprintf("Finished with %d error(s).", n)
	}
	c.logger.Infof("staging %s finished: %s (%d errors)", snap.ID, desc, len(snap.Errors))

	if c.notifier == nil {
		return
	}
	c.notifier.Publish(events.Event{
		Type:    events.EventStagingDone,
		Variant: variant,
		Title:   desc.Title,
		Message: message,
		Details: strings.Join(snap.Log, "\n"),
		Actions: s.Actions(),
		Data: map[string]any{
			"staging_id": snap.ID,
			"target":     string(desc.Target),
			"action":     string(desc.Action),
			"ids":        desc.IDs,
			"errors":     len(snap.Errors),
		},
	})
}
