// Package staging tracks long, possibly nested, user-visible background
// processes (processor installs, dependency setup, updates).
//
// A Controller guarantees that at most one Staging is active per process.
// Nested work is expressed as substages of the active Staging, which share
// its descriptor stack, log and error list.
package staging

import (
	"fmt"
	"strings"

	"github.com/samber/lo"
)

// Target is the kind of thing a staging works on.
type Target string

const (
	TargetPlugins     Target = "plugins"
	TargetDependency  Target = "dependency"
	TargetNode        Target = "node"
	TargetApp         Target = "app"
	TargetDevelopment Target = "development"
)

// Action is what a staging does to its target.
type Action string

const (
	ActionInstall   Action = "install"
	ActionUninstall Action = "uninstall"
	ActionUpdate    Action = "update"
	ActionSetup     Action = "setup"
	ActionLoad      Action = "load"
	ActionReload    Action = "reload"
	ActionCheck     Action = "check"
)

// Descriptor identifies what kind of process is running. It is used for
// matching, never for execution.
type Descriptor struct {
	Title     string
	Target    Target
	Action    Action
	IDs       []string
	SkipModal bool
}

// HasID reports whether id is one of the descriptor ids.
func (d Descriptor) HasID(id string) bool {
	return lo.Contains(d.IDs, id)
}

func (d Descriptor) String() string {
	s := fmt.Sprintf("%s %s", d.Target, d.Action)
	if len(d.IDs) > 0 {
		s += " [" + strings.Join(d.IDs, ", ") + "]"
	}
	if d.Title != "" {
		s = fmt.Sprintf("%q (%s)", d.Title, s)
	}
	return s
}

// Match selects descriptors on the active staging stack. Zero fields match
// anything.
type Match struct {
	Target  Target
	Actions []Action
	Filter  func(Descriptor) bool
}

func (m Match) matches(d Descriptor) bool {
	if m.Target != "" && d.Target != m.Target {
		return false
	}
	if len(m.Actions) > 0 && !lo.Contains(m.Actions, d.Action) {
		return false
	}
	if m.Filter != nil && !m.Filter(d) {
		return false
	}
	return true
}

// WithID is a Match filter selecting descriptors that carry id.
func WithID(id string) func(Descriptor) bool {
	return func(d Descriptor) bool { return d.HasID(id) }
}
