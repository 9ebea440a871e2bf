package processor

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

type deciderKind int

const (
	deciderNever deciderKind = iota
	deciderAlways
	deciderPredicate
)

// Decider is a processor hook answering a yes/no question. It is either a
// constant (Never, Always) or a Predicate run against the input. The zero
// value is Never.
type Decider[A any] struct {
	kind deciderKind
	fn   func(A) (bool, error)
}

// Never returns a decider that always answers false.
func Never[A any]() Decider[A] { return Decider[A]{kind: deciderNever} }

// Always returns a decider that always answers true.
func Always[A any]() Decider[A] { return Decider[A]{kind: deciderAlways} }

// Predicate returns a decider delegating to fn.
func Predicate[A any](fn func(A) (bool, error)) Decider[A] {
	if fn == nil {
		return Never[A]()
	}
	return Decider[A]{kind: deciderPredicate, fn: fn}
}

// Constant returns Always when v is true, Never otherwise.
func Constant[A any](v bool) Decider[A] {
	if v {
		return Always[A]()
	}
	return Never[A]()
}

// IsPredicate reports whether the decider runs code.
func (d Decider[A]) IsPredicate() bool { return d.kind == deciderPredicate }

// Decide evaluates the decider. A panicking predicate is reported as an error.
func (d Decider[A]) Decide(in A) (ok bool, err error) {
	switch d.kind {
	case deciderAlways:
		return true, nil
	case deciderPredicate:
		defer func() {
			if r := recover(); r != nil {
				ok, err = false, fmt.Errorf("predicate panicked: %v", r)
			}
		}()
		return d.fn(in)
	default:
		return false, nil
	}
}

func (d Decider[A]) String() string {
	switch d.kind {
	case deciderAlways:
		return "always"
	case deciderPredicate:
		return "predicate"
	default:
		return "never"
	}
}

// ConstantDecision is the YAML form of a constant decider: "always", "never",
// true or false.
type ConstantDecision struct {
	Set   bool
	Value bool
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (c *ConstantDecision) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("decision must be a scalar, line %d", node.Line)
	}
	s := node.Value
	switch s {
	case "always", "true", "yes":
		*c = ConstantDecision{Set: true, Value: true}
	case "never", "false", "no":
		*c = ConstantDecision{Set: true, Value: false}
	default:
		return fmt.Errorf("decision must be always or never, got %q", s)
	}
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (c ConstantDecision) MarshalYAML() (any, error) {
	if !c.Set {
		return nil, nil
	}
	if c.Value {
		return "always", nil
	}
	return "never", nil
}
