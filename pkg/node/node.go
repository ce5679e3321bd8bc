// Package node implements the deployment node tree, its Env binding, the
// isolation iterator, and the action dispatcher.
package node

import (
	"github.com/christophe-duc/fleetctl/pkg/fleeterr"
	"github.com/christophe-duc/fleetctl/pkg/hostcontainer"
)

// Kind is a node's isolation shape.
type Kind int

const (
	Normal Kind = iota
	PerHost
	PerHostArray
	PerHostOne
)

func (k Kind) String() string {
	switch k {
	case Normal:
		return "NORMAL"
	case PerHost:
		return "PER_HOST"
	case PerHostArray:
		return "PER_HOST_ARRAY"
	case PerHostOne:
		return "PER_HOST_ONE"
	default:
		return "UNKNOWN"
	}
}

// ActionFunc is a node action: it takes the Env it was dispatched through
// and returns a value plus an error.
type ActionFunc func(env *Env) (interface{}, error)

// ActionOptions carries the two flags that shape how an action dispatches.
type ActionOptions struct {
	// DontIsolateYet suppresses automatic isolation expansion for this
	// action even when the node is PER_HOST and not yet isolated.
	DontIsolateYet bool
	// IsolateOneOnly makes the dispatcher prompt the operator to pick a
	// single isolation instead of fanning out to all of them.
	IsolateOneOnly bool
}

type actionEntry struct {
	fn   ActionFunc
	opts ActionOptions
}

type childEntry struct {
	name string
	spec *Spec
}

// Spec is the plain-value descriptor tree for a deployment node: built
// with constructors and a builder, with RoleMapping as a field rather
// than a decorator.
type Spec struct {
	Kind Kind

	// Hosts is this node's literal role->hosts map, used when the node
	// defines its own fleet rather than inheriting the parent's via a
	// RoleMapping. Nil means "see RoleMapping" (or, if that is also nil,
	// "inherit the parent's container verbatim").
	Hosts *hostcontainer.Container

	// RoleMapping projects the parent's container into this node's roles.
	// Nil means hostcontainer.DefaultRoleMapping (passthrough).
	RoleMapping hostcontainer.RoleMapping

	name     string
	actions  map[string]actionEntry
	children []childEntry
}

// NewSpec builds an empty Spec of the given kind.
func NewSpec(kind Kind) *Spec {
	return &Spec{Kind: kind, actions: make(map[string]actionEntry)}
}

// Action registers fn under name.
func (s *Spec) Action(name string, fn ActionFunc) *Spec {
	return s.ActionWithOptions(name, fn, ActionOptions{})
}

// ActionWithOptions is Action plus the dont_isolate_yet / isolate_one_only
// flags controlling how dispatch expands and fans out this action.
func (s *Spec) ActionWithOptions(name string, fn ActionFunc, opts ActionOptions) *Spec {
	s.actions[name] = actionEntry{fn: fn, opts: opts}
	return s
}

// Child registers a nested node definition under name, enforcing the
// allowed parent/child kind pairings at registration time.
func (s *Spec) Child(name string, child *Spec) *Spec {
	if err := validateNesting(s.Kind, child.Kind); err != nil {
		panic(err)
	}
	child.name = name
	s.children = append(s.children, childEntry{name: name, spec: child})
	return s
}

// validateNesting enforces the parent-kind -> child-kind table.
func validateNesting(parent, child Kind) error {
	switch parent {
	case Normal:
		return nil // NORMAL->NORMAL optional, NORMAL->PER_HOST_ARRAY/ONE required (nothing to check structurally)
	case PerHost, PerHostArray, PerHostOne:
		if child == PerHostArray || child == PerHostOne {
			return fleeterr.NewConstructionError("a PER_HOST* node cannot directly nest a PER_HOST_ARRAY/PER_HOST_ONE child; isolate first")
		}
		return nil
	default:
		return fleeterr.NewConstructionError("unknown parent node kind")
	}
}

// Validate walks the tree checking the remaining construction
// invariants that need the resolved container (PER_HOST_ONE cardinality).
// It's intentionally separate from Child's registration-time check since
// the container isn't known until RoleMapping is applied against a
// concrete parent.
func (s *Spec) Validate(resolvedHosts *hostcontainer.Container) error {
	if s.Kind == PerHostOne {
		if resolvedHosts.Filter(hostcontainer.DefaultRole).Len() != 1 {
			return fleeterr.NewConstructionError("PER_HOST_ONE node's host role must contain exactly one host")
		}
	}
	return nil
}
