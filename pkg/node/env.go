package node

import (
	"strings"

	"github.com/christophe-duc/fleetctl/pkg/console"
	"github.com/christophe-duc/fleetctl/pkg/fleeterr"
	"github.com/christophe-duc/fleetctl/pkg/hostcontainer"
	"github.com/christophe-duc/fleetctl/pkg/hostlog"
	fpty "github.com/christophe-duc/fleetctl/pkg/pty"
)

// Identifier is an isolation's tuple identifier, rendered as
// pre-formatted segments. The two underlying flavors (integer index for
// PerHostArray, host slug for PerHost/PerHostOne) are kept as strings
// since Go has no host-class identity distinct from slug.
type Identifier []string

// String renders the identifier's segments joined with "/".
func (id Identifier) String() string {
	return strings.Join(id, "/")
}

// Env is a handle binding a Spec instance to a Pty, logger, console and
// sandbox flag. Env is immutable after construction: Child and isolation
// expansion always return new Envs, never mutate the receiver, matching
// the "Env is effectively immutable" invariant.
type Env struct {
	spec    *Spec
	hosts   *hostcontainer.Container
	pty     fpty.Pty
	logger  hostlog.Sink
	console console.Console
	sandbox bool

	// maxAutoRetries bounds how many times Dispatch retries a failed
	// isolation on its own before prompting (if the pty is interactive)
	// or giving up (if it is not).
	maxAutoRetries int

	path       []string   // dotted node path, for display
	isolation  Identifier // empty until this Env is a single isolation
	isIsolated bool
}

// NewEnv builds the root Env for spec, with hosts as its top-level
// container (the root node always defines its own Hosts literally).
// maxAutoRetries is typically config.UserConfig.MaxAutoRetries.
func NewEnv(spec *Spec, hosts *hostcontainer.Container, p fpty.Pty, logger hostlog.Sink, c console.Console, sandbox bool, maxAutoRetries int) *Env {
	if logger == nil {
		logger = hostlog.Noop()
	}
	if c == nil {
		c = console.Noop{}
	}
	return &Env{spec: spec, hosts: hosts, pty: p, logger: logger, console: c, sandbox: sandbox, maxAutoRetries: maxAutoRetries}
}

// Hosts returns this Env's resolved container.
func (e *Env) Hosts() *hostcontainer.Container { return e.hosts }

// Pty returns this Env's pty.
func (e *Env) Pty() fpty.Pty { return e.pty }

// Logger returns this Env's log sink.
func (e *Env) Logger() hostlog.Sink { return e.logger }

// Console returns this Env's input oracle.
func (e *Env) Console() console.Console { return e.console }

// IsSandbox reports whether commands dispatched through this Env run in
// sandbox mode.
func (e *Env) IsSandbox() bool { return e.sandbox }

// Isolation returns this Env's isolation identifier and whether it is
// isolated at all (false for a node that is NORMAL, or PER_HOST but not
// yet expanded).
func (e *Env) Isolation() (Identifier, bool) { return e.isolation, e.isIsolated }

// Path returns the dotted path from root to this Env's node, for display
// and error attribution; an isolated Env's host slug is its last segment.
func (e *Env) Path() string { return strings.Join(e.path, ".") }

// Sandboxed returns a copy of e with IsSandbox forced to true, for a
// dry-run invocation, without mutating e.
func (e *Env) Sandboxed() *Env {
	clone := *e
	clone.sandbox = true
	return &clone
}

// Child resolves the named child node into a new Env, applying its
// RoleMapping (or literal Hosts) against the parent's container. Env
// forwards attribute access to the node by auto-wrapping child nodes
// into child Envs.
func (e *Env) Child(name string) (*Env, error) {
	var childSpec *Spec
	for _, c := range e.spec.children {
		if c.name == name {
			childSpec = c.spec
			break
		}
	}
	if childSpec == nil {
		return nil, fleeterr.NewConstructionError("no such child node: " + name)
	}

	hosts := childSpec.Hosts
	if hosts == nil {
		hosts = childSpec.RoleMapping.Apply(e.hosts)
	}

	if err := childSpec.Validate(hosts); err != nil {
		return nil, err
	}

	child := &Env{
		spec:           childSpec,
		hosts:          hosts,
		pty:            e.pty,
		logger:         e.logger,
		console:        e.console,
		sandbox:        e.sandbox,
		maxAutoRetries: e.maxAutoRetries,
		path:           append(append([]string(nil), e.path...), name),
	}
	return child, nil
}

// action looks up name among this Env's node's registered actions.
func (e *Env) action(name string) (actionEntry, error) {
	entry, ok := e.spec.actions[name]
	if !ok {
		return actionEntry{}, fleeterr.NewConstructionError("no such action: " + name)
	}
	return entry, nil
}
