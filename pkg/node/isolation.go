package node

import (
	"fmt"

	"github.com/christophe-duc/fleetctl/pkg/hostcontainer"
)

// iterIsolations implements the isolation expansion: given e,
// produce an ordered sequence of Envs, one per host in e's `host` role,
// each pinned to exactly that host.
//
// - NORMAL: the isolation is the parent's isolation unchanged (this
//   function is only called on PER_HOST* nodes; NORMAL nodes never
//   isolate).
// - PER_HOST_ARRAY / PER_HOST_ONE: for each host in the `host` role in
//   declaration order, produce one isolated child whose Hosts are the
//   parent's roles with `host` overridden to exactly that host. The
//   identifier is parent_id + (i,) for PER_HOST_ARRAY, or (slug,) for
//   PER_HOST_ONE.
// - PER_HOST without a parent isolation: same, but the parent isolation
//   tuple is empty.
func iterIsolations(e *Env) ([]*Env, error) {
	hostRole := e.hosts.Hosts(hostcontainer.DefaultRole)
	if len(hostRole) == 0 {
		return nil, nil
	}

	isolations := make([]*Env, 0, len(hostRole))
	for i, h := range hostRole {
		pinned := hostcontainer.New()
		for _, role := range e.hosts.Roles() {
			if role == hostcontainer.DefaultRole {
				// e.hosts already enforced slug uniqueness; a host it
				// already held can't collide when re-pinned here.
				_ = pinned.Add(hostcontainer.DefaultRole, h)
				continue
			}
			for _, other := range e.hosts.Hosts(role) {
				_ = pinned.Add(role, other)
			}
		}

		var id Identifier
		switch e.spec.Kind {
		case PerHostArray:
			id = append(append(Identifier(nil), e.isolation...), fmt.Sprintf("%d", i))
		default: // PerHost, PerHostOne
			id = Identifier{h.Slug()}
		}

		clone := &Env{
			spec:           e.spec,
			hosts:          pinned,
			pty:            e.pty,
			logger:         e.logger,
			console:        e.console,
			sandbox:        e.sandbox,
			maxAutoRetries: e.maxAutoRetries,
			path:           append(append([]string(nil), e.path...), h.Slug()),
			isolation:      id,
			isIsolated:     true,
		}
		isolations = append(isolations, clone)
	}
	return isolations, nil
}
