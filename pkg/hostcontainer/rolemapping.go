package hostcontainer

import "github.com/christophe-duc/fleetctl/pkg/host"

// AllHosts is the distinguished RoleMapping value meaning "every host in
// the parent, regardless of role,".
const AllHosts = "*"

// RoleMapping maps a child role name to the tuple of parent role names
// whose hosts should be unioned into it. A value of []string{AllHosts}
// means every parent role.
type RoleMapping map[string][]string

// DefaultRoleMapping means "reuse the parent container verbatim": every
// parent role maps to itself.
var DefaultRoleMapping RoleMapping = nil

// Apply projects parent's hosts into a new Container per the mapping,
// implementing this: for each child role, union the parent's
// hosts from the listed parent roles (or from every parent role for
// AllHosts). A nil RoleMapping (DefaultRoleMapping) passes parent through
// unchanged.
func (rm RoleMapping) Apply(parent *Container) *Container {
	if rm == nil {
		return parent
	}

	child := New()
	for childRole, parentRoles := range rm {
		if len(parentRoles) == 1 && parentRoles[0] == AllHosts {
			for _, h := range parent.allHostsInOrder() {
				child.add(childRole, h)
			}
			continue
		}
		for _, pr := range parentRoles {
			for _, h := range parent.Hosts(pr) {
				child.add(childRole, h)
			}
		}
	}
	return child
}

// allHostsInOrder returns every host across every role, in role/order
// preserving order — the parent-role union used by RoleMapping's AllHosts
// sentinel.
func (c *Container) allHostsInOrder() []host.Host {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var out []host.Host
	for _, rh := range c.roles {
		for _, m := range rh.hosts {
			out = append(out, m.h)
		}
	}
	return out
}
