// Package hostcontainer implements the role->hosts mapping, filtering,
// and fan-out operations used to scope an action to a subset of hosts.
package hostcontainer

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/christophe-duc/fleetctl/pkg/fleeterr"
	"github.com/christophe-duc/fleetctl/pkg/host"
	"github.com/christophe-duc/fleetctl/pkg/hostcontext"
	fpty "github.com/christophe-duc/fleetctl/pkg/pty"
)

// DefaultRole is the distinguished role name every per-host node's single
// member is stored under.
const DefaultRole = "host"

// roleHosts is one role's ordered member list, each paired with its own
// scoped command-shaping context.
type roleHosts struct {
	role  string
	hosts []member
}

type member struct {
	h   host.Host
	ctx *hostcontext.Context
}

// Container is an ordered role→hosts mapping. It is immutable after
// construction: Filter and Combine return new Containers.
type Container struct {
	mu    sync.RWMutex
	roles []roleHosts // insertion-ordered, for deterministic iteration
}

// New builds an empty Container.
func New() *Container {
	return &Container{}
}

// Add appends h under role, creating the role's slot in first-seen order
// if it doesn't exist yet. It fails if h's slug already belongs to some
// other host already in c, regardless of role — slugs are unique across
// the whole container, not just within a role.
func (c *Container) Add(role string, h host.Host) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.add(role, h)
	if err := c.validateUniqueSlugs(); err != nil {
		c.removeLast(role)
		return err
	}
	return nil
}

// removeLast undoes the most recent add to role, used to roll back a
// slug collision caught by Add.
func (c *Container) removeLast(role string) {
	for i := range c.roles {
		if c.roles[i].role == role {
			c.roles[i].hosts = c.roles[i].hosts[:len(c.roles[i].hosts)-1]
			return
		}
	}
}

func (c *Container) add(role string, h host.Host) {
	for i := range c.roles {
		if c.roles[i].role == role {
			c.roles[i].hosts = append(c.roles[i].hosts, member{h: h, ctx: hostcontext.New()})
			return
		}
	}
	c.roles = append(c.roles, roleHosts{role: role, hosts: []member{{h: h, ctx: hostcontext.New()}}})
}

// Roles returns the role names in insertion order.
func (c *Container) Roles() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	names := make([]string, len(c.roles))
	for i, r := range c.roles {
		names[i] = r.role
	}
	return names
}

// validateUniqueSlugs enforces the HostsContainer invariant that a slug
// names exactly one host across the whole container. The same host is
// allowed to appear under more than one role (Len counts it once per
// role, by design); what's forbidden is two distinct hosts sharing a
// slug, which would make GetFromSlug and isolation identifiers ambiguous.
func (c *Container) validateUniqueSlugs() error {
	seen := make(map[string]host.Host)
	for _, r := range c.roles {
		for _, m := range r.hosts {
			slug := m.h.Slug()
			if existing, ok := seen[slug]; ok {
				if existing != m.h {
					return fleeterr.NewConstructionError("duplicate host slug across roles: " + slug)
				}
				continue
			}
			seen[slug] = m.h
		}
	}
	return nil
}

// Filter returns a new Container restricted to the named roles. "*" means
// every role. Any entry in roles that does not name an existing role in c
// is interpreted as a bare host-class tag and is ignored here — callers
// that want to add an ad hoc single host under the default role should use
// Add directly.
func (c *Container) Filter(roles ...string) *Container {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := New()
	wantAll := len(roles) == 1 && roles[0] == "*"
	wanted := make(map[string]bool, len(roles))
	for _, r := range roles {
		wanted[r] = true
	}

	for _, rh := range c.roles {
		if !wantAll && !wanted[rh.role] {
			continue
		}
		out.roles = append(out.roles, roleHosts{role: rh.role, hosts: append([]member{}, rh.hosts...)})
	}
	return out
}

// Get behaves like Filter but demands the result contains exactly one
// host.
func (c *Container) Get(roles ...string) (*Container, error) {
	filtered := c.Filter(roles...)
	if filtered.Len() != 1 {
		return nil, fleeterr.NewConstructionError(fmt.Sprintf("Get(%s) expected exactly one host, found %d", strings.Join(roles, ","), filtered.Len()))
	}
	return filtered, nil
}

// GetFromSlug does an O(n) scan for the host with the given slug.
func (c *Container) GetFromSlug(slug string) (host.Host, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, rh := range c.roles {
		for _, m := range rh.hosts {
			if m.h.Slug() == slug {
				return m.h, nil
			}
		}
	}
	return nil, fleeterr.NewConstructionError("no host with slug: " + slug)
}

// Len returns the total number of (role, host) memberships across the
// container — a host present under two roles counts twice, matching the
// role/order-preserving iteration contract every other accessor follows.
func (c *Container) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	n := 0
	for _, rh := range c.roles {
		n += len(rh.hosts)
	}
	return n
}

// Hosts returns the underlying hosts in role/order-preserving order,
// without their per-role context, for callers that only need identity
// (e.g. the isolation iterator).
func (c *Container) Hosts(role string) []host.Host {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, rh := range c.roles {
		if rh.role == role {
			out := make([]host.Host, len(rh.hosts))
			for i, m := range rh.hosts {
				out[i] = m.h
			}
			return out
		}
	}
	return nil
}

// Single returns the one (host, scoped context) pair held by a singular
// container produced by Get, for direct single-host calls.
func (c *Container) Single() (host.Host, *hostcontext.Context, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.lenLocked() != 1 {
		return nil, nil, fleeterr.NewConstructionError("Single() called on a non-singular container")
	}
	for _, rh := range c.roles {
		if len(rh.hosts) == 1 {
			return rh.hosts[0].h, rh.hosts[0].ctx, nil
		}
	}
	return nil, nil, fleeterr.NewConstructionError("Single() called on a non-singular container")
}

func (c *Container) lenLocked() int {
	n := 0
	for _, rh := range c.roles {
		n += len(rh.hosts)
	}
	return n
}

// Combine merges other's roles into a fresh Container, appending to any
// roles c and other share. It fails if the union introduces a duplicate
// slug across the two containers.
func (c *Container) Combine(other *Container) (*Container, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	other.mu.RLock()
	defer other.mu.RUnlock()

	out := New()
	for _, rh := range c.roles {
		out.roles = append(out.roles, roleHosts{role: rh.role, hosts: append([]member{}, rh.hosts...)})
	}
	for _, rh := range other.roles {
		found := false
		for i := range out.roles {
			if out.roles[i].role == rh.role {
				out.roles[i].hosts = append(out.roles[i].hosts, rh.hosts...)
				found = true
				break
			}
		}
		if !found {
			out.roles = append(out.roles, roleHosts{role: rh.role, hosts: append([]member{}, rh.hosts...)})
		}
	}
	if err := out.validateUniqueSlugs(); err != nil {
		return nil, err
	}
	return out, nil
}

// RunOne runs command against the container's sole host, failing if the
// container does not contain exactly one host.
func (c *Container) RunOne(ctx context.Context, p fpty.Pty, command string, opts host.RunOptions) (string, error) {
	h, hc, err := c.Single()
	if err != nil {
		return "", err
	}
	return h.Run(ctx, p, hc, command, opts)
}

// Run fans command out to every host in iteration order. If more than one
// host is present and p advertises auxiliary ptys, hosts run in parallel;
// otherwise the call runs sequentially in p. Results are
// always returned in container iteration order.
func (c *Container) Run(ctx context.Context, p fpty.Pty, command string, opts host.RunOptions) ([]string, error) {
	return c.runAcross(ctx, p, func(ctx context.Context, p fpty.Pty, h host.Host, hc *hostcontext.Context) (string, error) {
		return h.Run(ctx, p, hc, command, opts)
	})
}

// Sudo is Run with UseSudo forced on.
func (c *Container) Sudo(ctx context.Context, p fpty.Pty, command string, opts host.RunOptions) ([]string, error) {
	opts.UseSudo = true
	return c.Run(ctx, p, command, opts)
}

func (c *Container) members() []member {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var all []member
	for _, rh := range c.roles {
		all = append(all, rh.hosts...)
	}
	return all
}

// runAcross implements the sequential-vs-auxiliary-pty fan-out rule used
// by Run and Sudo.
func (c *Container) runAcross(ctx context.Context, p fpty.Pty, fn func(context.Context, fpty.Pty, host.Host, *hostcontext.Context) (string, error)) ([]string, error) {
	all := c.members()
	if len(all) == 0 {
		return nil, nil
	}
	if len(all) == 1 || !p.AuxiliaryPtysAvailable() {
		out := make([]string, len(all))
		for i, m := range all {
			result, err := fn(ctx, p, m.h, m.ctx)
			if err != nil {
				return nil, err
			}
			out[i] = result
		}
		return out, nil
	}

	callbacks := make([]func(fpty.Pty) (interface{}, error), len(all))
	for i, m := range all {
		m := m
		callbacks[i] = func(auxPty fpty.Pty) (interface{}, error) {
			return fn(ctx, auxPty, m.h, m.ctx)
		}
	}
	fork := p.RunInAuxiliaryPtys(callbacks)
	if err := fork.Err(); err != nil {
		return nil, err
	}
	out := make([]string, len(fork.Result))
	for i, r := range fork.Result {
		if s, ok := r.(string); ok {
			out[i] = s
		}
	}
	return out, nil
}

// Prefix pushes cmd onto every member's context, returning a Pop that pops
// it back off every member, in reverse push order, including on the error path (the
// caller is expected to `defer` the returned Pop).
func (c *Container) Prefix(cmd string) func() {
	return c.pushAll(func(hc *hostcontext.Context) func() { return hc.Prefix(cmd) })
}

// Cd pushes dir onto every member's path stack.
func (c *Container) Cd(dir string) func() {
	return c.pushAll(func(hc *hostcontext.Context) func() { return hc.Cd(dir) })
}

// Env pushes (name, value) onto every member's env stack.
func (c *Container) Env(name, value string, escape bool) func() {
	return c.pushAll(func(hc *hostcontext.Context) func() { return hc.Env(name, value, escape) })
}

func (c *Container) pushAll(push func(*hostcontext.Context) func()) func() {
	all := c.members()
	pops := make([]func(), len(all))
	for i, m := range all {
		pops[i] = push(m.ctx)
	}
	return func() {
		for i := len(pops) - 1; i >= 0; i-- {
			pops[i]()
		}
	}
}

// HasCommand reports whether cmd resolves on every member host.
func (c *Container) HasCommand(ctx context.Context, p fpty.Pty, cmd string) (bool, error) {
	for _, m := range c.members() {
		ok, err := m.h.HasCommand(ctx, p, m.ctx, cmd)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

// Exists reports whether remotePath exists on every member host.
func (c *Container) Exists(ctx context.Context, p fpty.Pty, remotePath string) (bool, error) {
	for _, m := range c.members() {
		ok, err := m.h.Exists(ctx, p, m.ctx, remotePath)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

// Hostname runs `hostname` after `cd /` on the container's sole host.
func (c *Container) Hostname(ctx context.Context, p fpty.Pty) (string, error) {
	h, hc, err := c.Single()
	if err != nil {
		return "", err
	}
	pop := hc.Cd("/")
	defer pop()
	out, err := h.Run(ctx, p, hc, "hostname", host.RunOptions{})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

// Is64Bit parses `uname -m` on the container's sole host.
func (c *Container) Is64Bit(ctx context.Context, p fpty.Pty) (bool, error) {
	h, hc, err := c.Single()
	if err != nil {
		return false, err
	}
	out, err := h.Run(ctx, p, hc, "uname -m", host.RunOptions{})
	if err != nil {
		return false, err
	}
	arch := strings.TrimSpace(out)
	return arch == "x86_64" || arch == "amd64" || strings.HasSuffix(arch, "64"), nil
}

