package node

import (
	"context"
	"testing"

	"github.com/christophe-duc/fleetctl/pkg/console"
	"github.com/christophe-duc/fleetctl/pkg/fleeterr"
	"github.com/christophe-duc/fleetctl/pkg/host"
	"github.com/christophe-duc/fleetctl/pkg/hostcontainer"
	"github.com/christophe-duc/fleetctl/pkg/hostcontext"
	fpty "github.com/christophe-duc/fleetctl/pkg/pty"
	"github.com/stretchr/testify/assert"
)

type stubHost struct {
	slug string
}

func (s *stubHost) Slug() string                                  { return s.slug }
func (s *stubHost) StartPath(ctx context.Context) (string, error) { return "/home/" + s.slug, nil }
func (s *stubHost) Run(ctx context.Context, p fpty.Pty, hc *hostcontext.Context, command string, opts host.RunOptions) (string, error) {
	return s.slug + ":" + command, nil
}
func (s *stubHost) Open(ctx context.Context, hc *hostcontext.Context, remotePath, mode string, opts host.FileOptions) (host.File, error) {
	return nil, nil
}
func (s *stubHost) Stat(ctx context.Context, hc *hostcontext.Context, remotePath string) (host.FileInfo, error) {
	return host.FileInfo{}, nil
}
func (s *stubHost) Listdir(ctx context.Context, hc *hostcontext.Context, remotePath string) ([]string, error) {
	return nil, nil
}
func (s *stubHost) Exists(ctx context.Context, p fpty.Pty, hc *hostcontext.Context, remotePath string) (bool, error) {
	return true, nil
}
func (s *stubHost) HasCommand(ctx context.Context, p fpty.Pty, hc *hostcontext.Context, cmd string) (bool, error) {
	return true, nil
}

func rootEnv(hosts *hostcontainer.Container, kind Kind) (*Spec, *Env) {
	spec := NewSpec(kind)
	env := NewEnv(spec, hosts, fpty.NewDummy(""), nil, console.Noop{}, false, 0)
	return spec, env
}

func TestDispatchNormalNodeRunsInPlace(t *testing.T) {
	hosts := hostcontainer.New()
	hosts.Add(hostcontainer.DefaultRole, &stubHost{slug: "web1"})
	spec, env := rootEnv(hosts, Normal)

	spec.Action("ping", func(e *Env) (interface{}, error) {
		return e.Hosts().RunOne(context.Background(), e.Pty(), "echo ok", host.RunOptions{})
	})

	results, err := env.Dispatch("ping")
	assert.NoError(t, err)
	assert.Equal(t, []interface{}{"web1:echo ok"}, results)
}

func TestDispatchPerHostExpandsAndFansOut(t *testing.T) {
	hosts := hostcontainer.New()
	hosts.Add(hostcontainer.DefaultRole, &stubHost{slug: "web1"})
	hosts.Add(hostcontainer.DefaultRole, &stubHost{slug: "web2"})
	hosts.Add(hostcontainer.DefaultRole, &stubHost{slug: "web3"})
	spec, env := rootEnv(hosts, PerHost)

	spec.Action("deploy", func(e *Env) (interface{}, error) {
		h, hc, err := e.Hosts().Single()
		if err != nil {
			return nil, err
		}
		return h.Run(context.Background(), e.Pty(), hc, "deploy.sh", host.RunOptions{})
	})

	results, err := env.Dispatch("deploy")
	assert.NoError(t, err)
	assert.Len(t, results, 3)
	assert.Equal(t, "web1:deploy.sh", results[0])
	assert.Equal(t, "web2:deploy.sh", results[1])
	assert.Equal(t, "web3:deploy.sh", results[2])
}

func TestDispatchEmptyContainerReturnsNothing(t *testing.T) {
	hosts := hostcontainer.New()
	spec, env := rootEnv(hosts, PerHost)
	spec.Action("noop", func(e *Env) (interface{}, error) { return "ran", nil })

	results, err := env.Dispatch("noop")
	assert.NoError(t, err)
	assert.Nil(t, results)
}

func TestDispatchSingleIsolationSkipsFanOut(t *testing.T) {
	hosts := hostcontainer.New()
	hosts.Add(hostcontainer.DefaultRole, &stubHost{slug: "only"})
	spec, env := rootEnv(hosts, PerHost)

	spec.Action("status", func(e *Env) (interface{}, error) {
		h, hc, _ := e.Hosts().Single()
		return h.Run(context.Background(), e.Pty(), hc, "status", host.RunOptions{})
	})

	results, err := env.Dispatch("status")
	assert.NoError(t, err)
	assert.Equal(t, []interface{}{"only:status"}, results)
}

func TestIsolationIdentifiersAreSlugBased(t *testing.T) {
	hosts := hostcontainer.New()
	hosts.Add(hostcontainer.DefaultRole, &stubHost{slug: "a"})
	hosts.Add(hostcontainer.DefaultRole, &stubHost{slug: "b"})
	_, env := rootEnv(hosts, PerHost)

	isolations, err := iterIsolations(env)
	assert.NoError(t, err)
	assert.Len(t, isolations, 2)
	assert.Equal(t, Identifier{"a"}, isolations[0].isolation)
	assert.Equal(t, Identifier{"b"}, isolations[1].isolation)
}

func TestPerHostArrayIdentifiersAreIndexBased(t *testing.T) {
	hosts := hostcontainer.New()
	hosts.Add(hostcontainer.DefaultRole, &stubHost{slug: "a"})
	hosts.Add(hostcontainer.DefaultRole, &stubHost{slug: "b"})
	_, env := rootEnv(hosts, PerHostArray)

	isolations, err := iterIsolations(env)
	assert.NoError(t, err)
	assert.Equal(t, Identifier{"0"}, isolations[0].isolation)
	assert.Equal(t, Identifier{"1"}, isolations[1].isolation)
}

func TestChildValidatesNestingRules(t *testing.T) {
	assert.Panics(t, func() {
		parent := NewSpec(PerHost)
		parent.Child("bad", NewSpec(PerHostArray))
	})

	assert.NotPanics(t, func() {
		parent := NewSpec(Normal)
		parent.Child("ok", NewSpec(PerHostOne))
	})
}

func TestPerHostOneRejectsMultipleHosts(t *testing.T) {
	root := NewSpec(Normal)
	childSpec := NewSpec(PerHostOne)
	childSpec.RoleMapping = nil
	root.Child("single", childSpec)

	hosts := hostcontainer.New()
	hosts.Add(hostcontainer.DefaultRole, &stubHost{slug: "a"})
	hosts.Add(hostcontainer.DefaultRole, &stubHost{slug: "b"})
	env := NewEnv(root, hosts, fpty.NewDummy(""), nil, console.Noop{}, false, 0)

	_, err := env.Child("single")
	assert.Error(t, err)
}

func TestDispatchRetriesAutomaticallyOnNonInteractivePty(t *testing.T) {
	hosts := hostcontainer.New()
	hosts.Add(hostcontainer.DefaultRole, &stubHost{slug: "flaky"})
	spec := NewSpec(Normal)
	env := NewEnv(spec, hosts, fpty.NewDummy(""), nil, console.Noop{}, false, 2)

	attempts := 0
	spec.Action("deploy", func(e *Env) (interface{}, error) {
		attempts++
		if attempts < 3 {
			return nil, fleeterr.NewCommandFailed("deploy.sh", "flaky", 1, "boom")
		}
		return "ok", nil
	})

	results, err := env.Dispatch("deploy")
	assert.NoError(t, err)
	assert.Equal(t, []interface{}{"ok"}, results)
	assert.Equal(t, 3, attempts)
}

func TestDispatchGivesUpAfterExhaustingAutoRetriesNonInteractive(t *testing.T) {
	hosts := hostcontainer.New()
	hosts.Add(hostcontainer.DefaultRole, &stubHost{slug: "flaky"})
	spec := NewSpec(Normal)
	env := NewEnv(spec, hosts, fpty.NewDummy(""), nil, console.Noop{}, false, 1)

	attempts := 0
	spec.Action("deploy", func(e *Env) (interface{}, error) {
		attempts++
		return nil, fleeterr.NewCommandFailed("deploy.sh", "flaky", 1, "boom")
	})

	_, err := env.Dispatch("deploy")
	assert.Error(t, err)
	assert.Equal(t, 2, attempts)
}
