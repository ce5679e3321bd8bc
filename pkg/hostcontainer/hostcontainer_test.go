package hostcontainer

import (
	"context"
	"fmt"
	"testing"

	"github.com/christophe-duc/fleetctl/pkg/host"
	"github.com/christophe-duc/fleetctl/pkg/hostcontext"
	fpty "github.com/christophe-duc/fleetctl/pkg/pty"
	"github.com/stretchr/testify/assert"
)

// fakeHost is a minimal host.Host for exercising container fan-out without
// any real transport.
type fakeHost struct {
	slug    string
	exists  bool
	hasCmd  bool
	runErr  error
	lastCmd string
}

func (f *fakeHost) Slug() string                                   { return f.slug }
func (f *fakeHost) StartPath(ctx context.Context) (string, error)  { return "/home/" + f.slug, nil }
func (f *fakeHost) Run(ctx context.Context, p fpty.Pty, hc *hostcontext.Context, command string, opts host.RunOptions) (string, error) {
	f.lastCmd = command
	if f.runErr != nil {
		return "", f.runErr
	}
	return fmt.Sprintf("%s:%s", f.slug, command), nil
}
func (f *fakeHost) Open(ctx context.Context, hc *hostcontext.Context, remotePath, mode string, opts host.FileOptions) (host.File, error) {
	return nil, nil
}
func (f *fakeHost) Stat(ctx context.Context, hc *hostcontext.Context, remotePath string) (host.FileInfo, error) {
	return host.FileInfo{}, nil
}
func (f *fakeHost) Listdir(ctx context.Context, hc *hostcontext.Context, remotePath string) ([]string, error) {
	return nil, nil
}
func (f *fakeHost) Exists(ctx context.Context, p fpty.Pty, hc *hostcontext.Context, remotePath string) (bool, error) {
	return f.exists, nil
}
func (f *fakeHost) HasCommand(ctx context.Context, p fpty.Pty, hc *hostcontext.Context, cmd string) (bool, error) {
	return f.hasCmd, nil
}

func TestFilterReturnsOnlyNamedRoles(t *testing.T) {
	c := New()
	c.Add("web", &fakeHost{slug: "web1"})
	c.Add("db", &fakeHost{slug: "db1"})

	filtered := c.Filter("web")
	assert.Equal(t, []string{"web"}, filtered.Roles())
	assert.Equal(t, 1, filtered.Len())
}

func TestFilterStarReturnsEverything(t *testing.T) {
	c := New()
	c.Add("web", &fakeHost{slug: "web1"})
	c.Add("db", &fakeHost{slug: "db1"})

	assert.Equal(t, 2, c.Filter("*").Len())
}

func TestGetDemandsExactlyOneHost(t *testing.T) {
	c := New()
	c.Add("web", &fakeHost{slug: "web1"})
	c.Add("web", &fakeHost{slug: "web2"})

	_, err := c.Get("web")
	assert.Error(t, err)

	c2 := New()
	c2.Add("db", &fakeHost{slug: "db1"})
	single, err := c2.Get("db")
	assert.NoError(t, err)
	assert.Equal(t, 1, single.Len())
}

func TestGetFromSlugLookup(t *testing.T) {
	c := New()
	c.Add("web", &fakeHost{slug: "web1"})
	c.Add("db", &fakeHost{slug: "db1"})

	h, err := c.GetFromSlug("db1")
	assert.NoError(t, err)
	assert.Equal(t, "db1", h.Slug())

	_, err = c.GetFromSlug("missing")
	assert.Error(t, err)
}

func TestRunSequentialWithoutAuxiliaryPtys(t *testing.T) {
	c := New()
	c.Add("web", &fakeHost{slug: "web1"})
	c.Add("web", &fakeHost{slug: "web2"})

	results, err := c.Run(context.Background(), fpty.NewDummy(""), "uptime", host.RunOptions{})
	assert.NoError(t, err)
	assert.Equal(t, []string{"web1:uptime", "web2:uptime"}, results)
}

func TestRunPropagatesHostError(t *testing.T) {
	c := New()
	c.Add("web", &fakeHost{slug: "web1", runErr: assert.AnError})

	_, err := c.Run(context.Background(), fpty.NewDummy(""), "uptime", host.RunOptions{})
	assert.Error(t, err)
}

func TestCombineMergesSharedRoles(t *testing.T) {
	a := New()
	a.Add("web", &fakeHost{slug: "web1"})
	b := New()
	b.Add("web", &fakeHost{slug: "web2"})
	b.Add("db", &fakeHost{slug: "db1"})

	combined, err := a.Combine(b)
	assert.NoError(t, err)
	assert.Equal(t, 3, combined.Len())
	assert.ElementsMatch(t, []string{"web", "db"}, combined.Roles())
}

func TestCombineRejectsDuplicateSlugAcrossContainers(t *testing.T) {
	a := New()
	a.Add("web", &fakeHost{slug: "web1"})
	b := New()
	b.Add("db", &fakeHost{slug: "web1"})

	combined, err := a.Combine(b)
	assert.Error(t, err)
	assert.Nil(t, combined)
}

func TestAddRejectsDuplicateSlug(t *testing.T) {
	c := New()
	assert.NoError(t, c.Add("web", &fakeHost{slug: "web1"}))
	err := c.Add("db", &fakeHost{slug: "web1"})
	assert.Error(t, err)
	assert.Equal(t, 1, c.Len())
}

func TestCdPushesAndPopsOnEveryMember(t *testing.T) {
	c := New()
	c.Add("web", &fakeHost{slug: "web1"})
	c.Add("web", &fakeHost{slug: "web2"})

	pop := c.Cd("/srv/app")
	for _, m := range c.members() {
		assert.Equal(t, "/srv/app", m.ctx.CurrentPath("/home/web1"))
		break
	}
	pop()
	for _, m := range c.members() {
		assert.Equal(t, "/home/web1", m.ctx.CurrentPath("/home/web1"))
		break
	}
}

func TestHasCommandRequiresAllMembers(t *testing.T) {
	c := New()
	c.Add("web", &fakeHost{slug: "web1", hasCmd: true})
	c.Add("web", &fakeHost{slug: "web2", hasCmd: false})

	ok, err := c.HasCommand(context.Background(), fpty.NewDummy(""), "git")
	assert.NoError(t, err)
	assert.False(t, ok)
}
