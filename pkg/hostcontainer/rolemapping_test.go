package hostcontainer

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDefaultRoleMappingPassesThroughVerbatim(t *testing.T) {
	parent := New()
	parent.Add("web", &fakeHost{slug: "web1"})

	child := DefaultRoleMapping.Apply(parent)
	assert.Same(t, parent, child)
}

func TestRoleMappingUnionsNamedParentRoles(t *testing.T) {
	parent := New()
	parent.Add("web", &fakeHost{slug: "web1"})
	parent.Add("cache", &fakeHost{slug: "cache1"})
	parent.Add("db", &fakeHost{slug: "db1"})

	rm := RoleMapping{"app": {"web", "cache"}}
	child := rm.Apply(parent)

	assert.Equal(t, 2, child.Len())
	_, err := child.GetFromSlug("db1")
	assert.Error(t, err)
}

func TestRoleMappingAllHostsUnionsEveryParentRole(t *testing.T) {
	parent := New()
	parent.Add("web", &fakeHost{slug: "web1"})
	parent.Add("db", &fakeHost{slug: "db1"})

	rm := RoleMapping{"host": {AllHosts}}
	child := rm.Apply(parent)

	assert.Equal(t, 2, child.Len())
}
