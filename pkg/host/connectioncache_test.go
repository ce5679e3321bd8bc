package host

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBuildAuthMethodsPrefersKeyFileOverPassword(t *testing.T) {
	_, err := buildAuthMethods(sshDialConfig{Password: "hunter2"})
	assert.NoError(t, err)

	_, err = buildAuthMethods(sshDialConfig{KeyFile: "/nonexistent/id_rsa", Password: "hunter2"})
	assert.Error(t, err, "a KeyFile that can't be read should surface rather than silently falling back to password")
}

func TestIsAliveNilClient(t *testing.T) {
	assert.False(t, isAlive(nil))
}

func TestNewConnectionCacheStartsEmpty(t *testing.T) {
	c := NewConnectionCache()
	assert.NotNil(t, c.entries)
	assert.Empty(t, c.entries)
}

func TestConnectionCacheDropOnMissingKeyIsNoop(t *testing.T) {
	c := NewConnectionCache()
	assert.NotPanics(t, func() { c.Drop("nope") })
}
