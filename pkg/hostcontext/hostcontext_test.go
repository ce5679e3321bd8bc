package hostcontext

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestContextBalanceAcrossNestedScopes(t *testing.T) {
	ctx := New()

	popCd := ctx.Cd("/tmp")
	popPrefix := ctx.Prefix("source venv/bin/activate")
	popEnv := ctx.Env("FOO", "bar", true)

	assert.False(t, ctx.Balanced())

	popEnv()
	popPrefix()
	popCd()

	assert.True(t, ctx.Balanced())
}

func TestContextBalanceOnFailurePathRecovers(t *testing.T) {
	ctx := New()

	func() {
		defer func() { _ = recover() }()

		pop := ctx.Cd("/tmp")
		defer pop()

		pop2 := ctx.Env("FOO", "bar", true)
		defer pop2()

		panic("boom")
	}()

	assert.True(t, ctx.Balanced())
}

func TestCurrentPathJoinsRelativeFrames(t *testing.T) {
	ctx := New()
	defer ctx.Cd("a")()
	defer ctx.Cd("b")()

	assert.Equal(t, "/home/user/a/b", ctx.CurrentPath("/home/user"))
}

func TestCurrentPathAbsoluteAnchors(t *testing.T) {
	ctx := New()
	defer ctx.Cd("a")()
	defer ctx.Cd("/etc")()

	assert.Equal(t, "/etc", ctx.CurrentPath("/home/user"))
}

func TestShapeOrderAndParenthesization(t *testing.T) {
	ctx := New()
	defer ctx.Env("K", "v", true)()

	shaped := ctx.Shape("/home/user", "echo hi", false)

	assert.True(t, strings.HasPrefix(shaped, "cd '/home/user' && "))
	assert.Contains(t, shaped, "export K='v' && ")
	assert.True(t, strings.HasSuffix(shaped, "(echo hi)"))
}

func TestShapeSandboxGuard(t *testing.T) {
	ctx := New()
	shaped := ctx.Shape("/home/user", "echo hi", true)

	assert.True(t, strings.HasPrefix(shaped, `if [ -d '/home/user' ]; then cd '/home/user'; fi && `))
}

func TestShapePrefixesJoinedWithAnd(t *testing.T) {
	ctx := New()
	defer ctx.Prefix("source venv/bin/activate")()
	defer ctx.Prefix("umask 002")()

	shaped := ctx.Shape("/home/user", "echo hi", false)

	assert.Contains(t, shaped, "source venv/bin/activate && umask 002 && (echo hi)")
}

func TestEnvEscapeFlag(t *testing.T) {
	ctx := New()
	defer ctx.Env("VAR1", "var1", true)()
	defer ctx.Env("VAR2", "$VAR1", false)()

	shaped := ctx.Shape("/", "echo $VAR2", false)

	assert.Contains(t, shaped, "export VAR1='var1' && ")
	assert.Contains(t, shaped, "export VAR2=$VAR1 && ")
}

func TestEnvNilValueTreatedAsEmpty(t *testing.T) {
	ctx := New()
	defer ctx.Env("VAR", "", true)()

	shaped := ctx.Shape("/", "true", false)

	assert.Contains(t, shaped, "export VAR='' && ")
}

func TestCloneDoesNotAliasStacks(t *testing.T) {
	ctx := New()
	pop := ctx.Cd("a")
	defer pop()

	clone := ctx.Clone()
	clone.Cd("b")

	assert.Equal(t, "/x/a", ctx.CurrentPath("/x"))
	assert.Equal(t, "/x/a/b", clone.CurrentPath("/x"))
}
