package host

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestShapeSudoInteractiveAsRoot(t *testing.T) {
	got := shapeSudoInteractive("[prompt]", "", "ls -la")
	assert.True(t, strings.HasPrefix(got, "sudo -p '[prompt]' bash -c"))
	assert.Contains(t, got, "'ls -la'")
}

func TestShapeSudoInteractiveAsNamedUser(t *testing.T) {
	got := shapeSudoInteractive("[prompt]", "deploy", "ls -la")
	assert.Contains(t, got, "su 'deploy' -c")
	assert.NotContains(t, got, "sudo -u")
}

func TestShapeSudoNonInteractive(t *testing.T) {
	got := shapeSudoNonInteractive("hunter2", "ls -la")
	assert.Equal(t, `echo 'hunter2' | sudo -p '(passwd)' -S ls -la`, got)
}

func TestScanForSudoPromptFindsWithinWindow(t *testing.T) {
	buf := []byte(strings.Repeat("x", 40) + "[sudo-password-prompt]")
	assert.True(t, scanForSudoPrompt(buf, "[sudo-password-prompt]"))
}

func TestScanForSudoPromptMissesOutsideWindow(t *testing.T) {
	buf := append([]byte("[sudo-password-prompt]"), []byte(strings.Repeat("x", 40))...)
	assert.False(t, scanForSudoPrompt(buf, "[sudo-password-prompt]"))
}

func TestScanForSudoPromptEmptyPrompt(t *testing.T) {
	assert.False(t, scanForSudoPrompt([]byte("anything"), ""))
}

func TestContainsSubstring(t *testing.T) {
	assert.True(t, containsSubstring([]byte("hello world"), "world"))
	assert.False(t, containsSubstring([]byte("hello"), "world"))
	assert.False(t, containsSubstring([]byte("hi"), ""))
}
