// Package hostcontext implements the per-host stack of cwd/env/prefix
// frames that shapes every command sent to a Host.
package hostcontext

import (
	"fmt"
	"path"
	"strings"

	"github.com/christophe-duc/fleetctl/pkg/utils"
)

// envFrame is one pushed (name, value) pair. Escaped records whether Value
// should be shell-quoted when rendered.
type envFrame struct {
	Name    string
	Value   string
	Escaped bool
}

// Context holds the three ordered stacks a command is shaped against:
// prefixes, paths, and environment overrides. It is not safe for
// concurrent use: each isolation must own its own Context.
type Context struct {
	prefixes []string
	paths    []string
	env      []envFrame
}

// New returns an empty Context.
func New() *Context {
	return &Context{}
}

// Clone returns a Context with the same stack contents but no aliasing to
// the receiver's backing arrays, so concurrent isolations forked from the
// same container never see each other's pushes.
func (c *Context) Clone() *Context {
	clone := &Context{
		prefixes: append([]string(nil), c.prefixes...),
		paths:    append([]string(nil), c.paths...),
		env:      append([]envFrame(nil), c.env...),
	}
	return clone
}

// Pop is returned by every scoped push method; calling it restores the
// stack to its pre-push state. Callers must defer Pop() immediately after
// the push so the stack balances across every exit path, including panics
// and early returns.
type Pop func()

// Cd pushes path onto the path stack. Nested pushes compose by path
// join; an absolute push anchors the stack (matching path.Join semantics:
// an absolute operand resets the computed path to itself).
func (c *Context) Cd(dir string) Pop {
	c.paths = append(c.paths, dir)
	return func() {
		c.paths = c.paths[:len(c.paths)-1]
	}
}

// Prefix pushes cmd onto the prefix stack; every shaped command after this
// call is rendered as "cmd1 && cmd2 && ... && (user_command)" until Pop is
// called.
func (c *Context) Prefix(cmd string) Pop {
	c.prefixes = append(c.prefixes, cmd)
	return func() {
		c.prefixes = c.prefixes[:len(c.prefixes)-1]
	}
}

// Env pushes a (name, value) pair. When escape is true, value is wrapped
// in single quotes with embedded quotes escaped via utils.Quoted. A nil
// value is treated as empty.
func (c *Context) Env(name string, value string, escape bool) Pop {
	c.env = append(c.env, envFrame{Name: name, Value: value, Escaped: escape})
	idx := len(c.env) - 1
	return func() {
		c.env = append(c.env[:idx], c.env[idx+1:]...)
	}
}

// CurrentPath joins startPath with every entry of the path stack in push
// order: each cd frame composes with the previous result via path
// semantics, and an absolute frame anchors.
func (c *Context) CurrentPath(startPath string) string {
	current := startPath
	for _, p := range c.paths {
		if path.IsAbs(p) {
			current = p
			continue
		}
		current = path.Join(current, p)
	}
	return current
}

// Shape renders command according to the deterministic order:
// (1) a cd guard (the sandboxed "if [ -d ... ]" form, or a bare cd), (2) one
// "export NAME=VALUE &&" per env frame in push order, (3) the literal
// parenthesized user command. The prefix stack is folded into the user
// command (joined with "&&") before this shaping is applied.
func (c *Context) Shape(startPath, command string, sandbox bool) string {
	cwd := c.CurrentPath(startPath)

	userCommand := command
	if len(c.prefixes) > 0 {
		parts := append(append([]string(nil), c.prefixes...), fmt.Sprintf("(%s)", command))
		userCommand = strings.Join(parts, " && ")
	} else {
		userCommand = fmt.Sprintf("(%s)", command)
	}

	var b strings.Builder
	if sandbox {
		fmt.Fprintf(&b, `if [ -d %s ]; then cd %s; fi && `, utils.Quoted(cwd), utils.Quoted(cwd))
	} else {
		fmt.Fprintf(&b, "cd %s && ", utils.Quoted(cwd))
	}

	for _, frame := range c.env {
		value := frame.Value
		if frame.Escaped {
			value = utils.Quoted(value)
		}
		fmt.Fprintf(&b, "export %s=%s && ", frame.Name, value)
	}

	b.WriteString(userCommand)
	return b.String()
}

// Balanced reports whether every stack is empty, useful in tests that
// exercise a sequence of nested scopes and assert the context returns to
// its initial state on every exit path.
func (c *Context) Balanced() bool {
	return len(c.prefixes) == 0 && len(c.paths) == 0 && len(c.env) == 0
}
