// Package pty abstracts the local controlling terminal: its size, its raw
// mode, and the hook by which the action dispatcher opens one auxiliary
// terminal per isolation for parallel fan-out.
package pty

import (
	"io"
	"os"

	"golang.org/x/term"
)

// Size is a terminal size in character cells.
type Size struct {
	Rows int
	Cols int
}

// ForkResult is returned by RunInAuxiliaryPtys. Join blocks until every
// callback has completed and Result holds the per-callback return values in
// call order.
type ForkResult struct {
	Result []interface{}
	err    error
	wait   func()
}

// Join blocks until all forked callbacks have completed.
func (f *ForkResult) Join() {
	if f.wait != nil {
		f.wait()
	}
}

// Err returns the first error raised by any forked callback, or nil.
func (f *ForkResult) Err() error { return f.err }

// Pty is the terminal abstraction every host operation is driven through.
// Interactive is false when the framework must never block on user input,
// in which case defaults are chosen automatically wherever a prompt would
// otherwise appear.
type Pty interface {
	Stdin() io.Reader
	Stdout() io.Writer
	Interactive() bool

	GetSize() (Size, error)
	SetSize(Size) error

	// AuxiliaryPtysAvailable reports whether RunInAuxiliaryPtys can run its
	// callbacks concurrently. The base implementation always returns
	// false; a pty created by the node dispatcher for fan-out overrides
	// this.
	AuxiliaryPtysAvailable() bool

	// RunInAuxiliaryPtys opens one additional Pty per callback and invokes
	// each with its own Pty. The default behaviour, used whenever
	// AuxiliaryPtysAvailable is false, is sequential: each callback runs
	// to completion before the next starts, and the returned ForkResult is
	// already joined.
	RunInAuxiliaryPtys(callbacks []func(Pty) (interface{}, error)) *ForkResult
}

// Local wraps the process's own stdin/stdout as a Pty. It never offers
// auxiliary ptys; the node dispatcher wraps it with a parallel
// implementation when it needs to fan out (see pkg/node).
type Local struct {
	stdin       *os.File
	stdout      *os.File
	interactive bool
}

// NewLocal builds a Local pty around os.Stdin/os.Stdout.
func NewLocal(interactive bool) *Local {
	return &Local{stdin: os.Stdin, stdout: os.Stdout, interactive: interactive}
}

func (l *Local) Stdin() io.Reader   { return l.stdin }
func (l *Local) Stdout() io.Writer  { return l.stdout }
func (l *Local) Interactive() bool  { return l.interactive }

// GetSize returns the terminal's current size, falling back to 80x24 when
// stdout is not a tty.
func (l *Local) GetSize() (Size, error) {
	if !term.IsTerminal(int(l.stdout.Fd())) {
		return Size{Rows: 24, Cols: 80}, nil
	}
	cols, rows, err := term.GetSize(int(l.stdout.Fd()))
	if err != nil {
		return Size{}, err
	}
	return Size{Rows: rows, Cols: cols}, nil
}

// SetSize is a no-op for the local terminal: its size is controlled by
// whatever emulator hosts the process, not by us.
func (l *Local) SetSize(Size) error { return nil }

func (l *Local) AuxiliaryPtysAvailable() bool { return false }

// RunInAuxiliaryPtys runs every callback sequentially against this same
// pty: the fallback for when no auxiliary pty can be opened.
func (l *Local) RunInAuxiliaryPtys(callbacks []func(Pty) (interface{}, error)) *ForkResult {
	results := make([]interface{}, len(callbacks))
	var firstErr error
	for i, cb := range callbacks {
		res, err := cb(l)
		results[i] = res
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return &ForkResult{Result: results, err: firstErr}
}

// RawModeGuard restores fd's terminal mode on Restore, regardless of how
// the caller's scope is exited. Construct with EnterRawMode.
type RawModeGuard struct {
	fd       int
	oldState *term.State
}

// EnterRawMode flips fd into raw mode and returns a guard that restores it.
// If fd is not a terminal, the guard's Restore is a no-op.
func EnterRawMode(fd int) (*RawModeGuard, error) {
	if !term.IsTerminal(fd) {
		return &RawModeGuard{fd: fd}, nil
	}
	old, err := term.MakeRaw(fd)
	if err != nil {
		return nil, err
	}
	return &RawModeGuard{fd: fd, oldState: old}, nil
}

// Restore returns the terminal to its pre-raw-mode state. Safe to call on a
// guard whose fd was never a terminal.
func (g *RawModeGuard) Restore() error {
	if g.oldState == nil {
		return nil
	}
	return term.Restore(g.fd, g.oldState)
}

// Dummy is a Pty backed by in-memory buffers, for non-interactive use and
// for tests. It is never interactive and never offers auxiliary ptys.
type Dummy struct {
	in   io.Reader
	out  *dummyWriter
	size Size
}

type dummyWriter struct {
	buf []byte
}

func (w *dummyWriter) Write(p []byte) (int, error) {
	w.buf = append(w.buf, p...)
	return len(p), nil
}

// NewDummy builds a Dummy pty whose stdin replays input and whose stdout is
// captured for later inspection via Output.
func NewDummy(input string) *Dummy {
	return &Dummy{
		in:   &stringReader{s: input},
		out:  &dummyWriter{},
		size: Size{Rows: 40, Cols: 80},
	}
}

type stringReader struct {
	s   string
	pos int
}

func (r *stringReader) Read(p []byte) (int, error) {
	if r.pos >= len(r.s) {
		return 0, io.EOF
	}
	n := copy(p, r.s[r.pos:])
	r.pos += n
	return n, nil
}

func (d *Dummy) Stdin() io.Reader  { return d.in }
func (d *Dummy) Stdout() io.Writer { return d.out }
func (d *Dummy) Interactive() bool { return false }

func (d *Dummy) GetSize() (Size, error)  { return d.size, nil }
func (d *Dummy) SetSize(s Size) error    { d.size = s; return nil }
func (d *Dummy) AuxiliaryPtysAvailable() bool { return false }

func (d *Dummy) RunInAuxiliaryPtys(callbacks []func(Pty) (interface{}, error)) *ForkResult {
	results := make([]interface{}, len(callbacks))
	var firstErr error
	for i, cb := range callbacks {
		res, err := cb(d)
		results[i] = res
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return &ForkResult{Result: results, err: firstErr}
}

// Output returns everything written to this Dummy pty's stdout so far.
func (d *Dummy) Output() string { return string(d.out.buf) }
