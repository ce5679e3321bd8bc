package pty

import (
	"bytes"
	"io"
	"sync"

	"golang.org/x/sync/errgroup"
)

// auxPty is the per-worker Pty handed to a Parallel's callbacks. Its stdout
// is captured into its own buffer rather than written straight through, so
// concurrent workers never interleave output mid-line; Parallel flushes
// every buffer to the real terminal, in callback order, once all workers
// have finished. It never offers auxiliary ptys of its own.
type auxPty struct {
	base Pty
	mu   sync.Mutex
	out  bytes.Buffer
}

func (a *auxPty) Stdin() io.Reader  { return a.base.Stdin() }
func (a *auxPty) Stdout() io.Writer { return a }

func (a *auxPty) Write(p []byte) (int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.out.Write(p)
}

func (a *auxPty) Interactive() bool              { return false }
func (a *auxPty) GetSize() (Size, error)         { return a.base.GetSize() }
func (a *auxPty) SetSize(Size) error             { return nil }
func (a *auxPty) AuxiliaryPtysAvailable() bool   { return false }

func (a *auxPty) RunInAuxiliaryPtys(callbacks []func(Pty) (interface{}, error)) *ForkResult {
	results := make([]interface{}, len(callbacks))
	var firstErr error
	for i, cb := range callbacks {
		res, err := cb(a)
		results[i] = res
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return &ForkResult{Result: results, err: firstErr}
}

// Parallel wraps a base Pty and advertises auxiliary ptys, so the node
// dispatcher fans an action out across every isolation at once instead of
// stepping through them one at a time. One worker per isolation, each
// driving its own auxPty, matching the "one worker per isolation, each
// owning its own local pty abstraction" scheduling model: a preemptive
// goroutine per isolation rather than a cooperative loop.
type Parallel struct {
	base Pty
}

// NewParallel builds a Parallel fan-out wrapper around base. base.Stdin is
// handed unchanged to every worker, and nothing here serializes reads from
// it; base.Stdout receives every worker's buffered output once the whole
// fork has joined.
func NewParallel(base Pty) *Parallel {
	return &Parallel{base: base}
}

func (p *Parallel) Stdin() io.Reader            { return p.base.Stdin() }
func (p *Parallel) Stdout() io.Writer           { return p.base.Stdout() }
func (p *Parallel) Interactive() bool           { return false }
func (p *Parallel) GetSize() (Size, error)      { return p.base.GetSize() }
func (p *Parallel) SetSize(s Size) error        { return p.base.SetSize(s) }
func (p *Parallel) AuxiliaryPtysAvailable() bool { return true }

// RunInAuxiliaryPtys runs every callback concurrently via errgroup, each
// against its own auxPty, and joins before returning. Results preserve
// callback order regardless of completion order.
func (p *Parallel) RunInAuxiliaryPtys(callbacks []func(Pty) (interface{}, error)) *ForkResult {
	results := make([]interface{}, len(callbacks))
	auxes := make([]*auxPty, len(callbacks))

	var g errgroup.Group
	for i, cb := range callbacks {
		i, cb := i, cb
		aux := &auxPty{base: p.base}
		auxes[i] = aux
		g.Go(func() error {
			res, err := cb(aux)
			results[i] = res
			return err
		})
	}

	err := g.Wait()

	for _, aux := range auxes {
		aux.mu.Lock()
		p.base.Stdout().Write(aux.out.Bytes())
		aux.mu.Unlock()
	}

	return &ForkResult{Result: results, err: err}
}
