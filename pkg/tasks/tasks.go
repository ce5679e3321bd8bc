// Package tasks runs at most one background watcher at a time, canceling
// and waiting for whatever was running before starting the next one.
package tasks

import (
	"context"
	"sync"
)

// Manager owns at most one running background task.
type Manager struct {
	mu      sync.Mutex
	current *task
}

type task struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// NewManager returns an empty Manager.
func NewManager() *Manager {
	return &Manager{}
}

// Start stops whatever task is currently running, then launches f in its
// own goroutine with a context canceled on the next Start or Stop.
func (m *Manager) Start(ctx context.Context, f func(ctx context.Context)) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current != nil {
		m.current.stop()
	}

	taskCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	m.current = &task{cancel: cancel, done: done}

	go func() {
		f(taskCtx)
		close(done)
	}()
}

// Stop cancels and waits for the currently running task, if any.
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current != nil {
		m.current.stop()
		m.current = nil
	}
}

func (t *task) stop() {
	t.cancel()
	<-t.done
}
