package tasks

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestStartReplacesPreviousTask(t *testing.T) {
	m := NewManager()
	var firstCanceled atomic.Bool

	m.Start(context.Background(), func(ctx context.Context) {
		<-ctx.Done()
		firstCanceled.Store(true)
	})

	done := make(chan struct{})
	m.Start(context.Background(), func(ctx context.Context) {
		close(done)
		<-ctx.Done()
	})

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("second task never started")
	}
	assert.True(t, firstCanceled.Load())
}

func TestStopCancelsRunningTask(t *testing.T) {
	m := NewManager()
	started := make(chan struct{})
	stopped := make(chan struct{})

	m.Start(context.Background(), func(ctx context.Context) {
		close(started)
		<-ctx.Done()
		close(stopped)
	})

	<-started
	m.Stop()

	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("task was not stopped")
	}
}

func TestStopWithNoTaskIsNoop(t *testing.T) {
	m := NewManager()
	assert.NotPanics(t, func() { m.Stop() })
}
