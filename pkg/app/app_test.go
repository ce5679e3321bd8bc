package app

import (
	"testing"
	"time"

	"github.com/christophe-duc/fleetctl/pkg/config"
	"github.com/stretchr/testify/assert"
)

func testAppConfig(t *testing.T) *config.AppConfig {
	t.Helper()
	t.Setenv("CONFIG_DIR", t.TempDir())
	appConfig, err := config.NewAppConfig("fleetctl", "test-version", "test-commit", "test-date", "test-build-source", false, false)
	assert.NoError(t, err)
	return appConfig
}

func TestNewAppInitializesSharedServices(t *testing.T) {
	a, err := NewApp(testAppConfig(t))
	assert.NoError(t, err)
	assert.NotNil(t, a.Config)
	assert.NotNil(t, a.Log)
	assert.NotNil(t, a.Sink)
	assert.NotNil(t, a.Console)
	assert.NotNil(t, a.Pty)
	assert.NotNil(t, a.Cache)
	assert.NotNil(t, a.ErrorChan)
}

func TestNewAppHonoursDryRun(t *testing.T) {
	appConfig := testAppConfig(t)
	appConfig.DryRun = true

	a, err := NewApp(appConfig)
	assert.NoError(t, err)
	assert.True(t, a.Config.DryRun)
}

func TestAppKnownErrorHandlesSudoRejection(t *testing.T) {
	a, err := NewApp(testAppConfig(t))
	assert.NoError(t, err)

	text, known := a.KnownError(&mockError{message: "sudo password rejected after 3 attempts"})
	assert.True(t, known)
	assert.NotEmpty(t, text)
}

func TestAppKnownErrorRejectsUnknownMessage(t *testing.T) {
	a, err := NewApp(testAppConfig(t))
	assert.NoError(t, err)

	text, known := a.KnownError(&mockError{message: "some unrelated failure"})
	assert.False(t, known)
	assert.Empty(t, text)
}

func TestAppCloseClosesConnectionCache(t *testing.T) {
	a, err := NewApp(testAppConfig(t))
	assert.NoError(t, err)
	assert.NoError(t, a.Close())
}

func TestWatchConnectionsStopsCleanlyOnClose(t *testing.T) {
	a, err := NewApp(testAppConfig(t))
	assert.NoError(t, err)

	a.WatchConnections(time.Millisecond)
	assert.NotPanics(t, func() { assert.NoError(t, a.Close()) })
}

type mockError struct {
	message string
}

func (e *mockError) Error() string { return e.message }
