// Package fleeterr holds the error taxonomy shared by the host, hostcontext,
// hostcontainer and node packages. CommandFailed and ActionException
// capture a go-errors/errors stack trace at construction so it survives up
// to main.go's top-level handler; the other types carry no stack trace.
package fleeterr

import (
	"fmt"

	"github.com/go-errors/errors"
)

// CommandFailed is returned when a remote command exits with a nonzero
// status and the caller did not ask to ignore it.
type CommandFailed struct {
	Command        string
	HostSlug       string
	StatusCode     int
	PartialOutput  string
	wrapped        error
}

// NewCommandFailed builds a CommandFailed, capturing a stack trace at the
// call site via go-errors/errors.
func NewCommandFailed(command, hostSlug string, statusCode int, partialOutput string) *CommandFailed {
	err := &CommandFailed{
		Command:       command,
		HostSlug:      hostSlug,
		StatusCode:    statusCode,
		PartialOutput: partialOutput,
	}
	err.wrapped = errors.Wrap(fmt.Errorf("%s", err.message()), 1)
	return err
}

func (e *CommandFailed) message() string {
	return fmt.Sprintf("command failed on host %q with status %d: %s", e.HostSlug, e.StatusCode, e.Command)
}

func (e *CommandFailed) Error() string {
	return e.message()
}

// ErrorStack returns the go-errors stack trace captured at construction.
func (e *CommandFailed) ErrorStack() string {
	if ge, ok := e.wrapped.(*errors.Error); ok {
		return ge.ErrorStack()
	}
	return e.message()
}

// ConnectionFailed is returned when connect/handshake/auth fails. It is
// fatal for the call that triggered it; the ConnectionCache drops its entry
// so the next call retries from scratch.
type ConnectionFailed struct {
	HostSlug string
	Phase    string
	Cause    error
}

// NewConnectionFailed wraps cause with the phase (resolve/socket/key
// exchange/handshake/auth/exec) in which it occurred.
func NewConnectionFailed(hostSlug, phase string, cause error) *ConnectionFailed {
	return &ConnectionFailed{HostSlug: hostSlug, Phase: phase, Cause: cause}
}

func (e *ConnectionFailed) Error() string {
	return fmt.Sprintf("connection to host %q failed during %s: %v", e.HostSlug, e.Phase, e.Cause)
}

func (e *ConnectionFailed) Unwrap() error { return e.Cause }

// SudoPasswordRejected is returned by LocalHost's "sudo ls" password
// validation after the password has been rejected three times.
type SudoPasswordRejected struct {
	Attempts int
}

// NewSudoPasswordRejected builds a SudoPasswordRejected for the given
// number of failed attempts.
func NewSudoPasswordRejected(attempts int) *SudoPasswordRejected {
	return &SudoPasswordRejected{Attempts: attempts}
}

func (e *SudoPasswordRejected) Error() string {
	return fmt.Sprintf("sudo password rejected after %d attempts", e.Attempts)
}

// ActionException wraps any exception raised inside an action body, along
// with the captured stack trace. This is the type surfaced to the
// top-level shell.
type ActionException struct {
	IsolationLabel string
	Cause          error
	stack          string
}

// NewActionException wraps cause, capturing the current stack.
func NewActionException(isolationLabel string, cause error) *ActionException {
	wrapped := errors.Wrap(cause, 1)
	return &ActionException{
		IsolationLabel: isolationLabel,
		Cause:          cause,
		stack:          wrapped.ErrorStack(),
	}
}

func (e *ActionException) Error() string {
	if e.IsolationLabel == "" {
		return fmt.Sprintf("action failed: %v", e.Cause)
	}
	return fmt.Sprintf("action failed for %s: %v", e.IsolationLabel, e.Cause)
}

func (e *ActionException) Unwrap() error { return e.Cause }

// ErrorStack returns the captured go-errors stack trace.
func (e *ActionException) ErrorStack() string { return e.stack }

// QueryException wraps a failure raised inside an opaque query callable.
type QueryException struct {
	Cause error
}

// NewQueryException wraps cause.
func NewQueryException(cause error) *QueryException {
	return &QueryException{Cause: cause}
}

func (e *QueryException) Error() string { return fmt.Sprintf("query failed: %v", e.Cause) }
func (e *QueryException) Unwrap() error { return e.Cause }

// ConstructionError is raised at node-tree build time: invalid Host
// definition, invalid role mapping, duplicate slug, illegal node nesting,
// or a wrong host count for PerHostOne. It is also returned at execution
// time by Container.Get, GetFromSlug and Single on a failed lookup, by
// Env.Child and Env.Dispatch for an unknown name, and by SSHHost.Open for a
// missing file opened for reading under sudo.
type ConstructionError struct {
	Reason string
}

// NewConstructionError builds a ConstructionError with the given reason.
func NewConstructionError(reason string) *ConstructionError {
	return &ConstructionError{Reason: reason}
}

func (e *ConstructionError) Error() string { return "construction error: " + e.Reason }

// SkippedResult is returned by a per-isolation action body that the
// operator chose to Skip. Any attribute access beyond checking Skipped()
// is expected to be an error in the calling code, so every accessor
// panics with a descriptive message instead of silently returning a zero
// value.
type SkippedResult struct {
	IsolationLabel string
}

// Skipped reports that this result is a stand-in for a skipped isolation.
func (s *SkippedResult) Skipped() bool { return true }

// Value panics: downstream code must not treat a skipped isolation's
// result as real output.
func (s *SkippedResult) Value() string {
	panic(fmt.Sprintf("result for isolation %q was skipped and has no value", s.IsolationLabel))
}
