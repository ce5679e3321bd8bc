// Package hostlog defines the logging sink contract consumed by pkg/host,
// pkg/hostcontainer and pkg/node, plus a logrus-backed implementation and a
// no-op stand-in for tests and sandbox runs.
package hostlog

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// RunEntry is the scoped log entry returned by Sink.LogRun. Callers stream
// command output into it via LogIO and close it off with SetStatusCode.
type RunEntry interface {
	LogIO(b []byte)
	SetStatusCode(code int)
}

// FileEntry is the scoped log entry returned by Sink.LogFile.
type FileEntry interface {
	Complete(success bool)
}

// ForkEntry is the scoped log entry returned by Sink.LogFork, one per
// auxiliary-pty worker spawned by the action dispatcher.
type ForkEntry interface {
	SetSucceeded()
	SetFailed(err error)
}

// Sink is the logging contract the core packages depend on. A no-op sink
// must satisfy it trivially.
type Sink interface {
	LogRun(hostSlug, command string, useSudo, sandbox, interactive bool) RunEntry
	LogFile(hostSlug, mode, remotePath string, useSudo, sandbox bool) FileEntry
	LogFork(label string) ForkEntry
	LogException(err error)
	Group(label string, fn func())
}

// logrusSink is the production Sink backed by a *logrus.Entry, matching the
// teacher's pattern of carrying a single structured *logrus.Entry through
// the application and deriving child entries with WithFields.
type logrusSink struct {
	entry *logrus.Entry
	mu    sync.Mutex
	depth int
}

// NewLogrusSink wraps entry (as produced by pkg/log.NewLogger) into a Sink.
func NewLogrusSink(entry *logrus.Entry) Sink {
	return &logrusSink{entry: entry}
}

func (s *logrusSink) indent() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := ""
	for i := 0; i < s.depth; i++ {
		out += "  "
	}
	return out
}

type logrusRunEntry struct {
	entry     *logrus.Entry
	command   string
	hostSlug  string
	startedAt time.Time
	output    []byte
}

func (s *logrusSink) LogRun(hostSlug, command string, useSudo, sandbox, interactive bool) RunEntry {
	s.entry.WithFields(logrus.Fields{
		"host":        hostSlug,
		"command":     command,
		"useSudo":     useSudo,
		"sandbox":     sandbox,
		"interactive": interactive,
	}).Debug(s.indent() + "run")

	return &logrusRunEntry{
		entry:     s.entry,
		command:   command,
		hostSlug:  hostSlug,
		startedAt: time.Now(),
	}
}

func (r *logrusRunEntry) LogIO(b []byte) {
	r.output = append(r.output, b...)
}

func (r *logrusRunEntry) SetStatusCode(code int) {
	r.entry.WithFields(logrus.Fields{
		"host":       r.hostSlug,
		"command":    r.command,
		"statusCode": code,
		"duration":   time.Since(r.startedAt).String(),
		"bytes":      len(r.output),
	}).Debug("run complete")
}

type logrusFileEntry struct {
	entry      *logrus.Entry
	hostSlug   string
	mode       string
	remotePath string
}

func (s *logrusSink) LogFile(hostSlug, mode, remotePath string, useSudo, sandbox bool) FileEntry {
	s.entry.WithFields(logrus.Fields{
		"host":       hostSlug,
		"mode":       mode,
		"remotePath": remotePath,
		"useSudo":    useSudo,
		"sandbox":    sandbox,
	}).Debug(s.indent() + "open file")

	return &logrusFileEntry{entry: s.entry, hostSlug: hostSlug, mode: mode, remotePath: remotePath}
}

func (f *logrusFileEntry) Complete(success bool) {
	f.entry.WithFields(logrus.Fields{
		"host":       f.hostSlug,
		"remotePath": f.remotePath,
		"success":    success,
	}).Debug("file complete")
}

type logrusForkEntry struct {
	entry *logrus.Entry
	label string
}

func (s *logrusSink) LogFork(label string) ForkEntry {
	s.entry.WithField("label", label).Debug(s.indent() + "fork")
	return &logrusForkEntry{entry: s.entry, label: label}
}

func (f *logrusForkEntry) SetSucceeded() {
	f.entry.WithField("label", f.label).Debug("fork succeeded")
}

func (f *logrusForkEntry) SetFailed(err error) {
	f.entry.WithFields(logrus.Fields{"label": f.label, "error": err}).Warn("fork failed")
}

func (s *logrusSink) LogException(err error) {
	s.entry.WithField("error", err).Error("exception")
}

func (s *logrusSink) Group(label string, fn func()) {
	s.entry.WithField("group", label).Debug(s.indent() + "enter group")
	s.mu.Lock()
	s.depth++
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.depth--
		s.mu.Unlock()
		s.entry.WithField("group", label).Debug(s.indent() + "exit group")
	}()
	fn()
}

// noop satisfies Sink with every operation a no-op, used wherever no sink
// was supplied and by tests that don't care about log output.
type noop struct{}

// Noop returns a Sink whose operations are all no-ops.
func Noop() Sink { return noop{} }

type noopRunEntry struct{}

func (noopRunEntry) LogIO([]byte)       {}
func (noopRunEntry) SetStatusCode(int)  {}

type noopFileEntry struct{}

func (noopFileEntry) Complete(bool) {}

type noopForkEntry struct{}

func (noopForkEntry) SetSucceeded()    {}
func (noopForkEntry) SetFailed(error)  {}

func (noop) LogRun(string, string, bool, bool, bool) RunEntry   { return noopRunEntry{} }
func (noop) LogFile(string, string, string, bool, bool) FileEntry { return noopFileEntry{} }
func (noop) LogFork(string) ForkEntry                             { return noopForkEntry{} }
func (noop) LogException(error)                                   {}
func (noop) Group(_ string, fn func())                            { fn() }
