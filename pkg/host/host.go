// Package host implements the command-shaping, PTY-relay, sudo, and
// SFTP-backed file-transfer behavior of a single remote or local
// endpoint, plus the per-host-class ConnectionCache.
package host

import (
	"context"
	"io"

	"github.com/christophe-duc/fleetctl/pkg/hostcontext"
	"github.com/christophe-duc/fleetctl/pkg/hostlog"
	"github.com/christophe-duc/fleetctl/pkg/pty"
)

// Spec is the common, plain-value configuration shared by every concrete
// host variant (the "class-as-configuration" rewrite called for by
// the Design Notes).
type Spec struct {
	Slug            string
	Username        string
	Password        string
	Term            string
	MagicSudoPrompt string
}

func (s Spec) termOrDefault() string {
	if s.Term == "" {
		return "xterm"
	}
	return s.Term
}

func (s Spec) magicSudoPromptOrDefault() string {
	if s.MagicSudoPrompt == "" {
		return "[sudo-password-prompt]"
	}
	return s.MagicSudoPrompt
}

// RunOptions configures a single Run call. UseSudo, User, Sandbox,
// Interactive, IgnoreExitStatus and InitialInput map directly onto
// the run contract.
type RunOptions struct {
	UseSudo           bool
	User              string // sudo target user; empty means root
	Sandbox           bool
	Interactive       bool
	Logger            hostlog.Sink
	IgnoreExitStatus  bool
	InitialInput      string
}

// FileOptions configures Open.
type FileOptions struct {
	UseSudo bool
	Sandbox bool
	Logger  hostlog.Sink
}

// File is the scoped handle returned by Open. Close must always be called,
// even on the error path, to release the sudo temp-file dance (if any).
type File interface {
	io.Reader
	io.Writer
	io.Closer
	ReadLine() (string, error)
}

// Host is the operations every concrete transport (SSHHost, LocalHost,
// VagrantHost) must support.
type Host interface {
	// Slug returns the stable, container-unique identifier for this host.
	Slug() string

	// StartPath returns the directory HostContext stacks are joined on
	// top of: the remote user's home directory for SSH/Vagrant hosts
	// (resolved lazily via "echo $HOME" and cached), or the process's
	// working directory at startup for LocalHost.
	StartPath(ctx context.Context) (string, error)

	// Run shapes command through hostCtx and executes it, returning
	// merged stdout+stderr. Returns *fleeterr.CommandFailed when the exit
	// status is nonzero and opts.IgnoreExitStatus is false.
	Run(ctx context.Context, p pty.Pty, hostCtx *hostcontext.Context, command string, opts RunOptions) (string, error)

	// Open returns a scoped file handle for remotePath, applying the
	// sudo temp-file elevation dance when opts.UseSudo is set.
	Open(ctx context.Context, hostCtx *hostcontext.Context, remotePath, mode string, opts FileOptions) (File, error)

	// Stat and Listdir anchor a relative remotePath on hostCtx's current
	// cwd; SSH-backed hosts then go through the SFTP subchannel.
	Stat(ctx context.Context, hostCtx *hostcontext.Context, remotePath string) (FileInfo, error)
	Listdir(ctx context.Context, hostCtx *hostcontext.Context, remotePath string) ([]string, error)

	// Exists reports whether remotePath is a file or directory, via
	// `test -f || test -d`.
	Exists(ctx context.Context, p pty.Pty, hostCtx *hostcontext.Context, remotePath string) (bool, error)

	// HasCommand reports whether cmd resolves via `which`.
	HasCommand(ctx context.Context, p pty.Pty, hostCtx *hostcontext.Context, cmd string) (bool, error)
}

// FileInfo is the subset of SFTP stat results the framework exposes.
type FileInfo struct {
	Name  string
	Size  int64
	IsDir bool
	Mode  uint32
}
