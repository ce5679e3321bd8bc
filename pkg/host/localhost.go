package host

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"

	"github.com/christophe-duc/fleetctl/pkg/fleeterr"
	"github.com/christophe-duc/fleetctl/pkg/hostcontext"
	"github.com/christophe-duc/fleetctl/pkg/hostlog"
	fpty "github.com/christophe-duc/fleetctl/pkg/pty"
	"github.com/christophe-duc/fleetctl/pkg/utils"
	"github.com/jesseduffield/kill"
	"github.com/mgutz/str"
)

// LocalHostSpec configures the local machine as a Host. Address is always
// "localhost"; commands run via a locally spawned bash shell.
type LocalHostSpec struct {
	Spec
}

// localSudoCell is the process-global, protected cell holding the sudo
// password shared by every LocalHost in the process. The password is
// cached only after `sudo ls` has succeeded with it, and three failed
// validations are fatal.
type localSudoCell struct {
	mu       sync.Mutex
	password string
	valid    bool
	attempts int
}

var globalLocalSudoCell = &localSudoCell{}

// PasswordPrompt obtains the sudo password for LocalHost while none has
// yet been validated. It is called once per validation attempt, so at most
// three times per process.
type PasswordPrompt func() (string, error)

func (c *localSudoCell) acquire(prompt PasswordPrompt, run func(password string) error) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.valid {
		return c.password, nil
	}

	for c.attempts < 3 {
		password, err := prompt()
		if err != nil {
			return "", err
		}
		c.attempts++
		if err := run(password); err == nil {
			c.password = password
			c.valid = true
			return password, nil
		}
	}
	return "", fleeterr.NewSudoPasswordRejected(c.attempts)
}

// LocalHost runs commands via a local "/bin/bash -c" shell. The shell is
// not attached to a PTY: its stdout and stderr are captured into one
// buffer, and RunOptions.Interactive does not change how it runs.
type LocalHost struct {
	spec           LocalHostSpec
	startPath      string
	startPathOnce  sync.Once
	passwordPrompt PasswordPrompt
}

// NewLocalHost builds a LocalHost. passwordPrompt is called the first time
// a sudo call needs a password, and again after each rejected attempt, up
// to three attempts per process.
func NewLocalHost(spec LocalHostSpec, passwordPrompt PasswordPrompt) *LocalHost {
	return &LocalHost{spec: spec, passwordPrompt: passwordPrompt}
}

func (h *LocalHost) Slug() string { return h.spec.Slug }

// StartPath returns the process's working directory at startup.
func (h *LocalHost) StartPath(ctx context.Context) (string, error) {
	h.startPathOnce.Do(func() {
		wd, err := os.Getwd()
		if err != nil {
			h.startPath = "/"
			return
		}
		h.startPath = wd
	})
	return h.startPath, nil
}

func (h *LocalHost) sudoPassword() (string, error) {
	return globalLocalSudoCell.acquire(h.passwordPrompt, func(password string) error {
		cmd := exec.Command("/bin/bash", "-c", fmt.Sprintf("echo %s | sudo -S ls >/dev/null 2>&1", utils.Quoted(password)))
		return cmd.Run()
	})
}

// Run executes the shaped command (with any sudo wrapping) via
// `/bin/bash -c`, relayed through os/exec rather than an SSH channel.
func (h *LocalHost) Run(ctx context.Context, p fpty.Pty, hostCtx *hostcontext.Context, command string, opts RunOptions) (string, error) {
	startPath, _ := h.StartPath(ctx)
	shaped := hostCtx.Shape(startPath, command, opts.Sandbox)

	if opts.Sandbox {
		shaped = fmt.Sprintf("bash -n -c %s; echo %s", quoteArg(shaped), quoteArg(shaped))
	}

	finalCommand := shaped
	if opts.UseSudo && !opts.Sandbox {
		password, err := h.sudoPassword()
		if err != nil {
			return "", err
		}
		finalCommand = shapeSudoNonInteractive(password, shaped)
	}

	logger := opts.Logger
	if logger == nil {
		logger = hostlog.Noop()
	}
	entry := logger.LogRun(h.spec.Slug, command, opts.UseSudo, opts.Sandbox, opts.Interactive)

	ctxCmd, cancel := context.WithCancel(ctx)
	defer cancel()

	cmd := exec.Command("/bin/bash", "-c", finalCommand)
	kill.PrepareForChildren(cmd)
	var buf bytes.Buffer
	cmd.Stdout = &buf
	cmd.Stderr = &buf
	if opts.InitialInput != "" {
		cmd.Stdin = strings.NewReader(opts.InitialInput)
	}

	if err := cmd.Start(); err != nil {
		return "", err
	}

	waitErr := make(chan error, 1)
	go func() { waitErr <- cmd.Wait() }()

	var err error
	select {
	case <-ctxCmd.Done():
		killProcessTree(cmd)
		err = <-waitErr
	case err = <-waitErr:
	}
	entry.LogIO(buf.Bytes())

	statusCode := 0
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			statusCode = exitErr.ExitCode()
		} else {
			return "", err
		}
	}
	entry.SetStatusCode(statusCode)

	result := buf.String()
	if opts.Sandbox {
		result = sandboxPlaceholder
	}

	if statusCode != 0 && !opts.IgnoreExitStatus {
		return result, fleeterr.NewCommandFailed(command, h.spec.Slug, statusCode, result)
	}
	return result, nil
}

// killProcessTree kills cmd's process group via jesseduffield/kill, to
// reap a whole subprocess tree rather than just the shell's own pid.
func killProcessTree(cmd *exec.Cmd) error {
	if cmd.Process == nil {
		return nil
	}
	return kill.Kill(cmd)
}

// Open implements the local variant of the file contract: a direct
// os.OpenFile of remotePath, with no SFTP subchannel. opts.UseSudo is not
// applied; the file is opened with the process's own permissions and no
// sudo temp-file copy is made.
func (h *LocalHost) Open(ctx context.Context, hostCtx *hostcontext.Context, remotePath, mode string, opts FileOptions) (File, error) {
	flags := os.O_RDONLY
	if strings.Contains(mode, "w") {
		flags = os.O_WRONLY | os.O_CREATE | os.O_TRUNC
	}
	f, err := os.OpenFile(remotePath, flags, 0644)
	if err != nil {
		return nil, err
	}
	return &localFile{file: f, opts: opts}, nil
}

type localFile struct {
	file *os.File
	opts FileOptions
}

func (f *localFile) Read(p []byte) (int, error) { return f.file.Read(p) }
func (f *localFile) Close() error                { return f.file.Close() }

func (f *localFile) Write(p []byte) (int, error) {
	if f.opts.Sandbox {
		return len(p), nil
	}
	return f.file.Write(p)
}

func (f *localFile) ReadLine() (string, error) {
	var sb strings.Builder
	buf := make([]byte, 1)
	for {
		n, err := f.file.Read(buf)
		if n > 0 {
			if buf[0] == '\n' {
				return sb.String(), nil
			}
			sb.WriteByte(buf[0])
		}
		if err != nil {
			if sb.Len() > 0 {
				return sb.String(), nil
			}
			return "", err
		}
	}
}

// Stat is the local variant: remotePath is anchored on hostCtx's current
// cwd before a thin os.Stat wrapper runs.
func (h *LocalHost) Stat(ctx context.Context, hostCtx *hostcontext.Context, remotePath string) (FileInfo, error) {
	resolved, err := h.resolveAgainstContext(ctx, hostCtx, remotePath)
	if err != nil {
		return FileInfo{}, err
	}
	info, err := os.Stat(resolved)
	if err != nil {
		return FileInfo{}, err
	}
	return FileInfo{Name: info.Name(), Size: info.Size(), IsDir: info.IsDir(), Mode: uint32(info.Mode())}, nil
}

// Listdir is the local variant: remotePath is anchored on hostCtx's
// current cwd before a thin os.ReadDir wrapper runs.
func (h *LocalHost) Listdir(ctx context.Context, hostCtx *hostcontext.Context, remotePath string) ([]string, error) {
	resolved, err := h.resolveAgainstContext(ctx, hostCtx, remotePath)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(resolved)
	if err != nil {
		return nil, err
	}
	names := make([]string, len(entries))
	for i, e := range entries {
		names[i] = e.Name()
	}
	return names, nil
}

// resolveAgainstContext anchors remotePath on hostCtx's current cwd,
// mirroring SSHHost's resolution so both transports give Stat/Listdir
// the same relative-path semantics a shaped shell command would see.
func (h *LocalHost) resolveAgainstContext(ctx context.Context, hostCtx *hostcontext.Context, remotePath string) (string, error) {
	if filepath.IsAbs(remotePath) {
		return remotePath, nil
	}
	startPath, err := h.StartPath(ctx)
	if err != nil {
		return "", err
	}
	return filepath.Join(hostCtx.CurrentPath(startPath), remotePath), nil
}

// Exists shells out to `test -f || test -d` exactly like SSHHost, for
// parity of semantics across transports.
func (h *LocalHost) Exists(ctx context.Context, p fpty.Pty, hostCtx *hostcontext.Context, remotePath string) (bool, error) {
	quoted := utils.Quoted(remotePath)
	_, err := h.Run(ctx, p, hostCtx, fmt.Sprintf("test -f %s || test -d %s", quoted, quoted), RunOptions{})
	if err == nil {
		return true, nil
	}
	if _, ok := err.(*fleeterr.CommandFailed); ok {
		return false, nil
	}
	return false, err
}

// HasCommand shells out to `which` for the first word of cmd, as split by
// mgutz/str.
func (h *LocalHost) HasCommand(ctx context.Context, p fpty.Pty, hostCtx *hostcontext.Context, cmd string) (bool, error) {
	argv := str.ToArgv(cmd)
	if len(argv) == 0 {
		return false, nil
	}
	_, err := h.Run(ctx, p, hostCtx, fmt.Sprintf("which %s", utils.Quoted(argv[0])), RunOptions{})
	if err == nil {
		return true, nil
	}
	if _, ok := err.(*fleeterr.CommandFailed); ok {
		return false, nil
	}
	return false, err
}
