package host

import (
	"context"
	"fmt"
	"math/rand"
	"path"
	"strings"
	"time"

	"github.com/christophe-duc/fleetctl/pkg/fleeterr"
	"github.com/christophe-duc/fleetctl/pkg/hostcontext"
	"github.com/christophe-duc/fleetctl/pkg/hostlog"
	fpty "github.com/christophe-duc/fleetctl/pkg/pty"
	"github.com/christophe-duc/fleetctl/pkg/utils"
	"github.com/pkg/sftp"
)

// sftpWriteChunk is the chunk size writes are split into, working around
// an observed blocking behavior around ~1180 bytes in the underlying SSH
// library.
const sftpWriteChunk = 1024

func (h *SSHHost) sftpClient(ctx context.Context) (*sftp.Client, error) {
	client, err := h.client(ctx)
	if err != nil {
		return nil, err
	}
	return sftp.NewClient(client)
}

// sudoFile wraps an *sftp.File opened against a temp path owned by the
// connecting user. Close performs the reference chown/chmod and the
// final sudo mv back onto the real target.
type sudoFile struct {
	h             *SSHHost
	file          *sftp.File
	ctx           context.Context
	hostCtx       *hostcontext.Context
	targetPath    string
	tempPath      string
	targetExisted bool
	opts          FileOptions
}

func (f *sudoFile) Read(p []byte) (int, error) { return f.file.Read(p) }

func (f *sudoFile) ReadLine() (string, error) { return readLine(f.file) }

func (f *sudoFile) Write(p []byte) (int, error) {
	return chunkedWrite(f.file, p, f.opts.Sandbox)
}

func (f *sudoFile) Close() error {
	closeErr := f.file.Close()

	if !f.opts.UseSudo {
		return closeErr
	}

	runOpts := RunOptions{UseSudo: true, Sandbox: f.opts.Sandbox, Logger: f.opts.Logger}
	p := fpty.NewDummy("")

	if f.targetExisted {
		if _, err := f.h.Run(f.ctx, p, f.hostCtx, fmt.Sprintf("chown --reference=%s %s", utils.Quoted(f.targetPath), utils.Quoted(f.tempPath)), runOpts); err != nil {
			return err
		}
		if _, err := f.h.Run(f.ctx, p, f.hostCtx, fmt.Sprintf("chmod --reference=%s %s", utils.Quoted(f.targetPath), utils.Quoted(f.tempPath)), runOpts); err != nil {
			return err
		}
	}
	if _, err := f.h.Run(f.ctx, p, f.hostCtx, fmt.Sprintf("mv %s %s", utils.Quoted(f.tempPath), utils.Quoted(f.targetPath)), runOpts); err != nil {
		return err
	}
	return closeErr
}

// Open implements the file-transfer contract, including the
// sudo temp-file elevation dance.
func (h *SSHHost) Open(ctx context.Context, hostCtx *hostcontext.Context, remotePath, mode string, opts FileOptions) (File, error) {
	client, err := h.sftpClient(ctx)
	if err != nil {
		return nil, err
	}

	logger := opts.Logger
	if logger == nil {
		logger = hostlog.Noop()
	}
	entry := logger.LogFile(h.spec.Slug, mode, remotePath, opts.UseSudo, opts.Sandbox)

	if !opts.UseSudo {
		f, err := openPlain(client, remotePath, mode)
		if err != nil {
			entry.Complete(false)
			return nil, err
		}
		entry.Complete(true)
		return &plainFile{file: f, opts: opts}, nil
	}

	tempPath := fmt.Sprintf("deployer-tempfile-%d-%d", time.Now().Unix(), rand.Intn(1_000_000))

	p := fpty.NewDummy("")
	existsAlready, err := h.Exists(ctx, p, hostCtx, remotePath)
	if err != nil {
		entry.Complete(false)
		return nil, err
	}

	runOpts := RunOptions{UseSudo: true, Sandbox: opts.Sandbox, Logger: logger}

	switch {
	case existsAlready:
		if _, err := h.Run(ctx, p, hostCtx, fmt.Sprintf("cp %s %s", utils.Quoted(remotePath), utils.Quoted(tempPath)), runOpts); err != nil {
			entry.Complete(false)
			return nil, err
		}
		if _, err := h.Run(ctx, p, hostCtx, fmt.Sprintf("chown %s %s", utils.Quoted(h.spec.Username), utils.Quoted(tempPath)), runOpts); err != nil {
			entry.Complete(false)
			return nil, err
		}
		if _, err := h.Run(ctx, p, hostCtx, fmt.Sprintf("chmod u+rw %s", utils.Quoted(tempPath)), runOpts); err != nil {
			entry.Complete(false)
			return nil, err
		}
	case strings.Contains(mode, "w"):
		if _, err := h.Run(ctx, p, hostCtx, fmt.Sprintf("touch %s", utils.Quoted(tempPath)), RunOptions{Sandbox: opts.Sandbox, Logger: logger}); err != nil {
			entry.Complete(false)
			return nil, err
		}
	default:
		entry.Complete(false)
		return nil, fleeterr.NewConstructionError("remote file does not exist: " + remotePath)
	}

	f, err := openPlain(client, tempPath, mode)
	if err != nil {
		entry.Complete(false)
		return nil, err
	}

	entry.Complete(true)
	return &sudoFile{
		h:             h,
		ctx:           ctx,
		hostCtx:       hostCtx,
		file:          f,
		targetPath:    remotePath,
		tempPath:      tempPath,
		targetExisted: existsAlready,
		opts:          opts,
	}, nil
}

func openPlain(client *sftp.Client, remotePath, mode string) (*sftp.File, error) {
	if strings.Contains(mode, "w") {
		return client.Create(remotePath)
	}
	return client.Open(remotePath)
}

type plainFile struct {
	file *sftp.File
	opts FileOptions
}

func (f *plainFile) Read(p []byte) (int, error) { return f.file.Read(p) }
func (f *plainFile) Close() error                { return f.file.Close() }
func (f *plainFile) ReadLine() (string, error)   { return readLine(f.file) }

func (f *plainFile) Write(p []byte) (int, error) {
	return chunkedWrite(f.file, p, f.opts.Sandbox)
}

func readLine(file *sftp.File) (string, error) {
	var sb strings.Builder
	buf := make([]byte, 1)
	for {
		n, err := file.Read(buf)
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

// chunkedWrite implements the chunked-write workaround and
// sandbox-mode /dev/null redirection.
func chunkedWrite(file *sftp.File, p []byte, sandbox bool) (int, error) {
	if sandbox {
		return len(p), nil
	}
	written := 0
	for written < len(p) {
		end := written + sftpWriteChunk
		if end > len(p) {
			end = len(p)
		}
		n, err := file.Write(p[written:end])
		written += n
		if err != nil {
			return written, err
		}
	}
	return written, nil
}

// Stat anchors a relative remotePath on hostCtx's current cwd, then
// stats it.
func (h *SSHHost) Stat(ctx context.Context, hostCtx *hostcontext.Context, remotePath string) (FileInfo, error) {
	client, err := h.sftpClient(ctx)
	if err != nil {
		return FileInfo{}, err
	}
	resolved, err := h.resolveAgainstContext(ctx, hostCtx, remotePath)
	if err != nil {
		return FileInfo{}, err
	}
	info, err := client.Stat(resolved)
	if err != nil {
		return FileInfo{}, err
	}
	return FileInfo{Name: info.Name(), Size: info.Size(), IsDir: info.IsDir(), Mode: uint32(info.Mode())}, nil
}

// Listdir anchors a relative remotePath on hostCtx's current cwd, then
// lists it.
func (h *SSHHost) Listdir(ctx context.Context, hostCtx *hostcontext.Context, remotePath string) ([]string, error) {
	client, err := h.sftpClient(ctx)
	if err != nil {
		return nil, err
	}
	resolved, err := h.resolveAgainstContext(ctx, hostCtx, remotePath)
	if err != nil {
		return nil, err
	}
	entries, err := client.ReadDir(resolved)
	if err != nil {
		return nil, err
	}
	names := make([]string, len(entries))
	for i, e := range entries {
		names[i] = e.Name()
	}
	return names, nil
}

// resolveAgainstContext anchors remotePath on hostCtx's current cwd the
// way a shaped shell command would: the SFTP protocol has no chdir of its
// own, so an absolute cwd must be joined in client-side, matching the
// working-directory reset a run through hostCtx gets for free.
func (h *SSHHost) resolveAgainstContext(ctx context.Context, hostCtx *hostcontext.Context, remotePath string) (string, error) {
	if path.IsAbs(remotePath) {
		return remotePath, nil
	}
	startPath, err := h.StartPath(ctx)
	if err != nil {
		return "", err
	}
	return path.Join(hostCtx.CurrentPath(startPath), remotePath), nil
}
