package host

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/christophe-duc/fleetctl/pkg/fleeterr"
	"github.com/christophe-duc/fleetctl/pkg/hostcontext"
	"github.com/christophe-duc/fleetctl/pkg/hostlog"
	fpty "github.com/christophe-duc/fleetctl/pkg/pty"
	"golang.org/x/crypto/ssh"
)

const sandboxPlaceholder = "<Not sure in sandbox>"

// Run implements the run contract.
func (h *SSHHost) Run(ctx context.Context, p fpty.Pty, hostCtx *hostcontext.Context, command string, opts RunOptions) (string, error) {
	startPath, err := h.StartPath(ctx)
	if err != nil {
		return "", err
	}

	shaped := hostCtx.Shape(startPath, command, opts.Sandbox)

	if opts.Sandbox {
		shaped = fmt.Sprintf("bash -n -c %s; echo %s", quoteArg(shaped), quoteArg(shaped))
	}

	finalCommand, password := h.applySudoShaping(shaped, opts)

	logger := opts.Logger
	if logger == nil {
		logger = hostlog.Noop()
	}
	runEntry := logger.LogRun(h.spec.Slug, command, opts.UseSudo, opts.Sandbox, opts.Interactive)

	client, err := h.client(ctx)
	if err != nil {
		return "", err
	}

	session, err := client.NewSession()
	if err != nil {
		return "", fleeterr.NewConnectionFailed(h.spec.Slug, "handshake", err)
	}
	defer session.Close()

	var output []byte
	var statusCode int

	if opts.Interactive {
		output, statusCode, err = h.runInteractive(p, session, finalCommand, password, runEntry, opts.InitialInput)
	} else {
		output, statusCode, err = h.runNonInteractive(session, finalCommand, runEntry)
	}
	if err != nil {
		return "", err
	}

	runEntry.SetStatusCode(statusCode)

	result := string(output)
	if opts.Sandbox {
		result = sandboxPlaceholder
	}

	if statusCode != 0 && !opts.IgnoreExitStatus {
		return result, fleeterr.NewCommandFailed(command, h.spec.Slug, statusCode, result)
	}
	return result, nil
}

// applySudoShaping wraps shaped in a sudo shell when opts.UseSudo is set.
// It returns the command to execute and, for the interactive shape, the
// password to inject once the magic prompt is seen (the non-interactive
// shape instead bakes the password straight into the piped echo).
func (h *SSHHost) applySudoShaping(shaped string, opts RunOptions) (string, string) {
	if !opts.UseSudo {
		return shaped, ""
	}
	if opts.Interactive {
		return shapeSudoInteractive(h.spec.magicSudoPromptOrDefault(), opts.User, shaped), h.spec.Password
	}
	return shapeSudoNonInteractive(h.spec.Password, shaped), ""
}

func quoteArg(s string) string {
	return "'" + strings.Replace(s, "'", `'\''`, -1) + "'"
}

// runInteractive implements the five-step interactive relay
// loop: PTY request with resize hook, raw-mode guard, non-blocking stdin
// forwarding with \n->\r translation, magic-sudo-prompt scanning on the
// channel's tail, and draining the channel after stdin EOF.
func (h *SSHHost) runInteractive(p fpty.Pty, session *ssh.Session, command, password string, entry hostlog.RunEntry, initialInput string) ([]byte, int, error) {
	size, err := p.GetSize()
	if err != nil {
		size = fpty.Size{Rows: 24, Cols: 80}
	}

	if err := session.RequestPty(h.spec.termOrDefault(), size.Rows, size.Cols, ssh.TerminalModes{}); err != nil {
		return nil, 0, fleeterr.NewConnectionFailed(h.spec.Slug, "handshake", err)
	}

	stdin, err := session.StdinPipe()
	if err != nil {
		return nil, 0, err
	}
	stdout, err := session.StdoutPipe()
	if err != nil {
		return nil, 0, err
	}
	session.Stderr = session.Stdout

	if err := session.Start(command); err != nil {
		return nil, 0, err
	}

	if stdinFile, ok := p.Stdin().(*os.File); ok {
		if guard, rawErr := fpty.EnterRawMode(int(stdinFile.Fd())); rawErr == nil {
			defer guard.Restore()
		}
	}

	var buf bytes.Buffer
	var mu sync.Mutex
	promptSent := false
	magicPrompt := h.spec.magicSudoPromptOrDefault()

	done := make(chan struct{})

	winch := make(chan os.Signal, 1)
	signal.Notify(winch, syscall.SIGWINCH)
	go func() {
		defer signal.Stop(winch)
		for {
			select {
			case <-winch:
				if newSize, sizeErr := p.GetSize(); sizeErr == nil {
					session.WindowChange(newSize.Rows, newSize.Cols)
				}
			case <-done:
				return
			}
		}
	}()

	go func() {
		chunk := make([]byte, 4096)
		for {
			n, rerr := stdout.Read(chunk)
			if n > 0 {
				mu.Lock()
				buf.Write(chunk[:n])
				tail := lastN(buf.Bytes(), sudoPromptWindow)
				shouldSend := password != "" && !promptSent && scanForSudoPrompt(tail, magicPrompt)
				if shouldSend {
					promptSent = true
				}
				mu.Unlock()

				writeWithRetry(p.Stdout(), chunk[:n])
				entry.LogIO(chunk[:n])

				if shouldSend {
					fmt.Fprintf(stdin, "%s\n", password)
				}
			}
			if rerr != nil {
				close(done)
				return
			}
		}
	}()

	if initialInput != "" {
		time.Sleep(200 * time.Millisecond)
		fmt.Fprint(stdin, initialInput)
	}

	go func() {
		chunk := make([]byte, 1)
		for {
			n, rerr := p.Stdin().Read(chunk)
			if n > 0 {
				b := chunk[0]
				if b == '\n' {
					b = '\r'
				}
				stdin.Write([]byte{b})
				time.Sleep(10 * time.Millisecond)
			}
			if rerr != nil {
				return
			}
		}
	}()

	<-done

	statusCode := 0
	if werr := session.Wait(); werr != nil {
		if exitErr, ok := werr.(*ssh.ExitError); ok {
			statusCode = exitErr.ExitStatus()
		} else {
			return buf.Bytes(), 0, fleeterr.NewConnectionFailed(h.spec.Slug, "exec", werr)
		}
	}

	return buf.Bytes(), statusCode, nil
}

// runNonInteractive implements the non-interactive read loop:
// no PTY, accumulate bytes from the channel until EOF or error.
func (h *SSHHost) runNonInteractive(session *ssh.Session, command string, entry hostlog.RunEntry) ([]byte, int, error) {
	var buf bytes.Buffer
	session.Stdout = &buf
	session.Stderr = &buf

	statusCode := 0
	err := session.Run(command)
	if err != nil {
		if exitErr, ok := err.(*ssh.ExitError); ok {
			statusCode = exitErr.ExitStatus()
		} else {
			// The channel closed (or never opened) instead of the command
			// actually exiting: there is no real status code to report, and
			// a retry needs to redial rather than re-run this channel.
			return buf.Bytes(), 0, fleeterr.NewConnectionFailed(h.spec.Slug, "exec", err)
		}
	}

	entry.LogIO(buf.Bytes())
	return buf.Bytes(), statusCode, nil
}

func lastN(b []byte, n int) []byte {
	if len(b) <= n {
		return b
	}
	return b[len(b)-n:]
}

// writeWithRetry retries a write after 200ms when the underlying writer
// reports it is temporarily unavailable.
func writeWithRetry(w io.Writer, p []byte) {
	for {
		_, err := w.Write(p)
		if err == nil {
			return
		}
		if !isTemporarilyUnavailable(err) {
			return
		}
		time.Sleep(200 * time.Millisecond)
	}
}

func isTemporarilyUnavailable(err error) bool {
	return strings.Contains(err.Error(), "temporarily unavailable") ||
		strings.Contains(err.Error(), "resource temporarily unavailable")
}
