package host

import (
	"context"
	"errors"
	"fmt"

	"github.com/christophe-duc/fleetctl/pkg/fleeterr"
	"github.com/christophe-duc/fleetctl/pkg/hostcontext"
	fpty "github.com/christophe-duc/fleetctl/pkg/pty"
	"github.com/christophe-duc/fleetctl/pkg/utils"
)

// Exists reports whether remotePath is a file or directory, via
// `test -f || test -d`.
func (h *SSHHost) Exists(ctx context.Context, p fpty.Pty, hostCtx *hostcontext.Context, remotePath string) (bool, error) {
	quoted := utils.Quoted(remotePath)
	_, err := h.Run(ctx, p, hostCtx, fmt.Sprintf("test -f %s || test -d %s", quoted, quoted), RunOptions{Sandbox: false})
	if err == nil {
		return true, nil
	}
	var cmdFailed *fleeterr.CommandFailed
	if errors.As(err, &cmdFailed) {
		return false, nil
	}
	return false, err
}

// HasCommand reports whether cmd resolves via `which`.
func (h *SSHHost) HasCommand(ctx context.Context, p fpty.Pty, hostCtx *hostcontext.Context, cmd string) (bool, error) {
	_, err := h.Run(ctx, p, hostCtx, fmt.Sprintf("which %s", utils.Quoted(cmd)), RunOptions{Interactive: false, Sandbox: false})
	if err == nil {
		return true, nil
	}
	var cmdFailed *fleeterr.CommandFailed
	if errors.As(err, &cmdFailed) {
		return false, nil
	}
	return false, err
}
