package host

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"sync"

	"github.com/christophe-duc/fleetctl/pkg/hostcontext"
	fpty "github.com/christophe-duc/fleetctl/pkg/pty"
	"github.com/mgutz/str"
)

// VagrantHostSpec names a box in a Vagrantfile; the actual connection
// parameters are resolved lazily by shelling out to `vagrant ssh-config`,
//.
type VagrantHostSpec struct {
	Spec

	BoxName   string // machine name passed to `vagrant ssh-config <name>`
	VagrantCwd string // directory containing the Vagrantfile

	KeepaliveInterval  int
	RejectUnknownHosts bool
}

// VagrantHost resolves its connection parameters from `vagrant ssh-config`
// on first use and then delegates every operation to an underlying
// SSHHost: a Vagrant box is just a thin decorator over a regular SSH
// transport.
type VagrantHost struct {
	spec  VagrantHostSpec
	cache *ConnectionCache

	resolveOnce sync.Once
	inner       *SSHHost
	resolveErr  error
}

// NewVagrantHost builds a VagrantHost. cache is shared with any other
// SSHHost-backed hosts so that repeat connections to the same box reuse a
// single cache entry.
func NewVagrantHost(spec VagrantHostSpec, cache *ConnectionCache) *VagrantHost {
	return &VagrantHost{spec: spec, cache: cache}
}

func (h *VagrantHost) Slug() string { return h.spec.Slug }

// vagrantSSHConfig is the subset of `vagrant ssh-config` fields this
// module cares about.
type vagrantSSHConfig struct {
	hostName     string
	port         int
	user         string
	identityFile string
}

func parseVagrantSSHConfig(output []byte) vagrantSSHConfig {
	var cfg vagrantSSHConfig
	scanner := bufio.NewScanner(bytes.NewReader(output))
	for scanner.Scan() {
		fields := str.ToArgv(strings.TrimSpace(scanner.Text()))
		if len(fields) != 2 {
			continue
		}
		key, value := strings.ToLower(fields[0]), strings.Trim(fields[1], `"`)
		switch key {
		case "hostname":
			cfg.hostName = value
		case "user":
			cfg.user = value
		case "port":
			if p, err := strconv.Atoi(value); err == nil {
				cfg.port = p
			}
		case "identityfile":
			cfg.identityFile = value
		}
	}
	return cfg
}

func (h *VagrantHost) resolve(ctx context.Context) (*SSHHost, error) {
	h.resolveOnce.Do(func() {
		cmd := exec.CommandContext(ctx, "vagrant", "ssh-config", h.spec.BoxName)
		if h.spec.VagrantCwd != "" {
			cmd.Dir = h.spec.VagrantCwd
		}
		out, err := cmd.Output()
		if err != nil {
			h.resolveErr = fmt.Errorf("vagrant ssh-config %s: %w", h.spec.BoxName, err)
			return
		}

		parsed := parseVagrantSSHConfig(out)
		sshSpec := SSHHostSpec{
			Spec:               h.spec.Spec,
			Address:            parsed.hostName,
			Port:               parsed.port,
			ClassKey:           "vagrant:" + h.spec.BoxName,
			KeyFile:            parsed.identityFile,
			RejectUnknownHosts: h.spec.RejectUnknownHosts,
		}
		if parsed.user != "" {
			sshSpec.Username = parsed.user
		}
		h.inner = NewSSHHost(sshSpec, h.cache)
	})
	return h.inner, h.resolveErr
}

func (h *VagrantHost) StartPath(ctx context.Context) (string, error) {
	inner, err := h.resolve(ctx)
	if err != nil {
		return "", err
	}
	return inner.StartPath(ctx)
}

func (h *VagrantHost) Run(ctx context.Context, p fpty.Pty, hostCtx *hostcontext.Context, command string, opts RunOptions) (string, error) {
	inner, err := h.resolve(ctx)
	if err != nil {
		return "", err
	}
	return inner.Run(ctx, p, hostCtx, command, opts)
}

func (h *VagrantHost) Open(ctx context.Context, hostCtx *hostcontext.Context, remotePath, mode string, opts FileOptions) (File, error) {
	inner, err := h.resolve(ctx)
	if err != nil {
		return nil, err
	}
	return inner.Open(ctx, hostCtx, remotePath, mode, opts)
}

func (h *VagrantHost) Stat(ctx context.Context, hostCtx *hostcontext.Context, remotePath string) (FileInfo, error) {
	inner, err := h.resolve(ctx)
	if err != nil {
		return FileInfo{}, err
	}
	return inner.Stat(ctx, hostCtx, remotePath)
}

func (h *VagrantHost) Listdir(ctx context.Context, hostCtx *hostcontext.Context, remotePath string) ([]string, error) {
	inner, err := h.resolve(ctx)
	if err != nil {
		return nil, err
	}
	return inner.Listdir(ctx, hostCtx, remotePath)
}

func (h *VagrantHost) Exists(ctx context.Context, p fpty.Pty, hostCtx *hostcontext.Context, remotePath string) (bool, error) {
	inner, err := h.resolve(ctx)
	if err != nil {
		return false, err
	}
	return inner.Exists(ctx, p, hostCtx, remotePath)
}

func (h *VagrantHost) HasCommand(ctx context.Context, p fpty.Pty, hostCtx *hostcontext.Context, cmd string) (bool, error) {
	inner, err := h.resolve(ctx)
	if err != nil {
		return false, err
	}
	return inner.HasCommand(ctx, p, hostCtx, cmd)
}
