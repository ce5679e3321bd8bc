package host

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/christophe-duc/fleetctl/pkg/fleeterr"
	"github.com/christophe-duc/fleetctl/pkg/hostcontext"
	"github.com/christophe-duc/fleetctl/pkg/hostlog"
	"github.com/christophe-duc/fleetctl/pkg/pty"
	sshconfig "github.com/kevinburke/ssh_config"
	"github.com/skeema/knownhosts"
	"golang.org/x/crypto/ssh"
)

// SSHHostSpec configures a remote endpoint reached over SSHv2. Exactly one
// of Password, KeyFile, or KeyMaterial should be set.
type SSHHostSpec struct {
	Spec

	Address  string
	Port     int // default 22
	ClassKey string // hosts sharing a ClassKey share one ConnectionCache entry; defaults to Address:Port

	KeyFile       string
	KeyMaterial   []byte
	KeyPassphrase string

	SSHConfigPath      string
	Timeout            time.Duration
	KeepaliveInterval  time.Duration
	RejectUnknownHosts bool
	KnownHostsPath     string

	ConnectProgress ConnectProgress
}

func (s SSHHostSpec) portOrDefault() int {
	if s.Port == 0 {
		return 22
	}
	return s.Port
}

func (s SSHHostSpec) classKeyOrDefault() string {
	if s.ClassKey != "" {
		return s.ClassKey
	}
	return fmt.Sprintf("%s:%d", s.Address, s.portOrDefault())
}

// SSHHost is the concrete, SSH-backed Host implementation.
type SSHHost struct {
	spec  SSHHostSpec
	cache *ConnectionCache

	startPathOnce sync.Once
	startPath     string
	startPathErr  error
}

// NewSSHHost builds an SSHHost sharing cache across every host of the same
// class (this: "one cache entry per host class").
func NewSSHHost(spec SSHHostSpec, cache *ConnectionCache) *SSHHost {
	return &SSHHost{spec: spec, cache: cache}
}

func (h *SSHHost) Slug() string { return h.spec.Slug }

// mergedDialConfig applies the SSH-config precedence: if
// SSHConfigPath is set, its identityfile/user/port/connecttimeout are
// loaded first, then the host's explicit fields override them.
func (h *SSHHost) mergedDialConfig() (sshDialConfig, error) {
	cfg := sshDialConfig{
		Address:            h.spec.Address,
		Port:               h.spec.portOrDefault(),
		Username:           h.spec.Username,
		Password:           h.spec.Password,
		KeyMaterial:        h.spec.KeyMaterial,
		KeyPassphrase:      h.spec.KeyPassphrase,
		KeyFile:            h.spec.KeyFile,
		Timeout:            h.spec.Timeout,
		KeepaliveInterval:  h.spec.KeepaliveInterval,
		RejectUnknownHosts: h.spec.RejectUnknownHosts,
		KnownHostsPath:     h.spec.KnownHostsPath,
	}

	if h.spec.SSHConfigPath == "" {
		return cfg, nil
	}

	f, err := os.Open(h.spec.SSHConfigPath)
	if err != nil {
		return cfg, err
	}
	defer f.Close()

	decoded, err := sshconfig.Decode(f)
	if err != nil {
		return cfg, err
	}

	alias := h.spec.Address
	if identityFile, _ := decoded.Get(alias, "IdentityFile"); identityFile != "" && cfg.KeyFile == "" && len(cfg.KeyMaterial) == 0 {
		cfg.KeyFile = expandHome(identityFile)
	}
	if user, _ := decoded.Get(alias, "User"); user != "" && cfg.Username == "" {
		cfg.Username = user
	}
	if portStr, _ := decoded.Get(alias, "Port"); portStr != "" && h.spec.Port == 0 {
		if port, err := strconv.Atoi(portStr); err == nil {
			cfg.Port = port
		}
	}
	if timeoutStr, _ := decoded.Get(alias, "ConnectTimeout"); timeoutStr != "" && h.spec.Timeout == 0 {
		if secs, err := strconv.Atoi(timeoutStr); err == nil {
			cfg.Timeout = time.Duration(secs) * time.Second
		}
	}

	// Now re-apply the host's explicit fields on top, since they take
	// precedence over whatever the config file supplied.
	if h.spec.Username != "" {
		cfg.Username = h.spec.Username
	}
	if h.spec.Port != 0 {
		cfg.Port = h.spec.Port
	}
	if h.spec.Timeout != 0 {
		cfg.Timeout = h.spec.Timeout
	}
	if h.spec.KeyFile != "" {
		cfg.KeyFile = h.spec.KeyFile
	}

	return cfg, nil
}

func expandHome(p string) string {
	if strings.HasPrefix(p, "~/") {
		home, err := os.UserHomeDir()
		if err == nil {
			return filepath.Join(home, p[2:])
		}
	}
	return p
}

func (h *SSHHost) client(ctx context.Context) (*ssh.Client, error) {
	cfg, err := h.mergedDialConfig()
	if err != nil {
		return nil, fleeterr.NewConnectionFailed(h.spec.Slug, "resolve", err)
	}
	client, err := h.cache.Get(ctx, h.spec.classKeyOrDefault(), cfg, h.spec.ConnectProgress)
	if err != nil {
		h.cache.Drop(h.spec.classKeyOrDefault())
		return nil, err
	}
	return client, nil
}

// StartPath resolves the remote user's home directory lazily via `echo
// $HOME` on first use and caches it
// supplement.
func (h *SSHHost) StartPath(ctx context.Context) (string, error) {
	h.startPathOnce.Do(func() {
		client, err := h.client(ctx)
		if err != nil {
			h.startPathErr = err
			return
		}
		session, err := client.NewSession()
		if err != nil {
			h.startPathErr = fleeterr.NewConnectionFailed(h.spec.Slug, "handshake", err)
			return
		}
		defer session.Close()

		out, err := session.Output("echo $HOME")
		if err != nil {
			h.startPathErr = err
			return
		}
		h.startPath = strings.TrimSpace(string(out))
	})
	return h.startPath, h.startPathErr
}

func buildHostKeyCallback(cfg sshDialConfig) (ssh.HostKeyCallback, error) {
	if !cfg.RejectUnknownHosts {
		return ssh.InsecureIgnoreHostKey(), nil
	}

	path := cfg.KnownHostsPath
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, err
		}
		path = filepath.Join(home, ".ssh", "known_hosts")
	}

	khCallback, err := knownhosts.New(path)
	if err != nil {
		return nil, err
	}
	return khCallback, nil
}
