package host

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/christophe-duc/fleetctl/pkg/fleeterr"
	deadlock "github.com/sasha-s/go-deadlock"
	"golang.org/x/crypto/ssh"
)

// ConnectProgress reports progress through the SSH connection phases
// resolve, socket, transport and auth, so a caller can render a progress
// bar. Key exchange happens inside the transport step and is not reported
// as a phase of its own.
type ConnectProgress func(phase string)

// connectionEntry is one cache slot, keyed per host class, not per host
// instance: every SSHHost sharing a ClassKey shares one underlying
// transport.
type connectionEntry struct {
	client *ssh.Client
}

// ConnectionCache is a per-host-class singleton holding the live SSH
// transport, created lazily on first use under a mutex.
type ConnectionCache struct {
	mu      deadlock.Mutex
	entries map[string]*connectionEntry
}

// NewConnectionCache returns an empty cache.
func NewConnectionCache() *ConnectionCache {
	return &ConnectionCache{entries: make(map[string]*connectionEntry)}
}

// Get returns the live *ssh.Client for classKey, dialing and authenticating
// under the cache's mutex if there is no entry yet, or if the existing
// entry's transport has gone inactive. cfg and progress describe how to
// build a fresh connection when one is needed.
func (c *ConnectionCache) Get(ctx context.Context, classKey string, cfg sshDialConfig, progress ConnectProgress) (*ssh.Client, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if entry, ok := c.entries[classKey]; ok {
		if isAlive(entry.client) {
			c.setKeepalive(entry.client, cfg.KeepaliveInterval)
			return entry.client, nil
		}
		delete(c.entries, classKey)
	}

	client, err := dialAndAuth(ctx, cfg, progress)
	if err != nil {
		return nil, err
	}

	c.entries[classKey] = &connectionEntry{client: client}
	c.setKeepalive(client, cfg.KeepaliveInterval)
	return client, nil
}

// Drop removes classKey's entry, forcing the next Get to reconnect from
// scratch. Called after a ConnectionFailed so a later retry doesn't reuse a
// half-dead transport.
func (c *ConnectionCache) Drop(classKey string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, classKey)
}

// Close tears down every live transport in the cache. The first close error
// encountered is returned, but every entry is still attempted.
func (c *ConnectionCache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var firstErr error
	for classKey, entry := range c.entries {
		if err := entry.client.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(c.entries, classKey)
	}
	return firstErr
}

// Snapshot reports, for every cached host class, whether its transport is
// currently alive. Used by a background health watcher to notice a dropped
// connection before the next command sent on it fails.
func (c *ConnectionCache) Snapshot() map[string]bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make(map[string]bool, len(c.entries))
	for classKey, entry := range c.entries {
		out[classKey] = isAlive(entry.client)
	}
	return out
}

func (c *ConnectionCache) setKeepalive(client *ssh.Client, interval time.Duration) {
	if interval <= 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for range ticker.C {
			if _, _, err := client.SendRequest("keepalive@fleetctl", true, nil); err != nil {
				return
			}
		}
	}()
}

func isAlive(client *ssh.Client) bool {
	if client == nil {
		return false
	}
	_, _, err := client.SendRequest("keepalive@fleetctl-probe", true, nil)
	return err == nil
}

// sshDialConfig carries everything dialAndAuth needs, already merged from
// any SSH client config file and the host's explicit fields, with the
// host's own fields taking precedence.
type sshDialConfig struct {
	Address            string
	Port               int
	Username           string
	Password           string
	KeyMaterial         []byte
	KeyPassphrase       string
	KeyFile             string
	Timeout             time.Duration
	KeepaliveInterval   time.Duration
	RejectUnknownHosts  bool
	KnownHostsPath      string
}

func dialAndAuth(ctx context.Context, cfg sshDialConfig, progress ConnectProgress) (*ssh.Client, error) {
	report := func(phase string) {
		if progress != nil {
			progress(phase)
		}
	}

	report("resolve")
	addr := fmt.Sprintf("%s:%d", cfg.Address, cfg.Port)
	if _, _, err := net.SplitHostPort(addr); err != nil {
		return nil, fleeterr.NewConnectionFailed(cfg.Address, "resolve", err)
	}

	authMethods, err := buildAuthMethods(cfg)
	if err != nil {
		return nil, fleeterr.NewConnectionFailed(cfg.Address, "auth", err)
	}

	hostKeyCallback, err := buildHostKeyCallback(cfg)
	if err != nil {
		return nil, fleeterr.NewConnectionFailed(cfg.Address, "key exchange", err)
	}

	clientConfig := &ssh.ClientConfig{
		User:            cfg.Username,
		Auth:            authMethods,
		HostKeyCallback: hostKeyCallback,
		Timeout:         cfg.Timeout,
	}

	report("socket")
	dialer := net.Dialer{Timeout: cfg.Timeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fleeterr.NewConnectionFailed(cfg.Address, "socket", err)
	}

	report("transport")
	sshConn, chans, reqs, err := ssh.NewClientConn(conn, addr, clientConfig)
	if err != nil {
		conn.Close()
		return nil, fleeterr.NewConnectionFailed(cfg.Address, "handshake", err)
	}

	report("auth")
	client := ssh.NewClient(sshConn, chans, reqs)
	return client, nil
}

// buildAuthMethods implements the precedence: inline key
// material, then a key file, then a password.
func buildAuthMethods(cfg sshDialConfig) ([]ssh.AuthMethod, error) {
	if len(cfg.KeyMaterial) > 0 {
		signer, err := parseSigner(cfg.KeyMaterial, cfg.KeyPassphrase)
		if err != nil {
			return nil, err
		}
		return []ssh.AuthMethod{ssh.PublicKeys(signer)}, nil
	}
	if cfg.KeyFile != "" {
		signer, err := parseSignerFile(cfg.KeyFile, cfg.KeyPassphrase)
		if err != nil {
			return nil, err
		}
		return []ssh.AuthMethod{ssh.PublicKeys(signer)}, nil
	}
	return []ssh.AuthMethod{ssh.Password(cfg.Password)}, nil
}
