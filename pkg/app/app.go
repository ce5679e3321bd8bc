package app

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"golang.org/x/term"

	"github.com/christophe-duc/fleetctl/pkg/config"
	"github.com/christophe-duc/fleetctl/pkg/console"
	"github.com/christophe-duc/fleetctl/pkg/host"
	"github.com/christophe-duc/fleetctl/pkg/hostcontainer"
	"github.com/christophe-duc/fleetctl/pkg/hostlog"
	"github.com/christophe-duc/fleetctl/pkg/log"
	"github.com/christophe-duc/fleetctl/pkg/node"
	fpty "github.com/christophe-duc/fleetctl/pkg/pty"
	"github.com/christophe-duc/fleetctl/pkg/tasks"
	"github.com/sirupsen/logrus"
)

// App wires together the services every fleet run needs: configuration,
// structured logging, the SSH connection cache shared across every host,
// the console an interactive run prompts through, and the controlling
// pseudo-terminal. A fleet tree (HostsContainer + NodeSpec) is built by the
// embedding program, not by App itself — there is no fleet-definition file
// format, only process configuration.
type App struct {
	closers []io.Closer

	Config    *config.AppConfig
	Log       *logrus.Entry
	Sink      hostlog.Sink
	Console   console.Console
	Pty       fpty.Pty
	Cache     *host.ConnectionCache
	Watcher   *tasks.Manager
	ErrorChan chan error
}

// NewApp bootstraps a new application from a loaded config. The console and
// pty are chosen by whether stdout is actually a terminal: a run piped into
// a file or CI log gets the non-blocking Noop console and a non-interactive
// Local pty instead of hanging on a prompt nobody can answer.
func NewApp(appConfig *config.AppConfig) (*App, error) {
	a := &App{
		closers:   []io.Closer{},
		Config:    appConfig,
		ErrorChan: make(chan error),
	}

	a.Log = log.NewLogger(appConfig)
	a.Sink = hostlog.NewLogrusSink(a.Log)
	a.Cache = host.NewConnectionCache()
	a.Watcher = tasks.NewManager()

	interactive := term.IsTerminal(int(os.Stdout.Fd()))
	if interactive {
		a.Console = console.NewTerminal()
	} else {
		a.Console = console.Noop{}
	}
	a.Pty = fpty.NewLocal(interactive)

	return a, nil
}

// LocalHost returns a host.Host for the machine fleetctl itself runs on,
// taking its sudo password through passwordPrompt.
func (a *App) LocalHost(passwordPrompt host.PasswordPrompt) *host.LocalHost {
	return host.NewLocalHost(host.LocalHostSpec{Spec: host.Spec{
		Slug:            "local",
		Term:            a.Config.UserConfig.Defaults.Term,
		MagicSudoPrompt: a.Config.UserConfig.Defaults.MagicSudoPrompt,
	}}, passwordPrompt)
}

// NewEnv builds the root node.Env for spec and hosts, wired to this App's
// pty, logging sink and console, with sandbox mode following --dry-run.
func (a *App) NewEnv(spec *node.Spec, hosts *hostcontainer.Container) *node.Env {
	return node.NewEnv(spec, hosts, a.Pty, a.Sink, a.Console, a.Config.DryRun, a.Config.UserConfig.MaxAutoRetries)
}

// Run waits for the controlling terminal to report a usable size before an
// interactive fleet run starts drawing progress bars and prompts into it.
func (a *App) Run() error {
	return waitForTerminalSpace()
}

// WatchConnections starts a background watcher that polls the connection
// cache every interval and logs any host class whose transport has gone
// dead, replacing whatever watch was already running. Stopped by Close.
func (a *App) WatchConnections(interval time.Duration) {
	a.Watcher.Start(context.Background(), func(ctx context.Context) {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				for classKey, alive := range a.Cache.Snapshot() {
					if !alive {
						a.Log.WithField("host", classKey).Warn("connection went dead")
					}
				}
			}
		}
	})
}

func waitForTerminalSpace() error {
	width, height, err := term.GetSize(int(os.Stdin.Fd()))
	if err == nil && width > 0 && height > 0 {
		return nil
	}

	winch := make(chan os.Signal, 1)
	signal.Notify(winch, syscall.SIGWINCH)
	defer signal.Stop(winch)
	select {
	case <-winch:
		return nil
	case <-time.After(time.Second):
		return fmt.Errorf("there is no available terminal space")
	}
}

// Close releases every resource the app accumulated over its lifetime,
// including every cached SSH transport.
func (a *App) Close() error {
	a.Watcher.Stop()
	for _, closer := range a.closers {
		if err := closer.Close(); err != nil {
			return err
		}
	}
	return a.Cache.Close()
}

type errorMapping struct {
	originalError string
	newError      string
}

// KnownError tells us whether err is one we recognize well enough to print
// a short message for instead of a full stack trace.
func (a *App) KnownError(err error) (string, bool) {
	errorMessage := err.Error()

	mappings := []errorMapping{
		{
			originalError: "sudo password rejected",
			newError:      "sudo password was rejected too many times; check the password and try again",
		},
		{
			originalError: "connect: connection refused",
			newError:      "could not reach the remote host; check that it is up and reachable over SSH",
		},
	}

	for _, mapping := range mappings {
		if strings.Contains(errorMessage, mapping.originalError) {
			return mapping.newError, true
		}
	}

	return "", false
}
