package tor

import (
	"context"
	"fmt"
	"time"

	"github.com/nao1215/tornago"
)

// defaultStartupTimeout bounds bootstrapping of the embedded daemon.
const defaultStartupTimeout = 3 * time.Minute

// EmbeddedTor runs a private Tor daemon through tornago.
// Bootstrapping typically takes one to three minutes.
type EmbeddedTor struct {
	process        *tornago.TorProcess
	socksAddr      string
	controlAddr    string
	startupTimeout time.Duration
}

// EmbeddedTorOption configures an EmbeddedTor.
type EmbeddedTorOption func(*EmbeddedTor)

// WithStartupTimeout sets the maximum time to wait for Tor to bootstrap.
func WithStartupTimeout(timeout time.Duration) EmbeddedTorOption {
	return func(e *EmbeddedTor) {
		e.startupTimeout = timeout
	}
}

// NewEmbeddedTor creates an embedded daemon manager. Nothing is started
// until Start is called.
func NewEmbeddedTor(opts ...EmbeddedTorOption) *EmbeddedTor {
	e := &EmbeddedTor{startupTimeout: defaultStartupTimeout}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Start launches the daemon on OS-assigned ports and blocks until it has
// bootstrapped or the startup timeout elapses.
func (e *EmbeddedTor) Start(ctx context.Context) error {
	launchCfg, err := tornago.NewTorLaunchConfig(
		tornago.WithTorSocksAddr(":0"),
		tornago.WithTorControlAddr(":0"),
		tornago.WithTorStartupTimeout(e.startupTimeout),
	)
	if err != nil {
		return fmt.Errorf("failed to create Tor launch config: %w", err)
	}

	process, err := tornago.StartTorDaemon(launchCfg)
	if err != nil {
		return fmt.Errorf("failed to start embedded Tor daemon: %w", err)
	}

	if err := ctx.Err(); err != nil {
		_ = process.Stop() //nolint:errcheck // best effort
		return err
	}

	e.process = process
	e.socksAddr = process.SocksAddr()
	e.controlAddr = process.ControlAddr()
	return nil
}

// Stop shuts the daemon down. It is safe to call on an unstarted instance
// and more than once.
func (e *EmbeddedTor) Stop() error {
	if e.process == nil {
		return nil
	}
	err := e.process.Stop()
	e.process = nil
	e.socksAddr = ""
	e.controlAddr = ""
	return err
}

// SocksAddr returns the SOCKS5 address, or "" when not running.
func (e *EmbeddedTor) SocksAddr() string {
	return e.socksAddr
}

// ControlAddr returns the control port address, or "" when not running.
func (e *EmbeddedTor) ControlAddr() string {
	return e.controlAddr
}

// IsRunning reports whether the daemon has been started and not stopped.
func (e *EmbeddedTor) IsRunning() bool {
	return e.process != nil
}

// NewClient returns a Client for the running daemon's SOCKS port.
func (e *EmbeddedTor) NewClient(timeout time.Duration) (*Client, error) {
	if !e.IsRunning() {
		return nil, ErrNotRunning
	}
	return NewClient(e.socksAddr, timeout)
}

// Options selects how Connect reaches Tor.
type Options struct {
	// ProxyAddress is an external SOCKS5 proxy. Ignored when Embedded is set.
	ProxyAddress string

	// Embedded starts a private daemon instead of using ProxyAddress.
	Embedded bool

	// StartupTimeout bounds bootstrapping of the embedded daemon.
	StartupTimeout time.Duration

	// Timeout is the per-request timeout of HTTP clients built from the Client.
	Timeout time.Duration
}

// Connect returns a verified Client and a function that releases it.
// For an external proxy the release function is a no-op; for an embedded
// daemon it stops the daemon.
func Connect(ctx context.Context, opts Options) (*Client, func() error, error) {
	noop := func() error { return nil }

	if !opts.Embedded {
		client, err := NewClient(opts.ProxyAddress, opts.Timeout)
		if err != nil {
			return nil, noop, err
		}
		if err := client.CheckConnection(ctx).Err(); err != nil {
			return nil, noop, fmt.Errorf("%s: %w", opts.ProxyAddress, err)
		}
		return client, noop, nil
	}

	var embeddedOpts []EmbeddedTorOption
	if opts.StartupTimeout > 0 {
		embeddedOpts = append(embeddedOpts, WithStartupTimeout(opts.StartupTimeout))
	}
	daemon := NewEmbeddedTor(embeddedOpts...)
	if err := daemon.Start(ctx); err != nil {
		return nil, noop, err
	}
	client, err := daemon.NewClient(opts.Timeout)
	if err != nil {
		_ = daemon.Stop() //nolint:errcheck // best effort
		return nil, noop, err
	}
	return client, daemon.Stop, nil
}
