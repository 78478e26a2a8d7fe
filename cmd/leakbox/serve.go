package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/nao1215/leakbox/internal/address"
	"github.com/nao1215/leakbox/internal/analyzer"
	"github.com/nao1215/leakbox/internal/api"
	"github.com/nao1215/leakbox/internal/config"
	"github.com/nao1215/leakbox/internal/coordinator"
	"github.com/nao1215/leakbox/internal/database"
	"github.com/nao1215/leakbox/internal/mailserver"
	"github.com/nao1215/leakbox/internal/pipeline"
	"github.com/nao1215/leakbox/internal/prober"
	"github.com/nao1215/leakbox/internal/tor"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

// NewServeCmd creates the serve command.
func NewServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the SMTP receiver, HTTP API and probe workers",
		Long: `Serve runs everything leakbox needs in one process:

- an SMTP listener accepting mail for registered addresses only
- an HTTP API with /register, /visit and /results
- a pool of workers that follow the redirect chains of tracking links

Examples:
  # Issue addresses under mail.example.org
  leakbox serve --domain mail.example.org

  # Probe links through an external Tor proxy
  leakbox serve --domain mail.example.org --external-tor 127.0.0.1:9050

  # Probe links through an embedded Tor daemon
  leakbox serve --domain mail.example.org --tor`,
		Args: cobra.NoArgs,
		RunE: runServeCmd,
	}

	cmd.Flags().StringP("domain", "d", "", "Mail domain addresses are issued under")
	cmd.Flags().String("smtp", config.DefaultSMTPAddress, "SMTP listen address")
	cmd.Flags().String("http", config.DefaultHTTPAddress, "HTTP listen address")
	cmd.Flags().String("mail-dir", "", "Directory for archived messages (default: <data-dir>/mail)")
	cmd.Flags().IntP("workers", "w", config.DefaultWorkers, "Number of concurrent probes")
	cmd.Flags().Duration("probe-delay", config.DefaultProbeDelay, "Delay before a link is probed")
	cmd.Flags().Int("max-redirects", config.DefaultMaxRedirects, "Maximum redirects followed per probe")
	cmd.Flags().DurationP("timeout", "t", config.DefaultTimeout, "Timeout for each probe request")
	cmd.Flags().Int64("max-message-size", config.DefaultMaxMessageBytes, "Maximum accepted message size in bytes")
	cmd.Flags().Bool("tor", false, "Probe links through an embedded Tor daemon")
	cmd.Flags().StringP("external-tor", "e", "", "Probe links through the Tor proxy at this address")
	cmd.Flags().Duration("tor-timeout", config.DefaultTorStartupTimeout, "Timeout for embedded Tor startup")

	return cmd
}

func runServeCmd(cmd *cobra.Command, _ []string) error {
	cfg, err := buildServeConfig(cmd)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	logger := newLogger(cmd, cfg)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return runServe(ctx, cfg, logger)
}

// buildServeConfig applies serve flags that were set explicitly on top of
// the loaded configuration.
func buildServeConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	stringFlags := map[string]*string{
		"domain":   &cfg.Domain,
		"smtp":     &cfg.SMTPAddress,
		"http":     &cfg.HTTPAddress,
		"mail-dir": &cfg.MailDir,
	}
	for name, dst := range stringFlags {
		if flags.Changed(name) {
			if *dst, err = flags.GetString(name); err != nil {
				return nil, err
			}
		}
	}

	intFlags := map[string]*int{
		"workers":       &cfg.Workers,
		"max-redirects": &cfg.MaxRedirects,
	}
	for name, dst := range intFlags {
		if flags.Changed(name) {
			if *dst, err = flags.GetInt(name); err != nil {
				return nil, err
			}
		}
	}

	durationFlags := map[string]*time.Duration{
		"probe-delay": &cfg.ProbeDelay,
		"timeout":     &cfg.Timeout,
		"tor-timeout": &cfg.TorStartupTimeout,
	}
	for name, dst := range durationFlags {
		if flags.Changed(name) {
			if *dst, err = flags.GetDuration(name); err != nil {
				return nil, err
			}
		}
	}

	if flags.Changed("max-message-size") {
		if cfg.MaxMessageBytes, err = flags.GetInt64("max-message-size"); err != nil {
			return nil, err
		}
	}
	if flags.Changed("tor") {
		if cfg.UseTor, err = flags.GetBool("tor"); err != nil {
			return nil, err
		}
	}
	if flags.Changed("external-tor") {
		addr, err := flags.GetString("external-tor")
		if err != nil {
			return nil, err
		}
		cfg.UseTor, cfg.UseExternalTor, cfg.TorProxyAddress = true, true, addr
	}

	return cfg, nil
}

// runServe wires the components together and blocks until ctx is done or
// a listener fails.
func runServe(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	logger.Info("starting leakbox",
		"domain", cfg.Domain,
		"smtp", cfg.SMTPAddress,
		"http", cfg.HTTPAddress,
		"dataDir", cfg.DataDir,
		"tor", cfg.UseTor,
	)

	db, err := database.Open(cfg.DataDir, database.DefaultOptions())
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	httpClient, closeTransport, err := newProbeClient(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := closeTransport(); err != nil {
			logger.Error("failed to stop tor", "error", err)
		}
	}()

	pool := prober.NewPool(
		prober.WithWorkers(cfg.Workers),
		prober.WithDelay(cfg.ProbeDelay),
		prober.WithPoolLogger(logger),
	)
	probe := prober.New(httpClient,
		prober.WithMaxRedirects(cfg.MaxRedirects),
		prober.WithUserAgent(cfg.UserAgent),
	)
	leaks := analyzer.New(db, probe, pool, analyzer.WithLogger(logger))
	ingestor := pipeline.NewIngestor(db, pipeline.DefaultPipeline(cfg.MailArchiveDir(), db, leaks, logger), logger)
	groups := coordinator.New(db, coordinator.WithLogger(logger))

	handler := api.NewHandler(db, address.NewGenerator(), groups, cfg.Domain, api.WithLogger(logger))
	httpServer := api.NewServer(cfg.HTTPAddress, handler)
	smtpServer := mailserver.NewServer(cfg.SMTPAddress, cfg.Domain, ingestor,
		mailserver.WithLogger(logger),
		mailserver.WithMaxMessageBytes(cfg.MaxMessageBytes),
	)

	g, gctx := errgroup.WithContext(ctx)
	pool.Start(gctx)
	defer pool.Stop()

	g.Go(func() error { return httpServer.ListenAndServe(gctx) })
	g.Go(func() error { return smtpServer.ListenAndServe(gctx) })

	err = g.Wait()
	logger.Info("leakbox stopped", "pendingProbes", pool.Pending())
	return err
}

// newProbeClient returns the HTTP client probes use, direct or via Tor,
// and a function releasing the transport.
func newProbeClient(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*http.Client, func() error, error) {
	if !cfg.UseTor {
		return prober.NewDirectClient(cfg.Timeout), func() error { return nil }, nil
	}

	if !cfg.UseExternalTor {
		logger.Info("starting embedded tor daemon", "timeout", cfg.TorStartupTimeout)
	}
	client, closeFn, err := tor.Connect(ctx, tor.Options{
		ProxyAddress:   cfg.TorProxyAddress,
		Embedded:       !cfg.UseExternalTor,
		StartupTimeout: cfg.TorStartupTimeout,
		Timeout:        cfg.Timeout,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to tor: %w", err)
	}
	logger.Info("probing through tor", "proxy", client.ProxyAddress())
	return client.NewHTTPClient(), closeFn, nil
}
