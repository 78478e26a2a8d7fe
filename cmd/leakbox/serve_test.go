package main

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/nao1215/leakbox/internal/config"
	"github.com/spf13/cobra"
)

// parsedServeCmd returns a serve command attached to a root command with
// args parsed, without running it.
func parsedServeCmd(t *testing.T, args ...string) *cobra.Command {
	t.Helper()

	root := NewRootCmd()
	serve, rest, err := root.Find(append([]string{"serve"}, args...))
	if err != nil {
		t.Fatalf("Find() error = %v", err)
	}
	if err := serve.ParseFlags(rest); err != nil {
		t.Fatalf("ParseFlags() error = %v", err)
	}
	return serve
}

func TestBuildServeConfig(t *testing.T) {
	t.Parallel()

	t.Run("defaults", func(t *testing.T) {
		t.Parallel()

		cmd := parsedServeCmd(t, "--config", emptyConfig(t), "--domain", "mail.example.org")
		cfg, err := buildServeConfig(cmd)
		if err != nil {
			t.Fatalf("buildServeConfig() error = %v", err)
		}
		if cfg.Domain != "mail.example.org" {
			t.Errorf("Domain = %q", cfg.Domain)
		}
		if cfg.SMTPAddress != config.DefaultSMTPAddress || cfg.HTTPAddress != config.DefaultHTTPAddress {
			t.Errorf("addresses = %q, %q", cfg.SMTPAddress, cfg.HTTPAddress)
		}
		if cfg.Workers != config.DefaultWorkers {
			t.Errorf("Workers = %d", cfg.Workers)
		}
		if cfg.UseTor {
			t.Error("expected tor disabled by default")
		}
		if err := cfg.Validate(); err != nil {
			t.Errorf("Validate() error = %v", err)
		}
	})

	t.Run("flags override config file", func(t *testing.T) {
		t.Parallel()

		path := filepath.Join(t.TempDir(), "leakbox.yaml")
		content := "domain: file.example.org\nworkers: 2\nprobeDelay: 5s\nsmtpAddress: \":25\"\n"
		if err := os.WriteFile(path, []byte(content), 0600); err != nil {
			t.Fatal(err)
		}

		cmd := parsedServeCmd(t, "--config", path, "-w", "8", "--timeout", "3s")
		cfg, err := buildServeConfig(cmd)
		if err != nil {
			t.Fatalf("buildServeConfig() error = %v", err)
		}
		if cfg.Domain != "file.example.org" {
			t.Errorf("Domain = %q, want value from file", cfg.Domain)
		}
		if cfg.SMTPAddress != ":25" {
			t.Errorf("SMTPAddress = %q, want value from file", cfg.SMTPAddress)
		}
		if cfg.ProbeDelay != 5*time.Second {
			t.Errorf("ProbeDelay = %v, want value from file", cfg.ProbeDelay)
		}
		if cfg.Workers != 8 {
			t.Errorf("Workers = %d, want flag value", cfg.Workers)
		}
		if cfg.Timeout != 3*time.Second {
			t.Errorf("Timeout = %v, want flag value", cfg.Timeout)
		}
	})

	t.Run("external tor", func(t *testing.T) {
		t.Parallel()

		cmd := parsedServeCmd(t, "--config", emptyConfig(t), "-e", "127.0.0.1:9150")
		cfg, err := buildServeConfig(cmd)
		if err != nil {
			t.Fatalf("buildServeConfig() error = %v", err)
		}
		if !cfg.UseTor || !cfg.UseExternalTor || cfg.TorProxyAddress != "127.0.0.1:9150" {
			t.Errorf("tor = %v/%v/%q", cfg.UseTor, cfg.UseExternalTor, cfg.TorProxyAddress)
		}
	})

	t.Run("missing explicit config file", func(t *testing.T) {
		t.Parallel()

		cmd := parsedServeCmd(t, "--config", filepath.Join(t.TempDir(), "absent.yaml"))
		if _, err := buildServeConfig(cmd); !errors.Is(err, config.ErrConfigNotFound) {
			t.Errorf("expected ErrConfigNotFound, got %v", err)
		}
	})
}

func TestServeRequiresDomain(t *testing.T) {
	t.Parallel()

	_, err := runRoot(t, "serve", "--config", emptyConfig(t), "--data-dir", t.TempDir())
	if !errors.Is(err, config.ErrInvalidDomain) {
		t.Errorf("expected ErrInvalidDomain, got %v", err)
	}
}
