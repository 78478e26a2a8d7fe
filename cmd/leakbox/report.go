package main

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/nao1215/leakbox/internal/database"
	"github.com/nao1215/leakbox/internal/model"
	"github.com/nao1215/leakbox/internal/prober"
	"github.com/nao1215/leakbox/internal/report"
	"github.com/spf13/cobra"
)

// NewReportCmd creates the report command.
func NewReportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Summarise recorded leaks per sender",
		Long: `Report reads the leak events recorded by serve and summarises them per
sender domain: how many events, through which channel, which encodings of
the address were seen and which third-party hosts received it.

Examples:
  # Plain text summary
  leakbox report

  # Markdown report for one sender written to a file
  leakbox report --markdown --sender shop.example.com -o leaks.md

  # JSON for the last week
  leakbox report --json --since 168h`,
		Args: cobra.NoArgs,
		RunE: runReportCmd,
	}

	cmd.Flags().BoolP("json", "j", false, "Output JSON report (mutually exclusive with --markdown)")
	cmd.Flags().BoolP("markdown", "m", false, "Output Markdown report (mutually exclusive with --json)")
	cmd.Flags().StringP("output", "o", "", "Write report to specified file path (creates directories if needed)")
	cmd.Flags().StringP("sender", "s", "", "Only include leaks attributed to this sender domain")
	cmd.Flags().Duration("since", 0, "Only include leaks observed within this duration")

	return cmd
}

func runReportCmd(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if cfg.JSONReport, err = cmd.Flags().GetBool("json"); err != nil {
		return err
	}
	if cfg.MarkdownReport, err = cmd.Flags().GetBool("markdown"); err != nil {
		return err
	}
	if cfg.ReportFile, err = cmd.Flags().GetString("output"); err != nil {
		return err
	}
	if err := cfg.ValidateOffline(); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}
	newLogger(cmd, cfg)

	sender, err := cmd.Flags().GetString("sender")
	if err != nil {
		return err
	}
	since, err := cmd.Flags().GetDuration("since")
	if err != nil {
		return err
	}

	db, err := openExistingDB(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	now := time.Now()
	filter := database.LeakFilter{SenderDomain: sender}
	if since > 0 {
		filter.Since = now.Add(-since)
	}

	r, err := buildReport(cmd.Context(), db, filter, now)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if cfg.ReportFile != "" {
		f, err := createReportFile(cfg.ReportFile)
		if err != nil {
			return err
		}
		defer f.Close()
		out = f
	}

	var w report.Writer
	switch {
	case cfg.JSONReport:
		w = report.NewJSONWriter(out, report.WithPrettyPrint(), report.WithVersion(getVersion()))
	case cfg.MarkdownReport:
		w = report.NewMarkdownWriter(out)
	default:
		verbose, _ := cmd.Flags().GetBool("verbose") //nolint:errcheck // persistent flag always exists
		w = report.NewSimpleWriter(out, report.WithVerbose(verbose))
	}

	if _, err := w.Write(r); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	if cfg.ReportFile != "" {
		fmt.Fprintf(cmd.ErrOrStderr(), "Report written to %s\n", cfg.ReportFile)
	}
	return nil
}

// buildReport loads users, leak events, link group counts, mail events and
// redirect chains into a LeakReport.
func buildReport(ctx context.Context, db *database.MailDB, filter database.LeakFilter, now time.Time) (*model.LeakReport, error) {
	users, err := db.Users(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	events, err := db.LeakEvents(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list leak events: %w", err)
	}
	pending, issued, err := db.LinkGroupCounts(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count link groups: %w", err)
	}
	mails, err := db.MailEvents(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("failed to list mail events: %w", err)
	}
	chains, err := db.RedirectChains(ctx, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to list redirect chains: %w", err)
	}
	if filter.SenderDomain != "" {
		kept := chains[:0]
		for _, c := range chains {
			if c.SenderDomain == filter.SenderDomain {
				kept = append(kept, c)
			}
		}
		chains = kept
	}

	r := model.NewLeakReport(len(users), events, urlDomain, now)
	r.PendingGroups, r.IssuedGroups = pending, issued
	r.Messages = len(mails)
	r.AddRedirectChains(chains)
	return r, nil
}

// urlDomain returns the registrable domain of a URL's host.
func urlDomain(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Hostname() == "" {
		return ""
	}
	return prober.RegistrableDomain(u.Hostname())
}

func createReportFile(path string) (io.WriteCloser, error) {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
	}
	f, err := os.Create(path) //nolint:gosec // user-chosen output path
	if err != nil {
		return nil, fmt.Errorf("failed to create report file: %w", err)
	}
	return f, nil
}
