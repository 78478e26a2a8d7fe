package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/nao1215/leakbox/internal/model"
)

const ruleWidth = 70

// SimpleWriter outputs plain text reports for the terminal.
type SimpleWriter struct {
	baseWriter

	// verbose lists every event under each domain.
	verbose bool
}

// SimpleWriterOption configures a SimpleWriter.
type SimpleWriterOption func(*SimpleWriter)

// WithVerbose enables per-event output.
func WithVerbose(verbose bool) SimpleWriterOption {
	return func(w *SimpleWriter) {
		w.verbose = verbose
	}
}

// NewSimpleWriter creates a SimpleWriter that outputs to the given writer.
func NewSimpleWriter(output io.Writer, opts ...SimpleWriterOption) *SimpleWriter {
	w := &SimpleWriter{baseWriter: newBaseWriter(output)}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Write outputs the report in human-readable form.
func (w *SimpleWriter) Write(report *model.LeakReport) (int, error) {
	var sb strings.Builder

	w.writeHeader(&sb, report)
	w.writeDomains(&sb, report)
	w.writeRedirects(&sb, report)
	sb.WriteString(strings.Repeat("=", ruleWidth))
	sb.WriteString("\n")

	return w.output.Write([]byte(sb.String()))
}

func (w *SimpleWriter) writeHeader(sb *strings.Builder, report *model.LeakReport) {
	sb.WriteString(strings.Repeat("=", ruleWidth))
	sb.WriteString("\n")
	sb.WriteString("                          LEAKBOX REPORT\n")
	sb.WriteString(strings.Repeat("=", ruleWidth))
	sb.WriteString("\n\n")

	fmt.Fprintf(sb, "Generated:       %s\n", report.GeneratedAt.Format("2006-01-02 15:04:05 MST"))
	fmt.Fprintf(sb, "Addresses:       %d\n", report.Users)
	fmt.Fprintf(sb, "Messages:        %d\n", report.Messages)
	fmt.Fprintf(sb, "Leak events:     %d\n", report.TotalLeaks)
	fmt.Fprintf(sb, "Leaking senders: %d\n", len(report.Domains))
	fmt.Fprintf(sb, "Link groups:     %d pending, %d issued\n\n", report.PendingGroups, report.IssuedGroups)
}

func (w *SimpleWriter) writeDomains(sb *strings.Builder, report *model.LeakReport) {
	sb.WriteString(strings.Repeat("-", ruleWidth))
	sb.WriteString("\nLEAKS BY SENDER\n")
	sb.WriteString(strings.Repeat("-", ruleWidth))
	sb.WriteString("\n\n")

	if !report.HasLeaks() {
		sb.WriteString("  No leaks recorded\n\n")
		return
	}

	for _, d := range report.Domains {
		name := d.SenderDomain
		if name == "" {
			name = "(unknown sender)"
		}
		fmt.Fprintf(sb, "[!] %s: %d leak(s), %d via redirect, %d address(es)\n", name, d.Leaks, d.Redirects, d.Recipients)
		fmt.Fprintf(sb, "    Sources:  %s\n", formatSources(d.Sources))
		fmt.Fprintf(sb, "    Variants: %s\n", strings.Join(d.Variants, ", "))
		if third := d.ThirdPartyHosts(); len(third) > 0 {
			fmt.Fprintf(sb, "    Shared with: %s\n", strings.Join(third, ", "))
		}
		fmt.Fprintf(sb, "    Seen:     %s .. %s\n",
			d.FirstSeen.Format("2006-01-02"), d.LastSeen.Format("2006-01-02"))

		if w.verbose {
			for _, ev := range d.Events {
				fmt.Fprintf(sb, "      - [%s/%s] %s\n", ev.Source, ev.Variant, ev.URL)
			}
		}
		sb.WriteString("\n")
	}
}

func (w *SimpleWriter) writeRedirects(sb *strings.Builder, report *model.LeakReport) {
	if len(report.Redirects) == 0 {
		return
	}

	sb.WriteString(strings.Repeat("-", ruleWidth))
	sb.WriteString("\nREDIRECT CHAINS\n")
	sb.WriteString(strings.Repeat("-", ruleWidth))
	sb.WriteString("\n\n")

	for _, r := range report.Redirects {
		name := r.SenderDomain
		if name == "" {
			name = "(unknown sender)"
		}
		fmt.Fprintf(sb, "%s: %d chain(s)\n", name, r.Chains)
		if third := r.ThirdPartyDomains(); len(third) > 0 {
			fmt.Fprintf(sb, "    Third-party hops: %s\n", strings.Join(third, ", "))
		}
		if w.verbose {
			fmt.Fprintf(sb, "    All hops: %s\n", strings.Join(r.HopDomains, ", "))
		}
	}
	sb.WriteString("\n")
}

func formatSources(sources map[model.LeakSource]int) string {
	parts := make([]string, 0, len(sources))
	for _, s := range sourceOrder {
		if n := sources[s]; n > 0 {
			parts = append(parts, fmt.Sprintf("%s=%d", s, n))
		}
	}
	return strings.Join(parts, " ")
}
