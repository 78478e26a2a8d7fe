package report

import (
	"io"
	"strconv"
	"strings"

	"github.com/nao1215/leakbox/internal/model"
	"github.com/nao1215/markdown"
	"github.com/nao1215/markdown/mermaid/piechart"
)

// maxChartSlices bounds the pie chart; remaining domains are folded
// into "other".
const maxChartSlices = 8

// MarkdownWriter outputs reports in GitHub Flavored Markdown.
type MarkdownWriter struct {
	baseWriter
}

// NewMarkdownWriter creates a MarkdownWriter that outputs to the given writer.
func NewMarkdownWriter(output io.Writer) *MarkdownWriter {
	return &MarkdownWriter{baseWriter: newBaseWriter(output)}
}

// Write outputs the report in Markdown format.
func (w *MarkdownWriter) Write(report *model.LeakReport) (int, error) {
	md := markdown.NewMarkdown(w.output)

	w.writeHeader(md, report)
	w.writeSummary(md, report)
	w.writeDomains(md, report)
	w.writeRedirects(md, report)

	md.HorizontalRule()
	md.PlainText("")
	md.PlainText("*Report generated by leakbox*")

	return len(md.String()), md.Build()
}

func (w *MarkdownWriter) writeHeader(md *markdown.Markdown, report *model.LeakReport) {
	md.H1("Leakbox Report")
	md.PlainText("")
	md.Table(markdown.TableSet{
		Header: []string{"Property", "Value"},
		Rows: [][]string{
			{"Generated", report.GeneratedAt.Format("2006-01-02 15:04:05 MST")},
			{"Addresses", strconv.Itoa(report.Users)},
			{"Messages", strconv.Itoa(report.Messages)},
			{"Leak events", strconv.Itoa(report.TotalLeaks)},
			{"Link groups", strconv.Itoa(report.PendingGroups) + " pending / " + strconv.Itoa(report.IssuedGroups) + " issued"},
		},
	})
	md.PlainText("")
}

func (w *MarkdownWriter) writeSummary(md *markdown.Markdown, report *model.LeakReport) {
	md.H2("Summary")
	md.PlainText("")

	if !report.HasLeaks() {
		md.Tip("No sender has leaked a honeypot address.")
		md.PlainText("")
		return
	}

	md.Warningf("%d sender domain(s) leaked honeypot addresses in %d event(s).",
		len(report.Domains), report.TotalLeaks)
	md.PlainText("")

	chart := piechart.NewPieChart(
		io.Discard,
		piechart.WithTitle("Leak events by sender"),
		piechart.WithShowData(true),
	)
	var other int
	for i, d := range report.Domains {
		if i >= maxChartSlices {
			other += d.Leaks
			continue
		}
		chart.LabelAndIntValue(domainLabel(d.SenderDomain), uint64(d.Leaks)) //nolint:gosec // counts are non-negative
	}
	if other > 0 {
		chart.LabelAndIntValue("other", uint64(other)) //nolint:gosec // counts are non-negative
	}
	md.CodeBlocks(markdown.SyntaxHighlightMermaid, chart.String())
	md.PlainText("")
}

func (w *MarkdownWriter) writeDomains(md *markdown.Markdown, report *model.LeakReport) {
	if !report.HasLeaks() {
		return
	}

	md.H2("Leaks by sender")
	md.PlainText("")

	rows := make([][]string, 0, len(report.Domains))
	for _, d := range report.Domains {
		rows = append(rows, []string{
			"`" + domainLabel(d.SenderDomain) + "`",
			strconv.Itoa(d.Leaks),
			strconv.Itoa(d.Redirects),
			strconv.Itoa(d.Recipients),
			strings.Join(d.Variants, ", "),
			d.LastSeen.Format("2006-01-02"),
		})
	}
	md.Table(markdown.TableSet{
		Header: []string{"Sender", "Leaks", "Via redirect", "Addresses", "Variants", "Last seen"},
		Rows:   rows,
	})
	md.PlainText("")

	for _, d := range report.Domains {
		md.H3(domainLabel(d.SenderDomain))
		md.PlainText("")

		if third := d.ThirdPartyHosts(); len(third) > 0 {
			md.Cautionf("Address shared with %d third-party host(s).", len(third))
			md.PlainText("")
			md.BulletList(third...)
			md.PlainText("")
		}

		eventRows := make([][]string, 0, len(d.Events))
		for _, ev := range d.Events {
			eventRows = append(eventRows, []string{
				string(ev.Source),
				ev.Variant,
				truncateString(ev.URL, 80),
				ev.ObservedAt.Format("2006-01-02 15:04"),
			})
		}
		md.Table(markdown.TableSet{
			Header: []string{"Source", "Variant", "URL", "Observed"},
			Rows:   eventRows,
		})
		md.PlainText("")
	}
}

func (w *MarkdownWriter) writeRedirects(md *markdown.Markdown, report *model.LeakReport) {
	if len(report.Redirects) == 0 {
		return
	}

	md.H2("Redirect chains")
	md.PlainText("")

	rows := make([][]string, 0, len(report.Redirects))
	for _, r := range report.Redirects {
		third := r.ThirdPartyDomains()
		thirdCell := "-"
		if len(third) > 0 {
			thirdCell = strings.Join(third, ", ")
		}
		rows = append(rows, []string{
			"`" + domainLabel(r.SenderDomain) + "`",
			strconv.Itoa(r.Chains),
			thirdCell,
		})
	}
	md.Table(markdown.TableSet{
		Header: []string{"Sender", "Chains", "Third-party hops"},
		Rows:   rows,
	})
	md.PlainText("")
}

func domainLabel(d string) string {
	if d == "" {
		return "(unknown sender)"
	}
	return d
}
