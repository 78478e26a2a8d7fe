// Package report renders a model.LeakReport for humans and tools.
//
// Writers:
//   - SimpleWriter: plain text for the terminal
//   - MarkdownWriter: GitHub Flavored Markdown with tables and a chart
//   - JSONWriter: structured JSON
package report
