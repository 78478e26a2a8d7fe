package report

import (
	"io"

	"github.com/nao1215/leakbox/internal/model"
)

// Writer renders a leak report.
type Writer interface {
	// Write outputs the report and returns the number of bytes written.
	Write(report *model.LeakReport) (int, error)
}

// baseWriter provides common functionality for report writers.
type baseWriter struct {
	output io.Writer
}

func newBaseWriter(output io.Writer) baseWriter {
	return baseWriter{output: output}
}

// sourceOrder fixes the display order of leak sources.
var sourceOrder = []model.LeakSource{
	model.SourceMessage,
	model.SourceRedirect,
	model.SourceAgentRequest,
	model.SourceAgentReferrer,
	model.SourceAgentPost,
}

// truncateString truncates s to maxLen bytes with an ellipsis.
func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}
