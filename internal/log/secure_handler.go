package log

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"regexp"
	"strings"
)

// MaskValue is the string used to replace sensitive values.
const MaskValue = "***REDACTED***"

// secretKeys are attribute keys whose values are always masked.
var secretKeys = map[string]bool{
	"authorization":       true,
	"proxy-authorization": true,
	"cookie":              true,
	"set-cookie":          true,
	"x-api-key":           true,
	"password":            true,
	"passwd":              true,
	"secret":              true,
	"token":               true,
	"api_key":             true,
	"private_key":         true,
	"session":             true,
	"session_id":          true,
	"credentials":         true,
	"auth":                true,
}

// payloadKeys carry message or agent payloads. Their values are replaced
// by a size marker so log volume stays bounded and content stays private.
var payloadKeys = map[string]bool{
	"post_body": true,
	"data":      true,
	"body":      true,
	"raw":       true,
}

// secretKeywords mask any key containing them. The bare word "key" is
// excluded because it matches too much ("primary_key", "monkey").
var secretKeywords = []string{
	"password", "passwd", "secret", "token", "credential", "private",
}

// secretPatterns mask a string value regardless of its key.
var secretPatterns = []*regexp.Regexp{
	regexp.MustCompile(`^eyJ[A-Za-z0-9_-]*\.eyJ[A-Za-z0-9_-]*\.[A-Za-z0-9_-]*$`),
	regexp.MustCompile(`(?i)^bearer\s+.+`),
	regexp.MustCompile(`(?i)^basic\s+[A-Za-z0-9+/=]+$`),
	regexp.MustCompile(`^AKIA[0-9A-Z]{16}$`),
	regexp.MustCompile(`(?i)-----BEGIN.*(PRIVATE|SECRET).*KEY-----`),
}

// SecureHandler wraps an slog.Handler and redacts sensitive attributes.
type SecureHandler struct {
	handler slog.Handler
}

// NewSecureHandler creates a SecureHandler wrapping handler.
// A nil handler falls back to slog.Default().Handler().
func NewSecureHandler(handler slog.Handler) *SecureHandler {
	if handler == nil {
		handler = slog.Default().Handler()
	}
	return &SecureHandler{handler: handler}
}

// Enabled delegates to the wrapped handler.
func (h *SecureHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.handler.Enabled(ctx, level)
}

// Handle redacts the record's attributes and forwards it.
func (h *SecureHandler) Handle(ctx context.Context, r slog.Record) error {
	sanitized := slog.NewRecord(r.Time, r.Level, r.Message, r.PC)
	r.Attrs(func(a slog.Attr) bool {
		sanitized.AddAttrs(sanitize(a))
		return true
	})
	return h.handler.Handle(ctx, sanitized)
}

// WithAttrs returns a handler with the redacted attributes attached.
func (h *SecureHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	out := make([]slog.Attr, len(attrs))
	for i, a := range attrs {
		out[i] = sanitize(a)
	}
	return &SecureHandler{handler: h.handler.WithAttrs(out)}
}

// WithGroup returns a handler that nests attributes under name.
func (h *SecureHandler) WithGroup(name string) slog.Handler {
	return &SecureHandler{handler: h.handler.WithGroup(name)}
}

func sanitize(a slog.Attr) slog.Attr {
	a.Value = a.Value.Resolve()

	if a.Value.Kind() == slog.KindGroup {
		attrs := a.Value.Group()
		out := make([]slog.Attr, len(attrs))
		for i, ga := range attrs {
			out[i] = sanitize(ga)
		}
		return slog.Attr{Key: a.Key, Value: slog.GroupValue(out...)}
	}

	key := strings.ToLower(a.Key)
	if payloadKeys[key] {
		return slog.String(a.Key, payloadMarker(a.Value))
	}
	if isSecretKey(key) {
		return slog.String(a.Key, MaskValue)
	}
	if a.Value.Kind() == slog.KindString && isSecretValue(a.Value.String()) {
		return slog.String(a.Key, MaskValue)
	}
	return a
}

// payloadMarker describes a payload by size only.
func payloadMarker(v slog.Value) string {
	var n int
	switch x := v.Any().(type) {
	case []byte:
		n = len(x)
	case string:
		n = len(x)
	case *string:
		if x == nil {
			return "<nil>"
		}
		n = len(*x)
	default:
		return MaskValue
	}
	return fmt.Sprintf("%s (%d bytes)", MaskValue, n)
}

func isSecretKey(key string) bool {
	if secretKeys[key] {
		return true
	}
	for _, kw := range secretKeywords {
		if strings.Contains(key, kw) {
			return true
		}
	}
	return false
}

func isSecretValue(value string) bool {
	for _, p := range secretPatterns {
		if p.MatchString(value) {
			return true
		}
	}
	return false
}

// Options selects the logger's level and format.
type Options struct {
	// Verbose enables Debug output; otherwise Info.
	Verbose bool

	// JSON selects the JSON handler instead of text.
	JSON bool
}

// New creates a logger writing to w through a SecureHandler.
func New(w io.Writer, opts Options) *slog.Logger {
	level := slog.LevelInfo
	if opts.Verbose {
		level = slog.LevelDebug
	}
	handlerOpts := &slog.HandlerOptions{Level: level}

	var inner slog.Handler
	if opts.JSON {
		inner = slog.NewJSONHandler(w, handlerOpts)
	} else {
		inner = slog.NewTextHandler(w, handlerOpts)
	}
	return slog.New(NewSecureHandler(inner))
}
