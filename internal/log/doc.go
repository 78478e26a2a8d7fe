// Package log builds the slog loggers used by leakbox.
//
// SecureHandler wraps any slog.Handler and redacts attributes that may
// carry secrets or third-party payloads before they reach the output:
//   - credentials and HTTP auth headers (password, token, cookie, ...)
//   - bodies reported by the fetch agent (post_body) and raw message
//     bytes (data, body), which are replaced by their size
//   - values that look like bearer tokens, JWTs or private keys
//
// Usage:
//
//	logger := log.New(os.Stderr, log.Options{Verbose: true})
//	slog.SetDefault(logger)
package log
