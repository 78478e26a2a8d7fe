package config

import "errors"

// Configuration validation errors returned by Config.Validate.
var (
	// ErrInvalidDomain is returned when the mail domain is empty or malformed.
	ErrInvalidDomain = errors.New("invalid domain: must be a bare host name such as mail.example.org")

	// ErrInvalidListenAddress is returned when an SMTP or HTTP address is not host:port.
	ErrInvalidListenAddress = errors.New("invalid listen address: must be host:port")

	// ErrNoDataDir is returned when no data directory is configured.
	ErrNoDataDir = errors.New("no data directory configured")

	// ErrInvalidWorkers is returned when the probe pool size is not positive.
	ErrInvalidWorkers = errors.New("invalid workers: must be positive")

	// ErrInvalidProbeDelay is returned when the probe delay is negative.
	ErrInvalidProbeDelay = errors.New("invalid probe delay: must be non-negative")

	// ErrInvalidMaxRedirects is returned when the redirect limit is not positive.
	ErrInvalidMaxRedirects = errors.New("invalid max redirects: must be positive")

	// ErrInvalidTimeout is returned when a timeout is not positive.
	ErrInvalidTimeout = errors.New("invalid timeout: must be positive")

	// ErrInvalidMaxMessageBytes is returned when the message size limit is not positive.
	ErrInvalidMaxMessageBytes = errors.New("invalid max message size: must be positive")

	// ErrConflictingReportFormats is returned when both --json and --markdown are set.
	ErrConflictingReportFormats = errors.New("conflicting report formats: --json and --markdown cannot be used together")
)
