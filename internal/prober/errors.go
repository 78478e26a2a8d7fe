package prober

import "errors"

var (
	// ErrTooManyRedirects is returned when a chain exceeds the redirect bound.
	ErrTooManyRedirects = errors.New("too many redirects")

	// ErrUnsupportedScheme is returned for URLs that are not http or https.
	ErrUnsupportedScheme = errors.New("unsupported URL scheme")

	// ErrPoolStopped is returned when scheduling on a stopped pool.
	ErrPoolStopped = errors.New("probe pool stopped")
)
