package prober

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/nao1215/leakbox/internal/model"
	"golang.org/x/net/publicsuffix"
)

const (
	// DefaultMaxRedirects is the default bound on followed redirects.
	DefaultMaxRedirects = 10

	// DefaultTimeout is the per-request timeout of the direct client.
	DefaultTimeout = 30 * time.Second

	// DefaultUserAgent looks like a common desktop mail client.
	DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:128.0) Gecko/20100101 Thunderbird/128.0"

	// maxDrainBytes bounds how much of a response body is read before closing.
	maxDrainBytes = 64 << 10
)

// Result is the outcome of a probe.
type Result struct {
	// RequestedURL is the URL the probe started from.
	RequestedURL string

	// FinalURL is the URL of the last response received.
	FinalURL string

	// StatusCode is the status of the last response received.
	StatusCode int

	// Hops are the redirects followed, in order. Empty when the first
	// response was not a redirect.
	Hops []model.Hop
}

// Prober follows redirect chains.
type Prober struct {
	client       *http.Client
	maxRedirects int
	userAgent    string
}

// Option configures a Prober.
type Option func(*Prober)

// WithMaxRedirects sets the redirect bound. Values below 1 are ignored.
func WithMaxRedirects(n int) Option {
	return func(p *Prober) {
		if n > 0 {
			p.maxRedirects = n
		}
	}
}

// WithUserAgent sets the User-Agent header sent with every request.
func WithUserAgent(ua string) Option {
	return func(p *Prober) {
		if ua != "" {
			p.userAgent = ua
		}
	}
}

// New creates a Prober that sends requests with client.
// A nil client means NewDirectClient(DefaultTimeout). The client's own
// redirect policy is replaced so that every hop is observed.
func New(client *http.Client, opts ...Option) *Prober {
	if client == nil {
		client = NewDirectClient(DefaultTimeout)
	}
	c := *client
	c.CheckRedirect = noFollow

	p := &Prober{
		client:       &c,
		maxRedirects: DefaultMaxRedirects,
		userAgent:    DefaultUserAgent,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// NewDirectClient returns an HTTP client that connects without a proxy and
// does not follow redirects.
func NewDirectClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout:       timeout,
		CheckRedirect: noFollow,
	}
}

func noFollow(*http.Request, []*http.Request) error {
	return http.ErrUseLastResponse
}

// Probe fetches rawURL and follows redirects up to the configured bound.
// Transport errors and timeouts are returned as is; exceeding the bound
// returns ErrTooManyRedirects.
func (p *Prober) Probe(ctx context.Context, rawURL string) (*Result, error) {
	current, err := parseHTTPURL(rawURL)
	if err != nil {
		return nil, err
	}

	result := &Result{RequestedURL: rawURL, Hops: make([]model.Hop, 0)}
	for {
		status, location, err := p.fetch(ctx, current)
		if err != nil {
			return nil, fmt.Errorf("fetch %s: %w", current.Redacted(), err)
		}
		result.FinalURL = current.String()
		result.StatusCode = status

		if !isRedirect(status) || location == "" {
			return result, nil
		}

		next, err := current.Parse(location)
		if err != nil || (next.Scheme != "http" && next.Scheme != "https") {
			// The chain ends at a target we cannot follow.
			return result, nil
		}

		if len(result.Hops) >= p.maxRedirects {
			return nil, fmt.Errorf("%s: %w", rawURL, ErrTooManyRedirects)
		}
		host := next.Hostname()
		result.Hops = append(result.Hops, model.Hop{
			Index:  len(result.Hops) + 1,
			Host:   host,
			Domain: RegistrableDomain(host),
			URL:    next.String(),
		})
		current = next
	}
}

// fetch performs one request and returns the status and Location header.
func (p *Prober) fetch(ctx context.Context, u *url.URL) (int, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return 0, "", err
	}
	req.Header.Set("User-Agent", p.userAgent)
	req.Header.Set("Accept", "image/avif,image/webp,image/png,image/*;q=0.8,*/*;q=0.5")

	resp, err := p.client.Do(req)
	if err != nil {
		return 0, "", err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxDrainBytes)) //nolint:errcheck // body is irrelevant

	return resp.StatusCode, resp.Header.Get("Location"), nil
}

func isRedirect(status int) bool {
	switch status {
	case http.StatusMovedPermanently, http.StatusFound, http.StatusSeeOther,
		http.StatusTemporaryRedirect, http.StatusPermanentRedirect:
		return true
	default:
		return false
	}
}

func parseHTTPURL(rawURL string) (*url.URL, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return nil, fmt.Errorf("parse %q: %w", rawURL, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("%q: %w", rawURL, ErrUnsupportedScheme)
	}
	return u, nil
}

// RegistrableDomain returns the eTLD+1 of host, or host itself when it has
// none (IP addresses, single-label names, public suffixes).
func RegistrableDomain(host string) string {
	host = strings.TrimSuffix(strings.ToLower(host), ".")
	if net.ParseIP(host) != nil {
		return host
	}
	domain, err := publicsuffix.EffectiveTLDPlusOne(host)
	if err != nil {
		return host
	}
	return domain
}
