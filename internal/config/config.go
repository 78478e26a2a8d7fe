package config

import (
	"net"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/adrg/xdg"
)

// Default configuration values.
const (
	// AppName is the application name used for XDG directory paths.
	AppName = "leakbox"

	// DefaultSMTPAddress avoids the privileged port 25; put a port
	// forward or MX-facing relay in front of it in production.
	DefaultSMTPAddress = ":2525"

	// DefaultHTTPAddress serves /register, /visit and /results.
	DefaultHTTPAddress = ":8080"

	// DefaultWorkers is the probe pool size.
	DefaultWorkers = 5

	// DefaultProbeDelay is how long a probe waits after the message arrives.
	DefaultProbeDelay = 1 * time.Second

	// DefaultMaxRedirects bounds a redirect chain.
	DefaultMaxRedirects = 10

	// DefaultTimeout applies to each probe request.
	DefaultTimeout = 30 * time.Second

	// DefaultMaxMessageBytes bounds an inbound message.
	DefaultMaxMessageBytes = 10 << 20

	// DefaultTorProxyAddress is the standard Tor SOCKS5 port.
	DefaultTorProxyAddress = "127.0.0.1:9050"

	// DefaultTorStartupTimeout bounds embedded Tor bootstrap.
	DefaultTorStartupTimeout = 3 * time.Minute

	// DefaultUserAgent is sent with probe requests. It looks like a mail
	// client fetching remote images.
	DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0 Safari/537.36"
)

// Config holds all leakbox options. It is built once at startup and passed
// down explicitly.
type Config struct {
	// Domain is the mail domain honeypot addresses are issued under.
	Domain string

	// SMTPAddress is the host:port the SMTP listener binds.
	SMTPAddress string

	// HTTPAddress is the host:port the HTTP API binds.
	HTTPAddress string

	// DataDir holds the SQLite database.
	DataDir string

	// MailDir holds archived raw messages. Empty means DataDir/mail.
	MailDir string

	// Workers is the number of concurrent probes.
	Workers int

	// ProbeDelay is waited before each probe runs.
	ProbeDelay time.Duration

	// MaxRedirects bounds the number of hops followed per probe.
	MaxRedirects int

	// Timeout is the per-request probe timeout.
	Timeout time.Duration

	// UserAgent is sent with probe requests.
	UserAgent string

	// MaxMessageBytes bounds a single inbound message.
	MaxMessageBytes int64

	// UseTor routes probes through Tor.
	UseTor bool

	// UseExternalTor uses the proxy at TorProxyAddress instead of starting
	// an embedded daemon. Only meaningful with UseTor.
	UseExternalTor bool

	// TorProxyAddress is the external Tor SOCKS5 proxy.
	TorProxyAddress string

	// TorStartupTimeout bounds embedded Tor bootstrap.
	TorStartupTimeout time.Duration

	// Verbose enables debug logging.
	Verbose bool

	// JSONLog switches log output to JSON.
	JSONLog bool

	// ConfigFilePath is the YAML file to load. Empty means search
	// the current and home directories for .leakbox.
	ConfigFilePath string

	// JSONReport and MarkdownReport select the report format.
	JSONReport     bool
	MarkdownReport bool

	// ReportFile writes the report to a file instead of stdout.
	ReportFile string
}

// NewConfig creates a Config populated with defaults.
func NewConfig() *Config {
	return &Config{
		SMTPAddress:       DefaultSMTPAddress,
		HTTPAddress:       DefaultHTTPAddress,
		DataDir:           XDGDataDir(),
		Workers:           DefaultWorkers,
		ProbeDelay:        DefaultProbeDelay,
		MaxRedirects:      DefaultMaxRedirects,
		Timeout:           DefaultTimeout,
		UserAgent:         DefaultUserAgent,
		MaxMessageBytes:   DefaultMaxMessageBytes,
		TorProxyAddress:   DefaultTorProxyAddress,
		TorStartupTimeout: DefaultTorStartupTimeout,
	}
}

// XDGDataDir returns the XDG data directory for leakbox.
// On Linux: ~/.local/share/leakbox
func XDGDataDir() string {
	return filepath.Join(xdg.DataHome, AppName)
}

// MailArchiveDir returns MailDir, defaulting to DataDir/mail.
func (c *Config) MailArchiveDir() string {
	if c.MailDir != "" {
		return c.MailDir
	}
	return filepath.Join(c.DataDir, "mail")
}

// Validate checks the configuration and returns the first problem found.
func (c *Config) Validate() error {
	if !validDomain(c.Domain) {
		return ErrInvalidDomain
	}
	if !validListenAddress(c.SMTPAddress) || !validListenAddress(c.HTTPAddress) {
		return ErrInvalidListenAddress
	}
	if c.DataDir == "" {
		return ErrNoDataDir
	}
	return c.validateCommon()
}

// ValidateOffline checks the options used by commands that only read the
// database, such as report and users.
func (c *Config) ValidateOffline() error {
	if c.DataDir == "" {
		return ErrNoDataDir
	}
	if c.JSONReport && c.MarkdownReport {
		return ErrConflictingReportFormats
	}
	return nil
}

func (c *Config) validateCommon() error {
	if c.Workers <= 0 {
		return ErrInvalidWorkers
	}
	if c.ProbeDelay < 0 {
		return ErrInvalidProbeDelay
	}
	if c.MaxRedirects <= 0 {
		return ErrInvalidMaxRedirects
	}
	if c.Timeout <= 0 || (c.UseTor && !c.UseExternalTor && c.TorStartupTimeout <= 0) {
		return ErrInvalidTimeout
	}
	if c.MaxMessageBytes <= 0 {
		return ErrInvalidMaxMessageBytes
	}
	if c.JSONReport && c.MarkdownReport {
		return ErrConflictingReportFormats
	}
	return nil
}

func validDomain(d string) bool {
	if d == "" || len(d) > 253 || d != strings.TrimSpace(d) {
		return false
	}
	if strings.ContainsAny(d, "@/ \t") || strings.HasPrefix(d, ".") || strings.HasSuffix(d, ".") {
		return false
	}
	for _, label := range strings.Split(d, ".") {
		if label == "" || len(label) > 63 {
			return false
		}
	}
	return true
}

func validListenAddress(addr string) bool {
	_, port, err := net.SplitHostPort(addr)
	if err != nil {
		return false
	}
	n, err := strconv.Atoi(port)
	return err == nil && n >= 0 && n <= 65535
}
