package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is the default configuration file name.
const DefaultConfigFile = ".leakbox"

// ErrConfigNotFound is returned when the configuration file does not exist.
var ErrConfigNotFound = errors.New("configuration file not found")

// File is the on-disk YAML form of Config. Zero values leave the
// corresponding Config field untouched.
type File struct {
	Domain          string        `yaml:"domain,omitempty"`
	SMTPAddress     string        `yaml:"smtpAddress,omitempty"`
	HTTPAddress     string        `yaml:"httpAddress,omitempty"`
	DataDir         string        `yaml:"dataDir,omitempty"`
	MailDir         string        `yaml:"mailDir,omitempty"`
	Workers         int           `yaml:"workers,omitempty"`
	ProbeDelay      time.Duration `yaml:"probeDelay,omitempty"`
	MaxRedirects    int           `yaml:"maxRedirects,omitempty"`
	Timeout         time.Duration `yaml:"timeout,omitempty"`
	UserAgent       string        `yaml:"userAgent,omitempty"`
	MaxMessageBytes int64         `yaml:"maxMessageBytes,omitempty"`
	Tor             TorFile       `yaml:"tor,omitempty"`
}

// TorFile is the tor section of the YAML file.
type TorFile struct {
	Enabled        bool          `yaml:"enabled,omitempty"`
	External       bool          `yaml:"external,omitempty"`
	ProxyAddress   string        `yaml:"proxyAddress,omitempty"`
	StartupTimeout time.Duration `yaml:"startupTimeout,omitempty"`
}

// LoadConfigFile reads a YAML configuration file.
// A missing file returns ErrConfigNotFound.
func LoadConfigFile(path string) (*File, error) {
	data, err := os.ReadFile(path) //nolint:gosec // User-provided config path is intentional
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrConfigNotFound
		}
		return nil, err
	}

	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return &f, nil
}

// Apply copies the non-zero fields of f onto c.
func (f *File) Apply(c *Config) {
	setString(&c.Domain, f.Domain)
	setString(&c.SMTPAddress, f.SMTPAddress)
	setString(&c.HTTPAddress, f.HTTPAddress)
	setString(&c.DataDir, f.DataDir)
	setString(&c.MailDir, f.MailDir)
	setString(&c.UserAgent, f.UserAgent)
	setString(&c.TorProxyAddress, f.Tor.ProxyAddress)

	if f.Workers != 0 {
		c.Workers = f.Workers
	}
	if f.ProbeDelay != 0 {
		c.ProbeDelay = f.ProbeDelay
	}
	if f.MaxRedirects != 0 {
		c.MaxRedirects = f.MaxRedirects
	}
	if f.Timeout != 0 {
		c.Timeout = f.Timeout
	}
	if f.MaxMessageBytes != 0 {
		c.MaxMessageBytes = f.MaxMessageBytes
	}
	if f.Tor.StartupTimeout != 0 {
		c.TorStartupTimeout = f.Tor.StartupTimeout
	}
	c.UseTor = c.UseTor || f.Tor.Enabled
	c.UseExternalTor = c.UseExternalTor || f.Tor.External
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

// FindConfigFile searches for the configuration file in this order:
//  1. configPath, if non-empty
//  2. .leakbox in the current directory
//  3. .leakbox in the user's home directory
//
// It returns an empty string when nothing is found.
func FindConfigFile(configPath string) string {
	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}
		return ""
	}

	if cwd, err := os.Getwd(); err == nil {
		p := filepath.Join(cwd, DefaultConfigFile)
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}

	if home, err := os.UserHomeDir(); err == nil {
		p := filepath.Join(home, DefaultConfigFile)
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}

	return ""
}
