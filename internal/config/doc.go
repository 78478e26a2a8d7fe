// Package config holds the leakbox runtime configuration: mail domain,
// listener addresses, storage directories, probe pool tuning and the
// optional Tor transport. Values come from defaults, then the YAML file,
// then command-line flags.
package config
