package node

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration parses from YAML strings like "250ms" or "2s".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	parsed, err := time.ParseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", value.Value, err)
	}
	*d = Duration(parsed)
	return nil
}

// Config carries a node's operational settings. All fields have working
// defaults; a YAML config file overrides them.
type Config struct {
	// ListenAddrs are the libp2p multiaddrs the transport listens on.
	ListenAddrs []string `yaml:"listen_addrs"`

	// DataDir holds the identity keystore.
	DataDir string `yaml:"data_dir"`

	// APIAddr is the HTTP control API listen address.
	APIAddr string `yaml:"api_addr"`

	// MetricsAddr is the metrics listen address. Empty disables metrics.
	MetricsAddr string `yaml:"metrics_addr"`

	// EnablePprof mounts the pprof debug API on the control server.
	EnablePprof bool `yaml:"enable_pprof"`

	// DrainInterval is the outbound pacing tick. Queued wire messages go
	// out on this cadence regardless of when they were produced, which is
	// also the hook for constant-rate transmission.
	DrainInterval Duration `yaml:"drain_interval"`

	// BootstrapPeers are extra multiaddrs to bootstrap peer routing from,
	// in addition to the public defaults.
	BootstrapPeers []string `yaml:"bootstrap_peers"`
}

// DefaultConfig returns the settings a node runs with when no config file
// is given.
func DefaultConfig() *Config {
	return &Config{
		DataDir:       "spartic-data",
		APIAddr:       "127.0.0.1:8470",
		DrainInterval: Duration(100 * time.Millisecond),
	}
}

// LoadConfig reads a YAML config file over the defaults.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("could not read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("could not parse config: %w", err)
	}
	if cfg.DrainInterval <= 0 {
		return nil, fmt.Errorf("drain_interval must be positive")
	}
	return cfg, nil
}
