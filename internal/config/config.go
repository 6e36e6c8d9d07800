// Package config holds the bridge daemon configuration, loaded from a YAML
// file with sane defaults for every field.
package config

import (
	"fmt"
	"os"

	"github.com/goccy/go-yaml"
)

const (
	// DefaultDeviceAddress is the default serial-bridge address the
	// connector dials.
	DefaultDeviceAddress = "localhost:5740"
	// DefaultCatalogURL is the default application catalog base URL.
	DefaultCatalogURL = "https://catalog.flipperzero.one/api/v0"
	// DefaultLogLevel is the default log verbosity.
	DefaultLogLevel = "info"
)

// Config holds the bridge configuration.
type Config struct {
	// DeviceAddress is the TCP address of the device serial bridge.
	DeviceAddress string `yaml:"device_address"`
	// CatalogURL is the application catalog base URL.
	CatalogURL string `yaml:"catalog_url"`
	// MetricsAddress, when set, enables the Prometheus listener.
	MetricsAddress string `yaml:"metrics_address"`
	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level"`
}

func defaults() *Config {
	return &Config{
		DeviceAddress: DefaultDeviceAddress,
		CatalogURL:    DefaultCatalogURL,
		LogLevel:      DefaultLogLevel,
	}
}

// LoadConfig loads the configuration from a YAML file. A missing file is
// not an error: defaults apply, so the daemon can start unconfigured.
func LoadConfig(path string) (*Config, error) {
	cfg := defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.DeviceAddress == "" {
		c.DeviceAddress = DefaultDeviceAddress
	}
	if c.CatalogURL == "" {
		c.CatalogURL = DefaultCatalogURL
	}
	if c.LogLevel == "" {
		c.LogLevel = DefaultLogLevel
	}
}
