// Package config defines the glue configuration, loaded from YAML with
// defaults applied for anything the file leaves out.
package config

import (
	"fmt"
	"os"
	"strings"

	yamlv3 "gopkg.in/yaml.v3"
)

type Config struct {
	Driver    DriverConfig    `yaml:"driver"`
	Watcher   WatcherConfig   `yaml:"watcher"`
	Transport TransportConfig `yaml:"transport"`
	Control   ControlConfig   `yaml:"control"`
	Logging   LoggingConfig   `yaml:"logging"`
}

type DriverConfig struct {
	// ServerURL is the UiAutomator2 server endpoint, e.g. the port
	// forwarded from the device.
	ServerURL string `yaml:"server_url"`
	// AppPackage is the wallet application package id.
	AppPackage string `yaml:"app_package"`
	// RequestTimeoutSec bounds each individual HTTP call to the driver.
	RequestTimeoutSec int `yaml:"request_timeout_sec"`
	// FindRetries is the local retry budget for transient element
	// failures (element vanished between existence check and use).
	FindRetries int `yaml:"find_retries"`
}

type WatcherConfig struct {
	// PollIntervalMs is the detection cadence.
	PollIntervalMs int `yaml:"poll_interval_ms"`
	// ActivateAfterSec is the liveness threshold: how long the wallet
	// may stay out of the foreground before a forced re-activation.
	ActivateAfterSec int `yaml:"activate_after_sec"`
}

type TransportConfig struct {
	// ListenAddr is the WebSocket listen address for test clients.
	ListenAddr string `yaml:"listen_addr"`
}

type ControlConfig struct {
	// SocketPath is the local control socket. Empty disables it.
	SocketPath string `yaml:"socket_path"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Driver: DriverConfig{
			ServerURL:         "http://127.0.0.1:6790",
			AppPackage:        "io.metamask",
			RequestTimeoutSec: 30,
			FindRetries:       3,
		},
		Watcher: WatcherConfig{
			PollIntervalMs:   500,
			ActivateAfterSec: 30,
		},
		Transport: TransportConfig{
			ListenAddr: "127.0.0.1:8546",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load reads the YAML file at path and merges it over the defaults. A
// missing file is not an error; the defaults are returned as-is.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("read config: %w", err)
	}

	if err := yamlv3.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// applyDefaults backfills zero values left by a partial file.
func (c *Config) applyDefaults() {
	def := Default()
	if c.Driver.ServerURL == "" {
		c.Driver.ServerURL = def.Driver.ServerURL
	}
	if c.Driver.AppPackage == "" {
		c.Driver.AppPackage = def.Driver.AppPackage
	}
	if c.Driver.RequestTimeoutSec <= 0 {
		c.Driver.RequestTimeoutSec = def.Driver.RequestTimeoutSec
	}
	if c.Driver.FindRetries <= 0 {
		c.Driver.FindRetries = def.Driver.FindRetries
	}
	if c.Watcher.PollIntervalMs <= 0 {
		c.Watcher.PollIntervalMs = def.Watcher.PollIntervalMs
	}
	if c.Watcher.ActivateAfterSec <= 0 {
		c.Watcher.ActivateAfterSec = def.Watcher.ActivateAfterSec
	}
	if c.Transport.ListenAddr == "" {
		c.Transport.ListenAddr = def.Transport.ListenAddr
	}
	if c.Logging.Level == "" {
		c.Logging.Level = def.Logging.Level
	}
}

// Validate rejects configurations the glue cannot run with.
func (c *Config) Validate() error {
	if !strings.HasPrefix(c.Driver.ServerURL, "http://") && !strings.HasPrefix(c.Driver.ServerURL, "https://") {
		return fmt.Errorf("driver.server_url must be an http(s) URL, got %q", c.Driver.ServerURL)
	}
	if c.Driver.AppPackage == "" {
		return fmt.Errorf("driver.app_package must not be empty")
	}
	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("logging.level %q is not one of debug/info/warn/error", c.Logging.Level)
	}
	return nil
}
