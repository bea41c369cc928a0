// Package config loads the daemon's YAML configuration.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/willeslau/mini-tcp/internal/tcpstack"
)

// Config describes everything the daemon needs outside the packet path.
type Config struct {
	// Interface is the TUN device the endpoint attaches to.
	Interface string `yaml:"interface"`
	// WindowSize is advertised on emitted SYN-ACK segments.
	WindowSize uint16 `yaml:"window_size"`
	// TTL is stamped on emitted IPv4 headers.
	TTL uint8 `yaml:"ttl"`
	// CaptureFile, when set, receives a pcap stream of all traffic.
	CaptureFile string `yaml:"capture_file,omitempty"`
	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level,omitempty"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Interface:  "mini-tcp-tun",
		WindowSize: tcpstack.DefaultWindowSize,
		TTL:        tcpstack.DefaultTTL,
		LogLevel:   "info",
	}
}

// Load reads a YAML config file. Absent fields keep their defaults.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %q: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %q: %w", path, err)
	}
	return cfg, nil
}

// Validate rejects configurations the daemon cannot start with.
func (c *Config) Validate() error {
	if c.Interface == "" {
		return fmt.Errorf("interface must not be empty")
	}
	switch strings.ToLower(c.LogLevel) {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown log_level %q", c.LogLevel)
	}
	return nil
}

// SlogLevel maps LogLevel onto slog's levels. Unset means info.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}
