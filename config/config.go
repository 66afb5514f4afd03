// Package config provides configuration loading and management for clubd.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete clubd configuration
type Config struct {
	NATS     NATSConfig     `yaml:"nats"`
	Backend  BackendConfig  `yaml:"backend"`
	Realtime RealtimeConfig `yaml:"realtime"`
	Booking  BookingConfig  `yaml:"booking"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

// NATSConfig configures the NATS connection backing state storage
type NATSConfig struct {
	// URL is the NATS server URL (empty = in-memory state only)
	URL string `yaml:"url"`
	// Bucket is the JetStream KV bucket for clubd state
	Bucket string `yaml:"bucket"`
}

// BackendConfig configures the remote HTTP API client
type BackendConfig struct {
	// BaseURL is the API root (e.g. https://api.clubsincronica.com)
	BaseURL string `yaml:"base_url"`
	// Token is the bearer token for authenticated endpoints
	Token string `yaml:"token"`
	// Timeout is the per-request timeout
	Timeout time.Duration `yaml:"timeout"`
}

// UnmarshalYAML accepts duration strings like "30s" for timeout. Absent
// fields keep their current (default) values.
func (b *BackendConfig) UnmarshalYAML(node *yaml.Node) error {
	var raw struct {
		BaseURL *string `yaml:"base_url"`
		Token   *string `yaml:"token"`
		Timeout *string `yaml:"timeout"`
	}
	if err := node.Decode(&raw); err != nil {
		return err
	}
	if raw.BaseURL != nil {
		b.BaseURL = *raw.BaseURL
	}
	if raw.Token != nil {
		b.Token = *raw.Token
	}
	if raw.Timeout != nil {
		d, err := parseDuration(*raw.Timeout)
		if err != nil {
			return fmt.Errorf("backend.timeout: %w", err)
		}
		b.Timeout = d
	}
	return nil
}

// MarshalYAML renders timeout as a duration string.
func (b BackendConfig) MarshalYAML() (any, error) {
	return struct {
		BaseURL string `yaml:"base_url"`
		Token   string `yaml:"token"`
		Timeout string `yaml:"timeout"`
	}{b.BaseURL, b.Token, b.Timeout.String()}, nil
}

// RealtimeConfig configures the websocket messaging channel
type RealtimeConfig struct {
	// URL is the websocket endpoint
	URL string `yaml:"url"`
	// ReconnectAttempts bounds automatic reconnection (0 = no reconnect)
	ReconnectAttempts int `yaml:"reconnect_attempts"`
	// ReconnectDelay is the initial delay between reconnect attempts
	ReconnectDelay time.Duration `yaml:"reconnect_delay"`
	// ReconnectDelayMax caps the backoff between attempts
	ReconnectDelayMax time.Duration `yaml:"reconnect_delay_max"`
}

// UnmarshalYAML accepts duration strings for the reconnect delays.
// Absent fields keep their current (default) values.
func (r *RealtimeConfig) UnmarshalYAML(node *yaml.Node) error {
	var raw struct {
		URL               *string `yaml:"url"`
		ReconnectAttempts *int    `yaml:"reconnect_attempts"`
		ReconnectDelay    *string `yaml:"reconnect_delay"`
		ReconnectDelayMax *string `yaml:"reconnect_delay_max"`
	}
	if err := node.Decode(&raw); err != nil {
		return err
	}
	if raw.URL != nil {
		r.URL = *raw.URL
	}
	if raw.ReconnectAttempts != nil {
		r.ReconnectAttempts = *raw.ReconnectAttempts
	}
	if raw.ReconnectDelay != nil {
		d, err := parseDuration(*raw.ReconnectDelay)
		if err != nil {
			return fmt.Errorf("realtime.reconnect_delay: %w", err)
		}
		r.ReconnectDelay = d
	}
	if raw.ReconnectDelayMax != nil {
		d, err := parseDuration(*raw.ReconnectDelayMax)
		if err != nil {
			return fmt.Errorf("realtime.reconnect_delay_max: %w", err)
		}
		r.ReconnectDelayMax = d
	}
	return nil
}

// MarshalYAML renders the delays as duration strings.
func (r RealtimeConfig) MarshalYAML() (any, error) {
	return struct {
		URL               string `yaml:"url"`
		ReconnectAttempts int    `yaml:"reconnect_attempts"`
		ReconnectDelay    string `yaml:"reconnect_delay"`
		ReconnectDelayMax string `yaml:"reconnect_delay_max"`
	}{r.URL, r.ReconnectAttempts, r.ReconnectDelay.String(), r.ReconnectDelayMax.String()}, nil
}

// parseDuration accepts Go duration strings ("30s") and bare integer
// nanosecond counts (the form older saved configs carry).
func parseDuration(s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	if d, err := time.ParseDuration(s); err == nil {
		return d, nil
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Duration(n), nil
	}
	return 0, fmt.Errorf("invalid duration %q", s)
}

// BookingConfig configures reservation behavior
type BookingConfig struct {
	// EnforceCapacity rejects reservations that would exceed an event's
	// maxParticipants. Off by default: the shipped behavior allows
	// overbooking, and vendors rely on manual confirmation instead.
	EnforceCapacity bool `yaml:"enforce_capacity"`
}

// MetricsConfig configures the prometheus endpoint of the agent command
type MetricsConfig struct {
	// Addr is the listen address for /metrics (empty = disabled)
	Addr string `yaml:"addr"`
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		NATS: NATSConfig{
			URL:    "",
			Bucket: "CLUB_STATE",
		},
		Backend: BackendConfig{
			BaseURL: "https://api.clubsincronica.com",
			Timeout: 30 * time.Second,
		},
		Realtime: RealtimeConfig{
			URL:               "wss://api.clubsincronica.com/socket",
			ReconnectAttempts: 5,
			ReconnectDelay:    time.Second,
			ReconnectDelayMax: 5 * time.Second,
		},
		Booking: BookingConfig{
			EnforceCapacity: false,
		},
		Metrics: MetricsConfig{
			Addr: "",
		},
	}
}

// Validate checks that the configuration is valid
func (c *Config) Validate() error {
	if c.NATS.Bucket == "" {
		return fmt.Errorf("nats.bucket is required")
	}
	if c.Backend.BaseURL == "" {
		return fmt.Errorf("backend.base_url is required")
	}
	if c.Backend.Timeout <= 0 {
		return fmt.Errorf("backend.timeout must be positive")
	}
	if c.Realtime.ReconnectAttempts < 0 {
		return fmt.Errorf("realtime.reconnect_attempts must be >= 0")
	}
	if c.Realtime.ReconnectDelayMax < c.Realtime.ReconnectDelay {
		return fmt.Errorf("realtime.reconnect_delay_max must be >= reconnect_delay")
	}
	return nil
}

// Merge overlays non-zero fields from other onto c
func (c *Config) Merge(other *Config) {
	if other == nil {
		return
	}
	if other.NATS.URL != "" {
		c.NATS.URL = other.NATS.URL
	}
	if other.NATS.Bucket != "" {
		c.NATS.Bucket = other.NATS.Bucket
	}
	if other.Backend.BaseURL != "" {
		c.Backend.BaseURL = other.Backend.BaseURL
	}
	if other.Backend.Token != "" {
		c.Backend.Token = other.Backend.Token
	}
	if other.Backend.Timeout != 0 {
		c.Backend.Timeout = other.Backend.Timeout
	}
	if other.Realtime.URL != "" {
		c.Realtime.URL = other.Realtime.URL
	}
	if other.Realtime.ReconnectAttempts != 0 {
		c.Realtime.ReconnectAttempts = other.Realtime.ReconnectAttempts
	}
	if other.Realtime.ReconnectDelay != 0 {
		c.Realtime.ReconnectDelay = other.Realtime.ReconnectDelay
	}
	if other.Realtime.ReconnectDelayMax != 0 {
		c.Realtime.ReconnectDelayMax = other.Realtime.ReconnectDelayMax
	}
	if other.Booking.EnforceCapacity {
		c.Booking.EnforceCapacity = true
	}
	if other.Metrics.Addr != "" {
		c.Metrics.Addr = other.Metrics.Addr
	}
}

// LoadFromFile loads configuration from a YAML file
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	config := DefaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return config, nil
}

// SaveToFile saves configuration to a YAML file
func (c *Config) SaveToFile(path string) error {
	// Ensure parent directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
