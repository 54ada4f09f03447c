package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	Device          DeviceConfig   `yaml:"device"`
	Poll            PollConfig     `yaml:"poll"`
	Edit            EditConfig     `yaml:"edit"`
	Database        DatabaseConfig `yaml:"database"`
	Log             LogConfig      `yaml:"log"`
	HTTP            HTTPConfig     `yaml:"http"`
	MQTT            MQTTConfig     `yaml:"mqtt"`
	Metrics         MetricsConfig  `yaml:"metrics"`
	EventBus        EventBusConfig `yaml:"eventbus"`
	Ledger          LedgerConfig   `yaml:"ledger"`
	ShutdownTimeout Duration       `yaml:"shutdown_timeout"` // General shutdown timeout for graceful stops
}

// DeviceConfig contains relay controller connection settings
type DeviceConfig struct {
	BaseURL      string   `yaml:"base_url"`
	Timeout      Duration `yaml:"timeout"`
	Schema       string   `yaml:"schema"`         // v1 or legacy
	RateLimitRPS float64  `yaml:"rate_limit_rps"` // Limit for mutating calls
}

// PollConfig contains poll cadence and backoff settings
type PollConfig struct {
	Interval       Duration `yaml:"interval"`
	ClockInterval  Duration `yaml:"clock_interval"` // Device clock refresh (0 = disabled)
	BackoffEnabled *bool    `yaml:"backoff_enabled"`
	MinBackoff     Duration `yaml:"min_backoff"`
	MaxBackoff     Duration `yaml:"max_backoff"`
	Multiplier     float64  `yaml:"multiplier"`
}

// EditConfig contains edit coalescing settings
type EditConfig struct {
	Debounce Duration `yaml:"debounce"`
}

// DatabaseConfig contains database settings
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// LogConfig contains logging settings
type LogConfig struct {
	Level  string `yaml:"level"`
	JSON   bool   `yaml:"json"`
	Colors bool   `yaml:"colors"`
}

// HTTPConfig contains local API server settings
type HTTPConfig struct {
	Enabled bool   `yaml:"enabled"`
	Host    string `yaml:"host"`
	Port    int    `yaml:"port"`
}

// Addr returns host:port
func (c HTTPConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// MQTTConfig contains MQTT mirror settings
type MQTTConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Broker      string `yaml:"broker"`
	ClientID    string `yaml:"client_id"`
	TopicPrefix string `yaml:"topic_prefix"`
}

// MetricsConfig contains the optional statsd sink settings
type MetricsConfig struct {
	StatsdAddr string   `yaml:"statsd_addr"` // Empty disables statsd
	Namespace  string   `yaml:"namespace"`
	Tags       []string `yaml:"tags"`
}

// EventBusConfig contains event bus settings
type EventBusConfig struct {
	Workers   int `yaml:"workers"`    // Number of worker goroutines (default: 2)
	QueueSize int `yaml:"queue_size"` // Event queue size (default: 256)
}

// GetWorkers returns worker count with default
func (c *EventBusConfig) GetWorkers() int {
	if c.Workers <= 0 {
		return 2
	}
	return c.Workers
}

// GetQueueSize returns queue size with default
func (c *EventBusConfig) GetQueueSize() int {
	if c.QueueSize <= 0 {
		return 256
	}
	return c.QueueSize
}

// LedgerConfig contains mutation ledger settings
type LedgerConfig struct {
	CleanupInterval Duration `yaml:"cleanup_interval"`
	Retention       Duration `yaml:"retention"`
}

// GetBackoffEnabled returns whether poll backoff is on (default: true)
func (c *PollConfig) GetBackoffEnabled() bool {
	if c.BackoffEnabled == nil {
		return true
	}
	return *c.BackoffEnabled
}

// Duration is a wrapper around time.Duration for YAML unmarshalling
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler for Duration
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// Duration returns the underlying time.Duration
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// Load reads and parses the configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Parse parses configuration data and applies defaults
func Parse(data []byte) (*Config, error) {
	// Expand environment variables
	expanded := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns a configuration with every default applied
func Default() *Config {
	var cfg Config
	cfg.applyDefaults()
	return &cfg
}

func (cfg *Config) applyDefaults() {
	// Device defaults
	if cfg.Device.BaseURL == "" {
		cfg.Device.BaseURL = "http://192.168.4.1"
	}
	cfg.Device.BaseURL = strings.TrimRight(cfg.Device.BaseURL, "/")
	if cfg.Device.Timeout == 0 {
		cfg.Device.Timeout = Duration(10 * time.Second)
	}
	if cfg.Device.Schema == "" {
		cfg.Device.Schema = "v1"
	}
	if cfg.Device.RateLimitRPS == 0 {
		cfg.Device.RateLimitRPS = 5.0
	}

	// Poll defaults
	if cfg.Poll.Interval == 0 {
		cfg.Poll.Interval = Duration(1 * time.Second)
	}
	if cfg.Poll.MinBackoff == 0 {
		cfg.Poll.MinBackoff = Duration(2 * time.Second)
	}
	if cfg.Poll.MaxBackoff == 0 {
		cfg.Poll.MaxBackoff = Duration(1 * time.Minute)
	}
	if cfg.Poll.Multiplier == 0 {
		cfg.Poll.Multiplier = 2.0
	}

	if cfg.Edit.Debounce == 0 {
		cfg.Edit.Debounce = Duration(400 * time.Millisecond)
	}

	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Database.Path == "" {
		cfg.Database.Path = "./relayboard.sqlite"
	}

	// HTTP defaults
	if cfg.HTTP.Port == 0 {
		cfg.HTTP.Port = 8080
	}
	if cfg.HTTP.Host == "" {
		cfg.HTTP.Host = "127.0.0.1"
	}

	// MQTT defaults
	if cfg.MQTT.ClientID == "" {
		cfg.MQTT.ClientID = "relayboard"
	}
	if cfg.MQTT.TopicPrefix == "" {
		cfg.MQTT.TopicPrefix = "relayboard"
	}

	if cfg.Metrics.Namespace == "" {
		cfg.Metrics.Namespace = "relayboard"
	}

	// Ledger defaults
	if cfg.Ledger.CleanupInterval == 0 {
		cfg.Ledger.CleanupInterval = Duration(24 * time.Hour)
	}
	if cfg.Ledger.Retention == 0 {
		cfg.Ledger.Retention = Duration(30 * 24 * time.Hour)
	}

	// General shutdown timeout
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = Duration(5 * time.Second)
	}
}

// Validate checks values that have no sensible default
func (cfg *Config) Validate() error {
	switch cfg.Device.Schema {
	case "v1", "legacy":
	default:
		return fmt.Errorf("device.schema: unknown schema %q", cfg.Device.Schema)
	}
	if cfg.Poll.Multiplier < 1 {
		return fmt.Errorf("poll.multiplier must be >= 1, got %v", cfg.Poll.Multiplier)
	}
	if cfg.Poll.MaxBackoff < cfg.Poll.MinBackoff {
		return fmt.Errorf("poll.max_backoff (%s) is below poll.min_backoff (%s)",
			cfg.Poll.MaxBackoff.Duration(), cfg.Poll.MinBackoff.Duration())
	}
	if cfg.MQTT.Enabled && cfg.MQTT.Broker == "" {
		return fmt.Errorf("mqtt.broker is required when mqtt is enabled")
	}
	return nil
}

var envPattern = regexp.MustCompile(`\$\{([^}:]+)(?::([^}]*))?\}`)

// expandEnvVars expands environment variables in the format ${VAR} or ${VAR:default}
func expandEnvVars(input string) string {
	return envPattern.ReplaceAllStringFunc(input, func(match string) string {
		parts := envPattern.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		varName := parts[1]
		defaultVal := ""
		if len(parts) >= 3 {
			defaultVal = parts[2]
		}

		if val := os.Getenv(varName); val != "" {
			return val
		}
		return defaultVal
	})
}
