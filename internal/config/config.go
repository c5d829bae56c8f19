package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	DefaultMaxConcurrentTasks = 5
	DefaultTaskTimeout        = 2 * time.Minute
	DefaultQueueSize          = 256
	DefaultHistorySize        = 1000
	DefaultServerHost         = "127.0.0.1"
	DefaultServerPort         = 8264
	DefaultMetricsPort        = 9464
)

// SafetyLevel selects how strict the pre-execution permission check is.
type SafetyLevel string

const (
	// SafetyOff disables validation and rollback protection entirely.
	SafetyOff SafetyLevel = "off"
	// SafetyPermissive validates but logs footprint drift instead of rolling back.
	SafetyPermissive SafetyLevel = "permissive"
	// SafetyStrict validates and rolls back on any unintended side effect.
	SafetyStrict SafetyLevel = "strict"
)

// Config captures user-configurable orchestrator settings, read once at
// startup.
type Config struct {
	Enabled            bool          `mapstructure:"enabled"`
	MaxConcurrentTasks int           `mapstructure:"max_concurrent_tasks"`
	DefaultTaskTimeout time.Duration `mapstructure:"default_task_timeout"`
	LogLevel           string        `mapstructure:"log_level"`

	Safety   SafetyConfig   `mapstructure:"safety"`
	EventBus EventBusConfig `mapstructure:"eventbus"`
	Server   ServerConfig   `mapstructure:"server"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
}

// SafetyConfig drives the safety layer's permission rules.
type SafetyConfig struct {
	Level            SafetyLevel `mapstructure:"level"`
	ForbiddenTypes   []string    `mapstructure:"forbidden_types"`
	ForbiddenTargets []string    `mapstructure:"forbidden_targets"`
}

// EventBusConfig sizes the event queue and history ring.
type EventBusConfig struct {
	QueueSize   int `mapstructure:"queue_size"`
	HistorySize int `mapstructure:"history_size"`
}

// ServerConfig configures the event-stream HTTP server.
type ServerConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Host    string `mapstructure:"host"`
	Port    int    `mapstructure:"port"`
}

// MetricsConfig configures the Prometheus scrape endpoint.
type MetricsConfig struct {
	Enabled        bool `mapstructure:"enabled"`
	PrometheusPort int  `mapstructure:"prometheus_port"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Enabled:            true,
		MaxConcurrentTasks: DefaultMaxConcurrentTasks,
		DefaultTaskTimeout: DefaultTaskTimeout,
		LogLevel:           "info",
		Safety: SafetyConfig{
			Level: SafetyStrict,
		},
		EventBus: EventBusConfig{
			QueueSize:   DefaultQueueSize,
			HistorySize: DefaultHistorySize,
		},
		Server: ServerConfig{
			Enabled: true,
			Host:    DefaultServerHost,
			Port:    DefaultServerPort,
		},
		Metrics: MetricsConfig{
			Enabled:        false,
			PrometheusPort: DefaultMetricsPort,
		},
	}
}

// Load reads configuration from an optional YAML file plus THOTH_ prefixed
// environment variables layered over the defaults. An empty path skips the
// file and uses defaults and environment only.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	defaults := Default()
	v.SetDefault("enabled", defaults.Enabled)
	v.SetDefault("max_concurrent_tasks", defaults.MaxConcurrentTasks)
	v.SetDefault("default_task_timeout", defaults.DefaultTaskTimeout)
	v.SetDefault("log_level", defaults.LogLevel)
	v.SetDefault("safety.level", string(defaults.Safety.Level))
	v.SetDefault("safety.forbidden_types", []string{})
	v.SetDefault("safety.forbidden_targets", []string{})
	v.SetDefault("eventbus.queue_size", defaults.EventBus.QueueSize)
	v.SetDefault("eventbus.history_size", defaults.EventBus.HistorySize)
	v.SetDefault("server.enabled", defaults.Server.Enabled)
	v.SetDefault("server.host", defaults.Server.Host)
	v.SetDefault("server.port", defaults.Server.Port)
	v.SetDefault("metrics.enabled", defaults.Metrics.Enabled)
	v.SetDefault("metrics.prometheus_port", defaults.Metrics.PrometheusPort)

	v.SetEnvPrefix("THOTH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects values the orchestrator cannot run with.
func (c *Config) Validate() error {
	if c.MaxConcurrentTasks <= 0 {
		return fmt.Errorf("max_concurrent_tasks must be positive, got %d", c.MaxConcurrentTasks)
	}
	if c.DefaultTaskTimeout <= 0 {
		return fmt.Errorf("default_task_timeout must be positive, got %s", c.DefaultTaskTimeout)
	}
	switch c.Safety.Level {
	case SafetyOff, SafetyPermissive, SafetyStrict:
	default:
		return fmt.Errorf("unknown safety level %q", c.Safety.Level)
	}
	return nil
}
