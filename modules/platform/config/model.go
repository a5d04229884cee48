package config

import (
	"time"

	"focustrack/modules/core/timer"
)

// Config represents the main configuration
type Config struct {
	Timer  TimerConfig  `yaml:"timer"`
	Daemon DaemonConfig `yaml:"daemon"`
	Server ServerConfig `yaml:"server"`
	Auth   AuthConfig   `yaml:"auth"`
	Logger LoggerConfig `yaml:"logger"`
}

// TimerConfig holds the idle defaults and tick rate of the controller
type TimerConfig struct {
	FocusLengthMinutes int           `yaml:"focus_length_minutes"`
	BreakLengthMinutes int           `yaml:"break_length_minutes"`
	TickInterval       time.Duration `yaml:"tick_interval"`
}

// Defaults converts the config to controller defaults
func (t TimerConfig) Defaults() timer.Defaults {
	return timer.Defaults{
		FocusLengthMinutes: t.FocusLengthMinutes,
		BreakLengthMinutes: t.BreakLengthMinutes,
	}
}

// DaemonConfig holds the socket channel settings
type DaemonConfig struct {
	Instance  string `yaml:"instance,omitempty"` // Empty = default instance
	Dir       string `yaml:"dir,omitempty"`      // Socket and PID dir (empty = ~/.focustrack)
	QueueSize int    `yaml:"queue_size"`         // Outbound messages buffered per channel
}

// ServerConfig holds the HTTP/WebSocket surface settings
type ServerConfig struct {
	Enabled        bool     `yaml:"enabled"`
	Addr           string   `yaml:"addr"`
	AllowedOrigins []string `yaml:"allowed_origins,omitempty"` // Empty = any origin
}

// AuthConfig holds the bearer token settings. An empty secret disables auth.
type AuthConfig struct {
	Secret      string `yaml:"secret,omitempty"`
	Issuer      string `yaml:"issuer"`
	ExpiryHours int    `yaml:"expiry_hours"`
}

// LoggerConfig represents logger configuration
type LoggerConfig struct {
	Level     string `yaml:"level"`                // debug, info, warn, error
	FilePath  string `yaml:"file_path,omitempty"`  // Empty = stderr only
	MaxSizeMB int    `yaml:"max_size_mb"`          // Rotate above this size
}
