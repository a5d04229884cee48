package config

import (
	"os"
	"path/filepath"
	"time"

	"focustrack/modules/core/timer"
)

const (
	DefaultServerAddr   = "127.0.0.1:9099"
	DefaultTickInterval = time.Second
	DefaultQueueSize    = 256
	DefaultIssuer       = "focustrack"
)

// DefaultConfig returns the configuration used when no file exists
func DefaultConfig() *Config {
	return &Config{
		Timer: TimerConfig{
			FocusLengthMinutes: timer.DefaultFocusLengthMinutes,
			BreakLengthMinutes: timer.DefaultBreakLengthMinutes,
			TickInterval:       DefaultTickInterval,
		},
		Daemon: DaemonConfig{
			QueueSize: DefaultQueueSize,
		},
		Server: ServerConfig{
			Enabled: true,
			Addr:    DefaultServerAddr,
		},
		Auth: AuthConfig{
			Issuer:      DefaultIssuer,
			ExpiryHours: 24,
		},
		Logger: LoggerConfig{
			Level:     "info",
			MaxSizeMB: 10,
		},
	}
}

// applyDefaults fills zero fields left out of a config file
func applyDefaults(cfg *Config) {
	def := DefaultConfig()

	if cfg.Timer.FocusLengthMinutes <= 0 {
		cfg.Timer.FocusLengthMinutes = def.Timer.FocusLengthMinutes
	}
	if cfg.Timer.BreakLengthMinutes < 0 {
		cfg.Timer.BreakLengthMinutes = def.Timer.BreakLengthMinutes
	}
	if cfg.Timer.TickInterval <= 0 {
		cfg.Timer.TickInterval = def.Timer.TickInterval
	}
	if cfg.Daemon.QueueSize <= 0 {
		cfg.Daemon.QueueSize = def.Daemon.QueueSize
	}
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = def.Server.Addr
	}
	if cfg.Auth.Issuer == "" {
		cfg.Auth.Issuer = def.Auth.Issuer
	}
	if cfg.Auth.ExpiryHours <= 0 {
		cfg.Auth.ExpiryHours = def.Auth.ExpiryHours
	}
	if cfg.Logger.Level == "" {
		cfg.Logger.Level = def.Logger.Level
	}
	if cfg.Logger.MaxSizeMB <= 0 {
		cfg.Logger.MaxSizeMB = def.Logger.MaxSizeMB
	}
}

// GetUserConfigDir returns the user's config directory for focustrack
func GetUserConfigDir() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(homeDir, ".config", "focustrack"), nil
}

// GetDefaultLogPath returns the daemon log file used when none is configured
func GetDefaultLogPath() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "focustrack.log")
	}
	return filepath.Join(homeDir, ".focustrack", "daemon.log")
}
