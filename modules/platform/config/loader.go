package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"
)

const (
	// DefaultConfigFileName is the default config file name
	DefaultConfigFileName = "focustrack.yaml"
)

var (
	// globalConfig is the globally loaded configuration
	globalConfig *Config
	// globalConfigPath is the path to the loaded config file
	globalConfigPath string
	// configMutex protects config access
	configMutex sync.RWMutex
)

// Loader handles configuration loading and saving
type Loader struct {
	configPath string
}

// NewLoader creates a new config loader
func NewLoader(configPath string) *Loader {
	return &Loader{
		configPath: configPath,
	}
}

// Load loads configuration from file.
// A missing file yields the defaults; fields absent from the file keep their defaults.
func (l *Loader) Load() (*Config, error) {
	config := DefaultConfig()

	data, err := os.ReadFile(l.configPath)
	if os.IsNotExist(err) {
		return config, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	applyDefaults(config)

	return config, nil
}

// Save saves configuration to file
func (l *Loader) Save(config *Config) error {
	dir := filepath.Dir(l.configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	// The file may hold the JWT secret
	if err := os.WriteFile(l.configPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// GetPath returns the config file path
func (l *Loader) GetPath() string {
	return l.configPath
}

// Exists checks if config file exists
func (l *Loader) Exists() bool {
	_, err := os.Stat(l.configPath)
	return err == nil
}

// FindConfigFile searches for config file in standard locations
func FindConfigFile() string {
	// Priority order:
	// 1. Current directory
	// 2. User config directory

	cwd, err := os.Getwd()
	if err == nil {
		configPath := filepath.Join(cwd, DefaultConfigFileName)
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}
	}

	if dir, err := GetUserConfigDir(); err == nil {
		configPath := filepath.Join(dir, DefaultConfigFileName)
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}
		return configPath
	}

	if cwd != "" {
		return filepath.Join(cwd, DefaultConfigFileName)
	}
	return DefaultConfigFileName
}

// LoadGlobal loads configuration globally
func LoadGlobal(configPath string) error {
	if configPath == "" {
		configPath = FindConfigFile()
	}

	config, err := NewLoader(configPath).Load()
	if err != nil {
		return err
	}

	SetGlobal(config, configPath)
	return nil
}

// GetGlobal returns the global configuration
func GetGlobal() *Config {
	configMutex.RLock()
	defer configMutex.RUnlock()

	if globalConfig == nil {
		return DefaultConfig()
	}
	return globalConfig
}

// GetGlobalPath returns the global config file path
func GetGlobalPath() string {
	configMutex.RLock()
	defer configMutex.RUnlock()

	return globalConfigPath
}

// SetGlobal sets the global configuration
func SetGlobal(config *Config, configPath string) {
	configMutex.Lock()
	defer configMutex.Unlock()

	globalConfig = config
	globalConfigPath = configPath
}
