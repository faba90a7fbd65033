// Package config provides hierarchical configuration management.
// Priority: defaults < system < user < project < env < flags
package config

import (
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/logflow/ptalign/pkg/errors"
)

// Config holds all ptalign configuration.
type Config struct {
	Version int `yaml:"version"`

	Alignment AlignmentConfig `yaml:"alignment"`
	Cache     CacheConfig     `yaml:"cache"`
	Export    ExportConfig    `yaml:"export"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// AlignmentConfig controls the variant driver and the search.
type AlignmentConfig struct {
	ActivityKey     string `yaml:"activity_key"`
	Cores           int    `yaml:"cores"` // 0 = auto, 1 = sequential
	EnableReduction bool   `yaml:"enable_reduction"`
	ShowProgress    bool   `yaml:"show_progress"`
	MaxStates       int    `yaml:"max_states"` // 0 = unlimited
}

// CacheConfig selects the persistent alignment store.
type CacheConfig struct {
	Redis    string        `yaml:"redis"` // host:port, empty = memory only
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	Prefix   string        `yaml:"prefix"`
	TTL      time.Duration `yaml:"ttl"`
}

// ExportConfig for result upload.
type ExportConfig struct {
	S3Region   string `yaml:"s3_region"`
	S3Endpoint string `yaml:"s3_endpoint"`
}

// TelemetryConfig for logs, traces and metrics.
type TelemetryConfig struct {
	LogLevel     string `yaml:"log_level"`  // debug | info | warn | error
	LogFormat    string `yaml:"log_format"` // text | json
	OTLPEndpoint string `yaml:"otlp_endpoint"`
	MetricsAddr  string `yaml:"metrics_addr"`
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Version: 1,
		Alignment: AlignmentConfig{
			ActivityKey:     "concept:name",
			Cores:           0, // auto
			EnableReduction: true,
		},
		Cache: CacheConfig{
			Prefix: "ptalign:",
			TTL:    7 * 24 * time.Hour,
		},
		Export: ExportConfig{
			S3Region: "us-east-1",
		},
		Telemetry: TelemetryConfig{
			LogLevel:  "info",
			LogFormat: "text",
		},
	}
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	switch {
	case c.Alignment.ActivityKey == "":
		return errors.InvalidConfig("alignment.activity_key", c.Alignment.ActivityKey, "activity key must not be empty")
	case c.Alignment.Cores < 0:
		return errors.InvalidConfig("alignment.cores", c.Alignment.Cores, "cores must be 0 (auto) or positive")
	case c.Alignment.MaxStates < 0:
		return errors.InvalidConfig("alignment.max_states", c.Alignment.MaxStates, "max states must be 0 (unlimited) or positive")
	case c.Cache.TTL < 0:
		return errors.InvalidConfig("cache.ttl", c.Cache.TTL, "ttl must not be negative")
	}

	switch c.Telemetry.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return errors.InvalidConfig("telemetry.log_level", c.Telemetry.LogLevel, "unknown log level")
	}
	switch c.Telemetry.LogFormat {
	case "text", "json":
	default:
		return errors.InvalidConfig("telemetry.log_format", c.Telemetry.LogFormat, "log format must be text or json")
	}
	return nil
}

// Manager handles configuration loading and merging.
type Manager struct {
	mu     sync.RWMutex
	config *Config
	paths  []string // Paths that were loaded
}

// NewManager creates a new configuration manager.
func NewManager() *Manager {
	return &Manager{
		config: Default(),
	}
}

// Load loads configuration from all sources in priority order.
func (m *Manager) Load() error {
	return m.LoadFrom(configPaths()...)
}

// LoadFrom loads the given files in order (later overrides earlier), then
// the environment, and validates the result. Missing files are skipped.
func (m *Manager) LoadFrom(paths ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.config = Default()
	m.paths = nil
	for _, path := range paths {
		if err := m.loadFile(path); err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return errors.Wrap(err, errors.CodeInvalidConfig, "failed to load config file").
				WithContext("path", path)
		}
		m.paths = append(m.paths, path)
	}

	if err := m.loadEnv(); err != nil {
		return err
	}
	return m.config.Validate()
}

// configPaths returns config file paths in priority order.
func configPaths() []string {
	var paths []string

	// System config
	if runtime.GOOS != "windows" {
		paths = append(paths, "/etc/ptalign/config.yaml")
	}

	// User config
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".ptalign", "config.yaml"))
	}

	// Project config (current directory)
	if cwd, err := os.Getwd(); err == nil {
		paths = append(paths, filepath.Join(cwd, ".ptalign.yaml"))
	}

	return paths
}

// loadFile decodes a config file over the current values, so only the keys
// present in the file override earlier layers.
func (m *Manager) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, m.config)
}

// loadEnv loads configuration from environment variables.
func (m *Manager) loadEnv() error {
	// PTALIGN_CORES
	if v := os.Getenv("PTALIGN_CORES"); v != "" {
		cores, err := strconv.Atoi(v)
		if err != nil {
			return errors.InvalidConfig("PTALIGN_CORES", v, "not an integer")
		}
		m.config.Alignment.Cores = cores
	}

	// PTALIGN_ACTIVITY_KEY
	if v := os.Getenv("PTALIGN_ACTIVITY_KEY"); v != "" {
		m.config.Alignment.ActivityKey = v
	}

	// PTALIGN_REDIS
	if v := os.Getenv("PTALIGN_REDIS"); v != "" {
		m.config.Cache.Redis = v
	}

	// PTALIGN_OTLP_ENDPOINT
	if v := os.Getenv("PTALIGN_OTLP_ENDPOINT"); v != "" {
		m.config.Telemetry.OTLPEndpoint = v
	}

	// PTALIGN_LOG_LEVEL
	if v := os.Getenv("PTALIGN_LOG_LEVEL"); v != "" {
		m.config.Telemetry.LogLevel = v
	}
	return nil
}

// Get returns the current configuration.
func (m *Manager) Get() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.config
}

// GetPaths returns the paths that were loaded.
func (m *Manager) GetPaths() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.paths
}

// Marshal renders the current configuration as YAML.
func (m *Manager) Marshal() ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return yaml.Marshal(m.config)
}

// Save writes the current config to the user config file.
func (m *Manager) Save() error {
	home, err := os.UserHomeDir()
	if err != nil {
		return err
	}

	configDir := filepath.Join(home, ".ptalign")
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return err
	}

	data, err := m.Marshal()
	if err != nil {
		return err
	}

	return os.WriteFile(filepath.Join(configDir, "config.yaml"), data, 0644)
}

// Global instance
var (
	globalManager *Manager
	globalOnce    sync.Once
	globalErr     error
)

// Global returns the global configuration manager and the error of its
// first load.
func Global() (*Manager, error) {
	globalOnce.Do(func() {
		globalManager = NewManager()
		globalErr = globalManager.Load()
	})
	return globalManager, globalErr
}
