package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// Config represents the main configuration structure
type Config struct {
	Listen    string       `yaml:"listen"`
	API       APIConfig    `yaml:"api"`
	Memory    MemoryConfig `yaml:"memory"`
	KeyDB     KeyDBConfig  `yaml:"keydb"`
	Proxy     ProxyConfig  `yaml:"proxy"`
	Schedules string       `yaml:"schedules_file"`
}

// APIConfig describes the remote spreadsheet API the caches sit in front of.
type APIConfig struct {
	BaseURL  string        `yaml:"base_url"`
	Hosts    []string      `yaml:"hosts"` // hosts the proxy treats with the smart strategy
	Timeout  time.Duration `yaml:"timeout"`
	Username string        `yaml:"username"`
	Password string        `yaml:"password"`
}

// MemoryConfig configures the in-memory store backing the interception proxy.
type MemoryConfig struct {
	Enabled   bool          `yaml:"enabled"`
	SizeMB    int           `yaml:"size_mb"`
	Retention time.Duration `yaml:"retention"`
}

// KeyDBConfig configures the durable store backing the report gateway.
type KeyDBConfig struct {
	Enabled        bool          `yaml:"enabled"`
	URL            string        `yaml:"url"`
	URLFile        string        `yaml:"url_file"`
	Namespace      string        `yaml:"namespace"`
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
	ReadTimeout    time.Duration `yaml:"read_timeout"`
	WriteTimeout   time.Duration `yaml:"write_timeout"`
	PoolSize       int           `yaml:"pool_size"`
}

// ResolveURL picks the KeyDB connection URL. The KEYDB_URL environment
// variable wins, then the configured url, then the contents of url_file,
// the way a mounted secret delivers it.
func (k KeyDBConfig) ResolveURL(logger *zap.Logger) string {
	if fromEnv := os.Getenv("KEYDB_URL"); fromEnv != "" {
		logger.Debug("Using KeyDB URL from environment")
		return fromEnv
	}

	if k.URL != "" {
		return k.URL
	}

	if content, err := os.ReadFile(k.URLFile); err == nil {
		if fromFile := strings.TrimSpace(string(content)); fromFile != "" {
			logger.Debug("Using KeyDB URL from connection file", zap.String("file", k.URLFile))
			return fromFile
		}
	}

	logger.Debug("Using default KeyDB URL")
	return "redis://keydb:6379"
}

// ProxyConfig configures the interception proxy lifecycle.
type ProxyConfig struct {
	Version  int      `yaml:"version"` // bumped on deploy, retires older cache generations
	Precache []string `yaml:"precache"`
}

// GenerationTag returns the cache generation namespace for the configured
// version.
func (p ProxyConfig) GenerationTag() string {
	return fmt.Sprintf("app-cache-v%d", p.Version)
}

// LoadConfig loads configuration from file path
func LoadConfig(configPath string, logger *zap.Logger) (*Config, error) {
	logger.Info("Loading configuration", zap.String("path", configPath))

	file, err := os.Open(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer func() { _ = file.Close() }()

	var config Config
	decoder := yaml.NewDecoder(file)
	if err := decoder.Decode(&config); err != nil {
		return nil, fmt.Errorf("failed to decode YAML config: %w", err)
	}

	config.applyDefaults()
	return &config, nil
}

// applyDefaults sets default values for missing configuration
func (c *Config) applyDefaults() {
	if c.Listen == "" {
		c.Listen = ":8090"
	}
	if c.API.Timeout == 0 {
		c.API.Timeout = 20 * time.Second
	}
	if c.Memory.SizeMB == 0 {
		c.Memory.SizeMB = 64
	}
	if c.Memory.Retention == 0 {
		c.Memory.Retention = 72 * time.Hour
	}
	if c.KeyDB.URLFile == "" {
		c.KeyDB.URLFile = "/etc/sumarija/keydb-url"
	}
	if c.KeyDB.Namespace == "" {
		c.KeyDB.Namespace = "sumarija:"
	}
	if c.KeyDB.ConnectTimeout == 0 {
		c.KeyDB.ConnectTimeout = 5 * time.Second
	}
	if c.KeyDB.ReadTimeout == 0 {
		c.KeyDB.ReadTimeout = 2 * time.Second
	}
	if c.KeyDB.WriteTimeout == 0 {
		c.KeyDB.WriteTimeout = 2 * time.Second
	}
	if c.KeyDB.PoolSize == 0 {
		c.KeyDB.PoolSize = 10
	}
	if c.Proxy.Version == 0 {
		c.Proxy.Version = 1
	}
}
