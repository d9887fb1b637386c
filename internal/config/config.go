package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	koanfyaml "github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
	"github.com/sirupsen/logrus"
)

// Config represents the application configuration
type Config struct {
	Server   ServerConfig  `yaml:"server"`
	Origin   string        `yaml:"origin"`
	Cache    CacheConfig   `yaml:"cache"`
	Manifest []string      `yaml:"manifest"`
	Mock     MockConfig    `yaml:"mock"`
	Network  NetworkConfig `yaml:"network"`
	Log      LogConfig     `yaml:"log"`
}

// ServerConfig contains server-related configuration
type ServerConfig struct {
	Port  int         `yaml:"port"`
	HTTPS HTTPSConfig `yaml:"https"`
}

// HTTPSConfig controls TLS interception
type HTTPSConfig struct {
	Enabled         bool   `yaml:"enabled"`
	CACertFile      string `yaml:"ca_cert_file"`
	CAKeyFile       string `yaml:"ca_key_file"`
	TransparentAddr string `yaml:"transparent_addr"`
}

// CacheConfig contains cache-related configuration
type CacheConfig struct {
	// Name of the cache generation owned by this deployment
	Name    string `yaml:"name"`
	Backend string `yaml:"backend"` // "disk", "memory" or "sqlite"
	Folder  string `yaml:"folder"`
}

// MockConfig configures the static /animes endpoint
type MockConfig struct {
	Prefix string `yaml:"prefix"`
	Match  string `yaml:"match"` // "substring" or "segment"
}

// NetworkConfig configures outbound fetches
type NetworkConfig struct {
	Timeout string `yaml:"timeout"`
}

// LogConfig configures logrus output
type LogConfig struct {
	Level      string `yaml:"level"`
	Format     string `yaml:"format"` // "text" or "json"
	File       string `yaml:"file"`
	MaxSize    int    `yaml:"max_size"`
	MaxBackups int    `yaml:"max_backups"`
	Compress   bool   `yaml:"compress"`
}

const (
	BackendDisk   = "disk"
	BackendMemory = "memory"
	BackendSQLite = "sqlite"

	MatchSubstring = "substring"
	MatchSegment   = "segment"
)

// DefaultManifest lists the resources the application needs offline
var DefaultManifest = []string{
	"/",
	"/index.html",
	"/home.html",
	"/dashboard.html",
	"/app.js",
	"/dashboard.js",
	"/dashboard.css",
	"/_redirects",
}

// Default returns the configuration used for every key the file leaves out
func Default() Config {
	return Config{
		Server: ServerConfig{Port: 8080},
		Origin: "http://localhost:3000",
		Cache: CacheConfig{
			Name:    "shadow-gate-v9",
			Backend: BackendDisk,
			Folder:  "./cache",
		},
		Manifest: append([]string(nil), DefaultManifest...),
		Mock: MockConfig{
			Prefix: "/animes",
			Match:  MatchSubstring,
		},
		Network: NetworkConfig{Timeout: "30s"},
		Log: LogConfig{
			Level:      "info",
			Format:     "text",
			MaxSize:    100,
			MaxBackups: 10,
			Compress:   true,
		},
	}
}

// Load loads configuration from a YAML file, on top of Default()
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(Default(), "yaml"), nil); err != nil {
		return nil, fmt.Errorf("loading config defaults: %w", err)
	}

	if err := k.Load(file.Provider(path), koanfyaml.Parser()); err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var config Config
	if err := k.UnmarshalWithConf("", &config, koanf.UnmarshalConf{Tag: "yaml"}); err != nil {
		return nil, fmt.Errorf("parsing config YAML: %w", err)
	}

	logrus.Debugf("Loaded config from %s", path)
	return &config, nil
}

// GetNetworkTimeout parses and returns the outbound request timeout
func (c *Config) GetNetworkTimeout() (time.Duration, error) {
	return time.ParseDuration(c.Network.Timeout)
}

// GetOrigin parses and returns the application origin
func (c *Config) GetOrigin() (*url.URL, error) {
	u, err := url.Parse(c.Origin)
	if err != nil {
		return nil, err
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("origin must be an absolute URL, got: %s", c.Origin)
	}
	return u, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Server.Port)
	}

	if _, err := c.GetOrigin(); err != nil {
		return fmt.Errorf("invalid origin: %w", err)
	}

	if c.Cache.Name == "" {
		return fmt.Errorf("cache name is required")
	}
	if strings.ContainsAny(c.Cache.Name, `/\`) || c.Cache.Name == "." || c.Cache.Name == ".." {
		return fmt.Errorf("cache name must not contain path separators, got: %s", c.Cache.Name)
	}

	switch c.Cache.Backend {
	case BackendDisk, BackendSQLite:
		if c.Cache.Folder == "" {
			return fmt.Errorf("cache folder is required for backend '%s'", c.Cache.Backend)
		}
	case BackendMemory:
	default:
		return fmt.Errorf("cache backend must be 'disk', 'memory' or 'sqlite', got: %s", c.Cache.Backend)
	}

	for _, entry := range c.Manifest {
		if !strings.HasPrefix(entry, "/") {
			return fmt.Errorf("manifest entries must be absolute paths, got: %s", entry)
		}
	}

	if c.Mock.Prefix == "" || !strings.HasPrefix(c.Mock.Prefix, "/") {
		return fmt.Errorf("mock prefix must start with '/', got: %s", c.Mock.Prefix)
	}
	if c.Mock.Match != MatchSubstring && c.Mock.Match != MatchSegment {
		return fmt.Errorf("mock match must be 'substring' or 'segment', got: %s", c.Mock.Match)
	}

	if _, err := c.GetNetworkTimeout(); err != nil {
		return fmt.Errorf("invalid network timeout format: %w", err)
	}

	if _, err := logrus.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("invalid log level: %w", err)
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		return fmt.Errorf("log format must be 'text' or 'json', got: %s", c.Log.Format)
	}

	return nil
}
