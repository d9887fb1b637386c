package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	configFile := filepath.Join(t.TempDir(), "test_config.yaml")
	require.NoError(t, os.WriteFile(configFile, []byte(content), 0644))
	return configFile
}

func TestLoad(t *testing.T) {
	configFile := writeConfig(t, `
server:
  port: 9999
origin: "https://app.example.com"
cache:
  name: "shadow-gate-v10"
  backend: "sqlite"
  folder: "./test_cache"
manifest:
  - "/"
  - "/index.html"
mock:
  match: "segment"
`)

	config, err := Load(configFile)
	require.NoError(t, err)

	assert.Equal(t, 9999, config.Server.Port)
	assert.Equal(t, "https://app.example.com", config.Origin)
	assert.Equal(t, "shadow-gate-v10", config.Cache.Name)
	assert.Equal(t, BackendSQLite, config.Cache.Backend)
	assert.Equal(t, []string{"/", "/index.html"}, config.Manifest)
	assert.Equal(t, MatchSegment, config.Mock.Match)

	// Keys absent from the file keep their defaults
	assert.Equal(t, "/animes", config.Mock.Prefix)
	assert.Equal(t, "30s", config.Network.Timeout)
	assert.Equal(t, "info", config.Log.Level)
}

func TestLoadDefaults(t *testing.T) {
	configFile := writeConfig(t, "server:\n  port: 8081\n")

	config, err := Load(configFile)
	require.NoError(t, err)

	assert.Equal(t, DefaultManifest, config.Manifest)
	assert.Len(t, config.Manifest, 8)
	assert.Equal(t, "shadow-gate-v9", config.Cache.Name)
	assert.Equal(t, BackendDisk, config.Cache.Backend)
	assert.NoError(t, config.Validate())
}

func TestLoadRoundTrip(t *testing.T) {
	want := Default()
	want.Server.Port = 7070
	want.Cache.Backend = BackendMemory
	want.Log.Format = "json"

	data, err := yaml.Marshal(want)
	require.NoError(t, err)

	got, err := Load(writeConfig(t, string(data)))
	require.NoError(t, err)
	assert.Equal(t, want, *got)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{
			name:    "valid config",
			mutate:  func(c *Config) {},
			wantErr: false,
		},
		{
			name:    "invalid port",
			mutate:  func(c *Config) { c.Server.Port = -1 },
			wantErr: true,
		},
		{
			name:    "relative origin",
			mutate:  func(c *Config) { c.Origin = "/app" },
			wantErr: true,
		},
		{
			name:    "empty cache name",
			mutate:  func(c *Config) { c.Cache.Name = "" },
			wantErr: true,
		},
		{
			name:    "cache name with separator",
			mutate:  func(c *Config) { c.Cache.Name = "../v1" },
			wantErr: true,
		},
		{
			name:    "invalid backend",
			mutate:  func(c *Config) { c.Cache.Backend = "redis" },
			wantErr: true,
		},
		{
			name:    "disk backend without folder",
			mutate:  func(c *Config) { c.Cache.Folder = "" },
			wantErr: true,
		},
		{
			name: "memory backend without folder",
			mutate: func(c *Config) {
				c.Cache.Backend = BackendMemory
				c.Cache.Folder = ""
			},
			wantErr: false,
		},
		{
			name:    "relative manifest entry",
			mutate:  func(c *Config) { c.Manifest = []string{"index.html"} },
			wantErr: true,
		},
		{
			name:    "invalid mock match",
			mutate:  func(c *Config) { c.Mock.Match = "regex" },
			wantErr: true,
		},
		{
			name:    "invalid timeout",
			mutate:  func(c *Config) { c.Network.Timeout = "invalid" },
			wantErr: true,
		},
		{
			name:    "invalid log level",
			mutate:  func(c *Config) { c.Log.Level = "loud" },
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := Default()
			tt.mutate(&config)
			err := config.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestGetNetworkTimeout(t *testing.T) {
	config := Config{
		Network: NetworkConfig{Timeout: "1m30s"},
	}

	timeout, err := config.GetNetworkTimeout()
	require.NoError(t, err)
	assert.Equal(t, time.Minute+30*time.Second, timeout)
}
