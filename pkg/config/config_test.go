package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/noderegistry/pkg/storage"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, DefaultHostName, cfg.Host.Name)
	assert.Equal(t, "en-US", cfg.Host.DefaultLang)
	assert.NotEmpty(t, cfg.Host.InstallDir)
	assert.Equal(t, 1, cfg.Loader.Concurrency)
	assert.Equal(t, 32, cfg.Loader.MaxAncestorDepth)
	assert.Equal(t, storage.TypeFilesystem, cfg.Storage.Type)
	assert.Equal(t, storage.DefaultRedisKey, cfg.Storage.RedisKey)
	assert.Equal(t, ":1880", cfg.Server.Addr)
	assert.Equal(t, 500*time.Millisecond, cfg.Watch.Debounce)
	assert.True(t, cfg.Observability.MetricsEnabled)
}

func TestLoad_Environment(t *testing.T) {
	t.Setenv("NODEREG_HOST_VERSION", "3.1.0")
	t.Setenv("NODEREG_LOADER_CONCURRENCY", "4")
	t.Setenv("NODEREG_STORAGE_TYPE", "redis")
	t.Setenv("NODEREG_STORAGE_REDIS_URL", "redis://localhost:6379/2")
	t.Setenv("NODEREG_WATCH_ENABLED", "true")
	t.Setenv("NODEREG_FILTER_EXCLUDE", "node-red-contrib-a node-red-contrib-b")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "3.1.0", cfg.Host.Version)
	assert.Equal(t, 4, cfg.Loader.Concurrency)
	assert.Equal(t, storage.TypeRedis, cfg.Storage.Type)
	assert.Equal(t, "redis://localhost:6379/2", cfg.Storage.RedisURL)
	assert.True(t, cfg.Watch.Enabled)
	assert.Equal(t, []string{"node-red-contrib-a", "node-red-contrib-b"}, cfg.Filter.Exclude)
}

func TestLoad_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "noderegistry.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
host:
  name: my-host
  default_lang: de
paths:
  user_dir: /data
  nodes_dirs: [/opt/a, /opt/b]
filter:
  include: ["node-red-contrib-*"]
editor:
  disabled: true
storage:
  type: sqlite
  sqlite_dsn: "file:/data/nodes.db"
`), 0644))

	t.Setenv("NODEREG_HOST_NAME", "env-host")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "env-host", cfg.Host.Name, "environment overrides file")
	assert.Equal(t, "de", cfg.Host.DefaultLang)
	assert.Equal(t, "/data", cfg.Paths.UserDir)
	assert.Equal(t, []string{"/opt/a", "/opt/b"}, cfg.Paths.NodesDirs)
	assert.Equal(t, []string{"node-red-contrib-*"}, cfg.Filter.Include)
	assert.True(t, cfg.Editor.Disabled)
	assert.Equal(t, storage.TypeSQLite, cfg.Storage.Type)
	assert.Equal(t, "file:/data/nodes.db", cfg.Storage.SQLiteDSN)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func validConfig() Config {
	return Config{
		Host:          HostConfig{Name: "node-red", Version: "4.0.0"},
		Loader:        LoaderConfig{Concurrency: 1},
		Storage:       storage.Config{Type: storage.TypeMemory},
		Observability: ObservabilityConfig{LogLevel: "info", LogFormat: "text"},
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{name: "valid", mutate: func(c *Config) {}},
		{name: "no host name", mutate: func(c *Config) { c.Host.Name = "" }, wantErr: "host name is required"},
		{name: "no host version", mutate: func(c *Config) { c.Host.Version = "" }, wantErr: "host version is required"},
		{name: "zero concurrency", mutate: func(c *Config) { c.Loader.Concurrency = 0 }, wantErr: "loader concurrency"},
		{name: "negative depth", mutate: func(c *Config) { c.Loader.MaxAncestorDepth = -1 }, wantErr: "max ancestor depth"},
		{name: "filesystem without root", mutate: func(c *Config) { c.Storage.Type = storage.TypeFilesystem }, wantErr: "filesystem root"},
		{name: "sqlite without dsn", mutate: func(c *Config) { c.Storage.Type = storage.TypeSQLite }, wantErr: "sqlite DSN"},
		{name: "postgres without url", mutate: func(c *Config) { c.Storage.Type = storage.TypePostgres }, wantErr: "postgres URL"},
		{name: "redis without url", mutate: func(c *Config) { c.Storage.Type = storage.TypeRedis }, wantErr: "redis URL"},
		{name: "s3 without bucket", mutate: func(c *Config) { c.Storage.Type = storage.TypeS3 }, wantErr: "S3 bucket"},
		{name: "unknown storage", mutate: func(c *Config) { c.Storage.Type = "hybrid" }, wantErr: "invalid storage type"},
		{name: "bad log level", mutate: func(c *Config) { c.Observability.LogLevel = "loud" }, wantErr: "invalid log level"},
		{name: "bad log format", mutate: func(c *Config) { c.Observability.LogFormat = "xml" }, wantErr: "invalid log format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
