package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/platinummonkey/noderegistry/pkg/i18n"
	"github.com/platinummonkey/noderegistry/pkg/observability"
	"github.com/platinummonkey/noderegistry/pkg/scanner"
	"github.com/platinummonkey/noderegistry/pkg/storage"
)

const (
	// EnvPrefix is prepended to every environment variable, e.g. NODEREG_HOST_NAME
	EnvPrefix = "NODEREG"

	// DefaultHostName names the synthetic module holding core units
	DefaultHostName = "node-red"
)

// Config holds all application configuration
type Config struct {
	Host          HostConfig
	Paths         PathsConfig
	Filter        FilterConfig
	Editor        EditorConfig
	Loader        LoaderConfig
	Storage       storage.Config
	Server        ServerConfig
	Watch         WatchConfig
	Observability ObservabilityConfig
}

// HostConfig describes the host runtime the registry serves
type HostConfig struct {
	Name        string
	Version     string
	DefaultLang string
	InstallDir  string
}

// PathsConfig holds the scan roots
type PathsConfig struct {
	CoreDir   string
	UserDir   string
	NodesDirs []string
}

// FilterConfig holds the module allow/deny lists
type FilterConfig struct {
	Include []string
	Exclude []string
}

// EditorConfig controls editor metadata loading
type EditorConfig struct {
	Disabled bool
}

// LoaderConfig controls load passes
type LoaderConfig struct {
	Concurrency      int
	MaxAncestorDepth int
}

// ServerConfig holds admin HTTP server configuration
type ServerConfig struct {
	Addr            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// WatchConfig controls the module directory watcher
type WatchConfig struct {
	Enabled  bool
	Debounce time.Duration
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	LogLevel       string
	LogFormat      string
	MetricsEnabled bool
}

// New returns a viper instance with defaults and environment binding set up
func New() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads configuration from defaults, an optional YAML file and NODEREG_*
// environment variables, in increasing precedence. An empty path skips the
// file; a path that does not exist is an error.
func Load(path string) (*Config, error) {
	v := New()
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
	}
	return FromViper(v)
}

// FromViper builds and validates a Config from a viper instance
func FromViper(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		Host: HostConfig{
			Name:        v.GetString("host.name"),
			Version:     v.GetString("host.version"),
			DefaultLang: v.GetString("host.default_lang"),
			InstallDir:  v.GetString("host.install_dir"),
		},
		Paths: PathsConfig{
			CoreDir:   v.GetString("paths.core_dir"),
			UserDir:   v.GetString("paths.user_dir"),
			NodesDirs: v.GetStringSlice("paths.nodes_dirs"),
		},
		Filter: FilterConfig{
			Include: v.GetStringSlice("filter.include"),
			Exclude: v.GetStringSlice("filter.exclude"),
		},
		Editor: EditorConfig{
			Disabled: v.GetBool("editor.disabled"),
		},
		Loader: LoaderConfig{
			Concurrency:      v.GetInt("loader.concurrency"),
			MaxAncestorDepth: v.GetInt("loader.max_ancestor_depth"),
		},
		Storage: loadStorageConfig(v),
		Server: ServerConfig{
			Addr:            v.GetString("server.addr"),
			ReadTimeout:     v.GetDuration("server.read_timeout"),
			WriteTimeout:    v.GetDuration("server.write_timeout"),
			ShutdownTimeout: v.GetDuration("server.shutdown_timeout"),
		},
		Watch: WatchConfig{
			Enabled:  v.GetBool("watch.enabled"),
			Debounce: v.GetDuration("watch.debounce"),
		},
		Observability: ObservabilityConfig{
			LogLevel:       v.GetString("observability.log_level"),
			LogFormat:      v.GetString("observability.log_format"),
			MetricsEnabled: v.GetBool("observability.metrics_enabled"),
		},
	}

	if cfg.Host.InstallDir == "" {
		if wd, err := os.Getwd(); err == nil {
			cfg.Host.InstallDir = wd
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	st := storage.DefaultConfig()

	v.SetDefault("host.name", DefaultHostName)
	v.SetDefault("host.version", "4.0.0")
	v.SetDefault("host.default_lang", i18n.DefaultLanguage)
	v.SetDefault("host.install_dir", "")

	v.SetDefault("paths.core_dir", "nodes/core")
	v.SetDefault("paths.user_dir", ".")
	v.SetDefault("paths.nodes_dirs", []string{})

	v.SetDefault("filter.include", []string{})
	v.SetDefault("filter.exclude", []string{})

	v.SetDefault("editor.disabled", false)

	v.SetDefault("loader.concurrency", 1)
	v.SetDefault("loader.max_ancestor_depth", scanner.DefaultMaxAncestorDepth)

	v.SetDefault("storage.type", st.Type)
	v.SetDefault("storage.filesystem_root", st.FilesystemRoot)
	v.SetDefault("storage.sqlite_dsn", st.SQLiteDSN)
	v.SetDefault("storage.postgres_url", "")
	v.SetDefault("storage.postgres_timeout", st.PostgresTimeout)
	v.SetDefault("storage.redis_url", "")
	v.SetDefault("storage.redis_password", "")
	v.SetDefault("storage.redis_db", 0)
	v.SetDefault("storage.redis_max_retries", st.RedisMaxRetries)
	v.SetDefault("storage.redis_key", st.RedisKey)
	v.SetDefault("storage.s3_endpoint", "")
	v.SetDefault("storage.s3_region", st.S3Region)
	v.SetDefault("storage.s3_bucket", "")
	v.SetDefault("storage.s3_key", st.S3Key)
	v.SetDefault("storage.s3_access_key", "")
	v.SetDefault("storage.s3_secret_key", "")
	v.SetDefault("storage.s3_use_path_style", false)

	v.SetDefault("server.addr", ":1880")
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)
	v.SetDefault("server.shutdown_timeout", 30*time.Second)

	v.SetDefault("watch.enabled", false)
	v.SetDefault("watch.debounce", 500*time.Millisecond)

	v.SetDefault("observability.log_level", "info")
	v.SetDefault("observability.log_format", observability.FormatText)
	v.SetDefault("observability.metrics_enabled", true)
}

func loadStorageConfig(v *viper.Viper) storage.Config {
	return storage.Config{
		Type:            v.GetString("storage.type"),
		FilesystemRoot:  v.GetString("storage.filesystem_root"),
		SQLiteDSN:       v.GetString("storage.sqlite_dsn"),
		PostgresURL:     v.GetString("storage.postgres_url"),
		PostgresTimeout: v.GetDuration("storage.postgres_timeout"),
		RedisURL:        v.GetString("storage.redis_url"),
		RedisPassword:   v.GetString("storage.redis_password"),
		RedisDB:         v.GetInt("storage.redis_db"),
		RedisMaxRetries: v.GetInt("storage.redis_max_retries"),
		RedisKey:        v.GetString("storage.redis_key"),
		S3Endpoint:      v.GetString("storage.s3_endpoint"),
		S3Region:        v.GetString("storage.s3_region"),
		S3Bucket:        v.GetString("storage.s3_bucket"),
		S3Key:           v.GetString("storage.s3_key"),
		S3AccessKey:     v.GetString("storage.s3_access_key"),
		S3SecretKey:     v.GetString("storage.s3_secret_key"),
		S3UsePathStyle:  v.GetBool("storage.s3_use_path_style"),
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Host.Name == "" {
		return errors.New("host name is required")
	}
	if c.Host.Version == "" {
		return errors.New("host version is required")
	}
	if c.Loader.Concurrency < 1 {
		return fmt.Errorf("loader concurrency must be at least 1, got %d", c.Loader.Concurrency)
	}
	if c.Loader.MaxAncestorDepth < 0 {
		return fmt.Errorf("max ancestor depth must not be negative, got %d", c.Loader.MaxAncestorDepth)
	}

	switch c.Storage.Type {
	case storage.TypeMemory:
	case storage.TypeFilesystem:
		if c.Storage.FilesystemRoot == "" {
			return errors.New("filesystem root is required for filesystem storage")
		}
	case storage.TypeSQLite:
		if c.Storage.SQLiteDSN == "" {
			return errors.New("sqlite DSN is required for sqlite storage")
		}
	case storage.TypePostgres:
		if c.Storage.PostgresURL == "" {
			return errors.New("postgres URL is required for postgres storage")
		}
	case storage.TypeRedis:
		if c.Storage.RedisURL == "" {
			return errors.New("redis URL is required for redis storage")
		}
	case storage.TypeS3:
		if c.Storage.S3Bucket == "" {
			return errors.New("S3 bucket is required for s3 storage")
		}
	default:
		return fmt.Errorf("invalid storage type: %s (must be memory, filesystem, sqlite, postgres, redis, or s3)", c.Storage.Type)
	}

	if _, err := observability.ParseLevel(c.Observability.LogLevel); err != nil {
		return err
	}
	switch c.Observability.LogFormat {
	case observability.FormatText, observability.FormatJSON:
	default:
		return fmt.Errorf("invalid log format: %s (must be text or json)", c.Observability.LogFormat)
	}

	return nil
}
