package storage

import (
	"context"
	"fmt"
	"time"
)

// UnitRecord is the persisted state of one unit
type UnitRecord struct {
	Name    string   `json:"name"`
	Enabled bool     `json:"enabled"`
	Types   []string `json:"types"`
}

// ModuleRecord is the persisted state of one module. It carries no loaded
// handles, only what is needed to restore enable state on the next boot.
type ModuleRecord struct {
	Name    string       `json:"name"`
	Version string       `json:"version"`
	Path    string       `json:"path,omitempty"`
	Local   bool         `json:"local"`
	User    bool         `json:"user"`
	Units   []UnitRecord `json:"units"`
}

// Unit returns the record of a named unit
func (m ModuleRecord) Unit(name string) (UnitRecord, bool) {
	for _, u := range m.Units {
		if u.Name == name {
			return u, true
		}
	}
	return UnitRecord{}, false
}

// Store persists the registry's module list. Save replaces the whole list.
// Load returns an empty list when nothing has been saved yet.
type Store interface {
	Load(ctx context.Context) ([]ModuleRecord, error)
	Save(ctx context.Context, modules []ModuleRecord) error
	Close() error
}

// Backend types
const (
	TypeMemory     = "memory"
	TypeFilesystem = "filesystem"
	TypeSQLite     = "sqlite"
	TypePostgres   = "postgres"
	TypeRedis      = "redis"
	TypeS3         = "s3"
)

// Config for storage backend
type Config struct {
	Type string

	// Filesystem config
	FilesystemRoot string

	// SQL config
	SQLiteDSN       string
	PostgresURL     string
	PostgresTimeout time.Duration

	// Redis config
	RedisURL        string
	RedisPassword   string
	RedisDB         int
	RedisMaxRetries int
	RedisKey        string

	// S3 config
	S3Endpoint     string
	S3Region       string
	S3Bucket       string
	S3Key          string
	S3AccessKey    string
	S3SecretKey    string
	S3UsePathStyle bool
}

// DefaultConfig returns sensible default configuration
func DefaultConfig() Config {
	return Config{
		Type:            TypeFilesystem,
		FilesystemRoot:  ".",
		SQLiteDSN:       "file:noderegistry.db",
		PostgresTimeout: 10 * time.Second,
		RedisMaxRetries: 3,
		RedisKey:        DefaultRedisKey,
		S3Region:        "us-east-1",
		S3Key:           DefaultObjectKey,
	}
}

// New opens the backend selected by cfg.Type
func New(ctx context.Context, cfg Config) (Store, error) {
	switch cfg.Type {
	case TypeMemory:
		return NewMemoryStore(), nil
	case TypeFilesystem, "":
		return NewFileStore(cfg.FilesystemRoot)
	case TypeSQLite:
		return OpenSQLStore(ctx, DialectSQLite, cfg.SQLiteDSN, cfg.PostgresTimeout)
	case TypePostgres:
		return OpenSQLStore(ctx, DialectPostgres, cfg.PostgresURL, cfg.PostgresTimeout)
	case TypeRedis:
		return OpenRedisStore(ctx, cfg)
	case TypeS3:
		return OpenS3Store(ctx, cfg)
	default:
		return nil, fmt.Errorf("unknown storage type %q", cfg.Type)
	}
}
