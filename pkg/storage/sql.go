package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"           // PostgreSQL driver
	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// Dialect selects driver name and placeholder style
type Dialect string

const (
	DialectSQLite   Dialect = "sqlite3"
	DialectPostgres Dialect = "postgres"
)

const createModulesTable = `CREATE TABLE IF NOT EXISTS node_modules_state (
	name TEXT PRIMARY KEY,
	position INTEGER NOT NULL,
	version TEXT NOT NULL,
	path TEXT NOT NULL,
	local BOOLEAN NOT NULL,
	user_installed BOOLEAN NOT NULL,
	units TEXT NOT NULL
)`

// SQLStore keeps the module list in a SQL table, one row per module
type SQLStore struct {
	db      *sql.DB
	dialect Dialect
}

// OpenSQLStore opens a database, checks the connection and creates the table
func OpenSQLStore(ctx context.Context, dialect Dialect, dsn string, timeout time.Duration) (*SQLStore, error) {
	if dsn == "" {
		return nil, fmt.Errorf("no connection string for %s store", dialect)
	}
	db, err := sql.Open(string(dialect), dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s, err := NewSQLStore(ctx, db, dialect)
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// NewSQLStore wraps an open database and creates the table if needed
func NewSQLStore(ctx context.Context, db *sql.DB, dialect Dialect) (*SQLStore, error) {
	if _, err := db.ExecContext(ctx, createModulesTable); err != nil {
		return nil, fmt.Errorf("failed to create modules table: %w", err)
	}
	return &SQLStore{db: db, dialect: dialect}, nil
}

// Load implements Store
func (s *SQLStore) Load(ctx context.Context) ([]ModuleRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT name, version, path, local, user_installed, units FROM node_modules_state ORDER BY position`)
	if err != nil {
		return nil, fmt.Errorf("failed to query modules: %w", err)
	}
	defer rows.Close()

	modules := []ModuleRecord{}
	for rows.Next() {
		var m ModuleRecord
		var units string
		if err := rows.Scan(&m.Name, &m.Version, &m.Path, &m.Local, &m.User, &units); err != nil {
			return nil, fmt.Errorf("failed to scan module: %w", err)
		}
		if err := json.Unmarshal([]byte(units), &m.Units); err != nil {
			return nil, fmt.Errorf("failed to unmarshal units of %s: %w", m.Name, err)
		}
		modules = append(modules, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read modules: %w", err)
	}
	return modules, nil
}

// Save implements Store. The table is replaced in one transaction.
func (s *SQLStore) Save(ctx context.Context, modules []ModuleRecord) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM node_modules_state`); err != nil {
		return fmt.Errorf("failed to clear modules: %w", err)
	}

	insert := s.rebind(`INSERT INTO node_modules_state
		(name, position, version, path, local, user_installed, units) VALUES (?, ?, ?, ?, ?, ?, ?)`)
	for i, m := range modules {
		units, err := json.Marshal(m.Units)
		if err != nil {
			return fmt.Errorf("failed to marshal units of %s: %w", m.Name, err)
		}
		if _, err := tx.ExecContext(ctx, insert, m.Name, i, m.Version, m.Path, m.Local, m.User, string(units)); err != nil {
			return fmt.Errorf("failed to insert module %s: %w", m.Name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}
	return nil
}

// Close implements Store
func (s *SQLStore) Close() error {
	return s.db.Close()
}

// rebind rewrites ? placeholders as $n for postgres
func (s *SQLStore) rebind(query string) string {
	if s.dialect != DialectPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			fmt.Fprintf(&b, "$%d", n)
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
