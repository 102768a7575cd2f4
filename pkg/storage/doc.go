// Package storage persists the registry's module list between runs.
//
// The registry writes the committed module list after every membership or
// enable change and reads it back at boot to restore which units were
// disabled. Records hold names, versions, paths and per-unit enable state,
// never loaded implementations.
//
// # Backends
//
// FileStore writes .config.nodes.json into a directory, replacing it
// atomically:
//
//	store, err := storage.NewFileStore("/home/user/.node-red")
//
// SQLStore keeps one row per module in SQLite or PostgreSQL and replaces the
// table in a single transaction:
//
//	store, err := storage.OpenSQLStore(ctx, storage.DialectPostgres, url, 10*time.Second)
//
// RedisStore and S3Store keep the list as one JSON value under a key or
// object key. MemoryStore is for tests and embedding.
//
// New selects a backend from Config.Type.
package storage
