package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// FileName is the file the module list is written to
const FileName = ".config.nodes.json"

// FileStore keeps the module list as a JSON file
type FileStore struct {
	path string
}

// NewFileStore creates a store writing into rootDir
func NewFileStore(rootDir string) (*FileStore, error) {
	if err := os.MkdirAll(rootDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create root directory: %w", err)
	}
	return &FileStore{path: filepath.Join(rootDir, FileName)}, nil
}

// Path returns the file the store writes
func (s *FileStore) Path() string {
	return s.path
}

// Load implements Store
func (s *FileStore) Load(ctx context.Context) ([]ModuleRecord, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return []ModuleRecord{}, nil
		}
		return nil, fmt.Errorf("failed to read module list: %w", err)
	}

	var modules []ModuleRecord
	if err := json.Unmarshal(data, &modules); err != nil {
		return nil, fmt.Errorf("failed to unmarshal module list: %w", err)
	}
	return modules, nil
}

// Save implements Store. The file is replaced atomically.
func (s *FileStore) Save(ctx context.Context, modules []ModuleRecord) error {
	data, err := json.MarshalIndent(modules, "", "    ")
	if err != nil {
		return fmt.Errorf("failed to marshal module list: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), FileName+".*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write module list: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write module list: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("failed to replace module list: %w", err)
	}
	return nil
}

// Close implements Store
func (s *FileStore) Close() error {
	return nil
}
