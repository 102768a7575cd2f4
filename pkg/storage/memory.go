package storage

import (
	"context"
	"sync"
)

// MemoryStore keeps the module list in process memory
type MemoryStore struct {
	mu      sync.Mutex
	modules []ModuleRecord
	saves   int
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Load implements Store
func (s *MemoryStore) Load(ctx context.Context) ([]ModuleRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneRecords(s.modules), nil
}

// Save implements Store
func (s *MemoryStore) Save(ctx context.Context, modules []ModuleRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.modules = cloneRecords(modules)
	s.saves++
	return nil
}

// Saves returns how many times Save has been called
func (s *MemoryStore) Saves() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saves
}

// Close implements Store
func (s *MemoryStore) Close() error {
	return nil
}

func cloneRecords(in []ModuleRecord) []ModuleRecord {
	out := make([]ModuleRecord, len(in))
	for i, m := range in {
		out[i] = m
		out[i].Units = make([]UnitRecord, len(m.Units))
		for j, u := range m.Units {
			out[i].Units[j] = u
			out[i].Units[j].Types = append([]string{}, u.Types...)
		}
	}
	return out
}
