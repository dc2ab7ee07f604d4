// Package memory keeps artifacts in memory for dry runs and tests.
package memory

import (
	"context"
	"path/filepath"
	"sort"
	"sync"
)

// Store holds artifacts keyed by slash-separated path.
type Store struct {
	mu   sync.RWMutex
	data map[string][]byte
	dirs map[string]struct{}
}

// New creates an empty in-memory store.
func New() *Store {
	return &Store{
		data: make(map[string][]byte),
		dirs: make(map[string]struct{}),
	}
}

// EnsureDir records dir as created.
func (s *Store) EnsureDir(_ context.Context, dir string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dirs[key(dir)] = struct{}{}
	return nil
}

// WriteFile stores a copy of data, replacing any previous content.
func (s *Store) WriteFile(_ context.Context, path string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key(path)] = append([]byte(nil), data...)
	return nil
}

// Get returns the content stored at path.
func (s *Store) Get(path string) ([]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.data[key(path)]
	return data, ok
}

// Paths lists stored artifact paths in lexical order.
func (s *Store) Paths() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.data))
	for p := range s.data {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// HasDir reports whether EnsureDir was called for dir.
func (s *Store) HasDir(dir string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.dirs[key(dir)]
	return ok
}

func key(path string) string {
	return filepath.ToSlash(filepath.Clean(path))
}
