package overlay

import (
	"sort"
	"sync"
)

// Store holds pending edits keyed by original archive path. A path present in
// the store shadows the same path of the original archive.
type Store interface {
	// Write inserts or replaces the content for path.
	Write(path string, c Content) error
	Read(path string) (Content, bool)
	Has(path string) bool
	// Paths returns every path in the store, sorted.
	Paths() []string
}

// Memory is the in-process Store. Its Write never fails.
type Memory struct {
	mu      sync.RWMutex
	entries map[string]Content
}

func NewMemory() *Memory {
	return &Memory{entries: make(map[string]Content)}
}

func (m *Memory) Write(path string, c Content) error {
	m.mu.Lock()
	m.entries[path] = c
	m.mu.Unlock()
	return nil
}

func (m *Memory) Read(path string) (Content, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.entries[path]
	return c, ok
}

func (m *Memory) Has(path string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.entries[path]
	return ok
}

func (m *Memory) Paths() []string {
	m.mu.RLock()
	paths := make([]string, 0, len(m.entries))
	for p := range m.entries {
		paths = append(paths, p)
	}
	m.mu.RUnlock()

	sort.Strings(paths)
	return paths
}

func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}
