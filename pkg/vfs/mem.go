package vfs

import (
	"bytes"
	"sync"
)

// MemSystem serves files from memory. It is safe for concurrent use.
type MemSystem struct {
	mu    sync.RWMutex
	files map[string][]byte
}

// NewMemSystem returns an empty in-memory system.
func NewMemSystem() *MemSystem {
	return &MemSystem{files: make(map[string][]byte)}
}

// Add stores data under name. The slice is not copied.
func (m *MemSystem) Add(name string, data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files[name] = data
}

// Open implements System.
func (m *MemSystem) Open(name string) (File, error) {
	m.mu.RLock()
	data, ok := m.files[name]
	m.mu.RUnlock()
	if !ok {
		return nil, &IOError{Op: "open", Name: name, Err: ErrNotFound}
	}
	return &memFile{Reader: bytes.NewReader(data)}, nil
}

// Exists implements System.
func (m *MemSystem) Exists(name string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.files[name]
	return ok
}

type memFile struct {
	*bytes.Reader
}

func (f *memFile) Close() error { return nil }
