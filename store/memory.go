package store

import (
	"context"
	"io/fs"
	"sync"

	"github.com/fheroes2/webstage/vfs"
)

// Memory keeps entries in a map. Nothing survives the process; it backs
// tests and the ephemeral "memory" backend type.
type Memory struct {
	mu      sync.RWMutex
	entries map[string]vfs.Entry
}

// NewMemory returns an empty Memory backend.
func NewMemory() *Memory {
	return &Memory{entries: make(map[string]vfs.Entry)}
}

func (m *Memory) List(_ context.Context) (map[string]vfs.EntryMeta, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]vfs.EntryMeta, len(m.entries))
	for p, e := range m.entries {
		out[p] = e.EntryMeta
	}
	return out, nil
}

func (m *Memory) Load(_ context.Context, p string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.entries[key(p)]
	if !ok || e.IsDir() {
		return nil, &fs.PathError{Op: "load", Path: p, Err: fs.ErrNotExist}
	}
	return append([]byte(nil), e.Content...), nil
}

func (m *Memory) Put(_ context.Context, e vfs.Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e.Path = key(e.Path)
	e.Content = append([]byte(nil), e.Content...)
	m.entries[e.Path] = e
	return nil
}

func (m *Memory) Delete(_ context.Context, p string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, key(p))
	return nil
}

// Len reports the number of stored entries.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}
