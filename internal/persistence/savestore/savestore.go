// Package savestore provides the durable key-value backends used to persist
// save slots: SQLite, zstd-compressed files and memory.
package savestore

import (
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"sync"
)

var ErrNotFound = errors.New("save slot not found")

// Backend is implemented by every store in this package.
type Backend interface {
	Read(slot string) ([]byte, error)
	Write(slot string, data []byte) error
	Slots() ([]string, error)
	Close() error
}

// Open returns the backend named kind rooted at dataDir.
func Open(kind, dataDir string) (Backend, error) {
	switch kind {
	case "sqlite", "":
		return OpenSQLite(filepath.Join(dataDir, "saves.sqlite"), DefaultHistory)
	case "file":
		return NewFile(filepath.Join(dataDir, "saves"))
	case "memory":
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown save backend %q", kind)
	}
}

// Memory keeps slots in process memory.
type Memory struct {
	mu    sync.Mutex
	slots map[string][]byte
}

func NewMemory() *Memory {
	return &Memory{slots: map[string][]byte{}}
}

func (m *Memory) Read(slot string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.slots[slot]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), b...), nil
}

func (m *Memory) Write(slot string, data []byte) error {
	if slot == "" {
		return errors.New("empty slot")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.slots[slot] = append([]byte(nil), data...)
	return nil
}

func (m *Memory) Slots() ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.slots))
	for k := range m.slots {
		out = append(out, k)
	}
	sort.Strings(out)
	return out, nil
}

func (m *Memory) Close() error { return nil }
