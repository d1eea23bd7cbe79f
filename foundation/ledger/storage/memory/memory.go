// Package memory implements the storage.KV interface in memory for tests
// and ephemeral nodes.
package memory

import (
	"sync"

	"github.com/haventek/ledger/foundation/ledger/storage"
)

// Memory represents an in-memory key/value store. This implements the
// storage.KV interface.
type Memory struct {
	mu sync.RWMutex
	m  map[string][]byte
}

// New constructs an empty in-memory store.
func New() *Memory {
	return &Memory{
		m: make(map[string][]byte),
	}
}

// Close in this implementation has nothing to do.
func (mem *Memory) Close() error {
	return nil
}

// Get returns the value stored under the key.
func (mem *Memory) Get(key []byte) ([]byte, error) {
	mem.mu.RLock()
	defer mem.mu.RUnlock()

	value, exists := mem.m[string(key)]
	if !exists {
		return nil, storage.ErrNotFound
	}

	return append([]byte(nil), value...), nil
}

// Put stores the value under the key.
func (mem *Memory) Put(key []byte, value []byte) error {
	mem.mu.Lock()
	defer mem.mu.Unlock()

	mem.m[string(key)] = append([]byte(nil), value...)

	return nil
}

// Has reports whether the key exists.
func (mem *Memory) Has(key []byte) (bool, error) {
	mem.mu.RLock()
	defer mem.mu.RUnlock()

	_, exists := mem.m[string(key)]

	return exists, nil
}

// Delete removes the key from the store.
func (mem *Memory) Delete(key []byte) error {
	mem.mu.Lock()
	defer mem.mu.Unlock()

	delete(mem.m, string(key))

	return nil
}
