// Copyright 2025 The Tychonet Authors
//
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file or at
// https://opensource.org/licenses/MIT.

package storage

import (
	"sync"

	"github.com/tychonet/lite-client/errors"
)

// MemoryStorage is a map-backed ProofStorage used in tests and dry runs.
// Safe for concurrent use.
type MemoryStorage struct {
	mu   sync.RWMutex
	bins map[string][]byte
	strs map[string]string

	// FailWith, when set, makes every Get and Put call fail with a StorageIO
	// error; Delete and Keys are unaffected.
	// Tests use it to exercise backend failure paths.
	FailWith error
}

// NewMemoryStorage creates an empty in-memory store.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		bins: make(map[string][]byte),
		strs: make(map[string]string),
	}
}

// GetBin implements ProofStorage.GetBin.
func (m *MemoryStorage) GetBin(key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.FailWith != nil {
		return nil, errors.Wrap(m.FailWith, errors.ErrorCodeStorageIO, "get failed")
	}
	v, ok := m.bins[key]
	if !ok {
		return nil, nil
	}
	cp := make([]byte, len(v))
	copy(cp, v)
	return cp, nil
}

// PutBin implements ProofStorage.PutBin.
func (m *MemoryStorage) PutBin(key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailWith != nil {
		return errors.Wrap(m.FailWith, errors.ErrorCodeStorageIO, "put failed")
	}
	cp := make([]byte, len(value))
	copy(cp, value)
	m.bins[key] = cp
	return nil
}

// GetStr implements ProofStorage.GetStr.
func (m *MemoryStorage) GetStr(key string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.FailWith != nil {
		return "", false, errors.Wrap(m.FailWith, errors.ErrorCodeStorageIO, "get failed")
	}
	v, ok := m.strs[key]
	return v, ok, nil
}

// PutStr implements ProofStorage.PutStr.
func (m *MemoryStorage) PutStr(key string, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailWith != nil {
		return errors.Wrap(m.FailWith, errors.ErrorCodeStorageIO, "put failed")
	}
	m.strs[key] = value
	return nil
}

// Delete removes a key from both value kinds. Tests use it to simulate
// partial storage loss.
func (m *MemoryStorage) Delete(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.bins, key)
	delete(m.strs, key)
}

// Keys returns every key currently stored, across both value kinds.
func (m *MemoryStorage) Keys() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	keys := make([]string, 0, len(m.bins)+len(m.strs))
	for k := range m.bins {
		keys = append(keys, k)
	}
	for k := range m.strs {
		keys = append(keys, k)
	}
	return keys
}
