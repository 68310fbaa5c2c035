// Package memkv provides an in-memory statestore backend with the same
// revision-checked semantics as the JetStream KV backend. It backs unit
// tests and local development without a NATS server.
package memkv

import (
	"context"
	"errors"
	"sync"

	"github.com/c360/guildflow/statestore"
)

// Sentinel errors mirroring the natskv backend's classification.
var (
	ErrKeyNotFound      = errors.New("memkv: key not found")
	ErrKeyExists        = errors.New("memkv: key already exists")
	ErrRevisionMismatch = errors.New("memkv: revision mismatch")
)

type entry struct {
	value    []byte
	revision uint64
}

// Backend is an in-memory implementation of statestore.Backend.
type Backend struct {
	mu       sync.Mutex
	families map[statestore.Family]map[string]*entry
	nextRev  uint64
}

var _ statestore.Backend = (*Backend)(nil)

// New creates an empty in-memory backend.
func New() *Backend {
	return &Backend{
		families: make(map[statestore.Family]map[string]*entry),
	}
}

func (b *Backend) family(f statestore.Family) map[string]*entry {
	m, ok := b.families[f]
	if !ok {
		m = make(map[string]*entry)
		b.families[f] = m
	}
	return m
}

// Get returns the value and revision for a key.
func (b *Backend) Get(_ context.Context, family statestore.Family, key string) ([]byte, uint64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	e, ok := b.family(family)[key]
	if !ok {
		return nil, 0, ErrKeyNotFound
	}
	value := make([]byte, len(e.value))
	copy(value, e.value)
	return value, e.revision, nil
}

// Put stores a value unconditionally.
func (b *Backend) Put(_ context.Context, family statestore.Family, key string, value []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextRev++
	b.family(family)[key] = &entry{value: cloned(value), revision: b.nextRev}
	return nil
}

// Create stores a value only if the key is absent.
func (b *Backend) Create(_ context.Context, family statestore.Family, key string, value []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	m := b.family(family)
	if _, ok := m[key]; ok {
		return ErrKeyExists
	}
	b.nextRev++
	m[key] = &entry{value: cloned(value), revision: b.nextRev}
	return nil
}

// Update stores a value only if the current revision matches.
func (b *Backend) Update(_ context.Context, family statestore.Family, key string, value []byte, revision uint64) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	m := b.family(family)
	e, ok := m[key]
	if !ok {
		return ErrKeyNotFound
	}
	if e.revision != revision {
		return ErrRevisionMismatch
	}
	b.nextRev++
	m[key] = &entry{value: cloned(value), revision: b.nextRev}
	return nil
}

// Delete removes a key.
func (b *Backend) Delete(_ context.Context, family statestore.Family, key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	m := b.family(family)
	if _, ok := m[key]; !ok {
		return ErrKeyNotFound
	}
	delete(m, key)
	return nil
}

// Keys lists all keys in a family.
func (b *Backend) Keys(_ context.Context, family statestore.Family) ([]string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	m := b.family(family)
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	return keys, nil
}

// IsNotFound classifies key-absent errors.
func (b *Backend) IsNotFound(err error) bool {
	return errors.Is(err, ErrKeyNotFound)
}

// IsConflict classifies create/update conflicts.
func (b *Backend) IsConflict(err error) bool {
	return errors.Is(err, ErrKeyExists) || errors.Is(err, ErrRevisionMismatch)
}

func cloned(value []byte) []byte {
	out := make([]byte, len(value))
	copy(out, value)
	return out
}
