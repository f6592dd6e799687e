package keystore

import (
	"context"
	"sync"
	"sync/atomic"
)

// Memory is an in-process Store. It stands in for platform storage in tests
// and in hosts that provide their own persistence around lockr.
type Memory struct {
	mu    sync.RWMutex
	items map[string]string

	// Gate, when set, is consulted for every authentication-required read.
	// Returning false yields ErrAuthenticationRequired.
	Gate func(ctx context.Context) bool

	prompts atomic.Int64
	writes  atomic.Int64
}

// NewMemory returns an empty Memory store.
func NewMemory() *Memory {
	return &Memory{items: make(map[string]string)}
}

// Get returns the item or ErrNotFound.
func (m *Memory) Get(ctx context.Context, key string, opts Options) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	m.mu.RLock()
	v, ok := m.items[ItemName(key, opts)]
	m.mu.RUnlock()
	if !ok {
		return "", ErrNotFound
	}

	if opts.RequireAuthentication {
		m.prompts.Add(1)
		if m.Gate != nil && !m.Gate(ctx) {
			return "", ErrAuthenticationRequired
		}
	}
	return v, nil
}

// Set upserts an item. Writes never require authentication.
func (m *Memory) Set(ctx context.Context, key, value string, opts Options) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	m.items[ItemName(key, opts)] = value
	m.mu.Unlock()
	m.writes.Add(1)
	return nil
}

// Delete removes an item. Deleting a missing item is not an error.
func (m *Memory) Delete(ctx context.Context, key string, opts Options) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	delete(m.items, ItemName(key, opts))
	m.mu.Unlock()
	return nil
}

// Prompts reports how many authentication-required reads reached the gate.
func (m *Memory) Prompts() int64 {
	return m.prompts.Load()
}

// Writes reports how many Set calls succeeded.
func (m *Memory) Writes() int64 {
	return m.writes.Load()
}

// Has reports presence without counting as a read.
func (m *Memory) Has(key string, opts Options) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.items[ItemName(key, opts)]
	return ok
}
