package session

import (
	"context"
	"sync"
	"time"
)

// MemoryRevocationRegistry is an in-process RevocationRegistry used when no
// Redis is configured (dev mode) and by tests. Entries expire lazily on read.
type MemoryRevocationRegistry struct {
	mu      sync.Mutex
	entries map[string]time.Time // key -> expiry
	now     func() time.Time
}

// NewMemoryRevocationRegistry constructs an empty registry.
func NewMemoryRevocationRegistry() *MemoryRevocationRegistry {
	return &MemoryRevocationRegistry{
		entries: make(map[string]time.Time),
		now:     time.Now,
	}
}

func (m *MemoryRevocationRegistry) Revoke(ctx context.Context, key string, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if key == "" || ttl <= 0 {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = m.now().Add(ttl)
	return nil
}

func (m *MemoryRevocationRegistry) IsRevoked(ctx context.Context, key string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	exp, ok := m.entries[key]
	if !ok {
		return false, nil
	}
	if !exp.After(m.now()) {
		delete(m.entries, key)
		return false, nil
	}
	return true, nil
}
