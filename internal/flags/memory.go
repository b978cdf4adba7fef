package flags

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore is the in-process Manager used when Redis is not configured.
// Flags do not survive a restart.
type MemoryStore struct {
	mu    sync.RWMutex
	flags map[string]Flag
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{flags: make(map[string]Flag)}
}

func (m *MemoryStore) IsEnabled(_ context.Context, key string, def bool) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	f, ok := m.flags[key]
	if !ok {
		return def
	}
	return f.Value
}

func (m *MemoryStore) Upsert(_ context.Context, key string, value bool) (*Flag, error) {
	if err := ValidateKey(key); err != nil {
		return nil, err
	}
	f := Flag{Key: key, Value: value, UpdatedAt: time.Now().UTC()}
	m.mu.Lock()
	m.flags[key] = f
	m.mu.Unlock()
	return &f, nil
}

func (m *MemoryStore) Get(_ context.Context, key string) (*Flag, error) {
	if err := ValidateKey(key); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	f, ok := m.flags[key]
	if !ok {
		return nil, ErrNotFound
	}
	return &f, nil
}

func (m *MemoryStore) List(_ context.Context) ([]*Flag, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Flag, 0, len(m.flags))
	for _, f := range m.flags {
		f := f
		out = append(out, &f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func (m *MemoryStore) Delete(_ context.Context, key string) error {
	if err := ValidateKey(key); err != nil {
		return err
	}
	m.mu.Lock()
	delete(m.flags, key)
	m.mu.Unlock()
	return nil
}
