package memory

import (
	"context"
	"sync"
)

type Backend struct {
	mu     sync.RWMutex
	values map[string][]byte
}

func New() *Backend {
	return &Backend{values: make(map[string][]byte)}
}

func (b *Backend) Get(ctx context.Context, key string) ([]byte, bool, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	value, ok := b.values[key]
	if !ok {
		return nil, false, nil
	}
	out := make([]byte, len(value))
	copy(out, value)
	return out, true, nil
}

func (b *Backend) Set(ctx context.Context, key string, value []byte) error {
	stored := make([]byte, len(value))
	copy(stored, value)
	b.mu.Lock()
	b.values[key] = stored
	b.mu.Unlock()
	return nil
}

func (b *Backend) Delete(ctx context.Context, key string) error {
	b.mu.Lock()
	delete(b.values, key)
	b.mu.Unlock()
	return nil
}
