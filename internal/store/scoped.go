package store

import "context"

type scoped struct {
	backend Backend
	prefix  string
}

// Scoped namespaces every key of backend under prefix.
func Scoped(backend Backend, prefix string) Backend {
	return scoped{backend: backend, prefix: prefix + ":"}
}

func (s scoped) Get(ctx context.Context, key string) ([]byte, bool, error) {
	return s.backend.Get(ctx, s.prefix+key)
}

func (s scoped) Set(ctx context.Context, key string, value []byte) error {
	return s.backend.Set(ctx, s.prefix+key, value)
}

func (s scoped) Delete(ctx context.Context, key string) error {
	return s.backend.Delete(ctx, s.prefix+key)
}
