package file

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/pkg/errors"
)

// Backend keeps every key of one device in a single JSON document on disk.
// Each write replaces the document atomically.
type Backend struct {
	mu     sync.Mutex
	path   string
	values map[string]json.RawMessage
}

func Open(path string) (*Backend, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, errors.Wrap(err, "create data directory")
	}
	b := &Backend{path: path, values: map[string]json.RawMessage{}}

	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return b, nil
		}
		return nil, errors.Wrap(err, "read store file")
	}
	if len(raw) == 0 {
		return b, nil
	}
	if err := json.Unmarshal(raw, &b.values); err != nil {
		return nil, errors.Wrapf(err, "decode store file %s", path)
	}
	return b, nil
}

func (b *Backend) Get(ctx context.Context, key string) ([]byte, bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	value, ok := b.values[key]
	if !ok {
		return nil, false, nil
	}
	out := make([]byte, len(value))
	copy(out, value)
	return out, true, nil
}

func (b *Backend) Set(ctx context.Context, key string, value []byte) error {
	if !json.Valid(value) {
		return errors.Errorf("value for %s is not valid JSON", key)
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	prev, had := b.values[key]
	stored := make(json.RawMessage, len(value))
	copy(stored, value)
	b.values[key] = stored
	if err := b.flush(); err != nil {
		if had {
			b.values[key] = prev
		} else {
			delete(b.values, key)
		}
		return err
	}
	return nil
}

func (b *Backend) Delete(ctx context.Context, key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	prev, had := b.values[key]
	if !had {
		return nil
	}
	delete(b.values, key)
	if err := b.flush(); err != nil {
		b.values[key] = prev
		return err
	}
	return nil
}

func (b *Backend) Path() string {
	return b.path
}

func (b *Backend) flush() error {
	raw, err := json.MarshalIndent(b.values, "", "  ")
	if err != nil {
		return errors.Wrap(err, "encode store file")
	}
	tmp, err := os.CreateTemp(filepath.Dir(b.path), filepath.Base(b.path)+".*.tmp")
	if err != nil {
		return errors.Wrap(err, "create temp file")
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(raw); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return errors.Wrap(err, "write temp file")
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return errors.Wrap(err, "sync temp file")
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return errors.Wrap(err, "close temp file")
	}
	if err := os.Rename(tmpName, b.path); err != nil {
		_ = os.Remove(tmpName)
		return errors.Wrap(err, "replace store file")
	}
	return nil
}
