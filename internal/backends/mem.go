package backends

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"
)

// MemBackend serves mem:// URIs from an in-process map. Used by tests
// and smoke runs; the full URI is the object key.
type MemBackend struct {
	mu      sync.RWMutex
	objects map[string][]byte
}

func NewMemBackend() *MemBackend {
	return &MemBackend{
		objects: make(map[string][]byte),
	}
}

func (b *MemBackend) Download(ctx context.Context, uri string, w io.Writer) error {
	b.mu.RLock()
	data, ok := b.objects[uri]
	b.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: The specified input file cannot be found: %s", ErrSourceNotFound, uri)
	}
	_, err := io.Copy(w, bytes.NewReader(data))
	return err
}

func (b *MemBackend) Upload(ctx context.Context, uri string, r io.Reader) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("failed to read upload for %s: %w", uri, err)
	}
	b.mu.Lock()
	b.objects[uri] = data
	b.mu.Unlock()
	return nil
}

// Object returns a stored object's bytes for test assertions
func (b *MemBackend) Object(uri string) ([]byte, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	data, ok := b.objects[uri]
	return data, ok
}

// Seed stores an object directly
func (b *MemBackend) Seed(uri string, data []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.objects[uri] = append([]byte(nil), data...)
}
