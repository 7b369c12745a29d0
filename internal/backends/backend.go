// Package backends provides the scheme-keyed storage backends used to
// fetch job sources and deliver encoded outputs.
package backends

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"sync"
)

// ErrSourceNotFound indicates the download target does not exist.
var ErrSourceNotFound = errors.New("source not found")

// ErrUnknownScheme indicates no backend is registered for a URI scheme.
var ErrUnknownScheme = errors.New("unknown storage scheme")

// Backend moves bytes between a URI and local streams. Two methods
// suffice; everything else (auth, retries) is a backend concern.
type Backend interface {
	// Download streams the object at uri into w. A missing object
	// returns an error wrapping ErrSourceNotFound.
	Download(ctx context.Context, uri string, w io.Writer) error

	// Upload streams r to uri, creating the destination container or
	// directory if needed.
	Upload(ctx context.Context, uri string, r io.Reader) error
}

// Registry maps URI schemes to backends. Unknown schemes fail fast at
// submit time rather than mid-pipeline.
type Registry struct {
	mu       sync.RWMutex
	backends map[string]Backend
}

func NewRegistry() *Registry {
	return &Registry{
		backends: make(map[string]Backend),
	}
}

// Register binds a scheme to a backend
func (r *Registry) Register(scheme string, backend Backend) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.backends[scheme] = backend
}

// ForURI resolves the backend for the uri's scheme
func (r *Registry) ForURI(uri string) (Backend, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return nil, fmt.Errorf("invalid uri %q: %w", uri, err)
	}
	if u.Scheme == "" {
		return nil, fmt.Errorf("%w: uri %q has no scheme", ErrUnknownScheme, uri)
	}

	r.mu.RLock()
	backend, ok := r.backends[u.Scheme]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownScheme, u.Scheme)
	}
	return backend, nil
}

// Schemes returns the registered schemes
func (r *Registry) Schemes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	schemes := make([]string, 0, len(r.backends))
	for scheme := range r.backends {
		schemes = append(schemes, scheme)
	}
	return schemes
}
