// Package encoders provides the pluggable encoding strategies ("nommers")
// that turn a downloaded source file into an output file.
package encoders

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
)

// ErrUnknownEncoder indicates no factory is registered for a kind.
// Submit rejects unknown kinds so the failure surfaces at submit time,
// not when a worker picks the job up.
var ErrUnknownEncoder = errors.New("unknown encoder kind")

// Request carries everything an encoder needs for one job. ScratchDir
// returns a fresh directory per call; external tools write side-files
// with fixed names, so concurrent passes must not share a directory.
type Request struct {
	InputPath  string
	OutputPath string
	Options    json.RawMessage
	ScratchDir func() (string, error)
}

// Encoder runs one encode. A nonzero tool exit returns a *Failure; any
// other error is infrastructure.
type Encoder interface {
	Encode(ctx context.Context, req Request) error
}

// Failure is a deterministic encoder failure: the tool ran and said no.
// Stderr carries the tail of the tool's error output.
type Failure struct {
	Kind   string
	Stderr string
	Err    error
}

func (f *Failure) Error() string {
	return fmt.Sprintf("encoder %s failed: %v", f.Kind, f.Err)
}

func (f *Failure) Unwrap() error {
	return f.Err
}

// Factory builds an encoder from its config-time settings.
type Factory func() Encoder

// Registry maps encoder kinds to factories.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]Factory),
	}
}

// Register binds a kind to a factory
func (r *Registry) Register(kind string, factory Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[kind] = factory
}

// Known reports whether a kind is registered
func (r *Registry) Known(kind string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.factories[kind]
	return ok
}

// New builds an encoder for the kind, or ErrUnknownEncoder
func (r *Registry) New(kind string) (Encoder, error) {
	r.mu.RLock()
	factory, ok := r.factories[kind]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownEncoder, kind)
	}
	return factory(), nil
}
