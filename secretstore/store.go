// Package secretstore writes scrubbed credentials into secret backends so the
// placeholder expressions that replaced them resolve at runtime.
//
// Each backend lives in its own file and registers itself from init():
// implement Store, then call Register with a Backend describing it.
package secretstore

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
)

var (
	ErrNotFound       = errors.New("secret not found")
	ErrUnknownBackend = errors.New("unknown backend type")
)

// Store is a secret backend addressed by fully-qualified secret names.
type Store interface {
	// Get reads a secret. Missing secrets return an error wrapping ErrNotFound
	// where the backend can tell the difference.
	Get(ctx context.Context, name string) (string, error)
	// Put creates or overwrites a secret.
	Put(ctx context.Context, name, value string) error
}

// Factory builds a Store from a backend configuration.
type Factory func(cfg BackendConfig) (Store, error)

// Backend describes a registered backend type.
type Backend struct {
	Type           string
	Description    string
	Factory        Factory
	RequiredFields []string
	OptionalFields []string
}

type registry struct {
	mu       sync.RWMutex
	backends map[string]Backend
}

var backends = &registry{backends: make(map[string]Backend)}

// Register adds a backend type. It panics on duplicate or incomplete entries.
func Register(b Backend) {
	backends.mu.Lock()
	defer backends.mu.Unlock()

	if b.Type == "" {
		panic("backend type cannot be empty")
	}
	if b.Factory == nil {
		panic("backend factory cannot be nil")
	}
	if _, exists := backends.backends[b.Type]; exists {
		panic(fmt.Sprintf("backend type %q already registered", b.Type))
	}
	backends.backends[b.Type] = b
}

// Lookup returns the registered backend of the given type.
func Lookup(backendType string) (Backend, bool) {
	backends.mu.RLock()
	defer backends.mu.RUnlock()
	b, ok := backends.backends[backendType]
	return b, ok
}

// Types returns the registered backend types, sorted.
func Types() []string {
	backends.mu.RLock()
	defer backends.mu.RUnlock()

	types := make([]string, 0, len(backends.backends))
	for t := range backends.backends {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// Open builds a Store for cfg using the registered factory for cfg.Type.
func Open(cfg BackendConfig) (Store, error) {
	b, ok := Lookup(cfg.Type)
	if !ok {
		return nil, fmt.Errorf("%w %q (available: %v)", ErrUnknownBackend, cfg.Type, Types())
	}
	return b.Factory(cfg)
}
