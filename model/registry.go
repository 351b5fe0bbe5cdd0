package model

import (
	"sync"

	"github.com/jacentio/vellum/store"
)

// Registry maps container ids to store clients. Collections bound without
// an explicit client resolve through a registry, keeping connection state
// explicit instead of ambient.
type Registry struct {
	mu       sync.RWMutex
	clients  map[string]store.Client
	fallback store.Client
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{clients: make(map[string]store.Client)}
}

// Register binds a client to a container id, replacing any previous
// binding.
func (r *Registry) Register(containerID string, client store.Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clients[containerID] = client
}

// SetFallback sets the client used for containers with no specific
// binding.
func (r *Registry) SetFallback(client store.Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fallback = client
}

// Unregister removes a container binding.
func (r *Registry) Unregister(containerID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.clients, containerID)
}

// Resolve returns the client for a container id, falling back to the
// registry-wide default.
func (r *Registry) Resolve(containerID string) (store.Client, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if c, ok := r.clients[containerID]; ok {
		return c, true
	}
	if r.fallback != nil {
		return r.fallback, true
	}
	return nil, false
}

var (
	defaultOnce     sync.Once
	defaultRegistry *Registry
)

// DefaultRegistry returns the process-wide registry. Initialization is
// once-guarded, so concurrent first use is safe. Populate it during
// startup; it is the documented home for a shared default connection.
func DefaultRegistry() *Registry {
	defaultOnce.Do(func() {
		defaultRegistry = NewRegistry()
	})
	return defaultRegistry
}
