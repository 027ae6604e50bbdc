package dataplane

import (
	"sync"

	"github.com/edgeless-project/edgeless/pkg/api"
)

// Registry is the node-local map from ComponentId to the Handle that owns
// it, the backing store for LocalLink short-circuit delivery and for the
// invocation server's target lookup (§4.1).
type Registry struct {
	mu      sync.RWMutex
	handles map[api.ComponentID]*Handle
}

func NewRegistry() *Registry {
	return &Registry{handles: make(map[api.ComponentID]*Handle)}
}

// Register installs a handle under its own component id. Called by the
// node agent when a function or resource instance starts.
func (r *Registry) Register(h *Handle) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handles[h.id.Component] = h
}

// Unregister removes a handle. Called on stop.
func (r *Registry) Unregister(id api.ComponentID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.handles, id)
}

func (r *Registry) lookup(target api.InstanceID) (*Handle, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handles[target.Component]
	if !ok || h.id.Node != target.Node {
		return nil, false
	}
	return h, true
}

// Lookup exposes lookup by ComponentId alone, used by the invocation
// server which already knows the event targets this node.
func (r *Registry) Lookup(component api.ComponentID) (*Handle, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handles[component]
	return h, ok
}
