// Package resource defines the resource-provider contract a node agent
// dispatches to for the Resource Configuration API (§4.2), mirroring
// runtime.Runtime's shape but keyed by class_type instead of format tag
// since a resource has no code blob to run, only configuration.
package resource

import (
	"context"

	"github.com/edgeless-project/edgeless/pkg/api"
)

// Instance is one configured resource object.
type Instance interface {
	// Patch replaces the resource's output mapping in place.
	Patch(ctx context.Context, outputFn runtimeOutputFunc) error
	// Stop releases whatever the resource held open.
	Stop(ctx context.Context) error
}

// runtimeOutputFunc mirrors runtime.OutputFunc without importing the
// runtime package, since a resource that emits output (e.g. a file
// tailer) reaches the data plane the same way a function does.
type runtimeOutputFunc func(ctx context.Context, channel string, payload []byte) error

// Provider instantiates resource objects of one class_type, and accepts
// cast/call deliveries addressed to a running instance — e.g. a log
// resource's "write" channel is a Cast target from upstream functions.
type Provider interface {
	ClassType() string
	Outputs() []string
	Start(ctx context.Context, configuration map[string]string, out runtimeOutputFunc) (Instance, error)
	Cast(ctx context.Context, inst Instance, channel string, payload []byte) error
	Call(ctx context.Context, inst Instance, channel string, payload []byte) ([]byte, error)
}

// Registry resolves a class_type to the Provider that serves it.
type Registry struct {
	byClass  map[string]Provider
	advertise map[string]map[string]string // class_type -> configuration advertised in UpdateNode
}

func NewRegistry(providers ...Provider) *Registry {
	r := &Registry{
		byClass:   make(map[string]Provider, len(providers)),
		advertise: make(map[string]map[string]string),
	}
	for _, p := range providers {
		r.byClass[p.ClassType()] = p
	}
	return r
}

func (r *Registry) Lookup(classType string) (Provider, bool) {
	p, ok := r.byClass[classType]
	return p, ok
}

// Advertise attaches static configuration a provider's ResourceProviderRecord
// should carry in the node's registration heartbeat — e.g. the "portal"
// class advertising its reachable_domains (§4.4 portal reachability).
func (r *Registry) Advertise(classType string, configuration map[string]string) {
	r.advertise[classType] = configuration
}

// ClassTypes lists every resource class this node advertises.
func (r *Registry) ClassTypes() []string {
	classes := make([]string, 0, len(r.byClass))
	for c := range r.byClass {
		classes = append(classes, c)
	}
	return classes
}

// Records builds the ResourceProviderRecord advertisements this node
// includes in its UpdateNode heartbeat (§4.2/§4.3).
func (r *Registry) Records(nodeID api.NodeID) []api.ResourceProviderRecord {
	records := make([]api.ResourceProviderRecord, 0, len(r.byClass))
	for class, p := range r.byClass {
		records = append(records, api.ResourceProviderRecord{
			ProviderID:    class + "@" + nodeID.String(),
			ClassType:     class,
			NodeID:        nodeID,
			Outputs:       p.Outputs(),
			Configuration: r.advertise[class],
		})
	}
	return records
}
