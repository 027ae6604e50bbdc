// Package runtime defines the function-instance dispatch contract every
// node-agent runtime implements (§9 "dynamic dispatch at the agent/runtime
// boundary"): instantiate, cast, call, stop — modeled as a capability set
// selected by class_specification.format, not an inheritance hierarchy.
// There is no separate init step: Instantiate returns an instance that is
// already running.
package runtime

import (
	"context"

	"github.com/edgeless-project/edgeless/pkg/api"
)

// Instance is one running function materialization inside a runtime.
type Instance interface {
	// Cast delivers a fire-and-forget invocation from the data plane into
	// the function's code.
	Cast(ctx context.Context, channel string, payload []byte) error
	// Call delivers a call and returns the function's synchronous reply.
	Call(ctx context.Context, channel string, payload []byte) ([]byte, error)
	// Stop drains and destroys the instance.
	Stop(ctx context.Context) error
}

// Runtime instantiates function code of one declared format tag.
type Runtime interface {
	// Format is the class_specification.format tag this runtime serves,
	// e.g. "RUST_WASM" or "GO_NATIVE".
	Format() string
	// Instantiate loads class and returns a running Instance bound to
	// outputFn for resolving the function's own cast/call-to-channel
	// calls to data-plane targets.
	Instantiate(ctx context.Context, class api.ClassSpecification, outputFn OutputFunc) (Instance, error)
}

// OutputFunc is how an Instance reaches the data plane when the function
// code itself emits on one of its declared output channels. The node
// agent supplies this, closed over the instance's Handle and the current
// output_mapping (kept current across Patch calls).
type OutputFunc func(ctx context.Context, channel string, payload []byte) error

// Registry resolves a format tag to the Runtime that serves it.
type Registry struct {
	byFormat map[string]Runtime
}

func NewRegistry(runtimes ...Runtime) *Registry {
	r := &Registry{byFormat: make(map[string]Runtime, len(runtimes))}
	for _, rt := range runtimes {
		r.byFormat[rt.Format()] = rt
	}
	return r
}

func (r *Registry) Lookup(format string) (Runtime, bool) {
	rt, ok := r.byFormat[format]
	return rt, ok
}

// Formats lists every format tag this node advertises, used in its
// registration heartbeat.
func (r *Registry) Formats() []string {
	formats := make([]string, 0, len(r.byFormat))
	for f := range r.byFormat {
		formats = append(formats, f)
	}
	return formats
}
