package runtime

import (
	"context"
	"fmt"
	"sync"

	"github.com/edgeless-project/edgeless/common/apierr"
	"github.com/edgeless-project/edgeless/pkg/api"
)

// FuncBody is a function instance's code, compiled directly into the node
// binary. This runtime exists for the "GO_NATIVE" format tag used by
// tests and by reference/resource-adjacent functions that ship with the
// node agent itself, standing in for the WASM/container sandboxes the
// spec marks out of scope.
type FuncBody func(ctx context.Context, channel string, payload []byte, out OutputFunc) ([]byte, error)

// NativeRuntime dispatches to FuncBody implementations registered by
// class id.
type NativeRuntime struct {
	mu    sync.RWMutex
	funcs map[string]FuncBody
}

func NewNativeRuntime() *NativeRuntime {
	return &NativeRuntime{funcs: make(map[string]FuncBody)}
}

func (r *NativeRuntime) Format() string { return "GO_NATIVE" }

// RegisterFunc installs the code for one class id. Call before any node
// starts instances of that class.
func (r *NativeRuntime) RegisterFunc(classID string, body FuncBody) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.funcs[classID] = body
}

func (r *NativeRuntime) Instantiate(ctx context.Context, class api.ClassSpecification, out OutputFunc) (Instance, error) {
	r.mu.RLock()
	body, ok := r.funcs[class.ID]
	r.mu.RUnlock()
	if !ok {
		return nil, apierr.NewRuntime("unknown native class id", class.ID)
	}
	return &nativeInstance{body: body, out: out}, nil
}

type nativeInstance struct {
	body FuncBody
	out  OutputFunc
}

func (i *nativeInstance) Cast(ctx context.Context, channel string, payload []byte) error {
	_, err := i.body(ctx, channel, payload, i.out)
	return err
}

func (i *nativeInstance) Call(ctx context.Context, channel string, payload []byte) ([]byte, error) {
	reply, err := i.body(ctx, channel, payload, i.out)
	if err != nil {
		return nil, fmt.Errorf("native call: %w", err)
	}
	return reply, nil
}

func (i *nativeInstance) Stop(ctx context.Context) error { return nil }

var _ Runtime = (*NativeRuntime)(nil)
