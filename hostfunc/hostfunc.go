package hostfunc

import (
	"context"
	"fmt"
	"sync"
)

// Func is a host capability callable from guest code. Arguments arrive as the
// decoded JSON object the guest passed; the return value is encoded back to
// the guest, and a non-nil error raises in the guest.
type Func func(ctx context.Context, args map[string]any) (any, error)

// Registry holds the host functions a guest session may call, keyed by the
// name the guest uses.
type Registry struct {
	mu    sync.RWMutex
	funcs map[string]Func
}

func NewRegistry() *Registry {
	return &Registry{funcs: make(map[string]Func)}
}

// Register installs fn under name, replacing any previous registration.
func (r *Registry) Register(name string, fn Func) {
	r.mu.Lock()
	r.funcs[name] = fn
	r.mu.Unlock()
}

// Call invokes the function registered under name. Calling an unregistered
// name is a guest programming error and is reported as one, not a panic.
func (r *Registry) Call(ctx context.Context, name string, args map[string]any) (any, error) {
	r.mu.RLock()
	fn, ok := r.funcs[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown function: %s", name)
	}
	return fn(ctx, args)
}
