package colloquy

import (
	"context"
	"fmt"
	"sync"
)

// ActionFunc is a user-supplied effectful function. It receives the active
// flow's full slot map and returns named outputs; the action step's
// map_outputs renames outputs into slots. Handlers should be idempotent on
// retry — the engine never retries automatically, but a user can.
type ActionFunc func(ctx context.Context, slots map[string]any) (map[string]any, error)

// ActionRegistry holds named action handlers. It is immutable after startup
// from the engine's point of view: register everything before the first
// turn, then read from any session worker without locking concerns.
type ActionRegistry struct {
	mu       sync.RWMutex
	handlers map[string]ActionFunc
}

// NewActionRegistry creates an empty registry.
func NewActionRegistry() *ActionRegistry {
	return &ActionRegistry{handlers: make(map[string]ActionFunc)}
}

// Register adds a handler under a name, replacing any previous handler.
func (r *ActionRegistry) Register(name string, fn ActionFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[name] = fn
}

// Get returns the named handler.
func (r *ActionRegistry) Get(name string) (ActionFunc, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.handlers[name]
	return fn, ok
}

// Names returns all registered action names.
func (r *ActionRegistry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.handlers))
	for name := range r.handlers {
		names = append(names, name)
	}
	return names
}

// Invoke runs the named handler, wrapping failures in ActionError.
func (r *ActionRegistry) Invoke(ctx context.Context, name string, slots map[string]any) (map[string]any, error) {
	fn, ok := r.Get(name)
	if !ok {
		return nil, &ActionError{Action: name, Err: fmt.Errorf("not registered")}
	}
	out, err := fn(ctx, slots)
	if err != nil {
		return nil, &ActionError{Action: name, Err: err}
	}
	return out, nil
}
