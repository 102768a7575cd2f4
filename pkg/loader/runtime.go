package loader

import (
	"context"
	"fmt"
	"sync"

	"github.com/platinummonkey/noderegistry/pkg/descriptor"
)

// Runtime executes implementation files with a given set of extensions
type Runtime interface {
	Extensions() []string
	Execute(ctx context.Context, unit *descriptor.Unit, red *RED) error
}

// Releaser is implemented by runtimes that hold per-unit resources
type Releaser interface {
	Release(unitID string)
}

// NativeExtension marks a unit whose implementation is compiled in
const NativeExtension = ".node"

// Factory is a compiled-in unit implementation. It runs once per load with
// the unit's RED capability.
type Factory func(ctx context.Context, red *RED) error

// NativeRuntime runs compiled-in factories registered by unit id. The
// implementation file of a native unit is only a marker.
type NativeRuntime struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewNativeRuntime creates an empty native runtime
func NewNativeRuntime() *NativeRuntime {
	return &NativeRuntime{factories: make(map[string]Factory)}
}

// Register binds a factory to a unit id, replacing any earlier one
func (n *NativeRuntime) Register(unitID string, f Factory) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.factories[unitID] = f
}

// Has reports whether a factory is registered for a unit id
func (n *NativeRuntime) Has(unitID string) bool {
	n.mu.RLock()
	defer n.mu.RUnlock()
	_, ok := n.factories[unitID]
	return ok
}

// Extensions implements Runtime
func (n *NativeRuntime) Extensions() []string {
	return []string{NativeExtension}
}

// Execute implements Runtime
func (n *NativeRuntime) Execute(ctx context.Context, unit *descriptor.Unit, red *RED) error {
	n.mu.RLock()
	f, ok := n.factories[unit.ID]
	n.mu.RUnlock()
	if !ok {
		return fmt.Errorf("no native implementation registered for %s", unit.ID)
	}
	return f(ctx, red)
}
