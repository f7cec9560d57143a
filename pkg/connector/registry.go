package connector

import (
	"context"
	"fmt"

	"github.com/puzpuzpuz/xsync/v4"
)

// Factory builds an uninitialized connector instance.
type Factory func() Connector

// Registry maps connector keys to factories. Drivers register themselves
// from init funcs; the daemon imports them blank.
type Registry struct {
	factories *xsync.Map[string, Factory]
}

var globalRegistry = NewRegistry()

func NewRegistry() *Registry {
	return &Registry{factories: xsync.NewMap[string, Factory]()}
}

func (r *Registry) Register(key string, factory Factory) error {
	if _, loaded := r.factories.LoadOrStore(key, factory); loaded {
		return fmt.Errorf("connector %s already registered", key)
	}
	return nil
}

// Create builds and initializes a connector for the given key.
func (r *Registry) Create(ctx context.Context, key string, config map[string]any) (Connector, error) {
	factory, ok := r.factories.Load(key)
	if !ok {
		return nil, fmt.Errorf("connector %s not found", key)
	}
	c := factory()
	if err := c.Initialize(ctx, config); err != nil {
		return nil, fmt.Errorf("initialize connector %s: %w", key, err)
	}
	return c, nil
}

func (r *Registry) Has(key string) bool {
	_, ok := r.factories.Load(key)
	return ok
}

func (r *Registry) List() []string {
	var keys []string
	r.factories.Range(func(key string, _ Factory) bool {
		keys = append(keys, key)
		return true
	})
	return keys
}

func Register(key string, factory Factory) error {
	return globalRegistry.Register(key, factory)
}

func Create(ctx context.Context, key string, config map[string]any) (Connector, error) {
	return globalRegistry.Create(ctx, key, config)
}

func Has(key string) bool { return globalRegistry.Has(key) }

func Default() *Registry { return globalRegistry }
