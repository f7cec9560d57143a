package connector

import (
	"context"

	"codeberg.org/idgov/idgov/pkg/model"
	"github.com/puzpuzpuz/xsync/v4"
)

// Pool hands out initialized connectors per system, caching instances so
// repeated dispatches reuse connections.
type Pool struct {
	registry *Registry
	conns    *xsync.Map[string, Connector]
}

func NewPool(registry *Registry) *Pool {
	return &Pool{
		registry: registry,
		conns:    xsync.NewMap[string, Connector](),
	}
}

// For returns the connector for a system, initializing it on first use.
// A system without a connector key or configuration is a configuration
// error, never retried.
func (p *Pool) For(ctx context.Context, system *model.System) (Connector, error) {
	if c, ok := p.conns.Load(system.ID); ok {
		return c, nil
	}

	if system.ConnectorKey == "" {
		return nil, model.NewCodedError(model.CodeConnectorKeyMissing, map[string]any{
			"system": system.Name,
		})
	}
	if len(system.ConnectorConfig) == 0 {
		return nil, model.NewCodedError(model.CodeConnectorConfigMissing, map[string]any{
			"system": system.Name,
		})
	}

	c, err := p.registry.Create(ctx, system.ConnectorKey, system.ConnectorConfig)
	if err != nil {
		return nil, err
	}

	if existing, loaded := p.conns.LoadOrStore(system.ID, c); loaded {
		_ = c.Close()
		return existing, nil
	}
	return c, nil
}

// Evict drops a cached connector, closing it.
func (p *Pool) Evict(systemID string) {
	if c, ok := p.conns.LoadAndDelete(systemID); ok {
		_ = c.Close()
	}
}

func (p *Pool) Close() {
	p.conns.Range(func(id string, c Connector) bool {
		_ = c.Close()
		p.conns.Delete(id)
		return true
	})
}
