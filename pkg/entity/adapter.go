// Package entity provides the per-kind capability adapters the
// synchronization engine uses to touch local records, replacing a deep
// executor inheritance tree with one injected interface.
package entity

import (
	"context"
	"fmt"
	"sort"

	"codeberg.org/idgov/idgov/pkg/model"
	"codeberg.org/idgov/idgov/pkg/repo"
)

// Adapter is the capability contract for one governed entity kind.
type Adapter interface {
	Kind() model.EntityKind
	SupportsProvisioning() bool
	DisplayName(e *model.Entity) string

	FindByID(ctx context.Context, id string) (*model.Entity, error)
	// FindByCorrelation looks an entity up by property value. Extended
	// lookups search the off-record attribute owners and must match at
	// most one entity.
	FindByCorrelation(ctx context.Context, property string, value any, extended bool) (*model.Entity, error)

	Fill(e *model.Entity, values map[string]any, extendedFlags map[string]bool)
	Save(ctx context.Context, e *model.Entity) (*model.Entity, error)
	Delete(ctx context.Context, id string) error
}

type descriptor struct {
	displayProperty string
	provisioning    bool
}

// One adapter implementation serves every kind; behavior differences live in
// the descriptor table, not in subclasses.
var descriptors = map[model.EntityKind]descriptor{
	model.KindIdentity:      {displayProperty: "username", provisioning: true},
	model.KindRole:          {displayProperty: "name", provisioning: true},
	model.KindTreeNode:      {displayProperty: "code", provisioning: true},
	model.KindContract:      {displayProperty: "position", provisioning: true},
	model.KindContractSlice: {displayProperty: "code", provisioning: false},
	model.KindIdentityRole:  {displayProperty: "id", provisioning: false},
	model.KindRoleCatalogue: {displayProperty: "code", provisioning: true},
}

type adapter struct {
	kind  model.EntityKind
	desc  descriptor
	repos *repo.Repositories
}

// Registry exposes one adapter per governed kind.
type Registry struct {
	adapters map[model.EntityKind]Adapter
}

func NewRegistry(repos *repo.Repositories) *Registry {
	adapters := make(map[model.EntityKind]Adapter, len(descriptors))
	for _, kind := range model.EntityKinds() {
		adapters[kind] = &adapter{kind: kind, desc: descriptors[kind], repos: repos}
	}
	return &Registry{adapters: adapters}
}

func (r *Registry) For(kind model.EntityKind) (Adapter, error) {
	a, ok := r.adapters[kind]
	if !ok {
		return nil, fmt.Errorf("no adapter for entity kind %s", kind)
	}
	return a, nil
}

func (a *adapter) Kind() model.EntityKind     { return a.kind }
func (a *adapter) SupportsProvisioning() bool { return a.desc.provisioning }

func (a *adapter) DisplayName(e *model.Entity) string {
	if v, ok := e.Property(a.desc.displayProperty); ok {
		if s, ok := v.(string); ok && s != "" {
			return s
		}
	}
	return e.ID
}

func (a *adapter) FindByID(ctx context.Context, id string) (*model.Entity, error) {
	return a.repos.Entities.Get(ctx, a.kind, id)
}

func (a *adapter) FindByCorrelation(ctx context.Context, property string, value any, extended bool) (*model.Entity, error) {
	if extended && !serializable(value) {
		return nil, model.NewCodedError(model.CodeCorrelationBadValue, map[string]any{
			"property": property,
			"value":    fmt.Sprintf("%T", value),
		})
	}

	matches, err := a.repos.Entities.Find(ctx, a.kind, func(e *model.Entity) bool {
		var current any
		var ok bool
		if extended {
			current, ok = e.Extended[property]
		} else {
			current, ok = e.Properties[property]
		}
		return ok && equalValue(current, value)
	})
	if err != nil {
		return nil, err
	}

	switch {
	case len(matches) == 0:
		return nil, nil
	case len(matches) > 1 && extended:
		return nil, model.NewCodedError(model.CodeCorrelationTooManyResults, map[string]any{
			"property": property,
			"count":    len(matches),
		})
	default:
		// Direct lookups tolerate duplicates; pick deterministically.
		sort.Slice(matches, func(i, j int) bool { return matches[i].ID < matches[j].ID })
		return &matches[0], nil
	}
}

func (a *adapter) Fill(e *model.Entity, values map[string]any, extendedFlags map[string]bool) {
	for name, value := range values {
		e.SetProperty(name, value, extendedFlags[name])
	}
}

func (a *adapter) Save(ctx context.Context, e *model.Entity) (*model.Entity, error) {
	if e.Kind == "" {
		e.Kind = a.kind
	}
	if err := a.repos.Entities.Save(ctx, e); err != nil {
		return nil, err
	}
	return e, nil
}

func (a *adapter) Delete(ctx context.Context, id string) error {
	return a.repos.Entities.Delete(ctx, a.kind, id)
}

func serializable(v any) bool {
	switch v.(type) {
	case nil, string, bool,
		int, int32, int64, uint, uint32, uint64,
		float32, float64:
		return true
	default:
		return false
	}
}

func equalValue(a, b any) bool {
	return fmt.Sprintf("%v", a) == fmt.Sprintf("%v", b)
}
