package mapping

import (
	"context"
	"fmt"

	"codeberg.org/idgov/idgov/pkg/model"
)

// Evaluator runs a transform script against a variable set. Implemented by
// the script package; kept as an interface here so value resolution stays
// testable without a script runtime.
type Evaluator interface {
	Evaluate(ctx context.Context, script string, vars map[string]any) (any, error)
}

// ValueResolver computes concrete attribute values for resolved mappings.
type ValueResolver struct {
	scripts Evaluator
}

func NewValueResolver(scripts Evaluator) *ValueResolver {
	return &ValueResolver{scripts: scripts}
}

// ToTarget computes the outbound value of one non-merge mapping: the entity
// property, pushed through the transform-to-target script when one is set.
func (r *ValueResolver) ToTarget(ctx context.Context, m model.AttributeMapping, entity *model.Entity) (any, error) {
	var raw any
	if entity != nil {
		raw, _ = entity.Property(m.TargetProperty)
	}
	if m.TransformToTarget == "" {
		return raw, nil
	}
	return r.scripts.Evaluate(ctx, m.TransformToTarget, map[string]any{
		"value":     raw,
		"attribute": m.SchemaAttribute.Name,
		"entity":    entityVars(entity),
	})
}

// MergeToTarget aggregates a merge group in contribution order: list values
// are flattened with null items dropped, null scalars are skipped, scalars
// append as one item. The target schema attribute must be multivalued.
func (r *ValueResolver) MergeToTarget(ctx context.Context, group []model.AttributeMapping, entity *model.Entity) ([]any, error) {
	if len(group) == 0 {
		return nil, nil
	}
	target := group[0].SchemaAttribute
	if !target.Multivalued {
		return nil, model.NewCodedError(model.CodeMergeAttributeNotMultivalued, map[string]any{
			"attribute": target.Name,
			"strategy":  group[0].Strategy.String(),
		})
	}

	var aggregate []any
	for _, m := range group {
		v, err := r.ToTarget(ctx, m, entity)
		if err != nil {
			return nil, err
		}
		switch val := v.(type) {
		case nil:
		case []any:
			for _, item := range val {
				if item != nil {
					aggregate = append(aggregate, item)
				}
			}
		case []string:
			for _, item := range val {
				aggregate = append(aggregate, item)
			}
		default:
			aggregate = append(aggregate, val)
		}
	}
	return aggregate, nil
}

// FilterExpression evaluates a custom filter script into the connector's
// native expression string. The script sees the mapping's object class and
// the run's current token.
func (r *ValueResolver) FilterExpression(ctx context.Context, script, objectClass, token string) (string, error) {
	if script == "" {
		return "", nil
	}
	out, err := r.scripts.Evaluate(ctx, script, map[string]any{
		"objectClass": objectClass,
		"token":       token,
	})
	if err != nil {
		return "", err
	}
	expr, ok := out.(string)
	if !ok {
		return "", fmt.Errorf("custom filter script produced %T, want string", out)
	}
	return expr, nil
}

// FromTarget computes the inbound value of one mapping from an external
// record's attribute map.
func (r *ValueResolver) FromTarget(ctx context.Context, m model.AttributeMapping, attrs map[string]any) (any, error) {
	raw := attrs[m.SchemaAttribute.Name]
	if m.TransformFromTarget == "" {
		return raw, nil
	}
	return r.scripts.Evaluate(ctx, m.TransformFromTarget, map[string]any{
		"value":      raw,
		"attribute":  m.SchemaAttribute.Name,
		"attributes": attrs,
	})
}

// UIDValue validates a produced UID value. The account UID is only updated
// when the value is a non-empty string; any non-string value is a data error.
func UIDValue(v any) (string, error) {
	switch uid := v.(type) {
	case nil:
		return "", nil
	case string:
		return uid, nil
	default:
		return "", model.NewCodedError(model.CodeUIDNotString, map[string]any{
			"value": v,
		})
	}
}

func entityVars(e *model.Entity) map[string]any {
	if e == nil {
		return nil
	}
	vars := make(map[string]any, len(e.Properties)+len(e.Extended)+2)
	for k, v := range e.Extended {
		vars[k] = v
	}
	for k, v := range e.Properties {
		vars[k] = v
	}
	vars["id"] = e.ID
	vars["kind"] = string(e.Kind)
	return vars
}
