package mapping

import (
	"context"
	"testing"

	"codeberg.org/idgov/idgov/pkg/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedEvaluator resolves scripts from a fixed table; the real starlark
// evaluator is exercised in the script package.
type scriptedEvaluator struct {
	results map[string]any
}

func (e *scriptedEvaluator) Evaluate(_ context.Context, script string, _ map[string]any) (any, error) {
	return e.results[script], nil
}

func TestValueResolver_ToTarget(t *testing.T) {
	r := NewValueResolver(&scriptedEvaluator{results: map[string]any{
		"upper": "JOHN",
	}})

	entity := &model.Entity{
		ID:         "e1",
		Kind:       model.KindIdentity,
		Properties: map[string]any{"username": "john"},
	}

	t.Run("without transform returns raw property", func(t *testing.T) {
		m := model.AttributeMapping{
			SchemaAttribute: schemaAttr("a1", "uid", false),
			TargetProperty:  "username",
		}
		v, err := r.ToTarget(context.Background(), m, entity)
		require.NoError(t, err)
		assert.Equal(t, "john", v)
	})

	t.Run("with transform returns script result", func(t *testing.T) {
		m := model.AttributeMapping{
			SchemaAttribute:   schemaAttr("a1", "uid", false),
			TargetProperty:    "username",
			TransformToTarget: "upper",
		}
		v, err := r.ToTarget(context.Background(), m, entity)
		require.NoError(t, err)
		assert.Equal(t, "JOHN", v)
	})

	t.Run("extended property is readable", func(t *testing.T) {
		entity := &model.Entity{
			ID:       "e2",
			Kind:     model.KindIdentity,
			Extended: map[string]any{"badge": "B-17"},
		}
		m := model.AttributeMapping{
			SchemaAttribute: schemaAttr("a2", "badgeNumber", false),
			TargetProperty:  "badge",
			Extended:        true,
		}
		v, err := r.ToTarget(context.Background(), m, entity)
		require.NoError(t, err)
		assert.Equal(t, "B-17", v)
	})
}

func TestValueResolver_MergeToTarget(t *testing.T) {
	r := NewValueResolver(&scriptedEvaluator{})
	memberOf := schemaAttr("a2", "memberOf", true)

	entity := &model.Entity{
		ID:   "e1",
		Kind: model.KindIdentity,
		Properties: map[string]any{
			"adminGroups": []any{"A"},
			"userGroups":  []any{"B", nil, "C"},
			"extraGroup":  "D",
			"emptyGroup":  nil,
		},
	}

	group := []model.AttributeMapping{
		{SchemaAttribute: memberOf, TargetProperty: "adminGroups", Strategy: model.StrategyMerge},
		{SchemaAttribute: memberOf, TargetProperty: "userGroups", Strategy: model.StrategyMerge},
		{SchemaAttribute: memberOf, TargetProperty: "extraGroup", Strategy: model.StrategyMerge},
		{SchemaAttribute: memberOf, TargetProperty: "emptyGroup", Strategy: model.StrategyMerge},
	}

	values, err := r.MergeToTarget(context.Background(), group, entity)
	require.NoError(t, err)
	// Contribution order preserved, list values flattened, nulls dropped,
	// plain scalars appended as one item.
	assert.Equal(t, []any{"A", "B", "C", "D"}, values)
}

func TestValueResolver_MergeToTarget_NotMultivalued(t *testing.T) {
	r := NewValueResolver(&scriptedEvaluator{})
	single := schemaAttr("a3", "displayName", false)

	group := []model.AttributeMapping{
		{SchemaAttribute: single, TargetProperty: "name", Strategy: model.StrategyAuthoritativeMerge},
	}

	_, err := r.MergeToTarget(context.Background(), group, &model.Entity{})
	require.Error(t, err)
	assert.True(t, model.HasCode(err, model.CodeMergeAttributeNotMultivalued))
}

func TestValueResolver_FilterExpression(t *testing.T) {
	r := NewValueResolver(&scriptedEvaluator{results: map[string]any{
		"user-filter": "(objectClass=user)",
		"bad-filter":  42,
	}})

	t.Run("empty script yields empty expression", func(t *testing.T) {
		expr, err := r.FilterExpression(context.Background(), "", "user", "")
		require.NoError(t, err)
		assert.Empty(t, expr)
	})

	t.Run("script result becomes the expression", func(t *testing.T) {
		expr, err := r.FilterExpression(context.Background(), "user-filter", "user", "0001")
		require.NoError(t, err)
		assert.Equal(t, "(objectClass=user)", expr)
	})

	t.Run("non-string result fails", func(t *testing.T) {
		_, err := r.FilterExpression(context.Background(), "bad-filter", "user", "")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "want string")
	})
}

func TestUIDValue(t *testing.T) {
	t.Run("string passes through", func(t *testing.T) {
		uid, err := UIDValue("u100")
		require.NoError(t, err)
		assert.Equal(t, "u100", uid)
	})

	t.Run("nil yields empty", func(t *testing.T) {
		uid, err := UIDValue(nil)
		require.NoError(t, err)
		assert.Empty(t, uid)
	})

	t.Run("non-string fails", func(t *testing.T) {
		_, err := UIDValue(42)
		require.Error(t, err)
		assert.True(t, model.HasCode(err, model.CodeUIDNotString))
	})
}
