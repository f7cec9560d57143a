package mapping

import (
	"testing"

	"codeberg.org/idgov/idgov/pkg/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func schemaAttr(id, name string, multivalued bool) model.SchemaAttribute {
	return model.SchemaAttribute{
		ID:          id,
		Name:        name,
		ObjectClass: "account",
		Multivalued: multivalued,
		Updateable:  true,
	}
}

func defaultMapping(attr model.SchemaAttribute, prop string, strategy model.StrategyType) model.AttributeMapping {
	return model.AttributeMapping{
		ID:              "def-" + attr.ID,
		SchemaAttribute: attr,
		TargetProperty:  prop,
		Strategy:        strategy,
	}
}

func override(attr model.SchemaAttribute, role string, priority int, strategy model.StrategyType) model.RoleAttributeOverride {
	return model.RoleAttributeOverride{
		AttributeMapping: model.AttributeMapping{
			ID:              "ovr-" + attr.ID + "-" + role,
			SchemaAttribute: attr,
			TargetProperty:  "prop",
			Strategy:        strategy,
		},
		Role: model.RoleRef{ID: role, Name: role, Priority: priority},
	}
}

func TestResolve_DefaultOnly(t *testing.T) {
	email := schemaAttr("a1", "email", false)
	defaults := []model.AttributeMapping{defaultMapping(email, "email", model.StrategySet)}

	resolved := Resolve(defaults, nil)

	require.Len(t, resolved, 1)
	assert.Equal(t, "def-a1", resolved[0].ID)
}

func TestResolve_DisabledDefaultProducesNothing(t *testing.T) {
	email := schemaAttr("a1", "email", false)
	def := defaultMapping(email, "email", model.StrategySet)
	def.Disabled = true

	resolved := Resolve([]model.AttributeMapping{def}, nil)
	assert.Empty(t, resolved)
}

func TestResolve_HighestPriorityOverrideWins(t *testing.T) {
	email := schemaAttr("a1", "email", false)
	email.Name = "email"
	def := defaultMapping(email, "email", model.StrategySet)
	def.TransformFromTarget = "transform-from-email"

	overrides := []model.RoleAttributeOverride{
		override(email, "contractor", 5, model.StrategySet),
		override(email, "employee", 10, model.StrategySet),
	}

	resolved := Resolve([]model.AttributeMapping{def}, overrides)

	require.Len(t, resolved, 1)
	assert.Equal(t, "ovr-a1-employee", resolved[0].ID)
	// Winner is stamped with the default's schema reference and inbound transform.
	assert.Equal(t, email, resolved[0].SchemaAttribute)
	assert.Equal(t, "transform-from-email", resolved[0].TransformFromTarget)
}

func TestResolve_EqualPriorityTieBreaksOnRoleNameDescending(t *testing.T) {
	attr := schemaAttr("a1", "title", false)
	def := defaultMapping(attr, "title", model.StrategySet)

	overrides := []model.RoleAttributeOverride{
		override(attr, "alpha", 10, model.StrategySet),
		override(attr, "zulu", 10, model.StrategySet),
		override(attr, "mike", 10, model.StrategySet),
	}

	resolved := Resolve([]model.AttributeMapping{def}, overrides)

	require.Len(t, resolved, 1)
	assert.Equal(t, "ovr-a1-zulu", resolved[0].ID)
}

func TestResolve_Deterministic(t *testing.T) {
	attrA := schemaAttr("a1", "email", false)
	attrB := schemaAttr("a2", "memberOf", true)
	defaults := []model.AttributeMapping{
		defaultMapping(attrA, "email", model.StrategySet),
		defaultMapping(attrB, "groups", model.StrategyMerge),
	}
	overrides := []model.RoleAttributeOverride{
		override(attrA, "employee", 10, model.StrategySet),
		override(attrB, "employee", 10, model.StrategyMerge),
		override(attrB, "contractor", 5, model.StrategyMerge),
	}

	first := Resolve(defaults, overrides)
	second := Resolve(defaults, overrides)
	assert.Equal(t, first, second)
}

func TestResolve_DisableDefaultAtMaxPrioritySuppresses(t *testing.T) {
	attr := schemaAttr("a1", "description", false)
	def := defaultMapping(attr, "description", model.StrategySet)

	disabling := override(attr, "employee", 10, model.StrategySet)
	disabling.DisableDefault = true

	overrides := []model.RoleAttributeOverride{
		override(attr, "contractor", 5, model.StrategySet),
		disabling,
	}

	resolved := Resolve([]model.AttributeMapping{def}, overrides)
	assert.Empty(t, resolved, "disabling override at max priority must suppress lower-priority enabled ones")
}

func TestResolve_LowerPriorityDisableDefaultDoesNotSuppress(t *testing.T) {
	attr := schemaAttr("a1", "description", false)
	def := defaultMapping(attr, "description", model.StrategySet)

	disabling := override(attr, "contractor", 5, model.StrategySet)
	disabling.DisableDefault = true

	overrides := []model.RoleAttributeOverride{
		disabling,
		override(attr, "employee", 10, model.StrategySet),
	}

	resolved := Resolve([]model.AttributeMapping{def}, overrides)
	require.Len(t, resolved, 1)
	assert.Equal(t, "ovr-a1-employee", resolved[0].ID)
}

func TestResolve_OverridesAtOtherStrategyHideDefault(t *testing.T) {
	// Once any override competes for the schema attribute, the default no
	// longer emits on its own, even at its own strategy.
	attr := schemaAttr("a1", "email", false)
	def := defaultMapping(attr, "email", model.StrategySet)

	overrides := []model.RoleAttributeOverride{
		override(attr, "employee", 10, model.StrategyCreate),
	}

	resolved := Resolve([]model.AttributeMapping{def}, overrides)
	require.Len(t, resolved, 1)
	assert.Equal(t, model.StrategyCreate, resolved[0].Strategy)
}

func TestResolve_MergeEmitsAllContributors(t *testing.T) {
	attr := schemaAttr("a2", "memberOf", true)
	def := defaultMapping(attr, "groups", model.StrategyMerge)
	def.TransformFromTarget = "from-target"

	winner := override(attr, "zulu", 10, model.StrategyMerge)
	winner.SendAlways = true
	loser := override(attr, "alpha", 5, model.StrategyMerge)

	resolved := Resolve([]model.AttributeMapping{def}, []model.RoleAttributeOverride{loser, winner})

	require.Len(t, resolved, 2)
	for _, m := range resolved {
		assert.Equal(t, attr, m.SchemaAttribute)
		assert.Equal(t, "from-target", m.TransformFromTarget)
		// Send flags are shared per schema attribute, copied from the winner.
		assert.True(t, m.SendAlways)
	}
}

func TestResolve_StrategyOrderIsDeclarationOrder(t *testing.T) {
	attr := schemaAttr("a1", "login", false)
	def := defaultMapping(attr, "login", model.StrategyCreate)

	overrides := []model.RoleAttributeOverride{
		override(attr, "employee", 10, model.StrategySet),
		override(attr, "employee", 10, model.StrategyCreate),
	}

	resolved := Resolve([]model.AttributeMapping{def}, overrides)
	require.Len(t, resolved, 2)
	assert.Equal(t, model.StrategyCreate, resolved[0].Strategy)
	assert.Equal(t, model.StrategySet, resolved[1].Strategy)
}

func TestValidateStrategyConflicts(t *testing.T) {
	attr := schemaAttr("a2", "memberOf", true)

	t.Run("merge with set conflicts", func(t *testing.T) {
		resolved := []model.AttributeMapping{
			{SchemaAttribute: attr, Strategy: model.StrategyMerge},
			{SchemaAttribute: attr, Strategy: model.StrategySet},
		}
		err := ValidateStrategyConflicts(resolved)
		require.Error(t, err)
		assert.True(t, model.HasCode(err, model.CodeAttributeStrategyConflict))
	})

	t.Run("merge with authoritative merge conflicts", func(t *testing.T) {
		resolved := []model.AttributeMapping{
			{SchemaAttribute: attr, Strategy: model.StrategyMerge},
			{SchemaAttribute: attr, Strategy: model.StrategyAuthoritativeMerge},
		}
		err := ValidateStrategyConflicts(resolved)
		require.Error(t, err)
	})

	t.Run("merge with create and write-if-null is fine", func(t *testing.T) {
		resolved := []model.AttributeMapping{
			{SchemaAttribute: attr, Strategy: model.StrategyMerge},
			{SchemaAttribute: attr, Strategy: model.StrategyCreate},
			{SchemaAttribute: attr, Strategy: model.StrategyWriteIfNull},
		}
		assert.NoError(t, ValidateStrategyConflicts(resolved))
	})

	t.Run("same merge strategy is fine", func(t *testing.T) {
		resolved := []model.AttributeMapping{
			{SchemaAttribute: attr, Strategy: model.StrategyMerge},
			{SchemaAttribute: attr, Strategy: model.StrategyMerge},
		}
		assert.NoError(t, ValidateStrategyConflicts(resolved))
	})
}
