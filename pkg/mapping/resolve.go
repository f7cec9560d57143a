// Package mapping implements the attribute resolution engine: merging
// default system-mapping attributes with role-level overrides into the final
// ordered attribute list, and computing outbound/inbound attribute values.
package mapping

import (
	"sort"

	"codeberg.org/idgov/idgov/pkg/model"
)

// Resolve merges default mappings with role overrides into the final ordered
// attribute list. It is deterministic and pure: strategies are walked in
// declaration order per default attribute, and equal-priority overrides tie
// break on role name, descending.
func Resolve(defaults []model.AttributeMapping, overrides []model.RoleAttributeOverride) []model.AttributeMapping {
	var resolved []model.AttributeMapping

	for _, def := range defaults {
		for _, strategy := range model.Strategies() {
			resolved = append(resolved, resolveOne(def, strategy, overrides)...)
		}
	}

	return resolved
}

func resolveOne(def model.AttributeMapping, strategy model.StrategyType, overrides []model.RoleAttributeOverride) []model.AttributeMapping {
	matched := overridesForAttribute(def, overrides)

	// No override competes for this schema attribute: the default itself
	// applies, but only at its own strategy and only when enabled.
	if len(matched) == 0 {
		if def.Strategy == strategy && !def.Disabled {
			return []model.AttributeMapping{def}
		}
		return nil
	}

	atStrategy := filterStrategy(matched, strategy)
	if len(atStrategy) == 0 {
		return nil
	}

	winners := highestPriority(atStrategy)
	winner := winners[0]

	if strategy.IsMerge() {
		// Merge groups emit every contributor, each stamped with the
		// default's schema reference and inbound transform, and with the
		// winner's send flags shared across the group.
		out := make([]model.AttributeMapping, 0, len(atStrategy))
		for _, o := range atStrategy {
			m := o.AttributeMapping
			m.SchemaAttribute = def.SchemaAttribute
			m.TransformFromTarget = def.TransformFromTarget
			m.SendAlways = winner.SendAlways
			m.SendOnlyIfNotNull = winner.SendOnlyIfNotNull
			out = append(out, m)
		}
		return out
	}

	// An explicit "turn off the default" override at the top priority wins
	// over any lower-priority enabled override.
	for _, w := range winners {
		if w.DisableDefault {
			return nil
		}
	}

	m := winner.AttributeMapping
	m.SchemaAttribute = def.SchemaAttribute
	m.TransformFromTarget = def.TransformFromTarget
	return []model.AttributeMapping{m}
}

// overridesForAttribute selects overrides targeting the same underlying
// schema attribute, compared by schema identity rather than mapping id.
func overridesForAttribute(def model.AttributeMapping, overrides []model.RoleAttributeOverride) []model.RoleAttributeOverride {
	var out []model.RoleAttributeOverride
	for _, o := range overrides {
		if o.SchemaAttribute.ID == def.SchemaAttribute.ID {
			out = append(out, o)
		}
	}
	return out
}

func filterStrategy(overrides []model.RoleAttributeOverride, strategy model.StrategyType) []model.RoleAttributeOverride {
	var out []model.RoleAttributeOverride
	for _, o := range overrides {
		if o.Strategy == strategy {
			out = append(out, o)
		}
	}
	return out
}

// highestPriority returns the overrides at the maximum role priority, the
// first element being the winner after the role-name-descending tie break.
func highestPriority(overrides []model.RoleAttributeOverride) []model.RoleAttributeOverride {
	maxPriority := overrides[0].Role.Priority
	for _, o := range overrides[1:] {
		if o.Role.Priority > maxPriority {
			maxPriority = o.Role.Priority
		}
	}

	var top []model.RoleAttributeOverride
	for _, o := range overrides {
		if o.Role.Priority == maxPriority {
			top = append(top, o)
		}
	}

	sort.SliceStable(top, func(i, j int) bool {
		return top[i].Role.Name > top[j].Role.Name
	})
	return top
}

// ValidateStrategyConflicts checks the resolved list for merge attributes
// mixed with incompatible strategies on the same schema attribute. Mixing a
// merge strategy with anything but the same merge, CREATE, or WRITE_IF_NULL
// is a configuration error.
func ValidateStrategyConflicts(resolved []model.AttributeMapping) error {
	for _, m := range resolved {
		if !m.Strategy.IsMerge() {
			continue
		}
		for _, other := range resolved {
			if other.SchemaAttribute.ID != m.SchemaAttribute.ID {
				continue
			}
			if other.Strategy == m.Strategy ||
				other.Strategy == model.StrategyCreate ||
				other.Strategy == model.StrategyWriteIfNull {
				continue
			}
			return model.NewCodedError(model.CodeAttributeStrategyConflict, map[string]any{
				"attribute":     m.SchemaAttribute.Name,
				"strategy":      m.Strategy.String(),
				"otherStrategy": other.Strategy.String(),
			})
		}
	}
	return nil
}

// MergeGroups partitions the resolved list into merge groups keyed by schema
// attribute id, preserving contribution order, alongside the non-merge rest.
func MergeGroups(resolved []model.AttributeMapping) (groups map[string][]model.AttributeMapping, order []string, rest []model.AttributeMapping) {
	groups = make(map[string][]model.AttributeMapping)
	for _, m := range resolved {
		if m.Strategy.IsMerge() {
			id := m.SchemaAttribute.ID
			if _, ok := groups[id]; !ok {
				order = append(order, id)
			}
			groups[id] = append(groups[id], m)
			continue
		}
		rest = append(rest, m)
	}
	return groups, order, rest
}
