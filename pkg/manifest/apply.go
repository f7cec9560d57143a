package manifest

import (
	"codeberg.org/idgov/idgov/pkg/model"
)

// ToSystem converts a parsed System document. The document name becomes the
// record id so a re-apply overwrites in place.
func ToSystem(m *System) *model.System {
	return &model.System{
		ID:              m.Name,
		Name:            m.Name,
		Disabled:        m.Spec.Disabled,
		ReadOnly:        m.Spec.ReadOnly,
		ConnectorKey:    m.Spec.ConnectorKey,
		ConnectorConfig: m.Spec.ConnectorConfig,
	}
}

func ToSystemMapping(m *SystemMapping) (*model.SystemMapping, error) {
	attrs := make([]model.AttributeMapping, 0, len(m.Spec.Attributes))
	for _, a := range m.Spec.Attributes {
		strategy := model.StrategySet
		if a.Strategy != "" {
			parsed, err := model.ParseStrategy(a.Strategy)
			if err != nil {
				return nil, err
			}
			strategy = parsed
		}
		attrs = append(attrs, model.AttributeMapping{
			ID: a.ID,
			SchemaAttribute: model.SchemaAttribute{
				ID:           a.ID,
				Name:         a.Name,
				ObjectClass:  m.Spec.ObjectClass,
				Multivalued:  a.Multivalued,
				Updateable:   a.Updateable,
				Confidential: a.Confidential,
			},
			TargetProperty:      a.TargetProperty,
			Strategy:            strategy,
			UID:                 a.UID,
			Disabled:            a.Disabled,
			Confidential:        a.Confidential,
			Extended:            a.Extended,
			SendAlways:          a.SendAlways,
			SendOnlyIfNotNull:   a.SendOnlyIfNotNull,
			TransformToTarget:   a.TransformToTarget,
			TransformFromTarget: a.TransformFromTarget,
		})
	}

	return &model.SystemMapping{
		ID:          m.Name,
		SystemID:    m.Spec.SystemRef,
		EntityKind:  model.EntityKind(m.Spec.EntityKind),
		Operation:   model.OperationKind(m.Spec.Operation),
		ObjectClass: m.Spec.ObjectClass,
		Attributes:  attrs,
	}, nil
}

func ToSyncConfig(m *SyncConfig) *model.SyncConfig {
	return &model.SyncConfig{
		ID:                     m.Name,
		Name:                   m.Name,
		SystemMappingID:        m.Spec.MappingRef,
		Enabled:                m.Spec.Enabled,
		CorrelationAttributeID: m.Spec.CorrelationAttributeID,
		Reconciliation:         m.Spec.Reconciliation,
		CustomFilter:           m.Spec.CustomFilter,
		FilterAttributeID:      m.Spec.FilterAttributeID,
		FilterOperator:         model.FilterOperator(m.Spec.FilterOperator),
		FilterValue:            m.Spec.FilterValue,
		Linked:                 toSituation(m.Spec.Linked),
		Unlinked:               toSituation(m.Spec.Unlinked),
		MissingEntity:          toSituation(m.Spec.MissingEntity),
		MissingAccount:         toSituation(m.Spec.MissingAccount),
	}
}

func toSituation(s SituationSpec) model.SituationSetting {
	return model.SituationSetting{
		Action:      model.SituationAction(s.Action),
		WorkflowKey: s.WorkflowKey,
	}
}
