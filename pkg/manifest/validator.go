package manifest

import (
	"fmt"

	"codeberg.org/idgov/idgov/pkg/model"
)

type Validator struct{}

func NewValidator() *Validator {
	return &Validator{}
}

func (v *Validator) Validate(manifest any) error {
	switch m := manifest.(type) {
	case *System:
		return v.validateSystem(m)
	case *SystemMapping:
		return v.validateSystemMapping(m)
	case *SyncConfig:
		return v.validateSyncConfig(m)
	default:
		return fmt.Errorf("unknown manifest type: %T", manifest)
	}
}

func (v *Validator) validateSystem(system *System) error {
	if err := v.validateAPIVersion(system.APIVersion); err != nil {
		return err
	}

	if system.Kind != "System" {
		return fmt.Errorf("kind must be System, got: %s", system.Kind)
	}

	if system.Name == "" {
		return fmt.Errorf("metadata.name is required")
	}

	if system.Spec.ConnectorKey == "" {
		return fmt.Errorf("spec.connectorKey is required")
	}

	return nil
}

func (v *Validator) validateSystemMapping(mapping *SystemMapping) error {
	if err := v.validateAPIVersion(mapping.APIVersion); err != nil {
		return err
	}

	if mapping.Kind != "SystemMapping" {
		return fmt.Errorf("kind must be SystemMapping, got: %s", mapping.Kind)
	}

	if mapping.Name == "" {
		return fmt.Errorf("metadata.name is required")
	}

	if mapping.Spec.SystemRef == "" {
		return fmt.Errorf("spec.systemRef is required")
	}

	if !validEntityKind(mapping.Spec.EntityKind) {
		return fmt.Errorf("unknown entityKind: %s", mapping.Spec.EntityKind)
	}

	switch model.OperationKind(mapping.Spec.Operation) {
	case model.OperationProvisioning, model.OperationSynchronization:
	default:
		return fmt.Errorf("unknown operation: %s", mapping.Spec.Operation)
	}

	uidCount := 0
	for i, attr := range mapping.Spec.Attributes {
		if err := v.validateAttribute(&attr); err != nil {
			return fmt.Errorf("attribute[%d] invalid: %w", i, err)
		}
		if attr.UID {
			uidCount++
		}
	}
	if uidCount > 1 {
		return fmt.Errorf("at most one attribute may be flagged uid, got %d", uidCount)
	}

	return nil
}

func (v *Validator) validateAttribute(attr *AttributeSpec) error {
	if attr.ID == "" {
		return fmt.Errorf("attribute id is required")
	}

	if attr.Name == "" {
		return fmt.Errorf("attribute name is required")
	}

	if attr.Strategy != "" {
		if _, err := model.ParseStrategy(attr.Strategy); err != nil {
			return err
		}
	}

	return nil
}

func (v *Validator) validateSyncConfig(config *SyncConfig) error {
	if err := v.validateAPIVersion(config.APIVersion); err != nil {
		return err
	}

	if config.Kind != "SyncConfig" {
		return fmt.Errorf("kind must be SyncConfig, got: %s", config.Kind)
	}

	if config.Name == "" {
		return fmt.Errorf("metadata.name is required")
	}

	if config.Spec.MappingRef == "" {
		return fmt.Errorf("spec.mappingRef is required")
	}

	if config.Spec.CorrelationAttributeID == "" {
		return fmt.Errorf("spec.correlationAttributeId is required")
	}

	for _, s := range []SituationSpec{
		config.Spec.Linked, config.Spec.Unlinked,
		config.Spec.MissingEntity, config.Spec.MissingAccount,
	} {
		if s.Action != "" && !validAction(s.Action) {
			return fmt.Errorf("unknown situation action: %s", s.Action)
		}
	}

	return nil
}

func (v *Validator) validateAPIVersion(apiVersion string) error {
	if apiVersion == "" {
		return fmt.Errorf("apiVersion is required")
	}

	if apiVersion != SupportedAPIVersion {
		return fmt.Errorf(
			"unsupported apiVersion: %s (supported: %s)",
			apiVersion,
			SupportedAPIVersion,
		)
	}

	return nil
}

func validEntityKind(kind string) bool {
	for _, k := range model.EntityKinds() {
		if string(k) == kind {
			return true
		}
	}
	return false
}

func validAction(action string) bool {
	switch model.SituationAction(action) {
	case model.ActionIgnore, model.ActionUnlink, model.ActionUnlinkAndRemove,
		model.ActionUpdateEntity, model.ActionUpdateAccount,
		model.ActionLink, model.ActionLinkAndUpdate,
		model.ActionCreateEntity, model.ActionCreateAccount,
		model.ActionDeleteEntity:
		return true
	default:
		return false
	}
}
