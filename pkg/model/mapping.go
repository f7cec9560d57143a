package model

import "fmt"

// StrategyType is the conflict-resolution policy of an attribute mapping.
// Declaration order matters: the resolution engine iterates strategies in
// this order, so output ordering is deterministic.
type StrategyType int

const (
	StrategyCreate StrategyType = iota
	StrategySet
	StrategyWriteIfNull
	StrategyMerge
	StrategyAuthoritativeMerge
)

// Strategies returns all strategy types in declaration order.
func Strategies() []StrategyType {
	return []StrategyType{
		StrategyCreate,
		StrategySet,
		StrategyWriteIfNull,
		StrategyMerge,
		StrategyAuthoritativeMerge,
	}
}

func (s StrategyType) String() string {
	switch s {
	case StrategyCreate:
		return "CREATE"
	case StrategySet:
		return "SET"
	case StrategyWriteIfNull:
		return "WRITE_IF_NULL"
	case StrategyMerge:
		return "MERGE"
	case StrategyAuthoritativeMerge:
		return "AUTHORITATIVE_MERGE"
	default:
		return "UNKNOWN"
	}
}

// ParseStrategy maps the wire name of a strategy back to its type.
func ParseStrategy(name string) (StrategyType, error) {
	for _, s := range Strategies() {
		if s.String() == name {
			return s, nil
		}
	}
	return 0, fmt.Errorf("unknown strategy %q", name)
}

// IsMerge reports whether the strategy aggregates contributions rather than
// picking a single winner.
func (s StrategyType) IsMerge() bool {
	return s == StrategyMerge || s == StrategyAuthoritativeMerge
}

// SchemaAttribute is a target-system field discovered from the connector's
// object-class schema.
type SchemaAttribute struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	ObjectClass  string `json:"objectClass"`
	Multivalued  bool   `json:"multivalued"`
	Updateable   bool   `json:"updateable"`
	Confidential bool   `json:"confidential,omitempty"`
}

// AttributeMapping maps one schema attribute to a local entity property.
type AttributeMapping struct {
	ID              string          `json:"id"`
	SchemaAttribute SchemaAttribute `json:"schemaAttribute"`
	TargetProperty  string          `json:"targetProperty"`
	Strategy        StrategyType    `json:"strategy"`

	UID            bool `json:"uid,omitempty"`
	Disabled       bool `json:"disabled,omitempty"`
	DisableDefault bool `json:"disableDefault,omitempty"` // meaningful on overrides only
	Confidential   bool `json:"confidential,omitempty"`
	Extended       bool `json:"extended,omitempty"` // stored outside the primary record
	EntityField    bool `json:"entityField,omitempty"`

	SendAlways        bool `json:"sendAlways,omitempty"`
	SendOnlyIfNotNull bool `json:"sendOnlyIfNotNull,omitempty"`

	TransformToTarget   string `json:"transformToTarget,omitempty"`
	TransformFromTarget string `json:"transformFromTarget,omitempty"`
}

// RoleAttributeOverride is a role-scoped mapping competing with the default
// system mapping for the same schema attribute.
type RoleAttributeOverride struct {
	AttributeMapping

	Role         RoleRef `json:"role"`
	SystemID     string  `json:"systemId"`
	RoleSystemID string  `json:"roleSystemId"`
}

// OperationKind classifies which direction a system mapping serves.
type OperationKind string

const (
	OperationProvisioning    OperationKind = "PROVISIONING"
	OperationSynchronization OperationKind = "SYNCHRONIZATION"
)

// SystemMapping owns the default attribute mappings for one
// (system, entityKind, operation). Exactly one must exist per triple;
// otherwise mapping is considered absent.
type SystemMapping struct {
	ID          string             `json:"id"`
	SystemID    string             `json:"systemId"`
	EntityKind  EntityKind         `json:"entityKind"`
	Operation   OperationKind      `json:"operation"`
	ObjectClass string             `json:"objectClass"`
	Attributes  []AttributeMapping `json:"attributes"`
}

// UIDAttribute returns the default mapping flagged as UID, if any.
func (m *SystemMapping) UIDAttribute() (AttributeMapping, bool) {
	for _, a := range m.Attributes {
		if a.UID {
			return a, true
		}
	}
	return AttributeMapping{}, false
}

// System is one external target reached through a connector.
type System struct {
	ID              string         `json:"id"`
	Name            string         `json:"name"`
	Disabled        bool           `json:"disabled,omitempty"`
	ReadOnly        bool           `json:"readOnly,omitempty"`
	ConnectorKey    string         `json:"connectorKey"`
	ConnectorConfig map[string]any `json:"connectorConfig,omitempty"`
}
