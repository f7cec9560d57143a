// Package manifest parses the declarative YAML documents the CLI applies:
// systems, system mappings and sync configs. Document names double as record
// ids so references stay stable across re-applies.
package manifest

import (
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

const SupportedAPIVersion = "idgov.io/v1"

type SystemSpec struct {
	ConnectorKey    string         `json:"connectorKey"`
	ConnectorConfig map[string]any `json:"connectorConfig"`
	ReadOnly        bool           `json:"readOnly"`
	Disabled        bool           `json:"disabled"`
}

type System struct {
	metav1.TypeMeta   `json:",inline"`
	metav1.ObjectMeta `json:"metadata"`
	Spec              SystemSpec `json:"spec"`
}

type AttributeSpec struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	TargetProperty string `json:"targetProperty"`
	Strategy       string `json:"strategy"`

	UID               bool `json:"uid"`
	Multivalued       bool `json:"multivalued"`
	Updateable        bool `json:"updateable"`
	Confidential      bool `json:"confidential"`
	Extended          bool `json:"extended"`
	Disabled          bool `json:"disabled"`
	SendAlways        bool `json:"sendAlways"`
	SendOnlyIfNotNull bool `json:"sendOnlyIfNotNull"`

	TransformToTarget   string `json:"transformToTarget"`
	TransformFromTarget string `json:"transformFromTarget"`
}

type SystemMappingSpec struct {
	SystemRef   string          `json:"systemRef"`
	EntityKind  string          `json:"entityKind"`
	Operation   string          `json:"operation"`
	ObjectClass string          `json:"objectClass"`
	Attributes  []AttributeSpec `json:"attributes"`
}

type SystemMapping struct {
	metav1.TypeMeta   `json:",inline"`
	metav1.ObjectMeta `json:"metadata"`
	Spec              SystemMappingSpec `json:"spec"`
}

type SituationSpec struct {
	Action      string `json:"action"`
	WorkflowKey string `json:"workflowKey"`
}

type SyncConfigSpec struct {
	MappingRef             string `json:"mappingRef"`
	Enabled                bool   `json:"enabled"`
	CorrelationAttributeID string `json:"correlationAttributeId"`
	Reconciliation         bool   `json:"reconciliation"`

	CustomFilter      bool   `json:"customFilter"`
	FilterAttributeID string `json:"filterAttributeId"`
	FilterOperator    string `json:"filterOperator"`
	FilterValue       string `json:"filterValue"`

	Linked         SituationSpec `json:"linked"`
	Unlinked       SituationSpec `json:"unlinked"`
	MissingEntity  SituationSpec `json:"missingEntity"`
	MissingAccount SituationSpec `json:"missingAccount"`
}

type SyncConfig struct {
	metav1.TypeMeta   `json:",inline"`
	metav1.ObjectMeta `json:"metadata"`
	Spec              SyncConfigSpec `json:"spec"`
}
