package model

import "time"

// Situation classifies one external record relative to local state.
type Situation string

const (
	SituationLinked         Situation = "LINKED"
	SituationUnlinked       Situation = "UNLINKED"
	SituationMissingEntity  Situation = "MISSING_ENTITY"
	SituationMissingAccount Situation = "MISSING_ACCOUNT"
)

// SituationAction is the configured remediation for one situation.
type SituationAction string

const (
	ActionIgnore            SituationAction = "IGNORE"
	ActionUnlink            SituationAction = "UNLINK"
	ActionUnlinkAndRemove   SituationAction = "UNLINK_AND_REMOVE_ROLE"
	ActionUpdateEntity      SituationAction = "UPDATE_ENTITY"
	ActionUpdateAccount     SituationAction = "UPDATE_ACCOUNT"
	ActionLink              SituationAction = "LINK"
	ActionLinkAndUpdate     SituationAction = "LINK_AND_UPDATE_ACCOUNT"
	ActionCreateEntity      SituationAction = "CREATE_ENTITY"
	ActionCreateAccount     SituationAction = "CREATE_ACCOUNT"
	ActionDeleteEntity      SituationAction = "DELETE_ENTITY"
)

// ResultType is the outcome class of one executed action.
type ResultType string

const (
	ResultSuccess  ResultType = "SUCCESS"
	ResultWarning  ResultType = "WARNING"
	ResultError    ResultType = "ERROR"
	ResultIgnore   ResultType = "IGNORE"
	ResultWorkflow ResultType = "WF"
)

// OperationType is the outbound provisioning intent. The connector may still
// flip CREATE/UPDATE based on target-side existence; dispatch tolerates that.
type OperationType string

const (
	OperationCreate OperationType = "CREATE"
	OperationUpdate OperationType = "UPDATE"
	OperationDelete OperationType = "DELETE"
)

// DeltaType is the change kind reported for one inbound external record.
type DeltaType string

const (
	DeltaCreate         DeltaType = "CREATE"
	DeltaUpdate         DeltaType = "UPDATE"
	DeltaCreateOrUpdate DeltaType = "CREATE_OR_UPDATE"
	DeltaDelete         DeltaType = "DELETE"
)

// FilterOperator applies when a sync run uses a configured filter attribute
// instead of connector-native incremental sync.
type FilterOperator string

const (
	FilterEquals      FilterOperator = "EQUALS"
	FilterContains    FilterOperator = "CONTAINS"
	FilterStartsWith  FilterOperator = "STARTS_WITH"
	FilterEndsWith    FilterOperator = "ENDS_WITH"
	FilterGreaterThan FilterOperator = "GREATER_THAN"
	FilterLessThan    FilterOperator = "LESS_THAN"
)

// SituationSetting pairs the inline action for one situation with an
// optional workflow definition key. A non-empty WorkflowKey delegates the
// situation to the workflow engine instead of running the action inline.
type SituationSetting struct {
	Action      SituationAction `json:"action"`
	WorkflowKey string          `json:"workflowKey,omitempty"`
}

// SyncConfig is the per-system synchronization configuration.
//
// Token is an opaque watermark compared as a raw string; monotonic
// advancement assumes token formats whose lexicographic order matches their
// true order (zero-padded counters, ISO timestamps).
type SyncConfig struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	SystemMappingID string `json:"systemMappingId"`
	Enabled         bool   `json:"enabled"`

	CorrelationAttributeID string `json:"correlationAttributeId"`
	Token                  string `json:"token,omitempty"`
	Reconciliation         bool   `json:"reconciliation,omitempty"`

	CustomFilter       bool           `json:"customFilter,omitempty"`
	FilterAttributeID  string         `json:"filterAttributeId,omitempty"`
	FilterOperator     FilterOperator `json:"filterOperator,omitempty"`
	FilterValue        string         `json:"filterValue,omitempty"`
	CustomFilterScript string         `json:"customFilterScript,omitempty"`

	Linked         SituationSetting `json:"linked"`
	Unlinked       SituationSetting `json:"unlinked"`
	MissingEntity  SituationSetting `json:"missingEntity"`
	MissingAccount SituationSetting `json:"missingAccount"`
}

// Setting returns the configured remediation for a situation. Unconfigured
// situations fall through to IGNORE; nothing is ever silently dropped.
func (c *SyncConfig) Setting(s Situation) SituationSetting {
	var st SituationSetting
	switch s {
	case SituationLinked:
		st = c.Linked
	case SituationUnlinked:
		st = c.Unlinked
	case SituationMissingEntity:
		st = c.MissingEntity
	case SituationMissingAccount:
		st = c.MissingAccount
	}
	if st.Action == "" {
		st.Action = ActionIgnore
	}
	return st
}

// SyncLog is one synchronization run.
type SyncLog struct {
	ID            string    `json:"id"`
	SyncConfigID  string    `json:"syncConfigId"`
	Running       bool      `json:"running"`
	Token         string    `json:"token,omitempty"`
	Started       time.Time `json:"started"`
	Ended         time.Time `json:"ended,omitzero"`
	Log           string    `json:"log,omitempty"`
	ContainsError bool      `json:"containsError,omitempty"`
}

// SyncItemLog traces one external record through a run.
type SyncItemLog struct {
	ID          string     `json:"id"`
	SyncLogID   string     `json:"syncLogId"`
	UID         string     `json:"uid"`
	DisplayName string     `json:"displayName,omitempty"`
	Situation   Situation  `json:"situation,omitempty"`
	Action      SituationAction `json:"action,omitempty"`
	Result      ResultType `json:"result,omitempty"`
	Message     string     `json:"message,omitempty"`
	RecordHash  uint64     `json:"recordHash,omitempty"`
	Timestamp   time.Time  `json:"timestamp"`
}

// ActionKey aggregates action-log counters per (action, result).
type ActionKey struct {
	Action SituationAction `json:"action"`
	Result ResultType      `json:"result"`
}

// SyncActionLog is one lazily created per-run counter bucket.
type SyncActionLog struct {
	ID        string          `json:"id"`
	SyncLogID string          `json:"syncLogId"`
	Action    SituationAction `json:"action"`
	Result    ResultType      `json:"result"`
	Count     int             `json:"count"`
}
