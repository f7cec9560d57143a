// Package connector defines the dispatch contract for the pluggable
// transports that talk to external target systems, plus the drivers shipped
// with the engine.
package connector

import (
	"context"

	"codeberg.org/idgov/idgov/pkg/model"
)

// ExternalRecord is one record as reported by a target system.
type ExternalRecord struct {
	UID         string
	Delta       model.DeltaType
	ObjectClass string
	Attributes  map[string]any
	// Token is the record's incremental-sync watermark, opaque to the
	// engine and meaningful only to the connector.
	Token string
}

// AttrKey disambiguates multiple mappings pushing to the same schema
// attribute name within one outbound operation.
type AttrKey struct {
	Name      string
	MappingID string
}

// Operation is one outbound provisioning dispatch.
type Operation struct {
	Type        model.OperationType
	SystemID    string
	ObjectClass string
	UID         string
	Attributes  map[AttrKey]any
}

// OperationResult reports what the connector actually did; the connector may
// flip CREATE/UPDATE based on target-side existence.
type OperationResult struct {
	UID      string
	Executed model.OperationType
}

// Filter narrows a Search call. Either Attribute/Operator/Value or a raw
// connector-native Expression is set.
type Filter struct {
	Attribute  string
	Operator   model.FilterOperator
	Value      string
	Expression string
}

// ResultHandler consumes one inbound record; returning false stops the
// stream early.
type ResultHandler func(rec ExternalRecord) bool

// Connector is one transport to one target system. Handlers are invoked
// synchronously and in order; the engine relies on that for token
// advancement and side-effect ordering.
type Connector interface {
	Key() string
	Initialize(ctx context.Context, config map[string]any) error
	Validate(ctx context.Context) error

	Execute(ctx context.Context, op Operation) (*OperationResult, error)
	Search(ctx context.Context, objectClass string, filter *Filter, handler ResultHandler) error
	Synchronize(ctx context.Context, objectClass, token string, handler ResultHandler) error

	Close() error
}
