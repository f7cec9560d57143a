package model

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrorCode identifies a structured engine error for diagnostics.
type ErrorCode string

const (
	CodeAttributeStrategyConflict    ErrorCode = "ATTRIBUTE_STRATEGY_CONFLICT"
	CodeUIDNotString                 ErrorCode = "UID_NOT_STRING"
	CodeMergeAttributeNotMultivalued ErrorCode = "MERGE_ATTRIBUTE_NOT_MULTIVALUED"
	CodeCorrelationTooManyResults    ErrorCode = "CORRELATION_TOO_MANY_RESULTS"
	CodeCorrelationBadValue          ErrorCode = "CORRELATION_BAD_VALUE"
	CodeSchemaAttributeNotUpdateable ErrorCode = "SCHEMA_ATTRIBUTE_NOT_UPDATEABLE"
	CodeSystemMappingNotFound        ErrorCode = "SYSTEM_MAPPING_NOT_FOUND"
	CodeConnectorKeyMissing          ErrorCode = "CONNECTOR_KEY_MISSING"
	CodeConnectorConfigMissing       ErrorCode = "CONNECTOR_CONFIG_MISSING"
	CodeUIDAttributeMissing          ErrorCode = "UID_ATTRIBUTE_MISSING"
	CodeCorrelationAttributeMissing  ErrorCode = "CORRELATION_ATTRIBUTE_MISSING"
	CodeSyncAlreadyRunning           ErrorCode = "SYNC_ALREADY_RUNNING"
	CodeSyncConfigDisabled           ErrorCode = "SYNC_CONFIG_DISABLED"
	CodeSystemDisabled               ErrorCode = "SYSTEM_DISABLED"
)

// CodedError carries an error code and a parameter map so configuration and
// data errors surface with enough context to diagnose without a debugger.
type CodedError struct {
	Code   ErrorCode
	Params map[string]any
	cause  error
}

func NewCodedError(code ErrorCode, params map[string]any) *CodedError {
	return &CodedError{Code: code, Params: params}
}

func WrapCodedError(code ErrorCode, params map[string]any, cause error) *CodedError {
	return &CodedError{Code: code, Params: params, cause: cause}
}

func (e *CodedError) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Code))
	if len(e.Params) > 0 {
		keys := make([]string, 0, len(e.Params))
		for k := range e.Params {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, 0, len(keys))
		for _, k := range keys {
			parts = append(parts, fmt.Sprintf("%s=%v", k, e.Params[k]))
		}
		b.WriteString(" (")
		b.WriteString(strings.Join(parts, ", "))
		b.WriteString(")")
	}
	if e.cause != nil {
		b.WriteString(": ")
		b.WriteString(e.cause.Error())
	}
	return b.String()
}

func (e *CodedError) Unwrap() error { return e.cause }

// HasCode reports whether err or anything it wraps carries the given code.
func HasCode(err error, code ErrorCode) bool {
	var ce *CodedError
	if errors.As(err, &ce) {
		return ce.Code == code
	}
	return false
}
