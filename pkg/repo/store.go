// Package repo is the persistence collaborator: a synchronous
// key-value-with-predicates store for configuration and log records. The
// engine is agnostic to the backend; etcd serves deployments, the memory
// backend serves tests and dev mode.
package repo

import (
	"context"
	"errors"
)

var (
	ErrNotFound       = errors.New("record not found")
	ErrAlreadyRunning = errors.New("run already in flight for this config")
)

// Record kinds, used as key prefixes by the backends.
const (
	KindSystems        = "systems"
	KindSystemMappings = "system-mappings"
	KindRoleOverrides  = "role-overrides"
	KindRoleAssigns    = "role-assignments"
	KindAccounts       = "accounts"
	KindSystemEntities = "system-entities"
	KindEntityLinks    = "entity-links"
	KindSyncConfigs    = "sync-configs"
	KindSyncLogs       = "sync-logs"
	KindSyncItemLogs   = "sync-item-logs"
	KindSyncActionLogs = "sync-action-logs"
	KindProcesses      = "workflow-processes"
)

// EntityKindPrefix scopes governed entities under their own kind.
func EntityKindPrefix(kind string) string {
	return "entities/" + kind
}

// Store is the raw backend contract. Values are JSON documents.
type Store interface {
	Get(ctx context.Context, kind, id string, out any) error
	Put(ctx context.Context, kind, id string, obj any) error
	Delete(ctx context.Context, kind, id string) error
	List(ctx context.Context, kind string) ([][]byte, error)
	Close() error
}

// RunGuard is the single-flight guard for synchronization runs: at most one
// run per config may be in flight, enforced by the backend rather than a
// read-then-write precondition check.
type RunGuard interface {
	// Acquire returns a release func, or ErrAlreadyRunning.
	Acquire(ctx context.Context, configID string) (func(), error)
}
