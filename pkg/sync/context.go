// Package sync implements the synchronization and reconciliation state
// machine: pulling external records, classifying each into a situation, and
// driving the configured remediation.
package sync

import (
	"time"

	"codeberg.org/idgov/idgov/pkg/connector"
	"codeberg.org/idgov/idgov/pkg/model"
	"github.com/gohugoio/hashstructure"
)

// RunContext is the immutable per-run snapshot. Per-item state never leaks
// into it; each record gets a fresh ItemContext instead.
type RunContext struct {
	Config      model.SyncConfig
	System      model.System
	Mapping     model.SystemMapping
	Correlation model.AttributeMapping
	Log         *model.SyncLog
}

// ItemContext is the freshly constructed state for one external record.
type ItemContext struct {
	Run            *RunContext
	Record         connector.ExternalRecord
	Classification *Classification
	ItemLog        *model.SyncItemLog
}

// Classification is the situation of one record relative to local state.
type Classification struct {
	Situation model.Situation
	Account   *model.Account
	Entity    *model.Entity
}

// NewItemContext builds the per-item state, including the record's content
// hash for the item trace.
func NewItemContext(run *RunContext, rec connector.ExternalRecord) *ItemContext {
	hash, _ := hashstructure.Hash(rec.Attributes, nil)
	return &ItemContext{
		Run:    run,
		Record: rec,
		ItemLog: &model.SyncItemLog{
			SyncLogID:  run.Log.ID,
			UID:        rec.UID,
			RecordHash: hash,
			Timestamp:  time.Now(),
		},
	}
}
