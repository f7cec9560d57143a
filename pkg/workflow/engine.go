// Package workflow holds the contract the engine consumes from the external
// workflow collaborator for human-in-the-loop situations.
package workflow

import (
	"context"
	"time"

	"codeberg.org/idgov/idgov/pkg/repo"
	"go.uber.org/zap"
)

type Variables map[string]any

// ProcessInstance is the started process as reported by the engine. Its
// completion state is advisory: the synchronization engine records the
// delegation and moves on either way.
type ProcessInstance struct {
	ID            string    `json:"id"`
	DefinitionKey string    `json:"definitionKey"`
	OwnerType     string    `json:"ownerType"`
	OwnerID       string    `json:"ownerId"`
	BusinessKey   string    `json:"businessKey"`
	Ended         bool      `json:"ended"`
	Variables     Variables `json:"variables,omitempty"`
	Started       time.Time `json:"started"`
}

type Engine interface {
	StartProcess(ctx context.Context, definitionKey, ownerType, ownerID, businessKey string, vars Variables) (*ProcessInstance, error)
}

// StoreEngine persists started processes to the store so delegated
// situations remain observable; an external BPMN host would consume them.
type StoreEngine struct {
	store  repo.Store
	logger *zap.Logger
}

func NewStoreEngine(store repo.Store, logger *zap.Logger) *StoreEngine {
	return &StoreEngine{store: store, logger: logger.Named("workflow")}
}

func (e *StoreEngine) StartProcess(ctx context.Context, definitionKey, ownerType, ownerID, businessKey string, vars Variables) (*ProcessInstance, error) {
	instance := &ProcessInstance{
		ID:            repo.NewID(),
		DefinitionKey: definitionKey,
		OwnerType:     ownerType,
		OwnerID:       ownerID,
		BusinessKey:   businessKey,
		Variables:     vars,
		Started:       time.Now(),
	}
	if err := e.store.Put(ctx, repo.KindProcesses, instance.ID, instance); err != nil {
		return nil, err
	}
	e.logger.Info("started workflow process",
		zap.String("definition", definitionKey),
		zap.String("process", instance.ID),
		zap.String("business_key", businessKey))
	return instance, nil
}
