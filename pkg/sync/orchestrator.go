package sync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"codeberg.org/idgov/idgov/pkg/connector"
	"codeberg.org/idgov/idgov/pkg/mapping"
	"codeberg.org/idgov/idgov/pkg/model"
	"codeberg.org/idgov/idgov/pkg/repo"
	"go.uber.org/zap"
)

// Orchestrator drives one synchronization run end to end: preconditions,
// record stream, per-item classify/act, reconciliation, and the final
// watermark update.
type Orchestrator struct {
	repos      *repo.Repositories
	pool       *connector.Pool
	classifier *Classifier
	actions    *ActionExecutor
	scanner    *Scanner
	values     *mapping.ValueResolver
	guard      repo.RunGuard
	logger     *zap.Logger
}

func NewOrchestrator(
	repos *repo.Repositories,
	pool *connector.Pool,
	classifier *Classifier,
	actions *ActionExecutor,
	scanner *Scanner,
	values *mapping.ValueResolver,
	guard repo.RunGuard,
	logger *zap.Logger,
) *Orchestrator {
	return &Orchestrator{
		repos:      repos,
		pool:       pool,
		classifier: classifier,
		actions:    actions,
		scanner:    scanner,
		values:     values,
		guard:      guard,
		logger:     logger.Named("sync"),
	}
}

// Run executes one synchronization run for the config. Precondition failures
// return before any SyncLog exists; once the run is open, item failures are
// contained per item and the run always closes its log.
func (o *Orchestrator) Run(ctx context.Context, configID string) (*model.SyncLog, error) {
	config, err := o.repos.SyncConfigs.Get(ctx, configID)
	if err != nil {
		return nil, fmt.Errorf("load sync config %s: %w", configID, err)
	}
	if !config.Enabled {
		return nil, model.NewCodedError(model.CodeSyncConfigDisabled, map[string]any{"config": config.Name})
	}

	release, err := o.guard.Acquire(ctx, config.ID)
	if err != nil {
		if errors.Is(err, repo.ErrAlreadyRunning) {
			return nil, model.NewCodedError(model.CodeSyncAlreadyRunning, map[string]any{"config": config.Name})
		}
		return nil, err
	}
	defer release()

	run, err := o.prepare(ctx, config)
	if err != nil {
		return nil, err
	}

	conn, err := o.pool.For(ctx, &run.System)
	if err != nil {
		return nil, err
	}

	log := &model.SyncLog{
		SyncConfigID: config.ID,
		Running:      true,
		Token:        config.Token,
		Started:      time.Now(),
	}
	if err := o.repos.SyncLogs.Save(ctx, log); err != nil {
		return nil, err
	}
	run.Log = log

	rl := newRunLogger(o.repos, log, o.logger)
	rl.Printf("run started for config %s on system %s", config.Name, run.System.Name)

	token, streamErr := o.stream(ctx, run, conn, rl)

	if err := rl.Close(ctx, token); err != nil {
		o.logger.Error("close run log", zap.Error(err), zap.String("syncLog", log.ID))
	}

	if streamErr == nil && token != config.Token {
		config.Token = token
		if err := o.repos.SyncConfigs.Save(ctx, config); err != nil {
			return log, fmt.Errorf("persist token: %w", err)
		}
	}
	return log, streamErr
}

// Cancel requests cooperative cancellation of an open run by clearing its
// running flag; the run loop observes the flag at the next item boundary.
func (o *Orchestrator) Cancel(ctx context.Context, syncLogID string) error {
	log, err := o.repos.SyncLogs.Get(ctx, syncLogID)
	if err != nil {
		return err
	}
	if !log.Running {
		return nil
	}
	log.Running = false
	return o.repos.SyncLogs.Save(ctx, log)
}

// prepare snapshots the run configuration and fails fast on the structural
// preconditions.
func (o *Orchestrator) prepare(ctx context.Context, config *model.SyncConfig) (*RunContext, error) {
	sysMapping, err := o.repos.Mappings.Get(ctx, config.SystemMappingID)
	if err != nil {
		return nil, model.WrapCodedError(model.CodeSystemMappingNotFound, map[string]any{
			"config":  config.Name,
			"mapping": config.SystemMappingID,
		}, err)
	}

	system, err := o.repos.Systems.Get(ctx, sysMapping.SystemID)
	if err != nil {
		return nil, fmt.Errorf("load system %s: %w", sysMapping.SystemID, err)
	}
	if system.Disabled {
		return nil, model.NewCodedError(model.CodeSystemDisabled, map[string]any{"system": system.Name})
	}

	correlation, ok := attributeByID(sysMapping, config.CorrelationAttributeID)
	if !ok {
		return nil, model.NewCodedError(model.CodeCorrelationAttributeMissing, map[string]any{
			"config":    config.Name,
			"attribute": config.CorrelationAttributeID,
		})
	}

	return &RunContext{
		Config:      *config,
		System:      *system,
		Mapping:     *sysMapping,
		Correlation: correlation,
	}, nil
}

// stream pulls the record stream, processes every item and runs the
// reconciliation pass. It returns the advanced token.
func (o *Orchestrator) stream(ctx context.Context, run *RunContext, conn connector.Connector, rl *runLogger) (string, error) {
	token := run.Config.Token
	observed := make(map[string]bool)
	canceled := false

	var itemErr error
	handler := func(rec connector.ExternalRecord) bool {
		if !o.stillRunning(ctx, run.Log.ID) {
			canceled = true
			o.markCanceled(ctx, run, rec, rl)
			return false
		}
		observed[rec.UID] = true
		token = AdvanceToken(token, rec.Token)
		if err := o.processItem(ctx, run, rec, rl); err != nil {
			itemErr = err
			return false
		}
		return true
	}

	var err error
	if run.Config.CustomFilter {
		filter, ferr := o.buildFilter(ctx, run)
		if ferr != nil {
			return token, ferr
		}
		err = conn.Search(ctx, run.Mapping.ObjectClass, filter, handler)
	} else {
		err = conn.Synchronize(ctx, run.Mapping.ObjectClass, run.Config.Token, handler)
	}
	if err != nil {
		rl.Printf("record stream failed: %v", err)
		run.Log.ContainsError = true
		return token, err
	}
	if itemErr != nil {
		rl.Printf("run aborted: %v", itemErr)
		run.Log.ContainsError = true
		return token, itemErr
	}
	if canceled {
		rl.Printf("run canceled, %d records processed", len(observed))
		return token, nil
	}

	if run.Config.Reconciliation {
		if err := o.reconcile(ctx, run, observed, rl); err != nil {
			rl.Printf("reconciliation failed: %v", err)
			run.Log.ContainsError = true
			return token, err
		}
	}

	rl.Printf("run finished, %d records processed", len(observed))
	return token, nil
}

// processItem is the per-item error boundary. Classification or action
// failures are recorded on the item and never abort the run.
func (o *Orchestrator) processItem(ctx context.Context, run *RunContext, rec connector.ExternalRecord, rl *runLogger) error {
	item := NewItemContext(run, rec)

	cls, err := o.classifier.Classify(ctx, run, rec)
	if err != nil {
		item.ItemLog.Result = model.ResultError
		item.ItemLog.Message = fmt.Sprintf("classification failed: %v", err)
		return rl.Item(ctx, item.ItemLog)
	}
	item.Classification = cls

	if err := o.actions.Execute(ctx, item); err != nil {
		item.ItemLog.Result = model.ResultError
		item.ItemLog.Message = fmt.Sprintf("action failed: %v", err)
	}
	return rl.Item(ctx, item.ItemLog)
}

// reconcile feeds synthesized DELETE records for locally known but
// unobserved uids through the same per-item path.
func (o *Orchestrator) reconcile(ctx context.Context, run *RunContext, observed map[string]bool, rl *runLogger) error {
	missing, err := o.scanner.Missing(ctx, run, observed)
	if err != nil {
		return err
	}
	if len(missing) > 0 {
		rl.Printf("reconciliation found %d unobserved accounts", len(missing))
	}
	for _, rec := range missing {
		if !o.stillRunning(ctx, run.Log.ID) {
			o.markCanceled(ctx, run, rec, rl)
			return nil
		}
		if err := o.processItem(ctx, run, rec, rl); err != nil {
			return err
		}
	}
	return nil
}

// stillRunning re-reads the run's flag from the store so a cancel issued on
// any node takes effect at the next item boundary.
func (o *Orchestrator) stillRunning(ctx context.Context, logID string) bool {
	log, err := o.repos.SyncLogs.Get(ctx, logID)
	if err != nil {
		return false
	}
	return log.Running
}

// markCanceled records the item the cancellation landed on as a warning, so
// the trace shows where the run stopped.
func (o *Orchestrator) markCanceled(ctx context.Context, run *RunContext, rec connector.ExternalRecord, rl *runLogger) {
	item := NewItemContext(run, rec)
	item.ItemLog.Result = model.ResultWarning
	item.ItemLog.Message = "canceled"
	if err := rl.Item(ctx, item.ItemLog); err != nil {
		o.logger.Error("record canceled item", zap.Error(err))
	}
}

// buildFilter translates the configured custom filter. A filter attribute is
// resolved to its schema attribute name; a custom filter script is evaluated
// into the connector-native expression.
func (o *Orchestrator) buildFilter(ctx context.Context, run *RunContext) (*connector.Filter, error) {
	config := &run.Config
	expression, err := o.values.FilterExpression(ctx, config.CustomFilterScript, run.Mapping.ObjectClass, config.Token)
	if err != nil {
		return nil, fmt.Errorf("evaluate custom filter for %s: %w", config.Name, err)
	}

	filter := &connector.Filter{Expression: expression}
	if config.FilterAttributeID != "" {
		attr, ok := attributeByID(&run.Mapping, config.FilterAttributeID)
		if !ok {
			return nil, fmt.Errorf("filter attribute %s not in mapping %s", config.FilterAttributeID, run.Mapping.ID)
		}
		filter.Attribute = attr.SchemaAttribute.Name
		filter.Operator = config.FilterOperator
		filter.Value = config.FilterValue
	}
	return filter, nil
}

func attributeByID(m *model.SystemMapping, id string) (model.AttributeMapping, bool) {
	if id == "" {
		return model.AttributeMapping{}, false
	}
	for _, a := range m.Attributes {
		if a.ID == id {
			return a, true
		}
	}
	return model.AttributeMapping{}, false
}
