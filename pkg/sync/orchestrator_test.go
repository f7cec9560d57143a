package sync

import (
	"context"
	"fmt"
	"testing"

	"codeberg.org/idgov/idgov/pkg/connector"
	"codeberg.org/idgov/idgov/pkg/entity"
	"codeberg.org/idgov/idgov/pkg/mapping"
	"codeberg.org/idgov/idgov/pkg/model"
	"codeberg.org/idgov/idgov/pkg/provisioning"
	"codeberg.org/idgov/idgov/pkg/repo"
	"codeberg.org/idgov/idgov/pkg/workflow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakeConnector replays a fixed record stream. The between hook fires before
// each record is delivered so tests can interleave external events, e.g. a
// cancel request.
type fakeConnector struct {
	records []connector.ExternalRecord
	between func(i int)
	filter  *connector.Filter
}

func (f *fakeConnector) Key() string { return "fake" }
func (f *fakeConnector) Initialize(context.Context, map[string]any) error { return nil }
func (f *fakeConnector) Validate(context.Context) error { return nil }
func (f *fakeConnector) Close() error { return nil }

func (f *fakeConnector) Execute(_ context.Context, op connector.Operation) (*connector.OperationResult, error) {
	return &connector.OperationResult{UID: op.UID, Executed: op.Type}, nil
}

func (f *fakeConnector) Search(_ context.Context, _ string, filter *connector.Filter, handler connector.ResultHandler) error {
	f.filter = filter
	return f.replay(handler)
}

func (f *fakeConnector) Synchronize(_ context.Context, _ string, _ string, handler connector.ResultHandler) error {
	return f.replay(handler)
}

func (f *fakeConnector) replay(handler connector.ResultHandler) error {
	for i, rec := range f.records {
		if f.between != nil {
			f.between(i)
		}
		if !handler(rec) {
			return nil
		}
	}
	return nil
}

// passthroughEvaluator stands in for the starlark runtime: transform calls
// echo their value, filter scripts (which carry no value variable) answer
// with an expression derived from the object class.
type passthroughEvaluator struct{}

func (passthroughEvaluator) Evaluate(_ context.Context, _ string, vars map[string]any) (any, error) {
	if v, ok := vars["value"]; ok {
		return v, nil
	}
	return fmt.Sprintf("(objectClass=%v)", vars["objectClass"]), nil
}

type harness struct {
	repos   *repo.Repositories
	orch    *Orchestrator
	conn    *fakeConnector
	config  *model.SyncConfig
	system  *model.System
	mapping *model.SystemMapping
}

func newHarness(t *testing.T, records []connector.ExternalRecord) *harness {
	t.Helper()
	ctx := context.Background()

	store := repo.NewMemoryStore()
	repos := repo.NewRepositories(store)
	logger := zap.NewNop()

	conn := &fakeConnector{records: records}
	registry := connector.NewRegistry()
	require.NoError(t, registry.Register("fake", func() connector.Connector { return conn }))
	pool := connector.NewPool(registry)

	values := mapping.NewValueResolver(passthroughEvaluator{})
	adapters := entity.NewRegistry(repos)
	provisioner := provisioning.NewExecutor(repos, pool, values, logger)
	engine := workflow.NewStoreEngine(store, logger)

	classifier := NewClassifier(repos, adapters, values)
	actions := NewActionExecutor(repos, adapters, provisioner, values, engine, logger)
	scanner := NewScanner(repos)
	orch := NewOrchestrator(repos, pool, classifier, actions, scanner, values, repo.NewMemoryRunGuard(), logger)

	system := &model.System{Name: "hr", ConnectorKey: "fake", ConnectorConfig: map[string]any{"url": "fake://"}}
	require.NoError(t, repos.Systems.Save(ctx, system))

	sysMapping := &model.SystemMapping{
		SystemID:    system.ID,
		EntityKind:  model.KindIdentity,
		Operation:   model.OperationSynchronization,
		ObjectClass: "user",
		Attributes: []model.AttributeMapping{
			{
				ID:              "m-uid",
				SchemaAttribute: model.SchemaAttribute{Name: "uid", ObjectClass: "user"},
				TargetProperty:  "username",
				Strategy:        model.StrategySet,
			},
			{
				ID:              "m-mail",
				SchemaAttribute: model.SchemaAttribute{Name: "mail", ObjectClass: "user"},
				TargetProperty:  "email",
				Strategy:        model.StrategySet,
			},
		},
	}
	require.NoError(t, repos.Mappings.Save(ctx, sysMapping))

	config := &model.SyncConfig{
		Name:                   "hr-sync",
		SystemMappingID:        sysMapping.ID,
		Enabled:                true,
		CorrelationAttributeID: "m-uid",
		Linked:                 model.SituationSetting{Action: model.ActionUpdateEntity},
		Unlinked:               model.SituationSetting{Action: model.ActionLink},
		MissingEntity:          model.SituationSetting{Action: model.ActionCreateEntity},
		MissingAccount:         model.SituationSetting{Action: model.ActionDeleteEntity},
	}
	require.NoError(t, repos.SyncConfigs.Save(ctx, config))

	return &harness{repos: repos, orch: orch, conn: conn, config: config, system: system, mapping: sysMapping}
}

func record(uid string, attrs map[string]any, token string) connector.ExternalRecord {
	if attrs == nil {
		attrs = map[string]any{}
	}
	attrs["uid"] = uid
	return connector.ExternalRecord{
		UID:         uid,
		Delta:       model.DeltaCreateOrUpdate,
		ObjectClass: "user",
		Attributes:  attrs,
		Token:       token,
	}
}

// seedLinked creates an entity, its account on the system, and the ownership
// link between them.
func (h *harness) seedLinked(t *testing.T, uid string) *model.Entity {
	t.Helper()
	ctx := context.Background()

	e := &model.Entity{Kind: model.KindIdentity, Properties: map[string]any{"username": uid}}
	require.NoError(t, h.repos.Entities.Save(ctx, e))
	account := &model.Account{UID: uid, SystemID: h.system.ID}
	require.NoError(t, h.repos.Accounts.Save(ctx, account))
	link := &model.EntityAccountLink{EntityID: e.ID, AccountID: account.ID, Ownership: true}
	require.NoError(t, h.repos.Links.Save(ctx, link))
	return e
}

func TestRunCreatesMissingEntities(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, []connector.ExternalRecord{
		record("u1", map[string]any{"mail": "u1@corp"}, "0001"),
		record("u2", map[string]any{"mail": "u2@corp"}, "0002"),
	})

	log, err := h.orch.Run(ctx, h.config.ID)
	require.NoError(t, err)
	assert.False(t, log.Running)
	assert.False(t, log.ContainsError)

	for _, uid := range []string{"u1", "u2"} {
		account, err := h.repos.Accounts.ByUID(ctx, h.system.ID, uid)
		require.NoError(t, err)
		require.NotNil(t, account, "account for %s", uid)

		links, err := h.repos.Links.ByAccount(ctx, account.ID)
		require.NoError(t, err)
		require.Len(t, links, 1)
		assert.True(t, links[0].Ownership)

		owner, err := h.repos.Entities.Get(ctx, model.KindIdentity, links[0].EntityID)
		require.NoError(t, err)
		name, _ := owner.Property("username")
		assert.Equal(t, uid, name)
	}

	actionLogs, err := h.repos.ActionLogs.ByLog(ctx, log.ID)
	require.NoError(t, err)
	require.Len(t, actionLogs, 1)
	assert.Equal(t, model.ActionCreateEntity, actionLogs[0].Action)
	assert.Equal(t, model.ResultSuccess, actionLogs[0].Result)
	assert.Equal(t, 2, actionLogs[0].Count)
}

func TestRunUpdatesLinkedEntity(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, []connector.ExternalRecord{
		record("u1", map[string]any{"mail": "new@corp"}, "0001"),
	})
	e := h.seedLinked(t, "u1")

	log, err := h.orch.Run(ctx, h.config.ID)
	require.NoError(t, err)
	assert.False(t, log.ContainsError)

	updated, err := h.repos.Entities.Get(ctx, model.KindIdentity, e.ID)
	require.NoError(t, err)
	mail, _ := updated.Property("email")
	assert.Equal(t, "new@corp", mail)

	items, err := h.repos.ItemLogs.ByLog(ctx, log.ID)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, model.SituationLinked, items[0].Situation)
	assert.Equal(t, model.ActionUpdateEntity, items[0].Action)
	assert.Equal(t, model.ResultSuccess, items[0].Result)
}

func TestRunLinksCorrelatedEntity(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, []connector.ExternalRecord{
		record("u1", nil, "0001"),
	})

	orphan := &model.Entity{Kind: model.KindIdentity, Properties: map[string]any{"username": "u1"}}
	require.NoError(t, h.repos.Entities.Save(ctx, orphan))

	log, err := h.orch.Run(ctx, h.config.ID)
	require.NoError(t, err)

	account, err := h.repos.Accounts.ByUID(ctx, h.system.ID, "u1")
	require.NoError(t, err)
	require.NotNil(t, account)
	links, err := h.repos.Links.ByAccount(ctx, account.ID)
	require.NoError(t, err)
	require.Len(t, links, 1)
	assert.Equal(t, orphan.ID, links[0].EntityID)

	items, err := h.repos.ItemLogs.ByLog(ctx, log.ID)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, model.SituationUnlinked, items[0].Situation)
}

func TestReconciliationFlagsUnobservedAccountOnce(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, []connector.ExternalRecord{
		record("u1", nil, "0001"),
		record("u2", nil, "0002"),
	})
	h.config.Reconciliation = true
	require.NoError(t, h.repos.SyncConfigs.Save(ctx, h.config))

	h.seedLinked(t, "u1")
	h.seedLinked(t, "u2")
	gone := h.seedLinked(t, "u3")

	log, err := h.orch.Run(ctx, h.config.ID)
	require.NoError(t, err)
	assert.False(t, log.ContainsError)

	items, err := h.repos.ItemLogs.ByLog(ctx, log.ID)
	require.NoError(t, err)

	var missing []model.SyncItemLog
	for _, item := range items {
		if item.Situation == model.SituationMissingAccount {
			missing = append(missing, item)
		}
	}
	require.Len(t, missing, 1)
	assert.Equal(t, "u3", missing[0].UID)
	assert.Equal(t, model.ActionDeleteEntity, missing[0].Action)

	_, err = h.repos.Entities.Get(ctx, model.KindIdentity, gone.ID)
	assert.ErrorIs(t, err, repo.ErrNotFound)
	account, err := h.repos.Accounts.ByUID(ctx, h.system.ID, "u3")
	require.NoError(t, err)
	assert.Nil(t, account)
}

func TestTokenAdvancesToMaximum(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, []connector.ExternalRecord{
		record("u1", nil, "0003"),
		record("u2", nil, "0001"),
		record("u3", nil, "0002"),
	})

	_, err := h.orch.Run(ctx, h.config.ID)
	require.NoError(t, err)

	config, err := h.repos.SyncConfigs.Get(ctx, h.config.ID)
	require.NoError(t, err)
	assert.Equal(t, "0003", config.Token)
}

func TestCancelStopsAtItemBoundary(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, []connector.ExternalRecord{
		record("u1", nil, "0001"),
		record("u2", nil, "0002"),
		record("u3", nil, "0003"),
	})
	h.conn.between = func(i int) {
		if i != 1 {
			return
		}
		logs, err := h.repos.SyncLogs.ByConfig(ctx, h.config.ID)
		require.NoError(t, err)
		require.Len(t, logs, 1)
		require.NoError(t, h.orch.Cancel(ctx, logs[0].ID))
	}

	log, err := h.orch.Run(ctx, h.config.ID)
	require.NoError(t, err)
	assert.False(t, log.Running)

	items, err := h.repos.ItemLogs.ByLog(ctx, log.ID)
	require.NoError(t, err)
	require.Len(t, items, 2)

	byUID := map[string]model.SyncItemLog{}
	for _, item := range items {
		byUID[item.UID] = item
	}
	assert.Equal(t, model.ResultSuccess, byUID["u1"].Result)
	assert.Equal(t, model.ResultWarning, byUID["u2"].Result)
	assert.Equal(t, "canceled", byUID["u2"].Message)
}

func TestRunRejectsDisabledConfig(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil)
	h.config.Enabled = false
	require.NoError(t, h.repos.SyncConfigs.Save(ctx, h.config))

	_, err := h.orch.Run(ctx, h.config.ID)
	assert.True(t, model.HasCode(err, model.CodeSyncConfigDisabled))
}

func TestRunRejectsDisabledSystem(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil)
	h.system.Disabled = true
	require.NoError(t, h.repos.Systems.Save(ctx, h.system))

	_, err := h.orch.Run(ctx, h.config.ID)
	assert.True(t, model.HasCode(err, model.CodeSystemDisabled))
}

func TestRunRejectsConcurrentRun(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil)

	guard := repo.NewMemoryRunGuard()
	h.orch.guard = guard
	release, err := guard.Acquire(ctx, h.config.ID)
	require.NoError(t, err)
	defer release()

	_, err = h.orch.Run(ctx, h.config.ID)
	assert.True(t, model.HasCode(err, model.CodeSyncAlreadyRunning))
}

func TestRunRejectsMissingCorrelationAttribute(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil)
	h.config.CorrelationAttributeID = "does-not-exist"
	require.NoError(t, h.repos.SyncConfigs.Save(ctx, h.config))

	_, err := h.orch.Run(ctx, h.config.ID)
	assert.True(t, model.HasCode(err, model.CodeCorrelationAttributeMissing))
}

func TestWorkflowDelegationRecordsWF(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, []connector.ExternalRecord{
		record("u1", nil, "0001"),
	})
	h.config.MissingEntity = model.SituationSetting{Action: model.ActionCreateEntity, WorkflowKey: "approve-new-identity"}
	require.NoError(t, h.repos.SyncConfigs.Save(ctx, h.config))

	log, err := h.orch.Run(ctx, h.config.ID)
	require.NoError(t, err)

	items, err := h.repos.ItemLogs.ByLog(ctx, log.ID)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, model.ResultWorkflow, items[0].Result)

	// Delegation means no inline mutation happened.
	account, err := h.repos.Accounts.ByUID(ctx, h.system.ID, "u1")
	require.NoError(t, err)
	assert.Nil(t, account)
}

func TestItemErrorContainedPerItem(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, []connector.ExternalRecord{
		record("dup", nil, "0001"),
		record("u2", nil, "0002"),
	})

	// Extended correlation with a duplicate value fails classification for
	// the first record; the second must still be processed.
	h.mapping.Attributes[0].Extended = true
	require.NoError(t, h.repos.Mappings.Save(ctx, h.mapping))
	for range 2 {
		e := &model.Entity{Kind: model.KindIdentity, Extended: map[string]any{"username": "dup"}}
		require.NoError(t, h.repos.Entities.Save(ctx, e))
	}

	log, err := h.orch.Run(ctx, h.config.ID)
	require.NoError(t, err)
	assert.True(t, log.ContainsError)

	items, err := h.repos.ItemLogs.ByLog(ctx, log.ID)
	require.NoError(t, err)
	require.Len(t, items, 2)

	byUID := map[string]model.SyncItemLog{}
	for _, item := range items {
		byUID[item.UID] = item
	}
	assert.Equal(t, model.ResultError, byUID["dup"].Result)
	assert.Contains(t, byUID["dup"].Message, string(model.CodeCorrelationTooManyResults))
	assert.Equal(t, model.ResultSuccess, byUID["u2"].Result)
}

func TestCustomFilterScriptEvaluated(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, []connector.ExternalRecord{
		record("u1", nil, "0001"),
	})
	h.config.CustomFilter = true
	h.config.CustomFilterScript = "def transform(objectClass, token):\n    return '(objectClass=' + objectClass + ')'"
	require.NoError(t, h.repos.SyncConfigs.Save(ctx, h.config))

	log, err := h.orch.Run(ctx, h.config.ID)
	require.NoError(t, err)
	assert.False(t, log.ContainsError)

	// The connector receives the evaluated expression, never the script.
	require.NotNil(t, h.conn.filter)
	assert.Equal(t, "(objectClass=user)", h.conn.filter.Expression)
}

func TestAdvanceToken(t *testing.T) {
	assert.Equal(t, "0002", AdvanceToken("0001", "0002"))
	assert.Equal(t, "0002", AdvanceToken("0002", "0001"))
	assert.Equal(t, "0002", AdvanceToken("0002", ""))
	assert.Equal(t, "0001", AdvanceToken("", "0001"))
}
