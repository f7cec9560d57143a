package provisioning

import (
	"context"
	"testing"

	"codeberg.org/idgov/idgov/pkg/connector"
	"codeberg.org/idgov/idgov/pkg/mapping"
	"codeberg.org/idgov/idgov/pkg/model"
	"codeberg.org/idgov/idgov/pkg/repo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// captureConnector records every dispatched operation instead of talking to
// a target.
type captureConnector struct {
	ops []connector.Operation
}

func (c *captureConnector) Key() string { return "capture" }
func (c *captureConnector) Initialize(context.Context, map[string]any) error { return nil }
func (c *captureConnector) Validate(context.Context) error { return nil }
func (c *captureConnector) Close() error { return nil }

func (c *captureConnector) Execute(_ context.Context, op connector.Operation) (*connector.OperationResult, error) {
	c.ops = append(c.ops, op)
	return &connector.OperationResult{UID: op.UID, Executed: op.Type}, nil
}

func (c *captureConnector) Search(context.Context, string, *connector.Filter, connector.ResultHandler) error {
	return nil
}

func (c *captureConnector) Synchronize(context.Context, string, string, connector.ResultHandler) error {
	return nil
}

type noScripts struct{}

func (noScripts) Evaluate(_ context.Context, _ string, vars map[string]any) (any, error) {
	return vars["value"], nil
}

type pushHarness struct {
	repos      *repo.Repositories
	exec       *Executor
	conn       *captureConnector
	system     *model.System
	sysMapping *model.SystemMapping
	entity     *model.Entity
	account    *model.Account
}

// newPushHarness seeds a linked (account, entity) pair with its system
// entity in place, so an UPDATE provision stays an UPDATE.
func newPushHarness(t *testing.T) *pushHarness {
	t.Helper()
	ctx := context.Background()

	store := repo.NewMemoryStore()
	repos := repo.NewRepositories(store)

	conn := &captureConnector{}
	registry := connector.NewRegistry()
	require.NoError(t, registry.Register("capture", func() connector.Connector { return conn }))
	pool := connector.NewPool(registry)

	exec := NewExecutor(repos, pool, mapping.NewValueResolver(noScripts{}), zap.NewNop())

	system := &model.System{Name: "dir", ConnectorKey: "capture", ConnectorConfig: map[string]any{"url": "capture://"}}
	require.NoError(t, repos.Systems.Save(ctx, system))

	sysMapping := &model.SystemMapping{
		SystemID:    system.ID,
		EntityKind:  model.KindIdentity,
		Operation:   model.OperationProvisioning,
		ObjectClass: "user",
		Attributes: []model.AttributeMapping{
			{
				ID:              "m-uid",
				SchemaAttribute: model.SchemaAttribute{ID: "s-uid", Name: "uid", ObjectClass: "user"},
				TargetProperty:  "username",
				Strategy:        model.StrategySet,
				UID:             true,
			},
			{
				ID:              "m-cn",
				SchemaAttribute: model.SchemaAttribute{ID: "s-cn", Name: "cn", ObjectClass: "user"},
				TargetProperty:  "cn",
				Strategy:        model.StrategySet,
			},
			{
				ID:              "m-desc",
				SchemaAttribute: model.SchemaAttribute{ID: "s-desc", Name: "description", ObjectClass: "user"},
				TargetProperty:  "description",
				Strategy:        model.StrategyWriteIfNull,
			},
		},
	}
	require.NoError(t, repos.Mappings.Save(ctx, sysMapping))

	entity := &model.Entity{
		Kind: model.KindIdentity,
		Properties: map[string]any{
			"username":    "u1",
			"cn":          "User One",
			"description": "imported account",
		},
	}
	require.NoError(t, repos.Entities.Save(ctx, entity))

	se := &model.SystemEntity{SystemID: system.ID, Kind: model.KindIdentity, UID: "u1"}
	require.NoError(t, repos.SystemEntities.Save(ctx, se))

	account := &model.Account{UID: "u1", SystemID: system.ID, SystemEntityID: se.ID}
	require.NoError(t, repos.Accounts.Save(ctx, account))

	return &pushHarness{
		repos:      repos,
		exec:       exec,
		conn:       conn,
		system:     system,
		sysMapping: sysMapping,
		entity:     entity,
		account:    account,
	}
}

func (h *pushHarness) lastOp(t *testing.T) connector.Operation {
	t.Helper()
	require.NotEmpty(t, h.conn.ops)
	return h.conn.ops[len(h.conn.ops)-1]
}

func attrValue(op connector.Operation, name, mappingID string) (any, bool) {
	v, ok := op.Attributes[connector.AttrKey{Name: name, MappingID: mappingID}]
	return v, ok
}

func TestProvisionWriteIfNullKeepsExistingValue(t *testing.T) {
	ctx := context.Background()
	h := newPushHarness(t)

	current := map[string]any{"cn": "stale", "description": "set by an admin"}
	require.NoError(t, h.exec.Provision(ctx, h.account, h.entity, model.OperationUpdate, current))

	op := h.lastOp(t)
	assert.Equal(t, model.OperationUpdate, op.Type)

	_, sent := attrValue(op, "description", "m-desc")
	assert.False(t, sent, "WRITE_IF_NULL must not overwrite a present value")

	cn, sent := attrValue(op, "cn", "m-cn")
	require.True(t, sent)
	assert.Equal(t, "User One", cn)
}

func TestProvisionWriteIfNullFillsAbsentValue(t *testing.T) {
	ctx := context.Background()
	h := newPushHarness(t)

	current := map[string]any{"cn": "stale", "description": ""}
	require.NoError(t, h.exec.Provision(ctx, h.account, h.entity, model.OperationUpdate, current))

	desc, sent := attrValue(h.lastOp(t), "description", "m-desc")
	require.True(t, sent)
	assert.Equal(t, "imported account", desc)
}

func TestProvisionWriteIfNullSkippedWhenCurrentUnknown(t *testing.T) {
	ctx := context.Background()
	h := newPushHarness(t)

	// No current snapshot: unknown counts as present.
	require.NoError(t, h.exec.Provision(ctx, h.account, h.entity, model.OperationUpdate, nil))

	op := h.lastOp(t)
	_, sent := attrValue(op, "description", "m-desc")
	assert.False(t, sent)
	_, sent = attrValue(op, "cn", "m-cn")
	assert.True(t, sent)
}

func TestProvisionWriteIfNullSentOnCreate(t *testing.T) {
	ctx := context.Background()
	h := newPushHarness(t)

	require.NoError(t, h.exec.Provision(ctx, h.account, h.entity, model.OperationCreate, nil))

	op := h.lastOp(t)
	assert.Equal(t, model.OperationCreate, op.Type)
	desc, sent := attrValue(op, "description", "m-desc")
	require.True(t, sent)
	assert.Equal(t, "imported account", desc)
}

func TestProvisionSkipsUnchangedUnlessSendAlways(t *testing.T) {
	ctx := context.Background()
	h := newPushHarness(t)

	current := map[string]any{"cn": "User One", "description": "set by an admin"}
	require.NoError(t, h.exec.Provision(ctx, h.account, h.entity, model.OperationUpdate, current))

	_, sent := attrValue(h.lastOp(t), "cn", "m-cn")
	assert.False(t, sent, "unchanged value without sendAlways must be skipped")

	h.sysMapping.Attributes[1].SendAlways = true
	require.NoError(t, h.repos.Mappings.Save(ctx, h.sysMapping))

	require.NoError(t, h.exec.Provision(ctx, h.account, h.entity, model.OperationUpdate, current))

	cn, sent := attrValue(h.lastOp(t), "cn", "m-cn")
	require.True(t, sent)
	assert.Equal(t, "User One", cn)
}
