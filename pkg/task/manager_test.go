package task

import (
	"context"
	"testing"
	"time"

	"codeberg.org/idgov/idgov/pkg/model"
	"codeberg.org/idgov/idgov/pkg/repo"
	"codeberg.org/idgov/idgov/pkg/sync"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newManager(t *testing.T) (*Manager, *repo.Repositories) {
	t.Helper()
	repos := repo.NewRepositories(repo.NewMemoryStore())
	orch := sync.NewOrchestrator(repos, nil, nil, nil, nil, nil, repo.NewMemoryRunGuard(), zap.NewNop())
	return NewManager(repos, orch, time.Minute, 2, zap.NewNop()), repos
}

func TestTriggerRejectsUnknownConfig(t *testing.T) {
	m, _ := newManager(t)
	err := m.Trigger(context.Background(), "nope")
	assert.ErrorIs(t, err, repo.ErrNotFound)
}

func TestTriggerRejectsDisabledConfig(t *testing.T) {
	ctx := context.Background()
	m, repos := newManager(t)

	config := &model.SyncConfig{Name: "off", Enabled: false}
	require.NoError(t, repos.SyncConfigs.Save(ctx, config))

	err := m.Trigger(ctx, config.ID)
	assert.True(t, model.HasCode(err, model.CodeSyncConfigDisabled))
}

func TestTriggerQueuesEnabledConfig(t *testing.T) {
	ctx := context.Background()
	m, repos := newManager(t)

	config := &model.SyncConfig{Name: "on", Enabled: true}
	require.NoError(t, repos.SyncConfigs.Save(ctx, config))

	require.NoError(t, m.Trigger(ctx, config.ID))
	assert.Equal(t, config.ID, <-m.queue)
}

func TestCancelWithoutOpenRun(t *testing.T) {
	ctx := context.Background()
	m, repos := newManager(t)

	config := &model.SyncConfig{Name: "on", Enabled: true}
	require.NoError(t, repos.SyncConfigs.Save(ctx, config))

	assert.ErrorContains(t, m.Cancel(ctx, config.ID), "no running sync")
}

func TestCancelClearsRunningFlag(t *testing.T) {
	ctx := context.Background()
	m, repos := newManager(t)

	config := &model.SyncConfig{Name: "on", Enabled: true}
	require.NoError(t, repos.SyncConfigs.Save(ctx, config))
	log := &model.SyncLog{SyncConfigID: config.ID, Running: true, Started: time.Now()}
	require.NoError(t, repos.SyncLogs.Save(ctx, log))

	require.NoError(t, m.Cancel(ctx, config.ID))

	reloaded, err := repos.SyncLogs.Get(ctx, log.ID)
	require.NoError(t, err)
	assert.False(t, reloaded.Running)
}

func TestConfigIDFromKey(t *testing.T) {
	assert.Equal(t, "abc", configIDFromKey("/idgov.io/sync-configs/abc"))
	assert.Equal(t, "", configIDFromKey(""))
}
