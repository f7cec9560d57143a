package task

import (
	"context"

	"codeberg.org/idgov/idgov/pkg/repo"
	"go.etcd.io/etcd/api/v3/mvccpb"
	"go.uber.org/zap"
)

// WatchConfigs reacts to sync-config changes in etcd: a new or updated
// enabled config gets a run scheduled immediately instead of waiting for the
// next tick. Only useful with the etcd backend; the memory backend has no
// change feed.
func (m *Manager) WatchConfigs(ctx context.Context, store *repo.EtcdStore) {
	ch := store.Watch(ctx, repo.KindSyncConfigs)
	for resp := range ch {
		if err := resp.Err(); err != nil {
			m.logger.Warn("config watch error", zap.Error(err))
			continue
		}
		for _, ev := range resp.Events {
			if ev.Type != mvccpb.PUT {
				continue
			}
			key := string(ev.Kv.Key)
			m.logger.Info("sync config changed", zap.String("key", key))
			configID := configIDFromKey(key)
			if configID == "" {
				continue
			}
			if err := m.Trigger(ctx, configID); err != nil {
				m.logger.Debug("skipping changed config",
					zap.String("config", configID),
					zap.Error(err))
			}
		}
	}
}

func configIDFromKey(key string) string {
	for i := len(key) - 1; i >= 0; i-- {
		if key[i] == '/' {
			return key[i+1:]
		}
	}
	return ""
}
