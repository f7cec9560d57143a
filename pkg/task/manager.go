// Package task hosts synchronization runs: manual triggers from the API,
// the periodic schedule, and config-change reactions from the store watch.
package task

import (
	"context"
	"fmt"
	gosync "sync"
	"time"

	"codeberg.org/idgov/idgov/pkg/model"
	"codeberg.org/idgov/idgov/pkg/repo"
	"codeberg.org/idgov/idgov/pkg/sync"
	"github.com/puzpuzpuz/xsync/v4"
	"go.uber.org/zap"
)

// RunState is the in-flight view of one triggered run.
type RunState struct {
	ConfigID string    `json:"configId"`
	Started  time.Time `json:"started"`
}

type Manager struct {
	repos        *repo.Repositories
	orchestrator *sync.Orchestrator
	period       time.Duration
	workers      int
	logger       *zap.Logger

	active *xsync.Map[string, RunState]
	queue  chan string
	wg     gosync.WaitGroup
}

func NewManager(repos *repo.Repositories, orchestrator *sync.Orchestrator, period time.Duration, workers int, logger *zap.Logger) *Manager {
	if workers < 1 {
		workers = 1
	}
	return &Manager{
		repos:        repos,
		orchestrator: orchestrator,
		period:       period,
		workers:      workers,
		logger:       logger.Named("task"),
		active:       xsync.NewMap[string, RunState](),
		queue:        make(chan string, 64),
	}
}

// Start runs the worker pool and the periodic schedule until the context
// ends, then waits for in-flight runs to finish.
func (m *Manager) Start(ctx context.Context) error {
	m.logger.Info("starting task manager",
		zap.Duration("period", m.period),
		zap.Int("workers", m.workers))

	for i := 0; i < m.workers; i++ {
		m.wg.Add(1)
		go func() {
			defer m.wg.Done()
			m.worker(ctx)
		}()
	}

	ticker := time.NewTicker(m.period)
	defer ticker.Stop()

	m.scheduleAll(ctx)
	for {
		select {
		case <-ctx.Done():
			m.wg.Wait()
			return nil
		case <-ticker.C:
			m.scheduleAll(ctx)
		}
	}
}

// Trigger queues one run. The config must exist and be enabled; the
// single-flight guard inside the orchestrator handles overlap.
func (m *Manager) Trigger(ctx context.Context, configID string) error {
	config, err := m.repos.SyncConfigs.Get(ctx, configID)
	if err != nil {
		return fmt.Errorf("load sync config %s: %w", configID, err)
	}
	if !config.Enabled {
		return model.NewCodedError(model.CodeSyncConfigDisabled, map[string]any{"config": config.Name})
	}

	select {
	case m.queue <- configID:
		return nil
	default:
		return fmt.Errorf("run queue full")
	}
}

// Cancel requests cancellation of the config's open run, if any.
func (m *Manager) Cancel(ctx context.Context, configID string) error {
	logs, err := m.repos.SyncLogs.ByConfig(ctx, configID)
	if err != nil {
		return err
	}
	for _, log := range logs {
		if log.Running {
			return m.orchestrator.Cancel(ctx, log.ID)
		}
	}
	return fmt.Errorf("no running sync for config %s", configID)
}

// Active lists runs currently executing on this node.
func (m *Manager) Active() []RunState {
	var out []RunState
	m.active.Range(func(_ string, state RunState) bool {
		out = append(out, state)
		return true
	})
	return out
}

func (m *Manager) worker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case configID := <-m.queue:
			m.run(ctx, configID)
		}
	}
}

func (m *Manager) run(ctx context.Context, configID string) {
	if _, loaded := m.active.LoadOrStore(configID, RunState{ConfigID: configID, Started: time.Now()}); loaded {
		return
	}
	defer m.active.Delete(configID)

	log, err := m.orchestrator.Run(ctx, configID)
	switch {
	case model.HasCode(err, model.CodeSyncAlreadyRunning):
		m.logger.Debug("run already in flight elsewhere", zap.String("config", configID))
	case err != nil:
		m.logger.Error("sync run failed", zap.String("config", configID), zap.Error(err))
	default:
		m.logger.Info("sync run finished",
			zap.String("config", configID),
			zap.String("syncLog", log.ID),
			zap.Bool("containsError", log.ContainsError))
	}
}

func (m *Manager) scheduleAll(ctx context.Context) {
	configs, err := m.repos.SyncConfigs.List(ctx)
	if err != nil {
		m.logger.Error("list sync configs", zap.Error(err))
		return
	}
	for _, config := range configs {
		if !config.Enabled {
			continue
		}
		select {
		case m.queue <- config.ID:
		default:
			m.logger.Warn("run queue full, skipping scheduled run", zap.String("config", config.Name))
		}
	}
}
