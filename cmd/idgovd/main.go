package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"codeberg.org/idgov/idgov/pkg/api"
	"codeberg.org/idgov/idgov/pkg/config"
	"codeberg.org/idgov/idgov/pkg/connector"
	"codeberg.org/idgov/idgov/pkg/entity"
	"codeberg.org/idgov/idgov/pkg/mapping"
	"codeberg.org/idgov/idgov/pkg/provisioning"
	"codeberg.org/idgov/idgov/pkg/repo"
	"codeberg.org/idgov/idgov/pkg/script"
	"codeberg.org/idgov/idgov/pkg/sync"
	"codeberg.org/idgov/idgov/pkg/task"
	"codeberg.org/idgov/idgov/pkg/workflow"

	"go.etcd.io/etcd/client/v3/concurrency"
	"go.etcd.io/etcd/server/v3/embed"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	_ "codeberg.org/idgov/idgov/pkg/connector/authentik"
	_ "codeberg.org/idgov/idgov/pkg/connector/ldap"
)

func main() {
	configPath := flag.String("config", "/etc/idgov/config.yaml", "Path to config")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		if os.IsNotExist(err) {
			cfg = config.DefaultConfig()
		} else {
			panic(err)
		}
	}

	logger := initLogger(cfg.Logging)
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var etcdServer *embed.Etcd
	if len(cfg.Etcd.Endpoints) == 0 {
		etcdServer, err = repo.StartEmbedded(cfg.Etcd, logger)
		if err != nil {
			logger.Fatal("Embedded etcd start failed", zap.Error(err))
		}
		defer etcdServer.Close()

		snapshots := repo.NewSnapshotManager(
			filepath.Join(cfg.Etcd.DataDir, "snapshots"),
			7*24*time.Hour,
			logger,
		)
		go runSnapshotLoop(ctx, snapshots, cfg.Etcd.ClientAddr, logger)
	} else {
		logger.Info("Using external etcd cluster",
			zap.Strings("endpoints", cfg.Etcd.Endpoints))
	}

	store, err := repo.NewEtcdStore(repo.Endpoints(cfg.Etcd), 5*time.Second)
	if err != nil {
		logger.Fatal("Store init failed", zap.Error(err))
	}
	defer store.Close()

	repos := repo.NewRepositories(store)

	scripts := script.NewResolver(
		script.NewLoader(cfg.Scripts.CacheDir),
		script.NewEvaluator(logger),
	)
	values := mapping.NewValueResolver(scripts)
	adapters := entity.NewRegistry(repos)
	pool := connector.NewPool(connector.Default())
	defer pool.Close()

	provisioner := provisioning.NewExecutor(repos, pool, values, logger)
	workflows := workflow.NewStoreEngine(store, logger)

	orchestrator := sync.NewOrchestrator(
		repos,
		pool,
		sync.NewClassifier(repos, adapters, values),
		sync.NewActionExecutor(repos, adapters, provisioner, values, workflows, logger),
		sync.NewScanner(repos),
		values,
		repo.NewEtcdRunGuard(store),
		logger,
	)

	mgr := task.NewManager(repos, orchestrator, cfg.Sync.DefaultPeriod, cfg.Sync.Workers, logger)

	go mgr.WatchConfigs(ctx, store)
	go runLeaderElection(ctx, store, mgr, cfg.Etcd.Name, logger)

	mux := http.NewServeMux()
	api.SetupRoutes(mux, ctx, repos, mgr, logger)

	srv := &http.Server{
		Addr:         cfg.Server.Address,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logger.Info("Starting HTTP server", zap.String("addr", cfg.Server.Address))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down...")

	sCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(sCtx); err != nil {
		logger.Error("Server shutdown failed", zap.Error(err))
	}

	logger.Info("Shutdown complete")
}

// runLeaderElection keeps the scheduled sync loop on exactly one node.
// Manual triggers through the API still work on every node; the per-config
// run guard prevents overlap either way.
func runLeaderElection(ctx context.Context, store *repo.EtcdStore, mgr *task.Manager, nodeName string, logger *zap.Logger) {
	for {
		select {
		case <-ctx.Done():
			logger.Info("Leader election stopping")
			return
		default:
			session, err := concurrency.NewSession(store.Client(), concurrency.WithTTL(15))
			if err != nil {
				logger.Error("Election session failed", zap.Error(err))
				time.Sleep(5 * time.Second)
				continue
			}

			election := concurrency.NewElection(session, "/idgov.io/leader")
			if err := election.Campaign(ctx, nodeName); err != nil {
				logger.Debug("Campaign failed, retrying", zap.Error(err))
				session.Close()
				time.Sleep(time.Second)
				continue
			}

			logger.Info("Node acquired leadership", zap.String("node", nodeName))

			runCtx, cancel := context.WithCancel(ctx)

			go func() {
				select {
				case <-session.Done():
					logger.Warn("Leader session expired, stopping schedule")
					cancel()
				case <-runCtx.Done():
				}
			}()

			if err := mgr.Start(runCtx); err != nil {
				logger.Error("Task manager stopped with error", zap.Error(err))
			}

			cancel()
			session.Close()

			logger.Info("Leadership released")

			select {
			case <-ctx.Done():
				return
			default:
				time.Sleep(time.Second)
			}
		}
	}
}

// runSnapshotLoop backs up the embedded etcd store every six hours and prunes
// snapshots past retention. External clusters handle their own backups.
func runSnapshotLoop(ctx context.Context, sm *repo.SnapshotManager, endpoint string, logger *zap.Logger) {
	ticker := time.NewTicker(6 * time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := sm.TakeSnapshot(ctx, endpoint); err != nil {
				logger.Error("Snapshot failed", zap.Error(err))
				continue
			}
			if err := sm.CleanupOldSnapshots(); err != nil {
				logger.Warn("Snapshot cleanup failed", zap.Error(err))
			}
		}
	}
}

func initLogger(c config.LoggingConfig) *zap.Logger {
	lvl, _ := zapcore.ParseLevel(c.Level)
	cfg := zap.NewProductionConfig()
	if c.Format == "console" {
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	l, _ := cfg.Build()
	return l
}
