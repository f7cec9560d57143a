// Package api exposes the declarative resource endpoints and run controls
// consumed by idgovctl.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"codeberg.org/idgov/idgov/pkg/manifest"
	"codeberg.org/idgov/idgov/pkg/model"
	"codeberg.org/idgov/idgov/pkg/repo"
	"codeberg.org/idgov/idgov/pkg/task"
	"go.uber.org/zap"
)

const apiPrefix = "/apis/idgov.io/v1/"

func SetupRoutes(mux *http.ServeMux, ctx context.Context, repos *repo.Repositories, mgr *task.Manager, logger *zap.Logger) {
	p := manifest.NewParser()

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	mux.HandleFunc(apiPrefix+"systems", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			systems, err := repos.Systems.List(ctx)
			if err != nil {
				storeError(w, logger, err)
				return
			}
			writeJSON(w, http.StatusOK, systems)

		case http.MethodPost:
			doc, ok := parseBody(w, r, p, logger)
			if !ok {
				return
			}
			system, ok := doc.(*manifest.System)
			if !ok {
				http.Error(w, "Expected a System manifest", http.StatusBadRequest)
				return
			}
			if err := repos.Systems.Save(ctx, manifest.ToSystem(system)); err != nil {
				storeError(w, logger, err)
				return
			}
			writeJSON(w, http.StatusCreated, map[string]string{"status": "applied", "name": system.Name})

		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	})

	mux.HandleFunc(apiPrefix+"mappings", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			mappings, err := repos.Mappings.List(ctx)
			if err != nil {
				storeError(w, logger, err)
				return
			}
			writeJSON(w, http.StatusOK, mappings)

		case http.MethodPost:
			doc, ok := parseBody(w, r, p, logger)
			if !ok {
				return
			}
			mapping, ok := doc.(*manifest.SystemMapping)
			if !ok {
				http.Error(w, "Expected a SystemMapping manifest", http.StatusBadRequest)
				return
			}
			converted, err := manifest.ToSystemMapping(mapping)
			if err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			if err := repos.Mappings.Save(ctx, converted); err != nil {
				storeError(w, logger, err)
				return
			}
			writeJSON(w, http.StatusCreated, map[string]string{"status": "applied", "name": mapping.Name})

		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	})

	mux.HandleFunc(apiPrefix+"syncconfigs", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			configs, err := repos.SyncConfigs.List(ctx)
			if err != nil {
				storeError(w, logger, err)
				return
			}
			writeJSON(w, http.StatusOK, configs)

		case http.MethodPost:
			doc, ok := parseBody(w, r, p, logger)
			if !ok {
				return
			}
			configDoc, ok := doc.(*manifest.SyncConfig)
			if !ok {
				http.Error(w, "Expected a SyncConfig manifest", http.StatusBadRequest)
				return
			}
			config := manifest.ToSyncConfig(configDoc)
			// A re-apply must not reset the sync watermark.
			if existing, err := repos.SyncConfigs.Get(ctx, config.ID); err == nil {
				config.Token = existing.Token
			}
			if err := repos.SyncConfigs.Save(ctx, config); err != nil {
				storeError(w, logger, err)
				return
			}
			writeJSON(w, http.StatusCreated, map[string]string{"status": "applied", "name": config.Name})

		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	})

	mux.HandleFunc(apiPrefix+"syncconfigs/", func(w http.ResponseWriter, r *http.Request) {
		path := strings.TrimPrefix(r.URL.Path, apiPrefix+"syncconfigs/")
		parts := strings.Split(path, "/")
		if len(parts) < 1 || parts[0] == "" {
			http.Error(w, "Sync config name required", http.StatusBadRequest)
			return
		}
		name := parts[0]

		switch {
		case len(parts) == 1 && r.Method == http.MethodDelete:
			if err := repos.SyncConfigs.Delete(ctx, name); err != nil {
				storeError(w, logger, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]string{"status": "deleted", "name": name})

		case len(parts) == 1 && r.Method == http.MethodGet:
			config, err := repos.SyncConfigs.Get(ctx, name)
			if err != nil {
				storeError(w, logger, err)
				return
			}
			writeJSON(w, http.StatusOK, config)

		case len(parts) == 2 && parts[1] == "run" && r.Method == http.MethodPost:
			logger.Info("manual sync triggered",
				zap.String("config", name),
				zap.String("remote_addr", r.RemoteAddr))
			if err := mgr.Trigger(ctx, name); err != nil {
				writeJSON(w, statusFor(err), map[string]string{"status": "error", "error": err.Error()})
				return
			}
			writeJSON(w, http.StatusAccepted, map[string]string{"status": "queued", "config": name})

		case len(parts) == 2 && parts[1] == "cancel" && r.Method == http.MethodPost:
			logger.Info("sync cancellation requested",
				zap.String("config", name),
				zap.String("remote_addr", r.RemoteAddr))
			if err := mgr.Cancel(ctx, name); err != nil {
				writeJSON(w, statusFor(err), map[string]string{"status": "error", "error": err.Error()})
				return
			}
			writeJSON(w, http.StatusAccepted, map[string]string{"status": "canceling", "config": name})

		case len(parts) == 2 && parts[1] == "logs" && r.Method == http.MethodGet:
			logs, err := repos.SyncLogs.ByConfig(ctx, name)
			if err != nil {
				storeError(w, logger, err)
				return
			}
			writeJSON(w, http.StatusOK, logs)

		default:
			http.Error(w, "Not found", http.StatusNotFound)
		}
	})

	mux.HandleFunc(apiPrefix+"synclogs/", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		logID := strings.TrimPrefix(r.URL.Path, apiPrefix+"synclogs/")
		if logID == "" || strings.Contains(logID, "/") {
			http.Error(w, "Sync log id required", http.StatusBadRequest)
			return
		}

		log, err := repos.SyncLogs.Get(ctx, logID)
		if err != nil {
			storeError(w, logger, err)
			return
		}
		items, err := repos.ItemLogs.ByLog(ctx, logID)
		if err != nil {
			storeError(w, logger, err)
			return
		}
		actions, err := repos.ActionLogs.ByLog(ctx, logID)
		if err != nil {
			storeError(w, logger, err)
			return
		}

		writeJSON(w, http.StatusOK, map[string]any{
			"log":     log,
			"items":   items,
			"actions": actions,
		})
	})

	mux.HandleFunc(apiPrefix+"runs", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		writeJSON(w, http.StatusOK, mgr.Active())
	})
}

func parseBody(w http.ResponseWriter, r *http.Request, p *manifest.Parser, logger *zap.Logger) (any, bool) {
	b, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "Failed to read body", http.StatusBadRequest)
		return nil, false
	}
	doc, err := p.Parse(b)
	if err != nil {
		logger.Error("failed to parse manifest", zap.Error(err))
		http.Error(w, err.Error(), http.StatusBadRequest)
		return nil, false
	}
	return doc, true
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func storeError(w http.ResponseWriter, logger *zap.Logger, err error) {
	if errors.Is(err, repo.ErrNotFound) {
		http.Error(w, "Not found", http.StatusNotFound)
		return
	}
	logger.Error("store operation failed", zap.Error(err))
	http.Error(w, "Store error", http.StatusInternalServerError)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, repo.ErrNotFound):
		return http.StatusNotFound
	case model.HasCode(err, model.CodeSyncConfigDisabled),
		model.HasCode(err, model.CodeSyncAlreadyRunning):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
