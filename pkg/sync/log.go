package sync

import (
	"context"
	"fmt"
	"time"

	"codeberg.org/idgov/idgov/pkg/model"
	"codeberg.org/idgov/idgov/pkg/repo"
	"go.uber.org/zap"
)

// runLogger owns the persistent trace of one run: the free-text run log, the
// per-item trace, and the lazily created (action, result) counters. Every
// finished item passes through Item exactly once, so each item contributes
// exactly one counter increment.
type runLogger struct {
	repos  *repo.Repositories
	log    *model.SyncLog
	zl     *zap.Logger
	counts map[model.ActionKey]int
}

func newRunLogger(repos *repo.Repositories, log *model.SyncLog, zl *zap.Logger) *runLogger {
	return &runLogger{
		repos:  repos,
		log:    log,
		zl:     zl,
		counts: make(map[model.ActionKey]int),
	}
}

// Printf appends a timestamped line to the run's free-text log and mirrors
// it to the structured logger.
func (l *runLogger) Printf(format string, args ...any) {
	line := fmt.Sprintf(format, args...)
	l.log.Log += fmt.Sprintf("%s %s\n", time.Now().Format(time.RFC3339), line)
	l.zl.Info(line, zap.String("syncLog", l.log.ID))
}

// Item persists the finished item trace and counts its (action, result)
// bucket.
func (l *runLogger) Item(ctx context.Context, item *model.SyncItemLog) error {
	if item.Result == model.ResultError {
		l.log.ContainsError = true
	}
	l.counts[model.ActionKey{Action: item.Action, Result: item.Result}]++
	return l.repos.ItemLogs.Save(ctx, item)
}

// Close seals the run: flushes counter buckets, stamps the end time, clears
// the running flag and persists the final SyncLog.
func (l *runLogger) Close(ctx context.Context, token string) error {
	for key, count := range l.counts {
		entry := &model.SyncActionLog{
			SyncLogID: l.log.ID,
			Action:    key.Action,
			Result:    key.Result,
			Count:     count,
		}
		if err := l.repos.ActionLogs.Save(ctx, entry); err != nil {
			return err
		}
	}

	l.log.Running = false
	l.log.Ended = time.Now()
	l.log.Token = token
	return l.repos.SyncLogs.Save(ctx, l.log)
}
