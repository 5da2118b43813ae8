package coordinator

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/stacklok/toolhive-update-agent/internal/otel"
	"github.com/stacklok/toolhive-update-agent/internal/status"
	pkgsync "github.com/stacklok/toolhive-update-agent/internal/sync"
	"github.com/stacklok/toolhive-update-agent/internal/sync/writer"
)

// runSync is the failure boundary around one synchronize call. Errors and panics
// from the synchronizer are logged and recorded in the status; they never reach the loop.
func (c *defaultCoordinator) runSync(ctx context.Context, trigger Trigger) {
	ctx, span := otel.StartSpan(ctx, c.tracer, "coordinator.sync",
		trace.WithAttributes(otel.AttrTrigger.String(string(trigger))),
	)
	defer span.End()

	startTime := c.clock.Now()
	attempt := c.markSyncing(trigger, startTime)
	span.SetAttributes(otel.AttrAttempt.Int(attempt))
	c.persistStatus(ctx)

	result, syncErr := c.callSynchronizer(ctx)

	finishTime := c.clock.Now()
	duration := finishTime.Sub(startTime)

	entry := &writer.Entry{
		Trigger:    string(trigger),
		StartedAt:  startTime,
		FinishedAt: finishTime,
	}

	if syncErr != nil {
		otel.RecordError(span, syncErr)
		slog.ErrorContext(ctx, "Sync failed",
			"trigger", trigger,
			"attempt", attempt,
			"duration", duration,
			"error", syncErr)
		c.syncMetrics.RecordSyncDuration(ctx, string(trigger), duration, false)

		c.updateStatus(func(s *status.SyncStatus) {
			s.Phase = status.SyncPhaseFailed
			s.Message = syncErr.Error()
			s.LastResult = pkgsync.StatusUnknownError.String()
		})
		entry.Status = pkgsync.StatusUnknownError.String()
		entry.Message = syncErr.Error()
	} else {
		resultStatus, label := "", ""
		if result != nil {
			resultStatus, label = result.Status.String(), result.Label
		}
		span.SetAttributes(
			otel.AttrSyncStatus.String(resultStatus),
			otel.AttrPackageLabel.String(label),
		)
		slog.InfoContext(ctx, "Sync completed successfully",
			"trigger", trigger,
			"result", resultStatus,
			"label", label,
			"duration", duration)
		c.syncMetrics.RecordSyncDuration(ctx, string(trigger), duration, true)

		c.updateStatus(func(s *status.SyncStatus) {
			s.Phase = status.SyncPhaseComplete
			s.Message = "Sync completed successfully"
			s.LastSyncTime = &finishTime
			s.AttemptCount = 0
			s.LastResult = resultStatus
			if label != "" {
				s.Label = label
			}
		})
		entry.Status = resultStatus
		entry.Label = label
	}

	c.persistStatus(ctx)
	if err := c.history.Record(ctx, entry); err != nil {
		slog.WarnContext(ctx, "Failed to record sync history", "trigger", trigger, "error", err)
	}
}

// callSynchronizer invokes the synchronizer, converting a panic into an error
func (c *defaultCoordinator) callSynchronizer(ctx context.Context) (result *pkgsync.Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			result = nil
			err = fmt.Errorf("synchronize panicked: %v", r)
		}
	}()

	// Each call gets its own copy so the synchronizer cannot alter the configuration
	opts := c.config.SyncOptions
	return c.synchronizer.Synchronize(ctx, &opts, c.handleStatus, c.handleProgress)
}

func (c *defaultCoordinator) handleStatus(s pkgsync.Status) {
	slog.Debug("Sync status changed", "status", s)
	if !s.IsTerminal() {
		c.updateStatus(func(st *status.SyncStatus) {
			st.Message = s.String()
		})
	}
	if c.onStatus != nil {
		c.onStatus(s)
	}
}

func (c *defaultCoordinator) handleProgress(p pkgsync.Progress) {
	if c.onProgress != nil {
		c.onProgress(p)
	}
}

// markSyncing moves the status to Syncing and returns the attempt number
func (c *defaultCoordinator) markSyncing(trigger Trigger, now time.Time) int {
	var attempt int
	c.updateStatus(func(s *status.SyncStatus) {
		s.Phase = status.SyncPhaseSyncing
		s.Message = "Sync in progress"
		s.LastAttempt = &now
		s.LastTrigger = string(trigger)
		s.AttemptCount++
		attempt = s.AttemptCount
	})
	return attempt
}

func (c *defaultCoordinator) setLoopState(loopState status.LoopState) {
	c.updateStatus(func(s *status.SyncStatus) {
		s.LoopState = loopState
	})
}

func (c *defaultCoordinator) updateStatus(fn func(*status.SyncStatus)) {
	c.statusMu.Lock()
	defer c.statusMu.Unlock()

	fn(c.status)
}

// persistStatus saves a snapshot of the status; failures are logged only
func (c *defaultCoordinator) persistStatus(ctx context.Context) {
	if c.statusPersistence == nil {
		return
	}
	if err := c.statusPersistence.SaveStatus(ctx, c.GetStatus()); err != nil {
		slog.WarnContext(ctx, "Failed to persist sync status", "error", err)
	}
}

// restoreStatus loads the status saved by a previous run, keeping the last results
func (c *defaultCoordinator) restoreStatus(ctx context.Context) {
	if c.statusPersistence == nil {
		return
	}
	saved, err := c.statusPersistence.LoadStatus(ctx)
	if err != nil {
		slog.WarnContext(ctx, "Failed to load previous sync status", "error", err)
		return
	}

	c.updateStatus(func(s *status.SyncStatus) {
		*s = *saved.Clone()
		s.LoopState = status.LoopStateIdle
		// A call that was running when the previous process exited never finished
		if s.Phase == status.SyncPhaseSyncing {
			s.Phase = status.SyncPhaseFailed
			s.Message = "Previous sync was interrupted"
		}
	})
}
