package coordinator

import (
	"context"
	"log/slog"

	"github.com/stacklok/toolhive-update-agent/internal/status"
	"github.com/stacklok/toolhive-update-agent/internal/sync/state"
)

// Delay gate outcomes, used for logging and metrics
const (
	delayOutcomeSkipped   = "skipped"
	delayOutcomeElapsed   = "elapsed"
	delayOutcomeCancelled = "cancelled"
	delayOutcomeAborted   = "aborted"
)

// runDelayGate postpones the first synchronize call once per installation.
//
// The satisfied flag is written before waiting, so a restart in the middle of
// the wait does not apply the delay again. Persistence errors never block
// startup: an unreadable flag counts as absent and a failed write is logged.
func (c *defaultCoordinator) runDelayGate(ctx context.Context) {
	if !c.config.HasDelayGate() {
		return
	}

	value, found, err := c.store.Get(ctx, state.InitialDelayKey)
	switch {
	case err != nil:
		slog.WarnContext(ctx, "Failed to read initial delay flag, treating delay as not yet satisfied", "error", err)
	case found && value == state.InitialDelaySatisfied:
		slog.DebugContext(ctx, "Initial delay already satisfied by a previous run")
		c.syncMetrics.RecordDelayGate(ctx, delayOutcomeSkipped)
		return
	}

	if err := c.store.Set(ctx, state.InitialDelayKey, state.InitialDelaySatisfied); err != nil {
		slog.WarnContext(ctx, "Failed to persist initial delay flag, delay may apply again after restart", "error", err)
	}

	delay := c.config.GetInitialDelay()
	if delay <= 0 {
		// Only a cancel request is configured; there is no duration to wait for
		slog.InfoContext(ctx, "Initial delay has no duration, continuing immediately",
			"delay_cancel_request", c.config.DelayCancelRequestName)
		c.syncMetrics.RecordDelayGate(ctx, delayOutcomeElapsed)
		return
	}

	var cancelCh <-chan struct{}
	if name := c.config.DelayCancelRequestName; name != "" {
		cancelCh = c.requests.Requests(name)
	}

	c.setLoopState(status.LoopStateDelaying)
	slog.InfoContext(ctx, "Delaying first sync", "delay", delay, "delay_cancel_request", c.config.DelayCancelRequestName)

	timer := c.clock.NewTimer(delay)
	defer timer.Stop()

	outcome := delayOutcomeElapsed
	select {
	case <-timer.C():
	case <-cancelCh:
		outcome = delayOutcomeCancelled
	case <-ctx.Done():
		outcome = delayOutcomeAborted
	}

	slog.InfoContext(ctx, "Initial delay finished", "outcome", outcome)
	c.syncMetrics.RecordDelayGate(ctx, outcome)
}
