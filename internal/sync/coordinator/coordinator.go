package coordinator

import (
	"context"
	"errors"
	"log/slog"
	gosync "sync"

	"go.opentelemetry.io/otel/trace"
	"k8s.io/utils/clock"

	"github.com/stacklok/toolhive-update-agent/internal/config"
	"github.com/stacklok/toolhive-update-agent/internal/lifecycle"
	"github.com/stacklok/toolhive-update-agent/internal/requests"
	"github.com/stacklok/toolhive-update-agent/internal/status"
	pkgsync "github.com/stacklok/toolhive-update-agent/internal/sync"
	"github.com/stacklok/toolhive-update-agent/internal/sync/state"
	"github.com/stacklok/toolhive-update-agent/internal/sync/writer"
	"github.com/stacklok/toolhive-update-agent/internal/telemetry"
)

// ErrAlreadyStarted is returned when Start is called more than once
var ErrAlreadyStarted = errors.New("coordinator already started")

// Trigger identifies the event that caused a synchronize call
type Trigger string

const (
	// TriggerStart is the optional call made once when the coordinator starts
	TriggerStart Trigger = "start"

	// TriggerRequest is an externally dispatched request named after the trigger request name
	TriggerRequest Trigger = "request"

	// TriggerResume is the application returning to the foreground
	TriggerResume Trigger = "resume"

	// TriggerInterval is the periodic timer
	TriggerInterval Trigger = "interval"
)

// Coordinator decides when the synchronizer is called
type Coordinator interface {
	// Start runs the delay gate and the trigger loop.
	// Blocks until ctx is cancelled or Stop is called.
	Start(ctx context.Context) error

	// Stop cancels the loop and waits for Start to return
	Stop() error

	// GetStatus returns a copy of the current sync status
	GetStatus() *status.SyncStatus
}

// defaultCoordinator is the default implementation of Coordinator
type defaultCoordinator struct {
	synchronizer pkgsync.Synchronizer
	store        state.Store
	requests     requests.Dispatcher
	notifier     lifecycle.Notifier
	config       config.CoordinatorConfig

	clock      clock.Clock
	onStatus   pkgsync.StatusFunc
	onProgress pkgsync.ProgressFunc

	// Lifecycle management
	lifecycleMu gosync.Mutex
	started     bool
	stopped     bool
	cancelFunc  context.CancelFunc
	done        chan struct{}

	statusMu          gosync.RWMutex
	status            *status.SyncStatus
	statusPersistence status.StatusPersistence
	history           writer.HistoryWriter

	syncMetrics *telemetry.SyncMetrics
	tracer      trace.Tracer
}

// Option is a function that configures the coordinator
type Option func(*defaultCoordinator)

// WithSyncMetrics sets the sync metrics for the coordinator
func WithSyncMetrics(metrics *telemetry.SyncMetrics) Option {
	return func(c *defaultCoordinator) {
		c.syncMetrics = metrics
	}
}

// WithTracerProvider enables a span around every synchronize call
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(c *defaultCoordinator) {
		if tp != nil {
			c.tracer = tp.Tracer(telemetry.SyncTracerName)
		}
	}
}

// WithStatusCallback forwards every status reported by the synchronizer to fn
func WithStatusCallback(fn pkgsync.StatusFunc) Option {
	return func(c *defaultCoordinator) {
		c.onStatus = fn
	}
}

// WithProgressCallback forwards download progress reported by the synchronizer to fn
func WithProgressCallback(fn pkgsync.ProgressFunc) Option {
	return func(c *defaultCoordinator) {
		c.onProgress = fn
	}
}

// WithClock replaces the wall clock used for the initial delay and the interval trigger
func WithClock(clk clock.Clock) Option {
	return func(c *defaultCoordinator) {
		c.clock = clk
	}
}

// WithStatusPersistence saves the sync status after every change and restores it on Start
func WithStatusPersistence(p status.StatusPersistence) Option {
	return func(c *defaultCoordinator) {
		c.statusPersistence = p
	}
}

// WithHistoryWriter records one history entry per synchronize call
func WithHistoryWriter(w writer.HistoryWriter) Option {
	return func(c *defaultCoordinator) {
		c.history = w
	}
}

// New creates a new coordinator with injected dependencies.
// notifier may be nil, in which case resume triggers are disabled.
// cfg is copied; later changes to it have no effect.
func New(
	synchronizer pkgsync.Synchronizer,
	store state.Store,
	dispatcher requests.Dispatcher,
	notifier lifecycle.Notifier,
	cfg *config.CoordinatorConfig,
	opts ...Option,
) Coordinator {
	c := &defaultCoordinator{
		synchronizer: synchronizer,
		store:        store,
		requests:     dispatcher,
		notifier:     notifier,
		config:       *cfg,
		clock:        clock.RealClock{},
		done:         make(chan struct{}),
		status: &status.SyncStatus{
			Phase:     status.SyncPhasePending,
			LoopState: status.LoopStateIdle,
		},
		history: writer.NewNoopHistoryWriter(),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Start runs the delay gate, the optional start sync and then the trigger loop
func (c *defaultCoordinator) Start(ctx context.Context) error {
	c.lifecycleMu.Lock()
	if c.started {
		c.lifecycleMu.Unlock()
		return ErrAlreadyStarted
	}
	c.started = true
	if c.stopped {
		// Stop ran first, nothing may be synchronized
		c.lifecycleMu.Unlock()
		c.setLoopState(status.LoopStateStopped)
		close(c.done)
		slog.Info("Sync coordinator was stopped before it started")
		return nil
	}
	coordCtx, cancel := context.WithCancel(ctx)
	c.cancelFunc = cancel
	c.lifecycleMu.Unlock()

	defer func() {
		cancel()
		c.setLoopState(status.LoopStateStopped)
		close(c.done)
		slog.Info("Sync coordinator shutting down")
	}()

	c.restoreStatus(coordCtx)

	slog.Info("Starting sync coordinator",
		"trigger_request", c.config.GetTriggerRequestName(),
		"sync_on_start", c.config.GetSyncOnStart(),
		"sync_on_resume", c.config.GetSyncOnResume(),
		"sync_interval", c.config.GetSyncInterval(),
		"initial_delay", c.config.GetInitialDelay(),
		"delay_cancel_request", c.config.DelayCancelRequestName)

	c.runDelayGate(coordCtx)
	if coordCtx.Err() != nil {
		return nil
	}

	if c.config.GetSyncOnStart() {
		c.dispatch(coordCtx, TriggerStart)
		if coordCtx.Err() != nil {
			return nil
		}
	}

	c.runTriggerLoop(coordCtx)
	return nil
}

// Stop gracefully stops the coordinator
func (c *defaultCoordinator) Stop() error {
	c.lifecycleMu.Lock()
	c.stopped = true
	cancel := c.cancelFunc
	c.lifecycleMu.Unlock()

	if cancel != nil {
		slog.Info("Stopping sync coordinator")
		cancel()
		// Wait for coordinator to finish
		<-c.done
	}
	return nil
}

// GetStatus returns a copy of the current sync status
func (c *defaultCoordinator) GetStatus() *status.SyncStatus {
	c.statusMu.RLock()
	defer c.statusMu.RUnlock()

	return c.status.Clone()
}

// runTriggerLoop waits for the first ready source and dispatches one synchronize call
// per signal until ctx is cancelled
func (c *defaultCoordinator) runTriggerLoop(ctx context.Context) {
	requestCh := c.requests.Requests(c.config.GetTriggerRequestName())

	resume := c.newResumeSource()
	defer resume.Close()

	interval := newIntervalSource(c.clock, c.config.GetSyncInterval())
	defer interval.Stop()

	for {
		c.setLoopState(status.LoopStateWaiting)

		var trigger Trigger
		select {
		case <-ctx.Done():
			return
		case <-requestCh:
			trigger = TriggerRequest
		case <-resume.C():
			trigger = TriggerResume
		case <-interval.C():
			trigger = TriggerInterval
		}

		// A source and cancellation can be ready together; cancellation wins
		if ctx.Err() != nil {
			return
		}

		c.dispatch(ctx, trigger)
		interval.Rearm()
	}
}

// dispatch performs one synchronize call on behalf of trigger
func (c *defaultCoordinator) dispatch(ctx context.Context, trigger Trigger) {
	slog.InfoContext(ctx, "Sync triggered", "trigger", trigger)
	c.syncMetrics.RecordTrigger(ctx, string(trigger))

	c.setLoopState(status.LoopStateDispatching)
	c.runSync(ctx, trigger)
}

func (c *defaultCoordinator) newResumeSource() *resumeSource {
	if !c.config.GetSyncOnResume() {
		return nil
	}
	if c.notifier == nil {
		slog.Warn("Sync on resume is enabled but no lifecycle notifier is configured")
		return nil
	}
	return newResumeSource(c.notifier, resumeQueueSize)
}
