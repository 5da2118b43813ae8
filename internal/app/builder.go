package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/netip"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"k8s.io/utils/clock"

	"github.com/stacklok/toolhive-update-agent/internal/api"
	"github.com/stacklok/toolhive-update-agent/internal/app/storage"
	"github.com/stacklok/toolhive-update-agent/internal/config"
	"github.com/stacklok/toolhive-update-agent/internal/lifecycle"
	"github.com/stacklok/toolhive-update-agent/internal/requests"
	pkgsync "github.com/stacklok/toolhive-update-agent/internal/sync"
	"github.com/stacklok/toolhive-update-agent/internal/sync/coordinator"
	"github.com/stacklok/toolhive-update-agent/internal/sync/state"
	"github.com/stacklok/toolhive-update-agent/internal/telemetry"
	"github.com/stacklok/toolhive-update-agent/internal/updater"
)

const (
	defaultHTTPAddress    = ":8080"
	defaultRequestTimeout = 10 * time.Second
	defaultReadTimeout    = 10 * time.Second
	defaultWriteTimeout   = 15 * time.Second
	defaultIdleTimeout    = 60 * time.Second
)

// UpdateAgentAppOptions is a function that configures the update agent app builder
type UpdateAgentAppOptions func(*updateAgentAppConfig) error

// updateAgentAppConfig collects builder inputs.
// Component overrides exist mainly for tests; production uses the defaults.
type updateAgentAppConfig struct {
	config *config.Config

	synchronizer   pkgsync.Synchronizer
	store          state.Store
	storageFactory storage.Factory
	clock          clock.Clock

	// HTTP server options
	address        string
	middlewares    []func(http.Handler) http.Handler
	requestTimeout time.Duration
	readTimeout    time.Duration
	writeTimeout   time.Duration
	idleTimeout    time.Duration

	// Telemetry components
	meterProvider  metric.MeterProvider
	tracerProvider trace.TracerProvider
	metricsHandler http.Handler

	watchSignals bool
}

func baseConfig(opts ...UpdateAgentAppOptions) (*updateAgentAppConfig, error) {
	cfg := &updateAgentAppConfig{
		address:        defaultHTTPAddress,
		requestTimeout: defaultRequestTimeout,
		readTimeout:    defaultReadTimeout,
		writeTimeout:   defaultWriteTimeout,
		idleTimeout:    defaultIdleTimeout,
		watchSignals:   true,
	}

	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, err
		}
	}

	return cfg, nil
}

// NewUpdateAgentApp builds the agent from the given options
func NewUpdateAgentApp(
	ctx context.Context,
	opts ...UpdateAgentAppOptions,
) (*UpdateAgentApp, error) {
	cfg, err := baseConfig(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to build base configuration: %w", err)
	}
	if cfg.config == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}

	if cfg.storageFactory == nil {
		cfg.storageFactory, err = storage.NewStorageFactory(ctx, cfg.config)
		if err != nil {
			return nil, fmt.Errorf("failed to create storage factory: %w", err)
		}
	}

	cleanupNeeded := true
	defer func() {
		if cleanupNeeded {
			cfg.storageFactory.Cleanup()
		}
	}()

	components, err := buildSyncComponents(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to build sync components: %w", err)
	}

	httpServer, err := buildHTTPServer(ctx, cfg, components)
	if err != nil {
		return nil, fmt.Errorf("failed to build HTTP server: %w", err)
	}

	appCtx, cancel := context.WithCancel(ctx)
	cleanupNeeded = false

	return &UpdateAgentApp{
		config:       cfg.config,
		components:   components,
		httpServer:   httpServer,
		watchSignals: cfg.watchSignals,
		ctx:          appCtx,
		cancelFunc:   cancel,
	}, nil
}

// WithConfig sets the configuration
func WithConfig(c *config.Config) UpdateAgentAppOptions {
	return func(cfg *updateAgentAppConfig) error {
		cfg.config = c
		return nil
	}
}

// WithAddress sets the HTTP server address
func WithAddress(addr string) UpdateAgentAppOptions {
	return func(cfg *updateAgentAppConfig) error {
		if addr == "" {
			return fmt.Errorf("address cannot be empty")
		}

		host, port, found := strings.Cut(addr, ":")
		if !found || port == "" {
			return fmt.Errorf("address is not a valid port: %s", addr)
		}
		if host == "localhost" {
			host = "127.0.0.1"
		}
		if host == "" {
			host = "0.0.0.0"
		}

		if _, err := netip.ParseAddrPort(host + ":" + port); err != nil {
			return fmt.Errorf("address is not a valid port: %w", err)
		}

		cfg.address = addr
		return nil
	}
}

// WithMiddlewares sets custom HTTP middlewares
func WithMiddlewares(mw ...func(http.Handler) http.Handler) UpdateAgentAppOptions {
	return func(cfg *updateAgentAppConfig) error {
		cfg.middlewares = mw
		return nil
	}
}

// WithSynchronizer replaces the update server client (for testing)
func WithSynchronizer(s pkgsync.Synchronizer) UpdateAgentAppOptions {
	return func(cfg *updateAgentAppConfig) error {
		cfg.synchronizer = s
		return nil
	}
}

// WithStore replaces the state store created by the storage factory
func WithStore(s state.Store) UpdateAgentAppOptions {
	return func(cfg *updateAgentAppConfig) error {
		cfg.store = s
		return nil
	}
}

// WithStorageFactory allows injecting a custom storage factory (for testing)
func WithStorageFactory(f storage.Factory) UpdateAgentAppOptions {
	return func(cfg *updateAgentAppConfig) error {
		cfg.storageFactory = f
		return nil
	}
}

// WithClock sets the clock used by the coordinator's timers
func WithClock(clk clock.Clock) UpdateAgentAppOptions {
	return func(cfg *updateAgentAppConfig) error {
		cfg.clock = clk
		return nil
	}
}

// WithMeterProvider sets the OpenTelemetry meter provider for sync and HTTP metrics
func WithMeterProvider(mp metric.MeterProvider) UpdateAgentAppOptions {
	return func(cfg *updateAgentAppConfig) error {
		cfg.meterProvider = mp
		return nil
	}
}

// WithTracerProvider sets the OpenTelemetry tracer provider
func WithTracerProvider(tp trace.TracerProvider) UpdateAgentAppOptions {
	return func(cfg *updateAgentAppConfig) error {
		cfg.tracerProvider = tp
		return nil
	}
}

// WithMetricsHandler exposes h at /metrics
func WithMetricsHandler(h http.Handler) UpdateAgentAppOptions {
	return func(cfg *updateAgentAppConfig) error {
		cfg.metricsHandler = h
		return nil
	}
}

// WithSignalWatcher enables or disables mapping SIGCONT to the active lifecycle state
func WithSignalWatcher(enabled bool) UpdateAgentAppOptions {
	return func(cfg *updateAgentAppConfig) error {
		cfg.watchSignals = enabled
		return nil
	}
}

// buildSyncComponents builds the state store, synchronizer and coordinator
func buildSyncComponents(
	ctx context.Context,
	b *updateAgentAppConfig,
) (*AppComponents, error) {
	slog.Info("Initializing sync components")

	if b.store == nil {
		store, err := b.storageFactory.CreateStateStore(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to create state store: %w", err)
		}
		b.store = store
	}

	if b.synchronizer == nil {
		u, err := updater.New(b.config, b.store)
		if err != nil {
			return nil, fmt.Errorf("failed to create updater: %w", err)
		}
		// A broken staged package must not keep the agent from starting
		if _, err := u.ApplyPending(); err != nil {
			slog.Warn("Failed to apply pending package", "error", err)
		}
		b.synchronizer = u
	}

	history, err := b.storageFactory.CreateHistoryWriter(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create history writer: %w", err)
	}
	persistence, err := b.storageFactory.CreateStatusPersistence(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create status persistence: %w", err)
	}

	coordOpts := []coordinator.Option{
		coordinator.WithHistoryWriter(history),
		coordinator.WithStatusPersistence(persistence),
	}
	if b.clock != nil {
		coordOpts = append(coordOpts, coordinator.WithClock(b.clock))
	}
	if b.tracerProvider != nil {
		coordOpts = append(coordOpts, coordinator.WithTracerProvider(b.tracerProvider))
	}
	if b.meterProvider != nil {
		syncMetrics, err := telemetry.NewSyncMetrics(b.meterProvider)
		if err != nil {
			return nil, fmt.Errorf("failed to create sync metrics: %w", err)
		}
		if syncMetrics != nil {
			coordOpts = append(coordOpts, coordinator.WithSyncMetrics(syncMetrics))
			slog.Info("Sync metrics enabled")
		}
	}

	dispatcher := requests.NewDispatcher(requests.WithNames(
		b.config.Coordinator.GetTriggerRequestName(),
		b.config.Coordinator.DelayCancelRequestName,
	))
	broadcaster := lifecycle.NewBroadcaster(lifecycle.StateActive)

	syncCoordinator := coordinator.New(
		b.synchronizer,
		b.store,
		dispatcher,
		broadcaster,
		&b.config.Coordinator,
		coordOpts...,
	)
	slog.Info("Sync components initialized successfully")

	return &AppComponents{
		SyncCoordinator: syncCoordinator,
		Requests:        dispatcher,
		Lifecycle:       broadcaster,
		StorageFactory:  b.storageFactory,
	}, nil
}

// buildHTTPServer builds the HTTP server with router and middleware
//
//nolint:unparam // we prefer having a similar interface
func buildHTTPServer(
	_ context.Context,
	b *updateAgentAppConfig,
	components *AppComponents,
) (*http.Server, error) {
	slog.Info("Initializing HTTP server")

	if b.middlewares == nil {
		b.middlewares = []func(http.Handler) http.Handler{
			middleware.RequestID,
			middleware.RealIP,
			middleware.Recoverer,
			middleware.Timeout(b.requestTimeout),
			api.LoggingMiddleware,
		}
	}

	// Metrics and tracing go first to capture every request
	if b.tracerProvider != nil {
		b.middlewares = append([]func(http.Handler) http.Handler{
			telemetry.TracingMiddleware(b.tracerProvider),
		}, b.middlewares...)
	}
	if b.meterProvider != nil {
		metricsMiddleware, err := telemetry.MetricsMiddleware(b.meterProvider)
		if err != nil {
			return nil, fmt.Errorf("failed to create metrics middleware: %w", err)
		}
		if metricsMiddleware != nil {
			b.middlewares = append([]func(http.Handler) http.Handler{metricsMiddleware}, b.middlewares...)
			slog.Info("HTTP metrics middleware enabled")
		}
	}

	serverOpts := []api.ServerOption{
		api.WithMiddlewares(b.middlewares...),
		api.WithMetricsHandler(b.metricsHandler),
	}
	if components.StorageFactory != nil {
		serverOpts = append(serverOpts, api.WithReadinessCheck(components.StorageFactory.Ready))
	}

	router := api.NewServer(
		components.Requests,
		components.Lifecycle,
		components.SyncCoordinator,
		serverOpts...,
	)

	server := &http.Server{
		Addr:         b.address,
		Handler:      router,
		ReadTimeout:  b.readTimeout,
		WriteTimeout: b.writeTimeout,
		IdleTimeout:  b.idleTimeout,
	}

	slog.Info("HTTP server configured", "address", b.address)
	return server, nil
}
