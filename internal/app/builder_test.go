package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/metric/noop"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/mock/gomock"
	"k8s.io/utils/ptr"

	"github.com/stacklok/toolhive-update-agent/internal/config"
	"github.com/stacklok/toolhive-update-agent/internal/requests"
	"github.com/stacklok/toolhive-update-agent/internal/sync/mocks"
)

// createTestConfig creates a minimal valid config with file storage in a temp dir
func createTestConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		DataDir: t.TempDir(),
		Coordinator: config.CoordinatorConfig{
			SyncOnStart:  ptr.To(false),
			SyncOnResume: ptr.To(false),
			SyncOptions:  config.SyncOptions{DeploymentKey: "test-key"},
		},
		UpdateServer: config.UpdateServerConfig{Endpoint: "http://127.0.0.1:1"},
	}
}

func TestBaseConfig_Defaults(t *testing.T) {
	t.Parallel()

	cfg, err := baseConfig()
	require.NoError(t, err)

	assert.Equal(t, defaultHTTPAddress, cfg.address)
	assert.Equal(t, defaultRequestTimeout, cfg.requestTimeout)
	assert.Equal(t, defaultReadTimeout, cfg.readTimeout)
	assert.Equal(t, defaultWriteTimeout, cfg.writeTimeout)
	assert.Equal(t, defaultIdleTimeout, cfg.idleTimeout)
	assert.True(t, cfg.watchSignals)
}

func TestWithAddress(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		addr    string
		wantErr bool
	}{
		{name: "port only", addr: ":8080"},
		{name: "localhost", addr: "localhost:9090"},
		{name: "ipv4 host", addr: "127.0.0.1:0"},
		{name: "empty", addr: "", wantErr: true},
		{name: "missing port", addr: "localhost:", wantErr: true},
		{name: "no colon", addr: "8080", wantErr: true},
		{name: "invalid host", addr: "not-an-ip:80", wantErr: true},
		{name: "port out of range", addr: ":99999", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := &updateAgentAppConfig{}
			err := WithAddress(tt.addr)(cfg)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.addr, cfg.address)
		})
	}
}

func TestNewUpdateAgentApp_Errors(t *testing.T) {
	t.Parallel()

	t.Run("missing config", func(t *testing.T) {
		t.Parallel()
		_, err := NewUpdateAgentApp(context.Background())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "config cannot be nil")
	})

	t.Run("invalid option", func(t *testing.T) {
		t.Parallel()
		_, err := NewUpdateAgentApp(context.Background(), WithAddress(""))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "address cannot be empty")
	})

	t.Run("updater needs an endpoint", func(t *testing.T) {
		t.Parallel()
		cfg := createTestConfig(t)
		cfg.UpdateServer.Endpoint = ""
		_, err := NewUpdateAgentApp(context.Background(), WithConfig(cfg))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to create updater")
	})
}

func TestNewUpdateAgentApp_Defaults(t *testing.T) {
	t.Parallel()

	app, err := NewUpdateAgentApp(context.Background(), WithConfig(createTestConfig(t)))
	require.NoError(t, err)
	defer func() { _ = app.Stop(0) }()

	components := app.GetComponents()
	require.NotNil(t, components.SyncCoordinator)
	require.NotNil(t, components.Requests)
	require.NotNil(t, components.Lifecycle)
	require.NotNil(t, components.StorageFactory)
	assert.Equal(t, defaultHTTPAddress, app.httpServer.Addr)
}

func TestNewUpdateAgentApp_RegistersRequestNames(t *testing.T) {
	t.Parallel()

	cfg := createTestConfig(t)
	cfg.Coordinator.DelayCancelRequestName = "SKIP_DELAY"
	app, err := NewUpdateAgentApp(context.Background(), WithConfig(cfg))
	require.NoError(t, err)
	defer func() { _ = app.Stop(0) }()

	d := app.GetComponents().Requests
	assert.NoError(t, d.Dispatch(config.DefaultTriggerRequestName))
	assert.NoError(t, d.Dispatch("SKIP_DELAY"))
	assert.ErrorIs(t, d.Dispatch("OTHER"), requests.ErrUnknownName)
}

func TestBuildHTTPServer_Routes(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	synchronizer := mocks.NewMockSynchronizer(ctrl)

	metricsHandler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("# metrics\n"))
	})

	app, err := NewUpdateAgentApp(context.Background(),
		WithConfig(createTestConfig(t)),
		WithSynchronizer(synchronizer),
		WithMeterProvider(noop.NewMeterProvider()),
		WithTracerProvider(tracenoop.NewTracerProvider()),
		WithMetricsHandler(metricsHandler),
	)
	require.NoError(t, err)
	defer func() { _ = app.Stop(0) }()

	tests := []struct {
		method string
		path   string
		status int
	}{
		{http.MethodGet, "/health", http.StatusOK},
		{http.MethodGet, "/readiness", http.StatusOK},
		{http.MethodGet, "/metrics", http.StatusOK},
		{http.MethodGet, "/v1/status", http.StatusOK},
		{http.MethodGet, "/v1/lifecycle", http.StatusOK},
		{http.MethodPost, "/v1/requests/SYNC", http.StatusAccepted},
		{http.MethodPost, "/v1/requests/OTHER", http.StatusNotFound},
		{http.MethodGet, "/unknown", http.StatusNotFound},
	}

	for _, tt := range tests {
		req := httptest.NewRequest(tt.method, tt.path, nil)
		rr := httptest.NewRecorder()
		app.httpServer.Handler.ServeHTTP(rr, req)
		assert.Equal(t, tt.status, rr.Code, "%s %s", tt.method, tt.path)
	}

	assert.Equal(t, 1, app.GetComponents().Requests.Pending(config.DefaultTriggerRequestName))
}
