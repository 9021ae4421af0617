package server

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teemow/drivemanager/internal/instrumentation"
)

func TestNewMetricsServer(t *testing.T) {
	tests := []struct {
		name        string
		config      MetricsServerConfig
		expectError bool
		errContains string
	}{
		{
			name: "valid config",
			config: MetricsServerConfig{
				Addr:                    ":9090",
				InstrumentationProvider: createTestProvider(t, "prometheus"),
			},
		},
		{
			name: "default addr",
			config: MetricsServerConfig{
				InstrumentationProvider: createTestProvider(t, "prometheus"),
			},
		},
		{
			name:        "nil provider",
			config:      MetricsServerConfig{Addr: ":9090"},
			expectError: true,
			errContains: "instrumentation provider is required",
		},
		{
			name: "disabled provider",
			config: MetricsServerConfig{
				Addr:                    ":9090",
				InstrumentationProvider: createDisabledProvider(t),
			},
			expectError: true,
			errContains: "instrumentation provider is not enabled",
		},
		{
			name: "no prometheus exporter",
			config: MetricsServerConfig{
				InstrumentationProvider: createTestProvider(t, "stdout"),
			},
			expectError: true,
			errContains: "no prometheus exporter",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server, err := NewMetricsServer(tt.config)
			if tt.expectError {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errContains)
				return
			}
			require.NoError(t, err)
			require.NotNil(t, server)
			if tt.config.Addr == "" {
				assert.Equal(t, DefaultMetricsAddr, server.Addr())
			}
		})
	}
}

func TestMetricsServer_Handler(t *testing.T) {
	provider := createTestProvider(t, "prometheus")
	provider.Metrics().RecordOAuthAuth(context.Background(), instrumentation.OAuthResultSuccess)

	server, err := NewMetricsServer(MetricsServerConfig{InstrumentationProvider: provider})
	require.NoError(t, err)

	srv := httptest.NewServer(server.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "oauth_auth_total")

	resp, err = http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestMetricsServer_StartAndShutdown(t *testing.T) {
	server, err := NewMetricsServer(MetricsServerConfig{
		Addr:                    "127.0.0.1:0",
		InstrumentationProvider: createTestProvider(t, "prometheus"),
		Logger:                  slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	require.NoError(t, err)

	ready := make(chan struct{})
	serverErr := make(chan error, 1)
	go func() {
		serverErr <- server.StartWithReadySignal(ready)
	}()
	<-ready

	resp, err := http.Get("http://" + server.Addr() + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, server.Shutdown(ctx))

	select {
	case err := <-serverErr:
		assert.ErrorIs(t, err, http.ErrServerClosed)
	case <-time.After(2 * time.Second):
		t.Fatal("server did not stop")
	}
}

func TestMetricsServer_ShutdownWithoutStart(t *testing.T) {
	server, err := NewMetricsServer(MetricsServerConfig{
		InstrumentationProvider: createTestProvider(t, "prometheus"),
	})
	require.NoError(t, err)
	assert.NoError(t, server.Shutdown(context.Background()))
}

func createTestProvider(t *testing.T, metricsExporter string) *instrumentation.Provider {
	t.Helper()
	ctx := context.Background()
	provider, err := instrumentation.NewProvider(ctx, instrumentation.Config{
		ServiceName:     "test-service",
		ServiceVersion:  "1.0.0",
		Enabled:         true,
		MetricsExporter: metricsExporter,
		TracingExporter: "none",
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = provider.Shutdown(ctx)
	})
	return provider
}

func createDisabledProvider(t *testing.T) *instrumentation.Provider {
	t.Helper()
	provider, err := instrumentation.NewProvider(context.Background(), instrumentation.Config{
		ServiceName:    "test-service",
		ServiceVersion: "1.0.0",
		Enabled:        false,
	})
	require.NoError(t, err)
	return provider
}
