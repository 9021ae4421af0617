package instrumentation

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewProvider_Disabled(t *testing.T) {
	p, err := NewProvider(context.Background(), Config{Enabled: false})
	require.NoError(t, err)

	assert.False(t, p.Enabled())
	assert.NotNil(t, p.Metrics())
	assert.Nil(t, p.PrometheusHandler())
	assert.NoError(t, p.Shutdown(context.Background()))
}

func TestNewProvider_InvalidConfig(t *testing.T) {
	_, err := NewProvider(context.Background(), Config{
		Enabled:         true,
		MetricsExporter: "statsd",
	})
	assert.Error(t, err)
}

func TestNewProvider_Prometheus(t *testing.T) {
	ctx := context.Background()
	p, err := NewProvider(ctx, Config{
		ServiceName:       "drivemanager-test",
		ServiceVersion:    "test",
		Enabled:           true,
		MetricsExporter:   ExporterPrometheus,
		TracingExporter:   ExporterNone,
		TraceSamplingRate: 0.1,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Shutdown(ctx) })

	assert.True(t, p.Enabled())
	p.Metrics().RecordGoogleAPIOperation(ctx, ServiceDrive, OperationList, StatusSuccess, "", 10*time.Millisecond)

	handler := p.PrometheusHandler()
	require.NotNil(t, handler)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "google_api_operations_total")
}

func TestProvider_NilSafe(t *testing.T) {
	var p *Provider
	assert.False(t, p.Enabled())
	assert.NotNil(t, p.Metrics())
	assert.Nil(t, p.PrometheusHandler())
	assert.NoError(t, p.Shutdown(context.Background()))
}
