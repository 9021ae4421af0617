package server

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/teemow/drivemanager/internal/instrumentation"
)

const (
	// DefaultMetricsAddr is the default address for the metrics server.
	DefaultMetricsAddr = ":9090"

	// DefaultMetricsReadTimeout is the default read timeout for the metrics server.
	DefaultMetricsReadTimeout = 10 * time.Second

	// DefaultMetricsWriteTimeout is the default write timeout for the metrics server.
	DefaultMetricsWriteTimeout = 10 * time.Second

	// DefaultMetricsIdleTimeout is the default idle timeout for the metrics server.
	DefaultMetricsIdleTimeout = 60 * time.Second

	// DefaultShutdownTimeout is the default timeout for graceful server shutdown.
	DefaultShutdownTimeout = 30 * time.Second
)

// MetricsServerConfig holds configuration for the metrics server.
type MetricsServerConfig struct {
	// Addr is the address to bind the metrics server to (e.g., ":9090").
	Addr string

	// InstrumentationProvider provides the Prometheus metrics handler.
	InstrumentationProvider *instrumentation.Provider

	Logger *slog.Logger
}

// MetricsServer serves Prometheus metrics on a dedicated port, away from
// the UI listener.
type MetricsServer struct {
	handler http.Handler
	logger  *slog.Logger

	mu         sync.Mutex
	httpServer *http.Server
	addr       string
}

// NewMetricsServer creates a metrics server exposing /metrics and /healthz.
func NewMetricsServer(config MetricsServerConfig) (*MetricsServer, error) {
	if config.Addr == "" {
		config.Addr = DefaultMetricsAddr
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	if config.InstrumentationProvider == nil {
		return nil, errors.New("instrumentation provider is required for metrics server")
	}
	if !config.InstrumentationProvider.Enabled() {
		return nil, errors.New("instrumentation provider is not enabled")
	}

	handler := config.InstrumentationProvider.PrometheusHandler()
	if handler == nil {
		return nil, errors.New("instrumentation provider has no prometheus exporter")
	}

	return &MetricsServer{
		handler: handler,
		addr:    config.Addr,
		logger:  config.Logger,
	}, nil
}

// Handler returns the metrics mux.
func (s *MetricsServer) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", s.handler)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return mux
}

// Start serves metrics until Shutdown. It blocks.
func (s *MetricsServer) Start() error {
	return s.StartWithReadySignal(nil)
}

// StartWithReadySignal is Start, closing ready once the listener is bound.
// Addr then reports the bound address.
func (s *MetricsServer) StartWithReadySignal(ready chan<- struct{}) error {
	ln, err := net.Listen("tcp", s.Addr())
	if err != nil {
		if ready != nil {
			close(ready)
		}
		return err
	}

	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: DefaultMetricsReadTimeout,
		WriteTimeout:      DefaultMetricsWriteTimeout,
		IdleTimeout:       DefaultMetricsIdleTimeout,
	}
	s.mu.Lock()
	s.addr = ln.Addr().String()
	s.httpServer = srv
	s.mu.Unlock()

	s.logger.Info("starting metrics server", slog.String("addr", ln.Addr().String()))
	if ready != nil {
		close(ready)
	}
	return srv.Serve(ln)
}

// Shutdown gracefully shuts down the metrics server.
func (s *MetricsServer) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	srv := s.httpServer
	s.mu.Unlock()

	if srv != nil {
		s.logger.Info("shutting down metrics server")
		return srv.Shutdown(ctx)
	}
	return nil
}

// Addr returns the metrics server address.
func (s *MetricsServer) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}
