package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"google.golang.org/api/option"

	"github.com/teemow/drivemanager/internal/directory"
	"github.com/teemow/drivemanager/internal/drive"
	"github.com/teemow/drivemanager/internal/events"
	"github.com/teemow/drivemanager/internal/google"
	"github.com/teemow/drivemanager/internal/instrumentation"
	"github.com/teemow/drivemanager/internal/logging"
	"github.com/teemow/drivemanager/internal/notice"
	"github.com/teemow/drivemanager/internal/server"
	"github.com/teemow/drivemanager/internal/session"
	"github.com/teemow/drivemanager/internal/web"
)

const (
	defaultHTTPAddr = "127.0.0.1:8080"

	// readHeaderTimeout bounds slow clients. There is no write timeout:
	// downloads stream and /events stays open.
	readHeaderTimeout = 10 * time.Second
)

// MetricsConfig holds configuration for the metrics server
type MetricsConfig struct {
	// Enabled determines whether to start the metrics server (default: true)
	Enabled bool

	// Addr is the address for the metrics server (e.g., ":9090")
	Addr string
}

// serveOptions is the resolved configuration of the serve command.
type serveOptions struct {
	Debug              bool
	HTTPAddr           string
	BaseURL            string
	GoogleClientID     string
	GoogleClientSecret string
	PageSize           int
	TokenCache         bool
	CORSOrigins        []string
	Metrics            MetricsConfig
}

func newServeCmd() *cobra.Command {
	opts := serveOptions{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the web UI",
		Long: `Start the local Drive manager web UI.

The UI signs you in with Google (OAuth 2.0 with PKCE) and lists the most
recently modified files in your Drive.

OAuth Configuration:
  --google-client-id and --google-client-secret flags
  OR GOOGLE_CLIENT_ID and GOOGLE_CLIENT_SECRET env vars.
  The OAuth client must allow <base-url>/oauth/callback as a redirect URI.

  Base URL (only needed behind a proxy):
    --base-url https://drive.example.com OR DRIVEMANAGER_BASE_URL env var
    Defaults to http://<http-addr>.

Token Cache:
  The Google token is cached in the user cache directory so the session
  survives restarts. Disable with --token-cache=false.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			loadServeEnvVars(cmd, &opts)
			return runServe(opts)
		},
	}

	cmd.Flags().BoolVar(&opts.Debug, "debug", false, "Enable debug logging")
	cmd.Flags().StringVar(&opts.HTTPAddr, "http-addr", defaultHTTPAddr, "HTTP server address. Can also use HTTP_ADDR env var.")
	cmd.Flags().StringVar(&opts.BaseURL, "base-url", "", "Public base URL of the UI, used for the OAuth redirect. Can also use DRIVEMANAGER_BASE_URL env var.")
	cmd.Flags().StringVar(&opts.GoogleClientID, "google-client-id", "", "Google OAuth Client ID. Can also use GOOGLE_CLIENT_ID env var.")
	cmd.Flags().StringVar(&opts.GoogleClientSecret, "google-client-secret", "", "Google OAuth Client Secret. Can also use GOOGLE_CLIENT_SECRET env var.")
	cmd.Flags().IntVar(&opts.PageSize, "page-size", drive.DefaultPageSize, "Number of recent files to list")
	cmd.Flags().BoolVar(&opts.TokenCache, "token-cache", true, "Cache the Google token in the user cache directory")
	cmd.Flags().StringSliceVar(&opts.CORSOrigins, "cors-origins", nil, "Origins allowed to read the JSON API (comma-separated). Can also use CORS_ALLOWED_ORIGINS env var.")

	cmd.Flags().BoolVar(&opts.Metrics.Enabled, "metrics-enabled", true, "Enable the metrics server on a dedicated port. Can also use METRICS_ENABLED env var.")
	cmd.Flags().StringVar(&opts.Metrics.Addr, "metrics-addr", server.DefaultMetricsAddr, "Metrics server address. Can also use METRICS_ADDR env var.")

	return cmd
}

// loadServeEnvVars fills options from environment variables.
// Environment variables only override flag values when the flag was not explicitly set.
func loadServeEnvVars(cmd *cobra.Command, opts *serveOptions) {
	if !cmd.Flags().Changed("http-addr") {
		if addr := os.Getenv("HTTP_ADDR"); addr != "" {
			opts.HTTPAddr = addr
		}
	}
	if !cmd.Flags().Changed("base-url") {
		if baseURL := os.Getenv("DRIVEMANAGER_BASE_URL"); baseURL != "" {
			opts.BaseURL = baseURL
		}
	}
	if !cmd.Flags().Changed("google-client-id") {
		if id := os.Getenv("GOOGLE_CLIENT_ID"); id != "" {
			opts.GoogleClientID = id
		}
	}
	if !cmd.Flags().Changed("google-client-secret") {
		if secret := os.Getenv("GOOGLE_CLIENT_SECRET"); secret != "" {
			opts.GoogleClientSecret = secret
		}
	}
	if !cmd.Flags().Changed("cors-origins") {
		if origins := os.Getenv("CORS_ALLOWED_ORIGINS"); origins != "" {
			opts.CORSOrigins = parseCommaSeparatedList(origins)
		}
	}
	if !cmd.Flags().Changed("metrics-enabled") {
		if envVal := os.Getenv("METRICS_ENABLED"); envVal != "" {
			if parsed, err := strconv.ParseBool(envVal); err == nil {
				opts.Metrics.Enabled = parsed
			} else {
				slog.Warn("invalid METRICS_ENABLED value, keeping default",
					slog.String("value", envVal),
					slog.Bool("default", opts.Metrics.Enabled))
			}
		}
	}
	if !cmd.Flags().Changed("metrics-addr") {
		if addr := os.Getenv("METRICS_ADDR"); addr != "" {
			opts.Metrics.Addr = addr
		}
	}
}

// resolveBaseURL returns baseURL without a trailing slash, or the address
// the server listens on when baseURL is empty.
func resolveBaseURL(baseURL, httpAddr string) string {
	if baseURL != "" {
		return strings.TrimRight(baseURL, "/")
	}
	if strings.HasPrefix(httpAddr, ":") {
		return "http://localhost" + httpAddr
	}
	return "http://" + httpAddr
}

func runServe(opts serveOptions) error {
	logger := logging.New(os.Stderr, opts.Debug)
	slog.SetDefault(logger)

	if opts.GoogleClientID == "" {
		return errors.New("a Google OAuth client ID is required (--google-client-id or GOOGLE_CLIENT_ID)")
	}
	if opts.PageSize <= 0 {
		return fmt.Errorf("page size must be positive, got %d", opts.PageSize)
	}

	shutdownCtx, cancel := signal.NotifyContext(context.Background(),
		os.Interrupt, syscall.SIGTERM)
	defer cancel()

	instrConfig := instrumentation.DefaultConfig()
	instrConfig.ServiceVersion = version

	provider, err := instrumentation.NewProvider(shutdownCtx, instrConfig)
	if err != nil {
		return fmt.Errorf("failed to create instrumentation provider: %w", err)
	}
	defer func() {
		// shutdownCtx is already cancelled at this point
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := provider.Shutdown(ctx); err != nil {
			logger.Error("error during instrumentation shutdown", logging.Err(err))
		}
	}()
	metrics := provider.Metrics()

	var metricsServer *server.MetricsServer
	if opts.Metrics.Enabled && provider.Enabled() && provider.PrometheusHandler() != nil {
		metricsServer, err = server.NewMetricsServer(server.MetricsServerConfig{
			Addr:                    opts.Metrics.Addr,
			InstrumentationProvider: provider,
			Logger:                  logger,
		})
		if err != nil {
			return fmt.Errorf("failed to create metrics server: %w", err)
		}

		metricsReady := make(chan struct{})
		metricsErr := make(chan error, 1)
		go func() {
			if err := metricsServer.StartWithReadySignal(metricsReady); err != nil && !errors.Is(err, http.ErrServerClosed) {
				metricsErr <- err
			}
			close(metricsErr)
		}()

		<-metricsReady
		select {
		case err := <-metricsErr:
			if err != nil {
				return fmt.Errorf("metrics server failed to start: %w", err)
			}
		default:
		}
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), server.DefaultShutdownTimeout)
			defer cancel()
			if err := metricsServer.Shutdown(ctx); err != nil {
				logger.Error("error shutting down metrics server", logging.Err(err))
			}
		}()
	}

	baseURL := resolveBaseURL(opts.BaseURL, opts.HTTPAddr)
	cachePath := ""
	if opts.TokenCache {
		cachePath = google.DefaultTokenCachePath()
	}

	broadcaster := events.NewBroadcaster(64)
	board := notice.NewBoard(logger, broadcaster)

	googleProvider := google.NewProvider(google.Config{
		ClientID:       opts.GoogleClientID,
		ClientSecret:   opts.GoogleClientSecret,
		RedirectURL:    baseURL + "/oauth/callback",
		TokenCachePath: cachePath,
		Metrics:        metrics,
		Logger:         logger,
	})
	defer googleProvider.Close()

	account := func() string {
		id, _ := googleProvider.Current()
		return id.Email
	}

	driveClient, err := drive.NewClient(shutdownCtx,
		drive.Options{Metrics: metrics, Account: account},
		option.WithHTTPClient(googleProvider.HTTPClient()))
	if err != nil {
		return err
	}

	files := directory.NewService(directory.Config{
		Remote:       driveClient,
		Reporter:     board,
		Publisher:    broadcaster,
		Audit:        instrumentation.NewAuditLoggerWithConfig(logger, instrConfig.AuditLogging),
		Logger:       logger,
		PageSize:     opts.PageSize,
		Account:      account,
		Unauthorized: googleProvider.Invalidate,
	})

	manager := session.NewManager(session.Config{
		Provider:  googleProvider,
		Files:     files,
		Reporter:  board,
		Publisher: broadcaster,
		Logger:    logger,
	})
	defer manager.Close()

	ui, err := web.NewServer(web.Config{
		Session:     manager,
		Files:       files,
		Notices:     board,
		Events:      broadcaster,
		Metrics:     metrics,
		Logger:      logger,
		CORSOrigins: opts.CORSOrigins,
	})
	if err != nil {
		return fmt.Errorf("failed to create web server: %w", err)
	}

	serverContext := server.NewServerContext(shutdownCtx)
	defer serverContext.Shutdown()

	healthChecker := server.NewHealthChecker(serverContext)
	healthChecker.AddCheck("session", func() error {
		switch manager.State() {
		case session.StateReady:
			return nil
		case session.StateFailed:
			return errors.New("initialization failed")
		default:
			return errors.New("initializing")
		}
	})

	mux := http.NewServeMux()
	healthChecker.RegisterHealthEndpoints(mux)
	mux.Handle("/", ui.Handler())

	httpServer := &http.Server{
		Addr:              opts.HTTPAddr,
		Handler:           mux,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	serverDone := make(chan error, 1)
	go func() {
		defer close(serverDone)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverDone <- err
		}
	}()

	logger.Info("drivemanager started",
		slog.String("addr", opts.HTTPAddr),
		slog.String("base_url", baseURL),
		slog.Bool("token_cache", cachePath != ""))

	// The UI shows a loading page until initialization finishes.
	go func() {
		if err := manager.Initialize(serverContext.Context()); err != nil {
			return
		}
		healthChecker.SetReady(true)
	}()

	select {
	case <-shutdownCtx.Done():
		logger.Info("shutdown signal received, stopping HTTP server")
		healthChecker.SetReady(false)
		serverContext.Shutdown()

		ctx, cancel := context.WithTimeout(context.Background(), server.DefaultShutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(ctx); err != nil {
			return fmt.Errorf("error shutting down HTTP server: %w", err)
		}
	case err := <-serverDone:
		if err != nil {
			return fmt.Errorf("HTTP server stopped with error: %w", err)
		}
	}

	logger.Info("HTTP server gracefully stopped")
	return nil
}

// parseCommaSeparatedList parses a comma-separated string into a slice,
// trimming whitespace from each element and filtering out empty strings.
// Returns nil if the input is empty or contains only whitespace/commas.
func parseCommaSeparatedList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			result = append(result, p)
		}
	}
	if len(result) == 0 {
		return nil
	}
	return result
}
