// Package instrumentation provides OpenTelemetry metrics, tracing and the
// file operation audit log for drivemanager.
//
// # Metrics
//
//   - http_requests_total, http_request_duration_seconds: by method, route and status
//   - active_sessions: 1 while a user is signed in
//   - google_api_operations_total, google_api_operation_duration_seconds:
//     Drive and OAuth calls by service, operation and status
//   - drive_transfer_bytes_total: bytes uploaded and downloaded
//   - oauth_auth_total, oauth_token_refresh_total: sign-ins and refreshes by result
//
// Prometheus is the default exporter; its registry is served by the
// dedicated metrics server in internal/server.
//
// # Tracing
//
// Each Drive call runs in a client span named google.drive.<operation>.
// Tracing is off unless TRACING_EXPORTER is otlp or stdout.
//
// # Configuration
//
// DefaultConfig reads INSTRUMENTATION_ENABLED, METRICS_EXPORTER,
// TRACING_EXPORTER, OTEL_EXPORTER_OTLP_ENDPOINT, OTEL_EXPORTER_OTLP_INSECURE,
// OTEL_TRACES_SAMPLER_ARG, OTEL_SERVICE_NAME, METRICS_DETAILED_LABELS,
// AUDIT_LOGGING_ENABLED and AUDIT_LOGGING_INCLUDE_PII.
//
// # Example
//
//	provider, err := instrumentation.NewProvider(ctx, instrumentation.DefaultConfig())
//	if err != nil {
//		return err
//	}
//	defer provider.Shutdown(ctx)
//
//	provider.Metrics().RecordGoogleAPIOperation(ctx, instrumentation.ServiceDrive,
//		instrumentation.OperationList, instrumentation.StatusSuccess, email, time.Since(start))
package instrumentation
