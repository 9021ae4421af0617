package instrumentation

import (
	"context"
	"log/slog"
	"time"

	"github.com/teemow/drivemanager/internal/logging"
)

// FileOperation is the audit record for one mutation or transfer of a
// Drive file.
//
// UserEmail and FileName are PII. LogAttrs replaces them with a hash and
// omits the name; LogAuditAttrs keeps them.
type FileOperation struct {
	Operation string
	UserEmail string
	FileID    string
	FileName  string
	MimeType  string
	Bytes     int64

	StartTime time.Time
	Duration  time.Duration
	Success   bool
	Error     string

	TraceID string
	SpanID  string
}

// NewFileOperation starts timing an operation.
func NewFileOperation(operation string) *FileOperation {
	return &FileOperation{
		Operation: operation,
		StartTime: time.Now(),
	}
}

// WithUser sets the signed-in user.
func (fo *FileOperation) WithUser(email string) *FileOperation {
	fo.UserEmail = email
	return fo
}

// WithFile sets the target file.
func (fo *FileOperation) WithFile(id, name, mimeType string) *FileOperation {
	fo.FileID = id
	fo.FileName = name
	fo.MimeType = mimeType
	return fo
}

// WithBytes sets the transferred size.
func (fo *FileOperation) WithBytes(n int64) *FileOperation {
	fo.Bytes = n
	return fo
}

// WithSpanContext copies trace and span IDs from ctx.
func (fo *FileOperation) WithSpanContext(ctx context.Context) *FileOperation {
	fo.TraceID = GetTraceID(ctx)
	fo.SpanID = GetSpanID(ctx)
	return fo
}

// Complete stops timing. A nil err is a success.
func (fo *FileOperation) Complete(err error) *FileOperation {
	fo.Duration = time.Since(fo.StartTime)
	fo.Success = err == nil
	if err != nil {
		fo.Error = err.Error()
	}
	return fo
}

// Status returns StatusSuccess or StatusError.
func (fo *FileOperation) Status() string {
	if fo.Success {
		return StatusSuccess
	}
	return StatusError
}

// LogAttrs returns attributes safe for general logs.
func (fo *FileOperation) LogAttrs() []slog.Attr {
	attrs := []slog.Attr{
		logging.Operation(fo.Operation),
		logging.UserHash(fo.UserEmail),
		slog.Duration("duration", fo.Duration),
		slog.Bool("success", fo.Success),
	}
	return fo.appendCommon(attrs)
}

// LogAuditAttrs returns attributes including the full email and file name.
func (fo *FileOperation) LogAuditAttrs() []slog.Attr {
	attrs := []slog.Attr{
		logging.Operation(fo.Operation),
		slog.String("user", fo.UserEmail),
		slog.Duration("duration", fo.Duration),
		slog.Bool("success", fo.Success),
	}
	if fo.FileName != "" {
		attrs = append(attrs, slog.String("file_name", fo.FileName))
	}
	if fo.SpanID != "" {
		attrs = append(attrs, slog.String("span_id", fo.SpanID))
	}
	return fo.appendCommon(attrs)
}

func (fo *FileOperation) appendCommon(attrs []slog.Attr) []slog.Attr {
	if fo.FileID != "" {
		attrs = append(attrs, logging.FileID(fo.FileID))
	}
	if fo.MimeType != "" {
		attrs = append(attrs, slog.String("mime_type", fo.MimeType))
	}
	if fo.Bytes > 0 {
		attrs = append(attrs, slog.Int64("bytes", fo.Bytes))
	}
	if fo.TraceID != "" {
		attrs = append(attrs, slog.String("trace_id", fo.TraceID))
	}
	if fo.Error != "" {
		attrs = append(attrs, slog.String("error", fo.Error))
	}
	return attrs
}

// AuditLogger writes FileOperation records.
type AuditLogger struct {
	logger     *slog.Logger
	includePII bool
	enabled    bool
}

// NewAuditLogger creates an enabled AuditLogger that anonymizes users.
func NewAuditLogger(logger *slog.Logger) *AuditLogger {
	return NewAuditLoggerWithConfig(logger, AuditLoggingConfig{Enabled: true})
}

// NewAuditLoggerWithConfig creates an AuditLogger from config.
func NewAuditLoggerWithConfig(logger *slog.Logger, config AuditLoggingConfig) *AuditLogger {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuditLogger{
		logger:     logger.With(logging.KeyComponent, "audit"),
		includePII: config.IncludePII,
		enabled:    config.Enabled,
	}
}

// Log writes fo at info level on success and warn level on failure. A nil
// AuditLogger discards the record.
func (al *AuditLogger) Log(ctx context.Context, fo *FileOperation) {
	if al == nil || !al.enabled || fo == nil {
		return
	}

	var attrs []slog.Attr
	if al.includePII {
		attrs = fo.LogAuditAttrs()
	} else {
		attrs = fo.LogAttrs()
	}

	level := slog.LevelInfo
	msg := "file_operation"
	if !fo.Success {
		level = slog.LevelWarn
		msg = "file_operation_failed"
	}
	al.logger.LogAttrs(ctx, level, msg, attrs...)
}
