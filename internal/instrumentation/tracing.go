package instrumentation

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// TracerName is the tracer used for every span this module starts.
const TracerName = "github.com/teemow/drivemanager"

// Span attribute keys.
const (
	SpanAttrService   = "google.service"
	SpanAttrOperation = "google.operation"
	SpanAttrFileID    = "drive.file_id"
	SpanAttrMimeType  = "drive.mime_type"
	SpanAttrLimit     = "drive.limit"
	SpanAttrBytes     = "drive.bytes"
)

// SpanAttributeBuilder helps construct span attributes with consistent keys.
type SpanAttributeBuilder struct {
	attrs []attribute.KeyValue
}

// NewSpanAttributeBuilder creates a new SpanAttributeBuilder.
func NewSpanAttributeBuilder() *SpanAttributeBuilder {
	return &SpanAttributeBuilder{attrs: make([]attribute.KeyValue, 0, 4)}
}

// WithFile adds the file ID. Empty IDs are skipped.
func (b *SpanAttributeBuilder) WithFile(fileID string) *SpanAttributeBuilder {
	if fileID != "" {
		b.attrs = append(b.attrs, attribute.String(SpanAttrFileID, fileID))
	}
	return b
}

// WithMimeType adds the content type. Empty types are skipped.
func (b *SpanAttributeBuilder) WithMimeType(mimeType string) *SpanAttributeBuilder {
	if mimeType != "" {
		b.attrs = append(b.attrs, attribute.String(SpanAttrMimeType, mimeType))
	}
	return b
}

// WithLimit adds the requested page size.
func (b *SpanAttributeBuilder) WithLimit(limit int) *SpanAttributeBuilder {
	b.attrs = append(b.attrs, attribute.Int(SpanAttrLimit, limit))
	return b
}

// Build returns the constructed attributes.
func (b *SpanAttributeBuilder) Build() []attribute.KeyValue {
	return b.attrs
}

// StartSpan starts a span on the global tracer provider. The caller ends it.
func StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	tracer := otel.GetTracerProvider().Tracer(TracerName)
	return tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

// StartGoogleAPISpan starts a client span named google.<service>.<operation>.
func StartGoogleAPISpan(ctx context.Context, service, operation string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	allAttrs := make([]attribute.KeyValue, 0, len(attrs)+2)
	allAttrs = append(allAttrs,
		attribute.String(SpanAttrService, service),
		attribute.String(SpanAttrOperation, operation),
	)
	allAttrs = append(allAttrs, attrs...)

	tracer := otel.GetTracerProvider().Tracer(TracerName)
	return tracer.Start(ctx, "google."+service+"."+operation,
		trace.WithAttributes(allAttrs...),
		trace.WithSpanKind(trace.SpanKindClient),
	)
}

// SetSpanError records err on the span and marks it failed. A nil err is a no-op.
func SetSpanError(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}

// SetSpanSuccess sets the span status to OK.
func SetSpanSuccess(span trace.Span) {
	span.SetStatus(codes.Ok, "")
}

// EndSpan sets the span status from err and ends it.
func EndSpan(span trace.Span, err error) {
	if err != nil {
		SetSpanError(span, err)
	} else {
		SetSpanSuccess(span)
	}
	span.End()
}

// GetTraceID returns the trace ID of the span in ctx, or "".
func GetTraceID(ctx context.Context) string {
	sc := trace.SpanFromContext(ctx).SpanContext()
	if sc.IsValid() {
		return sc.TraceID().String()
	}
	return ""
}

// GetSpanID returns the span ID of the span in ctx, or "".
func GetSpanID(ctx context.Context) string {
	sc := trace.SpanFromContext(ctx).SpanContext()
	if sc.IsValid() {
		return sc.SpanID().String()
	}
	return ""
}
