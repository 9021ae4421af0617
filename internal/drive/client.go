package drive

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	drive "google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/teemow/drivemanager/internal/instrumentation"
)

const (
	// DefaultPageSize is the number of records in the recent-files listing.
	DefaultPageSize = 50

	// DefaultMimeType is sent when an upload carries no content type.
	DefaultMimeType = "application/octet-stream"

	// ListFields is the field mask of the listing call.
	ListFields = "files(id, name, mimeType, modifiedTime, size)"

	// ListOrder sorts the listing newest first.
	ListOrder = "modifiedTime desc"

	nativePrefix = "application/vnd.google-apps."
)

// Options configures a Client.
type Options struct {
	// Metrics receives per-call metrics. Nil disables recording.
	Metrics *instrumentation.Metrics

	// Account returns the signed-in address, used for detailed metric labels.
	Account func() string
}

// Client wraps the Google Drive API service.
type Client struct {
	service *drive.Service
	metrics *instrumentation.Metrics
	account func() string
}

// NewClient creates a Drive client. Authentication comes from clientOpts,
// normally option.WithHTTPClient with an oauth2 client.
func NewClient(ctx context.Context, opts Options, clientOpts ...option.ClientOption) (*Client, error) {
	service, err := drive.NewService(ctx, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Drive service: %w", err)
	}

	account := opts.Account
	if account == nil {
		account = func() string { return "" }
	}

	return &Client{
		service: service,
		metrics: opts.Metrics,
		account: account,
	}, nil
}

// ListRecent returns up to limit files ordered by modification time, newest
// first. Only the first page is fetched. A non-positive limit uses
// DefaultPageSize.
func (c *Client) ListRecent(ctx context.Context, limit int) (records []FileRecord, err error) {
	if limit <= 0 {
		limit = DefaultPageSize
	}

	ctx, done := c.track(ctx, instrumentation.OperationList,
		instrumentation.NewSpanAttributeBuilder().WithLimit(limit).Build())
	defer func() { done(err) }()

	fileList, err := c.service.Files.List().
		Context(ctx).
		Fields(ListFields).
		PageSize(int64(limit)).
		OrderBy(ListOrder).
		Do()
	if err != nil {
		return nil, fmt.Errorf("failed to list files: %w", err)
	}

	records = make([]FileRecord, 0, len(fileList.Files))
	for _, f := range fileList.Files {
		records = append(records, convertToFileRecord(f))
	}
	return records, nil
}

// Upload creates a file named name from content with a single multipart
// request. The metadata part carries the name, content type and description.
func (c *Client) Upload(ctx context.Context, name string, content io.Reader, opts UploadOptions) (record FileRecord, err error) {
	if name == "" {
		return FileRecord{}, fmt.Errorf("file name is required")
	}
	if content == nil {
		return FileRecord{}, fmt.Errorf("file content is required")
	}

	mimeType := opts.MimeType
	if mimeType == "" {
		mimeType = DefaultMimeType
	}

	ctx, done := c.track(ctx, instrumentation.OperationUpload,
		instrumentation.NewSpanAttributeBuilder().WithMimeType(mimeType).Build())
	defer func() { done(err) }()

	file := &drive.File{
		Name:        name,
		MimeType:    mimeType,
		Description: opts.Description,
	}

	counter := &countingReader{r: content}
	driveFile, err := c.service.Files.Create(file).
		Context(ctx).
		// ChunkSize(0) keeps every upload a single multipart request.
		Media(counter, googleapi.ContentType(mimeType), googleapi.ChunkSize(0)).
		Fields("id, name, mimeType, modifiedTime, size").
		Do()
	if err != nil {
		return FileRecord{}, fmt.Errorf("failed to upload file: %w", err)
	}

	c.metrics.RecordTransfer(ctx, instrumentation.DirectionUpload, counter.n.Load())
	return convertToFileRecord(driveFile), nil
}

// Download opens the raw content of fileID.
func (c *Client) Download(ctx context.Context, fileID string) (dl *Download, err error) {
	if fileID == "" {
		return nil, fmt.Errorf("fileID is required")
	}

	ctx, done := c.track(ctx, instrumentation.OperationDownload,
		instrumentation.NewSpanAttributeBuilder().WithFile(fileID).Build())
	defer func() { done(err) }()

	resp, err := c.service.Files.Get(fileID).Context(ctx).Download()
	if err != nil {
		return nil, fmt.Errorf("failed to download file %s: %w", fileID, err)
	}

	body := &countingReadCloser{
		countingReader: countingReader{r: resp.Body},
		closer:         resp.Body,
		onClose: func(n int64) {
			c.metrics.RecordTransfer(context.WithoutCancel(ctx), instrumentation.DirectionDownload, n)
		},
	}

	return &Download{
		MimeType:      resp.Header.Get("Content-Type"),
		ContentLength: resp.ContentLength,
		Content:       body,
	}, nil
}

// Delete permanently deletes fileID, bypassing the trash.
func (c *Client) Delete(ctx context.Context, fileID string) (err error) {
	if fileID == "" {
		return fmt.Errorf("fileID is required")
	}

	ctx, done := c.track(ctx, instrumentation.OperationDelete,
		instrumentation.NewSpanAttributeBuilder().WithFile(fileID).Build())
	defer func() { done(err) }()

	if err := c.service.Files.Delete(fileID).Context(ctx).Do(); err != nil {
		return fmt.Errorf("failed to delete file %s: %w", fileID, err)
	}
	return nil
}

// track opens a span for operation and returns the function that closes it
// and records the call's metrics.
func (c *Client) track(ctx context.Context, operation string, attrs []attribute.KeyValue) (context.Context, func(error)) {
	start := time.Now()
	ctx, span := instrumentation.StartGoogleAPISpan(ctx, instrumentation.ServiceDrive, operation, attrs...)
	return ctx, func(err error) {
		status := instrumentation.StatusSuccess
		if err != nil {
			status = instrumentation.StatusError
		}
		c.metrics.RecordGoogleAPIOperation(ctx, instrumentation.ServiceDrive, operation, status, c.account(), time.Since(start))
		instrumentation.EndSpan(span, err)
	}
}

// convertToFileRecord converts a Drive API File to a FileRecord.
func convertToFileRecord(f *drive.File) FileRecord {
	record := FileRecord{
		ID:       f.Id,
		Name:     f.Name,
		MimeType: f.MimeType,
		Size:     sizeOf(f),
	}
	if f.ModifiedTime != "" {
		if t, err := time.Parse(time.RFC3339, f.ModifiedTime); err == nil {
			record.ModifiedTime = t
		}
	}
	return record
}

// sizeOf renders Drive's size field. The generated struct cannot tell an
// absent size from zero, so a zero size on a Google-native type is absent.
func sizeOf(f *drive.File) string {
	if f.Size == 0 && strings.HasPrefix(f.MimeType, nativePrefix) {
		return ""
	}
	return strconv.FormatInt(f.Size, 10)
}

type countingReader struct {
	r io.Reader
	n atomic.Int64
}

func (cr *countingReader) Read(p []byte) (int, error) {
	n, err := cr.r.Read(p)
	cr.n.Add(int64(n))
	return n, err
}

type countingReadCloser struct {
	countingReader
	closer  io.Closer
	onClose func(n int64)
	closed  atomic.Bool
}

func (c *countingReadCloser) Close() error {
	if c.closed.CompareAndSwap(false, true) && c.onClose != nil {
		c.onClose(c.n.Load())
	}
	return c.closer.Close()
}
