package directory

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/teemow/drivemanager/internal/apperr"
	"github.com/teemow/drivemanager/internal/drive"
	"github.com/teemow/drivemanager/internal/events"
	"github.com/teemow/drivemanager/internal/instrumentation"
	"github.com/teemow/drivemanager/internal/logging"
)

var (
	// ErrUploadInProgress rejects an upload while another is running.
	ErrUploadInProgress = errors.New("an upload is already in progress")

	// ErrDeletePending rejects a delete for a file already being deleted.
	ErrDeletePending = errors.New("a delete for this file is already in progress")
)

// DescriptionLayout formats the default upload description timestamp.
const DescriptionLayout = "2006-01-02 15:04:05"

// Remote is the Drive API surface the Service needs.
type Remote interface {
	ListRecent(ctx context.Context, limit int) ([]drive.FileRecord, error)
	Upload(ctx context.Context, name string, content io.Reader, opts drive.UploadOptions) (drive.FileRecord, error)
	Download(ctx context.Context, fileID string) (*drive.Download, error)
	Delete(ctx context.Context, fileID string) error
}

// Reporter surfaces a failed operation to the user.
type Reporter interface {
	Report(ctx context.Context, operation string, err error)
}

// UploadIntent is one file picked for upload.
type UploadIntent struct {
	Content     io.Reader
	FileName    string
	ContentType string
	// Description defaults to "Uploaded on <timestamp>".
	Description string
}

// Blob is an open download. The caller closes Content.
type Blob struct {
	Name          string
	MimeType      string
	ContentLength int64
	Content       io.ReadCloser
}

// Config holds the Service's collaborators. Everything but Remote is optional.
type Config struct {
	Remote    Remote
	Reporter  Reporter
	Publisher events.Publisher
	Audit     *instrumentation.AuditLogger
	Logger    *slog.Logger

	// PageSize is the number of records Refresh loads.
	PageSize int

	// Account returns the signed-in user's email for audit records.
	Account func() string

	// Now overrides the clock used for upload descriptions.
	Now func() time.Time

	// Unauthorized is called when Drive rejects the access token.
	Unauthorized func(ctx context.Context)
}

// Service is the File Directory Service.
type Service struct {
	remote       Remote
	reporter     Reporter
	publisher    events.Publisher
	audit        *instrumentation.AuditLogger
	logger       *slog.Logger
	pageSize     int
	account      func() string
	now          func() time.Time
	unauthorized func(ctx context.Context)

	mu         sync.RWMutex
	files      []drive.FileRecord
	pending    map[string]bool
	uploading  bool
	// generation is bumped by Clear; listings started before it are dropped.
	generation uint64
}

// NewService creates a Service with an empty listing.
func NewService(config Config) *Service {
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	pageSize := config.PageSize
	if pageSize <= 0 {
		pageSize = drive.DefaultPageSize
	}
	account := config.Account
	if account == nil {
		account = func() string { return "" }
	}
	now := config.Now
	if now == nil {
		now = time.Now
	}

	return &Service{
		remote:       config.Remote,
		reporter:     config.Reporter,
		publisher:    config.Publisher,
		audit:        config.Audit,
		logger:       logging.WithComponent(logger, "directory"),
		pageSize:     pageSize,
		account:      account,
		now:          now,
		unauthorized: config.Unauthorized,
		pending:      make(map[string]bool),
	}
}

// ListRecent replaces the listing with up to limit of the most recently
// modified files. On failure the previous listing is kept.
func (s *Service) ListRecent(ctx context.Context, limit int) error {
	if limit <= 0 {
		limit = s.pageSize
	}

	s.mu.RLock()
	gen := s.generation
	s.mu.RUnlock()

	records, err := s.remote.ListRecent(ctx, limit)
	if err != nil {
		err = apperr.Wrap(apperr.ErrList, err)
		if s.current(gen) {
			s.report(ctx, instrumentation.OperationList, err)
		}
		return err
	}

	s.mu.Lock()
	if s.generation != gen {
		s.mu.Unlock()
		s.logger.Debug("dropping listing started before clear", slog.Int("count", len(records)))
		return nil
	}
	s.files = records
	s.mu.Unlock()

	s.logger.Debug("listing replaced", slog.Int("count", len(records)))
	s.publish(events.Event{Type: events.TypeFiles})
	return nil
}

// Refresh reloads the first page of the listing.
func (s *Service) Refresh(ctx context.Context) error {
	return s.ListRecent(ctx, s.pageSize)
}

// Upload sends intent to Drive and then reloads the listing. Only one upload
// runs at a time.
func (s *Service) Upload(ctx context.Context, intent UploadIntent) error {
	s.mu.Lock()
	if s.uploading {
		s.mu.Unlock()
		return ErrUploadInProgress
	}
	s.uploading = true
	s.mu.Unlock()
	s.publish(events.Event{Type: events.TypePending})

	defer func() {
		s.mu.Lock()
		s.uploading = false
		s.mu.Unlock()
		s.publish(events.Event{Type: events.TypePending})
	}()

	description := intent.Description
	if description == "" {
		description = "Uploaded on " + s.now().Format(DescriptionLayout)
	}

	counter := &countingReader{r: intent.Content}
	op := instrumentation.NewFileOperation(instrumentation.OperationUpload).
		WithUser(s.account()).
		WithFile("", intent.FileName, intent.ContentType)

	record, err := s.remote.Upload(ctx, intent.FileName, counter, drive.UploadOptions{
		MimeType:    intent.ContentType,
		Description: description,
	})
	op.FileID = record.ID
	s.audit.Log(ctx, op.WithBytes(counter.n).WithSpanContext(ctx).Complete(err))
	if err != nil {
		err = apperr.Wrap(apperr.ErrUpload, err)
		s.report(ctx, instrumentation.OperationUpload, err)
		return err
	}

	s.logger.Info("file uploaded", logging.FileID(record.ID), slog.Int64("bytes", counter.n))

	// A failed reload is reported on its own; the upload itself succeeded.
	_ = s.Refresh(ctx)
	return nil
}

// Delete removes fileID from Drive and then from the listing. Deletes for
// distinct files may run concurrently.
func (s *Service) Delete(ctx context.Context, fileID string) error {
	s.mu.Lock()
	if s.pending[fileID] {
		s.mu.Unlock()
		return ErrDeletePending
	}
	s.pending[fileID] = true
	record, _ := s.lookupLocked(fileID)
	s.mu.Unlock()
	s.publish(events.Event{Type: events.TypePending, FileID: fileID})

	defer func() {
		s.mu.Lock()
		delete(s.pending, fileID)
		s.mu.Unlock()
		s.publish(events.Event{Type: events.TypePending, FileID: fileID})
	}()

	op := instrumentation.NewFileOperation(instrumentation.OperationDelete).
		WithUser(s.account()).
		WithFile(fileID, record.Name, record.MimeType)

	err := s.remote.Delete(ctx, fileID)
	s.audit.Log(ctx, op.WithSpanContext(ctx).Complete(err))
	if err != nil {
		err = apperr.Wrap(apperr.ErrDelete, err)
		s.report(ctx, instrumentation.OperationDelete, err)
		return err
	}

	s.mu.Lock()
	for i, f := range s.files {
		if f.ID == fileID {
			s.files = append(s.files[:i:i], s.files[i+1:]...)
			break
		}
	}
	s.mu.Unlock()

	s.logger.Info("file deleted", logging.FileID(fileID))
	s.publish(events.Event{Type: events.TypeFiles})
	return nil
}

// Download opens the content of record. The MIME type falls back to the
// record's when Drive does not report one.
func (s *Service) Download(ctx context.Context, record drive.FileRecord) (*Blob, error) {
	op := instrumentation.NewFileOperation(instrumentation.OperationDownload).
		WithUser(s.account()).
		WithFile(record.ID, record.Name, record.MimeType)

	dl, err := s.remote.Download(ctx, record.ID)
	if err != nil {
		s.audit.Log(ctx, op.WithSpanContext(ctx).Complete(err))
		err = apperr.Wrap(apperr.ErrDownload, err)
		s.report(ctx, instrumentation.OperationDownload, err)
		return nil, err
	}
	s.audit.Log(ctx, op.WithBytes(dl.ContentLength).WithSpanContext(ctx).Complete(nil))

	mimeType := dl.MimeType
	if mimeType == "" {
		mimeType = record.MimeType
	}
	if mimeType == "" {
		mimeType = drive.DefaultMimeType
	}

	return &Blob{
		Name:          record.Name,
		MimeType:      mimeType,
		ContentLength: dl.ContentLength,
		Content:       dl.Content,
	}, nil
}

// Clear drops the listing.
func (s *Service) Clear() {
	s.mu.Lock()
	had := s.files != nil
	s.files = nil
	s.generation++
	s.mu.Unlock()

	if had {
		s.publish(events.Event{Type: events.TypeFiles})
	}
}

// Files returns a copy of the listing.
func (s *Service) Files() []drive.FileRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]drive.FileRecord, len(s.files))
	copy(out, s.files)
	return out
}

// Lookup returns the listed record with fileID.
func (s *Service) Lookup(fileID string) (drive.FileRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lookupLocked(fileID)
}

func (s *Service) lookupLocked(fileID string) (drive.FileRecord, bool) {
	for _, f := range s.files {
		if f.ID == fileID {
			return f, true
		}
	}
	return drive.FileRecord{ID: fileID}, false
}

// Pending reports whether a delete for fileID is in flight.
func (s *Service) Pending(fileID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.pending[fileID]
}

// Uploading reports whether an upload is in flight.
func (s *Service) Uploading() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.uploading
}

func (s *Service) current(gen uint64) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.generation == gen
}

// report surfaces err to the user and ends the session when Drive rejected
// the token.
func (s *Service) report(ctx context.Context, operation string, err error) {
	if s.reporter != nil {
		s.reporter.Report(ctx, operation, err)
	} else {
		logging.WithOperation(s.logger, operation).ErrorContext(ctx, "operation failed",
			logging.Err(err),
			slog.Int("http_status", apperr.StatusCode(err)))
	}

	if apperr.IsUnauthorized(err) && s.unauthorized != nil {
		s.unauthorized(ctx)
	}
}

func (s *Service) publish(event events.Event) {
	if s.publisher != nil {
		s.publisher.Publish(event)
	}
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}
