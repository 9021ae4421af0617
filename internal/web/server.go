package web

import (
	"context"
	"embed"
	"html/template"
	"io/fs"
	"log/slog"
	"net/http"
	"time"

	"github.com/julienschmidt/httprouter"
	"github.com/rs/cors"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"github.com/teemow/drivemanager/internal/directory"
	"github.com/teemow/drivemanager/internal/drive"
	"github.com/teemow/drivemanager/internal/events"
	"github.com/teemow/drivemanager/internal/instrumentation"
	"github.com/teemow/drivemanager/internal/logging"
	"github.com/teemow/drivemanager/internal/notice"
	"github.com/teemow/drivemanager/internal/session"
)

//go:embed templates/*.html
var templateFS embed.FS

//go:embed static
var staticFS embed.FS

const (
	// MaxUploadMemory is the part of a multipart upload held in memory;
	// larger files spool to disk.
	MaxUploadMemory = 32 << 20

	// DefaultSignInRate limits how often the consent flow may be started.
	DefaultSignInRate = rate.Limit(1)

	// DefaultSignInBurst is the burst allowed above DefaultSignInRate.
	DefaultSignInBurst = 5
)

// SessionService is the session manager as seen by the views.
type SessionService interface {
	Session() session.Session
	State() session.State
	SignIn(ctx context.Context) (string, error)
	CompleteSignIn(ctx context.Context, cb session.Callback) error
	SignOut(ctx context.Context) error
}

// FileService is the directory service as seen by the views.
type FileService interface {
	Files() []drive.FileRecord
	Lookup(fileID string) (drive.FileRecord, bool)
	Pending(fileID string) bool
	Uploading() bool
	Upload(ctx context.Context, intent directory.UploadIntent) error
	Delete(ctx context.Context, fileID string) error
	Download(ctx context.Context, record drive.FileRecord) (*directory.Blob, error)
}

// NoticeBoard is the dismissible message slot.
type NoticeBoard interface {
	Current() (notice.Notice, bool)
	Dismiss()
}

// Config holds the Server's collaborators.
type Config struct {
	Session SessionService
	Files   FileService
	Notices NoticeBoard
	Events  *events.Broadcaster
	Metrics *instrumentation.Metrics
	Logger  *slog.Logger

	// CORSOrigins may read the JSON API cross-origin. Empty disables CORS.
	CORSOrigins []string

	// SignInRate and SignInBurst bound POST /signin. Zero uses the defaults.
	SignInRate  rate.Limit
	SignInBurst int
}

// Server renders the UI and dispatches its actions.
type Server struct {
	session SessionService
	files   FileService
	notices NoticeBoard
	events  *events.Broadcaster
	metrics *instrumentation.Metrics
	logger  *slog.Logger

	templates     *template.Template
	signInLimiter *rate.Limiter
	corsOrigins   []string
}

// NewServer parses the embedded templates and creates a Server.
func NewServer(config Config) (*Server, error) {
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	limit := config.SignInRate
	if limit == 0 {
		limit = DefaultSignInRate
	}
	burst := config.SignInBurst
	if burst == 0 {
		burst = DefaultSignInBurst
	}

	tmpl, err := template.ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, err
	}

	return &Server{
		session:       config.Session,
		files:         config.Files,
		notices:       config.Notices,
		events:        config.Events,
		metrics:       config.Metrics,
		logger:        logging.WithComponent(logger, "web"),
		templates:     tmpl,
		signInLimiter: rate.NewLimiter(limit, burst),
		corsOrigins:   config.CORSOrigins,
	}, nil
}

// Handler returns the routed, instrumented handler for the UI.
func (s *Server) Handler() http.Handler {
	router := httprouter.New()

	s.handle(router, http.MethodGet, "/", s.handleIndex)
	s.handle(router, http.MethodPost, "/signin", s.handleSignIn)
	s.handle(router, http.MethodGet, "/oauth/callback", s.handleCallback)
	s.handle(router, http.MethodPost, "/signout", s.handleSignOut)
	s.handle(router, http.MethodPost, "/files", s.handleUpload)
	s.handle(router, http.MethodPost, "/files/:id/delete", s.handleDelete)
	s.handle(router, http.MethodGet, "/files/:id/download", s.handleDownload)
	s.handle(router, http.MethodPost, "/notice/dismiss", s.handleDismiss)
	s.handle(router, http.MethodGet, "/events", s.handleEvents)
	s.handle(router, http.MethodGet, "/api/session", s.handleAPISession)
	s.handle(router, http.MethodGet, "/api/files", s.handleAPIFiles)

	static, _ := fs.Sub(staticFS, "static")
	router.Handler(http.MethodGet, "/static/*filepath", http.StripPrefix("/static/", http.FileServer(http.FS(static))))

	var h http.Handler = router
	if len(s.corsOrigins) > 0 {
		h = cors.New(cors.Options{
			AllowedOrigins: s.corsOrigins,
			AllowedMethods: []string{http.MethodGet},
		}).Handler(h)
	}
	return otelhttp.NewHandler(h, "drivemanager")
}

// handle registers h with tracing and request metrics labelled by the
// route pattern rather than the concrete path.
func (s *Server) handle(router *httprouter.Router, method, pattern string, h httprouter.Handle) {
	route := method + " " + pattern
	router.Handle(method, pattern, func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		start := time.Now()
		if labeler, ok := otelhttp.LabelerFromContext(r.Context()); ok {
			labeler.Add(attribute.String("http.route", pattern))
		}
		span := trace.SpanFromContext(r.Context())
		span.SetName(route)
		span.SetAttributes(attribute.String("http.route", pattern))

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		h(rec, r, p)

		s.metrics.RecordHTTPRequest(r.Context(), method, pattern, rec.status, time.Since(start))
	})
}
