package web

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strconv"

	"github.com/julienschmidt/httprouter"

	"github.com/teemow/drivemanager/internal/directory"
	"github.com/teemow/drivemanager/internal/logging"
	"github.com/teemow/drivemanager/internal/session"
)

func seeOther(w http.ResponseWriter, r *http.Request, target string) {
	http.Redirect(w, r, target, http.StatusSeeOther)
}

// guard rejects cross-site form posts and, when signedIn is set, requests
// made while signed out.
func (s *Server) guard(w http.ResponseWriter, r *http.Request, signedIn bool) bool {
	if !sameOrigin(r) {
		http.Error(w, "cross-origin request rejected", http.StatusForbidden)
		return false
	}
	if signedIn && !s.session.Session().SignedIn {
		seeOther(w, r, "/")
		return false
	}
	return true
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	if err := s.templates.ExecuteTemplate(w, "page.html", s.pageData()); err != nil {
		s.logger.ErrorContext(r.Context(), "failed to render page", logging.Err(err))
	}
}

func (s *Server) handleSignIn(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	if !s.guard(w, r, false) {
		return
	}
	if !s.signInLimiter.Allow() {
		http.Error(w, "too many sign-in attempts", http.StatusTooManyRequests)
		return
	}

	consentURL, err := s.session.SignIn(r.Context())
	if err != nil {
		seeOther(w, r, "/")
		return
	}
	seeOther(w, r, consentURL)
}

func (s *Server) handleCallback(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	q := r.URL.Query()
	_ = s.session.CompleteSignIn(r.Context(), session.Callback{
		State: q.Get("state"),
		Code:  q.Get("code"),
		Error: q.Get("error"),
	})
	seeOther(w, r, "/")
}

func (s *Server) handleSignOut(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	if !s.guard(w, r, false) {
		return
	}
	_ = s.session.SignOut(r.Context())
	seeOther(w, r, "/")
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	if !s.guard(w, r, true) {
		return
	}

	if err := r.ParseMultipartForm(MaxUploadMemory); err != nil {
		http.Error(w, "invalid upload form", http.StatusBadRequest)
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	file, header, err := r.FormFile("file")
	if err != nil {
		http.Error(w, "no file selected", http.StatusBadRequest)
		return
	}
	defer file.Close()

	// The form's page may navigate away while Drive is still working; the
	// upload must finish regardless.
	err = s.files.Upload(context.WithoutCancel(r.Context()), directory.UploadIntent{
		Content:     file,
		FileName:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Description: r.FormValue("description"),
	})
	if errors.Is(err, directory.ErrUploadInProgress) {
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}
	seeOther(w, r, "/")
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
	if !s.guard(w, r, true) {
		return
	}

	fileID := p.ByName("id")
	err := s.files.Delete(context.WithoutCancel(r.Context()), fileID)
	if errors.Is(err, directory.ErrDeletePending) {
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}
	seeOther(w, r, "/")
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
	if !s.session.Session().SignedIn {
		seeOther(w, r, "/")
		return
	}

	record, ok := s.files.Lookup(p.ByName("id"))
	if !ok {
		http.NotFound(w, r)
		return
	}

	blob, err := s.files.Download(r.Context(), record)
	if err != nil {
		seeOther(w, r, "/")
		return
	}
	defer blob.Content.Close()

	w.Header().Set("Content-Type", blob.MimeType)
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": blob.Name}))
	if blob.ContentLength > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(blob.ContentLength, 10))
	}
	w.WriteHeader(http.StatusOK)

	if _, err := io.Copy(w, blob.Content); err != nil {
		s.logger.WarnContext(r.Context(), "download interrupted",
			logging.FileID(record.ID),
			logging.Err(err))
	}
}

func (s *Server) handleDismiss(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	if !s.guard(w, r, false) {
		return
	}
	s.notices.Dismiss()
	s.logger.Debug("notice dismissed", slog.String("remote", r.RemoteAddr))
	seeOther(w, r, "/")
}
