package web

import (
	"encoding/json"
	"net/http"

	"github.com/julienschmidt/httprouter"
)

// SessionResponse is the body of GET /api/session.
type SessionResponse struct {
	State     string      `json:"state"`
	SignedIn  bool        `json:"signedIn"`
	UserEmail string      `json:"userEmail,omitempty"`
	Notice    *NoticeView `json:"notice,omitempty"`
}

// FilesResponse is the body of GET /api/files.
type FilesResponse struct {
	Files     []FileView `json:"files"`
	Uploading bool       `json:"uploading"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) handleAPISession(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
	sess := s.session.Session()
	writeJSON(w, http.StatusOK, SessionResponse{
		State:     s.session.State().String(),
		SignedIn:  sess.SignedIn,
		UserEmail: sess.UserEmail,
		Notice:    s.noticeView(),
	})
}

func (s *Server) handleAPIFiles(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
	if !s.session.Session().SignedIn {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "not signed in"})
		return
	}
	writeJSON(w, http.StatusOK, FilesResponse{
		Files:     s.fileViews(),
		Uploading: s.files.Uploading(),
	})
}
