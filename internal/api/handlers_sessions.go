package api

import (
	"net/http"

	"github.com/chis/embedlab/internal/logging"
	"github.com/chis/embedlab/internal/options"
	"github.com/chis/embedlab/internal/session"
	"github.com/chis/embedlab/internal/vfs"
)

// CreateSessionRequest selects what a new session is seeded from: an embed
// token, a catalog challenge, or neither for the default template.
type CreateSessionRequest struct {
	Token     string `json:"token,omitempty"`
	Category  string `json:"category,omitempty"`
	Challenge string `json:"challenge,omitempty"`
}

// FileNameRequest is the body of the active and main file endpoints.
type FileNameRequest struct {
	Filename string `json:"filename"`
}

// UpdateFileRequest is the body of PUT /api/sessions/{id}/files/{filename}.
type UpdateFileRequest struct {
	Content string `json:"content"`
}

// sessionFromRequest resolves {id}, writing a 404 when it is unknown.
func (s *Server) sessionFromRequest(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	sess, err := s.sessions.Get(r.PathValue("id"))
	if err != nil {
		RespondDomainError(w, err)
		return nil, false
	}
	return sess, true
}

// handleSessionCreate handles POST /api/sessions
func (s *Server) handleSessionCreate(w http.ResponseWriter, r *http.Request) {
	var req CreateSessionRequest
	if !decodeJSONRequest(w, r, &req, true) {
		return
	}

	var (
		sess *session.Session
		err  error
	)
	switch {
	case req.Category != "" || req.Challenge != "":
		if !validateRequired(w, "category", req.Category) || !validateRequired(w, "challenge", req.Challenge) {
			return
		}
		ch, ok := s.lookupChallenge(w, r, req.Category, req.Challenge)
		if !ok {
			return
		}
		sess, err = s.sessions.Create(ch.Assignment, options.Parse(r.URL.Query()))
	default:
		params := r.URL.Query()
		if req.Token != "" {
			params.Set(options.ParamData, req.Token)
		}
		sess, err = s.sessions.CreateFromToken(params)
	}
	if err != nil {
		RespondDomainError(w, err)
		return
	}

	logging.InfoContext(logging.WithSessionID(r.Context(), sess.ID), "Session opened")
	RespondCreated(w, sess.View())
}

// handleSessionGet handles GET /api/sessions/{id}
func (s *Server) handleSessionGet(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.sessionFromRequest(w, r)
	if !ok {
		return
	}
	RespondSuccess(w, sess.View())
}

// handleSessionClose handles DELETE /api/sessions/{id}
func (s *Server) handleSessionClose(w http.ResponseWriter, r *http.Request) {
	if err := s.sessions.Close(r.PathValue("id")); err != nil {
		RespondDomainError(w, err)
		return
	}
	RespondNoContent(w)
}

// handleSessionToken handles GET /api/sessions/{id}/token
func (s *Server) handleSessionToken(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.sessionFromRequest(w, r)
	if !ok {
		return
	}

	snapshot := sess.Snapshot()
	token, err := sess.Token()
	if err != nil {
		RespondInternalError(w, err)
		return
	}
	RespondSuccess(w, s.links(token, sess.Options(), snapshot.Warnings()))
}

// handleSetActiveFile handles PUT /api/sessions/{id}/active
func (s *Server) handleSetActiveFile(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.sessionFromRequest(w, r)
	if !ok {
		return
	}

	var req FileNameRequest
	if !decodeJSONRequest(w, r, &req, false) || !validateRequired(w, "filename", req.Filename) {
		return
	}
	if err := sess.SetActiveFile(req.Filename); err != nil {
		RespondDomainError(w, err)
		return
	}
	RespondSuccess(w, map[string]string{"active_file": req.Filename})
}

// handleSetMainFile handles PUT /api/sessions/{id}/main
func (s *Server) handleSetMainFile(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.sessionFromRequest(w, r)
	if !ok {
		return
	}

	var req FileNameRequest
	if !decodeJSONRequest(w, r, &req, false) || !validateRequired(w, "filename", req.Filename) {
		return
	}
	if err := sess.SetMainFile(req.Filename); err != nil {
		RespondDomainError(w, err)
		return
	}
	RespondSuccess(w, map[string]string{"main_file": req.Filename})
}

// handleFileGet handles GET /api/sessions/{id}/files/{filename...}
func (s *Server) handleFileGet(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.sessionFromRequest(w, r)
	if !ok {
		return
	}

	rec, err := sess.GetFile(r.PathValue("filename"))
	if err != nil {
		RespondDomainError(w, err)
		return
	}
	RespondSuccess(w, session.FileView{FileRecord: rec, Language: vfs.LanguageFor(rec.Filename)})
}

// handleFileUpdate handles PUT /api/sessions/{id}/files/{filename...}. The
// response carries the stored file, which is unchanged for readonly files.
func (s *Server) handleFileUpdate(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.sessionFromRequest(w, r)
	if !ok {
		return
	}

	var req UpdateFileRequest
	if !decodeJSONRequest(w, r, &req, false) {
		return
	}

	filename := r.PathValue("filename")
	if err := sess.UpdateFile(filename, req.Content); err != nil {
		RespondDomainError(w, err)
		return
	}

	rec, err := sess.GetFile(filename)
	if err != nil {
		RespondDomainError(w, err)
		return
	}
	RespondSuccess(w, session.FileView{FileRecord: rec, Language: vfs.LanguageFor(rec.Filename)})
}

// handleFileAdd handles POST /api/sessions/{id}/files
func (s *Server) handleFileAdd(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.sessionFromRequest(w, r)
	if !ok {
		return
	}

	var rec vfs.FileRecord
	if !decodeJSONRequest(w, r, &rec, false) || !validateRequired(w, "filename", rec.Filename) {
		return
	}
	if err := sess.AddFile(rec); err != nil {
		RespondDomainError(w, err)
		return
	}
	RespondCreated(w, session.FileView{FileRecord: rec, Language: vfs.LanguageFor(rec.Filename)})
}

// handleFileRemove handles DELETE /api/sessions/{id}/files/{filename...}
func (s *Server) handleFileRemove(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.sessionFromRequest(w, r)
	if !ok {
		return
	}

	if err := sess.RemoveFile(r.PathValue("filename")); err != nil {
		RespondDomainError(w, err)
		return
	}
	RespondSuccess(w, sess.View())
}
