package api

import (
	"fmt"
	"net/http"

	"github.com/chis/embedlab/internal/codec"
	"github.com/chis/embedlab/internal/options"
	"github.com/chis/embedlab/internal/output"
)

// EncodeResponse is returned by POST /api/embed/encode.
type EncodeResponse struct {
	Token    string   `json:"token"`
	EmbedURL string   `json:"embed_url"`
	EditURL  string   `json:"edit_url"`
	Iframe   string   `json:"iframe"`
	Warnings []string `json:"warnings,omitempty"`
}

// DecodeResponse is returned by GET /api/embed/decode.
type DecodeResponse struct {
	Assignment codec.Assignment       `json:"assignment"`
	Options    options.DisplayOptions `json:"options"`
	ParseError string                 `json:"parse_error,omitempty"`
	Warnings   []string               `json:"warnings,omitempty"`
}

// handleHealth handles GET /api/health
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	RespondSuccess(w, map[string]any{
		"status":   "ok",
		"version":  output.Version,
		"sessions": s.sessions.Len(),
		"catalog":  s.storage != nil,
	})
}

// handleOptions handles GET /api/options
func (s *Server) handleOptions(w http.ResponseWriter, r *http.Request) {
	RespondSuccess(w, options.Parse(r.URL.Query()))
}

// handleEncode handles POST /api/embed/encode. Display options for the
// generated links come from the query string. The body is merged over the
// default template. With ?strict=true an assignment that fails validation
// is rejected.
func (s *Server) handleEncode(w http.ResponseWriter, r *http.Request) {
	a := codec.DefaultAssignment()
	if !decodeJSONRequest(w, r, &a, false) {
		return
	}

	warnings := a.Warnings()
	if r.URL.Query().Get("strict") == "true" && len(warnings) > 0 {
		RespondError(w, http.StatusUnprocessableEntity, KindInvariant, fmt.Errorf("invalid assignment: %w", a.Validate()))
		return
	}

	token, err := codec.Encode(a)
	if err != nil {
		RespondInternalError(w, err)
		return
	}

	RespondSuccess(w, s.links(token, options.Parse(r.URL.Query()), warnings))
}

func (s *Server) links(token string, opts options.DisplayOptions, warnings []string) EncodeResponse {
	embedURL := options.EmbedURL(s.publicURL, token, opts)
	return EncodeResponse{
		Token:    token,
		EmbedURL: embedURL,
		EditURL:  options.EditURL(s.publicURL, token),
		Iframe:   options.IframeHTML(embedURL),
		Warnings: warnings,
	}
}

// handleDecode handles GET /api/embed/decode?data=TOKEN. A token that
// cannot be decoded yields the default template and a parse_error rather
// than an error status, the same as the embed page.
func (s *Server) handleDecode(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	resp := DecodeResponse{
		Assignment: codec.DefaultAssignment(),
		Options:    options.Parse(query),
	}

	if token := options.Token(query); token != "" {
		a, err := codec.Decode(token, codec.DefaultAssignment())
		if err != nil {
			resp.ParseError = err.Error()
		} else {
			resp.Assignment = a
		}
	}
	resp.Warnings = resp.Assignment.Warnings()

	RespondSuccess(w, resp)
}
