package api

import (
	"fmt"
	"net/http"

	"github.com/chis/embedlab/internal/codec"
	"github.com/chis/embedlab/internal/options"
	"github.com/chis/embedlab/internal/storage"
)

// ChallengeResponse is a catalog challenge with ready-made embed links.
type ChallengeResponse struct {
	storage.Challenge
	EncodeResponse
}

// requireStorage checks if storage service is available and returns an error response if not
func (s *Server) requireStorage(w http.ResponseWriter) bool {
	if s.storage == nil {
		RespondDomainError(w, errNoStorage)
		return false
	}
	return true
}

func (s *Server) lookupChallenge(w http.ResponseWriter, r *http.Request, category, id string) (storage.Challenge, bool) {
	if !s.requireStorage(w) {
		return storage.Challenge{}, false
	}

	ch, found, err := s.storage.GetChallenge(r.Context(), category, id)
	if err != nil {
		RespondInternalError(w, err)
		return storage.Challenge{}, false
	}
	if !found {
		RespondDomainError(w, fmt.Errorf("%w: %s/%s", errChallengeNotFound, category, id))
		return storage.Challenge{}, false
	}
	return ch, true
}

// handleCatalogCategories handles GET /api/catalog/categories
func (s *Server) handleCatalogCategories(w http.ResponseWriter, r *http.Request) {
	if !s.requireStorage(w) {
		return
	}

	categories, err := s.storage.ListCategories(r.Context())
	if err != nil {
		RespondInternalError(w, err)
		return
	}
	RespondSuccess(w, map[string]any{
		"categories": categories,
		"count":      len(categories),
	})
}

// handleCatalogList handles GET /api/catalog/{category}
func (s *Server) handleCatalogList(w http.ResponseWriter, r *http.Request) {
	if !s.requireStorage(w) {
		return
	}

	category := r.PathValue("category")
	challenges, err := s.storage.ListChallenges(r.Context(), category)
	if err != nil {
		RespondInternalError(w, err)
		return
	}
	RespondSuccess(w, map[string]any{
		"category":   category,
		"challenges": challenges,
		"count":      len(challenges),
	})
}

// handleCatalogChallenge handles GET /api/catalog/{category}/{id}
func (s *Server) handleCatalogChallenge(w http.ResponseWriter, r *http.Request) {
	ch, ok := s.lookupChallenge(w, r, r.PathValue("category"), r.PathValue("id"))
	if !ok {
		return
	}

	token, err := codec.Encode(ch.Assignment)
	if err != nil {
		RespondInternalError(w, err)
		return
	}
	RespondSuccess(w, ChallengeResponse{
		Challenge:      ch,
		EncodeResponse: s.links(token, options.Parse(r.URL.Query()), ch.Assignment.Warnings()),
	})
}
