// Package api serves embed tokens, editing sessions, and the challenge
// catalog over HTTP.
package api

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/chis/embedlab/internal/logging"
	"github.com/chis/embedlab/internal/session"
	"github.com/chis/embedlab/internal/storage"
)

// Server is the HTTP API server.
type Server struct {
	sessions    *session.Manager
	storage     storage.Storage
	publicURL   string
	handler     http.Handler
	httpServer  *http.Server
	rateLimiter *PathRateLimiter
}

// Config holds configuration for the API server.
type Config struct {
	Port      int
	PublicURL string // Base for generated embed links
	StaticDir string // Directory containing static UI files (optional)

	Sessions *session.Manager
	Storage  storage.Storage // Catalog storage (optional)

	// RateLimit limits session creation and encoding per client. Nil disables it.
	RateLimit *RateLimitConfig
}

// NewServer creates a new API server with the given configuration.
func NewServer(cfg Config) *Server {
	s := &Server{
		sessions:  cfg.Sessions,
		storage:   cfg.Storage,
		publicURL: strings.TrimRight(cfg.PublicURL, "/"),
	}

	if cfg.RateLimit != nil {
		s.rateLimiter = NewPathRateLimiter()
		s.rateLimiter.SetPathLimit("/api/sessions", *cfg.RateLimit)
		s.rateLimiter.SetPathLimit("/api/embed/encode", *cfg.RateLimit)
	}

	mux := http.NewServeMux()
	s.registerRoutes(mux, cfg.StaticDir)

	// CORS -> Correlation ID -> Request Logging -> Rate Limit (optional) -> Handler
	middlewares := []func(http.Handler) http.Handler{
		corsMiddleware,
		CorrelationIDMiddleware,
		RequestLoggingMiddleware,
	}
	if s.rateLimiter != nil {
		middlewares = append(middlewares, PathRateLimitMiddleware(s.rateLimiter))
	}
	s.handler = ChainMiddleware(mux, middlewares...)

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      s.handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// registerRoutes sets up all API routes
func (s *Server) registerRoutes(mux *http.ServeMux, staticDir string) {
	mux.HandleFunc("GET /api/health", s.handleHealth)

	// Tokens and display options
	mux.HandleFunc("GET /api/options", s.handleOptions)
	mux.HandleFunc("POST /api/embed/encode", s.handleEncode)
	mux.HandleFunc("GET /api/embed/decode", s.handleDecode)

	// Editing sessions
	mux.HandleFunc("POST /api/sessions", s.handleSessionCreate)
	mux.HandleFunc("GET /api/sessions/{id}", s.handleSessionGet)
	mux.HandleFunc("DELETE /api/sessions/{id}", s.handleSessionClose)
	mux.HandleFunc("GET /api/sessions/{id}/token", s.handleSessionToken)
	mux.HandleFunc("PUT /api/sessions/{id}/active", s.handleSetActiveFile)
	mux.HandleFunc("PUT /api/sessions/{id}/main", s.handleSetMainFile)
	mux.HandleFunc("POST /api/sessions/{id}/files", s.handleFileAdd)
	mux.HandleFunc("GET /api/sessions/{id}/files/{filename...}", s.handleFileGet)
	mux.HandleFunc("PUT /api/sessions/{id}/files/{filename...}", s.handleFileUpdate)
	mux.HandleFunc("DELETE /api/sessions/{id}/files/{filename...}", s.handleFileRemove)

	// WebSocket stream of active-file changes
	mux.HandleFunc("GET /api/sessions/{id}/events", s.handleSessionEvents)

	// Challenge catalog
	mux.HandleFunc("GET /api/catalog/categories", s.handleCatalogCategories)
	mux.HandleFunc("GET /api/catalog/{category}", s.handleCatalogList)
	mux.HandleFunc("GET /api/catalog/{category}/{id}", s.handleCatalogChallenge)

	if staticDir != "" {
		if _, err := os.Stat(staticDir); err == nil {
			logging.Info("Serving static UI from %s", staticDir)
			mux.Handle("/", spaHandler(staticDir))
		} else {
			logging.Warn("Static directory %s not found, UI will not be served", staticDir)
		}
	}
}

// Handler returns the server's handler with middleware applied.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start starts the HTTP server
func (s *Server) Start() error {
	logging.Info("Starting API server on %s", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server and closes all sessions.
func (s *Server) Shutdown(ctx context.Context) error {
	logging.Info("Shutting down API server...")

	if s.rateLimiter != nil {
		s.rateLimiter.Stop()
	}

	err := s.httpServer.Shutdown(ctx)
	s.sessions.CloseAll()
	return err
}

// corsMiddleware allows the embed page to be served from another origin.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" {
			w.Header().Set("Access-Control-Allow-Origin", origin)
		} else {
			w.Header().Set("Access-Control-Allow-Origin", "*")
		}

		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Correlation-ID")
		w.Header().Set("Access-Control-Max-Age", "86400")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// spaHandler serves static files and falls back to index.html. Embed routes
// live in the URL fragment, so every unknown path is the app shell.
func spaHandler(staticDir string) http.Handler {
	fileServer := http.FileServer(http.Dir(staticDir))
	indexPath := filepath.Join(staticDir, "index.html")

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/api/") {
			http.NotFound(w, r)
			return
		}

		path := filepath.Clean(r.URL.Path)
		info, err := os.Stat(filepath.Join(staticDir, path))
		if path == "/" || os.IsNotExist(err) || (err == nil && info.IsDir()) {
			if _, indexErr := os.Stat(indexPath); indexErr != nil {
				http.NotFound(w, r)
				return
			}
			w.Header().Set("Cache-Control", "no-cache")
			http.ServeFile(w, r, indexPath)
			return
		}
		if err != nil {
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}

		if strings.HasPrefix(path, "/assets/") {
			// Hashed build output
			w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")
		} else {
			w.Header().Set("Cache-Control", "public, max-age=3600")
		}
		fileServer.ServeHTTP(w, r)
	})
}
