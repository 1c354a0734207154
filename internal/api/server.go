// Package api exposes the assistant over HTTP.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/dgallion1/ragassist/internal/auth"
	"github.com/dgallion1/ragassist/internal/chat"
	"github.com/dgallion1/ragassist/internal/config"
	"github.com/dgallion1/ragassist/internal/llm"
	"github.com/dgallion1/ragassist/internal/pipeline"
	"github.com/dgallion1/ragassist/internal/retrieval"
	"github.com/dgallion1/ragassist/internal/store"
	"github.com/dgallion1/ragassist/internal/vectorstore"
)

// LLMStats reports generation latency.
type LLMStats interface {
	Stats() llm.StatsSnapshot
}

// Deps are the services the API is built on.
type Deps struct {
	Store        *store.Store
	Auth         *auth.Service
	Chat         *chat.Service
	Retriever    *retrieval.Retriever
	Orchestrator *pipeline.Orchestrator
	Worker       *pipeline.Worker
	Vectors      vectorstore.Store
	LLM          LLMStats // optional
}

// Server is the HTTP API server.
type Server struct {
	Deps
	router  chi.Router
	limiter *RateLimiter
	log     *slog.Logger
	cfg     config.Config
	started time.Time
}

// NewServer creates and configures the HTTP server.
func NewServer(deps Deps, cfg config.Config, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	s := &Server{
		Deps:    deps,
		limiter: NewRateLimiter(cfg.Server.RateLimitPerMinute),
		log:     log.With("component", "api"),
		cfg:     cfg,
		started: time.Now(),
	}
	s.setupRoutes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) setupRoutes() {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(RequestLogger(s.log))
	r.Use(s.limiter.Middleware)
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, errNotFound)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, errMethodNotAllowed)
	})

	// Public endpoints.
	r.Get("/health", s.handleHealth)
	r.Route("/auth", func(r chi.Router) {
		r.Post("/register", s.handleRegister)
		r.Post("/login", s.handleLogin)
		r.Post("/refresh", s.handleRefresh)
		r.With(s.Auth.Middleware).Get("/me", s.handleMe)
	})

	// Authenticated endpoints.
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(s.Auth.Middleware)

		r.Post("/documents/upload", s.handleUpload)
		r.Get("/documents", s.handleListDocuments)
		r.Get("/documents/{docID}", s.handleGetDocument)
		r.Delete("/documents/{docID}", s.handleDeleteDocument)
		r.Get("/jobs/{jobID}", s.handleJobStatus)

		r.Post("/search", s.handleSearch)

		r.Route("/chat/sessions", func(r chi.Router) {
			r.Post("/", s.handleCreateSession)
			r.Get("/", s.handleListSessions)
			r.Get("/{sessionID}", s.handleGetSession)
			r.Patch("/{sessionID}", s.handleRenameSession)
			r.Delete("/{sessionID}", s.handleDeleteSession)
			r.Post("/{sessionID}/messages", s.handleSendMessage)
		})

		r.Get("/stats", s.handleStats)

		r.Route("/admin", func(r chi.Router) {
			r.Use(auth.RequireAdmin)
			r.Post("/purge", s.handlePurge)
			r.Get("/users", s.handleListUsers)
		})
	})

	s.router = r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	body := map[string]any{
		"status":         "healthy",
		"vector_backend": s.Vectors.Name(),
		"queue_depth":    s.Orchestrator.QueueDepth(),
		"uptime_seconds": int(time.Since(s.started).Seconds()),
	}
	status := http.StatusOK
	if n, err := s.Vectors.Count(ctx); err != nil {
		s.log.Warn("health check: vector store unavailable", "error", err)
		body["status"] = "unhealthy"
		body["vector_store_error"] = err.Error()
		status = http.StatusServiceUnavailable
	} else {
		body["points_count"] = n
	}
	if err := s.Store.Ping(ctx); err != nil {
		body["status"] = "unhealthy"
		body["database_error"] = err.Error()
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, body)
}
