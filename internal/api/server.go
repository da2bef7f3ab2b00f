package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/dgallion1/talentvec/internal/chunker"
	"github.com/dgallion1/talentvec/internal/config"
	"github.com/dgallion1/talentvec/internal/embed"
	"github.com/dgallion1/talentvec/internal/pipeline"
	"github.com/dgallion1/talentvec/internal/ratelimit"
)

// QueryEmbedder embeds search queries. *embed.Client implements it.
type QueryEmbedder interface {
	EmbedMultipleQueries(ctx context.Context, texts []string) ([][]float32, error)
}

// Deps are the collaborators the HTTP layer calls into.
type Deps struct {
	Orchestrator *pipeline.Orchestrator
	Queries      QueryEmbedder
	Model        string
	Chunker      *chunker.Chunker
	Limiter      *ratelimit.Limiter
	Stats        *embed.LatencyStats
	Metrics      http.Handler
}

// Server is the HTTP API server for talentvec.
type Server struct {
	router chi.Router
	deps   Deps
	log    *slog.Logger
	cfg    config.Config
}

// NewServer creates and configures the HTTP server.
func NewServer(deps Deps, log *slog.Logger, cfg config.Config) *Server {
	s := &Server{
		deps: deps,
		log:  log,
		cfg:  cfg,
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

	// Public endpoints.
	r.Get("/health", s.handleHealth)
	if s.deps.Metrics != nil {
		r.Handle("/metrics", s.deps.Metrics)
	}

	// Authenticated endpoints.
	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(s.cfg.APIKey, s.log))

		r.Post("/api/documents", s.handleIngest)
		r.Post("/api/documents/batch", s.handleBatchIngest)
		r.Get("/api/jobs/{jobID}", s.handleJobStatus)

		r.Get("/api/documents/{docID}/chunks", s.handleListChunks)
		r.Delete("/api/documents/{docID}/chunks", s.handleDeleteChunks)
		r.Post("/api/chunks/preview", s.handlePreview)

		r.Post("/api/embeddings/query", s.handleQueryEmbeddings)
		r.Get("/api/stats/embeddings", s.handleEmbeddingStats)
	})

	s.router = r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{"status": "ok"}
	if s.deps.Orchestrator != nil {
		resp["queue_depth"] = s.deps.Orchestrator.QueueDepth()
	}
	writeJSON(w, http.StatusOK, resp)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func jsonError(w http.ResponseWriter, msg string, code int) {
	writeJSON(w, code, map[string]string{"error": msg})
}
