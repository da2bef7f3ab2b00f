package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/dgallion1/talentvec/internal/embed"
)

const maxQueriesPerRequest = 64

func (s *Server) handleEmbeddingStats(w http.ResponseWriter, r *http.Request) {
	if s.deps.Stats == nil || s.deps.Limiter == nil {
		jsonError(w, "embedding stats unavailable", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"model":      s.deps.Model,
		"latency":    s.deps.Stats.Snapshot(),
		"rate_limit": s.deps.Limiter.Snapshot(),
	})
}

func (s *Server) handleQueryEmbeddings(w http.ResponseWriter, r *http.Request) {
	if s.deps.Queries == nil {
		jsonError(w, "query embeddings unavailable", http.StatusServiceUnavailable)
		return
	}
	var req struct {
		Queries []string `json:"queries"`
	}
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&req); err != nil {
		jsonError(w, "invalid JSON body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if len(req.Queries) == 0 || len(req.Queries) > maxQueriesPerRequest {
		jsonError(w, "between 1 and 64 queries are required", http.StatusBadRequest)
		return
	}

	vectors, err := s.deps.Queries.EmbedMultipleQueries(r.Context(), req.Queries)
	if err != nil {
		s.log.Error("query embedding failed", "error", err)
		var overflow *embed.OverflowError
		var apiErr *embed.APIError
		switch {
		case errors.As(err, &overflow):
			jsonError(w, err.Error(), http.StatusRequestEntityTooLarge)
		case embed.IsRetryable(err):
			jsonError(w, err.Error(), http.StatusServiceUnavailable)
		case errors.As(err, &apiErr):
			jsonError(w, err.Error(), http.StatusBadGateway)
		default:
			jsonError(w, err.Error(), http.StatusInternalServerError)
		}
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"model":      s.deps.Model,
		"embeddings": vectors,
	})
}
