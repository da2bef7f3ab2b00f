package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/dgallion1/talentvec/internal/chunker"
	"github.com/dgallion1/talentvec/internal/store"
)

// handleListChunks returns a document's stored chunks in order. Vectors are
// left out unless include_embeddings=true.
func (s *Server) handleListChunks(w http.ResponseWriter, r *http.Request) {
	docID := chi.URLParam(r, "docID")
	if err := store.ValidateDocumentID(docID); err != nil {
		storeError(w, "", err)
		return
	}
	chunks, err := s.deps.Orchestrator.Store().ListChunks(r.Context(), docID)
	if err != nil {
		storeError(w, "failed to list chunks", err)
		return
	}
	if r.URL.Query().Get("include_embeddings") != "true" {
		for i := range chunks {
			chunks[i].Embedding = nil
		}
	}
	if chunks == nil {
		chunks = []store.Chunk{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"doc_id": docID,
		"count":  len(chunks),
		"chunks": chunks,
	})
}

func (s *Server) handleDeleteChunks(w http.ResponseWriter, r *http.Request) {
	docID := chi.URLParam(r, "docID")
	if err := store.ValidateDocumentID(docID); err != nil {
		storeError(w, "", err)
		return
	}
	n, err := s.deps.Orchestrator.Store().DeleteChunks(r.Context(), docID)
	if err != nil {
		storeError(w, "failed to delete chunks", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"doc_id":         docID,
		"chunks_deleted": n,
	})
}

type previewRequest struct {
	Content   string `json:"content"`
	Title     string `json:"title"`
	MaxTokens int    `json:"max_tokens,omitempty"`
}

type previewChunk struct {
	Index  int    `json:"index"`
	Text   string `json:"text"`
	Words  int    `json:"words"`
	Tokens int    `json:"tokens"`
}

// handlePreview chunks markdown without embedding it.
func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes)
	var req previewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, "invalid JSON body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.Content) == "" {
		jsonError(w, "content is required", http.StatusBadRequest)
		return
	}

	c := s.deps.Chunker
	if req.MaxTokens > 0 {
		c = c.WithTokenLimit(req.MaxTokens)
	}
	texts := c.ChunkMarkdown(req.Content, req.Title)
	out := make([]previewChunk, len(texts))
	for i, t := range texts {
		out[i] = previewChunk{Index: i, Text: t, Words: chunker.CountWords(t), Tokens: chunker.EstimateTokens(t)}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"word_limit":  c.WordLimit(),
		"token_limit": c.Options().MaxTokensPerChunk,
		"count":       len(out),
		"chunks":      out,
	})
}

func storeError(w http.ResponseWriter, msg string, err error) {
	if errors.Is(err, store.ErrEmptyDocumentID) || errors.Is(err, store.ErrInvalidDocumentID) {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	jsonError(w, msg+": "+err.Error(), http.StatusInternalServerError)
}
