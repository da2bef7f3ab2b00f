// Package store persists embedded document chunks. Each backend replaces a
// document's chunk set as a whole: readers see either the previous set or
// the new one, never a mix.
package store

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/google/uuid"

	"github.com/dgallion1/talentvec/internal/embed"
)

var (
	// ErrEmptyDocumentID is returned when a call names no document.
	ErrEmptyDocumentID = errors.New("store: document id is required")
	// ErrInvalidDocumentID is returned for IDs that could escape a
	// document's key space.
	ErrInvalidDocumentID = errors.New("store: invalid document id")
)

const maxDocumentIDLen = 128

var documentIDPattern = regexp.MustCompile(`^[A-Za-z0-9._-]+$`)

// ValidateDocumentID accepts 1-128 characters from [A-Za-z0-9._-], other
// than "." and "..".
func ValidateDocumentID(id string) error {
	switch {
	case id == "":
		return ErrEmptyDocumentID
	case len(id) > maxDocumentIDLen, id == ".", id == "..", !documentIDPattern.MatchString(id):
		return fmt.Errorf("%w: %q", ErrInvalidDocumentID, id)
	}
	return nil
}

// Chunk is one stored embedding record.
type Chunk struct {
	ID            uuid.UUID `json:"id"`
	DocumentID    string    `json:"document_id"`
	ChunkIndex    int       `json:"chunk_index"`
	MaxChunkIndex int       `json:"max_chunk_index"`
	TokenCount    int       `json:"token_count"`
	Text          string    `json:"text"`
	Embedding     []float32 `json:"embedding,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// Store is the storage collaborator of the ingest pipeline.
type Store interface {
	// ReplaceChunks deletes any previous chunks for documentID and inserts
	// records in one unit. It returns the number stored.
	ReplaceChunks(ctx context.Context, documentID string, records []embed.Record) (int, error)
	// ListChunks returns a document's chunks ordered by chunk index.
	ListChunks(ctx context.Context, documentID string) ([]Chunk, error)
	// DeleteChunks removes a document's chunks and returns how many there were.
	DeleteChunks(ctx context.Context, documentID string) (int, error)
}

// chunksFromRecords assigns ids and a shared creation time.
func chunksFromRecords(records []embed.Record, now time.Time) []Chunk {
	out := make([]Chunk, len(records))
	for i, r := range records {
		out[i] = Chunk{
			ID:            uuid.New(),
			DocumentID:    r.DocumentID,
			ChunkIndex:    r.Metadata.ChunkIndex,
			MaxChunkIndex: r.Metadata.MaxChunkIndex,
			TokenCount:    r.Metadata.TokenCount,
			Text:          r.ChunkText,
			Embedding:     r.Embedding,
			CreatedAt:     now,
		}
	}
	return out
}
