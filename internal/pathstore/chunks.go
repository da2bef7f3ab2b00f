package pathstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/dgallion1/talentvec/internal/embed"
	"github.com/dgallion1/talentvec/internal/store"
)

// ChunkStore keeps embedded chunks as pathstore nodes:
//
//	{prefix}/documents/{docID}/meta
//	{prefix}/documents/{docID}/chunks/{index}
//
// pathstore has no transactions, so a failed replace removes whatever it
// already wrote for the document, and calls for one document are
// serialized in process.
type ChunkStore struct {
	client *Client
	prefix string
	log    *slog.Logger
	now    func() time.Time
	locks  store.DocLocks
}

var _ store.Store = (*ChunkStore)(nil)

func NewChunkStore(client *Client, prefix string, log *slog.Logger) *ChunkStore {
	if prefix == "" {
		prefix = "talentvec"
	}
	if log == nil {
		log = slog.Default()
	}
	return &ChunkStore{client: client, prefix: prefix, log: log, now: time.Now}
}

func (s *ChunkStore) docKey(documentID string) string {
	return fmt.Sprintf("%s/documents/%s", s.prefix, documentID)
}

func (s *ChunkStore) ReplaceChunks(ctx context.Context, documentID string, records []embed.Record) (int, error) {
	if err := store.ValidateDocumentID(documentID); err != nil {
		return 0, err
	}
	unlock, err := s.locks.Lock(ctx, documentID)
	if err != nil {
		return 0, err
	}
	defer unlock()

	docKey := s.docKey(documentID)
	if err := s.client.DeleteNode(ctx, docKey, true); err != nil {
		return 0, fmt.Errorf("clear previous chunks: %w", err)
	}
	if len(records) == 0 {
		return 0, nil
	}

	now := s.now().UTC()
	for _, r := range records {
		chunk := store.Chunk{
			ID:            uuid.New(),
			DocumentID:    documentID,
			ChunkIndex:    r.Metadata.ChunkIndex,
			MaxChunkIndex: r.Metadata.MaxChunkIndex,
			TokenCount:    r.Metadata.TokenCount,
			Text:          r.ChunkText,
			Embedding:     r.Embedding,
			CreatedAt:     now,
		}
		key := fmt.Sprintf("%s/chunks/%05d", docKey, chunk.ChunkIndex)
		if err := s.client.PutNode(ctx, key, NodeRequest{
			Value:      chunk,
			MemoryType: "semantic",
			Source:     "talentvec:" + documentID,
		}); err != nil {
			s.cleanup(ctx, docKey)
			return 0, fmt.Errorf("store chunk %d: %w", chunk.ChunkIndex, err)
		}
	}

	if err := s.client.PutNode(ctx, docKey+"/meta", NodeRequest{
		Value: map[string]any{
			"chunk_count": len(records),
			"updated_at":  now.Format(time.RFC3339),
		},
		MemoryType: "metacognitive",
		Source:     "talentvec:" + documentID,
	}); err != nil {
		s.cleanup(ctx, docKey)
		return 0, fmt.Errorf("store document meta: %w", err)
	}
	return len(records), nil
}

func (s *ChunkStore) cleanup(ctx context.Context, docKey string) {
	if err := s.client.DeleteNode(context.WithoutCancel(ctx), docKey, true); err != nil {
		s.log.Error("cleanup after failed replace", "key", docKey, "error", err)
	}
}

func (s *ChunkStore) ListChunks(ctx context.Context, documentID string) ([]store.Chunk, error) {
	if err := store.ValidateDocumentID(documentID); err != nil {
		return nil, err
	}
	unlock, err := s.locks.Lock(ctx, documentID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	nodes, err := s.client.ListChildren(ctx, s.docKey(documentID)+"/chunks", 0)
	if err != nil {
		return nil, err
	}
	out := make([]store.Chunk, 0, len(nodes))
	for _, n := range nodes {
		var c store.Chunk
		if err := json.Unmarshal(n.Value, &c); err != nil {
			return nil, fmt.Errorf("decode chunk %s: %w", n.Key, err)
		}
		out = append(out, c)
	}
	slices.SortFunc(out, func(a, b store.Chunk) int { return a.ChunkIndex - b.ChunkIndex })
	return out, nil
}

// DeleteChunks removes every node under the document and reports how many
// chunks it held. The count comes from the meta node, or from the chunk
// nodes themselves when a failed replace left no meta behind.
func (s *ChunkStore) DeleteChunks(ctx context.Context, documentID string) (int, error) {
	if err := store.ValidateDocumentID(documentID); err != nil {
		return 0, err
	}
	unlock, err := s.locks.Lock(ctx, documentID)
	if err != nil {
		return 0, err
	}
	defer unlock()

	docKey := s.docKey(documentID)
	count, err := s.chunkCount(ctx, docKey)
	if err != nil {
		return 0, err
	}
	if err := s.client.DeleteNode(ctx, docKey, true); err != nil {
		return 0, err
	}
	return count, nil
}

func (s *ChunkStore) chunkCount(ctx context.Context, docKey string) (int, error) {
	node, err := s.client.GetNode(ctx, docKey+"/meta")
	switch {
	case errors.Is(err, ErrNotFound):
		children, err := s.client.ListChildren(ctx, docKey+"/chunks", 0)
		if err != nil {
			return 0, err
		}
		if len(children) > 0 {
			s.log.Warn("removing chunks without document meta", "key", docKey, "chunks", len(children))
		}
		return len(children), nil
	case err != nil:
		return 0, err
	}
	var meta struct {
		ChunkCount int `json:"chunk_count"`
	}
	if err := json.Unmarshal(node.Value, &meta); err != nil {
		s.log.Warn("unreadable document meta", "key", docKey, "error", err)
	}
	return meta.ChunkCount, nil
}
