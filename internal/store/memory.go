package store

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/dgallion1/talentvec/internal/embed"
)

// Memory keeps chunks in process. It backs tests and local runs without a
// database.
type Memory struct {
	mu   sync.RWMutex
	docs map[string][]Chunk
	now  func() time.Time
}

func NewMemory() *Memory {
	return &Memory{docs: make(map[string][]Chunk), now: time.Now}
}

func (m *Memory) ReplaceChunks(_ context.Context, documentID string, records []embed.Record) (int, error) {
	if err := ValidateDocumentID(documentID); err != nil {
		return 0, err
	}
	chunks := chunksFromRecords(records, m.now().UTC())
	slices.SortStableFunc(chunks, func(a, b Chunk) int { return a.ChunkIndex - b.ChunkIndex })

	m.mu.Lock()
	defer m.mu.Unlock()
	if len(chunks) == 0 {
		delete(m.docs, documentID)
		return 0, nil
	}
	m.docs[documentID] = chunks
	return len(chunks), nil
}

func (m *Memory) ListChunks(_ context.Context, documentID string) ([]Chunk, error) {
	if err := ValidateDocumentID(documentID); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.docs[documentID]), nil
}

func (m *Memory) DeleteChunks(_ context.Context, documentID string) (int, error) {
	if err := ValidateDocumentID(documentID); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	n := len(m.docs[documentID])
	delete(m.docs, documentID)
	return n, nil
}
