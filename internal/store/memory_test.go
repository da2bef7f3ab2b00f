package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemory(t *testing.T) {
	ctx := context.Background()

	t.Run("Should replace the whole chunk set", func(t *testing.T) {
		m := NewMemory()
		n, err := m.ReplaceChunks(ctx, "doc-1", testRecords("doc-1", 3))
		require.NoError(t, err)
		assert.Equal(t, 3, n)

		n, err = m.ReplaceChunks(ctx, "doc-1", testRecords("doc-1", 1))
		require.NoError(t, err)
		assert.Equal(t, 1, n)

		chunks, err := m.ListChunks(ctx, "doc-1")
		require.NoError(t, err)
		require.Len(t, chunks, 1)
		assert.Equal(t, 0, chunks[0].MaxChunkIndex)
	})

	t.Run("Should list chunks in index order", func(t *testing.T) {
		m := NewMemory()
		recs := testRecords("doc-1", 3)
		recs[0], recs[2] = recs[2], recs[0]
		_, err := m.ReplaceChunks(ctx, "doc-1", recs)
		require.NoError(t, err)

		chunks, err := m.ListChunks(ctx, "doc-1")
		require.NoError(t, err)
		for i, c := range chunks {
			assert.Equal(t, i, c.ChunkIndex)
			assert.NotEqual(t, [16]byte{}, [16]byte(c.ID))
		}
	})

	t.Run("Should delete and report the count", func(t *testing.T) {
		m := NewMemory()
		_, err := m.ReplaceChunks(ctx, "doc-1", testRecords("doc-1", 2))
		require.NoError(t, err)

		n, err := m.DeleteChunks(ctx, "doc-1")
		require.NoError(t, err)
		assert.Equal(t, 2, n)

		chunks, err := m.ListChunks(ctx, "doc-1")
		require.NoError(t, err)
		assert.Empty(t, chunks)
	})

	t.Run("Should reject an empty document id", func(t *testing.T) {
		m := NewMemory()
		_, err := m.ReplaceChunks(ctx, "", nil)
		assert.ErrorIs(t, err, ErrEmptyDocumentID)
		_, err = m.ListChunks(ctx, "")
		assert.ErrorIs(t, err, ErrEmptyDocumentID)
		_, err = m.DeleteChunks(ctx, "")
		assert.ErrorIs(t, err, ErrEmptyDocumentID)
	})
}
