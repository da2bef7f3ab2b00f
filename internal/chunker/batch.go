package chunker

import (
	"fmt"

	"github.com/dgallion1/talentvec/internal/doctree"
)

// Batch is a run of consecutive chunks from one document whose summed
// token estimate fits one embedding request.
type Batch struct {
	Chunks []string
	Tokens int
}

// OversizedChunkError reports a chunk that cannot fit any batch. The
// caller should chunk again with a smaller per-chunk limit.
type OversizedChunkError struct {
	Index  int
	Tokens int
	Limit  int
}

func (e *OversizedChunkError) Error() string {
	return fmt.Sprintf("chunk %d estimated at %d tokens exceeds batch limit %d", e.Index, e.Tokens, e.Limit)
}

// ChunkWithinLimit chunks doc with a per-chunk ceiling of perChunkLimit
// tokens and packs the chunks, in order, into batches whose estimates never
// exceed batchLimit. An empty document yields no batches.
func (c *Chunker) ChunkWithinLimit(doc *doctree.Document, title string, perChunkLimit, batchLimit int) ([]Batch, error) {
	cc := c
	if perChunkLimit > 0 {
		cc = c.WithTokenLimit(perChunkLimit)
	}
	return Pack(cc.Chunk(doc, title), batchLimit)
}

// Pack groups chunks greedily without reordering or overlap.
func Pack(chunks []string, batchLimit int) ([]Batch, error) {
	if len(chunks) == 0 {
		return nil, nil
	}
	tokens := make([]int, len(chunks))
	for i, chunk := range chunks {
		tokens[i] = EstimateTokens(chunk)
		if tokens[i] > batchLimit {
			return nil, &OversizedChunkError{Index: i, Tokens: tokens[i], Limit: batchLimit}
		}
	}

	var batches []Batch
	var cur Batch
	for i, chunk := range chunks {
		if len(cur.Chunks) > 0 && cur.Tokens+tokens[i] > batchLimit {
			batches = append(batches, cur)
			cur = Batch{}
		}
		cur.Chunks = append(cur.Chunks, chunk)
		cur.Tokens += tokens[i]
	}
	return append(batches, cur), nil
}
