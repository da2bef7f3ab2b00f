package embed

import (
	"context"
	"errors"
	"fmt"

	"github.com/dgallion1/talentvec/internal/chunker"
	"github.com/dgallion1/talentvec/internal/doctree"
	"github.com/dgallion1/talentvec/internal/parser"
)

// runOK carries every record of a document embedded at one chunk limit.
type runOK struct {
	records []Record
	batches int
}

func (runOK) isOutcome() {}

// CreateEmbeddedChunks chunks markdown content and embeds every chunk.
// When a batch turns out too large the whole document is chunked again
// with a smaller per-chunk limit, down to the configured floor. The result
// is all or nothing: on error no records are returned.
//
// A provider-reported overflow also tightens the packing ceiling by the
// same factor, since the provider's tokenizer is counting more than the
// local estimate and full-size batches would fail again.
func (c *Client) CreateEmbeddedChunks(ctx context.Context, documentID, content, title string) (*Result, error) {
	return c.CreateEmbeddedChunksFromTree(ctx, documentID, parser.ParseMarkdown([]byte(content)), title)
}

// CreateEmbeddedChunksFromTree is CreateEmbeddedChunks for an already
// parsed document.
func (c *Client) CreateEmbeddedChunksFromTree(ctx context.Context, documentID string, doc *doctree.Document, title string) (*Result, error) {
	log := c.log.With("document_id", documentID)
	limit := c.cfg.InitialChunkTokens
	batchLimit := c.cfg.MaxTokensPerRequest
	attempts := 0

	for limit >= c.cfg.MinChunkTokens {
		attempts++
		switch o := c.runAtLimit(ctx, documentID, doc, title, limit, batchLimit).(type) {
		case runOK:
			log.Info("document embedded",
				"chunks", len(o.records), "batches", o.batches,
				"chunk_limit", limit, "attempts", attempts)
			return &Result{Records: o.records, ChunkLimit: limit, Attempts: attempts, Batches: o.batches}, nil
		case batchOverflow:
			if !o.local {
				batchLimit = c.shrink(batchLimit)
			}
			next := min(c.shrink(limit), batchLimit)
			log.Info("batch too large, re-chunking",
				"tokens_given", o.given, "token_limit", o.limit, "local", o.local,
				"chunk_limit", limit, "next_chunk_limit", next, "batch_limit", batchLimit)
			c.metrics.observeResize()
			limit = next
		case batchFailed:
			return nil, o.err
		default:
			return nil, fmt.Errorf("embed: unexpected outcome %T", o)
		}
	}
	return nil, fmt.Errorf("%w: document %s after %d attempts", ErrNoViableChunkSize, documentID, attempts)
}

func (c *Client) runAtLimit(ctx context.Context, documentID string, doc *doctree.Document, title string, limit, batchLimit int) outcome {
	batches, err := c.chunker.ChunkWithinLimit(doc, title, limit, batchLimit)
	if err != nil {
		var oversized *chunker.OversizedChunkError
		if errors.As(err, &oversized) {
			return batchOverflow{given: oversized.Tokens, limit: oversized.Limit, local: true}
		}
		return batchFailed{err: fmt.Errorf("chunk document: %w", err)}
	}

	total := 0
	for _, b := range batches {
		total += len(b.Chunks)
	}

	records := make([]Record, 0, total)
	for _, b := range batches {
		o := c.submit(ctx, b.Chunks, c.cfg.Task)
		ok, isOK := o.(batchOK)
		if !isOK {
			return o
		}
		for i, vector := range ok.vectors {
			records = append(records, Record{
				DocumentID: documentID,
				ChunkText:  b.Chunks[i],
				Embedding:  vector,
				Metadata: Metadata{
					TokenCount:    chunker.EstimateTokens(b.Chunks[i]),
					ChunkIndex:    len(records),
					MaxChunkIndex: total - 1,
				},
			})
		}
	}
	return runOK{records: records, batches: len(batches)}
}

// shrink applies the decay factor and rounds down to the step. It always
// makes progress.
func (c *Client) shrink(limit int) int {
	permille := int(c.cfg.ResizeDecay*1000 + 0.5)
	next := limit * permille / 1000
	next = next / c.cfg.ResizeStep * c.cfg.ResizeStep
	if next >= limit {
		next = limit - c.cfg.ResizeStep
	}
	return next
}
