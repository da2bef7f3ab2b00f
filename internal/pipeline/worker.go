package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/dgallion1/talentvec/internal/embed"
	"github.com/dgallion1/talentvec/internal/parser"
	"github.com/dgallion1/talentvec/internal/store"
)

// Embedder chunks and embeds one document. *embed.Client implements it.
type Embedder interface {
	CreateEmbeddedChunks(ctx context.Context, documentID, content, title string) (*embed.Result, error)
}

// Worker processes a single document job.
type Worker struct {
	embedder Embedder
	store    store.Store
	log      *slog.Logger
	retry    RetryPolicy
	convert  parser.Options
	locks    *store.DocLocks
}

// NewWorker builds a worker. One Worker may run jobs from many goroutines;
// jobs for the same document ID then embed and store one at a time.
func NewWorker(embedder Embedder, st store.Store, log *slog.Logger, retry RetryPolicy, convert parser.Options) *Worker {
	return &Worker{
		embedder: embedder,
		store:    st,
		log:      log,
		retry:    retry,
		convert:  convert,
		locks:    store.NewDocLocks(),
	}
}

// Process runs the full ingest pipeline for a job. The stored chunk set is
// replaced only after every chunk has been embedded.
func (w *Worker) Process(ctx context.Context, job *Job) {
	log := w.log.With("job_id", job.ID, "doc_id", job.DocID)
	defer job.SetFileData(nil)

	// Phase 1: Convert
	job.SetStatus(StatusConverting, "converting")
	conv, err := parser.ForFile(job.Filename, w.convert)
	if err != nil {
		w.fail(log, job, "converting", err)
		return
	}
	content, err := conv.Convert(bytes.NewReader(job.FileData()), job.Filename)
	if err != nil {
		w.fail(log, job, "converting", fmt.Errorf("convert: %w", err))
		return
	}
	job.SetContentHash(ContentHashHex([]byte(content)))

	title := job.Title
	if title == "" {
		title = parser.TitleFromFilename(job.Filename)
	}

	unlock, err := w.locks.Lock(ctx, job.DocID)
	if err != nil {
		w.fail(log, job, "waiting", fmt.Errorf("wait for document %s: %w", job.DocID, err))
		return
	}
	defer unlock()

	if strings.TrimSpace(content) == "" {
		log.Warn("no extractable content")
		job.AddError("no extractable content")
		job.SetStatus(StatusStoring, "storing")
		if _, err := w.store.ReplaceChunks(ctx, job.DocID, nil); err != nil {
			w.fail(log, job, "storing", fmt.Errorf("store: %w", err))
			return
		}
		job.SetStatus(StatusCompleted, "done")
		return
	}

	// Phase 2: Chunk and embed, retrying transient provider failures.
	job.SetStatus(StatusEmbedding, "embedding")
	var result *embed.Result
	err = w.retry.do(ctx, func(attempt int, err error) {
		log.Warn("retryable embedding error", "attempt", attempt, "error", err)
		job.IncrTransient()
	}, func(ctx context.Context) error {
		var err error
		result, err = w.embedder.CreateEmbeddedChunks(ctx, job.DocID, content, title)
		return err
	})
	if err != nil {
		w.fail(log, job, "embedding", fmt.Errorf("embed: %w", err))
		return
	}
	job.SetEmbedded(len(result.Records), result.Batches, result.ChunkLimit, result.Attempts)
	log.Info("embedding complete",
		"chunks", len(result.Records), "batches", result.Batches,
		"chunk_limit", result.ChunkLimit, "attempts", result.Attempts)

	// Phase 3: Store
	job.SetStatus(StatusStoring, "storing")
	stored, err := w.store.ReplaceChunks(ctx, job.DocID, result.Records)
	if err != nil {
		w.fail(log, job, "storing", fmt.Errorf("store: %w", err))
		return
	}
	job.SetStored(stored)
	log.Info("storage complete", "stored", stored)
	job.SetStatus(StatusCompleted, "done")
}

func (w *Worker) fail(log *slog.Logger, job *Job, phase string, err error) {
	log.Error("job failed", "phase", phase, "error", err)
	job.AddError(err.Error())
	job.SetStatus(StatusFailed, phase)
}
