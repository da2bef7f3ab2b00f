package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	pgvector "github.com/pgvector/pgvector-go"
	"github.com/pressly/goose/v3"

	embedding "github.com/dgallion1/talentvec/internal/embed"

	// database/sql driver used by goose.
	_ "github.com/jackc/pgx/v5/stdlib"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

var gooseMu sync.Mutex

// DB is the subset of pgxpool.Pool the store needs. pgxmock pools satisfy
// it too.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Connect opens a pool and pings it.
func Connect(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	cfg.MaxConns = 10
	cfg.HealthCheckPeriod = 30 * time.Second
	cfg.ConnConfig.ConnectTimeout = 5 * time.Second

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return pool, nil
}

// Migrate applies the embedded goose migrations.
func Migrate(ctx context.Context, dsn string) error {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return fmt.Errorf("open db for migrations: %w", err)
	}
	defer db.Close()

	gooseMu.Lock()
	defer gooseMu.Unlock()
	goose.SetBaseFS(migrationsFS)
	defer goose.SetBaseFS(nil)
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set goose dialect: %w", err)
	}
	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return fmt.Errorf("migrate up: %w", err)
	}
	return nil
}

// Postgres stores chunks in the document_chunks table with pgvector
// embeddings.
type Postgres struct {
	db  DB
	log *slog.Logger
	now func() time.Time
}

func NewPostgres(db DB, log *slog.Logger) *Postgres {
	if log == nil {
		log = slog.Default()
	}
	return &Postgres{db: db, log: log, now: time.Now}
}

const (
	lockDocumentSQL = `SELECT pg_advisory_xact_lock(hashtext('talentvec'), hashtext($1))`
	deleteChunksSQL = `DELETE FROM document_chunks WHERE document_id = $1`
	insertChunkSQL  = `INSERT INTO document_chunks
    (id, document_id, chunk_index, max_chunk_index, token_count, content, embedding, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	listChunksSQL = `SELECT id, document_id, chunk_index, max_chunk_index, token_count, content, embedding::text, created_at
FROM document_chunks WHERE document_id = $1 ORDER BY chunk_index`
)

func (p *Postgres) ReplaceChunks(ctx context.Context, documentID string, records []embedding.Record) (n int, err error) {
	if err := ValidateDocumentID(documentID); err != nil {
		return 0, err
	}
	tx, err := p.db.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
				err = fmt.Errorf("rollback failed: %w; original error: %v", rbErr, err)
			}
			return
		}
		if commitErr := tx.Commit(ctx); commitErr != nil {
			err = fmt.Errorf("commit: %w", commitErr)
			n = 0
		}
	}()

	// Concurrent replaces of one document queue here until the holder commits.
	if _, err := tx.Exec(ctx, lockDocumentSQL, documentID); err != nil {
		return 0, fmt.Errorf("lock document: %w", err)
	}
	tag, err := tx.Exec(ctx, deleteChunksSQL, documentID)
	if err != nil {
		return 0, fmt.Errorf("delete previous chunks: %w", err)
	}
	if replaced := tag.RowsAffected(); replaced > 0 {
		p.log.Info("replacing chunk set", "document_id", documentID, "previous", replaced)
	}

	for _, c := range chunksFromRecords(records, p.now().UTC()) {
		if _, err := tx.Exec(ctx, insertChunkSQL,
			c.ID, documentID, c.ChunkIndex, c.MaxChunkIndex, c.TokenCount,
			c.Text, pgvector.NewVector(c.Embedding), c.CreatedAt,
		); err != nil {
			return 0, fmt.Errorf("insert chunk %d: %w", c.ChunkIndex, err)
		}
	}
	return len(records), nil
}

func (p *Postgres) ListChunks(ctx context.Context, documentID string) ([]Chunk, error) {
	if err := ValidateDocumentID(documentID); err != nil {
		return nil, err
	}
	rows, err := p.db.Query(ctx, listChunksSQL, documentID)
	if err != nil {
		return nil, fmt.Errorf("query chunks: %w", err)
	}
	defer rows.Close()

	var out []Chunk
	for rows.Next() {
		var (
			c   Chunk
			id  uuid.UUID
			raw string
		)
		if err := rows.Scan(&id, &c.DocumentID, &c.ChunkIndex, &c.MaxChunkIndex,
			&c.TokenCount, &c.Text, &raw, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan chunk: %w", err)
		}
		var vec pgvector.Vector
		if err := vec.Scan(raw); err != nil {
			return nil, fmt.Errorf("parse embedding for chunk %d: %w", c.ChunkIndex, err)
		}
		c.ID = id
		c.Embedding = vec.Slice()
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate chunks: %w", err)
	}
	return out, nil
}

func (p *Postgres) DeleteChunks(ctx context.Context, documentID string) (int, error) {
	if err := ValidateDocumentID(documentID); err != nil {
		return 0, err
	}
	tag, err := p.db.Exec(ctx, deleteChunksSQL, documentID)
	if err != nil {
		return 0, fmt.Errorf("delete chunks: %w", err)
	}
	return int(tag.RowsAffected()), nil
}
