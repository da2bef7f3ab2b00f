package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Store backends.
const (
	BackendPostgres  = "postgres"
	BackendPathstore = "pathstore"
	BackendMemory    = "memory"
)

var ErrInvalidConfig = errors.New("invalid configuration")

type Config struct {
	Port string `env:"PORT" envDefault:"8090"`

	// Auth
	APIKey string `env:"TALENTVEC_API_KEY"`

	// Embedding provider
	JinaAPIKey              string        `env:"JINA_API_KEY"`
	JinaBaseURL             string        `env:"JINA_BASE_URL" envDefault:"https://api.jina.ai/v1/embeddings"`
	JinaModel               string        `env:"JINA_MODEL" envDefault:"jina-embeddings-v3"`
	JinaDimensions          int           `env:"JINA_DIMENSIONS" envDefault:"1024"`
	JinaTask                string        `env:"JINA_TASK" envDefault:"retrieval.passage"`
	JinaEmbeddingType       string        `env:"JINA_EMBEDDING_TYPE" envDefault:"float"`
	JinaLateChunking        bool          `env:"JINA_LATE_CHUNKING" envDefault:"false"`
	JinaStripNewlines       bool          `env:"JINA_STRIP_NEWLINES" envDefault:"true"`
	JinaMaxTokensPerRequest int           `env:"JINA_MAX_TOKENS_PER_REQUEST" envDefault:"8192"`
	JinaTimeout             time.Duration `env:"JINA_TIMEOUT" envDefault:"60s"`

	// Rate limit shared by every embedding call
	RateLimitTPM    int           `env:"RATE_LIMIT_TPM" envDefault:"1000000"`
	RateLimitRPM    int           `env:"RATE_LIMIT_RPM" envDefault:"500"`
	RateLimitWindow time.Duration `env:"RATE_LIMIT_WINDOW" envDefault:"60s"`

	// Chunking and adaptive resize
	ChunkInitialTokens  int     `env:"CHUNK_INITIAL_TOKENS" envDefault:"7168"`
	ChunkMinTokens      int     `env:"CHUNK_MIN_TOKENS" envDefault:"512"`
	ChunkResizeDecay    float64 `env:"CHUNK_RESIZE_DECAY" envDefault:"0.7"`
	ChunkResizeStep     int     `env:"CHUNK_RESIZE_STEP" envDefault:"1"`
	ChunkMaxWords       int     `env:"CHUNK_MAX_WORDS" envDefault:"0"`
	ChunkMaxHeaderWords int     `env:"CHUNK_MAX_HEADER_WORDS" envDefault:"45"`
	ChunkPathSeparator  string  `env:"CHUNK_PATH_SEPARATOR" envDefault:" > "`

	// Worker pool
	WorkerCount   int           `env:"WORKER_COUNT" envDefault:"4"`
	MaxQueueSize  int           `env:"MAX_QUEUE_SIZE" envDefault:"100"`
	JobMaxRetries int           `env:"JOB_MAX_RETRIES" envDefault:"3"`
	JobRetryBase  time.Duration `env:"JOB_RETRY_BASE" envDefault:"1s"`

	// Upload limits
	MaxUploadBytes int64 `env:"MAX_UPLOAD_BYTES" envDefault:"52428800"` // 50MB

	// Job state
	JobTTL time.Duration `env:"JOB_TTL" envDefault:"1h"`

	// Chunk storage
	StoreBackend    string `env:"STORE_BACKEND" envDefault:"postgres"`
	DatabaseURL     string `env:"DATABASE_URL"`
	DBMigrate       bool   `env:"DB_MIGRATE" envDefault:"true"`
	PathstoreURL    string `env:"PATHSTORE_URL" envDefault:"http://localhost:8080"`
	PathstoreAPIKey string `env:"PATHSTORE_API_KEY"`
	PathstorePrefix string `env:"PATHSTORE_PREFIX" envDefault:"talentvec"`

	// PDF
	PDFFallbackPdftotext bool `env:"PDF_FALLBACK_PDFTOTEXT" envDefault:"true"`
}

// Load reads an optional .env file and then the environment.
func Load() (Config, error) {
	// A missing .env file is fine.
	_ = godotenv.Load()

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse environment: %w", err)
	}
	return cfg, nil
}

func (c Config) Validate() error {
	var errs []error
	if c.APIKey == "" {
		errs = append(errs, fmt.Errorf("TALENTVEC_API_KEY is required"))
	}
	if c.JinaAPIKey == "" {
		errs = append(errs, fmt.Errorf("JINA_API_KEY is required"))
	}
	if c.ChunkMinTokens <= 0 || c.ChunkInitialTokens < c.ChunkMinTokens {
		errs = append(errs, fmt.Errorf("CHUNK_INITIAL_TOKENS (%d) must be at least CHUNK_MIN_TOKENS (%d) and both positive",
			c.ChunkInitialTokens, c.ChunkMinTokens))
	}
	if c.ChunkInitialTokens > c.JinaMaxTokensPerRequest {
		errs = append(errs, fmt.Errorf("CHUNK_INITIAL_TOKENS (%d) exceeds JINA_MAX_TOKENS_PER_REQUEST (%d)",
			c.ChunkInitialTokens, c.JinaMaxTokensPerRequest))
	}
	if c.ChunkResizeDecay <= 0 || c.ChunkResizeDecay >= 1 {
		errs = append(errs, fmt.Errorf("CHUNK_RESIZE_DECAY must be between 0 and 1, got %v", c.ChunkResizeDecay))
	}
	if c.ChunkResizeStep <= 0 {
		errs = append(errs, fmt.Errorf("CHUNK_RESIZE_STEP must be positive"))
	}
	if c.WorkerCount <= 0 || c.MaxQueueSize <= 0 {
		errs = append(errs, fmt.Errorf("WORKER_COUNT and MAX_QUEUE_SIZE must be positive"))
	}
	switch c.StoreBackend {
	case BackendPostgres:
		if c.DatabaseURL == "" {
			errs = append(errs, fmt.Errorf("DATABASE_URL is required for the postgres backend"))
		}
	case BackendPathstore:
		if c.PathstoreURL == "" {
			errs = append(errs, fmt.Errorf("PATHSTORE_URL is required for the pathstore backend"))
		}
	case BackendMemory:
	default:
		errs = append(errs, fmt.Errorf("unknown STORE_BACKEND %q", c.StoreBackend))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
	}
	return nil
}
