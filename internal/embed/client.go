package embed

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/dgallion1/talentvec/internal/chunker"
	"github.com/dgallion1/talentvec/internal/ratelimit"
)

const (
	TaskPassage = "retrieval.passage"
	TaskQuery   = "retrieval.query"
)

// Config holds the provider request parameters and the adaptive chunking
// schedule.
type Config struct {
	APIKey              string
	BaseURL             string
	Model               string
	Dimensions          int
	Task                string
	EmbeddingType       string
	LateChunking        bool
	StripNewlines       bool
	MaxTokensPerRequest int
	Timeout             time.Duration

	InitialChunkTokens int
	MinChunkTokens     int
	ResizeDecay        float64
	ResizeStep         int
}

// DefaultConfig returns the provider defaults without an API key.
func DefaultConfig() Config {
	return Config{
		BaseURL:             "https://api.jina.ai/v1/embeddings",
		Model:               "jina-embeddings-v3",
		Dimensions:          1024,
		Task:                TaskPassage,
		EmbeddingType:       "float",
		StripNewlines:       true,
		MaxTokensPerRequest: 8192,
		Timeout:             60 * time.Second,
		InitialChunkTokens:  7168,
		MinChunkTokens:      512,
		ResizeDecay:         0.7,
		ResizeStep:          1,
	}
}

// Client calls the embeddings endpoint. Every call goes through the shared
// rate limiter first.
type Client struct {
	cfg     Config
	http    *resty.Client
	limiter *ratelimit.Limiter
	chunker *chunker.Chunker
	stats   *LatencyStats
	metrics *Metrics
	log     *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

func WithLogger(log *slog.Logger) Option { return func(c *Client) { c.log = log } }

func WithStats(s *LatencyStats) Option { return func(c *Client) { c.stats = s } }

func WithMetrics(m *Metrics) Option { return func(c *Client) { c.metrics = m } }

// WithChunker sets the chunker whose options (header words, separator,
// word cap) the adaptive loop starts from.
func WithChunker(ch *chunker.Chunker) Option { return func(c *Client) { c.chunker = ch } }

// WithHTTPClient replaces the underlying transport client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = resty.NewWithClient(hc) }
}

// NewClient validates cfg and builds a client. A missing API key fails
// here, before any request can be made.
func NewClient(cfg Config, limiter *ratelimit.Limiter, opts ...Option) (*Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, ErrMissingAPIKey
	}
	if limiter == nil {
		return nil, fmt.Errorf("embed: rate limiter is required")
	}
	def := DefaultConfig()
	if cfg.BaseURL == "" {
		cfg.BaseURL = def.BaseURL
	}
	if cfg.Model == "" {
		cfg.Model = def.Model
	}
	if cfg.Task == "" {
		cfg.Task = def.Task
	}
	if cfg.EmbeddingType == "" {
		cfg.EmbeddingType = def.EmbeddingType
	}
	if cfg.MaxTokensPerRequest <= 0 {
		cfg.MaxTokensPerRequest = def.MaxTokensPerRequest
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.InitialChunkTokens <= 0 {
		cfg.InitialChunkTokens = def.InitialChunkTokens
	}
	if cfg.MinChunkTokens <= 0 {
		cfg.MinChunkTokens = def.MinChunkTokens
	}
	if cfg.ResizeDecay <= 0 || cfg.ResizeDecay >= 1 {
		cfg.ResizeDecay = def.ResizeDecay
	}
	if cfg.ResizeStep <= 0 {
		cfg.ResizeStep = def.ResizeStep
	}

	c := &Client{
		cfg:     cfg,
		limiter: limiter,
		http:    resty.New(),
		log:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.chunker == nil {
		c.chunker = chunker.New(chunker.Options{MaxTokensPerChunk: cfg.InitialChunkTokens}, c.log)
	}
	c.http.
		SetTimeout(cfg.Timeout).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json").
		SetAuthToken(cfg.APIKey)
	return c, nil
}

// Config returns the effective configuration.
func (c *Client) Config() Config { return c.cfg }

// EmbedDocuments embeds texts as passages, in input order.
func (c *Client) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	return c.embed(ctx, texts, c.cfg.Task)
}

// EmbedSingleDocument embeds one passage. Empty text yields no vector.
func (c *Client) EmbedSingleDocument(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, nil
	}
	vectors, err := c.embed(ctx, []string{text}, c.cfg.Task)
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedQuery embeds a search query with the query task.
func (c *Client) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vectors, err := c.embed(ctx, []string{text}, TaskQuery)
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedMultipleQueries embeds several search queries in one request.
func (c *Client) EmbedMultipleQueries(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	return c.embed(ctx, texts, TaskQuery)
}

func (c *Client) embed(ctx context.Context, texts []string, task string) ([][]float32, error) {
	switch o := c.submit(ctx, texts, task).(type) {
	case batchOK:
		return o.vectors, nil
	case batchOverflow:
		return nil, &OverflowError{Given: o.given, Limit: o.limit}
	case batchFailed:
		return nil, o.err
	default:
		return nil, fmt.Errorf("embed: unexpected outcome %T", o)
	}
}

// outcome is the result of one submission. The adaptive loop switches on
// the concrete type.
type outcome interface{ isOutcome() }

type batchOK struct{ vectors [][]float32 }

// batchOverflow means the request was too large, either by the local
// pre-flight estimate or by the provider's own tokenizer.
type batchOverflow struct {
	given int
	limit int
	local bool
}

type batchFailed struct{ err error }

func (batchOK) isOutcome()       {}
func (batchOverflow) isOutcome() {}
func (batchFailed) isOutcome()   {}

type embeddingRequest struct {
	Model         string   `json:"model"`
	Input         []string `json:"input"`
	Dimensions    int      `json:"dimensions,omitempty"`
	Task          string   `json:"task,omitempty"`
	EmbeddingType string   `json:"embedding_type,omitempty"`
	LateChunking  bool     `json:"late_chunking"`
	Truncate      bool     `json:"truncate"`
}

type embeddingResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
}

const overflowPhrase = "Chunks concatenated text cannot exceed"

var tokensGivenRe = regexp.MustCompile(`(\d+) tokens given`)

func (c *Client) submit(ctx context.Context, texts []string, task string) outcome {
	input := make([]string, len(texts))
	tokens := 0
	for i, t := range texts {
		if c.cfg.StripNewlines {
			t = strings.ReplaceAll(t, "\n", " ")
		}
		input[i] = t
		tokens += chunker.EstimateTokens(t)
	}
	if tokens > c.cfg.MaxTokensPerRequest {
		c.metrics.observeRejected()
		return batchOverflow{given: tokens, limit: c.cfg.MaxTokensPerRequest, local: true}
	}

	if err := c.limiter.CheckAndUpdate(ctx, tokens); err != nil {
		return batchFailed{err: fmt.Errorf("rate limiter: %w", err)}
	}

	start := time.Now()
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(embeddingRequest{
			Model:         c.cfg.Model,
			Input:         input,
			Dimensions:    c.cfg.Dimensions,
			Task:          task,
			EmbeddingType: c.cfg.EmbeddingType,
			LateChunking:  c.cfg.LateChunking,
			Truncate:      true,
		}).
		Post(c.cfg.BaseURL)
	elapsed := time.Since(start)
	observe := func(outcome string) {
		c.metrics.observeRequest(outcome, tokens, elapsed)
		c.stats.Record(Call{Task: task, Outcome: outcome, Tokens: tokens, Duration: elapsed})
	}

	if err != nil {
		if ctx.Err() != nil {
			observe(outcomeError)
			return batchFailed{err: ctx.Err()}
		}
		observe(outcomeRetryable)
		return batchFailed{err: &RetryableError{Message: err.Error()}}
	}

	body := resp.Body()
	status := resp.StatusCode()
	if resp.IsError() {
		if given, ok := parseOverflow(body); ok {
			observe(outcomeOverflow)
			return batchOverflow{given: given, limit: c.cfg.MaxTokensPerRequest}
		}
		if status == http.StatusTooManyRequests || status >= 500 {
			observe(outcomeRetryable)
			return batchFailed{err: &RetryableError{StatusCode: status, Message: string(body)}}
		}
		observe(outcomeError)
		return batchFailed{err: &APIError{StatusCode: status, Body: string(body)}}
	}

	var out embeddingResponse
	if err := json.Unmarshal(body, &out); err != nil {
		observe(outcomeError)
		return batchFailed{err: fmt.Errorf("decode embedding response: %w", err)}
	}
	vectors, err := orderVectors(out, len(texts))
	if err != nil {
		observe(outcomeError)
		return batchFailed{err: err}
	}
	observe(outcomeOK)
	return batchOK{vectors: vectors}
}

// orderVectors sorts response items by index and checks that exactly one
// vector came back per input.
func orderVectors(out embeddingResponse, want int) ([][]float32, error) {
	if len(out.Data) != want {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrVectorCountMismatch, len(out.Data), want)
	}
	data := out.Data
	sort.SliceStable(data, func(i, j int) bool { return data[i].Index < data[j].Index })
	vectors := make([][]float32, len(data))
	for i, d := range data {
		if d.Index != i {
			return nil, fmt.Errorf("%w: unexpected index %d at position %d", ErrVectorCountMismatch, d.Index, i)
		}
		vectors[i] = d.Embedding
	}
	return vectors, nil
}

// parseOverflow recognizes the provider's "too many tokens" error and
// extracts the count it reports.
func parseOverflow(body []byte) (int, bool) {
	detail := string(body)
	var parsed struct {
		Detail string `json:"detail"`
	}
	if err := json.Unmarshal(body, &parsed); err == nil && parsed.Detail != "" {
		detail = parsed.Detail
	}
	if !strings.Contains(detail, overflowPhrase) {
		return 0, false
	}
	m := tokensGivenRe.FindStringSubmatch(detail)
	if m == nil {
		return 0, true
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, true
	}
	return n, true
}
