// Package enricher implements component C2: per-chunk LLM analysis,
// optional contextual summary, and embedding, with bounded concurrency
// across the chunks of one document (spec.md §4.2).
package enricher

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/semaj-rag/ingest-pipeline/internal/apperr"
	"github.com/semaj-rag/ingest-pipeline/internal/llm"
	"github.com/semaj-rag/ingest-pipeline/internal/model"
	"github.com/semaj-rag/ingest-pipeline/internal/ratelimit"
)

// Config tunes the enricher's retry/concurrency behavior.
type Config struct {
	Parallelism          int
	AnalysisMaxAttempts  int
	EmbeddingDimensions  int
	EnableContextualize  bool
	ContextPreviewChars  int
	MaxContextTokens     int
	EmbedInputCharLimit  int
}

// DefaultConfig matches the defaults named in spec.md §4.2.
func DefaultConfig() Config {
	return Config{
		Parallelism:         3,
		AnalysisMaxAttempts: 3,
		EmbeddingDimensions: 1536,
		EnableContextualize: true,
		ContextPreviewChars: 8000,
		MaxContextTokens:    100,
		EmbedInputCharLimit: 8192,
	}
}

// Cache memoizes (document_id, chunk_index) enrichment results so the
// analyze/embed round trip is idempotent and survives worker restarts
// (spec.md §4.2: "idempotent w.r.t. (document_id, chunk_index)").
type Cache interface {
	Get(ctx context.Context, documentID string, chunkIndex int) (*model.Enrichment, bool)
	Set(ctx context.Context, documentID string, chunkIndex int, e *model.Enrichment)
}

// llmClient is the subset of *llm.Client the enricher needs, narrowed to
// an interface so tests can substitute a fake without a network call.
type llmClient interface {
	Chat(ctx context.Context, system, user string, maxTokens int) (string, error)
	Embed(ctx context.Context, input string) ([]float32, error)
}

// Enricher drives Analyze, Contextualize, and Embed for the chunks of
// one document with bounded parallelism.
type Enricher struct {
	client  llmClient
	limiter *ratelimit.Limiter
	cache   Cache
	cfg     Config
	logger  *zap.Logger
}

// New builds an Enricher. cache may be nil to disable memoization.
func New(client *llm.Client, limiter *ratelimit.Limiter, cache Cache, cfg Config, logger *zap.Logger) *Enricher {
	return &Enricher{client: client, limiter: limiter, cache: cache, cfg: cfg, logger: logger}
}

// EnrichDocument runs Analyze -> Contextualize -> Embed for every chunk
// in chunks, bounded to cfg.Parallelism concurrent in-flight chunks.
// onChunk is invoked once per chunk as soon as its enrichment (success
// or failure) is ready; ordering between chunks is not guaranteed, but
// each chunk's three events fire in order within onChunk's caller
// (spec.md §4.2 "Concurrency", §5 "Ordering guarantees").
func (e *Enricher) EnrichDocument(ctx context.Context, documentID, documentPreview string, chunks []model.Chunk, onChunk func(model.Chunk)) error {
	g, gctx := errgroup.WithContext(ctx)
	sem := make(chan struct{}, e.cfg.Parallelism)

	for i := range chunks {
		chunk := chunks[i]
		sem <- struct{}{}
		g.Go(func() error {
			defer func() { <-sem }()

			if gctx.Err() != nil {
				return gctx.Err()
			}

			enriched := e.enrichOne(gctx, documentID, documentPreview, chunk)
			onChunk(enriched)
			return nil
		})
	}

	return g.Wait()
}

// enrichOne performs the three-stage enrichment for a single chunk.
// Analysis failures mark the chunk failed (chunk-local, per §4.7);
// embedding failures mark embedding_status=failed but leave the chunk
// otherwise analyzed, matching the fan-out policy in spec.md §4.3.
func (e *Enricher) enrichOne(ctx context.Context, documentID, documentPreview string, chunk model.Chunk) model.Chunk {
	if e.cache != nil {
		if cached, ok := e.cache.Get(ctx, documentID, chunk.Index); ok {
			chunk.Enrichment = cached
			chunk.Status = model.ChunkEmbedded
			chunk.EmbeddingStatus = model.EmbeddingOK
			return chunk
		}
	}

	analysis, err := e.analyze(ctx, chunk.Text)
	if err != nil {
		e.logger.Warn("chunk analysis failed",
			zap.String("document_id", documentID),
			zap.Int("chunk_index", chunk.Index),
			zap.Error(err))
		chunk.Status = model.ChunkFailed
		chunk.EmbeddingStatus = model.EmbeddingFailed
		return chunk
	}
	chunk.Status = model.ChunkAnalyzed

	var contextualSummary string
	if e.cfg.EnableContextualize {
		contextualSummary = e.contextualize(ctx, documentPreview, chunk.Text)
	}

	embedInput := chunk.Text
	usesContext := false
	if contextualSummary != "" {
		embedInput = contextualSummary + "\n\n" + chunk.Text
		usesContext = true
	}
	embedInput = truncateEmbedInput(embedInput, e.cfg.EmbedInputCharLimit)

	embedding, err := e.embed(ctx, embedInput)
	if err != nil {
		e.logger.Warn("chunk embedding failed",
			zap.String("document_id", documentID),
			zap.Int("chunk_index", chunk.Index),
			zap.Error(err))
		chunk.Enrichment = &model.Enrichment{
			Analysis:                *analysis,
			ContextualSummary:       contextualSummary,
			UsesContextualEmbedding: usesContext,
		}
		chunk.EmbeddingStatus = model.EmbeddingFailed
		return chunk
	}

	enrichment := &model.Enrichment{
		Analysis:                *analysis,
		ContextualSummary:       contextualSummary,
		Embedding:               embedding,
		UsesContextualEmbedding: usesContext,
	}
	chunk.Enrichment = enrichment
	chunk.Status = model.ChunkEmbedded
	chunk.EmbeddingStatus = model.EmbeddingOK

	if e.cache != nil {
		e.cache.Set(ctx, documentID, chunk.Index, enrichment)
	}

	return chunk
}

// shouldRetryUpstream classifies an LLM/embedding client error as
// retriable (spec.md §7: RateLimited and UpstreamUnavailable are
// retriable; anything else is not).
func shouldRetryUpstream(err error) bool {
	if statusErr, ok := err.(*llm.StatusError); ok {
		return statusErr.Status == 429 || statusErr.Status >= 500
	}
	return false
}

// analyzeBackoffBase and analyzeBackoffMax implement spec.md §4.2's
// "exponential backoff 1s·2^k + jitter".
const (
	analyzeBackoffBase = time.Second
	analyzeBackoffMax  = 30 * time.Second
)

func (e *Enricher) waitForToken(ctx context.Context) error {
	if e.limiter == nil {
		return nil
	}
	return e.limiter.Wait(ctx)
}

// truncateEmbedInput enforces the 8192-char window (spec.md §4.2
// "Embed"), cutting at the last space when it falls within the final
// 20% of the window, else hard-cutting, and appending "...".
func truncateEmbedInput(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	window := s[:limit]
	tailStart := limit - limit/5
	if idx := strings.LastIndex(window[tailStart:], " "); idx >= 0 {
		return window[:tailStart+idx] + "..."
	}
	return window + "..."
}

// errAnalysisFailed wraps analysis retry exhaustion per spec.md §7.
func errAnalysisFailed(err error) error {
	return apperr.Wrap(apperr.UpstreamUnavailable, "chunk analysis failed after retries", err)
}

// errEmbeddingFailed wraps embedding verification/retry failure.
func errEmbeddingFailed(err error) error {
	return apperr.Wrap(apperr.UpstreamUnavailable, "chunk embedding failed", err)
}
