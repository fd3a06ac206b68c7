package main

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/semaj-rag/ingest-pipeline/internal/blobstore"
	"github.com/semaj-rag/ingest-pipeline/internal/config"
	"github.com/semaj-rag/ingest-pipeline/internal/enricher"
	"github.com/semaj-rag/ingest-pipeline/internal/fetcher"
	"github.com/semaj-rag/ingest-pipeline/internal/httpapi"
	"github.com/semaj-rag/ingest-pipeline/internal/llm"
	"github.com/semaj-rag/ingest-pipeline/internal/pipeline"
	"github.com/semaj-rag/ingest-pipeline/internal/progress"
	"github.com/semaj-rag/ingest-pipeline/internal/queue"
	"github.com/semaj-rag/ingest-pipeline/internal/ratelimit"
	"github.com/semaj-rag/ingest-pipeline/internal/retrieval"
	"github.com/semaj-rag/ingest-pipeline/internal/session"
	"github.com/semaj-rag/ingest-pipeline/internal/store"
	"github.com/semaj-rag/ingest-pipeline/internal/store/lexical"
	"github.com/semaj-rag/ingest-pipeline/internal/store/relational"
	"github.com/semaj-rag/ingest-pipeline/internal/store/vector"
	"github.com/semaj-rag/ingest-pipeline/internal/worker"
)

// deps is every long-lived collaborator ingestd constructs. serve and
// worker each use a subset; migrate only needs the schema owners.
type deps struct {
	cfg *config.Config

	pool *pgxpool.Pool

	relational *relational.Store
	vector     *vector.Store
	lexical    *lexical.Store
	fanout     *store.Fanout

	sessions *session.Registry
	queue    *queue.Queue
	bus      *progress.Bus

	blobs *blobstore.Store

	llmClient *llm.Client
	limiter   *ratelimit.Limiter
	redis     *redis.Client
	enricher  *enricher.Enricher

	orchestrator *pipeline.Orchestrator
	retriever    *retrieval.Retriever
	server       *httpapi.Server
}

// newPool opens the pgx pool and registers pgvector's composite type on
// every new connection, the way an AfterConnect hook is the documented
// way pgvector-go asks callers to make `vector` values round-trip
// (without it, Scan into pgvector.Vector fails with an unknown-OID
// error).
func newPool(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, err
	}
	poolCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgvector.RegisterTypes(ctx, conn)
	}
	return pgxpool.NewWithConfig(ctx, poolCfg)
}

// buildDeps constructs every collaborator named in SPEC_FULL.md's
// component table over a fresh Config, shared by serve/worker/migrate.
func buildDeps(ctx context.Context, logger *zap.Logger) (*deps, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	pool, err := newPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}

	d := &deps{cfg: cfg, pool: pool}

	d.relational = relational.New(pool, cfg.EmbeddingDimensions, logger)
	d.vector = vector.New(cfg.QdrantURL, "ingest_chunks", cfg.EmbeddingDimensions, logger)
	if err := d.vector.EnsureCollection(ctx); err != nil {
		logger.Warn("vector backend unavailable at startup, will degrade until it recovers", zap.Error(err))
	}
	d.lexical = lexical.New(cfg.BM25URL, "ingest_chunks", logger)
	d.fanout = store.NewFanout(d.relational, d.vector, d.lexical, logger)

	d.sessions = session.New(pool, cfg.SessionHeartbeatTimeout, logger)
	d.queue = queue.New(pool, logger)
	d.bus = progress.New(logger)

	blobs, err := blobstore.New(ctx, cfg.MinioEndpoint, cfg.MinioAccessKey, cfg.MinioSecretKey, cfg.MinioBucket, cfg.MinioUseSSL, logger)
	if err != nil {
		return nil, err
	}
	d.blobs = blobs

	d.llmClient = llm.New(cfg.OpenAIAPIKey)
	d.limiter = ratelimit.New(5, 10)
	d.redis = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})

	enricherCfg := enricher.DefaultConfig()
	enricherCfg.EmbeddingDimensions = cfg.EmbeddingDimensions
	cache := enricher.NewRedisCache(d.redis, 24*time.Hour)
	d.enricher = enricher.New(d.llmClient, d.limiter, cache, enricherCfg, logger)

	contentFetcher := fetcher.New(d.blobs)
	pipelineCfg := pipeline.DefaultConfig()
	pipelineCfg.ChunkParallelism = cfg.ChunkParallelism
	d.orchestrator = pipeline.New(contentFetcher, d.enricher, d.fanout, d.sessions, d.bus, pipelineCfg, logger)

	d.retriever = retrieval.New(d.llmClient, d.vector, d.lexical, logger).WithLocalVectorFallback(d.relational)

	d.server = httpapi.New(d.queue, d.sessions, d.bus, d.relational, d.blobs, d.retriever, logger)

	return d, nil
}

// initSchema runs every owning package's InitSchema so serve/worker/
// migrate never depend on a separate out-of-band migration tool for the
// tables this service itself owns.
func (d *deps) initSchema(ctx context.Context) error {
	if err := d.relational.InitSchema(ctx); err != nil {
		return err
	}
	if err := d.sessions.InitSchema(ctx); err != nil {
		return err
	}
	if err := d.queue.InitSchema(ctx); err != nil {
		return err
	}
	return nil
}

func (d *deps) workerPool(logger *zap.Logger) *worker.Pool {
	cfg := worker.DefaultConfig()
	cfg.WorkerCount = d.cfg.WorkerCount
	return worker.New(d.queue, d.orchestrator, cfg, logger)
}

func (d *deps) close() {
	d.pool.Close()
	_ = d.redis.Close()
}
