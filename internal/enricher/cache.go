package enricher

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/semaj-rag/ingest-pipeline/internal/model"
)

// RedisCache memoizes chunk enrichment by (document_id, chunk_index) in
// Redis so the idempotent analyze/embed round trip survives a worker
// restart — a generalization of go-enhanced-rag-service's in-process
// EmbeddingCache to a shared, cross-worker backing store.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisCache builds a RedisCache with the given entry TTL.
func NewRedisCache(client *redis.Client, ttl time.Duration) *RedisCache {
	return &RedisCache{client: client, ttl: ttl}
}

func cacheKey(documentID string, chunkIndex int) string {
	return fmt.Sprintf("enrichment:%s:%d", documentID, chunkIndex)
}

// Get returns the cached enrichment, if present and unexpired.
func (c *RedisCache) Get(ctx context.Context, documentID string, chunkIndex int) (*model.Enrichment, bool) {
	raw, err := c.client.Get(ctx, cacheKey(documentID, chunkIndex)).Bytes()
	if err != nil {
		return nil, false
	}
	var e model.Enrichment
	if err := json.Unmarshal(raw, &e); err != nil {
		return nil, false
	}
	return &e, true
}

// Set stores e under (documentID, chunkIndex), best-effort: a write
// failure is not surfaced since the cache is an optimization, not a
// source of truth.
func (c *RedisCache) Set(ctx context.Context, documentID string, chunkIndex int, e *model.Enrichment) {
	raw, err := json.Marshal(e)
	if err != nil {
		return
	}
	_ = c.client.Set(ctx, cacheKey(documentID, chunkIndex), raw, c.ttl).Err()
}
