// Package retrieval implements the hybrid retriever (component C9): a
// read-only fusion of vector-similarity and lexical (BM25) results,
// independent of the ingestion path.
package retrieval

import (
	"context"
	"sort"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/semaj-rag/ingest-pipeline/internal/store"
)

// rrfK is the reciprocal-rank-fusion constant (spec.md §4.9:
// "score = Σ 1/(60+rank_i)").
const rrfK = 60

// Embedder computes a query embedding for the vector leg of the search.
type Embedder interface {
	Embed(ctx context.Context, input string) ([]float32, error)
}

// VectorSearcher is the vector backend's query-by-vector capability.
type VectorSearcher interface {
	SearchByVector(ctx context.Context, queryVector []float32, k int, filter store.Filter) ([]store.SearchHit, error)
}

// LexicalSearcher is the lexical backend's free-text query capability.
type LexicalSearcher interface {
	Search(ctx context.Context, query string, k int, filter store.Filter) ([]store.SearchHit, error)
}

// Result is one fused hit returned to the caller.
type Result struct {
	store.SearchHit
	Score float64
}

// Response is the outcome of a hybrid Query call.
type Response struct {
	Results  []Result
	Degraded bool
	Source   string
}

// Retriever fuses vector and lexical hits via reciprocal-rank fusion.
type Retriever struct {
	embedder    Embedder
	vector      VectorSearcher
	lexical     LexicalSearcher
	localVector VectorSearcher
	logger      *zap.Logger
}

// New builds a Retriever over the three injected collaborators.
func New(embedder Embedder, vector VectorSearcher, lexical LexicalSearcher, logger *zap.Logger) *Retriever {
	return &Retriever{embedder: embedder, vector: vector, lexical: lexical, logger: logger}
}

// WithLocalVectorFallback registers the relational store's pgvector column
// as a secondary vector backend. When the external vector service errors,
// Query tries this local index before degrading all the way to
// lexical-only, so a Postgres-only deployment still gets semantic ranking
// (spec.md §4.9).
func (r *Retriever) WithLocalVectorFallback(local VectorSearcher) *Retriever {
	r.localVector = local
	return r
}

// Query runs the full hybrid procedure of spec.md §4.9: embed the query,
// fan out to both backends with k·2 results each, fuse by reciprocal
// rank, dedupe by chunk_id, and truncate to k. If either backend errors,
// the other's results are returned alone with Degraded=true.
func (r *Retriever) Query(ctx context.Context, query string, k int, filter store.Filter) (*Response, error) {
	fanoutK := k * 2

	embedding, err := r.embedder.Embed(ctx, query)
	var vectorHits []store.SearchHit
	var vectorErr error
	if err != nil {
		vectorErr = err
	} else {
		g, gctx := errgroup.WithContext(ctx)
		var lexicalHits []store.SearchHit
		var lexicalErr error

		g.Go(func() error {
			vectorHits, vectorErr = r.vector.SearchByVector(gctx, embedding, fanoutK, filter)
			if vectorErr != nil && r.localVector != nil {
				r.logger.Warn("external vector backend unavailable, trying local pgvector fallback", zap.Error(vectorErr))
				if hits, localErr := r.localVector.SearchByVector(gctx, embedding, fanoutK, filter); localErr == nil {
					vectorHits, vectorErr = hits, nil
				}
			}
			return nil
		})
		g.Go(func() error {
			lexicalHits, lexicalErr = r.lexical.Search(gctx, query, fanoutK, filter)
			return nil
		})
		_ = g.Wait()

		return r.fuse(vectorHits, vectorErr, lexicalHits, lexicalErr, k), nil
	}

	lexicalHits, lexicalErr := r.lexical.Search(ctx, query, fanoutK, filter)
	return r.fuse(vectorHits, vectorErr, lexicalHits, lexicalErr, k), nil
}

// QueryVectorOnly serves `GET /search?type=vector`: embed the query and
// rank purely by vector similarity, falling back to the local pgvector
// index if the external vector backend errors.
func (r *Retriever) QueryVectorOnly(ctx context.Context, query string, k int, filter store.Filter) (*Response, error) {
	embedding, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return &Response{Degraded: true, Source: "none"}, nil
	}
	hits, err := r.vector.SearchByVector(ctx, embedding, k, filter)
	if err != nil && r.localVector != nil {
		if localHits, localErr := r.localVector.SearchByVector(ctx, embedding, k, filter); localErr == nil {
			hits, err = localHits, nil
		}
	}
	if err != nil {
		r.logger.Warn("vector-only query failed", zap.Error(err))
		return &Response{Degraded: true, Source: "none"}, nil
	}
	return &Response{Results: rankOnly(hits, k), Source: "vector"}, nil
}

// QueryLexicalOnly serves `GET /search?type=bm25`: rank purely by
// full-text relevance.
func (r *Retriever) QueryLexicalOnly(ctx context.Context, query string, k int, filter store.Filter) (*Response, error) {
	hits, err := r.lexical.Search(ctx, query, k, filter)
	if err != nil {
		r.logger.Warn("lexical-only query failed", zap.Error(err))
		return &Response{Degraded: true, Source: "none"}, nil
	}
	return &Response{Results: rankOnly(hits, k), Source: "lexical"}, nil
}

func (r *Retriever) fuse(vectorHits []store.SearchHit, vectorErr error, lexicalHits []store.SearchHit, lexicalErr error, k int) *Response {
	switch {
	case vectorErr != nil && lexicalErr != nil:
		r.logger.Error("both retrieval backends failed", zap.Error(vectorErr), zap.Error(lexicalErr))
		return &Response{Degraded: true, Source: "none"}
	case vectorErr != nil:
		r.logger.Warn("vector backend unavailable, falling back to lexical", zap.Error(vectorErr))
		return &Response{Results: rankOnly(lexicalHits, k), Degraded: true, Source: "lexical"}
	case lexicalErr != nil:
		r.logger.Warn("lexical backend unavailable, falling back to vector", zap.Error(lexicalErr))
		return &Response{Results: rankOnly(vectorHits, k), Degraded: true, Source: "vector"}
	}

	scores := map[string]float64{}
	byID := map[string]store.SearchHit{}
	accumulate := func(hits []store.SearchHit) {
		for rank, hit := range hits {
			scores[hit.ChunkID] += 1.0 / float64(rrfK+rank+1)
			byID[hit.ChunkID] = hit
		}
	}
	accumulate(vectorHits)
	accumulate(lexicalHits)

	results := make([]Result, 0, len(scores))
	for id, score := range scores {
		results = append(results, Result{SearchHit: byID[id], Score: score})
	}
	sort.Slice(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	if len(results) > k {
		results = results[:k]
	}
	return &Response{Results: results, Degraded: false, Source: "hybrid"}
}

// rankOnly converts a single backend's ordered hits into fused Results
// using the same reciprocal-rank formula, truncated to k.
func rankOnly(hits []store.SearchHit, k int) []Result {
	results := make([]Result, 0, len(hits))
	for rank, hit := range hits {
		results = append(results, Result{SearchHit: hit, Score: 1.0 / float64(rrfK+rank+1)})
	}
	if len(results) > k {
		results = results[:k]
	}
	return results
}
