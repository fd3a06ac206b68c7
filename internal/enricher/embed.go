package enricher

import (
	"context"
	"fmt"
	"math"

	"github.com/semaj-rag/ingest-pipeline/internal/retry"
)

// embed calls the embedding model and verifies the returned vector's
// shape before returning it (spec.md §4.2 "Embed").
func (e *Enricher) embed(ctx context.Context, input string) ([]float32, error) {
	var vec []float32

	err := retry.Do(ctx, e.cfg.AnalysisMaxAttempts, analyzeBackoffBase, analyzeBackoffMax, shouldRetryUpstream, func(ctx context.Context) error {
		if err := e.waitForToken(ctx); err != nil {
			return err
		}
		v, err := e.client.Embed(ctx, input)
		if err != nil {
			return err
		}
		if verr := verifyEmbedding(v, e.cfg.EmbeddingDimensions); verr != nil {
			return verr
		}
		vec = v
		return nil
	})
	if err != nil {
		return nil, errEmbeddingFailed(err)
	}
	return vec, nil
}

// verifyEmbedding checks the vector's length matches the configured
// dimensionality and every entry is finite (spec.md §4.2, §8).
func verifyEmbedding(v []float32, dims int) error {
	if len(v) != dims {
		return errDimMismatch(len(v), dims)
	}
	for _, f := range v {
		if math.IsNaN(float64(f)) || math.IsInf(float64(f), 0) {
			return errNonFiniteEntry()
		}
	}
	return nil
}

func errDimMismatch(got, want int) error {
	return fmt.Errorf("embedding has %d dimensions, expected %d", got, want)
}

func errNonFiniteEntry() error {
	return fmt.Errorf("embedding contains a non-finite entry")
}
