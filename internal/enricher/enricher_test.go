package enricher

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/semaj-rag/ingest-pipeline/internal/model"
)

type fakeClient struct {
	mu          sync.Mutex
	chatCalls   int
	embedCalls  int
	analysisJSON string
	embedDims   int
	failEmbed   bool
}

func (f *fakeClient) Chat(ctx context.Context, system, user string, maxTokens int) (string, error) {
	f.mu.Lock()
	f.chatCalls++
	f.mu.Unlock()
	if strings.Contains(system, "situates the chunk") {
		return "This chunk continues the discussion from the prior section.", nil
	}
	return f.analysisJSON, nil
}

func (f *fakeClient) Embed(ctx context.Context, input string) ([]float32, error) {
	f.mu.Lock()
	f.embedCalls++
	f.mu.Unlock()
	if f.failEmbed {
		return nil, fmt.Errorf("embedding backend unavailable")
	}
	vec := make([]float32, f.embedDims)
	for i := range vec {
		vec[i] = 0.01 * float32(i)
	}
	return vec, nil
}

func newTestEnricher(client *fakeClient, cfg Config) *Enricher {
	return &Enricher{
		client: client,
		cfg:    cfg,
		logger: zap.NewNop(),
	}
}

func validAnalysisJSON() string {
	return `{"title":"t","summary":"s","category":"c","content_type":"article","technical_level":"beginner","sentiment":"neutral","emotions":["calm"],"tags":["x"],"key_concepts":["y"],"main_topics":["z"],"key_entities":{"people":["a"],"organizations":[],"locations":[]}}`
}

func TestEnrichOne_HappyPath(t *testing.T) {
	fc := &fakeClient{analysisJSON: validAnalysisJSON(), embedDims: 8}
	cfg := DefaultConfig()
	cfg.EmbeddingDimensions = 8
	e := newTestEnricher(fc, cfg)

	chunk := model.Chunk{ID: "c1", Index: 0, Text: "hello world"}
	out := e.enrichOne(context.Background(), "doc1", "preview", chunk)

	if out.Status != model.ChunkEmbedded {
		t.Fatalf("expected status embedded, got %s", out.Status)
	}
	if out.EmbeddingStatus != model.EmbeddingOK {
		t.Fatalf("expected embedding_status ok, got %s", out.EmbeddingStatus)
	}
	if out.Enrichment == nil || len(out.Enrichment.Embedding) != 8 {
		t.Fatalf("expected 8-dim embedding")
	}
	if !out.Enrichment.UsesContextualEmbedding {
		t.Fatalf("expected contextual embedding to be used")
	}
}

func TestEnrichOne_InvalidEnumsClampToDefaults(t *testing.T) {
	raw := `{"title":"t","summary":"s","category":"c","content_type":"bogus","technical_level":"bogus","sentiment":"bogus","emotions":null,"tags":null,"key_concepts":null,"main_topics":null,"key_entities":null}`
	fc := &fakeClient{analysisJSON: raw, embedDims: 4}
	cfg := DefaultConfig()
	cfg.EmbeddingDimensions = 4
	cfg.EnableContextualize = false
	e := newTestEnricher(fc, cfg)

	chunk := model.Chunk{ID: "c1", Index: 0, Text: "hello"}
	out := e.enrichOne(context.Background(), "doc1", "", chunk)

	if out.Enrichment.Analysis.ContentType != model.ContentOther {
		t.Fatalf("expected content_type clamped to other, got %s", out.Enrichment.Analysis.ContentType)
	}
	if out.Enrichment.Analysis.TechnicalLevel != model.LevelIntermediate {
		t.Fatalf("expected technical_level clamped to intermediate, got %s", out.Enrichment.Analysis.TechnicalLevel)
	}
	if out.Enrichment.Analysis.Sentiment != model.SentimentNeutral {
		t.Fatalf("expected sentiment clamped to neutral, got %s", out.Enrichment.Analysis.Sentiment)
	}
	if out.Enrichment.Analysis.Tags == nil {
		t.Fatalf("expected tags coerced to non-nil array")
	}
}

func TestEnrichOne_EmbeddingFailureMarksStatusFailed(t *testing.T) {
	fc := &fakeClient{analysisJSON: validAnalysisJSON(), embedDims: 8, failEmbed: true}
	cfg := DefaultConfig()
	cfg.EmbeddingDimensions = 8
	cfg.AnalysisMaxAttempts = 1
	e := newTestEnricher(fc, cfg)

	chunk := model.Chunk{ID: "c1", Index: 0, Text: "hello"}
	out := e.enrichOne(context.Background(), "doc1", "preview", chunk)

	if out.EmbeddingStatus != model.EmbeddingFailed {
		t.Fatalf("expected embedding_status failed, got %s", out.EmbeddingStatus)
	}
	if out.Status == model.ChunkFailed {
		t.Fatalf("chunk should still be considered analyzed even if embedding failed")
	}
}

func TestEnrichDocument_BoundedParallelism(t *testing.T) {
	fc := &fakeClient{analysisJSON: validAnalysisJSON(), embedDims: 4}
	cfg := DefaultConfig()
	cfg.EmbeddingDimensions = 4
	cfg.Parallelism = 2
	cfg.EnableContextualize = false
	e := newTestEnricher(fc, cfg)

	chunks := make([]model.Chunk, 10)
	for i := range chunks {
		chunks[i] = model.Chunk{ID: fmt.Sprintf("c%d", i), Index: i, Text: "text"}
	}

	var mu sync.Mutex
	seen := map[int]bool{}
	inFlight, maxInFlight := 0, 0
	err := e.EnrichDocument(context.Background(), "doc1", "", chunks, func(c model.Chunk) {
		mu.Lock()
		seen[c.Index] = true
		inFlight++
		if inFlight > maxInFlight {
			maxInFlight = inFlight
		}
		mu.Unlock()
		time.Sleep(2 * time.Millisecond)
		mu.Lock()
		inFlight--
		mu.Unlock()
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(seen) != len(chunks) {
		t.Fatalf("expected all %d chunks to be processed, got %d", len(chunks), len(seen))
	}
	if maxInFlight > cfg.Parallelism {
		t.Fatalf("expected at most %d chunks in flight, saw %d", cfg.Parallelism, maxInFlight)
	}
}

func TestTruncateEmbedInput(t *testing.T) {
	long := strings.Repeat("word ", 2000)
	out := truncateEmbedInput(long, 100)
	if len(out) > 104 {
		t.Fatalf("expected truncated output near limit, got length %d", len(out))
	}
	if !strings.HasSuffix(out, "...") {
		t.Fatalf("expected truncated output to end with ellipsis")
	}
}
