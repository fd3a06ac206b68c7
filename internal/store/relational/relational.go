// Package relational implements the relational storage adapter over
// Postgres via pgx/pgxpool, the way sse-rag-service and document-chunker
// both talk to Postgres directly rather than through an ORM.
package relational

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
	"go.uber.org/zap"

	"github.com/semaj-rag/ingest-pipeline/internal/apperr"
	"github.com/semaj-rag/ingest-pipeline/internal/model"
	"github.com/semaj-rag/ingest-pipeline/internal/store"
)

var _ store.Adapter = (*Store)(nil)

// Store is the Postgres-backed relational adapter (spec.md §4.3, §6
// "processed_content" schema). It also carries a pgvector embedding
// column so the relational backend can serve similarity search locally
// when the external vector service is unreachable, rather than only
// ever degrading straight to full-text (spec.md §4.9's graceful
// degradation path).
type Store struct {
	pool                *pgxpool.Pool
	embeddingDimensions int
	logger              *zap.Logger
}

// New builds a Store over an existing pool. embeddingDimensions sizes
// the pgvector column created by InitSchema.
func New(pool *pgxpool.Pool, embeddingDimensions int, logger *zap.Logger) *Store {
	return &Store{pool: pool, embeddingDimensions: embeddingDimensions, logger: logger}
}

// InitSchema creates the tables and indexes this adapter depends on, the
// way sse-rag-service.initializeSchema and document-chunker.initializeSchema
// run their DDL eagerly at startup.
func (s *Store) InitSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, `CREATE EXTENSION IF NOT EXISTS vector`); err != nil {
		return apperr.Wrap(apperr.FatalDatabase, "enable pgvector extension", err)
	}

	schema := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS processed_content (
	id UUID PRIMARY KEY,
	url TEXT,
	title TEXT,
	summary TEXT,
	chunk_text TEXT,
	chunk_id TEXT UNIQUE,
	chunk_index INTEGER,
	record_type TEXT NOT NULL,
	parent_document_id UUID,
	processing_status TEXT NOT NULL,
	embedding_status TEXT,
	uses_contextual_embedding BOOLEAN DEFAULT FALSE,
	contextual_summary TEXT,
	sentiment TEXT,
	emotions TEXT[],
	category TEXT,
	content_type TEXT,
	technical_level TEXT,
	tags TEXT[],
	key_concepts TEXT[],
	main_topics TEXT[],
	key_entities JSONB,
	document_type TEXT,
	chunking_method TEXT,
	boundaries_respected TEXT[],
	section_title TEXT,
	section_level INTEGER,
	created_time TIMESTAMPTZ DEFAULT now(),
	updated_at TIMESTAMPTZ DEFAULT now(),
	search_vector TSVECTOR,
	embedding vector(%d)
);

CREATE INDEX IF NOT EXISTS idx_processed_content_parent ON processed_content(parent_document_id);
CREATE INDEX IF NOT EXISTS idx_processed_content_record_type ON processed_content(record_type);
CREATE INDEX IF NOT EXISTS idx_processed_content_search ON processed_content USING GIN(search_vector);
CREATE INDEX IF NOT EXISTS idx_processed_content_embedding ON processed_content USING ivfflat (embedding vector_cosine_ops) WITH (lists = 100);
`, s.embeddingDimensions)
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return apperr.Wrap(apperr.FatalDatabase, "initialize relational schema", err)
	}
	return nil
}

// UpsertDocument writes the document's own row (record_type=document).
func (s *Store) UpsertDocument(ctx context.Context, doc model.Document) error {
	const q = `
INSERT INTO processed_content (id, url, title, record_type, processing_status, created_time, updated_at)
VALUES ($1, $2, $3, 'document', $4, $5, now())
ON CONFLICT (id) DO UPDATE SET
	url = EXCLUDED.url,
	title = EXCLUDED.title,
	processing_status = EXCLUDED.processing_status,
	updated_at = now()
`
	_, err := s.pool.Exec(ctx, q, doc.ID, doc.URL, doc.Title, string(doc.Status), doc.CreatedAt)
	if err != nil {
		return classifyPgError(err, "upsert document")
	}
	return nil
}

// UpsertChunk writes one chunk row with its enrichment fields, using
// ON CONFLICT (chunk_id) DO UPDATE so retries converge (spec.md §4.3,
// §4.7 "Idempotence").
func (s *Store) UpsertChunk(ctx context.Context, doc model.Document, chunk model.Chunk) error {
	const q = `
INSERT INTO processed_content (
	id, url, title, chunk_text, chunk_id, chunk_index, record_type, parent_document_id,
	processing_status, embedding_status, uses_contextual_embedding, contextual_summary,
	sentiment, emotions, category, content_type, technical_level, tags, key_concepts,
	main_topics, key_entities, chunking_method, section_title, section_level,
	created_time, updated_at, search_vector, embedding
) VALUES (
	$1, $2, $3, $4, $5, $6, 'chunk', $7,
	$8, $9, $10, $11,
	$12, $13, $14, $15, $16, $17, $18,
	$19, $20, $21, $22, $23,
	now(), now(), to_tsvector('english', $4), $24
)
ON CONFLICT (chunk_id) DO UPDATE SET
	chunk_text = EXCLUDED.chunk_text,
	processing_status = EXCLUDED.processing_status,
	embedding_status = EXCLUDED.embedding_status,
	uses_contextual_embedding = EXCLUDED.uses_contextual_embedding,
	contextual_summary = EXCLUDED.contextual_summary,
	sentiment = EXCLUDED.sentiment,
	emotions = EXCLUDED.emotions,
	category = EXCLUDED.category,
	content_type = EXCLUDED.content_type,
	technical_level = EXCLUDED.technical_level,
	tags = EXCLUDED.tags,
	key_concepts = EXCLUDED.key_concepts,
	main_topics = EXCLUDED.main_topics,
	key_entities = EXCLUDED.key_entities,
	chunking_method = EXCLUDED.chunking_method,
	section_title = EXCLUDED.section_title,
	section_level = EXCLUDED.section_level,
	updated_at = now(),
	search_vector = to_tsvector('english', EXCLUDED.chunk_text),
	embedding = COALESCE(EXCLUDED.embedding, processed_content.embedding)
`
	var (
		sentiment, category, contentType, technicalLevel, sectionTitle string
		emotions, tags, keyConcepts, mainTopics                        []string
		keyEntities                                                    []byte
		usesContext                                                    bool
		contextualSummary                                              string
		embedding                                                      interface{}
		err                                                            error
	)

	if chunk.Enrichment != nil {
		a := chunk.Enrichment.Analysis
		sentiment, category, contentType, technicalLevel = string(a.Sentiment), a.Category, string(a.ContentType), string(a.TechnicalLevel)
		emotions, tags, keyConcepts, mainTopics = a.Emotions, a.Tags, a.KeyConcepts, a.MainTopics
		keyEntities, err = json.Marshal(a.KeyEntities)
		if err != nil {
			return apperr.Wrap(apperr.InvalidInput, "marshal key_entities", err)
		}
		usesContext = chunk.Enrichment.UsesContextualEmbedding
		contextualSummary = chunk.Enrichment.ContextualSummary
		if len(chunk.Enrichment.Embedding) > 0 {
			v := pgvector.NewVector(chunk.Enrichment.Embedding)
			embedding = &v
		}
	}
	sectionTitle = chunk.SectionTitle

	_, err = s.pool.Exec(ctx, q,
		chunk.ID, doc.URL, doc.Title, chunk.Text, chunk.ID, chunk.Index, doc.ID,
		string(chunk.Status), string(chunk.EmbeddingStatus), usesContext, contextualSummary,
		sentiment, emotions, category, contentType, technicalLevel, tags, keyConcepts,
		mainTopics, keyEntities, string(chunk.Method), sectionTitle, chunk.SectionLevel,
		embedding,
	)
	if err != nil {
		return classifyPgError(err, "upsert chunk")
	}
	return nil
}

// DeleteDocument removes a document and every chunk row beneath it. This
// is the external admin operation spec.md §3 reserves outside the
// pipeline's own write path.
func (s *Store) DeleteDocument(ctx context.Context, documentID string) error {
	const q = `DELETE FROM processed_content WHERE id = $1 OR parent_document_id = $1`
	_, err := s.pool.Exec(ctx, q, documentID)
	if err != nil {
		return classifyPgError(err, "delete document")
	}
	return nil
}

// allowedSortColumns guards ListDocuments' sortBy parameter against SQL
// injection, since it is interpolated directly into ORDER BY.
var allowedSortColumns = map[string]string{
	"created_time": "created_time",
	"updated_at":   "updated_at",
	"title":        "title",
}

// ListDocuments backs `GET /documents?limit&offset&sortBy&sortOrder&q`
// (spec.md §6). An empty q lists every document; a non-empty q filters
// by a case-insensitive title/url substring match.
func (s *Store) ListDocuments(ctx context.Context, limit, offset int, sortBy, sortOrder, q string) ([]model.Document, error) {
	col, ok := allowedSortColumns[sortBy]
	if !ok {
		col = "created_time"
	}
	order := "DESC"
	if strings.EqualFold(sortOrder, "asc") {
		order = "ASC"
	}

	query := `
SELECT d.id, d.url, d.title, d.processing_status, d.created_time, d.updated_at,
       (SELECT count(*) FROM processed_content c WHERE c.parent_document_id = d.id) AS total_chunks
FROM processed_content d
WHERE d.record_type = 'document'`
	args := []interface{}{}
	if q != "" {
		args = append(args, "%"+q+"%")
		query += fmt.Sprintf(" AND (d.title ILIKE $%d OR d.url ILIKE $%d)", len(args), len(args))
	}
	query += fmt.Sprintf(" ORDER BY d.%s %s", col, order)
	args = append(args, limit)
	query += fmt.Sprintf(" LIMIT $%d", len(args))
	args = append(args, offset)
	query += fmt.Sprintf(" OFFSET $%d", len(args))

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, classifyPgError(err, "list documents")
	}
	defer rows.Close()

	var docs []model.Document
	for rows.Next() {
		var d model.Document
		if err := rows.Scan(&d.ID, &d.URL, &d.Title, &d.Status, &d.CreatedAt, &d.UpdatedAt, &d.TotalChunks); err != nil {
			return nil, apperr.Wrap(apperr.TransientDatabase, "scan document row", err)
		}
		docs = append(docs, d)
	}
	return docs, rows.Err()
}

// GetDocument backs `GET /documents/:id`.
func (s *Store) GetDocument(ctx context.Context, documentID string) (*model.Document, error) {
	const q = `
SELECT d.id, d.url, d.title, d.processing_status, d.created_time, d.updated_at,
       (SELECT count(*) FROM processed_content c WHERE c.parent_document_id = d.id) AS total_chunks
FROM processed_content d WHERE d.id = $1 AND d.record_type = 'document'
`
	var d model.Document
	err := s.pool.QueryRow(ctx, q, documentID).Scan(&d.ID, &d.URL, &d.Title, &d.Status, &d.CreatedAt, &d.UpdatedAt, &d.TotalChunks)
	if err == pgx.ErrNoRows {
		return nil, apperr.New(apperr.NotFound, "document not found")
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.TransientDatabase, "get document", err)
	}
	return &d, nil
}

// ListChunks backs `GET /documents/:id/chunks?limit&offset`.
func (s *Store) ListChunks(ctx context.Context, documentID string, limit, offset int) ([]model.Chunk, error) {
	const q = `
SELECT chunk_id, chunk_index, chunk_text, processing_status, embedding_status, section_title, section_level
FROM processed_content
WHERE parent_document_id = $1 AND record_type = 'chunk'
ORDER BY chunk_index ASC
LIMIT $2 OFFSET $3
`
	rows, err := s.pool.Query(ctx, q, documentID, limit, offset)
	if err != nil {
		return nil, classifyPgError(err, "list chunks")
	}
	defer rows.Close()

	var chunks []model.Chunk
	for rows.Next() {
		var c model.Chunk
		if err := rows.Scan(&c.ID, &c.Index, &c.Text, &c.Status, &c.EmbeddingStatus, &c.SectionTitle, &c.SectionLevel); err != nil {
			return nil, apperr.Wrap(apperr.TransientDatabase, "scan chunk row", err)
		}
		c.DocumentID = documentID
		chunks = append(chunks, c)
	}
	return chunks, rows.Err()
}

// Search runs a ts_rank-ordered full-text query over the stored chunks
// (spec.md §4.3). Neither the retrieval HTTP surface nor the hybrid
// retriever calls it: when the external BM25 service fails, the
// retriever does not fall back to this query.
func (s *Store) Search(ctx context.Context, query string, k int, filter store.Filter) ([]store.SearchHit, error) {
	q := `
SELECT chunk_id, parent_document_id, chunk_text,
       ts_rank(search_vector, plainto_tsquery('english', $1)) AS rank
FROM processed_content
WHERE record_type = 'chunk' AND search_vector @@ plainto_tsquery('english', $1)`
	args := []interface{}{query}
	if filter.DocumentID != "" {
		q += fmt.Sprintf(" AND parent_document_id = $%d", len(args)+1)
		args = append(args, filter.DocumentID)
	}
	q += fmt.Sprintf(" ORDER BY rank DESC LIMIT $%d", len(args)+1)
	args = append(args, k)

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, classifyPgError(err, "full-text search")
	}
	defer rows.Close()

	var hits []store.SearchHit
	for rows.Next() {
		var h store.SearchHit
		if err := rows.Scan(&h.ChunkID, &h.DocumentID, &h.Text, &h.Score); err != nil {
			return nil, apperr.Wrap(apperr.TransientDatabase, "scan search row", err)
		}
		hits = append(hits, h)
	}
	return hits, rows.Err()
}

// SearchByVector runs a cosine-distance nearest-neighbor search over the
// local embedding column. The hybrid retriever calls this as a fallback
// vector backend when the external vector service is unreachable, so a
// degraded query still gets semantic ranking rather than full-text only
// (spec.md §4.9).
func (s *Store) SearchByVector(ctx context.Context, queryVector []float32, k int, filter store.Filter) ([]store.SearchHit, error) {
	v := pgvector.NewVector(queryVector)
	q := `
SELECT chunk_id, parent_document_id, chunk_text,
       1 - (embedding <=> $1) AS score
FROM processed_content
WHERE record_type = 'chunk' AND embedding IS NOT NULL`
	args := []interface{}{v}
	if filter.DocumentID != "" {
		q += fmt.Sprintf(" AND parent_document_id = $%d", len(args)+1)
		args = append(args, filter.DocumentID)
	}
	q += fmt.Sprintf(" ORDER BY embedding <=> $1 LIMIT $%d", len(args)+1)
	args = append(args, k)

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, classifyPgError(err, "vector search")
	}
	defer rows.Close()

	var hits []store.SearchHit
	for rows.Next() {
		var h store.SearchHit
		if err := rows.Scan(&h.ChunkID, &h.DocumentID, &h.Text, &h.Score); err != nil {
			return nil, apperr.Wrap(apperr.TransientDatabase, "scan vector search row", err)
		}
		hits = append(hits, h)
	}
	return hits, rows.Err()
}

// classifyPgError maps a pgx error to the apperr taxonomy: "no rows" is
// NotFound, a connection-shaped error is TransientDatabase (retriable),
// anything else is FatalDatabase.
func classifyPgError(err error, op string) error {
	if err == pgx.ErrNoRows {
		return apperr.Wrap(apperr.NotFound, op, err)
	}
	if isTransient(err) {
		return apperr.Wrap(apperr.TransientDatabase, op, err)
	}
	return apperr.Wrap(apperr.FatalDatabase, op, err)
}

func isTransient(err error) bool {
	// Connection resets and pool exhaustion surface as plain errors from
	// pgx rather than a typed sentinel; a substring check mirrors what
	// the teacher's own fmt.Errorf-wrapped logging already does when
	// classifying "failed to connect" style failures.
	msg := err.Error()
	for _, substr := range []string{"connection reset", "broken pipe", "pool", "timeout", "EOF"} {
		if strings.Contains(msg, substr) {
			return true
		}
	}
	return false
}
