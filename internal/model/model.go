// Package model defines the data types shared across the ingestion
// pipeline: documents, chunks, enrichment, sessions, jobs, and the
// progress events published while a document is being processed.
package model

import "time"

// DocumentStatus is the lifecycle of a Document as it moves through the
// pipeline.
type DocumentStatus string

const (
	DocumentQueued    DocumentStatus = "queued"
	DocumentFetching  DocumentStatus = "fetching"
	DocumentChunking  DocumentStatus = "chunking"
	DocumentEnriching DocumentStatus = "enriching"
	DocumentStoring   DocumentStatus = "storing"
	DocumentCompleted DocumentStatus = "completed"
	DocumentFailed    DocumentStatus = "failed"
	DocumentCancelled DocumentStatus = "cancelled"
)

// SourceType distinguishes how a Document entered the pipeline.
type SourceType string

const (
	SourceURL  SourceType = "url"
	SourceFile SourceType = "file"
)

// Document is a logical unit uploaded or fetched for ingestion.
type Document struct {
	ID           string
	URL          string
	Title        string
	SourceType   SourceType
	UploadOrigin string
	Status       DocumentStatus
	TotalChunks  int
	CreatedAt    time.Time
	UpdatedAt    time.Time
	CompletedAt  *time.Time
}

// ChunkingMethod records which chunker strategy produced a Chunk.
type ChunkingMethod string

const (
	ChunkFixed       ChunkingMethod = "fixed"
	ChunkSemantic    ChunkingMethod = "semantic"
	ChunkStructural  ChunkingMethod = "structural"
	ChunkHierarchical ChunkingMethod = "hierarchical"
)

// ChunkStatus is the lifecycle of a single Chunk.
type ChunkStatus string

const (
	ChunkPending  ChunkStatus = "pending"
	ChunkAnalyzed ChunkStatus = "analyzed"
	ChunkEmbedded ChunkStatus = "embedded"
	ChunkStored   ChunkStatus = "stored"
	ChunkFailed   ChunkStatus = "failed"
)

// EmbeddingStatus records whether the embedding/vector write succeeded,
// independently of the chunk's overall storage status.
type EmbeddingStatus string

const (
	EmbeddingPending EmbeddingStatus = "pending"
	EmbeddingOK      EmbeddingStatus = "ok"
	EmbeddingFailed  EmbeddingStatus = "failed"
)

// Span is a half-open [Start,End) byte range into the cleaned source text.
type Span struct {
	Start int
	End   int
}

// Chunk is a contiguous span of a Document's cleaned text.
type Chunk struct {
	ID              string
	DocumentID      string
	Index           int
	Span            Span
	Text            string
	Method          ChunkingMethod
	SectionTitle    string
	SectionLevel    int
	BoundaryType    string
	Overlap         int
	Status          ChunkStatus
	EmbeddingStatus EmbeddingStatus
	Enrichment      *Enrichment
}

// ContentType classifies the kind of content a chunk belongs to.
type ContentType string

const (
	ContentArticle  ContentType = "article"
	ContentBlog     ContentType = "blog"
	ContentAcademic ContentType = "academic"
	ContentNews     ContentType = "news"
	ContentRef      ContentType = "reference"
	ContentOther    ContentType = "other"
)

// TechnicalLevel classifies how advanced a chunk's content is.
type TechnicalLevel string

const (
	LevelBeginner     TechnicalLevel = "beginner"
	LevelIntermediate TechnicalLevel = "intermediate"
	LevelAdvanced     TechnicalLevel = "advanced"
)

// Sentiment classifies the overall tone of a chunk.
type Sentiment string

const (
	SentimentPositive Sentiment = "positive"
	SentimentNegative Sentiment = "negative"
	SentimentNeutral  Sentiment = "neutral"
	SentimentMixed    Sentiment = "mixed"
)

// KeyEntities groups named entities extracted from a chunk.
type KeyEntities struct {
	People        []string `json:"people"`
	Organizations []string `json:"organizations"`
	Locations     []string `json:"locations"`
}

// Analysis is the structured LLM output for a single chunk.
type Analysis struct {
	Title          string         `json:"title"`
	Summary        string         `json:"summary"`
	Category       string         `json:"category"`
	ContentType    ContentType    `json:"content_type"`
	TechnicalLevel TechnicalLevel `json:"technical_level"`
	Sentiment      Sentiment      `json:"sentiment"`
	Emotions       []string       `json:"emotions"`
	Tags           []string       `json:"tags"`
	KeyConcepts    []string       `json:"key_concepts"`
	MainTopics     []string       `json:"main_topics"`
	KeyEntities    KeyEntities    `json:"key_entities"`
}

// Enrichment is everything attached to a Chunk by the enricher.
type Enrichment struct {
	Analysis                Analysis
	ContextualSummary       string
	Embedding               []float32
	UsesContextualEmbedding bool
}

// SessionStatus mirrors DocumentStatus for the running session shadow,
// with its own terminal states.
type SessionStatus string

const (
	SessionCreated    SessionStatus = "created"
	SessionProcessing SessionStatus = "processing"
	SessionCompleted  SessionStatus = "completed"
	SessionFailed     SessionStatus = "failed"
	SessionCancelled  SessionStatus = "cancelled"
)

// Session is the runtime shadow of a Document being ingested.
type Session struct {
	ID              string
	JobID           string
	DocumentID      string
	Status          SessionStatus
	ProcessedChunks int
	TotalChunks     int
	LastHeartbeat   time.Time
	ErrorReason     string
	Cancelled       bool
}

// JobType distinguishes the two ways a job can be enqueued.
type JobType string

const (
	JobURL  JobType = "url"
	JobFile JobType = "file"
)

// JobStatus is the lifecycle of a queue entry.
type JobStatus string

const (
	JobQueued    JobStatus = "queued"
	JobClaimed   JobStatus = "claimed"
	JobRunning   JobStatus = "running"
	JobSucceeded JobStatus = "succeeded"
	JobFailed    JobStatus = "failed"
	JobCancelled JobStatus = "cancelled"
)

// FilePayload describes an uploaded file job's payload.
type FilePayload struct {
	Filename string `json:"filename"`
	Mime     string `json:"mime"`
	BytesRef string `json:"bytes_ref"`
}

// Job is a durable entry in the background job queue.
type Job struct {
	ID          string
	SessionID   string
	Type        JobType
	URL         string
	File        *FilePayload
	Priority    int
	Status      JobStatus
	Attempt     int
	NextRetryAt time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
	Error       string

	// Options carries the per-request chunking/enrichment overrides
	// validated at the HTTP boundary and merged over process defaults
	// before enqueue (spec.md §9 "Dynamic config merging").
	Options JobOptions
}

// JobOptions are the recognized per-request override keys.
type JobOptions struct {
	ChunkSize                  int    `json:"chunk_size,omitempty"`
	Overlap                    int    `json:"overlap,omitempty"`
	EnableContextualEmbeddings *bool  `json:"enable_contextual_embeddings,omitempty"`
	EnableIntelligent          *bool  `json:"enable_intelligent,omitempty"`
	DocumentType               string `json:"document_type,omitempty"`
}

// ProgressKind enumerates the kinds of progress events the pipeline emits.
type ProgressKind string

const (
	EventQueued        ProgressKind = "queued"
	EventStarted       ProgressKind = "started"
	EventChunkCreated  ProgressKind = "chunk_created"
	EventChunkAnalyzed ProgressKind = "chunk_analyzed"
	EventChunkEmbedded ProgressKind = "chunk_embedded"
	EventChunkStored   ProgressKind = "chunk_stored"
	EventProgress      ProgressKind = "progress"
	EventCompleted     ProgressKind = "completed"
	EventFailed        ProgressKind = "failed"
	EventCancelled     ProgressKind = "cancelled"
	EventHeartbeat     ProgressKind = "heartbeat"
)

// ProgressEvent is an ephemeral, non-persisted notification published by
// the pipeline and fanned out by the progress bus.
type ProgressEvent struct {
	SessionID string
	JobID     string
	Kind      ProgressKind
	Payload   map[string]interface{}
	Timestamp time.Time
}
