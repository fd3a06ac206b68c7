// Package pipeline implements the orchestrator (component C7): the
// per-job procedure that wires the chunker, enricher, and triple-store
// fan-out together, publishing progress events and observing
// cancellation at every stage boundary.
package pipeline

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/semaj-rag/ingest-pipeline/internal/apperr"
	"github.com/semaj-rag/ingest-pipeline/internal/chunker"
	"github.com/semaj-rag/ingest-pipeline/internal/model"
	"github.com/semaj-rag/ingest-pipeline/internal/store"
)

// Fetcher is the out-of-scope boundary collaborator that turns a job's
// URL or uploaded file into cleaned text plus a display title (spec.md
// §1 "Out of scope": file-format extraction).
type Fetcher interface {
	Fetch(ctx context.Context, job *model.Job) (text, title string, err error)
}

// Enricher is the subset of *enricher.Enricher the orchestrator drives.
type Enricher interface {
	EnrichDocument(ctx context.Context, documentID, documentPreview string, chunks []model.Chunk, onChunk func(model.Chunk)) error
}

// Store is the subset of *store.Fanout the orchestrator writes through.
type Store interface {
	UpsertDocument(ctx context.Context, doc model.Document) error
	UpsertChunk(ctx context.Context, doc model.Document, chunk model.Chunk) store.FanoutResult
	DeleteDocument(ctx context.Context, documentID string) error
}

// SessionRegistry is the subset of *session.Registry the orchestrator needs.
type SessionRegistry interface {
	AttachDocument(ctx context.Context, sessionID, documentID string, totalChunks int) error
	Heartbeat(ctx context.Context, sessionID string, processedChunks int) error
	Finish(ctx context.Context, sessionID string, status model.SessionStatus, errorReason string) error
	IsCancelled(ctx context.Context, sessionID string) (bool, error)
}

// Publisher is the subset of *progress.Bus the orchestrator needs.
type Publisher interface {
	Publish(event model.ProgressEvent)
}

// Config tunes retry/timeout/progress-throttling behavior.
type Config struct {
	ChunkParallelism      int
	ChunkRetryAttempts    int
	ChunkRetryBaseDelay   time.Duration
	ProgressThrottle      time.Duration
	ProgressChunkInterval int
	MaxFailureRatio       float64
	MinJobTimeout         time.Duration
	PerChunkTimeoutFactor time.Duration
}

// DefaultConfig matches the constants named in spec.md §4.7, §5.
func DefaultConfig() Config {
	return Config{
		ChunkParallelism:      3,
		ChunkRetryAttempts:    2,
		ChunkRetryBaseDelay:   100 * time.Millisecond,
		ProgressThrottle:      250 * time.Millisecond,
		ProgressChunkInterval: 5,
		MaxFailureRatio:       0.10,
		MinJobTimeout:         5 * time.Minute,
		PerChunkTimeoutFactor: 2 * time.Second,
	}
}

// Orchestrator drives one job through fetch -> chunk -> enrich -> store.
type Orchestrator struct {
	fetcher  Fetcher
	enricher Enricher
	store    Store
	sessions SessionRegistry
	bus      Publisher
	cfg      Config
	logger   *zap.Logger
}

// New builds an Orchestrator.
func New(fetcher Fetcher, enricher Enricher, store Store, sessions SessionRegistry, bus Publisher, cfg Config, logger *zap.Logger) *Orchestrator {
	return &Orchestrator{fetcher: fetcher, enricher: enricher, store: store, sessions: sessions, bus: bus, cfg: cfg, logger: logger}
}

// Run executes the full per-job procedure of spec.md §4.7. The returned
// error, if non-nil, is document-fatal and causes the caller (the worker
// pool) to invoke the queue's retry/fail path; a cancelled run returns
// nil, since Cancelled is its own terminal state (spec.md §7).
func (o *Orchestrator) Run(ctx context.Context, job *model.Job) error {
	documentID := uuid.NewString()
	doc := model.Document{
		ID:         documentID,
		URL:        job.URL,
		SourceType: model.SourceURL,
		Status:     model.DocumentFetching,
		CreatedAt:  timeNow(),
	}
	if job.File != nil {
		doc.SourceType = model.SourceFile
		doc.Title = job.File.Filename
	}

	softTimeout := o.cfg.MinJobTimeout
	jobCtx, cancel := context.WithTimeout(ctx, softTimeout)
	defer cancel()

	o.publish(job, model.EventStarted, nil)

	if o.checkCancelled(jobCtx, job, &doc) {
		return nil
	}

	// Step 1: create the document record.
	if err := o.store.UpsertDocument(jobCtx, doc); err != nil {
		return o.fail(jobCtx, job, &doc, "document_create_failed", err)
	}

	if o.checkCancelled(jobCtx, job, &doc) {
		return nil
	}

	// Step 2: fetch/extract.
	text, title, err := o.fetcher.Fetch(jobCtx, job)
	if err != nil {
		return o.fail(jobCtx, job, &doc, "fetch_failed", err)
	}
	if title != "" {
		doc.Title = title
	}

	if o.checkCancelled(jobCtx, job, &doc) {
		return nil
	}

	// Step 3: chunk.
	doc.Status = model.DocumentChunking
	_ = o.store.UpsertDocument(jobCtx, doc)

	chunkOpts := chunker.Options{
		ChunkSize:         job.Options.ChunkSize,
		Overlap:           job.Options.Overlap,
		EnableAdaptive:    true,
		EnableIntelligent: boolOr(job.Options.EnableIntelligent, true),
		DocumentType:      chunker.DocumentType(job.Options.DocumentType),
	}
	result, err := chunker.Chunk(text, documentID, chunkOpts)
	if err != nil {
		return o.fail(jobCtx, job, &doc, "chunking_failed", err)
	}
	if len(result.Chunks) == 0 {
		return o.fail(jobCtx, job, &doc, "no_content", apperr.New(apperr.InvalidInput, "chunker produced zero chunks"))
	}
	for i := range result.Chunks {
		result.Chunks[i].DocumentID = documentID
	}

	doc.TotalChunks = len(result.Chunks)
	if err := o.sessions.AttachDocument(jobCtx, job.SessionID, documentID, doc.TotalChunks); err != nil {
		o.logger.Warn("attach document to session failed", zap.Error(err))
	}
	o.publish(job, model.EventChunkCreated, map[string]interface{}{"total_chunks": doc.TotalChunks})

	// Recompute a per-job timeout now that total_chunks is known.
	fullTimeout := o.cfg.MinJobTimeout
	if scaled := o.cfg.PerChunkTimeoutFactor * time.Duration(doc.TotalChunks); scaled > fullTimeout {
		fullTimeout = scaled
	}
	jobCtx2, cancel2 := context.WithTimeout(ctx, fullTimeout)
	defer cancel2()
	jobCtx = jobCtx2

	if o.checkCancelled(jobCtx, job, &doc) {
		return nil
	}

	// Step 4: enrich and store.
	doc.Status = model.DocumentEnriching
	_ = o.store.UpsertDocument(jobCtx, doc)

	documentPreview := previewOf(text, 8000)
	processed := 0
	failures := 0
	lastProgress := timeNow()

	onChunk := func(chunk model.Chunk) {
		o.publish(job, model.EventChunkAnalyzed, map[string]interface{}{"chunk_index": chunk.Index})
		o.publish(job, model.EventChunkEmbedded, map[string]interface{}{"chunk_index": chunk.Index})

		storeErr := o.upsertChunkWithRetry(jobCtx, doc, chunk)
		if storeErr != nil {
			chunk.Status = model.ChunkFailed
			failures++
		} else {
			chunk.Status = model.ChunkStored
		}
		o.publish(job, model.EventChunkStored, map[string]interface{}{"chunk_index": chunk.Index, "failed": storeErr != nil})

		processed++
		if processed%o.cfg.ProgressChunkInterval == 0 || timeNow().Sub(lastProgress) >= o.cfg.ProgressThrottle {
			_ = o.sessions.Heartbeat(jobCtx, job.SessionID, processed)
			o.publish(job, model.EventProgress, map[string]interface{}{"processed_chunks": processed, "total_chunks": doc.TotalChunks})
			lastProgress = timeNow()
		}
	}

	if err := o.enricher.EnrichDocument(jobCtx, documentID, documentPreview, result.Chunks, onChunk); err != nil {
		if apperr.KindOf(err) != apperr.Cancelled {
			o.logger.Warn("enrichment run ended with error", zap.Error(err))
		}
	}

	if o.checkCancelled(jobCtx, job, &doc) {
		return nil
	}

	// Step 5: finalize.
	ratio := 0.0
	if doc.TotalChunks > 0 {
		ratio = float64(failures) / float64(doc.TotalChunks)
	}
	if ratio <= o.cfg.MaxFailureRatio && processed > failures {
		doc.Status = model.DocumentCompleted
		now := timeNow()
		doc.CompletedAt = &now
		_ = o.store.UpsertDocument(jobCtx, doc)
		_ = o.sessions.Finish(jobCtx, job.SessionID, model.SessionCompleted, "")
		o.publish(job, model.EventCompleted, map[string]interface{}{"processed_chunks": processed, "failed_chunks": failures})
		return nil
	}

	doc.Status = model.DocumentFailed
	_ = o.store.UpsertDocument(jobCtx, doc)
	_ = o.sessions.Finish(jobCtx, job.SessionID, model.SessionFailed, "enrichment_failures")
	o.publish(job, model.EventFailed, map[string]interface{}{"reason": "enrichment_failures", "failed_chunks": failures})
	return apperr.New(apperr.UpstreamUnavailable, "enrichment failure ratio exceeded budget")
}

// upsertChunkWithRetry repeats the whole fan-out write up to
// cfg.ChunkRetryAttempts more times while its relational leg fails
// (spec.md §4.7 step 4), waiting cfg.ChunkRetryBaseDelay before the
// first retry and four times the previous wait before each later one
// (100ms, then 400ms, by default). Each retry re-sends the vector and
// lexical writes as well; a vector or lexical failure alone never causes
// a retry.
func (o *Orchestrator) upsertChunkWithRetry(ctx context.Context, doc model.Document, chunk model.Chunk) error {
	delay := o.cfg.ChunkRetryBaseDelay
	for attempt := 0; ; attempt++ {
		err := o.store.UpsertChunk(ctx, doc, chunk).RelationalErr
		if err == nil || attempt >= o.cfg.ChunkRetryAttempts {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 4
	}
}

// checkCancelled observes the session's cancelled_flag at the current
// stage boundary (spec.md §4.7 "Cancellation checkpoints"). When set, it
// marks the document and session cancelled, publishes the terminal
// event, and returns true so the caller can stop.
func (o *Orchestrator) checkCancelled(ctx context.Context, job *model.Job, doc *model.Document) bool {
	cancelled, err := o.sessions.IsCancelled(ctx, job.SessionID)
	if err != nil || !cancelled {
		return false
	}
	doc.Status = model.DocumentCancelled
	_ = o.store.UpsertDocument(ctx, *doc)
	_ = o.sessions.Finish(ctx, job.SessionID, model.SessionCancelled, "")
	o.publish(job, model.EventCancelled, nil)
	return true
}

func (o *Orchestrator) fail(ctx context.Context, job *model.Job, doc *model.Document, reason string, cause error) error {
	doc.Status = model.DocumentFailed
	_ = o.store.UpsertDocument(ctx, *doc)
	_ = o.sessions.Finish(ctx, job.SessionID, model.SessionFailed, reason)
	o.publish(job, model.EventFailed, map[string]interface{}{"reason": reason})
	o.logger.Warn("document failed", zap.String("document_id", doc.ID), zap.String("reason", reason), zap.Error(cause))
	return apperr.Wrap(apperr.FatalDatabase, reason, cause)
}

func (o *Orchestrator) publish(job *model.Job, kind model.ProgressKind, payload map[string]interface{}) {
	o.bus.Publish(model.ProgressEvent{
		SessionID: job.SessionID,
		JobID:     job.ID,
		Kind:      kind,
		Payload:   payload,
		Timestamp: timeNow(),
	})
}

func previewOf(text string, limit int) string {
	if len(text) <= limit {
		return text
	}
	return text[:limit]
}

func boolOr(v *bool, def bool) bool {
	if v == nil {
		return def
	}
	return *v
}

// timeNow is a seam so orchestrator logic always goes through one call
// site, even though the module never needs to fake time in production.
func timeNow() time.Time { return time.Now() }
