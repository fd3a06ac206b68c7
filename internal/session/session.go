// Package session implements the session registry (component C4): the
// durable record of in-flight ingestion, its heartbeat sweep, and the
// cancellation flag observed by the pipeline at its stage boundaries.
package session

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/semaj-rag/ingest-pipeline/internal/apperr"
	"github.com/semaj-rag/ingest-pipeline/internal/model"
)

// Registry is the durable, process-wide source of truth for "what is
// running now" (spec.md §4.4).
type Registry struct {
	pool             *pgxpool.Pool
	heartbeatTimeout time.Duration
	logger           *zap.Logger
}

// New builds a Registry. heartbeatTimeout is T_heartbeat (default 90s).
func New(pool *pgxpool.Pool, heartbeatTimeout time.Duration, logger *zap.Logger) *Registry {
	return &Registry{pool: pool, heartbeatTimeout: heartbeatTimeout, logger: logger}
}

// InitSchema creates the upload_sessions table this registry persists to.
func (r *Registry) InitSchema(ctx context.Context) error {
	const schema = `
CREATE TABLE IF NOT EXISTS upload_sessions (
	session_id UUID PRIMARY KEY,
	job_id UUID,
	document_id UUID,
	status TEXT NOT NULL,
	processed_chunks INTEGER NOT NULL DEFAULT 0,
	total_chunks INTEGER NOT NULL DEFAULT 0,
	error_reason TEXT,
	cancelled BOOLEAN NOT NULL DEFAULT FALSE,
	last_heartbeat TIMESTAMPTZ NOT NULL DEFAULT now(),
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_upload_sessions_status ON upload_sessions(status);
`
	if _, err := r.pool.Exec(ctx, schema); err != nil {
		return apperr.Wrap(apperr.FatalDatabase, "initialize session schema", err)
	}
	return nil
}

// Create inserts a new session row. The job path does not call it:
// queue.Enqueue inserts the session row in the same transaction as the
// job, so a session exists from enqueue onward rather than from claim.
func (r *Registry) Create(ctx context.Context, sessionID, jobID string) error {
	const q = `
INSERT INTO upload_sessions (session_id, job_id, status, last_heartbeat)
VALUES ($1, $2, $3, now())
`
	_, err := r.pool.Exec(ctx, q, sessionID, jobID, model.SessionCreated)
	if err != nil {
		return apperr.Wrap(apperr.TransientDatabase, "create session", err)
	}
	return nil
}

// AttachDocument records the document id once the pipeline has created
// the document record and transitions the session to processing.
func (r *Registry) AttachDocument(ctx context.Context, sessionID, documentID string, totalChunks int) error {
	const q = `
UPDATE upload_sessions
SET document_id = $2, status = $3, total_chunks = $4, last_heartbeat = now(), updated_at = now()
WHERE session_id = $1
`
	_, err := r.pool.Exec(ctx, q, sessionID, documentID, model.SessionProcessing, totalChunks)
	if err != nil {
		return apperr.Wrap(apperr.TransientDatabase, "attach document to session", err)
	}
	return nil
}

// Heartbeat refreshes last_heartbeat and the processed-chunk count,
// called by the pipeline orchestrator as chunks are processed; the
// worker's periodic heartbeat refreshes last_heartbeat through
// queue.Heartbeat instead (spec.md §4.4, §4.6).
func (r *Registry) Heartbeat(ctx context.Context, sessionID string, processedChunks int) error {
	const q = `
UPDATE upload_sessions
SET processed_chunks = $2, last_heartbeat = now(), updated_at = now()
WHERE session_id = $1
`
	_, err := r.pool.Exec(ctx, q, sessionID, processedChunks)
	if err != nil {
		return apperr.Wrap(apperr.TransientDatabase, "heartbeat session", err)
	}
	return nil
}

// Finish transitions a session to a terminal status, optionally with an
// error reason.
func (r *Registry) Finish(ctx context.Context, sessionID string, status model.SessionStatus, errorReason string) error {
	const q = `
UPDATE upload_sessions
SET status = $2, error_reason = $3, updated_at = now()
WHERE session_id = $1
`
	_, err := r.pool.Exec(ctx, q, sessionID, status, errorReason)
	if err != nil {
		return apperr.Wrap(apperr.TransientDatabase, "finish session", err)
	}
	return nil
}

// RequestCancel sets the cancelled flag; the pipeline observes it at its
// next stage boundary (spec.md §4.4, §4.7 "Cancellation checkpoints").
func (r *Registry) RequestCancel(ctx context.Context, sessionID string) error {
	const q = `UPDATE upload_sessions SET cancelled = TRUE, updated_at = now() WHERE session_id = $1`
	tag, err := r.pool.Exec(ctx, q, sessionID)
	if err != nil {
		return apperr.Wrap(apperr.TransientDatabase, "request session cancel", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.New(apperr.NotFound, "session not found")
	}
	return nil
}

// IsCancelled reports the current cancelled flag for sessionID.
func (r *Registry) IsCancelled(ctx context.Context, sessionID string) (bool, error) {
	const q = `SELECT cancelled FROM upload_sessions WHERE session_id = $1`
	var cancelled bool
	err := r.pool.QueryRow(ctx, q, sessionID).Scan(&cancelled)
	if err == pgx.ErrNoRows {
		return false, apperr.New(apperr.NotFound, "session not found")
	}
	if err != nil {
		return false, apperr.Wrap(apperr.TransientDatabase, "read session cancel flag", err)
	}
	return cancelled, nil
}

// Get returns the current snapshot of a session.
func (r *Registry) Get(ctx context.Context, sessionID string) (*model.Session, error) {
	const q = `
SELECT session_id, job_id, COALESCE(document_id::text, ''), status, processed_chunks,
       total_chunks, last_heartbeat, COALESCE(error_reason, ''), cancelled
FROM upload_sessions WHERE session_id = $1
`
	var s model.Session
	err := r.pool.QueryRow(ctx, q, sessionID).Scan(
		&s.ID, &s.JobID, &s.DocumentID, &s.Status, &s.ProcessedChunks,
		&s.TotalChunks, &s.LastHeartbeat, &s.ErrorReason, &s.Cancelled,
	)
	if err == pgx.ErrNoRows {
		return nil, apperr.New(apperr.NotFound, "session not found")
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.TransientDatabase, "get session", err)
	}
	return &s, nil
}

// ListActive returns every session currently in `processing`, the data
// backing the `/in-progress` HTTP endpoint (spec.md §6).
func (r *Registry) ListActive(ctx context.Context) ([]model.Session, error) {
	const q = `
SELECT session_id, job_id, COALESCE(document_id::text, ''), status, processed_chunks,
       total_chunks, last_heartbeat, COALESCE(error_reason, ''), cancelled
FROM upload_sessions WHERE status = $1
ORDER BY last_heartbeat DESC
`
	rows, err := r.pool.Query(ctx, q, model.SessionProcessing)
	if err != nil {
		return nil, apperr.Wrap(apperr.TransientDatabase, "list active sessions", err)
	}
	defer rows.Close()

	var sessions []model.Session
	for rows.Next() {
		var s model.Session
		if err := rows.Scan(
			&s.ID, &s.JobID, &s.DocumentID, &s.Status, &s.ProcessedChunks,
			&s.TotalChunks, &s.LastHeartbeat, &s.ErrorReason, &s.Cancelled,
		); err != nil {
			return nil, apperr.Wrap(apperr.TransientDatabase, "scan active session", err)
		}
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}

// Sweep reaps sessions stuck in `processing` whose heartbeat has gone
// stale, transitioning them to `failed` with reason `heartbeat_timeout`
// (spec.md §4.4). `ingestd worker` runs it once at startup; no
// periodic pass runs it afterwards.
func (r *Registry) Sweep(ctx context.Context) (int, error) {
	const q = `
UPDATE upload_sessions
SET status = $1, error_reason = 'heartbeat_timeout', updated_at = now()
WHERE status = $2 AND last_heartbeat < now() - make_interval(secs => $3)
`
	tag, err := r.pool.Exec(ctx, q, model.SessionFailed, model.SessionProcessing, r.heartbeatTimeout.Seconds())
	if err != nil {
		return 0, apperr.Wrap(apperr.FatalDatabase, "sweep stale sessions", err)
	}
	reaped := int(tag.RowsAffected())
	if reaped > 0 {
		r.logger.Warn("reaped stale sessions", zap.Int("count", reaped))
	}
	return reaped, nil
}
