// Package queue implements the durable job queue (component C5): a
// single-table FIFO+priority queue with claim/retry/cancel, backed by
// Postgres row-locking with SKIP LOCKED so multiple workers can claim
// concurrently without contention.
package queue

import (
	"context"
	"encoding/json"
	"math"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/semaj-rag/ingest-pipeline/internal/apperr"
	"github.com/semaj-rag/ingest-pipeline/internal/model"
)

// MaxAttempts is the default retry budget (spec.md §4.5, §9 Open
// Questions: fixed at 3, not the source's other fallback values).
const MaxAttempts = 3

// Queue is the Postgres-backed durable job queue.
type Queue struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// New builds a Queue over an existing pool.
func New(pool *pgxpool.Pool, logger *zap.Logger) *Queue {
	return &Queue{pool: pool, logger: logger}
}

// InitSchema creates the background_jobs table.
func (q *Queue) InitSchema(ctx context.Context) error {
	const schema = `
CREATE TABLE IF NOT EXISTS background_jobs (
	id UUID PRIMARY KEY,
	session_id UUID NOT NULL,
	type TEXT NOT NULL,
	payload JSONB NOT NULL,
	status TEXT NOT NULL,
	priority INTEGER NOT NULL DEFAULT 100,
	attempts INTEGER NOT NULL DEFAULT 0,
	next_retry_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	error TEXT,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	completed_at TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS idx_background_jobs_claim ON background_jobs(status, priority, created_at);
`
	if _, err := q.pool.Exec(ctx, schema); err != nil {
		return apperr.Wrap(apperr.FatalDatabase, "initialize queue schema", err)
	}
	return nil
}

// jobPayload is the single JSON shape stored in the payload column,
// carrying both the source reference (url xor file) and the per-request
// overrides merged at the HTTP boundary (spec.md §9).
type jobPayload struct {
	URL  string             `json:"url,omitempty"`
	File *model.FilePayload `json:"file,omitempty"`
	model.JobOptions
}

// Enqueue creates both the job and session rows atomically (spec.md §4.5
// "enqueue(type, payload, priority) -> {job_id, session_id}").
func (q *Queue) Enqueue(ctx context.Context, jobType model.JobType, url string, file *model.FilePayload, opts model.JobOptions, priority int) (jobID, sessionID string, err error) {
	if jobType != model.JobURL && jobType != model.JobFile {
		return "", "", apperr.New(apperr.InvalidInput, "unknown job type")
	}
	payload := jobPayload{URL: url, File: file, JobOptions: opts}
	raw, err := json.Marshal(payload)
	if err != nil {
		return "", "", apperr.Wrap(apperr.InvalidInput, "marshal job payload", err)
	}

	jobID = uuid.NewString()
	sessionID = uuid.NewString()

	tx, err := q.pool.Begin(ctx)
	if err != nil {
		return "", "", apperr.Wrap(apperr.TransientDatabase, "begin enqueue tx", err)
	}
	defer tx.Rollback(ctx)

	const insertJob = `
INSERT INTO background_jobs (id, session_id, type, payload, status, priority)
VALUES ($1, $2, $3, $4, $5, $6)
`
	if _, err := tx.Exec(ctx, insertJob, jobID, sessionID, string(jobType), raw, model.JobQueued, priority); err != nil {
		return "", "", apperr.Wrap(apperr.TransientDatabase, "insert job", err)
	}

	const insertSession = `
INSERT INTO upload_sessions (session_id, job_id, status, last_heartbeat)
VALUES ($1, $2, $3, now())
`
	if _, err := tx.Exec(ctx, insertSession, sessionID, jobID, model.SessionCreated); err != nil {
		return "", "", apperr.Wrap(apperr.TransientDatabase, "insert session", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return "", "", apperr.Wrap(apperr.TransientDatabase, "commit enqueue tx", err)
	}
	return jobID, sessionID, nil
}

// Claim atomically selects and marks the next eligible job `claimed`,
// using SELECT ... FOR UPDATE SKIP LOCKED so concurrent workers never
// contend on the same row (spec.md §4.5).
func (q *Queue) Claim(ctx context.Context, workerID string) (*model.Job, error) {
	tx, err := q.pool.Begin(ctx)
	if err != nil {
		return nil, apperr.Wrap(apperr.TransientDatabase, "begin claim tx", err)
	}
	defer tx.Rollback(ctx)

	const selectNext = `
SELECT id, session_id, type, payload, priority, status, attempts, next_retry_at, created_at, updated_at, COALESCE(error, '')
FROM background_jobs
WHERE status = $1 AND next_retry_at <= now()
ORDER BY priority ASC, created_at ASC
FOR UPDATE SKIP LOCKED
LIMIT 1
`
	var job model.Job
	var payload []byte
	err = tx.QueryRow(ctx, selectNext, model.JobQueued).Scan(
		&job.ID, &job.SessionID, &job.Type, &payload, &job.Priority, &job.Status,
		&job.Attempt, &job.NextRetryAt, &job.CreatedAt, &job.UpdatedAt, &job.Error,
	)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.TransientDatabase, "select next job", err)
	}

	if err := decodePayload(job.Type, payload, &job); err != nil {
		return nil, err
	}

	const markClaimed = `UPDATE background_jobs SET status = $2, updated_at = now() WHERE id = $1`
	if _, err := tx.Exec(ctx, markClaimed, job.ID, model.JobClaimed); err != nil {
		return nil, apperr.Wrap(apperr.TransientDatabase, "mark job claimed", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, apperr.Wrap(apperr.TransientDatabase, "commit claim tx", err)
	}

	job.Status = model.JobClaimed
	q.logger.Debug("claimed job", zap.String("job_id", job.ID), zap.String("worker_id", workerID))
	return &job, nil
}

func decodePayload(jobType model.JobType, raw []byte, job *model.Job) error {
	var p jobPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return apperr.Wrap(apperr.FatalDatabase, "decode job payload", err)
	}
	job.URL = p.URL
	job.File = p.File
	job.Options = p.JobOptions
	return nil
}

// MarkRunning transitions a claimed job to running, once the orchestrator
// has started work.
func (q *Queue) MarkRunning(ctx context.Context, jobID string) error {
	const query = `UPDATE background_jobs SET status = $2, updated_at = now() WHERE id = $1`
	_, err := q.pool.Exec(ctx, query, jobID, model.JobRunning)
	if err != nil {
		return apperr.Wrap(apperr.TransientDatabase, "mark job running", err)
	}
	return nil
}

// Heartbeat lets the worker touch both the job row (updated_at) and its
// session row (last_heartbeat) from one call site.
func (q *Queue) Heartbeat(ctx context.Context, jobID string) error {
	const query = `UPDATE background_jobs SET updated_at = now() WHERE id = $1`
	_, err := q.pool.Exec(ctx, query, jobID)
	if err != nil {
		return apperr.Wrap(apperr.TransientDatabase, "heartbeat job", err)
	}
	const touchSession = `
UPDATE upload_sessions SET last_heartbeat = now(), updated_at = now()
WHERE session_id = (SELECT session_id FROM background_jobs WHERE id = $1)
`
	if _, err := q.pool.Exec(ctx, touchSession, jobID); err != nil {
		return apperr.Wrap(apperr.TransientDatabase, "heartbeat session", err)
	}
	return nil
}

// Complete marks a job succeeded.
func (q *Queue) Complete(ctx context.Context, jobID string) error {
	const query = `UPDATE background_jobs SET status = $2, completed_at = now(), updated_at = now() WHERE id = $1`
	_, err := q.pool.Exec(ctx, query, jobID, model.JobSucceeded)
	if err != nil {
		return apperr.Wrap(apperr.TransientDatabase, "complete job", err)
	}
	return nil
}

// Fail records a job failure, requeuing with backoff if attempts remain,
// else marking it permanently failed (spec.md §4.5).
func (q *Queue) Fail(ctx context.Context, jobID string, cause error) error {
	const selectAttempts = `SELECT attempts FROM background_jobs WHERE id = $1`
	var attempts int
	if err := q.pool.QueryRow(ctx, selectAttempts, jobID).Scan(&attempts); err != nil {
		return apperr.Wrap(apperr.TransientDatabase, "read job attempts", err)
	}

	errMsg := ""
	if cause != nil {
		errMsg = cause.Error()
	}

	if attempts+1 < MaxAttempts {
		next := attempts + 1
		delay := Backoff(next)
		const requeue = `
UPDATE background_jobs
SET status = $2, attempts = $3, next_retry_at = now() + make_interval(secs => $4), error = $5, updated_at = now()
WHERE id = $1
`
		_, err := q.pool.Exec(ctx, requeue, jobID, model.JobQueued, next, delay.Seconds(), errMsg)
		if err != nil {
			return apperr.Wrap(apperr.TransientDatabase, "requeue job", err)
		}
		return nil
	}

	const fail = `UPDATE background_jobs SET status = $2, attempts = $3, error = $4, updated_at = now() WHERE id = $1`
	_, err := q.pool.Exec(ctx, fail, jobID, model.JobFailed, attempts+1, errMsg)
	if err != nil {
		return apperr.Wrap(apperr.TransientDatabase, "mark job failed", err)
	}
	return nil
}

// Get returns the current snapshot of one job, the data backing the
// `GET /job-status/:job_id` HTTP endpoint (spec.md §6).
func (q *Queue) Get(ctx context.Context, jobID string) (*model.Job, error) {
	const selectOne = `
SELECT id, session_id, type, payload, priority, status, attempts, next_retry_at, created_at, updated_at, COALESCE(error, '')
FROM background_jobs WHERE id = $1
`
	var job model.Job
	var payload []byte
	err := q.pool.QueryRow(ctx, selectOne, jobID).Scan(
		&job.ID, &job.SessionID, &job.Type, &payload, &job.Priority, &job.Status,
		&job.Attempt, &job.NextRetryAt, &job.CreatedAt, &job.UpdatedAt, &job.Error,
	)
	if err == pgx.ErrNoRows {
		return nil, apperr.New(apperr.NotFound, "job not found")
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.TransientDatabase, "get job", err)
	}
	if err := decodePayload(job.Type, payload, &job); err != nil {
		return nil, err
	}
	return &job, nil
}

// ListActive returns every job currently queued, claimed, or running, the
// jobs half of the `GET /in-progress` HTTP endpoint (spec.md §6).
func (q *Queue) ListActive(ctx context.Context) ([]model.Job, error) {
	const selectActive = `
SELECT id, session_id, type, payload, priority, status, attempts, next_retry_at, created_at, updated_at, COALESCE(error, '')
FROM background_jobs WHERE status IN ($1, $2, $3)
ORDER BY priority ASC, created_at ASC
`
	rows, err := q.pool.Query(ctx, selectActive, model.JobQueued, model.JobClaimed, model.JobRunning)
	if err != nil {
		return nil, apperr.Wrap(apperr.TransientDatabase, "list active jobs", err)
	}
	defer rows.Close()

	var jobs []model.Job
	for rows.Next() {
		var job model.Job
		var payload []byte
		if err := rows.Scan(
			&job.ID, &job.SessionID, &job.Type, &payload, &job.Priority, &job.Status,
			&job.Attempt, &job.NextRetryAt, &job.CreatedAt, &job.UpdatedAt, &job.Error,
		); err != nil {
			return nil, apperr.Wrap(apperr.TransientDatabase, "scan active job", err)
		}
		if err := decodePayload(job.Type, payload, &job); err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// Cancel marks a queued or claimed job cancelled outright; a running job
// is left to the session's cancelled_flag, observed by the pipeline at
// its next checkpoint (spec.md §4.5).
func (q *Queue) Cancel(ctx context.Context, jobID string) error {
	const query = `
UPDATE background_jobs SET status = $2, updated_at = now()
WHERE id = $1 AND status IN ($3, $4)
`
	tag, err := q.pool.Exec(ctx, query, jobID, model.JobCancelled, model.JobQueued, model.JobClaimed)
	if err != nil {
		return apperr.Wrap(apperr.TransientDatabase, "cancel job", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.New(apperr.NotFound, "job not cancellable: not queued or claimed")
	}
	return nil
}

// SweepStale requeues jobs stuck in claimed|running whose session
// heartbeat has gone stale, the crash-recovery pass `ingestd worker` runs
// at process start (spec.md §5 "Crash recovery").
func (q *Queue) SweepStale(ctx context.Context, heartbeatTimeout time.Duration) (int, error) {
	const query = `
UPDATE background_jobs j
SET status = CASE WHEN j.attempts < $3 THEN $1 ELSE $2 END,
    attempts = j.attempts + 1,
    updated_at = now()
FROM upload_sessions s
WHERE j.session_id = s.session_id
  AND j.status IN ($4, $5)
  AND s.last_heartbeat < now() - make_interval(secs => $6)
`
	tag, err := q.pool.Exec(ctx, query,
		model.JobQueued, model.JobFailed, MaxAttempts,
		model.JobClaimed, model.JobRunning, heartbeatTimeout.Seconds(),
	)
	if err != nil {
		return 0, apperr.Wrap(apperr.FatalDatabase, "sweep stale jobs", err)
	}
	return int(tag.RowsAffected()), nil
}

// Backoff implements spec.md §4.5's retry delay: min(5min, 1s*2^k) plus
// up to 20% jitter.
func Backoff(attempt int) time.Duration {
	base := time.Second * time.Duration(math.Pow(2, float64(attempt)))
	if base > 5*time.Minute {
		base = 5 * time.Minute
	}
	jitter := time.Duration(rand.Int63n(int64(base) / 5))
	return base + jitter
}
