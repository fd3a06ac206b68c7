package queue

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/semaj-rag/ingest-pipeline/internal/model"
	"github.com/semaj-rag/ingest-pipeline/internal/session"
)

func newTestQueue(t *testing.T) *Queue {
	t.Helper()
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("DATABASE_URL not set")
	}
	ctx := context.Background()
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("pool: %v", err)
	}
	t.Cleanup(pool.Close)

	q := New(pool, zap.NewNop())
	if err := q.InitSchema(ctx); err != nil {
		t.Fatalf("queue schema: %v", err)
	}
	sreg := session.New(pool, 90*time.Second, zap.NewNop())
	if err := sreg.InitSchema(ctx); err != nil {
		t.Fatalf("session schema: %v", err)
	}
	return q
}

func TestEnqueueClaimComplete(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	jobID, sessionID, err := q.Enqueue(ctx, model.JobURL, "https://example.com/a", nil, model.JobOptions{}, 100)
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if jobID == "" || sessionID == "" {
		t.Fatalf("expected non-empty ids")
	}

	job, err := q.Claim(ctx, "worker-1")
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if job == nil || job.ID != jobID {
		t.Fatalf("expected to claim the enqueued job, got %+v", job)
	}
	if job.URL != "https://example.com/a" {
		t.Fatalf("expected url payload to round-trip, got %q", job.URL)
	}

	// A second claim attempt must not see the same job again.
	again, err := q.Claim(ctx, "worker-2")
	if err != nil {
		t.Fatalf("second claim: %v", err)
	}
	if again != nil {
		t.Fatalf("expected no job available for a second claimant, got %+v", again)
	}

	if err := q.Complete(ctx, jobID); err != nil {
		t.Fatalf("complete: %v", err)
	}
}

func TestFail_RequeuesUntilMaxAttempts(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	jobID, _, err := q.Enqueue(ctx, model.JobURL, "https://example.com/b", nil, model.JobOptions{}, 100)
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	for i := 0; i < MaxAttempts-1; i++ {
		job, err := q.Claim(ctx, "worker")
		if err != nil {
			t.Fatalf("claim %d: %v", i, err)
		}
		if job == nil {
			t.Fatalf("expected job to be reclaimable on attempt %d", i)
		}
		if err := q.Fail(ctx, jobID, errors.New("boom")); err != nil {
			t.Fatalf("fail %d: %v", i, err)
		}
		// Backoff delays the next claim; force it available immediately
		// for the test rather than sleeping for minutes.
		if _, err := q.pool.Exec(ctx, `UPDATE background_jobs SET next_retry_at = now() WHERE id = $1`, jobID); err != nil {
			t.Fatalf("force retry time %d: %v", i, err)
		}
	}

	job, err := q.Claim(ctx, "worker-final")
	if err != nil {
		t.Fatalf("final claim: %v", err)
	}
	if job == nil {
		t.Fatalf("expected job to still be claimable before exhausting attempts")
	}
	if err := q.Fail(ctx, jobID, errors.New("final failure")); err != nil {
		t.Fatalf("final fail: %v", err)
	}

	var status string
	if err := q.pool.QueryRow(ctx, `SELECT status FROM background_jobs WHERE id = $1`, jobID).Scan(&status); err != nil {
		t.Fatalf("read status: %v", err)
	}
	if status != string(model.JobFailed) {
		t.Fatalf("expected job to be permanently failed after exhausting attempts, got %s", status)
	}
}

func TestCancel_OnlyQueuedOrClaimed(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	jobID, _, err := q.Enqueue(ctx, model.JobURL, "https://example.com/c", nil, model.JobOptions{}, 100)
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if err := q.Cancel(ctx, jobID); err != nil {
		t.Fatalf("cancel queued job: %v", err)
	}

	jobID2, _, err := q.Enqueue(ctx, model.JobURL, "https://example.com/d", nil, model.JobOptions{}, 100)
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if _, err := q.Claim(ctx, "worker"); err != nil {
		t.Fatalf("claim: %v", err)
	}
	if err := q.MarkRunning(ctx, jobID2); err != nil {
		t.Fatalf("mark running: %v", err)
	}
	if err := q.Cancel(ctx, jobID2); err == nil {
		t.Fatalf("expected cancel to refuse a running job")
	}
}

func TestBackoff_CapsAtFiveMinutes(t *testing.T) {
	d := Backoff(20)
	if d > 6*time.Minute {
		t.Fatalf("expected backoff to cap near 5 minutes, got %v", d)
	}
}
