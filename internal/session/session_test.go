package session

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/semaj-rag/ingest-pipeline/internal/model"
)

func newTestRegistry(t *testing.T) *Registry {
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

	r := New(pool, 90*time.Second, zap.NewNop())
	if err := r.InitSchema(ctx); err != nil {
		t.Fatalf("schema: %v", err)
	}
	return r
}

func TestCreateAttachHeartbeatFinish(t *testing.T) {
	r := newTestRegistry(t)
	ctx := context.Background()

	sessionID := uuid.NewString()
	jobID := uuid.NewString()
	documentID := uuid.NewString()

	if err := r.Create(ctx, sessionID, jobID); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := r.AttachDocument(ctx, sessionID, documentID, 5); err != nil {
		t.Fatalf("attach: %v", err)
	}
	if err := r.Heartbeat(ctx, sessionID, 2); err != nil {
		t.Fatalf("heartbeat: %v", err)
	}

	got, err := r.Get(ctx, sessionID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != model.SessionProcessing || got.ProcessedChunks != 2 || got.TotalChunks != 5 {
		t.Fatalf("unexpected session state: %+v", got)
	}

	if err := r.Finish(ctx, sessionID, model.SessionCompleted, ""); err != nil {
		t.Fatalf("finish: %v", err)
	}
	got, err = r.Get(ctx, sessionID)
	if err != nil {
		t.Fatalf("get after finish: %v", err)
	}
	if got.Status != model.SessionCompleted {
		t.Fatalf("expected completed, got %s", got.Status)
	}
}

func TestRequestCancelAndIsCancelled(t *testing.T) {
	r := newTestRegistry(t)
	ctx := context.Background()

	sessionID := uuid.NewString()
	if err := r.Create(ctx, sessionID, uuid.NewString()); err != nil {
		t.Fatalf("create: %v", err)
	}

	cancelled, err := r.IsCancelled(ctx, sessionID)
	if err != nil || cancelled {
		t.Fatalf("expected not cancelled initially: %v %v", cancelled, err)
	}

	if err := r.RequestCancel(ctx, sessionID); err != nil {
		t.Fatalf("request cancel: %v", err)
	}
	cancelled, err = r.IsCancelled(ctx, sessionID)
	if err != nil || !cancelled {
		t.Fatalf("expected cancelled after request: %v %v", cancelled, err)
	}
}

func TestRequestCancel_NotFound(t *testing.T) {
	r := newTestRegistry(t)
	ctx := context.Background()
	if err := r.RequestCancel(ctx, uuid.NewString()); err == nil {
		t.Fatalf("expected not-found error for unknown session")
	}
}

func TestSweep_ReapsStaleProcessingSessions(t *testing.T) {
	r := newTestRegistry(t)
	ctx := context.Background()

	sessionID := uuid.NewString()
	if err := r.Create(ctx, sessionID, uuid.NewString()); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := r.AttachDocument(ctx, sessionID, uuid.NewString(), 1); err != nil {
		t.Fatalf("attach: %v", err)
	}
	// Force the heartbeat into the past so the sweep picks it up.
	if _, err := r.pool.Exec(ctx, `UPDATE upload_sessions SET last_heartbeat = now() - interval '5 minutes' WHERE session_id = $1`, sessionID); err != nil {
		t.Fatalf("backdate heartbeat: %v", err)
	}

	reaped, err := r.Sweep(ctx)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if reaped < 1 {
		t.Fatalf("expected at least one reaped session, got %d", reaped)
	}

	got, err := r.Get(ctx, sessionID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != model.SessionFailed || got.ErrorReason != "heartbeat_timeout" {
		t.Fatalf("expected failed/heartbeat_timeout, got %+v", got)
	}
}
