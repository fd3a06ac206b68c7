package worker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/semaj-rag/ingest-pipeline/internal/model"
)

type fakeQueue struct {
	mu        sync.Mutex
	jobs      []*model.Job
	completed []string
	failed    []string
}

func (f *fakeQueue) Claim(ctx context.Context, workerID string) (*model.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.jobs) == 0 {
		return nil, nil
	}
	job := f.jobs[0]
	f.jobs = f.jobs[1:]
	return job, nil
}

func (f *fakeQueue) MarkRunning(ctx context.Context, jobID string) error { return nil }
func (f *fakeQueue) Heartbeat(ctx context.Context, jobID string) error  { return nil }

func (f *fakeQueue) Complete(ctx context.Context, jobID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.completed = append(f.completed, jobID)
	return nil
}

func (f *fakeQueue) Fail(ctx context.Context, jobID string, cause error) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failed = append(f.failed, jobID)
	return nil
}

type fakeOrchestrator struct {
	ran     int32
	failID  string
	panicID string
}

func (f *fakeOrchestrator) Run(ctx context.Context, job *model.Job) error {
	atomic.AddInt32(&f.ran, 1)
	if job.ID == f.failID {
		return errors.New("boom")
	}
	if job.ID == f.panicID {
		panic("unexpected")
	}
	return nil
}

func TestPool_CompletesSuccessfulJob(t *testing.T) {
	fq := &fakeQueue{jobs: []*model.Job{{ID: "job-1"}}}
	fo := &fakeOrchestrator{}
	p := New(fq, fo, Config{WorkerCount: 1, PollInterval: 5 * time.Millisecond, HeartbeatInterval: time.Hour}, zap.NewNop())

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	p.Run(ctx)

	fq.mu.Lock()
	defer fq.mu.Unlock()
	if len(fq.completed) != 1 || fq.completed[0] != "job-1" {
		t.Fatalf("expected job-1 to be completed, got %+v", fq.completed)
	}
}

func TestPool_FailsErroredJob(t *testing.T) {
	fq := &fakeQueue{jobs: []*model.Job{{ID: "job-2"}}}
	fo := &fakeOrchestrator{failID: "job-2"}
	p := New(fq, fo, Config{WorkerCount: 1, PollInterval: 5 * time.Millisecond, HeartbeatInterval: time.Hour}, zap.NewNop())

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	p.Run(ctx)

	fq.mu.Lock()
	defer fq.mu.Unlock()
	if len(fq.failed) != 1 || fq.failed[0] != "job-2" {
		t.Fatalf("expected job-2 to be failed, got %+v", fq.failed)
	}
}

func TestPool_RecoversPanicAsFailure(t *testing.T) {
	fq := &fakeQueue{jobs: []*model.Job{{ID: "job-3"}}}
	fo := &fakeOrchestrator{panicID: "job-3"}
	p := New(fq, fo, Config{WorkerCount: 1, PollInterval: 5 * time.Millisecond, HeartbeatInterval: time.Hour}, zap.NewNop())

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	p.Run(ctx)

	fq.mu.Lock()
	defer fq.mu.Unlock()
	if len(fq.failed) != 1 || fq.failed[0] != "job-3" {
		t.Fatalf("expected job-3's panic to be recovered as a failure, got %+v", fq.failed)
	}
}
