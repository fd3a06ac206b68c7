// Package worker implements the bounded-concurrency worker pool
// (component C6): W workers claiming jobs off the durable queue,
// invoking the pipeline orchestrator, and draining cleanly on SIGTERM.
package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/semaj-rag/ingest-pipeline/internal/model"
)

// Queue is the subset of *queue.Queue the pool needs, narrowed to an
// interface so the pool is testable without a database.
type Queue interface {
	Claim(ctx context.Context, workerID string) (*model.Job, error)
	MarkRunning(ctx context.Context, jobID string) error
	Heartbeat(ctx context.Context, jobID string) error
	Complete(ctx context.Context, jobID string) error
	Fail(ctx context.Context, jobID string, cause error) error
}

// Orchestrator is the subset of *pipeline.Orchestrator the pool invokes
// per claimed job.
type Orchestrator interface {
	Run(ctx context.Context, job *model.Job) error
}

// Config tunes the pool.
type Config struct {
	WorkerCount       int
	PollInterval      time.Duration
	HeartbeatInterval time.Duration
}

// DefaultConfig matches spec.md §4.6's W=4 default.
func DefaultConfig() Config {
	return Config{WorkerCount: 4, PollInterval: time.Second, HeartbeatInterval: 30 * time.Second}
}

// Pool is the bounded-concurrency executor of queue jobs.
type Pool struct {
	queue  Queue
	orch   Orchestrator
	cfg    Config
	logger *zap.Logger

	wg       sync.WaitGroup
	draining chan struct{}
	once     sync.Once
}

// New builds a Pool.
func New(queue Queue, orch Orchestrator, cfg Config, logger *zap.Logger) *Pool {
	return &Pool{queue: queue, orch: orch, cfg: cfg, logger: logger, draining: make(chan struct{})}
}

// Run starts all workers and blocks until ctx is cancelled, at which
// point workers stop claiming new jobs and let any in-flight
// orchestration reach its next checkpoint before this call returns
// (spec.md §4.6 "On SIGTERM").
func (p *Pool) Run(ctx context.Context) {
	for i := 0; i < p.cfg.WorkerCount; i++ {
		workerID := fmt.Sprintf("worker-%d", i)
		p.wg.Add(1)
		go p.runWorker(ctx, workerID)
	}
	<-ctx.Done()
	p.once.Do(func() { close(p.draining) })
	p.wg.Wait()
}

func (p *Pool) runWorker(ctx context.Context, workerID string) {
	defer p.wg.Done()
	logger := p.logger.With(zap.String("worker_id", workerID))
	ticker := time.NewTicker(p.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-p.draining:
			return
		case <-ticker.C:
			p.tryClaimAndRun(ctx, workerID, logger)
		}
	}
}

func (p *Pool) tryClaimAndRun(ctx context.Context, workerID string, logger *zap.Logger) {
	job, err := p.queue.Claim(ctx, workerID)
	if err != nil {
		logger.Error("claim failed", zap.Error(err))
		return
	}
	if job == nil {
		return
	}
	logger.Info("claimed job", zap.String("job_id", job.ID))

	if err := p.queue.MarkRunning(ctx, job.ID); err != nil {
		logger.Error("mark running failed", zap.String("job_id", job.ID), zap.Error(err))
		return
	}

	heartbeatStop := p.startHeartbeat(ctx, job.ID, logger)
	defer close(heartbeatStop)

	runErr := p.runSafely(ctx, job)
	if runErr != nil {
		logger.Error("job failed", zap.String("job_id", job.ID), zap.Error(runErr))
		if err := p.queue.Fail(ctx, job.ID, runErr); err != nil {
			logger.Error("fail failed", zap.String("job_id", job.ID), zap.Error(err))
		}
		return
	}

	if err := p.queue.Complete(ctx, job.ID); err != nil {
		logger.Error("complete failed", zap.String("job_id", job.ID), zap.Error(err))
	}
}

// runSafely recovers a panicking orchestrator run into an error, so one
// bad document cannot take down a worker goroutine (spec.md §4.6 "on
// clean return complete; on panic/error fail").
func (p *Pool) runSafely(ctx context.Context, job *model.Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("orchestrator panic: %v", r)
		}
	}()
	return p.orch.Run(ctx, job)
}

func (p *Pool) startHeartbeat(ctx context.Context, jobID string, logger *zap.Logger) chan struct{} {
	stop := make(chan struct{})
	ticker := time.NewTicker(p.cfg.HeartbeatInterval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := p.queue.Heartbeat(ctx, jobID); err != nil {
					logger.Warn("heartbeat failed", zap.String("job_id", jobID), zap.Error(err))
				}
			}
		}
	}()
	return stop
}
