package pipeline

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/semaj-rag/ingest-pipeline/internal/model"
	"github.com/semaj-rag/ingest-pipeline/internal/store"
)

type fakeFetcher struct {
	text  string
	title string
	err   error
}

func (f *fakeFetcher) Fetch(ctx context.Context, job *model.Job) (string, string, error) {
	return f.text, f.title, f.err
}

// fakeEnricher marks every chunk embedded; store failures are driven by
// fakeStore.chunkFails.
type fakeEnricher struct{}

func (f *fakeEnricher) EnrichDocument(ctx context.Context, documentID, documentPreview string, chunks []model.Chunk, onChunk func(model.Chunk)) error {
	for _, c := range chunks {
		c.Status = model.ChunkEmbedded
		c.EmbeddingStatus = model.EmbeddingOK
		onChunk(c)
	}
	return nil
}

type fakeStore struct {
	mu         sync.Mutex
	docs       []model.Document
	chunkFails map[int]bool
}

func (s *fakeStore) UpsertDocument(ctx context.Context, doc model.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs = append(s.docs, doc)
	return nil
}

func (s *fakeStore) UpsertChunk(ctx context.Context, doc model.Document, chunk model.Chunk) store.FanoutResult {
	if s.chunkFails[chunk.Index] {
		return store.FanoutResult{RelationalErr: errors.New("relational boom")}
	}
	return store.FanoutResult{}
}

func (s *fakeStore) DeleteDocument(ctx context.Context, documentID string) error { return nil }

func (s *fakeStore) lastStatus() model.DocumentStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.docs[len(s.docs)-1].Status
}

type fakeSessions struct {
	mu        sync.Mutex
	cancelled bool
	finished  model.SessionStatus
}

func (f *fakeSessions) AttachDocument(ctx context.Context, sessionID, documentID string, totalChunks int) error {
	return nil
}
func (f *fakeSessions) Heartbeat(ctx context.Context, sessionID string, processedChunks int) error {
	return nil
}
func (f *fakeSessions) Finish(ctx context.Context, sessionID string, status model.SessionStatus, errorReason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.finished = status
	return nil
}
func (f *fakeSessions) IsCancelled(ctx context.Context, sessionID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cancelled, nil
}

type fakeBus struct {
	mu     sync.Mutex
	events []model.ProgressEvent
}

func (b *fakeBus) Publish(event model.ProgressEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, event)
}

func (b *fakeBus) kinds() []model.ProgressKind {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]model.ProgressKind, len(b.events))
	for i, e := range b.events {
		out[i] = e.Kind
	}
	return out
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.MinJobTimeout = time.Second
	cfg.PerChunkTimeoutFactor = 10 * time.Millisecond
	cfg.ProgressThrottle = time.Millisecond
	return cfg
}

func TestRun_CompletesWhenAllChunksStore(t *testing.T) {
	fetcher := &fakeFetcher{text: "some reasonably sized document body used for chunking tests."}
	enr := &fakeEnricher{}
	st := &fakeStore{chunkFails: map[int]bool{}}
	sess := &fakeSessions{}
	bus := &fakeBus{}

	orch := New(fetcher, enr, st, sess, bus, testConfig(), zap.NewNop())
	job := &model.Job{ID: "job-1", SessionID: "sess-1", URL: "https://example.com"}

	if err := orch.Run(context.Background(), job); err != nil {
		t.Fatalf("run: %v", err)
	}
	if st.lastStatus() != model.DocumentCompleted {
		t.Fatalf("expected document completed, got %s", st.lastStatus())
	}
	if sess.finished != model.SessionCompleted {
		t.Fatalf("expected session completed, got %s", sess.finished)
	}
}

func TestRun_FailsWhenFailureRatioExceedsBudget(t *testing.T) {
	longText := ""
	for i := 0; i < 50; i++ {
		longText += "word "
	}
	fetcher := &fakeFetcher{text: longText}
	enr := &fakeEnricher{}
	st := &fakeStore{chunkFails: map[int]bool{0: true}}
	sess := &fakeSessions{}
	bus := &fakeBus{}

	cfg := testConfig()
	cfg.ChunkRetryAttempts = 0
	orch := New(fetcher, enr, st, sess, bus, cfg, zap.NewNop())
	job := &model.Job{ID: "job-2", SessionID: "sess-2", URL: "https://example.com"}

	err := orch.Run(context.Background(), job)
	if err == nil {
		t.Fatalf("expected a failure when every chunk fails to store")
	}
	if sess.finished != model.SessionFailed {
		t.Fatalf("expected session failed, got %s", sess.finished)
	}
}

func TestRun_StopsOnFetchError(t *testing.T) {
	fetcher := &fakeFetcher{err: errors.New("fetch boom")}
	enr := &fakeEnricher{}
	st := &fakeStore{chunkFails: map[int]bool{}}
	sess := &fakeSessions{}
	bus := &fakeBus{}

	orch := New(fetcher, enr, st, sess, bus, testConfig(), zap.NewNop())
	job := &model.Job{ID: "job-3", SessionID: "sess-3", URL: "https://example.com"}

	if err := orch.Run(context.Background(), job); err == nil {
		t.Fatalf("expected fetch error to propagate")
	}
	if sess.finished != model.SessionFailed {
		t.Fatalf("expected session failed on fetch error, got %s", sess.finished)
	}
}

func TestRun_HonorsCancellationBeforeChunking(t *testing.T) {
	fetcher := &fakeFetcher{text: "some document text"}
	enr := &fakeEnricher{}
	st := &fakeStore{chunkFails: map[int]bool{}}
	sess := &fakeSessions{cancelled: true}
	bus := &fakeBus{}

	orch := New(fetcher, enr, st, sess, bus, testConfig(), zap.NewNop())
	job := &model.Job{ID: "job-4", SessionID: "sess-4", URL: "https://example.com"}

	if err := orch.Run(context.Background(), job); err != nil {
		t.Fatalf("cancelled run should return nil, got %v", err)
	}
	if sess.finished != model.SessionCancelled {
		t.Fatalf("expected session cancelled, got %s", sess.finished)
	}

	found := false
	for _, k := range bus.kinds() {
		if k == model.EventCancelled {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected a cancelled progress event")
	}
}
