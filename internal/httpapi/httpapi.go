// Package httpapi implements the ingestion and retrieval HTTP boundary
// (spec.md §6 "External interfaces"), generalizing sse-rag-service's and
// document-chunker's gin-based HTTP surfaces from a single hardcoded
// service into a router wired over the core's own components.
package httpapi

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/semaj-rag/ingest-pipeline/internal/apperr"
	"github.com/semaj-rag/ingest-pipeline/internal/metrics"
	"github.com/semaj-rag/ingest-pipeline/internal/model"
	"github.com/semaj-rag/ingest-pipeline/internal/progress"
	"github.com/semaj-rag/ingest-pipeline/internal/retrieval"
)

// MaxUploadBytes is the multipart upload cap named in spec.md §6.
const MaxUploadBytes = 100 << 20

// JobQueue is the subset of *queue.Queue the HTTP boundary drives.
type JobQueue interface {
	Enqueue(ctx context.Context, jobType model.JobType, url string, file *model.FilePayload, opts model.JobOptions, priority int) (jobID, sessionID string, err error)
	Get(ctx context.Context, jobID string) (*model.Job, error)
	Cancel(ctx context.Context, jobID string) error
	ListActive(ctx context.Context) ([]model.Job, error)
}

// SessionRegistry is the subset of *session.Registry the HTTP boundary drives.
type SessionRegistry interface {
	Get(ctx context.Context, sessionID string) (*model.Session, error)
	RequestCancel(ctx context.Context, sessionID string) error
	ListActive(ctx context.Context) ([]model.Session, error)
}

// DocumentStore is the subset of *relational.Store the retrieval surface
// reads directly, bypassing the vector/lexical fan-out since these are
// plain relational lookups rather than similarity search.
type DocumentStore interface {
	ListDocuments(ctx context.Context, limit, offset int, sortBy, sortOrder, q string) ([]model.Document, error)
	GetDocument(ctx context.Context, documentID string) (*model.Document, error)
	ListChunks(ctx context.Context, documentID string, limit, offset int) ([]model.Chunk, error)
}

// BlobStore is the subset of *blobstore.Store the file-upload endpoints need.
type BlobStore interface {
	Put(ctx context.Context, sessionID, filename string, content io.Reader, size int64, contentType string) (string, error)
}

// Server wires the core's components to gin handlers. It is built in
// cmd/ingestd and never constructs its own collaborators.
type Server struct {
	queue     JobQueue
	sessions  SessionRegistry
	bus       *progress.Bus
	documents DocumentStore
	blobs     BlobStore
	retriever *retrieval.Retriever
	logger    *zap.Logger
	engine    *gin.Engine
}

// New builds a Server and its gin engine. documents/blobs/retriever may
// be nil in a reduced deployment (worker-only process); routes touching
// a nil collaborator respond with an UpstreamUnavailable error (502).
func New(queue JobQueue, sessions SessionRegistry, bus *progress.Bus, documents DocumentStore, blobs BlobStore, retriever *retrieval.Retriever, logger *zap.Logger) *Server {
	s := &Server{queue: queue, sessions: sessions, bus: bus, documents: documents, blobs: blobs, retriever: retriever, logger: logger}
	s.engine = s.buildEngine()
	return s
}

// Engine returns the configured gin engine, ready for http.ListenAndServe.
func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) buildEngine() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(ginzap(s.logger), gin.Recovery())
	r.Use(cors)
	r.MaxMultipartMemory = MaxUploadBytes

	r.GET("/healthz", s.handleHealth)
	r.GET("/metrics", gin.WrapH(metrics.Handler()))

	r.POST("/process-url", s.handleProcessURL)
	r.POST("/process-url-stream", s.handleProcessURLStream)
	r.POST("/process-file", s.handleProcessFile)
	r.POST("/process-file-stream", s.handleProcessFileStream)
	r.GET("/job-status/:job_id", s.handleJobStatus)
	r.POST("/cancel-job/:job_id", s.handleCancelJob)
	r.POST("/stop-processing/:session_id", s.handleStopProcessing)
	r.GET("/in-progress", s.handleInProgress)

	r.GET("/documents", s.handleListDocuments)
	r.GET("/documents/:id", s.handleGetDocument)
	r.GET("/documents/:id/chunks", s.handleListChunks)
	r.GET("/search", s.handleSearch)

	return r
}

// cors mirrors the permissive CORS middleware sse-rag-service's main()
// registers ahead of its API group.
func cors(c *gin.Context) {
	c.Header("Access-Control-Allow-Origin", "*")
	c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
	c.Header("Access-Control-Allow-Headers", "Content-Type")
	if c.Request.Method == http.MethodOptions {
		c.AbortWithStatus(http.StatusNoContent)
		return
	}
	c.Next()
}

// ginzap logs each request at Info with the fields document-chunker's
// own middleware records (method, path, status, latency).
func ginzap(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Info("http request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
		)
	}
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy"})
}

// writeError renders the {success:false,error:{...}} envelope spec.md §7
// requires for every failure response.
func writeError(c *gin.Context, err error) {
	kind := apperr.KindOf(err)
	message := err.Error()
	hint := ""
	if appErr, ok := apperr.As(err); ok {
		message = appErr.Message
		hint = appErr.Hint
	}
	c.JSON(kind.HTTPStatus(), apperr.Envelope{
		Success:   false,
		Error:     apperr.EnvelopeErr{Kind: kind, Message: message, Hint: hint},
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}
