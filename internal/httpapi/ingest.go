package httpapi

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/semaj-rag/ingest-pipeline/internal/apperr"
	"github.com/semaj-rag/ingest-pipeline/internal/metrics"
	"github.com/semaj-rag/ingest-pipeline/internal/model"
)

// ingestRequest is the shared JSON body of /process-url[-stream]
// (spec.md §6: "{url, chunkSize?, overlap?, enableContextualEmbeddings?}").
type ingestRequest struct {
	URL                        string `json:"url" binding:"required"`
	ChunkSize                  int    `json:"chunkSize"`
	Overlap                    int    `json:"overlap"`
	EnableContextualEmbeddings *bool  `json:"enableContextualEmbeddings"`
	EnableIntelligent          *bool  `json:"enableIntelligent"`
	DocumentType               string `json:"documentType"`
	Priority                   int    `json:"priority"`
}

func (r ingestRequest) options() model.JobOptions {
	return model.JobOptions{
		ChunkSize:                  r.ChunkSize,
		Overlap:                    r.Overlap,
		EnableContextualEmbeddings: r.EnableContextualEmbeddings,
		EnableIntelligent:          r.EnableIntelligent,
		DocumentType:               r.DocumentType,
	}
}

// handleProcessURL enqueues a URL ingestion job (spec.md §6).
func (s *Server) handleProcessURL(c *gin.Context) {
	var req ingestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, apperr.Wrap(apperr.InvalidInput, "invalid request body", err))
		return
	}
	s.enqueueAndRespond(c, model.JobURL, req.URL, nil, req.options(), req.Priority)
}

// handleProcessURLStream enqueues a URL job and immediately opens an SSE
// channel on its session (spec.md §6's `-stream` variants).
func (s *Server) handleProcessURLStream(c *gin.Context) {
	var req ingestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, apperr.Wrap(apperr.InvalidInput, "invalid request body", err))
		return
	}
	jobID, sessionID, err := s.enqueue(c.Request.Context(), model.JobURL, req.URL, nil, req.options(), req.Priority)
	if err != nil {
		writeError(c, err)
		return
	}
	c.Writer.Header().Set("X-Job-Id", jobID)
	s.streamSession(c, sessionID)
}

// handleProcessFile accepts a single multipart "file" field, uploads it
// to blob storage, and enqueues a file ingestion job (spec.md §6,
// 100 MB cap).
func (s *Server) handleProcessFile(c *gin.Context) {
	file, opts, err := s.receiveUpload(c)
	if err != nil {
		writeError(c, err)
		return
	}
	s.enqueueAndRespond(c, model.JobFile, "", file, opts, 0)
}

// handleProcessFileStream is handleProcessFile's SSE-streaming sibling.
func (s *Server) handleProcessFileStream(c *gin.Context) {
	file, opts, err := s.receiveUpload(c)
	if err != nil {
		writeError(c, err)
		return
	}
	jobID, sessionID, err := s.enqueue(c.Request.Context(), model.JobFile, "", file, opts, 0)
	if err != nil {
		writeError(c, err)
		return
	}
	c.Writer.Header().Set("X-Job-Id", jobID)
	s.streamSession(c, sessionID)
}

// receiveUpload validates and stores the multipart "file" field, the
// extraction of its content being the fetcher's job, not the HTTP
// boundary's (spec.md §1 "Out of scope": file-format extraction).
func (s *Server) receiveUpload(c *gin.Context) (*model.FilePayload, model.JobOptions, error) {
	if s.blobs == nil {
		return nil, model.JobOptions{}, apperr.New(apperr.UpstreamUnavailable, "file uploads are not configured on this deployment")
	}
	header, err := c.FormFile("file")
	if err != nil {
		return nil, model.JobOptions{}, apperr.Wrap(apperr.InvalidInput, "missing \"file\" form field", err)
	}
	if header.Size > MaxUploadBytes {
		return nil, model.JobOptions{}, apperr.New(apperr.InvalidInput, fmt.Sprintf("file exceeds %d byte cap", MaxUploadBytes))
	}
	f, err := header.Open()
	if err != nil {
		return nil, model.JobOptions{}, apperr.Wrap(apperr.InvalidInput, "open uploaded file", err)
	}
	defer f.Close()

	uploadID := fmt.Sprintf("upload-%d", time.Now().UnixNano())
	contentType := header.Header.Get("Content-Type")
	bytesRef, err := s.blobs.Put(c.Request.Context(), uploadID, header.Filename, f, header.Size, contentType)
	if err != nil {
		return nil, model.JobOptions{}, err
	}

	opts := model.JobOptions{
		ChunkSize: atoiOr(c.PostForm("chunkSize"), 0),
		Overlap:   atoiOr(c.PostForm("overlap"), 0),
	}
	return &model.FilePayload{Filename: header.Filename, Mime: contentType, BytesRef: bytesRef}, opts, nil
}

func (s *Server) enqueueAndRespond(c *gin.Context, jobType model.JobType, url string, file *model.FilePayload, opts model.JobOptions, priority int) {
	jobID, sessionID, err := s.enqueue(c.Request.Context(), jobType, url, file, opts, priority)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"job_id": jobID, "session_id": sessionID})
}

func (s *Server) enqueue(ctx context.Context, jobType model.JobType, url string, file *model.FilePayload, opts model.JobOptions, priority int) (string, string, error) {
	jobID, sessionID, err := s.queue.Enqueue(ctx, jobType, url, file, opts, priority)
	if err != nil {
		return "", "", err
	}
	metrics.JobsEnqueued.WithLabelValues(string(jobType)).Inc()
	return jobID, sessionID, nil
}

func atoiOr(s string, def int) int {
	if s == "" {
		return def
	}
	n := 0
	for _, r := range s {
		if r < '0' || r > '9' {
			return def
		}
		n = n*10 + int(r-'0')
	}
	return n
}
