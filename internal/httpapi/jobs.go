package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// handleJobStatus backs `GET /job-status/:job_id` (spec.md §6:
// "{status, attempts, error?}").
func (s *Server) handleJobStatus(c *gin.Context) {
	job, err := s.queue.Get(c.Request.Context(), c.Param("job_id"))
	if err != nil {
		writeError(c, err)
		return
	}
	resp := gin.H{"status": job.Status, "attempts": job.Attempt}
	if job.Error != "" {
		resp["error"] = job.Error
	}
	c.JSON(http.StatusOK, resp)
}

// handleCancelJob backs `POST /cancel-job/:job_id`.
func (s *Server) handleCancelJob(c *gin.Context) {
	if err := s.queue.Cancel(c.Request.Context(), c.Param("job_id")); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"cancelled": true})
}

// handleStopProcessing backs `POST /stop-processing/:session_id`. It
// only sets the cooperative cancellation flag; the pipeline observes it
// at its next stage boundary (spec.md §4.7 "Cancellation checkpoints").
func (s *Server) handleStopProcessing(c *gin.Context) {
	if err := s.sessions.RequestCancel(c.Request.Context(), c.Param("session_id")); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"cancelling": true})
}

// handleInProgress backs `GET /in-progress`: active sessions (C4) plus
// queued/running jobs (spec.md §6).
func (s *Server) handleInProgress(c *gin.Context) {
	sessions, err := s.sessions.ListActive(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	jobs, err := s.queue.ListActive(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"sessions": sessions, "jobs": jobs})
}
