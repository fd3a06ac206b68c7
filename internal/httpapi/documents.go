package httpapi

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/semaj-rag/ingest-pipeline/internal/apperr"
)

const (
	defaultListLimit = 25
	maxListLimit     = 200
)

// handleListDocuments backs `GET /documents?limit&offset&sortBy&sortOrder&q`
// (spec.md §6).
func (s *Server) handleListDocuments(c *gin.Context) {
	if s.documents == nil {
		writeError(c, apperr.New(apperr.UpstreamUnavailable, "document listing is not configured on this deployment"))
		return
	}
	limit := clampLimit(c.DefaultQuery("limit", ""))
	offset := atoiOr(c.Query("offset"), 0)
	sortBy := c.DefaultQuery("sortBy", "created_time")
	sortOrder := c.DefaultQuery("sortOrder", "desc")
	q := c.Query("q")

	docs, err := s.documents.ListDocuments(c.Request.Context(), limit, offset, sortBy, sortOrder, q)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"documents": docs, "limit": limit, "offset": offset})
}

// handleGetDocument backs `GET /documents/:id`.
func (s *Server) handleGetDocument(c *gin.Context) {
	if s.documents == nil {
		writeError(c, apperr.New(apperr.UpstreamUnavailable, "document lookup is not configured on this deployment"))
		return
	}
	doc, err := s.documents.GetDocument(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, doc)
}

// handleListChunks backs `GET /documents/:id/chunks?limit&offset`.
func (s *Server) handleListChunks(c *gin.Context) {
	if s.documents == nil {
		writeError(c, apperr.New(apperr.UpstreamUnavailable, "chunk listing is not configured on this deployment"))
		return
	}
	limit := clampLimit(c.DefaultQuery("limit", ""))
	offset := atoiOr(c.Query("offset"), 0)

	chunks, err := s.documents.ListChunks(c.Request.Context(), c.Param("id"), limit, offset)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"chunks": chunks, "limit": limit, "offset": offset})
}

func clampLimit(raw string) int {
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return defaultListLimit
	}
	if n > maxListLimit {
		return maxListLimit
	}
	return n
}
