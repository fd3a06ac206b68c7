package httpapi

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/semaj-rag/ingest-pipeline/internal/apperr"
	"github.com/semaj-rag/ingest-pipeline/internal/retrieval"
	"github.com/semaj-rag/ingest-pipeline/internal/store"
)

const defaultSearchLimit = 10

// handleSearch backs `GET /search?q&type=hybrid|vector|bm25&limit&threshold`
// (spec.md §6). type defaults to hybrid; threshold drops results scoring
// below the cutoff after fusion/ranking.
func (s *Server) handleSearch(c *gin.Context) {
	if s.retriever == nil {
		writeError(c, apperr.New(apperr.UpstreamUnavailable, "retrieval is not configured on this deployment"))
		return
	}
	q := c.Query("q")
	if q == "" {
		writeError(c, apperr.New(apperr.InvalidInput, "q is required"))
		return
	}
	limit := clampLimit(c.DefaultQuery("limit", strconv.Itoa(defaultSearchLimit)))
	threshold := parseThreshold(c.Query("threshold"))
	filter := store.Filter{}

	var resp *retrieval.Response
	var err error
	switch c.DefaultQuery("type", "hybrid") {
	case "vector":
		resp, err = s.retriever.QueryVectorOnly(c.Request.Context(), q, limit, filter)
	case "bm25":
		resp, err = s.retriever.QueryLexicalOnly(c.Request.Context(), q, limit, filter)
	case "hybrid":
		resp, err = s.retriever.Query(c.Request.Context(), q, limit, filter)
	default:
		writeError(c, apperr.New(apperr.InvalidInput, "type must be hybrid, vector, or bm25"))
		return
	}
	if err != nil {
		writeError(c, err)
		return
	}

	results := resp.Results
	if threshold > 0 {
		filtered := make([]retrieval.Result, 0, len(results))
		for _, r := range results {
			if r.Score >= threshold {
				filtered = append(filtered, r)
			}
		}
		results = filtered
	}

	c.JSON(http.StatusOK, gin.H{
		"results":  results,
		"degraded": resp.Degraded,
		"source":   resp.Source,
	})
}

func parseThreshold(raw string) float64 {
	if raw == "" {
		return 0
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || v < 0 {
		return 0
	}
	return v
}
