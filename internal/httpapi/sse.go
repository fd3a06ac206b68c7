package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/semaj-rag/ingest-pipeline/internal/model"
)

// sseEvent is the wire shape spec.md §6 defines: `data: {"event": kind,
// "data": payload, "timestamp": iso8601}\n\n`.
type sseEvent struct {
	Event     model.ProgressKind     `json:"event"`
	Data      map[string]interface{} `json:"data,omitempty"`
	Timestamp string                 `json:"timestamp"`
}

// terminalKinds are the progress kinds that end a stream (spec.md §6).
var terminalKinds = map[model.ProgressKind]bool{
	model.EventCompleted: true,
	model.EventFailed:    true,
	model.EventCancelled: true,
}

// streamSession opens an SSE channel on sessionID and writes every
// published event until a terminal event arrives or the client
// disconnects.
func (s *Server) streamSession(c *gin.Context, sessionID string) {
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")

	sub := s.bus.Subscribe(sessionID)
	defer sub.Unsubscribe()

	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		writeError(c, fmt.Errorf("streaming unsupported by this response writer"))
		return
	}

	for {
		select {
		case <-c.Request.Context().Done():
			return
		case event, open := <-sub.Events:
			if !open {
				return
			}
			writeSSEEvent(c.Writer, event)
			flusher.Flush()
			if terminalKinds[event.Kind] {
				return
			}
		}
	}
}

func writeSSEEvent(w http.ResponseWriter, event model.ProgressEvent) {
	wire := sseEvent{
		Event:     event.Kind,
		Data:      event.Payload,
		Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
	}
	body, err := json.Marshal(wire)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "data: %s\n\n", body)
}
