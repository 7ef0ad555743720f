package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/agentrt/core/stream"
)

// handleRun is the single streaming ingress endpoint (spec.md §6): it
// parses the request, starts the Controller run, and forwards every Event
// as a server-sent event until stream_end.
func (s *Server) handleRun(c *gin.Context) {
	var req ingressRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.Header().Set("X-Accel-Buffering", "no")
	c.Writer.WriteHeader(http.StatusOK)

	sc, es := s.ctrl.Start(c.Request.Context(), req.toControllerRequest())
	s.track(sc)
	defer s.untrack(sc.SessionID)

	flusher, _ := c.Writer.(http.Flusher)
	for e := range es.Events() {
		data, err := json.Marshal(e)
		if err != nil {
			s.logger.Error(c.Request.Context(), "marshal event failed", "session_id", sc.SessionID, "error", err)
			continue
		}
		if _, err := fmt.Fprintf(c.Writer, "event: %s\ndata: %s\n\n", e.Type, data); err != nil {
			return
		}
		if flusher != nil {
			flusher.Flush()
		}
		if e.Type == stream.TypeStreamEnd {
			return
		}
	}
}
