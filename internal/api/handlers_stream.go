package api

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"

	"backtest-orchestrator/internal/changefeed"
)

// handleTaskUpdatesStream implements GET /task-updates: a chunked
// text/plain stream of one `{"task_id": N, "state": S}` JSON line per
// update, flushed as it is published.
func (s *Server) handleTaskUpdatesStream(c *gin.Context) {
	id, ch, initial := s.feed.Subscribe()
	defer s.feed.Unsubscribe(id)

	c.Writer.Header().Set("Content-Type", "text/plain; charset=utf-8")
	c.Writer.WriteHeader(http.StatusOK)
	flusher, canFlush := c.Writer.(http.Flusher)

	writeLine := func(u changefeed.Update) bool {
		line, err := json.Marshal(u)
		if err != nil {
			return false
		}
		if _, err := c.Writer.Write(append(line, '\n')); err != nil {
			return false
		}
		if canFlush {
			flusher.Flush()
		}
		return true
	}

	if !writeLine(initial) {
		return
	}

	ctx := c.Request.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case update, open := <-ch:
			if !open {
				return
			}
			if !writeLine(update) {
				return
			}
		}
	}
}

// handleTaskUpdatesWebSocket implements the optional push transport
// alongside the required plain-text stream.
func (s *Server) handleTaskUpdatesWebSocket(c *gin.Context) {
	conn, err := changefeed.Upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}
	changefeed.ServeWebSocket(conn, s.feed, s.log)
}
