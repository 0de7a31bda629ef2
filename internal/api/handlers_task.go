package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"backtest-orchestrator/internal/changefeed"
	"backtest-orchestrator/internal/configstore"
)

func (s *Server) handleListTasks(c *gin.Context) {
	tasks, err := s.store.GetTasks(c.Request.Context(), nil)
	if err != nil {
		errorResponse(c, err)
		return
	}
	successResponse(c, http.StatusOK, tasks)
}

func (s *Server) handleCreateTask(c *gin.Context) {
	var in configstore.CreateTask
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	created, err := s.store.CreateTask(c.Request.Context(), in)
	if err != nil {
		errorResponse(c, err)
		return
	}
	successResponse(c, http.StatusCreated, created)
}

// handleQueueTask implements PUT /task/:id/queue: the only externally
// accepted CAS, Created->Pending. The scheduler's Promote phase picks it
// up from Pending on its next tick.
func (s *Server) handleQueueTask(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	if err := s.store.UpdateTaskState(c.Request.Context(), id, configstore.AllowedFromStates(configstore.Pending), configstore.Pending); err != nil {
		errorResponse(c, err)
		return
	}
	s.feed.Publish(changefeed.Update{TaskID: id, State: string(configstore.Pending)})
	c.Status(http.StatusNoContent)
}

// handleCancelTask implements PUT /task/:id/cancel: the only externally
// accepted CAS into Cancelling, from Created, Pending, or Running. The
// scheduler's Scan phase notices it and drives it to Cancelled.
func (s *Server) handleCancelTask(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	if err := s.store.UpdateTaskState(c.Request.Context(), id, configstore.AllowedFromStates(configstore.Cancelling), configstore.Cancelling); err != nil {
		errorResponse(c, err)
		return
	}
	s.feed.Publish(changefeed.Update{TaskID: id, State: string(configstore.Cancelling)})
	c.Status(http.StatusNoContent)
}

func (s *Server) handlePurgeHiddenOrphans(c *gin.Context) {
	n, err := s.store.PurgeHiddenOrphans(c.Request.Context())
	if err != nil {
		errorResponse(c, err)
		return
	}
	successResponse(c, http.StatusOK, gin.H{"deleted": n})
}
