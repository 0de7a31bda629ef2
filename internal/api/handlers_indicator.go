package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"backtest-orchestrator/internal/configstore"
	"backtest-orchestrator/internal/indicator"
)

// handleIndicatorCatalog implements GET /indicators: the full registered
// Indicator variant set and their parameter names.
func (s *Server) handleIndicatorCatalog(c *gin.Context) {
	successResponse(c, http.StatusOK, indicator.Catalog())
}

func (s *Server) handleListIndicatorCombinations(c *gin.Context) {
	combinations, err := s.store.ListIndicatorCombinations(c.Request.Context())
	if err != nil {
		errorResponse(c, err)
		return
	}
	successResponse(c, http.StatusOK, combinations)
}

func (s *Server) handleCreateIndicatorCombination(c *gin.Context) {
	var in configstore.CreateIndicatorCombination
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	created, err := s.store.CreateIndicatorCombination(c.Request.Context(), in)
	if err != nil {
		errorResponse(c, err)
		return
	}
	successResponse(c, http.StatusCreated, created)
}

// handleGetIndicatorsInCombination is mounted under /indicator_combinations/:id/members
// for clients that need the decoded member rows rather than just the
// combination's own name/id.
func (s *Server) handleGetIndicatorsInCombination(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	members, err := s.store.GetIndicatorsInCombination(c.Request.Context(), id)
	if err != nil {
		errorResponse(c, err)
		return
	}
	successResponse(c, http.StatusOK, members)
}
