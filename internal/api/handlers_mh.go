package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"backtest-orchestrator/internal/configstore"
)

func (s *Server) handleListMHObjects(c *gin.Context) {
	objects, err := s.store.ListMHObjects(c.Request.Context())
	if err != nil {
		errorResponse(c, err)
		return
	}
	successResponse(c, http.StatusOK, objects)
}

func (s *Server) handleCreateMHObject(c *gin.Context) {
	var in configstore.CreateMHObject
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	created, err := s.store.CreateMHObject(c.Request.Context(), in)
	if err != nil {
		errorResponse(c, err)
		return
	}
	successResponse(c, http.StatusCreated, created)
}

func (s *Server) handleHideMHObject(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	if err := s.store.HideMHObject(c.Request.Context(), id); err != nil {
		errorResponse(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// algorithmDescriptor is the catalog entry GET /algorithms returns: the
// mh_algorithm_name value the mh_object's mh_algorithm_name column
// expects, plus the JSON parameter shape BuildRunner requires.
type algorithmDescriptor struct {
	Name       string   `json:"name"`
	ParamNames []string `json:"param_names"`
}

// handleAlgorithmCatalog implements GET /algorithms: the static catalog
// of metaheuristic algorithms scheduler.BuildRunner can dispatch.
func (s *Server) handleAlgorithmCatalog(c *gin.Context) {
	successResponse(c, http.StatusOK, []algorithmDescriptor{
		{Name: "NSGA-II", ParamNames: []string{"population_size", "generations", "mutation_rate", "crossover_rate", "num_objectives"}},
		{Name: "descent", ParamNames: []string{"step_size", "max_iterations", "max_iterations_without_improvement", "archive_size", "num_objectives"}},
	})
}
