package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"backtest-orchestrator/internal/configstore"
)

func (s *Server) handleListCryptoSymbols(c *gin.Context) {
	symbols, err := s.store.ListCryptoSymbols(c.Request.Context())
	if err != nil {
		errorResponse(c, err)
		return
	}
	successResponse(c, http.StatusOK, symbols)
}

// handleReloadCryptoSymbols implements POST /crypto_symbol/reload: fetch
// the current Binance Futures symbol universe, update volume/availability
// for symbols already tracked, and add any new ones.
func (s *Server) handleReloadCryptoSymbols(c *gin.Context) {
	ctx := c.Request.Context()

	fetched, err := s.symbols.FetchAll(ctx)
	if err != nil {
		errorResponse(c, err)
		return
	}
	for _, sym := range fetched {
		if err := s.store.UpsertCryptoSymbol(ctx, configstore.CryptoSymbol{
			Symbol:    sym.Symbol,
			Volume:    sym.Volume,
			Available: sym.Available,
		}); err != nil {
			errorResponse(c, err)
			return
		}
	}

	symbols, err := s.store.ListCryptoSymbols(ctx)
	if err != nil {
		errorResponse(c, err)
		return
	}
	successResponse(c, http.StatusOK, symbols)
}

func (s *Server) handleListCryptoLists(c *gin.Context) {
	lists, err := s.store.ListCryptoLists(c.Request.Context())
	if err != nil {
		errorResponse(c, err)
		return
	}
	successResponse(c, http.StatusOK, lists)
}

func (s *Server) handleCreateCryptoList(c *gin.Context) {
	var in configstore.CreateCryptoList
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	created, err := s.store.CreateCryptoList(c.Request.Context(), in)
	if err != nil {
		errorResponse(c, err)
		return
	}
	successResponse(c, http.StatusCreated, created)
}

func (s *Server) handleHideCryptoList(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	if err := s.store.HideCryptoList(c.Request.Context(), id); err != nil {
		errorResponse(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
