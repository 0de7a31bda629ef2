// Package api is the HTTP façade: every route listed in spec.md §6,
// mounted under /api on a gin.Engine, built in the teacher's server.go
// idiom (CORS middleware, grouped routes, success/error JSON envelopes).
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"backtest-orchestrator/internal/apperrors"
	"backtest-orchestrator/internal/changefeed"
	"backtest-orchestrator/internal/configstore"
	"backtest-orchestrator/internal/exchange"
	"backtest-orchestrator/internal/logging"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// ServerConfig holds the listener's host/port and shutdown grace period.
type ServerConfig struct {
	Host            string
	Port            int
	ShutdownTimeout time.Duration
}

// ConfigStore is the subset of *configstore.Store every handler depends
// on, extracted so the route table can be exercised against a fake in
// tests without a live Postgres — the same shape as the teacher's BotAPI
// interface in internal/api/server.go.
type ConfigStore interface {
	ListCryptoSymbols(ctx context.Context) ([]configstore.CryptoSymbol, error)
	UpsertCryptoSymbol(ctx context.Context, c configstore.CryptoSymbol) error
	ListCryptoLists(ctx context.Context) ([]configstore.CryptoList, error)
	CreateCryptoList(ctx context.Context, in configstore.CreateCryptoList) (*configstore.CryptoListComplete, error)
	HideCryptoList(ctx context.Context, id int64) error
	ListMHObjects(ctx context.Context) ([]configstore.MHObject, error)
	CreateMHObject(ctx context.Context, in configstore.CreateMHObject) (*configstore.MHObject, error)
	HideMHObject(ctx context.Context, id int64) error
	ListIndicatorCombinations(ctx context.Context) ([]configstore.IndicatorCombination, error)
	CreateIndicatorCombination(ctx context.Context, in configstore.CreateIndicatorCombination) (*configstore.IndicatorCombination, error)
	GetIndicatorsInCombination(ctx context.Context, id int64) ([]configstore.IndicatorInCombination, error)
	GetTasks(ctx context.Context, id *int64) ([]configstore.Task, error)
	CreateTask(ctx context.Context, in configstore.CreateTask) (*configstore.Task, error)
	UpdateTaskState(ctx context.Context, id int64, fromStates []configstore.TaskState, newState configstore.TaskState) error
	PurgeHiddenOrphans(ctx context.Context) (int64, error)
}

// HealthChecker is the subset of *database.DB the health endpoint needs.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// SymbolsSource is the subset of *exchange.SymbolsClient the reload
// endpoint needs.
type SymbolsSource interface {
	FetchAll(ctx context.Context) ([]exchange.SymbolInfo, error)
}

// Server wires the configuration store, the task change feed, and the
// exchange client into the gin.Engine route table.
type Server struct {
	router     *gin.Engine
	httpServer *http.Server
	config     ServerConfig

	db      HealthChecker
	store   ConfigStore
	feed    *changefeed.Feed
	symbols SymbolsSource
	log     *logging.Logger
	zerolog zerolog.Logger
	version string
}

// NewServer builds a Server and registers every route.
func NewServer(cfg ServerConfig, db HealthChecker, store ConfigStore, feed *changefeed.Feed, symbols SymbolsSource, log *logging.Logger, version string) *Server {
	if log == nil {
		log = logging.Default()
	}
	router := gin.New()
	router.Use(gin.Recovery())

	zl := zerolog.New(zerolog.NewConsoleWriter()).With().Timestamp().Logger()
	router.Use(func(c *gin.Context) {
		start := time.Now()
		traceID := logging.GenerateTraceID()
		ctx := logging.NewContext(c.Request.Context(), log.WithTraceID(traceID))
		c.Request = c.Request.WithContext(ctx)

		c.Next()
		zl.Info().
			Str("trace_id", traceID).
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("duration", time.Since(start)).
			Msg("request")
	})

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowAllOrigins = true
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization"}
	router.Use(cors.New(corsConfig))

	s := &Server{
		router:  router,
		config:  cfg,
		db:      db,
		store:   store,
		feed:    feed,
		symbols: symbols,
		log:     log.WithComponent("api"),
		zerolog: zl,
		version: version,
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	api := s.router.Group("/api")
	{
		api.GET("/health", s.handleHealth)
		api.GET("/task-updates", s.handleTaskUpdatesStream)
		api.GET("/ws/task-updates", s.handleTaskUpdatesWebSocket)

		api.GET("/crypto_symbol", s.handleListCryptoSymbols)
		api.POST("/crypto_symbol/reload", s.handleReloadCryptoSymbols)

		api.GET("/crypto_list", s.handleListCryptoLists)
		api.POST("/crypto_list", s.handleCreateCryptoList)
		api.PUT("/crypto_list/:id/hide", s.handleHideCryptoList)

		api.GET("/mh_object", s.handleListMHObjects)
		api.POST("/mh_object", s.handleCreateMHObject)
		api.PUT("/mh_object/:id/hide", s.handleHideMHObject)

		api.GET("/mh_algorithms", s.handleListMHObjects)
		api.PUT("/mh_algorithms/:id/hide", s.handleHideMHObject)
		api.GET("/algorithms", s.handleAlgorithmCatalog)

		api.GET("/indicators", s.handleIndicatorCatalog)
		api.GET("/indicator_combinations", s.handleListIndicatorCombinations)
		api.POST("/indicator_combinations", s.handleCreateIndicatorCombination)
		api.GET("/indicator_combinations/:id/members", s.handleGetIndicatorsInCombination)

		api.GET("/task", s.handleListTasks)
		api.POST("/task", s.handleCreateTask)
		api.PUT("/task/:id/queue", s.handleQueueTask)
		api.PUT("/task/:id/cancel", s.handleCancelTask)

		api.DELETE("/purge-hidden-orphans", s.handlePurgeHiddenOrphans)
	}
}

// Start runs the HTTP server until Shutdown is called.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 0, // /task-updates streams indefinitely
		IdleTimeout:  60 * time.Second,
	}
	s.log.Info("http server starting", "addr", addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("api: listen and serve: %w", err)
	}
	return nil
}

// Shutdown gracefully drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	s.log.Info("http server shutting down")
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealth(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	if err := s.db.HealthCheck(ctx); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy", "version": s.version})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "healthy", "version": s.version})
}

// successResponse sends data directly as the response body, the bare JSON
// shape spec.md's routes document (no envelope wrapper).
func successResponse(c *gin.Context, status int, data interface{}) {
	c.JSON(status, data)
}

// errorResponse maps an apperrors.Kind to its HTTP status per SPEC_FULL §7.
func errorResponse(c *gin.Context, err error) {
	kind, ok := apperrors.KindOf(err)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	status := http.StatusInternalServerError
	switch kind {
	case apperrors.ConfigNotFound:
		status = http.StatusNotFound
	case apperrors.UpstreamUnavailable:
		status = http.StatusBadGateway
	case apperrors.IntegrityViolation:
		status = http.StatusInternalServerError
	case apperrors.InvalidTransition:
		status = http.StatusConflict
	case apperrors.VariableTypeMismatch:
		status = http.StatusInternalServerError
	}
	c.JSON(status, gin.H{"error": err.Error(), "kind": string(kind)})
}
