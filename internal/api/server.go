// Package api exposes the run lifecycle over REST.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/yourusername/backtest-pilot/internal/backtest"
	"github.com/yourusername/backtest-pilot/internal/config"
	"github.com/yourusername/backtest-pilot/internal/models"
)

// RunService is the slice of the lifecycle manager the API consumes
type RunService interface {
	Create(ctx context.Context, req backtest.CreateRunRequest) (*models.BacktestRun, error)
	Get(ctx context.Context, id, accountID uuid.UUID) (*models.BacktestRun, error)
	List(ctx context.Context, req backtest.ListRequest) (*backtest.ListResult, error)
	Resume(ctx context.Context, id, accountID uuid.UUID) (*models.BacktestRun, error)
	Pause(ctx context.Context, id, accountID uuid.UUID) error
	Cancel(ctx context.Context, id, accountID uuid.UUID) error
	Delete(ctx context.Context, id, accountID uuid.UUID) error
	GetProgress(ctx context.Context, id, accountID uuid.UUID) (*backtest.Progress, error)
	GetPerformance(ctx context.Context, id, accountID uuid.UUID) (*models.RunPerformance, error)
	ListSignals(ctx context.Context, runID, accountID uuid.UUID, req backtest.ArtifactRequest) ([]*models.Signal, error)
	ListFills(ctx context.Context, runID, accountID uuid.UUID, req backtest.ArtifactRequest) ([]*models.TradeFill, error)
	Compare(ctx context.Context, accountID uuid.UUID, name string, runIDs []uuid.UUID) (*backtest.Comparison, error)
}

// WorkerService is the callback surface the simulation worker reports
// through
type WorkerService interface {
	MarkRunning(ctx context.Context, id uuid.UUID) (*models.BacktestRun, error)
	RecordCheckpoint(ctx context.Context, id uuid.UUID, cp *models.CheckpointState, processed, total int64) (bool, error)
	MarkCompleted(ctx context.Context, id uuid.UUID, perf *models.RunPerformance) error
	MarkFailed(ctx context.Context, id uuid.UUID, reason string) error
}

// Server hosts the REST surface
type Server struct {
	engine  *gin.Engine
	service RunService
	worker  WorkerService
	logger  *logrus.Logger
	server  *http.Server
	cfg     config.APIConfig
}

// NewServer builds the router. Gin runs in release mode outside development.
func NewServer(service RunService, worker WorkerService, cfg config.APIConfig, environment string, logger *logrus.Logger) *Server {
	if environment != "development" {
		gin.SetMode(gin.ReleaseMode)
	}

	s := &Server{
		engine:  gin.New(),
		service: service,
		worker:  worker,
		logger:  logger,
		cfg:     cfg,
	}
	s.engine.Use(gin.Recovery())
	s.engine.Use(s.requestLogger())
	s.routes()
	return s
}

func (s *Server) routes() {
	v1 := s.engine.Group("/api/v1")
	v1.Use(requireAccount())
	{
		v1.POST("/runs", s.createRun)
		v1.GET("/runs", s.listRuns)
		v1.GET("/runs/:id", s.getRun)
		v1.DELETE("/runs/:id", s.deleteRun)
		v1.POST("/runs/:id/resume", s.resumeRun)
		v1.POST("/runs/:id/pause", s.pauseRun)
		v1.POST("/runs/:id/cancel", s.cancelRun)
		v1.GET("/runs/:id/progress", s.runProgress)
		v1.GET("/runs/:id/performance", s.runPerformance)
		v1.GET("/runs/:id/signals", s.runSignals)
		v1.GET("/runs/:id/fills", s.runFills)
		v1.POST("/comparisons", s.compareRuns)
	}

	// Worker callbacks, reachable only on the internal network
	internal := s.engine.Group("/internal/v1")
	{
		internal.POST("/runs/:id/started", s.workerStarted)
		internal.POST("/runs/:id/checkpoint", s.workerCheckpoint)
		internal.POST("/runs/:id/completed", s.workerCompleted)
		internal.POST("/runs/:id/failed", s.workerFailed)
	}
}

// MountWebsocket attaches the live status stream endpoint
func (s *Server) MountWebsocket(handler http.HandlerFunc) {
	s.engine.GET("/api/v1/stream", gin.WrapF(handler))
}

// Handler exposes the router, mainly for tests
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Start runs the API server until ctx is cancelled
func (s *Server) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:         s.cfg.Address,
		Handler:      s.engine,
		ReadTimeout:  time.Duration(s.cfg.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(s.cfg.WriteTimeout) * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			s.logger.WithError(err).Error("API server shutdown error")
		}
	}()

	s.logger.WithField("addr", s.cfg.Address).Info("API server starting")
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.WithFields(logrus.Fields{
			"method":  c.Request.Method,
			"path":    c.Request.URL.Path,
			"status":  c.Writer.Status(),
			"latency": time.Since(start).String(),
		}).Debug("Request handled")
	}
}

// requireAccount resolves the acting account from the X-Account-ID header
func requireAccount() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := c.GetHeader("X-Account-ID")
		accountID, err := uuid.Parse(raw)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "missing or malformed X-Account-ID header"})
			return
		}
		c.Set("account_id", accountID)
		c.Next()
	}
}

func accountID(c *gin.Context) uuid.UUID {
	return c.MustGet("account_id").(uuid.UUID)
}
