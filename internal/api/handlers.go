package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/yourusername/backtest-pilot/internal/backtest"
	"github.com/yourusername/backtest-pilot/internal/models"
)

type createRunBody struct {
	Type               string                 `json:"type" binding:"required"`
	AlgorithmID        uuid.UUID              `json:"algorithm_id" binding:"required"`
	DatasetID          uuid.UUID              `json:"dataset_id" binding:"required"`
	WindowStart        time.Time              `json:"window_start" binding:"required"`
	WindowEnd          time.Time              `json:"window_end" binding:"required"`
	InitialCapital     float64                `json:"initial_capital" binding:"required"`
	TradingFee         float64                `json:"trading_fee"`
	Slippage           *models.SlippageConfig `json:"slippage,omitempty"`
	StrategyParameters json.RawMessage        `json:"strategy_parameters,omitempty"`
	DeterministicSeed  string                 `json:"deterministic_seed,omitempty"`
}

func (s *Server) createRun(c *gin.Context) {
	var body createRunBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	run, err := s.service.Create(c.Request.Context(), backtest.CreateRunRequest{
		AccountID:          accountID(c),
		Type:               models.RunType(body.Type),
		AlgorithmID:        body.AlgorithmID,
		DatasetID:          body.DatasetID,
		WindowStart:        body.WindowStart,
		WindowEnd:          body.WindowEnd,
		InitialCapital:     body.InitialCapital,
		TradingFee:         body.TradingFee,
		Slippage:           body.Slippage,
		StrategyParameters: body.StrategyParameters,
		DeterministicSeed:  body.DeterministicSeed,
	})
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, run)
}

func (s *Server) listRuns(c *gin.Context) {
	req := backtest.ListRequest{
		AccountID: accountID(c),
		Type:      models.RunType(c.Query("type")),
		Status:    models.RunStatus(c.Query("status")),
		Cursor:    c.Query("cursor"),
	}
	if raw := c.Query("algorithm_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "malformed algorithm_id"})
			return
		}
		req.AlgorithmID = id
	}
	if raw := c.Query("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "malformed limit"})
			return
		}
		req.Limit = limit
	}
	if t, ok := parseTimeQuery(c, "created_after"); ok {
		req.CreatedAfter = t
	}
	if t, ok := parseTimeQuery(c, "created_before"); ok {
		req.CreatedBefore = t
	}

	result, err := s.service.List(c.Request.Context(), req)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"runs": result.Runs, "next_cursor": result.NextCursor})
}

func (s *Server) getRun(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	run, err := s.service.Get(c.Request.Context(), id, accountID(c))
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, run)
}

func (s *Server) deleteRun(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	if err := s.service.Delete(c.Request.Context(), id, accountID(c)); err != nil {
		s.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) resumeRun(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	run, err := s.service.Resume(c.Request.Context(), id, accountID(c))
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, run)
}

func (s *Server) pauseRun(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	if err := s.service.Pause(c.Request.Context(), id, accountID(c)); err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "pause requested"})
}

func (s *Server) cancelRun(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	if err := s.service.Cancel(c.Request.Context(), id, accountID(c)); err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "cancelled"})
}

func (s *Server) runProgress(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	progress, err := s.service.GetProgress(c.Request.Context(), id, accountID(c))
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, progress)
}

func (s *Server) runPerformance(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	perf, err := s.service.GetPerformance(c.Request.Context(), id, accountID(c))
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, perf)
}

func (s *Server) runSignals(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	signals, err := s.service.ListSignals(c.Request.Context(), id, accountID(c), artifactRequest(c, "signal_type", "direction"))
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"signals": signals})
}

func (s *Server) runFills(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	fills, err := s.service.ListFills(c.Request.Context(), id, accountID(c), artifactRequest(c, "order_type", "status"))
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"fills": fills})
}

type compareBody struct {
	Name   string      `json:"name"`
	RunIDs []uuid.UUID `json:"run_ids" binding:"required"`
}

func (s *Server) compareRuns(c *gin.Context) {
	var body compareBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	cmp, err := s.service.Compare(c.Request.Context(), accountID(c), body.Name, body.RunIDs)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, cmp)
}

// respondError maps the domain error taxonomy onto HTTP statuses
func (s *Server) respondError(c *gin.Context, err error) {
	switch {
	case err == models.ErrNotFound:
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	case err == models.ErrDuplicateKey:
		c.JSON(http.StatusConflict, gin.H{"error": "already exists"})
	case models.IsValidation(err), models.IsInvalidTransition(err):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		s.logger.WithError(err).Error("Request failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

func pathID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "malformed run id"})
		return uuid.Nil, false
	}
	return id, true
}

func parseTimeQuery(c *gin.Context, name string) (*time.Time, bool) {
	raw := c.Query(name)
	if raw == "" {
		return nil, false
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil, false
	}
	return &t, true
}

func artifactRequest(c *gin.Context, kindParam, extraParam string) backtest.ArtifactRequest {
	req := backtest.ArtifactRequest{
		Instrument: c.Query("instrument"),
		Kind:       c.Query(kindParam),
		Cursor:     c.Query("cursor"),
	}
	switch extraParam {
	case "direction":
		req.Direction = c.Query("direction")
	case "status":
		req.Status = c.Query("status")
	}
	if raw := c.Query("limit"); raw != "" {
		if limit, err := strconv.Atoi(raw); err == nil {
			req.Limit = limit
		}
	}
	return req
}
