package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yourusername/backtest-pilot/internal/models"
)

func (s *Server) workerStarted(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	run, err := s.worker.MarkRunning(c.Request.Context(), id)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, run)
}

type checkpointBody struct {
	Checkpoint models.CheckpointState `json:"checkpoint" binding:"required"`
	Processed  int64                  `json:"processed"`
	Total      int64                  `json:"total"`
}

func (s *Server) workerCheckpoint(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var body checkpointBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	paused, err := s.worker.RecordCheckpoint(c.Request.Context(), id, &body.Checkpoint, body.Processed, body.Total)
	if err != nil {
		s.respondError(c, err)
		return
	}
	// The worker stops when pause is true.
	c.JSON(http.StatusOK, gin.H{"pause": paused})
}

type completedBody struct {
	Performance *models.RunPerformance `json:"performance,omitempty"`
}

func (s *Server) workerCompleted(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var body completedBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := s.worker.MarkCompleted(c.Request.Context(), id, body.Performance); err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "completed"})
}

type failedBody struct {
	Reason string `json:"reason" binding:"required"`
}

func (s *Server) workerFailed(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var body failedBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := s.worker.MarkFailed(c.Request.Context(), id, body.Reason); err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "failed"})
}
