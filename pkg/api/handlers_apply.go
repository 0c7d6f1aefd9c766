package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/frostwillmott/applybot/pkg/apply"
	"github.com/frostwillmott/applybot/pkg/hh"
)

// bulkApplyStream handles POST /apply/bulk/stream: it runs the pipeline and
// streams progress events as server-sent events.
func (s *Server) bulkApplyStream(c *gin.Context) {
	var req struct {
		apply.BulkRequest
		MaxApplications int `json:"max_applications"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.MaxApplications <= 0 {
		req.MaxApplications = 10
	}
	if req.MaxApplications > 50 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "max_applications out of range"})
		return
	}

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.Header().Set("X-Accel-Buffering", "no")

	ctx := c.Request.Context()
	// A client-side cancel ends the request context; the pipeline sees it
	// at its next checkpoint.
	stream := s.applySvc.BulkApplyStream(ctx, s.currentUserID(c), req.BulkRequest, req.MaxApplications,
		func() bool { return ctx.Err() != nil })

	c.Stream(func(w io.Writer) bool {
		event, ok := <-stream
		if !ok {
			return false
		}
		payload, err := json.Marshal(event)
		if err != nil {
			s.log.Error("failed to marshal progress event", zap.Error(err))
			return false
		}
		c.SSEvent("progress", string(payload))
		return true
	})
}

// applySingle handles POST /apply/single/:vacancy_id.
func (s *Server) applySingle(c *gin.Context) {
	vacancyID := c.Param("vacancy_id")

	var req apply.BulkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result := s.applySvc.ApplyToVacancy(c.Request.Context(), s.currentUserID(c), vacancyID, &req)
	c.JSON(http.StatusOK, result)
}

// listResumes handles GET /resumes: a passthrough used by the settings UI.
func (s *Server) listResumes(c *gin.Context) {
	resumes, err := s.board.GetMyResumes(c.Request.Context())
	if err != nil {
		s.boardError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": resumes})
}

// boardError maps board client failures to shell status codes: missing auth
// is 401, board/network trouble is 502.
func (s *Server) boardError(c *gin.Context, err error) {
	if errors.Is(err, hh.ErrAuthRequired) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		return
	}
	if apiErr, ok := hh.AsAPIError(err); ok {
		s.log.Error("board api error", zap.Int("status", apiErr.StatusCode), zap.String("message", apiErr.Message))
		c.JSON(http.StatusBadGateway, gin.H{"error": apiErr.Message})
		return
	}
	s.log.Error("board request failed", zap.Error(err))
	c.JSON(http.StatusBadGateway, gin.H{"error": "board request failed"})
}
