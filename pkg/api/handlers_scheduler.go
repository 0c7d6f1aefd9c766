package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/frostwillmott/applybot/pkg/models"
	"github.com/frostwillmott/applybot/pkg/scheduler"
	"github.com/frostwillmott/applybot/pkg/storage"
)

// currentUserID resolves the requesting user. Single-user mode for personal
// deployments.
func (s *Server) currentUserID(c *gin.Context) string {
	return models.DefaultUserID
}

// getSchedulerSettings handles GET /scheduler/settings.
func (s *Server) getSchedulerSettings(c *gin.Context) {
	view, err := s.scheduler.GetUserSettings(c.Request.Context(), s.currentUserID(c))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			c.JSON(http.StatusOK, nil)
			return
		}
		s.log.Error("failed to get settings", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "database error"})
		return
	}
	c.JSON(http.StatusOK, view)
}

// updateSchedulerSettings handles POST /scheduler/settings.
func (s *Server) updateSchedulerSettings(c *gin.Context) {
	var req scheduler.UpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	view, err := s.scheduler.UpdateUserSettings(c.Request.Context(), s.currentUserID(c), req)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		// Validation failures from the settings constructor come back here.
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	s.log.Info("scheduler settings updated",
		zap.String("user_id", view.UserID), zap.Bool("enabled", view.Enabled))
	c.JSON(http.StatusOK, view)
}

// getSchedulerStatus handles GET /scheduler/status.
func (s *Server) getSchedulerStatus(c *gin.Context) {
	status := s.scheduler.GetStatus()

	view, err := s.scheduler.GetUserSettings(c.Request.Context(), s.currentUserID(c))
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		s.log.Error("failed to get settings for status", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "database error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"scheduler_running":  status.SchedulerRunning,
		"jobs_count":         status.JobsCount,
		"next_scheduled_run": status.NextScheduledRun,
		"user_settings":      view,
	})
}

// triggerManualRun handles POST /scheduler/run.
func (s *Server) triggerManualRun(c *gin.Context) {
	var req struct {
		MaxApplications int `json:"max_applications"`
	}
	_ = c.ShouldBindJSON(&req)
	if req.MaxApplications < 0 || req.MaxApplications > 50 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "max_applications out of range"})
		return
	}

	resp := s.scheduler.TriggerManualRun(c.Request.Context(), s.currentUserID(c), req.MaxApplications)
	if resp.Status != "started" {
		c.JSON(http.StatusBadRequest, resp)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// cancelRun handles POST /scheduler/stop.
func (s *Server) cancelRun(c *gin.Context) {
	cancelled := s.scheduler.CancelRunningJob(s.currentUserID(c))
	if !cancelled {
		c.JSON(http.StatusOK, gin.H{"status": "idle", "message": "No job is currently running."})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "cancelling", "message": "Cancellation requested."})
}

// getRunHistory handles GET /scheduler/history.
func (s *Server) getRunHistory(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))

	runs, err := s.scheduler.GetRunHistory(c.Request.Context(), s.currentUserID(c), limit)
	if err != nil {
		s.log.Error("failed to get run history", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "database error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"runs": runs, "total_count": len(runs)})
}
