package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/frostwillmott/applybot/pkg/models"
	"github.com/frostwillmott/applybot/pkg/storage"
)

// getAutoReplySettings handles GET /auto-reply/settings.
func (s *Server) getAutoReplySettings(c *gin.Context) {
	settings, err := s.autoReply.GetSettings(c.Request.Context(), s.currentUserID(c))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			c.JSON(http.StatusOK, nil)
			return
		}
		s.log.Error("failed to get auto-reply settings", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "database error"})
		return
	}
	c.JSON(http.StatusOK, settings)
}

// updateAutoReplySettings handles POST /auto-reply/settings.
func (s *Server) updateAutoReplySettings(c *gin.Context) {
	var req struct {
		Enabled              bool   `json:"enabled"`
		CheckIntervalMinutes int    `json:"check_interval_minutes"`
		Timezone             string `json:"timezone"`
		ActiveHoursStart     *int   `json:"active_hours_start"`
		ActiveHoursEnd       *int   `json:"active_hours_end"`
		ActiveDays           string `json:"active_days"`
		AutoSend             bool   `json:"auto_send"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	settings := &models.AutoReplySettings{
		UserID:               s.currentUserID(c),
		Enabled:              req.Enabled,
		CheckIntervalMinutes: req.CheckIntervalMinutes,
		Timezone:             req.Timezone,
		ActiveDays:           req.ActiveDays,
		AutoSend:             req.AutoSend,
		ActiveHoursStart:     9,
		ActiveHoursEnd:       21,
	}
	if settings.CheckIntervalMinutes <= 0 {
		settings.CheckIntervalMinutes = 60
	}
	if settings.Timezone == "" {
		settings.Timezone = s.cfg.SchedulerDefaultTimezone
	}
	if settings.ActiveDays == "" {
		settings.ActiveDays = "mon,tue,wed,thu,fri,sat,sun"
	}
	if req.ActiveHoursStart != nil {
		settings.ActiveHoursStart = *req.ActiveHoursStart
	}
	if req.ActiveHoursEnd != nil {
		settings.ActiveHoursEnd = *req.ActiveHoursEnd
	}

	if err := s.autoReply.UpdateUserSettings(c.Request.Context(), settings); err != nil {
		s.log.Error("failed to update auto-reply settings", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "database error"})
		return
	}
	c.JSON(http.StatusOK, settings)
}

// getAutoReplyHistory handles GET /auto-reply/history.
func (s *Server) getAutoReplyHistory(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))

	entries, err := s.autoReply.GetHistory(c.Request.Context(), s.currentUserID(c), limit)
	if err != nil {
		s.log.Error("failed to get auto-reply history", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "database error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"replies": entries, "total_count": len(entries)})
}
