package http

import (
	"net/http"
	"strconv"
	"time"

	apperrors "streambot-backend/internal/common/errors"
	"streambot-backend/internal/common/middleware"
	"streambot-backend/internal/features/stats/service"

	"github.com/gin-gonic/gin"
)

type StatsHandler struct {
	service *service.StatsService
}

func NewStatsHandler(service *service.StatsService) *StatsHandler {
	return &StatsHandler{service: service}
}

func (h *StatsHandler) RegisterRoutes(router *gin.RouterGroup) {
	stats := router.Group("/channels/:channelID/stats")
	{
		stats.GET("/points", h.topPoints)
		stats.GET("/commands", h.commandUsage)
		stats.GET("/activity", h.hourlyActivity)
	}
}

func channelIDParam(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("channelID"), 10, 64)
	if err != nil || id <= 0 {
		_ = c.Error(apperrors.New(apperrors.ErrCodeValidation, "invalid channel id"))
		return 0, false
	}
	return id, true
}

func (h *StatsHandler) topPoints(c *gin.Context) {
	channelID, ok := channelIDParam(c)
	if !ok {
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "10"))
	top, err := h.service.TopPoints(c.Request.Context(), middleware.OwnerID(c), channelID, limit)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"leaderboard": top})
}

func (h *StatsHandler) commandUsage(c *gin.Context) {
	channelID, ok := channelIDParam(c)
	if !ok {
		return
	}
	usage, err := h.service.CommandUsage(c.Request.Context(), middleware.OwnerID(c), channelID)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"usage": usage})
}

func (h *StatsHandler) hourlyActivity(c *gin.Context) {
	channelID, ok := channelIDParam(c)
	if !ok {
		return
	}
	day := time.Now().UTC()
	if raw := c.Query("date"); raw != "" {
		parsed, err := time.Parse("2006-01-02", raw)
		if err != nil {
			_ = c.Error(apperrors.New(apperrors.ErrCodeValidation, "date must be YYYY-MM-DD"))
			return
		}
		day = parsed
	}
	activity, err := h.service.HourlyActivity(c.Request.Context(), middleware.OwnerID(c), channelID, day)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"activity": activity})
}
