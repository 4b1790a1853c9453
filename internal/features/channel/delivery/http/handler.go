package http

import (
	"context"
	"net/http"
	"strconv"

	apperrors "streambot-backend/internal/common/errors"
	"streambot-backend/internal/common/middleware"
	"streambot-backend/internal/features/channel/models"
	"streambot-backend/internal/features/channel/service"

	"github.com/gin-gonic/gin"
)

// TokenAdmin exposes the vault operations surfaced to the admin API.
type TokenAdmin interface {
	IsDegraded(channelID int64) bool
	RetryRefresh(ctx context.Context, channelID int64) error
}

// Activator is told when a channel's runtime should start or stop.
// Implemented by the channel supervisor.
type Activator interface {
	StartChannel(ctx context.Context, channelID int64) error
	StopChannel(channelID int64)
}

type ChannelHandler struct {
	service    service.ChannelService
	tokens     TokenAdmin
	supervisor Activator
}

func NewChannelHandler(svc service.ChannelService, tokens TokenAdmin, supervisor Activator) *ChannelHandler {
	return &ChannelHandler{service: svc, tokens: tokens, supervisor: supervisor}
}

func (h *ChannelHandler) RegisterRoutes(router *gin.RouterGroup) {
	channels := router.Group("/channels")
	{
		channels.GET("", h.list)
		channels.POST("", h.register)
		channels.GET("/:channelID", h.get)
		channels.POST("/:channelID/activate", h.activate)
		channels.POST("/:channelID/deactivate", h.deactivate)
		channels.GET("/:channelID/settings", h.settings)
		channels.PATCH("/:channelID/settings", h.updateSettings)
		channels.GET("/:channelID/token", h.tokenStatus)
		channels.POST("/:channelID/token/refresh", h.retryRefresh)
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

func (h *ChannelHandler) list(c *gin.Context) {
	channels, err := h.service.List(c.Request.Context(), middleware.OwnerID(c))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"channels": channels})
}

// register exchanges the owner's OAuth code and brings the channel online.
func (h *ChannelHandler) register(c *gin.Context) {
	var req models.ChannelRegister
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(apperrors.Wrap(err, apperrors.ErrCodeValidation, "invalid request body"))
		return
	}
	ch, err := h.service.Register(c.Request.Context(), middleware.OwnerID(c), req)
	if err != nil {
		_ = c.Error(err)
		return
	}
	if h.supervisor != nil {
		if err := h.supervisor.StartChannel(c.Request.Context(), ch.ID); err != nil {
			_ = c.Error(err)
			return
		}
	}
	c.JSON(http.StatusCreated, ch)
}

func (h *ChannelHandler) get(c *gin.Context) {
	channelID, ok := channelIDParam(c)
	if !ok {
		return
	}
	ch, err := h.service.Get(c.Request.Context(), middleware.OwnerID(c), channelID)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, ch)
}

func (h *ChannelHandler) activate(c *gin.Context) {
	h.setActive(c, true)
}

func (h *ChannelHandler) deactivate(c *gin.Context) {
	h.setActive(c, false)
}

func (h *ChannelHandler) setActive(c *gin.Context, active bool) {
	channelID, ok := channelIDParam(c)
	if !ok {
		return
	}
	if err := h.service.SetActive(c.Request.Context(), middleware.OwnerID(c), channelID, active); err != nil {
		_ = c.Error(err)
		return
	}
	if h.supervisor != nil {
		if active {
			if err := h.supervisor.StartChannel(c.Request.Context(), channelID); err != nil {
				_ = c.Error(err)
				return
			}
		} else {
			h.supervisor.StopChannel(channelID)
		}
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "active": active})
}

func (h *ChannelHandler) settings(c *gin.Context) {
	channelID, ok := channelIDParam(c)
	if !ok {
		return
	}
	if _, err := h.service.Get(c.Request.Context(), middleware.OwnerID(c), channelID); err != nil {
		_ = c.Error(err)
		return
	}
	settings, err := h.service.Settings(c.Request.Context(), channelID)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, settings)
}

func (h *ChannelHandler) updateSettings(c *gin.Context) {
	channelID, ok := channelIDParam(c)
	if !ok {
		return
	}
	var update models.SettingsUpdate
	if err := c.ShouldBindJSON(&update); err != nil {
		_ = c.Error(apperrors.Wrap(err, apperrors.ErrCodeValidation, "invalid request body"))
		return
	}
	if err := h.service.UpdateSettings(c.Request.Context(), middleware.OwnerID(c), channelID, update); err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h *ChannelHandler) tokenStatus(c *gin.Context) {
	channelID, ok := channelIDParam(c)
	if !ok {
		return
	}
	if _, err := h.service.Get(c.Request.Context(), middleware.OwnerID(c), channelID); err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"degraded": h.tokens.IsDegraded(channelID)})
}

// retryRefresh clears a degraded mark and forces one refresh attempt.
func (h *ChannelHandler) retryRefresh(c *gin.Context) {
	channelID, ok := channelIDParam(c)
	if !ok {
		return
	}
	if _, err := h.service.Get(c.Request.Context(), middleware.OwnerID(c), channelID); err != nil {
		_ = c.Error(err)
		return
	}
	if err := h.tokens.RetryRefresh(c.Request.Context(), channelID); err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}
