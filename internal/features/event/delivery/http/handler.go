package http

import (
	"net/http"
	"strconv"

	apperrors "streambot-backend/internal/common/errors"
	"streambot-backend/internal/common/middleware"
	"streambot-backend/internal/features/event/models"
	"streambot-backend/internal/features/event/service"

	"github.com/gin-gonic/gin"
)

type EventHandler struct {
	service service.EventService
}

func NewEventHandler(service service.EventService) *EventHandler {
	return &EventHandler{service: service}
}

func (h *EventHandler) RegisterRoutes(router *gin.RouterGroup) {
	events := router.Group("/channels/:channelID/events")
	{
		events.GET("", h.list)
		events.POST("", h.create)
		events.PATCH("/:eventID", h.update)
		events.DELETE("/:eventID", h.remove)
		events.POST("/:eventID/start", h.start)
		events.POST("/:eventID/end", h.end)
		events.POST("/:eventID/cancel", h.cancel)
	}
}

func pathID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		_ = c.Error(apperrors.Newf(apperrors.ErrCodeValidation, "invalid %s", name))
		return 0, false
	}
	return id, true
}

func (h *EventHandler) list(c *gin.Context) {
	channelID, ok := pathID(c, "channelID")
	if !ok {
		return
	}
	events, err := h.service.List(c.Request.Context(), middleware.OwnerID(c), channelID)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"events": events})
}

func (h *EventHandler) create(c *gin.Context) {
	channelID, ok := pathID(c, "channelID")
	if !ok {
		return
	}
	var req models.EventCreate
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(apperrors.Wrap(err, apperrors.ErrCodeValidation, "invalid request body"))
		return
	}
	ev, err := h.service.Create(c.Request.Context(), middleware.OwnerID(c), channelID, req)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, ev)
}

func (h *EventHandler) update(c *gin.Context) {
	channelID, ok := pathID(c, "channelID")
	if !ok {
		return
	}
	eventID, ok := pathID(c, "eventID")
	if !ok {
		return
	}
	var req models.EventUpdate
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(apperrors.Wrap(err, apperrors.ErrCodeValidation, "invalid request body"))
		return
	}
	ev, err := h.service.Update(c.Request.Context(), middleware.OwnerID(c), channelID, eventID, req)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, ev)
}

func (h *EventHandler) remove(c *gin.Context) {
	channelID, ok := pathID(c, "channelID")
	if !ok {
		return
	}
	eventID, ok := pathID(c, "eventID")
	if !ok {
		return
	}
	if err := h.service.Delete(c.Request.Context(), middleware.OwnerID(c), channelID, eventID); err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h *EventHandler) start(c *gin.Context) {
	channelID, ok := pathID(c, "channelID")
	if !ok {
		return
	}
	eventID, ok := pathID(c, "eventID")
	if !ok {
		return
	}
	if err := h.service.Start(c.Request.Context(), middleware.OwnerID(c), channelID, eventID); err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h *EventHandler) end(c *gin.Context) {
	channelID, ok := pathID(c, "channelID")
	if !ok {
		return
	}
	eventID, ok := pathID(c, "eventID")
	if !ok {
		return
	}
	if err := h.service.End(c.Request.Context(), middleware.OwnerID(c), channelID, eventID); err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h *EventHandler) cancel(c *gin.Context) {
	channelID, ok := pathID(c, "channelID")
	if !ok {
		return
	}
	eventID, ok := pathID(c, "eventID")
	if !ok {
		return
	}
	if err := h.service.Cancel(c.Request.Context(), middleware.OwnerID(c), channelID, eventID); err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}
