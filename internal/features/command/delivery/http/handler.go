package http

import (
	"net/http"
	"strconv"

	apperrors "streambot-backend/internal/common/errors"
	"streambot-backend/internal/common/middleware"
	"streambot-backend/internal/features/command/models"
	"streambot-backend/internal/features/command/service"

	"github.com/gin-gonic/gin"
)

type CommandHandler struct {
	service service.CommandService
}

func NewCommandHandler(service service.CommandService) *CommandHandler {
	return &CommandHandler{service: service}
}

func (h *CommandHandler) RegisterRoutes(router *gin.RouterGroup) {
	commands := router.Group("/channels/:channelID/commands")
	{
		commands.GET("", h.list)
		commands.POST("", h.create)
		commands.PATCH("/:name", h.update)
		commands.DELETE("/:name", h.remove)
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

func (h *CommandHandler) list(c *gin.Context) {
	channelID, ok := channelIDParam(c)
	if !ok {
		return
	}
	cmds, err := h.service.List(c.Request.Context(), middleware.OwnerID(c), channelID)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"commands": cmds})
}

func (h *CommandHandler) create(c *gin.Context) {
	channelID, ok := channelIDParam(c)
	if !ok {
		return
	}
	var req models.CommandCreate
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(apperrors.Wrap(err, apperrors.ErrCodeValidation, "invalid request body"))
		return
	}
	cmd, err := h.service.Create(c.Request.Context(), middleware.OwnerID(c), channelID, req)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, cmd)
}

func (h *CommandHandler) update(c *gin.Context) {
	channelID, ok := channelIDParam(c)
	if !ok {
		return
	}
	var req models.CommandUpdate
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(apperrors.Wrap(err, apperrors.ErrCodeValidation, "invalid request body"))
		return
	}
	cmd, err := h.service.Update(c.Request.Context(), middleware.OwnerID(c), channelID, c.Param("name"), req)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, cmd)
}

func (h *CommandHandler) remove(c *gin.Context) {
	channelID, ok := channelIDParam(c)
	if !ok {
		return
	}
	if err := h.service.Delete(c.Request.Context(), middleware.OwnerID(c), channelID, c.Param("name")); err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}
