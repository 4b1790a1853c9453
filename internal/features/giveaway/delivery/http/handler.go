package http

import (
	"net/http"
	"strconv"

	apperrors "streambot-backend/internal/common/errors"
	"streambot-backend/internal/common/middleware"
	"streambot-backend/internal/features/giveaway/models"
	"streambot-backend/internal/features/giveaway/service"

	"github.com/gin-gonic/gin"
)

type GiveawayHandler struct {
	manager *service.Manager
}

func NewGiveawayHandler(manager *service.Manager) *GiveawayHandler {
	return &GiveawayHandler{manager: manager}
}

func (h *GiveawayHandler) RegisterRoutes(router *gin.RouterGroup) {
	giveaways := router.Group("/channels/:channelID/giveaways")
	{
		giveaways.GET("", h.list)
		giveaways.POST("", h.create)
		giveaways.GET("/:giveawayID", h.get)
		giveaways.POST("/:giveawayID/start", h.start)
		giveaways.POST("/:giveawayID/end", h.end)
		giveaways.POST("/:giveawayID/cancel", h.cancel)
		giveaways.POST("/:giveawayID/entries", h.enter)
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

func (h *GiveawayHandler) list(c *gin.Context) {
	channelID, ok := channelIDParam(c)
	if !ok {
		return
	}
	giveaways, err := h.manager.List(c.Request.Context(), middleware.OwnerID(c), channelID)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"giveaways": giveaways})
}

func (h *GiveawayHandler) create(c *gin.Context) {
	channelID, ok := channelIDParam(c)
	if !ok {
		return
	}
	var req models.GiveawayCreate
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(apperrors.Wrap(err, apperrors.ErrCodeValidation, "invalid request body"))
		return
	}
	g, err := h.manager.Create(c.Request.Context(), middleware.OwnerID(c), channelID, req)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, g)
}

func (h *GiveawayHandler) get(c *gin.Context) {
	channelID, ok := channelIDParam(c)
	if !ok {
		return
	}
	g, winners, err := h.manager.Get(c.Request.Context(), middleware.OwnerID(c), channelID, c.Param("giveawayID"))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"giveaway": g, "winners": winners})
}

func (h *GiveawayHandler) start(c *gin.Context) {
	channelID, ok := channelIDParam(c)
	if !ok {
		return
	}
	if err := h.manager.Start(c.Request.Context(), middleware.OwnerID(c), channelID, c.Param("giveawayID")); err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h *GiveawayHandler) end(c *gin.Context) {
	channelID, ok := channelIDParam(c)
	if !ok {
		return
	}
	winners, err := h.manager.End(c.Request.Context(), middleware.OwnerID(c), channelID, c.Param("giveawayID"))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"winners": winners})
}

func (h *GiveawayHandler) cancel(c *gin.Context) {
	channelID, ok := channelIDParam(c)
	if !ok {
		return
	}
	if err := h.manager.Cancel(c.Request.Context(), middleware.OwnerID(c), channelID, c.Param("giveawayID")); err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

type enterRequest struct {
	UserID   string `json:"user_id" binding:"required"`
	Username string `json:"username" binding:"required"`
	DryRun   bool   `json:"dry_run"`
}

// enter records an entry on behalf of a viewer. With dry_run set, the
// requirement chain runs but no entry is claimed.
func (h *GiveawayHandler) enter(c *gin.Context) {
	if _, ok := channelIDParam(c); !ok {
		return
	}
	var req enterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(apperrors.Wrap(err, apperrors.ErrCodeValidation, "invalid request body"))
		return
	}
	if req.DryRun {
		if err := h.manager.DryRunEnter(c.Request.Context(), c.Param("giveawayID"), req.UserID); err != nil {
			_ = c.Error(err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "dry_run": true})
		return
	}
	if err := h.manager.Enter(c.Request.Context(), c.Param("giveawayID"), req.UserID, req.Username); err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"success": true})
}
