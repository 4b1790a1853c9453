package http

import (
	"net/http"
	"strconv"

	apperrors "streambot-backend/internal/common/errors"
	"streambot-backend/internal/common/middleware"
	"streambot-backend/internal/features/reward/models"
	"streambot-backend/internal/features/reward/service"
	"streambot-backend/internal/ingress"

	"github.com/gin-gonic/gin"
)

type RewardHandler struct {
	service service.RewardService
	arbiter *service.Arbiter
}

func NewRewardHandler(svc service.RewardService, arbiter *service.Arbiter) *RewardHandler {
	return &RewardHandler{service: svc, arbiter: arbiter}
}

func (h *RewardHandler) RegisterRoutes(router *gin.RouterGroup) {
	rewards := router.Group("/channels/:channelID/rewards")
	{
		rewards.GET("", h.list)
		rewards.POST("", h.create)
		rewards.PATCH("/:rewardID", h.update)
		rewards.DELETE("/:rewardID", h.remove)
		rewards.POST("/:rewardID/redeem", h.redeem)
	}
	router.GET("/channels/:channelID/redemptions", h.redemptions)
}

func pathID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		_ = c.Error(apperrors.Newf(apperrors.ErrCodeValidation, "invalid %s", name))
		return 0, false
	}
	return id, true
}

func (h *RewardHandler) list(c *gin.Context) {
	channelID, ok := pathID(c, "channelID")
	if !ok {
		return
	}
	rewards, err := h.service.List(c.Request.Context(), middleware.OwnerID(c), channelID)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"rewards": rewards})
}

func (h *RewardHandler) create(c *gin.Context) {
	channelID, ok := pathID(c, "channelID")
	if !ok {
		return
	}
	var req models.RewardCreate
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(apperrors.Wrap(err, apperrors.ErrCodeValidation, "invalid request body"))
		return
	}
	rw, err := h.service.Create(c.Request.Context(), middleware.OwnerID(c), channelID, req)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, rw)
}

func (h *RewardHandler) update(c *gin.Context) {
	channelID, ok := pathID(c, "channelID")
	if !ok {
		return
	}
	rewardID, ok := pathID(c, "rewardID")
	if !ok {
		return
	}
	var req models.RewardUpdate
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(apperrors.Wrap(err, apperrors.ErrCodeValidation, "invalid request body"))
		return
	}
	rw, err := h.service.Update(c.Request.Context(), middleware.OwnerID(c), channelID, rewardID, req)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, rw)
}

func (h *RewardHandler) remove(c *gin.Context) {
	channelID, ok := pathID(c, "channelID")
	if !ok {
		return
	}
	rewardID, ok := pathID(c, "rewardID")
	if !ok {
		return
	}
	if err := h.service.Delete(c.Request.Context(), middleware.OwnerID(c), channelID, rewardID); err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

type redeemRequest struct {
	UserID   string   `json:"user_id" binding:"required"`
	Username string   `json:"username" binding:"required"`
	Roles    []string `json:"roles"`
}

// redeem executes a redemption on behalf of a viewer. Roles are asserted by
// the admin caller; subscriber status is re-checked against the registry.
func (h *RewardHandler) redeem(c *gin.Context) {
	channelID, ok := pathID(c, "channelID")
	if !ok {
		return
	}
	rewardID, ok := pathID(c, "rewardID")
	if !ok {
		return
	}
	var req redeemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(apperrors.Wrap(err, apperrors.ErrCodeValidation, "invalid request body"))
		return
	}

	roles := make([]ingress.Role, 0, len(req.Roles))
	for _, r := range req.Roles {
		roles = append(roles, ingress.Role(r))
	}

	red, err := h.arbiter.Redeem(c.Request.Context(), channelID, req.UserID, req.Username, rewardID, roles)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, red)
}

func (h *RewardHandler) redemptions(c *gin.Context) {
	channelID, ok := pathID(c, "channelID")
	if !ok {
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
	reds, err := h.service.Redemptions(c.Request.Context(), middleware.OwnerID(c), channelID, limit)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"redemptions": reds})
}
