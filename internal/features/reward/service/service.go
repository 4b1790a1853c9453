package service

import (
	"context"

	apperrors "streambot-backend/internal/common/errors"
	"streambot-backend/internal/common/validation"
	channelmodels "streambot-backend/internal/features/channel/models"
	"streambot-backend/internal/features/reward/models"
	"streambot-backend/internal/features/reward/repository"
)

// ChannelAccess is the ownership check borrowed from the channel service.
type ChannelAccess interface {
	Get(ctx context.Context, ownerID, channelID int64) (*channelmodels.Channel, error)
}

// Reloader receives the cache-invalidation signal after admin edits.
type Reloader interface {
	Reload(ctx context.Context, channelID int64) error
}

// RewardService is the admin-facing CRUD surface for the reward catalogue.
type RewardService interface {
	Create(ctx context.Context, ownerID, channelID int64, req models.RewardCreate) (*models.Reward, error)
	Update(ctx context.Context, ownerID, channelID, rewardID int64, req models.RewardUpdate) (*models.Reward, error)
	Delete(ctx context.Context, ownerID, channelID, rewardID int64) error
	List(ctx context.Context, ownerID, channelID int64) ([]models.Reward, error)
	Redemptions(ctx context.Context, ownerID, channelID int64, limit int) ([]models.Redemption, error)
}

type rewardService struct {
	repo     repository.RewardRepository
	channels ChannelAccess
	reloader Reloader
}

// NewRewardService wires the admin reward service. reloader may be nil in
// tests.
func NewRewardService(repo repository.RewardRepository, channels ChannelAccess, reloader Reloader) RewardService {
	return &rewardService{repo: repo, channels: channels, reloader: reloader}
}

func (s *rewardService) Create(ctx context.Context, ownerID, channelID int64, req models.RewardCreate) (*models.Reward, error) {
	if _, err := s.channels.Get(ctx, ownerID, channelID); err != nil {
		return nil, err
	}
	if err := validation.Struct(req); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeValidation, "invalid reward payload")
	}

	rw := &models.Reward{
		ChannelID:           channelID,
		Name:                req.Name,
		Description:         req.Description,
		Cost:                req.Cost,
		CooldownSeconds:     req.CooldownSeconds,
		Enabled:             true,
		SubscriberOnly:      req.SubscriberOnly,
		ModeratorOnly:       req.ModeratorOnly,
		MaxPerStream:        req.MaxPerStream,
		MaxPerUserPerStream: req.MaxPerUserPerStream,
	}
	if err := s.repo.Create(ctx, rw); err != nil {
		return nil, err
	}
	s.reload(ctx, channelID)
	return rw, nil
}

func (s *rewardService) Update(ctx context.Context, ownerID, channelID, rewardID int64, req models.RewardUpdate) (*models.Reward, error) {
	if _, err := s.channels.Get(ctx, ownerID, channelID); err != nil {
		return nil, err
	}
	if err := validation.Struct(req); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeValidation, "invalid reward payload")
	}

	rw, err := s.repo.GetByID(ctx, channelID, rewardID)
	if err != nil {
		return nil, err
	}
	if req.Name != nil {
		rw.Name = *req.Name
	}
	if req.Description != nil {
		rw.Description = *req.Description
	}
	if req.Cost != nil {
		rw.Cost = *req.Cost
	}
	if req.CooldownSeconds != nil {
		rw.CooldownSeconds = *req.CooldownSeconds
	}
	if req.Enabled != nil {
		rw.Enabled = *req.Enabled
	}
	if req.SubscriberOnly != nil {
		rw.SubscriberOnly = *req.SubscriberOnly
	}
	if req.ModeratorOnly != nil {
		rw.ModeratorOnly = *req.ModeratorOnly
	}
	if req.MaxPerStream != nil {
		rw.MaxPerStream = *req.MaxPerStream
	}
	if req.MaxPerUserPerStream != nil {
		rw.MaxPerUserPerStream = *req.MaxPerUserPerStream
	}
	if err := s.repo.Update(ctx, rw); err != nil {
		return nil, err
	}
	s.reload(ctx, channelID)
	return rw, nil
}

func (s *rewardService) Delete(ctx context.Context, ownerID, channelID, rewardID int64) error {
	if _, err := s.channels.Get(ctx, ownerID, channelID); err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, channelID, rewardID); err != nil {
		return err
	}
	s.reload(ctx, channelID)
	return nil
}

func (s *rewardService) List(ctx context.Context, ownerID, channelID int64) ([]models.Reward, error) {
	if _, err := s.channels.Get(ctx, ownerID, channelID); err != nil {
		return nil, err
	}
	return s.repo.ListByChannel(ctx, channelID)
}

func (s *rewardService) Redemptions(ctx context.Context, ownerID, channelID int64, limit int) ([]models.Redemption, error) {
	if _, err := s.channels.Get(ctx, ownerID, channelID); err != nil {
		return nil, err
	}
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	return s.repo.ListRedemptions(ctx, channelID, limit)
}

func (s *rewardService) reload(ctx context.Context, channelID int64) {
	if s.reloader != nil {
		_ = s.reloader.Reload(ctx, channelID)
	}
}
