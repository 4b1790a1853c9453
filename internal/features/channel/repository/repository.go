package repository

import (
	"context"

	"streambot-backend/internal/features/channel/models"
)

// ChannelRepository persists channels, their settings and the viewer
// follower/subscriber registry.
type ChannelRepository interface {
	Create(ctx context.Context, ch *models.Channel) error
	GetByID(ctx context.Context, id int64) (*models.Channel, error)
	ListByOwner(ctx context.Context, ownerID int64) ([]models.Channel, error)
	ListActive(ctx context.Context) ([]models.Channel, error)
	SetActive(ctx context.Context, id int64, active bool) error

	GetSettings(ctx context.Context, channelID int64) (map[string]string, error)
	SetSetting(ctx context.Context, channelID int64, key, value string) error

	MarkFollower(ctx context.Context, channelID int64, userID string) error
	IsFollower(ctx context.Context, channelID int64, userID string) (bool, error)
	MarkSubscriber(ctx context.Context, channelID int64, userID string, tier int) error
	SubscriberTier(ctx context.Context, channelID int64, userID string) (int, bool, error)
}
