package service

import (
	"context"
	"time"

	"streambot-backend/internal/features/channel/models"
)

// TokenSaver stores the initial token pair minted during registration.
// Implemented by the token vault.
type TokenSaver interface {
	SaveTokens(ctx context.Context, channelID int64, accessToken, refreshToken string, expiresAt time.Time) error
}

// ChannelService is the admin-facing channel surface plus the viewer registry
// consulted by the points engine and giveaway validators.
type ChannelService interface {
	Register(ctx context.Context, ownerID int64, req models.ChannelRegister) (*models.Channel, error)
	List(ctx context.Context, ownerID int64) ([]models.Channel, error)
	Get(ctx context.Context, ownerID, channelID int64) (*models.Channel, error)
	ListActive(ctx context.Context) ([]models.Channel, error)
	SetActive(ctx context.Context, ownerID, channelID int64, active bool) error

	Settings(ctx context.Context, channelID int64) (models.Settings, error)
	UpdateSettings(ctx context.Context, ownerID, channelID int64, update models.SettingsUpdate) error

	MarkFollower(ctx context.Context, channelID int64, userID string) error
	IsFollower(ctx context.Context, channelID int64, userID string) (bool, error)
	MarkSubscriber(ctx context.Context, channelID int64, userID string, tier int) error
	SubscriberTier(ctx context.Context, channelID int64, userID string) (int, bool, error)
}
