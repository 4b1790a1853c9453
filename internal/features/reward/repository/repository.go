package repository

import (
	"context"

	"streambot-backend/internal/features/reward/models"
)

// RewardRepository persists the reward catalogue and redemptions.
type RewardRepository interface {
	Create(ctx context.Context, rw *models.Reward) error
	Update(ctx context.Context, rw *models.Reward) error
	Delete(ctx context.Context, channelID, rewardID int64) error
	GetByID(ctx context.Context, channelID, rewardID int64) (*models.Reward, error)
	ListByChannel(ctx context.Context, channelID int64) ([]models.Reward, error)
	// RecordRedemption debits the viewer's balance and inserts the redemption
	// row in one transaction. A balance below cost yields INSUFFICIENT_POINTS
	// and no state change.
	RecordRedemption(ctx context.Context, red *models.Redemption) error
	ListRedemptions(ctx context.Context, channelID int64, limit int) ([]models.Redemption, error)
}
