package repository

import (
	"context"

	"streambot-backend/internal/features/token/models"
)

// TokenRepository persists the encrypted token pair per channel.
type TokenRepository interface {
	Get(ctx context.Context, channelID int64) (*models.TokenRecord, error)
	Save(ctx context.Context, rec *models.TokenRecord) error
}
