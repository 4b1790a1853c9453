package repository

import (
	"context"

	"streambot-backend/internal/features/points/models"
)

// PointsRepository is the durable arbiter for viewer balances. Adjust is the
// only mutation path for points; concurrent callers for the same (channel,
// user) linearize on the row lock.
type PointsRepository interface {
	// Adjust adds delta (may be negative) and returns the new balance. A
	// change that would drive the balance below zero is rejected with
	// INSUFFICIENT_POINTS and leaves no state behind.
	Adjust(ctx context.Context, channelID int64, userID, username string, delta int64) (int64, error)
	AddWatchSeconds(ctx context.Context, channelID int64, userID string, seconds int64) error
	Get(ctx context.Context, channelID int64, userID string) (*models.Balance, error)
	Top(ctx context.Context, channelID int64, limit int) ([]models.Balance, error)
}
