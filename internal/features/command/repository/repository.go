package repository

import (
	"context"

	"streambot-backend/internal/features/command/models"
)

// CommandRepository persists per-channel chat commands.
type CommandRepository interface {
	Create(ctx context.Context, cmd *models.Command) error
	Update(ctx context.Context, cmd *models.Command) error
	Delete(ctx context.Context, channelID int64, name string) error
	GetByName(ctx context.Context, channelID int64, name string) (*models.Command, error)
	ListByChannel(ctx context.Context, channelID int64) ([]models.Command, error)
	// AddUsage adds delta to the command's usage counter. Used by the
	// dispatcher's batched flush.
	AddUsage(ctx context.Context, channelID int64, name string, delta int64) error
}
