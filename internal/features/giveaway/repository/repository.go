package repository

import (
	"context"

	"streambot-backend/internal/features/giveaway/models"
)

// GiveawayRepository persists giveaways, entries and winners.
type GiveawayRepository interface {
	Create(ctx context.Context, g *models.Giveaway) error
	GetByID(ctx context.Context, id string) (*models.Giveaway, error)
	ListByChannel(ctx context.Context, channelID int64) ([]models.Giveaway, error)
	// ListByStatus returns every giveaway in the given state across channels;
	// the expiry sweep uses it.
	ListByStatus(ctx context.Context, status models.GiveawayStatus) ([]models.Giveaway, error)
	SetStatus(ctx context.Context, id string, status models.GiveawayStatus) error

	// ClaimEntry inserts the entry; a second claim by the same user yields
	// ALREADY_EXISTS.
	ClaimEntry(ctx context.Context, e *models.Entry) error
	// ReleaseEntry removes an entry whose requirement validation failed.
	ReleaseEntry(ctx context.Context, giveawayID, userID string) error
	ListEntries(ctx context.Context, giveawayID string) ([]models.Entry, error)

	// CompleteWithWinners records the winners and the completed status in one
	// transaction.
	CompleteWithWinners(ctx context.Context, giveawayID string, winners []models.Winner) error
	ListWinners(ctx context.Context, giveawayID string) ([]models.Winner, error)
}
