// Package service holds the points ledger and the accrual engine.
package service

import (
	"context"
	"fmt"

	"streambot-backend/internal/common/logger"
	"streambot-backend/internal/features/points/models"
	"streambot-backend/internal/features/points/repository"
	redisp "streambot-backend/internal/platform/redis"

	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

func leaderboardKey(channelID int64) string {
	return fmt.Sprintf("points:lb:%d", channelID)
}

// Ledger is the single write path for viewer balances. It mirrors every new
// balance into the redis leaderboard; the store stays authoritative.
type Ledger struct {
	repo repository.PointsRepository
	rdb  *redisp.Client
	log  zerolog.Logger
}

// NewLedger wires the ledger. rdb may be nil; leaderboard reads then fall
// back to the store.
func NewLedger(repo repository.PointsRepository, rdb *redisp.Client) *Ledger {
	return &Ledger{repo: repo, rdb: rdb, log: logger.Component("points")}
}

// Adjust applies a delta and returns the new balance.
func (l *Ledger) Adjust(ctx context.Context, channelID int64, userID, username string, delta int64) (int64, error) {
	balance, err := l.repo.Adjust(ctx, channelID, userID, username, delta)
	if err != nil {
		return 0, err
	}
	if l.rdb != nil {
		if err := l.rdb.ZAdd(ctx, leaderboardKey(channelID), goredis.Z{
			Score:  float64(balance),
			Member: userID,
		}).Err(); err != nil {
			l.log.Warn().Int64("channel_id", channelID).Err(err).Msg("Leaderboard update failed")
		}
	}
	return balance, nil
}

// AddWatchSeconds accumulates watch time.
func (l *Ledger) AddWatchSeconds(ctx context.Context, channelID int64, userID string, seconds int64) error {
	return l.repo.AddWatchSeconds(ctx, channelID, userID, seconds)
}

// Balance returns the viewer's current balance.
func (l *Ledger) Balance(ctx context.Context, channelID int64, userID string) (*models.Balance, error) {
	return l.repo.Get(ctx, channelID, userID)
}

// Top returns the channel leaderboard, preferring the redis sorted set and
// falling back to the store.
func (l *Ledger) Top(ctx context.Context, channelID int64, limit int) ([]models.LeaderboardEntry, error) {
	if l.rdb != nil {
		zs, err := l.rdb.ZRevRangeWithScores(ctx, leaderboardKey(channelID), 0, int64(limit-1)).Result()
		if err == nil && len(zs) > 0 {
			out := make([]models.LeaderboardEntry, 0, len(zs))
			for _, z := range zs {
				userID, _ := z.Member.(string)
				out = append(out, models.LeaderboardEntry{UserID: userID, Points: int64(z.Score)})
			}
			return out, nil
		}
	}

	balances, err := l.repo.Top(ctx, channelID, limit)
	if err != nil {
		return nil, err
	}
	out := make([]models.LeaderboardEntry, 0, len(balances))
	for _, b := range balances {
		out = append(out, models.LeaderboardEntry{UserID: b.UserID, Username: b.Username, Points: b.Points})
	}
	return out, nil
}
