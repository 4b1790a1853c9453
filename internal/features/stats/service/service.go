// Package service aggregates per-channel statistics: points leaderboard,
// command usage and hourly chat activity.
package service

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"streambot-backend/internal/common/logger"
	channelmodels "streambot-backend/internal/features/channel/models"
	commandrepo "streambot-backend/internal/features/command/repository"
	pointsmodels "streambot-backend/internal/features/points/models"
	redisp "streambot-backend/internal/platform/redis"

	"github.com/rs/zerolog"
)

// activityTTL keeps hourly counters for a week.
const activityTTL = 7 * 24 * time.Hour

// ChannelAccess is the ownership check borrowed from the channel service.
type ChannelAccess interface {
	Get(ctx context.Context, ownerID, channelID int64) (*channelmodels.Channel, error)
}

// Leaderboard exposes the points leaderboard from the ledger.
type Leaderboard interface {
	Top(ctx context.Context, channelID int64, limit int) ([]pointsmodels.LeaderboardEntry, error)
}

func activityKey(channelID int64, day time.Time) string {
	return fmt.Sprintf("activity:%d:%s", channelID, day.UTC().Format("2006-01-02"))
}

func usageKey(channelID int64) string {
	return fmt.Sprintf("cmdusage:%d", channelID)
}

// StatsService serves channel statistics to the admin API and records the
// hourly activity counters the supervisor feeds it.
type StatsService struct {
	channels    ChannelAccess
	leaderboard Leaderboard
	commands    commandrepo.CommandRepository
	rdb         *redisp.Client
	log         zerolog.Logger
}

// NewStatsService wires the stats service. rdb may be nil; activity tracking
// is then disabled and command usage reads from the store.
func NewStatsService(channels ChannelAccess, leaderboard Leaderboard, commands commandrepo.CommandRepository, rdb *redisp.Client) *StatsService {
	return &StatsService{
		channels:    channels,
		leaderboard: leaderboard,
		commands:    commands,
		rdb:         rdb,
		log:         logger.Component("stats"),
	}
}

// RecordActivity bumps the hour bucket for one chat message. Best-effort.
func (s *StatsService) RecordActivity(ctx context.Context, channelID int64, at time.Time) {
	if s.rdb == nil {
		return
	}
	key := activityKey(channelID, at)
	if err := s.rdb.HIncrBy(ctx, key, strconv.Itoa(at.UTC().Hour()), 1).Err(); err != nil {
		s.log.Warn().Int64("channel_id", channelID).Err(err).Msg("Activity bump failed")
		return
	}
	_ = s.rdb.Expire(ctx, key, activityTTL).Err()
}

// TopPoints returns the channel's points leaderboard.
func (s *StatsService) TopPoints(ctx context.Context, ownerID, channelID int64, limit int) ([]pointsmodels.LeaderboardEntry, error) {
	if _, err := s.channels.Get(ctx, ownerID, channelID); err != nil {
		return nil, err
	}
	if limit <= 0 || limit > 100 {
		limit = 10
	}
	return s.leaderboard.Top(ctx, channelID, limit)
}

// CommandUsage returns usage counts per command, preferring the live redis
// counters and falling back to the store's flushed totals.
func (s *StatsService) CommandUsage(ctx context.Context, ownerID, channelID int64) (map[string]int64, error) {
	if _, err := s.channels.Get(ctx, ownerID, channelID); err != nil {
		return nil, err
	}

	if s.rdb != nil {
		if counts, err := s.rdb.HGetAll(ctx, usageKey(channelID)).Result(); err == nil && len(counts) > 0 {
			out := make(map[string]int64, len(counts))
			for name, raw := range counts {
				if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
					out[name] = n
				}
			}
			return out, nil
		}
	}

	cmds, err := s.commands.ListByChannel(ctx, channelID)
	if err != nil {
		return nil, err
	}
	out := make(map[string]int64, len(cmds))
	for _, cmd := range cmds {
		out[cmd.Name] = cmd.UsageCount
	}
	return out, nil
}

// HourlyActivity returns the chat message count per hour for one day.
func (s *StatsService) HourlyActivity(ctx context.Context, ownerID, channelID int64, day time.Time) (map[int]int64, error) {
	if _, err := s.channels.Get(ctx, ownerID, channelID); err != nil {
		return nil, err
	}
	out := make(map[int]int64)
	if s.rdb == nil {
		return out, nil
	}
	counts, err := s.rdb.HGetAll(ctx, activityKey(channelID, day)).Result()
	if err != nil {
		return nil, err
	}
	for hourStr, raw := range counts {
		hour, err := strconv.Atoi(hourStr)
		if err != nil {
			continue
		}
		if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
			out[hour] = n
		}
	}
	return out, nil
}
