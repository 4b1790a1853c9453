// Package service contains the redemption arbiter and the admin-facing
// reward service.
package service

import (
	"context"
	"sync"
	"time"

	apperrors "streambot-backend/internal/common/errors"
	"streambot-backend/internal/common/logger"
	"streambot-backend/internal/features/reward/models"
	"streambot-backend/internal/features/reward/repository"
	"streambot-backend/internal/ingress"

	"github.com/rs/zerolog"
)

// SubscriberRegistry answers whether a viewer is a known subscriber when the
// redeem call carries no roles.
type SubscriberRegistry interface {
	SubscriberTier(ctx context.Context, channelID int64, userID string) (int, bool, error)
}

type rewardCounters struct {
	count            int
	perUser          map[string]int
	lastRedemptionAt time.Time
}

// channelRewards is one channel's catalogue and per-stream counters. Each
// channel carries its own lock so redemptions in one channel never wait on
// another's store write.
type channelRewards struct {
	mu        sync.Mutex
	catalogue map[int64]models.Reward
	counters  map[int64]*rewardCounters
}

// Arbiter validates redemptions against the reward catalogue and per-stream
// counters, then records them through the store's atomic debit.
type Arbiter struct {
	repo        repository.RewardRepository
	subscribers SubscriberRegistry
	log         zerolog.Logger
	nowFunc     func() time.Time

	mu       sync.Mutex
	channels map[int64]*channelRewards
}

// NewArbiter wires the arbiter. subscribers may be nil; subscriber-only
// rewards then rely on the roles passed to Redeem.
func NewArbiter(repo repository.RewardRepository, subscribers SubscriberRegistry) *Arbiter {
	return &Arbiter{
		repo:        repo,
		subscribers: subscribers,
		log:         logger.Component("rewards"),
		nowFunc:     time.Now,
		channels:    make(map[int64]*channelRewards),
	}
}

// stateFor returns the channel's state, creating it on first use.
func (a *Arbiter) stateFor(channelID int64) *channelRewards {
	a.mu.Lock()
	defer a.mu.Unlock()
	st, ok := a.channels[channelID]
	if !ok {
		st = &channelRewards{
			catalogue: make(map[int64]models.Reward),
			counters:  make(map[int64]*rewardCounters),
		}
		a.channels[channelID] = st
	}
	return st
}

// Load reads the channel's catalogue into memory. Called on channel
// activation and by Reload after admin edits.
func (a *Arbiter) Load(ctx context.Context, channelID int64) error {
	rewards, err := a.repo.ListByChannel(ctx, channelID)
	if err != nil {
		return err
	}
	table := make(map[int64]models.Reward, len(rewards))
	for _, rw := range rewards {
		table[rw.ID] = rw
	}
	st := a.stateFor(channelID)
	st.mu.Lock()
	st.catalogue = table
	st.mu.Unlock()
	return nil
}

// Reload is the invalidation signal from the admin layer.
func (a *Arbiter) Reload(ctx context.Context, channelID int64) error {
	return a.Load(ctx, channelID)
}

// Unload drops the channel's in-memory state.
func (a *Arbiter) Unload(channelID int64) {
	a.mu.Lock()
	delete(a.channels, channelID)
	a.mu.Unlock()
}

// OnStreamStart resets every per-stream counter for the channel.
func (a *Arbiter) OnStreamStart(channelID int64) {
	st := a.stateFor(channelID)
	st.mu.Lock()
	st.counters = make(map[int64]*rewardCounters)
	st.mu.Unlock()
}

// Redeem validates a redemption and records it. Checks run in a fixed order;
// the first failure returns its reason and leaves no state behind. Redeems
// for the same channel serialize so racing callers see each other's counter
// bumps; redeems for different channels run independently.
func (a *Arbiter) Redeem(ctx context.Context, channelID int64, userID, username string, rewardID int64, roles []ingress.Role) (*models.Redemption, error) {
	st := a.stateFor(channelID)
	st.mu.Lock()
	defer st.mu.Unlock()

	rw, ok := st.catalogue[rewardID]
	if !ok {
		return nil, apperrors.NewNotFoundError("reward", rewardID)
	}
	if !rw.Enabled {
		return nil, apperrors.NewPreconditionError("reward is disabled")
	}

	now := a.nowFunc()
	counters := st.countersFor(rewardID)
	if rw.CooldownSeconds > 0 && !counters.lastRedemptionAt.IsZero() &&
		now.Sub(counters.lastRedemptionAt) < time.Duration(rw.CooldownSeconds)*time.Second {
		return nil, apperrors.NewPreconditionError("reward is on cooldown")
	}
	if rw.MaxPerStream > 0 && counters.count >= rw.MaxPerStream {
		return nil, apperrors.NewPreconditionError("reward limit for this stream reached")
	}
	if rw.MaxPerUserPerStream > 0 && counters.perUser[userID] >= rw.MaxPerUserPerStream {
		return nil, apperrors.NewPreconditionError("your redemption limit for this stream is reached")
	}
	if err := a.checkRoles(ctx, channelID, userID, rw, roles); err != nil {
		return nil, err
	}

	red := &models.Redemption{
		RewardID:   rewardID,
		ChannelID:  channelID,
		UserID:     userID,
		Username:   username,
		Cost:       rw.Cost,
		RedeemedAt: now,
	}
	if err := a.repo.RecordRedemption(ctx, red); err != nil {
		return nil, err
	}

	counters.count++
	counters.perUser[userID]++
	counters.lastRedemptionAt = now

	a.log.Info().Int64("channel_id", channelID).Int64("reward_id", rewardID).
		Str("user_id", userID).Int64("cost", rw.Cost).Msg("Reward redeemed")
	return red, nil
}

// checkRoles enforces the role requirements. When both flags are set the
// user must satisfy both.
func (a *Arbiter) checkRoles(ctx context.Context, channelID int64, userID string, rw models.Reward, roles []ingress.Role) error {
	if rw.SubscriberOnly {
		subscribed := hasRole(roles, ingress.RoleSubscriber)
		if !subscribed && a.subscribers != nil {
			_, known, err := a.subscribers.SubscriberTier(ctx, channelID, userID)
			if err != nil {
				return err
			}
			subscribed = known
		}
		if !subscribed {
			return apperrors.NewPreconditionError("reward is for subscribers only")
		}
	}
	if rw.ModeratorOnly && !hasRole(roles, ingress.RoleModerator) && !hasRole(roles, ingress.RoleOwner) {
		return apperrors.NewPreconditionError("reward is for moderators only")
	}
	return nil
}

// countersFor returns the reward's counters; the caller holds st.mu.
func (st *channelRewards) countersFor(rewardID int64) *rewardCounters {
	counters, ok := st.counters[rewardID]
	if !ok {
		counters = &rewardCounters{perUser: make(map[string]int)}
		st.counters[rewardID] = counters
	}
	return counters
}

func hasRole(roles []ingress.Role, want ingress.Role) bool {
	for _, r := range roles {
		if r == want {
			return true
		}
	}
	return false
}
