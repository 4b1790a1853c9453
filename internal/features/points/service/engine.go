package service

import (
	"context"
	"math"
	"sync"
	"time"

	"streambot-backend/internal/common/logger"
	channelmodels "streambot-backend/internal/features/channel/models"
	"streambot-backend/internal/ingress"

	"github.com/rs/zerolog"
)

const (
	// activeWindow is how long after their last chat line a viewer keeps
	// earning minute-based points.
	activeWindow = 600 * time.Second

	// tickSeconds is the watch-time credit per accrual tick.
	tickSeconds = 60
)

// SettingsProvider exposes the channel settings the engine reads every tick.
type SettingsProvider interface {
	Settings(ctx context.Context, channelID int64) (channelmodels.Settings, error)
}

type viewer struct {
	username string
	roles    []ingress.Role
	lastSeen time.Time
}

type channelAccrual struct {
	live   bool
	active map[string]*viewer
}

// Engine accrues points from chat activity and lifecycle events. One engine
// serves all channels; per-channel state is keyed by channel id and only
// mutated from the supervisor's sequential event routing plus the tick loop.
type Engine struct {
	ledger   *Ledger
	settings SettingsProvider
	log      zerolog.Logger
	nowFunc  func() time.Time

	mu    sync.Mutex
	state map[int64]*channelAccrual
}

// NewEngine wires the accrual engine.
func NewEngine(ledger *Ledger, settings SettingsProvider) *Engine {
	return &Engine{
		ledger:   ledger,
		settings: settings,
		log:      logger.Component("points"),
		nowFunc:  time.Now,
		state:    make(map[int64]*channelAccrual),
	}
}

func (e *Engine) channel(channelID int64) *channelAccrual {
	st, ok := e.state[channelID]
	if !ok {
		st = &channelAccrual{active: make(map[string]*viewer)}
		e.state[channelID] = st
	}
	return st
}

// Unload drops the channel's in-memory accrual state.
func (e *Engine) Unload(channelID int64) {
	e.mu.Lock()
	delete(e.state, channelID)
	e.mu.Unlock()
}

// OnEvent applies event-driven grants and tracks viewer activity.
func (e *Engine) OnEvent(ctx context.Context, ev ingress.Event) {
	settings, err := e.settings.Settings(ctx, ev.ChannelID)
	if err != nil {
		e.log.Error().Int64("channel_id", ev.ChannelID).Err(err).Msg("Settings lookup failed")
		return
	}

	switch ev.Kind {
	case ingress.KindStreamStart:
		e.mu.Lock()
		e.channel(ev.ChannelID).live = true
		e.mu.Unlock()

	case ingress.KindStreamEnd:
		e.mu.Lock()
		e.channel(ev.ChannelID).live = false
		e.mu.Unlock()

	case ingress.KindMessage:
		e.mu.Lock()
		st := e.channel(ev.ChannelID)
		st.active[ev.UserID] = &viewer{username: ev.Username, roles: ev.Roles, lastSeen: ev.ReceivedAt}
		e.mu.Unlock()
		e.grant(ctx, ev.ChannelID, ev.UserID, ev.Username,
			scaled(settings.PointsPerChatMessage, multiplierFor(ev.Roles, settings)))

	case ingress.KindFollow:
		e.grant(ctx, ev.ChannelID, ev.UserID, ev.Username, settings.PointsPerFollow)

	case ingress.KindSubscribe:
		e.grant(ctx, ev.ChannelID, ev.UserID, ev.Username, settings.PointsPerSubscription)

	case ingress.KindRaid:
		e.grant(ctx, ev.ChannelID, ev.RaiderUserID, ev.RaiderUsername,
			settings.PointsPerRaidViewer*int64(ev.ViewerCount))
	}
}

// Tick runs one accrual pass for the channel. Idle between StreamEnd and the
// next StreamStart.
func (e *Engine) Tick(ctx context.Context, channelID int64) {
	settings, err := e.settings.Settings(ctx, channelID)
	if err != nil {
		e.log.Error().Int64("channel_id", channelID).Err(err).Msg("Settings lookup failed")
		return
	}

	now := e.nowFunc()
	e.mu.Lock()
	st := e.channel(channelID)
	if !st.live {
		e.mu.Unlock()
		return
	}
	type grantee struct {
		userID   string
		username string
		amount   int64
	}
	grants := make([]grantee, 0, len(st.active))
	for userID, v := range st.active {
		if now.Sub(v.lastSeen) >= activeWindow {
			delete(st.active, userID)
			continue
		}
		grants = append(grants, grantee{
			userID:   userID,
			username: v.username,
			amount:   scaled(settings.PointsPerMinute, multiplierFor(v.roles, settings)),
		})
	}
	e.mu.Unlock()

	for _, g := range grants {
		e.grant(ctx, channelID, g.userID, g.username, g.amount)
		if err := e.ledger.AddWatchSeconds(ctx, channelID, g.userID, tickSeconds); err != nil {
			e.log.Error().Int64("channel_id", channelID).Str("user_id", g.userID).Err(err).
				Msg("Watch time credit failed")
		}
	}
}

func (e *Engine) grant(ctx context.Context, channelID int64, userID, username string, amount int64) {
	if amount <= 0 || userID == "" {
		return
	}
	if _, err := e.ledger.Adjust(ctx, channelID, userID, username, amount); err != nil {
		e.log.Error().Int64("channel_id", channelID).Str("user_id", userID).Err(err).
			Msg("Points grant failed")
	}
}

func scaled(base int64, multiplier float64) int64 {
	return int64(math.Floor(float64(base) * multiplier))
}

// multiplierFor picks the multiplier of the highest multiplier-bearing role
// held; viewers without one earn at 1.0.
func multiplierFor(roles []ingress.Role, settings channelmodels.Settings) float64 {
	multiplier := 1.0
	rank := -1
	for _, r := range roles {
		switch {
		case r == ingress.RoleModerator && rank < 2:
			multiplier, rank = settings.ModeratorMultiplier, 2
		case r == ingress.RoleVIP && rank < 1:
			multiplier, rank = settings.VIPMultiplier, 1
		case r == ingress.RoleSubscriber && rank < 0:
			multiplier, rank = settings.SubscriberMultiplier, 0
		}
	}
	return multiplier
}
