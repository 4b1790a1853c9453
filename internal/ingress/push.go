package ingress

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"streambot-backend/internal/common/logger"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/rs/zerolog"
)

const (
	reconnectBaseDelay = 1 * time.Second
	reconnectMaxDelay  = 60 * time.Second
)

// PushIngress consumes the Kick chatroom websocket for one channel and emits
// normalized events. On connection loss it reconnects with exponential backoff
// capped at 60s; events at or before the last delivered timestamp are not
// re-emitted after a reconnect.
type PushIngress struct {
	channelID  int64
	chatroomID string
	wsURL      string

	events chan Event
	log    zerolog.Logger

	lastDelivered time.Time
}

// NewPushIngress creates a push ingress for a channel's chatroom.
func NewPushIngress(channelID int64, chatroomID, wsURL string) *PushIngress {
	return &PushIngress{
		channelID:  channelID,
		chatroomID: chatroomID,
		wsURL:      wsURL,
		events:     make(chan Event, 64),
		log:        logger.Component("ingress.push").With().Int64("channel_id", channelID).Logger(),
	}
}

// Events returns the channel on which normalized events are delivered.
func (p *PushIngress) Events() <-chan Event {
	return p.events
}

// Run connects and reads until the context is cancelled.
func (p *PushIngress) Run(ctx context.Context) error {
	defer close(p.events)

	delay := reconnectBaseDelay
	for {
		err := p.connectAndRead(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}

		p.log.Warn().Err(err).Dur("retry_in", delay).Msg("Chat connection lost, reconnecting")
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
		if delay > reconnectMaxDelay {
			delay = reconnectMaxDelay
		}
	}
}

func (p *PushIngress) connectAndRead(ctx context.Context) error {
	conn, _, err := websocket.Dial(ctx, p.wsURL, &websocket.DialOptions{})
	if err != nil {
		return fmt.Errorf("dialing chat server: %w", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "closing")

	conn.SetReadLimit(128 << 10) // 128 KB

	sub := map[string]string{"event": "subscribe", "chatroom_id": p.chatroomID}
	if err := wsjson.Write(ctx, conn, sub); err != nil {
		return fmt.Errorf("subscribing to chatroom: %w", err)
	}

	p.log.Debug().Str("chatroom_id", p.chatroomID).Msg("Chat connection established")

	for {
		var f frame
		if err := wsjson.Read(ctx, conn, &f); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("read error: %w", err)
		}
		p.handleFrame(ctx, &f)
	}
}

type frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

type messageData struct {
	Sender struct {
		UserID   string   `json:"user_id"`
		Username string   `json:"username"`
		Badges   []string `json:"badges"`
	} `json:"sender"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

type followData struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
}

type subscribeData struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
	Tier     int    `json:"tier"`
}

type raidData struct {
	HostUserID   string `json:"host_user_id"`
	HostUsername string `json:"host_username"`
	ViewerCount  int    `json:"number_viewers"`
}

func (p *PushIngress) handleFrame(ctx context.Context, f *frame) {
	now := time.Now()

	switch f.Event {
	case "chat.message.sent":
		var d messageData
		if err := json.Unmarshal(f.Data, &d); err != nil {
			p.log.Error().Err(err).Msg("Failed to parse chat message")
			return
		}
		// Reconnects replay recent history; drop anything already delivered.
		if !d.CreatedAt.IsZero() && !d.CreatedAt.After(p.lastDelivered) {
			return
		}
		if !d.CreatedAt.IsZero() {
			p.lastDelivered = d.CreatedAt
		}
		p.emit(ctx, Event{
			Kind:       KindMessage,
			ChannelID:  p.channelID,
			UserID:     d.Sender.UserID,
			Username:   d.Sender.Username,
			Text:       d.Content,
			Roles:      rolesFromBadges(d.Sender.Badges),
			ReceivedAt: now,
		})

	case "channel.followed":
		var d followData
		if err := json.Unmarshal(f.Data, &d); err != nil {
			p.log.Error().Err(err).Msg("Failed to parse follow event")
			return
		}
		p.emit(ctx, Event{Kind: KindFollow, ChannelID: p.channelID,
			UserID: d.UserID, Username: d.Username, ReceivedAt: now})

	case "channel.subscribed":
		var d subscribeData
		if err := json.Unmarshal(f.Data, &d); err != nil {
			p.log.Error().Err(err).Msg("Failed to parse subscribe event")
			return
		}
		p.emit(ctx, Event{Kind: KindSubscribe, ChannelID: p.channelID,
			UserID: d.UserID, Username: d.Username, Tier: d.Tier, ReceivedAt: now})

	case "channel.raided":
		var d raidData
		if err := json.Unmarshal(f.Data, &d); err != nil {
			p.log.Error().Err(err).Msg("Failed to parse raid event")
			return
		}
		p.emit(ctx, Event{Kind: KindRaid, ChannelID: p.channelID,
			RaiderUserID: d.HostUserID, RaiderUsername: d.HostUsername,
			ViewerCount: d.ViewerCount, ReceivedAt: now})

	case "livestream.started":
		p.emit(ctx, Event{Kind: KindStreamStart, ChannelID: p.channelID, ReceivedAt: now})

	case "livestream.stopped":
		p.emit(ctx, Event{Kind: KindStreamEnd, ChannelID: p.channelID, ReceivedAt: now})

	default:
		p.log.Debug().Str("event", f.Event).Msg("Ignoring unknown frame")
	}
}

func (p *PushIngress) emit(ctx context.Context, ev Event) {
	select {
	case p.events <- ev:
	case <-ctx.Done():
	}
}

func rolesFromBadges(badges []string) []Role {
	var roles []Role
	for _, b := range badges {
		switch b {
		case "subscriber":
			roles = append(roles, RoleSubscriber)
		case "vip":
			roles = append(roles, RoleVIP)
		case "moderator":
			roles = append(roles, RoleModerator)
		case "broadcaster":
			roles = append(roles, RoleOwner)
		}
	}
	return roles
}
