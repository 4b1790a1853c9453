package ingress

import (
	"context"
	"time"

	"streambot-backend/internal/common/logger"
	"streambot-backend/internal/platform/youtube"

	"github.com/rs/zerolog"
)

// dedupCapacity bounds the remembered external message ids. Must stay >= 1000
// to keep dedup correct across a full polling window under normal load.
const dedupCapacity = 1024

// ChatPoller is the slice of the YouTube client the poll ingress consumes.
type ChatPoller interface {
	ListLiveChatMessages(ctx context.Context, liveChatID, pageToken string) (*youtube.MessagePage, error)
}

// PollIngress adapts the YouTube live-chat polling endpoint to the Ingress
// interface. Each cycle fetches the current page, drops already-seen message
// ids, and emits the delta. The poll cadence honors the server-suggested
// interval when present.
type PollIngress struct {
	channelID  int64
	liveChatID string
	poller     ChatPoller
	interval   time.Duration

	events    chan Event
	dedup     *dedupWindow
	pageToken string
	log       zerolog.Logger
}

// NewPollIngress creates a polling ingress for a channel's live chat.
func NewPollIngress(channelID int64, liveChatID string, poller ChatPoller, defaultInterval time.Duration) *PollIngress {
	if defaultInterval <= 0 {
		defaultInterval = 10 * time.Second
	}
	return &PollIngress{
		channelID:  channelID,
		liveChatID: liveChatID,
		poller:     poller,
		interval:   defaultInterval,
		events:     make(chan Event, 64),
		dedup:      newDedupWindow(dedupCapacity),
		log:        logger.Component("ingress.poll").With().Int64("channel_id", channelID).Logger(),
	}
}

// Events returns the channel on which normalized events are delivered.
func (p *PollIngress) Events() <-chan Event {
	return p.events
}

// Run polls until the context is cancelled. Poll failures are logged and the
// loop continues at the next cadence.
func (p *PollIngress) Run(ctx context.Context) error {
	defer close(p.events)

	wait := time.Duration(0) // first poll immediately
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}

		wait = p.interval
		page, err := p.poller.ListLiveChatMessages(ctx, p.liveChatID, p.pageToken)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			p.log.Warn().Err(err).Msg("Live chat poll failed")
			continue
		}

		p.pageToken = page.NextPageToken
		if page.PollingAfter > 0 {
			wait = page.PollingAfter
		}

		for _, msg := range page.Messages {
			if p.dedup.Observe(msg.ID) {
				continue
			}
			ev := Event{
				Kind:       KindMessage,
				ChannelID:  p.channelID,
				UserID:     msg.AuthorID,
				Username:   msg.AuthorName,
				Text:       msg.Text,
				Roles:      rolesFromAuthor(msg),
				ReceivedAt: time.Now(),
			}
			select {
			case p.events <- ev:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
}

func rolesFromAuthor(msg youtube.ChatMessage) []Role {
	var roles []Role
	if msg.IsSponsor {
		roles = append(roles, RoleSubscriber)
	}
	if msg.IsModerator {
		roles = append(roles, RoleModerator)
	}
	if msg.IsOwner {
		roles = append(roles, RoleOwner)
	}
	return roles
}
