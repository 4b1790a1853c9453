package supervisor

import (
	"context"
	"sync"

	"streambot-backend/internal/common/logger"
	"streambot-backend/internal/features/channel/models"
	"streambot-backend/internal/platform/kick"

	"github.com/rs/zerolog"
)

// ChannelDirectory resolves a channel row without an ownership check. The
// supervisor and the chat sender operate on behalf of the runtime, not an
// admin request.
type ChannelDirectory interface {
	GetByID(ctx context.Context, id int64) (*models.Channel, error)
}

// KickSender delivers outbound chat lines through the Kick API. The platform
// call needs the channel's external id, so the sender resolves it once per
// channel and caches it.
type KickSender struct {
	kick *kick.Client
	dir  ChannelDirectory
	log  zerolog.Logger

	mu       sync.Mutex
	channels map[int64]*models.Channel
}

func NewKickSender(kc *kick.Client, dir ChannelDirectory) *KickSender {
	return &KickSender{
		kick:     kc,
		dir:      dir,
		log:      logger.Component("sender"),
		channels: make(map[int64]*models.Channel),
	}
}

func (s *KickSender) channel(ctx context.Context, channelID int64) (*models.Channel, error) {
	s.mu.Lock()
	ch, ok := s.channels[channelID]
	s.mu.Unlock()
	if ok {
		return ch, nil
	}

	ch, err := s.dir.GetByID(ctx, channelID)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.channels[channelID] = ch
	s.mu.Unlock()
	return ch, nil
}

// Forget drops the cached channel row, forcing a re-resolve on the next send.
func (s *KickSender) Forget(channelID int64) {
	s.mu.Lock()
	delete(s.channels, channelID)
	s.mu.Unlock()
}

// SendChat posts one message into the channel's chat. YouTube channels are
// read-only in this runtime; sends to them are dropped.
func (s *KickSender) SendChat(ctx context.Context, channelID int64, text string) error {
	ch, err := s.channel(ctx, channelID)
	if err != nil {
		return err
	}
	if ch.Platform != models.PlatformKick {
		s.log.Debug().Int64("channel_id", channelID).
			Str("platform", string(ch.Platform)).Msg("Dropping chat send for read-only platform")
		return nil
	}
	return s.kick.SendMessage(ctx, channelID, ch.ExternalID, text)
}
