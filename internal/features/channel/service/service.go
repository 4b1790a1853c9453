package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	apperrors "streambot-backend/internal/common/errors"
	"streambot-backend/internal/common/logger"
	"streambot-backend/internal/features/channel/models"
	"streambot-backend/internal/features/channel/repository"
	"streambot-backend/internal/platform/kick"
	redisp "streambot-backend/internal/platform/redis"

	"github.com/rs/zerolog"
)

const settingsCacheTTL = 5 * time.Minute

func settingsCacheKey(channelID int64) string {
	return fmt.Sprintf("settings:%d", channelID)
}

type channelService struct {
	repo   repository.ChannelRepository
	oauth  *kick.OAuthClient
	kick   *kick.Client
	tokens TokenSaver
	rdb    *redisp.Client
	log    zerolog.Logger
}

// NewChannelService wires the channel service.
func NewChannelService(repo repository.ChannelRepository, oauth *kick.OAuthClient, kc *kick.Client, tokens TokenSaver, rdb *redisp.Client) ChannelService {
	return &channelService{
		repo:   repo,
		oauth:  oauth,
		kick:   kc,
		tokens: tokens,
		rdb:    rdb,
		log:    logger.Component("channel"),
	}
}

// Register exchanges the owner's OAuth code, resolves the platform channel and
// persists both the channel row and its encrypted token pair.
func (s *channelService) Register(ctx context.Context, ownerID int64, req models.ChannelRegister) (*models.Channel, error) {
	tr, err := s.oauth.ExchangeCode(ctx, req.OAuthCode, req.PKCEVerifier)
	if err != nil {
		return nil, err
	}

	info, err := s.kick.GetOwnChannel(ctx, tr.AccessToken)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	ch := &models.Channel{
		ExternalID:  info.ID,
		Slug:        info.Slug,
		DisplayName: info.DisplayName,
		OwnerUserID: ownerID,
		Platform:    models.PlatformKick,
		ChatroomID:  info.ChatroomID,
		Active:      true,
		CreatedAt:   now,
	}
	if err := s.repo.Create(ctx, ch); err != nil {
		return nil, err
	}

	if err := s.tokens.SaveTokens(ctx, ch.ID, tr.AccessToken, tr.RefreshToken, tr.ExpiresAt(now)); err != nil {
		return nil, err
	}

	for key, value := range settingsToMap(models.DefaultSettings()) {
		if err := s.repo.SetSetting(ctx, ch.ID, key, value); err != nil {
			return nil, err
		}
	}

	s.log.Info().Int64("channel_id", ch.ID).Str("slug", ch.Slug).Msg("Channel registered")
	return ch, nil
}

func (s *channelService) List(ctx context.Context, ownerID int64) ([]models.Channel, error) {
	return s.repo.ListByOwner(ctx, ownerID)
}

func (s *channelService) ListActive(ctx context.Context) ([]models.Channel, error) {
	return s.repo.ListActive(ctx)
}

// Get returns the channel after checking ownership.
func (s *channelService) Get(ctx context.Context, ownerID, channelID int64) (*models.Channel, error) {
	ch, err := s.repo.GetByID(ctx, channelID)
	if err != nil {
		return nil, err
	}
	if ch.OwnerUserID != ownerID {
		return nil, apperrors.NewPermissionDeniedError("channel belongs to another owner")
	}
	return ch, nil
}

func (s *channelService) SetActive(ctx context.Context, ownerID, channelID int64, active bool) error {
	if _, err := s.Get(ctx, ownerID, channelID); err != nil {
		return err
	}
	return s.repo.SetActive(ctx, channelID, active)
}

// Settings returns the channel's knobs, read through the redis cache.
func (s *channelService) Settings(ctx context.Context, channelID int64) (models.Settings, error) {
	if s.rdb != nil {
		if data, err := s.rdb.Get(ctx, settingsCacheKey(channelID)).Bytes(); err == nil {
			var cached models.Settings
			if json.Unmarshal(data, &cached) == nil {
				return cached, nil
			}
		}
	}

	raw, err := s.repo.GetSettings(ctx, channelID)
	if err != nil {
		return models.Settings{}, err
	}
	settings := settingsFromMap(raw)

	if s.rdb != nil {
		if data, err := json.Marshal(settings); err == nil {
			_ = s.rdb.Set(ctx, settingsCacheKey(channelID), data, settingsCacheTTL).Err()
		}
	}
	return settings, nil
}

// UpdateSettings writes the changed keys and invalidates the cache.
func (s *channelService) UpdateSettings(ctx context.Context, ownerID, channelID int64, update models.SettingsUpdate) error {
	if _, err := s.Get(ctx, ownerID, channelID); err != nil {
		return err
	}

	known := settingsToMap(models.DefaultSettings())
	for key, value := range update {
		if _, ok := known[key]; !ok {
			return apperrors.Newf(apperrors.ErrCodeValidation, "unknown setting %q", key)
		}
		if err := s.repo.SetSetting(ctx, channelID, key, value); err != nil {
			return err
		}
	}

	if s.rdb != nil {
		_ = s.rdb.Del(ctx, settingsCacheKey(channelID)).Err()
	}
	return nil
}

func (s *channelService) MarkFollower(ctx context.Context, channelID int64, userID string) error {
	return s.repo.MarkFollower(ctx, channelID, userID)
}

func (s *channelService) IsFollower(ctx context.Context, channelID int64, userID string) (bool, error) {
	return s.repo.IsFollower(ctx, channelID, userID)
}

func (s *channelService) MarkSubscriber(ctx context.Context, channelID int64, userID string, tier int) error {
	return s.repo.MarkSubscriber(ctx, channelID, userID, tier)
}

func (s *channelService) SubscriberTier(ctx context.Context, channelID int64, userID string) (int, bool, error) {
	return s.repo.SubscriberTier(ctx, channelID, userID)
}

func settingsToMap(st models.Settings) map[string]string {
	return map[string]string{
		"prefix":                st.Prefix,
		"welcomeMessage":        st.WelcomeMessage,
		"pointsPerMinute":       strconv.FormatInt(st.PointsPerMinute, 10),
		"pointsPerChatMessage":  strconv.FormatInt(st.PointsPerChatMessage, 10),
		"pointsPerFollow":       strconv.FormatInt(st.PointsPerFollow, 10),
		"pointsPerSubscription": strconv.FormatInt(st.PointsPerSubscription, 10),
		"pointsPerRaidViewer":   strconv.FormatInt(st.PointsPerRaidViewer, 10),
		"subscriberMultiplier":  strconv.FormatFloat(st.SubscriberMultiplier, 'f', -1, 64),
		"vipMultiplier":         strconv.FormatFloat(st.VIPMultiplier, 'f', -1, 64),
		"moderatorMultiplier":   strconv.FormatFloat(st.ModeratorMultiplier, 'f', -1, 64),
		"giveawayEntryKeyword":  st.GiveawayEntryKeyword,
	}
}

func settingsFromMap(raw map[string]string) models.Settings {
	st := models.DefaultSettings()
	if v, ok := raw["prefix"]; ok && v != "" {
		st.Prefix = v
	}
	if v, ok := raw["welcomeMessage"]; ok {
		st.WelcomeMessage = v
	}
	if v, ok := raw["giveawayEntryKeyword"]; ok && v != "" {
		st.GiveawayEntryKeyword = v
	}
	readInt := func(key string, dst *int64) {
		if v, ok := raw[key]; ok {
			if n, err := strconv.ParseInt(v, 10, 64); err == nil {
				*dst = n
			}
		}
	}
	readFloat := func(key string, dst *float64) {
		if v, ok := raw[key]; ok {
			if f, err := strconv.ParseFloat(v, 64); err == nil {
				*dst = f
			}
		}
	}
	readInt("pointsPerMinute", &st.PointsPerMinute)
	readInt("pointsPerChatMessage", &st.PointsPerChatMessage)
	readInt("pointsPerFollow", &st.PointsPerFollow)
	readInt("pointsPerSubscription", &st.PointsPerSubscription)
	readInt("pointsPerRaidViewer", &st.PointsPerRaidViewer)
	readFloat("subscriberMultiplier", &st.SubscriberMultiplier)
	readFloat("vipMultiplier", &st.VIPMultiplier)
	readFloat("moderatorMultiplier", &st.ModeratorMultiplier)
	return st
}
