package supervisor

import (
	"context"
	"strconv"

	apperrors "streambot-backend/internal/common/errors"
	"streambot-backend/internal/common/logger"
	"streambot-backend/internal/features/channel/models"
	eventmodels "streambot-backend/internal/features/event/models"

	"github.com/rs/zerolog"
)

// Moderator is the moderation slice of the platform client.
type Moderator interface {
	Ban(ctx context.Context, channelID int64, externalID, userID, reason string) error
	Timeout(ctx context.Context, channelID int64, externalID, userID string, durationSec int, reason string) error
}

// AutomationHandler executes automation-typed scheduled events. The payload
// names the action: a chat line, a ban or a timeout.
type AutomationHandler struct {
	sender Sender
	mod    Moderator
	dir    ChannelDirectory
	log    zerolog.Logger
}

func NewAutomationHandler(sender Sender, mod Moderator, dir ChannelDirectory) *AutomationHandler {
	return &AutomationHandler{
		sender: sender,
		mod:    mod,
		dir:    dir,
		log:    logger.Component("automation"),
	}
}

// Handle runs one automation event. Unknown or incomplete payloads fail the
// event rather than being silently skipped.
func (h *AutomationHandler) Handle(ctx context.Context, ev eventmodels.ScheduledEvent) error {
	action := ev.Payload["action"]
	if action == "" {
		action = "message"
	}

	switch action {
	case "message":
		text := ev.Payload["message"]
		if text == "" {
			return apperrors.New(apperrors.ErrCodeValidation, "automation event carries no message")
		}
		return h.sender.SendChat(ctx, ev.ChannelID, text)

	case "ban":
		ch, userID, err := h.target(ctx, ev)
		if err != nil {
			return err
		}
		return h.mod.Ban(ctx, ev.ChannelID, ch.ExternalID, userID, ev.Payload["reason"])

	case "timeout":
		ch, userID, err := h.target(ctx, ev)
		if err != nil {
			return err
		}
		duration, err := strconv.Atoi(ev.Payload["duration_seconds"])
		if err != nil || duration <= 0 {
			return apperrors.New(apperrors.ErrCodeValidation, "automation timeout needs a positive duration_seconds")
		}
		return h.mod.Timeout(ctx, ev.ChannelID, ch.ExternalID, userID, duration, ev.Payload["reason"])

	default:
		return apperrors.Newf(apperrors.ErrCodeValidation, "unknown automation action %q", action)
	}
}

func (h *AutomationHandler) target(ctx context.Context, ev eventmodels.ScheduledEvent) (*models.Channel, string, error) {
	userID := ev.Payload["user_id"]
	if userID == "" {
		return nil, "", apperrors.New(apperrors.ErrCodeValidation, "automation moderation event carries no user_id")
	}
	ch, err := h.dir.GetByID(ctx, ev.ChannelID)
	if err != nil {
		return nil, "", err
	}
	if ch.Platform != models.PlatformKick {
		return nil, "", apperrors.NewPreconditionError("moderation actions are only available on kick channels")
	}
	return ch, userID, nil
}
