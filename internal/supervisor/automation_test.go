package supervisor

import (
	"context"
	"testing"

	apperrors "streambot-backend/internal/common/errors"
	"streambot-backend/internal/features/channel/models"
	eventmodels "streambot-backend/internal/features/event/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type modCall struct {
	action     string
	externalID string
	userID     string
	duration   int
	reason     string
}

type fakeModerator struct {
	calls []modCall
}

func (f *fakeModerator) Ban(_ context.Context, _ int64, externalID, userID, reason string) error {
	f.calls = append(f.calls, modCall{action: "ban", externalID: externalID, userID: userID, reason: reason})
	return nil
}

func (f *fakeModerator) Timeout(_ context.Context, _ int64, externalID, userID string, durationSec int, reason string) error {
	f.calls = append(f.calls, modCall{action: "timeout", externalID: externalID, userID: userID, duration: durationSec, reason: reason})
	return nil
}

func newAutomationFixture() (*AutomationHandler, *recordingSender, *fakeModerator) {
	sender := &recordingSender{}
	mod := &fakeModerator{}
	dir := &memDirectory{channels: map[int64]*models.Channel{
		7: {ID: 7, ExternalID: "ext-7", Platform: models.PlatformKick, Active: true},
		8: {ID: 8, ExternalID: "yt-8", Platform: models.PlatformYouTube, Active: true},
	}}
	return NewAutomationHandler(sender, mod, dir), sender, mod
}

func automationEvent(channelID int64, payload map[string]string) eventmodels.ScheduledEvent {
	return eventmodels.ScheduledEvent{
		ID: 1, ChannelID: channelID, Type: eventmodels.TypeAutomation, Payload: payload,
	}
}

func TestAutomationMessageAction(t *testing.T) {
	h, sender, _ := newAutomationFixture()

	err := h.Handle(context.Background(), automationEvent(7, map[string]string{
		"message": "stream starts in 5 minutes",
	}))
	require.NoError(t, err)
	assert.Equal(t, []string{"stream starts in 5 minutes"}, sender.sent())
}

func TestAutomationMessageRequiresText(t *testing.T) {
	h, sender, _ := newAutomationFixture()

	err := h.Handle(context.Background(), automationEvent(7, map[string]string{}))
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeValidation, apperrors.CodeOf(err))
	assert.Empty(t, sender.sent())
}

func TestAutomationBanResolvesExternalID(t *testing.T) {
	h, _, mod := newAutomationFixture()

	err := h.Handle(context.Background(), automationEvent(7, map[string]string{
		"action": "ban", "user_id": "troll", "reason": "spam",
	}))
	require.NoError(t, err)
	require.Len(t, mod.calls, 1)
	assert.Equal(t, modCall{action: "ban", externalID: "ext-7", userID: "troll", reason: "spam"}, mod.calls[0])
}

func TestAutomationTimeoutParsesDuration(t *testing.T) {
	h, _, mod := newAutomationFixture()

	err := h.Handle(context.Background(), automationEvent(7, map[string]string{
		"action": "timeout", "user_id": "troll", "duration_seconds": "600",
	}))
	require.NoError(t, err)
	require.Len(t, mod.calls, 1)
	assert.Equal(t, 600, mod.calls[0].duration)

	err = h.Handle(context.Background(), automationEvent(7, map[string]string{
		"action": "timeout", "user_id": "troll", "duration_seconds": "soon",
	}))
	assert.Equal(t, apperrors.ErrCodeValidation, apperrors.CodeOf(err))
}

func TestAutomationModerationKickOnly(t *testing.T) {
	h, _, mod := newAutomationFixture()

	err := h.Handle(context.Background(), automationEvent(8, map[string]string{
		"action": "ban", "user_id": "troll",
	}))
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodePreconditionFailed, apperrors.CodeOf(err))
	assert.Empty(t, mod.calls)
}

func TestAutomationUnknownAction(t *testing.T) {
	h, _, _ := newAutomationFixture()

	err := h.Handle(context.Background(), automationEvent(7, map[string]string{"action": "explode"}))
	assert.Equal(t, apperrors.ErrCodeValidation, apperrors.CodeOf(err))
}
