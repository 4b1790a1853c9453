// Package notify delivers templated notifications to channels. The chat
// implementation renders a template and posts it to each channel's chat;
// the log implementation is the fallback when no chat sender is available.
package notify

import (
	"context"
	"strings"

	"streambot-backend/internal/common/logger"

	"github.com/rs/zerolog"
)

// Notifier fans a templated notification out to channels.
type Notifier interface {
	Notify(ctx context.Context, templateID string, channelIDs []int64, data map[string]string) error
}

// ChatSender posts one line to a channel's chat.
type ChatSender interface {
	SendChat(ctx context.Context, channelID int64, text string) error
}

// Template ids used across the runtime.
const (
	TemplateEventReminder     = "event_reminder"
	TemplateEventStarted      = "event_started"
	TemplateGiveawayStarted   = "giveaway_started"
	TemplateGiveawayWinners   = "giveaway_winners"
	TemplateGiveawayNoEntries = "giveaway_no_entries"
	TemplateEntryRejected     = "entry_rejected"
	TemplateWelcome           = "welcome"
)

var templates = map[string]string{
	TemplateEventReminder:     "Reminder: {title} starts in {lead}.",
	TemplateEventStarted:      "{title} is starting now!",
	TemplateGiveawayStarted:   "A giveaway has started: {title}. Type {keyword} to enter!",
	TemplateGiveawayWinners:   "Giveaway \"{title}\" has ended. Winners: {winners}. Congratulations!",
	TemplateGiveawayNoEntries: "Giveaway \"{title}\" has ended with no entries.",
	TemplateEntryRejected:     "@{user} your entry was not counted: {reason}",
	TemplateWelcome:           "{message}",
}

// ChatNotifier renders notifications into chat lines. Delivery is
// best-effort per channel; the first error is returned after all channels
// were attempted.
type ChatNotifier struct {
	sender ChatSender
	log    zerolog.Logger
}

func NewChatNotifier(sender ChatSender) *ChatNotifier {
	return &ChatNotifier{sender: sender, log: logger.Component("notify")}
}

func (n *ChatNotifier) Notify(ctx context.Context, templateID string, channelIDs []int64, data map[string]string) error {
	text := Render(templateID, data)
	var firstErr error
	for _, channelID := range channelIDs {
		if err := n.sender.SendChat(ctx, channelID, text); err != nil {
			n.log.Warn().Int64("channel_id", channelID).Str("template", templateID).Err(err).
				Msg("Notification delivery failed")
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// Render substitutes {key} placeholders into the template. Unknown template
// ids render as "templateID" plus the raw data values so nothing is silently
// dropped.
func Render(templateID string, data map[string]string) string {
	tpl, ok := templates[templateID]
	if !ok {
		parts := []string{templateID}
		for _, v := range data {
			parts = append(parts, v)
		}
		return strings.Join(parts, " ")
	}
	pairs := make([]string, 0, len(data)*2)
	for k, v := range data {
		pairs = append(pairs, "{"+k+"}", v)
	}
	return strings.NewReplacer(pairs...).Replace(tpl)
}

// LogNotifier writes notifications to the log only.
type LogNotifier struct {
	log zerolog.Logger
}

func NewLogNotifier() *LogNotifier {
	return &LogNotifier{log: logger.Component("notify")}
}

func (n *LogNotifier) Notify(_ context.Context, templateID string, channelIDs []int64, data map[string]string) error {
	n.log.Info().Str("template", templateID).Ints64("channel_ids", channelIDs).
		Str("text", Render(templateID, data)).Msg("Notification")
	return nil
}
