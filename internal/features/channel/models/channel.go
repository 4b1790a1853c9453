package models

import "time"

// Platform identifies which streaming platform a channel lives on.
type Platform string

const (
	PlatformKick    Platform = "kick"
	PlatformYouTube Platform = "youtube"
)

// Channel is a registered streaming destination managed for an owner.
// Channels are soft-disabled via Active rather than deleted while the owner
// account exists.
type Channel struct {
	ID          int64     `json:"id"`
	ExternalID  string    `json:"external_id"`
	Slug        string    `json:"slug"`
	DisplayName string    `json:"display_name"`
	OwnerUserID int64     `json:"owner_user_id"`
	Platform    Platform  `json:"platform"`
	ChatroomID  string    `json:"chatroom_id,omitempty"`
	LiveChatID  string    `json:"live_chat_id,omitempty"`
	Active      bool      `json:"active"`
	CreatedAt   time.Time `json:"created_at"`
}

// Settings are the per-channel knobs stored in the settings key/value table.
type Settings struct {
	Prefix                string  `json:"prefix"`
	WelcomeMessage        string  `json:"welcome_message"`
	PointsPerMinute       int64   `json:"points_per_minute"`
	PointsPerChatMessage  int64   `json:"points_per_chat_message"`
	PointsPerFollow       int64   `json:"points_per_follow"`
	PointsPerSubscription int64   `json:"points_per_subscription"`
	PointsPerRaidViewer   int64   `json:"points_per_raid_viewer"`
	SubscriberMultiplier  float64 `json:"subscriber_multiplier"`
	VIPMultiplier         float64 `json:"vip_multiplier"`
	ModeratorMultiplier   float64 `json:"moderator_multiplier"`
	GiveawayEntryKeyword  string  `json:"giveaway_entry_keyword"`
}

// DefaultSettings returns the settings a channel starts with.
func DefaultSettings() Settings {
	return Settings{
		Prefix:                "!",
		PointsPerMinute:       1,
		PointsPerChatMessage:  0,
		PointsPerFollow:       50,
		PointsPerSubscription: 300,
		PointsPerRaidViewer:   5,
		SubscriberMultiplier:  1.5,
		VIPMultiplier:         2.0,
		ModeratorMultiplier:   1.2,
		GiveawayEntryKeyword:  "!enter",
	}
}

// ChannelRegister is the registration request from the admin layer.
type ChannelRegister struct {
	OAuthCode    string `json:"oauth_code" binding:"required"`
	PKCEVerifier string `json:"pkce_verifier" binding:"required"`
}

// SettingsUpdate carries a partial settings change.
type SettingsUpdate map[string]string
