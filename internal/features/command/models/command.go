package models

import "time"

// UserLevel is the minimum role required to invoke a command.
type UserLevel string

const (
	LevelEveryone   UserLevel = "everyone"
	LevelSubscriber UserLevel = "subscriber"
	LevelVIP        UserLevel = "vip"
	LevelModerator  UserLevel = "moderator"
	LevelOwner      UserLevel = "owner"
)

// Rank orders user levels for the role gate. Unknown levels rank above owner
// so a bad row never opens a command to everyone.
func (l UserLevel) Rank() int {
	switch l {
	case LevelEveryone:
		return 0
	case LevelSubscriber:
		return 1
	case LevelVIP:
		return 2
	case LevelModerator:
		return 3
	case LevelOwner:
		return 4
	default:
		return 5
	}
}

// Valid reports whether l is one of the known levels.
func (l UserLevel) Valid() bool {
	return l.Rank() <= 4
}

// Command is a chat command owned by a channel. Name is unique per channel
// and stored lowercase without the prefix.
type Command struct {
	ID               int64     `json:"id"`
	ChannelID        int64     `json:"channel_id"`
	Name             string    `json:"name"`
	ResponseTemplate string    `json:"response_template"`
	CooldownSeconds  int       `json:"cooldown_seconds"`
	UserLevel        UserLevel `json:"user_level"`
	Enabled          bool      `json:"enabled"`
	UsageCount       int64     `json:"usage_count"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// CommandCreate is the admin payload for creating a command.
type CommandCreate struct {
	Name             string    `json:"name" validate:"required"`
	ResponseTemplate string    `json:"response_template" validate:"required,max=500"`
	CooldownSeconds  int       `json:"cooldown_seconds" validate:"gte=0,lte=86400"`
	UserLevel        UserLevel `json:"user_level" validate:"required"`
}

// CommandUpdate carries optional edits; nil fields stay unchanged.
type CommandUpdate struct {
	ResponseTemplate *string    `json:"response_template,omitempty" validate:"omitempty,max=500"`
	CooldownSeconds  *int       `json:"cooldown_seconds,omitempty" validate:"omitempty,gte=0,lte=86400"`
	UserLevel        *UserLevel `json:"user_level,omitempty"`
	Enabled          *bool      `json:"enabled,omitempty"`
}
