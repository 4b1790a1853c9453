package models

import "time"

// Reward is a redeemable catalogue item. Per-stream counters live in the
// arbiter's memory, not on this row.
type Reward struct {
	ID                  int64     `json:"id"`
	ChannelID           int64     `json:"channel_id"`
	Name                string    `json:"name"`
	Description         string    `json:"description"`
	Cost                int64     `json:"cost"`
	CooldownSeconds     int       `json:"cooldown_seconds"`
	Enabled             bool      `json:"enabled"`
	SubscriberOnly      bool      `json:"subscriber_only"`
	ModeratorOnly       bool      `json:"moderator_only"`
	MaxPerStream        int       `json:"max_per_stream"`
	MaxPerUserPerStream int       `json:"max_per_user_per_stream"`
	CreatedAt           time.Time `json:"created_at"`
	UpdatedAt           time.Time `json:"updated_at"`
}

// Redemption is one successful redeem, recorded atomically with its debit.
type Redemption struct {
	ID         string    `json:"id"`
	RewardID   int64     `json:"reward_id"`
	ChannelID  int64     `json:"channel_id"`
	UserID     string    `json:"user_id"`
	Username   string    `json:"username"`
	Cost       int64     `json:"cost"`
	RedeemedAt time.Time `json:"redeemed_at"`
}

// RewardCreate is the admin payload for creating a reward.
type RewardCreate struct {
	Name                string `json:"name" validate:"required,max=200"`
	Description         string `json:"description" validate:"max=500"`
	Cost                int64  `json:"cost" validate:"gte=1"`
	CooldownSeconds     int    `json:"cooldown_seconds" validate:"gte=0,lte=86400"`
	SubscriberOnly      bool   `json:"subscriber_only"`
	ModeratorOnly       bool   `json:"moderator_only"`
	MaxPerStream        int    `json:"max_per_stream" validate:"gte=0"`
	MaxPerUserPerStream int    `json:"max_per_user_per_stream" validate:"gte=0"`
}

// RewardUpdate carries optional edits; nil fields stay unchanged.
type RewardUpdate struct {
	Name                *string `json:"name,omitempty" validate:"omitempty,max=200"`
	Description         *string `json:"description,omitempty" validate:"omitempty,max=500"`
	Cost                *int64  `json:"cost,omitempty" validate:"omitempty,gte=1"`
	CooldownSeconds     *int    `json:"cooldown_seconds,omitempty" validate:"omitempty,gte=0,lte=86400"`
	Enabled             *bool   `json:"enabled,omitempty"`
	SubscriberOnly      *bool   `json:"subscriber_only,omitempty"`
	ModeratorOnly       *bool   `json:"moderator_only,omitempty"`
	MaxPerStream        *int    `json:"max_per_stream,omitempty" validate:"omitempty,gte=0"`
	MaxPerUserPerStream *int    `json:"max_per_user_per_stream,omitempty" validate:"omitempty,gte=0"`
}
