package models

import "time"

// GiveawayStatus is the lifecycle state of a giveaway. Valid transitions:
// pending to active, active to completed, and any state to cancelled.
type GiveawayStatus string

const (
	StatusPending   GiveawayStatus = "pending"
	StatusActive    GiveawayStatus = "active"
	StatusCompleted GiveawayStatus = "completed"
	StatusCancelled GiveawayStatus = "cancelled"
)

// RequirementType selects the validator applied to an entry.
type RequirementType string

const (
	RequirementFollower   RequirementType = "follower"
	RequirementSubscriber RequirementType = "subscriber"
	RequirementPoints     RequirementType = "points"
	RequirementWatchTime  RequirementType = "watch_time"
	RequirementCustom     RequirementType = "custom"
)

// Valid reports whether t is a known requirement type.
func (t RequirementType) Valid() bool {
	switch t {
	case RequirementFollower, RequirementSubscriber, RequirementPoints, RequirementWatchTime, RequirementCustom:
		return true
	}
	return false
}

// Requirement is one entry condition. Only the field matching the type is
// read: MinTier for subscriber, MinPoints for points, MinSeconds for
// watch_time. Note documents custom requirements for moderators.
type Requirement struct {
	Type       RequirementType `json:"type"`
	MinTier    int             `json:"min_tier,omitempty"`
	MinPoints  int64           `json:"min_points,omitempty"`
	MinSeconds int64           `json:"min_seconds,omitempty"`
	Note       string          `json:"note,omitempty"`
}

// Giveaway is one raffle run in a channel.
type Giveaway struct {
	ID           string         `json:"id"`
	ChannelID    int64          `json:"channel_id"`
	Title        string         `json:"title"`
	Description  string         `json:"description,omitempty"`
	PrizeID      string         `json:"prize_id,omitempty"`
	MaxWinners   int            `json:"max_winners"`
	StartAt      *time.Time     `json:"start_at,omitempty"`
	EndAt        *time.Time     `json:"end_at,omitempty"`
	Status       GiveawayStatus `json:"status"`
	Requirements []Requirement  `json:"requirements,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

// Entry is one viewer's claim on a giveaway. (GiveawayID, UserID) is unique;
// the store enforces single entry per user.
type Entry struct {
	GiveawayID string    `json:"giveaway_id"`
	UserID     string    `json:"user_id"`
	Username   string    `json:"username"`
	EnteredAt  time.Time `json:"entered_at"`
}

// Winner is one selected entry, recorded with the completion transition.
type Winner struct {
	GiveawayID string    `json:"giveaway_id"`
	UserID     string    `json:"user_id"`
	Username   string    `json:"username"`
	Place      int       `json:"place"`
	SelectedAt time.Time `json:"selected_at"`
}

// GiveawayCreate is the admin payload for creating a giveaway.
type GiveawayCreate struct {
	Title        string        `json:"title" validate:"required,max=200"`
	Description  string        `json:"description" validate:"max=500"`
	PrizeID      string        `json:"prize_id"`
	MaxWinners   int           `json:"max_winners" validate:"gte=1,lte=100"`
	StartAt      *time.Time    `json:"start_at,omitempty"`
	EndAt        *time.Time    `json:"end_at,omitempty"`
	Requirements []Requirement `json:"requirements,omitempty"`
}
