package models

import "time"

// Balance is one viewer's durable points state in a channel. Username is the
// last seen display name, kept for leaderboards.
type Balance struct {
	ChannelID    int64     `json:"channel_id"`
	UserID       string    `json:"user_id"`
	Username     string    `json:"username"`
	Points       int64     `json:"points"`
	WatchSeconds int64     `json:"watch_seconds"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// LeaderboardEntry is one row of the channel points leaderboard.
type LeaderboardEntry struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
	Points   int64  `json:"points"`
}
