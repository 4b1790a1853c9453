package models

import "time"

// TokenRecord is the encrypted at-rest OAuth token pair for a channel.
// Both token fields hold "enc:v1:" values; only the vault reads or writes
// this row.
type TokenRecord struct {
	ChannelID        int64
	EncryptedAccess  string
	EncryptedRefresh string
	ExpiresAt        time.Time
	UpdatedAt        time.Time
}
