package postgres

import (
	"context"
	"database/sql"

	apperrors "streambot-backend/internal/common/errors"
	"streambot-backend/internal/features/token/models"
)

// TokenRepository stores channel token pairs.
type TokenRepository struct {
	db *sql.DB
}

func NewTokenRepository(db *sql.DB) *TokenRepository { return &TokenRepository{db: db} }

// Get returns the channel's token record or NOT_FOUND.
func (r *TokenRepository) Get(ctx context.Context, channelID int64) (*models.TokenRecord, error) {
	const q = `
        SELECT channel_id, encrypted_access, encrypted_refresh, expires_at, updated_at
        FROM channel_tokens WHERE channel_id=$1`
	var rec models.TokenRecord
	row := r.db.QueryRowContext(ctx, q, channelID)
	if err := row.Scan(&rec.ChannelID, &rec.EncryptedAccess, &rec.EncryptedRefresh,
		&rec.ExpiresAt, &rec.UpdatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, apperrors.NewNotFoundError("channel token", channelID)
		}
		return nil, apperrors.NewDatabaseError("get token", err)
	}
	return &rec, nil
}

// Save upserts the channel's token record.
func (r *TokenRepository) Save(ctx context.Context, rec *models.TokenRecord) error {
	const q = `
	INSERT INTO channel_tokens (channel_id, encrypted_access, encrypted_refresh, expires_at, updated_at)
	VALUES ($1,$2,$3,$4,now())
	ON CONFLICT (channel_id) DO UPDATE
	SET encrypted_access=EXCLUDED.encrypted_access,
	    encrypted_refresh=EXCLUDED.encrypted_refresh,
	    expires_at=EXCLUDED.expires_at,
	    updated_at=now()`
	if _, err := r.db.ExecContext(ctx, q,
		rec.ChannelID, rec.EncryptedAccess, rec.EncryptedRefresh, rec.ExpiresAt); err != nil {
		return apperrors.NewDatabaseError("save token", err)
	}
	return nil
}
