package postgres

import (
	"context"
	"database/sql"

	apperrors "streambot-backend/internal/common/errors"
	"streambot-backend/internal/features/channel/models"
)

// ChannelRepository persists channels and their nested state.
type ChannelRepository struct {
	db *sql.DB
}

func NewChannelRepository(db *sql.DB) *ChannelRepository { return &ChannelRepository{db: db} }

// Create inserts a channel and returns its generated id on the model.
func (r *ChannelRepository) Create(ctx context.Context, ch *models.Channel) error {
	const q = `
	INSERT INTO channels (external_id, slug, display_name, owner_user_id, platform, chatroom_id, live_chat_id, active, created_at)
	VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	RETURNING id`
	err := r.db.QueryRowContext(ctx, q,
		ch.ExternalID, ch.Slug, ch.DisplayName, ch.OwnerUserID, ch.Platform,
		ch.ChatroomID, ch.LiveChatID, ch.Active, ch.CreatedAt,
	).Scan(&ch.ID)
	if err != nil {
		return apperrors.NewDatabaseError("create channel", err)
	}
	return nil
}

// GetByID returns a channel or a NOT_FOUND error.
func (r *ChannelRepository) GetByID(ctx context.Context, id int64) (*models.Channel, error) {
	const q = `
        SELECT id, external_id, slug, display_name, owner_user_id, platform, chatroom_id, live_chat_id, active, created_at
        FROM channels WHERE id=$1`
	var ch models.Channel
	row := r.db.QueryRowContext(ctx, q, id)
	if err := row.Scan(&ch.ID, &ch.ExternalID, &ch.Slug, &ch.DisplayName, &ch.OwnerUserID,
		&ch.Platform, &ch.ChatroomID, &ch.LiveChatID, &ch.Active, &ch.CreatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, apperrors.NewNotFoundError("channel", id)
		}
		return nil, apperrors.NewDatabaseError("get channel", err)
	}
	return &ch, nil
}

// ListByOwner returns all channels registered by the owner.
func (r *ChannelRepository) ListByOwner(ctx context.Context, ownerID int64) ([]models.Channel, error) {
	const q = `
        SELECT id, external_id, slug, display_name, owner_user_id, platform, chatroom_id, live_chat_id, active, created_at
        FROM channels WHERE owner_user_id=$1 ORDER BY created_at ASC`
	return r.list(ctx, q, ownerID)
}

// ListActive returns every active channel; the supervisor uses it on startup.
func (r *ChannelRepository) ListActive(ctx context.Context) ([]models.Channel, error) {
	const q = `
        SELECT id, external_id, slug, display_name, owner_user_id, platform, chatroom_id, live_chat_id, active, created_at
        FROM channels WHERE active=true ORDER BY id ASC`
	return r.list(ctx, q)
}

func (r *ChannelRepository) list(ctx context.Context, q string, args ...interface{}) ([]models.Channel, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, apperrors.NewDatabaseError("list channels", err)
	}
	defer rows.Close()
	var out []models.Channel
	for rows.Next() {
		var ch models.Channel
		if err := rows.Scan(&ch.ID, &ch.ExternalID, &ch.Slug, &ch.DisplayName, &ch.OwnerUserID,
			&ch.Platform, &ch.ChatroomID, &ch.LiveChatID, &ch.Active, &ch.CreatedAt); err != nil {
			return nil, apperrors.NewDatabaseError("scan channel", err)
		}
		out = append(out, ch)
	}
	return out, rows.Err()
}

// SetActive flips the soft-disable flag.
func (r *ChannelRepository) SetActive(ctx context.Context, id int64, active bool) error {
	const q = `UPDATE channels SET active=$2 WHERE id=$1`
	res, err := r.db.ExecContext(ctx, q, id, active)
	if err != nil {
		return apperrors.NewDatabaseError("set channel active", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperrors.NewNotFoundError("channel", id)
	}
	return nil
}

// GetSettings loads all settings rows for a channel into a map.
func (r *ChannelRepository) GetSettings(ctx context.Context, channelID int64) (map[string]string, error) {
	const q = `SELECT key, value FROM channel_settings WHERE channel_id=$1`
	rows, err := r.db.QueryContext(ctx, q, channelID)
	if err != nil {
		return nil, apperrors.NewDatabaseError("get settings", err)
	}
	defer rows.Close()
	out := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, apperrors.NewDatabaseError("scan setting", err)
		}
		out[k] = v
	}
	return out, rows.Err()
}

// SetSetting upserts one settings row.
func (r *ChannelRepository) SetSetting(ctx context.Context, channelID int64, key, value string) error {
	const q = `
	INSERT INTO channel_settings (channel_id, key, value) VALUES ($1,$2,$3)
	ON CONFLICT (channel_id, key) DO UPDATE SET value=EXCLUDED.value`
	if _, err := r.db.ExecContext(ctx, q, channelID, key, value); err != nil {
		return apperrors.NewDatabaseError("set setting", err)
	}
	return nil
}

// MarkFollower records a viewer as a follower of the channel.
func (r *ChannelRepository) MarkFollower(ctx context.Context, channelID int64, userID string) error {
	const q = `
	INSERT INTO channel_followers (channel_id, user_id, followed_at) VALUES ($1,$2,now())
	ON CONFLICT DO NOTHING`
	if _, err := r.db.ExecContext(ctx, q, channelID, userID); err != nil {
		return apperrors.NewDatabaseError("mark follower", err)
	}
	return nil
}

// IsFollower reports whether the viewer follows the channel.
func (r *ChannelRepository) IsFollower(ctx context.Context, channelID int64, userID string) (bool, error) {
	const q = `SELECT EXISTS(SELECT 1 FROM channel_followers WHERE channel_id=$1 AND user_id=$2)`
	var ok bool
	if err := r.db.QueryRowContext(ctx, q, channelID, userID).Scan(&ok); err != nil {
		return false, apperrors.NewDatabaseError("is follower", err)
	}
	return ok, nil
}

// MarkSubscriber records a viewer subscription at the given tier.
func (r *ChannelRepository) MarkSubscriber(ctx context.Context, channelID int64, userID string, tier int) error {
	const q = `
	INSERT INTO channel_subscribers (channel_id, user_id, tier, subscribed_at) VALUES ($1,$2,$3,now())
	ON CONFLICT (channel_id, user_id) DO UPDATE SET tier=EXCLUDED.tier, subscribed_at=now()`
	if _, err := r.db.ExecContext(ctx, q, channelID, userID, tier); err != nil {
		return apperrors.NewDatabaseError("mark subscriber", err)
	}
	return nil
}

// SubscriberTier returns the viewer's subscription tier, if subscribed.
func (r *ChannelRepository) SubscriberTier(ctx context.Context, channelID int64, userID string) (int, bool, error) {
	const q = `SELECT tier FROM channel_subscribers WHERE channel_id=$1 AND user_id=$2`
	var tier int
	err := r.db.QueryRowContext(ctx, q, channelID, userID).Scan(&tier)
	if err == sql.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, apperrors.NewDatabaseError("subscriber tier", err)
	}
	return tier, true, nil
}
