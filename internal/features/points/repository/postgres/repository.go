package postgres

import (
	"context"
	"database/sql"

	apperrors "streambot-backend/internal/common/errors"
	"streambot-backend/internal/features/points/models"
)

// PointsRepository persists viewer balances.
type PointsRepository struct {
	db *sql.DB
}

func NewPointsRepository(db *sql.DB) *PointsRepository { return &PointsRepository{db: db} }

// Adjust applies a balance delta atomically. Grants upsert the row; debits
// require an existing row with enough points.
func (r *PointsRepository) Adjust(ctx context.Context, channelID int64, userID, username string, delta int64) (int64, error) {
	if delta >= 0 {
		const q = `
		INSERT INTO points_balances (channel_id, user_id, username, points, watch_seconds, updated_at)
		VALUES ($1,$2,$3,$4,0,now())
		ON CONFLICT (channel_id, user_id) DO UPDATE
		SET points=points_balances.points+EXCLUDED.points,
		    username=CASE WHEN EXCLUDED.username <> '' THEN EXCLUDED.username ELSE points_balances.username END,
		    updated_at=now()
		RETURNING points`
		var balance int64
		if err := r.db.QueryRowContext(ctx, q, channelID, userID, username, delta).Scan(&balance); err != nil {
			return 0, apperrors.NewDatabaseError("grant points", err)
		}
		return balance, nil
	}

	const q = `
	UPDATE points_balances SET points=points+$3, updated_at=now()
	WHERE channel_id=$1 AND user_id=$2 AND points+$3 >= 0
	RETURNING points`
	var balance int64
	err := r.db.QueryRowContext(ctx, q, channelID, userID, delta).Scan(&balance)
	if err == sql.ErrNoRows {
		return 0, apperrors.Newf(apperrors.ErrCodeInsufficientPoints,
			"balance too low for a %d point deduction", -delta)
	}
	if err != nil {
		return 0, apperrors.NewDatabaseError("deduct points", err)
	}
	return balance, nil
}

// AddWatchSeconds accumulates watch time for an existing balance row.
func (r *PointsRepository) AddWatchSeconds(ctx context.Context, channelID int64, userID string, seconds int64) error {
	const q = `
	INSERT INTO points_balances (channel_id, user_id, username, points, watch_seconds, updated_at)
	VALUES ($1,$2,'',0,$3,now())
	ON CONFLICT (channel_id, user_id) DO UPDATE
	SET watch_seconds=points_balances.watch_seconds+EXCLUDED.watch_seconds, updated_at=now()`
	if _, err := r.db.ExecContext(ctx, q, channelID, userID, seconds); err != nil {
		return apperrors.NewDatabaseError("add watch time", err)
	}
	return nil
}

// Get returns the viewer's balance; a missing row reads as zero.
func (r *PointsRepository) Get(ctx context.Context, channelID int64, userID string) (*models.Balance, error) {
	const q = `
        SELECT channel_id, user_id, username, points, watch_seconds, updated_at
        FROM points_balances WHERE channel_id=$1 AND user_id=$2`
	var b models.Balance
	err := r.db.QueryRowContext(ctx, q, channelID, userID).Scan(
		&b.ChannelID, &b.UserID, &b.Username, &b.Points, &b.WatchSeconds, &b.UpdatedAt)
	if err == sql.ErrNoRows {
		return &models.Balance{ChannelID: channelID, UserID: userID}, nil
	}
	if err != nil {
		return nil, apperrors.NewDatabaseError("get balance", err)
	}
	return &b, nil
}

// Top returns the highest balances of the channel.
func (r *PointsRepository) Top(ctx context.Context, channelID int64, limit int) ([]models.Balance, error) {
	const q = `
        SELECT channel_id, user_id, username, points, watch_seconds, updated_at
        FROM points_balances WHERE channel_id=$1 ORDER BY points DESC, user_id ASC LIMIT $2`
	rows, err := r.db.QueryContext(ctx, q, channelID, limit)
	if err != nil {
		return nil, apperrors.NewDatabaseError("top balances", err)
	}
	defer rows.Close()
	var out []models.Balance
	for rows.Next() {
		var b models.Balance
		if err := rows.Scan(&b.ChannelID, &b.UserID, &b.Username, &b.Points, &b.WatchSeconds, &b.UpdatedAt); err != nil {
			return nil, apperrors.NewDatabaseError("scan balance", err)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}
