package postgres

import (
	"context"
	"database/sql"

	apperrors "streambot-backend/internal/common/errors"
	"streambot-backend/internal/features/reward/models"

	"github.com/google/uuid"
)

// RewardRepository persists rewards and redemptions.
type RewardRepository struct {
	db *sql.DB
}

func NewRewardRepository(db *sql.DB) *RewardRepository { return &RewardRepository{db: db} }

// Create inserts a reward and returns its generated id on the model.
func (r *RewardRepository) Create(ctx context.Context, rw *models.Reward) error {
	const q = `
	INSERT INTO rewards (channel_id, name, description, cost, cooldown_seconds, enabled,
	                     subscriber_only, moderator_only, max_per_stream, max_per_user_per_stream,
	                     created_at, updated_at)
	VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,now(),now())
	RETURNING id, created_at, updated_at`
	err := r.db.QueryRowContext(ctx, q,
		rw.ChannelID, rw.Name, rw.Description, rw.Cost, rw.CooldownSeconds, rw.Enabled,
		rw.SubscriberOnly, rw.ModeratorOnly, rw.MaxPerStream, rw.MaxPerUserPerStream,
	).Scan(&rw.ID, &rw.CreatedAt, &rw.UpdatedAt)
	if err != nil {
		return apperrors.NewDatabaseError("create reward", err)
	}
	return nil
}

// Update rewrites the reward's mutable fields.
func (r *RewardRepository) Update(ctx context.Context, rw *models.Reward) error {
	const q = `
	UPDATE rewards SET name=$3, description=$4, cost=$5, cooldown_seconds=$6, enabled=$7,
	       subscriber_only=$8, moderator_only=$9, max_per_stream=$10, max_per_user_per_stream=$11,
	       updated_at=now()
	WHERE channel_id=$1 AND id=$2`
	res, err := r.db.ExecContext(ctx, q,
		rw.ChannelID, rw.ID, rw.Name, rw.Description, rw.Cost, rw.CooldownSeconds, rw.Enabled,
		rw.SubscriberOnly, rw.ModeratorOnly, rw.MaxPerStream, rw.MaxPerUserPerStream)
	if err != nil {
		return apperrors.NewDatabaseError("update reward", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperrors.NewNotFoundError("reward", rw.ID)
	}
	return nil
}

// Delete removes a reward; past redemptions keep their rows.
func (r *RewardRepository) Delete(ctx context.Context, channelID, rewardID int64) error {
	const q = `DELETE FROM rewards WHERE channel_id=$1 AND id=$2`
	res, err := r.db.ExecContext(ctx, q, channelID, rewardID)
	if err != nil {
		return apperrors.NewDatabaseError("delete reward", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperrors.NewNotFoundError("reward", rewardID)
	}
	return nil
}

// GetByID returns one reward or NOT_FOUND.
func (r *RewardRepository) GetByID(ctx context.Context, channelID, rewardID int64) (*models.Reward, error) {
	const q = `
        SELECT id, channel_id, name, description, cost, cooldown_seconds, enabled,
               subscriber_only, moderator_only, max_per_stream, max_per_user_per_stream,
               created_at, updated_at
        FROM rewards WHERE channel_id=$1 AND id=$2`
	var rw models.Reward
	row := r.db.QueryRowContext(ctx, q, channelID, rewardID)
	if err := scanReward(row.Scan, &rw); err != nil {
		if err == sql.ErrNoRows {
			return nil, apperrors.NewNotFoundError("reward", rewardID)
		}
		return nil, apperrors.NewDatabaseError("get reward", err)
	}
	return &rw, nil
}

// ListByChannel returns the channel's full catalogue.
func (r *RewardRepository) ListByChannel(ctx context.Context, channelID int64) ([]models.Reward, error) {
	const q = `
        SELECT id, channel_id, name, description, cost, cooldown_seconds, enabled,
               subscriber_only, moderator_only, max_per_stream, max_per_user_per_stream,
               created_at, updated_at
        FROM rewards WHERE channel_id=$1 ORDER BY id ASC`
	rows, err := r.db.QueryContext(ctx, q, channelID)
	if err != nil {
		return nil, apperrors.NewDatabaseError("list rewards", err)
	}
	defer rows.Close()
	var out []models.Reward
	for rows.Next() {
		var rw models.Reward
		if err := scanReward(rows.Scan, &rw); err != nil {
			return nil, apperrors.NewDatabaseError("scan reward", err)
		}
		out = append(out, rw)
	}
	return out, rows.Err()
}

func scanReward(scan func(...interface{}) error, rw *models.Reward) error {
	return scan(&rw.ID, &rw.ChannelID, &rw.Name, &rw.Description, &rw.Cost, &rw.CooldownSeconds,
		&rw.Enabled, &rw.SubscriberOnly, &rw.ModeratorOnly, &rw.MaxPerStream, &rw.MaxPerUserPerStream,
		&rw.CreatedAt, &rw.UpdatedAt)
}

// RecordRedemption debits the balance and records the redemption atomically.
func (r *RewardRepository) RecordRedemption(ctx context.Context, red *models.Redemption) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return apperrors.NewDatabaseError("begin redemption", err)
	}
	defer tx.Rollback()

	const debit = `
	UPDATE points_balances SET points=points-$3, updated_at=now()
	WHERE channel_id=$1 AND user_id=$2 AND points >= $3
	RETURNING points`
	var remaining int64
	err = tx.QueryRowContext(ctx, debit, red.ChannelID, red.UserID, red.Cost).Scan(&remaining)
	if err == sql.ErrNoRows {
		return apperrors.Newf(apperrors.ErrCodeInsufficientPoints,
			"balance too low for a %d point redemption", red.Cost)
	}
	if err != nil {
		return apperrors.NewDatabaseError("debit balance", err)
	}

	if red.ID == "" {
		red.ID = uuid.New().String()
	}
	const insert = `
	INSERT INTO redemptions (id, reward_id, channel_id, user_id, username, cost, redeemed_at)
	VALUES ($1,$2,$3,$4,$5,$6,$7)`
	if _, err := tx.ExecContext(ctx, insert,
		red.ID, red.RewardID, red.ChannelID, red.UserID, red.Username, red.Cost, red.RedeemedAt); err != nil {
		return apperrors.NewDatabaseError("insert redemption", err)
	}

	if err := tx.Commit(); err != nil {
		return apperrors.NewDatabaseError("commit redemption", err)
	}
	return nil
}

// ListRedemptions returns the channel's most recent redemptions.
func (r *RewardRepository) ListRedemptions(ctx context.Context, channelID int64, limit int) ([]models.Redemption, error) {
	const q = `
        SELECT id, reward_id, channel_id, user_id, username, cost, redeemed_at
        FROM redemptions WHERE channel_id=$1 ORDER BY redeemed_at DESC LIMIT $2`
	rows, err := r.db.QueryContext(ctx, q, channelID, limit)
	if err != nil {
		return nil, apperrors.NewDatabaseError("list redemptions", err)
	}
	defer rows.Close()
	var out []models.Redemption
	for rows.Next() {
		var red models.Redemption
		if err := rows.Scan(&red.ID, &red.RewardID, &red.ChannelID, &red.UserID, &red.Username,
			&red.Cost, &red.RedeemedAt); err != nil {
			return nil, apperrors.NewDatabaseError("scan redemption", err)
		}
		out = append(out, red)
	}
	return out, rows.Err()
}
