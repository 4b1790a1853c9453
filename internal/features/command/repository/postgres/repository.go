package postgres

import (
	"context"
	"database/sql"

	"github.com/lib/pq"

	apperrors "streambot-backend/internal/common/errors"
	"streambot-backend/internal/features/command/models"
)

// CommandRepository persists chat commands.
type CommandRepository struct {
	db *sql.DB
}

func NewCommandRepository(db *sql.DB) *CommandRepository { return &CommandRepository{db: db} }

// Create inserts a command; a duplicate (channel, name) pair yields
// ALREADY_EXISTS.
func (r *CommandRepository) Create(ctx context.Context, cmd *models.Command) error {
	const q = `
	INSERT INTO commands (channel_id, name, response_template, cooldown_seconds, user_level, enabled, usage_count, created_at, updated_at)
	VALUES ($1,$2,$3,$4,$5,$6,0,now(),now())
	RETURNING id, created_at, updated_at`
	err := r.db.QueryRowContext(ctx, q,
		cmd.ChannelID, cmd.Name, cmd.ResponseTemplate, cmd.CooldownSeconds, cmd.UserLevel, cmd.Enabled,
	).Scan(&cmd.ID, &cmd.CreatedAt, &cmd.UpdatedAt)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			return apperrors.NewAlreadyExistsError("command", cmd.Name)
		}
		return apperrors.NewDatabaseError("create command", err)
	}
	return nil
}

// Update rewrites the command's mutable fields.
func (r *CommandRepository) Update(ctx context.Context, cmd *models.Command) error {
	const q = `
	UPDATE commands SET response_template=$3, cooldown_seconds=$4, user_level=$5, enabled=$6, updated_at=now()
	WHERE channel_id=$1 AND name=$2`
	res, err := r.db.ExecContext(ctx, q,
		cmd.ChannelID, cmd.Name, cmd.ResponseTemplate, cmd.CooldownSeconds, cmd.UserLevel, cmd.Enabled)
	if err != nil {
		return apperrors.NewDatabaseError("update command", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperrors.NewNotFoundError("command", cmd.Name)
	}
	return nil
}

// Delete removes a command.
func (r *CommandRepository) Delete(ctx context.Context, channelID int64, name string) error {
	const q = `DELETE FROM commands WHERE channel_id=$1 AND name=$2`
	res, err := r.db.ExecContext(ctx, q, channelID, name)
	if err != nil {
		return apperrors.NewDatabaseError("delete command", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperrors.NewNotFoundError("command", name)
	}
	return nil
}

// GetByName returns one command or NOT_FOUND.
func (r *CommandRepository) GetByName(ctx context.Context, channelID int64, name string) (*models.Command, error) {
	const q = `
        SELECT id, channel_id, name, response_template, cooldown_seconds, user_level, enabled, usage_count, created_at, updated_at
        FROM commands WHERE channel_id=$1 AND name=$2`
	var cmd models.Command
	row := r.db.QueryRowContext(ctx, q, channelID, name)
	if err := row.Scan(&cmd.ID, &cmd.ChannelID, &cmd.Name, &cmd.ResponseTemplate, &cmd.CooldownSeconds,
		&cmd.UserLevel, &cmd.Enabled, &cmd.UsageCount, &cmd.CreatedAt, &cmd.UpdatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, apperrors.NewNotFoundError("command", name)
		}
		return nil, apperrors.NewDatabaseError("get command", err)
	}
	return &cmd, nil
}

// ListByChannel returns every command of the channel, enabled or not.
func (r *CommandRepository) ListByChannel(ctx context.Context, channelID int64) ([]models.Command, error) {
	const q = `
        SELECT id, channel_id, name, response_template, cooldown_seconds, user_level, enabled, usage_count, created_at, updated_at
        FROM commands WHERE channel_id=$1 ORDER BY name ASC`
	rows, err := r.db.QueryContext(ctx, q, channelID)
	if err != nil {
		return nil, apperrors.NewDatabaseError("list commands", err)
	}
	defer rows.Close()
	var out []models.Command
	for rows.Next() {
		var cmd models.Command
		if err := rows.Scan(&cmd.ID, &cmd.ChannelID, &cmd.Name, &cmd.ResponseTemplate, &cmd.CooldownSeconds,
			&cmd.UserLevel, &cmd.Enabled, &cmd.UsageCount, &cmd.CreatedAt, &cmd.UpdatedAt); err != nil {
			return nil, apperrors.NewDatabaseError("scan command", err)
		}
		out = append(out, cmd)
	}
	return out, rows.Err()
}

// AddUsage adds the batched usage delta to the durable counter.
func (r *CommandRepository) AddUsage(ctx context.Context, channelID int64, name string, delta int64) error {
	const q = `UPDATE commands SET usage_count=usage_count+$3 WHERE channel_id=$1 AND name=$2`
	if _, err := r.db.ExecContext(ctx, q, channelID, name, delta); err != nil {
		return apperrors.NewDatabaseError("add command usage", err)
	}
	return nil
}
