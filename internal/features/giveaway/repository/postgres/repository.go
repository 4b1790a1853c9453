package postgres

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/lib/pq"

	apperrors "streambot-backend/internal/common/errors"
	"streambot-backend/internal/features/giveaway/models"
)

// GiveawayRepository persists giveaways, entries and winners.
type GiveawayRepository struct {
	db *sql.DB
}

func NewGiveawayRepository(db *sql.DB) *GiveawayRepository { return &GiveawayRepository{db: db} }

// Create inserts a giveaway.
func (r *GiveawayRepository) Create(ctx context.Context, g *models.Giveaway) error {
	requirements, err := json.Marshal(g.Requirements)
	if err != nil {
		return apperrors.NewDatabaseError("marshal requirements", err)
	}
	const q = `
	INSERT INTO giveaways (id, channel_id, title, description, prize_id, max_winners,
	                       start_at, end_at, status, requirements, created_at, updated_at)
	VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,now(),now())
	RETURNING created_at, updated_at`
	err = r.db.QueryRowContext(ctx, q,
		g.ID, g.ChannelID, g.Title, g.Description, g.PrizeID, g.MaxWinners,
		g.StartAt, g.EndAt, g.Status, requirements,
	).Scan(&g.CreatedAt, &g.UpdatedAt)
	if err != nil {
		return apperrors.NewDatabaseError("create giveaway", err)
	}
	return nil
}

const giveawayColumns = `id, channel_id, title, description, prize_id, max_winners, start_at, end_at, status, requirements, created_at, updated_at`

func scanGiveaway(scan func(...interface{}) error, g *models.Giveaway) error {
	var requirements []byte
	if err := scan(&g.ID, &g.ChannelID, &g.Title, &g.Description, &g.PrizeID, &g.MaxWinners,
		&g.StartAt, &g.EndAt, &g.Status, &requirements, &g.CreatedAt, &g.UpdatedAt); err != nil {
		return err
	}
	if len(requirements) > 0 {
		_ = json.Unmarshal(requirements, &g.Requirements)
	}
	return nil
}

// GetByID returns one giveaway or NOT_FOUND.
func (r *GiveawayRepository) GetByID(ctx context.Context, id string) (*models.Giveaway, error) {
	var g models.Giveaway
	row := r.db.QueryRowContext(ctx, `SELECT `+giveawayColumns+` FROM giveaways WHERE id=$1`, id)
	if err := scanGiveaway(row.Scan, &g); err != nil {
		if err == sql.ErrNoRows {
			return nil, apperrors.NewNotFoundError("giveaway", id)
		}
		return nil, apperrors.NewDatabaseError("get giveaway", err)
	}
	return &g, nil
}

// ListByChannel returns the channel's giveaways, newest first.
func (r *GiveawayRepository) ListByChannel(ctx context.Context, channelID int64) ([]models.Giveaway, error) {
	return r.list(ctx, `SELECT `+giveawayColumns+` FROM giveaways WHERE channel_id=$1 ORDER BY created_at DESC`, channelID)
}

// ListByStatus returns every giveaway in the given state.
func (r *GiveawayRepository) ListByStatus(ctx context.Context, status models.GiveawayStatus) ([]models.Giveaway, error) {
	return r.list(ctx, `SELECT `+giveawayColumns+` FROM giveaways WHERE status=$1`, status)
}

func (r *GiveawayRepository) list(ctx context.Context, q string, args ...interface{}) ([]models.Giveaway, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, apperrors.NewDatabaseError("list giveaways", err)
	}
	defer rows.Close()
	var out []models.Giveaway
	for rows.Next() {
		var g models.Giveaway
		if err := scanGiveaway(rows.Scan, &g); err != nil {
			return nil, apperrors.NewDatabaseError("scan giveaway", err)
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

// SetStatus persists a lifecycle transition.
func (r *GiveawayRepository) SetStatus(ctx context.Context, id string, status models.GiveawayStatus) error {
	const q = `UPDATE giveaways SET status=$2, updated_at=now() WHERE id=$1`
	res, err := r.db.ExecContext(ctx, q, id, status)
	if err != nil {
		return apperrors.NewDatabaseError("set giveaway status", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperrors.NewNotFoundError("giveaway", id)
	}
	return nil
}

// ClaimEntry inserts an entry; the unique constraint enforces one entry per
// user.
func (r *GiveawayRepository) ClaimEntry(ctx context.Context, e *models.Entry) error {
	const q = `
	INSERT INTO giveaway_entries (giveaway_id, user_id, username, entered_at)
	VALUES ($1,$2,$3,$4)`
	if _, err := r.db.ExecContext(ctx, q, e.GiveawayID, e.UserID, e.Username, e.EnteredAt); err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			return apperrors.NewAlreadyExistsError("giveaway entry", e.UserID)
		}
		return apperrors.NewDatabaseError("claim entry", err)
	}
	return nil
}

// ReleaseEntry removes an entry after failed requirement validation.
func (r *GiveawayRepository) ReleaseEntry(ctx context.Context, giveawayID, userID string) error {
	const q = `DELETE FROM giveaway_entries WHERE giveaway_id=$1 AND user_id=$2`
	if _, err := r.db.ExecContext(ctx, q, giveawayID, userID); err != nil {
		return apperrors.NewDatabaseError("release entry", err)
	}
	return nil
}

// ListEntries returns every entry in claim order.
func (r *GiveawayRepository) ListEntries(ctx context.Context, giveawayID string) ([]models.Entry, error) {
	const q = `
        SELECT giveaway_id, user_id, username, entered_at
        FROM giveaway_entries WHERE giveaway_id=$1 ORDER BY entered_at ASC`
	rows, err := r.db.QueryContext(ctx, q, giveawayID)
	if err != nil {
		return nil, apperrors.NewDatabaseError("list entries", err)
	}
	defer rows.Close()
	var out []models.Entry
	for rows.Next() {
		var e models.Entry
		if err := rows.Scan(&e.GiveawayID, &e.UserID, &e.Username, &e.EnteredAt); err != nil {
			return nil, apperrors.NewDatabaseError("scan entry", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// CompleteWithWinners records winners and the completed status atomically.
func (r *GiveawayRepository) CompleteWithWinners(ctx context.Context, giveawayID string, winners []models.Winner) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return apperrors.NewDatabaseError("begin completion", err)
	}
	defer tx.Rollback()

	const transition = `UPDATE giveaways SET status=$2, updated_at=now() WHERE id=$1 AND status=$3`
	res, err := tx.ExecContext(ctx, transition, giveawayID, models.StatusCompleted, models.StatusActive)
	if err != nil {
		return apperrors.NewDatabaseError("complete giveaway", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperrors.NewPreconditionError("giveaway is not active")
	}

	const insert = `
	INSERT INTO giveaway_winners (giveaway_id, user_id, username, place, selected_at)
	VALUES ($1,$2,$3,$4,$5)`
	for _, w := range winners {
		if _, err := tx.ExecContext(ctx, insert, w.GiveawayID, w.UserID, w.Username, w.Place, w.SelectedAt); err != nil {
			return apperrors.NewDatabaseError("insert winner", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return apperrors.NewDatabaseError("commit completion", err)
	}
	return nil
}

// ListWinners returns the giveaway's winners in place order.
func (r *GiveawayRepository) ListWinners(ctx context.Context, giveawayID string) ([]models.Winner, error) {
	const q = `
        SELECT giveaway_id, user_id, username, place, selected_at
        FROM giveaway_winners WHERE giveaway_id=$1 ORDER BY place ASC`
	rows, err := r.db.QueryContext(ctx, q, giveawayID)
	if err != nil {
		return nil, apperrors.NewDatabaseError("list winners", err)
	}
	defer rows.Close()
	var out []models.Winner
	for rows.Next() {
		var w models.Winner
		if err := rows.Scan(&w.GiveawayID, &w.UserID, &w.Username, &w.Place, &w.SelectedAt); err != nil {
			return nil, apperrors.NewDatabaseError("scan winner", err)
		}
		out = append(out, w)
	}
	return out, rows.Err()
}
