package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/lib/pq"

	apperrors "streambot-backend/internal/common/errors"
	"streambot-backend/internal/features/event/models"
)

// EventRepository persists scheduled events and reminders.
type EventRepository struct {
	db *sql.DB
}

func NewEventRepository(db *sql.DB) *EventRepository { return &EventRepository{db: db} }

// CreateEvent inserts an event and returns its generated id on the model.
func (r *EventRepository) CreateEvent(ctx context.Context, ev *models.ScheduledEvent) error {
	payload, err := json.Marshal(ev.Payload)
	if err != nil {
		return apperrors.NewDatabaseError("marshal event payload", err)
	}
	const q = `
	INSERT INTO scheduled_events (channel_id, type, title, description, start_at, end_at, status,
	                              recurrence, parent_id, payload, created_at, updated_at)
	VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,now(),now())
	RETURNING id, created_at, updated_at`
	err = r.db.QueryRowContext(ctx, q,
		ev.ChannelID, ev.Type, ev.Title, ev.Description, ev.StartAt, ev.EndAt, ev.Status,
		ev.Recurrence, ev.ParentID, payload,
	).Scan(&ev.ID, &ev.CreatedAt, &ev.UpdatedAt)
	if err != nil {
		return apperrors.NewDatabaseError("create event", err)
	}
	return nil
}

const eventColumns = `id, channel_id, type, title, description, start_at, end_at, status, recurrence, parent_id, payload, created_at, updated_at`

func scanEvent(scan func(...interface{}) error, ev *models.ScheduledEvent) error {
	var payload []byte
	var recurrence sql.NullString
	if err := scan(&ev.ID, &ev.ChannelID, &ev.Type, &ev.Title, &ev.Description, &ev.StartAt,
		&ev.EndAt, &ev.Status, &recurrence, &ev.ParentID, &payload, &ev.CreatedAt, &ev.UpdatedAt); err != nil {
		return err
	}
	ev.Recurrence = models.RecurrencePattern(recurrence.String)
	if len(payload) > 0 {
		_ = json.Unmarshal(payload, &ev.Payload)
	}
	return nil
}

// GetEvent returns one event or NOT_FOUND.
func (r *EventRepository) GetEvent(ctx context.Context, id int64) (*models.ScheduledEvent, error) {
	var ev models.ScheduledEvent
	row := r.db.QueryRowContext(ctx, `SELECT `+eventColumns+` FROM scheduled_events WHERE id=$1`, id)
	if err := scanEvent(row.Scan, &ev); err != nil {
		if err == sql.ErrNoRows {
			return nil, apperrors.NewNotFoundError("event", id)
		}
		return nil, apperrors.NewDatabaseError("get event", err)
	}
	return &ev, nil
}

// ListByChannel returns the channel's events, newest first.
func (r *EventRepository) ListByChannel(ctx context.Context, channelID int64) ([]models.ScheduledEvent, error) {
	return r.list(ctx, `SELECT `+eventColumns+` FROM scheduled_events WHERE channel_id=$1 ORDER BY start_at DESC`, channelID)
}

// ListOpen returns every pending or active event.
func (r *EventRepository) ListOpen(ctx context.Context) ([]models.ScheduledEvent, error) {
	return r.list(ctx, `SELECT `+eventColumns+` FROM scheduled_events WHERE status IN ('pending','active') ORDER BY start_at ASC`)
}

func (r *EventRepository) list(ctx context.Context, q string, args ...interface{}) ([]models.ScheduledEvent, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, apperrors.NewDatabaseError("list events", err)
	}
	defer rows.Close()
	var out []models.ScheduledEvent
	for rows.Next() {
		var ev models.ScheduledEvent
		if err := scanEvent(rows.Scan, &ev); err != nil {
			return nil, apperrors.NewDatabaseError("scan event", err)
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

// UpdateEvent rewrites the editable columns of an event.
func (r *EventRepository) UpdateEvent(ctx context.Context, ev *models.ScheduledEvent) error {
	payload, err := json.Marshal(ev.Payload)
	if err != nil {
		return apperrors.NewDatabaseError("marshal event payload", err)
	}
	const q = `
	UPDATE scheduled_events
	SET title=$2, description=$3, start_at=$4, end_at=$5, recurrence=$6, payload=$7, updated_at=now()
	WHERE id=$1`
	res, err := r.db.ExecContext(ctx, q,
		ev.ID, ev.Title, ev.Description, ev.StartAt, ev.EndAt, ev.Recurrence, payload)
	if err != nil {
		return apperrors.NewDatabaseError("update event", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperrors.NewNotFoundError("event", ev.ID)
	}
	return nil
}

// DeleteEvent removes an event; its reminders cascade in the schema.
func (r *EventRepository) DeleteEvent(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM scheduled_events WHERE id=$1`, id)
	if err != nil {
		return apperrors.NewDatabaseError("delete event", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperrors.NewNotFoundError("event", id)
	}
	return nil
}

// SetStatus persists a lifecycle transition.
func (r *EventRepository) SetStatus(ctx context.Context, id int64, status models.EventStatus) error {
	const q = `UPDATE scheduled_events SET status=$2, updated_at=now() WHERE id=$1`
	res, err := r.db.ExecContext(ctx, q, id, status)
	if err != nil {
		return apperrors.NewDatabaseError("set event status", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperrors.NewNotFoundError("event", id)
	}
	return nil
}

// HasChildAt reports whether a recurrence child exists for the parent at the
// given time.
func (r *EventRepository) HasChildAt(ctx context.Context, parentID int64, startAt time.Time) (bool, error) {
	const q = `SELECT EXISTS(SELECT 1 FROM scheduled_events WHERE parent_id=$1 AND start_at=$2)`
	var ok bool
	if err := r.db.QueryRowContext(ctx, q, parentID, startAt).Scan(&ok); err != nil {
		return false, apperrors.NewDatabaseError("check recurrence child", err)
	}
	return ok, nil
}

// CreateReminder inserts a reminder and returns its generated id.
func (r *EventRepository) CreateReminder(ctx context.Context, rem *models.Reminder) error {
	const q = `
	INSERT INTO event_reminders (event_id, lead_seconds, channels, sent)
	VALUES ($1,$2,$3,false)
	RETURNING id`
	err := r.db.QueryRowContext(ctx, q, rem.EventID, rem.LeadSeconds, pq.Array(rem.Channels)).Scan(&rem.ID)
	if err != nil {
		return apperrors.NewDatabaseError("create reminder", err)
	}
	return nil
}

// ListUnsentReminders returns every reminder not yet dispatched.
func (r *EventRepository) ListUnsentReminders(ctx context.Context) ([]models.Reminder, error) {
	const q = `SELECT id, event_id, lead_seconds, channels, sent, sent_at FROM event_reminders WHERE sent=false`
	return r.listReminders(ctx, q)
}

// ListRemindersByEvent returns every reminder of one event.
func (r *EventRepository) ListRemindersByEvent(ctx context.Context, eventID int64) ([]models.Reminder, error) {
	const q = `SELECT id, event_id, lead_seconds, channels, sent, sent_at FROM event_reminders WHERE event_id=$1`
	return r.listReminders(ctx, q, eventID)
}

func (r *EventRepository) listReminders(ctx context.Context, q string, args ...interface{}) ([]models.Reminder, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, apperrors.NewDatabaseError("list reminders", err)
	}
	defer rows.Close()
	var out []models.Reminder
	for rows.Next() {
		var rem models.Reminder
		var channels pq.Int64Array
		if err := rows.Scan(&rem.ID, &rem.EventID, &rem.LeadSeconds, &channels, &rem.Sent, &rem.SentAt); err != nil {
			return nil, apperrors.NewDatabaseError("scan reminder", err)
		}
		rem.Channels = channels
		out = append(out, rem)
	}
	return out, rows.Err()
}

// MarkReminderSent records the dispatch time.
func (r *EventRepository) MarkReminderSent(ctx context.Context, id int64, at time.Time) error {
	const q = `UPDATE event_reminders SET sent=true, sent_at=$2 WHERE id=$1`
	if _, err := r.db.ExecContext(ctx, q, id, at); err != nil {
		return apperrors.NewDatabaseError("mark reminder sent", err)
	}
	return nil
}
