package repository

import (
	"context"
	"time"

	"streambot-backend/internal/features/event/models"
)

// EventRepository persists scheduled events and their reminders.
type EventRepository interface {
	CreateEvent(ctx context.Context, ev *models.ScheduledEvent) error
	GetEvent(ctx context.Context, id int64) (*models.ScheduledEvent, error)
	ListByChannel(ctx context.Context, channelID int64) ([]models.ScheduledEvent, error)
	// ListOpen returns every pending and active event; the scheduler loads
	// them at startup.
	ListOpen(ctx context.Context) ([]models.ScheduledEvent, error)
	// UpdateEvent rewrites the editable columns of an event.
	UpdateEvent(ctx context.Context, ev *models.ScheduledEvent) error
	DeleteEvent(ctx context.Context, id int64) error
	SetStatus(ctx context.Context, id int64, status models.EventStatus) error
	// HasChildAt reports whether a recurrence child already exists for the
	// parent at the given start time.
	HasChildAt(ctx context.Context, parentID int64, startAt time.Time) (bool, error)

	CreateReminder(ctx context.Context, rem *models.Reminder) error
	ListUnsentReminders(ctx context.Context) ([]models.Reminder, error)
	ListRemindersByEvent(ctx context.Context, eventID int64) ([]models.Reminder, error)
	MarkReminderSent(ctx context.Context, id int64, at time.Time) error
}
