package models

import "time"

// EventType tags what a scheduled event does when it fires.
type EventType string

const (
	TypeStream        EventType = "stream"
	TypeSocialPost    EventType = "social_post"
	TypeReminder      EventType = "reminder"
	TypeGiveaway      EventType = "giveaway"
	TypeChannelUpdate EventType = "channel_update"
	TypeAutomation    EventType = "automation"
	TypeOther         EventType = "other"
)

// Valid reports whether t is a known event type.
func (t EventType) Valid() bool {
	switch t {
	case TypeStream, TypeSocialPost, TypeReminder, TypeGiveaway, TypeChannelUpdate, TypeAutomation, TypeOther:
		return true
	}
	return false
}

// EventStatus is the lifecycle state of a scheduled event.
type EventStatus string

const (
	StatusPending   EventStatus = "pending"
	StatusActive    EventStatus = "active"
	StatusCompleted EventStatus = "completed"
	StatusCancelled EventStatus = "cancelled"
	StatusFailed    EventStatus = "failed"
)

// RecurrencePattern describes how an event repeats. Custom patterns are
// rejected at creation time.
type RecurrencePattern string

const (
	RecurrenceNone    RecurrencePattern = ""
	RecurrenceDaily   RecurrencePattern = "daily"
	RecurrenceWeekly  RecurrencePattern = "weekly"
	RecurrenceMonthly RecurrencePattern = "monthly"
	RecurrenceCustom  RecurrencePattern = "custom"
)

// NextAfter returns the next occurrence after start, or the zero time when
// the pattern does not repeat.
func (p RecurrencePattern) NextAfter(start time.Time) time.Time {
	switch p {
	case RecurrenceDaily:
		return start.AddDate(0, 0, 1)
	case RecurrenceWeekly:
		return start.AddDate(0, 0, 7)
	case RecurrenceMonthly:
		return start.AddDate(0, 1, 0)
	default:
		return time.Time{}
	}
}

// ScheduledEvent is one planned occurrence. Recurring events spawn child
// instances; ParentID links a child to the event it was generated from.
type ScheduledEvent struct {
	ID          int64             `json:"id"`
	ChannelID   int64             `json:"channel_id"`
	Type        EventType         `json:"type"`
	Title       string            `json:"title"`
	Description string            `json:"description,omitempty"`
	StartAt     time.Time         `json:"start_at"`
	EndAt       *time.Time        `json:"end_at,omitempty"`
	Status      EventStatus       `json:"status"`
	Recurrence  RecurrencePattern `json:"recurrence,omitempty"`
	ParentID    *int64            `json:"parent_id,omitempty"`
	Payload     map[string]string `json:"payload,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
}

// Reminder is a pre-start notification attached to an event.
type Reminder struct {
	ID          int64      `json:"id"`
	EventID     int64      `json:"event_id"`
	LeadSeconds int        `json:"lead_seconds"`
	Channels    []int64    `json:"channels"`
	Sent        bool       `json:"sent"`
	SentAt      *time.Time `json:"sent_at,omitempty"`
}

// EventCreate is the admin payload for scheduling an event.
type EventCreate struct {
	Type        EventType         `json:"type" validate:"required"`
	Title       string            `json:"title" validate:"required,max=200"`
	Description string            `json:"description" validate:"max=500"`
	StartAt     time.Time         `json:"start_at" validate:"required"`
	EndAt       *time.Time        `json:"end_at,omitempty"`
	Recurrence  RecurrencePattern `json:"recurrence,omitempty"`
	Payload     map[string]string `json:"payload,omitempty"`
	Reminders   []ReminderCreate  `json:"reminders,omitempty" validate:"dive"`
}

// EventUpdate is the admin payload for editing a pending event. Nil fields
// stay unchanged.
type EventUpdate struct {
	Title       *string            `json:"title,omitempty" validate:"omitempty,max=200"`
	Description *string            `json:"description,omitempty" validate:"omitempty,max=500"`
	StartAt     *time.Time         `json:"start_at,omitempty"`
	EndAt       *time.Time         `json:"end_at,omitempty"`
	Recurrence  *RecurrencePattern `json:"recurrence,omitempty"`
	Payload     map[string]string  `json:"payload,omitempty"`
}

// ReminderCreate is one reminder attached at event creation. A zero lead
// fires the reminder at start time.
type ReminderCreate struct {
	LeadSeconds int     `json:"lead_seconds" validate:"gte=0,lte=604800"`
	Channels    []int64 `json:"channels" validate:"required,min=1"`
}
