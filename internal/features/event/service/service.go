package service

import (
	"context"

	apperrors "streambot-backend/internal/common/errors"
	"streambot-backend/internal/common/validation"
	channelmodels "streambot-backend/internal/features/channel/models"
	"streambot-backend/internal/features/event/models"
	"streambot-backend/internal/features/event/repository"
)

// ChannelAccess is the ownership check borrowed from the channel service.
type ChannelAccess interface {
	Get(ctx context.Context, ownerID, channelID int64) (*channelmodels.Channel, error)
}

// EventService is the admin-facing surface for scheduled events.
type EventService interface {
	Create(ctx context.Context, ownerID, channelID int64, req models.EventCreate) (*models.ScheduledEvent, error)
	Update(ctx context.Context, ownerID, channelID, eventID int64, req models.EventUpdate) (*models.ScheduledEvent, error)
	Delete(ctx context.Context, ownerID, channelID, eventID int64) error
	List(ctx context.Context, ownerID, channelID int64) ([]models.ScheduledEvent, error)
	Start(ctx context.Context, ownerID, channelID, eventID int64) error
	End(ctx context.Context, ownerID, channelID, eventID int64) error
	Cancel(ctx context.Context, ownerID, channelID, eventID int64) error
}

type eventService struct {
	repo      repository.EventRepository
	channels  ChannelAccess
	scheduler *Scheduler
}

// NewEventService wires the admin event service. scheduler may be nil in
// tests.
func NewEventService(repo repository.EventRepository, channels ChannelAccess, scheduler *Scheduler) EventService {
	return &eventService{repo: repo, channels: channels, scheduler: scheduler}
}

func (s *eventService) Create(ctx context.Context, ownerID, channelID int64, req models.EventCreate) (*models.ScheduledEvent, error) {
	if _, err := s.channels.Get(ctx, ownerID, channelID); err != nil {
		return nil, err
	}
	if err := validation.Struct(req); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeValidation, "invalid event payload")
	}
	if err := validation.ValidateTitle(req.Title); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeValidation, "invalid event title")
	}
	if !req.Type.Valid() {
		return nil, apperrors.Newf(apperrors.ErrCodeValidation, "unknown event type %q", req.Type)
	}
	if err := checkRecurrence(req.Recurrence); err != nil {
		return nil, err
	}
	if req.EndAt != nil && req.EndAt.Before(req.StartAt) {
		return nil, apperrors.New(apperrors.ErrCodeValidation, "end_at must not precede start_at")
	}

	ev := &models.ScheduledEvent{
		ChannelID:   channelID,
		Type:        req.Type,
		Title:       req.Title,
		Description: req.Description,
		StartAt:     req.StartAt.UTC(),
		EndAt:       req.EndAt,
		Status:      models.StatusPending,
		Recurrence:  req.Recurrence,
		Payload:     req.Payload,
	}
	if err := s.repo.CreateEvent(ctx, ev); err != nil {
		return nil, err
	}

	reminders := make([]models.Reminder, 0, len(req.Reminders))
	for _, rc := range req.Reminders {
		rem := models.Reminder{
			EventID:     ev.ID,
			LeadSeconds: rc.LeadSeconds,
			Channels:    rc.Channels,
		}
		if err := s.repo.CreateReminder(ctx, &rem); err != nil {
			return nil, err
		}
		reminders = append(reminders, rem)
	}

	if s.scheduler != nil {
		s.scheduler.Adopt(*ev, reminders)
	}
	return ev, nil
}

// Update edits a pending event. Active and finished events are immutable.
func (s *eventService) Update(ctx context.Context, ownerID, channelID, eventID int64, req models.EventUpdate) (*models.ScheduledEvent, error) {
	if _, err := s.channels.Get(ctx, ownerID, channelID); err != nil {
		return nil, err
	}
	if err := validation.Struct(req); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeValidation, "invalid event payload")
	}

	ev, err := s.owned(ctx, channelID, eventID)
	if err != nil {
		return nil, err
	}
	if ev.Status != models.StatusPending {
		return nil, apperrors.NewPreconditionError("only pending events can be edited")
	}

	if req.Title != nil {
		if err := validation.ValidateTitle(*req.Title); err != nil {
			return nil, apperrors.Wrap(err, apperrors.ErrCodeValidation, "invalid event title")
		}
		ev.Title = *req.Title
	}
	if req.Description != nil {
		ev.Description = *req.Description
	}
	if req.StartAt != nil {
		ev.StartAt = req.StartAt.UTC()
	}
	if req.EndAt != nil {
		ev.EndAt = req.EndAt
	}
	if req.Recurrence != nil {
		if err := checkRecurrence(*req.Recurrence); err != nil {
			return nil, err
		}
		ev.Recurrence = *req.Recurrence
	}
	if req.Payload != nil {
		ev.Payload = req.Payload
	}
	if ev.EndAt != nil && ev.EndAt.Before(ev.StartAt) {
		return nil, apperrors.New(apperrors.ErrCodeValidation, "end_at must not precede start_at")
	}

	if err := s.repo.UpdateEvent(ctx, ev); err != nil {
		return nil, err
	}
	if s.scheduler != nil {
		s.scheduler.Refresh(*ev)
	}
	return ev, nil
}

// Delete removes an event and its reminders entirely.
func (s *eventService) Delete(ctx context.Context, ownerID, channelID, eventID int64) error {
	if _, err := s.channels.Get(ctx, ownerID, channelID); err != nil {
		return err
	}
	if _, err := s.owned(ctx, channelID, eventID); err != nil {
		return err
	}
	if err := s.repo.DeleteEvent(ctx, eventID); err != nil {
		return err
	}
	if s.scheduler != nil {
		s.scheduler.Drop(eventID)
	}
	return nil
}

func (s *eventService) List(ctx context.Context, ownerID, channelID int64) ([]models.ScheduledEvent, error) {
	if _, err := s.channels.Get(ctx, ownerID, channelID); err != nil {
		return nil, err
	}
	return s.repo.ListByChannel(ctx, channelID)
}

// Start activates a pending event ahead of its start time and runs its
// typed handler.
func (s *eventService) Start(ctx context.Context, ownerID, channelID, eventID int64) error {
	if _, err := s.channels.Get(ctx, ownerID, channelID); err != nil {
		return err
	}
	ev, err := s.owned(ctx, channelID, eventID)
	if err != nil {
		return err
	}
	if ev.Status != models.StatusPending {
		return apperrors.NewPreconditionError("event is not pending")
	}
	if err := s.repo.SetStatus(ctx, eventID, models.StatusActive); err != nil {
		return err
	}
	if s.scheduler != nil {
		s.scheduler.Activate(*ev)
	}
	return nil
}

// End completes an active event without waiting for its end time.
func (s *eventService) End(ctx context.Context, ownerID, channelID, eventID int64) error {
	if _, err := s.channels.Get(ctx, ownerID, channelID); err != nil {
		return err
	}
	ev, err := s.owned(ctx, channelID, eventID)
	if err != nil {
		return err
	}
	if ev.Status != models.StatusActive {
		return apperrors.NewPreconditionError("event is not active")
	}
	if err := s.repo.SetStatus(ctx, eventID, models.StatusCompleted); err != nil {
		return err
	}
	if s.scheduler != nil {
		s.scheduler.Drop(eventID)
	}
	return nil
}

// Cancel moves the event to cancelled from any non-terminal state.
func (s *eventService) Cancel(ctx context.Context, ownerID, channelID, eventID int64) error {
	if _, err := s.channels.Get(ctx, ownerID, channelID); err != nil {
		return err
	}
	ev, err := s.owned(ctx, channelID, eventID)
	if err != nil {
		return err
	}
	switch ev.Status {
	case models.StatusCompleted, models.StatusCancelled, models.StatusFailed:
		return apperrors.NewPreconditionError("event already finished")
	}
	if err := s.repo.SetStatus(ctx, eventID, models.StatusCancelled); err != nil {
		return err
	}
	if s.scheduler != nil {
		s.scheduler.Drop(eventID)
	}
	return nil
}

// owned fetches the event and verifies it belongs to the channel.
func (s *eventService) owned(ctx context.Context, channelID, eventID int64) (*models.ScheduledEvent, error) {
	ev, err := s.repo.GetEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if ev.ChannelID != channelID {
		return nil, apperrors.NewPermissionDeniedError("event belongs to another channel")
	}
	return ev, nil
}

func checkRecurrence(p models.RecurrencePattern) error {
	switch p {
	case models.RecurrenceNone, models.RecurrenceDaily, models.RecurrenceWeekly, models.RecurrenceMonthly:
		return nil
	case models.RecurrenceCustom:
		return apperrors.New(apperrors.ErrCodeValidation,
			"custom recurrence patterns are not supported; use daily, weekly or monthly")
	default:
		return apperrors.Newf(apperrors.ErrCodeValidation, "unknown recurrence pattern %q", p)
	}
}
