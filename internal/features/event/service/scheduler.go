// Package service contains the scheduler and the admin-facing event service.
package service

import (
	"context"
	"sync"
	"time"

	"streambot-backend/internal/common/logger"
	"streambot-backend/internal/features/event/models"
	"streambot-backend/internal/features/event/repository"
	"streambot-backend/internal/notify"

	"github.com/rs/zerolog"
)

const (
	// handlerTimeout bounds one typed handler invocation.
	handlerTimeout = 60 * time.Second

	// recurrenceHorizon is how far ahead child instances are generated.
	recurrenceHorizon = 7 * 24 * time.Hour
)

// Handler runs when an event of its registered type is promoted to active.
type Handler func(ctx context.Context, ev models.ScheduledEvent) error

// Scheduler drives scheduled events through their lifecycle on a periodic
// tick. State is loaded from the store at startup and kept consistent across
// mutations; the tick itself is single-threaded, handlers run concurrently.
type Scheduler struct {
	repo     repository.EventRepository
	notifier notify.Notifier
	log      zerolog.Logger
	nowFunc  func() time.Time

	mu        sync.Mutex
	pending   map[int64]models.ScheduledEvent
	active    map[int64]models.ScheduledEvent
	reminders map[int64]models.Reminder
	handlers  map[models.EventType]Handler

	handlersWG sync.WaitGroup
}

// NewScheduler wires the scheduler.
func NewScheduler(repo repository.EventRepository, notifier notify.Notifier) *Scheduler {
	return &Scheduler{
		repo:      repo,
		notifier:  notifier,
		log:       logger.Component("scheduler"),
		nowFunc:   time.Now,
		pending:   make(map[int64]models.ScheduledEvent),
		active:    make(map[int64]models.ScheduledEvent),
		reminders: make(map[int64]models.Reminder),
		handlers:  make(map[models.EventType]Handler),
	}
}

// RegisterHandler binds the handler fired when events of the type activate.
func (s *Scheduler) RegisterHandler(t models.EventType, h Handler) {
	s.mu.Lock()
	s.handlers[t] = h
	s.mu.Unlock()
}

// Load reads every open event and unsent reminder from the store.
func (s *Scheduler) Load(ctx context.Context) error {
	events, err := s.repo.ListOpen(ctx)
	if err != nil {
		return err
	}
	reminders, err := s.repo.ListUnsentReminders(ctx)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = make(map[int64]models.ScheduledEvent)
	s.active = make(map[int64]models.ScheduledEvent)
	s.reminders = make(map[int64]models.Reminder)
	for _, ev := range events {
		switch ev.Status {
		case models.StatusPending:
			s.pending[ev.ID] = ev
		case models.StatusActive:
			s.active[ev.ID] = ev
		}
	}
	for _, rem := range reminders {
		s.reminders[rem.ID] = rem
	}
	s.log.Info().Int("pending", len(s.pending)).Int("active", len(s.active)).
		Int("reminders", len(s.reminders)).Msg("Scheduler state loaded")
	return nil
}

// Adopt registers a freshly created event (and its reminders) without a
// reload round-trip.
func (s *Scheduler) Adopt(ev models.ScheduledEvent, reminders []models.Reminder) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ev.Status == models.StatusPending {
		s.pending[ev.ID] = ev
	}
	for _, rem := range reminders {
		if !rem.Sent {
			s.reminders[rem.ID] = rem
		}
	}
}

// Refresh replaces the cached copy of a pending event after an admin edit.
func (s *Scheduler) Refresh(ev models.ScheduledEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.pending[ev.ID]; ok {
		s.pending[ev.ID] = ev
	}
}

// Activate moves an event into the active set and runs its typed handler.
// The event service calls it for manual starts; the status transition is
// already persisted.
func (s *Scheduler) Activate(ev models.ScheduledEvent) {
	s.mu.Lock()
	delete(s.pending, ev.ID)
	ev.Status = models.StatusActive
	s.active[ev.ID] = ev
	handler := s.handlers[ev.Type]
	s.mu.Unlock()

	s.log.Info().Int64("event_id", ev.ID).Str("type", string(ev.Type)).
		Str("title", ev.Title).Msg("Event activated")
	if handler != nil {
		s.runHandler(ev, handler)
	}
}

// Drop removes a finished event and its reminders from the tick state.
func (s *Scheduler) Drop(eventID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.pending, eventID)
	delete(s.active, eventID)
	for id, rem := range s.reminders {
		if rem.EventID == eventID {
			delete(s.reminders, id)
		}
	}
}

// Tick runs one scheduler pass: promote, complete, remind, recur.
func (s *Scheduler) Tick(ctx context.Context) {
	now := s.nowFunc()
	s.promote(ctx, now)
	s.complete(ctx, now)
	s.sendReminders(ctx, now)
	s.generateRecurrences(ctx, now)
}

// Wait blocks until every in-flight handler returns. Used at shutdown and in
// tests.
func (s *Scheduler) Wait() {
	s.handlersWG.Wait()
}

func (s *Scheduler) promote(ctx context.Context, now time.Time) {
	s.mu.Lock()
	var due []models.ScheduledEvent
	for _, ev := range s.pending {
		if !ev.StartAt.After(now) {
			due = append(due, ev)
		}
	}
	s.mu.Unlock()

	for _, ev := range due {
		if err := s.repo.SetStatus(ctx, ev.ID, models.StatusActive); err != nil {
			s.log.Error().Int64("event_id", ev.ID).Err(err).Msg("Event promotion failed")
			continue
		}
		ev.Status = models.StatusActive
		s.mu.Lock()
		delete(s.pending, ev.ID)
		s.active[ev.ID] = ev
		handler := s.handlers[ev.Type]
		s.mu.Unlock()

		s.log.Info().Int64("event_id", ev.ID).Str("type", string(ev.Type)).
			Str("title", ev.Title).Msg("Event activated")
		if handler != nil {
			s.runHandler(ev, handler)
		}
	}
}

func (s *Scheduler) runHandler(ev models.ScheduledEvent, handler Handler) {
	s.handlersWG.Add(1)
	go func() {
		defer s.handlersWG.Done()
		hctx, cancel := context.WithTimeout(context.Background(), handlerTimeout)
		defer cancel()
		if err := handler(hctx, ev); err != nil {
			s.log.Error().Int64("event_id", ev.ID).Str("type", string(ev.Type)).Err(err).
				Msg("Event handler failed")
			if serr := s.repo.SetStatus(hctx, ev.ID, models.StatusFailed); serr != nil {
				s.log.Error().Int64("event_id", ev.ID).Err(serr).Msg("Failed-status persist failed")
			}
			s.mu.Lock()
			delete(s.active, ev.ID)
			s.mu.Unlock()
		}
	}()
}

func (s *Scheduler) complete(ctx context.Context, now time.Time) {
	s.mu.Lock()
	var done []models.ScheduledEvent
	for _, ev := range s.active {
		end := ev.StartAt
		if ev.EndAt != nil {
			end = *ev.EndAt
		}
		if !end.After(now) {
			done = append(done, ev)
		}
	}
	s.mu.Unlock()

	for _, ev := range done {
		if err := s.repo.SetStatus(ctx, ev.ID, models.StatusCompleted); err != nil {
			s.log.Error().Int64("event_id", ev.ID).Err(err).Msg("Event completion failed")
			continue
		}
		s.mu.Lock()
		delete(s.active, ev.ID)
		s.mu.Unlock()
	}
}

func (s *Scheduler) sendReminders(ctx context.Context, now time.Time) {
	s.mu.Lock()
	type dueReminder struct {
		rem models.Reminder
		ev  models.ScheduledEvent
	}
	var due []dueReminder
	for _, rem := range s.reminders {
		ev, ok := s.pending[rem.EventID]
		if !ok {
			ev, ok = s.active[rem.EventID]
		}
		if !ok {
			delete(s.reminders, rem.ID)
			continue
		}
		if !ev.StartAt.Add(-time.Duration(rem.LeadSeconds) * time.Second).After(now) {
			due = append(due, dueReminder{rem: rem, ev: ev})
		}
	}
	s.mu.Unlock()

	for _, d := range due {
		err := s.notifier.Notify(ctx, notify.TemplateEventReminder, d.rem.Channels, map[string]string{
			"title": d.ev.Title,
			"lead":  (time.Duration(d.rem.LeadSeconds) * time.Second).String(),
		})
		if err != nil {
			s.log.Warn().Int64("reminder_id", d.rem.ID).Err(err).Msg("Reminder delivery failed")
		}
		if err := s.repo.MarkReminderSent(ctx, d.rem.ID, now); err != nil {
			s.log.Error().Int64("reminder_id", d.rem.ID).Err(err).Msg("Reminder persist failed")
			continue
		}
		s.mu.Lock()
		delete(s.reminders, d.rem.ID)
		s.mu.Unlock()
	}
}

func (s *Scheduler) generateRecurrences(ctx context.Context, now time.Time) {
	s.mu.Lock()
	var recurring []models.ScheduledEvent
	for _, ev := range s.pending {
		if ev.Recurrence != models.RecurrenceNone && ev.Recurrence != models.RecurrenceCustom {
			recurring = append(recurring, ev)
		}
	}
	s.mu.Unlock()

	for _, ev := range recurring {
		next := ev.Recurrence.NextAfter(ev.StartAt)
		if next.IsZero() || next.Sub(now) > recurrenceHorizon {
			continue
		}
		exists, err := s.repo.HasChildAt(ctx, ev.ID, next)
		if err != nil {
			s.log.Error().Int64("event_id", ev.ID).Err(err).Msg("Recurrence lookup failed")
			continue
		}
		if exists {
			continue
		}
		if err := s.spawnChild(ctx, ev, next); err != nil {
			s.log.Error().Int64("event_id", ev.ID).Err(err).Msg("Recurrence generation failed")
		}
	}
}

func (s *Scheduler) spawnChild(ctx context.Context, parent models.ScheduledEvent, startAt time.Time) error {
	parentID := parent.ID
	child := models.ScheduledEvent{
		ChannelID:   parent.ChannelID,
		Type:        parent.Type,
		Title:       parent.Title,
		Description: parent.Description,
		StartAt:     startAt,
		Status:      models.StatusPending,
		Recurrence:  parent.Recurrence,
		ParentID:    &parentID,
		Payload:     parent.Payload,
	}
	if parent.EndAt != nil {
		end := startAt.Add(parent.EndAt.Sub(parent.StartAt))
		child.EndAt = &end
	}
	if err := s.repo.CreateEvent(ctx, &child); err != nil {
		return err
	}

	parentReminders, err := s.repo.ListRemindersByEvent(ctx, parent.ID)
	if err != nil {
		return err
	}
	cloned := make([]models.Reminder, 0, len(parentReminders))
	for _, rem := range parentReminders {
		clone := models.Reminder{
			EventID:     child.ID,
			LeadSeconds: rem.LeadSeconds,
			Channels:    rem.Channels,
		}
		if err := s.repo.CreateReminder(ctx, &clone); err != nil {
			return err
		}
		cloned = append(cloned, clone)
	}

	s.Adopt(child, cloned)
	s.log.Info().Int64("parent_id", parent.ID).Int64("event_id", child.ID).
		Time("start_at", startAt).Msg("Recurrence instance created")
	return nil
}
