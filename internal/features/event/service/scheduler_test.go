package service

import (
	"context"
	"sync"
	"testing"
	"time"

	apperrors "streambot-backend/internal/common/errors"
	channelmodels "streambot-backend/internal/features/channel/models"
	"streambot-backend/internal/features/event/models"
	"streambot-backend/internal/notify"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memEventRepo struct {
	mu        sync.Mutex
	events    map[int64]*models.ScheduledEvent
	reminders map[int64]*models.Reminder
	nextID    int64
}

func newMemEventRepo() *memEventRepo {
	return &memEventRepo{
		events:    make(map[int64]*models.ScheduledEvent),
		reminders: make(map[int64]*models.Reminder),
	}
}

func (r *memEventRepo) CreateEvent(_ context.Context, ev *models.ScheduledEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	ev.ID = r.nextID
	copied := *ev
	r.events[ev.ID] = &copied
	return nil
}

func (r *memEventRepo) GetEvent(_ context.Context, id int64) (*models.ScheduledEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ev, ok := r.events[id]
	if !ok {
		return nil, apperrors.NewNotFoundError("event", id)
	}
	copied := *ev
	return &copied, nil
}

func (r *memEventRepo) ListByChannel(_ context.Context, channelID int64) ([]models.ScheduledEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.ScheduledEvent
	for _, ev := range r.events {
		if ev.ChannelID == channelID {
			out = append(out, *ev)
		}
	}
	return out, nil
}

func (r *memEventRepo) ListOpen(_ context.Context) ([]models.ScheduledEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.ScheduledEvent
	for _, ev := range r.events {
		if ev.Status == models.StatusPending || ev.Status == models.StatusActive {
			out = append(out, *ev)
		}
	}
	return out, nil
}

func (r *memEventRepo) UpdateEvent(_ context.Context, ev *models.ScheduledEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.events[ev.ID]; !ok {
		return apperrors.NewNotFoundError("event", ev.ID)
	}
	copied := *ev
	r.events[ev.ID] = &copied
	return nil
}

func (r *memEventRepo) DeleteEvent(_ context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.events[id]; !ok {
		return apperrors.NewNotFoundError("event", id)
	}
	delete(r.events, id)
	for remID, rem := range r.reminders {
		if rem.EventID == id {
			delete(r.reminders, remID)
		}
	}
	return nil
}

func (r *memEventRepo) SetStatus(_ context.Context, id int64, status models.EventStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	ev, ok := r.events[id]
	if !ok {
		return apperrors.NewNotFoundError("event", id)
	}
	ev.Status = status
	return nil
}

func (r *memEventRepo) HasChildAt(_ context.Context, parentID int64, startAt time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, ev := range r.events {
		if ev.ParentID != nil && *ev.ParentID == parentID && ev.StartAt.Equal(startAt) {
			return true, nil
		}
	}
	return false, nil
}

func (r *memEventRepo) CreateReminder(_ context.Context, rem *models.Reminder) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	rem.ID = r.nextID
	copied := *rem
	r.reminders[rem.ID] = &copied
	return nil
}

func (r *memEventRepo) ListUnsentReminders(_ context.Context) ([]models.Reminder, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Reminder
	for _, rem := range r.reminders {
		if !rem.Sent {
			out = append(out, *rem)
		}
	}
	return out, nil
}

func (r *memEventRepo) ListRemindersByEvent(_ context.Context, eventID int64) ([]models.Reminder, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Reminder
	for _, rem := range r.reminders {
		if rem.EventID == eventID {
			out = append(out, *rem)
		}
	}
	return out, nil
}

func (r *memEventRepo) MarkReminderSent(_ context.Context, id int64, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rem, ok := r.reminders[id]
	if !ok {
		return apperrors.NewNotFoundError("reminder", id)
	}
	rem.Sent = true
	rem.SentAt = &at
	return nil
}

type recordingNotifier struct {
	mu    sync.Mutex
	calls []struct {
		templateID string
		channels   []int64
	}
}

func (n *recordingNotifier) Notify(_ context.Context, templateID string, channelIDs []int64, _ map[string]string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls = append(n.calls, struct {
		templateID string
		channels   []int64
	}{templateID, channelIDs})
	return nil
}

func (n *recordingNotifier) count(templateID string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	c := 0
	for _, call := range n.calls {
		if call.templateID == templateID {
			c++
		}
	}
	return c
}

type allowAllChannels struct{}

func (allowAllChannels) Get(_ context.Context, ownerID, channelID int64) (*channelmodels.Channel, error) {
	return &channelmodels.Channel{ID: channelID, OwnerUserID: ownerID}, nil
}

func TestSchedulerReminderSentOnce(t *testing.T) {
	repo := newMemEventRepo()
	notifier := &recordingNotifier{}
	sched := NewScheduler(repo, notifier)
	ctx := context.Background()

	startAt := time.Unix(1_700_000_000, 0).Add(time.Hour)
	ev := &models.ScheduledEvent{
		ChannelID: 1, Type: models.TypeStream, Title: "community night",
		StartAt: startAt, Status: models.StatusPending,
	}
	require.NoError(t, repo.CreateEvent(ctx, ev))
	rem := &models.Reminder{EventID: ev.ID, LeadSeconds: 300, Channels: []int64{1}}
	require.NoError(t, repo.CreateReminder(ctx, rem))
	require.NoError(t, sched.Load(ctx))

	now := startAt.Add(-10 * time.Minute)
	sched.nowFunc = func() time.Time { return now }

	sched.Tick(ctx)
	assert.Equal(t, 0, notifier.count(notify.TemplateEventReminder), "too early")

	now = startAt.Add(-290 * time.Second)
	sched.Tick(ctx)
	assert.Equal(t, 1, notifier.count(notify.TemplateEventReminder))

	now = now.Add(15 * time.Second)
	sched.Tick(ctx)
	now = now.Add(15 * time.Second)
	sched.Tick(ctx)
	assert.Equal(t, 1, notifier.count(notify.TemplateEventReminder), "reminder must not re-emit")
}

func TestSchedulerPromoteAndComplete(t *testing.T) {
	repo := newMemEventRepo()
	sched := NewScheduler(repo, &recordingNotifier{})
	ctx := context.Background()

	start := time.Unix(1_700_000_000, 0)
	end := start.Add(30 * time.Minute)
	ev := &models.ScheduledEvent{
		ChannelID: 1, Type: models.TypeStream, Title: "stream",
		StartAt: start, EndAt: &end, Status: models.StatusPending,
	}
	require.NoError(t, repo.CreateEvent(ctx, ev))
	require.NoError(t, sched.Load(ctx))

	handled := make(chan int64, 1)
	sched.RegisterHandler(models.TypeStream, func(_ context.Context, ev models.ScheduledEvent) error {
		handled <- ev.ID
		return nil
	})

	now := start.Add(-time.Minute)
	sched.nowFunc = func() time.Time { return now }
	sched.Tick(ctx)
	got, err := repo.GetEvent(ctx, ev.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, got.Status)

	now = start.Add(time.Second)
	sched.Tick(ctx)
	sched.Wait()
	got, err = repo.GetEvent(ctx, ev.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusActive, got.Status)
	assert.Equal(t, ev.ID, <-handled)

	now = end.Add(time.Second)
	sched.Tick(ctx)
	got, err = repo.GetEvent(ctx, ev.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, got.Status)
}

func TestSchedulerHandlerFailureMarksFailed(t *testing.T) {
	repo := newMemEventRepo()
	sched := NewScheduler(repo, &recordingNotifier{})
	ctx := context.Background()

	start := time.Unix(1_700_000_000, 0)
	ev := &models.ScheduledEvent{
		ChannelID: 1, Type: models.TypeAutomation, Title: "broken",
		StartAt: start, Status: models.StatusPending,
	}
	require.NoError(t, repo.CreateEvent(ctx, ev))
	require.NoError(t, sched.Load(ctx))
	sched.RegisterHandler(models.TypeAutomation, func(context.Context, models.ScheduledEvent) error {
		return apperrors.New(apperrors.ErrCodeInternal, "boom")
	})

	sched.nowFunc = func() time.Time { return start.Add(time.Second) }
	sched.Tick(ctx)
	sched.Wait()

	got, err := repo.GetEvent(ctx, ev.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusFailed, got.Status)
}

func TestSchedulerRecurrenceSpawnsOneChild(t *testing.T) {
	repo := newMemEventRepo()
	sched := NewScheduler(repo, &recordingNotifier{})
	ctx := context.Background()

	start := time.Unix(1_700_000_000, 0).Add(24 * time.Hour)
	ev := &models.ScheduledEvent{
		ChannelID: 1, Type: models.TypeSocialPost, Title: "daily post",
		StartAt: start, Status: models.StatusPending, Recurrence: models.RecurrenceDaily,
	}
	require.NoError(t, repo.CreateEvent(ctx, ev))
	rem := &models.Reminder{EventID: ev.ID, LeadSeconds: 600, Channels: []int64{1}}
	require.NoError(t, repo.CreateReminder(ctx, rem))
	require.NoError(t, sched.Load(ctx))

	now := start.Add(-time.Hour)
	sched.nowFunc = func() time.Time { return now }

	sched.Tick(ctx)

	open, err := repo.ListOpen(ctx)
	require.NoError(t, err)
	require.Len(t, open, 2, "exactly one child instance")

	var child *models.ScheduledEvent
	for i := range open {
		if open[i].ParentID != nil {
			child = &open[i]
		}
	}
	require.NotNil(t, child)
	assert.Equal(t, ev.ID, *child.ParentID)
	assert.True(t, child.StartAt.Equal(start.AddDate(0, 0, 1)))

	childRems, err := repo.ListRemindersByEvent(ctx, child.ID)
	require.NoError(t, err)
	require.Len(t, childRems, 1, "reminders cloned onto the child")
	assert.Equal(t, 600, childRems[0].LeadSeconds)

	// The chain extends one occurrence per tick inside the horizon; the
	// existing child is never duplicated.
	sched.Tick(ctx)
	open, err = repo.ListOpen(ctx)
	require.NoError(t, err)
	assert.Len(t, open, 3)
}

func TestEventServiceRejectsCustomRecurrence(t *testing.T) {
	repo := newMemEventRepo()
	svc := NewEventService(repo, allowAllChannels{}, nil)

	_, err := svc.Create(context.Background(), 1, 1, models.EventCreate{
		Type:       models.TypeStream,
		Title:      "weekly show",
		StartAt:    time.Now().Add(time.Hour),
		Recurrence: models.RecurrenceCustom,
	})
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeValidation, apperrors.CodeOf(err))
}

func TestEventServiceUpdateEditsPendingOnly(t *testing.T) {
	repo := newMemEventRepo()
	sched := NewScheduler(repo, &recordingNotifier{})
	svc := NewEventService(repo, allowAllChannels{}, sched)
	ctx := context.Background()

	start := time.Now().Add(time.Hour)
	ev, err := svc.Create(ctx, 1, 1, models.EventCreate{
		Type: models.TypeStream, Title: "show", StartAt: start,
	})
	require.NoError(t, err)

	newTitle := "renamed show"
	newStart := start.Add(30 * time.Minute)
	updated, err := svc.Update(ctx, 1, 1, ev.ID, models.EventUpdate{
		Title:   &newTitle,
		StartAt: &newStart,
	})
	require.NoError(t, err)
	assert.Equal(t, "renamed show", updated.Title)

	got, err := repo.GetEvent(ctx, ev.ID)
	require.NoError(t, err)
	assert.Equal(t, "renamed show", got.Title)
	assert.True(t, got.StartAt.Equal(newStart.UTC()))

	sched.mu.Lock()
	cached := sched.pending[ev.ID]
	sched.mu.Unlock()
	assert.Equal(t, "renamed show", cached.Title, "scheduler sees the edit without a reload")

	custom := models.RecurrenceCustom
	_, err = svc.Update(ctx, 1, 1, ev.ID, models.EventUpdate{Recurrence: &custom})
	assert.Equal(t, apperrors.ErrCodeValidation, apperrors.CodeOf(err))

	require.NoError(t, svc.Start(ctx, 1, 1, ev.ID))
	sched.Wait()
	_, err = svc.Update(ctx, 1, 1, ev.ID, models.EventUpdate{Title: &newTitle})
	assert.Equal(t, apperrors.ErrCodePreconditionFailed, apperrors.CodeOf(err), "active events are immutable")
}

func TestEventServiceDeleteRemovesEventAndReminders(t *testing.T) {
	repo := newMemEventRepo()
	sched := NewScheduler(repo, &recordingNotifier{})
	svc := NewEventService(repo, allowAllChannels{}, sched)
	ctx := context.Background()

	ev, err := svc.Create(ctx, 1, 1, models.EventCreate{
		Type: models.TypeStream, Title: "show", StartAt: time.Now().Add(time.Hour),
		Reminders: []models.ReminderCreate{{LeadSeconds: 300, Channels: []int64{1}}},
	})
	require.NoError(t, err)

	require.NoError(t, svc.Delete(ctx, 1, 1, ev.ID))

	_, err = repo.GetEvent(ctx, ev.ID)
	assert.Equal(t, apperrors.ErrCodeNotFound, apperrors.CodeOf(err))
	rems, err := repo.ListUnsentReminders(ctx)
	require.NoError(t, err)
	assert.Empty(t, rems)

	err = svc.Delete(ctx, 1, 1, ev.ID)
	assert.Equal(t, apperrors.ErrCodeNotFound, apperrors.CodeOf(err))
}

func TestEventServiceManualStartAndEnd(t *testing.T) {
	repo := newMemEventRepo()
	sched := NewScheduler(repo, &recordingNotifier{})
	svc := NewEventService(repo, allowAllChannels{}, sched)
	ctx := context.Background()

	handled := make(chan int64, 1)
	sched.RegisterHandler(models.TypeStream, func(_ context.Context, ev models.ScheduledEvent) error {
		handled <- ev.ID
		return nil
	})

	ev, err := svc.Create(ctx, 1, 1, models.EventCreate{
		Type: models.TypeStream, Title: "show", StartAt: time.Now().Add(time.Hour),
	})
	require.NoError(t, err)

	require.NoError(t, svc.Start(ctx, 1, 1, ev.ID))
	sched.Wait()
	got, err := repo.GetEvent(ctx, ev.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusActive, got.Status)
	assert.Equal(t, ev.ID, <-handled)

	err = svc.Start(ctx, 1, 1, ev.ID)
	assert.Equal(t, apperrors.ErrCodePreconditionFailed, apperrors.CodeOf(err))

	require.NoError(t, svc.End(ctx, 1, 1, ev.ID))
	got, err = repo.GetEvent(ctx, ev.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, got.Status)

	err = svc.End(ctx, 1, 1, ev.ID)
	assert.Equal(t, apperrors.ErrCodePreconditionFailed, apperrors.CodeOf(err))
}

func TestEventServiceAcceptsZeroLeadReminder(t *testing.T) {
	repo := newMemEventRepo()
	notifier := &recordingNotifier{}
	sched := NewScheduler(repo, notifier)
	svc := NewEventService(repo, allowAllChannels{}, sched)
	ctx := context.Background()

	start := time.Unix(1_700_000_000, 0).Add(time.Hour)
	_, err := svc.Create(ctx, 1, 1, models.EventCreate{
		Type: models.TypeStream, Title: "show", StartAt: start,
		Reminders: []models.ReminderCreate{{LeadSeconds: 0, Channels: []int64{1}}},
	})
	require.NoError(t, err, "a zero lead fires at start time")

	now := start.Add(-time.Minute)
	sched.nowFunc = func() time.Time { return now }
	sched.Tick(ctx)
	assert.Equal(t, 0, notifier.count(notify.TemplateEventReminder))

	now = start
	sched.Tick(ctx)
	sched.Wait()
	assert.Equal(t, 1, notifier.count(notify.TemplateEventReminder))
}

func TestEventServiceCancelDropsFromScheduler(t *testing.T) {
	repo := newMemEventRepo()
	sched := NewScheduler(repo, &recordingNotifier{})
	svc := NewEventService(repo, allowAllChannels{}, sched)
	ctx := context.Background()

	ev, err := svc.Create(ctx, 1, 1, models.EventCreate{
		Type:    models.TypeStream,
		Title:   "show",
		StartAt: time.Now().Add(time.Hour),
	})
	require.NoError(t, err)

	require.NoError(t, svc.Cancel(ctx, 1, 1, ev.ID))
	got, err := repo.GetEvent(ctx, ev.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCancelled, got.Status)

	err = svc.Cancel(ctx, 1, 1, ev.ID)
	assert.Equal(t, apperrors.ErrCodePreconditionFailed, apperrors.CodeOf(err))
}
