// Package service implements the giveaway manager: lifecycle, chat entry,
// requirement validation and winner selection.
package service

import (
	"context"
	"math/rand"
	"strings"
	"sync"
	"time"

	apperrors "streambot-backend/internal/common/errors"
	"streambot-backend/internal/common/logger"
	"streambot-backend/internal/common/validation"
	channelmodels "streambot-backend/internal/features/channel/models"
	eventmodels "streambot-backend/internal/features/event/models"
	"streambot-backend/internal/features/giveaway/models"
	"streambot-backend/internal/features/giveaway/repository"
	"streambot-backend/internal/ingress"
	"streambot-backend/internal/notify"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// ChannelAccess is the ownership check borrowed from the channel service.
type ChannelAccess interface {
	Get(ctx context.Context, ownerID, channelID int64) (*channelmodels.Channel, error)
}

// SettingsProvider exposes the channel's giveaway entry keyword.
type SettingsProvider interface {
	Settings(ctx context.Context, channelID int64) (channelmodels.Settings, error)
}

// PrizeAssigner hands a prize to a winner. The prize system itself is outside
// the runtime; only the call is made here.
type PrizeAssigner interface {
	AssignPrize(ctx context.Context, channelID int64, prizeID, userID, username string) error
}

// Manager runs giveaways. Active giveaway ids are cached per channel so the
// chat-entry path stays off the store.
type Manager struct {
	repo     repository.GiveawayRepository
	chain    *ValidatorChain
	channels ChannelAccess
	settings SettingsProvider
	notifier notify.Notifier
	prizes   PrizeAssigner
	log      zerolog.Logger
	nowFunc  func() time.Time
	randIntn func(n int) int

	mu     sync.Mutex
	active map[int64]map[string]bool
}

// NewManager wires the giveaway manager. prizes may be nil when no prize
// system is attached.
func NewManager(repo repository.GiveawayRepository, chain *ValidatorChain, channels ChannelAccess,
	settings SettingsProvider, notifier notify.Notifier, prizes PrizeAssigner) *Manager {
	return &Manager{
		repo:     repo,
		chain:    chain,
		channels: channels,
		settings: settings,
		notifier: notifier,
		prizes:   prizes,
		log:      logger.Component("giveaway"),
		nowFunc:  time.Now,
		randIntn: rand.Intn,
		active:   make(map[int64]map[string]bool),
	}
}

// Load rebuilds the active-giveaway cache from the store.
func (m *Manager) Load(ctx context.Context) error {
	giveaways, err := m.repo.ListByStatus(ctx, models.StatusActive)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.active = make(map[int64]map[string]bool)
	for _, g := range giveaways {
		m.markActive(g.ChannelID, g.ID, true)
	}
	m.mu.Unlock()
	return nil
}

// markActive mutates the cache; callers hold m.mu.
func (m *Manager) markActive(channelID int64, giveawayID string, active bool) {
	if active {
		if m.active[channelID] == nil {
			m.active[channelID] = make(map[string]bool)
		}
		m.active[channelID][giveawayID] = true
		return
	}
	delete(m.active[channelID], giveawayID)
}

// Create records a new pending giveaway.
func (m *Manager) Create(ctx context.Context, ownerID, channelID int64, req models.GiveawayCreate) (*models.Giveaway, error) {
	if _, err := m.channels.Get(ctx, ownerID, channelID); err != nil {
		return nil, err
	}
	if err := validation.Struct(req); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeValidation, "invalid giveaway payload")
	}
	if err := validation.ValidateTitle(req.Title); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeValidation, "invalid giveaway title")
	}
	for _, r := range req.Requirements {
		if !r.Type.Valid() {
			return nil, apperrors.Newf(apperrors.ErrCodeValidation, "unknown requirement type %q", r.Type)
		}
	}
	if req.EndAt != nil && req.StartAt != nil && req.EndAt.Before(*req.StartAt) {
		return nil, apperrors.New(apperrors.ErrCodeValidation, "end_at must not precede start_at")
	}

	g := &models.Giveaway{
		ID:           uuid.New().String(),
		ChannelID:    channelID,
		Title:        req.Title,
		Description:  req.Description,
		PrizeID:      req.PrizeID,
		MaxWinners:   req.MaxWinners,
		StartAt:      req.StartAt,
		EndAt:        req.EndAt,
		Status:       models.StatusPending,
		Requirements: req.Requirements,
	}
	if err := m.repo.Create(ctx, g); err != nil {
		return nil, err
	}
	return g, nil
}

// Get returns a giveaway with its winners when completed.
func (m *Manager) Get(ctx context.Context, ownerID, channelID int64, giveawayID string) (*models.Giveaway, []models.Winner, error) {
	if _, err := m.channels.Get(ctx, ownerID, channelID); err != nil {
		return nil, nil, err
	}
	g, err := m.owned(ctx, channelID, giveawayID)
	if err != nil {
		return nil, nil, err
	}
	var winners []models.Winner
	if g.Status == models.StatusCompleted {
		winners, err = m.repo.ListWinners(ctx, giveawayID)
		if err != nil {
			return nil, nil, err
		}
	}
	return g, winners, nil
}

// List returns the channel's giveaways.
func (m *Manager) List(ctx context.Context, ownerID, channelID int64) ([]models.Giveaway, error) {
	if _, err := m.channels.Get(ctx, ownerID, channelID); err != nil {
		return nil, err
	}
	return m.repo.ListByChannel(ctx, channelID)
}

// Start manually activates a pending giveaway.
func (m *Manager) Start(ctx context.Context, ownerID, channelID int64, giveawayID string) error {
	if _, err := m.channels.Get(ctx, ownerID, channelID); err != nil {
		return err
	}
	g, err := m.owned(ctx, channelID, giveawayID)
	if err != nil {
		return err
	}
	return m.activate(ctx, g)
}

// End manually completes an active giveaway with winner selection.
func (m *Manager) End(ctx context.Context, ownerID, channelID int64, giveawayID string) ([]models.Winner, error) {
	if _, err := m.channels.Get(ctx, ownerID, channelID); err != nil {
		return nil, err
	}
	g, err := m.owned(ctx, channelID, giveawayID)
	if err != nil {
		return nil, err
	}
	return m.complete(ctx, g)
}

// Cancel moves a giveaway to cancelled from any non-terminal state.
func (m *Manager) Cancel(ctx context.Context, ownerID, channelID int64, giveawayID string) error {
	if _, err := m.channels.Get(ctx, ownerID, channelID); err != nil {
		return err
	}
	g, err := m.owned(ctx, channelID, giveawayID)
	if err != nil {
		return err
	}
	if g.Status == models.StatusCompleted || g.Status == models.StatusCancelled {
		return apperrors.NewPreconditionError("giveaway already finished")
	}
	if err := m.repo.SetStatus(ctx, giveawayID, models.StatusCancelled); err != nil {
		return err
	}
	m.mu.Lock()
	m.markActive(channelID, giveawayID, false)
	m.mu.Unlock()
	return nil
}

func (m *Manager) owned(ctx context.Context, channelID int64, giveawayID string) (*models.Giveaway, error) {
	g, err := m.repo.GetByID(ctx, giveawayID)
	if err != nil {
		return nil, err
	}
	if g.ChannelID != channelID {
		return nil, apperrors.NewPermissionDeniedError("giveaway belongs to another channel")
	}
	return g, nil
}

// Enter claims an entry and validates the giveaway's requirements. A failed
// requirement releases the claim and reports its reason.
func (m *Manager) Enter(ctx context.Context, giveawayID, userID, username string) error {
	g, err := m.repo.GetByID(ctx, giveawayID)
	if err != nil {
		return err
	}
	if g.Status != models.StatusActive {
		return apperrors.NewPreconditionError("giveaway is not active")
	}

	entry := &models.Entry{
		GiveawayID: giveawayID,
		UserID:     userID,
		Username:   username,
		EnteredAt:  m.nowFunc(),
	}
	if err := m.repo.ClaimEntry(ctx, entry); err != nil {
		return err
	}

	passed, reason, err := m.chain.Check(ctx, g.ChannelID, userID, g.Requirements)
	if err != nil {
		_ = m.repo.ReleaseEntry(ctx, giveawayID, userID)
		return err
	}
	if !passed {
		_ = m.repo.ReleaseEntry(ctx, giveawayID, userID)
		return apperrors.NewPreconditionError(reason)
	}
	return nil
}

// DryRunEnter runs the requirement chain without claiming an entry. The
// admin surface uses it to preview whether a viewer would qualify.
func (m *Manager) DryRunEnter(ctx context.Context, giveawayID, userID string) error {
	g, err := m.repo.GetByID(ctx, giveawayID)
	if err != nil {
		return err
	}
	if g.Status != models.StatusActive {
		return apperrors.NewPreconditionError("giveaway is not active")
	}
	passed, reason, err := m.chain.Check(ctx, g.ChannelID, userID, g.Requirements)
	if err != nil {
		return err
	}
	if !passed {
		return apperrors.NewPreconditionError(reason)
	}
	return nil
}

// OnChat enters the author into the channel's active giveaways when the
// message is the configured entry keyword. A failed requirement is answered
// in chat with its reason; duplicate entries stay silent.
func (m *Manager) OnChat(ctx context.Context, ev ingress.Event) {
	if ev.Kind != ingress.KindMessage {
		return
	}
	m.mu.Lock()
	ids := make([]string, 0, len(m.active[ev.ChannelID]))
	for id := range m.active[ev.ChannelID] {
		ids = append(ids, id)
	}
	m.mu.Unlock()
	if len(ids) == 0 {
		return
	}

	settings, err := m.settings.Settings(ctx, ev.ChannelID)
	if err != nil {
		m.log.Error().Int64("channel_id", ev.ChannelID).Err(err).Msg("Settings lookup failed")
		return
	}
	if !strings.EqualFold(strings.TrimSpace(ev.Text), settings.GiveawayEntryKeyword) {
		return
	}

	for _, id := range ids {
		err := m.Enter(ctx, id, ev.UserID, ev.Username)
		if err == nil || apperrors.IsCode(err, apperrors.ErrCodeAlreadyExists) {
			continue
		}
		m.log.Debug().Str("giveaway_id", id).Str("user_id", ev.UserID).Err(err).
			Msg("Chat entry rejected")
		if appErr, ok := apperrors.AsAppError(err); ok && appErr.Code == apperrors.ErrCodePreconditionFailed {
			_ = m.notifier.Notify(ctx, notify.TemplateEntryRejected, []int64{ev.ChannelID},
				map[string]string{"user": ev.Username, "reason": appErr.Message})
		}
	}
}

// Sweep auto-starts pending giveaways whose start time arrived and completes
// active ones whose end time passed. The supervisor calls it on a tick.
func (m *Manager) Sweep(ctx context.Context) {
	now := m.nowFunc()

	pending, err := m.repo.ListByStatus(ctx, models.StatusPending)
	if err != nil {
		m.log.Error().Err(err).Msg("Pending sweep failed")
	} else {
		for i := range pending {
			g := pending[i]
			if g.StartAt != nil && !g.StartAt.After(now) {
				if err := m.activate(ctx, &g); err != nil {
					m.log.Error().Str("giveaway_id", g.ID).Err(err).Msg("Auto-start failed")
				}
			}
		}
	}

	active, err := m.repo.ListByStatus(ctx, models.StatusActive)
	if err != nil {
		m.log.Error().Err(err).Msg("Active sweep failed")
		return
	}
	for i := range active {
		g := active[i]
		if g.EndAt != nil && !g.EndAt.After(now) {
			if _, err := m.complete(ctx, &g); err != nil {
				m.log.Error().Str("giveaway_id", g.ID).Err(err).Msg("Auto-complete failed")
			}
		}
	}
}

// HandleScheduledEvent is the scheduler handler for giveaway-typed events;
// the payload names the giveaway to start.
func (m *Manager) HandleScheduledEvent(ctx context.Context, ev eventmodels.ScheduledEvent) error {
	giveawayID := ev.Payload["giveaway_id"]
	if giveawayID == "" {
		return apperrors.New(apperrors.ErrCodeValidation, "scheduled giveaway event carries no giveaway_id")
	}
	g, err := m.repo.GetByID(ctx, giveawayID)
	if err != nil {
		return err
	}
	return m.activate(ctx, g)
}

func (m *Manager) activate(ctx context.Context, g *models.Giveaway) error {
	if g.Status != models.StatusPending {
		return apperrors.NewPreconditionError("giveaway is not pending")
	}
	if err := m.repo.SetStatus(ctx, g.ID, models.StatusActive); err != nil {
		return err
	}
	g.Status = models.StatusActive
	m.mu.Lock()
	m.markActive(g.ChannelID, g.ID, true)
	m.mu.Unlock()

	keyword := ""
	if settings, err := m.settings.Settings(ctx, g.ChannelID); err == nil {
		keyword = settings.GiveawayEntryKeyword
	}
	_ = m.notifier.Notify(ctx, notify.TemplateGiveawayStarted, []int64{g.ChannelID}, map[string]string{
		"title":   g.Title,
		"keyword": keyword,
	})
	m.log.Info().Str("giveaway_id", g.ID).Int64("channel_id", g.ChannelID).Msg("Giveaway started")
	return nil
}

// complete selects winners, persists them with the status transition and
// notifies the channel. Zero entries still complete the giveaway.
func (m *Manager) complete(ctx context.Context, g *models.Giveaway) ([]models.Winner, error) {
	if g.Status != models.StatusActive {
		return nil, apperrors.NewPreconditionError("giveaway is not active")
	}
	entries, err := m.repo.ListEntries(ctx, g.ID)
	if err != nil {
		return nil, err
	}

	winners := m.selectWinners(g, entries)
	if err := m.repo.CompleteWithWinners(ctx, g.ID, winners); err != nil {
		return nil, err
	}
	m.mu.Lock()
	m.markActive(g.ChannelID, g.ID, false)
	m.mu.Unlock()

	if len(winners) == 0 {
		_ = m.notifier.Notify(ctx, notify.TemplateGiveawayNoEntries, []int64{g.ChannelID},
			map[string]string{"title": g.Title})
		m.log.Info().Str("giveaway_id", g.ID).Msg("Giveaway completed with no entries")
		return winners, nil
	}

	names := make([]string, 0, len(winners))
	for _, w := range winners {
		names = append(names, w.Username)
		if g.PrizeID != "" && m.prizes != nil {
			if err := m.prizes.AssignPrize(ctx, g.ChannelID, g.PrizeID, w.UserID, w.Username); err != nil {
				m.log.Error().Str("giveaway_id", g.ID).Str("user_id", w.UserID).Err(err).
					Msg("Prize assignment failed")
			}
		}
	}
	_ = m.notifier.Notify(ctx, notify.TemplateGiveawayWinners, []int64{g.ChannelID}, map[string]string{
		"title":   g.Title,
		"winners": strings.Join(names, ", "),
	})
	m.log.Info().Str("giveaway_id", g.ID).Int("winners", len(winners)).Msg("Giveaway completed")
	return winners, nil
}

// selectWinners draws min(maxWinners, len(entries)) distinct entries by a
// uniform partial Fisher-Yates shuffle.
func (m *Manager) selectWinners(g *models.Giveaway, entries []models.Entry) []models.Winner {
	n := g.MaxWinners
	if n > len(entries) {
		n = len(entries)
	}
	pool := make([]models.Entry, len(entries))
	copy(pool, entries)

	now := m.nowFunc()
	winners := make([]models.Winner, 0, n)
	for i := 0; i < n; i++ {
		j := i + m.randIntn(len(pool)-i)
		pool[i], pool[j] = pool[j], pool[i]
		winners = append(winners, models.Winner{
			GiveawayID: g.ID,
			UserID:     pool[i].UserID,
			Username:   pool[i].Username,
			Place:      i + 1,
			SelectedAt: now,
		})
	}
	return winners
}
