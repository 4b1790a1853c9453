// Package supervisor owns the per-channel runtime: one ingress, one event
// routing loop and one accrual ticker per active channel, plus the global
// scheduler and maintenance loops. Channels are started on activation and
// torn down on deactivation or shutdown.
package supervisor

import (
	"context"
	"sync"
	"time"

	apperrors "streambot-backend/internal/common/errors"
	"streambot-backend/internal/common/logger"
	"streambot-backend/internal/features/channel/models"
	"streambot-backend/internal/ingress"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

const (
	usageFlushInterval = 30 * time.Second
	shutdownGrace      = 5 * time.Second
)

// CommandDispatcher is the command runtime slice the supervisor drives.
type CommandDispatcher interface {
	Load(ctx context.Context, channelID int64) error
	Unload(channelID int64)
	OnChat(ctx context.Context, ev ingress.Event)
	FlushUsage(ctx context.Context)
}

// PointsEngine accrues viewer points from routed events and minute ticks.
type PointsEngine interface {
	OnEvent(ctx context.Context, ev ingress.Event)
	Tick(ctx context.Context, channelID int64)
	Unload(channelID int64)
}

// RewardArbiter holds the per-channel reward catalogue and stream counters.
type RewardArbiter interface {
	Load(ctx context.Context, channelID int64) error
	Unload(channelID int64)
	OnStreamStart(channelID int64)
}

// GiveawayRunner consumes chat entries and runs timed transitions.
type GiveawayRunner interface {
	Load(ctx context.Context) error
	OnChat(ctx context.Context, ev ingress.Event)
	Sweep(ctx context.Context)
}

// EventScheduler is the scheduled-event loop the supervisor ticks.
type EventScheduler interface {
	Load(ctx context.Context) error
	Tick(ctx context.Context)
	Wait()
}

// ViewerRegistry records followers and subscribers as their events arrive.
type ViewerRegistry interface {
	MarkFollower(ctx context.Context, channelID int64, userID string) error
	MarkSubscriber(ctx context.Context, channelID int64, userID string, tier int) error
}

// SettingsProvider reads the per-channel settings.
type SettingsProvider interface {
	Settings(ctx context.Context, channelID int64) (models.Settings, error)
}

// ActivityRecorder counts chat messages per hour.
type ActivityRecorder interface {
	RecordActivity(ctx context.Context, channelID int64, at time.Time)
}

// Sender posts outbound chat lines.
type Sender interface {
	SendChat(ctx context.Context, channelID int64, text string) error
}

// ChannelLister returns the channels the supervisor should be running.
type ChannelLister interface {
	ListActive(ctx context.Context) ([]models.Channel, error)
}

// Config carries the supervisor's tick cadences and platform endpoints.
type Config struct {
	KickChatWSURL string
	PollInterval  time.Duration
	PointsTick    time.Duration
	SchedulerTick time.Duration
}

type channelRuntime struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// Supervisor runs one runtime per active channel. Events from a channel's
// ingress are routed sequentially, so per-channel ordering holds end to end.
type Supervisor struct {
	cfg        Config
	channels   ChannelLister
	dir        ChannelDirectory
	registry   ViewerRegistry
	settings   SettingsProvider
	dispatcher CommandDispatcher
	engine     PointsEngine
	arbiter    RewardArbiter
	giveaways  GiveawayRunner
	scheduler  EventScheduler
	stats      ActivityRecorder
	sender     Sender
	poller     ingress.ChatPoller
	log        zerolog.Logger

	// newIngress is swapped in tests.
	newIngress func(ch *models.Channel) (ingress.Ingress, error)

	mu      sync.Mutex
	baseCtx context.Context
	running map[int64]*channelRuntime
}

func New(cfg Config, channels ChannelLister, dir ChannelDirectory, registry ViewerRegistry,
	settings SettingsProvider, dispatcher CommandDispatcher, engine PointsEngine,
	arbiter RewardArbiter, giveaways GiveawayRunner, scheduler EventScheduler,
	stats ActivityRecorder, sender Sender, poller ingress.ChatPoller) *Supervisor {

	s := &Supervisor{
		cfg:        cfg,
		channels:   channels,
		dir:        dir,
		registry:   registry,
		settings:   settings,
		dispatcher: dispatcher,
		engine:     engine,
		arbiter:    arbiter,
		giveaways:  giveaways,
		scheduler:  scheduler,
		stats:      stats,
		sender:     sender,
		poller:     poller,
		log:        logger.Component("supervisor"),
		baseCtx:    context.Background(),
		running:    make(map[int64]*channelRuntime),
	}
	s.newIngress = s.defaultIngress
	return s
}

func (s *Supervisor) defaultIngress(ch *models.Channel) (ingress.Ingress, error) {
	switch ch.Platform {
	case models.PlatformKick:
		if ch.ChatroomID == "" {
			return nil, apperrors.NewPreconditionError("channel has no chatroom id")
		}
		return ingress.NewPushIngress(ch.ID, ch.ChatroomID, s.cfg.KickChatWSURL), nil
	case models.PlatformYouTube:
		if ch.LiveChatID == "" {
			return nil, apperrors.NewPreconditionError("channel has no live chat id")
		}
		return ingress.NewPollIngress(ch.ID, ch.LiveChatID, s.poller, s.cfg.PollInterval), nil
	default:
		return nil, apperrors.Newf(apperrors.ErrCodeInternal, "unknown platform %q", ch.Platform)
	}
}

// Run loads persistent state, starts every active channel and drives the
// global loops until the context is cancelled.
func (s *Supervisor) Run(ctx context.Context) error {
	s.mu.Lock()
	s.baseCtx = ctx
	s.mu.Unlock()

	if err := s.scheduler.Load(ctx); err != nil {
		return err
	}
	if err := s.giveaways.Load(ctx); err != nil {
		return err
	}

	active, err := s.channels.ListActive(ctx)
	if err != nil {
		return err
	}
	for _, ch := range active {
		if err := s.StartChannel(ctx, ch.ID); err != nil {
			s.log.Error().Int64("channel_id", ch.ID).Err(err).Msg("Failed to start channel")
		}
	}
	s.log.Info().Int("channels", len(active)).Msg("Supervisor started")

	schedulerTicker := time.NewTicker(s.cfg.SchedulerTick)
	defer schedulerTicker.Stop()
	flushTicker := time.NewTicker(usageFlushInterval)
	defer flushTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.shutdown()
			return ctx.Err()
		case <-schedulerTicker.C:
			s.scheduler.Tick(ctx)
			s.giveaways.Sweep(ctx)
		case <-flushTicker.C:
			s.dispatcher.FlushUsage(ctx)
		}
	}
}

func (s *Supervisor) shutdown() {
	s.mu.Lock()
	ids := make([]int64, 0, len(s.running))
	for id := range s.running {
		ids = append(ids, id)
	}
	s.mu.Unlock()

	for _, id := range ids {
		s.StopChannel(id)
	}
	s.scheduler.Wait()

	ctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	s.dispatcher.FlushUsage(ctx)
	s.log.Info().Msg("Supervisor stopped")
}

// StartChannel brings one channel's runtime online. Starting an already
// running channel is a no-op.
func (s *Supervisor) StartChannel(ctx context.Context, channelID int64) error {
	s.mu.Lock()
	if _, ok := s.running[channelID]; ok {
		s.mu.Unlock()
		return nil
	}
	base := s.baseCtx
	s.mu.Unlock()

	ch, err := s.dir.GetByID(ctx, channelID)
	if err != nil {
		return err
	}
	if !ch.Active {
		return apperrors.NewPreconditionError("channel is not active")
	}

	ing, err := s.newIngress(ch)
	if err != nil {
		return err
	}
	if err := s.dispatcher.Load(ctx, channelID); err != nil {
		return err
	}
	if err := s.arbiter.Load(ctx, channelID); err != nil {
		s.dispatcher.Unload(channelID)
		return err
	}

	runCtx, cancel := context.WithCancel(base)
	rt := &channelRuntime{cancel: cancel, done: make(chan struct{})}

	s.mu.Lock()
	if _, ok := s.running[channelID]; ok {
		s.mu.Unlock()
		cancel()
		return nil
	}
	s.running[channelID] = rt
	s.mu.Unlock()

	go s.runChannel(runCtx, channelID, ing, rt)

	s.log.Info().Int64("channel_id", channelID).
		Str("platform", string(ch.Platform)).Msg("Channel runtime started")
	return nil
}

func (s *Supervisor) runChannel(ctx context.Context, channelID int64, ing ingress.Ingress, rt *channelRuntime) {
	defer close(rt.done)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return ing.Run(gctx)
	})

	g.Go(func() error {
		for ev := range ing.Events() {
			s.route(gctx, ev)
		}
		return nil
	})

	g.Go(func() error {
		ticker := time.NewTicker(s.cfg.PointsTick)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return gctx.Err()
			case <-ticker.C:
				s.engine.Tick(gctx, channelID)
			}
		}
	})

	if err := g.Wait(); err != nil && ctx.Err() == nil {
		s.log.Error().Int64("channel_id", channelID).Err(err).Msg("Channel runtime failed")
	}
}

// route fans one normalized event out to the interested subsystems. Calls are
// sequential so a message can never outrun the stream-start that preceded it.
func (s *Supervisor) route(ctx context.Context, ev ingress.Event) {
	switch ev.Kind {
	case ingress.KindMessage:
		s.dispatcher.OnChat(ctx, ev)
		s.engine.OnEvent(ctx, ev)
		s.giveaways.OnChat(ctx, ev)
		s.stats.RecordActivity(ctx, ev.ChannelID, ev.ReceivedAt)

	case ingress.KindFollow:
		s.engine.OnEvent(ctx, ev)
		if err := s.registry.MarkFollower(ctx, ev.ChannelID, ev.UserID); err != nil {
			s.log.Warn().Int64("channel_id", ev.ChannelID).Err(err).Msg("Failed to record follower")
		}

	case ingress.KindSubscribe:
		s.engine.OnEvent(ctx, ev)
		if err := s.registry.MarkSubscriber(ctx, ev.ChannelID, ev.UserID, ev.Tier); err != nil {
			s.log.Warn().Int64("channel_id", ev.ChannelID).Err(err).Msg("Failed to record subscriber")
		}

	case ingress.KindRaid:
		s.engine.OnEvent(ctx, ev)

	case ingress.KindStreamStart:
		s.engine.OnEvent(ctx, ev)
		s.arbiter.OnStreamStart(ev.ChannelID)
		s.sendWelcome(ctx, ev.ChannelID)

	case ingress.KindStreamEnd:
		s.engine.OnEvent(ctx, ev)
	}
}

func (s *Supervisor) sendWelcome(ctx context.Context, channelID int64) {
	st, err := s.settings.Settings(ctx, channelID)
	if err != nil || st.WelcomeMessage == "" {
		return
	}
	if err := s.sender.SendChat(ctx, channelID, st.WelcomeMessage); err != nil {
		s.log.Warn().Int64("channel_id", channelID).Err(err).Msg("Failed to send welcome message")
	}
}

// StopChannel tears one channel's runtime down and evicts its cached state.
// Stopping a channel that is not running is a no-op.
func (s *Supervisor) StopChannel(channelID int64) {
	s.mu.Lock()
	rt, ok := s.running[channelID]
	if ok {
		delete(s.running, channelID)
	}
	s.mu.Unlock()
	if !ok {
		return
	}

	rt.cancel()
	select {
	case <-rt.done:
	case <-time.After(shutdownGrace):
		s.log.Warn().Int64("channel_id", channelID).Msg("Channel runtime did not stop in time")
	}

	s.dispatcher.Unload(channelID)
	s.engine.Unload(channelID)
	s.arbiter.Unload(channelID)
	s.log.Info().Int64("channel_id", channelID).Msg("Channel runtime stopped")
}

// Running reports whether a channel currently has a runtime.
func (s *Supervisor) Running(channelID int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.running[channelID]
	return ok
}
