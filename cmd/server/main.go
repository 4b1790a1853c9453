package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"streambot-backend/internal/common/config"
	"streambot-backend/internal/common/logger"
	"streambot-backend/internal/common/middleware"
	channelhttp "streambot-backend/internal/features/channel/delivery/http"
	channelpg "streambot-backend/internal/features/channel/repository/postgres"
	channelservice "streambot-backend/internal/features/channel/service"
	commandhttp "streambot-backend/internal/features/command/delivery/http"
	commandpg "streambot-backend/internal/features/command/repository/postgres"
	commandservice "streambot-backend/internal/features/command/service"
	eventhttp "streambot-backend/internal/features/event/delivery/http"
	eventmodels "streambot-backend/internal/features/event/models"
	eventpg "streambot-backend/internal/features/event/repository/postgres"
	eventservice "streambot-backend/internal/features/event/service"
	giveawayhttp "streambot-backend/internal/features/giveaway/delivery/http"
	giveawaypg "streambot-backend/internal/features/giveaway/repository/postgres"
	giveawayservice "streambot-backend/internal/features/giveaway/service"
	pointspg "streambot-backend/internal/features/points/repository/postgres"
	pointsservice "streambot-backend/internal/features/points/service"
	rewardhttp "streambot-backend/internal/features/reward/delivery/http"
	rewardpg "streambot-backend/internal/features/reward/repository/postgres"
	rewardservice "streambot-backend/internal/features/reward/service"
	statshttp "streambot-backend/internal/features/stats/delivery/http"
	statsservice "streambot-backend/internal/features/stats/service"
	tokenpg "streambot-backend/internal/features/token/repository/postgres"
	tokenservice "streambot-backend/internal/features/token/service"
	"streambot-backend/internal/notify"
	"streambot-backend/internal/platform/db"
	"streambot-backend/internal/platform/kick"
	redisp "streambot-backend/internal/platform/redis"
	"streambot-backend/internal/platform/youtube"
	"streambot-backend/internal/supervisor"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg := config.Load()
	logger.Init("streambot-backend", cfg.Debug)
	if !cfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pg, err := db.Open(ctx, cfg.Postgres.DSN)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to connect to postgres")
	}
	defer pg.Close()

	rdb, err := redisp.Open(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to connect to redis")
	}
	defer rdb.Close()

	channelRepo := channelpg.NewChannelRepository(pg)
	tokenRepo := tokenpg.NewTokenRepository(pg)
	commandRepo := commandpg.NewCommandRepository(pg)
	pointsRepo := pointspg.NewPointsRepository(pg)
	rewardRepo := rewardpg.NewRewardRepository(pg)
	eventRepo := eventpg.NewEventRepository(pg)
	giveawayRepo := giveawaypg.NewGiveawayRepository(pg)

	oauth := kick.NewOAuthClient(cfg.Kick.TokenURL, cfg.Kick.ClientID, cfg.Kick.ClientSecret, cfg.Kick.RedirectURI)
	vault, err := tokenservice.NewVault(tokenRepo, oauth, []byte(cfg.MasterSecret))
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialise token vault")
	}
	kickClient := kick.NewClient(cfg.Kick.APIBase, vault)
	ytClient := youtube.NewClient(cfg.YouTube.APIBase, cfg.YouTube.APIKey)

	channelSvc := channelservice.NewChannelService(channelRepo, oauth, kickClient, vault, rdb)
	sender := supervisor.NewKickSender(kickClient, channelRepo)
	notifier := notify.NewChatNotifier(sender)

	ledger := pointsservice.NewLedger(pointsRepo, rdb)
	engine := pointsservice.NewEngine(ledger, channelSvc)

	dispatcher := commandservice.NewDispatcher(commandRepo, channelSvc, sender, rdb)
	commandSvc := commandservice.NewCommandService(commandRepo, channelSvc, dispatcher)

	arbiter := rewardservice.NewArbiter(rewardRepo, channelSvc)
	rewardSvc := rewardservice.NewRewardService(rewardRepo, channelSvc, arbiter)

	scheduler := eventservice.NewScheduler(eventRepo, notifier)
	eventSvc := eventservice.NewEventService(eventRepo, channelSvc, scheduler)

	chain := giveawayservice.NewValidatorChain(channelSvc, ledger)
	giveaways := giveawayservice.NewManager(giveawayRepo, chain, channelSvc, channelSvc, notifier, nil)

	scheduler.RegisterHandler(eventmodels.TypeGiveaway, giveaways.HandleScheduledEvent)
	scheduler.RegisterHandler(eventmodels.TypeAutomation,
		supervisor.NewAutomationHandler(sender, kickClient, channelRepo).Handle)
	announce := func(ctx context.Context, ev eventmodels.ScheduledEvent) error {
		return notifier.Notify(ctx, notify.TemplateEventStarted,
			[]int64{ev.ChannelID}, map[string]string{"title": ev.Title})
	}
	for _, t := range []eventmodels.EventType{
		eventmodels.TypeStream,
		eventmodels.TypeSocialPost,
		eventmodels.TypeReminder,
		eventmodels.TypeChannelUpdate,
		eventmodels.TypeOther,
	} {
		scheduler.RegisterHandler(t, announce)
	}

	statsSvc := statsservice.NewStatsService(channelSvc, ledger, commandRepo, rdb)

	sup := supervisor.New(supervisor.Config{
		KickChatWSURL: cfg.Kick.ChatWSURL,
		PollInterval:  cfg.Ticks.Poll,
		PointsTick:    cfg.Ticks.Points,
		SchedulerTick: cfg.Ticks.Scheduler,
	}, channelSvc, channelRepo, channelSvc, channelSvc,
		dispatcher, engine, arbiter, giveaways, scheduler, statsSvc, sender, ytClient)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())
	router.Use(middleware.Logger())
	router.Use(middleware.ErrorHandler())
	router.Use(cors.New(cors.Config{
		AllowOrigins:     []string{cfg.Server.Origin},
		AllowMethods:     []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Content-Type", "X-Api-Key", "X-Owner-Id"},
		AllowCredentials: true,
	}))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := router.Group("/api/v1")
	api.Use(middleware.RequireAPIKey(cfg.Server.APIKey))

	channelhttp.NewChannelHandler(channelSvc, vault, sup).RegisterRoutes(api)
	commandhttp.NewCommandHandler(commandSvc).RegisterRoutes(api)
	rewardhttp.NewRewardHandler(rewardSvc, arbiter).RegisterRoutes(api)
	eventhttp.NewEventHandler(eventSvc).RegisterRoutes(api)
	giveawayhttp.NewGiveawayHandler(giveaways).RegisterRoutes(api)
	statshttp.NewStatsHandler(statsSvc).RegisterRoutes(api)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info().Int("port", cfg.Server.Port).Msg("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		if err := sup.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Fatal().Err(err).Msg("Server exited with error")
	}
	logger.Info().Msg("Server stopped")
}
