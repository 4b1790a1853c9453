package service

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	apperrors "streambot-backend/internal/common/errors"
	channelmodels "streambot-backend/internal/features/channel/models"
	"streambot-backend/internal/features/points/models"
	"streambot-backend/internal/ingress"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memPointsRepo struct {
	mu       sync.Mutex
	balances map[string]*models.Balance
}

func newMemPointsRepo() *memPointsRepo {
	return &memPointsRepo{balances: make(map[string]*models.Balance)}
}

func balanceKey(channelID int64, userID string) string {
	return fmt.Sprintf("%d:%s", channelID, userID)
}

func (r *memPointsRepo) Adjust(_ context.Context, channelID int64, userID, username string, delta int64) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := balanceKey(channelID, userID)
	b, ok := r.balances[key]
	if !ok {
		if delta < 0 {
			return 0, apperrors.New(apperrors.ErrCodeInsufficientPoints, "balance too low")
		}
		b = &models.Balance{ChannelID: channelID, UserID: userID}
		r.balances[key] = b
	}
	if b.Points+delta < 0 {
		return 0, apperrors.New(apperrors.ErrCodeInsufficientPoints, "balance too low")
	}
	b.Points += delta
	if username != "" {
		b.Username = username
	}
	return b.Points, nil
}

func (r *memPointsRepo) AddWatchSeconds(_ context.Context, channelID int64, userID string, seconds int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := balanceKey(channelID, userID)
	if b, ok := r.balances[key]; ok {
		b.WatchSeconds += seconds
	} else {
		r.balances[key] = &models.Balance{ChannelID: channelID, UserID: userID, WatchSeconds: seconds}
	}
	return nil
}

func (r *memPointsRepo) Get(_ context.Context, channelID int64, userID string) (*models.Balance, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if b, ok := r.balances[balanceKey(channelID, userID)]; ok {
		copied := *b
		return &copied, nil
	}
	return &models.Balance{ChannelID: channelID, UserID: userID}, nil
}

func (r *memPointsRepo) Top(_ context.Context, channelID int64, limit int) ([]models.Balance, error) {
	return nil, nil
}

type fixedSettings struct {
	settings channelmodels.Settings
}

func (s fixedSettings) Settings(context.Context, int64) (channelmodels.Settings, error) {
	return s.settings, nil
}

func points(t *testing.T, repo *memPointsRepo, channelID int64, userID string) int64 {
	t.Helper()
	b, err := repo.Get(context.Background(), channelID, userID)
	require.NoError(t, err)
	return b.Points
}

func TestEngineAccrualTick(t *testing.T) {
	settings := channelmodels.DefaultSettings()
	settings.PointsPerMinute = 1
	settings.PointsPerChatMessage = 1
	settings.SubscriberMultiplier = 1.5

	repo := newMemPointsRepo()
	engine := NewEngine(NewLedger(repo, nil), fixedSettings{settings})
	start := time.Unix(1_700_000_000, 0)
	now := start
	engine.nowFunc = func() time.Time { return now }
	ctx := context.Background()

	engine.OnEvent(ctx, ingress.Event{Kind: ingress.KindStreamStart, ChannelID: 1})
	engine.OnEvent(ctx, ingress.Event{
		Kind: ingress.KindMessage, ChannelID: 1, UserID: "alice", Username: "alice",
		Text: "hello", ReceivedAt: start.Add(10 * time.Second),
	})
	engine.OnEvent(ctx, ingress.Event{
		Kind: ingress.KindMessage, ChannelID: 1, UserID: "bob", Username: "bob",
		Text: "hi", Roles: []ingress.Role{ingress.RoleSubscriber}, ReceivedAt: start.Add(20 * time.Second),
	})

	now = start.Add(60 * time.Second)
	engine.Tick(ctx, 1)

	// One chat grant plus one minute grant each; floor(1*1.5)=1 for bob.
	assert.EqualValues(t, 2, points(t, repo, 1, "alice"))
	assert.EqualValues(t, 2, points(t, repo, 1, "bob"))

	b, err := repo.Get(ctx, 1, "bob")
	require.NoError(t, err)
	assert.EqualValues(t, 60, b.WatchSeconds)
}

func TestEngineTickIdleWhileOffline(t *testing.T) {
	repo := newMemPointsRepo()
	engine := NewEngine(NewLedger(repo, nil), fixedSettings{channelmodels.DefaultSettings()})
	ctx := context.Background()

	engine.OnEvent(ctx, ingress.Event{
		Kind: ingress.KindMessage, ChannelID: 1, UserID: "alice", Username: "alice",
		ReceivedAt: time.Now(),
	})
	before := points(t, repo, 1, "alice")

	engine.Tick(ctx, 1)
	assert.Equal(t, before, points(t, repo, 1, "alice"), "no minute grant before StreamStart")

	engine.OnEvent(ctx, ingress.Event{Kind: ingress.KindStreamEnd, ChannelID: 1})
	engine.Tick(ctx, 1)
	assert.Equal(t, before, points(t, repo, 1, "alice"))
}

func TestEngineActiveWindowPruning(t *testing.T) {
	settings := channelmodels.DefaultSettings()
	settings.PointsPerMinute = 1
	settings.PointsPerChatMessage = 0

	repo := newMemPointsRepo()
	engine := NewEngine(NewLedger(repo, nil), fixedSettings{settings})
	start := time.Unix(1_700_000_000, 0)
	now := start
	engine.nowFunc = func() time.Time { return now }
	ctx := context.Background()

	engine.OnEvent(ctx, ingress.Event{Kind: ingress.KindStreamStart, ChannelID: 1})
	engine.OnEvent(ctx, ingress.Event{
		Kind: ingress.KindMessage, ChannelID: 1, UserID: "alice", Username: "alice", ReceivedAt: start,
	})

	now = start.Add(599 * time.Second)
	engine.Tick(ctx, 1)
	assert.EqualValues(t, 1, points(t, repo, 1, "alice"))

	now = start.Add(601 * time.Second)
	engine.Tick(ctx, 1)
	assert.EqualValues(t, 1, points(t, repo, 1, "alice"), "pruned after the activity window")
}

func TestEngineEventGrants(t *testing.T) {
	settings := channelmodels.DefaultSettings()
	settings.PointsPerFollow = 50
	settings.PointsPerSubscription = 300
	settings.PointsPerRaidViewer = 5
	settings.PointsPerChatMessage = 0

	repo := newMemPointsRepo()
	engine := NewEngine(NewLedger(repo, nil), fixedSettings{settings})
	ctx := context.Background()

	engine.OnEvent(ctx, ingress.Event{Kind: ingress.KindFollow, ChannelID: 1, UserID: "u1", Username: "u1"})
	engine.OnEvent(ctx, ingress.Event{Kind: ingress.KindSubscribe, ChannelID: 1, UserID: "u2", Username: "u2"})
	engine.OnEvent(ctx, ingress.Event{
		Kind: ingress.KindRaid, ChannelID: 1,
		RaiderUserID: "u3", RaiderUsername: "u3", ViewerCount: 12,
	})

	assert.EqualValues(t, 50, points(t, repo, 1, "u1"))
	assert.EqualValues(t, 300, points(t, repo, 1, "u2"))
	assert.EqualValues(t, 60, points(t, repo, 1, "u3"))
}

func TestMultiplierPrecedence(t *testing.T) {
	settings := channelmodels.DefaultSettings()
	settings.SubscriberMultiplier = 1.5
	settings.VIPMultiplier = 2.0
	settings.ModeratorMultiplier = 1.2

	assert.Equal(t, 1.0, multiplierFor(nil, settings))
	assert.Equal(t, 1.5, multiplierFor([]ingress.Role{ingress.RoleSubscriber}, settings))
	assert.Equal(t, 2.0, multiplierFor([]ingress.Role{ingress.RoleSubscriber, ingress.RoleVIP}, settings))
	// Moderator outranks the others even with a lower multiplier value.
	assert.Equal(t, 1.2, multiplierFor([]ingress.Role{ingress.RoleVIP, ingress.RoleModerator}, settings))
}
