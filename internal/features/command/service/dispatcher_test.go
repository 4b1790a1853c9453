package service

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	channelmodels "streambot-backend/internal/features/channel/models"
	"streambot-backend/internal/features/command/models"
	"streambot-backend/internal/ingress"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memCommandRepo struct {
	mu    sync.Mutex
	cmds  map[string]*models.Command
	usage map[string]int64
}

func newMemCommandRepo() *memCommandRepo {
	return &memCommandRepo{cmds: make(map[string]*models.Command), usage: make(map[string]int64)}
}

func cmdKey(channelID int64, name string) string { return fmt.Sprintf("%d:%s", channelID, name) }

func (r *memCommandRepo) Create(_ context.Context, cmd *models.Command) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := *cmd
	r.cmds[cmdKey(cmd.ChannelID, cmd.Name)] = &copied
	return nil
}

func (r *memCommandRepo) Update(_ context.Context, cmd *models.Command) error {
	return r.Create(context.Background(), cmd)
}

func (r *memCommandRepo) Delete(_ context.Context, channelID int64, name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.cmds, cmdKey(channelID, name))
	return nil
}

func (r *memCommandRepo) GetByName(_ context.Context, channelID int64, name string) (*models.Command, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cmd := *r.cmds[cmdKey(channelID, name)]
	return &cmd, nil
}

func (r *memCommandRepo) ListByChannel(_ context.Context, channelID int64) ([]models.Command, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Command
	for _, cmd := range r.cmds {
		if cmd.ChannelID == channelID {
			out = append(out, *cmd)
		}
	}
	return out, nil
}

func (r *memCommandRepo) AddUsage(_ context.Context, channelID int64, name string, delta int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.usage[cmdKey(channelID, name)] += delta
	return nil
}

type staticSettings struct {
	settings channelmodels.Settings
}

func (s staticSettings) Settings(context.Context, int64) (channelmodels.Settings, error) {
	return s.settings, nil
}

type recordingSender struct {
	mu    sync.Mutex
	sends []string
}

func (s *recordingSender) SendChat(_ context.Context, _ int64, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sends = append(s.sends, text)
	return nil
}

func (s *recordingSender) all() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.sends...)
}

func chatEvent(channelID int64, user, text string, roles ...ingress.Role) ingress.Event {
	return ingress.Event{
		Kind:      ingress.KindMessage,
		ChannelID: channelID,
		UserID:    user,
		Username:  user,
		Text:      text,
		Roles:     roles,
	}
}

func newTestDispatcher(t *testing.T, cmds ...models.Command) (*Dispatcher, *memCommandRepo, *recordingSender, *time.Time) {
	t.Helper()
	repo := newMemCommandRepo()
	for i := range cmds {
		require.NoError(t, repo.Create(context.Background(), &cmds[i]))
	}
	sender := &recordingSender{}
	d := NewDispatcher(repo, staticSettings{channelmodels.DefaultSettings()}, sender, nil)
	now := time.Unix(1_700_000_000, 0)
	d.nowFunc = func() time.Time { return now }
	require.NoError(t, d.Load(context.Background(), cmds[0].ChannelID))
	return d, repo, sender, &now
}

func TestDispatcherCooldownWindow(t *testing.T) {
	d, repo, sender, now := newTestDispatcher(t, models.Command{
		ChannelID:        1,
		Name:             "hi",
		ResponseTemplate: "ciao {user}",
		CooldownSeconds:  10,
		UserLevel:        models.LevelEveryone,
		Enabled:          true,
	})
	ctx := context.Background()
	start := *now

	d.OnChat(ctx, chatEvent(1, "alice", "!hi world"))
	*now = start.Add(5 * time.Second)
	d.OnChat(ctx, chatEvent(1, "alice", "!hi"))
	*now = start.Add(11 * time.Second)
	d.OnChat(ctx, chatEvent(1, "alice", "!hi"))

	assert.Equal(t, []string{"ciao alice", "ciao alice"}, sender.all())

	d.FlushUsage(ctx)
	assert.EqualValues(t, 2, repo.usage[cmdKey(1, "hi")])
}

func TestDispatcherGlobalCooldownAcrossUsers(t *testing.T) {
	d, _, sender, now := newTestDispatcher(t, models.Command{
		ChannelID:        1,
		Name:             "hi",
		ResponseTemplate: "ciao {user}",
		CooldownSeconds:  0,
		UserLevel:        models.LevelEveryone,
		Enabled:          true,
	})
	ctx := context.Background()
	start := *now

	d.OnChat(ctx, chatEvent(1, "alice", "!hi"))
	*now = start.Add(time.Second)
	d.OnChat(ctx, chatEvent(1, "bob", "!hi"))
	*now = start.Add(4 * time.Second)
	d.OnChat(ctx, chatEvent(1, "bob", "!hi"))

	// Zero per-user cooldown still leaves the global default in force.
	assert.Equal(t, []string{"ciao alice", "ciao bob"}, sender.all())
}

func TestDispatcherRoleGate(t *testing.T) {
	d, _, sender, _ := newTestDispatcher(t, models.Command{
		ChannelID:        1,
		Name:             "modonly",
		ResponseTemplate: "ok {user}",
		UserLevel:        models.LevelModerator,
		Enabled:          true,
	})
	ctx := context.Background()

	d.OnChat(ctx, chatEvent(1, "alice", "!modonly"))
	assert.Empty(t, sender.all())

	d.OnChat(ctx, chatEvent(1, "carol", "!modonly", ingress.RoleOwner))
	assert.Equal(t, []string{"ok carol"}, sender.all())
}

func TestDispatcherIgnoresDisabledAndUnknown(t *testing.T) {
	d, _, sender, _ := newTestDispatcher(t, models.Command{
		ChannelID:        1,
		Name:             "off",
		ResponseTemplate: "nope",
		UserLevel:        models.LevelEveryone,
		Enabled:          false,
	})
	ctx := context.Background()

	d.OnChat(ctx, chatEvent(1, "alice", "!off"))
	d.OnChat(ctx, chatEvent(1, "alice", "!missing"))
	d.OnChat(ctx, chatEvent(1, "alice", "no prefix here"))
	assert.Empty(t, sender.all())
}

func TestDispatcherArgsSubstitution(t *testing.T) {
	d, _, sender, _ := newTestDispatcher(t, models.Command{
		ChannelID:        1,
		Name:             "so",
		ResponseTemplate: "go follow {args}, says {user}",
		UserLevel:        models.LevelEveryone,
		Enabled:          true,
	})

	d.OnChat(context.Background(), chatEvent(1, "alice", "!so  bob the builder "))
	assert.Equal(t, []string{"go follow bob the builder, says alice"}, sender.all())
}

func TestCooldownTableEvictsLeastRecent(t *testing.T) {
	table := newCooldownTable()
	base := time.Unix(0, 0)
	for i := 0; i < cooldownCap; i++ {
		table.set(fmt.Sprintf("k%d", i), base.Add(time.Duration(i)*time.Second))
	}
	table.set("overflow", base.Add(time.Hour))

	assert.Len(t, table.entries, cooldownCap)
	_, ok := table.get("k0")
	assert.False(t, ok, "least-recent entry should be evicted")
	_, ok = table.get("overflow")
	assert.True(t, ok)
}
