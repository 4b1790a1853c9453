// Package service contains the command dispatcher and the admin-facing
// command service.
package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	channelmodels "streambot-backend/internal/features/channel/models"
	"streambot-backend/internal/features/command/models"
	"streambot-backend/internal/features/command/repository"
	"streambot-backend/internal/ingress"
	redisp "streambot-backend/internal/platform/redis"

	"streambot-backend/internal/common/logger"

	"github.com/rs/zerolog"
)

const (
	// DefaultGlobalCooldown throttles a command across all users, on top of
	// its own per-user cooldown.
	DefaultGlobalCooldown = 3 * time.Second

	// cooldownCap bounds each per-channel cooldown table. Overflow evicts
	// the least-recent entry.
	cooldownCap = 512
)

// Sender delivers an outbound chat line. Delivery is best-effort.
type Sender interface {
	SendChat(ctx context.Context, channelID int64, text string) error
}

// SettingsProvider exposes the channel settings the dispatcher needs.
type SettingsProvider interface {
	Settings(ctx context.Context, channelID int64) (channelmodels.Settings, error)
}

// cooldownTable is a bounded last-dispatch map for one channel.
type cooldownTable struct {
	entries map[string]time.Time
}

func newCooldownTable() *cooldownTable {
	return &cooldownTable{entries: make(map[string]time.Time)}
}

func (t *cooldownTable) get(key string) (time.Time, bool) {
	at, ok := t.entries[key]
	return at, ok
}

func (t *cooldownTable) set(key string, at time.Time) {
	if _, ok := t.entries[key]; !ok && len(t.entries) >= cooldownCap {
		var oldestKey string
		var oldest time.Time
		first := true
		for k, v := range t.entries {
			if first || v.Before(oldest) {
				oldestKey, oldest, first = k, v, false
			}
		}
		delete(t.entries, oldestKey)
	}
	t.entries[key] = at
}

type usageKey struct {
	channelID int64
	name      string
}

// Dispatcher resolves prefixed chat messages to commands, applies cooldowns
// and the role gate, and emits the rendered response.
type Dispatcher struct {
	repo     repository.CommandRepository
	settings SettingsProvider
	sender   Sender
	rdb      *redisp.Client
	log      zerolog.Logger
	nowFunc  func() time.Time

	mu       sync.Mutex
	commands map[int64]map[string]models.Command
	global   map[int64]*cooldownTable
	perUser  map[int64]*cooldownTable
	usage    map[usageKey]int64
}

// NewDispatcher wires the dispatcher. rdb may be nil; command usage is then
// only flushed to the store.
func NewDispatcher(repo repository.CommandRepository, settings SettingsProvider, sender Sender, rdb *redisp.Client) *Dispatcher {
	return &Dispatcher{
		repo:     repo,
		settings: settings,
		sender:   sender,
		rdb:      rdb,
		log:      logger.Component("dispatcher"),
		nowFunc:  time.Now,
		commands: make(map[int64]map[string]models.Command),
		global:   make(map[int64]*cooldownTable),
		perUser:  make(map[int64]*cooldownTable),
		usage:    make(map[usageKey]int64),
	}
}

// Load reads the channel's command table into memory. Called on channel
// activation and by Reload after admin edits.
func (d *Dispatcher) Load(ctx context.Context, channelID int64) error {
	cmds, err := d.repo.ListByChannel(ctx, channelID)
	if err != nil {
		return err
	}
	table := make(map[string]models.Command, len(cmds))
	for _, cmd := range cmds {
		table[cmd.Name] = cmd
	}
	d.mu.Lock()
	d.commands[channelID] = table
	d.mu.Unlock()
	d.log.Debug().Int64("channel_id", channelID).Int("commands", len(table)).Msg("Command table loaded")
	return nil
}

// Reload is the invalidation signal from the admin layer.
func (d *Dispatcher) Reload(ctx context.Context, channelID int64) error {
	return d.Load(ctx, channelID)
}

// Unload drops the channel's in-memory state when its runtime stops.
func (d *Dispatcher) Unload(channelID int64) {
	d.mu.Lock()
	delete(d.commands, channelID)
	delete(d.global, channelID)
	delete(d.perUser, channelID)
	d.mu.Unlock()
}

// OnChat processes one chat message. Failures never surface to chat.
func (d *Dispatcher) OnChat(ctx context.Context, ev ingress.Event) {
	if ev.Kind != ingress.KindMessage {
		return
	}

	settings, err := d.settings.Settings(ctx, ev.ChannelID)
	if err != nil {
		d.log.Error().Int64("channel_id", ev.ChannelID).Err(err).Msg("Settings lookup failed")
		return
	}
	if !strings.HasPrefix(ev.Text, settings.Prefix) {
		return
	}

	name, args := splitCommand(strings.TrimPrefix(ev.Text, settings.Prefix))
	if name == "" {
		return
	}

	cmd, ok := d.lookup(ev.ChannelID, name)
	if !ok || !cmd.Enabled {
		return
	}
	if levelFromRoles(ev.Roles).Rank() < cmd.UserLevel.Rank() {
		return
	}
	if !d.acquireCooldowns(ev.ChannelID, name, ev.UserID, time.Duration(cmd.CooldownSeconds)*time.Second) {
		return
	}

	rendered := strings.NewReplacer("{user}", ev.Username, "{args}", args).Replace(cmd.ResponseTemplate)
	if err := d.sender.SendChat(ctx, ev.ChannelID, rendered); err != nil {
		d.log.Warn().Int64("channel_id", ev.ChannelID).Str("command", name).Err(err).
			Msg("Command response send failed")
	}

	d.mu.Lock()
	d.usage[usageKey{ev.ChannelID, name}]++
	d.mu.Unlock()

	if d.rdb != nil {
		_ = d.rdb.HIncrBy(ctx, fmt.Sprintf("cmdusage:%d", ev.ChannelID), name, 1).Err()
	}
}

func (d *Dispatcher) lookup(channelID int64, name string) (models.Command, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	cmd, ok := d.commands[channelID][name]
	return cmd, ok
}

// acquireCooldowns checks both maps and, when the dispatch is admitted,
// stamps them under one lock so racing acquirers serialize and the first
// update wins.
func (d *Dispatcher) acquireCooldowns(channelID int64, name, userID string, userCooldown time.Duration) bool {
	now := d.nowFunc()
	d.mu.Lock()
	defer d.mu.Unlock()

	global, ok := d.global[channelID]
	if !ok {
		global = newCooldownTable()
		d.global[channelID] = global
	}
	perUser, ok := d.perUser[channelID]
	if !ok {
		perUser = newCooldownTable()
		d.perUser[channelID] = perUser
	}

	if at, ok := global.get(name); ok && now.Sub(at) < DefaultGlobalCooldown {
		return false
	}
	userKey := name + ":" + userID
	if at, ok := perUser.get(userKey); ok && now.Sub(at) < userCooldown {
		return false
	}

	global.set(name, now)
	perUser.set(userKey, now)
	return true
}

// FlushUsage writes the batched usage deltas through to the store. The
// supervisor calls it periodically and once at shutdown.
func (d *Dispatcher) FlushUsage(ctx context.Context) {
	d.mu.Lock()
	pending := d.usage
	d.usage = make(map[usageKey]int64)
	d.mu.Unlock()

	for key, delta := range pending {
		if err := d.repo.AddUsage(ctx, key.channelID, key.name, delta); err != nil {
			d.log.Error().Int64("channel_id", key.channelID).Str("command", key.name).Err(err).
				Msg("Usage flush failed")
		}
	}
}

func splitCommand(tail string) (name, args string) {
	tail = strings.TrimSpace(tail)
	if tail == "" {
		return "", ""
	}
	if i := strings.IndexByte(tail, ' '); i >= 0 {
		return strings.ToLower(tail[:i]), strings.TrimSpace(tail[i+1:])
	}
	return strings.ToLower(tail), ""
}

// levelFromRoles maps the highest role on a message to a user level.
func levelFromRoles(roles []ingress.Role) models.UserLevel {
	best := models.LevelEveryone
	for _, r := range roles {
		var lvl models.UserLevel
		switch r {
		case ingress.RoleSubscriber:
			lvl = models.LevelSubscriber
		case ingress.RoleVIP:
			lvl = models.LevelVIP
		case ingress.RoleModerator:
			lvl = models.LevelModerator
		case ingress.RoleOwner:
			lvl = models.LevelOwner
		default:
			continue
		}
		if lvl.Rank() > best.Rank() {
			best = lvl
		}
	}
	return best
}
