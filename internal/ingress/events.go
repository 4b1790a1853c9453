// Package ingress produces the normalized per-channel stream of chat and
// lifecycle events. Two adapters exist behind one interface: a push websocket
// connection (Kick) and a polling loop (YouTube).
package ingress

import (
	"context"
	"time"
)

// Role is a viewer role attached to a chat message.
type Role string

const (
	RoleSubscriber Role = "subscriber"
	RoleVIP        Role = "vip"
	RoleModerator  Role = "moderator"
	RoleOwner      Role = "owner"
)

// EventKind tags the variant carried by an Event.
type EventKind string

const (
	KindMessage     EventKind = "message"
	KindFollow      EventKind = "follow"
	KindSubscribe   EventKind = "subscribe"
	KindRaid        EventKind = "raid"
	KindStreamStart EventKind = "stream_start"
	KindStreamEnd   EventKind = "stream_end"
)

// Event is one normalized chat or lifecycle event. Only the fields relevant
// to the Kind are populated.
type Event struct {
	Kind      EventKind
	ChannelID int64

	// Message / Follow / Subscribe
	UserID   string
	Username string
	Text     string
	Roles    []Role
	Tier     int

	// Raid
	RaiderUserID   string
	RaiderUsername string
	ViewerCount    int

	ReceivedAt time.Time
}

// HasRole reports whether the event's author holds the given role.
func (e *Event) HasRole(r Role) bool {
	for _, have := range e.Roles {
		if have == r {
			return true
		}
	}
	return false
}

// Ingress is a running event source for one channel. Run blocks until the
// context is cancelled or the source fails terminally; Events is closed when
// Run returns.
type Ingress interface {
	Run(ctx context.Context) error
	Events() <-chan Event
}
