package ingress

import (
	"context"
	"fmt"
	"testing"
	"time"

	"streambot-backend/internal/platform/youtube"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePoller struct {
	pages []*youtube.MessagePage
	calls int
}

func (f *fakePoller) ListLiveChatMessages(ctx context.Context, liveChatID, pageToken string) (*youtube.MessagePage, error) {
	if f.calls >= len(f.pages) {
		return &youtube.MessagePage{PollingAfter: time.Hour}, nil
	}
	page := f.pages[f.calls]
	f.calls++
	return page, nil
}

func msgPage(ids ...string) *youtube.MessagePage {
	page := &youtube.MessagePage{PollingAfter: time.Millisecond}
	for _, id := range ids {
		page.Messages = append(page.Messages, youtube.ChatMessage{
			ID: id, AuthorID: "u-" + id, AuthorName: "user-" + id, Text: "hello",
		})
	}
	return page
}

func collectEvents(t *testing.T, p *PollIngress, want int) []Event {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = p.Run(ctx) }()

	var got []Event
	timeout := time.After(2 * time.Second)
	for len(got) < want {
		select {
		case ev := <-p.Events():
			got = append(got, ev)
		case <-timeout:
			t.Fatalf("timed out waiting for events: got %d, want %d", len(got), want)
		}
	}
	cancel()
	return got
}

func TestPollIngressEmitsDelta(t *testing.T) {
	poller := &fakePoller{pages: []*youtube.MessagePage{
		msgPage("a", "b"),
		msgPage("b", "c"), // overlap with previous page
	}}
	p := NewPollIngress(1, "chat-1", poller, time.Millisecond)

	got := collectEvents(t, p, 3)

	ids := []string{got[0].UserID, got[1].UserID, got[2].UserID}
	assert.Equal(t, []string{"u-a", "u-b", "u-c"}, ids)
	for _, ev := range got {
		assert.Equal(t, KindMessage, ev.Kind)
		assert.EqualValues(t, 1, ev.ChannelID)
	}
}

func TestPollIngressRolesFromAuthor(t *testing.T) {
	page := &youtube.MessagePage{PollingAfter: time.Millisecond}
	page.Messages = append(page.Messages, youtube.ChatMessage{
		ID: "m1", AuthorID: "u1", AuthorName: "mod", Text: "hi",
		IsModerator: true, IsSponsor: true,
	})
	poller := &fakePoller{pages: []*youtube.MessagePage{page}}
	p := NewPollIngress(7, "chat-7", poller, time.Millisecond)

	got := collectEvents(t, p, 1)

	require.Len(t, got, 1)
	assert.True(t, got[0].HasRole(RoleModerator))
	assert.True(t, got[0].HasRole(RoleSubscriber))
	assert.False(t, got[0].HasRole(RoleOwner))
}

func TestDedupWindowPastCapacity(t *testing.T) {
	d := newDedupWindow(8)

	for i := 0; i < 8; i++ {
		require.False(t, d.Observe(fmt.Sprintf("id-%d", i)))
	}
	require.Equal(t, 8, d.Len())

	// The window is full; a new distinct id must still dedup correctly.
	assert.False(t, d.Observe("id-8"))
	assert.True(t, d.Observe("id-8"))

	// id-0 was evicted to make room, so it reads as new again; recent ids stay deduped.
	assert.False(t, d.Observe("id-0"))
	assert.True(t, d.Observe("id-7"))
	assert.Equal(t, 8, d.Len())
}
