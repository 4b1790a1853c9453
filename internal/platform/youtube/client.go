// Package youtube implements the polling client for YouTube live-chat ingress.
// Unlike the Kick side there is no push connection; the ingress poller calls
// ListLiveChatMessages on a cadence and the API suggests the next interval.
package youtube

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	apperrors "streambot-backend/internal/common/errors"
)

const defaultRequestTimeout = 10 * time.Second

// ChatMessage is one live-chat message from the polling endpoint.
type ChatMessage struct {
	ID          string
	AuthorID    string
	AuthorName  string
	Text        string
	IsModerator bool
	IsSponsor   bool
	IsOwner     bool
	PublishedAt time.Time
}

// MessagePage is one poll result: the messages plus the server-suggested wait
// before the next poll (zero when the server did not suggest one).
type MessagePage struct {
	Messages      []ChatMessage
	NextPageToken string
	PollingAfter  time.Duration
}

// Client talks to the YouTube Data API live chat endpoints.
type Client struct {
	apiBase    string
	apiKey     string
	httpClient *http.Client
}

// NewClient creates a YouTube live chat client.
func NewClient(apiBase, apiKey string) *Client {
	return &Client{
		apiBase:    apiBase,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: defaultRequestTimeout},
	}
}

// ListLiveChatMessages fetches one page of live chat messages.
func (c *Client) ListLiveChatMessages(ctx context.Context, liveChatID, pageToken string) (*MessagePage, error) {
	q := url.Values{
		"liveChatId": {liveChatID},
		"part":       {"snippet,authorDetails"},
		"key":        {c.apiKey},
	}
	if pageToken != "" {
		q.Set("pageToken", pageToken)
	}

	ctx, cancel := context.WithTimeout(ctx, defaultRequestTimeout)
	defer cancel()

	reqURL := fmt.Sprintf("%s/liveChat/messages?%s", c.apiBase, q.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeInternal, "building request")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, apperrors.NewTransportError("GET liveChat/messages", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, apperrors.NewTransportError("reading response", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if resp.StatusCode >= 500 {
			return nil, apperrors.NewTransportError("GET liveChat/messages",
				fmt.Errorf("status %d: %s", resp.StatusCode, body))
		}
		return nil, apperrors.Newf(apperrors.ErrCodePreconditionFailed,
			"live chat poll rejected: status %d", resp.StatusCode).
			WithDetail("body", string(body))
	}

	var raw struct {
		NextPageToken         string `json:"nextPageToken"`
		PollingIntervalMillis int64  `json:"pollingIntervalMillis"`
		Items                 []struct {
			ID      string `json:"id"`
			Snippet struct {
				DisplayMessage string    `json:"displayMessage"`
				PublishedAt    time.Time `json:"publishedAt"`
			} `json:"snippet"`
			AuthorDetails struct {
				ChannelID     string `json:"channelId"`
				DisplayName   string `json:"displayName"`
				IsChatOwner   bool   `json:"isChatOwner"`
				IsChatSponsor bool   `json:"isChatSponsor"`
				IsChatMod     bool   `json:"isChatModerator"`
			} `json:"authorDetails"`
		} `json:"items"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeInternal, "decoding live chat page")
	}

	page := &MessagePage{
		NextPageToken: raw.NextPageToken,
		PollingAfter:  time.Duration(raw.PollingIntervalMillis) * time.Millisecond,
	}
	for _, item := range raw.Items {
		page.Messages = append(page.Messages, ChatMessage{
			ID:          item.ID,
			AuthorID:    item.AuthorDetails.ChannelID,
			AuthorName:  item.AuthorDetails.DisplayName,
			Text:        item.Snippet.DisplayMessage,
			IsModerator: item.AuthorDetails.IsChatMod,
			IsSponsor:   item.AuthorDetails.IsChatSponsor,
			IsOwner:     item.AuthorDetails.IsChatOwner,
			PublishedAt: item.Snippet.PublishedAt,
		})
	}
	return page, nil
}
