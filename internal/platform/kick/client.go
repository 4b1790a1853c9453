// Package kick implements the outbound Kick API client: chat sends, moderation
// actions and channel/user lookups. The client is stateless apart from its
// shared HTTP connection pool; bearer tokens are minted per call by the
// injected TokenSource.
package kick

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	apperrors "streambot-backend/internal/common/errors"
	"streambot-backend/internal/common/logger"

	"github.com/rs/zerolog"
)

const defaultRequestTimeout = 10 * time.Second

// TokenSource mints a valid access token for a channel. Implemented by the
// token vault.
type TokenSource interface {
	AccessToken(ctx context.Context, channelID int64) (string, error)
}

// ClientError is a 4xx platform response. The caller decides whether the
// status is a permission or precondition problem.
type ClientError struct {
	Status int
	Body   string
}

func (e *ClientError) Error() string {
	return fmt.Sprintf("kick: client error %d: %s", e.Status, e.Body)
}

// ChannelInfo is the subset of the channel payload the runtime consumes.
type ChannelInfo struct {
	ID          string `json:"broadcaster_user_id"`
	Slug        string `json:"slug"`
	DisplayName string `json:"stream_title"`
	ChatroomID  string `json:"chatroom_id"`
	IsLive      bool   `json:"is_live"`
}

// UserInfo is the subset of the user payload the runtime consumes.
type UserInfo struct {
	ID       string `json:"user_id"`
	Username string `json:"name"`
}

// Client talks to the Kick public API.
type Client struct {
	apiBase    string
	httpClient *http.Client
	tokens     TokenSource
	log        zerolog.Logger
}

// NewClient creates a Kick API client over a shared connection pool.
func NewClient(apiBase string, tokens TokenSource) *Client {
	return &Client{
		apiBase:    apiBase,
		httpClient: &http.Client{Timeout: defaultRequestTimeout},
		tokens:     tokens,
		log:        logger.Component("kick"),
	}
}

// SendMessage posts a chat message to the channel's chatroom.
// No retries: a duplicate send is worse than a dropped one here.
func (c *Client) SendMessage(ctx context.Context, channelID int64, externalID, text string) error {
	body := map[string]string{"content": text}
	return c.do(ctx, channelID, http.MethodPost,
		fmt.Sprintf("%s/channels/%s/chat", c.apiBase, externalID), body, nil)
}

// Ban permanently bans a user from the channel.
func (c *Client) Ban(ctx context.Context, channelID int64, externalID, userID, reason string) error {
	body := map[string]interface{}{"user_id": userID}
	if reason != "" {
		body["reason"] = reason
	}
	return c.do(ctx, channelID, http.MethodPost,
		fmt.Sprintf("%s/channels/%s/bans", c.apiBase, externalID), body, nil)
}

// Timeout bans a user for durationSec seconds.
func (c *Client) Timeout(ctx context.Context, channelID int64, externalID, userID string, durationSec int, reason string) error {
	body := map[string]interface{}{"user_id": userID, "duration": durationSec}
	if reason != "" {
		body["reason"] = reason
	}
	return c.do(ctx, channelID, http.MethodPost,
		fmt.Sprintf("%s/channels/%s/bans", c.apiBase, externalID), body, nil)
}

// GetChannelInfo fetches a channel by slug.
func (c *Client) GetChannelInfo(ctx context.Context, channelID int64, slug string) (*ChannelInfo, error) {
	var out ChannelInfo
	err := c.do(ctx, channelID, http.MethodGet,
		fmt.Sprintf("%s/channels/%s", c.apiBase, slug), nil, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// GetUserInfo fetches a user by id or name.
func (c *Client) GetUserInfo(ctx context.Context, channelID int64, idOrName string) (*UserInfo, error) {
	var out UserInfo
	err := c.do(ctx, channelID, http.MethodGet,
		fmt.Sprintf("%s/users/%s", c.apiBase, idOrName), nil, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// GetOwnChannel fetches the channel belonging to the given access token.
// Used during registration, before the channel has a vault entry.
func (c *Client) GetOwnChannel(ctx context.Context, accessToken string) (*ChannelInfo, error) {
	var out ChannelInfo
	err := c.doWithToken(ctx, accessToken, http.MethodGet, c.apiBase+"/channels/me", nil, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// do issues one authenticated request and maps the response:
// 2xx decodes into out, 4xx becomes *ClientError, 5xx and network faults
// become TRANSPORT_ERROR.
func (c *Client) do(ctx context.Context, channelID int64, method, url string, body interface{}, out interface{}) error {
	token, err := c.tokens.AccessToken(ctx, channelID)
	if err != nil {
		return err
	}
	return c.doWithToken(ctx, token, method, url, body, out)
}

func (c *Client) doWithToken(ctx context.Context, token, method, url string, body interface{}, out interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return apperrors.Wrap(err, apperrors.ErrCodeInternal, "encoding request body")
		}
		reader = bytes.NewReader(data)
	}

	ctx, cancel := context.WithTimeout(ctx, defaultRequestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeInternal, "building request")
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return apperrors.NewTransportError(method+" "+url, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return apperrors.NewTransportError("reading response", err)
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		if out != nil && len(respBody) > 0 {
			if err := json.Unmarshal(respBody, out); err != nil {
				return apperrors.Wrap(err, apperrors.ErrCodeInternal, "decoding response")
			}
		}
		return nil
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		c.log.Debug().Int("status", resp.StatusCode).Str("url", url).Msg("Client error from platform")
		return wrapClientError(&ClientError{Status: resp.StatusCode, Body: string(respBody)})
	default:
		return apperrors.NewTransportError(method+" "+url,
			fmt.Errorf("status %d: %s", resp.StatusCode, respBody))
	}
}

func wrapClientError(ce *ClientError) error {
	code := apperrors.ErrCodePreconditionFailed
	switch ce.Status {
	case http.StatusUnauthorized, http.StatusForbidden:
		code = apperrors.ErrCodePermissionDenied
	case http.StatusNotFound:
		code = apperrors.ErrCodeNotFound
	}
	return apperrors.Wrap(ce, code, "platform rejected request").
		WithDetail("status", ce.Status)
}
