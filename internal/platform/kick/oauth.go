package kick

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	apperrors "streambot-backend/internal/common/errors"
)

// TokenResponse is the OAuth token endpoint payload.
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
}

// OAuthClient exchanges authorization codes and refresh tokens against the
// platform's token endpoint.
type OAuthClient struct {
	tokenURL     string
	clientID     string
	clientSecret string
	redirectURI  string
	httpClient   *http.Client
}

// NewOAuthClient creates an OAuth client for the Kick token endpoint.
func NewOAuthClient(tokenURL, clientID, clientSecret, redirectURI string) *OAuthClient {
	return &OAuthClient{
		tokenURL:     tokenURL,
		clientID:     clientID,
		clientSecret: clientSecret,
		redirectURI:  redirectURI,
		httpClient:   &http.Client{Timeout: defaultRequestTimeout},
	}
}

// ExchangeCode trades an authorization code plus PKCE verifier for tokens.
func (o *OAuthClient) ExchangeCode(ctx context.Context, code, codeVerifier string) (*TokenResponse, error) {
	form := url.Values{
		"grant_type":    {"authorization_code"},
		"client_id":     {o.clientID},
		"client_secret": {o.clientSecret},
		"code":          {code},
		"redirect_uri":  {o.redirectURI},
		"code_verifier": {codeVerifier},
	}
	return o.post(ctx, form)
}

// Refresh trades a refresh token for a new token pair. A rejection from the
// endpoint is TOKEN_REFRESH_FAILED and is surfaced, not retried.
func (o *OAuthClient) Refresh(ctx context.Context, refreshToken string) (*TokenResponse, error) {
	form := url.Values{
		"grant_type":    {"refresh_token"},
		"client_id":     {o.clientID},
		"client_secret": {o.clientSecret},
		"refresh_token": {refreshToken},
	}
	tr, err := o.post(ctx, form)
	if err != nil {
		if appErr, ok := apperrors.AsAppError(err); ok && appErr.Code != apperrors.ErrCodeTransportError {
			return nil, apperrors.Wrap(err, apperrors.ErrCodeTokenRefreshFailed, "refresh token rejected")
		}
		return nil, err
	}
	return tr, nil
}

func (o *OAuthClient) post(ctx context.Context, form url.Values) (*TokenResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultRequestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.tokenURL,
		strings.NewReader(form.Encode()))
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeInternal, "building token request")
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := o.httpClient.Do(req)
	if err != nil {
		return nil, apperrors.NewTransportError("POST "+o.tokenURL, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, apperrors.NewTransportError("reading token response", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if resp.StatusCode >= 500 {
			return nil, apperrors.NewTransportError("POST "+o.tokenURL,
				fmt.Errorf("status %d: %s", resp.StatusCode, body))
		}
		return nil, apperrors.Newf(apperrors.ErrCodeUnauthorized,
			"token endpoint rejected request: status %d", resp.StatusCode).
			WithDetail("body", string(body))
	}

	var tr TokenResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeInternal, "decoding token response")
	}
	if tr.AccessToken == "" {
		return nil, apperrors.New(apperrors.ErrCodeInternal, "token endpoint returned empty access token")
	}
	return &tr, nil
}

// ExpiresAt converts the expires_in lease into an absolute timestamp.
func (tr *TokenResponse) ExpiresAt(now time.Time) time.Time {
	return now.Add(time.Duration(tr.ExpiresIn) * time.Second)
}
