// Package service implements the token vault: encrypted at-rest OAuth tokens
// with transparent refresh. At most one refresh per channel is in flight;
// concurrent callers share its result.
package service

import (
	"context"
	"strconv"
	"sync"
	"time"

	apperrors "streambot-backend/internal/common/errors"
	"streambot-backend/internal/common/logger"
	"streambot-backend/internal/features/token/models"
	"streambot-backend/internal/features/token/repository"
	"streambot-backend/internal/platform/crypto"
	"streambot-backend/internal/platform/kick"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

// refreshSkew is how close to expiry a token may get before the vault
// refreshes it ahead of use.
const refreshSkew = 5 * time.Minute

// Refresher is the slice of the OAuth client the vault consumes.
type Refresher interface {
	Refresh(ctx context.Context, refreshToken string) (*kick.TokenResponse, error)
}

// Vault mints valid access tokens for channels. Implements kick.TokenSource
// and the channel service's TokenSaver.
type Vault struct {
	repo    repository.TokenRepository
	enc     *crypto.Cipher
	oauth   Refresher
	group   singleflight.Group
	log     zerolog.Logger
	nowFunc func() time.Time

	mu       sync.Mutex
	degraded map[int64]bool
}

// NewVault creates a vault over the given repository and OAuth refresher.
// The AES key is derived from masterSecret.
func NewVault(repo repository.TokenRepository, oauth Refresher, masterSecret []byte) (*Vault, error) {
	enc, err := crypto.New(masterSecret, "channel-oauth-token")
	if err != nil {
		return nil, err
	}
	return &Vault{
		repo:     repo,
		enc:      enc,
		oauth:    oauth,
		log:      logger.Component("tokenvault"),
		nowFunc:  time.Now,
		degraded: make(map[int64]bool),
	}, nil
}

// SaveTokens encrypts and persists a fresh token pair, clearing any degraded
// mark for the channel.
func (v *Vault) SaveTokens(ctx context.Context, channelID int64, accessToken, refreshToken string, expiresAt time.Time) error {
	encAccess, err := v.enc.Seal(accessToken)
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeInternal, "encrypting access token")
	}
	encRefresh, err := v.enc.Seal(refreshToken)
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeInternal, "encrypting refresh token")
	}

	rec := &models.TokenRecord{
		ChannelID:        channelID,
		EncryptedAccess:  encAccess,
		EncryptedRefresh: encRefresh,
		ExpiresAt:        expiresAt,
	}
	if err := v.repo.Save(ctx, rec); err != nil {
		return err
	}

	v.mu.Lock()
	delete(v.degraded, channelID)
	v.mu.Unlock()
	return nil
}

// GetValid returns a usable access token for the channel, refreshing it first
// when the stored token is inside the expiry skew window.
func (v *Vault) GetValid(ctx context.Context, channelID int64) (string, error) {
	if v.IsDegraded(channelID) {
		return "", apperrors.Newf(apperrors.ErrCodeTokenRefreshFailed,
			"channel %d requires re-authentication", channelID)
	}

	rec, err := v.repo.Get(ctx, channelID)
	if err != nil {
		return "", err
	}

	if v.nowFunc().Add(refreshSkew).Before(rec.ExpiresAt) {
		return v.enc.Open(rec.EncryptedAccess)
	}

	// Stale: refresh under per-channel single-flight so concurrent callers
	// share one refresh POST.
	result, err, _ := v.group.Do(strconv.FormatInt(channelID, 10), func() (interface{}, error) {
		return v.refresh(ctx, channelID)
	})
	if err != nil {
		return "", err
	}
	return result.(string), nil
}

// AccessToken implements kick.TokenSource.
func (v *Vault) AccessToken(ctx context.Context, channelID int64) (string, error) {
	return v.GetValid(ctx, channelID)
}

// IsDegraded reports whether the channel's refresh token has been rejected and
// the channel is suspended until a manual retry.
func (v *Vault) IsDegraded(channelID int64) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.degraded[channelID]
}

// RetryRefresh clears the degraded mark and forces one refresh attempt.
// The admin layer calls it after the owner re-authenticates or on demand.
func (v *Vault) RetryRefresh(ctx context.Context, channelID int64) error {
	v.mu.Lock()
	delete(v.degraded, channelID)
	v.mu.Unlock()
	_, err := v.refresh(ctx, channelID)
	return err
}

func (v *Vault) refresh(ctx context.Context, channelID int64) (string, error) {
	// Re-read inside the flight: a racing caller may have refreshed already.
	rec, err := v.repo.Get(ctx, channelID)
	if err != nil {
		return "", err
	}
	if v.nowFunc().Add(refreshSkew).Before(rec.ExpiresAt) {
		return v.enc.Open(rec.EncryptedAccess)
	}

	refreshToken, err := v.enc.Open(rec.EncryptedRefresh)
	if err != nil {
		return "", apperrors.Wrap(err, apperrors.ErrCodeInternal, "decrypting refresh token")
	}

	tr, err := v.oauth.Refresh(ctx, refreshToken)
	if err != nil {
		if apperrors.IsCode(err, apperrors.ErrCodeTransportError) {
			return "", err
		}
		v.mu.Lock()
		v.degraded[channelID] = true
		v.mu.Unlock()
		v.log.Error().Int64("channel_id", channelID).Err(err).
			Msg("Refresh token rejected, channel degraded until re-auth")
		return "", apperrors.Wrap(err, apperrors.ErrCodeTokenRefreshFailed, "token refresh failed")
	}

	if err := v.SaveTokens(ctx, channelID, tr.AccessToken, tr.RefreshToken, tr.ExpiresAt(v.nowFunc())); err != nil {
		return "", err
	}

	v.log.Debug().Int64("channel_id", channelID).Msg("Access token refreshed")
	return tr.AccessToken, nil
}
