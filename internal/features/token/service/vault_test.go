package service

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	apperrors "streambot-backend/internal/common/errors"
	"streambot-backend/internal/features/token/models"
	"streambot-backend/internal/platform/crypto"
	"streambot-backend/internal/platform/kick"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memTokenRepo struct {
	mu   sync.Mutex
	recs map[int64]*models.TokenRecord
}

func newMemTokenRepo() *memTokenRepo {
	return &memTokenRepo{recs: make(map[int64]*models.TokenRecord)}
}

func (r *memTokenRepo) Get(_ context.Context, channelID int64) (*models.TokenRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.recs[channelID]
	if !ok {
		return nil, apperrors.NewNotFoundError("channel token", channelID)
	}
	copied := *rec
	return &copied, nil
}

func (r *memTokenRepo) Save(_ context.Context, rec *models.TokenRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := *rec
	r.recs[rec.ChannelID] = &copied
	return nil
}

type fakeRefresher struct {
	calls int32
	delay time.Duration
	fail  error
	resp  kick.TokenResponse
}

func (f *fakeRefresher) Refresh(_ context.Context, _ string) (*kick.TokenResponse, error) {
	atomic.AddInt32(&f.calls, 1)
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if f.fail != nil {
		return nil, f.fail
	}
	resp := f.resp
	return &resp, nil
}

func newTestVault(t *testing.T, refresher Refresher) (*Vault, *memTokenRepo) {
	t.Helper()
	repo := newMemTokenRepo()
	v, err := NewVault(repo, refresher, []byte("test-master-secret"))
	require.NoError(t, err)
	return v, repo
}

func seedTokens(t *testing.T, v *Vault, channelID int64, expiresAt time.Time) {
	t.Helper()
	require.NoError(t, v.SaveTokens(context.Background(), channelID, "access-0", "refresh-0", expiresAt))
}

func TestVaultReturnsFreshTokenWithoutRefresh(t *testing.T) {
	ref := &fakeRefresher{}
	v, repo := newTestVault(t, ref)
	seedTokens(t, v, 1, time.Now().Add(time.Hour))

	tok, err := v.GetValid(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, "access-0", tok)
	assert.EqualValues(t, 0, atomic.LoadInt32(&ref.calls))

	rec, err := repo.Get(context.Background(), 1)
	require.NoError(t, err)
	assert.True(t, crypto.Sealed(rec.EncryptedAccess))
	assert.True(t, crypto.Sealed(rec.EncryptedRefresh))
}

func TestVaultRefreshesInsideSkewWindow(t *testing.T) {
	ref := &fakeRefresher{resp: kick.TokenResponse{
		AccessToken:  "access-1",
		RefreshToken: "refresh-1",
		ExpiresIn:    3600,
	}}
	v, _ := newTestVault(t, ref)
	seedTokens(t, v, 1, time.Now().Add(2*time.Minute))

	tok, err := v.GetValid(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, "access-1", tok)
	assert.EqualValues(t, 1, atomic.LoadInt32(&ref.calls))

	// The rotated pair is now current, no second refresh.
	tok, err = v.GetValid(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, "access-1", tok)
	assert.EqualValues(t, 1, atomic.LoadInt32(&ref.calls))
}

func TestVaultSingleRefreshUnderConcurrency(t *testing.T) {
	ref := &fakeRefresher{
		delay: 50 * time.Millisecond,
		resp: kick.TokenResponse{
			AccessToken:  "access-1",
			RefreshToken: "refresh-1",
			ExpiresIn:    3600,
		},
	}
	v, _ := newTestVault(t, ref)
	seedTokens(t, v, 1, time.Now().Add(time.Minute))

	const callers = 8
	var wg sync.WaitGroup
	tokens := make([]string, callers)
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tokens[i], errs[i] = v.GetValid(context.Background(), 1)
		}(i)
	}
	wg.Wait()

	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, "access-1", tokens[i])
	}
	assert.EqualValues(t, 1, atomic.LoadInt32(&ref.calls))
}

func TestVaultMarksChannelDegradedOnRejectedRefresh(t *testing.T) {
	ref := &fakeRefresher{fail: apperrors.New(apperrors.ErrCodeTokenRefreshFailed, "invalid_grant")}
	v, _ := newTestVault(t, ref)
	seedTokens(t, v, 1, time.Now().Add(-time.Minute))

	_, err := v.GetValid(context.Background(), 1)
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeTokenRefreshFailed, apperrors.CodeOf(err))
	assert.True(t, v.IsDegraded(1))

	// Degraded channels fail fast without hitting the refresher again.
	_, err = v.GetValid(context.Background(), 1)
	require.Error(t, err)
	assert.EqualValues(t, 1, atomic.LoadInt32(&ref.calls))
}

func TestVaultTransportErrorDoesNotDegrade(t *testing.T) {
	ref := &fakeRefresher{fail: apperrors.NewTransportError("refresh", context.DeadlineExceeded)}
	v, _ := newTestVault(t, ref)
	seedTokens(t, v, 1, time.Now().Add(-time.Minute))

	_, err := v.GetValid(context.Background(), 1)
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeTransportError, apperrors.CodeOf(err))
	assert.False(t, v.IsDegraded(1))
}

func TestVaultRetryRefreshClearsDegraded(t *testing.T) {
	ref := &fakeRefresher{fail: apperrors.New(apperrors.ErrCodeTokenRefreshFailed, "invalid_grant")}
	v, _ := newTestVault(t, ref)
	seedTokens(t, v, 1, time.Now().Add(-time.Minute))

	_, err := v.GetValid(context.Background(), 1)
	require.Error(t, err)
	require.True(t, v.IsDegraded(1))

	ref.fail = nil
	ref.resp = kick.TokenResponse{AccessToken: "access-2", RefreshToken: "refresh-2", ExpiresIn: 3600}
	require.NoError(t, v.RetryRefresh(context.Background(), 1))
	assert.False(t, v.IsDegraded(1))

	tok, err := v.GetValid(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, "access-2", tok)
}
