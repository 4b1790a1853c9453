package service

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	apperrors "streambot-backend/internal/common/errors"
	"streambot-backend/internal/features/reward/models"
	"streambot-backend/internal/ingress"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memRewardRepo backs the arbiter with an in-memory catalogue and balance
// table so redemption atomicity can be exercised without a database.
type memRewardRepo struct {
	mu          sync.Mutex
	rewards     map[int64]*models.Reward
	balances    map[string]int64
	redemptions []models.Redemption
	nextID      int64
}

func newMemRewardRepo() *memRewardRepo {
	return &memRewardRepo{rewards: make(map[int64]*models.Reward), balances: make(map[string]int64)}
}

func (r *memRewardRepo) setBalance(channelID int64, userID string, points int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.balances[fmt.Sprintf("%d:%s", channelID, userID)] = points
}

func (r *memRewardRepo) balance(channelID int64, userID string) int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.balances[fmt.Sprintf("%d:%s", channelID, userID)]
}

func (r *memRewardRepo) Create(_ context.Context, rw *models.Reward) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	rw.ID = r.nextID
	copied := *rw
	r.rewards[rw.ID] = &copied
	return nil
}

func (r *memRewardRepo) Update(_ context.Context, rw *models.Reward) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := *rw
	r.rewards[rw.ID] = &copied
	return nil
}

func (r *memRewardRepo) Delete(_ context.Context, _, rewardID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.rewards, rewardID)
	return nil
}

func (r *memRewardRepo) GetByID(_ context.Context, _, rewardID int64) (*models.Reward, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rw := *r.rewards[rewardID]
	return &rw, nil
}

func (r *memRewardRepo) ListByChannel(_ context.Context, channelID int64) ([]models.Reward, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Reward
	for _, rw := range r.rewards {
		if rw.ChannelID == channelID {
			out = append(out, *rw)
		}
	}
	return out, nil
}

func (r *memRewardRepo) RecordRedemption(_ context.Context, red *models.Redemption) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := fmt.Sprintf("%d:%s", red.ChannelID, red.UserID)
	if r.balances[key] < red.Cost {
		return apperrors.New(apperrors.ErrCodeInsufficientPoints, "balance too low")
	}
	r.balances[key] -= red.Cost
	red.ID = uuid.New().String()
	r.redemptions = append(r.redemptions, *red)
	return nil
}

func (r *memRewardRepo) ListRedemptions(_ context.Context, channelID int64, _ int) ([]models.Redemption, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Redemption
	for _, red := range r.redemptions {
		if red.ChannelID == channelID {
			out = append(out, red)
		}
	}
	return out, nil
}

func newTestArbiter(t *testing.T, rewards ...models.Reward) (*Arbiter, *memRewardRepo) {
	t.Helper()
	repo := newMemRewardRepo()
	for i := range rewards {
		require.NoError(t, repo.Create(context.Background(), &rewards[i]))
	}
	a := NewArbiter(repo, nil)
	require.NoError(t, a.Load(context.Background(), 1))
	return a, repo
}

func TestRedeemConcurrentSingleSuccess(t *testing.T) {
	a, repo := newTestArbiter(t, models.Reward{
		ChannelID: 1, Name: "hydrate", Cost: 100, Enabled: true, MaxPerUserPerStream: 1,
	})
	repo.setBalance(1, "bob", 100)
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = a.Redeem(ctx, 1, "bob", "bob", 1, nil)
		}(i)
	}
	wg.Wait()

	var successes, rejections int
	for _, err := range errs {
		if err == nil {
			successes++
			continue
		}
		rejections++
		code := apperrors.CodeOf(err)
		assert.Contains(t, []apperrors.ErrorCode{
			apperrors.ErrCodeInsufficientPoints,
			apperrors.ErrCodePreconditionFailed,
		}, code)
	}
	assert.Equal(t, 1, successes)
	assert.Equal(t, 1, rejections)
	assert.EqualValues(t, 0, repo.balance(1, "bob"))

	reds, err := repo.ListRedemptions(ctx, 1, 10)
	require.NoError(t, err)
	assert.Len(t, reds, 1)
}

func TestRedeemCostEqualsBalance(t *testing.T) {
	a, repo := newTestArbiter(t, models.Reward{ChannelID: 1, Name: "song", Cost: 100, Enabled: true})
	repo.setBalance(1, "alice", 100)

	red, err := a.Redeem(context.Background(), 1, "alice", "alice", 1, nil)
	require.NoError(t, err)
	assert.EqualValues(t, 100, red.Cost)
	assert.EqualValues(t, 0, repo.balance(1, "alice"))
}

func TestRedeemInsufficientBalance(t *testing.T) {
	a, repo := newTestArbiter(t, models.Reward{ChannelID: 1, Name: "song", Cost: 100, Enabled: true})
	repo.setBalance(1, "alice", 99)

	_, err := a.Redeem(context.Background(), 1, "alice", "alice", 1, nil)
	assert.Equal(t, apperrors.ErrCodeInsufficientPoints, apperrors.CodeOf(err))
	assert.EqualValues(t, 99, repo.balance(1, "alice"), "failed redeem leaves the balance alone")
}

func TestRedeemCooldown(t *testing.T) {
	a, repo := newTestArbiter(t, models.Reward{
		ChannelID: 1, Name: "song", Cost: 10, CooldownSeconds: 30, Enabled: true,
	})
	repo.setBalance(1, "alice", 100)
	now := time.Unix(1_700_000_000, 0)
	a.nowFunc = func() time.Time { return now }
	ctx := context.Background()

	_, err := a.Redeem(ctx, 1, "alice", "alice", 1, nil)
	require.NoError(t, err)

	now = now.Add(10 * time.Second)
	_, err = a.Redeem(ctx, 1, "alice", "alice", 1, nil)
	assert.Equal(t, apperrors.ErrCodePreconditionFailed, apperrors.CodeOf(err))

	now = now.Add(25 * time.Second)
	_, err = a.Redeem(ctx, 1, "alice", "alice", 1, nil)
	assert.NoError(t, err)
}

func TestRedeemPerStreamCaps(t *testing.T) {
	a, repo := newTestArbiter(t, models.Reward{
		ChannelID: 1, Name: "song", Cost: 1, Enabled: true, MaxPerStream: 2, MaxPerUserPerStream: 1,
	})
	repo.setBalance(1, "alice", 100)
	repo.setBalance(1, "bob", 100)
	repo.setBalance(1, "carol", 100)
	ctx := context.Background()

	_, err := a.Redeem(ctx, 1, "alice", "alice", 1, nil)
	require.NoError(t, err)

	_, err = a.Redeem(ctx, 1, "alice", "alice", 1, nil)
	assert.Equal(t, apperrors.ErrCodePreconditionFailed, apperrors.CodeOf(err), "per-user cap")

	_, err = a.Redeem(ctx, 1, "bob", "bob", 1, nil)
	require.NoError(t, err)

	_, err = a.Redeem(ctx, 1, "carol", "carol", 1, nil)
	assert.Equal(t, apperrors.ErrCodePreconditionFailed, apperrors.CodeOf(err), "per-stream cap")

	// A new stream resets every counter.
	a.OnStreamStart(1)
	_, err = a.Redeem(ctx, 1, "carol", "carol", 1, nil)
	assert.NoError(t, err)
}

func TestRedeemRoleRequirementsBothMustHold(t *testing.T) {
	a, repo := newTestArbiter(t, models.Reward{
		ChannelID: 1, Name: "vip song", Cost: 1, Enabled: true, SubscriberOnly: true, ModeratorOnly: true,
	})
	repo.setBalance(1, "alice", 100)
	ctx := context.Background()

	_, err := a.Redeem(ctx, 1, "alice", "alice", 1, []ingress.Role{ingress.RoleSubscriber})
	assert.Equal(t, apperrors.ErrCodePreconditionFailed, apperrors.CodeOf(err))

	_, err = a.Redeem(ctx, 1, "alice", "alice", 1, []ingress.Role{ingress.RoleModerator})
	assert.Equal(t, apperrors.ErrCodePreconditionFailed, apperrors.CodeOf(err))

	_, err = a.Redeem(ctx, 1, "alice", "alice", 1,
		[]ingress.Role{ingress.RoleSubscriber, ingress.RoleModerator})
	assert.NoError(t, err)
}

// gatedRewardRepo blocks the store write for one channel until released.
type gatedRewardRepo struct {
	*memRewardRepo
	gate    chan struct{}
	blockCh int64
}

func (r *gatedRewardRepo) RecordRedemption(ctx context.Context, red *models.Redemption) error {
	if red.ChannelID == r.blockCh {
		<-r.gate
	}
	return r.memRewardRepo.RecordRedemption(ctx, red)
}

func TestRedeemChannelsAreIndependent(t *testing.T) {
	repo := &gatedRewardRepo{memRewardRepo: newMemRewardRepo(), gate: make(chan struct{}), blockCh: 1}
	ctx := context.Background()
	for _, rw := range []models.Reward{
		{ChannelID: 1, Name: "slow", Cost: 10, Enabled: true},
		{ChannelID: 2, Name: "fast", Cost: 10, Enabled: true},
	} {
		rw := rw
		require.NoError(t, repo.Create(ctx, &rw))
	}
	repo.setBalance(1, "alice", 100)
	repo.setBalance(2, "bob", 100)

	a := NewArbiter(repo, nil)
	require.NoError(t, a.Load(ctx, 1))
	require.NoError(t, a.Load(ctx, 2))

	slowDone := make(chan error, 1)
	go func() {
		_, err := a.Redeem(ctx, 1, "alice", "alice", 1, nil)
		slowDone <- err
	}()

	fastDone := make(chan error, 1)
	go func() {
		_, err := a.Redeem(ctx, 2, "bob", "bob", 2, nil)
		fastDone <- err
	}()

	select {
	case err := <-fastDone:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("channel 2 redemption waited on channel 1's store write")
	}

	close(repo.gate)
	require.NoError(t, <-slowDone)
}

func TestRedeemDisabledReward(t *testing.T) {
	a, repo := newTestArbiter(t, models.Reward{ChannelID: 1, Name: "off", Cost: 1, Enabled: false})
	repo.setBalance(1, "alice", 100)

	_, err := a.Redeem(context.Background(), 1, "alice", "alice", 1, nil)
	assert.Equal(t, apperrors.ErrCodePreconditionFailed, apperrors.CodeOf(err))
}
