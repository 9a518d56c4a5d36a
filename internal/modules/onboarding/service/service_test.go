package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"helios.network/testnetapi/internal/config"
	"helios.network/testnetapi/internal/entity"
	"helios.network/testnetapi/internal/modules/onboarding/dto"
	xpService "helios.network/testnetapi/internal/modules/xp/service"
	"helios.network/testnetapi/internal/testutil"
	"helios.network/testnetapi/pkg/apperror"
	"helios.network/testnetapi/pkg/clock"
)

type fixture struct {
	users      *testutil.UserStore
	activities *testutil.ActivityStore
	steps      *testutil.StepStore
	clock      *clock.Fake
	svc        OnboardingService
}

func newFixture(t *testing.T, users ...*entity.User) *fixture {
	t.Helper()
	f := &fixture{
		users: testutil.NewUserStore(users...),
		steps: testutil.NewStepStore(),
		clock: clock.NewFake(testutil.Epoch),
	}
	f.activities = testutil.NewActivityStore(f.users)
	ledger := xpService.NewLedger(xpService.LedgerDeps{
		Transactor: testutil.NewTransactor(f.users, f.activities, f.steps),
		Users:      f.users,
		Activities: f.activities,
		Clock:      f.clock,
	})
	f.svc = NewOnboardingService(f.steps, f.users, ledger, f.clock, Config{
		StepRewards: config.DefaultOnboardingRewards(),
		RewardXP:    500,
		RewardNFT:   "onboarding-nft-token-id",
	})
	return f
}

func step(key entity.StepKey) dto.StepRequest {
	return dto.StepRequest{StepKey: string(key)}
}

func TestStartStep(t *testing.T) {
	user := testutil.NewUser(1)
	f := newFixture(t, user)
	ctx := context.Background()

	res, err := f.svc.Start(ctx, user.ID, step(entity.StepAddHeliosNetwork))
	require.NoError(t, err)
	assert.Equal(t, entity.StepInProgress, res.Step.Status)
	require.NotNil(t, res.Step.StartedAt)

	_, err = f.svc.Start(ctx, user.ID, step(entity.StepAddHeliosNetwork))
	assert.ErrorIs(t, err, apperror.ErrNotEligible)
	assert.ErrorContains(t, err, "already started or completed")

	_, err = f.svc.Start(ctx, user.ID, dto.StepRequest{StepKey: "fly_to_moon"})
	assert.ErrorIs(t, err, apperror.ErrInvalidInput)

	_, err = f.svc.Start(ctx, user.ID, step(entity.StepOnboardingRewardClaimed))
	assert.ErrorIs(t, err, apperror.ErrInvalidInput)
}

func TestCompleteWithoutStart(t *testing.T) {
	user := testutil.NewUser(1)
	f := newFixture(t, user)
	ctx := context.Background()

	res, err := f.svc.Complete(ctx, user.ID, step(entity.StepMintEarlyBirdNFT))
	require.NoError(t, err)
	assert.Equal(t, entity.StepCompleted, res.Step.Status)
	require.NotNil(t, res.Step.CompletedAt)
	assert.Equal(t, testutil.Epoch, *res.Step.CompletedAt)
	require.NotNil(t, res.Step.StartedAt)
	assert.Equal(t, 150, res.XPAwarded)
	assert.Equal(t, 150, res.TotalXP)

	stored := f.users.Get(user.ID)
	assert.True(t, stored.HasCompletedStep(string(entity.StepMintEarlyBirdNFT)))

	_, err = f.svc.Complete(ctx, user.ID, step(entity.StepMintEarlyBirdNFT))
	assert.ErrorIs(t, err, apperror.ErrNotEligible)
	assert.ErrorContains(t, err, "already completed")
	assert.Equal(t, 150, f.users.Get(user.ID).XP)

	rows := f.activities.All()
	require.Len(t, rows, 1)
	assert.Equal(t, entity.ActivityOnboarding, rows[0].Type)
}

func TestCompleteKeepsStartTime(t *testing.T) {
	user := testutil.NewUser(1)
	f := newFixture(t, user)
	ctx := context.Background()

	_, err := f.svc.Start(ctx, user.ID, step(entity.StepClaimFromFaucet))
	require.NoError(t, err)
	f.clock.Advance(time.Hour)

	res, err := f.svc.Complete(ctx, user.ID, step(entity.StepClaimFromFaucet))
	require.NoError(t, err)
	assert.Equal(t, testutil.Epoch, *res.Step.StartedAt)
	assert.Equal(t, testutil.Epoch.Add(time.Hour), *res.Step.CompletedAt)
}

func TestResetOnlyInProgress(t *testing.T) {
	user := testutil.NewUser(1)
	f := newFixture(t, user)
	ctx := context.Background()

	err := f.svc.Reset(ctx, user.ID, string(entity.StepAddHeliosNetwork))
	assert.ErrorIs(t, err, apperror.ErrNotFound)

	_, err = f.svc.Start(ctx, user.ID, step(entity.StepAddHeliosNetwork))
	require.NoError(t, err)
	require.NoError(t, f.svc.Reset(ctx, user.ID, string(entity.StepAddHeliosNetwork)))

	_, err = f.svc.Start(ctx, user.ID, step(entity.StepAddHeliosNetwork))
	require.NoError(t, err)

	_, err = f.svc.Complete(ctx, user.ID, step(entity.StepClaimFromFaucet))
	require.NoError(t, err)
	err = f.svc.Reset(ctx, user.ID, string(entity.StepClaimFromFaucet))
	assert.ErrorIs(t, err, apperror.ErrNotEligible)
}

func TestProgressAndReward(t *testing.T) {
	user := testutil.NewUser(1)
	f := newFixture(t, user)
	ctx := context.Background()

	_, err := f.svc.ClaimReward(ctx, user.ID)
	assert.ErrorIs(t, err, apperror.ErrNotEligible)

	_, err = f.svc.Complete(ctx, user.ID, step(entity.StepAddHeliosNetwork))
	require.NoError(t, err)
	_, err = f.svc.Start(ctx, user.ID, step(entity.StepClaimFromFaucet))
	require.NoError(t, err)

	progress, err := f.svc.Progress(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, progress.TotalSteps)
	assert.Equal(t, []entity.StepKey{entity.StepAddHeliosNetwork}, progress.CompletedSteps)
	assert.Equal(t, 33.33, progress.ProgressPercentage)
	assert.False(t, progress.RewardClaimable)
	assert.Len(t, progress.Steps, 2)

	_, err = f.svc.Complete(ctx, user.ID, step(entity.StepClaimFromFaucet))
	require.NoError(t, err)
	_, err = f.svc.Complete(ctx, user.ID, step(entity.StepMintEarlyBirdNFT))
	require.NoError(t, err)

	progress, err = f.svc.Progress(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, 100.0, progress.ProgressPercentage)
	assert.True(t, progress.RewardClaimable)

	reward, err := f.svc.ClaimReward(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, 500, reward.XPAwarded)
	assert.Equal(t, 50+100+150+500, reward.TotalXP)
	assert.Equal(t, 4, reward.Level)
	assert.True(t, reward.LeveledUp)

	stored := f.users.Get(user.ID)
	assert.True(t, stored.OnboardingCompleted)
	assert.Contains(t, []string(stored.MintedNFTs), "onboarding-nft-token-id")
	assert.True(t, stored.HasCompletedStep(string(entity.StepOnboardingRewardClaimed)))

	_, err = f.svc.ClaimReward(ctx, user.ID)
	assert.ErrorIs(t, err, apperror.ErrNotEligible)
	assert.Equal(t, 800, f.users.Get(user.ID).XP)

	progress, err = f.svc.Progress(ctx, user.ID)
	require.NoError(t, err)
	assert.True(t, progress.RewardClaimed)
	assert.False(t, progress.RewardClaimable)
}
