package service

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"helios.network/testnetapi/internal/config"
	"helios.network/testnetapi/internal/entity"
	"helios.network/testnetapi/internal/modules/faucet/dto"
	xpService "helios.network/testnetapi/internal/modules/xp/service"
	"helios.network/testnetapi/internal/ratelimit"
	"helios.network/testnetapi/internal/testutil"
	"helios.network/testnetapi/pkg/apperror"
	"helios.network/testnetapi/pkg/chain"
	"helios.network/testnetapi/pkg/clock"
	"helios.network/testnetapi/pkg/leveling"
)

type mockSender struct {
	mock.Mock
}

func (m *mockSender) Send(ctx context.Context, wallet, token, chainID string, amount float64) (chain.Receipt, error) {
	args := m.Called(ctx, wallet, token, chainID, amount)
	return args.Get(0).(chain.Receipt), args.Error(1)
}

type fixture struct {
	users      *testutil.UserStore
	activities *testutil.ActivityStore
	claims     *testutil.ClaimStore
	clock      *clock.Fake
	notifier   *testutil.Notifier
	svc        FaucetService
}

func testConfig() config.FaucetConfig {
	return config.FaucetConfig{
		Tokens:         config.DefaultFaucetTokens(),
		Multipliers:    config.DefaultFaucetMultipliers(),
		BaseReward:     10,
		RewardCap:      100,
		PendingTimeout: 10 * time.Minute,
		LockTTL:        30 * time.Second,
	}
}

func newFixture(t *testing.T, sender chain.Sender, users ...*entity.User) *fixture {
	t.Helper()
	f := &fixture{
		users:    testutil.NewUserStore(users...),
		claims:   testutil.NewClaimStore(),
		clock:    clock.NewFake(testutil.Epoch),
		notifier: &testutil.Notifier{},
	}
	f.activities = testutil.NewActivityStore(f.users)
	tx := testutil.NewTransactor(f.users, f.activities, f.claims)
	ledger := xpService.NewLedger(xpService.LedgerDeps{
		Transactor: tx,
		Users:      f.users,
		Activities: f.activities,
		Levels:     leveling.DefaultTable(),
		Notifier:   f.notifier,
		Clock:      f.clock,
	})
	f.svc = NewFaucetService(Deps{
		Claims:  f.claims,
		Users:   f.users,
		Ledger:  ledger,
		Sender:  sender,
		Limiter: ratelimit.New(nil),
		Clock:   f.clock,
	}, testConfig())
	return f
}

func TestCalculateFaucetReward(t *testing.T) {
	assert.Equal(t, 2000, CalculateFaucetReward(150, "HLS"))
	assert.Equal(t, 750, CalculateFaucetReward(50, "ETH"))
	assert.Equal(t, 1600, CalculateFaucetReward(80, "HLS"))
	assert.Equal(t, 40, CalculateFaucetReward(4, "DOGE"))
	assert.Equal(t, 2, CalculateFaucetReward(0.1, "ETH"))
}

func TestRequestTokensCreditsXP(t *testing.T) {
	user := testutil.NewUser(1)
	f := newFixture(t, chain.NewSimulatedSender(), user)

	res, err := f.svc.RequestTokens(context.Background(), user.ID, dto.ClaimRequest{
		Token:  "HLS",
		Chain:  "helios-testnet",
		Amount: 80,
	})
	require.NoError(t, err)

	assert.Equal(t, 1600, res.XPReward)
	assert.Equal(t, chain.SimulatedTxHash(user.WalletAddress, "HLS", 80), res.TransactionHash)
	assert.Equal(t, "completed", res.Claim.Status)
	assert.Equal(t, testutil.Epoch.Add(24*time.Hour), *res.Claim.CooldownUntil)

	stored := f.claims.All()
	require.Len(t, stored, 1)
	assert.Equal(t, entity.ClaimCompleted, stored[0].Status)
	assert.Equal(t, 1600, stored[0].XPAwarded)

	rows := f.activities.All()
	require.Len(t, rows, 1)
	assert.Equal(t, entity.ActivityFaucetClaim, rows[0].Type)
	assert.Equal(t, 1600, rows[0].Amount)
	assert.Equal(t, "Faucet claim: 80 HLS", rows[0].Description)
}

func TestRequestTokensValidationOrder(t *testing.T) {
	user := testutil.NewUser(1)

	tests := []struct {
		name    string
		req     dto.ClaimRequest
		wantErr error
	}{
		{"unknown token", dto.ClaimRequest{Token: "DOGE", Chain: "helios-testnet", Amount: 200}, apperror.ErrInvalidInput},
		{"wrong chain", dto.ClaimRequest{Token: "HLS", Chain: "goerli", Amount: 1}, apperror.ErrInvalidInput},
		{"above max", dto.ClaimRequest{Token: "HLS", Chain: "helios-testnet", Amount: 100.5}, apperror.ErrLimitExceeded},
		{"eth above max", dto.ClaimRequest{Token: "ETH", Chain: "goerli", Amount: 0.2}, apperror.ErrLimitExceeded},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sender := &mockSender{}
			f := newFixture(t, sender, user)

			_, err := f.svc.RequestTokens(context.Background(), user.ID, tt.req)
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)
			assert.Equal(t, http.StatusBadRequest, apperror.MapErrorToStatus(err))
			assert.Empty(t, f.claims.All())
			sender.AssertNotCalled(t, "Send")
		})
	}
}

func TestRequestTokensCooldown(t *testing.T) {
	user := testutil.NewUser(1)
	f := newFixture(t, chain.NewSimulatedSender(), user)
	ctx := context.Background()
	req := dto.ClaimRequest{Token: "HLS", Chain: "helios-testnet", Amount: 10}

	_, err := f.svc.RequestTokens(ctx, user.ID, req)
	require.NoError(t, err)

	f.clock.Advance(23 * time.Hour)
	_, err = f.svc.RequestTokens(ctx, user.ID, req)
	assert.ErrorIs(t, err, apperror.ErrNotEligible)

	eligibility, err := f.svc.CheckEligibility(ctx, user.ID, dto.EligibilityRequest{Token: "HLS", Chain: "helios-testnet"})
	require.NoError(t, err)
	assert.False(t, eligibility.Eligible)
	require.NotNil(t, eligibility.NextClaimAt)
	assert.Equal(t, testutil.Epoch.Add(24*time.Hour), *eligibility.NextClaimAt)

	// A different token has its own window.
	_, err = f.svc.RequestTokens(ctx, user.ID, dto.ClaimRequest{Token: "ETH", Chain: "goerli", Amount: 0.1})
	require.NoError(t, err)

	f.clock.Advance(2 * time.Hour)
	_, err = f.svc.RequestTokens(ctx, user.ID, req)
	require.NoError(t, err)
	assert.Equal(t, 200+200+2, f.users.Get(user.ID).XP)
}

func TestRequestTokensSendFailure(t *testing.T) {
	user := testutil.NewUser(1)
	sender := &mockSender{}
	sender.On("Send", mock.Anything, user.WalletAddress, "HLS", "helios-testnet", 10.0).
		Return(chain.Receipt{}, errors.New("rpc unavailable")).Once()
	sender.On("Send", mock.Anything, user.WalletAddress, "HLS", "helios-testnet", 10.0).
		Return(chain.Receipt{TransactionHash: "0xabc"}, nil).Once()
	f := newFixture(t, sender, user)
	ctx := context.Background()
	req := dto.ClaimRequest{Token: "HLS", Chain: "helios-testnet", Amount: 10}

	_, err := f.svc.RequestTokens(ctx, user.ID, req)
	require.Error(t, err)
	assert.ErrorIs(t, err, apperror.ErrExternalService)
	assert.Equal(t, http.StatusBadGateway, apperror.MapErrorToStatus(err))

	claims := f.claims.All()
	require.Len(t, claims, 1)
	assert.Equal(t, entity.ClaimFailed, claims[0].Status)
	require.NotNil(t, claims[0].ErrorMessage)
	assert.Equal(t, "rpc unavailable", *claims[0].ErrorMessage)
	assert.Zero(t, f.users.Get(user.ID).XP)

	// Failed claims never block a retry.
	res, err := f.svc.RequestTokens(ctx, user.ID, req)
	require.NoError(t, err)
	assert.Equal(t, "0xabc", res.TransactionHash)
	sender.AssertExpectations(t)
}

func TestPendingClaimBlocksAndSweeperFailsIt(t *testing.T) {
	user := testutil.NewUser(1)
	f := newFixture(t, chain.NewSimulatedSender(), user)
	ctx := context.Background()

	f.claims.Put(entity.FaucetClaim{
		UserID:        user.ID,
		WalletAddress: user.WalletAddress,
		Token:         "HLS",
		Chain:         "helios-testnet",
		Amount:        5,
		Status:        entity.ClaimPending,
		CreatedAt:     testutil.Epoch,
	})

	_, err := f.svc.RequestTokens(ctx, user.ID, dto.ClaimRequest{Token: "HLS", Chain: "helios-testnet", Amount: 5})
	assert.ErrorIs(t, err, apperror.ErrNotEligible)

	n, err := f.svc.SweepStale(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	f.clock.Advance(11 * time.Minute)
	n, err = f.svc.SweepStale(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	_, err = f.svc.RequestTokens(ctx, user.ID, dto.ClaimRequest{Token: "HLS", Chain: "helios-testnet", Amount: 5})
	require.NoError(t, err)
}

func TestRequestTokensNearXPCap(t *testing.T) {
	user := testutil.NewUser(1)
	user.XP = 999_000
	user.Level = 10
	f := newFixture(t, chain.NewSimulatedSender(), user)
	ctx := context.Background()
	req := dto.ClaimRequest{Token: "HLS", Chain: "helios-testnet", Amount: 80}

	res, err := f.svc.RequestTokens(ctx, user.ID, req)
	require.NoError(t, err)
	assert.Equal(t, 1000, res.XPReward)
	assert.Equal(t, leveling.MaxXP, res.TotalXP)
	assert.Equal(t, leveling.MaxXP, f.users.Get(user.ID).XP)

	claims := f.claims.All()
	require.Len(t, claims, 1)
	assert.Equal(t, entity.ClaimCompleted, claims[0].Status)
	assert.Equal(t, 1000, claims[0].XPAwarded)

	f.clock.Advance(time.Hour)
	_, err = f.svc.RequestTokens(ctx, user.ID, req)
	assert.ErrorIs(t, err, apperror.ErrNotEligible)

	// At the cap a claim still completes, with no xp.
	f.clock.Advance(24 * time.Hour)
	res, err = f.svc.RequestTokens(ctx, user.ID, req)
	require.NoError(t, err)
	assert.Zero(t, res.XPReward)
	assert.Equal(t, leveling.MaxXP, res.TotalXP)
	assert.Len(t, f.activities.All(), 1)

	_, err = f.svc.RequestTokens(ctx, user.ID, req)
	assert.ErrorIs(t, err, apperror.ErrNotEligible)
}

// sweepingSender runs the stale sweep while the transfer is in flight.
type sweepingSender struct {
	clock *clock.Fake
	svc   FaucetService
	swept int64
	sends int
}

func (s *sweepingSender) Send(ctx context.Context, wallet, token, chainID string, amount float64) (chain.Receipt, error) {
	s.sends++
	s.clock.Advance(11 * time.Minute)
	n, err := s.svc.SweepStale(ctx)
	s.swept += n
	return chain.Receipt{TransactionHash: "0xslow"}, err
}

func TestSlowSendOutlivesSweeper(t *testing.T) {
	user := testutil.NewUser(1)
	sender := &sweepingSender{}
	f := newFixture(t, sender, user)
	sender.clock, sender.svc = f.clock, f.svc
	ctx := context.Background()
	req := dto.ClaimRequest{Token: "HLS", Chain: "helios-testnet", Amount: 80}

	res, err := f.svc.RequestTokens(ctx, user.ID, req)
	require.NoError(t, err)
	assert.Equal(t, int64(1), sender.swept)
	assert.Equal(t, "completed", res.Claim.Status)
	assert.Equal(t, 1600, res.XPReward)
	assert.Equal(t, 1600, f.users.Get(user.ID).XP)

	claims := f.claims.All()
	require.Len(t, claims, 1)
	assert.Equal(t, entity.ClaimCompleted, claims[0].Status)
	assert.Nil(t, claims[0].ErrorMessage)
	require.NotNil(t, claims[0].TransactionHash)
	assert.Equal(t, "0xslow", *claims[0].TransactionHash)

	_, err = f.svc.RequestTokens(ctx, user.ID, req)
	assert.ErrorIs(t, err, apperror.ErrNotEligible)
	assert.Equal(t, 1, sender.sends)
}

func TestHistoryAndTokens(t *testing.T) {
	user := testutil.NewUser(1)
	f := newFixture(t, chain.NewSimulatedSender(), user)
	ctx := context.Background()

	_, err := f.svc.RequestTokens(ctx, user.ID, dto.ClaimRequest{Token: "HLS", Chain: "helios-testnet", Amount: 1})
	require.NoError(t, err)
	f.clock.Advance(time.Minute)
	_, err = f.svc.RequestTokens(ctx, user.ID, dto.ClaimRequest{Token: "ETH", Chain: "goerli", Amount: 0.05})
	require.NoError(t, err)

	page, err := f.svc.History(ctx, user.ID, dto.HistoryQuery{})
	require.NoError(t, err)
	require.Len(t, page.Data, 2)
	assert.Equal(t, "ETH", page.Data[0].Token)

	failed, err := f.svc.History(ctx, user.ID, dto.HistoryQuery{Status: "failed"})
	require.NoError(t, err)
	assert.Empty(t, failed.Data)

	tokens := f.svc.AvailableTokens()
	require.Len(t, tokens, 2)
	assert.Equal(t, 2.0, tokens[0].Multiplier)
}

func TestScenarioRegisterDailyFaucet(t *testing.T) {
	user := testutil.NewUser(7)
	f := newFixture(t, chain.NewSimulatedSender(), user)
	ctx := context.Background()

	stored := f.users.Get(user.ID)
	assert.Equal(t, 0, stored.XP)
	assert.Equal(t, 1, stored.Level)

	xp := xpService.NewXPService(
		xpService.NewLedger(xpService.LedgerDeps{
			Transactor: testutil.NewTransactor(f.users, f.activities),
			Users:      f.users,
			Activities: f.activities,
			Clock:      f.clock,
		}),
		f.users, f.activities, nil, f.clock,
		xpService.Config{DailyAmount: 50, MaxTransfer: 100},
	)
	daily, err := xp.ClaimDaily(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, 50, daily.TotalXP)
	assert.Equal(t, 1, daily.Level)

	res, err := f.svc.RequestTokens(ctx, user.ID, dto.ClaimRequest{Token: "HLS", Chain: "helios-testnet", Amount: 80})
	require.NoError(t, err)
	assert.Equal(t, 1600, res.XPReward)
	assert.Equal(t, 1650, res.TotalXP)
	assert.Equal(t, 5, res.Level)
	assert.True(t, res.LeveledUp)
	require.Len(t, f.notifier.LevelUps, 1)
	assert.Equal(t, 5, f.notifier.LevelUps[0].Level)
}
