package service

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"helios.network/testnetapi/internal/entity"
	"helios.network/testnetapi/internal/modules/xp/dto"
	"helios.network/testnetapi/internal/testutil"
	"helios.network/testnetapi/pkg/apperror"
	"helios.network/testnetapi/pkg/clock"
	commonDto "helios.network/testnetapi/pkg/dto"
	"helios.network/testnetapi/pkg/leveling"
)

type fixture struct {
	users      *testutil.UserStore
	activities *testutil.ActivityStore
	tx         *testutil.Transactor
	notifier   *testutil.Notifier
	clock      *clock.Fake
	ledger     *Ledger
	svc        XPService
}

func newFixture(t *testing.T, users ...*entity.User) *fixture {
	t.Helper()
	f := &fixture{
		users:    testutil.NewUserStore(users...),
		notifier: &testutil.Notifier{},
		clock:    clock.NewFake(testutil.Epoch),
	}
	f.activities = testutil.NewActivityStore(f.users)
	f.tx = testutil.NewTransactor(f.users, f.activities)
	f.ledger = NewLedger(LedgerDeps{
		Transactor: f.tx,
		Users:      f.users,
		Activities: f.activities,
		Levels:     leveling.DefaultTable(),
		Notifier:   f.notifier,
		Clock:      f.clock,
	})
	f.svc = NewXPService(f.ledger, f.users, f.activities, f.notifier, f.clock, Config{
		DailyAmount:     50,
		MaxTransfer:     100,
		ActivityRewards: map[string]int{"tutorial_complete": 100, "contribution": 75, "referral": 50},
	})
	return f
}

func TestClaimDailyOncePerWindow(t *testing.T) {
	user := testutil.NewUser(1)
	f := newFixture(t, user)
	ctx := context.Background()

	first, err := f.svc.ClaimDaily(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, 50, first.TotalXP)
	assert.Equal(t, 1, first.Level)
	assert.Equal(t, testutil.Epoch.Add(24*time.Hour), first.NextClaimAt)

	f.clock.Advance(23*time.Hour + 59*time.Minute)
	_, err = f.svc.ClaimDaily(ctx, user.ID)
	require.Error(t, err)
	assert.ErrorIs(t, err, apperror.ErrNotEligible)
	assert.Equal(t, http.StatusBadRequest, apperror.MapErrorToStatus(err))
	assert.Contains(t, err.Error(), "2025-03-02T12:00:00Z")

	status, err := f.svc.DailyStatus(ctx, user.ID)
	require.NoError(t, err)
	assert.False(t, status.Eligible)

	f.clock.Advance(time.Minute)
	second, err := f.svc.ClaimDaily(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, 100, second.TotalXP)
	assert.Equal(t, 100, f.users.Get(user.ID).XP)
	assert.Len(t, f.activities.All(), 2)
}

func TestClaimDailyWithoutConfiguredAmount(t *testing.T) {
	user := testutil.NewUser(1)
	f := newFixture(t, user)
	svc := NewXPService(f.ledger, f.users, f.activities, nil, f.clock, Config{})

	res, err := svc.ClaimDaily(context.Background(), user.ID)
	require.NoError(t, err)
	assert.Equal(t, DefaultDailyAmount, res.XPGained)
	assert.Equal(t, DefaultDailyAmount, f.users.Get(user.ID).XP)
	assert.Equal(t, testutil.Epoch.Add(DailyCooldown), res.NextClaimAt)

	_, err = svc.ClaimDaily(context.Background(), user.ID)
	assert.ErrorIs(t, err, apperror.ErrNotEligible)
}

func TestClaimDailyStatusWhenNeverClaimed(t *testing.T) {
	user := testutil.NewUser(1)
	f := newFixture(t, user)

	status, err := f.svc.DailyStatus(context.Background(), user.ID)
	require.NoError(t, err)
	assert.True(t, status.Eligible)
	assert.Nil(t, status.NextClaimAt)
	assert.Equal(t, 50, status.Amount)
}

func TestLogActivity(t *testing.T) {
	user := testutil.NewUser(1)
	f := newFixture(t, user)
	ctx := context.Background()

	res, err := f.svc.LogActivity(ctx, user.ID, dto.LogActivityRequest{ActivityType: "contribution"})
	require.NoError(t, err)
	assert.Equal(t, 75, res.TotalXP)
	assert.Equal(t, "Activity: contribution", res.Activity.Description)

	stored := f.users.Get(user.ID)
	assert.Equal(t, 75, stored.ContributionXP)

	res, err = f.svc.LogActivity(ctx, user.ID, dto.LogActivityRequest{ActivityType: "tutorial_complete", Description: "finished"})
	require.NoError(t, err)
	assert.Equal(t, 175, res.TotalXP)
	assert.Equal(t, 2, res.Level)
	assert.True(t, res.LeveledUp)
	require.Len(t, f.notifier.LevelUps, 1)
	assert.Equal(t, 2, f.notifier.LevelUps[0].Level)
	assert.Equal(t, 75, f.users.Get(user.ID).ContributionXP)

	_, err = f.svc.LogActivity(ctx, user.ID, dto.LogActivityRequest{ActivityType: "daily_claim"})
	assert.ErrorIs(t, err, apperror.ErrInvalidInput)
}

func TestTransferMovesBalances(t *testing.T) {
	sender := testutil.NewUser(1)
	sender.XP, sender.Level = 300, 3
	recipient := testutil.NewUser(2)
	f := newFixture(t, sender, recipient)

	res, err := f.svc.Transfer(context.Background(), sender.ID, dto.TransferRequest{
		ToWallet: recipient.WalletAddress,
		Amount:   100,
	})
	require.NoError(t, err)
	assert.Equal(t, 200, res.SenderXP)
	assert.Equal(t, 2, res.SenderLevel)

	assert.Equal(t, 200, f.users.Get(sender.ID).XP)
	assert.Equal(t, 100, f.users.Get(recipient.ID).XP)
	assert.Equal(t, 2, f.users.Get(recipient.ID).Level)

	rows := f.activities.All()
	require.Len(t, rows, 2)
	assert.Equal(t, -100, rows[0].Amount)
	assert.Equal(t, sender.ID, rows[0].UserID)
	assert.Equal(t, recipient.ID, *rows[0].RelatedUserID)
	assert.Equal(t, 100, rows[1].Amount)
	assert.Equal(t, recipient.ID, rows[1].UserID)
	assert.Equal(t, sender.ID, *rows[1].RelatedUserID)
	for _, r := range rows {
		assert.Equal(t, entity.ActivityTransfer, r.Type)
	}

	require.Len(t, f.notifier.Received, 1)
	assert.Equal(t, recipient.ID, f.notifier.Received[0].UserID)
	require.Len(t, f.notifier.LevelUps, 1)
	assert.Equal(t, recipient.ID, f.notifier.LevelUps[0].UserID)
}

func TestTransferLocksRowsInIDOrder(t *testing.T) {
	a := testutil.NewUser(1)
	a.XP = 100
	b := testutil.NewUser(2)
	b.XP = 100
	f := newFixture(t, a, b)
	ctx := context.Background()

	_, err := f.svc.Transfer(ctx, a.ID, dto.TransferRequest{ToWallet: b.WalletAddress, Amount: 10})
	require.NoError(t, err)
	_, err = f.svc.Transfer(ctx, b.ID, dto.TransferRequest{ToWallet: a.WalletAddress, Amount: 10})
	require.NoError(t, err)

	require.Len(t, f.users.Locks, 4)
	assert.Equal(t, f.users.Locks[0], f.users.Locks[2])
	assert.Equal(t, f.users.Locks[1], f.users.Locks[3])
}

func TestTransferRejections(t *testing.T) {
	sender := testutil.NewUser(1)
	sender.XP = 40
	recipient := testutil.NewUser(2)
	recipient.XP = 5

	tests := []struct {
		name    string
		req     dto.TransferRequest
		wantErr error
	}{
		{"overdraft", dto.TransferRequest{ToWallet: recipient.WalletAddress, Amount: 41}, apperror.ErrInsufficientXP},
		{"above cap", dto.TransferRequest{ToWallet: recipient.WalletAddress, Amount: 101}, apperror.ErrLimitExceeded},
		{"unknown recipient", dto.TransferRequest{ToWallet: testutil.Wallet(99), Amount: 1}, apperror.ErrNotFound},
		{"self", dto.TransferRequest{ToWallet: sender.WalletAddress, Amount: 1}, apperror.ErrBadRequest},
		{"zero", dto.TransferRequest{ToWallet: recipient.WalletAddress, Amount: 0}, apperror.ErrInvalidInput},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, sender, recipient)

			_, err := f.svc.Transfer(context.Background(), sender.ID, tt.req)
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)

			assert.Equal(t, 40, f.users.Get(sender.ID).XP)
			assert.Equal(t, 5, f.users.Get(recipient.ID).XP)
			assert.Empty(t, f.activities.All())
		})
	}
}

func TestTransferRollsBackWhenRecipientOverflows(t *testing.T) {
	sender := testutil.NewUser(1)
	sender.XP = 100
	recipient := testutil.NewUser(2)
	recipient.XP = leveling.MaxXP
	f := newFixture(t, sender, recipient)

	_, err := f.svc.Transfer(context.Background(), sender.ID, dto.TransferRequest{
		ToWallet: recipient.WalletAddress,
		Amount:   10,
	})
	assert.ErrorIs(t, err, apperror.ErrLimitExceeded)
	assert.Equal(t, 100, f.users.Get(sender.ID).XP)
	assert.Empty(t, f.activities.All())
	assert.Equal(t, 1, f.tx.Rollbacks)
	assert.Empty(t, f.notifier.Received)
}

func TestHistoryIsReverseChronological(t *testing.T) {
	user := testutil.NewUser(1)
	f := newFixture(t, user)
	ctx := context.Background()

	_, err := f.svc.ClaimDaily(ctx, user.ID)
	require.NoError(t, err)
	f.clock.Advance(time.Hour)
	_, err = f.svc.LogActivity(ctx, user.ID, dto.LogActivityRequest{ActivityType: "referral"})
	require.NoError(t, err)
	f.clock.Advance(24 * time.Hour)
	_, err = f.svc.ClaimDaily(ctx, user.ID)
	require.NoError(t, err)

	page, err := f.svc.History(ctx, user.ID, dto.HistoryQuery{})
	require.NoError(t, err)
	require.Len(t, page.Data, 3)
	assert.Equal(t, int64(3), page.Meta.TotalItems)
	assert.Equal(t, "daily_claim", page.Data[0].Type)
	assert.Equal(t, "referral", page.Data[1].Type)
	assert.True(t, page.Data[0].CreatedAt.After(page.Data[1].CreatedAt))

	filtered, err := f.svc.History(ctx, user.ID, dto.HistoryQuery{
		PageQuery: commonDto.PageQuery{Page: 1, Limit: 1},
		Type:      "daily_claim",
	})
	require.NoError(t, err)
	require.Len(t, filtered.Data, 1)
	assert.Equal(t, int64(2), filtered.Meta.TotalItems)

	_, err = f.svc.History(ctx, user.ID, dto.HistoryQuery{Type: "bogus"})
	assert.ErrorIs(t, err, apperror.ErrInvalidInput)
}

func TestAdminActivitiesFilterByWallet(t *testing.T) {
	a := testutil.NewUser(1)
	b := testutil.NewUser(2)
	f := newFixture(t, a, b)
	ctx := context.Background()

	_, err := f.svc.ClaimDaily(ctx, a.ID)
	require.NoError(t, err)
	_, err = f.svc.ClaimDaily(ctx, b.ID)
	require.NoError(t, err)

	all, err := f.svc.AdminActivities(ctx, dto.AdminActivityQuery{})
	require.NoError(t, err)
	assert.Len(t, all.Data, 2)

	onlyA, err := f.svc.AdminActivities(ctx, dto.AdminActivityQuery{Wallet: a.WalletAddress})
	require.NoError(t, err)
	require.Len(t, onlyA.Data, 1)
	assert.Equal(t, a.WalletAddress, onlyA.Data[0].WalletAddress)

	none, err := f.svc.AdminActivities(ctx, dto.AdminActivityQuery{Wallet: testutil.Wallet(50)})
	require.NoError(t, err)
	assert.Empty(t, none.Data)
}
