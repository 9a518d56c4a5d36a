package service

import (
	"context"
	"net/http"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"helios.network/testnetapi/internal/entity"
	audit "helios.network/testnetapi/internal/modules/audit/service"
	"helios.network/testnetapi/internal/modules/badge/dto"
	xpService "helios.network/testnetapi/internal/modules/xp/service"
	"helios.network/testnetapi/internal/testutil"
	"helios.network/testnetapi/pkg/apperror"
	"helios.network/testnetapi/pkg/clock"
	commonDto "helios.network/testnetapi/pkg/dto"
	"helios.network/testnetapi/pkg/leveling"
)

type fixture struct {
	users      *testutil.UserStore
	activities *testutil.ActivityStore
	badges     *testutil.BadgeStore
	audits     *testutil.AuditStore
	tx         *testutil.Transactor
	notifier   *testutil.Notifier
	svc        BadgeService
}

var admin = audit.Actor{ID: uuid.New(), Wallet: testutil.Wallet(999)}

func newFixture(t *testing.T, users ...*entity.User) *fixture {
	t.Helper()
	f := &fixture{
		users:    testutil.NewUserStore(users...),
		badges:   testutil.NewBadgeStore(),
		audits:   testutil.NewAuditStore(),
		notifier: &testutil.Notifier{},
	}
	f.activities = testutil.NewActivityStore(f.users)
	f.tx = testutil.NewTransactor(f.users, f.activities, f.badges, f.audits)
	clk := clock.NewFake(testutil.Epoch)
	ledger := xpService.NewLedger(xpService.LedgerDeps{
		Transactor: f.tx,
		Users:      f.users,
		Activities: f.activities,
		Levels:     leveling.DefaultTable(),
		Notifier:   f.notifier,
		Clock:      clk,
	})
	f.svc = NewBadgeService(f.badges, f.users, ledger, audit.NewRecorder(f.audits), f.notifier, clk)
	return f
}

func TestCreateBadge(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	badge, err := f.svc.Create(ctx, admin, dto.CreateBadgeRequest{Name: "Early Bird Tester", XPReward: 100})
	require.NoError(t, err)
	assert.Equal(t, "early-bird-tester", badge.Slug)
	assert.Equal(t, entity.RarityCommon, badge.Rarity)
	assert.Equal(t, entity.BadgeAchievement, badge.Type)

	_, err = f.svc.Create(ctx, admin, dto.CreateBadgeRequest{Name: "Early Bird Tester"})
	require.Error(t, err)
	assert.Equal(t, http.StatusConflict, apperror.MapErrorToStatus(err))

	_, err = f.svc.Create(ctx, admin, dto.CreateBadgeRequest{Name: "!!!"})
	assert.ErrorIs(t, err, apperror.ErrInvalidInput)

	assert.Equal(t, []string{audit.ActionBadgeCreate}, f.audits.Actions())
}

func TestAssignCreditsXPOnce(t *testing.T) {
	u := testutil.NewUser(1)
	u.XP = 50
	f := newFixture(t, u)
	ctx := context.Background()

	badge, err := f.svc.Create(ctx, admin, dto.CreateBadgeRequest{Name: "Bug Hunter", Rarity: "epic", XPReward: 100})
	require.NoError(t, err)

	res, err := f.svc.Assign(ctx, admin, badge.ID, dto.AssignBadgeRequest{WalletAddress: u.WalletAddress})
	require.NoError(t, err)
	assert.Equal(t, 100, res.XPAwarded)
	assert.Equal(t, 150, res.TotalXP)
	assert.Equal(t, 2, res.Level)
	assert.True(t, res.LeveledUp)

	acts := f.activities.All()
	require.Len(t, acts, 1)
	assert.Equal(t, entity.ActivityAdminGrant, acts[0].Type)
	assert.Equal(t, "Badge awarded: Bug Hunter", acts[0].Description)
	assert.Equal(t, []uuid.UUID{u.ID}, f.notifier.Badges)
	require.Len(t, f.notifier.LevelUps, 1)

	_, err = f.svc.Assign(ctx, admin, badge.ID, dto.AssignBadgeRequest{WalletAddress: u.WalletAddress})
	require.Error(t, err)
	assert.Equal(t, http.StatusConflict, apperror.MapErrorToStatus(err))
	assert.Equal(t, 150, f.users.Get(u.ID).XP)
	assert.Len(t, f.activities.All(), 1)

	mine, err := f.svc.UserBadges(ctx, u.ID)
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, "bug-hunter", mine[0].Badge.Slug)

	assert.Equal(t, []string{audit.ActionBadgeCreate, audit.ActionBadgeAssign}, f.audits.Actions())
}

func TestAssignRollsBackWhenXPOverflows(t *testing.T) {
	u := testutil.NewUser(1)
	u.XP = leveling.MaxXP - 10
	f := newFixture(t, u)
	ctx := context.Background()

	badge, err := f.svc.Create(ctx, admin, dto.CreateBadgeRequest{Name: "Whale", XPReward: 100})
	require.NoError(t, err)

	_, err = f.svc.Assign(ctx, admin, badge.ID, dto.AssignBadgeRequest{WalletAddress: u.WalletAddress})
	assert.ErrorIs(t, err, apperror.ErrLimitExceeded)
	assert.Equal(t, 1, f.tx.Rollbacks)

	owned, err := f.badges.HasBadge(ctx, u.ID, badge.ID)
	require.NoError(t, err)
	assert.False(t, owned)
	assert.Empty(t, f.notifier.Badges)
}

func TestAssignUnknownTargets(t *testing.T) {
	u := testutil.NewUser(1)
	f := newFixture(t, u)
	ctx := context.Background()

	_, err := f.svc.Assign(ctx, admin, uuid.New(), dto.AssignBadgeRequest{WalletAddress: u.WalletAddress})
	assert.Equal(t, http.StatusNotFound, apperror.MapErrorToStatus(err))

	badge, err := f.svc.Create(ctx, admin, dto.CreateBadgeRequest{Name: "Lonely"})
	require.NoError(t, err)
	_, err = f.svc.Assign(ctx, admin, badge.ID, dto.AssignBadgeRequest{WalletAddress: testutil.Wallet(42)})
	assert.Equal(t, http.StatusNotFound, apperror.MapErrorToStatus(err))
}

func TestListUpdateDelete(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	a, err := f.svc.Create(ctx, admin, dto.CreateBadgeRequest{Name: "Alpha", Rarity: "rare"})
	require.NoError(t, err)
	_, err = f.svc.Create(ctx, admin, dto.CreateBadgeRequest{Name: "Beta", Type: "milestone"})
	require.NoError(t, err)

	page, err := f.svc.List(ctx, dto.BadgeQuery{Rarity: "rare"})
	require.NoError(t, err)
	require.Len(t, page.Data, 1)
	assert.Equal(t, a.ID, page.Data[0].ID)

	page, err = f.svc.List(ctx, dto.BadgeQuery{PageQuery: commonDto.PageQuery{Page: 1, Limit: 1}})
	require.NoError(t, err)
	assert.Len(t, page.Data, 1)
	assert.Equal(t, int64(2), page.Meta.TotalItems)

	name := "Alpha Prime"
	updated, err := f.svc.Update(ctx, admin, a.ID, dto.UpdateBadgeRequest{Name: &name})
	require.NoError(t, err)
	assert.Equal(t, "alpha-prime", updated.Slug)

	dup := "Beta"
	_, err = f.svc.Update(ctx, admin, a.ID, dto.UpdateBadgeRequest{Name: &dup})
	assert.Equal(t, http.StatusConflict, apperror.MapErrorToStatus(err))

	require.NoError(t, f.svc.Delete(ctx, admin, a.ID))
	_, err = f.svc.Get(ctx, a.ID)
	assert.Equal(t, http.StatusNotFound, apperror.MapErrorToStatus(err))
	assert.Equal(t, http.StatusNotFound, apperror.MapErrorToStatus(f.svc.Delete(ctx, admin, a.ID)))
}
