package service

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"helios.network/testnetapi/internal/entity"
	"helios.network/testnetapi/internal/modules/admin/dto"
	audit "helios.network/testnetapi/internal/modules/audit/service"
	userService "helios.network/testnetapi/internal/modules/user/service"
	xpDto "helios.network/testnetapi/internal/modules/xp/dto"
	xpService "helios.network/testnetapi/internal/modules/xp/service"
	"helios.network/testnetapi/internal/ratelimit"
	"helios.network/testnetapi/internal/testutil"
	"helios.network/testnetapi/pkg/apperror"
	"helios.network/testnetapi/pkg/chain"
	"helios.network/testnetapi/pkg/clock"
	commonDto "helios.network/testnetapi/pkg/dto"
	"helios.network/testnetapi/pkg/leveling"
	"helios.network/testnetapi/pkg/token"
)

type stubSweeper struct{ n int64 }

func (s stubSweeper) SweepStale(context.Context) (int64, error) { return s.n, nil }

type stubChain struct {
	stats chain.NetworkStats
	err   error
}

func (s stubChain) NetworkStats(context.Context) (chain.NetworkStats, error) { return s.stats, s.err }

type fixture struct {
	users      *testutil.UserStore
	activities *testutil.ActivityStore
	claims     *testutil.ClaimStore
	steps      *testutil.StepStore
	badges     *testutil.BadgeStore
	apps       *testutil.ApplicationStore
	audits     *testutil.AuditStore
	tx         *testutil.Transactor
	notifier   *testutil.Notifier
	svc        AdminService
}

var admin = audit.Actor{ID: uuid.New(), Wallet: testutil.Wallet(999)}

func newFixture(t *testing.T, stats chain.StatsReader, users ...*entity.User) *fixture {
	t.Helper()
	f := &fixture{
		users:    testutil.NewUserStore(users...),
		claims:   testutil.NewClaimStore(),
		steps:    testutil.NewStepStore(),
		badges:   testutil.NewBadgeStore(),
		apps:     testutil.NewApplicationStore(),
		audits:   testutil.NewAuditStore(),
		notifier: &testutil.Notifier{},
	}
	f.activities = testutil.NewActivityStore(f.users)
	f.tx = testutil.NewTransactor(f.users, f.activities, f.audits)
	clk := clock.NewFake(testutil.Epoch)
	ledger := xpService.NewLedger(xpService.LedgerDeps{
		Transactor: f.tx,
		Users:      f.users,
		Activities: f.activities,
		Levels:     leveling.DefaultTable(),
		Notifier:   f.notifier,
		Clock:      clk,
	})
	if stats == nil {
		stats = stubChain{err: chain.ErrNoRPC}
	}
	f.svc = NewAdminService(Deps{
		Users:        f.users,
		UserService:  userService.NewUserService(f.users, nil, nil, ratelimit.New(nil), token.NewIssuer("secret", time.Hour), clk, userService.Config{}),
		Ledger:       ledger,
		XP:           xpService.NewXPService(ledger, f.users, f.activities, f.notifier, clk, xpService.Config{DailyAmount: 50}),
		Activities:   f.activities,
		Claims:       f.claims,
		Sweeper:      stubSweeper{n: 3},
		Steps:        f.steps,
		Badges:       f.badges,
		Applications: f.apps,
		AuditLogs:    f.audits,
		Audit:        audit.NewRecorder(f.audits),
		Chain:        stats,
	})
	return f
}

func TestGrantXP(t *testing.T) {
	u := testutil.NewUser(1)
	f := newFixture(t, nil, u)
	ctx := context.Background()

	res, err := f.svc.GrantXP(ctx, admin, dto.GrantXPRequest{WalletAddress: u.WalletAddress, Amount: 250, Reason: "bug bounty"})
	require.NoError(t, err)
	assert.Equal(t, 250, res.TotalXP)
	assert.Equal(t, 3, res.Level)
	assert.True(t, res.LeveledUp)

	acts := f.activities.All()
	require.Len(t, acts, 1)
	assert.Equal(t, entity.ActivityAdminGrant, acts[0].Type)
	assert.Equal(t, "bug bounty", acts[0].Description)
	assert.Equal(t, []string{audit.ActionXPGrant}, f.audits.Actions())
	require.Len(t, f.notifier.LevelUps, 1)

	_, err = f.svc.GrantXP(ctx, admin, dto.GrantXPRequest{WalletAddress: u.WalletAddress, Amount: -1000, Reason: "clawback"})
	assert.ErrorIs(t, err, apperror.ErrInsufficientXP)
	assert.Equal(t, 250, f.users.Get(u.ID).XP)
	assert.Len(t, f.audits.Actions(), 1)
	assert.Equal(t, 1, f.tx.Rollbacks)

	_, err = f.svc.GrantXP(ctx, admin, dto.GrantXPRequest{WalletAddress: testutil.Wallet(7), Amount: 10, Reason: "x"})
	assert.ErrorIs(t, err, apperror.ErrNotFound)

	_, err = f.svc.GrantXP(ctx, admin, dto.GrantXPRequest{WalletAddress: u.WalletAddress, Reason: "x"})
	assert.ErrorIs(t, err, apperror.ErrInvalidInput)
}

func TestUpdateStatusAndDelete(t *testing.T) {
	u := testutil.NewUser(1)
	f := newFixture(t, nil, u)
	ctx := context.Background()

	res, err := f.svc.UpdateStatus(ctx, admin, u.ID, dto.UpdateStatusRequest{Status: "suspended", Reason: "sybil"})
	require.NoError(t, err)
	assert.Equal(t, string(entity.AccountSuspended), res.Status)

	self := audit.Actor{ID: u.ID, Wallet: u.WalletAddress}
	_, err = f.svc.UpdateStatus(ctx, self, u.ID, dto.UpdateStatusRequest{Status: "banned"})
	assert.ErrorIs(t, err, apperror.ErrForbidden)

	_, err = f.svc.UpdateStatus(ctx, admin, uuid.New(), dto.UpdateStatusRequest{Status: "banned"})
	assert.ErrorIs(t, err, apperror.ErrNotFound)

	require.NoError(t, f.svc.DeleteUser(ctx, admin, u.ID))
	assert.Nil(t, f.users.Get(u.ID))

	err = f.svc.DeleteUser(ctx, admin, u.ID)
	assert.ErrorIs(t, err, apperror.ErrNotFound)

	assert.Equal(t, []string{audit.ActionUserStatus, audit.ActionUserDelete}, f.audits.Actions())

	logs, err := f.svc.AuditLogs(ctx, dto.AuditQuery{Action: audit.ActionUserStatus})
	require.NoError(t, err)
	require.Len(t, logs.Data, 1)
	assert.Equal(t, u.ID.String(), logs.Data[0].TargetID)
}

func TestUsersAndDetail(t *testing.T) {
	a, b := testutil.NewUser(1), testutil.NewUser(2)
	a.XP, b.XP = 10, 500
	f := newFixture(t, nil, a, b)
	ctx := context.Background()

	list, err := f.svc.Users(ctx, dto.UserQuery{SortBy: "xp"})
	require.NoError(t, err)
	require.Len(t, list.Data, 2)
	assert.Equal(t, b.ID, list.Data[0].ID)

	_, err = f.svc.GrantXP(ctx, admin, dto.GrantXPRequest{WalletAddress: a.WalletAddress, Amount: 5, Reason: "welcome"})
	require.NoError(t, err)

	detail, err := f.svc.User(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, 15, detail.User.XP)
	assert.Nil(t, detail.Application)
	assert.Zero(t, detail.BadgeCount)
	require.Len(t, detail.RecentActivities, 1)

	acts, err := f.svc.Activities(ctx, xpDto.AdminActivityQuery{Wallet: a.WalletAddress})
	require.NoError(t, err)
	assert.Len(t, acts.Data, 1)

	_, err = f.svc.User(ctx, uuid.New())
	assert.ErrorIs(t, err, apperror.ErrNotFound)
}

func TestSystemStats(t *testing.T) {
	a, b := testutil.NewUser(1), testutil.NewUser(2)
	a.XP, b.XP = 100, 300
	b.Status = entity.AccountBanned
	a.OnboardingCompleted = true
	f := newFixture(t, nil, a, b)
	f.claims.Put(entity.FaucetClaim{UserID: a.ID, WalletAddress: a.WalletAddress, Token: "HLS", Status: entity.ClaimCompleted})
	f.claims.Put(entity.FaucetClaim{UserID: a.ID, WalletAddress: a.WalletAddress, Token: "HLS", Status: entity.ClaimFailed})

	stats, err := f.svc.SystemStats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.Users.Total)
	assert.Equal(t, int64(1), stats.Users.Active)
	assert.Equal(t, int64(1), stats.Users.Banned)
	assert.Equal(t, int64(1), stats.Users.OnboardingCompleted)
	assert.Equal(t, int64(400), stats.TotalXP)
	assert.Equal(t, int64(1), stats.Claims[entity.ClaimCompleted])
	assert.Equal(t, int64(1), stats.Claims[entity.ClaimFailed])
	assert.Contains(t, stats.OnboardingSteps, entity.StepAddHeliosNetwork)

	claims, err := f.svc.Claims(context.Background(), dto.ClaimQuery{Status: "failed", Wallet: a.WalletAddress})
	require.NoError(t, err)
	assert.Len(t, claims.Data, 1)
	assert.Equal(t, int64(1), claims.Meta.TotalItems)
}

func TestBlockchainStats(t *testing.T) {
	ctx := context.Background()

	f := newFixture(t, nil)
	_, err := f.svc.BlockchainStats(ctx)
	require.Error(t, err)
	assert.Equal(t, http.StatusBadGateway, apperror.MapErrorToStatus(err))

	f = newFixture(t, stubChain{err: errors.New("dial tcp: refused")})
	_, err = f.svc.BlockchainStats(ctx)
	require.Error(t, err)
	assert.Equal(t, http.StatusBadGateway, apperror.MapErrorToStatus(err))

	f = newFixture(t, stubChain{stats: chain.NetworkStats{ChainID: "42000", LatestBlock: 1234}})
	stats, err := f.svc.BlockchainStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, "42000", stats.ChainID)
	assert.Equal(t, uint64(1234), stats.LatestBlock)
}

func TestJobs(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	_, err := f.svc.Reindex(ctx, admin)
	require.Error(t, err)
	assert.Equal(t, http.StatusBadGateway, apperror.MapErrorToStatus(err))

	res, err := f.svc.SweepClaims(ctx, admin)
	require.NoError(t, err)
	assert.Equal(t, int64(3), res.Affected)
	assert.Equal(t, []string{audit.ActionFaucetSweep}, f.audits.Actions())

	page, err := f.svc.AuditLogs(ctx, dto.AuditQuery{PageQuery: commonDto.PageQuery{Limit: 1}, AdminID: admin.ID.String()})
	require.NoError(t, err)
	assert.Len(t, page.Data, 1)

	_, err = f.svc.AuditLogs(ctx, dto.AuditQuery{AdminID: "nope"})
	assert.ErrorIs(t, err, apperror.ErrInvalidInput)
}
