package service

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"helios.network/testnetapi/internal/entity"
	"helios.network/testnetapi/internal/modules/leaderboard/dto"
	"helios.network/testnetapi/internal/testutil"
	"helios.network/testnetapi/pkg/clock"
	commonDto "helios.network/testnetapi/pkg/dto"
	"helios.network/testnetapi/pkg/leveling"
)

type fixture struct {
	users      *testutil.UserStore
	activities *testutil.ActivityStore
	svc        LeaderboardService
}

func newFixture(t *testing.T, users ...*entity.User) *fixture {
	t.Helper()
	f := &fixture{users: testutil.NewUserStore(users...)}
	f.activities = testutil.NewActivityStore(f.users)
	f.svc = NewLeaderboardService(f.users, f.activities, leveling.DefaultTable(), nil, clock.NewFake(testutil.Epoch))
	return f
}

func (f *fixture) earn(t *testing.T, userID uuid.UUID, amount int, at time.Time) {
	t.Helper()
	require.NoError(t, f.activities.Create(context.Background(), &entity.XPActivity{
		UserID:    userID,
		Amount:    amount,
		Type:      entity.ActivityAdminGrant,
		CreatedAt: at,
	}))
}

func withXP(n, xp int) *entity.User {
	u := testutil.NewUser(n)
	u.XP = xp
	u.Level = leveling.DefaultTable().LevelFor(xp)
	return u
}

func TestPeriodStart(t *testing.T) {
	now := time.Date(2025, 3, 14, 15, 30, 0, 0, time.UTC)

	daily, ok := periodStart(dto.PeriodDaily, now)
	require.True(t, ok)
	assert.Equal(t, time.Date(2025, 3, 14, 0, 0, 0, 0, time.UTC), daily)

	weekly, ok := periodStart(dto.PeriodWeekly, now)
	require.True(t, ok)
	assert.Equal(t, now.Add(-7*24*time.Hour), weekly)

	monthly, ok := periodStart(dto.PeriodMonthly, now)
	require.True(t, ok)
	assert.Equal(t, time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC), monthly)

	_, ok = periodStart(dto.PeriodAllTime, now)
	assert.False(t, ok)
}

func TestGlobalAllTime(t *testing.T) {
	a, b, c := withXP(1, 300), withXP(2, 1200), withXP(3, 50)
	f := newFixture(t, a, b, c)
	f.earn(t, a.ID, 120, testutil.Epoch.Add(-time.Hour))
	f.earn(t, a.ID, 500, testutil.Epoch.Add(-30*24*time.Hour))

	res, err := f.svc.Global(context.Background(), dto.LeaderboardQuery{PageQuery: commonDto.PageQuery{Page: 1, Limit: 2}})
	require.NoError(t, err)
	require.Len(t, res.Data, 2)
	assert.Equal(t, int64(3), res.Meta.TotalItems)
	assert.Equal(t, 2, res.Meta.TotalPages)

	assert.Equal(t, b.ID, res.Data[0].UserID)
	assert.Equal(t, 1, res.Data[0].Rank)
	assert.Equal(t, 1200, res.Data[0].PeriodXP)
	assert.Equal(t, a.ID, res.Data[1].UserID)
	assert.Equal(t, 2, res.Data[1].Rank)
	assert.Equal(t, 120, res.Data[1].WeeklyXP)
	assert.Equal(t, "Active", res.Data[1].ActivityLabel)
	assert.Equal(t, a.Level, res.Data[1].LevelStatus.Level)

	next, err := f.svc.Global(context.Background(), dto.LeaderboardQuery{PageQuery: commonDto.PageQuery{Page: 2, Limit: 2}})
	require.NoError(t, err)
	require.Len(t, next.Data, 1)
	assert.Equal(t, 3, next.Data[0].Rank)
	assert.Empty(t, next.Data[0].ActivityLabel)
}

func TestGlobalWindows(t *testing.T) {
	a, b := withXP(1, 5000), withXP(2, 100)
	f := newFixture(t, a, b)
	startOfDay := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)

	f.earn(t, a.ID, 40, startOfDay.Add(time.Hour))
	f.earn(t, b.ID, 90, startOfDay.Add(2*time.Hour))
	f.earn(t, a.ID, 400, startOfDay.Add(-time.Hour))
	f.earn(t, b.ID, -30, startOfDay.Add(3*time.Hour))

	daily, err := f.svc.Global(context.Background(), dto.LeaderboardQuery{Period: dto.PeriodDaily})
	require.NoError(t, err)
	require.Len(t, daily.Data, 2)
	assert.Equal(t, b.ID, daily.Data[0].UserID)
	assert.Equal(t, 60, daily.Data[0].PeriodXP)
	assert.Equal(t, a.ID, daily.Data[1].UserID)
	assert.Equal(t, 40, daily.Data[1].PeriodXP)

	weekly, err := f.svc.Global(context.Background(), dto.LeaderboardQuery{Period: dto.PeriodWeekly})
	require.NoError(t, err)
	require.Len(t, weekly.Data, 2)
	assert.Equal(t, a.ID, weekly.Data[0].UserID)
	assert.Equal(t, 440, weekly.Data[0].PeriodXP)
	assert.Equal(t, 440, weekly.Data[0].WeeklyXP)
	assert.Equal(t, "Trending", weekly.Data[0].ActivityLabel)
}

func TestGlobalSkipsDeletedUsers(t *testing.T) {
	a := withXP(1, 10)
	f := newFixture(t, a)
	f.earn(t, uuid.New(), 500, testutil.Epoch.Add(-time.Hour))
	f.earn(t, a.ID, 10, testutil.Epoch.Add(-time.Hour))

	res, err := f.svc.Global(context.Background(), dto.LeaderboardQuery{Period: dto.PeriodMonthly})
	require.NoError(t, err)
	require.Len(t, res.Data, 1)
	assert.Equal(t, a.ID, res.Data[0].UserID)
	assert.Equal(t, 2, res.Data[0].Rank)
}

func TestContributorsAndRank(t *testing.T) {
	tag := "Validator"
	a, b, c := withXP(1, 300), withXP(2, 300), withXP(3, 900)
	a.ContributorTag, a.ContributionXP = &tag, 120
	b.ContributorTag, b.ContributionXP = &tag, 400
	c.ContributionXP = 1000
	f := newFixture(t, a, b, c)
	ctx := context.Background()

	list, err := f.svc.Contributors(ctx, commonDto.PageQuery{})
	require.NoError(t, err)
	require.Len(t, list.Data, 2)
	assert.Equal(t, b.ID, list.Data[0].UserID)
	assert.Equal(t, 1, list.Data[0].Rank)
	assert.Equal(t, a.ID, list.Data[1].UserID)

	rank, err := f.svc.MyRank(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), rank.GlobalRank)
	assert.Equal(t, int64(3), rank.TotalUsers)
	require.NotNil(t, rank.ContributorRank)
	assert.Equal(t, int64(2), *rank.ContributorRank)

	tied, err := f.svc.MyRank(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), tied.GlobalRank)

	top, err := f.svc.MyRank(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), top.GlobalRank)
	assert.Nil(t, top.ContributorRank)
}

func TestStats(t *testing.T) {
	name := "ada"
	a, b := withXP(1, 100), withXP(2, 300)
	a.Username = &name
	f := newFixture(t, a, b)
	for i := range 12 {
		f.earn(t, a.ID, 10, testutil.Epoch.Add(time.Duration(i)*time.Minute))
	}

	stats, err := f.svc.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.TotalUsers)
	assert.Equal(t, int64(400), stats.TotalXP)
	assert.Equal(t, 300, stats.MaxXP)
	assert.Equal(t, int64(12), stats.TotalActivities)
	require.Len(t, stats.RecentActivities, recentActivityLimit)
	assert.Equal(t, testutil.Epoch.Add(11*time.Minute), stats.RecentActivities[0].CreatedAt)
	assert.Equal(t, a.WalletAddress, stats.RecentActivities[0].WalletAddress)
	require.NotNil(t, stats.RecentActivities[0].Username)
	assert.Equal(t, "ada", *stats.RecentActivities[0].Username)
}
