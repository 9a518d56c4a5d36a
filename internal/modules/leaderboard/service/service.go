package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"helios.network/testnetapi/internal/entity"
	"helios.network/testnetapi/internal/modules/leaderboard/dto"
	userRepo "helios.network/testnetapi/internal/modules/user/repository"
	xpRepo "helios.network/testnetapi/internal/modules/xp/repository"
	"helios.network/testnetapi/pkg/clock"
	commonDto "helios.network/testnetapi/pkg/dto"
	"helios.network/testnetapi/pkg/leveling"
)

const (
	recentActivityLimit = 10
	cacheTTL            = 30 * time.Second
)

type LeaderboardService interface {
	Global(ctx context.Context, query dto.LeaderboardQuery) (*commonDto.Paginated[dto.LeaderboardEntry], error)
	Contributors(ctx context.Context, page commonDto.PageQuery) (*commonDto.Paginated[dto.ContributorEntry], error)
	MyRank(ctx context.Context, userID uuid.UUID) (*dto.RankResponse, error)
	Stats(ctx context.Context) (*dto.StatsResponse, error)
}

type leaderboardService struct {
	users      userRepo.UserRepository
	activities xpRepo.ActivityRepository
	levels     leveling.Table
	cache      *pageCache
	clock      clock.Clock
}

// NewLeaderboardService builds the service. rdb may be nil, in which case
// pages are always computed from the database.
func NewLeaderboardService(
	users userRepo.UserRepository,
	activities xpRepo.ActivityRepository,
	levels leveling.Table,
	rdb *redis.Client,
	clk clock.Clock,
) LeaderboardService {
	if levels == nil {
		levels = leveling.DefaultTable()
	}
	if clk == nil {
		clk = clock.New()
	}
	return &leaderboardService{
		users:      users,
		activities: activities,
		levels:     levels,
		cache:      &pageCache{rdb: rdb, ttl: cacheTTL},
		clock:      clk,
	}
}

func (s *leaderboardService) Global(ctx context.Context, query dto.LeaderboardQuery) (*commonDto.Paginated[dto.LeaderboardEntry], error) {
	page := query.PageQuery.Normalize()
	period := query.Period
	if period == "" {
		period = dto.PeriodAllTime
	}

	key := fmt.Sprintf("leaderboard:%s:%d:%d", period, page.Page, page.Limit)
	var cached commonDto.Paginated[dto.LeaderboardEntry]
	if s.cache.get(ctx, key, &cached) {
		return &cached, nil
	}

	now := s.clock.Now()
	var (
		entries []dto.LeaderboardEntry
		total   int64
		err     error
	)
	if since, windowed := periodStart(period, now); windowed {
		entries, total, err = s.windowed(ctx, since, page)
	} else {
		entries, total, err = s.allTime(ctx, page)
	}
	if err != nil {
		return nil, err
	}

	if err := s.attachWeekly(ctx, entries, now); err != nil {
		return nil, err
	}

	res := &commonDto.Paginated[dto.LeaderboardEntry]{
		Data: entries,
		Meta: commonDto.NewPaginationMeta(page, total),
	}
	s.cache.set(ctx, key, res)
	return res, nil
}

func (s *leaderboardService) allTime(ctx context.Context, page commonDto.PageQuery) ([]dto.LeaderboardEntry, int64, error) {
	users, total, err := s.users.List(ctx, userRepo.UserFilter{
		SortBy: "xp",
		Desc:   true,
		Limit:  page.Limit,
		Offset: page.Offset(),
	})
	if err != nil {
		return nil, 0, err
	}

	entries := make([]dto.LeaderboardEntry, len(users))
	for i := range users {
		entries[i] = s.entry(&users[i], page.Offset()+i+1, users[i].XP)
	}
	return entries, total, nil
}

// windowed ranks by net xp inside the window. Users deleted since their
// activity was written drop out of the page.
func (s *leaderboardService) windowed(ctx context.Context, since time.Time, page commonDto.PageQuery) ([]dto.LeaderboardEntry, int64, error) {
	totals, total, err := s.activities.SumByUserSince(ctx, since, page.Limit, page.Offset())
	if err != nil {
		return nil, 0, err
	}
	if len(totals) == 0 {
		return []dto.LeaderboardEntry{}, total, nil
	}

	ids := make([]uuid.UUID, len(totals))
	for i, t := range totals {
		ids[i] = t.UserID
	}
	users, err := s.users.FindByIDs(ctx, ids)
	if err != nil {
		return nil, 0, err
	}
	byID := make(map[uuid.UUID]*entity.User, len(users))
	for i := range users {
		byID[users[i].ID] = &users[i]
	}

	entries := make([]dto.LeaderboardEntry, 0, len(totals))
	for i, t := range totals {
		user, ok := byID[t.UserID]
		if !ok {
			continue
		}
		entries = append(entries, s.entry(user, page.Offset()+i+1, t.Total))
	}
	return entries, total, nil
}

func (s *leaderboardService) entry(u *entity.User, rank, periodXP int) dto.LeaderboardEntry {
	return dto.LeaderboardEntry{
		Rank:           rank,
		UserID:         u.ID,
		WalletAddress:  u.WalletAddress,
		Username:       u.Username,
		AvatarURL:      u.AvatarURL,
		ContributorTag: u.ContributorTag,
		XP:             u.XP,
		Level:          u.Level,
		PeriodXP:       periodXP,
		LevelStatus:    s.levels.Status(u.XP),
	}
}

func (s *leaderboardService) attachWeekly(ctx context.Context, entries []dto.LeaderboardEntry, now time.Time) error {
	if len(entries) == 0 {
		return nil
	}
	ids := make([]uuid.UUID, len(entries))
	for i, e := range entries {
		ids[i] = e.UserID
	}
	weekly, err := s.activities.SumForUsersSince(ctx, ids, now.Add(-weekWindow))
	if err != nil {
		return err
	}
	for i := range entries {
		entries[i].WeeklyXP = weekly[entries[i].UserID]
		entries[i].ActivityLabel = leveling.ActivityLabel(entries[i].WeeklyXP)
	}
	return nil
}

func (s *leaderboardService) Contributors(ctx context.Context, page commonDto.PageQuery) (*commonDto.Paginated[dto.ContributorEntry], error) {
	page = page.Normalize()

	key := fmt.Sprintf("leaderboard:contributors:%d:%d", page.Page, page.Limit)
	var cached commonDto.Paginated[dto.ContributorEntry]
	if s.cache.get(ctx, key, &cached) {
		return &cached, nil
	}

	users, total, err := s.users.List(ctx, userRepo.UserFilter{
		TaggedOnly: true,
		SortBy:     "contributionXP",
		Desc:       true,
		Limit:      page.Limit,
		Offset:     page.Offset(),
	})
	if err != nil {
		return nil, err
	}

	entries := make([]dto.ContributorEntry, len(users))
	for i, u := range users {
		entries[i] = dto.ContributorEntry{
			Rank:              page.Offset() + i + 1,
			UserID:            u.ID,
			WalletAddress:     u.WalletAddress,
			Username:          u.Username,
			AvatarURL:         u.AvatarURL,
			ContributorTag:    u.ContributorTag,
			ContributionXP:    u.ContributionXP,
			ContributionLevel: u.ContributionLevel,
			XP:                u.XP,
			Level:             u.Level,
		}
	}

	res := &commonDto.Paginated[dto.ContributorEntry]{
		Data: entries,
		Meta: commonDto.NewPaginationMeta(page, total),
	}
	s.cache.set(ctx, key, res)
	return res, nil
}

// MyRank is one more than the number of users strictly ahead, so ties share
// a rank.
func (s *leaderboardService) MyRank(ctx context.Context, userID uuid.UUID) (*dto.RankResponse, error) {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	ahead, err := s.users.CountWithMoreXP(ctx, user.XP)
	if err != nil {
		return nil, err
	}
	total, err := s.users.Count(ctx)
	if err != nil {
		return nil, err
	}
	weekly, err := s.activities.SumForUserSince(ctx, user.ID, s.clock.Now().Add(-weekWindow))
	if err != nil {
		return nil, err
	}

	res := &dto.RankResponse{
		GlobalRank:     ahead + 1,
		TotalUsers:     total,
		XP:             user.XP,
		Level:          user.Level,
		WeeklyXP:       weekly,
		ActivityLabel:  leveling.ActivityLabel(weekly),
		LevelStatus:    s.levels.Status(user.XP),
		ContributionXP: user.ContributionXP,
	}

	if user.ContributorTag != nil && *user.ContributorTag != "" {
		aheadTagged, err := s.users.CountTaggedWithMoreContributionXP(ctx, user.ContributionXP)
		if err != nil {
			return nil, err
		}
		rank := aheadTagged + 1
		res.ContributorRank = &rank
	}
	return res, nil
}

func (s *leaderboardService) Stats(ctx context.Context) (*dto.StatsResponse, error) {
	agg, err := s.users.Aggregate(ctx)
	if err != nil {
		return nil, err
	}
	count, err := s.activities.Count(ctx)
	if err != nil {
		return nil, err
	}
	recent, _, err := s.activities.List(ctx, xpRepo.ActivityFilter{WithUser: true, Limit: recentActivityLimit})
	if err != nil {
		return nil, err
	}

	items := make([]dto.RecentActivity, len(recent))
	for i, a := range recent {
		items[i] = dto.RecentActivity{
			ID:          a.ID,
			Amount:      a.Amount,
			Type:        string(a.Type),
			Description: a.Description,
			CreatedAt:   a.CreatedAt,
		}
		if a.User != nil {
			items[i].WalletAddress = a.User.WalletAddress
			items[i].Username = a.User.Username
		}
	}

	return &dto.StatsResponse{
		UserAggregate:    agg,
		TotalActivities:  count,
		RecentActivities: items,
	}, nil
}
