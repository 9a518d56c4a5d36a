// Package testutil holds in-memory repositories for service tests.
package testutil

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"helios.network/testnetapi/internal/entity"
	userRepo "helios.network/testnetapi/internal/modules/user/repository"
)

// UserStore is an in-memory userRepo.UserRepository. Reads hand out copies
// so a failed transaction never leaks partial changes.
type UserStore struct {
	mu    sync.Mutex
	users map[uuid.UUID]entity.User
	// Locks records LockByID calls in order.
	Locks []uuid.UUID
}

var _ userRepo.UserRepository = (*UserStore)(nil)

func NewUserStore(users ...*entity.User) *UserStore {
	s := &UserStore{users: make(map[uuid.UUID]entity.User)}
	for _, u := range users {
		_ = s.Create(context.Background(), u)
	}
	return s
}

func (s *UserStore) Create(_ context.Context, user *entity.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := user.BeforeCreate(nil); err != nil {
		return err
	}
	user.WalletAddress = strings.ToLower(user.WalletAddress)
	for _, u := range s.users {
		if u.WalletAddress == user.WalletAddress {
			return gorm.ErrDuplicatedKey
		}
		if user.Username != nil && u.Username != nil && *u.Username == *user.Username {
			return gorm.ErrDuplicatedKey
		}
	}
	s.users[user.ID] = *user
	return nil
}

func (s *UserStore) Save(_ context.Context, user *entity.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[user.ID] = *user
	return nil
}

func (s *UserStore) FindByID(_ context.Context, id uuid.UUID) (*entity.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return &u, nil
}

func (s *UserStore) FindByWallet(_ context.Context, wallet string) (*entity.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	wallet = strings.ToLower(wallet)
	for _, u := range s.users {
		if u.WalletAddress == wallet {
			return &u, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (s *UserStore) FindByUsername(_ context.Context, username string) (*entity.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.Username != nil && *u.Username == username {
			return &u, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (s *UserStore) FindByIDs(_ context.Context, ids []uuid.UUID) ([]entity.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []entity.User
	for _, id := range ids {
		if u, ok := s.users[id]; ok {
			out = append(out, u)
		}
	}
	return out, nil
}

func (s *UserStore) LockByID(ctx context.Context, id uuid.UUID) (*entity.User, error) {
	s.mu.Lock()
	s.Locks = append(s.Locks, id)
	s.mu.Unlock()
	return s.FindByID(ctx, id)
}

func (s *UserStore) List(_ context.Context, filter userRepo.UserFilter) ([]entity.User, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var matched []entity.User
	for _, u := range s.users {
		if filter.Query != "" {
			q := strings.ToLower(filter.Query)
			name, tag := "", ""
			if u.Username != nil {
				name = strings.ToLower(*u.Username)
			}
			if u.ContributorTag != nil {
				tag = strings.ToLower(*u.ContributorTag)
			}
			if !strings.Contains(u.WalletAddress, q) && !strings.Contains(name, q) && !strings.Contains(tag, q) {
				continue
			}
		}
		if filter.ContributorStatus != "" && u.ContributorStatus != filter.ContributorStatus {
			continue
		}
		if filter.Status != "" && u.Status != filter.Status {
			continue
		}
		if filter.TaggedOnly && (u.ContributorTag == nil || *u.ContributorTag == "") {
			continue
		}
		matched = append(matched, u)
	}

	key := func(u entity.User) int {
		switch filter.SortBy {
		case "level":
			return u.Level
		case "contributionXP":
			return u.ContributionXP
		default:
			return u.XP
		}
	}
	sort.SliceStable(matched, func(i, j int) bool {
		a, b := key(matched[i]), key(matched[j])
		if a != b {
			if filter.Desc {
				return a > b
			}
			return a < b
		}
		return matched[i].CreatedAt.Before(matched[j].CreatedAt)
	})

	total := int64(len(matched))
	if filter.Offset > 0 {
		if filter.Offset >= len(matched) {
			matched = nil
		} else {
			matched = matched[filter.Offset:]
		}
	}
	if filter.Limit > 0 && len(matched) > filter.Limit {
		matched = matched[:filter.Limit]
	}
	return matched, total, nil
}

func (s *UserStore) Delete(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[id]; !ok {
		return gorm.ErrRecordNotFound
	}
	delete(s.users, id)
	return nil
}

func (s *UserStore) Count(_ context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int64(len(s.users)), nil
}

// CountWhere understands the handful of predicates the services issue.
func (s *UserStore) CountWhere(_ context.Context, query string, args ...any) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for _, u := range s.users {
		switch query {
		case "status = ?":
			if string(u.Status) == toString(args[0]) {
				n++
			}
		case "contributor_status = ?":
			if string(u.ContributorStatus) == toString(args[0]) {
				n++
			}
		case "onboarding_completed = ?":
			if u.OnboardingCompleted == args[0].(bool) {
				n++
			}
		case "xp > ?":
			if u.XP > args[0].(int) {
				n++
			}
		case "contributor_tag IS NOT NULL AND contributor_tag <> ''":
			if u.ContributorTag != nil && *u.ContributorTag != "" {
				n++
			}
		case "contributor_tag IS NOT NULL AND contributor_tag <> '' AND contribution_xp > ?":
			if u.ContributorTag != nil && *u.ContributorTag != "" && u.ContributionXP > args[0].(int) {
				n++
			}
		}
	}
	return n, nil
}

func (s *UserStore) CountWithMoreXP(ctx context.Context, xp int) (int64, error) {
	return s.CountWhere(ctx, "xp > ?", xp)
}

func (s *UserStore) CountTaggedWithMoreContributionXP(ctx context.Context, contributionXP int) (int64, error) {
	return s.CountWhere(ctx,
		"contributor_tag IS NOT NULL AND contributor_tag <> '' AND contribution_xp > ?", contributionXP)
}

// Get returns the stored user, failing the lookup silently with nil.
func (s *UserStore) Get(id uuid.UUID) *entity.User {
	u, err := s.FindByID(context.Background(), id)
	if err != nil {
		return nil
	}
	return u
}

func toString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case entity.AccountStatus:
		return string(t)
	case entity.ContributorStatus:
		return string(t)
	}
	return ""
}

func (s *UserStore) Aggregate(_ context.Context) (userRepo.UserAggregate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var agg userRepo.UserAggregate
	for _, u := range s.users {
		agg.TotalUsers++
		agg.TotalXP += int64(u.XP)
		agg.TotalContributionXP += int64(u.ContributionXP)
		if u.XP > agg.MaxXP {
			agg.MaxXP = u.XP
		}
		if u.ContributorTag != nil && *u.ContributorTag != "" {
			agg.TotalContributors++
		}
	}
	if agg.TotalUsers > 0 {
		agg.AverageXP = float64(agg.TotalXP) / float64(agg.TotalUsers)
		agg.AverageContributionXP = float64(agg.TotalContributionXP) / float64(agg.TotalUsers)
	}
	return agg, nil
}

func (s *UserStore) ContributorSummary(_ context.Context) (userRepo.ContributorSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var summary userRepo.ContributorSummary
	byTag := map[string]int64{}
	for _, u := range s.users {
		if u.ContributorStatus != entity.ContributorApproved {
			continue
		}
		summary.TotalContributors++
		summary.TotalContributionXP += int64(u.ContributionXP)
		tag := ""
		if u.ContributorTag != nil {
			tag = *u.ContributorTag
		}
		byTag[tag]++
	}
	if summary.TotalContributors > 0 {
		summary.AverageContributionXP = float64(summary.TotalContributionXP) / float64(summary.TotalContributors)
	}
	for tag, n := range byTag {
		summary.ByTag = append(summary.ByTag, userRepo.TagCount{Tag: tag, Count: n})
	}
	sort.Slice(summary.ByTag, func(i, j int) bool {
		if summary.ByTag[i].Count != summary.ByTag[j].Count {
			return summary.ByTag[i].Count > summary.ByTag[j].Count
		}
		return summary.ByTag[i].Tag < summary.ByTag[j].Tag
	})
	return summary, nil
}

func (s *UserStore) snapshot() func() {
	s.mu.Lock()
	saved := make(map[uuid.UUID]entity.User, len(s.users))
	for id, u := range s.users {
		saved[id] = u
	}
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		s.users = saved
		s.mu.Unlock()
	}
}
