package testutil

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"helios.network/testnetapi/internal/entity"
	"helios.network/testnetapi/internal/modules/xp/repository"
)

// ActivityStore is an in-memory repository.ActivityRepository.
type ActivityStore struct {
	mu    sync.Mutex
	rows  []entity.XPActivity
	users *UserStore
}

var _ repository.ActivityRepository = (*ActivityStore)(nil)

// NewActivityStore links users so WithUser listings can join them.
func NewActivityStore(users *UserStore) *ActivityStore {
	return &ActivityStore{users: users}
}

func (s *ActivityStore) Create(_ context.Context, activity *entity.XPActivity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if activity.ID == uuid.Nil {
		activity.ID = uuid.New()
	}
	if activity.CreatedAt.IsZero() {
		activity.CreatedAt = time.Now().UTC()
	}
	s.rows = append(s.rows, *activity)
	return nil
}

func (s *ActivityStore) LatestByType(_ context.Context, userID uuid.UUID, activityType entity.XPActivityType) (*entity.XPActivity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var latest *entity.XPActivity
	for i := range s.rows {
		a := s.rows[i]
		if a.UserID != userID || a.Type != activityType {
			continue
		}
		if latest == nil || a.CreatedAt.After(latest.CreatedAt) {
			latest = &a
		}
	}
	return latest, nil
}

func (s *ActivityStore) List(_ context.Context, filter repository.ActivityFilter) ([]entity.XPActivity, int64, error) {
	s.mu.Lock()
	var matched []entity.XPActivity
	for _, a := range s.rows {
		if filter.UserID != nil && a.UserID != *filter.UserID {
			continue
		}
		if filter.Type != "" && a.Type != filter.Type {
			continue
		}
		if filter.Since != nil && a.CreatedAt.Before(*filter.Since) {
			continue
		}
		matched = append(matched, a)
	}
	s.mu.Unlock()

	// Insertion order breaks ties, newest first.
	for i, j := 0, len(matched)-1; i < j; i, j = i+1, j-1 {
		matched[i], matched[j] = matched[j], matched[i]
	}
	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	total := int64(len(matched))
	matched = window(matched, filter.Limit, filter.Offset)
	if filter.WithUser && s.users != nil {
		for i := range matched {
			matched[i].User = s.users.Get(matched[i].UserID)
		}
	}
	return matched, total, nil
}

func (s *ActivityStore) Count(_ context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int64(len(s.rows)), nil
}

func (s *ActivityStore) SumByUserSince(_ context.Context, since time.Time, limit, offset int) ([]repository.XPTotal, int64, error) {
	s.mu.Lock()
	sums := make(map[uuid.UUID]int)
	for _, a := range s.rows {
		if !a.CreatedAt.Before(since) {
			sums[a.UserID] += a.Amount
		}
	}
	s.mu.Unlock()

	rows := make([]repository.XPTotal, 0, len(sums))
	for id, total := range sums {
		rows = append(rows, repository.XPTotal{UserID: id, Total: total})
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Total != rows[j].Total {
			return rows[i].Total > rows[j].Total
		}
		return rows[i].UserID.String() < rows[j].UserID.String()
	})
	return window(rows, limit, offset), int64(len(sums)), nil
}

func (s *ActivityStore) SumForUserSince(_ context.Context, userID uuid.UUID, since time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	total := 0
	for _, a := range s.rows {
		if a.UserID == userID && !a.CreatedAt.Before(since) {
			total += a.Amount
		}
	}
	return total, nil
}

func (s *ActivityStore) SumForUsersSince(_ context.Context, userIDs []uuid.UUID, since time.Time) (map[uuid.UUID]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sums := make(map[uuid.UUID]int)
	for _, a := range s.rows {
		if slices.Contains(userIDs, a.UserID) && !a.CreatedAt.Before(since) {
			sums[a.UserID] += a.Amount
		}
	}
	return sums, nil
}

// All returns every stored activity in insertion order.
func (s *ActivityStore) All() []entity.XPActivity {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]entity.XPActivity(nil), s.rows...)
}

func (s *ActivityStore) snapshot() func() {
	s.mu.Lock()
	saved := append([]entity.XPActivity(nil), s.rows...)
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		s.rows = saved
		s.mu.Unlock()
	}
}

func window[T any](items []T, limit, offset int) []T {
	if offset > 0 {
		if offset >= len(items) {
			return nil
		}
		items = items[offset:]
	}
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items
}
